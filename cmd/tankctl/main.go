// Command tankctl drives a tank and arm robot over Bluetooth RFCOMM, a
// serial device or TCP.
package main

func main() {
	Execute()
}
