// Package serialport dials the robot through a serial device: an RFCOMM
// device bound with `rfcomm bind` (/dev/rfcommN), or a USB-serial adapter
// wired to the robot's UART.
//
// Importing the package registers the dialer as "serial" in the default
// transport registry.
package serialport

import (
	"context"
	"fmt"

	"go.bug.st/serial"

	"github.com/arloliu/go-tankbot/logger"
	"github.com/arloliu/go-tankbot/transport"
)

// Name is the registry name of the dialer.
const Name = "serial"

// DefaultBaudRate matches the robot firmware's UART setting.
const DefaultBaudRate = 115200

func init() {
	transport.Register(Name, &Dialer{})
}

// Dialer opens target.Address as a serial device path.
type Dialer struct {
	// BaudRate defaults to DefaultBaudRate.
	BaudRate int
	// Logger defaults to the process-wide logger.
	Logger logger.Logger
}

// Dial opens the device. Opening a bound /dev/rfcommN triggers the radio
// connect and may block for seconds; Dial returns as soon as ctx is done
// and closes the port if the open completes later.
func (d *Dialer) Dial(ctx context.Context, target transport.Target) (transport.Stream, error) {
	if target.Address == "" {
		return nil, fmt.Errorf("serialport: empty device path")
	}

	mode := &serial.Mode{
		BaudRate: d.baudRate(),
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	type result struct {
		port serial.Port
		err  error
	}

	resultCh := make(chan result, 1)
	go func() {
		port, err := serial.Open(target.Address, mode)
		resultCh <- result{port: port, err: err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			if r := <-resultCh; r.err == nil {
				_ = r.port.Close()
			}
		}()

		return nil, ctx.Err()

	case r := <-resultCh:
		if r.err != nil {
			return nil, fmt.Errorf("serialport: failed to open %s: %w", target.Address, r.err)
		}

		// discard anything the firmware printed before we attached.
		if err := r.port.ResetInputBuffer(); err != nil {
			d.log().Warn("serialport: failed to reset input buffer", "path", target.Address, "error", err)
		}

		d.log().Debug("serialport: opened", "path", target.Address, "baudRate", mode.BaudRate)

		return r.port, nil
	}
}

func (d *Dialer) baudRate() int {
	if d.BaudRate > 0 {
		return d.BaudRate
	}

	return DefaultBaudRate
}

func (d *Dialer) log() logger.Logger {
	if d.Logger != nil {
		return d.Logger
	}

	return logger.GetLogger()
}

// Ports lists the serial devices present on the system.
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("serialport: list ports: %w", err)
	}

	return ports, nil
}
