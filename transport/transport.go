// Package transport defines the byte-stream link a session runs on.
//
// A link is opened by a Dialer for a Target and handed to the session as a
// Stream. Concrete links live in sub packages: rfcomm (Linux Bluetooth
// sockets), serialport (bound /dev/rfcommN or USB-serial adapters) and
// tcpconn (Wi-Fi serial bridges). Each registers itself in the default
// Registry when imported.
package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/google/uuid"
)

// SerialPortProfile is the Bluetooth Serial Port Profile service class the
// robot firmware advertises.
var SerialPortProfile = uuid.MustParse("00001101-0000-1000-8000-00805F9B34FB")

// DefaultChannel is the RFCOMM channel used when a Target does not name one.
const DefaultChannel = 1

// Target identifies the remote endpoint of a link.
//
// Address is interpreted by the dialer: a MAC address for rfcomm, a device
// path for serialport, a host:port for tcpconn.
type Target struct {
	Name    string
	Address string
	// Channel is the RFCOMM channel, zero means DefaultChannel.
	Channel int
}

// DisplayName returns Name, or Address when the target has no name.
func (t Target) DisplayName() string {
	if t.Name != "" {
		return t.Name
	}

	return t.Address
}

// RFCOMMChannel returns the effective RFCOMM channel.
func (t Target) RFCOMMChannel() int {
	if t.Channel <= 0 {
		return DefaultChannel
	}

	return t.Channel
}

func (t Target) String() string {
	if t.Name == "" || t.Name == t.Address {
		return t.Address
	}

	return t.Name + " (" + t.Address + ")"
}

// Stream is an established bidirectional byte stream.
//
// Read blocks until data arrives or the stream is closed. Close must unblock
// a pending Read.
type Stream interface {
	io.ReadWriteCloser
}

// InputCloser is implemented by streams that can shut down their read side
// independently.
type InputCloser interface {
	CloseRead() error
}

// OutputCloser is implemented by streams that can shut down their write side
// independently.
type OutputCloser interface {
	CloseWrite() error
}

// Dialer opens a Stream to a Target. Dial must honour ctx cancellation.
type Dialer interface {
	Dial(ctx context.Context, target Target) (Stream, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, target Target) (Stream, error)

// Dial calls f(ctx, target).
func (f DialerFunc) Dial(ctx context.Context, target Target) (Stream, error) {
	return f(ctx, target)
}

// ParseMAC parses a Bluetooth device address in the canonical
// "AA:BB:CC:DD:EE:FF" form (dashes are accepted too). The returned bytes are
// in display order, most significant first.
func ParseMAC(s string) ([6]byte, error) {
	var mac [6]byte

	hw, err := net.ParseMAC(strings.ReplaceAll(s, "-", ":"))
	if err != nil {
		return mac, fmt.Errorf("transport: invalid device address %q: %w", s, err)
	}

	if len(hw) != len(mac) {
		return mac, fmt.Errorf("transport: invalid device address %q: want 6 bytes, got %d", s, len(hw))
	}

	copy(mac[:], hw)

	return mac, nil
}

// NormalizeMAC returns s in upper-case colon form, as BlueZ reports addresses.
func NormalizeMAC(s string) (string, error) {
	mac, err := ParseMAC(s)
	if err != nil {
		return "", err
	}

	return strings.ToUpper(net.HardwareAddr(mac[:]).String()), nil
}
