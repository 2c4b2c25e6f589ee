package session

import (
	"errors"
	"fmt"

	"github.com/arloliu/go-tankbot/transport"
)

var (
	// ErrBusy is returned by Connect when the session is not idle.
	ErrBusy = errors.New("session: connect already in progress or connected")

	// ErrNotConnected is returned by Send when no link is established.
	ErrNotConnected = errors.New("session: not connected")

	// ErrSendQueueFull is returned by Send when the writer queue stays full
	// for the whole send timeout.
	ErrSendQueueFull = errors.New("session: send queue full")

	// ErrClosed is returned by operations on a closed session.
	ErrClosed = errors.New("session: closed")

	// ErrDialerNil indicates that no dialer was configured.
	ErrDialerNil = errors.New("session: dialer is nil")
)

// ConnectionError reports a failure to establish a link.
type ConnectionError struct {
	Target transport.Target
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("session: connect to %s: %v", e.Target, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// IOError reports a read or write failure on an established link.
// Op is "read" or "write".
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("session: %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
