//go:build linux

package rfcomm

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/arloliu/go-tankbot/transport"
)

func dial(ctx context.Context, addr [6]byte, channel uint8, name string) (transport.Stream, error) {
	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.BTPROTO_RFCOMM)
	if err != nil {
		if errors.Is(err, unix.EAFNOSUPPORT) || errors.Is(err, unix.EPROTONOSUPPORT) {
			return nil, ErrUnsupported
		}

		return nil, os.NewSyscallError("socket", err)
	}

	err = unix.Connect(fd, &unix.SockaddrRFCOMM{Addr: addr, Channel: channel})
	if err != nil && !errors.Is(err, unix.EINPROGRESS) {
		_ = unix.Close(fd)
		return nil, os.NewSyscallError("connect", err)
	}

	if err != nil {
		if err := waitConnected(ctx, fd); err != nil {
			_ = unix.Close(fd)
			return nil, err
		}
	}

	// the fd is non-blocking, so os.File registers it with the runtime
	// poller and Close unblocks a pending Read.
	return &conn{File: os.NewFile(uintptr(fd), "rfcomm:"+name)}, nil
}

func waitConnected(ctx context.Context, fd int) error {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
	timeout := int(pollInterval / time.Millisecond)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := unix.Poll(fds, timeout)
		if errors.Is(err, unix.EINTR) || (err == nil && n == 0) {
			continue
		}

		if err != nil {
			return os.NewSyscallError("poll", err)
		}

		soErr, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
		if err != nil {
			return os.NewSyscallError("getsockopt", err)
		}

		if soErr != 0 {
			return os.NewSyscallError("connect", unix.Errno(soErr))
		}

		return nil
	}
}

// conn is a connected RFCOMM socket.
type conn struct {
	*os.File
}

func (c *conn) CloseRead() error {
	return c.shutdown(unix.SHUT_RD)
}

func (c *conn) CloseWrite() error {
	return c.shutdown(unix.SHUT_WR)
}

func (c *conn) shutdown(how int) error {
	raw, err := c.File.SyscallConn()
	if err != nil {
		return err
	}

	var opErr error
	if err := raw.Control(func(fd uintptr) {
		opErr = unix.Shutdown(int(fd), how)
	}); err != nil {
		return err
	}

	if opErr != nil {
		return os.NewSyscallError("shutdown", opErr)
	}

	return nil
}
