package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/arloliu/go-tankbot/bluez"
	"github.com/arloliu/go-tankbot/session"
	"github.com/arloliu/go-tankbot/transport"
	"github.com/arloliu/go-tankbot/transport/rfcomm"
	"github.com/arloliu/go-tankbot/transport/serialport"
	"github.com/arloliu/go-tankbot/transport/tcpconn"
)

var errNoAddress = errors.New("no device address: use --address, --name or device.address in the config file")

// flushPoll is how often flush re-checks the sent counter.
const flushPoll = 10 * time.Millisecond

var (
	robotStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	infoStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// console prints session notifications as styled lines.
type console struct {
	mu  sync.Mutex
	out io.Writer
}

var _ session.Listener = (*console)(nil)

func newConsole(out io.Writer) *console {
	return &console{out: out}
}

func (c *console) println(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintln(c.out, s)
}

func (c *console) OnConnected(name string) {
	c.println(infoStyle.Render("connected") + " " + name)
}

func (c *console) OnDisconnected() {
	c.println(dimStyle.Render("disconnected"))
}

func (c *console) OnMessage(frame string) {
	c.println(robotStyle.Render("< ") + frame)
}

func (c *console) OnError(err error) {
	c.println(errorStyle.Render("error") + " " + err.Error())
}

// dialer returns the dialer of the configured transport.
func (a *app) dialer() (transport.Dialer, error) {
	switch a.cfg.Transport {
	case rfcomm.Name:
		return &rfcomm.Dialer{Logger: a.log}, nil
	case serialport.Name:
		return &serialport.Dialer{BaudRate: a.cfg.Device.BaudRate, Logger: a.log}, nil
	case tcpconn.Name:
		return &tcpconn.Dialer{Logger: a.log}, nil
	default:
		return transport.Lookup(a.cfg.Transport)
	}
}

// resolveTarget returns the configured target. Over RFCOMM a device given
// only by name is looked up among the paired devices.
func (a *app) resolveTarget(ctx context.Context) (transport.Target, error) {
	target := a.cfg.Target()
	if target.Address != "" {
		return target, nil
	}

	if a.cfg.Transport != rfcomm.Name || target.Name == "" {
		return target, errNoAddress
	}

	client, err := bluez.NewClient(a.log)
	if err != nil {
		return target, err
	}
	defer client.Close()

	devices, err := client.PairedDevices(ctx)
	if err != nil {
		return target, err
	}

	dev, ok := bluez.FindByName(devices, target.Name)
	if !ok {
		return target, fmt.Errorf("no paired device matches %q", target.Name)
	}

	found := dev.Target()
	if target.Channel > 0 {
		found.Channel = target.Channel
	}
	a.log.Info("device found", "name", found.Name, "address", found.Address)

	return found, nil
}

// connect creates a session reporting to l and waits until it is connected.
func (a *app) connect(ctx context.Context, l session.Listener) (*session.Session, error) {
	target, err := a.resolveTarget(ctx)
	if err != nil {
		return nil, err
	}

	d, err := a.dialer()
	if err != nil {
		return nil, err
	}

	opts := append(a.cfg.SessionOptions(),
		session.WithDialer(d),
		session.WithListener(l),
		session.WithLogger(a.log),
	)

	s, err := session.New(opts...)
	if err != nil {
		return nil, err
	}

	if err := s.ConnectAndWait(ctx, target); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

// flush waits until n commands have been written to the link, so that a
// following Close does not drop queued commands.
func flush(ctx context.Context, s *session.Session, n uint64, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(flushPoll)
	defer ticker.Stop()

	for s.Metrics().CmdSendCount.Load() < n {
		if s.State() != session.Connected {
			return session.ErrNotConnected
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%d of %d commands written: %w", s.Metrics().CmdSendCount.Load(), n, ctx.Err())
		case <-ticker.C:
		}
	}

	return nil
}

// linger keeps the link open for d so replies can be printed.
func linger(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func sessionStateLine(s *session.Session) string {
	m := s.Metrics()

	return dimStyle.Render(strings.Join([]string{
		fmt.Sprintf("sent=%d", m.CmdSendCount.Load()),
		fmt.Sprintf("dropped=%d", m.CmdDropCount.Load()),
		fmt.Sprintf("frames=%d", m.FrameRecvCount.Load()),
		"out=" + humanize.Bytes(m.BytesSent.Load()),
		"in=" + humanize.Bytes(m.BytesRecv.Load()),
	}, " "))
}
