// Package session owns the single link to a robot: it dials a transport,
// frames the inbound byte stream, serialises outbound commands and reports
// every lifecycle change to a Listener.
//
// A Session is long lived and reusable. Each successful Connect creates a
// link (stream, frame decoder, writer queue, goroutines) that is destroyed on
// Disconnect or on the first I/O failure; the session then returns to Idle
// and may be connected again. There is no automatic reconnection.
//
// Public methods never block on link I/O. Connect returns once the dial has
// started; Send returns once the command is queued for the link's writer.
//
// Example:
//
//	s, err := session.New(
//	    session.WithTransport("rfcomm"),
//	    session.WithListener(session.ListenerFuncs{
//	        Message: func(frame string) { fmt.Println("robot:", frame) },
//	    }),
//	)
//	if err != nil { ... }
//	defer s.Close()
//
//	_ = s.Connect(transport.Target{Name: "ESP32-Tank", Address: "24:6F:28:AA:BB:CC"})
//	_ = s.WaitState(ctx, session.Connected)
//	_ = s.Send(command.TankDrive(150, 150))
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-tankbot/command"
	"github.com/arloliu/go-tankbot/internal/pool"
	"github.com/arloliu/go-tankbot/internal/task"
	"github.com/arloliu/go-tankbot/logger"
	"github.com/arloliu/go-tankbot/transport"
	"github.com/arloliu/go-tankbot/wire"
)

// Session is a reliable command session over one link at a time.
// It is safe for concurrent use.
type Session struct {
	cfg     *config
	logger  logger.Logger
	state   *stateMachine
	metrics Metrics
	events  *dispatcher

	ctx    context.Context
	cancel context.CancelFunc

	// mu serialises state transitions and guards link and gen. Events are
	// posted while holding mu, which fixes their delivery order.
	mu     sync.Mutex
	link   *link
	gen    uint64
	closed atomic.Bool
}

// link is the per-connect state. Goroutines of a link compare it with
// Session.link to find out whether they are stale.
type link struct {
	gen    uint64
	target transport.Target
	ctx    context.Context
	cancel context.CancelFunc
	sendCh chan command.Command
	// ready receives the outcome of the dial, exactly once.
	ready chan error

	// set when the dial succeeds, under Session.mu.
	stream transport.Stream
	tasks  *task.Manager
}

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// New creates an idle Session. A dialer is required, see WithDialer and
// WithTransport.
func New(opts ...Option) (*Session, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}

	s := &Session{
		cfg:    cfg,
		logger: cfg.logger,
		state:  newStateMachine(),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.events, err = newDispatcher(context.Background(), cfg.listener, cfg.logger)
	if err != nil {
		s.cancel()
		return nil, err
	}

	return s, nil
}

// Connect starts connecting to target and returns immediately.
//
// The outcome is reported to the listener: OnConnected on success, or
// OnError with a *ConnectionError followed by OnDisconnected on failure.
// It returns ErrBusy unless the session is Idle.
func (s *Session) Connect(target transport.Target) error {
	_, err := s.startConnect(target)

	return err
}

// ConnectAndWait connects to target and waits until the link is up or the
// dial failed. When ctx ends first the dial keeps going; call Disconnect to
// abort it.
func (s *Session) ConnectAndWait(ctx context.Context, target transport.Target) error {
	l, err := s.startConnect(target)
	if err != nil {
		return err
	}

	select {
	case err := <-l.ready:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send queues cmd for the link's writer.
//
// It returns ErrNotConnected unless the session is Connected,
// command.ErrInvalidCommand for a token that cannot go on the wire, and
// ErrSendQueueFull when the writer queue stays full for the send timeout.
// A nil return means the command was queued, not that the robot received it.
func (s *Session) Send(cmd command.Command) error {
	if s.closed.Load() {
		return ErrClosed
	}

	if _, err := command.Parse(cmd.String()); err != nil {
		return err
	}

	s.mu.Lock()
	l := s.link
	connected := l != nil && s.state.get() == Connected
	s.mu.Unlock()

	if !connected {
		return ErrNotConnected
	}

	err := pool.SendWithin(l.ctx, l.sendCh, cmd, s.cfg.sendTimeout)
	switch {
	case err == nil:
		return nil

	case errors.Is(err, pool.ErrTimeout):
		s.metrics.incCmdDropCount()
		s.logger.Warn("session: send queue full, command dropped", "cmd", cmd.String(), "queueSize", s.cfg.sendQueueSize)

		return ErrSendQueueFull

	default:
		return ErrNotConnected
	}
}

// SendString validates a raw token and sends it.
func (s *Session) SendString(token string) error {
	cmd, err := command.Parse(token)
	if err != nil {
		return err
	}

	return s.Send(cmd)
}

// Disconnect tears down the current link, if any, and reports exactly one
// OnDisconnected for this call. It is safe to call in any state and from a
// listener. It blocks until the link is closed and its goroutines have
// finished, or the close timeout elapses.
func (s *Session) Disconnect() {
	s.mu.Lock()

	switch s.state.get() {
	case Idle:
		s.events.post(Event{Kind: EventDisconnected})
		s.mu.Unlock()

		return

	case Disconnecting:
		// another teardown is in flight; report after it completes.
		epoch := s.state.epoch()
		s.mu.Unlock()

		_ = s.state.waitIdleAfter(context.Background(), epoch)

		s.mu.Lock()
		s.events.post(Event{Kind: EventDisconnected})
		s.mu.Unlock()

		return
	}

	l := s.link
	s.link = nil
	s.state.set(Disconnecting)
	s.mu.Unlock()

	s.logger.Debug("session: disconnect requested", "target", l.target.String(), "gen", l.gen)
	s.teardown(l, true)

	s.mu.Lock()
	s.state.set(Idle)
	s.events.post(Event{Kind: EventDisconnected})
	s.mu.Unlock()
}

// Close disconnects a live link, delivers the pending notifications and
// stops the dispatcher. The session cannot be used afterwards.
// Close must not be called from a listener.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		return nil
	}
	s.closed.Store(true)
	idle := s.state.get() == Idle
	s.mu.Unlock()

	if !idle {
		s.Disconnect()
	}

	s.cancel()

	if !s.events.stop(s.cfg.closeTimeout) {
		s.logger.Error("session: close timeout", "timeout", s.cfg.closeTimeout, "pendingEvents", s.events.pending())
		return errors.New("session: close timeout")
	}

	return nil
}

// State returns the current state.
func (s *Session) State() State {
	return s.state.get()
}

// Target returns the target of the current link, while Connecting or Connected.
func (s *Session) Target() (transport.Target, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.link == nil {
		return transport.Target{}, false
	}

	return s.link.target, true
}

// WaitState blocks until the session reaches state or ctx is done.
func (s *Session) WaitState(ctx context.Context, state State) error {
	return s.state.wait(ctx, state)
}

// Metrics returns the session counters.
func (s *Session) Metrics() *Metrics {
	return &s.metrics
}

// Logger returns the session logger.
func (s *Session) Logger() logger.Logger {
	return s.logger
}

// --- link lifecycle ---

func (s *Session) startConnect(target transport.Target) (*link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return nil, ErrClosed
	}

	if !s.state.transition(Idle, Connecting) {
		return nil, ErrBusy
	}

	s.gen++
	l := &link{
		gen:    s.gen,
		target: target,
		sendCh: make(chan command.Command, s.cfg.sendQueueSize),
		ready:  make(chan error, 1),
	}
	l.ctx, l.cancel = context.WithCancel(s.ctx)
	s.link = l

	s.logger.Info("session: connecting", "target", target.String(), "gen", l.gen)

	go s.dial(l)

	return l, nil
}

// dial runs on its own goroutine, one per Connect.
func (s *Session) dial(l *link) {
	dialCtx, cancel := context.WithTimeout(l.ctx, s.cfg.connectTimeout)
	stream, err := s.cfg.dialer.Dial(dialCtx, l.target)
	cancel()

	if err == nil && stream == nil {
		err = errors.New("dialer returned a nil stream")
	}

	s.mu.Lock()

	if s.link != l || s.state.get() != Connecting {
		// Disconnect won the race and already reported it.
		s.mu.Unlock()
		s.logger.Debug("session: dial finished after disconnect", "gen", l.gen, "error", err)

		if err == nil {
			s.closeStream(stream)
		}
		l.ready <- fmt.Errorf("%w: connect aborted", ErrNotConnected)

		return
	}

	if err != nil {
		connErr := &ConnectionError{Target: l.target, Err: err}

		s.link = nil
		l.cancel()
		s.metrics.incConnectFailCount()
		s.logger.Warn("session: connect failed", "target", l.target.String(), "error", err)

		s.events.post(Event{Kind: EventError, Err: connErr})
		s.state.set(Idle)
		s.events.post(Event{Kind: EventDisconnected})
		s.mu.Unlock()

		l.ready <- connErr

		return
	}

	l.stream = stream
	l.tasks = task.NewManager(l.ctx, s.logger)

	s.state.set(Connected)
	s.metrics.incConnectCount()
	s.logger.Info("session: connected", "target", l.target.String(), "gen", l.gen)
	s.events.post(Event{Kind: EventConnected, Name: l.target.DisplayName()})

	startErr := s.startLinkTasks(l)
	s.mu.Unlock()

	if startErr != nil {
		s.fail(l, &IOError{Op: "start", Err: startErr})
	}

	l.ready <- startErr
}

func (s *Session) startLinkTasks(l *link) error {
	if err := task.StartConsumer[command.Command](l.tasks, "writer", l.sendCh, func(cmd command.Command) bool {
		return s.write(l, cmd)
	}); err != nil {
		return err
	}

	decoder := wire.NewDecoder(s.cfg.maxFrameSize)
	buf := make([]byte, s.cfg.readChunkSize)

	return l.tasks.Start("reader", func() bool {
		return s.read(l, decoder, buf)
	})
}

// write is the writer actor body; it is the only writer of l.stream.
func (s *Session) write(l *link, cmd command.Command) bool {
	if s.cfg.writeTimeout > 0 {
		if dw, ok := l.stream.(writeDeadliner); ok {
			_ = dw.SetWriteDeadline(time.Now().Add(s.cfg.writeTimeout))
		}
	}

	n, err := l.stream.Write(wire.Encode(cmd.String()))
	if err != nil {
		s.fail(l, &IOError{Op: "write", Err: err})
		return false
	}

	s.metrics.addCmdSent(n)
	s.logger.Debug("session: command sent", "cmd", cmd.String())

	return true
}

// read performs one blocking read; it is the only reader of l.stream.
func (s *Session) read(l *link, dec *wire.Decoder, buf []byte) bool {
	n, err := l.stream.Read(buf)
	if n > 0 {
		s.metrics.addBytesRecv(n)

		frames, frameErr := dec.Feed(buf[:n])
		s.deliverFrames(l, frames)

		if frameErr != nil {
			s.fail(l, &IOError{Op: "read", Err: frameErr})
			return false
		}
	}

	if err != nil {
		s.fail(l, &IOError{Op: "read", Err: err})
		return false
	}

	// a (0, nil) read is retried.
	return true
}

func (s *Session) deliverFrames(l *link, frames []string) {
	if len(frames) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.link != l {
		return
	}

	for _, frame := range frames {
		s.metrics.incFrameRecvCount()
		s.events.post(Event{Kind: EventMessage, Frame: frame})
	}
}

// fail handles an I/O error reported by a link task. Only the first error
// of the current link is reported; errors of stale links are dropped.
func (s *Session) fail(l *link, err error) {
	s.mu.Lock()

	if s.link != l || s.state.get() != Connected {
		s.mu.Unlock()
		s.logger.Debug("session: ignore error of a stale link", "gen", l.gen, "error", err)

		return
	}

	s.link = nil
	s.state.set(Disconnecting)
	s.metrics.incIOErrorCount()
	s.logger.Error("session: link failed", "target", l.target.String(), "gen", l.gen, "error", err)
	s.events.post(Event{Kind: EventError, Err: err})
	s.mu.Unlock()

	// fail runs on a link task, which cannot wait for itself.
	s.teardown(l, false)

	s.mu.Lock()
	s.state.set(Idle)
	s.events.post(Event{Kind: EventDisconnected})
	s.mu.Unlock()
}

// teardown releases a link that is no longer current.
func (s *Session) teardown(l *link, wait bool) {
	l.cancel()

	if l.stream != nil {
		s.closeStream(l.stream)
	}

	if l.tasks != nil {
		l.tasks.Stop()

		if wait && !l.tasks.WaitTimeout(s.cfg.closeTimeout) {
			s.logger.Warn("session: link tasks did not stop in time",
				"gen", l.gen, "timeout", s.cfg.closeTimeout, "tasks", l.tasks.TaskCount())
		}

		s.metrics.incDisconnectCount()
	}

	s.logger.Info("session: disconnected", "target", l.target.String(), "gen", l.gen)
}

// closeStream closes the input side, the output side and the stream itself.
// Each step is best effort.
func (s *Session) closeStream(stream transport.Stream) {
	if ic, ok := stream.(transport.InputCloser); ok {
		if err := ic.CloseRead(); err != nil && !isClosedErr(err) {
			s.logger.Warn("session: failed to close link input", "error", err)
		}
	}

	if oc, ok := stream.(transport.OutputCloser); ok {
		if err := oc.CloseWrite(); err != nil && !isClosedErr(err) {
			s.logger.Warn("session: failed to close link output", "error", err)
		}
	}

	if err := stream.Close(); err != nil && !isClosedErr(err) {
		s.logger.Warn("session: failed to close link", "error", err)
	}
}

func isClosedErr(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, os.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}
