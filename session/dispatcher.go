package session

import (
	"context"
	"time"

	"github.com/arloliu/go-tankbot/internal/queue"
	"github.com/arloliu/go-tankbot/internal/task"
	"github.com/arloliu/go-tankbot/logger"
)

// dispatcher delivers events to the listener on its own goroutine.
//
// post never blocks, so it can be called while holding the session lock;
// the queue is unbounded and the order of post calls is the delivery order.
type dispatcher struct {
	events   *queue.LockFree[Event]
	signal   chan struct{}
	listener Listener
	tasks    *task.Manager
	logger   logger.Logger
}

func newDispatcher(ctx context.Context, l Listener, log logger.Logger) (*dispatcher, error) {
	d := &dispatcher{
		events:   queue.NewLockFree[Event](),
		signal:   make(chan struct{}, 1),
		listener: l,
		tasks:    task.NewManager(ctx, log),
		logger:   log,
	}

	if err := d.tasks.Start("dispatcher", d.run); err != nil {
		return nil, err
	}

	return d, nil
}

func (d *dispatcher) post(ev Event) {
	d.events.Enqueue(ev)

	select {
	case d.signal <- struct{}{}:
	default:
	}
}

func (d *dispatcher) run() bool {
	select {
	case <-d.tasks.Context().Done():
		d.drain()
		return false

	case <-d.signal:
		d.drain()
		return true
	}
}

func (d *dispatcher) drain() {
	for {
		ev, ok := d.events.Dequeue()
		if !ok {
			return
		}

		d.deliver(ev)
	}
}

// deliver shields the dispatcher from a panicking listener.
func (d *dispatcher) deliver(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("session: panic in listener", "event", ev.Kind.String(), "panic", r)
		}
	}()

	ev.Deliver(d.listener)
}

// stop delivers the pending events and waits at most timeout for the
// dispatcher goroutine to exit.
func (d *dispatcher) stop(timeout time.Duration) bool {
	d.tasks.Stop()

	if !d.tasks.WaitTimeout(timeout) {
		return false
	}

	// the task loop may exit on cancellation before draining events
	// posted right before stop.
	d.drain()

	return true
}

func (d *dispatcher) pending() int {
	return d.events.Length()
}
