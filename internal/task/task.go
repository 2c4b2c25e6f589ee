// Package task runs and supervises the goroutines owned by a session link:
// the read loop, the writer actor and the notification dispatcher.
package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-tankbot/logger"
)

// ErrStopped is returned when starting a task on a stopped Manager.
var ErrStopped = errors.New("task: manager already stopped")

// Func is one iteration of a looping task. It returns false to end the task.
type Func func() bool

// Manager starts named goroutines bound to a shared context and waits for
// them to terminate.
//
// Example:
//
//	mgr := task.NewManager(ctx, logger)
//	_ = mgr.Start("reader", func() bool {
//	    // ... one blocking read ...
//	    return true
//	})
//	mgr.Stop()
//	mgr.Wait()
type Manager struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger logger.Logger
	count  atomic.Int32
}

// NewManager creates a Manager whose tasks are canceled with ctx.
func NewManager(ctx context.Context, l logger.Logger) *Manager {
	mgr := &Manager{logger: l}
	mgr.ctx, mgr.cancel = context.WithCancel(ctx)

	return mgr
}

// Context returns the context shared by all tasks of the manager.
func (mgr *Manager) Context() context.Context {
	return mgr.ctx
}

// Start runs taskFunc in a loop on a new goroutine until it returns false or
// the manager is stopped. The context is checked between iterations only, so
// a blocking iteration must be unblocked by its owner (e.g. by closing a stream).
func (mgr *Manager) Start(name string, taskFunc Func) error {
	return mgr.spawn(name, func() {
		for {
			select {
			case <-mgr.ctx.Done():
				return
			default:
				if !mgr.callWithRecover(name, taskFunc) {
					return
				}
			}
		}
	})
}

// StartConsumer runs fn for every value received from in, until fn returns
// false, in is closed, or the manager is stopped.
func StartConsumer[T any](mgr *Manager, name string, in <-chan T, fn func(T) bool) error {
	if in == nil {
		return fmt.Errorf("task: %s input channel is nil", name)
	}

	return mgr.spawn(name, func() {
		for {
			select {
			case <-mgr.ctx.Done():
				return
			case v, ok := <-in:
				if !ok {
					mgr.logger.Debug("task input channel closed", "name", name)
					return
				}
				if !mgr.callWithRecover(name, func() bool { return fn(v) }) {
					return
				}
			}
		}
	})
}

// Stop signals all tasks to terminate.
func (mgr *Manager) Stop() {
	mgr.cancel()
}

// Wait blocks until every task has terminated.
func (mgr *Manager) Wait() {
	mgr.wg.Wait()
}

// WaitTimeout waits at most d for every task to terminate and reports
// whether they all did.
func (mgr *Manager) WaitTimeout(d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		mgr.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// TaskCount returns the number of currently running goroutines.
func (mgr *Manager) TaskCount() int {
	return int(mgr.count.Load())
}

func (mgr *Manager) spawn(name string, body func()) error {
	select {
	case <-mgr.ctx.Done():
		return fmt.Errorf("start %s: %w", name, ErrStopped)
	default:
	}

	mgr.logger.Debug("start task", "name", name)

	mgr.wg.Add(1)
	mgr.count.Add(1)

	go func() {
		defer func() {
			mgr.count.Add(-1)
			mgr.wg.Done()
			mgr.logger.Debug("task terminated", "name", name, "task_count", mgr.TaskCount())
		}()

		body()
	}()

	return nil
}

// callWithRecover calls fn with panic protection; a panic ends the task.
func (mgr *Manager) callWithRecover(name string, fn Func) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			mgr.logger.Error("panic in task", "name", name, "panic", r)
			ok = false
		}
	}()

	return fn()
}
