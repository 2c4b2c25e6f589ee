// Package pool holds pooled timers for the short bounded waits on the send path.
package pool

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTimeout is returned by SendWithin when the channel stays full for the whole wait.
var ErrTimeout = errors.New("pool: send timed out")

var timerPool sync.Pool

// GetTimer returns a timer for duration d from the pool.
//
// Return the timer with PutTimer once done.
func GetTimer(d time.Duration) *time.Timer {
	if v := timerPool.Get(); v != nil {
		t, _ := v.(*time.Timer)
		if t.Reset(d) {
			select {
			case <-t.C:
			default:
			}
		}
		return t
	}

	return time.NewTimer(d)
}

// PutTimer returns t to the pool. t must not be used afterwards.
func PutTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	timerPool.Put(t)
}

// SendWithin delivers v on ch, waiting at most d for room.
//
// It returns ctx.Err() if ctx is done first and ErrTimeout if d elapses.
// A non-positive d makes the attempt non-blocking.
func SendWithin[T any](ctx context.Context, ch chan<- T, v T, d time.Duration) error {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ch <- v:
			return nil
		default:
			return ErrTimeout
		}
	}

	timer := GetTimer(d)
	defer PutTimer(timer)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTimeout
	case ch <- v:
		return nil
	}
}
