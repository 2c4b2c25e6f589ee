package session

import (
	"context"
	"sync"
	"sync/atomic"
)

// State is the lifecycle stage of a Session.
//
//	Idle ──Connect──▶ Connecting ──dial ok──▶ Connected
//	  ▲                   │                       │
//	  └── Disconnecting ◀─┴── Disconnect / I/O error
//
// There is no reconnecting state; a failed link always returns to Idle.
type State uint32

const (
	// Idle means no link exists. Connect is accepted only here.
	Idle State = iota
	// Connecting means a dial is in flight.
	Connecting
	// Connected means the link is up and commands can be sent.
	Connected
	// Disconnecting means the link is being torn down.
	Disconnecting
)

func (st State) String() string {
	switch st {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// stateMachine holds the session state. Reads are lock-free; transitions
// take mu so waiters on cond observe every change.
type stateMachine struct {
	mu    sync.Mutex
	cond  *sync.Cond
	state atomic.Uint32
	// idleEpoch counts entries into Idle, guarded by mu.
	idleEpoch uint64
}

func newStateMachine() *stateMachine {
	sm := &stateMachine{}
	sm.cond = sync.NewCond(&sm.mu)

	return sm
}

func (sm *stateMachine) get() State {
	return State(sm.state.Load())
}

// transition moves from -> to and reports whether the current state was from.
func (sm *stateMachine) transition(from, to State) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !sm.state.CompareAndSwap(uint32(from), uint32(to)) {
		return false
	}

	sm.changed(to)

	return true
}

// set moves to the given state unconditionally.
func (sm *stateMachine) set(to State) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.state.Store(uint32(to))
	sm.changed(to)
}

// changed must be called with mu held.
func (sm *stateMachine) changed(to State) {
	if to == Idle {
		sm.idleEpoch++
	}
	sm.cond.Broadcast()
}

// epoch returns the current Idle entry count.
func (sm *stateMachine) epoch() uint64 {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	return sm.idleEpoch
}

// wait blocks until the state equals want or ctx is done.
func (sm *stateMachine) wait(ctx context.Context, want State) error {
	return sm.waitFor(ctx, func() bool { return sm.get() == want })
}

// waitIdleAfter blocks until the session has entered Idle at least once
// after epoch was taken, even if it has left Idle again since.
func (sm *stateMachine) waitIdleAfter(ctx context.Context, epoch uint64) error {
	return sm.waitFor(ctx, func() bool { return sm.idleEpoch != epoch })
}

func (sm *stateMachine) waitFor(ctx context.Context, done func() bool) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if done() {
		return nil
	}

	stop := context.AfterFunc(ctx, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		sm.cond.Broadcast()
	})
	defer stop()

	for !done() {
		if err := ctx.Err(); err != nil {
			return err
		}
		sm.cond.Wait()
	}

	return nil
}
