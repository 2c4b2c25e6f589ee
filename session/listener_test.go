package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-tankbot/logger"
)

type recorder struct {
	calls []string
}

func (r *recorder) OnConnected(name string) { r.calls = append(r.calls, "connected:"+name) }
func (r *recorder) OnDisconnected()         { r.calls = append(r.calls, "disconnected") }
func (r *recorder) OnMessage(frame string)  { r.calls = append(r.calls, "message:"+frame) }
func (r *recorder) OnError(err error)       { r.calls = append(r.calls, "error:"+err.Error()) }

func TestEvent_Deliver(t *testing.T) {
	rec := &recorder{}

	for _, ev := range []Event{
		{Kind: EventConnected, Name: "tank"},
		{Kind: EventMessage, Frame: "ok"},
		{Kind: EventError, Err: errors.New("boom")},
		{Kind: EventDisconnected},
		{Kind: EventKind(99)},
	} {
		ev.Deliver(rec)
	}

	assert.Equal(t, []string{"connected:tank", "message:ok", "error:boom", "disconnected"}, rec.calls)
}

func TestListenerFuncs_NilFields(t *testing.T) {
	var l Listener = ListenerFuncs{}

	assert.NotPanics(t, func() {
		l.OnConnected("tank")
		l.OnDisconnected()
		l.OnMessage("ok")
		l.OnError(errors.New("boom"))
	})
}

func TestMultiListener(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	m := MultiListener{a, b}

	m.OnConnected("tank")
	m.OnMessage("ok")
	m.OnError(errors.New("boom"))
	m.OnDisconnected()

	assert.Equal(t, a.calls, b.calls)
	assert.Len(t, a.calls, 4)
}

func TestEventChannel(t *testing.T) {
	ch := NewEventChannel(4)

	ch.OnConnected("tank")
	ch.OnMessage("ok")

	assert.Equal(t, Event{Kind: EventConnected, Name: "tank"}, <-ch)
	assert.Equal(t, Event{Kind: EventMessage, Frame: "ok"}, <-ch)
}

func TestDispatcher_Order(t *testing.T) {
	const n = 500

	ch := NewEventChannel(n)
	d, err := newDispatcher(context.Background(), ch, logger.GetLogger())
	require.NoError(t, err)

	for i := 0; i < n; i++ {
		d.post(Event{Kind: EventMessage, Frame: fmt.Sprint(i)})
	}

	for i := 0; i < n; i++ {
		select {
		case ev := <-ch:
			require.Equal(t, fmt.Sprint(i), ev.Frame)
		case <-time.After(waitTimeout):
			t.Fatalf("event %d not delivered", i)
		}
	}

	assert.True(t, d.stop(time.Second))
}

func TestDispatcher_StopDrainsPending(t *testing.T) {
	ch := NewEventChannel(16)
	d, err := newDispatcher(context.Background(), ch, logger.GetLogger())
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		d.post(Event{Kind: EventMessage, Frame: fmt.Sprint(i)})
	}
	d.post(Event{Kind: EventDisconnected})

	require.True(t, d.stop(time.Second))
	assert.Len(t, ch, 11)
	assert.Zero(t, d.pending())
}
