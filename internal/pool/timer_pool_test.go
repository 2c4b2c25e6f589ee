package pool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerPool(t *testing.T) {
	t.Run("reused timer fires after reset", func(t *testing.T) {
		timer := GetTimer(time.Hour)
		PutTimer(timer)

		timer = GetTimer(10 * time.Millisecond)
		defer PutTimer(timer)

		select {
		case <-timer.C:
		case <-time.After(time.Second):
			t.Fatal("timer did not fire")
		}
	})

	t.Run("expired timer is drained on put", func(t *testing.T) {
		timer := GetTimer(time.Millisecond)
		time.Sleep(10 * time.Millisecond)
		PutTimer(timer)

		timer = GetTimer(50 * time.Millisecond)
		defer PutTimer(timer)

		select {
		case <-timer.C:
			t.Fatal("stale expiry leaked into reused timer")
		case <-time.After(10 * time.Millisecond):
		}
	})
}

func TestSendWithin(t *testing.T) {
	ctx := context.Background()

	ch := make(chan int, 1)
	require.NoError(t, SendWithin(ctx, ch, 1, 10*time.Millisecond))
	assert.Equal(t, 1, <-ch)

	ch <- 2
	err := SendWithin(ctx, ch, 3, 10*time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)

	err = SendWithin(ctx, ch, 3, 0)
	require.ErrorIs(t, err, ErrTimeout)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	err = SendWithin(canceled, ch, 4, time.Second)
	require.ErrorIs(t, err, context.Canceled)
}
