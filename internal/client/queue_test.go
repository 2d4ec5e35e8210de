package client

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/asterisk-popup/internal/ami"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue()
	for _, ch := range []string{"a", "b", "c"} {
		q.Push(ami.NewEvent("Event", "Newstate", "Channel", ch))
	}
	assert.Equal(t, 3, q.Len())

	for _, want := range []string{"a", "b", "c"} {
		evt, ok := q.Pop(context.Background(), time.Millisecond)
		require.True(t, ok)
		assert.Equal(t, want, evt.Get("Channel"))
	}
	assert.Equal(t, 0, q.Len())
}

func TestQueuePopTimesOut(t *testing.T) {
	q := NewQueue()

	start := time.Now()
	_, ok := q.Pop(context.Background(), 20*time.Millisecond)

	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestQueuePopWakesOnPush(t *testing.T) {
	q := NewQueue()
	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Push(ami.NewEvent("Event", "Hangup"))
	}()

	evt, ok := q.Pop(context.Background(), 5*time.Second)

	require.True(t, ok)
	assert.Equal(t, "Hangup", evt.Type())
}

func TestQueuePopCancelled(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := q.Pop(ctx, 5*time.Second)
	assert.False(t, ok)
}
