package client

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/sweeney/asterisk-popup/internal/ami"
	"github.com/sweeney/asterisk-popup/internal/metrics"
	"github.com/sweeney/asterisk-popup/internal/tracker"
)

type lockedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *lockedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *lockedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func ringEvent(channel string) ami.Event {
	return ami.NewEvent(
		"Event", "Newstate",
		"Channel", channel,
		"ChannelStateDesc", "Ringing",
		"CallerIDNum", "5551234567",
		"CallerIDName", "Test Caller",
		"ConnectedLineNum", "100",
	)
}

func TestDispatchRoutesByEventType(t *testing.T) {
	rec := &syncRecorder{}
	tr := tracker.New(nil, rec)
	d := NewDispatcher(NewQueue(), tr, 0, zaptest.NewLogger(t), nil)

	d.Dispatch(ami.NewEvent("Event", "FullyBooted"))
	d.Dispatch(ami.NewEvent("Event", "Newchannel", "Channel", "PJSIP/trunk-1", "Context", "from-trunk", "ChannelStateDesc", "Ring"))
	d.Dispatch(ringEvent("SIP/test-1"))
	d.Dispatch(ami.NewEvent("Event", "NewCallerid", "Channel", "SIP/test-1"))
	d.Dispatch(ami.NewEvent("Event", "Newstate", "Channel", "SIP/test-1", "ChannelStateDesc", "Up"))
	d.Dispatch(ami.NewEvent("Event", "Hangup", "Channel", "SIP/test-1", "Cause", "16"))

	require.Len(t, rec.Incoming(), 1)
	assert.Equal(t, []statusChange{
		{"SIP/test-1", tracker.StatusAnswered},
		{"SIP/test-1", tracker.StatusHangup},
	}, rec.Changes())
}

func TestDispatchIgnoresUnknownEvents(t *testing.T) {
	rec := &syncRecorder{}
	tr := tracker.New(nil, rec)
	m := metrics.New()
	d := NewDispatcher(NewQueue(), tr, 0, zaptest.NewLogger(t), m)

	d.Dispatch(ami.NewEvent("Event", "PeerStatus", "Peer", "SIP/100"))
	d.Dispatch(ami.NewEvent("Event", "newstate", "Channel", "SIP/x", "ChannelStateDesc", "Ringing"))

	assert.Empty(t, rec.Incoming())
	n, err := testutil.GatherAndCount(m.Registry(), "asterisk_popup_ami_events_total")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestDispatchRecoversFromPanic(t *testing.T) {
	var calls int
	tr := tracker.New(nil, tracker.NotifierFuncs{
		IncomingCall: func(tracker.Call) {
			calls++
			if calls == 1 {
				panic("notifier failed")
			}
		},
	})
	m := metrics.New()
	d := NewDispatcher(NewQueue(), tr, 0, zaptest.NewLogger(t), m)

	assert.NotPanics(t, func() {
		d.Dispatch(ringEvent("SIP/a"))
		d.Dispatch(ringEvent("SIP/b"))
	})
	assert.Equal(t, 2, calls)
	expected := `
# HELP asterisk_popup_dispatch_panics_total Events whose handling panicked and was skipped
# TYPE asterisk_popup_dispatch_panics_total counter
asterisk_popup_dispatch_panics_total 1
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected),
		"asterisk_popup_dispatch_panics_total"))
}

func TestRunSweepsEndedCalls(t *testing.T) {
	clock := &lockedClock{now: time.Date(2026, 2, 12, 9, 30, 0, 0, time.UTC)}
	tr := tracker.New(nil, nil, tracker.WithClock(clock.Now))
	q := NewQueue()
	m := metrics.New()
	d := NewDispatcher(q, tr, 5*time.Millisecond, zaptest.NewLogger(t), m)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	q.Push(ringEvent("SIP/test-1"))
	q.Push(ami.NewEvent("Event", "Hangup", "Channel", "SIP/test-1"))
	require.Eventually(t, func() bool {
		call, ok := tr.Lookup("SIP/test-1")
		return ok && call.Status == tracker.StatusHangup
	}, 2*time.Second, time.Millisecond)

	// Still present inside the grace period.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, tr.ActiveCalls())

	clock.Advance(tracker.DefaultGracePeriod)
	require.Eventually(t, func() bool { return tr.ActiveCalls() == 0 }, 2*time.Second, time.Millisecond)
}

func TestRunStopsWithinPoll(t *testing.T) {
	d := NewDispatcher(NewQueue(), tracker.New(nil, nil), 10*time.Millisecond, zaptest.NewLogger(t), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Run(ctx)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop")
	}
}
