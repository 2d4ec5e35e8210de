package tracker

import (
	"cmp"
	"slices"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/asterisk-popup/internal/ami"
)

// DefaultGracePeriod is how long a hung-up call stays queryable so that
// trailing events for the channel still find it.
const DefaultGracePeriod = 5 * time.Second

// Clock provides the current time. Defaults to time.Now; override in tests.
type Clock func() time.Time

// ExtensionSource supplies the monitored extensions. An empty list means
// every extension is monitored.
type ExtensionSource interface {
	ExtensionsToMonitor() []string
}

type trackedCall struct {
	call     Call
	removeAt time.Time
}

// Tracker applies Newstate and Hangup events to the set of in-flight calls
// and reports transitions to a Notifier.
//
// Transitions are applied by a single dispatch goroutine. The mutex only
// lets status readers take copies concurrently.
type Tracker struct {
	mu       sync.RWMutex
	calls    map[string]*trackedCall // keyed by Channel
	expiries expiryQueue

	clock      Clock
	grace      time.Duration
	extensions ExtensionSource
	notifier   Notifier
	logger     *zap.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock sets the time source for the tracker.
func WithClock(c Clock) Option {
	return func(t *Tracker) { t.clock = c }
}

// WithGracePeriod overrides how long hung-up calls are kept.
func WithGracePeriod(d time.Duration) Option {
	return func(t *Tracker) { t.grace = d }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// New creates a Tracker. A nil extensions source monitors everything; a nil
// notifier discards callbacks.
func New(extensions ExtensionSource, notifier Notifier, opts ...Option) *Tracker {
	if notifier == nil {
		notifier = Notifiers{}
	}
	t := &Tracker{
		calls:      make(map[string]*trackedCall),
		clock:      time.Now,
		grace:      DefaultGracePeriod,
		extensions: extensions,
		notifier:   notifier,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// HandleNewstate applies a Newstate event. Ringing with both caller and
// connected-line numbers opens a call; Up answers a tracked one. Anything
// else is ignored.
func (t *Tracker) HandleNewstate(evt ami.Event) {
	channel := evt.Get("Channel")

	switch evt.Get("ChannelStateDesc") {
	case "Ringing":
		t.ring(evt, channel)
	case "Up":
		t.answer(channel)
	}
}

func (t *Tracker) ring(evt ami.Event, channel string) {
	callerNum := evt.Get("CallerIDNum")
	extension := evt.Get("ConnectedLineNum")
	if callerNum == "" || extension == "" {
		return
	}
	if !t.monitored(extension) {
		t.logger.Debug("ignoring ring for unmonitored extension",
			zap.String("extension", extension),
			zap.String("channel", channel))
		return
	}

	callerName, ok := evt.Lookup("CallerIDName")
	if !ok {
		callerName = "Unknown"
	}

	call := Call{
		Channel:      channel,
		CallerIDNum:  callerNum,
		CallerIDName: callerName,
		Extension:    extension,
		Timestamp:    t.clock(),
		Status:       StatusRinging,
	}

	// A second ring on the same channel replaces the first.
	t.mu.Lock()
	t.calls[channel] = &trackedCall{call: call}
	t.mu.Unlock()

	t.logger.Info("incoming call",
		zap.String("caller_id_name", callerName),
		zap.String("caller_id_num", callerNum),
		zap.String("extension", extension),
		zap.String("channel", channel))

	t.notifier.OnIncomingCall(call)
}

func (t *Tracker) answer(channel string) {
	t.mu.Lock()
	tc := t.calls[channel]
	if tc == nil {
		t.mu.Unlock()
		return
	}
	tc.call.Status = StatusAnswered
	t.mu.Unlock()

	t.logger.Info("call answered", zap.String("channel", channel))
	t.notifier.OnCallStatusChange(channel, StatusAnswered)
}

// HandleHangup closes a tracked call and schedules its removal after the
// grace period. Hangups for untracked channels are ignored, and a repeated
// hangup updates the cause without moving the removal time.
func (t *Tracker) HandleHangup(evt ami.Event) {
	channel := evt.Get("Channel")

	t.mu.Lock()
	tc := t.calls[channel]
	if tc == nil {
		t.mu.Unlock()
		return
	}

	repeated := tc.call.Status == StatusHangup
	tc.call.Status = StatusHangup
	if cause, ok := evt.Lookup("Cause"); ok {
		tc.call.HangupCause = cause
	}
	if text, ok := evt.Lookup("Cause-txt"); ok {
		tc.call.HangupCauseText = text
	} else if code, err := strconv.Atoi(tc.call.HangupCause); err == nil {
		if info, ok := HangupCause[code]; ok {
			tc.call.HangupCauseText = info.Description
		}
	}

	// A repeated hangup keeps the removal time set by the first one.
	if !repeated {
		tc.removeAt = t.clock().Add(t.grace)
		t.expiries.schedule(channel, tc.removeAt)
	}
	cause, text := tc.call.HangupCause, tc.call.HangupCauseText
	t.mu.Unlock()

	t.logger.Info("call ended",
		zap.String("channel", channel),
		zap.String("cause", cause),
		zap.String("cause_text", text))

	t.notifier.OnCallStatusChange(channel, StatusHangup)
}

// Sweep drops hung-up calls whose grace period has passed and returns how
// many were removed. The dispatcher calls it on every poll.
func (t *Tracker) Sweep() int {
	now := t.clock()

	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for _, e := range t.expiries.due(now) {
		tc := t.calls[e.channel]
		// The channel may have rung again since; only drop the call this
		// expiry was scheduled for.
		if tc == nil || !tc.removeAt.Equal(e.at) {
			continue
		}
		delete(t.calls, e.channel)
		removed++
	}
	return removed
}

// Lookup returns a copy of the call on channel.
func (t *Tracker) Lookup(channel string) (Call, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tc, ok := t.calls[channel]
	if !ok {
		return Call{}, false
	}
	return tc.call, true
}

// Snapshot returns copies of all tracked calls, oldest first.
func (t *Tracker) Snapshot() []Call {
	t.mu.RLock()
	calls := make([]Call, 0, len(t.calls))
	for _, tc := range t.calls {
		calls = append(calls, tc.call)
	}
	t.mu.RUnlock()

	slices.SortFunc(calls, func(a, b Call) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(a.Channel, b.Channel)
	})
	return calls
}

// ActiveCalls returns the number of calls currently being tracked.
func (t *Tracker) ActiveCalls() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.calls)
}

func (t *Tracker) monitored(extension string) bool {
	if t.extensions == nil {
		return true
	}
	list := t.extensions.ExtensionsToMonitor()
	return len(list) == 0 || slices.Contains(list, extension)
}
