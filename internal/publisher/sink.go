package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/asterisk-popup/internal/tracker"
)

const defaultPublishTimeout = 2 * time.Second

// CallLookup returns the tracked call for a channel. *tracker.Tracker
// satisfies it.
type CallLookup interface {
	Lookup(channel string) (tracker.Call, bool)
}

// CallSink publishes tracker callbacks as JSON messages on
// <prefix>/call/<channel>/<status>.
type CallSink struct {
	pub     Publisher
	prefix  string
	timeout time.Duration
	clock   func() time.Time
	logger  *zap.Logger
	calls   CallLookup
}

// SinkOption configures a CallSink.
type SinkOption func(*CallSink)

func WithSinkLogger(l *zap.Logger) SinkOption {
	return func(s *CallSink) { s.logger = l }
}

func WithSinkClock(c func() time.Time) SinkOption {
	return func(s *CallSink) { s.clock = c }
}

func WithPublishTimeout(d time.Duration) SinkOption {
	return func(s *CallSink) { s.timeout = d }
}

func NewCallSink(pub Publisher, prefix string, opts ...SinkOption) *CallSink {
	s := &CallSink{
		pub:     pub,
		prefix:  prefix,
		timeout: defaultPublishTimeout,
		clock:   time.Now,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Bind sets where status changes look up the rest of the call. Without it
// answered and hangup messages carry only the channel.
func (s *CallSink) Bind(calls CallLookup) {
	s.calls = calls
}

// callPayload is the JSON structure published to MQTT.
type callPayload struct {
	Event            string   `json:"event"`
	Description      string   `json:"description"`
	Channel          string   `json:"channel"`
	CallerIDNum      string   `json:"caller_id_num,omitempty"`
	CallerIDName     string   `json:"caller_id_name,omitempty"`
	Extension        string   `json:"extension,omitempty"`
	Timestamp        string   `json:"timestamp"`
	RingDuration     *float64 `json:"ring_duration_seconds,omitempty"`
	TotalDuration    *float64 `json:"total_duration_seconds,omitempty"`
	Cause            string   `json:"cause,omitempty"`
	CauseDescription string   `json:"cause_description,omitempty"`
	CauseCode        *int     `json:"cause_code,omitempty"`
}

var statusDescriptions = map[tracker.Status]string{
	tracker.StatusRinging:  "A call is ringing and waiting to be answered",
	tracker.StatusAnswered: "The call has been answered and parties are now connected",
	tracker.StatusHangup:   "The call has ended",
}

// Topic returns the topic for a channel's status. Slashes in the channel
// become underscores so the channel stays a single topic level.
func Topic(prefix, channel string, status tracker.Status) string {
	return fmt.Sprintf("%s/call/%s/%s", prefix, strings.ReplaceAll(channel, "/", "_"), status)
}

// OnIncomingCall implements tracker.Notifier.
func (s *CallSink) OnIncomingCall(call tracker.Call) {
	payload := s.payload(call.Channel, tracker.StatusRinging)
	fillCall(&payload, call)
	s.publish(call.Channel, tracker.StatusRinging, payload)
}

// OnCallStatusChange implements tracker.Notifier.
func (s *CallSink) OnCallStatusChange(channel string, status tracker.Status) {
	payload := s.payload(channel, status)

	if s.calls != nil {
		if call, ok := s.calls.Lookup(channel); ok {
			fillCall(&payload, call)
			elapsed := s.clock().Sub(call.Timestamp).Seconds()
			switch status {
			case tracker.StatusAnswered:
				payload.RingDuration = &elapsed
			case tracker.StatusHangup:
				payload.TotalDuration = &elapsed
				fillCause(&payload, call)
			}
		}
	}

	s.publish(channel, status, payload)
}

func (s *CallSink) payload(channel string, status tracker.Status) callPayload {
	return callPayload{
		Event:       string(status),
		Description: statusDescriptions[status],
		Channel:     channel,
		Timestamp:   s.clock().UTC().Format(time.RFC3339),
	}
}

func fillCall(p *callPayload, call tracker.Call) {
	p.CallerIDNum = call.CallerIDNum
	p.CallerIDName = call.CallerIDName
	p.Extension = call.Extension
}

func fillCause(p *callPayload, call tracker.Call) {
	p.CauseDescription = call.HangupCauseText
	code, err := strconv.Atoi(call.HangupCause)
	if err != nil {
		return
	}
	p.CauseCode = &code
	if info, ok := tracker.HangupCause[code]; ok {
		p.Cause = info.Name
	}
}

func (s *CallSink) publish(channel string, status tracker.Status, payload callPayload) {
	topic := Topic(s.prefix, channel, status)

	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("marshaling payload", zap.String("topic", topic), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	s.logger.Debug("publishing", zap.String("topic", topic))
	if err := s.pub.Publish(ctx, topic, data); err != nil {
		s.logger.Warn("publish error", zap.String("topic", topic), zap.Error(err))
	}
}
