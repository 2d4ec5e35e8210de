package publisher

import (
	"context"
	"strings"
	"sync"

	"github.com/sweeney/asterisk-popup/internal/tracker"
)

// Message records a single published message.
type Message struct {
	Topic   string
	Payload []byte
}

// Status returns the call status from a <prefix>/call/<channel>/<status>
// topic, or "" for any other topic.
func (m Message) Status() tracker.Status {
	parts := strings.Split(m.Topic, "/")
	if len(parts) < 4 || parts[len(parts)-3] != "call" {
		return ""
	}
	return tracker.Status(parts[len(parts)-1])
}

// MockPublisher records publishes in memory. Publish fails with the
// context's error once ctx is done, or with the error set by SetError.
type MockPublisher struct {
	mu       sync.Mutex
	messages []Message
	closed   bool
	err      error
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, Message{Topic: topic, Payload: append([]byte(nil), payload...)})
	return nil
}

func (m *MockPublisher) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Messages returns a copy of everything published so far.
func (m *MockPublisher) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.messages...)
}

// Topics returns the topic of every published message in order.
func (m *MockPublisher) Topics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	topics := make([]string, len(m.messages))
	for i, msg := range m.messages {
		topics[i] = msg.Topic
	}
	return topics
}

// CallMessages returns the messages published for one channel under
// prefix, in order.
func (m *MockPublisher) CallMessages(prefix, channel string) []Message {
	want := Topic(prefix, channel, "")
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Message
	for _, msg := range m.messages {
		if strings.HasPrefix(msg.Topic, want) {
			out = append(out, msg)
		}
	}
	return out
}

// Statuses lists the status of each message published for channel.
func (m *MockPublisher) Statuses(prefix, channel string) []tracker.Status {
	var out []tracker.Status
	for _, msg := range m.CallMessages(prefix, channel) {
		out = append(out, msg.Status())
	}
	return out
}

func (m *MockPublisher) Reset() {
	m.mu.Lock()
	m.messages = nil
	m.mu.Unlock()
}

func (m *MockPublisher) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// SetError makes later Publish calls fail with err. nil clears it.
func (m *MockPublisher) SetError(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}
