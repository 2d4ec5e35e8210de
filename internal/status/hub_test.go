package status

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"github.com/sweeney/asterisk-popup/internal/tracker"
)

// detached registers a subscriber without a websocket write pump.
func detached(h *Hub, buffer int) *subscriber {
	s := &subscriber{send: make(chan []byte, buffer)}
	h.mu.Lock()
	h.subs[s] = true
	h.mu.Unlock()
	return s
}

func TestBroadcastConcurrentWithRemove(t *testing.T) {
	h := NewHub(zaptest.NewLogger(t))

	for i := 0; i < 2000; i++ {
		s := detached(h, 1)
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			h.remove(s)
		}()
		go func() {
			defer wg.Done()
			assert.NotPanics(t, func() {
				h.OnCallStatusChange("SIP/test-1", tracker.StatusAnswered)
			})
		}()
		wg.Wait()
	}
	assert.Equal(t, 0, h.Subscribers())
}

func TestBroadcastDropsSlowSubscriber(t *testing.T) {
	h := NewHub(zaptest.NewLogger(t))
	slow := detached(h, 1)
	fast := detached(h, 4)

	h.OnCallStatusChange("SIP/test-1", tracker.StatusRinging)
	h.OnCallStatusChange("SIP/test-1", tracker.StatusAnswered)

	assert.Equal(t, 1, h.Subscribers())
	assert.Len(t, fast.send, 2)

	_, open := <-slow.send
	assert.True(t, open, "queued message is still delivered")
	_, open = <-slow.send
	assert.False(t, open, "slow subscriber channel is closed")
}
