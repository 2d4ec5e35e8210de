package status

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sweeney/asterisk-popup/internal/tracker"
)

// Message types sent to websocket subscribers.
const (
	MsgSnapshot     = "snapshot"
	MsgIncomingCall = "incoming_call"
	MsgStatusChange = "status_change"
)

// Message is one websocket frame.
type Message struct {
	Type    string         `json:"type"`
	Calls   []tracker.Call `json:"calls,omitempty"`
	Call    *tracker.Call  `json:"call,omitempty"`
	Channel string         `json:"channel,omitempty"`
	Status  tracker.Status `json:"status,omitempty"`
}

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
}

func newSubscriber(conn *websocket.Conn) *subscriber {
	s := &subscriber{
		conn: conn,
		send: make(chan []byte, 64),
	}
	go s.writePump()
	return s
}

func (s *subscriber) writePump() {
	defer s.conn.Close()
	for msg := range s.send {
		if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// Hub fans call notifications out to websocket subscribers. It implements
// tracker.Notifier and never blocks the caller; subscribers that fall
// behind are dropped.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*subscriber]bool
	logger *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subs:   make(map[*subscriber]bool),
		logger: logger,
	}
}

// add registers conn and sends it the current calls.
func (h *Hub) add(conn *websocket.Conn, calls []tracker.Call) *subscriber {
	s := newSubscriber(conn)

	// The snapshot is queued before registration so it is always first
	// and never races a close from remove.
	if data, err := json.Marshal(Message{Type: MsgSnapshot, Calls: calls}); err == nil {
		s.send <- data
	}

	h.mu.Lock()
	h.subs[s] = true
	h.mu.Unlock()
	return s
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[s] {
		delete(h.subs, s)
		close(s.send)
	}
}

// OnIncomingCall implements tracker.Notifier.
func (h *Hub) OnIncomingCall(call tracker.Call) {
	h.broadcast(Message{Type: MsgIncomingCall, Call: &call})
}

// OnCallStatusChange implements tracker.Notifier.
func (h *Hub) OnCallStatusChange(channel string, status tracker.Status) {
	h.broadcast(Message{Type: MsgStatusChange, Channel: channel, Status: status})
}

func (h *Hub) broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("broadcast marshal error", zap.Error(err))
		return
	}

	var slow []*subscriber
	h.mu.RLock()
	for s := range h.subs {
		select {
		case s.send <- data:
		default:
			slow = append(slow, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range slow {
		h.logger.Warn("websocket subscriber too slow, disconnecting")
		h.remove(s)
	}
}

// Subscribers returns the number of connected websocket clients.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		delete(h.subs, s)
		close(s.send)
	}
}
