package ami

import (
	"strconv"
)

// Event represents a parsed AMI record as an ordered set of key-value pairs.
// Keys are case-sensitive, exactly as sent by the peer.
type Event struct {
	headers []header
}

type header struct {
	Key   string
	Value string
}

// NewEvent creates an Event from a slice of key-value pairs.
func NewEvent(kvs ...string) Event {
	e := Event{}
	for i := 0; i+1 < len(kvs); i += 2 {
		e.set(kvs[i], kvs[i+1])
	}
	return e
}

// set stores value under key, replacing an earlier value in place so
// header order is that of first appearance.
func (e *Event) set(key, value string) {
	for i := range e.headers {
		if e.headers[i].Key == key {
			e.headers[i].Value = value
			return
		}
	}
	e.headers = append(e.headers, header{Key: key, Value: value})
}

// Get returns the value for the given key, or empty string if not found.
func (e Event) Get(key string) string {
	v, _ := e.Lookup(key)
	return v
}

// Lookup returns the value for key and whether the key was present.
func (e Event) Lookup(key string) (string, bool) {
	for _, h := range e.headers {
		if h.Key == key {
			return h.Value, true
		}
	}
	return "", false
}

// Type returns the Event header value (the AMI event type).
func (e Event) Type() string {
	return e.Get("Event")
}

// GetInt returns the integer value for the given key, or 0 if not found/parseable.
func (e Event) GetInt(key string) int {
	v, _ := strconv.Atoi(e.Get(key))
	return v
}

// Len returns the number of headers.
func (e Event) Len() int {
	return len(e.headers)
}

// Keys returns the header names in arrival order.
func (e Event) Keys() []string {
	keys := make([]string, len(e.headers))
	for i, h := range e.headers {
		keys[i] = h.Key
	}
	return keys
}

// Map returns a copy of the headers as a plain map.
func (e Event) Map() map[string]string {
	m := make(map[string]string, len(e.headers))
	for _, h := range e.headers {
		m[h.Key] = h.Value
	}
	return m
}

// IsResponse returns true if this is an AMI response rather than an event.
func (e Event) IsResponse() bool {
	return e.Get("Response") != ""
}
