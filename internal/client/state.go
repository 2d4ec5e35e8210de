package client

// State is the connection state of a Client.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticated
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Status is the snapshot returned by Client.Status.
type Status struct {
	Connected         bool   `json:"connected"`
	ReconnectAttempts int    `json:"reconnect_attempts"`
	State             string `json:"state"`
	Addr              string `json:"addr"`
	// Exhausted is true once the supervisor has given up until Reset.
	Exhausted bool `json:"retries_exhausted"`
}
