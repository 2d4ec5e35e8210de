package ami

import "strings"

// Action is an outbound AMI command. Headers are written in the order given.
type Action struct {
	headers []header
}

// NewAction creates an action named name with additional key-value pairs.
func NewAction(name string, kvs ...string) Action {
	a := Action{headers: []header{{Key: "Action", Value: name}}}
	for i := 0; i+1 < len(kvs); i += 2 {
		a.headers = append(a.headers, header{Key: kvs[i], Value: kvs[i+1]})
	}
	return a
}

// Name returns the action name.
func (a Action) Name() string {
	if len(a.headers) == 0 {
		return ""
	}
	return a.headers[0].Value
}

// Encode renders the action as CRLF-terminated header lines followed by a
// blank line.
func (a Action) Encode() []byte {
	var b strings.Builder
	for _, h := range a.headers {
		b.WriteString(h.Key)
		b.WriteString(": ")
		b.WriteString(h.Value)
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")
	return []byte(b.String())
}

// Login authenticates the session.
func Login(username, secret string) Action {
	return NewAction("Login", "Username", username, "Secret", secret)
}

// Logoff ends the session.
func Logoff() Action {
	return NewAction("Logoff")
}

// SIPPeers requests the list of SIP peers.
func SIPPeers() Action {
	return NewAction("SIPpeers")
}
