package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

// FailureReason classifies why a connect attempt failed.
type FailureReason string

const (
	ReasonConnectionRefused FailureReason = "connection_refused"
	ReasonTimeout           FailureReason = "timeout"
	ReasonNameResolution    FailureReason = "name_resolution"
	ReasonSocket            FailureReason = "socket_error"
	ReasonAuthFailed        FailureReason = "auth_failed"
	ReasonNotConfigured     FailureReason = "not_configured"
)

var (
	// ErrAuthFailed is returned when the login response lacks the success marker.
	ErrAuthFailed = errors.New("ami: login failed")
	// ErrNotConfigured is returned while the host is still a placeholder.
	ErrNotConfigured = errors.New("ami: no host configured")
	// ErrPeerClosed is returned by the event reader when the manager closes
	// the connection.
	ErrPeerClosed = errors.New("ami: connection closed by peer")
)

// ConnectError describes a failed connect attempt.
type ConnectError struct {
	Reason FailureReason
	Addr   string
	Err    error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %s: %v", e.Addr, e.Reason, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// Hint is the operator-facing advice logged with the failure.
func (e *ConnectError) Hint() string {
	switch e.Reason {
	case ReasonConnectionRefused:
		return "check that the Asterisk server is running and AMI is enabled"
	case ReasonTimeout:
		return "check your network connection and firewall settings"
	case ReasonNameResolution:
		return "check the hostname in the AMI settings"
	case ReasonAuthFailed:
		return "check the AMI username and secret"
	case ReasonNotConfigured:
		return "set ami.host in the configuration file"
	default:
		return "check the AMI host and port"
	}
}

func classify(err error) FailureReason {
	var dnsErr *net.DNSError
	var netErr net.Error

	switch {
	case errors.Is(err, ErrAuthFailed):
		return ReasonAuthFailed
	case errors.Is(err, ErrNotConfigured):
		return ReasonNotConfigured
	case errors.Is(err, syscall.ECONNREFUSED):
		return ReasonConnectionRefused
	case errors.As(err, &dnsErr):
		if dnsErr.IsTimeout {
			return ReasonTimeout
		}
		return ReasonNameResolution
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		return ReasonTimeout
	default:
		return ReasonSocket
	}
}
