package client

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sweeney/asterisk-popup/internal/ami"
	"github.com/sweeney/asterisk-popup/internal/config"
	"github.com/sweeney/asterisk-popup/internal/tracker"
)

const (
	testBanner    = "Asterisk Call Manager/5.0.1\r\n"
	loginAccepted = "Response: Success\r\nMessage: Authentication accepted\r\n\r\n"
	loginRejected = "Response: Error\r\nMessage: Authentication failed\r\n\r\n"
)

type staticSettings config.AMIConfig

func (s staticSettings) AMISettings() config.AMIConfig { return config.AMIConfig(s) }

func testSettings() staticSettings {
	return staticSettings{
		Host:        "pbx.example.net",
		Port:        5038,
		Username:    "admin",
		Secret:      "s3cret",
		AutoConnect: true,
	}
}

func refused() error {
	return &net.OpError{Op: "dial", Net: "tcp", Err: &os.SyscallError{Syscall: "connect", Err: syscall.ECONNREFUSED}}
}

// fakeAMI is an in-memory manager. Each dial gets a net.Pipe whose server
// end runs session.
type fakeAMI struct {
	t       *testing.T
	dials   atomic.Int32
	session func(server net.Conn)
	dialErr func(n int) error

	mu      sync.Mutex
	servers []net.Conn
}

func newFakeAMI(t *testing.T, session func(server net.Conn)) *fakeAMI {
	f := &fakeAMI{t: t, session: session}
	t.Cleanup(func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		for _, c := range f.servers {
			c.Close()
		}
	})
	return f
}

func (f *fakeAMI) DialContext(_ context.Context, _, _ string) (net.Conn, error) {
	n := int(f.dials.Add(1))
	if f.dialErr != nil {
		if err := f.dialErr(n); err != nil {
			return nil, err
		}
	}
	client, server := net.Pipe()
	f.mu.Lock()
	f.servers = append(f.servers, server)
	f.mu.Unlock()
	go f.session(server)
	return client, nil
}

func (f *fakeAMI) Dials() int { return int(f.dials.Load()) }

// login plays the greeting and answers the login action with reply. It
// returns the login record the client sent.
func login(server net.Conn, reply string) (string, error) {
	if _, err := server.Write([]byte(testBanner)); err != nil {
		return "", err
	}
	record, _, err := ami.ReadResponse(server, nil)
	if err != nil {
		return "", err
	}
	if _, err := server.Write([]byte(reply)); err != nil {
		return "", err
	}
	return string(record), nil
}

// acceptThenIdle logs in and keeps the connection open, discarding
// anything the client writes.
func acceptThenIdle(server net.Conn) {
	if _, err := login(server, loginAccepted); err != nil {
		return
	}
	buf := make([]byte, 1024)
	for {
		if _, err := server.Read(buf); err != nil {
			return
		}
	}
}

func fixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "..", "testdata", "fixtures", name))
	require.NoError(t, err, "reading fixture %s", name)
	return data
}

// splitBanner separates the greeting line of a capture from the records
// that follow it.
func splitBanner(data []byte) (banner, rest string) {
	s := string(data)
	i := strings.IndexByte(s, '\n')
	return s[:i+1], s[i+1:]
}

type statusChange struct {
	Channel string
	Status  tracker.Status
}

// syncRecorder is a Notifier safe to read from the test goroutine.
type syncRecorder struct {
	mu       sync.Mutex
	incoming []tracker.Call
	changes  []statusChange
}

func (r *syncRecorder) OnIncomingCall(call tracker.Call) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.incoming = append(r.incoming, call)
}

func (r *syncRecorder) OnCallStatusChange(channel string, status tracker.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, statusChange{channel, status})
}

func (r *syncRecorder) Incoming() []tracker.Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]tracker.Call(nil), r.incoming...)
}

func (r *syncRecorder) Changes() []statusChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]statusChange(nil), r.changes...)
}

var errBoom = errors.New("boom")
