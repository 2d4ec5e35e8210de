// Package client maintains the authenticated AMI session: handshake,
// reconnect supervision, event reading and dispatch to the call tracker.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/asterisk-popup/internal/ami"
	"github.com/sweeney/asterisk-popup/internal/config"
	"github.com/sweeney/asterisk-popup/internal/metrics"
	"github.com/sweeney/asterisk-popup/internal/tracker"
)

const (
	DefaultReconnectDelay    = 5 * time.Second
	DefaultUnconfiguredDelay = 30 * time.Second
	DefaultDialTimeout       = 10 * time.Second
	DefaultMaxAttempts       = 10

	// Attempts against a placeholder host before the long wait kicks in.
	unconfiguredAttempts = 3
)

// SettingsSource supplies the connection settings. It is read on every
// connect attempt so configuration changes take effect on the next one.
type SettingsSource interface {
	AMISettings() config.AMIConfig
}

// Dialer opens the TCP connection. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, network, address string) (net.Conn, error)

func (f DialerFunc) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return f(ctx, network, address)
}

// Client owns the AMI connection. Run supervises it; Connect and Disconnect
// drive single transitions.
type Client struct {
	settings SettingsSource
	tracker  *tracker.Tracker
	queue    *Queue
	dialer   Dialer
	logger   *zap.Logger
	metrics  *metrics.Metrics

	reconnectDelay    time.Duration
	unconfiguredDelay time.Duration
	dialTimeout       time.Duration
	readPoll          time.Duration
	dispatchPoll      time.Duration
	maxAttempts       int

	mu              sync.Mutex
	conn            net.Conn
	pending         []byte // bytes read past the login response
	state           State
	attempts        int
	armed           bool
	exhaustedLogged bool

	reset    chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
}

// Option configures a Client.
type Option func(*Client)

func WithDialer(d Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func WithReconnectDelay(d time.Duration) Option {
	return func(c *Client) { c.reconnectDelay = d }
}

// WithUnconfiguredDelay sets the wait used once a placeholder host has
// failed repeatedly.
func WithUnconfiguredDelay(d time.Duration) Option {
	return func(c *Client) { c.unconfiguredDelay = d }
}

func WithDialTimeout(d time.Duration) Option {
	return func(c *Client) { c.dialTimeout = d }
}

func WithReadPoll(d time.Duration) Option {
	return func(c *Client) { c.readPoll = d }
}

func WithDispatchPoll(d time.Duration) Option {
	return func(c *Client) { c.dispatchPoll = d }
}

func WithMaxAttempts(n int) Option {
	return func(c *Client) { c.maxAttempts = n }
}

// New creates a Client. It does not connect; call Run or Connect.
func New(settings SettingsSource, tr *tracker.Tracker, opts ...Option) *Client {
	c := &Client{
		settings:          settings,
		tracker:           tr,
		queue:             NewQueue(),
		dialer:            &net.Dialer{},
		logger:            zap.NewNop(),
		reconnectDelay:    DefaultReconnectDelay,
		unconfiguredDelay: DefaultUnconfiguredDelay,
		dialTimeout:       DefaultDialTimeout,
		readPoll:          DefaultReadPoll,
		dispatchPoll:      DefaultDispatchPoll,
		maxAttempts:       DefaultMaxAttempts,
		armed:             settings.AMISettings().AutoConnect,
		reset:             make(chan struct{}, 1),
		stop:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run supervises the connection and dispatches events until ctx is done or
// Close is called. It always returns nil; failures are logged and retried.
func (c *Client) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	dispatcher := NewDispatcher(c.queue, c.tracker, c.dispatchPoll, c.logger, c.metrics)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c.supervise(gctx)
		return nil
	})
	g.Go(func() error {
		dispatcher.Run(gctx)
		return nil
	})
	err := g.Wait()

	c.Disconnect()
	return err
}

func (c *Client) supervise(ctx context.Context) {
	for {
		if c.shouldAttempt() {
			if err := c.Connect(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				c.recordFailure()
			} else {
				c.readEvents(ctx)
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-c.reset:
		case <-time.After(c.reconnectDelay):
		}
	}
}

func (c *Client) shouldAttempt() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.armed || c.state == StateAuthenticated {
		return false
	}
	if c.attempts >= c.maxAttempts {
		if !c.exhaustedLogged {
			c.exhaustedLogged = true
			c.state = StateDisconnected
			c.logger.Warn("giving up on AMI until the configuration changes",
				zap.Int("attempts", c.attempts))
		}
		return false
	}
	return true
}

func (c *Client) recordFailure() {
	c.mu.Lock()
	c.attempts++
	n := c.attempts
	c.mu.Unlock()

	c.metrics.SetReconnectAttempts(n)
	c.logger.Info("reconnect scheduled",
		zap.Int("attempt", n),
		zap.Int("max_attempts", c.maxAttempts),
		zap.Duration("delay", c.reconnectDelay))
}

// Connect performs one handshake: dial, read the greeting, log in and check
// the response. A nil error means the session is authenticated.
func (c *Client) Connect(ctx context.Context) error {
	settings := c.settings.AMISettings()
	addr := settings.Addr()

	c.mu.Lock()
	if c.state == StateAuthenticated {
		c.mu.Unlock()
		return nil
	}
	attempts := c.attempts
	c.state = StateConnecting
	c.mu.Unlock()

	if isPlaceholderHost(settings.Host) {
		if attempts == 0 {
			c.logger.Warn("no AMI host configured, set ami.host in the configuration file",
				zap.String("host", settings.Host))
		}
		if attempts >= unconfiguredAttempts {
			c.logger.Warn("waiting for configuration change before retrying placeholder host",
				zap.Duration("wait", c.unconfiguredDelay))
			sleep(ctx, c.unconfiguredDelay)
			return c.fail(ctx, &ConnectError{Reason: ReasonNotConfigured, Addr: addr, Err: ErrNotConfigured})
		}
	}

	conn, rest, err := c.handshake(ctx, settings)
	if err != nil {
		return c.fail(ctx, &ConnectError{Reason: classify(err), Addr: addr, Err: err})
	}

	c.mu.Lock()
	c.conn = conn
	c.pending = rest
	c.state = StateAuthenticated
	c.attempts = 0
	c.exhaustedLogged = false
	c.mu.Unlock()

	c.metrics.ConnectSucceeded()
	c.metrics.SetConnected(true)
	c.metrics.SetReconnectAttempts(0)
	c.logger.Info("connected to AMI", zap.String("addr", addr))
	return nil
}

func (c *Client) handshake(ctx context.Context, s config.AMIConfig) (net.Conn, []byte, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	defer cancel()

	c.logger.Info("connecting to AMI", zap.String("addr", s.Addr()))
	conn, err := c.dialer.DialContext(dialCtx, "tcp", s.Addr())
	if err != nil {
		return nil, nil, fmt.Errorf("dial: %w", err)
	}

	// Closing the socket unblocks the handshake reads on cancellation.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	fail := func(err error) (net.Conn, []byte, error) {
		conn.Close()
		return nil, nil, err
	}

	if err := conn.SetDeadline(time.Now().Add(c.dialTimeout)); err != nil {
		return fail(fmt.Errorf("setting deadline: %w", err))
	}

	greeting, rest, err := ami.ReadLine(conn, nil)
	if err != nil {
		return fail(fmt.Errorf("reading greeting: %w", err))
	}
	c.logger.Debug("AMI greeting", zap.String("banner", greeting))

	if _, err := conn.Write(ami.Login(s.Username, s.Secret).Encode()); err != nil {
		return fail(fmt.Errorf("sending login: %w", err))
	}

	resp, rest, err := ami.ReadResponse(conn, rest)
	if err != nil {
		return fail(fmt.Errorf("reading login response: %w", err))
	}
	if !ami.IsSuccess(resp) {
		return fail(fmt.Errorf("%w: %s", ErrAuthFailed, ami.ParseResponse(resp).Get("Message")))
	}

	if err := conn.SetDeadline(time.Time{}); err != nil {
		return fail(fmt.Errorf("clearing deadline: %w", err))
	}
	if !stop() {
		return nil, nil, ctx.Err()
	}
	return conn, rest, nil
}

func (c *Client) fail(ctx context.Context, err *ConnectError) error {
	c.mu.Lock()
	c.state = StateFailed
	c.mu.Unlock()

	if ctx.Err() != nil {
		return ctx.Err()
	}

	c.metrics.ConnectFailed(string(err.Reason))
	if err.Reason == ReasonNotConfigured {
		c.logger.Warn("AMI not configured", zap.String("addr", err.Addr))
		return err
	}
	c.logger.Error("failed to connect to AMI, "+err.Hint(),
		zap.String("reason", string(err.Reason)),
		zap.String("addr", err.Addr),
		zap.Error(err.Err))
	return err
}

// readEvents runs the event reader on the current connection until it
// ends, then marks the client disconnected.
func (c *Client) readEvents(ctx context.Context) {
	c.mu.Lock()
	conn, pending := c.conn, c.pending
	c.pending = nil
	c.mu.Unlock()
	if conn == nil {
		return
	}

	err := NewEventReader(conn, pending, c.queue, c.readPoll, c.logger).Run(ctx)
	switch {
	case err == nil, errors.Is(err, net.ErrClosed):
	case errors.Is(err, ErrPeerClosed):
		c.logger.Warn("AMI connection closed by server")
	default:
		c.logger.Warn("AMI connection lost", zap.Error(err))
	}

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		c.state = StateDisconnected
		conn.Close()
	}
	c.mu.Unlock()
	c.metrics.SetConnected(false)
}

// Disconnect logs off and closes the connection. It is safe to call at any
// time, including when never connected.
func (c *Client) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	authenticated := c.state == StateAuthenticated
	c.conn = nil
	c.pending = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	c.metrics.SetConnected(false)
	if conn == nil {
		return
	}

	if authenticated {
		_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
		if _, err := conn.Write(ami.Logoff().Encode()); err != nil {
			c.logger.Debug("sending logoff", zap.Error(err))
		}
	}
	if err := conn.Close(); err != nil {
		c.logger.Debug("closing AMI connection", zap.Error(err))
	}
	c.logger.Info("disconnected from AMI")
}

// Close stops Run and disconnects.
func (c *Client) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
	c.Disconnect()
}

// Reset zeroes the backoff counter, arms auto-connect and wakes the
// supervisor. Call it after the configuration changes.
func (c *Client) Reset() {
	c.mu.Lock()
	c.attempts = 0
	c.armed = true
	c.exhaustedLogged = false
	c.mu.Unlock()

	c.metrics.SetReconnectAttempts(0)
	select {
	case c.reset <- struct{}{}:
	default:
	}
}

func (c *Client) IsAuthenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateAuthenticated
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) ReconnectAttempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Status reports the connection state for status displays.
func (c *Client) Status() Status {
	addr := c.settings.AMISettings().Addr()

	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Connected:         c.state == StateAuthenticated,
		ReconnectAttempts: c.attempts,
		State:             c.state.String(),
		Addr:              addr,
		Exhausted:         c.attempts >= c.maxAttempts,
	}
}

// Extensions sends a SIPpeers request. The peer list in the reply is not
// collected, so the result is always empty.
func (c *Client) Extensions() []string {
	c.mu.Lock()
	conn := c.conn
	ok := c.state == StateAuthenticated
	c.mu.Unlock()
	if !ok || conn == nil {
		return []string{}
	}

	if _, err := conn.Write(ami.SIPPeers().Encode()); err != nil {
		c.logger.Warn("requesting SIP peers", zap.Error(err))
	}
	// TODO: collect PeerEntry events until PeerlistComplete and return their ObjectName values.
	return []string{}
}

func isPlaceholderHost(host string) bool {
	return host == "" || host == "localhost" || host == "127.0.0.1"
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
