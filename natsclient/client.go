package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/tuokri/tklserver/errors"
)

// ConnectionStatus is the mirror's view of its NATS link.
type ConnectionStatus int

const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
)

var statusNames = [...]string{"disconnected", "connecting", "connected", "reconnecting"}

func (s ConnectionStatus) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "unknown"
	}
	return statusNames[s]
}

// ErrNotConnected is returned by Publish while there is no usable link.
var ErrNotConnected = stderrors.New("not connected to NATS")

// Client publishes to a single NATS server. nats.go handles reconnects;
// Client tracks the resulting status and reports flips to onHealthChange.
type Client struct {
	url    string
	logger *slog.Logger
	status atomic.Int32

	mu   sync.RWMutex
	conn *nats.Conn

	closeOnce sync.Once
	closed    atomic.Bool

	maxReconnects int
	reconnectWait time.Duration
	pingInterval  time.Duration
	timeout       time.Duration
	drainTimeout  time.Duration

	username   string
	password   string
	token      string
	clientName string

	onHealthChange func(bool)
}

// NewClient returns an unconnected client for url.
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		url:           url,
		logger:        slog.Default().With("component", "natsclient"),
		maxReconnects: -1,
		reconnectWait: 2 * time.Second,
		pingInterval:  30 * time.Second,
		timeout:       5 * time.Second,
		drainTimeout:  5 * time.Second,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "natsclient", "NewClient", "apply option")
		}
	}
	return c, nil
}

// Status is safe to call from any goroutine.
func (c *Client) Status() ConnectionStatus {
	return ConnectionStatus(c.status.Load())
}

// IsHealthy reports whether Publish can currently succeed.
func (c *Client) IsHealthy() bool {
	return c.Status() == StatusConnected
}

// Conn exposes the nats.go connection; nil until Connect succeeds and after Close.
func (c *Client) Conn() *nats.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

func (c *Client) setStatus(s ConnectionStatus) {
	c.status.Store(int32(s))
}

func (c *Client) notify(healthy bool) {
	if c.onHealthChange != nil {
		go c.onHealthChange(healthy)
	}
}

func (c *Client) natsOptions() []nats.Option {
	opts := []nats.Option{
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.PingInterval(c.pingInterval),
		nats.Timeout(c.timeout),
		nats.DrainTimeout(c.drainTimeout),
		nats.DisconnectErrHandler(c.onDisconnect),
		nats.ReconnectHandler(c.onReconnect),
		nats.ClosedHandler(c.onClosed),
		nats.ErrorHandler(c.onAsyncError),
	}
	if c.username != "" {
		opts = append(opts, nats.UserInfo(c.username, c.password))
	}
	if c.token != "" {
		opts = append(opts, nats.Token(c.token))
	}
	if c.clientName != "" {
		opts = append(opts, nats.Name(c.clientName))
	}
	return opts
}

// Connect dials the server once. Failures are transient; callers retry.
// A closed client cannot be reconnected.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return errors.WrapFatal(errors.ErrShuttingDown, "natsclient", "Connect", "closed client")
	}

	c.setStatus(StatusConnecting)
	c.logger.Info("Connecting to NATS", "url", c.url)

	type result struct {
		conn *nats.Conn
		err  error
	}
	done := make(chan result, 1)
	opts := c.natsOptions()
	go func() {
		conn, err := nats.Connect(c.url, opts...)
		done <- result{conn, err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		// a late connection is closed rather than leaked
		go func() {
			if r := <-done; r.conn != nil {
				r.conn.Close()
			}
		}()
		res.err = ctx.Err()
	}
	if res.err != nil {
		c.setStatus(StatusDisconnected)
		return errors.WrapTransient(res.err, "natsclient", "Connect", "dial "+c.url)
	}

	c.mu.Lock()
	c.conn = res.conn
	c.mu.Unlock()

	c.setStatus(StatusConnected)
	c.logger.Info("Connected to NATS", "url", res.conn.ConnectedUrl())
	if c.onHealthChange != nil {
		c.onHealthChange(true)
	}
	return nil
}

// Publish sends data without waiting for an ack.
func (c *Client) Publish(_ context.Context, subject string, data []byte) error {
	conn := c.Conn()
	if conn == nil || !conn.IsConnected() {
		return ErrNotConnected
	}
	return conn.Publish(subject, data)
}

// Close drains buffered publishes, bounded by the drain timeout or ctx,
// whichever ends first. Later calls return nil.
func (c *Client) Close(ctx context.Context) error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		err = c.drain(ctx)
		c.setStatus(StatusDisconnected)
	})
	return err
}

func (c *Client) drain(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	c.username, c.password, c.token = "", "", ""
	if conn == nil {
		return nil
	}
	defer conn.Close()

	if err := conn.Drain(); err != nil {
		if stderrors.Is(err, nats.ErrConnectionClosed) {
			return nil
		}
		return errors.Wrap(err, "natsclient", "Close", "drain")
	}

	// Drain returns at once; the connection closes itself when it is done.
	ctx, cancel := context.WithTimeout(ctx, c.drainTimeout)
	defer cancel()
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for !conn.IsClosed() {
		select {
		case <-ctx.Done():
			return errors.WrapTransient(fmt.Errorf("drain: %w", ctx.Err()), "natsclient", "Close", "drain")
		case <-ticker.C:
		}
	}
	return nil
}

func (c *Client) onDisconnect(_ *nats.Conn, err error) {
	if c.closed.Load() {
		return
	}
	c.setStatus(StatusReconnecting)
	c.logger.Warn("Lost NATS connection", "error", err)
	c.notify(false)
}

func (c *Client) onReconnect(conn *nats.Conn) {
	c.setStatus(StatusConnected)
	c.logger.Info("NATS connection restored", "url", conn.ConnectedUrl())
	c.notify(true)
}

func (c *Client) onClosed(_ *nats.Conn) {
	c.setStatus(StatusDisconnected)
	c.notify(false)
}

func (c *Client) onAsyncError(_ *nats.Conn, _ *nats.Subscription, err error) {
	c.logger.Error("NATS async error", "error", err)
}
