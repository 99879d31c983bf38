package tcp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tuokri/tklserver/errors"
	"github.com/tuokri/tklserver/metric"
	"github.com/tuokri/tklserver/pkg/retry"
	"github.com/tuokri/tklserver/registry"
)

// DefaultMaxLineLength bounds one inbound frame.
const DefaultMaxLineLength = 64 << 10

// Router finds the destination of a sender ident.
type Router interface {
	Lookup(ident string) (registry.Destination, bool)
}

// Dispatcher handles one routed line. Returned errors are logged, never
// reported to the sender.
type Dispatcher interface {
	Dispatch(ctx context.Context, ident string, dest registry.Destination, body string) error
}

// Config holds configuration for the TCP input.
type Config struct {
	Address       string        // host:port to bind
	Encoding      string        // inbound text encoding, see NewDecoder
	PollInterval  time.Duration // how often an idle connection checks for shutdown
	MaxLineLength int           // frames longer than this close the connection
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Address); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "address")
	}
	if _, err := NewDecoder(c.Encoding); err != nil {
		return err
	}
	if c.PollInterval < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "poll_interval must not be negative")
	}
	if c.MaxLineLength < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "max_line_length must not be negative")
	}
	return nil
}

// Deps holds runtime dependencies for the TCP input.
type Deps struct {
	Router     Router          // required
	Dispatcher Dispatcher      // required
	Logger     *slog.Logger    // optional
	Metrics    *metric.Metrics // optional
}

// Input accepts game server connections and serves each on its own goroutine.
type Input struct {
	address       string
	encoding      string
	pollInterval  time.Duration
	maxLineLength int

	router     Router
	dispatcher Dispatcher
	logger     *slog.Logger
	metrics    *metric.Metrics

	retryConfig retry.Config

	// Lifecycle management
	mu       sync.Mutex
	listener net.Listener
	running  atomic.Bool
	stopping atomic.Bool
	shutdown chan struct{}
	wg       sync.WaitGroup
	baseCtx  context.Context
	sessions atomic.Int64
}

// NewInput creates a TCP input.
func NewInput(cfg Config, deps Deps) (*Input, error) {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.MaxLineLength == 0 {
		cfg.MaxLineLength = DefaultMaxLineLength
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Router == nil || deps.Dispatcher == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "tcp-input", "NewInput", "router and dispatcher required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "tcp-input")
	}

	return &Input{
		address:       cfg.Address,
		encoding:      cfg.Encoding,
		pollInterval:  cfg.PollInterval,
		maxLineLength: cfg.MaxLineLength,
		router:        deps.Router,
		dispatcher:    deps.Dispatcher,
		logger:        logger,
		metrics:       deps.Metrics,
		retryConfig:   retry.Quick(),
	}, nil
}

// Start binds the listener and begins accepting connections. Binding is
// retried briefly; persistent failure is fatal.
//
// Cancelling ctx stops accepting new connections; Stop must still be called to
// wait for open connections. Dispatches in flight are not cancelled by ctx.
func (i *Input) Start(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.running.Load() {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "tcp-input", "Start", "check running state")
	}

	ln, err := retry.DoWithResult(ctx, i.retryConfig, func() (net.Listener, error) {
		var lc net.ListenConfig
		return lc.Listen(ctx, "tcp", i.address)
	})
	if err != nil {
		return errors.WrapFatal(err, "tcp-input", "Start", "bind "+i.address)
	}

	i.listener = ln
	i.shutdown = make(chan struct{})
	i.baseCtx = context.WithoutCancel(ctx)
	i.stopping.Store(false)
	i.running.Store(true)

	i.logger.Info("Listening for kill feed", "address", ln.Addr().String(), "encoding", i.encoding)

	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		i.acceptLoop(ln)
	}()

	shutdown := i.shutdown
	go func() {
		select {
		case <-ctx.Done():
			i.logger.Info("Context done, no longer accepting connections")
			i.beginStop()
		case <-shutdown:
		}
	}()

	return nil
}

// Addr returns the bound address, or nil before Start.
func (i *Input) Addr() net.Addr {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.listener == nil {
		return nil
	}
	return i.listener.Addr()
}

// ActiveSessions returns the number of open connections.
func (i *Input) ActiveSessions() int64 {
	return i.sessions.Load()
}

// Health reports an error unless the listener is accepting connections.
func (i *Input) Health() error {
	if !i.running.Load() || i.stopping.Load() {
		return errors.WrapTransient(errors.ErrNotStarted, "tcp-input", "Health", "listener check")
	}
	return nil
}

// Stop sets the stop flag, closes the listener and waits up to timeout for
// open connections to finish their current read or delivery.
func (i *Input) Stop(timeout time.Duration) error {
	if !i.running.Load() {
		return nil
	}

	i.beginStop()

	waitCh := make(chan struct{})
	go func() {
		i.wg.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
	case <-time.After(timeout):
		return errors.WrapTransient(
			fmt.Errorf("stop timeout after %v with %d open connections", timeout, i.sessions.Load()),
			"tcp-input", "Stop", "graceful shutdown")
	}

	i.running.Store(false)
	i.logger.Info("Listener stopped")
	return nil
}

// beginStop flags every session to stop and closes the listener. Idempotent.
func (i *Input) beginStop() {
	if i.stopping.Swap(true) {
		return
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.shutdown != nil {
		close(i.shutdown)
	}
	if i.listener != nil {
		_ = i.listener.Close()
	}
}

func (i *Input) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if i.stopping.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			i.logger.Warn("Accept failed", "error", err)
			time.Sleep(50 * time.Millisecond)
			continue
		}

		if i.stopping.Load() {
			_ = conn.Close()
			return
		}

		i.wg.Add(1)
		go func() {
			defer i.wg.Done()
			i.serve(conn)
		}()
	}
}
