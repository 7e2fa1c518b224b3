// Package connector keeps the agent's TCP connection to the controller:
// connect with retries, then split the socket between a reader and a writer
// worker while queueing outbound samples.
package connector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"liebert/internal/bus"
	"liebert/internal/config"
	liberrors "liebert/internal/errors"
	"liebert/internal/metrics"
	"liebert/internal/plugin"
	"liebert/internal/resilience"
	"liebert/internal/worker"
)

// DefaultDialTimeout bounds a single connection attempt.
const DefaultDialTimeout = 10 * time.Second

var errShutdown = errors.New("shutdown requested")

// Settings holds the connection parameters.
type Settings struct {
	Addr        string
	Retry       resilience.RetryPolicy
	DialTimeout time.Duration
}

// SettingsFromConfig reads controller.host, controller.port,
// controller.retry_timeout (ms) and controller.max_retries.
func SettingsFromConfig(cfg *config.Config) (Settings, error) {
	port, err := cfg.Int(config.KeyControllerPort)
	if err != nil {
		return Settings{}, err
	}
	interval, err := cfg.Duration(config.KeyRetryTimeout, time.Millisecond)
	if err != nil {
		return Settings{}, err
	}
	maxRetries, err := cfg.Int(config.KeyMaxRetries)
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		Addr:        net.JoinHostPort(cfg.MustGet(config.KeyControllerHost), strconv.Itoa(port)),
		Retry:       resilience.RetryPolicy{Interval: interval, MaxRetries: maxRetries},
		DialTimeout: DefaultDialTimeout,
	}, nil
}

// DialFunc opens the connection to the controller.
type DialFunc func(ctx context.Context, addr string) (net.Conn, error)

func dialTCP(ctx context.Context, addr string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "tcp", addr)
}

// Connector is the agent side of the wire.
type Connector struct {
	settings Settings
	control  bus.Sender
	inbox    *bus.Bus
	dial     DialFunc
	logger   *slog.Logger
	self     *metrics.SelfMonitor
	watcher  plugin.Watcher
}

// Option configures a Connector.
type Option func(*Connector)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Connector) {
		c.logger = logger.With("component", "connector")
	}
}

// WithDialer replaces the TCP dialer.
func WithDialer(d DialFunc) Option {
	return func(c *Connector) {
		c.dial = d
	}
}

func WithSelfMonitor(sm *metrics.SelfMonitor) Option {
	return func(c *Connector) {
		c.self = sm
	}
}

// WithWatcher hands the reader and writer workers to w.
func WithWatcher(w plugin.Watcher) Option {
	return func(c *Connector) {
		c.watcher = w
	}
}

// New creates a Connector that reports fatal conditions on control.
func New(settings Settings, control bus.Sender, opts ...Option) *Connector {
	if settings.DialTimeout <= 0 {
		settings.DialTimeout = DefaultDialTimeout
	}
	c := &Connector{
		settings: settings,
		control:  control,
		inbox:    bus.New("connector"),
		dial:     dialTCP,
		logger:   slog.Default().With("component", "connector"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Inbox accepts Data, Format and Shutdown.
func (c *Connector) Inbox() *bus.Bus { return c.inbox }

// Start runs the connector on its own worker.
func (c *Connector) Start() *worker.Handle {
	return worker.Spawn("connector", c.run)
}

func (c *Connector) run() {
	defer c.inbox.Close()

	outbound := bus.New("connector_writer")
	conn, err := c.connect(outbound)
	switch {
	case errors.Is(err, errShutdown):
		c.logger.Info("Shutdown received before a connection was established")
		return
	case err != nil:
		c.logger.Error("Giving up on controller", "addr", c.settings.Addr, "error", err)
		c.control.Send(bus.Shutdown{Reason: fmt.Sprintf("connector: cannot reach controller at %s: %v", c.settings.Addr, err)})
		c.awaitShutdown()
		return
	}

	c.serve(conn, outbound)
}

// connect dials with retries. While it waits, a helper drains the inbox so
// samples are queued on outbound and a Shutdown cancels the wait at once.
func (c *Connector) connect(outbound *bus.Bus) (net.Conn, error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan struct{})
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		c.queueWhileConnecting(stop, outbound, cancel)
	}()

	var conn net.Conn
	err := resilience.Retry(ctx, c.settings.Retry, func(attempt int) error {
		c.self.RecordConnectAttempt()
		c.logger.Info("Connecting to controller", "addr", c.settings.Addr, "attempt", attempt)

		dialCtx, dialCancel := context.WithTimeout(ctx, c.settings.DialTimeout)
		defer dialCancel()
		cn, err := c.dial(dialCtx, c.settings.Addr)
		if err != nil {
			c.self.RecordConnectFailure()
			return liberrors.NetworkError("connector", "dial "+c.settings.Addr, err)
		}
		conn = cn
		return nil
	}, func(err error, wait time.Duration) {
		c.logger.Warn("Connection failed, retrying", "error", err, "retry_in", wait)
	})

	close(stop)
	<-drained

	if ctx.Err() != nil {
		if conn != nil {
			conn.Close()
		}
		return nil, errShutdown
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (c *Connector) queueWhileConnecting(stop <-chan struct{}, outbound *bus.Bus, cancel context.CancelFunc) {
	for {
		for {
			m, ok := c.inbox.TryRecv()
			if !ok {
				break
			}
			switch m.(type) {
			case bus.Shutdown:
				cancel()
				return
			case bus.Data, bus.Format:
				outbound.Send(m)
				c.self.RecordQueued()
			default:
				plugin.Unexpected(c.logger, m)
			}
		}

		select {
		case <-stop:
			return
		case <-c.inbox.Ready():
		}
	}
}

// awaitShutdown keeps consuming the inbox after giving up, so upstream sends
// stay valid until the agent's Shutdown reaches us.
func (c *Connector) awaitShutdown() {
	for {
		m, err := c.inbox.Recv(context.Background())
		if err != nil {
			return
		}
		if _, ok := m.(bus.Shutdown); ok {
			return
		}
		c.self.RecordDropped()
	}
}

func (c *Connector) serve(conn net.Conn, outbound *bus.Bus) {
	c.logger.Info("Connected to controller", "addr", c.settings.Addr, "local", conn.LocalAddr().String())

	readerInbox := bus.New("connector_reader")
	reader := worker.Spawn("connector_reader", func() {
		defer readerInbox.Close()
		c.read(conn, readerInbox)
	})
	writer := worker.Spawn("connector_writer", func() {
		defer outbound.Close()
		c.write(conn, outbound)
	})
	if c.watcher != nil {
		c.watcher.Watch(reader)
		c.watcher.Watch(writer)
	}

	for {
		m, err := c.inbox.Recv(context.Background())
		if err != nil {
			return
		}
		switch v := m.(type) {
		case bus.Data, bus.Format:
			outbound.Send(m)
			c.self.RecordQueued()
		case bus.Shutdown:
			c.logger.Info("Closing controller connection", "reason", v.Reason)
			if err := conn.Close(); err != nil {
				c.logger.Debug("Close failed", "error", err)
			}
			if err := readerInbox.TrySend(v); err != nil {
				c.logger.Debug("Reader already stopped")
			}
			if err := outbound.TrySend(v); err != nil {
				c.logger.Debug("Writer already stopped")
			}
			reader.Join()
			writer.Join()
			return
		default:
			plugin.Unexpected(c.logger, m)
		}
	}
}
