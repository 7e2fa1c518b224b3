// Package controller provides the top-level controller control loop: accept
// agent streams and route their samples to the storage plugins.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"

	"liebert/internal/bus"
	"liebert/internal/config"
	"liebert/internal/controller/listener"
	"liebert/internal/metrics"
	"liebert/internal/plugin"
	"liebert/internal/registry"
	"liebert/internal/watchdog"
	"liebert/internal/worker"
)

// ErrFatal is returned by Run when a Fatal message aborted the controller
// and the abort function returned.
var ErrFatal = errors.New("controller: fatal condition")

type Controller struct {
	config   *config.Config
	logger   *slog.Logger
	control  *bus.Bus
	self     *metrics.SelfMonitor
	watchdog *watchdog.Watchdog
	registry *registry.Registry
	addr     string
	abort    func(code int)

	listener *listener.Listener
	plugins  *PluginsController
}

// Option configures a Controller.
type Option func(*Controller)

// WithAbort replaces os.Exit as the reaction to a Fatal message.
func WithAbort(abort func(code int)) Option {
	return func(c *Controller) {
		c.abort = abort
	}
}

// WithRegistry replaces the built-in storage plugin registry.
func WithRegistry(r *registry.Registry) Option {
	return func(c *Controller) {
		c.registry = r
	}
}

// New validates cfg and assembles the controller. Nothing runs until Run.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Controller, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := config.ValidateController(cfg); err != nil {
		return nil, fmt.Errorf("invalid controller configuration: %w", err)
	}
	port, err := cfg.Int(config.KeyControllerPort)
	if err != nil {
		return nil, err
	}

	c := &Controller{
		config:  cfg,
		logger:  logger,
		control: bus.New("controller_control"),
		self:    metrics.NewSelfMonitor("controller"),
		addr:    net.JoinHostPort(cfg.MustGet(config.KeyControllerHost), strconv.Itoa(port)),
		abort:   os.Exit,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.watchdog = watchdog.New(c.control,
		watchdog.WithLogger(logger),
		watchdog.WithSelfMonitor(c.self))
	if c.registry == nil {
		c.registry = SinkRegistry(logger, c.self)
	}

	logger.Info("Controller created", "addr", c.addr, "sinks", c.registry.Names())
	return c, nil
}

// Control is the bus to send Shutdown on.
func (c *Controller) Control() bus.Sender { return c.control }

// SelfMonitor exposes the controller's self-metrics.
func (c *Controller) SelfMonitor() *metrics.SelfMonitor { return c.self }

// Addr is the listening address once Run has bound it.
func (c *Controller) Addr() net.Addr {
	if c.listener == nil {
		return nil
	}
	return c.listener.Addr()
}

// Run binds the listener, starts the storage plugins and processes the
// control bus until Shutdown, a Fatal message or ctx cancellation.
func (c *Controller) Run(ctx context.Context) error {
	sinks, err := c.registry.Build(c.config)
	if err != nil {
		return fmt.Errorf("building storage plugins: %w", err)
	}

	c.plugins = NewPluginsController(c.config, sinks, c.logger, c.watchdog, c.self)
	c.listener = listener.New(c.addr, c.plugins.Inbox(),
		listener.WithLogger(c.logger),
		listener.WithSelfMonitor(c.self),
		listener.WithWatcher(c.watchdog))
	listenerHandle, err := c.listener.Start()
	if err != nil {
		closeAll(sinks, c.logger)
		return err
	}

	serveCtx, stopServing := context.WithCancel(context.Background())
	defer stopServing()
	var server *worker.Handle
	if addr, _ := c.config.Get(config.KeyControllerStats); addr != "" {
		server = worker.Spawn("metrics_server", func() {
			if err := metrics.Serve(serveCtx, addr, c.self, c.logger); err != nil {
				c.logger.Error("Self metrics server stopped", "error", err)
			}
		})
	}

	c.watchdog.Watch(listenerHandle)
	c.watchdog.Watch(c.plugins.Start())
	c.watchdog.Monitor()
	c.logger.Info("Controller started", "sinks", len(sinks))

	for {
		m, err := c.control.Recv(ctx)
		if err != nil {
			c.shutdown("context cancelled", listenerHandle)
			return c.finish(server, stopServing)
		}

		switch v := m.(type) {
		case bus.Fatal:
			c.logger.Error("Fatal condition, aborting", "reason", v.Reason)
			c.abort(1)
			return fmt.Errorf("%w: %s", ErrFatal, v.Reason)
		case bus.Log:
			c.logger.Log(context.Background(), v.Level, v.Text)
		case bus.Shutdown:
			c.logger.Info("Shutting down", "reason", v.Reason)
			c.shutdown(v.Reason, listenerHandle)
			return c.finish(server, stopServing)
		default:
			plugin.Unexpected(c.logger, m)
		}
	}
}

// shutdown stops the listener and waits for its readers before the plugins
// controller, so no reader sends on a routing bus that has gone.
func (c *Controller) shutdown(reason string, listenerHandle *worker.Handle) {
	if err := c.listener.Inbox().TrySend(bus.Shutdown{Reason: reason}); err != nil {
		c.logger.Debug("Listener already stopped")
	}
	listenerHandle.Join()

	if err := c.plugins.Inbox().TrySend(bus.Shutdown{Reason: reason}); err != nil {
		c.logger.Debug("Plugins controller already stopped")
	}
	c.watchdog.Join()
}

func (c *Controller) finish(server *worker.Handle, stopServing context.CancelFunc) error {
	stopServing()
	if server != nil {
		server.Join()
	}

	for {
		m, ok := c.control.TryRecv()
		if !ok {
			break
		}
		switch v := m.(type) {
		case bus.Fatal:
			c.logger.Error("Fatal condition during shutdown, aborting", "reason", v.Reason)
			c.abort(1)
			return fmt.Errorf("%w: %s", ErrFatal, v.Reason)
		case bus.Log:
			c.logger.Log(context.Background(), v.Level, v.Text)
		}
	}
	c.control.Close()
	c.logger.Info("Controller stopped")
	return nil
}

// closeAll releases sinks that were built but never started.
func closeAll(plugins []plugin.Plugin, logger *slog.Logger) {
	for _, p := range plugins {
		if sp, ok := p.(interface{ Sink() plugin.Sink }); ok {
			if err := sp.Sink().Close(); err != nil {
				logger.Warn("Failed to close sink", "plugin", p.Name(), "error", err)
			}
		}
	}
}
