// Package agent provides the top-level agent control loop that wires the
// collector plugins to the controller connection.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"liebert/internal/agent/connector"
	"liebert/internal/bus"
	"liebert/internal/config"
	"liebert/internal/metrics"
	"liebert/internal/registry"
	"liebert/internal/watchdog"
	"liebert/internal/worker"
)

// ErrFatal is returned by Run when a Fatal message aborted the agent and the
// abort function returned.
var ErrFatal = errors.New("agent: fatal condition")

// Agent owns the control bus. Collectors, the connector and the watchdog all
// report to it.
type Agent struct {
	config    *config.Config
	logger    *slog.Logger
	control   *bus.Bus
	self      *metrics.SelfMonitor
	watchdog  *watchdog.Watchdog
	registry  *registry.Registry
	connector *connector.Connector
	plugins   *PluginsController
	abort     func(code int)

	connectorOpts []connector.Option
}

// Option configures an Agent.
type Option func(*Agent)

// WithAbort replaces os.Exit as the reaction to a Fatal message.
func WithAbort(abort func(code int)) Option {
	return func(a *Agent) {
		a.abort = abort
	}
}

// WithRegistry replaces the built-in collector registry.
func WithRegistry(r *registry.Registry) Option {
	return func(a *Agent) {
		a.registry = r
	}
}

// WithConnectorOptions passes extra options to the connector.
func WithConnectorOptions(opts ...connector.Option) Option {
	return func(a *Agent) {
		a.connectorOpts = append(a.connectorOpts, opts...)
	}
}

// New validates cfg and assembles the agent. Nothing runs until Run.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Agent, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := config.ValidateAgent(cfg); err != nil {
		return nil, fmt.Errorf("invalid agent configuration: %w", err)
	}
	settings, err := connector.SettingsFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	a := &Agent{
		config:  cfg,
		logger:  logger,
		control: bus.New("agent_control"),
		self:    metrics.NewSelfMonitor("agent"),
		abort:   os.Exit,
	}
	for _, opt := range opts {
		opt(a)
	}

	a.watchdog = watchdog.New(a.control,
		watchdog.WithLogger(logger),
		watchdog.WithSelfMonitor(a.self))
	if a.registry == nil {
		a.registry = CollectorRegistry(a.control, logger)
	}

	copts := append([]connector.Option{
		connector.WithLogger(logger),
		connector.WithSelfMonitor(a.self),
		connector.WithWatcher(a.watchdog),
	}, a.connectorOpts...)
	a.connector = connector.New(settings, a.control, copts...)

	logger.Info("Agent created",
		"controller", settings.Addr,
		"collectors", a.registry.Names())
	return a, nil
}

// Control is the bus to send Shutdown on, e.g. from a signal handler.
func (a *Agent) Control() bus.Sender { return a.control }

// SelfMonitor exposes the agent's self-metrics.
func (a *Agent) SelfMonitor() *metrics.SelfMonitor { return a.self }

// Run starts every worker and processes the control bus until Shutdown, a
// Fatal message or ctx cancellation.
func (a *Agent) Run(ctx context.Context) error {
	plugins, err := a.registry.Build(a.config)
	if err != nil {
		return fmt.Errorf("building collectors: %w", err)
	}

	serveCtx, stopServing := context.WithCancel(context.Background())
	defer stopServing()
	var server *worker.Handle
	if addr, _ := a.config.Get(config.KeyAgentMetrics); addr != "" {
		server = worker.Spawn("metrics_server", func() {
			if err := metrics.Serve(serveCtx, addr, a.self, a.logger); err != nil {
				a.logger.Error("Self metrics server stopped", "error", err)
			}
		})
	}

	a.watchdog.Watch(a.connector.Start())
	a.plugins = NewPluginsController(plugins, a.logger, a.watchdog)
	a.watchdog.Watch(a.plugins.Start())
	a.watchdog.Monitor()
	a.logger.Info("Agent started", "collectors", len(plugins))

	for {
		m, err := a.control.Recv(ctx)
		if err != nil {
			a.shutdown("context cancelled")
			return a.finish(server, stopServing)
		}

		switch v := m.(type) {
		case bus.Fatal:
			a.logger.Error("Fatal condition, aborting", "reason", v.Reason)
			a.abort(1)
			return fmt.Errorf("%w: %s", ErrFatal, v.Reason)
		case bus.Log:
			a.logger.Log(context.Background(), v.Level, v.Text)
		case bus.Data, bus.Format:
			a.connector.Inbox().Send(m)
		case bus.Shutdown:
			a.logger.Info("Shutting down", "reason", v.Reason)
			a.shutdown(v.Reason)
			return a.finish(server, stopServing)
		}
	}
}

func (a *Agent) shutdown(reason string) {
	if err := a.plugins.Inbox().TrySend(bus.Shutdown{Reason: reason}); err != nil {
		a.logger.Debug("Plugins controller already stopped")
	}
	if err := a.connector.Inbox().TrySend(bus.Shutdown{Reason: reason}); err != nil {
		a.logger.Debug("Connector already stopped")
	}
	a.watchdog.Join()
}

// finish stops the metrics server and inspects what workers posted while
// shutting down. A crash during shutdown still aborts.
func (a *Agent) finish(server *worker.Handle, stopServing context.CancelFunc) error {
	stopServing()
	if server != nil {
		server.Join()
	}

	for {
		m, ok := a.control.TryRecv()
		if !ok {
			break
		}
		switch v := m.(type) {
		case bus.Fatal:
			a.logger.Error("Fatal condition during shutdown, aborting", "reason", v.Reason)
			a.abort(1)
			return fmt.Errorf("%w: %s", ErrFatal, v.Reason)
		case bus.Log:
			a.logger.Log(context.Background(), v.Level, v.Text)
		}
	}
	a.control.Close()
	a.logger.Info("Agent stopped")
	return nil
}
