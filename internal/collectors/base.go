// Package collectors drives agent collector plugins: announce every metric's
// Format, take a baseline, then emit one Data per metric each interval.
package collectors

import (
	"context"
	"log/slog"
	"time"

	"liebert/internal/bus"
	"liebert/internal/plugin"
)

// Collector samples one data source. It is driven by a single Plugin
// goroutine and need not be safe for concurrent use.
type Collector interface {
	// Name is the plugin id, e.g. builtin.cpu.
	Name() string
	// Formats describes every metric the collector reports.
	Formats(ctx context.Context) ([]bus.Format, error)
	// Collect reads the source and returns one Data per metric stamped ts.
	Collect(ctx context.Context, ts int64) ([]bus.Data, error)
	Close() error
}

// Primer is implemented by collectors that report deltas and need a first
// snapshot before the initial interval.
type Primer interface {
	Prime(ctx context.Context) error
}

// Plugin runs a Collector under the plugin lifecycle. Its messages go to the
// agent control bus.
type Plugin struct {
	collector Collector
	interval  time.Duration
	control   bus.Sender
	logger    *slog.Logger
	now       func() time.Time
}

var _ plugin.Plugin = (*Plugin)(nil)

// PluginOption configures a Plugin.
type PluginOption func(*Plugin)

func WithLogger(logger *slog.Logger) PluginOption {
	return func(p *Plugin) {
		p.logger = logger
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) PluginOption {
	return func(p *Plugin) {
		p.now = now
	}
}

func NewPlugin(c Collector, interval time.Duration, control bus.Sender, opts ...PluginOption) *Plugin {
	p := &Plugin{
		collector: c,
		interval:  interval,
		control:   control,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("plugin", c.Name())
	return p
}

func (p *Plugin) Name() string { return p.collector.Name() }

// Run returns on Shutdown, or when the data source fails. A failing source
// stops this plugin only.
func (p *Plugin) Run(inbox *bus.Bus) {
	defer func() {
		if err := p.collector.Close(); err != nil {
			p.logger.Warn("Failed to close collector", "error", err)
		}
	}()

	ctx := context.Background()
	formats, err := p.collector.Formats(ctx)
	if err != nil {
		p.fail("describe", err)
		return
	}
	for _, f := range formats {
		p.control.Send(f)
	}

	if primer, ok := p.collector.(Primer); ok {
		if err := primer.Prime(ctx); err != nil {
			p.fail("prime", err)
			return
		}
	}

	p.logger.Debug("Collector running", "interval", p.interval, "metrics", len(formats))
	for {
		if plugin.Wait(inbox, p.interval, p.logger) {
			p.logger.Debug("Collector shutting down")
			return
		}

		samples, err := p.collector.Collect(ctx, p.now().Unix())
		if err != nil {
			p.fail("collect", err)
			return
		}
		for _, d := range samples {
			p.control.Send(d)
		}
	}
}

func (p *Plugin) fail(op string, err error) {
	cerr := NewCollectorError(p.collector.Name(), ErrorTypeCollection, op+" failed", err)
	p.logger.Error("Data source unavailable, stopping plugin", "error", cerr)
	p.control.Send(bus.LogError("plugin %s stopped: %v", p.collector.Name(), cerr))
}

// HeartbeatSeconds converts a sampling interval to a series heartbeat.
func HeartbeatSeconds(interval time.Duration) int64 {
	s := int64(interval / time.Second)
	if s < 1 {
		return 1
	}
	return s
}
