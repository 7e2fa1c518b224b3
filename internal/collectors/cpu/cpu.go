// Package cpu reports CPU time split into user, system, iowait and other,
// as integer percentages of the time elapsed between two samples.
package cpu

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"

	"liebert/internal/bus"
	"liebert/internal/collectors"
	"liebert/internal/metrics"
)

// Name is the plugin id and metric name.
const Name = "builtin.cpu"

// Times is one snapshot of the aggregate kernel CPU counters.
type Times struct {
	User    float64
	Nice    float64
	System  float64
	Idle    float64
	Iowait  float64
	Irq     float64
	Softirq float64
}

// Source returns the current counters.
type Source func(ctx context.Context) (Times, error)

// Collector implements collectors.Collector for CPU usage.
type Collector struct {
	heartbeat int64
	source    Source
	logger    *slog.Logger
	prev      Times
}

// Option configures the CPU collector.
type Option func(*Collector)

// WithLogger sets the logger for the collector.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Collector) {
		c.logger = logger
	}
}

// WithSource replaces the gopsutil counter source.
func WithSource(s Source) Option {
	return func(c *Collector) {
		c.source = s
	}
}

// NewCollector creates a CPU collector sampled every interval.
func NewCollector(interval time.Duration, opts ...Option) *Collector {
	c := &Collector{
		heartbeat: collectors.HeartbeatSeconds(interval),
		source:    readTimes,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func readTimes(ctx context.Context) (Times, error) {
	stats, err := cpu.TimesWithContext(ctx, false)
	if err != nil {
		return Times{}, fmt.Errorf("failed to read cpu times: %w", err)
	}
	if len(stats) == 0 {
		return Times{}, fmt.Errorf("no aggregate cpu line")
	}
	s := stats[0]
	return Times{
		User:    s.User,
		Nice:    s.Nice,
		System:  s.System,
		Idle:    s.Idle,
		Iowait:  s.Iowait,
		Irq:     s.Irq,
		Softirq: s.Softirq,
	}, nil
}

func (c *Collector) Name() string { return Name }

func (c *Collector) Formats(context.Context) ([]bus.Format, error) {
	pct := func(name string) metrics.Series {
		return metrics.GaugeSeries(name, c.heartbeat, metrics.Limit(0), metrics.Limit(100))
	}
	return []bus.Format{{
		Metric: Name,
		Schema: metrics.Schema{pct("user"), pct("system"), pct("iowait"), pct("other")},
	}}, nil
}

// Prime records the baseline snapshot.
func (c *Collector) Prime(ctx context.Context) error {
	t, err := c.source(ctx)
	if err != nil {
		return err
	}
	c.prev = t
	return nil
}

func (c *Collector) Collect(ctx context.Context, ts int64) ([]bus.Data, error) {
	cur, err := c.source(ctx)
	if err != nil {
		return nil, err
	}
	values := Usage(c.prev, cur)
	c.prev = cur
	c.logger.Debug("Sampled cpu", "user", values[0], "system", values[1], "iowait", values[2], "other", values[3])
	return []bus.Data{{Metric: Name, Timestamp: ts, Values: values}}, nil
}

func (c *Collector) Close() error { return nil }

// Usage returns user, system, iowait and other as truncated percentages of
// the total time between prev and cur. Other is nice + irq + softirq.
func Usage(prev, cur Times) []int64 {
	user := cur.User - prev.User
	system := cur.System - prev.System
	iowait := cur.Iowait - prev.Iowait
	idle := cur.Idle - prev.Idle
	other := (cur.Nice - prev.Nice) + (cur.Irq - prev.Irq) + (cur.Softirq - prev.Softirq)

	total := idle + user + system + iowait + other
	if total <= 0 {
		return []int64{0, 0, 0, 0}
	}
	pct := func(v float64) int64 { return int64(v / total * 100) }
	return []int64{pct(user), pct(system), pct(iowait), pct(other)}
}

var (
	_ collectors.Collector = (*Collector)(nil)
	_ collectors.Primer    = (*Collector)(nil)
)
