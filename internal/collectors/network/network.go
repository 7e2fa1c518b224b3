// Package network reports per-interface traffic counters, one metric per
// interface.
package network

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gopsnet "github.com/shirou/gopsutil/v4/net"

	"liebert/internal/bus"
	"liebert/internal/collectors"
	"liebert/internal/metrics"
)

// Name is the plugin id. Metrics are named Name + "." + interface.
const Name = "builtin.network"

// Auto selects the interface holding the default route.
const Auto = "auto"

// Source returns per-interface counters.
type Source func(ctx context.Context) ([]gopsnet.IOCountersStat, error)

// Collector implements collectors.Collector for interface counters.
type Collector struct {
	heartbeat  int64
	selectors  []string
	interfaces []string
	source     Source
	lister     Lister
	logger     *slog.Logger
}

// Option configures the network collector.
type Option func(*Collector)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Collector) {
		c.logger = logger
	}
}

func WithSource(s Source) Option {
	return func(c *Collector) {
		c.source = s
	}
}

// WithLister replaces the interface discovery used for auto and wildcards.
func WithLister(l Lister) Option {
	return func(c *Collector) {
		c.lister = l
	}
}

// NewCollector creates a collector for selectors: interface names, simple
// wildcards like eth* or the word auto.
func NewCollector(interval time.Duration, selectors []string, opts ...Option) *Collector {
	c := &Collector{
		heartbeat: collectors.HeartbeatSeconds(interval),
		selectors: selectors,
		source: func(ctx context.Context) ([]gopsnet.IOCountersStat, error) {
			return gopsnet.IOCountersWithContext(ctx, true)
		},
		lister: systemLister{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Collector) Name() string { return Name }

// Formats resolves the selectors to concrete interfaces. The set stays fixed
// for the life of the plugin.
func (c *Collector) Formats(ctx context.Context) ([]bus.Format, error) {
	ifaces, err := c.resolve(ctx)
	if err != nil {
		return nil, err
	}
	if len(ifaces) == 0 {
		return nil, collectors.NewCollectorError(Name, collectors.ErrorTypeNotFound, "no interface matches the configured selectors", nil)
	}
	c.interfaces = ifaces
	c.logger.Info("Monitoring interfaces", "interfaces", ifaces)

	counter := func(name string) metrics.Series {
		return metrics.CounterSeries(name, c.heartbeat, metrics.Limit(0), metrics.NoBound())
	}
	formats := make([]bus.Format, 0, len(ifaces))
	for _, iface := range ifaces {
		formats = append(formats, bus.Format{
			Metric: Name + "." + iface,
			Schema: metrics.Schema{
				counter("rx_bytes"), counter("tx_bytes"),
				counter("rx_packets"), counter("tx_packets"),
				counter("rx_errors"), counter("tx_errors"),
			},
		})
	}
	return formats, nil
}

func (c *Collector) resolve(ctx context.Context) ([]string, error) {
	var (
		out  []string
		seen = make(map[string]bool)
		all  []gopsnet.InterfaceStat
	)
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}

	for _, sel := range c.selectors {
		switch {
		case sel == Auto:
			name, err := c.lister.DefaultInterface(ctx)
			if err != nil {
				return nil, collectors.NewCollectorError(Name, collectors.ErrorTypeNotFound, "default interface discovery failed", err)
			}
			add(name)
		case isPattern(sel):
			if all == nil {
				var err error
				if all, err = c.lister.Interfaces(ctx); err != nil {
					return nil, collectors.NewCollectorError(Name, collectors.ErrorTypeCollection, "failed to list interfaces", err)
				}
			}
			for _, iface := range all {
				if matchesPattern(iface.Name, sel) {
					add(iface.Name)
				}
			}
		default:
			add(sel)
		}
	}
	return out, nil
}

func (c *Collector) Collect(ctx context.Context, ts int64) ([]bus.Data, error) {
	stats, err := c.source(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read interface counters: %w", err)
	}
	byName := make(map[string]gopsnet.IOCountersStat, len(stats))
	for _, s := range stats {
		byName[s.Name] = s
	}

	out := make([]bus.Data, 0, len(c.interfaces))
	for _, iface := range c.interfaces {
		s, ok := byName[iface]
		if !ok {
			return nil, collectors.NewCollectorError(Name, collectors.ErrorTypeNotFound, "interface "+iface+" disappeared", nil)
		}
		out = append(out, bus.Data{
			Metric:    Name + "." + iface,
			Timestamp: ts,
			Values: []int64{
				int64(s.BytesRecv), int64(s.BytesSent),
				int64(s.PacketsRecv), int64(s.PacketsSent),
				int64(s.Errin), int64(s.Errout),
			},
		})
	}
	return out, nil
}

func (c *Collector) Close() error { return nil }

var _ collectors.Collector = (*Collector)(nil)
