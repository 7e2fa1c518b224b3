// Package memory reports free, used, buffer and page cache memory in bytes.
package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/mem"

	"liebert/internal/bus"
	"liebert/internal/collectors"
	"liebert/internal/metrics"
)

// Name is the plugin id and metric name.
const Name = "builtin.memory"

// Source returns the current memory statistics.
type Source func(ctx context.Context) (*mem.VirtualMemoryStat, error)

// Collector implements collectors.Collector for memory usage.
type Collector struct {
	heartbeat int64
	source    Source
}

// Option configures the memory collector.
type Option func(*Collector)

// WithSource replaces the gopsutil memory source.
func WithSource(s Source) Option {
	return func(c *Collector) {
		c.source = s
	}
}

func NewCollector(interval time.Duration, opts ...Option) *Collector {
	c := &Collector{
		heartbeat: collectors.HeartbeatSeconds(interval),
		source:    mem.VirtualMemoryWithContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Collector) Name() string { return Name }

func (c *Collector) Formats(context.Context) ([]bus.Format, error) {
	bytes := func(name string) metrics.Series {
		return metrics.GaugeSeries(name, c.heartbeat, metrics.Limit(0), metrics.NoBound())
	}
	return []bus.Format{{
		Metric: Name,
		Schema: metrics.Schema{bytes("free"), bytes("used"), bytes("buffers"), bytes("cache")},
	}}, nil
}

// Collect reports used as total minus free, so buffers and cache count as used.
func (c *Collector) Collect(ctx context.Context, ts int64) ([]bus.Data, error) {
	vm, err := c.source(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read memory stats: %w", err)
	}
	values := []int64{
		int64(vm.Free),
		int64(vm.Total - vm.Free),
		int64(vm.Buffers),
		int64(vm.Cached),
	}
	return []bus.Data{{Metric: Name, Timestamp: ts, Values: values}}, nil
}

func (c *Collector) Close() error { return nil }

var _ collectors.Collector = (*Collector)(nil)
