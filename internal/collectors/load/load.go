// Package load reports the 1, 5 and 15 minute load averages scaled by 100.
package load

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shirou/gopsutil/v4/load"

	"liebert/internal/bus"
	"liebert/internal/collectors"
	"liebert/internal/metrics"
)

const Name = "builtin.load"

type Source func(ctx context.Context) (*load.AvgStat, error)

type Collector struct {
	heartbeat int64
	source    Source
}

type Option func(*Collector)

func WithSource(s Source) Option {
	return func(c *Collector) {
		c.source = s
	}
}

func NewCollector(interval time.Duration, opts ...Option) *Collector {
	c := &Collector{
		heartbeat: collectors.HeartbeatSeconds(interval),
		source:    load.AvgWithContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Collector) Name() string { return Name }

func (c *Collector) Formats(context.Context) ([]bus.Format, error) {
	avg := func(name string) metrics.Series {
		return metrics.GaugeSeries(name, c.heartbeat, metrics.Limit(0), metrics.NoBound())
	}
	return []bus.Format{{
		Metric: Name,
		Schema: metrics.Schema{avg("load1"), avg("load5"), avg("load15")},
	}}, nil
}

func (c *Collector) Collect(ctx context.Context, ts int64) ([]bus.Data, error) {
	avg, err := c.source(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read load average: %w", err)
	}
	scale := func(v float64) int64 { return int64(math.Round(v * 100)) }
	return []bus.Data{{
		Metric:    Name,
		Timestamp: ts,
		Values:    []int64{scale(avg.Load1), scale(avg.Load5), scale(avg.Load15)},
	}}, nil
}

func (c *Collector) Close() error { return nil }

var _ collectors.Collector = (*Collector)(nil)
