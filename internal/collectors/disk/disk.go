// Package disk reports used and free bytes for configured mountpoints, one
// metric per mountpoint.
package disk

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/disk"

	"liebert/internal/bus"
	"liebert/internal/collectors"
	"liebert/internal/metrics"
)

// Name is the plugin id. Metrics are named Name + "." + MetricSuffix(mountpoint).
const Name = "builtin.hdd"

type Source func(ctx context.Context, path string) (*disk.UsageStat, error)

type Collector struct {
	heartbeat   int64
	mountpoints []string
	source      Source
}

type Option func(*Collector)

func WithSource(s Source) Option {
	return func(c *Collector) {
		c.source = s
	}
}

func NewCollector(interval time.Duration, mountpoints []string, opts ...Option) *Collector {
	c := &Collector{
		heartbeat:   collectors.HeartbeatSeconds(interval),
		mountpoints: mountpoints,
		source:      disk.UsageWithContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MetricSuffix turns a mountpoint into a single protocol token:
// "/" becomes "root", "/var/log" becomes "var_log".
func MetricSuffix(mountpoint string) string {
	trimmed := strings.Trim(mountpoint, "/")
	if trimmed == "" {
		return "root"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		default:
			return '_'
		}
	}, trimmed)
}

func (c *Collector) metric(mountpoint string) string {
	return Name + "." + MetricSuffix(mountpoint)
}

func (c *Collector) Name() string { return Name }

func (c *Collector) Formats(context.Context) ([]bus.Format, error) {
	if len(c.mountpoints) == 0 {
		return nil, collectors.NewCollectorError(Name, collectors.ErrorTypeConfiguration, "no mountpoints configured", nil)
	}
	formats := make([]bus.Format, 0, len(c.mountpoints))
	for _, mp := range c.mountpoints {
		formats = append(formats, bus.Format{
			Metric: c.metric(mp),
			Schema: metrics.Schema{
				metrics.GaugeSeries("used", c.heartbeat, metrics.Limit(0), metrics.NoBound()),
				metrics.GaugeSeries("free", c.heartbeat, metrics.Limit(0), metrics.NoBound()),
			},
		})
	}
	return formats, nil
}

func (c *Collector) Collect(ctx context.Context, ts int64) ([]bus.Data, error) {
	out := make([]bus.Data, 0, len(c.mountpoints))
	for _, mp := range c.mountpoints {
		usage, err := c.source(ctx, mp)
		if err != nil {
			return nil, collectors.NewCollectorError(Name, collectors.ErrorTypeNotFound, fmt.Sprintf("mountpoint %s", mp), err)
		}
		out = append(out, bus.Data{
			Metric:    c.metric(mp),
			Timestamp: ts,
			Values:    []int64{int64(usage.Used), int64(usage.Free)},
		})
	}
	return out, nil
}

func (c *Collector) Close() error { return nil }

var _ collectors.Collector = (*Collector)(nil)
