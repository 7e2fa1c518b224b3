// Package system reports host uptime, process count and logged-in users.
package system

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/process"

	"liebert/internal/bus"
	"liebert/internal/collectors"
	"liebert/internal/metrics"
)

const Name = "builtin.system"

// Source groups the host readings the collector needs.
type Source struct {
	Uptime func(ctx context.Context) (uint64, error)
	Procs  func(ctx context.Context) (int, error)
	Users  func(ctx context.Context) (int, error)
}

// HostSource reads from gopsutil.
func HostSource() Source {
	return Source{
		Uptime: host.UptimeWithContext,
		Procs: func(ctx context.Context) (int, error) {
			pids, err := process.PidsWithContext(ctx)
			if err != nil {
				return 0, err
			}
			return len(pids), nil
		},
		Users: userCount,
	}
}

// userCount counts logged-in users. Systems without utmp report zero.
func userCount(ctx context.Context) (int, error) {
	users, err := host.UsersWithContext(ctx)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	return len(users), nil
}

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
		source:    HostSource(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Collector) Name() string { return Name }

func (c *Collector) Formats(context.Context) ([]bus.Format, error) {
	gauge := func(name string) metrics.Series {
		return metrics.GaugeSeries(name, c.heartbeat, metrics.Limit(0), metrics.NoBound())
	}
	return []bus.Format{{
		Metric: Name,
		Schema: metrics.Schema{gauge("uptime"), gauge("procs"), gauge("users")},
	}}, nil
}

func (c *Collector) Collect(ctx context.Context, ts int64) ([]bus.Data, error) {
	uptime, err := c.source.Uptime(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read uptime: %w", err)
	}
	procs, err := c.source.Procs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count processes: %w", err)
	}
	users, err := c.source.Users(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}
	return []bus.Data{{
		Metric:    Name,
		Timestamp: ts,
		Values:    []int64{int64(uptime), int64(procs), int64(users)},
	}}, nil
}

func (c *Collector) Close() error { return nil }

var _ collectors.Collector = (*Collector)(nil)
