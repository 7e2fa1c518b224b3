package agent

import (
	"fmt"
	"log/slog"
	"time"

	"liebert/internal/bus"
	"liebert/internal/collectors"
	"liebert/internal/collectors/cpu"
	"liebert/internal/collectors/disk"
	"liebert/internal/collectors/load"
	"liebert/internal/collectors/memory"
	"liebert/internal/collectors/network"
	"liebert/internal/collectors/system"
	"liebert/internal/config"
	liberrors "liebert/internal/errors"
	"liebert/internal/plugin"
	"liebert/internal/registry"
)

type collectorFactory func(cfg *config.Config, id string, interval time.Duration, logger *slog.Logger) collectors.Collector

// CollectorRegistry registers every built-in collector. Each one samples
// every <id>.interval seconds and reports on control.
func CollectorRegistry(control bus.Sender, logger *slog.Logger) *registry.Registry {
	r := registry.New(logger.With("component", "registry"))

	register := func(id string, build collectorFactory) {
		err := r.Register(id, func(cfg *config.Config) (plugin.Plugin, error) {
			interval, err := cfg.Duration(id+".interval", time.Second)
			if err != nil {
				return nil, err
			}
			if interval <= 0 {
				return nil, liberrors.ConfigError(id+".interval", "interval must be positive")
			}
			pl := logger.With("plugin", id)
			return collectors.NewPlugin(build(cfg, id, interval, pl), interval, control, collectors.WithLogger(pl)), nil
		})
		if err != nil {
			panic(fmt.Sprintf("registering %s: %v", id, err))
		}
	}

	register(cpu.Name, func(_ *config.Config, _ string, interval time.Duration, l *slog.Logger) collectors.Collector {
		return cpu.NewCollector(interval, cpu.WithLogger(l))
	})
	register(memory.Name, func(_ *config.Config, _ string, interval time.Duration, _ *slog.Logger) collectors.Collector {
		return memory.NewCollector(interval)
	})
	register(load.Name, func(_ *config.Config, _ string, interval time.Duration, _ *slog.Logger) collectors.Collector {
		return load.NewCollector(interval)
	})
	register(disk.Name, func(cfg *config.Config, id string, interval time.Duration, _ *slog.Logger) collectors.Collector {
		return disk.NewCollector(interval, cfg.List(id+".mountpoints"))
	})
	register(network.Name, func(cfg *config.Config, id string, interval time.Duration, l *slog.Logger) collectors.Collector {
		return network.NewCollector(interval, cfg.List(id+".interfaces"), network.WithLogger(l))
	})
	register(system.Name, func(_ *config.Config, _ string, interval time.Duration, _ *slog.Logger) collectors.Collector {
		return system.NewCollector(interval)
	})
	return r
}
