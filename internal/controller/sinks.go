package controller

import (
	"fmt"
	"log/slog"

	"liebert/internal/config"
	"liebert/internal/metrics"
	"liebert/internal/plugin"
	"liebert/internal/registry"
	"liebert/internal/storage/natsfwd"
	"liebert/internal/storage/rrd"
	"liebert/internal/storage/sqlstore"
)

// SinkRegistry registers every built-in storage plugin.
func SinkRegistry(logger *slog.Logger, sm *metrics.SelfMonitor) *registry.Registry {
	r := registry.New(logger.With("component", "registry"))

	register := func(id string, build func(cfg *config.Config) (plugin.Sink, error)) {
		err := r.Register(id, func(cfg *config.Config) (plugin.Plugin, error) {
			sink, err := build(cfg)
			if err != nil {
				return nil, err
			}
			return plugin.NewSinkPlugin(sink, logger), nil
		})
		if err != nil {
			panic(fmt.Sprintf("registering %s: %v", id, err))
		}
	}

	register(rrd.Name, func(cfg *config.Config) (plugin.Sink, error) {
		s, err := rrd.SettingsFromConfig(cfg)
		if err != nil {
			return nil, err
		}
		return rrd.New(s, rrd.WithLogger(logger), rrd.WithSelfMonitor(sm)), nil
	})
	register(sqlstore.Name, func(cfg *config.Config) (plugin.Sink, error) {
		s, err := sqlstore.SettingsFromConfig(cfg)
		if err != nil {
			return nil, err
		}
		return sqlstore.Open(s, sqlstore.WithLogger(logger), sqlstore.WithSelfMonitor(sm))
	})
	register(natsfwd.Name, func(cfg *config.Config) (plugin.Sink, error) {
		s, err := natsfwd.SettingsFromConfig(cfg)
		if err != nil {
			return nil, err
		}
		return natsfwd.Connect(s, natsfwd.WithLogger(logger), natsfwd.WithSelfMonitor(sm))
	})
	return r
}
