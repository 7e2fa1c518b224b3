// Package registry maps built-in plugin ids to factories and instantiates the
// ones enabled in the configuration.
package registry

import (
	"errors"
	"fmt"
	"log/slog"

	"liebert/internal/config"
	"liebert/internal/plugin"
)

// Factory builds a plugin from the configuration.
type Factory func(cfg *config.Config) (plugin.Plugin, error)

// Registry keeps factories in registration order.
type Registry struct {
	names     []string
	factories map[string]Factory
	logger    *slog.Logger
}

func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		factories: make(map[string]Factory),
		logger:    logger,
	}
}

// Register adds a factory for id.
func (r *Registry) Register(id string, f Factory) error {
	if f == nil {
		return fmt.Errorf("factory for %s cannot be nil", id)
	}
	if _, exists := r.factories[id]; exists {
		return fmt.Errorf("plugin %s already registered", id)
	}
	r.names = append(r.names, id)
	r.factories[id] = f
	return nil
}

// Names returns the registered ids in order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// Build instantiates every plugin whose <id>.enabled key is true. All
// factory errors are returned together.
func (r *Registry) Build(cfg *config.Config) ([]plugin.Plugin, error) {
	var (
		plugins []plugin.Plugin
		errs    []error
	)
	for _, id := range r.names {
		if !cfg.Enabled(id + ".enabled") {
			r.logger.Debug("Plugin disabled", "plugin", id)
			continue
		}
		p, err := r.factories[id](cfg)
		if err != nil {
			errs = append(errs, fmt.Errorf("plugin %s: %w", id, err))
			continue
		}
		plugins = append(plugins, p)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return plugins, nil
}
