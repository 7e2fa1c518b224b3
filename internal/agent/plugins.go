package agent

import (
	"context"
	"log/slog"

	"liebert/internal/bus"
	"liebert/internal/plugin"
	"liebert/internal/worker"
)

// PluginsController starts the collector plugins and stops them together.
type PluginsController struct {
	plugins    []plugin.Plugin
	supervisor *plugin.Supervisor
	inbox      *bus.Bus
	logger     *slog.Logger
}

func NewPluginsController(plugins []plugin.Plugin, logger *slog.Logger, w plugin.Watcher) *PluginsController {
	logger = logger.With("component", "plugins_controller")
	return &PluginsController{
		plugins:    plugins,
		supervisor: plugin.NewSupervisor(plugin.WithLogger(logger), plugin.WithWatcher(w)),
		inbox:      bus.New("agent_plugins"),
		logger:     logger,
	}
}

// Inbox accepts Shutdown.
func (pc *PluginsController) Inbox() *bus.Bus { return pc.inbox }

// Start runs the controller on its own worker.
func (pc *PluginsController) Start() *worker.Handle {
	return worker.Spawn("agent_plugins", func() {
		defer pc.inbox.Close()
		pc.run()
	})
}

func (pc *PluginsController) run() {
	for _, p := range pc.plugins {
		pc.supervisor.Start(p)
	}

	for {
		m, err := pc.inbox.Recv(context.Background())
		if err != nil {
			return
		}
		if s, ok := m.(bus.Shutdown); ok {
			pc.logger.Info("Stopping plugins", "count", len(pc.plugins))
			pc.supervisor.Shutdown(s.Reason)
			pc.supervisor.Join()
			return
		}
		plugin.Unexpected(pc.logger, m)
	}
}
