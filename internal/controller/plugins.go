package controller

import (
	"context"
	"log/slog"

	"liebert/internal/bus"
	"liebert/internal/config"
	"liebert/internal/controller/router"
	"liebert/internal/metrics"
	"liebert/internal/plugin"
	"liebert/internal/worker"
)

// PluginsController owns the routing bus: it starts the storage plugins,
// subscribes each to its <id>.topics and routes every decoded message.
type PluginsController struct {
	config     *config.Config
	plugins    []plugin.Plugin
	supervisor *plugin.Supervisor
	router     *router.Router
	inbox      *bus.Bus
	logger     *slog.Logger
}

func NewPluginsController(cfg *config.Config, plugins []plugin.Plugin, logger *slog.Logger, w plugin.Watcher, sm *metrics.SelfMonitor) *PluginsController {
	logger = logger.With("component", "plugins_controller")
	return &PluginsController{
		config:     cfg,
		plugins:    plugins,
		supervisor: plugin.NewSupervisor(plugin.WithLogger(logger), plugin.WithWatcher(w)),
		router:     router.New(router.WithLogger(logger), router.WithSelfMonitor(sm)),
		inbox:      bus.New("controller_routing"),
		logger:     logger,
	}
}

// Inbox is the routing bus. It accepts Data, Format and Shutdown.
func (pc *PluginsController) Inbox() *bus.Bus { return pc.inbox }

// Start runs the controller on its own worker.
func (pc *PluginsController) Start() *worker.Handle {
	return worker.Spawn("controller_plugins", func() {
		defer pc.inbox.Close()
		pc.run()
	})
}

func (pc *PluginsController) run() {
	for _, p := range pc.plugins {
		h := pc.supervisor.Start(p)
		topics := pc.config.List(h.Name + ".topics")
		if len(topics) == 0 {
			pc.logger.Warn("Plugin subscribes to no topics", "plugin", h.Name)
		}
		for _, topic := range topics {
			pc.router.Add(topic, h.Inbox)
		}
	}
	pc.logger.Info("Routing table ready", "topics", pc.router.Topics())

	for {
		m, err := pc.inbox.Recv(context.Background())
		if err != nil {
			return
		}
		switch v := m.(type) {
		case bus.Data, bus.Format:
			pc.router.Route(m)
		case bus.Shutdown:
			pc.logger.Info("Stopping plugins", "count", len(pc.plugins))
			pc.supervisor.Shutdown(v.Reason)
			pc.supervisor.Join()
			return
		default:
			plugin.Unexpected(pc.logger, m)
		}
	}
}
