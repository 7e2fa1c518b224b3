// Package plugin defines the lifecycle shared by agent collectors and
// controller storage plugins: start as a worker with a private inbox, run
// until Shutdown, be joined by the owning controller.
package plugin

import (
	"log/slog"
	"sync"
	"time"

	"liebert/internal/bus"
	"liebert/internal/worker"
)

// Plugin is the body of a supervised plugin worker.
type Plugin interface {
	Name() string
	// Run loops until Shutdown arrives on inbox or the plugin cannot go on.
	Run(inbox *bus.Bus)
}

// Handle is what the supervisor keeps for each started plugin.
type Handle struct {
	Name   string
	Inbox  *bus.Bus
	Worker *worker.Handle
}

// Start spawns p on its own worker. The inbox is closed when Run returns.
func Start(p Plugin) Handle {
	name := p.Name()
	inbox := bus.New("plugin_" + name)
	h := worker.Spawn("plugin_"+name, func() {
		defer inbox.Close()
		p.Run(inbox)
	})
	return Handle{Name: name, Inbox: inbox, Worker: h}
}

// Watcher receives every started worker handle.
type Watcher interface {
	Watch(h *worker.Handle)
}

// Supervisor starts plugins and shuts them down together.
type Supervisor struct {
	logger  *slog.Logger
	watcher Watcher

	mu       sync.Mutex
	handles  []Handle
	shutdown sync.Once
}

// Option configures a Supervisor.
type Option func(*Supervisor)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) {
		s.logger = logger
	}
}

// WithWatcher hands every started plugin to w.
func WithWatcher(w Watcher) Option {
	return func(s *Supervisor) {
		s.watcher = w
	}
}

func NewSupervisor(opts ...Option) *Supervisor {
	s := &Supervisor{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs p and registers its handle.
func (s *Supervisor) Start(p Plugin) Handle {
	h := Start(p)
	s.mu.Lock()
	s.handles = append(s.handles, h)
	s.mu.Unlock()

	if s.watcher != nil {
		s.watcher.Watch(h.Worker)
	}
	s.logger.Info("Started plugin", "plugin", h.Name)
	return h
}

// Handles returns the started plugins in start order.
func (s *Supervisor) Handles() []Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Handle(nil), s.handles...)
}

// Shutdown sends Shutdown to every plugin. Only the first call has effect.
// Plugins that already stopped on their own are skipped.
func (s *Supervisor) Shutdown(reason string) {
	s.shutdown.Do(func() {
		for _, h := range s.Handles() {
			if h.Worker.Finished() {
				s.logger.Debug("Plugin already stopped", "plugin", h.Name)
				continue
			}
			if err := h.Inbox.TrySend(bus.Shutdown{Reason: reason}); err != nil {
				s.logger.Debug("Plugin already stopped", "plugin", h.Name)
			}
		}
	})
}

// Join waits for every plugin worker to return.
func (s *Supervisor) Join() {
	for _, h := range s.Handles() {
		if err := h.Worker.Join(); err != nil {
			s.logger.Error("Plugin crashed", "plugin", h.Name, "error", err)
			continue
		}
		s.logger.Debug("Plugin stopped", "plugin", h.Name)
	}
}

// Wait sleeps for d while watching inbox and reports whether Shutdown
// arrived. Other messages are logged and dropped.
func Wait(inbox *bus.Bus, d time.Duration, logger *slog.Logger) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		for {
			m, ok := inbox.TryRecv()
			if !ok {
				break
			}
			if _, stop := m.(bus.Shutdown); stop {
				return true
			}
			Unexpected(logger, m)
		}

		select {
		case <-timer.C:
			return false
		case <-inbox.Ready():
		}
	}
}

// Unexpected logs a message the receiver has no use for.
func Unexpected(logger *slog.Logger, m bus.Message) {
	logger.Warn("Ignoring unexpected message", "type", messageType(m))
}

func messageType(m bus.Message) string {
	switch m.(type) {
	case bus.Data:
		return "data"
	case bus.Format:
		return "format"
	case bus.Shutdown:
		return "shutdown"
	case bus.Fatal:
		return "fatal"
	case bus.Log:
		return "log"
	default:
		return "unknown"
	}
}
