// Package watchdog turns the crash of any supervised worker into a Fatal
// message on the control bus.
package watchdog

import (
	"fmt"
	"log/slog"
	"sync"

	"liebert/internal/bus"
	"liebert/internal/metrics"
	"liebert/internal/worker"
)

// Policy decides whether a crashed worker takes the process down.
type Policy interface {
	Escalate(name string, err error) bool
}

// FailFast escalates every crash.
type FailFast struct{}

func (FailFast) Escalate(string, error) bool { return true }

// Watchdog monitors worker handles.
type Watchdog struct {
	control bus.Sender
	logger  *slog.Logger
	policy  Policy
	self    *metrics.SelfMonitor

	mu         sync.Mutex
	pending    []*worker.Handle
	monitoring bool
	monitors   []chan struct{}
}

// Option configures a Watchdog.
type Option func(*Watchdog)

func WithLogger(logger *slog.Logger) Option {
	return func(w *Watchdog) {
		w.logger = logger.With("component", "watchdog")
	}
}

// WithPolicy overrides the FailFast default.
func WithPolicy(p Policy) Option {
	return func(w *Watchdog) {
		w.policy = p
	}
}

func WithSelfMonitor(sm *metrics.SelfMonitor) Option {
	return func(w *Watchdog) {
		w.self = sm
	}
}

// New creates a watchdog that reports crashes on control.
func New(control bus.Sender, opts ...Option) *Watchdog {
	w := &Watchdog{
		control: control,
		logger:  slog.Default().With("component", "watchdog"),
		policy:  FailFast{},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Watch registers h. Handles watched after Monitor are monitored at once.
func (w *Watchdog) Watch(h *worker.Handle) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.monitoring {
		w.spawnLocked(h)
		return
	}
	w.pending = append(w.pending, h)
}

// Monitor starts one monitor goroutine per registered handle.
func (w *Watchdog) Monitor() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.monitoring = true
	for _, h := range w.pending {
		w.spawnLocked(h)
	}
	w.pending = nil
}

func (w *Watchdog) spawnLocked(h *worker.Handle) {
	done := make(chan struct{})
	w.monitors = append(w.monitors, done)
	go func() {
		defer close(done)
		w.observe(h)
	}()
}

func (w *Watchdog) observe(h *worker.Handle) {
	err := h.Join()
	if err == nil {
		w.logger.Debug("Worker exited", "worker", h.Name())
		return
	}

	w.self.RecordWorkerCrash(h.Name())
	if !w.policy.Escalate(h.Name(), err) {
		w.logger.Warn("Worker crashed, policy declined to escalate", "worker", h.Name(), "error", err)
		return
	}
	w.logger.Error("Worker crashed", "worker", h.Name(), "error", err)
	w.control.Send(bus.Fatal{Reason: fmt.Sprintf("watchdog: worker %s crashed: %v", h.Name(), err)})
}

// Join blocks until every monitor has returned, including monitors started
// by Watch calls made while waiting.
func (w *Watchdog) Join() {
	seen := 0
	for {
		w.mu.Lock()
		batch := w.monitors[seen:]
		w.mu.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, done := range batch {
			<-done
		}
		seen += len(batch)
	}
}
