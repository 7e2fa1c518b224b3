package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// SelfMonitor tracks process health counters. A nil *SelfMonitor is valid and
// records nothing, so components can be built without one.
type SelfMonitor struct {
	registry *prometheus.Registry

	connectAttempts prometheus.Counter
	connectFailures prometheus.Counter
	samplesQueued   prometheus.Counter
	samplesSent     prometheus.Counter
	samplesDropped  prometheus.Counter

	linesDecoded        prometheus.Counter
	decodeErrors        prometheus.Counter
	connectionsAccepted prometheus.Counter
	connectionsActive   prometheus.Gauge

	messagesRouted   prometheus.Counter
	messagesUnrouted prometheus.Counter
	storageFailures  *prometheus.CounterVec

	workerCrashes *prometheus.CounterVec
}

// NewSelfMonitor creates counters under the liebert_<role>_ prefix on a
// private registry, which also carries the Go runtime collectors.
func NewSelfMonitor(role string) *SelfMonitor {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "liebert", Subsystem: role, Name: name, Help: help,
		})
	}

	sm := &SelfMonitor{
		registry:            prometheus.NewRegistry(),
		connectAttempts:     counter("connect_attempts_total", "Connection attempts to the controller."),
		connectFailures:     counter("connect_failures_total", "Failed connection attempts to the controller."),
		samplesQueued:       counter("samples_queued_total", "Messages queued for the wire."),
		samplesSent:         counter("samples_sent_total", "Messages written to the wire."),
		samplesDropped:      counter("samples_dropped_total", "Messages lost to write failures."),
		linesDecoded:        counter("lines_decoded_total", "Protocol lines decoded."),
		decodeErrors:        counter("decode_errors_total", "Connections abandoned on malformed input."),
		connectionsAccepted: counter("connections_accepted_total", "Agent connections accepted."),
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "liebert", Subsystem: role, Name: "connections_active", Help: "Open agent connections.",
		}),
		messagesRouted:   counter("messages_routed_total", "Messages delivered to at least one storage plugin."),
		messagesUnrouted: counter("messages_unrouted_total", "Messages dropped for lack of subscribers."),
		storageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "liebert", Subsystem: role, Name: "storage_failures_total", Help: "Failed storage writes.",
		}, []string{"plugin"}),
		workerCrashes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "liebert", Subsystem: role, Name: "worker_crashes_total", Help: "Supervised workers that panicked.",
		}, []string{"worker"}),
	}

	sm.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		sm.connectAttempts, sm.connectFailures,
		sm.samplesQueued, sm.samplesSent, sm.samplesDropped,
		sm.linesDecoded, sm.decodeErrors,
		sm.connectionsAccepted, sm.connectionsActive,
		sm.messagesRouted, sm.messagesUnrouted,
		sm.storageFailures, sm.workerCrashes,
	)
	return sm
}

// Registry returns the registry backing the monitor.
func (sm *SelfMonitor) Registry() *prometheus.Registry {
	if sm == nil {
		return nil
	}
	return sm.registry
}

func (sm *SelfMonitor) RecordConnectAttempt() {
	if sm != nil {
		sm.connectAttempts.Inc()
	}
}

func (sm *SelfMonitor) RecordConnectFailure() {
	if sm != nil {
		sm.connectFailures.Inc()
	}
}

func (sm *SelfMonitor) RecordQueued() {
	if sm != nil {
		sm.samplesQueued.Inc()
	}
}

func (sm *SelfMonitor) RecordSent() {
	if sm != nil {
		sm.samplesSent.Inc()
	}
}

func (sm *SelfMonitor) RecordDropped() {
	if sm != nil {
		sm.samplesDropped.Inc()
	}
}

func (sm *SelfMonitor) RecordDecoded() {
	if sm != nil {
		sm.linesDecoded.Inc()
	}
}

func (sm *SelfMonitor) RecordDecodeError() {
	if sm != nil {
		sm.decodeErrors.Inc()
	}
}

// ConnectionOpened records an accepted connection.
func (sm *SelfMonitor) ConnectionOpened() {
	if sm != nil {
		sm.connectionsAccepted.Inc()
		sm.connectionsActive.Inc()
	}
}

func (sm *SelfMonitor) ConnectionClosed() {
	if sm != nil {
		sm.connectionsActive.Dec()
	}
}

// RecordRouted records one routed message and how many subscribers got it.
func (sm *SelfMonitor) RecordRouted(subscribers int) {
	if sm == nil {
		return
	}
	if subscribers == 0 {
		sm.messagesUnrouted.Inc()
		return
	}
	sm.messagesRouted.Inc()
}

func (sm *SelfMonitor) RecordStorageFailure(plugin string) {
	if sm != nil {
		sm.storageFailures.WithLabelValues(plugin).Inc()
	}
}

func (sm *SelfMonitor) RecordWorkerCrash(worker string) {
	if sm != nil {
		sm.workerCrashes.WithLabelValues(worker).Inc()
	}
}
