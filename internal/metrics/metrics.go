// Package metrics exposes Prometheus counters and gauges for watch-time tracking.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mstimer"

// Results of coordinator messages.
const (
	ResultAccepted = "accepted"
	ResultRejected = "rejected"
	ResultFailed   = "failed"
)

// Metrics holds every collector on its own registry.
type Metrics struct {
	Registry *prometheus.Registry

	committedSeconds prometheus.Counter
	discardedDeltas  *prometheus.CounterVec
	commitFailures   prometheus.Counter
	messages         *prometheus.CounterVec
	pageEvents       *prometheus.CounterVec
	droppedEvents    *prometheus.CounterVec
	boundPlayers     prometheus.Gauge
	attachedPages    prometheus.Gauge
}

// New creates the collectors and registers them together with the Go runtime
// and process collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		committedSeconds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watch_time_committed_seconds_total",
			Help:      "Seconds of watch time added to the persistent total.",
		}),
		discardedDeltas: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watch_time_discarded_deltas_total",
			Help:      "Tick deltas dropped before commit, by reason.",
		}, []string{"reason"}),
		commitFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watch_time_commit_failures_total",
			Help:      "Deltas lost because the commit failed.",
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coordinator_messages_total",
			Help:      "Messages handled by the coordinator, by type and result.",
		}, []string{"type", "result"}),
		pageEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "page_events_total",
			Help:      "Events reported by page shims, by type.",
		}, []string{"type"}),
		droppedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sse_dropped_events_total",
			Help:      "SSE events that could not be delivered, by reason.",
		}, []string{"reason"}),
		boundPlayers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bound_players",
			Help:      "Player observers currently bound to a video.",
		}),
		attachedPages: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "attached_pages",
			Help:      "Remote pages currently attached.",
		}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.committedSeconds,
		m.discardedDeltas,
		m.commitFailures,
		m.messages,
		m.pageEvents,
		m.droppedEvents,
		m.boundPlayers,
		m.attachedPages,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// RegisterGaugeFunc registers a gauge computed at scrape time.
func (m *Metrics) RegisterGaugeFunc(name, help string, fn func() float64) {
	m.Registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

// Committed records seconds added to the total.
func (m *Metrics) Committed(seconds float64) {
	m.committedSeconds.Add(seconds)
}

// Discarded records a tick delta dropped before commit.
func (m *Metrics) Discarded(reason string) {
	m.discardedDeltas.WithLabelValues(reason).Inc()
}

// CommitFailed records a delta lost to a failed commit.
func (m *Metrics) CommitFailed() {
	m.commitFailures.Inc()
}

// Message records one coordinator message.
func (m *Metrics) Message(msgType, result string) {
	m.messages.WithLabelValues(msgType, result).Inc()
}

// PageEvent records one event reported by a page shim.
func (m *Metrics) PageEvent(eventType string) {
	m.pageEvents.WithLabelValues(eventType).Inc()
}

// EventDropped records an undeliverable SSE event.
func (m *Metrics) EventDropped(reason string) {
	m.droppedEvents.WithLabelValues(reason).Inc()
}

// PlayerBound adjusts the bound player gauge by +1 or -1.
func (m *Metrics) PlayerBound(bound bool) {
	if bound {
		m.boundPlayers.Inc()
	} else {
		m.boundPlayers.Dec()
	}
}

// PageAttached adjusts the attached page gauge by +1 or -1.
func (m *Metrics) PageAttached(attached bool) {
	if attached {
		m.attachedPages.Inc()
	} else {
		m.attachedPages.Dec()
	}
}
