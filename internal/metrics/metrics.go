package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the watcher's Prometheus collectors. Collectors live on a
// private registry so multiple watcher instances never collide.
type Metrics struct {
	registry *prometheus.Registry

	Ticks          prometheus.Counter
	SampleFailures prometheus.Counter
	EventsEmitted  *prometheus.CounterVec
	EmitFailures   prometheus.Counter
	EmitDuration   prometheus.Histogram
	LastEventTime  prometheus.Gauge
	DebounceWindow prometheus.Gauge
}

// New creates the collector set on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		Ticks: factory.NewCounter(prometheus.CounterOpts{
			Name: "appwatch_ticks_total",
			Help: "Poll ticks executed, including skipped ones",
		}),
		SampleFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "appwatch_sample_failures_total",
			Help: "Ticks skipped because the backend returned no sample",
		}),
		EventsEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "appwatch_events_emitted_total",
			Help: "App-switch events delivered to the collector",
		}, []string{"reason"}),
		EmitFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "appwatch_emit_failures_total",
			Help: "Emission attempts that failed and were dropped",
		}),
		EmitDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "appwatch_emit_duration_seconds",
			Help:    "Latency of collector POST requests",
			Buckets: prometheus.DefBuckets,
		}),
		LastEventTime: factory.NewGauge(prometheus.GaugeOpts{
			Name: "appwatch_last_event_timestamp_seconds",
			Help: "Unix time of the last successfully delivered event",
		}),
		DebounceWindow: factory.NewGauge(prometheus.GaugeOpts{
			Name: "appwatch_debounce_window_seconds",
			Help: "Configured debounce window",
		}),
	}
}

// Registry exposes the private registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
