package core

import "github.com/prometheus/client_golang/prometheus"

// Metrics is the Prometheus domain-stack surface named in
// SPEC_FULL.md's DOMAIN STACK section: it replaces the out-of-scope
// statistics-file collector with a concrete, in-process registry fed
// directly from the worker loop, the GVT managers, and fossil
// collection. Nothing in core/ requires Metrics to be non-nil-safe
// beyond NopMetrics below; a caller that does not want Prometheus
// wiring gets it for free.
type Metrics struct {
	EventsProcessed  prometheus.Counter
	StragglersSeen   prometheus.Counter
	Rollbacks        prometheus.Counter
	AntiMessagesSent prometheus.Counter
	GVT              prometheus.Gauge
	LadderDepth      prometheus.Gauge
	LadderSize       prometheus.Gauge
	FossilRuns       prometheus.Counter
}

// NewMetrics registers a fresh Metrics set on reg. Passing
// prometheus.NewRegistry() keeps metrics isolated per Simulation,
// which matters for tests that spin up many simulations in one
// process.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "timewarp_events_processed_total",
			Help: "Events committed by worker threads across all LPs.",
		}),
		StragglersSeen: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "timewarp_stragglers_detected_total",
			Help: "Straggler events detected across all LPs.",
		}),
		Rollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "timewarp_rollbacks_total",
			Help: "Rollbacks executed across all LPs.",
		}),
		AntiMessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "timewarp_anti_messages_total",
			Help: "Anti-messages dispatched by rollback.",
		}),
		GVT: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "timewarp_gvt",
			Help: "Current Global Virtual Time.",
		}),
		LadderDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "timewarp_ladder_rung_depth",
			Help: "Number of active rungs in the schedule ladder.",
		}),
		LadderSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "timewarp_ladder_size",
			Help: "Total events resident in the schedule ladder.",
		}),
		FossilRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "timewarp_fossil_collections_total",
			Help: "Fossil collection passes completed.",
		}),
	}
	reg.MustRegister(
		m.EventsProcessed, m.StragglersSeen, m.Rollbacks, m.AntiMessagesSent,
		m.GVT, m.LadderDepth, m.LadderSize, m.FossilRuns,
	)
	return m
}

// NopMetrics returns a Metrics whose every field is a real collector
// registered only on a fresh, private registry, safe to use standalone
// in tests that do not care about Prometheus at all.
func NopMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
