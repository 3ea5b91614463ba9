// Package metrics constructs a Prometheus registry carrying the named
// counters and gauges from spec.md §6. It is built once by the caller
// (cmd/coordinator) and passed to every collaborator explicitly — never a
// package-level default registry, per spec.md §9's anti-singleton note.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds every metric MarketPulse-X emits.
type Registry struct {
	reg *prometheus.Registry

	IngestLatencyMs         *prometheus.HistogramVec
	IngestLastTickTimestamp *prometheus.GaugeVec
	RuleEvalMs              prometheus.Histogram
	SignalsTotal            *prometheus.CounterVec
	OrderIntentsTotal       *prometheus.CounterVec
	AlertFailuresTotal      prometheus.Counter
	RequestsTotal           *prometheus.CounterVec
	Health                  prometheus.Gauge
}

// New builds a Registry with every metric registered against a fresh
// prometheus.Registry (not prometheus.DefaultRegisterer).
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		IngestLatencyMs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ingest_latency_ms",
			Help:    "Ingestion Pipeline per-cycle poll latency in milliseconds.",
			Buckets: prometheus.ExponentialBuckets(5, 2, 12),
		}, []string{"source"}),
		IngestLastTickTimestamp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ingest_last_tick_timestamp",
			Help: "Unix timestamp of the most recently ingested tick, per source.",
		}, []string{"source"}),
		RuleEvalMs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rule_eval_ms",
			Help:    "Rule Engine per-cycle evaluation latency in milliseconds.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signals_total",
			Help: "Signals emitted, by rule.",
		}, []string{"rule"}),
		OrderIntentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "order_intents_total",
			Help: "Order intents created, by terminal/intermediate status.",
		}, []string{"status"}),
		AlertFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alert_failures_total",
			Help: "Alert transport deliveries that failed.",
		}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "requests_total",
			Help: "Outbound venue requests, by operation and outcome.",
		}, []string{"op", "outcome"}),
		Health: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "health",
			Help: "1 when the process considers itself healthy, 0 otherwise.",
		}),
	}

	reg.MustRegister(
		r.IngestLatencyMs, r.IngestLastTickTimestamp, r.RuleEvalMs, r.SignalsTotal,
		r.OrderIntentsTotal, r.AlertFailuresTotal, r.RequestsTotal, r.Health,
	)
	r.Health.Set(1)
	return r
}

// Gatherer exposes the underlying prometheus.Gatherer for an HTTP handler.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}
