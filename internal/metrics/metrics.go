// Package metrics exposes gate and spend counters for Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors recorded by the services. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	gateDecisions   *prometheus.CounterVec
	spendMicros     *prometheus.CounterVec
	emergencyStops  prometheus.Counter
	alerts          *prometheus.CounterVec
	aiDuration      *prometheus.HistogramVec
	aiErrors        *prometheus.CounterVec
	queryBudgetOps  prometheus.Histogram
	failOpen        *prometheus.CounterVec
	creditMutations *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		gateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crystalgate_gate_decisions_total",
			Help: "Gate decisions by gate and outcome.",
		}, []string{"gate", "outcome"}),
		spendMicros: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crystalgate_estimated_spend_micros_total",
			Help: "Estimated spend committed by tier, in micro-units.",
		}, []string{"tier"}),
		emergencyStops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crystalgate_emergency_stops_total",
			Help: "Requests refused by the global emergency ceiling.",
		}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crystalgate_spend_alerts_total",
			Help: "Spend alerts published by kind.",
		}, []string{"kind"}),
		aiDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crystalgate_ai_request_duration_seconds",
			Help:    "AI provider call duration in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
		}, []string{"operation"}),
		aiErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crystalgate_ai_errors_total",
			Help: "AI provider call failures.",
		}, []string{"operation"}),
		queryBudgetOps: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "crystalgate_request_store_operations",
			Help:    "Store operations performed per request.",
			Buckets: prometheus.LinearBuckets(1, 2, 8),
		}),
		failOpen: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crystalgate_fail_open_total",
			Help: "Requests allowed because a gate store was unavailable.",
		}, []string{"gate"}),
		creditMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crystalgate_credit_mutations_total",
			Help: "Credit ledger mutations by type.",
		}, []string{"type"}),
	}
	reg.MustRegister(
		m.gateDecisions, m.spendMicros, m.emergencyStops, m.alerts, m.aiDuration,
		m.aiErrors, m.queryBudgetOps, m.failOpen, m.creditMutations,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Gate(gate string, allowed bool) {
	if m == nil {
		return
	}
	outcome := "allowed"
	if !allowed {
		outcome = "rejected"
	}
	m.gateDecisions.WithLabelValues(gate, outcome).Inc()
}

func (m *Metrics) Spend(tier string, micros int64) {
	if m == nil {
		return
	}
	m.spendMicros.WithLabelValues(tier).Add(float64(micros))
}

func (m *Metrics) EmergencyStop() {
	if m == nil {
		return
	}
	m.emergencyStops.Inc()
}

func (m *Metrics) Alert(kind string) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(kind).Inc()
}

func (m *Metrics) AICall(operation string, seconds float64, err error) {
	if m == nil {
		return
	}
	m.aiDuration.WithLabelValues(operation).Observe(seconds)
	if err != nil {
		m.aiErrors.WithLabelValues(operation).Inc()
	}
}

func (m *Metrics) StoreOps(n int) {
	if m == nil {
		return
	}
	m.queryBudgetOps.Observe(float64(n))
}

func (m *Metrics) FailOpen(gate string) {
	if m == nil {
		return
	}
	m.failOpen.WithLabelValues(gate).Inc()
}

func (m *Metrics) Credit(typ string, amount int64) {
	if m == nil {
		return
	}
	m.creditMutations.WithLabelValues(typ).Add(float64(amount))
}

// Server returns the metrics HTTP server listening on port.
func (m *Metrics) Server(port string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return &http.Server{Addr: ":" + port, Handler: mux}
}
