// Package metrics wires the store's commit/conflict/durability events
// into Prometheus counters and gauges, served over HTTP via promhttp.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pathkvs/store"
)

// Metrics implements store.Metrics on top of a private Prometheus
// registry — a library should never force its events onto the global
// default registry.
type Metrics struct {
	registry *prometheus.Registry

	commitsOK       prometheus.Counter
	commitsConflict prometheus.Counter
	casRetries      prometheus.Counter
	logBytesWritten prometheus.Counter

	Generation         prometheus.Gauge
	ActiveTransactions prometheus.Gauge
}

// New creates a Metrics instance registered against its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		commitsOK: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "pathkvs_commits_total",
			Help:        "Total number of transaction commits.",
			ConstLabels: prometheus.Labels{"result": "ok"},
		}),
		commitsConflict: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "pathkvs_commits_total",
			Help:        "Total number of transaction commits.",
			ConstLabels: prometheus.Labels{"result": "conflict"},
		}),
		casRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pathkvs_cas_retries_total",
			Help: "Total number of CAS-install retries due to contention on the master pointer.",
		}),
		logBytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pathkvs_log_bytes_written_total",
			Help: "Total bytes appended to the durability log.",
		}),
		Generation: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pathkvs_chain_generation",
			Help: "Generation number of the current tip commit.",
		}),
		ActiveTransactions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pathkvs_active_transactions",
			Help: "Number of transactions currently begun but not yet committed or rolled back.",
		}),
	}

	reg.MustRegister(
		m.commitsOK,
		m.commitsConflict,
		m.casRetries,
		m.logBytesWritten,
		m.Generation,
		m.ActiveTransactions,
	)
	return m
}

// ObserveCommit implements store.Metrics.
func (m *Metrics) ObserveCommit(ok bool) {
	if ok {
		m.commitsOK.Inc()
		return
	}
	m.commitsConflict.Inc()
}

// ObserveCASRetry implements store.Metrics.
func (m *Metrics) ObserveCASRetry() {
	m.casRetries.Inc()
}

// ObserveLogBytes implements store.Metrics.
func (m *Metrics) ObserveLogBytes(n int) {
	m.logBytesWritten.Add(float64(n))
}

// SetStats moves the chain-generation and active-transaction gauges to
// stats' current values. It is not part of store.Metrics — the core
// engine has no polling loop of its own — so the caller is responsible
// for invoking it periodically against Database.Stats.
func (m *Metrics) SetStats(stats store.DatabaseStats) {
	m.Generation.Set(float64(stats.Generation))
	m.ActiveTransactions.Set(float64(stats.ActiveTransactions))
}

// Handler returns the HTTP handler serving this Metrics' registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
