// Package metrics holds the Prometheus instruments of the sync engine.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sync"

// Job outcomes used as the "outcome" label.
const (
	OutcomeCompleted = "completed"
	OutcomeRetried   = "retried"
	OutcomeFailed    = "failed"
)

type Metrics struct {
	jobsProcessed  *prometheus.CounterVec
	claimLost      prometheus.Counter
	leaseLost      prometheus.Counter
	cyclesSkipped  prometheus.Counter
	jobsReclaimed  prometheus.Counter
	cycleDuration  prometheus.Histogram
	batchesCreated *prometheus.CounterVec
	recordsLoaded  *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers the instruments on a fresh registry.
func New() (*Metrics, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		jobsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_processed_total",
			Help:      "Outbox jobs processed, by job type and outcome.",
		}, []string{"type", "outcome"}),
		claimLost: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_claim_lost_total",
			Help:      "Claims lost to another worker.",
		}),
		leaseLost: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_lease_lost_total",
			Help:      "Job outcomes dropped because the claim was reclaimed first.",
		}),
		cyclesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_cycles_skipped_total",
			Help:      "Poll ticks skipped because the previous cycle was still running.",
		}),
		jobsReclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_reclaimed_total",
			Help:      "PROCESSING jobs reclaimed after their lease expired.",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_cycle_duration_seconds",
			Help:      "Duration of one poll cycle.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		batchesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_created_total",
			Help:      "Batches created by the coordinator, by source.",
		}, []string{"source"}),
		recordsLoaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_loaded_total",
			Help:      "Normalized records persisted, by source and outcome.",
		}, []string{"source", "outcome"}),
		gatherer: reg,
	}

	for _, c := range []prometheus.Collector{
		m.jobsProcessed, m.claimLost, m.leaseLost, m.cyclesSkipped, m.jobsReclaimed,
		m.cycleDuration, m.batchesCreated, m.recordsLoaded,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m == nil {
		return prometheus.NewRegistry()
	}
	return m.gatherer
}

func (m *Metrics) JobProcessed(jobType, outcome string) {
	if m == nil {
		return
	}
	m.jobsProcessed.WithLabelValues(jobType, outcome).Inc()
}

func (m *Metrics) ClaimLost() {
	if m == nil {
		return
	}
	m.claimLost.Inc()
}

func (m *Metrics) LeaseLost() {
	if m == nil {
		return
	}
	m.leaseLost.Inc()
}

func (m *Metrics) CycleSkipped() {
	if m == nil {
		return
	}
	m.cyclesSkipped.Inc()
}

func (m *Metrics) JobsReclaimed(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.jobsReclaimed.Add(float64(n))
}

func (m *Metrics) ObserveCycle(d time.Duration) {
	if m == nil {
		return
	}
	m.cycleDuration.Observe(d.Seconds())
}

func (m *Metrics) BatchCreated(sourceCode string) {
	if m == nil {
		return
	}
	m.batchesCreated.WithLabelValues(sourceCode).Inc()
}

func (m *Metrics) RecordsLoaded(sourceCode string, saved, failed int) {
	if m == nil {
		return
	}
	if saved > 0 {
		m.recordsLoaded.WithLabelValues(sourceCode, "saved").Add(float64(saved))
	}
	if failed > 0 {
		m.recordsLoaded.WithLabelValues(sourceCode, "failed").Add(float64(failed))
	}
}
