// Package metrics provides Prometheus metrics for the workout store.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	perrors "github.com/p-blackswan/liftlog/internal/errors"
)

// Metrics holds all Prometheus metrics for the process. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	StoreOpsTotal     *prometheus.CounterVec
	StoreOpDuration   *prometheus.HistogramVec
	MirrorStepsTotal  *prometheus.CounterVec
	CelebrationsTotal *prometheus.CounterVec
	JobsTotal         *prometheus.CounterVec
	JobDuration       *prometheus.HistogramVec
	SessionAnomalies  prometheus.Gauge

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		StoreOpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "liftlog_store_operations_total",
				Help: "Document store operations by operation and result.",
			},
			[]string{"op", "result"},
		),
		StoreOpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "liftlog_store_operation_duration_seconds",
				Help:    "Document store call latency by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		MirrorStepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "liftlog_mirror_steps_total",
				Help: "Local mirror git steps by step and result.",
			},
			[]string{"step", "result"},
		),
		CelebrationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "liftlog_pr_celebrations_total",
				Help: "Personal records detected by type.",
			},
			[]string{"type"},
		),
		JobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "liftlog_jobs_total",
				Help: "Jobs run by name and result.",
			},
			[]string{"job", "result"},
		),
		JobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "liftlog_job_duration_seconds",
				Help:    "Job duration by name.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"job"},
		),
		SessionAnomalies: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "liftlog_session_anomalies",
				Help: "Session branches left in an inconsistent state at last inspection.",
			},
		),
		registry: reg,
	}

	reg.MustRegister(m.StoreOpsTotal)
	reg.MustRegister(m.StoreOpDuration)
	reg.MustRegister(m.MirrorStepsTotal)
	reg.MustRegister(m.CelebrationsTotal)
	reg.MustRegister(m.JobsTotal)
	reg.MustRegister(m.JobDuration)
	reg.MustRegister(m.SessionAnomalies)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Result maps an error onto a low-cardinality label value.
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, perrors.ErrConflict):
		return "conflict"
	case errors.Is(err, perrors.ErrNotFound):
		return "not_found"
	case errors.Is(err, perrors.ErrInconsistentState):
		return "inconsistent"
	case errors.Is(err, perrors.ErrUnavailable), errors.Is(err, perrors.ErrRateLimit):
		return "unavailable"
	default:
		return "error"
	}
}

// ObserveStore records one document store call.
func (m *Metrics) ObserveStore(op string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.StoreOpsTotal.WithLabelValues(op, Result(err)).Inc()
	m.StoreOpDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

// RecordMirrorStep counts a git step run by the local mirror.
func (m *Metrics) RecordMirrorStep(step string, err error) {
	if m == nil {
		return
	}
	m.MirrorStepsTotal.WithLabelValues(step, Result(err)).Inc()
}

// RecordCelebration counts a detected personal record.
func (m *Metrics) RecordCelebration(kind string) {
	if m == nil {
		return
	}
	m.CelebrationsTotal.WithLabelValues(kind).Inc()
}

// ObserveJob records a finished job.
func (m *Metrics) ObserveJob(job string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.JobsTotal.WithLabelValues(job, Result(err)).Inc()
	m.JobDuration.WithLabelValues(job).Observe(time.Since(started).Seconds())
}

// SetSessionAnomalies records the anomaly count from the last inspection.
func (m *Metrics) SetSessionAnomalies(n int) {
	if m == nil {
		return
	}
	m.SessionAnomalies.Set(float64(n))
}
