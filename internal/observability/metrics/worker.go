package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	expireTotal   *prometheus.CounterVec
	expirePending prometheus.Gauge
	expireLag     *prometheus.HistogramVec

	sweepTotal    *prometheus.CounterVec
	sweepRemoved  *prometheus.CounterVec
	sweepDuration *prometheus.HistogramVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	expireTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "toolbox",
			Subsystem: "worker",
			Name:      "artifacts_expired_total",
			Help:      "Total expiry decisions by result (removed, already_gone, error).",
		},
		[]string{"service", "result"},
	)
	expirePending := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "toolbox",
			Subsystem: "worker",
			Name:      "artifacts_pending_expiry",
			Help:      "Number of artifacts waiting for their TTL to elapse.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	expireLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "toolbox",
			Subsystem: "worker",
			Name:      "expiry_lag_seconds",
			Help:      "Delay between artifact creation and its expiry decision.",
			Buckets:   []float64{1, 10, 60, 300, 600, 1200, 1800, 3600, 7200},
		},
		[]string{"service"},
	)

	sweepTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "toolbox",
			Subsystem: "worker",
			Name:      "sweeps_total",
			Help:      "Total ledger sweeps by result.",
		},
		[]string{"service", "result"},
	)
	sweepRemoved := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "toolbox",
			Subsystem: "worker",
			Name:      "swept_artifacts_total",
			Help:      "Total artifacts removed by ledger sweeps.",
		},
		[]string{"service"},
	)
	sweepDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "toolbox",
			Subsystem: "worker",
			Name:      "sweep_duration_seconds",
			Help:      "Ledger sweep duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)

	registry.MustRegister(expireTotal, expirePending, expireLag, sweepTotal, sweepRemoved, sweepDuration)

	return &WorkerMetrics{
		registry:      registry,
		expireTotal:   expireTotal,
		expirePending: expirePending,
		expireLag:     expireLag,
		sweepTotal:    sweepTotal,
		sweepRemoved:  sweepRemoved,
		sweepDuration: sweepDuration,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartExpiry() {
	m.expirePending.Inc()
}

func (m *WorkerMetrics) FinishExpiry(service string, removed bool, err error) {
	m.expirePending.Dec()

	result := "already_gone"
	switch {
	case err != nil:
		result = "error"
	case removed:
		result = "removed"
	}
	m.expireTotal.WithLabelValues(service, result).Inc()
}

func (m *WorkerMetrics) ObserveExpiryLag(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.expireLag.WithLabelValues(service).Observe(lag.Seconds())
}

func (m *WorkerMetrics) RecordSweep(service string, removed int, duration time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.sweepTotal.WithLabelValues(service, result).Inc()
	if removed > 0 {
		m.sweepRemoved.WithLabelValues(service).Add(float64(removed))
	}
	m.sweepDuration.WithLabelValues(service).Observe(duration.Seconds())
}
