package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	conversionsTotal   *prometheus.CounterVec
	conversionFiles    *prometheus.HistogramVec
	conversionDuration *prometheus.HistogramVec
	downloadsTotal     *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "toolbox",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "toolbox",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "toolbox",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	conversionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "toolbox",
			Subsystem: "conversion",
			Name:      "batches_total",
			Help:      "Total conversion batches by tool and status.",
		},
		[]string{"service", "tool", "status"},
	)
	conversionFiles := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "toolbox",
			Subsystem: "conversion",
			Name:      "files_per_batch",
			Help:      "Distribution of files per successful conversion batch.",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21, 50},
		},
		[]string{"service", "tool"},
	)
	conversionDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "toolbox",
			Subsystem: "conversion",
			Name:      "duration_seconds",
			Help:      "Conversion batch duration in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"service", "tool"},
	)
	downloadsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "toolbox",
			Subsystem: "artifact",
			Name:      "downloads_total",
			Help:      "Total artifact downloads by status.",
		},
		[]string{"service", "status"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		conversionsTotal,
		conversionFiles,
		conversionDuration,
		downloadsTotal,
	)

	return &HTTPServerMetrics{
		registry:           registry,
		requestTotal:       requestTotal,
		requestDuration:    requestDuration,
		requestInFlight:    requestInFlight,
		conversionsTotal:   conversionsTotal,
		conversionFiles:    conversionFiles,
		conversionDuration: conversionDuration,
		downloadsTotal:     downloadsTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath collapses per-artifact paths so label cardinality stays bounded.
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/download/"):
		return "/api/download/{filename}"
	case strings.HasPrefix(path, "/api/tools/"):
		return "/api/tools/{id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordConversion(service, tool string, fileCount int, duration time.Duration, err error) {
	if tool == "" {
		tool = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.conversionsTotal.WithLabelValues(service, tool, status).Inc()
	m.conversionDuration.WithLabelValues(service, tool).Observe(duration.Seconds())
	if err == nil && fileCount > 0 {
		m.conversionFiles.WithLabelValues(service, tool).Observe(float64(fileCount))
	}
}

func (m *HTTPServerMetrics) RecordDownload(service, status string) {
	if status == "" {
		status = "unknown"
	}
	m.downloadsTotal.WithLabelValues(service, status).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}
