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

	searchRequestsTotal *prometheus.CounterVec
	searchResultCount   *prometheus.HistogramVec
	ingestAcceptedTotal *prometheus.CounterVec
	stageTriggersTotal  *prometheus.CounterVec
	reportExportsTotal  *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taxkb",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "taxkb",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "taxkb",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	searchRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taxkb",
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Total policy search requests.",
		},
		[]string{"service"},
	)
	searchResultCount := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "taxkb",
			Subsystem: "search",
			Name:      "result_count",
			Help:      "Distribution of result counts per search request.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21, 50},
		},
		[]string{"service"},
	)
	ingestAcceptedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taxkb",
			Subsystem: "ingest",
			Name:      "accepted_total",
			Help:      "Total raw policies accepted for processing.",
		},
		[]string{"service"},
	)
	stageTriggersTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taxkb",
			Subsystem: "pipeline",
			Name:      "stage_triggers_total",
			Help:      "Total pipeline stage runs requested over HTTP.",
		},
		[]string{"service", "stage"},
	)
	reportExportsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taxkb",
			Subsystem: "report",
			Name:      "exports_total",
			Help:      "Total quality report exports by format.",
		},
		[]string{"service", "format"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		searchRequestsTotal,
		searchResultCount,
		ingestAcceptedTotal,
		stageTriggersTotal,
		reportExportsTotal,
	)

	return &HTTPServerMetrics{
		registry:            registry,
		requestTotal:        requestTotal,
		requestDuration:     requestDuration,
		requestInFlight:     requestInFlight,
		searchRequestsTotal: searchRequestsTotal,
		searchResultCount:   searchResultCount,
		ingestAcceptedTotal: ingestAcceptedTotal,
		stageTriggersTotal:  stageTriggersTotal,
		reportExportsTotal:  reportExportsTotal,
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

// normalizePath collapses identifiers so label cardinality stays bounded.
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/policies/"):
		rest := strings.TrimPrefix(path, "/v1/policies/")
		switch {
		case strings.HasSuffix(rest, "/children"):
			return "/v1/policies/{policy_id}/children"
		case strings.HasSuffix(rest, "/chain"):
			return "/v1/policies/{policy_id}/chain"
		case strings.HasSuffix(rest, "/citations"):
			return "/v1/policies/{policy_id}/citations"
		default:
			return "/v1/policies/{policy_id}"
		}
	case strings.HasPrefix(path, "/v1/pipeline/jobs/"):
		return "/v1/pipeline/jobs/{job_id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordSearch(service string, resultCount int) {
	m.searchRequestsTotal.WithLabelValues(service).Inc()
	m.searchResultCount.WithLabelValues(service).Observe(float64(resultCount))
}

func (m *HTTPServerMetrics) RecordIngestAccepted(service string) {
	m.ingestAcceptedTotal.WithLabelValues(service).Inc()
}

func (m *HTTPServerMetrics) RecordStageTrigger(service, stage string) {
	if stage == "" {
		stage = "unknown"
	}
	m.stageTriggersTotal.WithLabelValues(service, stage).Inc()
}

func (m *HTTPServerMetrics) RecordReportExport(service, format string) {
	if format == "" {
		format = "json"
	}
	m.reportExportsTotal.WithLabelValues(service, format).Inc()
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

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
