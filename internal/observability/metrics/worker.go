package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	processTotal    *prometheus.CounterVec
	processDuration *prometheus.HistogramVec
	processInFlight prometheus.Gauge
	stageRunsTotal  *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	queueLag        *prometheus.HistogramVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	processTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taxkb",
			Subsystem: "worker",
			Name:      "policy_process_total",
			Help:      "Total processed raw policies by status.",
		},
		[]string{"service", "status"},
	)
	processDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "taxkb",
			Subsystem: "worker",
			Name:      "policy_process_duration_seconds",
			Help:      "Raw policy processing duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	processInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "taxkb",
			Subsystem: "worker",
			Name:      "policy_process_in_flight",
			Help:      "Number of in-flight policy processing tasks.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	stageRunsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taxkb",
			Subsystem: "worker",
			Name:      "stage_runs_total",
			Help:      "Total pipeline stage runs by stage and status.",
		},
		[]string{"service", "stage", "status"},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "taxkb",
			Subsystem: "worker",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"service", "stage"},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "taxkb",
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between crawl time and processing start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)

	registry.MustRegister(processTotal, processDuration, processInFlight, stageRunsTotal, stageDuration, queueLag)

	return &WorkerMetrics{
		registry:        registry,
		processTotal:    processTotal,
		processDuration: processDuration,
		processInFlight: processInFlight,
		stageRunsTotal:  stageRunsTotal,
		stageDuration:   stageDuration,
		queueLag:        queueLag,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartPolicy() {
	m.processInFlight.Inc()
}

func (m *WorkerMetrics) FinishPolicy(service string, duration time.Duration, err error) {
	m.processInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.processTotal.WithLabelValues(service, status).Inc()
	m.processDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) FinishStage(service, stage string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.stageRunsTotal.WithLabelValues(service, stage, status).Inc()
	m.stageDuration.WithLabelValues(service, stage).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(service).Observe(lag.Seconds())
}
