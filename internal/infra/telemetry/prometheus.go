package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/domain"
)

type PrometheusMetrics struct {
	callDuration     *prometheus.HistogramVec
	callRetries      *prometheus.CounterVec
	stageDuration    *prometheus.HistogramVec
	jobsTotal        *prometheus.CounterVec
	serverHealth     *prometheus.GaugeVec
	connectedServers prometheus.Gauge
}

func NewPrometheusMetrics(registerer prometheus.Registerer) *PrometheusMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &PrometheusMetrics{
		callDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "resurrector_capability_call_duration_seconds",
				Help:    "Duration of capability server calls in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"server", "method", "status"},
		),
		callRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resurrector_capability_call_retries_total",
				Help: "Total number of retried capability calls",
			},
			[]string{"server"},
		),
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "resurrector_pipeline_stage_duration_seconds",
				Help:    "Duration of pipeline stages in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"stage", "status"},
		),
		jobsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resurrector_jobs_total",
				Help: "Total number of jobs by final or transitioned status",
			},
			[]string{"status"},
		),
		serverHealth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "resurrector_server_healthy",
				Help: "Whether a capability server is healthy (1) or not (0)",
			},
			[]string{"server"},
		),
		connectedServers: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "resurrector_connected_servers",
				Help: "Current number of connected capability servers",
			},
		),
	}
}

func (p *PrometheusMetrics) ObserveCall(server, method string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	p.callDuration.WithLabelValues(server, method, status).Observe(duration.Seconds())
}

func (p *PrometheusMetrics) ObserveCallRetry(server string) {
	p.callRetries.WithLabelValues(server).Inc()
}

func (p *PrometheusMetrics) ObserveStage(stage domain.Stage, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	p.stageDuration.WithLabelValues(string(stage), status).Observe(duration.Seconds())
}

func (p *PrometheusMetrics) ObserveJob(status domain.JobStatus) {
	p.jobsTotal.WithLabelValues(string(status)).Inc()
}

func (p *PrometheusMetrics) SetServerHealth(server string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	p.serverHealth.WithLabelValues(server).Set(value)
}

func (p *PrometheusMetrics) SetConnectedServers(count int) {
	p.connectedServers.Set(float64(count))
}

var _ domain.Metrics = (*PrometheusMetrics)(nil)
