package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PromRecorder exposes reconciliation telemetry as Prometheus metrics.
type PromRecorder struct {
	deploymentTotal     *prometheus.CounterVec
	deploymentDuration  prometheus.Histogram
	activeContainers    prometheus.Gauge
	gitOperations       *prometheus.CounterVec
	gitOperationSeconds prometheus.Histogram
	healthChecks        *prometheus.CounterVec
	healthCheckSeconds  prometheus.Histogram
}

// NewPromRecorder registers the metric set on the default registry. Call at
// most once per process.
func NewPromRecorder() *PromRecorder {
	return &PromRecorder{
		deploymentTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "quadops_deployment_total",
			Help: "Total number of deployments",
		}, []string{"app", "status"}),
		deploymentDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "quadops_deployment_duration_seconds",
			Help:    "Duration of deployments in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		}),
		activeContainers: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "quadops_active_containers",
			Help: "Number of active containers",
		}),
		gitOperations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "quadops_git_operations_total",
			Help: "Total number of git operations",
		}, []string{"operation", "status"}),
		gitOperationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "quadops_git_operation_duration_seconds",
			Help:    "Duration of git operations in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
		}),
		healthChecks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "quadops_health_checks_total",
			Help: "Total number of health checks",
		}, []string{"container", "status"}),
		healthCheckSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "quadops_health_check_duration_seconds",
			Help:    "Duration of health checks in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		}),
	}
}

func (p *PromRecorder) RecordDeployment(app, status string, duration time.Duration) {
	p.deploymentTotal.WithLabelValues(app, status).Inc()
	p.deploymentDuration.Observe(duration.Seconds())
}

func (p *PromRecorder) RecordGitOperation(operation, status string, duration time.Duration) {
	p.gitOperations.WithLabelValues(operation, status).Inc()
	p.gitOperationSeconds.Observe(duration.Seconds())
}

func (p *PromRecorder) RecordHealthCheck(container, status string, duration time.Duration) {
	p.healthChecks.WithLabelValues(container, status).Inc()
	p.healthCheckSeconds.Observe(duration.Seconds())
}

func (p *PromRecorder) SetActiveContainers(count int) {
	p.activeContainers.Set(float64(count))
}
