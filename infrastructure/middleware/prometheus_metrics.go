// Package middleware provides cross-cutting concerns for the ensemble engine.
package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ahrav/go-ensemble/internal/ports"
)

// PrometheusMetrics implements the MetricsCollector interface using Prometheus.
// It provides real-time monitoring of worker execution, aggregation outcomes,
// and learned weights for the ensemble engine.
type PrometheusMetrics struct {
	workerExecutions      *prometheus.CounterVec
	aggregations          *prometheus.CounterVec
	operationCounter      *prometheus.CounterVec
	executionLatency      *prometheus.HistogramVec
	aggregationConfidence *prometheus.HistogramVec
	systemGauges          *prometheus.GaugeVec
}

// NewPrometheusMetrics creates a PrometheusMetrics instance and registers all
// metrics in the global Prometheus registry. Constructing it twice in one
// process panics on duplicate registration; use NewPrometheusMetricsWith for
// isolated registries in tests.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWith(prometheus.DefaultRegisterer)
}

// NewPrometheusMetricsWith creates a PrometheusMetrics instance registered
// against the given registerer.
func NewPrometheusMetricsWith(reg prometheus.Registerer) *PrometheusMetrics {
	factory := promauto.With(reg)
	return &PrometheusMetrics{
		workerExecutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ensemble_worker_executions_total",
				Help: "Total worker executions partitioned by worker and terminal status.",
			},
			[]string{"worker", "status"},
		),
		aggregations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ensemble_aggregations_total",
				Help: "Total aggregation attempts partitioned by strategy and outcome.",
			},
			[]string{"strategy", "status"},
		),
		operationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ensemble_operations_total",
				Help: "Total miscellaneous ensemble operations.",
			},
			[]string{"operation", "status"},
		),
		executionLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ensemble_execution_duration_seconds",
				Help:    "Execution time of pool and worker operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		aggregationConfidence: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ensemble_aggregation_confidence",
				Help:    "Distribution of aggregate confidence scores.",
				Buckets: prometheus.LinearBuckets(0, 0.1, 11),
			},
			[]string{"strategy"},
		),
		systemGauges: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ensemble_system_state",
				Help: "Current system state values such as learned weights and active workers.",
			},
			[]string{"metric", "label"},
		),
	}
}

// RecordLatency implements the MetricsCollector interface by recording
// execution latency in a Prometheus histogram.
func (pm *PrometheusMetrics) RecordLatency(
	operation string,
	duration time.Duration,
	labels map[string]string,
) {
	pm.executionLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCounter implements the MetricsCollector interface by incrementing
// Prometheus counters.
func (pm *PrometheusMetrics) RecordCounter(
	metric string, value float64, labels map[string]string,
) {
	switch metric {
	case "worker_executions_total":
		pm.workerExecutions.WithLabelValues(
			labels["worker"],
			labels["status"],
		).Add(value)
	case "aggregations_total":
		pm.aggregations.WithLabelValues(
			labels["strategy"],
			labels["status"],
		).Add(value)
	default:
		status, ok := labels["status"]
		if !ok {
			status = "ok"
		}
		pm.operationCounter.WithLabelValues(metric, status).Add(value)
	}
}

// RecordGauge implements the MetricsCollector interface by setting
// Prometheus gauge values. The first label value found among worker,
// strategy, and metric keys distinguishes series under the same metric name.
func (pm *PrometheusMetrics) RecordGauge(
	metric string, value float64, labels map[string]string,
) {
	label := labels["worker"]
	if label == "" {
		label = labels["strategy"]
	}
	if label == "" {
		label = labels["metric"]
	}
	pm.systemGauges.WithLabelValues(metric, label).Set(value)
}

// RecordHistogram implements the MetricsCollector interface by recording
// values in a Prometheus histogram.
func (pm *PrometheusMetrics) RecordHistogram(
	metric string, value float64, labels map[string]string,
) {
	switch metric {
	case "aggregation_confidence":
		pm.aggregationConfidence.WithLabelValues(labels["strategy"]).Observe(value)
	default:
		pm.executionLatency.WithLabelValues(metric).Observe(value)
	}
}

// Compile-time verification that PrometheusMetrics implements MetricsCollector.
var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)
