package ports

import "time"

// MetricsCollector defines the interface for collecting operational metrics
// from the pool and the aggregator. Implementations should integrate with
// observability platforms like Prometheus or custom monitoring solutions.
type MetricsCollector interface {
	// RecordLatency records the execution time of an operation.
	// The labels map provides additional context for the metric.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter increments a counter metric.
	// Useful for tracking events like worker executions, failures, and
	// aggregation outcomes.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge sets the current value of a gauge metric.
	// Useful for tracking values like active workers or learned weights.
	RecordGauge(metric string, value float64, labels map[string]string)

	// RecordHistogram records a value in a histogram.
	// Useful for tracking distributions like aggregate confidence.
	RecordHistogram(metric string, value float64, labels map[string]string)
}
