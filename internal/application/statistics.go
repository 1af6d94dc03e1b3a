package application

import (
	"github.com/sony/gobreaker"
)

// WorkerStatus describes a worker's current standing in the pool.
type WorkerStatus string

// Possible worker standings reported by Statistics.
const (
	// WorkerStatusActive means the worker is enabled and dispatchable.
	WorkerStatusActive WorkerStatus = "active"

	// WorkerStatusDisabled means the worker was explicitly disabled.
	WorkerStatusDisabled WorkerStatus = "disabled"

	// WorkerStatusQuarantined means the worker's breaker is open after
	// repeated failures; it is excluded from selection until cooldown.
	WorkerStatusQuarantined WorkerStatus = "quarantined"
)

// WorkerStatistics summarizes one worker's execution history.
type WorkerStatistics struct {
	// WorkerID and WorkerType identify the worker.
	WorkerID   string `json:"worker_id"`
	WorkerType string `json:"worker_type"`

	// Status is the worker's current standing.
	Status WorkerStatus `json:"status"`

	// Executions counts every dispatch, Failures the non-success ones.
	Executions int64 `json:"executions"`
	Failures   int64 `json:"failures"`

	// FailureRate is Failures / max(Executions, 1).
	FailureRate float64 `json:"failure_rate"`

	// MeanLatencyMs is the average execution time across all dispatches.
	MeanLatencyMs float64 `json:"mean_latency_ms"`

	// RetryAttempts echoes the advisory retry hint from the worker's
	// configuration; the pool itself never retries.
	RetryAttempts int `json:"retry_attempts"`
}

// PoolStatistics aggregates execution history across the whole pool.
type PoolStatistics struct {
	// TotalWorkers counts all registrations, ActiveWorkers the currently
	// dispatchable subset.
	TotalWorkers  int `json:"total_workers"`
	ActiveWorkers int `json:"active_workers"`

	// TotalExecutions and TotalFailures sum the per-worker counters.
	TotalExecutions int64 `json:"total_executions"`
	TotalFailures   int64 `json:"total_failures"`

	// OverallFailureRate is TotalFailures / max(TotalExecutions, 1).
	OverallFailureRate float64 `json:"overall_failure_rate"`

	// Workers lists per-worker statistics in registration order.
	Workers []WorkerStatistics `json:"workers"`
}

// Statistics returns a read-only aggregation of the pool's execution
// history. It has no side effects on pool state.
func (p *WorkerPool) Statistics() PoolStatistics {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stats := PoolStatistics{
		TotalWorkers: len(p.order),
		Workers:      make([]WorkerStatistics, 0, len(p.order)),
	}

	for _, id := range p.order {
		reg := p.entries[id]

		status := WorkerStatusActive
		switch {
		case !reg.config.Enabled:
			status = WorkerStatusDisabled
		case reg.breaker != nil && reg.breaker.State() == gobreaker.StateOpen:
			status = WorkerStatusQuarantined
		default:
			stats.ActiveWorkers++
		}

		executions := reg.executions
		divisor := executions
		if divisor == 0 {
			divisor = 1
		}

		stats.Workers = append(stats.Workers, WorkerStatistics{
			WorkerID:      id,
			WorkerType:    reg.config.WorkerType,
			Status:        status,
			Executions:    executions,
			Failures:      reg.failures,
			FailureRate:   float64(reg.failures) / float64(divisor),
			MeanLatencyMs: float64(reg.totalLatencyMs) / float64(divisor),
			RetryAttempts: reg.config.RetryAttempts,
		})
		stats.TotalExecutions += executions
		stats.TotalFailures += reg.failures
	}

	divisor := stats.TotalExecutions
	if divisor == 0 {
		divisor = 1
	}
	stats.OverallFailureRate = float64(stats.TotalFailures) / float64(divisor)
	return stats
}
