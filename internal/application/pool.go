// Package application orchestrates the ensemble: the worker pool fans one
// input out to many workers concurrently, and the aggregator combines their
// results under learned weights. Strategy and learner implementations live
// in the infrastructure layer behind the ports interfaces.
package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-ensemble/internal/domain"
	"github.com/ahrav/go-ensemble/internal/ports"
)

// Package-level validator instance for configuration validation.
var validate = validator.New()

// DefaultMaxConcurrency caps concurrent worker executions when the pool
// configuration does not set a limit.
const DefaultMaxConcurrency = 16

// DefaultTraceCacheSize bounds the in-memory audit cache of recent batches.
const DefaultTraceCacheSize = 128

// PoolConfig defines the configuration parameters for a WorkerPool.
type PoolConfig struct {
	// MaxConcurrency caps the number of workers executing simultaneously
	// within one batch. Zero selects DefaultMaxConcurrency.
	MaxConcurrency int `yaml:"max_concurrency" json:"max_concurrency" validate:"omitempty,min=1,max=1024"`

	// TraceCacheSize bounds the number of recent batch results retained
	// for audit lookup by trace ID. Zero selects DefaultTraceCacheSize.
	TraceCacheSize int `yaml:"trace_cache_size" json:"trace_cache_size" validate:"omitempty,min=1,max=65536"`

	// Quarantine configures the per-worker circuit breakers that remove
	// persistently failing workers from selection.
	Quarantine QuarantineConfig `yaml:"quarantine" json:"quarantine"`
}

// QuarantineConfig tunes the per-worker circuit breaker. A worker whose
// breaker is open is quarantined: it stays registered but is not dispatched
// until the cooldown elapses and a probe succeeds.
type QuarantineConfig struct {
	// Enabled turns quarantine on. When false workers are never
	// quarantined regardless of failure rate.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// MinRequests is the minimum number of executions before the failure
	// ratio is consulted.
	MinRequests uint32 `yaml:"min_requests" json:"min_requests" validate:"omitempty,min=1"`

	// FailureRatio is the failure fraction at which a worker trips into
	// quarantine.
	FailureRatio float64 `yaml:"failure_ratio" json:"failure_ratio" validate:"min=0,max=1"`

	// CooldownSeconds is how long a quarantined worker stays excluded
	// before a probe execution is allowed.
	CooldownSeconds float64 `yaml:"cooldown_seconds" json:"cooldown_seconds" validate:"omitempty,gt=0"`
}

// DefaultPoolConfig returns a PoolConfig with bounded concurrency and
// quarantine tripping at a 60% failure ratio over at least five executions.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxConcurrency: DefaultMaxConcurrency,
		TraceCacheSize: DefaultTraceCacheSize,
		Quarantine: QuarantineConfig{
			Enabled:         true,
			MinRequests:     5,
			FailureRatio:    0.6,
			CooldownSeconds: 30,
		},
	}
}

// registration binds a worker to its configuration and runtime bookkeeping.
type registration struct {
	worker  ports.Worker
	config  domain.WorkerConfig
	breaker *gobreaker.CircuitBreaker

	// execution counters, guarded by the pool's mutex.
	executions     int64
	failures       int64
	totalLatencyMs int64
}

// WorkerPool registers workers and fans one input out to all of them
// concurrently, fanning back in a result list in stable registration order.
// A failure, panic, or timeout in one worker is converted into a failed
// WorkerResult rather than aborting the batch; this isolation is the pool's
// core reliability guarantee.
//
// The pool never retries a worker on its own: WorkerConfig.RetryAttempts is
// advisory metadata for external callers.
type WorkerPool struct {
	config PoolConfig

	logger  *zap.Logger
	tracer  trace.Tracer
	metrics ports.MetricsCollector

	// mu guards entries, order, and the per-registration counters.
	mu      sync.RWMutex
	entries map[string]*registration
	order   []string

	// traces retains the results of recent batches for audit lookup.
	traces *lru.Cache[string, []domain.WorkerResult]
}

// PoolOption customizes a WorkerPool at construction time.
type PoolOption func(*WorkerPool)

// WithLogger attaches a structured logger to the pool.
func WithLogger(logger *zap.Logger) PoolOption {
	return func(p *WorkerPool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics attaches a metrics collector recording execution counts and
// latencies.
func WithMetrics(collector ports.MetricsCollector) PoolOption {
	return func(p *WorkerPool) { p.metrics = collector }
}

// NewWorkerPool creates a WorkerPool with the given configuration.
func NewWorkerPool(config PoolConfig, opts ...PoolOption) (*WorkerPool, error) {
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	if config.MaxConcurrency == 0 {
		config.MaxConcurrency = DefaultMaxConcurrency
	}
	if config.TraceCacheSize == 0 {
		config.TraceCacheSize = DefaultTraceCacheSize
	}

	traces, err := lru.New[string, []domain.WorkerResult](config.TraceCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create trace cache: %w", err)
	}

	p := &WorkerPool{
		config:  config,
		logger:  zap.NewNop(),
		tracer:  otel.Tracer("worker-pool"),
		entries: make(map[string]*registration),
		traces:  traces,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Register adds a worker to the pool under config.WorkerID. It fails with
// domain.ErrDuplicateWorker when the ID is already registered and with a
// validation error when the configuration is invalid.
func (p *WorkerPool) Register(worker ports.Worker, config domain.WorkerConfig) error {
	if worker == nil {
		return fmt.Errorf("%w: worker is nil", domain.ErrInvalidConfiguration)
	}
	if err := validate.Struct(config); err != nil {
		return fmt.Errorf("worker config validation failed: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.entries[config.WorkerID]; exists {
		return fmt.Errorf("%w: %q", domain.ErrDuplicateWorker, config.WorkerID)
	}

	reg := &registration{worker: worker, config: config}
	if p.config.Quarantine.Enabled {
		reg.breaker = p.newBreaker(config.WorkerID)
	}

	p.entries[config.WorkerID] = reg
	p.order = append(p.order, config.WorkerID)

	p.logger.Info("registered worker",
		zap.String("worker_id", config.WorkerID),
		zap.String("worker_type", config.WorkerType),
	)
	return nil
}

// newBreaker builds the quarantine breaker for one worker.
func (p *WorkerPool) newBreaker(workerID string) *gobreaker.CircuitBreaker {
	q := p.config.Quarantine
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    workerID,
		Timeout: time.Duration(q.CooldownSeconds * float64(time.Second)),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= q.MinRequests &&
				float64(counts.TotalFailures)/float64(counts.Requests) >= q.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			p.logger.Warn("worker quarantine state changed",
				zap.String("worker_id", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
}

// Unregister removes a worker from the pool, destroying its configuration
// and counters. It fails with domain.ErrWorkerNotFound for unknown IDs.
func (p *WorkerPool) Unregister(workerID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.entries[workerID]; !exists {
		return fmt.Errorf("%w: %q", domain.ErrWorkerNotFound, workerID)
	}
	delete(p.entries, workerID)
	for i, id := range p.order {
		if id == workerID {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}

	p.logger.Info("unregistered worker", zap.String("worker_id", workerID))
	return nil
}

// SetEnabled enables or disables a worker without unregistering it.
// Disabled workers are never selected for execution.
func (p *WorkerPool) SetEnabled(workerID string, enabled bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	reg, exists := p.entries[workerID]
	if !exists {
		return fmt.Errorf("%w: %q", domain.ErrWorkerNotFound, workerID)
	}
	reg.config.Enabled = enabled
	return nil
}

// Worker returns the registered worker and its configuration for an ID.
func (p *WorkerPool) Worker(workerID string) (ports.Worker, domain.WorkerConfig, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	reg, ok := p.entries[workerID]
	if !ok {
		return nil, domain.WorkerConfig{}, false
	}
	return reg.worker, reg.config, true
}

// WorkerIDs returns all registered worker IDs in registration order.
func (p *WorkerPool) WorkerIDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, len(p.order))
	copy(ids, p.order)
	return ids
}

// ExecOption customizes one ExecuteParallel invocation.
type ExecOption func(*execOptions)

type execOptions struct {
	workerIDs []string
	traceID   string
}

// WithWorkerIDs restricts execution to the given subset of workers.
// Selection still honors enablement, quarantine, and registration order.
func WithWorkerIDs(workerIDs ...string) ExecOption {
	return func(o *execOptions) { o.workerIDs = workerIDs }
}

// WithTraceID sets the correlation ID grouping the batch's results.
// A fresh UUID is generated when absent.
func WithTraceID(traceID string) ExecOption {
	return func(o *execOptions) { o.traceID = traceID }
}

// ExecuteParallel dispatches the input concurrently to every enabled,
// non-quarantined worker (or the configured subset) and blocks until all
// complete or time out. Each dispatch is independently bounded by that
// worker's TimeoutSeconds, and any error, panic, or timeout in one worker is
// converted into a WorkerResult with a non-success status rather than
// aborting the batch.
//
// The returned slice contains exactly one WorkerResult per selected worker,
// in stable registration order regardless of completion order; deterministic
// ordering is what makes strategy tie-breaking reproducible.
//
// Requesting an unregistered worker ID fails with domain.ErrWorkerNotFound
// before any execution starts.
func (p *WorkerPool) ExecuteParallel(ctx context.Context, input any, opts ...ExecOption) ([]domain.WorkerResult, error) {
	var options execOptions
	for _, opt := range opts {
		opt(&options)
	}
	if options.traceID == "" {
		options.traceID = uuid.NewString()
	}

	selected, err := p.selectWorkers(options.workerIDs)
	if err != nil {
		return nil, err
	}
	if len(selected) == 0 {
		p.logger.Warn("no active workers available for execution",
			zap.String("trace_id", options.traceID))
		return []domain.WorkerResult{}, nil
	}

	ctx, span := p.tracer.Start(ctx, "WorkerPool.ExecuteParallel",
		trace.WithAttributes(
			attribute.String("trace_id", options.traceID),
			attribute.Int("workers", len(selected)),
		),
	)
	defer span.End()

	start := time.Now()
	p.logger.Debug("executing workers in parallel",
		zap.Int("workers", len(selected)),
		zap.String("trace_id", options.traceID),
	)

	results := make([]domain.WorkerResult, len(selected))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.MaxConcurrency)

	for i, reg := range selected {
		i, reg := i, reg
		g.Go(func() error {
			// Each goroutine writes a distinct index; no mutex needed.
			results[i] = p.runWorker(gctx, reg, input, options.traceID)
			return nil
		})
	}
	// Worker failures surface as result statuses, never as task errors,
	// so Wait cannot fail here.
	_ = g.Wait()

	p.recordBatch(selected, results)
	p.traces.Add(options.traceID, results)

	if p.metrics != nil {
		p.metrics.RecordLatency("execute_parallel", time.Since(start),
			map[string]string{"workers": fmt.Sprintf("%d", len(selected))})
	}
	return results, nil
}

// selectWorkers snapshots the registrations to execute, in registration
// order. With an explicit subset, unknown IDs are an error; otherwise every
// enabled, non-quarantined worker is selected.
func (p *WorkerPool) selectWorkers(workerIDs []string) ([]*registration, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if workerIDs != nil {
		requested := make(map[string]bool, len(workerIDs))
		for _, id := range workerIDs {
			if _, ok := p.entries[id]; !ok {
				return nil, fmt.Errorf("%w: %q", domain.ErrWorkerNotFound, id)
			}
			requested[id] = true
		}
		selected := make([]*registration, 0, len(requested))
		for _, id := range p.order {
			if requested[id] && p.selectable(p.entries[id]) {
				selected = append(selected, p.entries[id])
			}
		}
		return selected, nil
	}

	selected := make([]*registration, 0, len(p.order))
	for _, id := range p.order {
		if p.selectable(p.entries[id]) {
			selected = append(selected, p.entries[id])
		}
	}
	return selected, nil
}

// selectable reports whether a worker may be dispatched: enabled and not
// quarantined by an open breaker.
func (p *WorkerPool) selectable(reg *registration) bool {
	if !reg.config.Enabled {
		return false
	}
	if reg.breaker != nil && reg.breaker.State() == gobreaker.StateOpen {
		return false
	}
	return true
}

// workerOutcome carries a worker's raw output across the abandonment
// boundary.
type workerOutcome struct {
	value      any
	confidence float64
	err        error
}

// runWorker executes one worker with full isolation: a per-worker timeout,
// panic recovery, confidence validation, and breaker accounting. It always
// returns a WorkerResult; errors become data.
func (p *WorkerPool) runWorker(ctx context.Context, reg *registration, input any, traceID string) domain.WorkerResult {
	workerID := reg.config.WorkerID
	timeout := time.Duration(reg.config.TimeoutSeconds * float64(time.Second))
	start := time.Now()

	run := func() (workerOutcome, domain.ResultStatus) {
		wctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		// The worker runs in its own goroutine so a stuck Process can be
		// abandoned best-effort once the deadline passes.
		outcomeCh := make(chan workerOutcome, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					outcomeCh <- workerOutcome{
						err: domain.NewWorkerError(workerID, "process", fmt.Errorf("panic: %v", r)),
					}
				}
			}()
			value, err := reg.worker.Process(wctx, input)
			if err != nil {
				outcomeCh <- workerOutcome{err: domain.NewWorkerError(workerID, "process", err)}
				return
			}
			confidence, err := reg.worker.Confidence(wctx, input, value)
			if err != nil {
				outcomeCh <- workerOutcome{err: domain.NewWorkerError(workerID, "confidence", err)}
				return
			}
			outcomeCh <- workerOutcome{value: value, confidence: confidence}
		}()

		select {
		case out := <-outcomeCh:
			if out.err != nil {
				return out, domain.StatusFailed
			}
			return out, domain.StatusSuccess
		case <-wctx.Done():
			return workerOutcome{err: wctx.Err()}, domain.StatusTimeout
		}
	}

	var result domain.WorkerResult
	execute := func() error {
		out, status := run()
		latency := time.Since(start).Milliseconds()

		switch status {
		case domain.StatusSuccess:
			r, err := domain.NewWorkerResult(workerID, out.value, out.confidence, latency, traceID)
			if err != nil {
				// The worker produced a value but broke the confidence
				// contract: keep the value for audit, exclude it from
				// aggregation.
				result = domain.WorkerResult{
					WorkerID:  workerID,
					Value:     out.value,
					Status:    domain.StatusAnomaly,
					LatencyMs: latency,
					TraceID:   traceID,
					Metadata:  map[string]any{"error": err.Error()},
				}
				return err
			}
			result = r
			return nil
		case domain.StatusTimeout:
			result = domain.NewTimeoutResult(workerID, latency, traceID)
			p.logger.Error("worker timed out",
				zap.String("worker_id", workerID),
				zap.Duration("timeout", timeout),
				zap.String("trace_id", traceID),
			)
			return out.err
		default:
			result = domain.NewFailedResult(workerID, latency, traceID, out.err)
			p.logger.Error("worker failed",
				zap.String("worker_id", workerID),
				zap.Error(out.err),
				zap.String("trace_id", traceID),
			)
			return out.err
		}
	}

	if reg.breaker != nil {
		if _, err := reg.breaker.Execute(func() (any, error) { return nil, execute() }); err != nil && result.WorkerID == "" {
			// Breaker rejected the call outright (opened concurrently):
			// no execution happened, record a fast failure.
			result = domain.NewFailedResult(workerID, 0, traceID, err)
		}
	} else {
		_ = execute()
	}

	if p.metrics != nil {
		p.metrics.RecordCounter("worker_executions_total", 1, map[string]string{
			"worker": workerID, "status": string(result.Status),
		})
		p.metrics.RecordLatency("worker_execute", time.Since(start), map[string]string{
			"worker": workerID,
		})
	}
	return result
}

// recordBatch folds one batch's outcomes into the per-worker counters.
func (p *WorkerPool) recordBatch(selected []*registration, results []domain.WorkerResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, reg := range selected {
		reg.executions++
		reg.totalLatencyMs += results[i].LatencyMs
		if !results[i].IsSuccess() {
			reg.failures++
		}
	}
}

// RecentTrace returns the retained results of a recent batch by trace ID.
func (p *WorkerPool) RecentTrace(traceID string) ([]domain.WorkerResult, bool) {
	return p.traces.Get(traceID)
}

// Close releases the pool's retained batch results. The pool holds no other
// resources; in-flight executions are bounded by their own contexts.
func (p *WorkerPool) Close() {
	p.traces.Purge()
}
