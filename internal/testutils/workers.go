// Package testutils provides stub workers shared by tests across the engine.
// The stubs cover the terminal states the pool must handle: clean success,
// process failure, panic, blocking past the deadline, and out-of-range
// confidence.
package testutils

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/ahrav/go-ensemble/internal/ports"
)

// ErrStubFailure is returned by FailingWorker's Process.
var ErrStubFailure = errors.New("stub worker failure")

// StaticWorker returns a fixed value and confidence for every input.
type StaticWorker struct {
	// Value is returned unchanged from Process.
	Value any
	// Score is returned from Confidence.
	Score float64
	// calls counts Process invocations.
	calls atomic.Int64
}

// Process returns the configured value.
func (w *StaticWorker) Process(ctx context.Context, input any) (any, error) {
	w.calls.Add(1)
	return w.Value, nil
}

// Confidence returns the configured score.
func (w *StaticWorker) Confidence(ctx context.Context, input, value any) (float64, error) {
	return w.Score, nil
}

// Calls reports how many times Process has run.
func (w *StaticWorker) Calls() int64 { return w.calls.Load() }

// FailingWorker always fails its Process call.
type FailingWorker struct{}

func (FailingWorker) Process(ctx context.Context, input any) (any, error) {
	return nil, ErrStubFailure
}

func (FailingWorker) Confidence(ctx context.Context, input, value any) (float64, error) {
	return 0, nil
}

// PanickingWorker panics during Process. The pool must convert the panic
// into a failed result rather than crash the batch.
type PanickingWorker struct{}

func (PanickingWorker) Process(ctx context.Context, input any) (any, error) {
	panic("stub worker panic")
}

func (PanickingWorker) Confidence(ctx context.Context, input, value any) (float64, error) {
	return 1, nil
}

// BlockingWorker blocks until the context is cancelled, simulating a hung
// upstream dependency.
type BlockingWorker struct{}

func (BlockingWorker) Process(ctx context.Context, input any) (any, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (BlockingWorker) Confidence(ctx context.Context, input, value any) (float64, error) {
	return 1, nil
}

// AnomalousWorker succeeds but reports a confidence outside [0, 1].
type AnomalousWorker struct {
	Value any
	Score float64
}

func (w *AnomalousWorker) Process(ctx context.Context, input any) (any, error) {
	return w.Value, nil
}

func (w *AnomalousWorker) Confidence(ctx context.Context, input, value any) (float64, error) {
	return w.Score, nil
}

// VariableWorker is a parameterized stub implementing the Variable
// capability. Its output is base scaled by the "scale" parameter.
type VariableWorker struct {
	// Base is the unscaled output value.
	Base float64
	// Params holds the parameters this instance was derived with.
	Params map[string]any
}

// Process returns Base multiplied by the "scale" parameter, defaulting to 1.
func (w *VariableWorker) Process(ctx context.Context, input any) (any, error) {
	scale := 1.0
	if v, ok := w.Params["scale"].(float64); ok {
		scale = v
	}
	return w.Base * scale, nil
}

// Confidence returns a fixed mid-range score.
func (w *VariableWorker) Confidence(ctx context.Context, input, value any) (float64, error) {
	return 0.8, nil
}

// ApplyVariation returns a copy of the worker configured with the given
// parameters.
func (w *VariableWorker) ApplyVariation(params map[string]any) (ports.Worker, error) {
	if params == nil {
		return nil, fmt.Errorf("variation params cannot be nil")
	}
	copied := make(map[string]any, len(params))
	for k, v := range params {
		copied[k] = v
	}
	return &VariableWorker{Base: w.Base, Params: copied}, nil
}

// Interface assertions.
var (
	_ ports.Worker   = (*StaticWorker)(nil)
	_ ports.Worker   = FailingWorker{}
	_ ports.Worker   = PanickingWorker{}
	_ ports.Worker   = BlockingWorker{}
	_ ports.Worker   = (*AnomalousWorker)(nil)
	_ ports.Worker   = (*VariableWorker)(nil)
	_ ports.Variable = (*VariableWorker)(nil)
)
