// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package runner schedules rows across a bounded worker pool: dispatch
// in arrival order, per-row retries with backoff, a rolling failure
// window that escalates a degraded run, and cooperative cancellation
// with a drain deadline.
package runner

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/teradata-labs/recheck/pkg/browser"
	"github.com/teradata-labs/recheck/pkg/observability"
	"github.com/teradata-labs/recheck/pkg/pipeline"
	"github.com/teradata-labs/recheck/pkg/report"
	"github.com/teradata-labs/recheck/pkg/resource"
	"github.com/teradata-labs/recheck/pkg/rows"
	"github.com/teradata-labs/recheck/pkg/types"
)

// RetryPolicy governs per-row retries.
type RetryPolicy struct {
	// MaxAttempts counts the first try. Defaults to 3.
	MaxAttempts int
	// BaseDelay before the first retry. Defaults to 2s.
	BaseDelay time.Duration
	// Exponential doubles the delay per attempt when set.
	Exponential bool
	// RetryableKinds lists the error kinds worth another attempt.
	RetryableKinds []types.ErrorKind
}

// DefaultRetryPolicy matches the stock error-handling rules.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		Exponential: true,
		RetryableKinds: []types.ErrorKind{
			types.ErrElementNotFound,
			types.ErrOCRLowConfidence,
			types.ErrNavigationTimeout,
			types.ErrTransport,
		},
	}
}

// Config wires a runner.
type Config struct {
	Pipeline *pipeline.Pipeline
	Browsers browser.Factory
	// Registry, when set, tracks open sessions so a forced shutdown can
	// close them.
	Registry *resource.Registry
	// Workers bounds rows in flight. Defaults to 3.
	Workers int
	// BatchSize, when positive, waits for every batch of that many rows
	// to finish before reading the next. Zero streams rows continuously.
	BatchSize int
	Retry     RetryPolicy
	// EscalationThreshold is the failure fraction over the rolling
	// window that halts the run. Defaults to 0.2.
	EscalationThreshold float64
	// WindowSize is the rolling window length. Defaults to 100.
	WindowSize int
	// MinWindowSamples guards against escalating on the first couple of
	// unlucky rows. Defaults to 10.
	MinWindowSamples int
	// DrainTimeout bounds the wait for in-flight rows after a cancel or
	// escalation. Defaults to 20s.
	DrainTimeout time.Duration
	Progress     types.ProgressFunc
	Tracer       observability.Tracer
	Logger       *zap.Logger
}

// Runner executes a validation run.
type Runner struct {
	cfg Config

	mu        sync.Mutex
	window    []bool
	results   []types.RowResult
	processed int
}

// New creates a runner.
func New(cfg Config) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = 3
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	if cfg.EscalationThreshold <= 0 {
		cfg.EscalationThreshold = 0.2
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 100
	}
	if cfg.MinWindowSamples <= 0 {
		cfg.MinWindowSamples = 10
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 20 * time.Second
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NewNoOpTracer()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Runner{cfg: cfg}
}

// Run drains the iterator through the worker pool and returns the run
// report. The returned error is non-nil only for run-level failures
// (escalation, cancellation); per-row trouble lives in the report.
func (r *Runner) Run(ctx context.Context, input rows.Iterator) (*types.RunReport, error) {
	runCtx, span := r.cfg.Tracer.StartSpan(ctx, observability.SpanRun)
	defer r.cfg.Tracer.EndSpan(span)

	runID := uuid.NewString()
	start := time.Now()
	r.cfg.Logger.Info("run started",
		zap.String("run_id", runID),
		zap.Int("workers", r.cfg.Workers),
	)

	total := -1
	if counter, ok := input.(rows.Counter); ok {
		total = counter.Total()
	}

	// Escalation cancels only the dispatch context: rows already in
	// flight keep runCtx and drain to completion with valid results.
	dispatchCtx, stopDispatch := context.WithCancel(runCtx)
	defer stopDispatch()
	var escalated atomic.Bool

	sem := semaphore.NewWeighted(int64(r.cfg.Workers))
	var wg sync.WaitGroup

	var batch *sync.WaitGroup
	if r.cfg.BatchSize > 0 {
		batch = &sync.WaitGroup{}
	}
	inBatch := 0

	scanned := 0
	var runErr error
	outcome := types.RunCompleted

dispatch:
	for {
		row, err := input.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				runErr = err
			}
			break
		}
		scanned++

		if err := sem.Acquire(dispatchCtx, 1); err != nil {
			scanned-- // the row was never dispatched
			break dispatch
		}
		if dispatchCtx.Err() != nil {
			sem.Release(1)
			scanned--
			break dispatch
		}

		wg.Add(1)
		if batch != nil {
			batch.Add(1)
		}
		go func(row types.Row, scanned int, batch *sync.WaitGroup) {
			defer wg.Done()
			defer sem.Release(1)
			if batch != nil {
				defer batch.Done()
			}

			result := r.processRow(runCtx, row)

			if r.record(result, total, scanned, start) {
				r.cfg.Logger.Error("failure rate exceeded escalation threshold, halting dispatch",
					zap.Float64("threshold", r.cfg.EscalationThreshold),
				)
				escalated.Store(true)
				stopDispatch()
			}
		}(*row, scanned, batch)

		if batch != nil {
			inBatch++
			if inBatch == r.cfg.BatchSize {
				batch.Wait()
				batch = &sync.WaitGroup{}
				inBatch = 0
			}
		}
	}

	drained := r.drain(&wg)

	switch {
	case ctx.Err() != nil:
		outcome = types.RunCancelled
		runErr = types.WrapError(types.ErrCancelled, false, ctx.Err(), "run cancelled")
	case escalated.Load():
		outcome = types.RunEscalated
		runErr = types.NewError(types.ErrEscalated, false,
			"rolling failure rate exceeded %.0f%%", r.cfg.EscalationThreshold*100)
	}
	if !drained {
		r.cfg.Logger.Warn("drain deadline expired with rows still in flight",
			zap.Duration("deadline", r.cfg.DrainTimeout),
		)
	}

	r.mu.Lock()
	results := append([]types.RowResult(nil), r.results...)
	r.mu.Unlock()

	if total < 0 {
		total = scanned
	}
	rep := report.Build(runID, start, time.Now(), outcome, total, results)

	r.cfg.Logger.Info("run finished",
		zap.String("run_id", runID),
		zap.String("outcome", string(outcome)),
		zap.Int("processed", rep.Summary.Processed),
		zap.Int("failed", rep.Summary.Failed),
	)
	return rep, runErr
}

// processRow runs one row with retries. Each attempt gets a fresh
// browser session; the previous attempt's session is closed before the
// next begins. Errors from retried attempts are carried onto the final
// result so a recovered row keeps its trail, and the processing time
// spans every attempt.
func (r *Runner) processRow(ctx context.Context, row types.Row) *types.RowResult {
	rowStart := time.Now()
	var (
		result *types.RowResult
		trail  []*types.Error
	)
	navTimeouts := 0

attempts:
	for attempt := 1; attempt <= r.cfg.Retry.MaxAttempts; attempt++ {
		result = r.attempt(ctx, row)

		kind, retryable := r.retryableFailure(result)
		if !retryable {
			break
		}
		if kind == types.ErrNavigationTimeout {
			navTimeouts++
			if navTimeouts > 1 {
				break
			}
		}
		if attempt == r.cfg.Retry.MaxAttempts {
			break
		}

		trail = append(trail, result.Errors...)

		delay := r.backoff(attempt)
		r.cfg.Logger.Info("retrying row",
			zap.String("row_id", row.ID),
			zap.String("kind", string(kind)),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			break attempts
		}
	}

	if len(trail) > 0 {
		result.Errors = append(trail, result.Errors...)
	}
	result.ProcessingTimeMs = time.Since(rowStart).Milliseconds()
	return result
}

func (r *Runner) attempt(ctx context.Context, row types.Row) *types.RowResult {
	session, err := r.cfg.Browsers.NewSession(ctx)
	if err != nil {
		return &types.RowResult{
			RowID:    row.ID,
			RowIndex: row.Index,
			Row:      row,
			Errors: []*types.Error{
				types.WrapError(types.ErrTransport, true, err, "cannot open browser session"),
			},
		}
	}

	var registryID string
	if r.cfg.Registry != nil {
		registryID, _ = r.cfg.Registry.Register("browser-session", resource.NewFunc(session.Close))
	}
	defer func() {
		// Session close uses a detached context so cancelled rows still
		// release their browser.
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := session.Close(closeCtx); err != nil {
			r.cfg.Logger.Warn("session close failed", zap.String("row_id", row.ID), zap.Error(err))
		}
		if registryID != "" {
			r.cfg.Registry.Unregister(registryID)
		}
	}()

	return r.cfg.Pipeline.Run(ctx, session, row)
}

// retryableFailure reports whether the result's first error is worth
// another attempt.
func (r *Runner) retryableFailure(result *types.RowResult) (types.ErrorKind, bool) {
	if result == nil || len(result.Errors) == 0 {
		return "", false
	}
	first := result.Errors[0]
	if !first.Recoverable {
		return first.Kind, false
	}
	for _, kind := range r.cfg.Retry.RetryableKinds {
		if first.Kind == kind {
			return first.Kind, true
		}
	}
	return first.Kind, false
}

// backoff computes the delay before the next attempt, with 25% jitter.
func (r *Runner) backoff(attempt int) time.Duration {
	delay := r.cfg.Retry.BaseDelay
	if r.cfg.Retry.Exponential {
		for i := 1; i < attempt; i++ {
			delay *= 2
		}
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/2+1)) - delay/4
	return delay + jitter
}

// record appends a result, updates the rolling window, fires the
// progress callback, and reports whether the run should escalate.
func (r *Runner) record(result *types.RowResult, total, scanned int, start time.Time) bool {
	failed := result.Failed()

	r.mu.Lock()
	r.results = append(r.results, *result)
	r.processed++
	processed := r.processed

	r.window = append(r.window, failed)
	if len(r.window) > r.cfg.WindowSize {
		r.window = r.window[len(r.window)-r.cfg.WindowSize:]
	}
	failures := 0
	for _, f := range r.window {
		if f {
			failures++
		}
	}
	samples := len(r.window)
	r.mu.Unlock()

	if r.cfg.Progress != nil {
		progressTotal := total
		if progressTotal < 0 {
			progressTotal = scanned
		}
		var eta time.Duration
		if processed > 0 && progressTotal > processed {
			perRow := time.Since(start) / time.Duration(processed)
			eta = perRow * time.Duration(progressTotal-processed)
		}
		r.cfg.Progress(types.Progress{Processed: processed, Total: progressTotal, ETA: eta})
	}

	return samples >= r.cfg.MinWindowSamples &&
		float64(failures)/float64(samples) > r.cfg.EscalationThreshold
}

// drain waits for in-flight rows up to the drain deadline.
func (r *Runner) drain(wg *sync.WaitGroup) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(r.cfg.DrainTimeout):
		return false
	}
}
