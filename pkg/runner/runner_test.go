// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package runner

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/recheck/pkg/browser"
	"github.com/teradata-labs/recheck/pkg/decision"
	"github.com/teradata-labs/recheck/pkg/evidence"
	"github.com/teradata-labs/recheck/pkg/extract"
	"github.com/teradata-labs/recheck/pkg/fuzzy"
	"github.com/teradata-labs/recheck/pkg/navigate"
	"github.com/teradata-labs/recheck/pkg/normalize"
	"github.com/teradata-labs/recheck/pkg/pipeline"
	"github.com/teradata-labs/recheck/pkg/resource"
	"github.com/teradata-labs/recheck/pkg/rows"
	"github.com/teradata-labs/recheck/pkg/types"
)

type sliceIterator struct {
	rows []types.Row
	i    int
}

func (s *sliceIterator) Next() (*types.Row, error) {
	if s.i >= len(s.rows) {
		return nil, io.EOF
	}
	row := s.rows[s.i]
	s.i++
	return &row, nil
}

func (s *sliceIterator) Close() error { return nil }
func (s *sliceIterator) Total() int   { return len(s.rows) }

var _ rows.Counter = (*sliceIterator)(nil)

// scriptedFactory serves per-session page scripts, then the fallback.
type scriptedFactory struct {
	mu             sync.Mutex
	pagesBySession []map[string]*browser.FakePage
	fallback       map[string]*browser.FakePage
	sessions       int
}

func (f *scriptedFactory) NewSession(ctx context.Context) (browser.Browser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pages := f.fallback
	if f.sessions < len(f.pagesBySession) {
		pages = f.pagesBySession[f.sessions]
	}
	f.sessions++
	return browser.NewFake(pages), nil
}

func testMappings() []types.FieldMapping {
	return []types.FieldMapping{
		{CSVField: "title", WebSelector: "#title", FieldType: types.FieldTypeText, Required: true, Strategy: types.StrategyFuzzy},
	}
}

func testPipeline(t *testing.T) *pipeline.Pipeline {
	t.Helper()
	collector, err := evidence.NewCollector(evidence.Config{Root: t.TempDir(), RunID: "run-test"})
	require.NoError(t, err)
	return pipeline.New(pipeline.Config{
		Navigator: navigate.New(navigate.Config{URLTemplate: "https://x.example/items/{id}"}),
		Extractor: extract.New(extract.Config{Normalization: normalize.DefaultPolicy()}),
		Engine: decision.NewEngine(decision.Config{
			Normalization: normalize.DefaultPolicy(),
			Fuzzy:         fuzzy.DefaultConfig(),
		}),
		Evidence: collector,
		Mappings: testMappings(),
	})
}

func goodPages(n int) map[string]*browser.FakePage {
	pages := make(map[string]*browser.FakePage, n)
	for i := 1; i <= n; i++ {
		pages[fmt.Sprintf("https://x.example/items/%d", i)] = &browser.FakePage{
			StatusCode: 200,
			Elements: map[string]*browser.FakeElement{
				"#title": {Text: fmt.Sprintf("Book %d", i)},
			},
		}
	}
	return pages
}

func inputRows(n int) *sliceIterator {
	var rs []types.Row
	for i := 1; i <= n; i++ {
		rs = append(rs, types.Row{
			ID:    fmt.Sprintf("row-%d", i),
			Index: i - 1,
			Values: map[string]any{
				"id": fmt.Sprintf("%d", i), "title": fmt.Sprintf("Book %d", i),
			},
		})
	}
	return &sliceIterator{rows: rs}
}

func TestRunCompletes(t *testing.T) {
	var (
		progressMu sync.Mutex
		progress   []types.Progress
	)
	r := New(Config{
		Pipeline: testPipeline(t),
		Browsers: &browser.FakeFactory{Pages: goodPages(5)},
		Workers:  2,
		Progress: func(p types.Progress) {
			progressMu.Lock()
			progress = append(progress, p)
			progressMu.Unlock()
		},
	})

	rep, err := r.Run(context.Background(), inputRows(5))
	require.NoError(t, err)

	assert.Equal(t, types.RunCompleted, rep.Outcome)
	assert.Equal(t, 5, rep.Summary.TotalRows)
	assert.Equal(t, 5, rep.Summary.Processed)
	assert.Equal(t, 5, rep.Summary.Succeeded)

	// Results come back ordered by row index even with two workers.
	for i, res := range rep.Results {
		assert.Equal(t, i, res.RowIndex)
		assert.True(t, res.OverallMatch)
	}

	require.Len(t, progress, 5)
	assert.Equal(t, 5, progress[0].Total)
	assert.Equal(t, 5, progress[4].Processed)
}

func TestRetryRecoversTransientFailure(t *testing.T) {
	// First session's page 503s; the retry gets a healthy one.
	factory := &scriptedFactory{
		pagesBySession: []map[string]*browser.FakePage{
			{"https://x.example/items/1": {StatusCode: 503}},
		},
		fallback: goodPages(1),
	}
	r := New(Config{
		Pipeline: testPipeline(t),
		Browsers: factory,
		Workers:  1,
		Retry: RetryPolicy{
			MaxAttempts:    3,
			BaseDelay:      time.Millisecond,
			RetryableKinds: []types.ErrorKind{types.ErrTransport},
		},
	})

	rep, err := r.Run(context.Background(), inputRows(1))
	require.NoError(t, err)

	assert.Equal(t, 2, factory.sessions)
	require.Len(t, rep.Results, 1)
	assert.True(t, rep.Results[0].OverallMatch)
	assert.Equal(t, 1, rep.Summary.Succeeded)
}

func TestRetrySuccessKeepsErrorTrail(t *testing.T) {
	// First attempt times out after a stall; the retry loads cleanly. The
	// recovered row keeps the timeout on its record and its processing
	// time covers both attempts.
	slow := 25 * time.Millisecond
	factory := &scriptedFactory{
		pagesBySession: []map[string]*browser.FakePage{
			{"https://x.example/items/1": {Delay: slow, NavErr: fmt.Errorf("Timeout 30000ms exceeded")}},
		},
		fallback: map[string]*browser.FakePage{
			"https://x.example/items/1": {
				StatusCode: 200,
				Delay:      slow,
				Elements:   map[string]*browser.FakeElement{"#title": {Text: "Book 1"}},
			},
		},
	}
	r := New(Config{
		Pipeline: testPipeline(t),
		Browsers: factory,
		Workers:  1,
		Retry: RetryPolicy{
			MaxAttempts:    3,
			BaseDelay:      time.Millisecond,
			RetryableKinds: []types.ErrorKind{types.ErrNavigationTimeout},
		},
	})

	rep, err := r.Run(context.Background(), inputRows(1))
	require.NoError(t, err)

	require.Len(t, rep.Results, 1)
	res := rep.Results[0]
	assert.True(t, res.OverallMatch)

	require.Len(t, res.Errors, 1)
	assert.Equal(t, types.ErrNavigationTimeout, res.Errors[0].Kind)
	assert.True(t, res.Errors[0].Recoverable)

	assert.GreaterOrEqual(t, res.ProcessingTimeMs, int64(40))

	assert.Equal(t, 1, rep.Summary.Succeeded)
	assert.Equal(t, 0, rep.Summary.Failed)
}

func TestNavigationTimeoutRetriedOnce(t *testing.T) {
	timeoutPage := map[string]*browser.FakePage{
		"https://x.example/items/1": {NavErr: fmt.Errorf("Timeout 30000ms exceeded")},
	}
	factory := &scriptedFactory{fallback: timeoutPage}
	r := New(Config{
		Pipeline: testPipeline(t),
		Browsers: factory,
		Workers:  1,
		Retry: RetryPolicy{
			MaxAttempts:    5,
			BaseDelay:      time.Millisecond,
			RetryableKinds: []types.ErrorKind{types.ErrNavigationTimeout},
		},
	})

	rep, err := r.Run(context.Background(), inputRows(1))
	require.NoError(t, err)

	// A navigation timeout earns exactly one retry.
	assert.Equal(t, 2, factory.sessions)
	assert.Equal(t, 1, rep.Summary.Failed)
}

func TestFatalErrorNotRetried(t *testing.T) {
	factory := &scriptedFactory{fallback: nil} // every URL 404s
	r := New(Config{
		Pipeline: testPipeline(t),
		Browsers: factory,
		Workers:  1,
		Retry:    DefaultRetryPolicy(),
	})

	rep, err := r.Run(context.Background(), inputRows(1))
	require.NoError(t, err)

	assert.Equal(t, 1, factory.sessions)
	assert.Equal(t, 1, rep.Summary.Failed)
}

func TestEscalationHaltsDispatch(t *testing.T) {
	r := New(Config{
		Pipeline:            testPipeline(t),
		Browsers:            &browser.FakeFactory{}, // every URL 404s
		Workers:             1,
		MinWindowSamples:    5,
		EscalationThreshold: 0.2,
		DrainTimeout:        5 * time.Second,
	})

	rep, err := r.Run(context.Background(), inputRows(50))
	require.Error(t, err)

	assert.Equal(t, types.ErrEscalated, types.KindOf(err))
	assert.Equal(t, types.RunEscalated, rep.Outcome)
	assert.GreaterOrEqual(t, rep.Summary.Processed, 5)
	assert.Less(t, rep.Summary.Processed, 50)
}

func TestEscalationDrainsInFlightRows(t *testing.T) {
	// The slow good row is dispatched first; the 404s behind it trip
	// escalation while it is still loading. It finishes with a valid
	// result rather than a cancellation.
	pages := map[string]*browser.FakePage{
		"https://x.example/items/slow": {
			StatusCode: 200,
			Delay:      50 * time.Millisecond,
			Elements:   map[string]*browser.FakeElement{"#title": {Text: "Night Watch"}},
		},
	}
	rs := []types.Row{{ID: "row-slow", Index: 0, Values: map[string]any{"id": "slow", "title": "Night Watch"}}}
	for i := 1; i <= 10; i++ {
		rs = append(rs, types.Row{ID: fmt.Sprintf("row-%d", i), Index: i,
			Values: map[string]any{"id": fmt.Sprintf("missing-%d", i), "title": "x"}})
	}

	r := New(Config{
		Pipeline:            testPipeline(t),
		Browsers:            &browser.FakeFactory{Pages: pages},
		Workers:             2,
		MinWindowSamples:    3,
		EscalationThreshold: 0.2,
		DrainTimeout:        5 * time.Second,
	})

	rep, err := r.Run(context.Background(), &sliceIterator{rows: rs})
	require.Error(t, err)
	assert.Equal(t, types.RunEscalated, rep.Outcome)

	require.NotEmpty(t, rep.Results)
	slowRes := rep.Results[0]
	assert.Equal(t, "row-slow", slowRes.RowID)
	assert.True(t, slowRes.OverallMatch)
	assert.Empty(t, slowRes.Errors)
}

func TestBatchedDispatchProcessesAllRows(t *testing.T) {
	r := New(Config{
		Pipeline:  testPipeline(t),
		Browsers:  &browser.FakeFactory{Pages: goodPages(7)},
		Workers:   2,
		BatchSize: 3,
	})

	rep, err := r.Run(context.Background(), inputRows(7))
	require.NoError(t, err)

	assert.Equal(t, 7, rep.Summary.Processed)
	assert.Equal(t, 7, rep.Summary.Succeeded)
}

func TestCancellationStopsRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var once sync.Once
	r := New(Config{
		Pipeline:     testPipeline(t),
		Browsers:     &browser.FakeFactory{Pages: goodPages(100)},
		Workers:      1,
		DrainTimeout: 5 * time.Second,
		Progress: func(p types.Progress) {
			once.Do(cancel)
		},
	})

	var rs []types.Row
	for i := 1; i <= 100; i++ {
		rs = append(rs, types.Row{ID: fmt.Sprintf("row-%d", i), Index: i - 1,
			Values: map[string]any{"id": fmt.Sprintf("%d", i%5+1), "title": "x"}})
	}

	rep, err := r.Run(ctx, &sliceIterator{rows: rs})
	require.Error(t, err)

	assert.Equal(t, types.ErrCancelled, types.KindOf(err))
	assert.Equal(t, types.RunCancelled, rep.Outcome)
	assert.Less(t, rep.Summary.Processed, 100)
}

func TestRegistryTracksSessions(t *testing.T) {
	registry := resource.NewRegistry(resource.Config{})
	r := New(Config{
		Pipeline: testPipeline(t),
		Browsers: &browser.FakeFactory{Pages: goodPages(3)},
		Registry: registry,
		Workers:  2,
	})

	_, err := r.Run(context.Background(), inputRows(3))
	require.NoError(t, err)

	// Every session was closed and unregistered along the way.
	assert.Equal(t, 0, registry.Live())
}
