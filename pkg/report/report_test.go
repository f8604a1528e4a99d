// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/recheck/pkg/types"
)

func sampleResults() []types.RowResult {
	return []types.RowResult{
		{
			RowID: "row-2", RowIndex: 1,
			OverallMatch: false, OverallConfidence: 0.45,
			FieldDecisions: []types.FieldDecision{
				{CSVField: "title", Match: true, Confidence: 0.9, Method: types.MethodDOM},
				{CSVField: "author", Match: false, Confidence: 0.45, Method: types.MethodFuzzy, Issues: []string{"llm_unavailable"}},
			},
			Errors: []*types.Error{{Kind: types.ErrLLMUnavailable}},
		},
		{
			RowID: "row-1", RowIndex: 0,
			OverallMatch: true, OverallConfidence: 1.0,
			FieldDecisions: []types.FieldDecision{
				{CSVField: "title", Match: true, Confidence: 1.0, Method: types.MethodDOM},
				{CSVField: "author", Match: true, Confidence: 1.0, Method: types.MethodDOM},
			},
		},
	}
}

func buildSample() *types.RunReport {
	start := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	return Build("run-1", start, start.Add(10*time.Second), types.RunCompleted, 2, sampleResults())
}

func TestBuildSummary(t *testing.T) {
	r := buildSample()

	assert.Equal(t, 2, r.Summary.TotalRows)
	assert.Equal(t, 2, r.Summary.Processed)
	assert.Equal(t, 1, r.Summary.Succeeded)
	assert.Equal(t, 1, r.Summary.Failed)
	assert.InDelta(t, 0.725, r.Summary.AvgConfidence, 1e-9)
	assert.InDelta(t, 0.5, r.Summary.ErrorRate, 1e-9)
	assert.InDelta(t, 0.2, r.Summary.ThroughputRowsPerSec, 1e-9)

	// Results are ordered by row index regardless of completion order.
	assert.Equal(t, "row-1", r.Results[0].RowID)
}

func TestBuildStatistics(t *testing.T) {
	r := buildSample()

	assert.Equal(t, 1, r.Statistics.ConfidenceHistogram["0.4-0.5"])
	assert.Equal(t, 1, r.Statistics.ConfidenceHistogram["0.9-1.0"])
	assert.Equal(t, 3, r.Statistics.MethodUsage[types.MethodDOM])
	assert.Equal(t, 1, r.Statistics.MethodUsage[types.MethodFuzzy])
	assert.InDelta(t, 1.0, r.Statistics.FieldAccuracy["title"], 1e-9)
	assert.InDelta(t, 0.5, r.Statistics.FieldAccuracy["author"], 1e-9)
	assert.Equal(t, 1, r.Statistics.ErrorsByKind[types.ErrLLMUnavailable])
}

func TestRecoveredRowCountsSucceeded(t *testing.T) {
	// A row that retried past a recoverable error keeps the error on its
	// record but completed normally.
	start := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	r := Build("run-1", start, start.Add(time.Second), types.RunCompleted, 1, []types.RowResult{{
		RowID: "row-1", RowIndex: 0,
		OverallMatch: true, OverallConfidence: 1.0,
		FieldDecisions: []types.FieldDecision{{CSVField: "title", Match: true, Confidence: 1.0, Method: types.MethodDOM}},
		Errors:         []*types.Error{{Kind: types.ErrNavigationTimeout, Recoverable: true}},
	}})

	assert.Equal(t, 1, r.Summary.Succeeded)
	assert.Equal(t, 0, r.Summary.Failed)
}

func TestStripObservations(t *testing.T) {
	results := sampleResults()
	results[0].Observation = &types.PageObservation{URL: "https://x.example/items/2", DOMSnapshot: "<html/>"}
	start := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	r := Build("run-1", start, start.Add(time.Second), types.RunCompleted, 2, results)

	StripObservations(r)
	for _, row := range r.Results {
		assert.Nil(t, row.Observation, row.RowID)
	}
	// Verdicts and summary counts survive the strip.
	assert.Equal(t, 1, r.Summary.Succeeded)
	assert.Len(t, r.Results[0].FieldDecisions, 2)
}

func TestConfidenceBuckets(t *testing.T) {
	assert.Equal(t, "0.0-0.1", bucket(0))
	assert.Equal(t, "0.4-0.5", bucket(0.45))
	assert.Equal(t, "0.9-1.0", bucket(0.95))
	assert.Equal(t, "0.9-1.0", bucket(1.0))
}

func TestJSONRenderer(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (JSONRenderer{}).Render(&buf, buildSample()))

	var decoded types.RunReport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "run-1", decoded.RunID)
	assert.Len(t, decoded.Results, 2)
}

func TestMarkdownRenderer(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (MarkdownRenderer{}).Render(&buf, buildSample()))

	out := buf.String()
	assert.Contains(t, out, "# Validation Report run-1")
	assert.Contains(t, out, "| row-1 | ✓ |")
	assert.Contains(t, out, "llm_unavailable")
}

func TestCSVRenderer(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (CSVRenderer{}).Render(&buf, buildSample()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	// Header plus one line per field decision.
	require.Len(t, lines, 5)
	assert.Contains(t, lines[0], "rowIndex")
	assert.Contains(t, lines[1], "row-1")
}

func TestForFormat(t *testing.T) {
	for _, f := range []string{"json", "markdown", "md", "csv", ""} {
		_, err := ForFormat(f)
		assert.NoError(t, err, f)
	}
	_, err := ForFormat("pdf")
	assert.Error(t, err)
}
