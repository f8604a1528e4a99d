// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/recheck/pkg/browser"
	"github.com/teradata-labs/recheck/pkg/decision"
	"github.com/teradata-labs/recheck/pkg/evidence"
	"github.com/teradata-labs/recheck/pkg/extract"
	"github.com/teradata-labs/recheck/pkg/fuzzy"
	"github.com/teradata-labs/recheck/pkg/navigate"
	"github.com/teradata-labs/recheck/pkg/normalize"
	"github.com/teradata-labs/recheck/pkg/types"
)

func testMappings() []types.FieldMapping {
	return []types.FieldMapping{
		{CSVField: "title", WebSelector: "#title", FieldType: types.FieldTypeText, Required: true, Strategy: types.StrategyFuzzy},
		{CSVField: "author", WebSelector: "#author", FieldType: types.FieldTypeName, Required: true, Strategy: types.StrategyFuzzy},
		{CSVField: "note", WebSelector: "#note", FieldType: types.FieldTypeText, Required: false, Strategy: types.StrategyDOM},
	}
}

func newPipeline(t *testing.T, mutate func(*Config)) (*Pipeline, string) {
	t.Helper()
	root := t.TempDir()
	collector, err := evidence.NewCollector(evidence.Config{Root: root, RunID: "run-test"})
	require.NoError(t, err)

	cfg := Config{
		Navigator: navigate.New(navigate.Config{URLTemplate: "https://x.example/items/{id}"}),
		Extractor: extract.New(extract.Config{Normalization: normalize.DefaultPolicy()}),
		Engine: decision.NewEngine(decision.Config{
			Normalization: normalize.DefaultPolicy(),
			Fuzzy:         fuzzy.DefaultConfig(),
		}),
		Evidence: collector,
		Mappings: testMappings(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return New(cfg), root
}

func matchingPage() map[string]*browser.FakePage {
	return map[string]*browser.FakePage{
		"https://x.example/items/1": {
			StatusCode: 200,
			Title:      "Item 1",
			DOM:        "<html><body>Item 1</body></html>",
			Elements: map[string]*browser.FakeElement{
				"#title":  {Text: "Moby-Dick"},
				"#author": {Text: "Herman Melville"},
				"#note":   {Text: "first edition"},
			},
		},
	}
}

func testRow() types.Row {
	return types.Row{ID: "row-1", Index: 0, Values: map[string]any{
		"id": "1", "title": "Moby-Dick", "author": "Herman Melville", "note": "first edition",
	}}
}

func TestRunHappyPath(t *testing.T) {
	p, root := newPipeline(t, nil)
	session := browser.NewFake(matchingPage())

	result := p.Run(context.Background(), session, testRow())

	assert.True(t, result.OverallMatch)
	assert.Equal(t, 1.0, result.OverallConfidence)
	require.Len(t, result.FieldDecisions, 3)
	assert.Equal(t, "title", result.FieldDecisions[0].CSVField)
	assert.Empty(t, result.Errors)

	// Evidence is on disk before the row is reported.
	_, err := os.Stat(filepath.Join(root, result.EvidenceID, "decisions.json"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(root, result.EvidenceID, "full.png"))
	assert.NoError(t, err)
}

func TestRunRequiredMismatchFailsRow(t *testing.T) {
	pages := matchingPage()
	pages["https://x.example/items/1"].Elements["#author"] = &browser.FakeElement{Text: "Nathaniel Hawthorne"}
	p, _ := newPipeline(t, nil)

	result := p.Run(context.Background(), browser.NewFake(pages), testRow())

	assert.False(t, result.OverallMatch)
	// The weakest required field bounds the row; mismatch confidence is
	// clamped to at most 0.5.
	assert.LessOrEqual(t, result.OverallConfidence, 0.5)
}

func TestRunOptionalMismatchStillMatches(t *testing.T) {
	pages := matchingPage()
	pages["https://x.example/items/1"].Elements["#note"] = &browser.FakeElement{Text: "second printing"}
	p, _ := newPipeline(t, nil)

	result := p.Run(context.Background(), browser.NewFake(pages), testRow())

	assert.True(t, result.OverallMatch)
	assert.Equal(t, 1.0, result.OverallConfidence)
}

func TestRunNavigationFailureSkipsExtraction(t *testing.T) {
	p, root := newPipeline(t, nil)
	session := browser.NewFake(nil) // every URL 404s

	result := p.Run(context.Background(), session, testRow())

	assert.False(t, result.OverallMatch)
	assert.Empty(t, result.FieldDecisions)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, types.ErrPageNotFound, result.Errors[0].Kind)

	// The failed row still leaves an evidence bundle.
	_, err := os.Stat(filepath.Join(root, result.EvidenceID, "index.json"))
	assert.NoError(t, err)
}

func TestRunMissingSelectorYieldsZeroConfidenceDecision(t *testing.T) {
	pages := matchingPage()
	delete(pages["https://x.example/items/1"].Elements, "#title")
	p, _ := newPipeline(t, nil)

	result := p.Run(context.Background(), browser.NewFake(pages), testRow())

	assert.False(t, result.OverallMatch)
	d := result.FieldDecisions[0]
	assert.Equal(t, "title", d.CSVField)
	assert.False(t, d.Match)
}

func TestRunCancelledBeforeNavigation(t *testing.T) {
	p, root := newPipeline(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pages := matchingPage()
	pages["https://x.example/items/1"].NavErr = context.Canceled
	result := p.Run(ctx, browser.NewFake(pages), testRow())

	assert.False(t, result.OverallMatch)
	require.NotEmpty(t, result.Errors)
	assert.Equal(t, types.ErrCancelled, result.Errors[0].Kind)

	// Best-effort evidence still lands despite the cancelled context.
	_, err := os.Stat(filepath.Join(root, result.EvidenceID, "index.json"))
	assert.NoError(t, err)
}

func TestWeightedAverageAggregation(t *testing.T) {
	pages := matchingPage()
	pages["https://x.example/items/1"].Elements["#note"] = &browser.FakeElement{Text: "totally different"}
	p, _ := newPipeline(t, func(c *Config) {
		c.Aggregation = AggregationWeightedAverage
		c.MinimumOverall = 0.5
	})

	result := p.Run(context.Background(), browser.NewFake(pages), testRow())

	// Two perfect required fields at weight 2 pull the average up past
	// the optional mismatch.
	assert.Greater(t, result.OverallConfidence, 0.5)
	assert.True(t, result.OverallMatch)
}

func TestDecisionsFollowMappingOrder(t *testing.T) {
	p, _ := newPipeline(t, nil)

	result := p.Run(context.Background(), browser.NewFake(matchingPage()), testRow())

	var fields []string
	for _, d := range result.FieldDecisions {
		fields = append(fields, d.CSVField)
	}
	assert.Equal(t, []string{"title", "author", "note"}, fields)
}
