// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package fuzzy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScoreIdentity(t *testing.T) {
	cfg := DefaultConfig()

	for _, s := range []string{"", "a", "Herman Melville", "Moby-Dick"} {
		assert.Equal(t, 1.0, Score(s, s, cfg), s)
	}
}

func TestScoreSymmetry(t *testing.T) {
	cfg := DefaultConfig()

	pairs := [][2]string{
		{"Herman Melville", "Melville, Herman"},
		{"Moby-Dick", "Moby Dick"},
		{"abc", "xyz"},
		{"", "something"},
	}
	for _, p := range pairs {
		assert.Equal(t, Score(p[0], p[1], cfg), Score(p[1], p[0], cfg), "%q vs %q", p[0], p[1])
	}
}

func TestCompareStringsThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Threshold = 0.8

	out := CompareStrings("Moby-Dick", "Moby-Dick", cfg)
	assert.True(t, out.Match)
	assert.Equal(t, 1.0, out.Confidence)

	// One transposed word pair still scores well on Jaro-Winkler.
	out = CompareStrings("Herman Melville", "Herman Melvile", cfg)
	assert.True(t, out.Match)
	assert.GreaterOrEqual(t, out.Confidence, 0.8)

	out = CompareStrings("Herman Melville", "Nathaniel Hawthorne", cfg)
	assert.False(t, out.Match)
	assert.LessOrEqual(t, out.Confidence, 0.5)
	assert.GreaterOrEqual(t, out.Confidence, 0.0)
}

func TestMaxOverAlgorithms(t *testing.T) {
	// Jaro-Winkler rewards shared prefixes far more than the edit-distance
	// ratio does; the max of both must win.
	cfg := Config{Algorithms: []Algorithm{Levenshtein}, Threshold: 0.8, CaseInsensitive: true}
	levOnly := Score("prefix match", "prefix mismatch", cfg)

	cfg.Algorithms = []Algorithm{Levenshtein, JaroWinkler}
	both := Score("prefix match", "prefix mismatch", cfg)

	assert.GreaterOrEqual(t, both, levOnly)
}

func TestCaseAndWhitespaceOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IgnoreWhitespace = true

	assert.Equal(t, 1.0, Score("MobyDick", "moby dick", cfg))

	cfg.CaseInsensitive = false
	assert.Less(t, Score("MOBY", "moby", cfg), 1.0)
}

func TestCompareNumbers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NumberTolerance = 0.01

	assert.True(t, CompareNumbers(19.99, 19.995, cfg).Match)
	assert.False(t, CompareNumbers(19.99, 20.99, cfg).Match)
}

func TestCompareDatesDayResolution(t *testing.T) {
	morning := time.Date(1851, 10, 18, 8, 0, 0, 0, time.UTC)
	evening := time.Date(1851, 10, 18, 23, 30, 0, 0, time.UTC)
	nextDay := time.Date(1851, 10, 19, 0, 0, 0, 0, time.UTC)

	assert.True(t, CompareDates(morning, evening).Match)
	assert.False(t, CompareDates(evening, nextDay).Match)
}
