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

// Package fuzzy scores similarity between two already-normalized values.
// Scoring is deterministic and symmetric; the same pair always yields the
// same score regardless of argument order.
package fuzzy

import (
	"math"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/xrash/smetrics"
)

// Algorithm names accepted in configuration.
type Algorithm string

const (
	Levenshtein Algorithm = "levenshtein"
	JaroWinkler Algorithm = "jaro_winkler"
)

// Config controls comparison behavior.
type Config struct {
	// Algorithms are applied in declared order; the maximum score over
	// enabled algorithms is the final string score.
	Algorithms []Algorithm `json:"algorithms" yaml:"algorithms"`
	// Threshold is the string score at or above which a pair matches.
	Threshold float64 `json:"stringSimilarityThreshold" yaml:"stringSimilarityThreshold"`
	// NumberTolerance is the absolute difference within which two
	// numbers match.
	NumberTolerance  float64 `json:"numberTolerance" yaml:"numberTolerance"`
	CaseInsensitive  bool    `json:"caseInsensitive" yaml:"caseInsensitive"`
	IgnoreWhitespace bool    `json:"ignoreWhitespace" yaml:"ignoreWhitespace"`
}

// DefaultConfig returns the comparator defaults.
func DefaultConfig() Config {
	return Config{
		Algorithms:      []Algorithm{Levenshtein, JaroWinkler},
		Threshold:       0.8,
		NumberTolerance: 0.001,
		CaseInsensitive: true,
	}
}

// Outcome is a scored comparison.
type Outcome struct {
	Score      float64
	Match      bool
	Confidence float64
}

// CompareStrings scores a against b and applies the configured threshold.
// A score s >= threshold matches with confidence s; otherwise the pair
// mismatches with confidence 1-s clamped to [0, 0.5].
func CompareStrings(a, b string, cfg Config) Outcome {
	score := Score(a, b, cfg)

	if score >= cfg.Threshold {
		return Outcome{Score: score, Match: true, Confidence: score}
	}
	confidence := 1 - score
	if confidence > 0.5 {
		confidence = 0.5
	}
	if confidence < 0 {
		confidence = 0
	}
	return Outcome{Score: score, Match: false, Confidence: confidence}
}

// Score returns the maximum similarity in [0,1] over the enabled
// algorithms.
func Score(a, b string, cfg Config) float64 {
	if cfg.CaseInsensitive {
		a = strings.ToLower(a)
		b = strings.ToLower(b)
	}
	if cfg.IgnoreWhitespace {
		a = strings.Join(strings.Fields(a), "")
		b = strings.Join(strings.Fields(b), "")
	}

	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}

	algorithms := cfg.Algorithms
	if len(algorithms) == 0 {
		algorithms = []Algorithm{Levenshtein}
	}

	best := 0.0
	for _, alg := range algorithms {
		var s float64
		switch alg {
		case Levenshtein:
			s = levenshteinRatio(a, b)
		case JaroWinkler:
			s = smetrics.JaroWinkler(a, b, 0.7, 4)
		default:
			continue
		}
		if s > best {
			best = s
		}
	}
	return best
}

// levenshteinRatio converts edit distance into a similarity in [0,1].
func levenshteinRatio(a, b string) float64 {
	dist := levenshtein.ComputeDistance(a, b)
	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	if longest == 0 {
		return 1.0
	}
	return 1.0 - float64(dist)/float64(longest)
}

// CompareNumbers matches when the absolute difference is within the
// configured tolerance.
func CompareNumbers(a, b float64, cfg Config) Outcome {
	if math.Abs(a-b) <= cfg.NumberTolerance {
		return Outcome{Score: 1.0, Match: true, Confidence: 1.0}
	}
	return Outcome{Score: 0.0, Match: false, Confidence: 0.5}
}

// CompareDates matches when both instants fall on the same UTC day.
func CompareDates(a, b time.Time) Outcome {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	if ay == by && am == bm && ad == bd {
		return Outcome{Score: 1.0, Match: true, Confidence: 1.0}
	}
	return Outcome{Score: 0.0, Match: false, Confidence: 0.5}
}
