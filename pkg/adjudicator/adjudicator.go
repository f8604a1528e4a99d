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

// Package adjudicator submits ambiguous field comparisons to an external
// reasoning backend and parses its response envelope tolerantly. The
// backend is optional: when it is unreachable the package degrades to a
// deterministic fallback verdict so a run always completes.
package adjudicator

import (
	"context"

	"github.com/teradata-labs/recheck/pkg/types"
)

// IssueLLMUnavailable is attached to verdicts produced by the
// deterministic fallback after the backend was exhausted.
const IssueLLMUnavailable = "llm_unavailable"

// Request carries one field comparison to the backend.
type Request struct {
	CSVValue  string          `json:"csvValue"`
	WebValue  string          `json:"webValue"`
	FieldType types.FieldType `json:"fieldType"`
	FieldName string          `json:"fieldName"`
}

// Verdict is the backend's judgment of one comparison.
type Verdict struct {
	Match         bool     `json:"match"`
	Confidence    float64  `json:"confidence"`
	Reasoning     string   `json:"reasoning"`
	NormalizedCSV string   `json:"normalizedCsv,omitempty"`
	NormalizedWeb string   `json:"normalizedWeb,omitempty"`
	Issues        []string `json:"issues,omitempty"`
	// Raw is the unparsed backend response, preserved for the evidence
	// audit trail.
	Raw string `json:"-"`
}

// Adjudicator is the reasoning capability consulted by the decision
// engine for low-confidence hybrid fields.
type Adjudicator interface {
	// Health probes the backend. A nil return means the backend is
	// usable for this run.
	Health(ctx context.Context) error

	// Adjudicate judges one comparison. Implementations must honour ctx
	// cancellation and must return a verdict (possibly the fallback)
	// rather than an error whenever they can.
	Adjudicate(ctx context.Context, req Request) (*Verdict, error)
}

// FallbackVerdict is the deterministic answer used once the backend is
// exhausted: match iff both normalized values are equal, with fixed
// confidences so reruns are reproducible.
func FallbackVerdict(req Request) *Verdict {
	match := req.CSVValue == req.WebValue
	confidence := 0.2
	if match {
		confidence = 0.6
	}
	return &Verdict{
		Match:      match,
		Confidence: confidence,
		Reasoning:  "adjudicator unavailable, fell back to normalized equality",
		Issues:     []string{IssueLLMUnavailable},
	}
}
