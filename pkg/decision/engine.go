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

// Package decision combines normalized comparison, fuzzy scoring, and
// optional adjudication into a single field decision with confidence and
// reasoning. The deterministic path always wins ties so that reruns are
// reproducible.
package decision

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/recheck/pkg/adjudicator"
	"github.com/teradata-labs/recheck/pkg/fuzzy"
	"github.com/teradata-labs/recheck/pkg/normalize"
	"github.com/teradata-labs/recheck/pkg/observability"
	"github.com/teradata-labs/recheck/pkg/types"
)

// Issue strings recorded on decisions.
const (
	IssueNormalizationFailed  = "normalization_failed"
	IssueAdjudicatorConsulted = "adjudicator_consulted"
)

// Config configures a decision engine.
type Config struct {
	Normalization normalize.Policy
	Fuzzy         fuzzy.Config
	// FieldThreshold is the per-field confidence below which a hybrid
	// field consults the adjudicator.
	FieldThreshold float64
	// RulesetVersion participates in the cache key so changed rules
	// never reuse stale decisions.
	RulesetVersion string
	// Adjudicator is optional; nil disables the reasoning path.
	Adjudicator adjudicator.Adjudicator
	// Cache is optional; nil disables caching.
	Cache  *Cache
	Tracer observability.Tracer
	Logger *zap.Logger
}

// Engine produces field decisions.
type Engine struct {
	cfg Config
}

// NewEngine creates a decision engine.
func NewEngine(cfg Config) *Engine {
	if cfg.FieldThreshold <= 0 {
		cfg.FieldThreshold = 0.7
	}
	if cfg.RulesetVersion == "" {
		cfg.RulesetVersion = "v1"
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NewNoOpTracer()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Engine{cfg: cfg}
}

// Decide judges one field: the declared row value against the extracted
// web value.
func (e *Engine) Decide(ctx context.Context, mapping types.FieldMapping, csvValue any, extracted types.ExtractedField) types.FieldDecision {
	csvRaw, _ := normalize.Stringify(csvValue)

	decision := types.FieldDecision{
		CSVField: mapping.CSVField,
		CSVValue: csvRaw,
		WebValue: extracted.RawValue,
		Method:   extracted.Method,
	}

	csvNorm := normalize.Normalize(csvValue, mapping.FieldType, e.cfg.Normalization)
	webNorm := normalize.Normalize(extracted.RawValue, mapping.FieldType, e.cfg.Normalization)

	if !csvNorm.OK || !webNorm.OK {
		decision.Match = false
		decision.Confidence = 0
		decision.Issues = append(decision.Issues, IssueNormalizationFailed)
		switch {
		case !csvNorm.OK && !webNorm.OK:
			decision.Reasoning = fmt.Sprintf("normalization failed on both sides: %s; %s", csvNorm.Reason, webNorm.Reason)
		case !csvNorm.OK:
			decision.Reasoning = fmt.Sprintf("declared value failed normalization: %s", csvNorm.Reason)
		default:
			decision.Reasoning = fmt.Sprintf("web value failed normalization: %s", webNorm.Reason)
		}
		return decision
	}

	decision.NormalizedCSV = csvNorm.Text
	decision.NormalizedWeb = webNorm.Text

	// Cache lookup keys on normalized values, so it only applies past
	// the normalization gate above.
	key := Key(csvNorm.Text, webNorm.Text, mapping.FieldType, e.cfg.RulesetVersion)
	if cached, ok := e.cfg.Cache.Get(key); ok {
		e.cfg.Logger.Debug("decision cache hit",
			zap.String("field", mapping.CSVField),
			zap.String("key", key[:12]),
		)
		cached.CSVField = mapping.CSVField
		cached.CSVValue = csvRaw
		cached.WebValue = extracted.RawValue
		// Extraction-sourced methods reflect this row's extraction, not
		// the row that populated the cache.
		if cached.Method == types.MethodDOM || cached.Method == types.MethodOCR {
			cached.Method = extracted.Method
		}
		// The exact-equality confidence depends on raw values, which are
		// not part of the key; recompute it for this row.
		if cached.Match && cached.FuzzyScore == nil {
			if cached.CSVValue == cached.WebValue {
				cached.Confidence = 1.0
				cached.Reasoning = "values are identical"
			} else {
				cached.Confidence = 0.95
				cached.Reasoning = "values are identical after normalization"
			}
		}
		cached.Issues = append(append([]string(nil), cached.Issues...), IssueCacheHit)
		return cached
	}

	e.decide(ctx, mapping, &decision, csvNorm, webNorm, extracted)

	e.cfg.Cache.Set(key, stripVolatile(decision))
	return decision
}

// stripVolatile clears the fields that are re-stamped on every cache hit
// so cached entries stay input-independent.
func stripVolatile(d types.FieldDecision) types.FieldDecision {
	d.CSVValue = ""
	d.WebValue = ""
	return d
}

func (e *Engine) decide(ctx context.Context, mapping types.FieldMapping, decision *types.FieldDecision, csvNorm, webNorm normalize.Result, extracted types.ExtractedField) {
	// Exact equality short-circuits: 1.0 on raw equality, 0.95 when only
	// the normalized forms agree.
	if csvNorm.Text == webNorm.Text {
		decision.Match = true
		if decision.CSVValue == decision.WebValue {
			decision.Confidence = 1.0
			decision.Reasoning = "values are identical"
		} else {
			decision.Confidence = 0.95
			decision.Reasoning = "values are identical after normalization"
		}
		return
	}

	fuzzyOutcome := e.compare(mapping.FieldType, csvNorm, webNorm)
	decision.Match = fuzzyOutcome.Match
	decision.Confidence = fuzzyOutcome.Confidence
	decision.FuzzyScore = &fuzzyOutcome.Score
	decision.Method = types.MethodFuzzy
	if fuzzyOutcome.Match {
		decision.Reasoning = fmt.Sprintf("fuzzy similarity %.2f at or above threshold %.2f", fuzzyOutcome.Score, e.cfg.Fuzzy.Threshold)
	} else {
		decision.Reasoning = fmt.Sprintf("fuzzy similarity %.2f below threshold %.2f", fuzzyOutcome.Score, e.cfg.Fuzzy.Threshold)
	}

	if mapping.Strategy != types.StrategyHybrid || e.cfg.Adjudicator == nil {
		return
	}
	if decision.Confidence >= e.cfg.FieldThreshold {
		return
	}

	ctx, span := e.cfg.Tracer.StartSpan(ctx, observability.SpanAdjudicate)
	defer e.cfg.Tracer.EndSpan(span)

	verdict, err := e.cfg.Adjudicator.Adjudicate(ctx, adjudicator.Request{
		CSVValue:  csvNorm.Text,
		WebValue:  webNorm.Text,
		FieldType: mapping.FieldType,
		FieldName: mapping.CSVField,
	})
	if err != nil {
		decision.Issues = append(decision.Issues, string(types.ErrLLMUnavailable))
		e.cfg.Logger.Warn("adjudication failed, keeping fuzzy decision",
			zap.String("field", mapping.CSVField),
			zap.Error(err),
		)
		return
	}

	decision.RawAdjudication = verdict.Raw
	decision.Issues = append(decision.Issues, verdict.Issues...)
	e.reconcile(decision, fuzzyOutcome, verdict)
}

// reconcile merges the fuzzy outcome with the adjudicator verdict.
// Agreement takes the better score; disagreement within 0.1 keeps the
// deterministic fuzzy decision for reproducibility, otherwise the higher
// confidence wins.
func (e *Engine) reconcile(decision *types.FieldDecision, fuzzyOutcome fuzzy.Outcome, verdict *adjudicator.Verdict) {
	if verdict.Match == fuzzyOutcome.Match {
		if verdict.Confidence > fuzzyOutcome.Confidence {
			decision.Confidence = verdict.Confidence
			decision.Method = types.MethodLLM
			decision.Reasoning = verdict.Reasoning
		}
		return
	}

	gap := verdict.Confidence - fuzzyOutcome.Confidence
	if gap < 0 {
		gap = -gap
	}
	if gap <= 0.1 {
		// The consultation is flagged only here, where it changed nothing;
		// an adopted verdict already shows up as method llm.
		decision.Issues = append(decision.Issues, IssueAdjudicatorConsulted)
		decision.Reasoning = fmt.Sprintf("%s (adjudicator disagreed within tie-break margin)", decision.Reasoning)
		return
	}
	if verdict.Confidence > fuzzyOutcome.Confidence {
		decision.Match = verdict.Match
		decision.Confidence = verdict.Confidence
		decision.Method = types.MethodLLM
		decision.Reasoning = verdict.Reasoning
	}
}

// compare runs the type-appropriate deterministic comparison.
func (e *Engine) compare(fieldType types.FieldType, csvNorm, webNorm normalize.Result) fuzzy.Outcome {
	switch fieldType {
	case types.FieldTypeNumber, types.FieldTypeCurrency:
		return fuzzy.CompareNumbers(csvNorm.Number, webNorm.Number, e.cfg.Fuzzy)
	case types.FieldTypeDate:
		a, errA := time.Parse(dateLayout(e.cfg.Normalization), csvNorm.Text)
		b, errB := time.Parse(dateLayout(e.cfg.Normalization), webNorm.Text)
		if errA != nil || errB != nil {
			return fuzzy.Outcome{Score: 0, Match: false, Confidence: 0.5}
		}
		return fuzzy.CompareDates(a, b)
	case types.FieldTypeBoolean:
		if csvNorm.Bool == webNorm.Bool {
			return fuzzy.Outcome{Score: 1, Match: true, Confidence: 1}
		}
		return fuzzy.Outcome{Score: 0, Match: false, Confidence: 0.5}
	default:
		return fuzzy.CompareStrings(csvNorm.Text, webNorm.Text, e.cfg.Fuzzy)
	}
}

func dateLayout(p normalize.Policy) string {
	if p.Dates.TargetFormat != "" {
		return p.Dates.TargetFormat
	}
	return "2006-01-02"
}
