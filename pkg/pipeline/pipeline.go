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

// Package pipeline drives one row through its state machine: navigate,
// extract, decide, persist evidence. Stages run under individual
// timeouts; a failed stage records its error and the row carries on
// with partial data, except navigation, which fails the row outright.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teradata-labs/recheck/pkg/browser"
	"github.com/teradata-labs/recheck/pkg/decision"
	"github.com/teradata-labs/recheck/pkg/evidence"
	"github.com/teradata-labs/recheck/pkg/extract"
	"github.com/teradata-labs/recheck/pkg/navigate"
	"github.com/teradata-labs/recheck/pkg/observability"
	"github.com/teradata-labs/recheck/pkg/types"
)

// State names the row machine's positions.
type State string

const (
	StateNew        State = "NEW"
	StateNavigating State = "NAVIGATING"
	StateExtracting State = "EXTRACTING"
	StateDeciding   State = "DECIDING"
	StatePersisting State = "PERSISTING_EVIDENCE"
	StateDone       State = "DONE"
	StateFailed     State = "FAILED"
)

// Timeouts bound each stage.
type Timeouts struct {
	Navigation         time.Duration `json:"navigation" yaml:"navigation"`
	DOMExtraction      time.Duration `json:"domExtraction" yaml:"domExtraction"`
	OCRProcessing      time.Duration `json:"ocrProcessing" yaml:"ocrProcessing"`
	ValidationDecision time.Duration `json:"validationDecision" yaml:"validationDecision"`
	EvidenceCollection time.Duration `json:"evidenceCollection" yaml:"evidenceCollection"`
}

// DefaultTimeouts returns the stock per-stage budgets.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Navigation:         30 * time.Second,
		DOMExtraction:      15 * time.Second,
		OCRProcessing:      45 * time.Second,
		ValidationDecision: 30 * time.Second,
		EvidenceCollection: 10 * time.Second,
	}
}

// Aggregation selects how per-field confidences roll up to the row.
type Aggregation string

const (
	// AggregationMinimum bounds the row by its weakest required field.
	AggregationMinimum Aggregation = "minimum"
	// AggregationWeightedAverage averages all fields, weighting required
	// ones double.
	AggregationWeightedAverage Aggregation = "weighted_average"
)

// Config wires a pipeline.
type Config struct {
	Navigator *navigate.Navigator
	Extractor *extract.Extractor
	Engine    *decision.Engine
	Evidence  *evidence.Collector
	Mappings  []types.FieldMapping
	// MinimumOverall is the row-level confidence floor. Defaults to 0.8.
	MinimumOverall float64
	Aggregation    Aggregation
	Timeouts       Timeouts
	Tracer         observability.Tracer
	Logger         *zap.Logger
}

// Pipeline validates rows one at a time.
type Pipeline struct {
	cfg Config
}

// New creates a pipeline.
func New(cfg Config) *Pipeline {
	if cfg.MinimumOverall <= 0 {
		cfg.MinimumOverall = 0.8
	}
	if cfg.Aggregation == "" {
		cfg.Aggregation = AggregationMinimum
	}
	zero := Timeouts{}
	if cfg.Timeouts == zero {
		cfg.Timeouts = DefaultTimeouts()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NewNoOpTracer()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Pipeline{cfg: cfg}
}

// Run drives one row to a terminal state. The returned result is
// always non-nil; errors encountered along the way are recorded on it.
// The row's evidence bundle is on disk before Run returns.
func (p *Pipeline) Run(ctx context.Context, session browser.Browser, row types.Row) *types.RowResult {
	ctx, span := p.cfg.Tracer.StartSpan(ctx, observability.SpanRow)
	defer p.cfg.Tracer.EndSpan(span)

	start := time.Now()
	result := &types.RowResult{
		RowID:      row.ID,
		RowIndex:   row.Index,
		Row:        row,
		EvidenceID: uuid.NewString(),
	}
	state := StateNew

	state = p.transition(row, state, StateNavigating)
	obs, navErr := p.navigate(ctx, session, row)
	result.Observation = obs
	if navErr != nil {
		result.Errors = append(result.Errors, asTyped(navErr))
		p.finish(ctx, result, StateFailed, start, row)
		return result
	}

	state = p.transition(row, state, StateExtracting)
	if err := p.extractStage(ctx, session, obs); err != nil {
		result.Errors = append(result.Errors, asTyped(err))
		if types.KindOf(err) == types.ErrCancelled {
			p.finish(ctx, result, StateFailed, start, row)
			return result
		}
	}

	state = p.transition(row, state, StateDeciding)
	if err := p.decideStage(ctx, row, obs, result); err != nil {
		result.Errors = append(result.Errors, asTyped(err))
		if types.KindOf(err) == types.ErrCancelled {
			p.finish(ctx, result, StateFailed, start, row)
			return result
		}
	}

	p.aggregate(result)

	p.transition(row, state, StatePersisting)
	final := StateDone
	if len(result.Errors) > 0 && result.FieldDecisions == nil {
		final = StateFailed
	}
	p.finish(ctx, result, final, start, row)
	return result
}

func (p *Pipeline) navigate(ctx context.Context, session browser.Browser, row types.Row) (*types.PageObservation, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeouts.Navigation)
	defer cancel()
	return p.cfg.Navigator.Load(ctx, session, row)
}

func (p *Pipeline) extractStage(ctx context.Context, session browser.Browser, obs *types.PageObservation) error {
	// OCR calls inside extraction carry their own budget; this timeout
	// covers the DOM work and acts as the stage's outer bound.
	budget := p.cfg.Timeouts.DOMExtraction + p.cfg.Timeouts.OCRProcessing
	stageCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	err := p.cfg.Extractor.ExtractAll(stageCtx, session, p.cfg.Mappings, obs)
	return classifyStage(ctx, err, "extraction")
}

func (p *Pipeline) decideStage(ctx context.Context, row types.Row, obs *types.PageObservation, result *types.RowResult) error {
	ctx, span := p.cfg.Tracer.StartSpan(ctx, observability.SpanDecision)
	defer p.cfg.Tracer.EndSpan(span)

	stageCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeouts.ValidationDecision)
	defer cancel()

	byField := make(map[string]types.ExtractedField, len(obs.ExtractedFields))
	for _, f := range obs.ExtractedFields {
		byField[f.CSVField] = f
	}

	// Decisions follow the declared mapping order.
	for _, mapping := range p.cfg.Mappings {
		if err := stageCtx.Err(); err != nil {
			return classifyStage(ctx, err, "decision")
		}
		extracted, ok := byField[mapping.CSVField]
		if !ok {
			extracted = types.ExtractedField{CSVField: mapping.CSVField, Method: types.MethodDOM}
		}
		csvValue, _ := row.Get(mapping.CSVField)
		result.FieldDecisions = append(result.FieldDecisions,
			p.cfg.Engine.Decide(stageCtx, mapping, csvValue, extracted))
	}
	return nil
}

// aggregate rolls field decisions up to the row verdict. The minimum
// aggregation bounds the row by its weakest required field.
func (p *Pipeline) aggregate(result *types.RowResult) {
	if len(result.FieldDecisions) == 0 {
		result.OverallMatch = false
		result.OverallConfidence = 0
		return
	}

	required := make(map[string]bool, len(p.cfg.Mappings))
	for _, m := range p.cfg.Mappings {
		required[m.CSVField] = m.Required
	}

	allRequiredMatch := true
	minRequired := 1.0
	sawRequired := false
	var weightedSum, weightTotal float64

	for _, d := range result.FieldDecisions {
		weight := 1.0
		if required[d.CSVField] {
			weight = 2.0
			sawRequired = true
			if !d.Match {
				allRequiredMatch = false
			}
			if d.Confidence < minRequired {
				minRequired = d.Confidence
			}
		}
		weightedSum += d.Confidence * weight
		weightTotal += weight
	}

	switch {
	case p.cfg.Aggregation == AggregationWeightedAverage:
		result.OverallConfidence = weightedSum / weightTotal
	case sawRequired:
		result.OverallConfidence = minRequired
	default:
		result.OverallConfidence = weightedSum / weightTotal
	}
	result.OverallMatch = allRequiredMatch && result.OverallConfidence >= p.cfg.MinimumOverall
}

// finish persists whatever evidence exists and closes out the row.
// Evidence writes use a detached context so a cancelled row still gets
// its best-effort bundle.
func (p *Pipeline) finish(ctx context.Context, result *types.RowResult, state State, start time.Time, row types.Row) {
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.Timeouts.EvidenceCollection)
	defer cancel()

	if err := p.cfg.Evidence.Persist(persistCtx, result.EvidenceID, result); err != nil {
		result.Errors = append(result.Errors, asTyped(err))
		state = StateFailed
		result.OverallMatch = false
	}

	if state == StateFailed {
		result.OverallMatch = false
	}
	result.ProcessingTimeMs = time.Since(start).Milliseconds()

	p.cfg.Logger.Debug("row finished",
		zap.String("row_id", row.ID),
		zap.String("state", string(state)),
		zap.Bool("overall_match", result.OverallMatch),
		zap.Float64("overall_confidence", result.OverallConfidence),
		zap.Int64("elapsed_ms", result.ProcessingTimeMs),
	)
}

func (p *Pipeline) transition(row types.Row, from, to State) State {
	p.cfg.Logger.Debug("row state",
		zap.String("row_id", row.ID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return to
}

// classifyStage distinguishes the parent being cancelled from the
// stage's own deadline expiring.
func classifyStage(parent context.Context, err error, stage string) error {
	if err == nil {
		return nil
	}
	if parent.Err() != nil || errors.Is(err, context.Canceled) {
		return types.WrapError(types.ErrCancelled, false, err, "%s cancelled", stage)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.WrapError(types.ErrStageTimeout, true, err, "%s stage timed out", stage)
	}
	return err
}

func asTyped(err error) *types.Error {
	var te *types.Error
	if errors.As(err, &te) {
		return te
	}
	return types.WrapError(types.ErrTransport, true, err, "unclassified failure")
}
