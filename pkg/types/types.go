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

// Package types defines the shared data model for the validation core:
// rows, field mappings, extraction results, decisions, and run reports.
package types

import (
	"time"
)

// FieldType classifies a column for normalization and comparison.
type FieldType string

const (
	FieldTypeText     FieldType = "text"
	FieldTypeEmail    FieldType = "email"
	FieldTypePhone    FieldType = "phone"
	FieldTypeCurrency FieldType = "currency"
	FieldTypeDate     FieldType = "date"
	FieldTypeName     FieldType = "name"
	FieldTypeAddress  FieldType = "address"
	FieldTypeNumber   FieldType = "number"
	FieldTypeBoolean  FieldType = "boolean"
)

// Strategy selects how a field is extracted and compared.
type Strategy string

const (
	// StrategyDOM extracts via DOM selector only.
	StrategyDOM Strategy = "dom"
	// StrategyOCR extracts via OCR on a screenshot region.
	StrategyOCR Strategy = "ocr"
	// StrategyHybrid extracts via DOM with OCR fallback, and may consult
	// an adjudicator when the deterministic decision is low-confidence.
	StrategyHybrid Strategy = "hybrid"
	// StrategyFuzzy compares with fuzzy string similarity.
	StrategyFuzzy Strategy = "fuzzy"
)

// Method records which subsystem produced a value or decision.
type Method string

const (
	MethodDOM    Method = "dom"
	MethodOCR    Method = "ocr"
	MethodFuzzy  Method = "fuzzy"
	MethodLLM    Method = "llm"
	MethodManual Method = "manual"
)

// Row is one input record. Values maps column name to a scalar
// (string, float64, bool) or nil when the cell is absent.
type Row struct {
	// ID is an opaque stable identifier used for evidence filing and
	// result correlation.
	ID     string         `json:"id"`
	Index  int            `json:"index"`
	Values map[string]any `json:"values"`
}

// Get returns the value for a column and whether it is present.
func (r Row) Get(column string) (any, bool) {
	v, ok := r.Values[column]
	return v, ok
}

// FieldMapping ties one row column to a page selector.
type FieldMapping struct {
	CSVField    string            `json:"csvField" yaml:"csvField"`
	WebSelector string            `json:"webSelector" yaml:"webSelector"`
	FieldType   FieldType         `json:"fieldType" yaml:"fieldType"`
	Required    bool              `json:"required" yaml:"required"`
	Strategy    Strategy          `json:"strategy" yaml:"strategy"`
	CustomRules map[string]string `json:"customRules,omitempty" yaml:"customRules,omitempty"`
}

// OCREnabled reports whether the mapping allows an OCR fallback.
func (m FieldMapping) OCREnabled() bool {
	return m.Strategy == StrategyOCR || m.Strategy == StrategyHybrid
}

// ScreenshotKind distinguishes full-page from element captures.
type ScreenshotKind string

const (
	ScreenshotFull    ScreenshotKind = "full"
	ScreenshotElement ScreenshotKind = "element"
)

// Region is a pixel rectangle on the page.
type Region struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Screenshot is a captured page image.
type Screenshot struct {
	ID         string         `json:"id"`
	Bytes      []byte         `json:"-"`
	Encoding   string         `json:"encoding"`
	Region     *Region        `json:"region,omitempty"`
	CapturedAt time.Time      `json:"capturedAt"`
	Kind       ScreenshotKind `json:"kind"`
	// Field is the csv field this capture belongs to, empty for full-page.
	Field string `json:"field,omitempty"`
}

// ExtractedField is the raw outcome of extracting one mapping from a page.
type ExtractedField struct {
	CSVField        string  `json:"csvField"`
	RawValue        string  `json:"rawValue"`
	NormalizedValue string  `json:"normalizedValue"`
	Method          Method  `json:"method"`
	Confidence      float64 `json:"confidence"`
	BoundingBox     *Region `json:"elementBoundingBox,omitempty"`
}

// Viewport is the browser viewport size used for a page load.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// PageObservation is everything recorded about one page visit.
type PageObservation struct {
	URL             string           `json:"url"`
	FinalURL        string           `json:"finalUrl"`
	Title           string           `json:"title"`
	LoadTimeMs      int64            `json:"loadTimeMs"`
	StatusCode      int              `json:"statusCode"`
	Redirects       []string         `json:"redirects"`
	Viewport        Viewport         `json:"viewport"`
	CapturedAt      time.Time        `json:"capturedAt"`
	ExtractedFields []ExtractedField `json:"extractedFields"`
	Screenshots     []Screenshot     `json:"screenshots"`
	DOMSnapshot     string           `json:"-"`
}

// FieldDecision is the verdict for one field of one row.
type FieldDecision struct {
	CSVField      string   `json:"csvField"`
	CSVValue      string   `json:"csvValue"`
	WebValue      string   `json:"webValue"`
	NormalizedCSV string   `json:"normalizedCsv"`
	NormalizedWeb string   `json:"normalizedWeb"`
	Match         bool     `json:"match"`
	Confidence    float64  `json:"confidence"`
	Reasoning     string   `json:"reasoning"`
	Method        Method   `json:"method"`
	FuzzyScore    *float64 `json:"fuzzyScore,omitempty"`
	Issues        []string `json:"issues,omitempty"`
	// RawAdjudication holds the unparsed adjudicator response when one
	// was consulted, for the evidence audit trail.
	RawAdjudication string `json:"rawAdjudication,omitempty"`
}

// RowResult is the frozen outcome of one row's validation.
type RowResult struct {
	RowID             string           `json:"rowId"`
	RowIndex          int              `json:"rowIndex"`
	Row               Row              `json:"row"`
	Observation       *PageObservation `json:"observation,omitempty"`
	FieldDecisions    []FieldDecision  `json:"fieldDecisions"`
	OverallMatch      bool             `json:"overallMatch"`
	OverallConfidence float64          `json:"overallConfidence"`
	ProcessingTimeMs  int64            `json:"processingTimeMs"`
	Errors            []*Error         `json:"errors,omitempty"`
	EvidenceID        string           `json:"evidenceId"`
}

// Failed reports whether the row ended without a usable outcome: it
// carries errors and either produced no field decisions or hit an
// unrecoverable error. A row that recovered after a retried attempt
// keeps its error trail but is not failed.
func (r RowResult) Failed() bool {
	if len(r.Errors) == 0 {
		return false
	}
	if len(r.FieldDecisions) == 0 {
		return true
	}
	for _, e := range r.Errors {
		if !e.Recoverable {
			return true
		}
	}
	return false
}

// Summary aggregates a run.
type Summary struct {
	TotalRows            int     `json:"totalRows"`
	Processed            int     `json:"processed"`
	Succeeded            int     `json:"succeeded"`
	Failed               int     `json:"failed"`
	AvgConfidence        float64 `json:"avgConfidence"`
	ErrorRate            float64 `json:"errorRate"`
	ThroughputRowsPerSec float64 `json:"throughputRowsPerSec"`
}

// Statistics carries distribution-level detail for a run.
type Statistics struct {
	// ConfidenceHistogram buckets overall confidences into ten 0.1 bins,
	// keyed "0.0-0.1" .. "0.9-1.0".
	ConfidenceHistogram map[string]int `json:"confidenceHistogram"`
	MethodUsage         map[Method]int `json:"methodUsage"`
	// FieldAccuracy is the per-field fraction of rows where the field matched.
	FieldAccuracy map[string]float64 `json:"fieldAccuracy"`
	ErrorsByKind  map[ErrorKind]int  `json:"errorsByKind"`
}

// RunOutcome classifies how a run ended.
type RunOutcome string

const (
	RunCompleted RunOutcome = "completed"
	RunEscalated RunOutcome = "escalated"
	RunCancelled RunOutcome = "cancelled"
)

// RunReport is the final output of a validation run.
type RunReport struct {
	RunID      string         `json:"runId"`
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt time.Time      `json:"finishedAt"`
	Outcome    RunOutcome     `json:"outcome"`
	Summary    Summary        `json:"summary"`
	Results    []RowResult    `json:"results"`
	Statistics Statistics     `json:"statistics"`
	Config     any            `json:"config,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Progress is delivered to the progress callback after each row completes.
type Progress struct {
	Processed int           `json:"processed"`
	Total     int           `json:"total"`
	ETA       time.Duration `json:"etaMs"`
}

// ProgressFunc receives progress updates. Implementations must not block.
type ProgressFunc func(Progress)
