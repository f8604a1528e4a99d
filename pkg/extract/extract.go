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

// Package extract pulls field values out of a loaded page. DOM
// extraction runs first through the declared selector and derived
// fallbacks; when the result is low-confidence and the mapping allows
// it, an OCR pass over the element region decides whether it can do
// better.
package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teradata-labs/recheck/pkg/browser"
	"github.com/teradata-labs/recheck/pkg/normalize"
	"github.com/teradata-labs/recheck/pkg/observability"
	"github.com/teradata-labs/recheck/pkg/ocr"
	"github.com/teradata-labs/recheck/pkg/types"
)

// Confidence ladder for DOM extraction.
const (
	ConfidenceFound    = 0.9
	ConfidenceEmpty    = 0.3
	ConfidenceNotFound = 0.0
)

// Config configures an extractor.
type Config struct {
	Normalization normalize.Policy
	// OCR is optional; nil disables the fallback regardless of strategy.
	OCR ocr.Engine
	// OCRFallbackThreshold is the DOM confidence below which the OCR
	// fallback fires. Defaults to 0.5.
	OCRFallbackThreshold float64
	// OCRConfidenceCap bounds OCR-sourced confidence. Defaults to 0.8.
	OCRConfidenceCap float64
	// RegionMargin is the pixel margin added around the element bounding
	// box before capture. Defaults to 10.
	RegionMargin float64
	// SkipScreenshots drops OCR capture records from the observation; the
	// image is still taken for recognition.
	SkipScreenshots bool
	Tracer          observability.Tracer
	Logger          *zap.Logger
}

// Extractor extracts mapped fields from a page session.
type Extractor struct {
	cfg Config
}

// New creates an extractor.
func New(cfg Config) *Extractor {
	if cfg.OCRFallbackThreshold <= 0 {
		cfg.OCRFallbackThreshold = 0.5
	}
	if cfg.OCRConfidenceCap <= 0 {
		cfg.OCRConfidenceCap = 0.8
	}
	if cfg.RegionMargin <= 0 {
		cfg.RegionMargin = 10
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NewNoOpTracer()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Extractor{cfg: cfg}
}

// ExtractAll runs every mapping against the session and appends the
// extracted fields and any captures to the observation.
func (e *Extractor) ExtractAll(ctx context.Context, session browser.Browser, mappings []types.FieldMapping, obs *types.PageObservation) error {
	for _, mapping := range mappings {
		if err := ctx.Err(); err != nil {
			return err
		}
		field, shots := e.Extract(ctx, session, mapping)
		obs.ExtractedFields = append(obs.ExtractedFields, field)
		obs.Screenshots = append(obs.Screenshots, shots...)
	}
	return nil
}

// Extract resolves one mapping. It never returns an error: extraction
// trouble is expressed through the confidence ladder so the decision
// engine can judge the field anyway.
func (e *Extractor) Extract(ctx context.Context, session browser.Browser, mapping types.FieldMapping) (types.ExtractedField, []types.Screenshot) {
	ctx, span := e.cfg.Tracer.StartSpan(ctx, observability.SpanExtraction)
	defer e.cfg.Tracer.EndSpan(span)

	field := types.ExtractedField{
		CSVField:   mapping.CSVField,
		Method:     types.MethodDOM,
		Confidence: ConfidenceNotFound,
	}
	var shots []types.Screenshot

	element := e.locate(ctx, session, mapping)
	if element != nil {
		raw, err := element.Value(ctx)
		if err != nil {
			e.cfg.Logger.Warn("failed to read element value",
				zap.String("field", mapping.CSVField),
				zap.Error(err),
			)
		} else {
			field.RawValue = raw
		}
		if box, err := element.BoundingBox(ctx); err == nil && box != nil {
			field.BoundingBox = box
		}

		norm := normalize.Normalize(field.RawValue, mapping.FieldType, e.cfg.Normalization)
		if norm.OK && norm.Text != "" {
			field.NormalizedValue = norm.Text
			field.Confidence = ConfidenceFound
		} else {
			field.Confidence = ConfidenceEmpty
		}
	}

	if field.Confidence < e.cfg.OCRFallbackThreshold && mapping.OCREnabled() && e.cfg.OCR != nil {
		ocrField, shot := e.ocrFallback(ctx, session, mapping, field.BoundingBox)
		if shot != nil && !e.cfg.SkipScreenshots {
			shots = append(shots, *shot)
		}
		// The stronger of the two wins; both captures stay in evidence.
		if ocrField != nil && ocrField.Confidence > field.Confidence {
			ocrField.BoundingBox = field.BoundingBox
			field = *ocrField
		}
	}

	return field, shots
}

// locate tries the declared selector, then fallbacks derived from it.
func (e *Extractor) locate(ctx context.Context, session browser.Browser, mapping types.FieldMapping) browser.Element {
	for _, selector := range candidateSelectors(mapping) {
		element, err := session.QuerySelector(ctx, selector)
		if err != nil {
			e.cfg.Logger.Debug("selector query failed",
				zap.String("field", mapping.CSVField),
				zap.String("selector", selector),
				zap.Error(err),
			)
			continue
		}
		if element != nil {
			return element
		}
	}
	return nil
}

// candidateSelectors derives fallback selectors from the declared one:
// id and class variants, name/data attributes, and finally the csv
// field name itself.
func candidateSelectors(mapping types.FieldMapping) []string {
	selectors := []string{mapping.WebSelector}
	seen := map[string]bool{mapping.WebSelector: true}
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			selectors = append(selectors, s)
		}
	}

	if name, ok := strings.CutPrefix(mapping.WebSelector, "#"); ok && isSimpleToken(name) {
		add(fmt.Sprintf("[name=%q]", name))
		add(fmt.Sprintf("[data-field=%q]", name))
		add("." + name)
	}
	if name, ok := strings.CutPrefix(mapping.WebSelector, "."); ok && isSimpleToken(name) {
		add(fmt.Sprintf("[class*=%q]", name))
		add("#" + name)
	}
	if isSimpleToken(mapping.CSVField) {
		add("#" + mapping.CSVField)
		add(fmt.Sprintf("[name=%q]", mapping.CSVField))
		add(fmt.Sprintf("[data-field=%q]", mapping.CSVField))
	}
	return selectors
}

func isSimpleToken(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

// ocrFallback captures the element region (or the viewport when no box
// is known) and asks the OCR engine for a reading.
func (e *Extractor) ocrFallback(ctx context.Context, session browser.Browser, mapping types.FieldMapping, box *types.Region) (*types.ExtractedField, *types.Screenshot) {
	ctx, span := e.cfg.Tracer.StartSpan(ctx, observability.SpanOCR)
	defer e.cfg.Tracer.EndSpan(span)

	var (
		img    []byte
		err    error
		region *types.Region
	)
	if box != nil {
		r := expand(*box, e.cfg.RegionMargin)
		region = &r
		img, err = session.ScreenshotRegion(ctx, r)
	} else {
		img, err = session.ScreenshotFull(ctx)
	}
	if err != nil {
		e.cfg.Logger.Warn("ocr capture failed",
			zap.String("field", mapping.CSVField),
			zap.Error(err),
		)
		return nil, nil
	}

	shot := &types.Screenshot{
		ID:         uuid.NewString(),
		Bytes:      img,
		Encoding:   "png",
		Region:     region,
		CapturedAt: time.Now().UTC(),
		Kind:       types.ScreenshotElement,
		Field:      mapping.CSVField,
	}

	result, err := e.cfg.OCR.Recognise(ctx, img, ocr.Options{
		Preprocessing: ocr.DefaultPreprocessing(),
	})
	if err != nil {
		e.cfg.Logger.Warn("ocr recognition failed",
			zap.String("field", mapping.CSVField),
			zap.Error(err),
		)
		return nil, shot
	}

	value, confidence := pickValue(result, mapping)
	if value == "" {
		return nil, shot
	}
	if confidence > e.cfg.OCRConfidenceCap {
		confidence = e.cfg.OCRConfidenceCap
	}

	field := &types.ExtractedField{
		CSVField:   mapping.CSVField,
		RawValue:   value,
		Method:     types.MethodOCR,
		Confidence: confidence,
	}
	if norm := normalize.Normalize(value, mapping.FieldType, e.cfg.Normalization); norm.OK {
		field.NormalizedValue = norm.Text
	}
	return field, shot
}

// expand grows a region by margin on every side, clamped to the origin.
func expand(r types.Region, margin float64) types.Region {
	x := r.X - margin
	y := r.Y - margin
	w := r.Width + 2*margin
	h := r.Height + 2*margin
	if x < 0 {
		w += x
		x = 0
	}
	if y < 0 {
		h += y
		y = 0
	}
	return types.Region{X: x, Y: y, Width: w, Height: h}
}
