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

// Package observability provides lightweight span timing for the
// validation core. Runner and pipeline open one span per row and one
// per stage; implementations either discard them or log them.
package observability

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Span names used by the core.
const (
	SpanRun        = "run"
	SpanRow        = "row"
	SpanNavigation = "row.navigation"
	SpanExtraction = "row.extraction"
	SpanDecision   = "row.decision"
	SpanEvidence   = "row.evidence"
	SpanAdjudicate = "decision.adjudicate"
	SpanOCR        = "extraction.ocr"
)

// Span is one timed operation.
type Span struct {
	Name       string
	StartedAt  time.Time
	mu         sync.Mutex
	attributes map[string]any
}

// SetAttribute attaches a key/value to the span. Safe for concurrent use.
func (s *Span) SetAttribute(key string, value any) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attributes == nil {
		s.attributes = make(map[string]any)
	}
	s.attributes[key] = value
}

// Tracer instruments core operations.
//
// Thread-safe: all methods can be called concurrently.
type Tracer interface {
	// StartSpan creates a new span. Always end it via EndSpan, usually
	// with defer.
	StartSpan(ctx context.Context, name string) (context.Context, *Span)

	// EndSpan completes a span and records its duration.
	EndSpan(span *Span)
}

type contextKey string

const spanContextKey contextKey = "recheck.span"

// SpanFromContext retrieves the current span from context, if any.
func SpanFromContext(ctx context.Context) *Span {
	if span, ok := ctx.Value(spanContextKey).(*Span); ok {
		return span
	}
	return nil
}

// NoOpTracer discards all spans. Used in tests and when tracing is off.
type NoOpTracer struct{}

// NewNoOpTracer creates a tracer that does nothing.
func NewNoOpTracer() *NoOpTracer { return &NoOpTracer{} }

func (t *NoOpTracer) StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	return ctx, nil
}

func (t *NoOpTracer) EndSpan(span *Span) {}

// ZapTracer logs span completions at debug level with their duration
// and attributes.
type ZapTracer struct {
	logger *zap.Logger
}

// NewZapTracer creates a tracer backed by the given logger.
func NewZapTracer(logger *zap.Logger) *ZapTracer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapTracer{logger: logger}
}

func (t *ZapTracer) StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	span := &Span{Name: name, StartedAt: time.Now()}
	return context.WithValue(ctx, spanContextKey, span), span
}

func (t *ZapTracer) EndSpan(span *Span) {
	if span == nil {
		return
	}
	span.mu.Lock()
	attrs := make([]zap.Field, 0, len(span.attributes)+2)
	attrs = append(attrs,
		zap.String("span", span.Name),
		zap.Duration("duration", time.Since(span.StartedAt)),
	)
	for k, v := range span.attributes {
		attrs = append(attrs, zap.Any(k, v))
	}
	span.mu.Unlock()

	t.logger.Debug("span completed", attrs...)
}

var (
	_ Tracer = (*NoOpTracer)(nil)
	_ Tracer = (*ZapTracer)(nil)
)
