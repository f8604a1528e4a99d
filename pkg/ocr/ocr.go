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

// Package ocr defines the text-recognition capability used by the page
// extractor when DOM extraction comes back low-confidence, plus an HTTP
// engine client and the image preprocessing that feeds it.
package ocr

import (
	"context"

	"github.com/teradata-labs/recheck/pkg/types"
)

// Preprocessing selects the image cleanup steps applied before
// recognition.
type Preprocessing struct {
	EnhanceContrast bool `json:"enhanceContrast"`
	Denoise         bool `json:"denoise"`
	// Upscale doubles the image resolution. Small rendered text
	// recognizes markedly better at 2x.
	Upscale bool `json:"upscale"`
}

// DefaultPreprocessing enables every cleanup step.
func DefaultPreprocessing() Preprocessing {
	return Preprocessing{EnhanceContrast: true, Denoise: true, Upscale: true}
}

// Options parameterize one recognition call.
type Options struct {
	Language      string        `json:"language,omitempty"`
	Preprocessing Preprocessing `json:"preprocessing"`
}

// Word is one recognized token with its position.
type Word struct {
	Text       string       `json:"text"`
	Confidence float64      `json:"confidence"`
	BBox       types.Region `json:"bbox"`
}

// Result is the outcome of one recognition call.
type Result struct {
	Text             string  `json:"text"`
	Words            []Word  `json:"words"`
	Confidence       float64 `json:"confidence"`
	ProcessingTimeMs int64   `json:"processingTimeMs"`
}

// Engine recognizes text in an image.
type Engine interface {
	Recognise(ctx context.Context, image []byte, opts Options) (*Result, error)
}
