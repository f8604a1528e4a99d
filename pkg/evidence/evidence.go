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

// Package evidence persists the audit trail of a validation run: one
// directory per row holding screenshots, the DOM snapshot, extraction
// and decision payloads, plus checksummed per-row and run-level
// indexes. A row is only reported complete after its bundle is on disk.
package evidence

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teradata-labs/recheck/pkg/observability"
	"github.com/teradata-labs/recheck/pkg/types"
)

// File kinds recorded in index entries.
const (
	KindScreenshot = "screenshot"
	KindDOM        = "dom"
	KindExtraction = "extraction"
	KindDecisions  = "decisions"
)

// Entry describes one file of a row bundle.
type Entry struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum"`
}

// RowIndex is the per-row index.json payload.
type RowIndex struct {
	EvidenceID string    `json:"evidenceId"`
	RowID      string    `json:"rowId"`
	RowIndex   int       `json:"rowIndex"`
	CreatedAt  time.Time `json:"createdAt"`
	Files      []Entry   `json:"files"`
}

// RunIndex is the run-level evidence_index.json payload.
type RunIndex struct {
	RunID     string     `json:"runId"`
	UpdatedAt time.Time  `json:"updatedAt"`
	Rows      []RowIndex `json:"rows"`
}

// Config configures a collector.
type Config struct {
	// Root is the directory that holds every row bundle.
	Root  string
	RunID string
	// RetentionDays ages out bundles. Defaults to 30.
	RetentionDays int
	// CompressionAfterDays turns aged bundles into tarballs. Defaults
	// to 7. Zero or negative after defaulting disables compression.
	CompressionAfterDays int
	Tracer               observability.Tracer
	Logger               *zap.Logger
}

// Collector writes evidence bundles.
type Collector struct {
	cfg Config

	mu  sync.Mutex
	run RunIndex
}

// NewCollector creates the root directory and an empty run index.
func NewCollector(cfg Config) (*Collector, error) {
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	if cfg.RetentionDays == 0 {
		cfg.RetentionDays = 30
	}
	if cfg.CompressionAfterDays == 0 {
		cfg.CompressionAfterDays = 7
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NewNoOpTracer()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
		return nil, types.WrapError(types.ErrOutputUnwritable, false, err, "cannot create evidence root %s", cfg.Root)
	}
	return &Collector{cfg: cfg, run: RunIndex{RunID: cfg.RunID}}, nil
}

// Persist writes the bundle for one row. Partial observations are
// written as far as they go, so a failed or cancelled row still leaves
// whatever was captured before the failure.
func (c *Collector) Persist(ctx context.Context, evidenceID string, result *types.RowResult) error {
	_, span := c.cfg.Tracer.StartSpan(ctx, observability.SpanEvidence)
	defer c.cfg.Tracer.EndSpan(span)

	dir := filepath.Join(c.cfg.Root, evidenceID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return types.WrapError(types.ErrEvidenceWrite, true, err, "cannot create bundle %s", evidenceID)
	}

	index := RowIndex{
		EvidenceID: evidenceID,
		RowID:      result.RowID,
		RowIndex:   result.RowIndex,
		CreatedAt:  time.Now().UTC(),
	}

	if obs := result.Observation; obs != nil {
		for _, shot := range obs.Screenshots {
			name := "full.png"
			if shot.Kind == types.ScreenshotElement {
				name = fmt.Sprintf("field-%s.png", shot.Field)
			}
			if err := c.writeFile(dir, name, KindScreenshot, shot.Bytes, &index); err != nil {
				return err
			}
		}
		if obs.DOMSnapshot != "" {
			if err := c.writeFile(dir, "dom.html", KindDOM, []byte(obs.DOMSnapshot), &index); err != nil {
				return err
			}
		}
		payload, err := json.MarshalIndent(obs.ExtractedFields, "", "  ")
		if err != nil {
			return types.WrapError(types.ErrEvidenceWrite, true, err, "cannot marshal extraction payload")
		}
		if err := c.writeFile(dir, "extracted.json", KindExtraction, payload, &index); err != nil {
			return err
		}
	}

	decisions, err := json.MarshalIndent(result.FieldDecisions, "", "  ")
	if err != nil {
		return types.WrapError(types.ErrEvidenceWrite, true, err, "cannot marshal decision log")
	}
	if err := c.writeFile(dir, "decisions.json", KindDecisions, decisions, &index); err != nil {
		return err
	}

	if err := writeJSON(filepath.Join(dir, "index.json"), index); err != nil {
		return types.WrapError(types.ErrEvidenceWrite, true, err, "cannot write row index for %s", evidenceID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.run.Rows = append(c.run.Rows, index)
	c.run.UpdatedAt = time.Now().UTC()
	if err := writeJSON(filepath.Join(c.cfg.Root, "evidence_index.json"), c.run); err != nil {
		return types.WrapError(types.ErrEvidenceWrite, true, err, "cannot write run index")
	}

	c.cfg.Logger.Debug("evidence bundle written",
		zap.String("evidence_id", evidenceID),
		zap.Int("files", len(index.Files)),
	)
	return nil
}

func (c *Collector) writeFile(dir, name, kind string, data []byte, index *RowIndex) error {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return types.WrapError(types.ErrEvidenceWrite, true, err, "cannot write %s", name)
	}
	sum := sha256.Sum256(data)
	index.Files = append(index.Files, Entry{
		Name:     name,
		Kind:     kind,
		Size:     int64(len(data)),
		Checksum: hex.EncodeToString(sum[:]),
	})
	return nil
}

// Index returns a snapshot of the run-level index.
func (c *Collector) Index() RunIndex {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.run
	out.Rows = append([]RowIndex(nil), c.run.Rows...)
	return out
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
