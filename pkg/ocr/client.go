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

package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/recheck/pkg/types"
)

// ClientConfig configures the HTTP OCR engine client.
type ClientConfig struct {
	// BaseURL of the recognition service, e.g. "http://127.0.0.1:8600".
	BaseURL string
	// Timeout bounds one recognition call. Defaults to 45s; region
	// captures of dense pages can take a while.
	Timeout time.Duration
	// PreprocessLocally runs the image pipeline here before upload
	// instead of asking the engine to do it.
	PreprocessLocally bool
	HTTPClient        *http.Client
	Logger            *zap.Logger
}

// Client talks to an OCR service over HTTP.
type Client struct {
	cfg ClientConfig
}

// NewClient creates an OCR engine client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Client{cfg: cfg}
}

type recogniseRequest struct {
	Image   string  `json:"image"`
	Options Options `json:"options"`
}

// Recognise submits an image and returns the recognized text.
func (c *Client) Recognise(ctx context.Context, image []byte, opts Options) (*Result, error) {
	if c.cfg.PreprocessLocally {
		processed, err := Preprocess(image, opts.Preprocessing)
		if err != nil {
			c.cfg.Logger.Warn("preprocessing failed, sending raw image", zap.Error(err))
		} else {
			image = processed
			// The engine must not preprocess a second time.
			opts.Preprocessing = Preprocessing{}
		}
	}

	body, err := json.Marshal(recogniseRequest{
		Image:   base64.StdEncoding.EncodeToString(image),
		Options: opts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal recognition request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/recognise", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build recognition request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, types.WrapError(types.ErrTransport, true, err, "ocr request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, types.NewError(types.ErrTransport, true, "ocr engine returned %d: %s", resp.StatusCode, string(payload))
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, types.WrapError(types.ErrTransport, true, err, "failed to decode ocr response")
	}
	if result.ProcessingTimeMs == 0 {
		result.ProcessingTimeMs = time.Since(start).Milliseconds()
	}

	c.cfg.Logger.Debug("ocr recognition complete",
		zap.Float64("confidence", result.Confidence),
		zap.Int("words", len(result.Words)),
		zap.Int64("processing_ms", result.ProcessingTimeMs),
	)
	return &result, nil
}

var _ Engine = (*Client)(nil)
