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

package adjudicator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// DefaultEndpoints are probed in order when none are configured. Both
// loopback families are tried because local inference servers commonly
// bind only one of them.
var DefaultEndpoints = []string{
	"http://127.0.0.1:8000",
	"http://127.0.0.1:8080",
	"http://[::1]:8000",
	"http://[::1]:8080",
}

// Config holds configuration for the HTTP adjudicator client.
type Config struct {
	Endpoints      []string      // Default: DefaultEndpoints
	HealthTimeout  time.Duration // Default: 5s
	RequestTimeout time.Duration // Default: 10s
	TotalBudget    time.Duration // Default: 30s per adjudication
	BackoffBase    time.Duration // Default: 2s, doubled per retry with jitter
	MaxRetries     int           // Default: 3
	MaxInFlight    int64         // Default: 3, sized to the worker pool
	Logger         *zap.Logger
}

// Client is an HTTP adjudicator. The first candidate endpoint that
// answers the health probe is pinned for the run; re-discovery happens
// after any two consecutive request failures.
type Client struct {
	cfg        Config
	httpClient *http.Client
	sem        *semaphore.Weighted

	mu           sync.RWMutex
	pinned       string
	consecFails  int
}

// NewClient creates an HTTP adjudicator client.
func NewClient(cfg Config) *Client {
	if len(cfg.Endpoints) == 0 {
		cfg.Endpoints = DefaultEndpoints
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = 5 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.TotalBudget <= 0 {
		cfg.TotalBudget = 30 * time.Second
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 2 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 3
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		sem:        semaphore.NewWeighted(cfg.MaxInFlight),
	}
}

// Health probes the pinned endpoint, discovering one first if needed.
func (c *Client) Health(ctx context.Context) error {
	endpoint, err := c.endpoint(ctx)
	if err != nil {
		return err
	}
	return c.probe(ctx, endpoint)
}

// Endpoint returns the currently pinned endpoint, empty when none.
func (c *Client) Endpoint() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pinned
}

// endpoint returns the pinned endpoint, running discovery when nothing
// is pinned yet.
func (c *Client) endpoint(ctx context.Context) (string, error) {
	c.mu.RLock()
	pinned := c.pinned
	c.mu.RUnlock()
	if pinned != "" {
		return pinned, nil
	}
	return c.discover(ctx)
}

// discover probes candidates in order and pins the first healthy one.
func (c *Client) discover(ctx context.Context) (string, error) {
	for _, candidate := range c.cfg.Endpoints {
		if err := c.probe(ctx, candidate); err != nil {
			c.cfg.Logger.Debug("adjudicator endpoint probe failed",
				zap.String("endpoint", candidate),
				zap.Error(err),
			)
			continue
		}
		c.mu.Lock()
		c.pinned = candidate
		c.consecFails = 0
		c.mu.Unlock()
		c.cfg.Logger.Info("adjudicator endpoint pinned", zap.String("endpoint", candidate))
		return candidate, nil
	}
	return "", fmt.Errorf("no adjudicator endpoint responded to health probe")
}

func (c *Client) probe(ctx context.Context, endpoint string) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.HealthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health probe returned status %d", resp.StatusCode)
	}
	return nil
}

// recordFailure bumps the consecutive-failure counter and unpins the
// endpoint once two requests in a row have failed, forcing re-discovery.
func (c *Client) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consecFails++
	if c.consecFails >= 2 && c.pinned != "" {
		c.cfg.Logger.Warn("adjudicator endpoint unpinned after consecutive failures",
			zap.String("endpoint", c.pinned),
			zap.Int("failures", c.consecFails),
		)
		c.pinned = ""
	}
}

func (c *Client) recordSuccess() {
	c.mu.Lock()
	c.consecFails = 0
	c.mu.Unlock()
}

// Adjudicate sends one comparison, retrying with exponential backoff and
// jitter on transport errors. After exhausting retries it returns the
// deterministic fallback verdict rather than an error.
func (c *Client) Adjudicate(ctx context.Context, req Request) (*Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.TotalBudget)
	defer cancel()

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.sem.Release(1)

	delay := c.cfg.BackoffBase
	var lastErr error

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		// A health probe gates every retry so we do not burn the budget
		// on a dead endpoint.
		endpoint, err := c.endpoint(ctx)
		if err != nil {
			lastErr = err
		} else if attempt > 0 {
			if err := c.probe(ctx, endpoint); err != nil {
				lastErr = err
				c.recordFailure()
				endpoint = ""
			}
		}

		if endpoint != "" {
			verdict, err := c.call(ctx, endpoint, req)
			if err == nil {
				c.recordSuccess()
				return verdict, nil
			}
			lastErr = err
			c.recordFailure()
			c.cfg.Logger.Warn("adjudicator request failed",
				zap.Int("attempt", attempt+1),
				zap.Int("max_retries", c.cfg.MaxRetries),
				zap.Error(err),
			)
		}

		if attempt >= c.cfg.MaxRetries {
			break
		}

		// Exponential backoff with up to 25% jitter.
		jitter := time.Duration(rand.Int63n(int64(delay)/4 + 1))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay + jitter):
		}
		delay *= 2
	}

	c.cfg.Logger.Warn("adjudicator exhausted, using deterministic fallback",
		zap.String("field", req.FieldName),
		zap.Error(lastErr),
	)
	return FallbackVerdict(req), nil
}

func (c *Client) call(ctx context.Context, endpoint string, req Request) (*Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/validate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", httpResp.StatusCode, string(respBody))
	}

	verdict, layer, err := ParseVerdict(string(respBody), c.cfg.Logger)
	if err != nil {
		return nil, err
	}
	if layer != LayerDirect {
		verdict.Issues = append(verdict.Issues, "llm_response_repaired")
	}
	return verdict, nil
}

var _ Adjudicator = (*Client)(nil)
