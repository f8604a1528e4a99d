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

// Package anthropic adapts the adjudicator contract onto the Anthropic
// Messages API, for runs that point at a hosted model instead of a local
// inference server.
package anthropic

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/teradata-labs/recheck/pkg/adjudicator"
)

const (
	// DefaultModel is used when no model is configured.
	DefaultModel = "claude-sonnet-4-5-20250929"
	// DefaultTimeout bounds one adjudication request.
	DefaultTimeout = 30 * time.Second
)

const systemPrompt = `You compare a declared record value against a value observed on a web page and decide whether they refer to the same thing. Respond with only a JSON object: {"match": bool, "confidence": number between 0 and 1, "reasoning": short string}.`

// Config holds configuration for the Anthropic adjudicator.
type Config struct {
	APIKey  string // Default: ANTHROPIC_API_KEY environment variable
	Model   string // Default: DefaultModel
	Timeout time.Duration
	Logger  *zap.Logger
}

// Client adjudicates comparisons via the Anthropic Messages API.
type Client struct {
	client  sdk.Client
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

// NewClient creates an Anthropic-backed adjudicator.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic adjudicator requires an API key")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Client{
		client:  sdk.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:   cfg.Model,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
	}, nil
}

// Health sends a minimal message to verify credentials and reachability.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, err := c.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: 1,
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock("ping")),
		},
	})
	if err != nil {
		return fmt.Errorf("anthropic health probe failed: %w", err)
	}
	return nil
}

// Adjudicate judges one comparison. Errors from the API degrade to the
// deterministic fallback so a run never stalls on the hosted backend.
func (c *Client) Adjudicate(ctx context.Context, req adjudicator.Request) (*adjudicator.Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prompt := fmt.Sprintf(
		"Field %q (type %s).\nDeclared value: %q\nObserved on page: %q\nDo they correspond?",
		req.FieldName, req.FieldType, req.CSVValue, req.WebValue,
	)

	msg, err := c.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: 512,
		System: []sdk.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Warn("anthropic adjudication failed, using deterministic fallback",
			zap.String("field", req.FieldName),
			zap.Error(err),
		)
		return adjudicator.FallbackVerdict(req), nil
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	verdict, layer, err := adjudicator.ParseVerdict(text.String(), c.logger)
	if err != nil {
		c.logger.Warn("anthropic response unparseable, using deterministic fallback",
			zap.String("field", req.FieldName),
			zap.Error(err),
		)
		return adjudicator.FallbackVerdict(req), nil
	}
	if layer != adjudicator.LayerDirect {
		verdict.Issues = append(verdict.Issues, "llm_response_repaired")
	}
	return verdict, nil
}

var _ adjudicator.Adjudicator = (*Client)(nil)
