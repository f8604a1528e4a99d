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

// Package navigate turns a row into a loaded page: URL template
// interpolation, the page load itself, the full-page capture, and the
// fatal-versus-recoverable classification of whatever went wrong.
package navigate

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/teradata-labs/recheck/pkg/browser"
	"github.com/teradata-labs/recheck/pkg/normalize"
	"github.com/teradata-labs/recheck/pkg/observability"
	"github.com/teradata-labs/recheck/pkg/types"
)

// DefaultTimeout bounds one page load.
const DefaultTimeout = 30 * time.Second

var tokenPattern = regexp.MustCompile(`\{([^{}]+)\}`)

// Config configures a navigator.
type Config struct {
	URLTemplate string
	// Timeout for DOM/network quiescence. Defaults to 30s; raise it for
	// known-slow origins.
	Timeout time.Duration
	// SkipScreenshot suppresses the full-page capture.
	SkipScreenshot bool
	// SkipDOMSnapshot suppresses the DOM capture.
	SkipDOMSnapshot bool
	// SnapshotTTL, when positive, reuses DOM snapshots for repeated URLs
	// within the window.
	SnapshotTTL time.Duration
	Tracer      observability.Tracer
	Logger      *zap.Logger
}

// Navigator loads the page for a row.
type Navigator struct {
	cfg       Config
	snapshots *gocache.Cache
}

// New creates a navigator.
func New(cfg Config) *Navigator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NewNoOpTracer()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	n := &Navigator{cfg: cfg}
	if cfg.SnapshotTTL > 0 {
		n.snapshots = gocache.New(cfg.SnapshotTTL, cfg.SnapshotTTL)
	}
	return n
}

// InterpolateURL replaces every {token} in template with the row's
// value: exact key first, then case-insensitive, then left unchanged
// when no column matches. Values are URL-encoded.
func InterpolateURL(template string, row types.Row) string {
	return tokenPattern.ReplaceAllStringFunc(template, func(match string) string {
		token := match[1 : len(match)-1]

		value, ok := row.Get(token)
		if !ok {
			for column, v := range row.Values {
				if strings.EqualFold(column, token) {
					value, ok = v, true
					break
				}
			}
		}
		if !ok {
			return match
		}

		text, _ := normalize.Stringify(value)
		return url.QueryEscape(text)
	})
}

// Load navigates to the row's page and returns the observation with
// navigation metadata and one full-page screenshot. On error the
// returned *types.Error classifies the failure.
func (n *Navigator) Load(ctx context.Context, session browser.Browser, row types.Row) (*types.PageObservation, error) {
	ctx, span := n.cfg.Tracer.StartSpan(ctx, observability.SpanNavigation)
	defer n.cfg.Tracer.EndSpan(span)

	target := InterpolateURL(n.cfg.URLTemplate, row)
	n.cfg.Logger.Debug("navigating",
		zap.String("row_id", row.ID),
		zap.String("url", target),
	)

	result, err := session.Navigate(ctx, target, n.cfg.Timeout)
	if err != nil {
		return nil, classify(target, err)
	}
	if result.StatusCode == 404 || result.StatusCode == 410 {
		return nil, types.NewError(types.ErrPageNotFound, false, "page %s returned %d", target, result.StatusCode)
	}
	if result.StatusCode >= 500 {
		return nil, types.NewError(types.ErrTransport, true, "page %s returned %d", target, result.StatusCode)
	}

	obs := &types.PageObservation{
		URL:        target,
		FinalURL:   result.FinalURL,
		Title:      result.Title,
		LoadTimeMs: result.LoadTimeMs,
		StatusCode: result.StatusCode,
		Redirects:  result.Redirects,
		Viewport:   session.Viewport(),
		CapturedAt: time.Now().UTC(),
	}

	if !n.cfg.SkipDOMSnapshot {
		obs.DOMSnapshot = n.domSnapshot(ctx, session, target, row)
	}

	if !n.cfg.SkipScreenshot {
		if img, err := session.ScreenshotFull(ctx); err == nil {
			obs.Screenshots = append(obs.Screenshots, types.Screenshot{
				ID:         uuid.NewString(),
				Bytes:      img,
				Encoding:   "png",
				CapturedAt: time.Now().UTC(),
				Kind:       types.ScreenshotFull,
			})
		} else {
			n.cfg.Logger.Warn("full-page capture failed", zap.String("row_id", row.ID), zap.Error(err))
		}
	}

	return obs, nil
}

// domSnapshot serializes the page DOM, reusing a cached copy for
// repeated URLs when snapshot caching is on.
func (n *Navigator) domSnapshot(ctx context.Context, session browser.Browser, target string, row types.Row) string {
	if n.snapshots != nil {
		if cached, ok := n.snapshots.Get(target); ok {
			return cached.(string)
		}
	}
	dom, err := session.DOMSnapshot(ctx)
	if err != nil {
		n.cfg.Logger.Warn("dom snapshot failed", zap.String("row_id", row.ID), zap.Error(err))
		return ""
	}
	if n.snapshots != nil {
		n.snapshots.Set(target, dom, gocache.DefaultExpiration)
	}
	return dom
}

// classify sorts navigation failures into the error taxonomy. Timeouts
// are recoverable on their first occurrence; the retry policy decides
// whether another attempt happens.
func classify(target string, err error) *types.Error {
	switch {
	case errors.Is(err, context.Canceled):
		return types.WrapError(types.ErrCancelled, false, err, "navigation to %s cancelled", target)
	case errors.Is(err, context.DeadlineExceeded), isTimeoutMessage(err):
		return types.WrapError(types.ErrNavigationTimeout, true, err, "navigation to %s timed out", target)
	case strings.Contains(err.Error(), "ERR_NAME_NOT_RESOLVED"), strings.Contains(err.Error(), "no such host"):
		return types.WrapError(types.ErrPageNotFound, false, err, "host for %s does not resolve", target)
	default:
		return types.WrapError(types.ErrNavigationFailed, true, err, "navigation to %s failed", target)
	}
}

func isTimeoutMessage(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out")
}
