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

// Package browser defines the browser capability used by the navigator
// and the page extractor, with a Playwright-backed driver and a scripted
// fake for tests. Backends are selected by configuration; the core only
// sees these interfaces.
package browser

import (
	"context"
	"time"

	"github.com/teradata-labs/recheck/pkg/types"
)

// NavigationResult reports one page load.
type NavigationResult struct {
	StatusCode int
	FinalURL   string
	Redirects  []string
	LoadTimeMs int64
	Title      string
}

// Element is a handle to one located page element.
type Element interface {
	// Value reads the canonical value for the element kind: form input
	// value or checked state, select choice, textarea content, or the
	// visible text for anything else.
	Value(ctx context.Context) (string, error)

	// BoundingBox returns the element's pixel rectangle, or nil when the
	// element is detached or invisible.
	BoundingBox(ctx context.Context) (*types.Region, error)

	// Screenshot captures just this element.
	Screenshot(ctx context.Context) ([]byte, error)
}

// Browser is one page session. Implementations are not safe for
// concurrent use; the scheduler gives each worker its own session.
type Browser interface {
	// Navigate loads url and waits for network quiescence up to timeout.
	Navigate(ctx context.Context, url string, timeout time.Duration) (*NavigationResult, error)

	// QuerySelector locates the first element matching selector.
	// A nil Element with nil error means nothing matched.
	QuerySelector(ctx context.Context, selector string) (Element, error)

	// ScreenshotFull captures the full page.
	ScreenshotFull(ctx context.Context) ([]byte, error)

	// ScreenshotRegion captures a clipped region of the viewport.
	ScreenshotRegion(ctx context.Context, region types.Region) ([]byte, error)

	// DOMSnapshot returns the serialized current DOM.
	DOMSnapshot(ctx context.Context) (string, error)

	// Viewport reports the session's viewport size.
	Viewport() types.Viewport

	// Close releases the session. Idempotent.
	Close(ctx context.Context) error
}

// Factory opens a new session per worker.
type Factory interface {
	NewSession(ctx context.Context) (Browser, error)
}
