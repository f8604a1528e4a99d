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

package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/teradata-labs/recheck/pkg/types"
)

// PlaywrightConfig configures the Playwright driver.
type PlaywrightConfig struct {
	// BrowserName selects the engine: "chromium" (default), "firefox",
	// or "webkit".
	BrowserName string
	Headless    bool
	Viewport    types.Viewport
	Logger      *zap.Logger
}

// PlaywrightFactory launches one Playwright runtime and opens isolated
// browser sessions from it.
type PlaywrightFactory struct {
	cfg     PlaywrightConfig
	pw      *playwright.Playwright
	browser playwright.Browser

	mu     sync.Mutex
	closed bool
}

// NewPlaywrightFactory starts the Playwright runtime and launches the
// configured browser engine.
func NewPlaywrightFactory(cfg PlaywrightConfig) (*PlaywrightFactory, error) {
	if cfg.BrowserName == "" {
		cfg.BrowserName = "chromium"
	}
	if cfg.Viewport.Width == 0 {
		cfg.Viewport = types.Viewport{Width: 1280, Height: 900}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	var browserType playwright.BrowserType
	switch cfg.BrowserName {
	case "chromium":
		browserType = pw.Chromium
	case "firefox":
		browserType = pw.Firefox
	case "webkit":
		browserType = pw.WebKit
	default:
		pw.Stop() //nolint:errcheck
		return nil, fmt.Errorf("unknown browser %q", cfg.BrowserName)
	}

	b, err := browserType.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(cfg.Headless),
	})
	if err != nil {
		pw.Stop() //nolint:errcheck
		return nil, fmt.Errorf("failed to launch %s: %w", cfg.BrowserName, err)
	}

	return &PlaywrightFactory{cfg: cfg, pw: pw, browser: b}, nil
}

// NewSession opens an isolated page.
func (f *PlaywrightFactory) NewSession(ctx context.Context) (Browser, error) {
	page, err := f.browser.NewPage(playwright.BrowserNewPageOptions{
		Viewport: &playwright.Size{
			Width:  f.cfg.Viewport.Width,
			Height: f.cfg.Viewport.Height,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	return &playwrightSession{page: page, viewport: f.cfg.Viewport, logger: f.cfg.Logger}, nil
}

// Cleanup stops the browser and the Playwright runtime. Idempotent, so
// the factory can be registered with the resource registry directly.
func (f *PlaywrightFactory) Cleanup(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true

	if err := f.browser.Close(); err != nil {
		f.pw.Stop() //nolint:errcheck
		return fmt.Errorf("failed to close browser: %w", err)
	}
	return f.pw.Stop()
}

// IsCleanedUp reports whether Cleanup already ran.
func (f *PlaywrightFactory) IsCleanedUp() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type playwrightSession struct {
	page     playwright.Page
	viewport types.Viewport
	logger   *zap.Logger

	mu     sync.Mutex
	closed bool
}

func (s *playwrightSession) Navigate(ctx context.Context, url string, timeout time.Duration) (*NavigationResult, error) {
	start := time.Now()
	resp, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return nil, fmt.Errorf("navigation failed: %w", err)
	}

	result := &NavigationResult{
		FinalURL:   s.page.URL(),
		LoadTimeMs: time.Since(start).Milliseconds(),
	}
	if resp != nil {
		result.StatusCode = resp.Status()
		for req := resp.Request().RedirectedFrom(); req != nil; req = req.RedirectedFrom() {
			result.Redirects = append([]string{req.URL()}, result.Redirects...)
		}
	}
	if title, err := s.page.Title(); err == nil {
		result.Title = title
	}
	return result, nil
}

func (s *playwrightSession) QuerySelector(ctx context.Context, selector string) (Element, error) {
	handle, err := s.page.QuerySelector(selector)
	if err != nil {
		return nil, fmt.Errorf("selector query failed: %w", err)
	}
	if handle == nil {
		return nil, nil
	}
	return &playwrightElement{handle: handle}, nil
}

func (s *playwrightSession) ScreenshotFull(ctx context.Context) ([]byte, error) {
	return s.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(true),
	})
}

func (s *playwrightSession) ScreenshotRegion(ctx context.Context, region types.Region) ([]byte, error) {
	return s.page.Screenshot(playwright.PageScreenshotOptions{
		Clip: &playwright.Rect{
			X:      region.X,
			Y:      region.Y,
			Width:  region.Width,
			Height: region.Height,
		},
	})
}

func (s *playwrightSession) DOMSnapshot(ctx context.Context) (string, error) {
	return s.page.Content()
}

func (s *playwrightSession) Viewport() types.Viewport {
	return s.viewport
}

func (s *playwrightSession) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.page.Close()
}

type playwrightElement struct {
	handle playwright.ElementHandle
}

func (e *playwrightElement) Value(ctx context.Context) (string, error) {
	tagValue, err := e.handle.Evaluate("el => el.tagName.toLowerCase()")
	if err != nil {
		return "", fmt.Errorf("failed to read element tag: %w", err)
	}
	tag, _ := tagValue.(string)

	switch tag {
	case "input":
		inputType, _ := e.handle.GetAttribute("type")
		if inputType == "checkbox" || inputType == "radio" {
			checked, err := e.handle.IsChecked()
			if err != nil {
				return "", err
			}
			if checked {
				return "true", nil
			}
			return "false", nil
		}
		return e.handle.InputValue()
	case "select", "textarea":
		return e.handle.InputValue()
	default:
		text, err := e.handle.InnerText()
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(text), nil
	}
}

func (e *playwrightElement) BoundingBox(ctx context.Context) (*types.Region, error) {
	box, err := e.handle.BoundingBox()
	if err != nil || box == nil {
		return nil, err
	}
	return &types.Region{X: box.X, Y: box.Y, Width: box.Width, Height: box.Height}, nil
}

func (e *playwrightElement) Screenshot(ctx context.Context) ([]byte, error) {
	return e.handle.Screenshot()
}

var (
	_ Factory = (*PlaywrightFactory)(nil)
	_ Browser = (*playwrightSession)(nil)
)
