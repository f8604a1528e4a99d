// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/teradata-labs/recheck/pkg/types"
)

// FakeElement scripts one element on a fake page.
type FakeElement struct {
	Text     string
	Box      *types.Region
	PNG      []byte
	ValueErr error
}

func (e *FakeElement) Value(ctx context.Context) (string, error) {
	if e.ValueErr != nil {
		return "", e.ValueErr
	}
	return e.Text, nil
}

func (e *FakeElement) BoundingBox(ctx context.Context) (*types.Region, error) {
	return e.Box, nil
}

func (e *FakeElement) Screenshot(ctx context.Context) ([]byte, error) {
	if e.PNG == nil {
		return []byte("fake-element-png"), nil
	}
	return e.PNG, nil
}

// FakePage scripts the outcome of visiting one URL.
type FakePage struct {
	StatusCode int
	Title      string
	Redirects  []string
	Elements   map[string]*FakeElement
	DOM        string
	// NavErr, when set, fails navigation instead of loading the page.
	NavErr error
	// Delay stalls navigation, for timeout tests.
	Delay time.Duration
}

// Fake is a scripted Browser for tests. URLs not present in Pages load
// with status 404.
type Fake struct {
	mu      sync.Mutex
	Pages   map[string]*FakePage
	current *FakePage

	// NavigateCalls records every URL in arrival order.
	NavigateCalls []string
	Closed        bool
}

// NewFake creates a scripted browser session.
func NewFake(pages map[string]*FakePage) *Fake {
	return &Fake{Pages: pages}
}

func (f *Fake) Navigate(ctx context.Context, url string, timeout time.Duration) (*NavigationResult, error) {
	f.mu.Lock()
	f.NavigateCalls = append(f.NavigateCalls, url)
	page := f.Pages[url]
	f.mu.Unlock()

	if page == nil {
		page = &FakePage{StatusCode: 404}
	}
	if page.Delay > 0 {
		select {
		case <-time.After(page.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if page.Delay > timeout {
			return nil, fmt.Errorf("navigation failed: Timeout %dms exceeded", timeout.Milliseconds())
		}
	}
	if page.NavErr != nil {
		return nil, page.NavErr
	}

	f.mu.Lock()
	f.current = page
	f.mu.Unlock()

	return &NavigationResult{
		StatusCode: page.StatusCode,
		FinalURL:   url,
		Redirects:  page.Redirects,
		Title:      page.Title,
		LoadTimeMs: 1,
	}, nil
}

func (f *Fake) QuerySelector(ctx context.Context, selector string) (Element, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current == nil {
		return nil, fmt.Errorf("no page loaded")
	}
	el, ok := f.current.Elements[selector]
	if !ok {
		return nil, nil
	}
	return el, nil
}

func (f *Fake) ScreenshotFull(ctx context.Context) ([]byte, error) {
	return []byte("fake-full-png"), nil
}

func (f *Fake) ScreenshotRegion(ctx context.Context, region types.Region) ([]byte, error) {
	return []byte("fake-region-png"), nil
}

func (f *Fake) DOMSnapshot(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current == nil || f.current.DOM == "" {
		return "<html></html>", nil
	}
	return f.current.DOM, nil
}

func (f *Fake) Viewport() types.Viewport {
	return types.Viewport{Width: 1280, Height: 900}
}

func (f *Fake) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// FakeFactory hands out fake sessions sharing one page script.
type FakeFactory struct {
	Pages map[string]*FakePage

	mu       sync.Mutex
	Sessions []*Fake
}

func (f *FakeFactory) NewSession(ctx context.Context) (Browser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := NewFake(f.Pages)
	f.Sessions = append(f.Sessions, s)
	return s, nil
}

var (
	_ Browser = (*Fake)(nil)
	_ Element = (*FakeElement)(nil)
	_ Factory = (*FakeFactory)(nil)
)
