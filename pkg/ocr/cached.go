// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package ocr

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Cached memoizes recognition results keyed by image content and
// options. Identical captures of the same element across rows hit the
// cache instead of the engine.
type Cached struct {
	inner Engine
	cache *gocache.Cache
}

// NewCached wraps an engine with TTL memoization.
func NewCached(inner Engine, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cached{inner: inner, cache: gocache.New(ttl, ttl)}
}

// Recognise serves from cache when the same image and options were seen
// within the TTL. Errors are never cached.
func (c *Cached) Recognise(ctx context.Context, image []byte, opts Options) (*Result, error) {
	key := cacheKey(image, opts)
	if hit, ok := c.cache.Get(key); ok {
		return hit.(*Result), nil
	}
	result, err := c.inner.Recognise(ctx, image, opts)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, result, gocache.DefaultExpiration)
	return result, nil
}

func cacheKey(image []byte, opts Options) string {
	h := sha256.New()
	h.Write(image)
	fmt.Fprintf(h, "|%s|%v|%v|%v", opts.Language,
		opts.Preprocessing.EnhanceContrast, opts.Preprocessing.Denoise, opts.Preprocessing.Upscale)
	return hex.EncodeToString(h.Sum(nil))
}

var _ Engine = (*Cached)(nil)
