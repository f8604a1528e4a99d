// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package decision

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/teradata-labs/recheck/pkg/types"
)

// IssueCacheHit is appended to decisions served from the cache.
const IssueCacheHit = "cache_hit"

// Cache memoizes field decisions within a run. It is safe for concurrent
// use; writes for the same key are idempotent because the engine is
// deterministic for identical inputs.
type Cache struct {
	store *gocache.Cache
}

// NewCache creates a decision cache with the given TTL. A zero TTL keeps
// entries for the whole run.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	return &Cache{store: gocache.New(ttl, 2*time.Minute)}
}

// Key derives the cache key for one comparison under one ruleset.
func Key(normalizedCSV, normalizedWeb string, fieldType types.FieldType, rulesetVersion string) string {
	h := sha256.New()
	for _, part := range []string{normalizedCSV, normalizedWeb, string(fieldType), rulesetVersion} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns a copy of the cached decision for key, if present.
func (c *Cache) Get(key string) (types.FieldDecision, bool) {
	if c == nil {
		return types.FieldDecision{}, false
	}
	v, ok := c.store.Get(key)
	if !ok {
		return types.FieldDecision{}, false
	}
	return v.(types.FieldDecision), true
}

// Set stores a decision for key.
func (c *Cache) Set(key string, d types.FieldDecision) {
	if c == nil {
		return
	}
	c.store.SetDefault(key, d)
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.store.ItemCount()
}
