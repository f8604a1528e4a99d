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

// Package resource tracks every component that owns an external resource
// (browser sessions, OCR engines, adjudicator transports, evidence
// writers) and drives orderly shutdown on signals or completion.
package resource

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultCleanupTimeout bounds how long one resource may take to clean up
// before it is abandoned.
const DefaultCleanupTimeout = 10 * time.Second

// Resource is anything the registry can shut down. Cleanup must be
// idempotent: a second call is a no-op.
type Resource interface {
	Cleanup(ctx context.Context) error
	IsCleanedUp() bool
}

// Outcome summarizes one shutdown pass.
type Outcome struct {
	Succeeded int
	Failed    int
	Abandoned int
}

type entry struct {
	name     string
	resource Resource
}

// Config configures a Registry.
type Config struct {
	// CleanupTimeout bounds each resource's Cleanup call.
	// Defaults to DefaultCleanupTimeout.
	CleanupTimeout time.Duration
	Logger         *zap.Logger
}

// Registry tracks live resources. Registration and unregistration are
// serialized; shutdown iterates over a snapshot so late unregistrations
// cannot race the sweep.
type Registry struct {
	mu             sync.Mutex
	resources      map[string]entry
	shuttingDown   bool
	cleanupTimeout time.Duration
	logger         *zap.Logger
}

// NewRegistry creates a registry.
func NewRegistry(cfg Config) *Registry {
	if cfg.CleanupTimeout <= 0 {
		cfg.CleanupTimeout = DefaultCleanupTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Registry{
		resources:      make(map[string]entry),
		cleanupTimeout: cfg.CleanupTimeout,
		logger:         cfg.Logger,
	}
}

// Register adds a resource and returns its id. Registrations are refused
// once shutdown has begun.
func (r *Registry) Register(name string, res Resource) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.shuttingDown {
		return "", fmt.Errorf("registry is shutting down, refusing registration of %q", name)
	}

	id := uuid.NewString()
	r.resources[id] = entry{name: name, resource: res}
	r.logger.Debug("resource registered",
		zap.String("id", id),
		zap.String("name", name),
	)
	return id, nil
}

// Unregister removes a resource without cleaning it up. Callers that
// already closed a resource themselves use this to take it out of the
// shutdown sweep.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.resources, id)
}

// Live returns how many resources are currently registered.
func (r *Registry) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.resources)
}

// Shutdown cleans up every still-live resource concurrently and reports
// per-resource outcomes. A resource that does not finish within the
// cleanup timeout is abandoned; its failure is logged but does not block
// the sweep. Shutdown is idempotent.
func (r *Registry) Shutdown(ctx context.Context) Outcome {
	r.mu.Lock()
	r.shuttingDown = true
	snapshot := make(map[string]entry, len(r.resources))
	for id, e := range r.resources {
		snapshot[id] = e
	}
	r.resources = make(map[string]entry)
	r.mu.Unlock()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		outcome Outcome
	)

	for id, e := range snapshot {
		if e.resource.IsCleanedUp() {
			mu.Lock()
			outcome.Succeeded++
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(id string, e entry) {
			defer wg.Done()

			cleanupCtx, cancel := context.WithTimeout(ctx, r.cleanupTimeout)
			defer cancel()

			done := make(chan error, 1)
			go func() {
				done <- e.resource.Cleanup(cleanupCtx)
			}()

			select {
			case err := <-done:
				mu.Lock()
				if err != nil {
					outcome.Failed++
				} else {
					outcome.Succeeded++
				}
				mu.Unlock()
				if err != nil {
					r.logger.Warn("resource cleanup failed",
						zap.String("id", id),
						zap.String("name", e.name),
						zap.Error(err),
					)
				}
			case <-cleanupCtx.Done():
				mu.Lock()
				outcome.Abandoned++
				mu.Unlock()
				r.logger.Warn("resource cleanup abandoned after timeout",
					zap.String("id", id),
					zap.String("name", e.name),
					zap.Duration("timeout", r.cleanupTimeout),
				)
			}
		}(id, e)
	}

	wg.Wait()

	r.logger.Info("resource registry shutdown complete",
		zap.Int("succeeded", outcome.Succeeded),
		zap.Int("failed", outcome.Failed),
		zap.Int("abandoned", outcome.Abandoned),
	)
	return outcome
}

// NotifyContext returns a context cancelled on SIGINT or SIGTERM, plus a
// stop function. The caller is expected to run Shutdown once the context
// is done.
func NotifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// Func adapts a cleanup closure into a Resource.
type Func struct {
	mu      sync.Mutex
	cleaned bool
	fn      func(ctx context.Context) error
}

// NewFunc wraps fn as a Resource with idempotent cleanup.
func NewFunc(fn func(ctx context.Context) error) *Func {
	return &Func{fn: fn}
}

func (f *Func) Cleanup(ctx context.Context) error {
	f.mu.Lock()
	if f.cleaned {
		f.mu.Unlock()
		return nil
	}
	f.cleaned = true
	f.mu.Unlock()
	return f.fn(ctx)
}

func (f *Func) IsCleanedUp() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cleaned
}
