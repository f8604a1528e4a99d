// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package resource

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRegisterAndShutdown(t *testing.T) {
	reg := NewRegistry(Config{Logger: zap.NewNop()})

	cleaned := 0
	for i := 0; i < 3; i++ {
		_, err := reg.Register("browser", NewFunc(func(ctx context.Context) error {
			cleaned++
			return nil
		}))
		require.NoError(t, err)
	}
	assert.Equal(t, 3, reg.Live())

	outcome := reg.Shutdown(context.Background())
	assert.Equal(t, 3, outcome.Succeeded)
	assert.Equal(t, 0, outcome.Failed)
	assert.Equal(t, 0, outcome.Abandoned)
	assert.Equal(t, 3, cleaned)
}

func TestRegisterRefusedDuringShutdown(t *testing.T) {
	reg := NewRegistry(Config{Logger: zap.NewNop()})
	reg.Shutdown(context.Background())

	_, err := reg.Register("late", NewFunc(func(ctx context.Context) error { return nil }))
	assert.Error(t, err)
}

func TestCleanupIdempotent(t *testing.T) {
	calls := 0
	f := NewFunc(func(ctx context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, f.Cleanup(context.Background()))
	require.NoError(t, f.Cleanup(context.Background()))
	assert.Equal(t, 1, calls)
	assert.True(t, f.IsCleanedUp())
}

func TestShutdownCollectsFailures(t *testing.T) {
	reg := NewRegistry(Config{Logger: zap.NewNop()})

	_, err := reg.Register("ok", NewFunc(func(ctx context.Context) error { return nil }))
	require.NoError(t, err)
	_, err = reg.Register("bad", NewFunc(func(ctx context.Context) error {
		return errors.New("session already closed")
	}))
	require.NoError(t, err)

	outcome := reg.Shutdown(context.Background())
	assert.Equal(t, 1, outcome.Succeeded)
	assert.Equal(t, 1, outcome.Failed)
}

func TestSlowResourceIsAbandoned(t *testing.T) {
	reg := NewRegistry(Config{CleanupTimeout: 50 * time.Millisecond, Logger: zap.NewNop()})

	block := make(chan struct{})
	defer close(block)
	_, err := reg.Register("stuck", NewFunc(func(ctx context.Context) error {
		<-block
		return nil
	}))
	require.NoError(t, err)

	start := time.Now()
	outcome := reg.Shutdown(context.Background())
	assert.Equal(t, 1, outcome.Abandoned)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestUnregisterRemovesFromSweep(t *testing.T) {
	reg := NewRegistry(Config{Logger: zap.NewNop()})

	called := false
	id, err := reg.Register("temp", NewFunc(func(ctx context.Context) error {
		called = true
		return nil
	}))
	require.NoError(t, err)
	reg.Unregister(id)

	outcome := reg.Shutdown(context.Background())
	assert.Equal(t, 0, outcome.Succeeded+outcome.Failed+outcome.Abandoned)
	assert.False(t, called)
}

func TestAlreadyCleanedResourceCountsAsSucceeded(t *testing.T) {
	reg := NewRegistry(Config{Logger: zap.NewNop()})

	f := NewFunc(func(ctx context.Context) error { return nil })
	require.NoError(t, f.Cleanup(context.Background()))

	_, err := reg.Register("done", f)
	require.NoError(t, err)

	outcome := reg.Shutdown(context.Background())
	assert.Equal(t, 1, outcome.Succeeded)
}
