// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package ocr

import (
	"context"
	"sync"
)

// FakeEngine returns a scripted result for every image, for tests.
type FakeEngine struct {
	Result *Result
	Err    error

	mu    sync.Mutex
	Calls int
}

func (f *FakeEngine) Recognise(ctx context.Context, image []byte, opts Options) (*Result, error) {
	f.mu.Lock()
	f.Calls++
	f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	if f.Result == nil {
		return &Result{}, nil
	}
	return f.Result, nil
}

var _ Engine = (*FakeEngine)(nil)
