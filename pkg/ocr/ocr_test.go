// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			// Mid-gray field with a darker band, so contrast stretch has
			// a range to work with.
			v := uint8(100)
			if y > h/2 {
				v = 160
			}
			img.Set(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestPreprocessUpscalesAndStaysPNG(t *testing.T) {
	out, err := Preprocess(testPNG(t, 20, 10), DefaultPreprocessing())
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 40, img.Bounds().Dx())
	assert.Equal(t, 20, img.Bounds().Dy())
}

func TestPreprocessNoUpscaleKeepsSize(t *testing.T) {
	out, err := Preprocess(testPNG(t, 20, 10), Preprocessing{EnhanceContrast: true, Denoise: true})
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 20, img.Bounds().Dx())
}

func TestPreprocessContrastStretchWidensRange(t *testing.T) {
	out, err := Preprocess(testPNG(t, 8, 8), Preprocessing{EnhanceContrast: true})
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)

	lo, hi := uint8(255), uint8(0)
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g := color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y
			if g < lo {
				lo = g
			}
			if g > hi {
				hi = g
			}
		}
	}
	assert.Equal(t, uint8(0), lo)
	assert.Equal(t, uint8(255), hi)
}

func TestPreprocessRejectsGarbage(t *testing.T) {
	_, err := Preprocess([]byte("not a png"), DefaultPreprocessing())
	assert.Error(t, err)
}

func TestClientRecognise(t *testing.T) {
	var gotReq recogniseRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/recognise", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(Result{ //nolint:errcheck
			Text:       "Moby-Dick",
			Confidence: 0.92,
			Words:      []Word{{Text: "Moby-Dick", Confidence: 0.92}},
		})
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL})
	result, err := client.Recognise(context.Background(), []byte("png-bytes"), Options{Language: "en"})
	require.NoError(t, err)

	assert.Equal(t, "Moby-Dick", result.Text)
	assert.Equal(t, 0.92, result.Confidence)
	assert.Equal(t, "en", gotReq.Options.Language)
	assert.NotEmpty(t, gotReq.Image)
	assert.Positive(t, result.ProcessingTimeMs)
}

func TestClientSurfacesEngineErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL})
	_, err := client.Recognise(context.Background(), []byte("png"), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestCachedRecogniseHitsEngineOnce(t *testing.T) {
	fake := &FakeEngine{Result: &Result{Text: "Moby-Dick", Confidence: 0.9}}
	cached := NewCached(fake, 0)

	img := testPNG(t, 10, 10)
	first, err := cached.Recognise(context.Background(), img, Options{Language: "en"})
	require.NoError(t, err)
	second, err := cached.Recognise(context.Background(), img, Options{Language: "en"})
	require.NoError(t, err)

	assert.Equal(t, "Moby-Dick", first.Text)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, fake.Calls)
}

func TestCachedRecogniseKeysOnImageAndOptions(t *testing.T) {
	fake := &FakeEngine{Result: &Result{Text: "ok"}}
	cached := NewCached(fake, 0)

	img := testPNG(t, 10, 10)
	_, err := cached.Recognise(context.Background(), img, Options{Language: "en"})
	require.NoError(t, err)
	_, err = cached.Recognise(context.Background(), img, Options{Language: "de"})
	require.NoError(t, err)
	_, err = cached.Recognise(context.Background(), testPNG(t, 12, 10), Options{Language: "en"})
	require.NoError(t, err)

	assert.Equal(t, 3, fake.Calls)
}

func TestCachedRecogniseDoesNotCacheErrors(t *testing.T) {
	fake := &FakeEngine{Err: context.DeadlineExceeded}
	cached := NewCached(fake, 0)

	img := testPNG(t, 10, 10)
	_, err := cached.Recognise(context.Background(), img, Options{})
	require.Error(t, err)
	_, err = cached.Recognise(context.Background(), img, Options{})
	require.Error(t, err)

	assert.Equal(t, 2, fake.Calls)
}

func TestClientLocalPreprocessing(t *testing.T) {
	var gotReq recogniseRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(Result{Text: "ok", Confidence: 1}) //nolint:errcheck
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL, PreprocessLocally: true})
	_, err := client.Recognise(context.Background(), testPNG(t, 10, 10), Options{
		Preprocessing: DefaultPreprocessing(),
	})
	require.NoError(t, err)

	// Preprocessing ran locally, so the engine is told to do nothing.
	assert.False(t, gotReq.Options.Preprocessing.Upscale)
	assert.False(t, gotReq.Options.Preprocessing.EnhanceContrast)
}
