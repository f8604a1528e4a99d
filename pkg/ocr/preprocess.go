// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package ocr

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sort"

	"github.com/nfnt/resize"
)

// Preprocess decodes a PNG, applies the requested cleanup steps, and
// re-encodes. The pipeline is grayscale, contrast stretch, 3x3 median
// denoise, then 2x upscale.
func Preprocess(pngBytes []byte, opts Preprocessing) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(pngBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to decode screenshot: %w", err)
	}

	gray := toGray(img)
	if opts.EnhanceContrast {
		gray = stretchContrast(gray)
	}
	if opts.Denoise {
		gray = medianFilter(gray)
	}

	var out image.Image = gray
	if opts.Upscale {
		b := gray.Bounds()
		out = resize.Resize(uint(b.Dx()*2), uint(b.Dy()*2), gray, resize.Lanczos3)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, fmt.Errorf("failed to encode preprocessed image: %w", err)
	}
	return buf.Bytes(), nil
}

func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			gray.Set(x, y, color.GrayModel.Convert(img.At(x, y)))
		}
	}
	return gray
}

// stretchContrast linearly remaps the observed intensity range onto the
// full 0..255 range. Flat images pass through unchanged.
func stretchContrast(gray *image.Gray) *image.Gray {
	b := gray.Bounds()
	lo, hi := uint8(255), uint8(0)
	for i := range gray.Pix {
		p := gray.Pix[i]
		if p < lo {
			lo = p
		}
		if p > hi {
			hi = p
		}
	}
	if hi <= lo {
		return gray
	}

	out := image.NewGray(b)
	scale := 255.0 / float64(hi-lo)
	for i := range gray.Pix {
		out.Pix[i] = uint8(float64(gray.Pix[i]-lo) * scale)
	}
	return out
}

// medianFilter applies a 3x3 median, which knocks out speckle noise
// without softening glyph edges the way a box blur would.
func medianFilter(gray *image.Gray) *image.Gray {
	b := gray.Bounds()
	out := image.NewGray(b)
	window := make([]uint8, 0, 9)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			window = window[:0]
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < b.Min.X || nx >= b.Max.X || ny < b.Min.Y || ny >= b.Max.Y {
						continue
					}
					window = append(window, gray.GrayAt(nx, ny).Y)
				}
			}
			sort.Slice(window, func(i, j int) bool { return window[i] < window[j] })
			out.SetGray(x, y, color.Gray{Y: window[len(window)/2]})
		}
	}
	return out
}
