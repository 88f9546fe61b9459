//go:build !js
// +build !js

// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package preview

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// ErrFrameTooSmall is returned for frames without a full 2x2 block.
var ErrFrameTooSmall = errors.New("frame too small to convert")

// toMat converts a 4:2:0 frame to a BGR Mat through NV12. Odd edges are cropped.
func toMat(img *image.YCbCr) (gocv.Mat, error) {
	if img == nil {
		return gocv.NewMat(), ErrFrameTooSmall
	}
	w := img.Rect.Dx() &^ 1
	h := img.Rect.Dy() &^ 1
	if w == 0 || h == 0 {
		return gocv.NewMat(), ErrFrameTooSmall
	}

	ySize := w * h
	nv12 := make([]byte, ySize+ySize/2)

	for row := 0; row < h; row++ {
		start := img.YOffset(img.Rect.Min.X, img.Rect.Min.Y+row)
		copy(nv12[row*w:(row+1)*w], img.Y[start:start+w])
	}

	// interleave chroma as UVUV...
	offset := ySize
	for row := 0; row < h/2; row++ {
		for col := 0; col < w/2; col++ {
			c := img.COffset(img.Rect.Min.X+col*2, img.Rect.Min.Y+row*2)
			nv12[offset] = img.Cb[c]
			nv12[offset+1] = img.Cr[c]
			offset += 2
		}
	}

	yuvMat, err := gocv.NewMatFromBytes(h+h/2, w, gocv.MatTypeCV8UC1, nv12)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("nv12 mat: %w", err)
	}
	defer func() { _ = yuvMat.Close() }()

	bgr := gocv.NewMat()
	gocv.CvtColor(yuvMat, &bgr, gocv.ColorYUVToBGRNV12)

	return bgr, nil
}
