// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package receiver

import (
	"image"
	"math"
)

// lumaStats returns the mean and standard deviation of the visible Y plane.
// A flat picture (stddev near zero) usually means a placeholder or a broken decode.
func lumaStats(img *image.YCbCr) (float64, float64) {
	if img == nil {
		return 0, 0
	}
	width, height := img.Rect.Dx(), img.Rect.Dy()
	if width <= 0 || height <= 0 {
		return 0, 0
	}

	var sum, sumSquares float64
	for row := 0; row < height; row++ {
		start := row * img.YStride
		for _, v := range img.Y[start : start+width] {
			value := float64(v)
			sum += value
			sumSquares += value * value
		}
	}

	n := float64(width * height)
	mean := sum / n
	variance := sumSquares/n - mean*mean
	if variance < 0 {
		variance = 0
	}

	return mean, math.Sqrt(variance)
}
