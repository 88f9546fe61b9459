// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package frame defines the raw video frame handed from the frame supply to the transport.
package frame

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"math"
	"time"

	"github.com/pion/mediadevices/pkg/io/video"
)

// ClockRate is the RTP video clock rate all presentation timestamps are expressed in.
const ClockRate = 90000

// Static errors for err113 compliance.
var (
	ErrNilImage        = errors.New("nil image")
	ErrNotI420         = errors.New("converted image is not 4:2:0")
	ErrEmptyDimensions = errors.New("image has empty dimensions")
)

// Rational is a fraction of a second, used as a time base.
type Rational struct {
	Num int64
	Den int64
}

// TimeBase is the time base of every Frame PTS.
var TimeBase = Rational{Num: 1, Den: ClockRate} //nolint:gochecknoglobals

// Frame is a single raw picture with its presentation timestamp.
type Frame struct {
	Image     *image.YCbCr
	Width     int
	Height    int
	PTS       int64
	TimeBase  Rational
	Synthetic bool
	Seq       uint64
}

// Pixels returns the frame as packed planar I420 bytes (Y, then U, then V).
func (f Frame) Pixels() []byte {
	if f.Image == nil {
		return nil
	}

	width, height := f.Width, f.Height
	chromaWidth, chromaHeight := (width+1)/2, (height+1)/2

	out := make([]byte, 0, width*height+2*chromaWidth*chromaHeight)
	for row := 0; row < height; row++ {
		start := row * f.Image.YStride
		out = append(out, f.Image.Y[start:start+width]...)
	}
	for _, plane := range [][]byte{f.Image.Cb, f.Image.Cr} {
		for row := 0; row < chromaHeight; row++ {
			start := row * f.Image.CStride
			out = append(out, plane[start:start+chromaWidth]...)
		}
	}

	return out
}

// Timestamp returns the PTS as an offset from the epoch.
func (f Frame) Timestamp() time.Duration {
	return FromTicks(f.PTS)
}

// Ticks converts an elapsed duration into 90 kHz ticks, rounding to nearest.
func Ticks(elapsed time.Duration) int64 {
	secs := int64(elapsed / time.Second)
	rem := elapsed % time.Second

	return secs*ClockRate + int64(math.Round(float64(rem)*ClockRate/float64(time.Second)))
}

// FromTicks converts 90 kHz ticks back into a duration.
func FromTicks(ticks int64) time.Duration {
	secs := ticks / ClockRate
	rem := ticks % ClockRate

	return time.Duration(secs)*time.Second + time.Duration(rem)*time.Second/ClockRate
}

// Duration returns the time between two consecutive PTS values.
// Non-positive deltas fall back to fallback.
func Duration(prev, cur int64, fallback time.Duration) time.Duration {
	if cur <= prev {
		return fallback
	}

	return FromTicks(cur - prev)
}

// ToI420 converts a captured image into an owned 4:2:0 YCbCr image.
func ToI420(img image.Image) (*image.YCbCr, error) {
	if img == nil {
		return nil, ErrNilImage
	}
	if img.Bounds().Empty() {
		return nil, ErrEmptyDimensions
	}

	switch img.(type) {
	case *image.YCbCr, *image.RGBA:
	default:
		rgba := image.NewRGBA(image.Rect(0, 0, img.Bounds().Dx(), img.Bounds().Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
		img = rgba
	}

	source := video.ReaderFunc(func() (image.Image, func(), error) {
		return img, func() {}, nil
	})

	converted, release, err := video.ToI420(source).Read()
	if err != nil {
		return nil, fmt.Errorf("convert to I420: %w", err)
	}
	defer release()

	yuv, ok := converted.(*image.YCbCr)
	if !ok || yuv.SubsampleRatio != image.YCbCrSubsampleRatio420 {
		return nil, fmt.Errorf("%w: %T", ErrNotI420, converted)
	}

	return cloneYCbCr(yuv), nil
}

func cloneYCbCr(src *image.YCbCr) *image.YCbCr {
	dst := image.NewYCbCr(image.Rect(0, 0, src.Rect.Dx(), src.Rect.Dy()), image.YCbCrSubsampleRatio420)
	for row := 0; row < dst.Rect.Dy(); row++ {
		copy(dst.Y[row*dst.YStride:(row+1)*dst.YStride], src.Y[src.YOffset(src.Rect.Min.X, src.Rect.Min.Y+row):])
	}
	chromaHeight := (dst.Rect.Dy() + 1) / 2
	for row := 0; row < chromaHeight; row++ {
		srcOff := src.COffset(src.Rect.Min.X, src.Rect.Min.Y+2*row)
		copy(dst.Cb[row*dst.CStride:(row+1)*dst.CStride], src.Cb[srcOff:])
		copy(dst.Cr[row*dst.CStride:(row+1)*dst.CStride], src.Cr[srcOff:])
	}

	return dst
}
