// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package placeholder synthesizes the frame shown while the upstream source is unavailable.
package placeholder

import (
	"errors"
	"fmt"
	"image"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	// DefaultLabel is burned into the placeholder so viewers can tell the source is down.
	DefaultLabel = "NO SIGNAL"

	defaultBackgroundLuma = 16
	defaultLabelLuma      = 235
	neutralChroma         = 128

	// label height relative to frame height
	labelHeightDivisor = 12
)

// Static errors for err113 compliance.
var (
	ErrInvalidDimensions = errors.New("invalid placeholder dimensions")
	ErrInvalidLuma       = errors.New("luma must be in [0, 255]")
)

// Option configures a Synthesizer.
type Option func(*Synthesizer) error

// WithLabel sets the text drawn in the middle of the placeholder. Empty disables the label.
func WithLabel(label string) Option {
	return func(s *Synthesizer) error {
		s.label = label

		return nil
	}
}

// WithLuma sets the background and label brightness.
func WithLuma(background, label int) Option {
	return func(s *Synthesizer) error {
		if background < 0 || background > 255 || label < 0 || label > 255 {
			return fmt.Errorf("%w: background=%d label=%d", ErrInvalidLuma, background, label)
		}
		s.background = uint8(background)
		s.foreground = uint8(label)

		return nil
	}
}

// Synthesizer builds and caches the placeholder picture for the current output size.
// It is not safe for concurrent use.
type Synthesizer struct {
	label      string
	background uint8
	foreground uint8

	cached *image.YCbCr
	width  int
	height int
	builds int
}

// New creates a Synthesizer.
func New(opts ...Option) (*Synthesizer, error) {
	s := &Synthesizer{
		label:      DefaultLabel,
		background: defaultBackgroundLuma,
		foreground: defaultLabelLuma,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Ensure returns the placeholder for width x height. The returned image is shared
// and must not be modified. It is rebuilt only when the dimensions change.
func (s *Synthesizer) Ensure(width, height int) (*image.YCbCr, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	if s.cached != nil && s.width == width && s.height == height {
		return s.cached, nil
	}

	img := image.NewYCbCr(image.Rect(0, 0, width, height), image.YCbCrSubsampleRatio420)
	for i := range img.Y {
		img.Y[i] = s.background
	}
	for i := range img.Cb {
		img.Cb[i] = neutralChroma
		img.Cr[i] = neutralChroma
	}
	s.drawLabel(img)

	s.cached = img
	s.width = width
	s.height = height
	s.builds++

	return img, nil
}

// Builds returns how many times the template was rebuilt.
func (s *Synthesizer) Builds() int {
	return s.builds
}

func (s *Synthesizer) drawLabel(img *image.YCbCr) {
	if s.label == "" {
		return
	}

	face := basicfont.Face7x13
	textWidth := font.MeasureString(face, s.label).Ceil()
	textHeight := face.Height
	if textWidth == 0 {
		return
	}

	scale := img.Rect.Dy() / labelHeightDivisor / textHeight
	if scale < 1 {
		scale = 1
	}
	if textWidth*scale > img.Rect.Dx() {
		scale = img.Rect.Dx() / textWidth
	}
	if scale < 1 || textHeight*scale > img.Rect.Dy() {
		// too small for even an unscaled label
		return
	}

	mask := image.NewAlpha(image.Rect(0, 0, textWidth, textHeight))
	drawer := &font.Drawer{
		Dst:  mask,
		Src:  image.Opaque,
		Face: face,
		Dot:  fixed.P(0, face.Ascent),
	}
	drawer.DrawString(s.label)

	originX := (img.Rect.Dx() - textWidth*scale) / 2
	originY := (img.Rect.Dy() - textHeight*scale) / 2
	for my := 0; my < textHeight; my++ {
		for mx := 0; mx < textWidth; mx++ {
			if mask.AlphaAt(mx, my).A < 0x80 {
				continue
			}
			for dy := 0; dy < scale; dy++ {
				row := (originY + my*scale + dy) * img.YStride
				for dx := 0; dx < scale; dx++ {
					img.Y[row+originX+mx*scale+dx] = s.foreground
				}
			}
		}
	}
}
