// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package placeholder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynthesizer_Ensure(t *testing.T) {
	s, err := New()
	require.NoError(t, err)

	img, err := s.Ensure(640, 480)
	require.NoError(t, err)
	assert.Equal(t, 640, img.Rect.Dx())
	assert.Equal(t, 480, img.Rect.Dy())
	assert.Equal(t, 1, s.Builds())

	for _, v := range img.Cb {
		require.Equal(t, uint8(neutralChroma), v)
	}
}

func TestSynthesizer_Caching(t *testing.T) {
	s, err := New()
	require.NoError(t, err)

	first, err := s.Ensure(640, 480)
	require.NoError(t, err)
	second, err := s.Ensure(640, 480)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, s.Builds())

	resized, err := s.Ensure(1280, 720)
	require.NoError(t, err)
	assert.NotSame(t, first, resized)
	assert.Equal(t, 1280, resized.Rect.Dx())
	assert.Equal(t, 720, resized.Rect.Dy())
	assert.Equal(t, 2, s.Builds())
}

func TestSynthesizer_Deterministic(t *testing.T) {
	a, err := New()
	require.NoError(t, err)
	b, err := New()
	require.NoError(t, err)

	imgA, err := a.Ensure(320, 240)
	require.NoError(t, err)
	imgB, err := b.Ensure(320, 240)
	require.NoError(t, err)

	assert.Equal(t, imgA.Y, imgB.Y)
	assert.Equal(t, imgA.Cb, imgB.Cb)
	assert.Equal(t, imgA.Cr, imgB.Cr)
}

func TestSynthesizer_Label(t *testing.T) {
	labeled, err := New()
	require.NoError(t, err)
	plain, err := New(WithLabel(""))
	require.NoError(t, err)

	withText, err := labeled.Ensure(640, 480)
	require.NoError(t, err)
	without, err := plain.Ensure(640, 480)
	require.NoError(t, err)

	assert.Contains(t, withText.Y, uint8(defaultLabelLuma))
	assert.NotContains(t, without.Y, uint8(defaultLabelLuma))
}

func TestSynthesizer_TinyFrames(t *testing.T) {
	s, err := New()
	require.NoError(t, err)

	for _, dims := range [][2]int{{1, 1}, {2, 2}, {1000, 4}, {8, 1000}} {
		img, err := s.Ensure(dims[0], dims[1])
		require.NoError(t, err)
		assert.Equal(t, dims[0], img.Rect.Dx())
	}
}

func TestSynthesizer_InvalidDimensions(t *testing.T) {
	s, err := New()
	require.NoError(t, err)

	_, err = s.Ensure(0, 480)
	assert.ErrorIs(t, err, ErrInvalidDimensions)
	_, err = s.Ensure(640, -1)
	assert.ErrorIs(t, err, ErrInvalidDimensions)
}

func TestWithLuma(t *testing.T) {
	_, err := New(WithLuma(300, 0))
	assert.ErrorIs(t, err, ErrInvalidLuma)

	s, err := New(WithLuma(0, 255), WithLabel(""))
	require.NoError(t, err)
	img, err := s.Ensure(4, 4)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), img.Y[0])
}
