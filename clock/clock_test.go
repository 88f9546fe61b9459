// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package clock

import (
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClock_Anchor(t *testing.T) {
	c := New()
	_, ok := c.Epoch()
	assert.False(t, ok)

	first := time.Unix(1000, 0)
	assert.True(t, c.Anchor(first))
	assert.False(t, c.Anchor(first.Add(time.Hour)))

	epoch, ok := c.Epoch()
	require.True(t, ok)
	assert.Equal(t, first, epoch)
}

func TestClock_Stamp(t *testing.T) {
	epoch := time.Unix(1000, 0)
	img := image.NewYCbCr(image.Rect(0, 0, 16, 8), image.YCbCrSubsampleRatio420)

	t.Run("first stamp anchors when no epoch", func(t *testing.T) {
		c := New()
		f := c.Stamp(img, epoch, true)

		assert.Equal(t, int64(0), f.PTS)
		assert.True(t, f.Synthetic)
		assert.Equal(t, 16, f.Width)
		assert.Equal(t, 8, f.Height)
		assert.Equal(t, int64(90000), f.TimeBase.Den)
		_, ok := c.Epoch()
		assert.True(t, ok)
	})

	t.Run("elapsed time in 90kHz ticks", func(t *testing.T) {
		c := New()
		c.Anchor(epoch)

		f := c.Stamp(img, epoch.Add(time.Second), false)
		assert.Equal(t, int64(90000), f.PTS)
		assert.Equal(t, int64(90000), c.Last())
	})

	t.Run("zero elapsed advances by one tick", func(t *testing.T) {
		c := New()
		c.Anchor(epoch)

		now := epoch.Add(time.Second)
		a := c.Stamp(img, now, false)
		b := c.Stamp(img, now, true)
		assert.Equal(t, a.PTS+1, b.PTS)
	})

	t.Run("wall clock regression never decreases pts", func(t *testing.T) {
		c := New()
		c.Anchor(epoch)

		a := c.Stamp(img, epoch.Add(2*time.Second), false)
		b := c.Stamp(img, epoch.Add(time.Second), false)
		d := c.Stamp(img, epoch.Add(-time.Second), true)
		assert.Greater(t, b.PTS, a.PTS)
		assert.Greater(t, d.PTS, b.PTS)
	})

	t.Run("sequence numbers increase", func(t *testing.T) {
		c := New()
		a := c.Stamp(img, epoch, false)
		b := c.Stamp(img, epoch, false)
		assert.Equal(t, a.Seq+1, b.Seq)
	})

	t.Run("last before any stamp", func(t *testing.T) {
		assert.Equal(t, int64(-1), New().Last())
	})
}
