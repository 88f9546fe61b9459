// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package clock assigns 90 kHz presentation timestamps relative to a session epoch.
package clock

import (
	"image"
	"time"

	"github.com/pion/rtsp-bridge/frame"
)

// Clock stamps frames with strictly increasing PTS values.
// The epoch is fixed by the first Anchor or Stamp and never changes afterwards.
// A Clock is not safe for concurrent use.
type Clock struct {
	epoch    time.Time
	anchored bool
	last     int64
	stamped  bool
	seq      uint64
}

// New creates a clock with no epoch.
func New() *Clock {
	return &Clock{}
}

// Anchor sets the epoch to now if no epoch is set yet. It reports whether it did.
func (c *Clock) Anchor(now time.Time) bool {
	if c.anchored {
		return false
	}
	c.epoch = now
	c.anchored = true

	return true
}

// Epoch returns the epoch and whether one is set.
func (c *Clock) Epoch() (time.Time, bool) {
	return c.epoch, c.anchored
}

// Last returns the most recently assigned PTS, or -1 if nothing was stamped.
func (c *Clock) Last() int64 {
	if !c.stamped {
		return -1
	}

	return c.last
}

// Stamp wraps img in a Frame with the PTS for now.
// If the wall clock went backwards or did not advance, the PTS is last+1.
func (c *Clock) Stamp(img *image.YCbCr, now time.Time, synthetic bool) frame.Frame {
	c.Anchor(now)

	pts := frame.Ticks(now.Sub(c.epoch))
	if c.stamped && pts <= c.last {
		pts = c.last + 1
	}
	c.last = pts
	c.stamped = true
	c.seq++

	f := frame.Frame{
		Image:     img,
		PTS:       pts,
		TimeBase:  frame.TimeBase,
		Synthetic: synthetic,
		Seq:       c.seq,
	}
	if img != nil {
		f.Width = img.Rect.Dx()
		f.Height = img.Rect.Dy()
	}

	return f
}
