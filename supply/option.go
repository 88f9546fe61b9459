// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package supply

import (
	"errors"
	"fmt"
	"time"

	"github.com/pion/logging"
	"github.com/pion/rtsp-bridge/placeholder"
)

// Static errors for err113 compliance.
var (
	ErrInvalidFPS        = errors.New("target fps must be positive")
	ErrInvalidDimensions = errors.New("dimensions must be positive")
	ErrInvalidDelay      = errors.New("delay must not be negative")
	ErrNilObserver       = errors.New("observer is nil")
)

// Option configures a Track.
type Option func(*Track) error

// WithTargetFPS sets the placeholder emission rate.
func WithTargetFPS(fps float64) Option {
	return func(t *Track) error {
		if fps <= 0 {
			return fmt.Errorf("%w: %v", ErrInvalidFPS, fps)
		}
		t.interval = time.Duration(float64(time.Second) / fps)

		return nil
	}
}

// WithDegradeThreshold sets how many consecutive failures are tolerated before
// the track reports Degraded and logs at error level.
func WithDegradeThreshold(threshold uint64) Option {
	return func(t *Track) error {
		t.threshold = threshold

		return nil
	}
}

// WithPlaceholderSize sets the placeholder size used until a real frame is seen.
func WithPlaceholderSize(width, height int) Option {
	return func(t *Track) error {
		if width <= 0 || height <= 0 {
			return fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
		}
		t.width, t.height = width, height

		return nil
	}
}

// WithPlaceholderLabel sets the text drawn on placeholder frames.
func WithPlaceholderLabel(label string) Option {
	return func(t *Track) error {
		synth, err := placeholder.New(placeholder.WithLabel(label))
		if err != nil {
			return err
		}
		t.synth = synth

		return nil
	}
}

// WithReadFailureDelay sets the pause after a failed read, before the placeholder is paced.
func WithReadFailureDelay(d time.Duration) Option {
	return func(t *Track) error {
		if d < 0 {
			return fmt.Errorf("%w: %v", ErrInvalidDelay, d)
		}
		t.readFailureDelay = d

		return nil
	}
}

// WithOutputSize scales every real frame to width x height. Zero disables scaling.
func WithOutputSize(width, height int) Option {
	return func(t *Track) error {
		if width == 0 && height == 0 {
			t.outWidth, t.outHeight = 0, 0

			return nil
		}
		if width <= 0 || height <= 0 {
			return fmt.Errorf("%w: output %dx%d", ErrInvalidDimensions, width, height)
		}
		t.outWidth, t.outHeight = width, height
		t.width, t.height = width, height

		return nil
	}
}

// WithLoggerFactory sets the logger factory for the track.
func WithLoggerFactory(loggerFactory logging.LoggerFactory) Option {
	return func(t *Track) error {
		t.log = loggerFactory.NewLogger("supply")

		return nil
	}
}

// WithObserver registers an observer for frames, state changes and failures.
func WithObserver(observer Observer) Option {
	return func(t *Track) error {
		if observer == nil {
			return ErrNilObserver
		}
		t.observers = append(t.observers, observer)

		return nil
	}
}

// WithClock replaces the wall clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(t *Track) error {
		t.now = now

		return nil
	}
}

// WithSleep replaces the function used for pacing.
func WithSleep(sleep func(time.Duration)) Option {
	return func(t *Track) error {
		t.sleep = sleep

		return nil
	}
}
