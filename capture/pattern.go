// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// PatternScheme selects the built-in test pattern source.
const PatternScheme = "pattern"

// ErrInvalidPattern is returned for malformed pattern:// addresses.
var ErrInvalidPattern = errors.New("invalid pattern address")

// PatternDevice produces a moving gradient instead of talking to a camera.
// Address form: pattern://WIDTHxHEIGHT?fps=N&fail_after=F&refuse=R
//
//   - fps paces Read (default 15)
//   - fail_after ends each stream after F frames (0 = never)
//   - refuse fails the first R open attempts
type PatternDevice struct {
	opens atomic.Int64
}

type patternConfig struct {
	width     int
	height    int
	interval  time.Duration
	failAfter int
	refuse    int
}

func parsePattern(address string) (patternConfig, error) {
	u, err := url.Parse(address)
	if err != nil {
		return patternConfig{}, fmt.Errorf("%w: %w", ErrInvalidPattern, err)
	}
	if u.Scheme != PatternScheme {
		return patternConfig{}, fmt.Errorf("%w: scheme %q", ErrInvalidPattern, u.Scheme)
	}

	cfg := patternConfig{width: 640, height: 480, interval: time.Second / 15}
	if u.Host != "" {
		w, h, ok := strings.Cut(u.Host, "x")
		if !ok {
			return patternConfig{}, fmt.Errorf("%w: size %q", ErrInvalidPattern, u.Host)
		}
		if cfg.width, err = strconv.Atoi(w); err != nil || cfg.width <= 0 {
			return patternConfig{}, fmt.Errorf("%w: width %q", ErrInvalidPattern, w)
		}
		if cfg.height, err = strconv.Atoi(h); err != nil || cfg.height <= 0 {
			return patternConfig{}, fmt.Errorf("%w: height %q", ErrInvalidPattern, h)
		}
	}

	query := u.Query()
	if v := query.Get("fps"); v != "" {
		fps, err := strconv.ParseFloat(v, 64)
		if err != nil || fps <= 0 {
			return patternConfig{}, fmt.Errorf("%w: fps %q", ErrInvalidPattern, v)
		}
		cfg.interval = time.Duration(float64(time.Second) / fps)
	}
	for key, dst := range map[string]*int{"fail_after": &cfg.failAfter, "refuse": &cfg.refuse} {
		v := query.Get(key)
		if v == "" {
			continue
		}
		if *dst, err = strconv.Atoi(v); err != nil || *dst < 0 {
			return patternConfig{}, fmt.Errorf("%w: %s %q", ErrInvalidPattern, key, v)
		}
	}

	return cfg, nil
}

// Open starts a new pattern stream.
func (d *PatternDevice) Open(ctx context.Context, address string) (Stream, error) {
	cfg, err := parsePattern(address)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupported, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if attempt := d.opens.Add(1); attempt <= int64(cfg.refuse) {
		return nil, fmt.Errorf("%w: refusing attempt %d of %d", ErrUnreachable, attempt, cfg.refuse)
	}

	return &patternStream{cfg: cfg, closed: make(chan struct{})}, nil
}

type patternStream struct {
	cfg       patternConfig
	frame     int
	closeOnce sync.Once
	closed    chan struct{}
}

func (s *patternStream) Read() (image.Image, error) {
	if s.cfg.failAfter > 0 && s.frame >= s.cfg.failAfter {
		return nil, ErrStreamEnded
	}

	timer := time.NewTimer(s.cfg.interval)
	defer timer.Stop()
	select {
	case <-s.closed:
		return nil, ErrSessionClosed
	case <-timer.C:
	}

	img := animatedGradient(s.cfg.width, s.cfg.height, s.frame)
	s.frame++

	return img, nil
}

func (s *patternStream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })

	return nil
}

// animatedGradient draws a gradient that shifts with every frame.
func animatedGradient(width, height, frame int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	offset := frame % 255
	blue := uint8((128 + offset) % 255) //nolint:gosec // bounded by modulo

	for y := 0; y < height; y++ {
		green := uint8(min(((y+offset)*255)/height, 255)) //nolint:gosec // clamped
		row := img.Pix[y*img.Stride:]
		for x := 0; x < width; x++ {
			px := row[x*4 : x*4+4]
			px[0] = uint8(min(((x+offset)*255)/width, 255)) //nolint:gosec // clamped
			px[1] = green
			px[2] = blue
			px[3] = 255
		}
	}

	return img
}
