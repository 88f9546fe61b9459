// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package sender

import (
	"errors"
	"image"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/logging"
	"github.com/pion/rtsp-bridge/frame"
)

// ErrSourceClosed is returned by Read after the source was closed.
var ErrSourceClosed = errors.New("track source closed")

// trackSource adapts a FrameSupplier to mediadevices.VideoSource. The encoder
// pulls exactly one frame per Read.
type trackSource struct {
	id       string
	supplier FrameSupplier
	sinks    []FrameSink
	fallback time.Duration
	log      logging.LeveledLogger

	lastPTS  int64
	started  bool
	duration atomic.Int64
	frames   atomic.Uint64
	dropped  atomic.Uint64

	closed    atomic.Bool
	closeOnce sync.Once
}

func newTrackSource(id string, supplier FrameSupplier, fallback time.Duration, log logging.LeveledLogger) *trackSource {
	s := &trackSource{
		id:       id,
		supplier: supplier,
		fallback: fallback,
		log:      log,
	}
	s.duration.Store(int64(fallback))

	return s
}

// ID returns the identifier for this video source.
func (s *trackSource) ID() string {
	return s.id
}

// Read returns the next frame from the supplier.
func (s *trackSource) Read() (image.Image, func(), error) {
	if s.closed.Load() {
		return nil, func() {}, io.EOF
	}

	f := s.supplier.NextFrame()

	d := s.fallback
	if s.started {
		d = frame.Duration(s.lastPTS, f.PTS, s.fallback)
	}
	s.started = true
	s.lastPTS = f.PTS
	s.duration.Store(int64(d))
	s.frames.Add(1)

	for _, sink := range s.sinks {
		if !sink.Push(f) {
			s.dropped.Add(1)
		}
	}

	return f.Image, func() {}, nil
}

// lastDuration is the PTS delta of the most recent frame.
func (s *trackSource) lastDuration() time.Duration {
	return time.Duration(s.duration.Load())
}

// Close stops the supplier. Later reads return io.EOF.
func (s *trackSource) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.supplier.Stop()
		s.log.Debugf("Track source %s closed after %d frames (%d sink drops)",
			s.id, s.frames.Load(), s.dropped.Load())
	})

	return nil
}
