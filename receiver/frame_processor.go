// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

//go:build !js
// +build !js

package receiver

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"io"
	"sync"
	"time"

	"github.com/pion/logging"
	"github.com/pion/mediadevices/pkg/codec"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	"github.com/pion/mediadevices/pkg/prop"
)

var (
	// ErrDecoderCreationFailed is returned when VP8 decoder creation fails.
	ErrDecoderCreationFailed = errors.New("VP8 decoder creation failed")
	// ErrDecoderCloseFailed is returned when decoder close operation fails.
	ErrDecoderCloseFailed = errors.New("decoder close failed")
)

const (
	feederDepth  = 10
	decodeIdle   = time.Millisecond
	decodeErrGap = 10 * time.Millisecond
	drainTimeout = 100 * time.Millisecond
)

// frameFeeder hands compressed frames to the decoder as an io.Reader.
type frameFeeder struct {
	frames  chan []byte
	current []byte
	offset  int
	dropped int
	mu      sync.Mutex
	closed  bool
}

func newFrameFeeder() *frameFeeder {
	return &frameFeeder{frames: make(chan []byte, feederDepth)}
}

// Read never blocks; it returns 0, nil when no frame is pending.
func (f *frameFeeder) Read(buffer []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.current == nil {
		select {
		case data, ok := <-f.frames:
			if !ok {
				return 0, io.EOF
			}
			f.current, f.offset = data, 0
		default:
			return 0, nil
		}
	}

	n := copy(buffer, f.current[f.offset:])
	f.offset += n
	if f.offset >= len(f.current) {
		f.current, f.offset = nil, 0
	}

	return n, nil
}

// feed queues data, dropping it when the decoder is behind.
func (f *frameFeeder) feed(data []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return false
	}

	select {
	case f.frames <- data:
		return true
	default:
		f.dropped++

		return false
	}
}

func (f *frameFeeder) close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.closed {
		f.closed = true
		close(f.frames)
	}
}

// VP8FrameProcessor decodes VP8 frames of one track and reports each picture.
type VP8FrameProcessor struct {
	decoder          codec.VideoDecoder
	feeder           *frameFeeder
	frameCounter     int
	gotFirstKeyframe bool
	trackID          string
	log              logging.LeveledLogger

	onPicture func(img image.Image)

	done      chan struct{}
	finished  chan struct{}
	closeOnce sync.Once
	mu        sync.RWMutex
}

// NewVP8FrameProcessor starts a decoder for a width x height track.
func NewVP8FrameProcessor(
	width, height int, trackID string, onPicture func(image.Image), logger logging.LeveledLogger,
) (*VP8FrameProcessor, error) {
	feeder := newFrameFeeder()

	decoder, err := vpx.NewDecoder(feeder, prop.Media{
		Video: prop.Video{
			Width:  width,
			Height: height,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecoderCreationFailed, err)
	}

	processor := &VP8FrameProcessor{
		decoder:   decoder,
		feeder:    feeder,
		trackID:   trackID,
		log:       logger,
		onPicture: onPicture,
		done:      make(chan struct{}),
		finished:  make(chan struct{}),
	}
	go processor.run()

	return processor, nil
}

func (vp *VP8FrameProcessor) run() {
	defer close(vp.finished)

	for {
		select {
		case <-vp.done:
			return
		default:
		}

		img, release, err := vp.decoder.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			time.Sleep(decodeErrGap)

			continue
		}
		if img == nil {
			time.Sleep(decodeIdle)

			continue
		}

		vp.mu.Lock()
		vp.frameCounter++
		vp.mu.Unlock()

		if vp.onPicture != nil {
			vp.onPicture(img)
		}
		if release != nil {
			release()
		}
	}
}

// Decode queues one complete VP8 frame.
func (vp *VP8FrameProcessor) Decode(frameData []byte) {
	if len(frameData) == 0 {
		return
	}

	// the caller may reuse frameData
	frameCopy := make([]byte, len(frameData))
	copy(frameCopy, frameData)
	if !vp.feeder.feed(frameCopy) {
		vp.log.Debugf("Track %s: decoder behind, dropped a frame", vp.trackID)
	}
}

// SetFirstKeyFrame marks that we got the first keyframe.
func (vp *VP8FrameProcessor) SetFirstKeyFrame() {
	vp.mu.Lock()
	defer vp.mu.Unlock()
	vp.gotFirstKeyframe = true
}

// HasFirstKeyFrame returns whether we got the first keyframe.
func (vp *VP8FrameProcessor) HasFirstKeyFrame() bool {
	vp.mu.RLock()
	defer vp.mu.RUnlock()

	return vp.gotFirstKeyframe
}

// Close stops the decoder after giving it a moment to drain.
func (vp *VP8FrameProcessor) Close() error {
	var err error
	vp.closeOnce.Do(func() {
		vp.feeder.close()

		select {
		case <-vp.finished:
		case <-time.After(drainTimeout):
		}
		close(vp.done)
		<-vp.finished

		if closeErr := vp.decoder.Close(); closeErr != nil {
			err = fmt.Errorf("%w: %w", ErrDecoderCloseFailed, closeErr)
		}

		vp.log.Infof("Closed frame processor for %s with %d frames", vp.trackID, vp.GetFrameCount())
	})

	return err
}

// GetFrameCount returns the number of decoded pictures.
func (vp *VP8FrameProcessor) GetFrameCount() int {
	vp.mu.RLock()
	defer vp.mu.RUnlock()

	return vp.frameCounter
}

// isVP8Keyframe reports whether a depacketized VP8 frame starts a keyframe.
func isVP8Keyframe(data []byte) bool {
	return len(data) > 0 && data[0]&0x01 == 0
}

// parseVP8KeyframeDimensions reads the picture size from a VP8 keyframe header.
func parseVP8KeyframeDimensions(data []byte) (int, int, bool) {
	const headerSize = 10
	if len(data) < headerSize || !isVP8Keyframe(data) {
		return 0, 0, false
	}
	if data[3] != 0x9d || data[4] != 0x01 || data[5] != 0x2a {
		return 0, 0, false
	}

	width := int(binary.LittleEndian.Uint16(data[6:8]) & 0x3fff)
	height := int(binary.LittleEndian.Uint16(data[8:10]) & 0x3fff)
	if width == 0 || height == 0 {
		return 0, 0, false
	}

	return width, height, true
}
