// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

//go:build !js
// +build !js

package capture

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

// ffmpegOptionsEnv is read by OpenCV's FFmpeg backend when a capture is opened.
const ffmpegOptionsEnv = "OPENCV_FFMPEG_CAPTURE_OPTIONS"

var ffmpegOptionsOnce sync.Once //nolint:gochecknoglobals

// GoCVDevice opens RTSP (or any FFmpeg-readable) sources through OpenCV.
type GoCVDevice struct {
	// BufferSize is the capture queue length; 1 keeps latency minimal.
	BufferSize int
	// SocketTimeoutMicros is passed to FFmpeg as its RTSP socket timeout.
	SocketTimeoutMicros int64
}

// NewGoCVDevice returns a device that forces RTSP over TCP with a single frame buffer.
func NewGoCVDevice() *GoCVDevice {
	return &GoCVDevice{
		BufferSize:          1,
		SocketTimeoutMicros: DefaultOpenTimeout.Microseconds(),
	}
}

func (d *GoCVDevice) configureFFmpeg() {
	ffmpegOptionsOnce.Do(func() {
		if _, set := os.LookupEnv(ffmpegOptionsEnv); set {
			return
		}
		_ = os.Setenv(ffmpegOptionsEnv, fmt.Sprintf("rtsp_transport;tcp|timeout;%d", d.SocketTimeoutMicros))
	})
}

// Open connects to address with the FFmpeg backend.
func (d *GoCVDevice) Open(ctx context.Context, address string) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.configureFFmpeg()

	capture, err := gocv.OpenVideoCaptureWithAPI(address, gocv.VideoCaptureFFmpeg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	if !capture.IsOpened() {
		_ = capture.Close()

		return nil, fmt.Errorf("%w: capture did not open", ErrUnreachable)
	}
	if d.BufferSize > 0 {
		capture.Set(gocv.VideoCaptureBufferSize, float64(d.BufferSize))
	}

	if err := ctx.Err(); err != nil {
		_ = capture.Close()

		return nil, err
	}

	return &gocvStream{capture: capture, mat: gocv.NewMat()}, nil
}

type gocvStream struct {
	capture *gocv.VideoCapture
	mat     gocv.Mat
}

func (s *gocvStream) Read() (image.Image, error) {
	if ok := s.capture.Read(&s.mat); !ok {
		return nil, ErrStreamEnded
	}
	if s.mat.Empty() {
		return nil, fmt.Errorf("%w: empty mat", ErrDecode)
	}

	img, err := s.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	return img, nil
}

func (s *gocvStream) Close() error {
	if err := s.mat.Close(); err != nil {
		_ = s.capture.Close()

		return err
	}

	return s.capture.Close()
}
