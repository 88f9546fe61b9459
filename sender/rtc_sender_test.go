//go:build !js
// +build !js

// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package sender

import (
	"bytes"
	"context"
	"image"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pion/logging"
	"github.com/pion/mediadevices/pkg/codec"
	"github.com/pion/mediadevices/pkg/io/video"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/rtsp-bridge/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockVideoEncoderBuilder for testing.
type MockVideoEncoderBuilder struct {
	controller *mockBitRateController
}

func (m *MockVideoEncoderBuilder) RTPCodec() *codec.RTPCodec {
	return codec.NewRTPVP8Codec(90000)
}

func (m *MockVideoEncoderBuilder) BuildVideoEncoder(_ video.Reader, _ prop.Media) (codec.ReadCloser, error) {
	return &MockReadCloser{controller: m.controller}, nil
}

// MockReadCloser for testing.
type MockReadCloser struct {
	controller *mockBitRateController
}

func (m *MockReadCloser) Read() ([]byte, func(), error) {
	time.Sleep(5 * time.Millisecond)

	return []byte{0x10, 0x02, 0x00}, func() {}, nil
}

func (m *MockReadCloser) Close() error {
	return nil
}

func (m *MockReadCloser) Controller() codec.EncoderController {
	if m.controller == nil {
		return nil
	}

	return m.controller
}

type mockBitRateController struct {
	mu    sync.Mutex
	rates []int
}

func (c *mockBitRateController) SetBitRate(bitrate int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rates = append(c.rates, bitrate)

	return nil
}

func (c *mockBitRateController) last() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.rates) == 0 {
		return 0
	}

	return c.rates[len(c.rates)-1]
}

// fakeSupplier emits small frames with a fixed PTS step.
type fakeSupplier struct {
	mu     sync.Mutex
	pts    int64
	step   int64
	calls  int
	stops  atomic.Int32
	width  int
	height int
}

func newFakeSupplier() *fakeSupplier {
	return &fakeSupplier{step: 6000, width: 64, height: 48}
}

func (f *fakeSupplier) NextFrame() frame.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()

	img := image.NewYCbCr(image.Rect(0, 0, f.width, f.height), image.YCbCrSubsampleRatio420)
	out := frame.Frame{
		Image:    img,
		Width:    f.width,
		Height:   f.height,
		PTS:      f.pts,
		TimeBase: frame.TimeBase,
		Seq:      uint64(f.calls),
	}
	f.pts += f.step
	f.calls++

	return out
}

func (f *fakeSupplier) Stop() {
	f.stops.Add(1)
}

func (f *fakeSupplier) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls
}

type recordingSink struct {
	mu     sync.Mutex
	frames []frame.Frame
	accept bool
}

func (r *recordingSink) Push(f frame.Frame) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.frames = append(r.frames, f)

	return r.accept
}

func newTestSender(t *testing.T, supplier FrameSupplier, opts ...Option) *RTCSender {
	t.Helper()

	opts = append([]Option{EncoderBuilder(&MockVideoEncoderBuilder{})}, opts...)
	sender, err := NewRTCSender(supplier, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sender.Close() })

	return sender
}

func TestNewRTCSender(t *testing.T) {
	sender := newTestSender(t, newFakeSupplier())

	var _ WebRTCSender = sender
	assert.NotNil(t, sender.GetWebRTCTrackLocal())
	assert.Equal(t, DefaultTrackID, sender.GetWebRTCTrackLocal().ID())
}

func TestNewRTCSender_NilSupplier(t *testing.T) {
	_, err := NewRTCSender(nil)
	assert.ErrorIs(t, err, ErrNilSupplier)
}

func TestNewRTCSender_InvalidOptions(t *testing.T) {
	tests := []struct {
		name    string
		opt     Option
		wantErr error
	}{
		{name: "zero bitrate", opt: GCC(0), wantErr: ErrInvalidBitrate},
		{name: "empty track id", opt: TrackID(""), wantErr: ErrEmptyTrackID},
		{name: "nil sink", opt: WithFrameSink(nil), wantErr: ErrNilSink},
		{name: "nil registry", opt: WithRegistry(nil), wantErr: ErrNilRegistry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRTCSender(newFakeSupplier(), tt.opt)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRTCSender_Options(t *testing.T) {
	ccLog := &bytes.Buffer{}
	sender := newTestSender(t, newFakeSupplier(),
		SetLoggerFactory(logging.NewDefaultLoggerFactory()),
		CCLogWriter(ccLog),
		RTPLogWriter(io.Discard, io.Discard),
		GCC(500_000),
		DefaultInterceptors(),
		ICEServers("stun:stun.l.google.com:19302"),
		TrackID("camera-1"),
		FrameDuration(40*time.Millisecond),
	)

	assert.Equal(t, 500_000, sender.initialBitrate)
	assert.Equal(t, "camera-1", sender.GetWebRTCTrackLocal().ID())
	assert.Len(t, sender.iceServers, 1)
	assert.Equal(t, 40*time.Millisecond, sender.fallbackDuration)
	assert.Same(t, ccLog, sender.ccLogWriter)
}

func TestRTCSender_CreateOffer_NoPeerConnection(t *testing.T) {
	sender := newTestSender(t, newFakeSupplier())

	_, err := sender.CreateOffer()
	assert.ErrorIs(t, err, ErrNoPeerConnection)
	assert.ErrorIs(t, sender.AcceptAnswer(nil), ErrNoPeerConnection)
}

func TestRTCSender_CreateOffer(t *testing.T) {
	registry := NewRegistry()
	sender := newTestSender(t, newFakeSupplier(), WithRegistry(registry))

	require.NoError(t, sender.SetupPeerConnection())
	assert.Equal(t, 1, registry.Len())

	offer, err := sender.CreateOffer()
	require.NoError(t, err)
	assert.Contains(t, offer.SDP, "m=video")
	assert.Contains(t, offer.SDP, "VP8")

	require.NoError(t, sender.Close())
	assert.Equal(t, 0, registry.Len())
}

func TestRTCSender_UpdateEncoderBitrate(t *testing.T) {
	controller := &mockBitRateController{}
	sender, err := NewRTCSender(newFakeSupplier(), EncoderBuilder(&MockVideoEncoderBuilder{controller: controller}))
	require.NoError(t, err)
	defer func() { _ = sender.Close() }()

	sender.updateEncoderBitrate(750_000)
	assert.Equal(t, 750_000, controller.last())

	sender.updateEncoderBitrate(10)
	assert.Equal(t, minBitrate, controller.last())
}

func TestRTCSender_UpdateEncoderBitrate_NoController(t *testing.T) {
	sender := newTestSender(t, newFakeSupplier())

	assert.NotPanics(t, func() { sender.updateEncoderBitrate(1_000_000) })
}

func TestRTCSender_Start_StopsOnContext(t *testing.T) {
	supplier := newFakeSupplier()
	sender := newTestSender(t, supplier)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	require.NoError(t, sender.Start(ctx))
	assert.Equal(t, int32(1), supplier.stops.Load())

	require.NoError(t, sender.Close())
	assert.Equal(t, int32(1), supplier.stops.Load())
}

func TestTrackSource_Read(t *testing.T) {
	supplier := newFakeSupplier()
	sink := &recordingSink{accept: true}
	dropping := &recordingSink{}
	source := newTrackSource("test", supplier, 50*time.Millisecond, logging.NewDefaultLoggerFactory().NewLogger("test"))
	source.sinks = []FrameSink{sink, dropping}

	assert.Equal(t, "test", source.ID())

	img, release, err := source.Read()
	require.NoError(t, err)
	release()
	assert.Equal(t, 64, img.Bounds().Dx())
	assert.Equal(t, 50*time.Millisecond, source.lastDuration())

	_, _, err = source.Read()
	require.NoError(t, err)
	// 6000 ticks at 90 kHz
	assert.Equal(t, 66666666*time.Nanosecond, source.lastDuration().Truncate(time.Nanosecond))

	assert.Len(t, sink.frames, 2)
	assert.Len(t, dropping.frames, 2)
	assert.Equal(t, uint64(2), source.frames.Load())
	assert.Equal(t, uint64(2), source.dropped.Load())
}

func TestTrackSource_NonIncreasingPTS(t *testing.T) {
	supplier := newFakeSupplier()
	supplier.step = 0
	source := newTrackSource("test", supplier, 20*time.Millisecond, logging.NewDefaultLoggerFactory().NewLogger("test"))

	for i := 0; i < 3; i++ {
		_, _, err := source.Read()
		require.NoError(t, err)
		assert.Equal(t, 20*time.Millisecond, source.lastDuration())
	}
}

func TestTrackSource_Close(t *testing.T) {
	supplier := newFakeSupplier()
	source := newTrackSource("test", supplier, time.Millisecond, logging.NewDefaultLoggerFactory().NewLogger("test"))

	require.NoError(t, source.Close())
	require.NoError(t, source.Close())
	assert.Equal(t, int32(1), supplier.stops.Load())

	calls := supplier.callCount()
	_, _, err := source.Read()
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, calls, supplier.callCount())
}
