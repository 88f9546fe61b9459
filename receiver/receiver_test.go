// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

//go:build !js
// +build !js

package receiver

import (
	"image"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pion/logging"
	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"github.com/pion/rtsp-bridge/clock"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/samplebuilder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReceiver(t *testing.T) {
	receiver, err := NewReceiver(SaveVideo("out"), DefaultInterceptors())
	require.NoError(t, err)
	assert.Equal(t, "out", receiver.outputBasePath)
	assert.Nil(t, receiver.sink)
}

func TestReceiver_SetupPeerConnection(t *testing.T) {
	receiver, err := NewReceiver()
	require.NoError(t, err)

	require.NoError(t, receiver.SetupPeerConnection())
	assert.NotNil(t, receiver.peerConnection)
	assert.NoError(t, receiver.Close())
}

func TestReceiver_AcceptOffer_NoPeerConnection(t *testing.T) {
	receiver, err := NewReceiver()
	require.NoError(t, err)

	_, err = receiver.AcceptOffer(&webrtc.SessionDescription{Type: webrtc.SDPTypeOffer})
	assert.ErrorIs(t, err, ErrNoPeerConnection)
	assert.NoError(t, receiver.Close())
}

func TestReceiver_AcceptOffer(t *testing.T) {
	receiver, err := NewReceiver()
	require.NoError(t, err)
	require.NoError(t, receiver.SetupPeerConnection())
	defer func() { assert.NoError(t, receiver.Close()) }()

	offerer, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	defer func() { assert.NoError(t, offerer.Close()) }()

	_, err = offerer.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo,
		webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionSendonly})
	require.NoError(t, err)

	offer, err := offerer.CreateOffer(nil)
	require.NoError(t, err)
	gatherComplete := webrtc.GatheringCompletePromise(offerer)
	require.NoError(t, offerer.SetLocalDescription(offer))
	<-gatherComplete

	answer, err := receiver.AcceptOffer(offerer.LocalDescription())
	require.NoError(t, err)
	assert.Equal(t, webrtc.SDPTypeAnswer, answer.Type)
	assert.Contains(t, answer.SDP, "VP8")
}

func TestReceiver_SDPHandler_RejectsGet(t *testing.T) {
	receiver, err := NewReceiver()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	receiver.SDPHandler()(rec, httptest.NewRequest(http.MethodGet, "/sdp", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestReceiver_OnConnectionStateChange(t *testing.T) {
	receiver, err := NewReceiver()
	require.NoError(t, err)

	var got []webrtc.PeerConnectionState
	receiver.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		got = append(got, state)
	})
	assert.Len(t, receiver.onState, 1)
	receiver.onState[0](webrtc.PeerConnectionStateConnected)
	assert.Equal(t, []webrtc.PeerConnectionState{webrtc.PeerConnectionStateConnected}, got)
}

func TestReceiver_CreateIVFWriter(t *testing.T) {
	base := filepath.Join(t.TempDir(), "recording")
	receiver, err := NewReceiver(SaveVideo(base))
	require.NoError(t, err)

	writer := receiver.createIVFWriter("track-1")
	require.NotNil(t, writer)
	require.NoError(t, receiver.Close())

	info, err := os.Stat(base + "_track-1.ivf")
	require.NoError(t, err)
	// IVF file header
	assert.GreaterOrEqual(t, info.Size(), int64(32))
}

func TestReceiver_CreateIVFWriter_BadPath(t *testing.T) {
	receiver, err := NewReceiver(SaveVideo(filepath.Join(t.TempDir(), "missing", "dir", "rec")))
	require.NoError(t, err)

	assert.Nil(t, receiver.createIVFWriter("track-1"))
}

func vp8Packet(seq uint16, ts uint32, marker bool, payload ...byte) *rtp.Packet {
	return &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    96,
			SequenceNumber: seq,
			Timestamp:      ts,
			Marker:         marker,
			SSRC:           1234,
		},
		// S bit set, partition 0
		Payload: append([]byte{0x10}, payload...),
	}
}

func TestVP8Track_HandlePacket_AssemblesFrames(t *testing.T) {
	receiver, err := NewReceiver(SetLoggerFactory(logging.NewDefaultLoggerFactory()))
	require.NoError(t, err)

	track := &vp8Track{
		receiver:   receiver,
		identifier: "track-1",
		builder:    samplebuilder.New(maxLate, &codecs.VP8Packet{}, 90000),
		clock:      clock.New(),
		stats:      &trackStats{startTime: time.Now()},
	}

	// keyframe, interframe, then the start of a third frame to flush the second
	track.handlePacket(vp8Packet(1, 3000, true, 0x00, 0x01, 0x02))
	track.handlePacket(vp8Packet(2, 6000, true, 0x01, 0x01, 0x02))
	track.handlePacket(vp8Packet(3, 9000, true, 0x01, 0x01, 0x02))

	packets, frames, keyframes := track.stats.snapshot()
	assert.Equal(t, 3, packets)
	assert.GreaterOrEqual(t, frames, 1)
	assert.LessOrEqual(t, keyframes, 1)
	// no sink configured: nothing is decoded
	assert.Nil(t, track.processor)
}

func TestIsVP8Keyframe(t *testing.T) {
	assert.True(t, isVP8Keyframe([]byte{0x00}))
	assert.False(t, isVP8Keyframe([]byte{0x01}))
	assert.False(t, isVP8Keyframe(nil))
}

func TestParseVP8KeyframeDimensions(t *testing.T) {
	// frame tag, start code, 640 (0x280) and 360 (0x168) little endian
	header := []byte{0x00, 0x00, 0x00, 0x9d, 0x01, 0x2a, 0x80, 0x02, 0x68, 0x01}

	width, height, ok := parseVP8KeyframeDimensions(header)
	require.True(t, ok)
	assert.Equal(t, 640, width)
	assert.Equal(t, 360, height)

	badStartCode := append([]byte{}, header...)
	badStartCode[4] = 0x00
	_, _, ok = parseVP8KeyframeDimensions(badStartCode)
	assert.False(t, ok)

	_, _, ok = parseVP8KeyframeDimensions(header[:6])
	assert.False(t, ok)

	interframe := append([]byte{}, header...)
	interframe[0] = 0x01
	_, _, ok = parseVP8KeyframeDimensions(interframe)
	assert.False(t, ok)
}

func TestLumaStats(t *testing.T) {
	flat := image.NewYCbCr(image.Rect(0, 0, 4, 4), image.YCbCrSubsampleRatio420)
	for i := range flat.Y {
		flat.Y[i] = 16
	}
	mean, stddev := lumaStats(flat)
	assert.InDelta(t, 16.0, mean, 1e-9)
	assert.InDelta(t, 0.0, stddev, 1e-9)

	split := image.NewYCbCr(image.Rect(0, 0, 2, 1), image.YCbCrSubsampleRatio420)
	split.Y[0], split.Y[1] = 0, 200
	mean, stddev = lumaStats(split)
	assert.InDelta(t, 100.0, mean, 1e-9)
	assert.InDelta(t, 100.0, stddev, 1e-9)

	mean, stddev = lumaStats(nil)
	assert.Zero(t, mean)
	assert.Zero(t, stddev)
}
