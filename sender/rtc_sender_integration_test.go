//go:build !js
// +build !js

// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package sender

import (
	"context"
	"testing"
	"time"

	"github.com/pion/logging"
	"github.com/pion/transport/v3/vnet"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newVNetPair(t *testing.T) (*vnet.Net, *vnet.Net) {
	t.Helper()

	wan, err := vnet.NewRouter(&vnet.RouterConfig{
		CIDR:          "1.2.3.0/24",
		LoggerFactory: logging.NewDefaultLoggerFactory(),
	})
	require.NoError(t, err)

	senderNet, err := vnet.NewNet(&vnet.NetConfig{StaticIPs: []string{"1.2.3.4"}})
	require.NoError(t, err)
	require.NoError(t, wan.AddNet(senderNet))

	receiverNet, err := vnet.NewNet(&vnet.NetConfig{StaticIPs: []string{"1.2.3.5"}})
	require.NoError(t, err)
	require.NoError(t, wan.AddNet(receiverNet))

	require.NoError(t, wan.Start())
	t.Cleanup(func() { _ = wan.Stop() })

	return senderNet, receiverNet
}

func TestRTCSender_VNetLoopback(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping loopback test in short mode")
	}

	senderNet, receiverNet := newVNetPair(t)

	supplier := newFakeSupplier()
	sender := newTestSender(t, supplier, SetVNet(senderNet, []string{"1.2.3.4"}))
	require.NoError(t, sender.SetupPeerConnection())

	connected := make(chan struct{})
	sender.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		if state == webrtc.PeerConnectionStateConnected {
			close(connected)
		}
	})

	settingEngine := webrtc.SettingEngine{}
	settingEngine.SetNet(receiverNet)
	settingEngine.SetICETimeouts(time.Second, time.Second, 200*time.Millisecond)
	mediaEngine := &webrtc.MediaEngine{}
	require.NoError(t, mediaEngine.RegisterDefaultCodecs())

	receiver, err := webrtc.NewAPI(
		webrtc.WithSettingEngine(settingEngine),
		webrtc.WithMediaEngine(mediaEngine),
	).NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	defer func() { _ = receiver.Close() }()

	gotTrack := make(chan *webrtc.TrackRemote, 1)
	receiver.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		gotTrack <- track
	})

	offer, err := sender.CreateOffer()
	require.NoError(t, err)
	require.NoError(t, receiver.SetRemoteDescription(*offer))

	answer, err := receiver.CreateAnswer(nil)
	require.NoError(t, err)
	gatherComplete := webrtc.GatheringCompletePromise(receiver)
	require.NoError(t, receiver.SetLocalDescription(answer))
	<-gatherComplete
	require.NoError(t, sender.AcceptAnswer(receiver.LocalDescription()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sender.Start(ctx) }()

	select {
	case <-connected:
	case <-time.After(10 * time.Second):
		t.Fatal("sender never connected")
	}

	select {
	case track := <-gotTrack:
		assert.Equal(t, webrtc.MimeTypeVP8, track.Codec().MimeType)
	case <-time.After(10 * time.Second):
		t.Fatal("receiver never got the track")
	}

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), supplier.stops.Load())
}
