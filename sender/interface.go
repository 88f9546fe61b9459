// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package sender

import (
	"context"

	"github.com/pion/rtsp-bridge/frame"
	"github.com/pion/webrtc/v4"
)

// WebRTCSender is a common interface for different sender implementations.
type WebRTCSender interface {
	SetupPeerConnection() error
	CreateOffer() (*webrtc.SessionDescription, error)
	AcceptAnswer(answer *webrtc.SessionDescription) error
	Start(ctx context.Context) error
}

// FrameSupplier produces one frame per call and never fails. *supply.Track implements it.
type FrameSupplier interface {
	NextFrame() frame.Frame
	Stop()
}

// FrameSink receives a copy of every frame handed to the encoder. Push must not block.
type FrameSink interface {
	Push(f frame.Frame) bool
}
