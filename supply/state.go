// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package supply

import "github.com/pion/rtsp-bridge/frame"

// State is the upstream connection state as seen by the frame supply.
type State int

// Supply states. Stopped is terminal.
const (
	Disconnected State = iota
	Connecting
	Connected
	Degraded
	Stopped
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Degraded:
		return "degraded"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Observer is notified synchronously from NextFrame. Implementations must not block.
type Observer interface {
	OnFrame(f frame.Frame)
	OnStateChange(from, to State)
	OnFailure(err error, consecutive uint64)
}

// Stats is a point-in-time snapshot of a Track.
type Stats struct {
	State               State
	ConsecutiveFailures uint64
	RealFrames          uint64
	PlaceholderFrames   uint64
	Opens               uint64
	OpenFailures        uint64
	ReadFailures        uint64
	Width               int
	Height              int
	LastPTS             int64
	SessionID           string
}
