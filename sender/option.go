//go:build !js
// +build !js

// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package sender

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/pion/logging"
	"github.com/pion/mediadevices/pkg/codec"
	"github.com/pion/transport/v3/vnet"
	"github.com/pion/webrtc/v4"
)

// Static errors for err113 compliance.
var (
	ErrInvalidBitrate = errors.New("bitrate must be positive")
	ErrNilSink        = errors.New("frame sink is nil")
	ErrNilRegistry    = errors.New("registry is nil")
	ErrEmptyTrackID   = errors.New("track id is empty")
)

// Option configures an RTCSender.
type Option func(*RTCSender) error

// SetLoggerFactory sets the logger factory for the sender and its track source.
func SetLoggerFactory(loggerFactory logging.LoggerFactory) Option {
	return func(s *RTCSender) error {
		s.log = loggerFactory.NewLogger("sender")

		return nil
	}
}

// CCLogWriter sets the writer receiving "unix_ms, target_bps, measured_bps" lines.
func CCLogWriter(w io.Writer) Option {
	return func(s *RTCSender) error {
		s.ccLogWriter = w

		return nil
	}
}

// RTPLogWriter dumps every outgoing RTP packet and incoming RTCP packet.
func RTPLogWriter(rtpWriter, rtcpWriter io.Writer) Option {
	return func(s *RTCSender) error {
		s.rtpLogWriter = rtpWriter
		s.rtcpLogWriter = rtcpWriter

		return nil
	}
}

// SetVNet runs the peer connection on a virtual network.
func SetVNet(v *vnet.Net, publicIPs []string) Option {
	return func(s *RTCSender) error {
		s.settingEngine.SetNet(v)
		s.settingEngine.SetICETimeouts(time.Second, time.Second, 200*time.Millisecond)
		s.settingEngine.SetNAT1To1IPs(publicIPs, webrtc.ICECandidateTypeHost)

		return nil
	}
}

// GCC sets the initial bitrate of the encoder and the bandwidth estimator.
func GCC(initialBitrate int) Option {
	return func(s *RTCSender) error {
		if initialBitrate <= 0 {
			return fmt.Errorf("%w: %d", ErrInvalidBitrate, initialBitrate)
		}
		s.initialBitrate = initialBitrate

		return nil
	}
}

// DefaultInterceptors adds NACK, RTCP reports and the other webrtc defaults.
func DefaultInterceptors() Option {
	return func(s *RTCSender) error {
		s.defaultInterceptors = true

		return nil
	}
}

// ICEServers sets the STUN/TURN servers of the peer connection.
func ICEServers(urls ...string) Option {
	return func(s *RTCSender) error {
		if len(urls) == 0 {
			return nil
		}
		s.iceServers = append(s.iceServers, webrtc.ICEServer{URLs: urls})

		return nil
	}
}

// WithRegistry records the peer connection in reg while it is open.
func WithRegistry(reg *Registry) Option {
	return func(s *RTCSender) error {
		if reg == nil {
			return ErrNilRegistry
		}
		s.peers = reg

		return nil
	}
}

// WithFrameSink offers every frame handed to the encoder to sink.
func WithFrameSink(sink FrameSink) Option {
	return func(s *RTCSender) error {
		if sink == nil {
			return ErrNilSink
		}
		s.sinks = append(s.sinks, sink)

		return nil
	}
}

// EncoderBuilder replaces the default VP8 encoder.
func EncoderBuilder(builder codec.VideoEncoderBuilder) Option {
	return func(s *RTCSender) error {
		s.encoderBuilder = builder

		return nil
	}
}

// TrackID sets the id and stream id of the outgoing track.
func TrackID(id string) Option {
	return func(s *RTCSender) error {
		if id == "" {
			return ErrEmptyTrackID
		}
		s.trackID = id

		return nil
	}
}

// FrameDuration sets the sample duration used when consecutive PTS values give none.
func FrameDuration(d time.Duration) Option {
	return func(s *RTCSender) error {
		if d > 0 {
			s.fallbackDuration = d
		}

		return nil
	}
}
