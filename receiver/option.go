// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

//go:build !js
// +build !js

package receiver

import (
	"errors"
	"io"
	"time"

	"github.com/pion/interceptor/pkg/packetdump"
	"github.com/pion/logging"
	bridgelog "github.com/pion/rtsp-bridge/logging"
	"github.com/pion/transport/v3/vnet"
	"github.com/pion/webrtc/v4"
)

// ErrNilSink is returned when a nil frame sink is configured.
var ErrNilSink = errors.New("frame sink is nil")

// Option configures a Receiver.
type Option func(*Receiver) error

// PacketLogWriter dumps every incoming RTP packet and outgoing RTCP packet.
func PacketLogWriter(rtpWriter, rtcpWriter io.Writer) Option {
	return func(r *Receiver) error {
		if rtpWriter == nil {
			rtpWriter = io.Discard
		}
		if rtcpWriter == nil {
			rtcpWriter = io.Discard
		}

		formatter := &bridgelog.RTPFormatter{}
		rtpLogger, err := packetdump.NewReceiverInterceptor(
			packetdump.RTPFormatter(formatter.RTPFormat),
			packetdump.RTPWriter(rtpWriter),
			packetdump.RTCPFormatter(bridgelog.RTCPFormat),
			packetdump.RTCPWriter(rtcpWriter),
		)
		if err != nil {
			return err
		}
		r.registry.Add(rtpLogger)

		return nil
	}
}

// DefaultInterceptors adds NACK, RTCP reports and TWCC feedback.
func DefaultInterceptors() Option {
	return func(r *Receiver) error {
		return webrtc.RegisterDefaultInterceptors(r.mediaEngine, r.registry)
	}
}

// SetVNet runs the peer connection on a virtual network.
func SetVNet(v *vnet.Net, publicIPs []string) Option {
	return func(r *Receiver) error {
		r.settingEngine.SetNet(v)
		r.settingEngine.SetICETimeouts(time.Second, time.Second, 200*time.Millisecond)
		r.settingEngine.SetNAT1To1IPs(publicIPs, webrtc.ICECandidateTypeHost)

		return nil
	}
}

// SetLoggerFactory sets the logger factory.
func SetLoggerFactory(loggerFactory logging.LoggerFactory) Option {
	return func(r *Receiver) error {
		r.log = loggerFactory.NewLogger("receiver")

		return nil
	}
}

// SaveVideo writes each received VP8 track to <path>_track-N.ivf.
func SaveVideo(path string) Option {
	return func(r *Receiver) error {
		r.outputBasePath = path

		return nil
	}
}

// WithFrameSink decodes received video and offers every picture to sink.
func WithFrameSink(sink FrameSink) Option {
	return func(r *Receiver) error {
		if sink == nil {
			return ErrNilSink
		}
		r.sink = sink

		return nil
	}
}

// ICEServers sets the STUN/TURN servers of the peer connection.
func ICEServers(urls ...string) Option {
	return func(r *Receiver) error {
		if len(urls) > 0 {
			r.iceServers = append(r.iceServers, webrtc.ICEServer{URLs: urls})
		}

		return nil
	}
}
