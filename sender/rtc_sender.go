//go:build !js
// +build !js

// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package sender publishes a frame supply as a VP8 WebRTC track.
package sender

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/cc"
	"github.com/pion/interceptor/pkg/gcc"
	"github.com/pion/interceptor/pkg/packetdump"
	"github.com/pion/logging"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	bridgelog "github.com/pion/rtsp-bridge/logging"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"golang.org/x/sync/errgroup"
)

const (
	transportCCRtcpfb = "transport-cc"

	// DefaultBitrate is the initial encoder and estimator bitrate.
	DefaultBitrate = 1_000_000
	// DefaultTrackID names the outgoing track and its stream.
	DefaultTrackID = "rtsp-bridge"

	bitrateInterval  = 100 * time.Millisecond
	bitrateLogPeriod = time.Second
	minBitrate       = 100_000
)

// Static errors for err113 compliance.
var (
	ErrNilSupplier            = errors.New("frame supplier is nil")
	ErrNoPeerConnection       = errors.New("peer connection not set up")
	ErrFailedToCastVideoTrack = errors.New("failed to cast media track to VideoTrack")
)

// RTCSender encodes frames pulled from a FrameSupplier and sends them over one
// WebRTC peer connection.
type RTCSender struct {
	// WebRTC components
	peerConnection *webrtc.PeerConnection
	settingEngine  *webrtc.SettingEngine
	mediaEngine    *webrtc.MediaEngine
	registry       *interceptor.Registry
	iceServers     []webrtc.ICEServer

	defaultInterceptors bool
	initialBitrate      int
	encoderBuilder      codec.VideoEncoderBuilder
	trackID             string
	fallbackDuration    time.Duration

	// Video track
	supplier       FrameSupplier
	source         *trackSource
	sinks          []FrameSink
	videoTrack     *webrtc.TrackLocalStaticSample
	mediaTrack     *mediadevices.VideoTrack
	encodedReader  mediadevices.EncodedReadCloser
	bitrateTracker *codec.BitrateTracker

	// Bandwidth estimation
	estimatorChan chan cc.BandwidthEstimator

	peers  *Registry
	peerID string

	stateMu       sync.Mutex
	onStateChange []func(webrtc.PeerConnectionState)

	closeOnce sync.Once

	// Logging
	ccLogWriter   io.Writer
	rtpLogWriter  io.Writer
	rtcpLogWriter io.Writer
	log           logging.LeveledLogger
}

// NewRTCSender creates a sender for supplier with GCC bandwidth estimation.
func NewRTCSender(supplier FrameSupplier, opts ...Option) (*RTCSender, error) {
	if supplier == nil {
		return nil, ErrNilSupplier
	}

	sender := &RTCSender{
		settingEngine:    &webrtc.SettingEngine{},
		mediaEngine:      &webrtc.MediaEngine{},
		registry:         &interceptor.Registry{},
		initialBitrate:   DefaultBitrate,
		trackID:          DefaultTrackID,
		fallbackDuration: time.Second / 15,
		supplier:         supplier,
		estimatorChan:    make(chan cc.BandwidthEstimator, 1),
		ccLogWriter:      io.Discard,
		log:              logging.NewDefaultLoggerFactory().NewLogger("sender"),
	}

	if err := sender.mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}

	for _, opt := range opts {
		if err := opt(sender); err != nil {
			return nil, err
		}
	}

	if err := sender.setupGCC(sender.initialBitrate); err != nil {
		return nil, err
	}
	if err := sender.setupInterceptors(); err != nil {
		return nil, err
	}
	if err := sender.setupTrack(); err != nil {
		return nil, err
	}

	return sender, nil
}

// setupGCC sets up Google Congestion Control with the specified initial bitrate.
func (s *RTCSender) setupGCC(initialBitrate int) error {
	controller, err := cc.NewInterceptor(func() (cc.BandwidthEstimator, error) {
		return gcc.NewSendSideBWE(gcc.SendSideBWEInitialBitrate(initialBitrate))
	})
	if err != nil {
		return err
	}

	controller.OnNewPeerConnection(func(_ string, estimator cc.BandwidthEstimator) {
		select {
		case s.estimatorChan <- estimator:
		default:
			s.log.Warnf("Dropping bandwidth estimator for an additional peer connection")
		}
	})

	s.registry.Add(controller)

	if err = webrtc.ConfigureTWCCHeaderExtensionSender(s.mediaEngine, s.registry); err != nil {
		return err
	}
	s.mediaEngine.RegisterFeedback(webrtc.RTCPFeedback{Type: transportCCRtcpfb}, webrtc.RTPCodecTypeVideo)

	return nil
}

func (s *RTCSender) setupInterceptors() error {
	if s.defaultInterceptors {
		if err := webrtc.RegisterDefaultInterceptors(s.mediaEngine, s.registry); err != nil {
			return err
		}
	}

	if s.rtpLogWriter == nil && s.rtcpLogWriter == nil {
		return nil
	}

	rtpWriter, rtcpWriter := s.rtpLogWriter, s.rtcpLogWriter
	if rtpWriter == nil {
		rtpWriter = io.Discard
	}
	if rtcpWriter == nil {
		rtcpWriter = io.Discard
	}

	formatter := &bridgelog.RTPFormatter{}
	rtpLogger, err := packetdump.NewSenderInterceptor(
		packetdump.RTPFormatter(formatter.RTPFormat),
		packetdump.RTPWriter(rtpWriter),
		packetdump.RTCPFormatter(bridgelog.RTCPFormat),
		packetdump.RTCPWriter(rtcpWriter),
	)
	if err != nil {
		return err
	}
	s.registry.Add(rtpLogger)

	return nil
}

// getOrCreateEncoderBuilder returns the configured encoder builder or a VP8 encoder at bitrate.
func getOrCreateEncoderBuilder(builder codec.VideoEncoderBuilder, bitrate int) (codec.VideoEncoderBuilder, error) {
	if builder != nil {
		return builder, nil
	}

	params, err := vpx.NewVP8Params()
	if err != nil {
		return nil, fmt.Errorf("failed to create default VP8 encoder: %w", err)
	}
	params.BitRate = bitrate

	return &params, nil
}

// setupTrack wires the supplier through the encoder into a sample track.
func (s *RTCSender) setupTrack() error {
	encoderBuilder, err := getOrCreateEncoderBuilder(s.encoderBuilder, s.initialBitrate)
	if err != nil {
		return err
	}

	codecSelector := mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(encoderBuilder),
	)

	s.source = newTrackSource(s.trackID, s.supplier, s.fallbackDuration, s.log)
	s.source.sinks = s.sinks

	mediaTrack := mediadevices.NewVideoTrack(s.source, codecSelector)

	mimeType := encoderBuilder.RTPCodec().MimeType
	encodedReader, err := mediaTrack.NewEncodedReader(mimeType)
	if err != nil {
		_ = mediaTrack.Close()

		return err
	}

	videoTrack, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: mimeType},
		s.trackID,
		s.trackID,
	)
	if err != nil {
		_ = encodedReader.Close()
		_ = mediaTrack.Close()

		return err
	}

	videoMediaTrack, ok := mediaTrack.(*mediadevices.VideoTrack)
	if !ok {
		_ = encodedReader.Close()
		_ = mediaTrack.Close()

		return ErrFailedToCastVideoTrack
	}

	s.videoTrack = videoTrack
	s.mediaTrack = videoMediaTrack
	s.encodedReader = encodedReader
	s.bitrateTracker = codec.NewBitrateTracker(300 * time.Millisecond)

	return nil
}

// SetupPeerConnection initializes the WebRTC peer connection.
func (s *RTCSender) SetupPeerConnection() error {
	pc, err := webrtc.NewAPI(
		webrtc.WithSettingEngine(*s.settingEngine),
		webrtc.WithInterceptorRegistry(s.registry),
		webrtc.WithMediaEngine(s.mediaEngine),
	).NewPeerConnection(webrtc.Configuration{ICEServers: s.iceServers})
	if err != nil {
		return err
	}
	s.peerConnection = pc

	rtpSender, err := pc.AddTrack(s.videoTrack)
	if err != nil {
		return err
	}

	// Handle incoming RTCP
	go func() {
		rtcpBuf := make([]byte, 1500)
		for {
			if _, _, rtcpErr := rtpSender.Read(rtcpBuf); rtcpErr != nil {
				return
			}
		}
	}()

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		s.log.Infof("ICE Connection State: %s", state.String())
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		s.log.Infof("Peer Connection State: %s", state.String())

		s.stateMu.Lock()
		handlers := append([]func(webrtc.PeerConnectionState){}, s.onStateChange...)
		s.stateMu.Unlock()

		for _, handler := range handlers {
			handler(state)
		}
	})

	pc.OnICECandidate(func(i *webrtc.ICECandidate) {
		s.log.Debugf("Sender candidate: %v", i)
	})

	if s.peers != nil {
		s.peerID = s.peers.Add(pc)
	}

	return nil
}

// OnConnectionStateChange registers a handler for peer connection state changes.
func (s *RTCSender) OnConnectionStateChange(handler func(webrtc.PeerConnectionState)) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	s.onStateChange = append(s.onStateChange, handler)
}

// CreateOffer creates a WebRTC offer with all ICE candidates gathered.
func (s *RTCSender) CreateOffer() (*webrtc.SessionDescription, error) {
	if s.peerConnection == nil {
		return nil, ErrNoPeerConnection
	}

	offer, err := s.peerConnection.CreateOffer(nil)
	if err != nil {
		return nil, err
	}

	gatherComplete := webrtc.GatheringCompletePromise(s.peerConnection)
	if err = s.peerConnection.SetLocalDescription(offer); err != nil {
		return nil, err
	}
	<-gatherComplete

	return s.peerConnection.LocalDescription(), nil
}

// AcceptAnswer processes the WebRTC answer.
func (s *RTCSender) AcceptAnswer(answer *webrtc.SessionDescription) error {
	if s.peerConnection == nil {
		return ErrNoPeerConnection
	}

	return s.peerConnection.SetRemoteDescription(*answer)
}

// Start runs the encode loop and the bitrate control loop until ctx is done
// or the track source ends.
func (s *RTCSender) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return s.bitrateLoop(ctx)
	})

	group.Go(func() error {
		defer cancel()

		return s.encodeLoop(ctx)
	})

	group.Go(func() error {
		<-ctx.Done()
		// unblocks a pending encoder read
		s.closeMedia()

		return nil
	})

	return group.Wait()
}

func (s *RTCSender) bitrateLoop(ctx context.Context) error {
	var estimator cc.BandwidthEstimator
	select {
	case estimator = <-s.estimatorChan:
	case <-ctx.Done():
		return nil
	}

	ticker := time.NewTicker(bitrateInterval)
	defer ticker.Stop()

	lastLog := time.Now()
	lastBitrate := s.initialBitrate

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			targetBitrate := estimator.GetTargetBitrate()
			measured := s.bitrateTracker.GetBitrate()

			if targetBitrate != lastBitrate {
				s.updateEncoderBitrate(targetBitrate)
				lastBitrate = targetBitrate
			}
			if now.Sub(lastLog) >= bitrateLogPeriod {
				s.log.Infof("Target bitrate %d bps, measured %.0f bps", targetBitrate, measured)
				lastLog = now
			}
			_, _ = fmt.Fprintf(s.ccLogWriter, "%v, %v, %.0f\n", now.UnixMilli(), targetBitrate, measured)
		}
	}
}

// updateEncoderBitrate pushes the estimate to the encoder when it supports it.
func (s *RTCSender) updateEncoderBitrate(targetBitrate int) {
	if targetBitrate < minBitrate {
		targetBitrate = minBitrate
	}

	controller, ok := s.encodedReader.Controller().(codec.BitRateController)
	if !ok || controller == nil {
		s.log.Debugf("Encoder has no bitrate controller, ignoring target %d bps", targetBitrate)

		return
	}
	if err := controller.SetBitRate(targetBitrate); err != nil {
		s.log.Warnf("Failed to set encoder bitrate to %d bps: %v", targetBitrate, err)
	}
}

// encodeLoop pulls encoded frames and writes them as samples. Each read drives
// exactly one NextFrame on the supplier.
func (s *RTCSender) encodeLoop(ctx context.Context) error {
	for ctx.Err() == nil {
		encoded, release, err := s.encodedReader.Read()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}

			return fmt.Errorf("read encoded frame: %w", err)
		}

		s.bitrateTracker.AddFrame(len(encoded.Data), time.Now())

		err = s.videoTrack.WriteSample(media.Sample{
			Data:     encoded.Data,
			Duration: s.source.lastDuration(),
		})
		release()

		if err != nil && !errors.Is(err, io.ErrClosedPipe) {
			s.log.Errorf("Failed to write sample: %v", err)
		}
	}

	return nil
}

func (s *RTCSender) closeMedia() {
	s.closeOnce.Do(func() {
		_ = s.source.Close()
		_ = s.encodedReader.Close()
		_ = s.mediaTrack.Close()
	})
}

// Close stops the supplier and releases all resources.
func (s *RTCSender) Close() error {
	s.closeMedia()

	if s.peerConnection == nil {
		return nil
	}
	if s.peers != nil {
		s.peers.Remove(s.peerID)
	}

	return s.peerConnection.Close()
}

// GetPeerConnection returns the WebRTC peer connection.
func (s *RTCSender) GetPeerConnection() *webrtc.PeerConnection {
	return s.peerConnection
}

// GetWebRTCTrackLocal returns the outgoing WebRTC track.
func (s *RTCSender) GetWebRTCTrackLocal() *webrtc.TrackLocalStaticSample {
	return s.videoTrack
}

// FramesSent returns how many frames the encoder pulled from the supplier.
func (s *RTCSender) FramesSent() uint64 {
	return s.source.frames.Load()
}
