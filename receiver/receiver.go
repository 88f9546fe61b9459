// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

//go:build !js
// +build !js

// Package receiver is the viewer side of the bridge: it answers an offer,
// depacketizes the VP8 track, optionally records it and decodes pictures for
// a local preview.
package receiver

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/logging"
	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"github.com/pion/rtsp-bridge/clock"
	"github.com/pion/rtsp-bridge/frame"
	"github.com/pion/rtsp-bridge/signaling"
	"github.com/pion/transport/v3/vnet"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
	"github.com/pion/webrtc/v4/pkg/media/samplebuilder"
)

const (
	// maxLate is how many packets the sample builder waits for a missing one.
	maxLate          = 64
	frameLogInterval = 10
	readDeadline     = time.Second
	defaultWidth     = 640
	defaultHeight    = 480
)

// ErrNoPeerConnection is returned before SetupPeerConnection.
var ErrNoPeerConnection = errors.New("peer connection not set up")

// FrameSink receives decoded pictures. Push must not block.
type FrameSink interface {
	Push(f frame.Frame) bool
}

// Receiver manages a WebRTC connection for receiving media.
type Receiver struct {
	settingEngine *webrtc.SettingEngine
	mediaEngine   *webrtc.MediaEngine
	registry      *interceptor.Registry
	iceServers    []webrtc.ICEServer

	peerConnection *webrtc.PeerConnection

	log logging.LeveledLogger

	outputBasePath string
	sink           FrameSink

	mu           sync.Mutex
	trackCounter int
	closers      []io.Closer
	onState      []func(webrtc.PeerConnectionState)
}

// NewReceiver creates a new WebRTC receiver with the given options.
func NewReceiver(opts ...Option) (*Receiver, error) {
	receiver := &Receiver{
		settingEngine: &webrtc.SettingEngine{},
		mediaEngine:   &webrtc.MediaEngine{},
		registry:      &interceptor.Registry{},
		log:           logging.NewDefaultLoggerFactory().NewLogger("receiver"),
	}
	if err := receiver.mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}
	for _, opt := range opts {
		if err := opt(receiver); err != nil {
			return nil, err
		}
	}

	return receiver, nil
}

// SetupPeerConnection initializes the WebRTC peer connection.
func (r *Receiver) SetupPeerConnection() error {
	peerConnection, err := webrtc.NewAPI(
		webrtc.WithSettingEngine(*r.settingEngine),
		webrtc.WithInterceptorRegistry(r.registry),
		webrtc.WithMediaEngine(r.mediaEngine),
	).NewPeerConnection(webrtc.Configuration{ICEServers: r.iceServers})
	if err != nil {
		return err
	}

	peerConnection.OnICEConnectionStateChange(func(connectionState webrtc.ICEConnectionState) {
		r.log.Infof("Receiver Connection State has changed %s", connectionState.String())
	})

	peerConnection.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		r.log.Infof("Receiver Peer Connection State has changed: %s", state.String())

		r.mu.Lock()
		handlers := append([]func(webrtc.PeerConnectionState){}, r.onState...)
		r.mu.Unlock()
		for _, handler := range handlers {
			handler(state)
		}
	})

	peerConnection.OnICECandidate(func(i *webrtc.ICECandidate) {
		r.log.Debugf("Receiver candidate: %v", i)
	})

	peerConnection.OnTrack(r.onTrack)

	r.peerConnection = peerConnection

	return nil
}

// OnConnectionStateChange registers a handler for peer connection state changes.
func (r *Receiver) OnConnectionStateChange(handler func(webrtc.PeerConnectionState)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.onState = append(r.onState, handler)
}

// AcceptOffer processes a WebRTC offer from the remote peer and creates an answer.
func (r *Receiver) AcceptOffer(offer *webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if r.peerConnection == nil {
		return nil, ErrNoPeerConnection
	}
	if err := r.peerConnection.SetRemoteDescription(*offer); err != nil {
		return nil, err
	}

	answer, err := r.peerConnection.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}

	gatherComplete := webrtc.GatheringCompletePromise(r.peerConnection)
	if err = r.peerConnection.SetLocalDescription(answer); err != nil {
		return nil, err
	}
	<-gatherComplete

	return r.peerConnection.LocalDescription(), nil
}

// SDPHandler returns an HTTP handler for WebRTC signaling.
func (r *Receiver) SDPHandler() http.HandlerFunc {
	return signaling.Handler(r.AcceptOffer, func(err error) {
		r.log.Errorf("Signaling failed: %v", err)
	})
}

// SignalManual reads the offer from the terminal and prints the answer.
func (r *Receiver) SignalManual(manual *signaling.Manual) error {
	offer, err := manual.Read("Paste the SDP offer from the sender and press Enter:")
	if err != nil {
		return err
	}

	answer, err := r.AcceptOffer(offer)
	if err != nil {
		return err
	}

	return manual.Print(answer, "SDP answer (copy the whole line below):")
}

// Close stops decoding, flushes recordings and closes the peer connection.
func (r *Receiver) Close() error {
	r.mu.Lock()
	closers := r.closers
	r.closers = nil
	r.mu.Unlock()

	var errs []error
	for _, closer := range closers {
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if r.peerConnection != nil {
		errs = append(errs, r.peerConnection.Close())
	}

	return errors.Join(errs...)
}

func (r *Receiver) addCloser(c io.Closer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closers = append(r.closers, c)
}

func (r *Receiver) onTrack(trackRemote *webrtc.TrackRemote, rtpReceiver *webrtc.RTPReceiver) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r.mu.Lock()
	r.trackCounter++
	identifier := fmt.Sprintf("track-%d", r.trackCounter)
	r.mu.Unlock()

	if trackRemote.Kind() != webrtc.RTPCodecTypeVideo || trackRemote.Codec().MimeType != webrtc.MimeTypeVP8 {
		r.log.Infof("Track %s: ignoring %s track", identifier, trackRemote.Codec().MimeType)
		r.drain(trackRemote, rtpReceiver)

		return
	}
	r.log.Infof("Track %s: VP8 video track detected", identifier)

	t := &vp8Track{
		receiver:   r,
		identifier: identifier,
		builder:    samplebuilder.New(maxLate, &codecs.VP8Packet{}, trackRemote.Codec().ClockRate),
		clock:      clock.New(),
		stats:      &trackStats{startTime: time.Now()},
	}
	if r.outputBasePath != "" {
		t.ivf = r.createIVFWriter(identifier)
	}

	bytesReceived := make(chan int, 64)
	r.startStatsGoroutine(ctx, bytesReceived, t.stats)

	r.processPackets(ctx, trackRemote, rtpReceiver, t, bytesReceived)
}

// drain reads and discards packets so interceptors keep running.
func (r *Receiver) drain(trackRemote *webrtc.TrackRemote, rtpReceiver *webrtc.RTPReceiver) {
	for {
		if err := r.setReadDeadlines(rtpReceiver, trackRemote); err != nil {
			return
		}
		if _, _, err := trackRemote.ReadRTP(); errors.Is(err, io.EOF) {
			return
		}
	}
}

type trackStats struct {
	mu                 sync.Mutex
	rtpPacketsReceived int
	framesAssembled    int
	keyframesReceived  int
	startTime          time.Time
}

func (s *trackStats) snapshot() (int, int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.rtpPacketsReceived, s.framesAssembled, s.keyframesReceived
}

// createIVFWriter opens <outputBasePath>_<identifier>.ivf.
func (r *Receiver) createIVFWriter(identifier string) *ivfwriter.IVFWriter {
	filename := filepath.Clean(fmt.Sprintf("%s_%s.ivf", r.outputBasePath, identifier))

	file, err := os.Create(filename) // #nosec G304 - path comes from local configuration
	if err != nil {
		r.log.Errorf("Failed to create output file for %s: %v", identifier, err)

		return nil
	}

	writer, err := ivfwriter.NewWith(file, ivfwriter.WithCodec(webrtc.MimeTypeVP8))
	if err != nil {
		_ = file.Close()
		r.log.Errorf("Failed to create IVF writer for %s: %v", identifier, err)

		return nil
	}
	r.addCloser(writer)
	r.log.Infof("Recording %s to %s", identifier, filename)

	return writer
}

// startStatsGoroutine logs throughput once per second.
func (r *Receiver) startStatsGoroutine(ctx context.Context, bytesReceivedChan chan int, stats *trackStats) {
	go func() {
		bytesReceived := 0
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		last := time.Now()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				delta := now.Sub(last)
				bits := float64(bytesReceived) * 8.0
				rate := bits / delta.Seconds()
				mBitPerSecond := rate / float64(vnet.MBit)
				packets, frames, keyframes := stats.snapshot()
				r.log.Infof("throughput: %.2f Mb/s | RTP packets: %d | Frames: %d | Keyframes: %d",
					mBitPerSecond, packets, frames, keyframes)
				bytesReceived = 0
				last = now
			case n := <-bytesReceivedChan:
				bytesReceived += n
			}
		}
	}()
}

// setReadDeadlines sets read deadlines for RTP receiver and track.
func (r *Receiver) setReadDeadlines(rtpReceiver *webrtc.RTPReceiver, trackRemote *webrtc.TrackRemote) error {
	deadline := time.Now().Add(readDeadline)
	if err := rtpReceiver.SetReadDeadline(deadline); err != nil {
		return err
	}

	return trackRemote.SetReadDeadline(deadline)
}

// processPackets reads RTP until the track ends.
func (r *Receiver) processPackets(
	ctx context.Context, trackRemote *webrtc.TrackRemote, rtpReceiver *webrtc.RTPReceiver,
	t *vp8Track, bytesReceivedChan chan int,
) {
	defer t.close()

	for ctx.Err() == nil {
		if err := r.setReadDeadlines(rtpReceiver, trackRemote); err != nil {
			r.log.Infof("Track %s: failed to set read deadline: %v", t.identifier, err)

			return
		}

		packet, _, err := trackRemote.ReadRTP()
		if errors.Is(err, io.EOF) {
			r.log.Infof("Track %s: ReadRTP received EOF", t.identifier)

			return
		}
		if err != nil {
			r.log.Debugf("Track %s: ReadRTP returned error: %v", t.identifier, err)

			continue
		}

		select {
		case bytesReceivedChan <- packet.MarshalSize():
		default:
		}
		t.handlePacket(packet)
	}
}

// vp8Track holds the per-track pipeline: record, reassemble, decode.
type vp8Track struct {
	receiver   *Receiver
	identifier string
	builder    *samplebuilder.SampleBuilder
	ivf        *ivfwriter.IVFWriter
	processor  *VP8FrameProcessor
	clock      *clock.Clock
	stats      *trackStats
	decoded    int
}

func (t *vp8Track) handlePacket(packet *rtp.Packet) {
	r := t.receiver

	t.stats.mu.Lock()
	t.stats.rtpPacketsReceived++
	t.stats.mu.Unlock()

	if t.ivf != nil {
		if err := t.ivf.WriteRTP(packet); err != nil {
			r.log.Errorf("Track %s: failed to write RTP packet to IVF: %v", t.identifier, err)
		}
	}

	t.builder.Push(packet)
	for sample := t.builder.Pop(); sample != nil; sample = t.builder.Pop() {
		keyframe := isVP8Keyframe(sample.Data)

		t.stats.mu.Lock()
		t.stats.framesAssembled++
		if keyframe {
			t.stats.keyframesReceived++
		}
		t.stats.mu.Unlock()

		if keyframe {
			r.log.Debugf("Track %s: assembled VP8 keyframe, size=%d, elapsed=%v",
				t.identifier, len(sample.Data), time.Since(t.stats.startTime))
		}

		if r.sink != nil {
			t.decode(sample.Data, keyframe)
		}
	}
}

func (t *vp8Track) decode(data []byte, keyframe bool) {
	r := t.receiver

	if t.processor == nil {
		if !keyframe {
			return
		}
		width, height, ok := parseVP8KeyframeDimensions(data)
		if !ok {
			r.log.Warnf("Track %s: failed to parse dimensions from keyframe, assuming %dx%d",
				t.identifier, defaultWidth, defaultHeight)
			width, height = defaultWidth, defaultHeight
		}

		processor, err := NewVP8FrameProcessor(width, height, t.identifier, t.onPicture, r.log)
		if err != nil {
			r.log.Errorf("Track %s: failed to create VP8 decoder: %v", t.identifier, err)

			return
		}
		r.log.Infof("Track %s: decoding %dx%d", t.identifier, width, height)
		processor.SetFirstKeyFrame()
		t.processor = processor
	}

	t.processor.Decode(data)
}

// onPicture runs on the decoder goroutine.
func (t *vp8Track) onPicture(img image.Image) {
	r := t.receiver

	yuv, err := frame.ToI420(img)
	if err != nil {
		r.log.Warnf("Track %s: dropping undecodable picture: %v", t.identifier, err)

		return
	}
	f := t.clock.Stamp(yuv, time.Now(), false)

	t.decoded++
	if t.decoded%frameLogInterval == 0 {
		r.log.Infof("Track %s: received frame %d (%dx%d)", t.identifier, t.decoded, f.Width, f.Height)
	}
	mean, stddev := lumaStats(yuv)
	r.log.Debugf("Track %s: frame %d luma mean %.1f stddev %.1f", t.identifier, t.decoded, mean, stddev)

	r.sink.Push(f)
}

func (t *vp8Track) close() {
	if t.processor != nil {
		if err := t.processor.Close(); err != nil {
			t.receiver.log.Warnf("Track %s: %v", t.identifier, err)
		}
	}
}
