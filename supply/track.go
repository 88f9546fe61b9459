// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package supply turns an unreliable capture source into an endless stream of
// timestamped frames. Every NextFrame call returns a frame within a bounded
// time: a real picture when the source delivers, a placeholder otherwise.
package supply

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"sync"
	"time"

	"github.com/bamiaux/rez"
	"github.com/pion/logging"
	"github.com/pion/rtsp-bridge/capture"
	"github.com/pion/rtsp-bridge/clock"
	"github.com/pion/rtsp-bridge/frame"
	"github.com/pion/rtsp-bridge/placeholder"
)

const (
	// DefaultTargetFPS is the placeholder rate while the source is down.
	DefaultTargetFPS = 15
	// DefaultDegradeThreshold is the number of consecutive failures tolerated
	// before the track reports Degraded.
	DefaultDegradeThreshold = 10
	// DefaultReadFailureDelay is the pause after a failed read.
	DefaultReadFailureDelay = 100 * time.Millisecond
	// DefaultWidth and DefaultHeight size the placeholder before any real frame.
	DefaultWidth  = 640
	DefaultHeight = 480

	frameLogInterval = 100
)

// Static errors for err113 compliance.
var (
	ErrInternal     = errors.New("frame supply internal error")
	ErrEmptyAddress = errors.New("source address is empty")
	ErrNilSource    = errors.New("source is nil")
)

// Source is the capture handle a Track drives. *capture.Handle implements it.
type Source interface {
	Open(ctx context.Context, address string) (*capture.Session, error)
	ReadFrame(session *capture.Session) (image.Image, error)
	Close(session *capture.Session) error
}

// Track is the resilient frame supply for one upstream source.
// NextFrame must not be called concurrently; Stop may be called from any goroutine.
type Track struct {
	source  Source
	address string
	log     logging.LeveledLogger

	interval         time.Duration
	threshold        uint64
	readFailureDelay time.Duration
	outWidth         int
	outHeight        int
	observers        []Observer
	now              func() time.Time
	sleep            func(time.Duration)

	ctx    context.Context //nolint:containedctx // cancels an in-flight open on Stop
	cancel context.CancelFunc

	mu       sync.Mutex
	state    State
	session  *capture.Session
	failures uint64
	clock    *clock.Clock
	synth    *placeholder.Synthesizer
	width    int
	height   int

	stopOnce sync.Once

	statsMu sync.RWMutex
	stats   Stats
}

// NewTrack creates a Track reading from address through source.
func NewTrack(source Source, address string, opts ...Option) (*Track, error) {
	if source == nil {
		return nil, ErrNilSource
	}
	if address == "" {
		return nil, ErrEmptyAddress
	}

	synth, err := placeholder.New()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &Track{
		source:           source,
		address:          address,
		log:              logging.NewDefaultLoggerFactory().NewLogger("supply"),
		interval:         time.Second / DefaultTargetFPS,
		threshold:        DefaultDegradeThreshold,
		readFailureDelay: DefaultReadFailureDelay,
		now:              time.Now,
		sleep:            time.Sleep,
		ctx:              ctx,
		cancel:           cancel,
		state:            Disconnected,
		clock:            clock.New(),
		synth:            synth,
		width:            DefaultWidth,
		height:           DefaultHeight,
	}
	for _, opt := range opts {
		if err := opt(t); err != nil {
			cancel()

			return nil, err
		}
	}
	t.stats.Width, t.stats.Height = t.width, t.height
	t.stats.LastPTS = -1

	return t, nil
}

// NextFrame returns the next frame. It never fails and never blocks longer
// than the open timeout plus one read timeout plus the pacing interval.
func (t *Track) NextFrame() frame.Frame {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopping() {
		return t.placeholderFrame()
	}

	if t.session == nil && !t.connect() {
		return t.placeholderFrame()
	}

	img, err := t.source.ReadFrame(t.session)
	if err != nil {
		t.closeSession()
		t.updateStats(func(s *Stats) { s.ReadFailures++ })
		t.recordFailure(err, true)
		t.sleep(t.readFailureDelay)

		return t.placeholderFrame()
	}

	f, err := t.realFrame(img)
	if err != nil {
		// the connection delivered; only this picture is unusable
		t.recordFailure(err, false)

		return t.placeholderFrame()
	}

	return f
}

func (t *Track) connect() bool {
	t.setState(Connecting)

	session, err := t.source.Open(t.ctx, t.address)
	if err != nil {
		t.updateStats(func(s *Stats) { s.OpenFailures++ })
		t.recordFailure(err, true)

		return false
	}

	if t.stopping() {
		// stopped while the open was in flight
		_ = t.source.Close(session)

		return false
	}

	t.session = session
	t.failures = 0
	if t.clock.Anchor(t.now()) {
		t.log.Debugf("Timestamp epoch set by first connection")
	}
	t.setState(Connected)
	t.updateStats(func(s *Stats) {
		s.Opens++
		s.ConsecutiveFailures = 0
		s.SessionID = session.ID()
	})
	t.log.Infof("Connected to %s (session %s)", capture.Redact(t.address), session.ID())

	return true
}

func (t *Track) closeSession() {
	if t.session == nil {
		return
	}
	if err := t.source.Close(t.session); err != nil {
		t.log.Warnf("Failed to close session %s: %v", t.session.ID(), err)
	}
	t.session = nil
	t.updateStats(func(s *Stats) { s.SessionID = "" })
}

func (t *Track) stopping() bool {
	return t.ctx.Err() != nil
}

// recordFailure counts a failed open or read. connectionLost is false when the
// session is still usable and only the picture was bad.
func (t *Track) recordFailure(err error, connectionLost bool) {
	if t.failures < math.MaxUint64 {
		t.failures++
	}
	failures := t.failures

	switch {
	case t.state == Stopped:
	case failures > t.threshold:
		t.setState(Degraded)
	case connectionLost:
		t.setState(Disconnected)
	}
	t.updateStats(func(s *Stats) { s.ConsecutiveFailures = failures })

	switch {
	case failures <= t.threshold:
		t.log.Warnf("Source %s failed (%d consecutive): %v", capture.Redact(t.address), failures, err)
	case failures == t.threshold+1 || (t.threshold > 0 && failures%t.threshold == 0):
		t.log.Errorf("Source %s still failing after %d consecutive attempts, serving placeholder: %v",
			capture.Redact(t.address), failures, err)
	default:
		t.log.Debugf("Source %s failed (%d consecutive): %v", capture.Redact(t.address), failures, err)
	}

	for _, o := range t.observers {
		o.OnFailure(err, failures)
	}
}

func (t *Track) realFrame(img image.Image) (frame.Frame, error) {
	yuv, err := frame.ToI420(img)
	if err != nil {
		return frame.Frame{}, &capture.ReadError{Kind: capture.ReadDecode, Err: err}
	}
	if t.outWidth > 0 {
		if yuv, err = t.scale(yuv); err != nil {
			return frame.Frame{}, &capture.ReadError{Kind: capture.ReadDecode, Err: err}
		}
	}

	t.failures = 0
	if t.state != Connected {
		t.setState(Connected)
	}

	width, height := yuv.Rect.Dx(), yuv.Rect.Dy()
	if width != t.width || height != t.height {
		t.log.Infof("Frame dimensions changed from %dx%d to %dx%d", t.width, t.height, width, height)
		t.width, t.height = width, height
	}

	f := t.clock.Stamp(yuv, t.now(), false)
	t.updateStats(func(s *Stats) {
		s.RealFrames++
		s.ConsecutiveFailures = 0
		s.Width, s.Height = width, height
		s.LastPTS = f.PTS
	})
	if count := t.Stats().RealFrames; count%frameLogInterval == 0 {
		t.log.Debugf("Served %d real frames, last pts %d", count, f.PTS)
	}
	t.notifyFrame(f)

	return f, nil
}

func (t *Track) scale(src *image.YCbCr) (*image.YCbCr, error) {
	if src.Rect.Dx() == t.outWidth && src.Rect.Dy() == t.outHeight {
		return src, nil
	}

	dst := image.NewYCbCr(image.Rect(0, 0, t.outWidth, t.outHeight), image.YCbCrSubsampleRatio420)
	if err := rez.Convert(dst, src, rez.NewBilinearFilter()); err != nil {
		return nil, fmt.Errorf("scale %dx%d to %dx%d: %w",
			src.Rect.Dx(), src.Rect.Dy(), t.outWidth, t.outHeight, err)
	}

	return dst, nil
}

// placeholderFrame paces and stamps the cached placeholder for the current size.
func (t *Track) placeholderFrame() frame.Frame {
	img, err := t.synth.Ensure(t.width, t.height)
	if err != nil {
		panic(fmt.Errorf("%w: %w", ErrInternal, err))
	}

	t.sleep(t.interval)

	f := t.clock.Stamp(img, t.now(), true)
	t.updateStats(func(s *Stats) {
		s.PlaceholderFrames++
		s.LastPTS = f.PTS
		s.Width, s.Height = f.Width, f.Height
	})
	t.notifyFrame(f)

	return f
}

func (t *Track) setState(next State) {
	prev := t.state
	if prev == next {
		return
	}
	t.state = next
	t.updateStats(func(s *Stats) { s.State = next })
	t.log.Debugf("State %s -> %s", prev, next)

	for _, o := range t.observers {
		o.OnStateChange(prev, next)
	}
}

func (t *Track) notifyFrame(f frame.Frame) {
	for _, o := range t.observers {
		o.OnFrame(f)
	}
}

func (t *Track) updateStats(update func(*Stats)) {
	t.statsMu.Lock()
	update(&t.stats)
	t.statsMu.Unlock()
}

// Stop releases the source. It waits for an in-flight NextFrame to finish and
// is safe to call more than once. Later NextFrame calls return placeholders
// without touching the source.
func (t *Track) Stop() {
	t.stopOnce.Do(func() {
		t.cancel()

		t.mu.Lock()
		defer t.mu.Unlock()

		t.closeSession()
		t.setState(Stopped)
		t.log.Infof("Stopped frame supply for %s", capture.Redact(t.address))
	})
}

// State returns the current state.
func (t *Track) State() State {
	t.statsMu.RLock()
	defer t.statsMu.RUnlock()

	return t.stats.State
}

// ConsecutiveFailures returns the current failure streak.
func (t *Track) ConsecutiveFailures() uint64 {
	t.statsMu.RLock()
	defer t.statsMu.RUnlock()

	return t.stats.ConsecutiveFailures
}

// Stats returns a snapshot of the track counters.
func (t *Track) Stats() Stats {
	t.statsMu.RLock()
	defer t.statsMu.RUnlock()

	return t.stats
}
