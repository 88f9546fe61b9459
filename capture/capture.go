// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package capture manages capture sessions against an upstream video source.
// It bounds every blocking device call and reports failures as OpenError or
// ReadError. It never retries; recovery belongs to the caller.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/logging"
)

const (
	// DefaultOpenTimeout bounds a single open attempt.
	DefaultOpenTimeout = 4 * time.Second
	// DefaultReadTimeout bounds a single frame read.
	DefaultReadTimeout = 800 * time.Millisecond
)

// ErrInvalidTimeout is returned for non-positive timeouts.
var ErrInvalidTimeout = errors.New("timeout must be positive")

// Device opens streams from an address. Implementations do not need to be
// safe for concurrent use of a single Stream.
type Device interface {
	Open(ctx context.Context, address string) (Stream, error)
}

// Stream is a single open connection to a source.
type Stream interface {
	// Read blocks until the next decoded picture is available.
	Read() (image.Image, error)
	Close() error
}

// DeviceFunc adapts a function to the Device interface.
type DeviceFunc func(ctx context.Context, address string) (Stream, error)

// Open calls f.
func (f DeviceFunc) Open(ctx context.Context, address string) (Stream, error) {
	return f(ctx, address)
}

// Session is one connection attempt that succeeded. It is never reopened.
type Session struct {
	id       string
	address  string
	stream   Stream
	openedAt time.Time

	mu      sync.Mutex
	closed  bool
	reading chan struct{} // non-nil while a read is in flight
	closeFn sync.Once
	closeCh chan struct{}
}

// ID returns a unique identifier for log correlation.
func (s *Session) ID() string {
	return s.id
}

// Address returns the address the session was opened with.
func (s *Session) Address() string {
	return s.address
}

// OpenedAt returns when the session was established.
func (s *Session) OpenedAt() time.Time {
	return s.openedAt
}

// IsOpen reports whether the session can still be read from.
func (s *Session) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return !s.closed
}

// Done is closed once the underlying stream has been released.
func (s *Session) Done() <-chan struct{} {
	return s.closeCh
}

// HandleOption configures a Handle.
type HandleOption func(*Handle) error

// WithOpenTimeout bounds how long Open may block.
func WithOpenTimeout(d time.Duration) HandleOption {
	return func(h *Handle) error {
		if d <= 0 {
			return fmt.Errorf("%w: open %v", ErrInvalidTimeout, d)
		}
		h.openTimeout = d

		return nil
	}
}

// WithReadTimeout bounds how long ReadFrame may block.
func WithReadTimeout(d time.Duration) HandleOption {
	return func(h *Handle) error {
		if d <= 0 {
			return fmt.Errorf("%w: read %v", ErrInvalidTimeout, d)
		}
		h.readTimeout = d

		return nil
	}
}

// SetLoggerFactory sets the logger factory for the handle.
func SetLoggerFactory(loggerFactory logging.LoggerFactory) HandleOption {
	return func(h *Handle) error {
		h.log = loggerFactory.NewLogger("capture")

		return nil
	}
}

// Handle opens, reads and closes sessions on a Device with bounded blocking.
type Handle struct {
	device      Device
	openTimeout time.Duration
	readTimeout time.Duration
	log         logging.LeveledLogger
}

// NewHandle creates a Handle for device.
func NewHandle(device Device, opts ...HandleOption) (*Handle, error) {
	if device == nil {
		return nil, ErrNoDevice
	}

	h := &Handle{
		device:      device,
		openTimeout: DefaultOpenTimeout,
		readTimeout: DefaultReadTimeout,
		log:         logging.NewDefaultLoggerFactory().NewLogger("capture"),
	}
	for _, opt := range opts {
		if err := opt(h); err != nil {
			return nil, err
		}
	}

	return h, nil
}

type openResult struct {
	stream Stream
	err    error
}

// Open connects to address. It returns within the open timeout; a device call
// that outlives it is abandoned and its stream closed when it finally returns.
func (h *Handle) Open(ctx context.Context, address string) (*Session, error) {
	ctx, cancel := context.WithTimeout(ctx, h.openTimeout)
	defer cancel()

	results := make(chan openResult, 1)
	go func() {
		stream, err := h.device.Open(ctx, address)
		results <- openResult{stream: stream, err: err}
	}()

	select {
	case res := <-results:
		if res.err != nil {
			return nil, &OpenError{Kind: ClassifyOpenError(res.err), Address: address, Err: res.err}
		}
		if res.stream == nil {
			return nil, &OpenError{Kind: OpenUnreachable, Address: address}
		}

		session := &Session{
			id:       uuid.NewString(),
			address:  address,
			stream:   res.stream,
			openedAt: time.Now(),
			closeCh:  make(chan struct{}),
		}
		h.log.Debugf("Opened session %s to %s", session.id, Redact(address))

		return session, nil
	case <-ctx.Done():
		go func() {
			if res := <-results; res.stream != nil {
				_ = res.stream.Close()
			}
		}()

		return nil, &OpenError{Kind: OpenTimeout, Address: address, Err: ctx.Err()}
	}
}

type readResult struct {
	img image.Image
	err error
}

// ReadFrame reads the next picture from session within the read timeout.
func (h *Handle) ReadFrame(session *Session) (image.Image, error) {
	if session == nil {
		return nil, &ReadError{Kind: ReadClosed}
	}

	session.mu.Lock()
	if session.closed {
		session.mu.Unlock()

		return nil, &ReadError{Kind: ReadClosed}
	}
	if session.reading != nil {
		// a previous read timed out and is still blocked in the device
		session.mu.Unlock()

		return nil, &ReadError{Kind: ReadTimeout, Err: errReadInFlight}
	}
	done := make(chan struct{})
	session.reading = done
	session.mu.Unlock()

	results := make(chan readResult, 1)
	go func() {
		img, err := session.stream.Read()
		results <- readResult{img: img, err: err}

		session.mu.Lock()
		session.reading = nil
		session.mu.Unlock()
		close(done)
	}()

	timer := time.NewTimer(h.readTimeout)
	defer timer.Stop()

	select {
	case res := <-results:
		if res.err != nil {
			return nil, classifyReadError(res.err)
		}
		if res.img == nil || res.img.Bounds().Empty() {
			return nil, &ReadError{Kind: ReadDecode, Err: ErrDecode}
		}

		return res.img, nil
	case <-timer.C:
		return nil, &ReadError{Kind: ReadTimeout, Err: fmt.Errorf("%w after %v", ErrReadTimeout, h.readTimeout)}
	}
}

var errReadInFlight = errors.New("previous read still in flight")

func classifyReadError(err error) *ReadError {
	var readErr *ReadError
	switch {
	case errors.As(err, &readErr):
		return readErr
	case errors.Is(err, ErrDecode):
		return &ReadError{Kind: ReadDecode, Err: err}
	case errors.Is(err, ErrSessionClosed):
		return &ReadError{Kind: ReadClosed, Err: err}
	default:
		return &ReadError{Kind: ReadEndOfStream, Err: err}
	}
}

// Close releases session. It is safe to call more than once. If a read is
// still blocked in the device, the stream is released once it returns.
func (h *Handle) Close(session *Session) error {
	if session == nil {
		return nil
	}

	session.mu.Lock()
	if session.closed {
		session.mu.Unlock()

		return nil
	}
	session.closed = true
	reading := session.reading
	session.mu.Unlock()

	release := func() error {
		var err error
		session.closeFn.Do(func() {
			err = session.stream.Close()
			close(session.closeCh)
			h.log.Debugf("Closed session %s", session.id)
		})

		return err
	}

	if reading != nil {
		go func() {
			<-reading
			if err := release(); err != nil {
				h.log.Warnf("Failed to close session %s: %v", session.id, err)
			}
		}()

		return nil
	}

	return release()
}
