// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package capture

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Static errors for err113 compliance.
var (
	ErrOpen          = errors.New("capture open failed")
	ErrUnreachable   = errors.New("source unreachable")
	ErrAuthRejected  = errors.New("source rejected credentials")
	ErrUnsupported   = errors.New("source stream unsupported")
	ErrOpenTimeout   = errors.New("source open timed out")
	ErrRead          = errors.New("capture read failed")
	ErrReadTimeout   = errors.New("capture read timed out")
	ErrStreamEnded   = errors.New("stream ended")
	ErrDecode        = errors.New("frame could not be decoded")
	ErrSessionClosed = errors.New("capture session closed")
	ErrNoDevice      = errors.New("no capture device for address")
)

// OpenErrorKind classifies why a session could not be opened.
type OpenErrorKind int

// Open failure kinds.
const (
	OpenUnreachable OpenErrorKind = iota + 1
	OpenAuthRejected
	OpenUnsupported
	OpenTimeout
)

func (k OpenErrorKind) String() string {
	switch k {
	case OpenUnreachable:
		return "unreachable"
	case OpenAuthRejected:
		return "auth"
	case OpenUnsupported:
		return "unsupported"
	case OpenTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

func (k OpenErrorKind) sentinel() error {
	switch k {
	case OpenAuthRejected:
		return ErrAuthRejected
	case OpenUnsupported:
		return ErrUnsupported
	case OpenTimeout:
		return ErrOpenTimeout
	default:
		return ErrUnreachable
	}
}

// OpenError is returned when a capture session could not be established.
type OpenError struct {
	Kind    OpenErrorKind
	Address string
	Err     error
}

func (e *OpenError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("open %s: %s", Redact(e.Address), e.Kind)
	}

	return fmt.Sprintf("open %s: %s: %v", Redact(e.Address), e.Kind, e.Err)
}

// Unwrap makes ErrOpen, the kind sentinel and the cause visible to errors.Is.
func (e *OpenError) Unwrap() []error {
	errs := []error{ErrOpen, e.Kind.sentinel()}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}

	return errs
}

// ReadErrorKind classifies why a frame could not be read.
type ReadErrorKind int

// Read failure kinds.
const (
	ReadEndOfStream ReadErrorKind = iota + 1
	ReadTimeout
	ReadDecode
	ReadClosed
)

func (k ReadErrorKind) String() string {
	switch k {
	case ReadEndOfStream:
		return "end of stream"
	case ReadTimeout:
		return "timeout"
	case ReadDecode:
		return "decode"
	case ReadClosed:
		return "closed"
	default:
		return "unknown"
	}
}

func (k ReadErrorKind) sentinel() error {
	switch k {
	case ReadTimeout:
		return ErrReadTimeout
	case ReadDecode:
		return ErrDecode
	case ReadClosed:
		return ErrSessionClosed
	default:
		return ErrStreamEnded
	}
}

// ReadError is returned when an open session failed to deliver a frame.
type ReadError struct {
	Kind ReadErrorKind
	Err  error
}

func (e *ReadError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("read: %s", e.Kind)
	}

	return fmt.Sprintf("read: %s: %v", e.Kind, e.Err)
}

// Unwrap makes ErrRead, the kind sentinel and the cause visible to errors.Is.
func (e *ReadError) Unwrap() []error {
	errs := []error{ErrRead, e.Kind.sentinel()}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}

	return errs
}

// ClassifyOpenError maps a device error onto an OpenErrorKind.
// Typed errors win; otherwise the message is matched against known keywords.
func ClassifyOpenError(err error) OpenErrorKind {
	var openErr *OpenError
	switch {
	case err == nil:
		return OpenUnreachable
	case errors.As(err, &openErr):
		return openErr.Kind
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrOpenTimeout):
		return OpenTimeout
	case errors.Is(err, ErrAuthRejected):
		return OpenAuthRejected
	case errors.Is(err, ErrUnsupported):
		return OpenUnsupported
	case errors.Is(err, ErrUnreachable):
		return OpenUnreachable
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "unauthorized", "401", "403", "forbidden", "authentication", "credentials"):
		return OpenAuthRejected
	case containsAny(msg, "codec", "unsupported", "no video", "format"):
		return OpenUnsupported
	case containsAny(msg, "timeout", "timed out", "deadline"):
		return OpenTimeout
	default:
		return OpenUnreachable
	}
}

func containsAny(s string, keywords ...string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}

	return false
}

// Redact hides the password of an address so it can be logged.
func Redact(address string) string {
	u, err := url.Parse(address)
	if err != nil || u.User == nil {
		return address
	}

	return u.Redacted()
}
