// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package capture

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/bluenviron/gortsplib/v4"
	"github.com/bluenviron/gortsplib/v4/pkg/base"
	"github.com/bluenviron/gortsplib/v4/pkg/description"
	"github.com/bluenviron/gortsplib/v4/pkg/liberrors"
)

// ProbeResult describes what the server announced for an address.
type ProbeResult struct {
	Medias  int
	Formats []string
}

// Prober asks an RTSP server to DESCRIBE a stream before the capture backend
// is started, so auth and "no video" failures are reported precisely.
type Prober struct {
	Timeout time.Duration
}

// Probe runs DESCRIBE over TCP against address.
func (p *Prober) Probe(ctx context.Context, address string) (*ProbeResult, error) {
	u, err := base.ParseURL(address)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}

	timeout := p.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); timeout <= 0 || remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return nil, ErrOpenTimeout
	}

	transport := gortsplib.TransportTCP
	client := gortsplib.Client{
		Transport:    &transport,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}

	if err = client.Start(u.Scheme, u.Host); err != nil {
		return nil, classifyProbeError(err)
	}
	defer client.Close()

	desc, _, err := client.Describe(u)
	if err != nil {
		return nil, classifyProbeError(err)
	}

	return describeResult(desc)
}

func describeResult(desc *description.Session) (*ProbeResult, error) {
	result := &ProbeResult{Medias: len(desc.Medias)}
	hasVideo := false
	for _, media := range desc.Medias {
		if media.Type != description.MediaTypeVideo {
			continue
		}
		hasVideo = true
		for _, format := range media.Formats {
			result.Formats = append(result.Formats, format.Codec())
		}
	}
	if !hasVideo {
		return nil, fmt.Errorf("%w: no video media announced", ErrUnsupported)
	}

	return result, nil
}

func classifyProbeError(err error) error {
	var status liberrors.ErrClientBadStatusCode
	if errors.As(err, &status) {
		switch status.Code {
		case base.StatusUnauthorized, base.StatusForbidden:
			return fmt.Errorf("%w: %w", ErrAuthRejected, err)
		case base.StatusNotFound:
			return fmt.Errorf("%w: %w", ErrUnreachable, err)
		default:
			return fmt.Errorf("%w: %w", ErrUnsupported, err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", ErrOpenTimeout, err)
	}

	return fmt.Errorf("%w: %w", ErrUnreachable, err)
}

// WithProbe runs a DESCRIBE pre-flight for rtsp:// and rtsps:// addresses
// before delegating to device.
func WithProbe(device Device, prober *Prober) Device {
	return DeviceFunc(func(ctx context.Context, address string) (Stream, error) {
		scheme := strings.ToLower(address)
		if strings.HasPrefix(scheme, "rtsp://") || strings.HasPrefix(scheme, "rtsps://") {
			if _, err := prober.Probe(ctx, address); err != nil {
				return nil, err
			}
		}

		return device.Open(ctx, address)
	})
}
