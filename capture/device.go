// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

//go:build !js
// +build !js

package capture

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// DeviceConfig selects and tunes the device for an address.
type DeviceConfig struct {
	// Probe enables the RTSP DESCRIBE pre-flight.
	Probe bool
	// ProbeTimeout bounds the pre-flight; the handle's open timeout still applies.
	ProbeTimeout time.Duration
	// BufferSize is the OpenCV capture buffer length.
	BufferSize int
}

// NewDevice returns the device able to open address.
func NewDevice(address string, cfg DeviceConfig) (Device, error) {
	u, err := url.Parse(address)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoDevice, err)
	}

	switch strings.ToLower(u.Scheme) {
	case PatternScheme:
		if _, err := parsePattern(address); err != nil {
			return nil, err
		}

		return &PatternDevice{}, nil
	case "rtsp", "rtsps", "http", "https", "file", "":
		device := NewGoCVDevice()
		if cfg.BufferSize > 0 {
			device.BufferSize = cfg.BufferSize
		}
		if !cfg.Probe {
			return device, nil
		}

		return WithProbe(device, &Prober{Timeout: cfg.ProbeTimeout}), nil
	default:
		return nil, fmt.Errorf("%w: scheme %q", ErrNoDevice, u.Scheme)
	}
}
