// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package metrics

import (
	"errors"
	"testing"

	"github.com/pion/rtsp-bridge/capture"
	"github.com/pion/rtsp-bridge/frame"
	"github.com/pion/rtsp-bridge/supply"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

var _ supply.Observer = (*Metrics)(nil)

func TestMetrics_OnFrame(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.OnFrame(frame.Frame{Width: 640, Height: 480, Synthetic: true})
	m.OnFrame(frame.Frame{Width: 1280, Height: 720})
	m.OnFrame(frame.Frame{Width: 1280, Height: 720})

	assert.InDelta(t, 1, testutil.ToFloat64(m.Frames.WithLabelValues("placeholder")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.Frames.WithLabelValues("real")), 0)
	assert.InDelta(t, 1280, testutil.ToFloat64(m.FrameWidth), 0)
	assert.InDelta(t, 720, testutil.ToFloat64(m.FrameHeight), 0)
}

func TestMetrics_OnStateChange(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.OnStateChange(supply.Disconnected, supply.Connecting)
	m.OnStateChange(supply.Connecting, supply.Connected)

	assert.InDelta(t, 0, testutil.ToFloat64(m.State.WithLabelValues("connecting")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.State.WithLabelValues("connected")), 0)
}

func TestMetrics_OnFailure(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.OnFailure(&capture.OpenError{Kind: capture.OpenUnreachable}, 1)
	m.OnFailure(&capture.ReadError{Kind: capture.ReadEndOfStream}, 2)
	m.OnFailure(&capture.ReadError{Kind: capture.ReadDecode}, 3)
	m.OnFailure(errors.New("boom"), 4)

	assert.InDelta(t, 1, testutil.ToFloat64(m.Failures.WithLabelValues("open")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Failures.WithLabelValues("read")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Failures.WithLabelValues("decode")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Failures.WithLabelValues("other")), 0)
	assert.InDelta(t, 4, testutil.ToFloat64(m.ConsecutiveFailures), 0)

	m.OnFrame(frame.Frame{Width: 8, Height: 8})
	assert.InDelta(t, 0, testutil.ToFloat64(m.ConsecutiveFailures), 0)
}
