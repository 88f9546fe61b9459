// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package metrics exports frame supply activity as Prometheus metrics.
package metrics

import (
	"errors"

	"github.com/pion/rtsp-bridge/capture"
	"github.com/pion/rtsp-bridge/frame"
	"github.com/pion/rtsp-bridge/supply"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "rtsp_bridge"

// Metrics holds the collectors for one frame supply. It implements supply.Observer.
type Metrics struct {
	Frames              *prometheus.CounterVec
	Failures            *prometheus.CounterVec
	State               *prometheus.GaugeVec
	ConsecutiveFailures prometheus.Gauge
	FrameWidth          prometheus.Gauge
	FrameHeight         prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Frames: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Frames handed to the transport, by kind (real or placeholder)",
		}, []string{"kind"}),
		Failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_failures_total",
			Help:      "Failed source operations, by stage (open, read, decode)",
		}, []string{"stage"}),
		State: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "source_state",
			Help:      "1 for the current frame supply state, 0 otherwise",
		}, []string{"state"}),
		ConsecutiveFailures: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "consecutive_failures",
			Help:      "Current streak of failed source operations",
		}),
		FrameWidth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "frame_width_pixels",
			Help:      "Width of the last emitted frame",
		}),
		FrameHeight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "frame_height_pixels",
			Help:      "Height of the last emitted frame",
		}),
	}
}

// OnFrame counts f.
func (m *Metrics) OnFrame(f frame.Frame) {
	kind := "real"
	if f.Synthetic {
		kind = "placeholder"
	} else {
		m.ConsecutiveFailures.Set(0)
	}
	m.Frames.WithLabelValues(kind).Inc()
	m.FrameWidth.Set(float64(f.Width))
	m.FrameHeight.Set(float64(f.Height))
}

// OnStateChange moves the state gauge.
func (m *Metrics) OnStateChange(from, to supply.State) {
	m.State.WithLabelValues(from.String()).Set(0)
	m.State.WithLabelValues(to.String()).Set(1)
}

// OnFailure counts err by stage.
func (m *Metrics) OnFailure(err error, consecutive uint64) {
	m.Failures.WithLabelValues(stage(err)).Inc()
	m.ConsecutiveFailures.Set(float64(consecutive))
}

func stage(err error) string {
	switch {
	case errors.Is(err, capture.ErrOpen):
		return "open"
	case errors.Is(err, capture.ErrDecode):
		return "decode"
	case errors.Is(err, capture.ErrRead):
		return "read"
	default:
		return "other"
	}
}
