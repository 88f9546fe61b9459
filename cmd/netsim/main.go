// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

//go:build !js
// +build !js

// Package main streams a source through the bridge to an in-process viewer
// over a simulated network whose capacity follows a schedule.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/pion/rtsp-bridge/capture"
	"github.com/pion/rtsp-bridge/frame"
	bridgelog "github.com/pion/rtsp-bridge/logging"
	"github.com/pion/rtsp-bridge/netsim"
	"github.com/pion/rtsp-bridge/receiver"
	"github.com/pion/rtsp-bridge/sender"
	"github.com/pion/rtsp-bridge/supply"
	"golang.org/x/sync/errgroup"
)

// connectGrace lets ICE and DTLS finish before the first phase.
const connectGrace = 2 * time.Second

type frameCounter struct {
	frames atomic.Uint64
}

func (c *frameCounter) Push(frame.Frame) bool {
	c.frames.Add(1)

	return true
}

func main() {
	if err := realMain(); err != nil {
		log.Fatal(err)
	}
}

//nolint:funlen
func realMain() error {
	source := flag.String("source", "pattern://640x480?fail_after=150", "RTSP URI or pattern:// address")
	schedulePath := flag.String("schedule", "", "YAML phase schedule (default: healthy, outage, recovery)")
	dataDir := flag.String("data-dir", "data/netsim", "directory for congestion control and packet logs")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	loggerFactory, err := bridgelog.NewLoggerFactory(*logLevel, os.Stdout)
	if err != nil {
		return err
	}
	logger := loggerFactory.NewLogger("netsim")

	schedule := netsim.DefaultSchedule()
	if *schedulePath != "" {
		if schedule, err = netsim.LoadSchedule(*schedulePath); err != nil {
			return fmt.Errorf("load schedule: %w", err)
		}
	}

	if err = os.MkdirAll(*dataDir, 0o750); err != nil {
		return fmt.Errorf("mkdir data: %w", err)
	}
	ccLog, err := bridgelog.GetLogFile(filepath.Join(*dataDir, "cc.log"))
	if err != nil {
		return err
	}
	defer func() { _ = ccLog.Close() }()
	rtpLog, err := bridgelog.GetLogFile(filepath.Join(*dataDir, "sender_rtp.log"))
	if err != nil {
		return err
	}
	defer func() { _ = rtpLog.Close() }()
	rtcpLog, err := bridgelog.GetLogFile(filepath.Join(*dataDir, "sender_rtcp.log"))
	if err != nil {
		return err
	}
	defer func() { _ = rtcpLog.Close() }()

	device, err := capture.NewDevice(*source, capture.DeviceConfig{})
	if err != nil {
		return err
	}
	handle, err := capture.NewHandle(device, capture.SetLoggerFactory(loggerFactory))
	if err != nil {
		return err
	}
	track, err := supply.NewTrack(handle, *source, supply.WithLoggerFactory(loggerFactory))
	if err != nil {
		return err
	}
	defer track.Stop()

	network, err := netsim.NewNetwork(loggerFactory)
	if err != nil {
		return fmt.Errorf("new network: %w", err)
	}
	defer func() { _ = network.Close() }()

	counter := &frameCounter{}
	flow, err := netsim.NewFlow(network, loggerFactory, track,
		[]sender.Option{
			sender.CCLogWriter(ccLog),
			sender.RTPLogWriter(rtpLog, rtcpLog),
		},
		[]receiver.Option{
			receiver.WithFrameSink(counter),
			receiver.SaveVideo(filepath.Join(*dataDir, "received")),
		},
	)
	if err != nil {
		return fmt.Errorf("setup flow: %w", err)
	}
	defer func() {
		if err := flow.Close(); err != nil {
			logger.Errorf("flow close: %v", err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), connectGrace+schedule.Duration())
	defer cancel()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return flow.Start(ctx)
	})
	group.Go(func() error {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(connectGrace):
		}
		err := schedule.Run(ctx, network, logger)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil
		}

		return err
	})

	err = group.Wait()

	stats := track.Stats()
	logger.Infof("done: state=%s real=%d placeholder=%d opens=%d read_failures=%d sent=%d decoded=%d",
		stats.State, stats.RealFrames, stats.PlaceholderFrames, stats.Opens, stats.ReadFailures,
		flow.Sender.FramesSent(), counter.frames.Load())

	return err
}
