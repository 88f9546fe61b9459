// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

//go:build !js
// +build !js

// Package main bridges an RTSP camera into a WebRTC video track.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/pion/logging"
	"github.com/pion/rtsp-bridge/capture"
	"github.com/pion/rtsp-bridge/config"
	bridgelog "github.com/pion/rtsp-bridge/logging"
	"github.com/pion/rtsp-bridge/metrics"
	"github.com/pion/rtsp-bridge/preview"
	"github.com/pion/rtsp-bridge/sender"
	"github.com/pion/rtsp-bridge/signaling"
	"github.com/pion/rtsp-bridge/stats"
	"github.com/pion/rtsp-bridge/supply"
	"github.com/pion/webrtc/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

var errPeerConnectionLost = errors.New("peer connection lost")

func main() {
	if err := realMain(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

func realMain(args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	logFile := cfg.Log.File
	if logFile == "" {
		logFile = "stdout"
	}
	logWriter, err := bridgelog.GetLogFile(logFile)
	if err != nil {
		return err
	}
	defer func() { _ = logWriter.Close() }()

	loggerFactory, err := bridgelog.NewLoggerFactory(cfg.Log.Level, logWriter, cfg.Log.Scopes...)
	if err != nil {
		return err
	}
	logger := loggerFactory.NewLogger("rtsp_bridge")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return run(ctx, cfg, loggerFactory, logger)
}

//nolint:cyclop,funlen
func run(ctx context.Context, cfg *config.Config, loggerFactory logging.LoggerFactory, logger logging.LeveledLogger) error {
	device, err := capture.NewDevice(cfg.Source.Address, capture.DeviceConfig{
		Probe:        cfg.Source.Probe,
		ProbeTimeout: cfg.Source.OpenTimeout,
	})
	if err != nil {
		return err
	}
	handle, err := capture.NewHandle(device,
		capture.WithOpenTimeout(cfg.Source.OpenTimeout),
		capture.WithReadTimeout(cfg.Source.ReadTimeout),
		capture.SetLoggerFactory(loggerFactory),
	)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	track, err := supply.NewTrack(handle, cfg.Source.Address, supplyOptions(cfg, loggerFactory, metrics.New(registry))...)
	if err != nil {
		return err
	}
	defer track.Stop()

	peers := sender.NewRegistry()
	defer func() {
		if err := peers.CloseAll(); err != nil {
			logger.Warnf("Closing peer connections: %v", err)
		}
	}()

	senderOpts := []sender.Option{
		sender.SetLoggerFactory(loggerFactory),
		sender.GCC(cfg.Transport.Bitrate),
		sender.DefaultInterceptors(),
		sender.ICEServers(cfg.Transport.ICEServers...),
		sender.WithRegistry(peers),
		sender.FrameDuration(cfg.TickInterval()),
	}

	dumps, err := openLogWriters(cfg.Transport)
	if err != nil {
		return err
	}
	defer dumps.Close()
	if cfg.Transport.CCLog != "" {
		senderOpts = append(senderOpts, sender.CCLogWriter(dumps.cc))
	}
	if cfg.Transport.RTPLog != "" || cfg.Transport.RTCPLog != "" {
		senderOpts = append(senderOpts, sender.RTPLogWriter(dumps.rtp, dumps.rtcp))
	}

	var queue *preview.Queue
	if cfg.Preview.Enabled {
		queue, err = preview.NewQueue(cfg.Preview.QueueSize)
		if err != nil {
			return err
		}
		defer queue.Close()
		senderOpts = append(senderOpts, sender.WithFrameSink(queue))
	}

	rtcSender, err := sender.NewRTCSender(track, senderOpts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := rtcSender.Close(); err != nil {
			logger.Warnf("Closing sender: %v", err)
		}
	}()

	if err = rtcSender.SetupPeerConnection(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	rtcSender.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateDisconnected,
			webrtc.PeerConnectionStateClosed:
			logger.Warnf("Peer connection %s, stopping", state)
			track.Stop()
			cancel(fmt.Errorf("%w: %s", errPeerConnectionLost, state))
		default:
		}
	})

	if err = signalPeer(ctx, cfg.Transport, rtcSender); err != nil {
		return err
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return rtcSender.Start(ctx)
	})

	if queue != nil {
		consumer, err := newConsumer(cfg.Preview, loggerFactory)
		if err != nil {
			return err
		}
		previewLog := loggerFactory.NewLogger("preview")
		group.Go(func() error {
			err := preview.Run(ctx, queue, consumer, previewLog)
			if errors.Is(err, preview.ErrQuit) {
				logger.Info("Preview closed, stopping")
				cancel(err)

				return nil
			}

			return err
		})
	}

	if cfg.Stats.Addr != "" {
		statsServer, err := stats.New(
			stats.SetLoggerFactory(loggerFactory),
			stats.WithSource(track.Stats),
			stats.WithHandler("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})),
		)
		if err != nil {
			return err
		}
		group.Go(func() error {
			return statsServer.Start(ctx, cfg.Stats.Addr)
		})
	}

	err = group.Wait()
	final := track.Stats()
	logger.Infof("Finished: %d real frames, %d placeholders, %d frames sent",
		final.RealFrames, final.PlaceholderFrames, rtcSender.FramesSent())

	if cause := context.Cause(ctx); errors.Is(cause, errPeerConnectionLost) {
		logger.Infof("Stopped: %v", cause)
	}

	return err
}

func supplyOptions(cfg *config.Config, loggerFactory logging.LoggerFactory, observer supply.Observer) []supply.Option {
	opts := []supply.Option{
		supply.WithLoggerFactory(loggerFactory),
		supply.WithTargetFPS(cfg.Supply.TargetFPS),
		supply.WithDegradeThreshold(cfg.Supply.DegradeThreshold),
		supply.WithReadFailureDelay(cfg.Supply.ReadFailureDelay),
		supply.WithPlaceholderSize(cfg.Supply.Placeholder.Width, cfg.Supply.Placeholder.Height),
		supply.WithObserver(observer),
	}
	if cfg.Supply.Placeholder.Label != "" {
		opts = append(opts, supply.WithPlaceholderLabel(cfg.Supply.Placeholder.Label))
	}
	if cfg.Supply.Output.Width > 0 {
		opts = append(opts, supply.WithOutputSize(cfg.Supply.Output.Width, cfg.Supply.Output.Height))
	}

	return opts
}

func signalPeer(ctx context.Context, transport config.TransportConfig, s *sender.RTCSender) error {
	if transport.Signaling == config.SignalingHTTP {
		return s.SignalHTTP(ctx, transport.SignalAddr, transport.SignalRoute)
	}

	return s.SignalManual(&signaling.Manual{In: os.Stdin, Out: os.Stdout})
}

func newConsumer(cfg config.PreviewConfig, loggerFactory logging.LoggerFactory) (preview.Consumer, error) {
	if cfg.Window {
		return preview.NewWindow(""), nil
	}
	dir := cfg.SaveDir
	if dir == "" {
		dir = "frames"
	}

	return preview.NewSaver(dir, cfg.MaxSaved, loggerFactory)
}

type logWriters struct {
	cc, rtp, rtcp io.WriteCloser
}

func openLogWriters(transport config.TransportConfig) (*logWriters, error) {
	writers := &logWriters{}
	var err error
	if writers.cc, err = bridgelog.GetLogFile(transport.CCLog); err != nil {
		return nil, err
	}
	if writers.rtp, err = bridgelog.GetLogFile(transport.RTPLog); err != nil {
		writers.Close()

		return nil, err
	}
	if writers.rtcp, err = bridgelog.GetLogFile(transport.RTCPLog); err != nil {
		writers.Close()

		return nil, err
	}

	return writers, nil
}

func (w *logWriters) Close() {
	for _, c := range []io.Closer{w.cc, w.rtp, w.rtcp} {
		if c != nil {
			_ = c.Close()
		}
	}
}
