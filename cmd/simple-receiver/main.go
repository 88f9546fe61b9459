// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

//go:build !js
// +build !js

// Package main receives the bridged stream and previews or records it.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pion/rtsp-bridge/config"
	bridgelog "github.com/pion/rtsp-bridge/logging"
	"github.com/pion/rtsp-bridge/preview"
	"github.com/pion/rtsp-bridge/receiver"
	"github.com/pion/rtsp-bridge/signaling"
	"github.com/pion/webrtc/v4"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := realMain(); err != nil {
		log.Fatal(err)
	}
}

//nolint:cyclop,funlen
func realMain() error {
	mode := flag.String("signaling", config.SignalingManual, "signaling mode: manual or http")
	addr := flag.String("addr", ":8080", "listen address for http signaling")
	route := flag.String("route", "/sdp", "route for http signaling")
	save := flag.String("save", "", "record every track to <save>_track-N.ivf")
	window := flag.Bool("window", false, "show decoded frames in a window")
	framesDir := flag.String("frames-dir", "received_frames", "directory for decoded PNG frames when no window is used")
	maxSaved := flag.Int("max-saved", preview.DefaultMaxSaved, "number of decoded frames saved as PNG")
	queueSize := flag.Int("queue-size", preview.DefaultQueueSize, "decoded frames buffered for display")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	loggerFactory, err := bridgelog.NewLoggerFactory(*logLevel, os.Stdout)
	if err != nil {
		return err
	}
	logger := loggerFactory.NewLogger("simple_receiver")

	if *save != "" {
		outputDir := filepath.Dir(*save)
		if err = os.MkdirAll(outputDir, 0o750); err != nil {
			return err
		}
		logger.Infof("Ensured output directory exists: %s", outputDir)
	}

	queue, err := preview.NewQueue(*queueSize)
	if err != nil {
		return err
	}

	opts := []receiver.Option{
		receiver.SetLoggerFactory(loggerFactory),
		receiver.DefaultInterceptors(),
		receiver.WithFrameSink(queue),
	}
	if *save != "" {
		opts = append(opts, receiver.SaveVideo(*save))
	}

	recv, err := receiver.NewReceiver(opts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := recv.Close(); err != nil {
			logger.Warnf("Closing receiver: %v", err)
		}
	}()
	if err = recv.SetupPeerConnection(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	recv.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			logger.Warnf("Peer connection %s, stopping", state)
			cancel()
		}
	})

	group, ctx := errgroup.WithContext(ctx)

	var consumer preview.Consumer
	if *window {
		consumer = preview.NewWindow("")
	} else {
		consumer, err = preview.NewSaver(*framesDir, *maxSaved, loggerFactory)
		if err != nil {
			return err
		}
	}
	previewLog := loggerFactory.NewLogger("preview")
	group.Go(func() error {
		err := preview.Run(ctx, queue, consumer, previewLog)
		if errors.Is(err, preview.ErrQuit) {
			logger.Info("Display closed by user")
			cancel()

			return nil
		}

		return err
	})

	switch *mode {
	case config.SignalingHTTP:
		mux := http.NewServeMux()
		mux.Handle(*route, recv.SDPHandler())
		server := &http.Server{
			Addr:              *addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		group.Go(func() error {
			logger.Infof("HTTP receiver listening on %s%s", *addr, *route)
			if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}

			return nil
		})
		group.Go(func() error {
			<-ctx.Done()

			return server.Close()
		})
	default:
		if err = recv.SignalManual(&signaling.Manual{In: os.Stdin, Out: os.Stdout}); err != nil {
			cancel()
			_ = group.Wait()

			return err
		}
		logger.Info("Receiver is now ready to receive media")
	}

	<-ctx.Done()
	logger.Info("Shutting down receiver")
	queue.Close()

	return group.Wait()
}
