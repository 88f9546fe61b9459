// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package main

import (
	"flag"
	"os"
	"path/filepath"
	"strings"

	"github.com/pion/rtsp-bridge/config"
)

// loadConfig reads the optional -config file and applies the flags given on
// the command line on top of it.
func loadConfig(args []string) (*config.Config, error) {
	fs := flag.NewFlagSet("rtsp-bridge", flag.ContinueOnError)

	configPath := fs.String("config", "", "YAML configuration file")
	source := fs.String("source", "", "RTSP URI of the camera, or pattern:// for a test pattern")
	probe := fs.Bool("probe", false, "DESCRIBE the RTSP source before opening it")
	fps := fs.Float64("fps", 0, "placeholder frame rate")
	bitrate := fs.Int("bitrate", 0, "initial encoder bitrate in bps")
	signalingMode := fs.String("signaling", "", "signaling mode: manual or http")
	signalAddr := fs.String("signal-addr", "", "receiver address for http signaling")
	signalRoute := fs.String("signal-route", "", "receiver route for http signaling")
	iceServers := fs.String("ice-servers", "", "comma separated STUN/TURN URLs")
	previewEnabled := fs.Bool("preview", false, "show outgoing frames locally")
	window := fs.Bool("window", false, "preview in a window instead of saving PNG files")
	saveDir := fs.String("save-dir", "", "directory for preview PNG files")
	statsAddr := fs.String("stats-addr", "", "address of the live status server, e.g. :9090")
	logLevel := fs.String("log-level", "", "log level: disable, error, warn, info, debug, trace")
	logFile := fs.String("log-file", "", "log destination: stdout, stderr or a file")
	ccLog := fs.String("cc-log", "", "congestion control log file")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := config.Default()
	if *configPath != "" {
		data, err := os.ReadFile(filepath.Clean(*configPath))
		if err != nil {
			return nil, err
		}
		if cfg, err = config.Parse(data); err != nil {
			return nil, err
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "source":
			cfg.Source.Address = *source
		case "probe":
			cfg.Source.Probe = *probe
		case "fps":
			cfg.Supply.TargetFPS = *fps
		case "bitrate":
			cfg.Transport.Bitrate = *bitrate
		case "signaling":
			cfg.Transport.Signaling = *signalingMode
		case "signal-addr":
			cfg.Transport.SignalAddr = *signalAddr
		case "signal-route":
			cfg.Transport.SignalRoute = *signalRoute
		case "ice-servers":
			cfg.Transport.ICEServers = splitList(*iceServers)
		case "preview":
			cfg.Preview.Enabled = *previewEnabled
		case "window":
			cfg.Preview.Window = *window
		case "save-dir":
			cfg.Preview.SaveDir = *saveDir
		case "stats-addr":
			cfg.Stats.Addr = *statsAddr
		case "log-level":
			cfg.Log.Level = *logLevel
		case "log-file":
			cfg.Log.File = *logFile
		case "cc-log":
			cfg.Transport.CCLog = *ccLog
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}

	return out
}
