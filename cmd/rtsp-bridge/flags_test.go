// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pion/rtsp-bridge/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Flags(t *testing.T) {
	cfg, err := loadConfig([]string{
		"-source", "pattern://320x240",
		"-fps", "30",
		"-signaling", "http",
		"-ice-servers", "stun:a:3478, ,stun:b:3478",
		"-preview",
	})
	require.NoError(t, err)

	assert.Equal(t, "pattern://320x240", cfg.Source.Address)
	assert.InDelta(t, 30.0, cfg.Supply.TargetFPS, 1e-9)
	assert.Equal(t, config.SignalingHTTP, cfg.Transport.Signaling)
	assert.Equal(t, []string{"stun:a:3478", "stun:b:3478"}, cfg.Transport.ICEServers)
	assert.True(t, cfg.Preview.Enabled)
	assert.Equal(t, "localhost:8080", cfg.Transport.SignalAddr)
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
source:
  address: rtsp://cam.local/stream
transport:
  bitrate: 500000
log:
  level: debug
`), 0o600))

	cfg, err := loadConfig([]string{"-config", path, "-bitrate", "2000000"})
	require.NoError(t, err)

	assert.Equal(t, "rtsp://cam.local/stream", cfg.Source.Address)
	assert.Equal(t, 2_000_000, cfg.Transport.Bitrate)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfig_Invalid(t *testing.T) {
	_, err := loadConfig(nil)
	assert.ErrorIs(t, err, config.ErrEmptyAddress)

	_, err = loadConfig([]string{"-source", "pattern://", "-signaling", "smoke"})
	assert.ErrorIs(t, err, config.ErrInvalidSignaling)

	_, err = loadConfig([]string{"-no-such-flag"})
	assert.Error(t, err)
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Equal(t, []string{"a", "b"}, splitList("a,,b "))
}
