// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package stats

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/rtsp-bridge/supply"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSnapshot(t *testing.T) {
	now := time.UnixMilli(1234)
	snapshot := NewSnapshot(supply.Stats{
		State:               supply.Degraded,
		ConsecutiveFailures: 11,
		RealFrames:          3,
		PlaceholderFrames:   40,
		Width:               640,
		Height:              480,
		LastPTS:             90000,
	}, now)

	assert.Equal(t, int64(1234), snapshot.Timestamp)
	assert.Equal(t, "degraded", snapshot.State)
	assert.Equal(t, uint64(11), snapshot.ConsecutiveFailures)
	assert.Equal(t, uint64(40), snapshot.PlaceholderFrames)
	assert.Equal(t, int64(90000), snapshot.LastPTS)
}

func TestNew_InvalidInterval(t *testing.T) {
	_, err := New(WithInterval(0))
	assert.ErrorIs(t, err, ErrInvalidInterval)
}

func TestServer_Home(t *testing.T) {
	server, err := New()
	require.NoError(t, err)

	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/") //nolint:noctx
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "update")

	missing, err := http.Get(ts.URL + "/nothing") //nolint:noctx
	require.NoError(t, err)
	_ = missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestServer_ExtraHandler(t *testing.T) {
	server, err := New(WithHandler("/metrics", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, "ok", rec.Body.String())
}

func TestServer_PushesSnapshots(t *testing.T) {
	server, err := New(
		WithInterval(10*time.Millisecond),
		WithSource(func() supply.Stats {
			return supply.Stats{State: supply.Connected, RealFrames: 7, Width: 320, Height: 240}
		}),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go server.Run(ctx)

	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	url := "ws://" + strings.TrimPrefix(ts.URL, "http://") + "/update"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	defer func() { _ = conn.Close() }()

	require.Eventually(t, func() bool { return server.Clients() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var msg Message
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type != TypeSnapshot {
			continue
		}
		require.NotNil(t, msg.Snapshot)
		assert.Equal(t, "connected", msg.Snapshot.State)
		assert.Equal(t, uint64(7), msg.Snapshot.RealFrames)
		assert.Equal(t, 320, msg.Snapshot.Width)

		break
	}

	server.Add(DataPoint{Label: "bitrate", Value: 1})
	for {
		var msg Message
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == TypePoint && msg.Point.Label == "bitrate" {
			break
		}
	}

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return server.Clients() == 0 }, time.Second, 5*time.Millisecond)
}
