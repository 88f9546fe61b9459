// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package signaling

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSDP = "v=0\r\no=- 1 2 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n"

func TestEncodeDecode(t *testing.T) {
	offer := &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: testSDP}

	encoded, err := Encode(offer)
	require.NoError(t, err)
	assert.NotContains(t, encoded, "\n")
	assert.Contains(t, encoded, `"type":"offer"`)

	decoded, err := Decode("  " + encoded + "\n")
	require.NoError(t, err)
	assert.Equal(t, webrtc.SDPTypeOffer, decoded.Type)
	assert.Equal(t, testSDP, decoded.SDP)
}

func TestEncode_Empty(t *testing.T) {
	_, err := Encode(nil)
	assert.ErrorIs(t, err, ErrEmptyDescription)

	_, err = Encode(&webrtc.SessionDescription{Type: webrtc.SDPTypeOffer})
	assert.ErrorIs(t, err, ErrEmptyDescription)
}

func TestDecode_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{name: "blank", input: "  \n", wantErr: ErrEmptyDescription},
		{name: "no sdp", input: `{"type":"answer"}`, wantErr: ErrEmptyDescription},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.input)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err := Decode("{not json")
	assert.Error(t, err)
}

func TestManual_Exchange(t *testing.T) {
	answer := &webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: testSDP}
	encodedAnswer, err := Encode(answer)
	require.NoError(t, err)

	out := &bytes.Buffer{}
	manual := &Manual{In: strings.NewReader("\n\n" + encodedAnswer + "\n"), Out: out}

	offer := &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: testSDP}
	got, err := manual.Exchange(offer, "Offer:", "Paste answer:")
	require.NoError(t, err)
	assert.Equal(t, webrtc.SDPTypeAnswer, got.Type)

	printed := out.String()
	assert.Contains(t, printed, "Offer:")
	assert.Contains(t, printed, `"type":"offer"`)
	assert.Contains(t, printed, "Paste answer:")
}

func TestManual_ReadEOF(t *testing.T) {
	manual := &Manual{In: strings.NewReader(""), Out: &bytes.Buffer{}}

	_, err := manual.Read("")
	assert.ErrorIs(t, err, ErrNoInput)
}

func TestPostAndHandler(t *testing.T) {
	var handlerErr error
	server := httptest.NewServer(Handler(func(offer *webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
		return &webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: offer.SDP}, nil
	}, func(err error) { handlerErr = err }))
	defer server.Close()

	offer := &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: testSDP}
	answer, err := Post(context.Background(), server.Client(), server.URL+"/sdp", offer)
	require.NoError(t, err)
	assert.Equal(t, webrtc.SDPTypeAnswer, answer.Type)
	assert.Equal(t, testSDP, answer.SDP)
	assert.NoError(t, handlerErr)
}

func TestHandler_Errors(t *testing.T) {
	errRejected := errors.New("rejected")
	handler := Handler(func(*webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
		return nil, errRejected
	}, nil)

	t.Run("method", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler(rec, httptest.NewRequest(http.MethodGet, "/sdp", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})

	t.Run("bad body", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler(rec, httptest.NewRequest(http.MethodPost, "/sdp", strings.NewReader("{")))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejected", func(t *testing.T) {
		rec := httptest.NewRecorder()
		body := strings.NewReader(`{"type":"offer","sdp":"v=0"}`)
		handler(rec, httptest.NewRequest(http.MethodPost, "/sdp", body))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestPost_UnexpectedStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := Post(context.Background(), nil, server.URL, &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: testSDP})
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
}
