// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package signaling exchanges session descriptions between the bridge and a viewer,
// either by copy and paste on a terminal or over HTTP.
package signaling

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pion/webrtc/v4"
)

// Static errors for err113 compliance.
var (
	ErrEmptyDescription = errors.New("empty session description")
	ErrUnexpectedStatus = errors.New("signaling received unexpected status code")
	ErrNoInput          = errors.New("no session description on input")
)

const (
	separator   = "--------------------"
	maxLineSize = 1 << 20
)

// Encode returns sd as single-line JSON: {"type":"offer","sdp":"..."}.
func Encode(sd *webrtc.SessionDescription) (string, error) {
	if sd == nil || sd.SDP == "" {
		return "", ErrEmptyDescription
	}

	payload, err := json.Marshal(sd)
	if err != nil {
		return "", err
	}

	return string(payload), nil
}

// Decode parses a JSON session description.
func Decode(in string) (*webrtc.SessionDescription, error) {
	in = strings.TrimSpace(in)
	if in == "" {
		return nil, ErrEmptyDescription
	}

	sd := &webrtc.SessionDescription{}
	if err := json.Unmarshal([]byte(in), sd); err != nil {
		return nil, fmt.Errorf("decode session description: %w", err)
	}
	if sd.SDP == "" {
		return nil, ErrEmptyDescription
	}

	return sd, nil
}

// Manual exchanges descriptions through a terminal. The local description is
// printed between separator lines and the remote one is read as a single line.
type Manual struct {
	In  io.Reader
	Out io.Writer

	reader *bufio.Reader
}

// Exchange prints local under title and reads the peer's reply after prompt.
func (m *Manual) Exchange(local *webrtc.SessionDescription, title, prompt string) (*webrtc.SessionDescription, error) {
	if err := m.Print(local, title); err != nil {
		return nil, err
	}

	return m.Read(prompt)
}

// Print writes local to Out.
func (m *Manual) Print(local *webrtc.SessionDescription, title string) error {
	encoded, err := Encode(local)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(m.Out, "%s\n%s\n%s\n%s\n", separator, title, encoded, separator)

	return err
}

// Read prints prompt and reads one description from In.
func (m *Manual) Read(prompt string) (*webrtc.SessionDescription, error) {
	if prompt != "" {
		if _, err := fmt.Fprintln(m.Out, prompt); err != nil {
			return nil, err
		}
	}
	if m.reader == nil {
		m.reader = bufio.NewReaderSize(m.In, maxLineSize)
	}

	for {
		line, err := m.reader.ReadString('\n')
		if strings.TrimSpace(line) != "" {
			return Decode(line)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, ErrNoInput
			}

			return nil, err
		}
	}
}

// Post sends offer to url and returns the answer from the response body.
func Post(ctx context.Context, client *http.Client, url string, offer *webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if client == nil {
		client = http.DefaultClient
	}

	payload, err := json.Marshal(offer)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %v: %v", ErrUnexpectedStatus, resp.StatusCode, resp.Status)
	}

	answer := &webrtc.SessionDescription{}
	if err := json.NewDecoder(resp.Body).Decode(answer); err != nil {
		return nil, fmt.Errorf("decode answer: %w", err)
	}

	return answer, nil
}

// Handler answers POSTed offers with accept.
func Handler(accept func(offer *webrtc.SessionDescription) (*webrtc.SessionDescription, error), onError func(error)) http.HandlerFunc {
	if onError == nil {
		onError = func(error) {}
	}

	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)

			return
		}

		offer := webrtc.SessionDescription{}
		if err := json.NewDecoder(req.Body).Decode(&offer); err != nil {
			onError(fmt.Errorf("decode offer: %w", err))
			w.WriteHeader(http.StatusBadRequest)

			return
		}

		answer, err := accept(&offer)
		if err != nil {
			onError(fmt.Errorf("accept offer: %w", err))
			w.WriteHeader(http.StatusBadRequest)

			return
		}

		payload, err := json.Marshal(answer)
		if err != nil {
			onError(fmt.Errorf("encode answer: %w", err))
			w.WriteHeader(http.StatusInternalServerError)

			return
		}
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write(payload); err != nil {
			onError(fmt.Errorf("write answer: %w", err))
		}
	}
}
