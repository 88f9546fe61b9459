//go:build !js
// +build !js

// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package sender

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/pion/rtsp-bridge/signaling"
)

// SignalHTTP posts the offer to http://addr/route and applies the answer.
func (s *RTCSender) SignalHTTP(ctx context.Context, addr, route string) error {
	offer, err := s.CreateOffer()
	if err != nil {
		return err
	}

	url := fmt.Sprintf("http://%s/%s", addr, strings.TrimPrefix(route, "/"))
	s.log.Infof("Connecting to '%v'", url)

	answer, err := signaling.Post(ctx, http.DefaultClient, url, offer)
	if err != nil {
		return err
	}

	return s.AcceptAnswer(answer)
}

// SignalManual prints the offer and waits for the answer to be pasted.
func (s *RTCSender) SignalManual(manual *signaling.Manual) error {
	offer, err := s.CreateOffer()
	if err != nil {
		return err
	}

	answer, err := manual.Exchange(offer,
		"SDP offer (copy the whole line below):",
		"Paste the SDP answer from the receiver and press Enter:")
	if err != nil {
		return err
	}

	return s.AcceptAnswer(answer)
}
