// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

//go:build !js
// +build !js

package netsim

import (
	"context"
	"errors"
	"fmt"

	"github.com/pion/logging"
	"github.com/pion/rtsp-bridge/receiver"
	"github.com/pion/rtsp-bridge/sender"
)

// Flow is one bridge sender connected to one viewer across a Network.
type Flow struct {
	Sender   *sender.RTCSender
	Receiver *receiver.Receiver
}

// NewFlow negotiates a sender on the left side with a receiver on the right side.
// senderOpts and receiverOpts are applied after the network options.
func NewFlow(
	network *Network,
	loggerFactory logging.LoggerFactory,
	supplier sender.FrameSupplier,
	senderOpts []sender.Option,
	receiverOpts []receiver.Option,
) (*Flow, error) {
	leftNet, leftIP, err := network.LeftNet()
	if err != nil {
		return nil, fmt.Errorf("get left net: %w", err)
	}
	rightNet, rightIP, err := network.RightNet()
	if err != nil {
		return nil, fmt.Errorf("get right net: %w", err)
	}

	snd, err := sender.NewRTCSender(supplier, append([]sender.Option{
		sender.SetLoggerFactory(loggerFactory),
		sender.SetVNet(leftNet, []string{leftIP}),
		sender.DefaultInterceptors(),
	}, senderOpts...)...)
	if err != nil {
		return nil, fmt.Errorf("new sender: %w", err)
	}

	rcv, err := receiver.NewReceiver(append([]receiver.Option{
		receiver.SetLoggerFactory(loggerFactory),
		receiver.SetVNet(rightNet, []string{rightIP}),
		receiver.DefaultInterceptors(),
	}, receiverOpts...)...)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("new receiver: %w", err), snd.Close())
	}

	flow := &Flow{Sender: snd, Receiver: rcv}
	if err := flow.negotiate(); err != nil {
		return nil, errors.Join(err, flow.Close())
	}

	return flow, nil
}

func (f *Flow) negotiate() error {
	if err := f.Sender.SetupPeerConnection(); err != nil {
		return fmt.Errorf("sender setup peer connection: %w", err)
	}
	if err := f.Receiver.SetupPeerConnection(); err != nil {
		return fmt.Errorf("receiver setup peer connection: %w", err)
	}

	offer, err := f.Sender.CreateOffer()
	if err != nil {
		return fmt.Errorf("sender create offer: %w", err)
	}
	answer, err := f.Receiver.AcceptOffer(offer)
	if err != nil {
		return fmt.Errorf("receiver accept offer: %w", err)
	}
	if err := f.Sender.AcceptAnswer(answer); err != nil {
		return fmt.Errorf("sender accept answer: %w", err)
	}

	return nil
}

// Start runs the sender until ctx is done.
func (f *Flow) Start(ctx context.Context) error {
	return f.Sender.Start(ctx)
}

// Close stops the flow and cleans up all resources.
func (f *Flow) Close() error {
	var errs []error
	if err := f.Receiver.Close(); err != nil {
		errs = append(errs, fmt.Errorf("receiver close: %w", err))
	}
	if err := f.Sender.Close(); err != nil {
		errs = append(errs, fmt.Errorf("sender close: %w", err))
	}

	return errors.Join(errs...)
}
