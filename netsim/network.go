// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

//go:build !js
// +build !js

// Package netsim runs the bridge and a viewer on a simulated network whose
// capacity follows a schedule, to watch how the stream survives degraded links.
package netsim

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/pion/logging"
	"github.com/pion/transport/v3/vnet"
)

const (
	initCapacity = 1 * vnet.MBit
	initMaxBurst = 80 * vnet.KBit
)

// ErrNoIPAvailable is returned when a side has handed out all its addresses.
var ErrNoIPAvailable = errors.New("no IP available")

// side is one NATed subnet behind a token bucket filter.
type side struct {
	router *vnet.Router
	tbf    *vnet.TokenBucketFilter

	mu        sync.Mutex
	staticIPs []string
	used      int
}

// nextIPMapping returns the next unused private and public address.
func (s *side) nextIPMapping() (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.used >= len(s.staticIPs) {
		return "", "", ErrNoIPAvailable
	}
	mapping := strings.Split(s.staticIPs[s.used], "/")
	s.used++

	return mapping[1], mapping[0], nil
}

func (s *side) newNet() (*vnet.Net, string, error) {
	privateIP, publicIP, err := s.nextIPMapping()
	if err != nil {
		return nil, "", err
	}

	network, err := vnet.NewNet(&vnet.NetConfig{
		StaticIPs: []string{privateIP},
	})
	if err != nil {
		return nil, "", err
	}
	if err = s.router.AddNet(network); err != nil {
		return nil, "", err
	}

	return network, publicIP, nil
}

// Network is a WAN with a sender subnet on the left and a viewer subnet on the right.
type Network struct {
	wan   *vnet.Router
	left  *side
	right *side
}

// NewNetwork builds and starts the network. Each side has room for two peers.
func NewNetwork(loggerFactory logging.LoggerFactory) (*Network, error) {
	if loggerFactory == nil {
		loggerFactory = logging.NewDefaultLoggerFactory()
	}

	wan, err := vnet.NewRouter(&vnet.RouterConfig{
		CIDR:          "0.0.0.0/0",
		LoggerFactory: loggerFactory,
	})
	if err != nil {
		return nil, err
	}

	left, err := newSide(wan, loggerFactory, "10.0.1.0/24", "10.0.1.1/10.0.1.101", "10.0.1.2/10.0.1.102")
	if err != nil {
		return nil, fmt.Errorf("left: %w", err)
	}
	right, err := newSide(wan, loggerFactory, "10.0.2.0/24", "10.0.2.1/10.0.2.101", "10.0.2.2/10.0.2.102")
	if err != nil {
		return nil, fmt.Errorf("right: %w", err)
	}

	if err := wan.Start(); err != nil {
		return nil, err
	}

	return &Network{wan: wan, left: left, right: right}, nil
}

func newSide(wan *vnet.Router, loggerFactory logging.LoggerFactory, cidr string, staticIPs ...string) (*side, error) {
	router, err := vnet.NewRouter(&vnet.RouterConfig{
		CIDR:          cidr,
		StaticIPs:     staticIPs,
		LoggerFactory: loggerFactory,
		NATType: &vnet.NATType{
			Mode: vnet.NATModeNAT1To1,
		},
	})
	if err != nil {
		return nil, err
	}

	tbf, err := vnet.NewTokenBucketFilter(router, vnet.TBFRate(initCapacity), vnet.TBFMaxBurst(initMaxBurst))
	if err != nil {
		return nil, err
	}
	if err = wan.AddNet(tbf); err != nil {
		return nil, err
	}
	if err = wan.AddChildRouter(router); err != nil {
		return nil, err
	}

	return &side{router: router, tbf: tbf, staticIPs: staticIPs}, nil
}

// LeftNet returns a new interface on the sender side and its public IP.
func (n *Network) LeftNet() (*vnet.Net, string, error) {
	return n.left.newNet()
}

// RightNet returns a new interface on the viewer side and its public IP.
func (n *Network) RightNet() (*vnet.Net, string, error) {
	return n.right.newNet()
}

// SetCapacity shapes both directions to capacity bps with the given burst in bits.
func (n *Network) SetCapacity(capacity, maxBurst int) {
	n.left.tbf.Set(vnet.TBFRate(capacity), vnet.TBFMaxBurst(maxBurst))
	n.right.tbf.Set(vnet.TBFRate(capacity), vnet.TBFMaxBurst(maxBurst))
}

// Close stops the network.
func (n *Network) Close() error {
	return n.wan.Stop()
}
