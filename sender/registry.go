// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package sender

import (
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

// Registry tracks the open peer connections of a process so they can be
// closed together on shutdown.
type Registry struct {
	mu    sync.Mutex
	peers map[string]*webrtc.PeerConnection
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{peers: make(map[string]*webrtc.PeerConnection)}
}

// Add records pc and returns the id it was stored under.
func (r *Registry) Add(pc *webrtc.PeerConnection) string {
	id := uuid.NewString()

	r.mu.Lock()
	r.peers[id] = pc
	r.mu.Unlock()

	return id
}

// Remove forgets id. Unknown ids are ignored.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.peers, id)
	r.mu.Unlock()
}

// Len returns the number of registered peer connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.peers)
}

// IDs returns the registered ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	ids := make([]string, 0, len(r.peers))
	for id := range r.peers {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	sort.Strings(ids)

	return ids
}

// CloseAll closes and forgets every registered peer connection.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	peers := r.peers
	r.peers = make(map[string]*webrtc.PeerConnection)
	r.mu.Unlock()

	var errs []error
	for _, pc := range peers {
		if pc == nil {
			continue
		}
		if err := pc.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
