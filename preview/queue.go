// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package preview hands frames from the realtime path to slow local consumers
// such as a window or a PNG dump, without ever blocking the producer.
package preview

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pion/rtsp-bridge/frame"
)

// DefaultQueueSize is the number of frames buffered for a consumer.
const DefaultQueueSize = 5

// Static errors for err113 compliance.
var (
	ErrQueueClosed      = errors.New("queue closed")
	ErrInvalidQueueSize = errors.New("queue size must be positive")
)

// Queue is a bounded frame queue that drops the oldest frame when full.
type Queue struct {
	frames    chan frame.Frame
	closeChan chan struct{}
	closeOnce sync.Once

	pushMu  sync.Mutex
	dropped atomic.Uint64
}

// NewQueue creates a queue holding at most size frames.
func NewQueue(size int) (*Queue, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidQueueSize, size)
	}

	return &Queue{
		frames:    make(chan frame.Frame, size),
		closeChan: make(chan struct{}),
	}, nil
}

// Push adds f. It returns false when the queue is closed or an older frame had
// to be dropped to make room.
func (q *Queue) Push(f frame.Frame) bool {
	select {
	case <-q.closeChan:
		return false
	default:
	}

	// one producer at a time so drop-then-add cannot interleave
	q.pushMu.Lock()
	defer q.pushMu.Unlock()

	select {
	case q.frames <- f:
		return true
	default:
	}

	select {
	case <-q.frames:
		q.dropped.Add(1)
	default:
	}

	select {
	case q.frames <- f:
	default:
		q.dropped.Add(1)
	}

	return false
}

// Pop waits for the next frame. Frames queued before Close are still returned.
func (q *Queue) Pop(ctx context.Context) (frame.Frame, error) {
	select {
	case f := <-q.frames:
		return f, nil
	default:
	}

	select {
	case f := <-q.frames:
		return f, nil
	case <-q.closeChan:
		return frame.Frame{}, ErrQueueClosed
	case <-ctx.Done():
		return frame.Frame{}, ctx.Err()
	}
}

// Len returns the number of queued frames.
func (q *Queue) Len() int {
	return len(q.frames)
}

// Dropped returns how many frames were discarded because the consumer lagged.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}

// Close wakes up Pop and rejects further pushes.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.closeChan)
	})
}
