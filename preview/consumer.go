// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package preview

import (
	"context"
	"errors"
	"time"

	"github.com/pion/logging"
	"github.com/pion/rtsp-bridge/frame"
)

// ErrQuit is returned by a Consumer when the user asked to stop.
var ErrQuit = errors.New("preview quit requested")

const (
	popTimeout      = 100 * time.Millisecond
	showLogInterval = 50
)

// Consumer shows or stores frames. Show may be slow.
type Consumer interface {
	Show(f frame.Frame) error
	// Idle runs when no frame arrived for a while, e.g. to pump window events.
	Idle() error
	Close() error
}

// Run feeds frames from queue to consumer until ctx is done, the queue is
// closed or the consumer returns ErrQuit. Other consumer errors are logged.
func Run(ctx context.Context, queue *Queue, consumer Consumer, log logging.LeveledLogger) error {
	defer func() {
		if err := consumer.Close(); err != nil {
			log.Warnf("Failed to close preview: %v", err)
		}
	}()

	shown := 0
	for {
		popCtx, cancel := context.WithTimeout(ctx, popTimeout)
		f, err := queue.Pop(popCtx)
		cancel()

		switch {
		case errors.Is(err, ErrQueueClosed):
			log.Infof("Preview exiting after %d frames", shown)

			return nil
		case ctx.Err() != nil:
			log.Infof("Preview exiting after %d frames", shown)

			return nil
		case errors.Is(err, context.DeadlineExceeded):
			err = consumer.Idle()
		case err == nil:
			err = consumer.Show(f)
			if err == nil {
				shown++
				if shown == 1 {
					log.Infof("First frame shown (%dx%d)", f.Width, f.Height)
				} else if shown%showLogInterval == 0 {
					log.Debugf("Shown %d frames, %d dropped", shown, queue.Dropped())
				}
			}
		}

		if errors.Is(err, ErrQuit) {
			log.Infof("Preview stopped by user after %d frames", shown)

			return ErrQuit
		}
		if err != nil {
			log.Warnf("Preview error: %v", err)
		}
	}
}
