//go:build !js
// +build !js

// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package preview

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pion/logging"
	"github.com/pion/rtsp-bridge/frame"
	"gocv.io/x/gocv"
)

// DefaultMaxSaved is how many frames a Saver keeps.
const DefaultMaxSaved = 20

// Static errors for err113 compliance.
var (
	ErrEmptySaveDir = errors.New("save directory is empty")
	ErrWriteFrame   = errors.New("failed to write frame")
)

// Saver writes the first frames it sees as PNG files, for hosts without a display.
type Saver struct {
	dir   string
	max   int
	saved int
	log   logging.LeveledLogger
}

// NewSaver stores up to maxSaved frames in dir. A non-positive maxSaved uses DefaultMaxSaved.
func NewSaver(dir string, maxSaved int, loggerFactory logging.LoggerFactory) (*Saver, error) {
	if dir == "" {
		return nil, ErrEmptySaveDir
	}
	if maxSaved <= 0 {
		maxSaved = DefaultMaxSaved
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	if loggerFactory == nil {
		loggerFactory = logging.NewDefaultLoggerFactory()
	}

	return &Saver{dir: dir, max: maxSaved, log: loggerFactory.NewLogger("preview")}, nil
}

// Show writes f as decoded_frame_NNNNN.png until the limit is reached.
func (s *Saver) Show(f frame.Frame) error {
	if s.saved >= s.max {
		return nil
	}

	mat, err := toMat(f.Image)
	if err != nil {
		return err
	}
	defer func() { _ = mat.Close() }()

	name := filepath.Join(s.dir, fmt.Sprintf("decoded_frame_%05d.png", s.saved))
	if ok := gocv.IMWrite(name, mat); !ok {
		return fmt.Errorf("%w: %s", ErrWriteFrame, name)
	}
	s.saved++

	if s.saved == s.max {
		s.log.Infof("Saved %d frames to %s, not saving more", s.saved, s.dir)
	}

	return nil
}

// Idle does nothing.
func (s *Saver) Idle() error {
	return nil
}

// Saved returns the number of files written.
func (s *Saver) Saved() int {
	return s.saved
}

// Close does nothing; files are complete once written.
func (s *Saver) Close() error {
	return nil
}
