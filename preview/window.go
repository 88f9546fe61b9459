//go:build !js
// +build !js

// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package preview

import (
	"github.com/pion/rtsp-bridge/frame"
	"gocv.io/x/gocv"
)

// DefaultWindowName is the title of the preview window.
const DefaultWindowName = "Received WebRTC Stream"

const quitKey = 'q'

// Window shows frames in a desktop window. Pressing q stops it.
type Window struct {
	window *gocv.Window
}

// NewWindow opens a window titled name.
func NewWindow(name string) *Window {
	if name == "" {
		name = DefaultWindowName
	}

	return &Window{window: gocv.NewWindow(name)}
}

// Show draws f.
func (w *Window) Show(f frame.Frame) error {
	mat, err := toMat(f.Image)
	if err != nil {
		return err
	}
	defer func() { _ = mat.Close() }()

	w.window.IMShow(mat)

	return w.Idle()
}

// Idle pumps window events.
func (w *Window) Idle() error {
	if w.window.WaitKey(1)&0xFF == quitKey {
		return ErrQuit
	}

	return nil
}

// Close destroys the window.
func (w *Window) Close() error {
	return w.window.Close()
}
