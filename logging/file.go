// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package logging

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
)

const fileBufferSize = 4096

// GetLogFile opens a log destination. An empty name discards, "stdout" and
// "stderr" write to the process streams, anything else is created as a
// buffered file that is flushed on Close.
func GetLogFile(file string) (io.WriteCloser, error) {
	switch file {
	case "":
		return nopCloser{io.Discard}, nil
	case "stdout":
		return nopCloser{os.Stdout}, nil
	case "stderr":
		return nopCloser{os.Stderr}, nil
	}

	fd, err := os.Create(filepath.Clean(file))
	if err != nil {
		return nil, err
	}

	return &fileCloser{
		f:   fd,
		buf: bufio.NewWriterSize(fd, fileBufferSize),
	}, nil
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

type fileCloser struct {
	f   *os.File
	buf *bufio.Writer
}

func (f *fileCloser) Write(p []byte) (int, error) {
	return f.buf.Write(p)
}

func (f *fileCloser) Close() error {
	if err := f.buf.Flush(); err != nil {
		_ = f.f.Close()

		return err
	}

	return f.f.Close()
}
