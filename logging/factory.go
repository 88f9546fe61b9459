// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package logging builds the pion logger factory used by every component and
// provides the writers and formatters for packet dumps.
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pion/logging"
)

// ErrUnknownLogLevel is returned for a level name NewLoggerFactory does not know.
var ErrUnknownLogLevel = errors.New("unknown log level")

var logLevels = map[string]logging.LogLevel{ //nolint:gochecknoglobals
	"disable": logging.LogLevelDisabled,
	"error":   logging.LogLevelError,
	"warn":    logging.LogLevelWarn,
	"info":    logging.LogLevelInfo,
	"debug":   logging.LogLevelDebug,
	"trace":   logging.LogLevelTrace,
}

// ParseLevel maps a level name (case-insensitive) to a pion log level.
func ParseLevel(name string) (logging.LogLevel, error) {
	level, ok := logLevels[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return logging.LogLevelDisabled, fmt.Errorf("%w: %s", ErrUnknownLogLevel, name)
	}

	return level, nil
}

// NewLoggerFactory returns a factory logging at level to w (stdout if nil).
// Per-scope overrides are given as "scope=level".
func NewLoggerFactory(level string, w io.Writer, scopes ...string) (*logging.DefaultLoggerFactory, error) {
	defaultLevel, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	if w == nil {
		w = os.Stdout
	}

	loggerFactory := &logging.DefaultLoggerFactory{
		Writer:          w,
		DefaultLogLevel: defaultLevel,
		ScopeLevels:     make(map[string]logging.LogLevel),
	}
	for _, scope := range scopes {
		name, levelName, found := strings.Cut(scope, "=")
		if !found {
			return nil, fmt.Errorf("%w: %q", ErrUnknownLogLevel, scope)
		}
		scopeLevel, err := ParseLevel(levelName)
		if err != nil {
			return nil, err
		}
		loggerFactory.ScopeLevels[strings.TrimSpace(name)] = scopeLevel
	}

	return loggerFactory, nil
}
