// Copyright (c) 2025 Precinct
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

const (
	// LogFileName is the log file inside the state directory.
	LogFileName = "precinct.log"
	// maxLogBytes triggers rotation when the log is opened.
	maxLogBytes = 1 << 20
	// logBackups is how many rotated files are kept.
	logBackups = 3
)

// Options selects where and how much to log.
type Options struct {
	Level string
	// Dir holds the log file. Empty disables file logging.
	Dir string
	// Console mirrors log lines to this writer in human form. It must never be
	// stdout, which carries the dialogue.
	Console io.Writer
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Setup builds the process logger. The returned closer flushes and closes
// the log file.
func Setup(opts Options) (zerolog.Logger, io.Closer, error) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.DurationFieldUnit = time.Millisecond

	var writers []io.Writer
	var closer io.Closer = nopCloser{}

	if opts.Dir != "" {
		f, err := openRotated(filepath.Join(opts.Dir, LogFileName))
		if err != nil {
			return zerolog.Nop(), closer, err
		}
		writers = append(writers, f)
		closer = f
	}
	if opts.Console != nil {
		writers = append(writers, zerolog.ConsoleWriter{Out: opts.Console, TimeFormat: time.Kitchen})
	}
	if len(writers) == 0 {
		return zerolog.Nop(), closer, nil
	}

	level := ParseLevel(opts.Level)
	ctx := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp()
	if level == zerolog.DebugLevel {
		ctx = ctx.Caller()
	}
	return ctx.Logger(), closer, nil
}

// openRotated opens path for appending, first shifting it to path.1 (and so
// on up to logBackups) when it has grown past maxLogBytes.
func openRotated(path string) (*os.File, error) {
	if st, err := os.Stat(path); err == nil && st.Size() > maxLogBytes {
		for i := logBackups - 1; i >= 1; i-- {
			_ = os.Rename(fmt.Sprintf("%s.%d", path, i), fmt.Sprintf("%s.%d", path, i+1))
		}
		if err := os.Rename(path, path+".1"); err != nil {
			return nil, fmt.Errorf("rotate log: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	return f, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
