package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects where and how verbosely log records are written.
type Options struct {
	// File is the path of a size-rotated log file. Empty means Output.
	File       string
	Level      string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	// Output defaults to stdout.
	Output io.Writer
}

// ParseLevel maps "debug", "info", "warn" and "error" to slog levels.
// Unknown values fall back to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a JSON SlogLogger. When opts.File is set the output goes through
// lumberjack, and the returned closer must be closed on shutdown.
func New(opts Options) (*SlogLogger, io.Closer) {
	var w io.Writer = os.Stdout
	if opts.Output != nil {
		w = opts.Output
	}
	var closer io.Closer = nopCloser{}

	if opts.File != "" {
		lj := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		}
		w, closer = lj, lj
	}

	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(opts.Level), ReplaceAttr: Redact})
	return NewSlogLogger(slog.New(h)), closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
