// Package logging builds the structured logger used across the runtime from
// its configuration.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/najoast/nplmini/config"
)

// Level converts a configured level to a slog level.
func Level(level config.LogLevel) (slog.Level, error) {
	switch config.LogLevel(strings.ToLower(string(level))) {
	case config.LogLevelDebug:
		return slog.LevelDebug, nil
	case config.LogLevelInfo, "":
		return slog.LevelInfo, nil
	case config.LogLevelWarn:
		return slog.LevelWarn, nil
	case config.LogLevelError:
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%w: %q", config.ErrInvalidLogLevel, level)
	}
}

// New creates a logger from cfg. The returned closer releases the output
// file, if any; it is never nil.
func New(cfg config.LogConfig) (*slog.Logger, io.Closer, error) {
	level, err := Level(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	out, closer, err := openOutput(cfg.Output)
	if err != nil {
		return nil, nil, err
	}

	return NewWithWriter(out, cfg.Format, level, cfg.Source), closer, nil
}

// NewWithWriter creates a logger writing to w in the given format ("json"
// or "text").
func NewWithWriter(w io.Writer, format string, level slog.Level, source bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level, AddSource: source}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func openOutput(output string) (io.Writer, io.Closer, error) {
	switch output {
	case "", "stderr":
		return os.Stderr, nopCloser{}, nil
	case "stdout":
		return os.Stdout, nopCloser{}, nil
	}

	f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log output %s: %w", output, err)
	}
	return f, f, nil
}
