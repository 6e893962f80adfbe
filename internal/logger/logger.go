// Package logger provides slog helpers for the app.
package logger

import (
	"log/slog"
	"os"
	"strings"

	"github.com/handsomefox/movie-catalog/internal/env"
)

// New returns a JSON logger with source locations in production and a text
// logger otherwise.
func New(level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if env.Current == env.Production {
		opts.AddSource = true
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// ParseLevel reads levels like "debug" or "WARN". Empty input means info.
func ParseLevel(raw string) (slog.Level, error) {
	var lvl slog.Level
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return slog.LevelInfo, nil
	}
	err := lvl.UnmarshalText([]byte(raw))
	return lvl, err
}

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String("err", "nil")
	}
	return slog.String("err", err.Error())
}
