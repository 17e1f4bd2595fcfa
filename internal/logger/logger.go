// Package logger configures the process-wide slog logger.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
)

var (
	once   sync.Once
	logger *slog.Logger
)

type Options struct {
	Level      slog.Leveler // default slog.LevelInfo
	Writer     io.Writer    // default os.Stderr
	TimeFormat string       // default time.Kitchen
	NoColor    bool
}

// Init installs a tint handler as the default logger. Only the first call
// has any effect.
func Init(opts Options) *slog.Logger {
	once.Do(func() {
		logger = New(opts)
		slog.SetDefault(logger)
	})
	return logger
}

// New builds a logger without touching the default.
func New(opts Options) *slog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	if opts.Level == nil {
		opts.Level = slog.LevelInfo
	}
	if opts.TimeFormat == "" {
		opts.TimeFormat = time.Kitchen
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      opts.Level,
		TimeFormat: opts.TimeFormat,
		NoColor:    opts.NoColor,
	}))
}

// L returns the logger installed by Init, or slog.Default before that.
func L() *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}

// ParseLevel maps debug, info, warn and error to slog levels. Anything else
// is info.
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
