// Package logging configures the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"
)

type Config struct {
	// Debug lowers the level to debug and adds source locations.
	Debug bool
	// JSON uses the JSON handler instead of text.
	JSON bool
	// File, when set, sends logs to a rotating file instead of stderr.
	File string
}

// Setup installs the default slog logger. It returns a close function for the
// log file, if any.
func Setup(cfg Config) (func() error, error) {
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}

	var w io.Writer = os.Stderr
	closeFn := func() error { return nil }
	if cfg.File != "" {
		rotating, err := NewRotatingFile(cfg.File)
		if err != nil {
			return nil, err
		}
		w = rotating
		closeFn = rotating.Close
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.Debug,
	}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	slog.SetDefault(slog.New(handler))
	return closeFn, nil
}
