// Package logging configures the process-wide slog logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config holds logging configuration options.
type Config struct {
	// Level is the minimum level written.
	Level slog.Level
	// JSON switches from text to JSON output.
	JSON bool
	// Output defaults to os.Stderr.
	Output io.Writer
}

// DefaultConfig returns text logging at the level named by LOG_LEVEL,
// or INFO when it is unset or unknown.
func DefaultConfig() Config {
	level := slog.LevelInfo
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		if parsed, err := ParseLevel(raw); err == nil {
			level = parsed
		}
	}
	return Config{Level: level, Output: os.Stderr}
}

// ParseLevel converts DEBUG, INFO, WARN or ERROR (any case) to a slog.Level
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

// Setup installs a logger built from cfg as the slog default and returns it
func Setup(cfg Config) *slog.Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: cfg.Level}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	} else {
		handler = slog.NewTextHandler(cfg.Output, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
