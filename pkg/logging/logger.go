// Copyright (C) 2025 WunderGraph, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging provides structured logging for cosmo-previews.
//
// The logger is a thin wrapper around the standard library slog package,
// tuned for a single-shot CI invocation:
//
//   - stderr output by default, so stdout stays free for command output
//     that the hosting workflow may capture
//   - text format for humans reading workflow logs, JSON when the run
//     output is aggregated by a log collector
//   - child loggers via With() for per-run attributes (run_id, pr_number)
//
// # Basic Usage
//
//	logger := logging.Default()
//	logger.Info("publishing feature subgraph", "name", fsName)
//
// # Security Considerations
//
// The logger does not redact anything. Callers must not log credentials;
// log presence, not value:
//
//	logger.Info("auth", "api_key_present", apiKey != "")
package logging

import (
	"io"
	"log/slog"
	"os"
)

// =============================================================================
// Log Levels
// =============================================================================

// Level represents log severity. Levels follow the slog convention and are
// ordered Debug < Info < Warn < Error; setting a minimum level filters out
// everything below it.
type Level int

const (
	// LevelDebug is for development troubleshooting.
	LevelDebug Level = iota

	// LevelInfo is for normal operational messages.
	LevelInfo

	// LevelWarn is for potentially problematic situations that do not stop
	// the run.
	LevelWarn

	// LevelError is for operation failures. The run continues but the
	// specific operation did not succeed.
	LevelError
)

// String returns "DEBUG", "INFO", "WARN", "ERROR", or "UNKNOWN".
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// toSlogLevel bridges Level to the standard library.
func (l Level) toSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// =============================================================================
// Configuration
// =============================================================================

// Config configures Logger behavior. The zero value produces an Info-level
// text logger on stderr.
type Config struct {
	// Level sets the minimum log level. Default: LevelInfo.
	Level Level

	// Service identifies the component generating logs. When set it is
	// attached to every entry as the "service" attribute.
	Service string

	// JSON switches output to machine-parseable JSON objects instead of
	// human-readable text.
	JSON bool

	// Quiet discards all output. Useful in tests that exercise noisy
	// failure paths.
	Quiet bool

	// Output overrides the destination writer. Default: os.Stderr.
	// Primarily a test seam.
	Output io.Writer
}

// =============================================================================
// Logger
// =============================================================================

// Logger provides structured, leveled logging backed by slog.
// It is safe for concurrent use.
type Logger struct {
	slog *slog.Logger
}

// New creates a Logger from the given configuration.
func New(config Config) *Logger {
	out := config.Output
	if out == nil {
		out = os.Stderr
	}
	if config.Quiet {
		out = io.Discard
	}

	opts := &slog.HandlerOptions{
		Level: config.Level.toSlogLevel(),
	}

	var handler slog.Handler
	if config.JSON {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	if config.Service != "" {
		handler = handler.WithAttrs([]slog.Attr{
			slog.String("service", config.Service),
		})
	}

	return &Logger{slog: slog.New(handler)}
}

// Default returns an Info-level text logger on stderr with the
// "cosmo-previews" service attribute.
func Default() *Logger {
	return New(Config{
		Level:   LevelInfo,
		Service: "cosmo-previews",
	})
}

// Debug logs a message at Debug level with key-value attributes.
func (l *Logger) Debug(msg string, args ...any) {
	l.slog.Debug(msg, args...)
}

// Info logs a message at Info level with key-value attributes.
func (l *Logger) Info(msg string, args ...any) {
	l.slog.Info(msg, args...)
}

// Warn logs a message at Warn level with key-value attributes.
func (l *Logger) Warn(msg string, args ...any) {
	l.slog.Warn(msg, args...)
}

// Error logs a message at Error level with key-value attributes.
func (l *Logger) Error(msg string, args ...any) {
	l.slog.Error(msg, args...)
}

// With returns a child Logger that includes the given attributes on every
// entry. The parent logger is not modified.
//
// Example:
//
//	runLogger := logger.With("run_id", runID, "pr_number", prNumber)
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slog: l.slog.With(args...)}
}

// Slog exposes the underlying slog.Logger for features this wrapper does
// not surface.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}
