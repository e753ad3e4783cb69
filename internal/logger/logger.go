// Package logger centralizes slog setup so every module logs with the same
// level and format; both are controlled through environment variables.
package logger

import (
	"log/slog"
	"os"
	"strings"
)

// Process-wide default logger, reused to keep output consistent.
var defaultLogger *slog.Logger

// Setup initializes the default logger.
// LOG_LEVEL selects the level (debug/info/warn/error), LOG_FORMAT=json
// switches to JSON output. Output goes to standard error only; file handles
// and external aggregation are not managed here.
func Setup() *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT"))
	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	} else {
		h = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	}
	defaultLogger = slog.New(h)
	return defaultLogger
}

// L returns the default logger, initializing it on first use.
func L() *slog.Logger {
	if defaultLogger == nil {
		return Setup()
	}
	return defaultLogger
}
