// Package logger provides structured logging setup for curatd.
package logger

import (
	"log/slog"
	"os"
	"strings"

	"github.com/curatd/curatd/internal/config"
)

// levelVar gates every handler created by New, so the level can be retuned
// at runtime without rebuilding the handler chain.
var levelVar = new(slog.LevelVar)

// New creates a *slog.Logger from the given Logging config.
// Output is JSON to stdout with a "service" attribute on every record.
// With cfg.Async the handler buffers records and drains them on worker
// goroutines; the returned Closer flushes them on shutdown.
func New(cfg config.Logging) (*slog.Logger, Closer) {
	levelVar.Set(parseLevel(cfg.Level))

	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: levelVar,
	})

	closer := Closer(nopCloser{})
	if cfg.Async {
		buffer := cfg.AsyncBuffer
		if buffer <= 0 {
			buffer = 1024
		}
		workers := cfg.AsyncWorkers
		if workers <= 0 {
			workers = 2
		}
		ah := NewAsyncHandler(handler, buffer, workers)
		handler = ah
		closer = ah
	}

	return slog.New(handler).With("service", cfg.Service), closer
}

// SetLevel changes the minimum level of every logger created by New.
// Unknown names fall back to info.
func SetLevel(s string) {
	levelVar.Set(parseLevel(s))
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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
