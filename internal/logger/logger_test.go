package logger

import (
	"context"
	"log/slog"
	"testing"

	"github.com/curatd/curatd/internal/config"
)

func TestNewHonorsConfiguredLevel(t *testing.T) {
	l, closer := New(config.Logging{Level: "warn", Service: "curatd-test"})
	defer closer.Close()

	ctx := context.Background()
	if l.Enabled(ctx, slog.LevelInfo) {
		t.Error("info should be filtered at warn level")
	}
	if !l.Enabled(ctx, slog.LevelWarn) {
		t.Error("warn should pass at warn level")
	}
	if !l.Enabled(ctx, slog.LevelError) {
		t.Error("error should pass at warn level")
	}
}

func TestNewSyncCloserIsNoop(t *testing.T) {
	_, closer := New(config.Logging{Level: "info", Service: "curatd-test"})
	if _, ok := closer.(nopCloser); !ok {
		t.Fatalf("sync config returned %T, want nopCloser", closer)
	}
	closer.Close()
	closer.Close()
}

func TestNewAsyncReturnsFlushingCloser(t *testing.T) {
	l, closer := New(config.Logging{Level: "info", Service: "curatd-test", Async: true})
	if _, ok := closer.(*AsyncHandler); !ok {
		t.Fatalf("async config returned %T, want *AsyncHandler", closer)
	}
	l.Info("drained on close")
	closer.Close()
}

func TestSetLevel(t *testing.T) {
	l, closer := New(config.Logging{Level: "info", Service: "curatd-test"})
	defer closer.Close()

	if l.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("debug should be disabled at info level")
	}

	SetLevel("debug")
	defer SetLevel("info")

	if !l.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug should be enabled after SetLevel")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"Debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{"error", slog.LevelError},
		{"fatal", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-123")
	if got := RequestID(ctx); got != "req-123" {
		t.Errorf("RequestID = %q, want req-123", got)
	}
}

func TestRequestIDMissing(t *testing.T) {
	if got := RequestID(context.Background()); got != "" {
		t.Errorf("RequestID on bare context = %q, want empty", got)
	}
}

func TestRequestIDOverwrite(t *testing.T) {
	ctx := WithRequestID(context.Background(), "outer")
	ctx = WithRequestID(ctx, "inner")
	if got := RequestID(ctx); got != "inner" {
		t.Errorf("RequestID = %q, want the innermost value", got)
	}
}
