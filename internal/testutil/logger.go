// Package testutil provides shared helpers for HexMesh tests.
package testutil

import (
	"log/slog"
	"strings"
	"testing"
)

// NewTestLogger returns a debug-level logger that writes through
// t.Log(), so log lines only surface on failure or with -v.
func NewTestLogger(t testing.TB) *slog.Logger {
	t.Helper()
	w := &logWriter{t: t}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

type logWriter struct {
	t testing.TB
}

func (w *logWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	// slog lines arrive newline-terminated; t.Log adds its own.
	w.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
