// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dmui

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestTUILogHandlerSummary(t *testing.T) {
	handler := NewTUILogHandler(slog.LevelWarn)

	record := slog.NewRecord(time.Now(), slog.LevelWarn, "sync failed", 0)
	record.AddAttrs(slog.Int("attempt", 3))

	tests := []struct {
		name    string
		handler *TUILogHandler
		want    string
	}{
		{"bare", handler, "sync failed (attempt=3)"},
		{
			"with attrs",
			handler.WithAttrs([]slog.Attr{slog.String("user", "@alice:test.local")}).(*TUILogHandler),
			"sync failed (user=@alice:test.local, attempt=3)",
		},
		{
			"with group",
			handler.WithAttrs([]slog.Attr{slog.String("user", "@alice:test.local")}).WithGroup("feed").(*TUILogHandler),
			"sync failed (user=@alice:test.local, feed.attempt=3)",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := test.handler.summarize(record); got != test.want {
				t.Errorf("summary = %q, want %q", got, test.want)
			}
		})
	}

	plain := slog.NewRecord(time.Now(), slog.LevelError, "logout failed", 0)
	if got := handler.summarize(plain); got != "logout failed" {
		t.Errorf("summary without attributes = %q", got)
	}
}

func TestTUILogHandlerLevelAndProgram(t *testing.T) {
	handler := NewTUILogHandler(slog.LevelWarn)
	ctx := context.Background()

	if handler.Enabled(ctx, slog.LevelInfo) {
		t.Error("info enabled at warn level")
	}
	if !handler.Enabled(ctx, slog.LevelError) {
		t.Error("error not enabled at warn level")
	}

	// Without a program records are dropped.
	record := slog.NewRecord(time.Now(), slog.LevelWarn, "early", 0)
	if err := handler.Handle(ctx, record); err != nil {
		t.Errorf("Handle without a program: %v", err)
	}

	derived := handler.WithGroup("feed").(*TUILogHandler)
	if derived.program != handler.program {
		t.Error("derived handler does not share the program pointer")
	}
	if handler.WithGroup("") != slog.Handler(handler) {
		t.Error("empty group should return the handler unchanged")
	}
}

func TestTeeHandler(t *testing.T) {
	var verbose, quiet bytes.Buffer
	tee := NewTeeHandler(
		slog.NewTextHandler(&verbose, &slog.HandlerOptions{Level: slog.LevelDebug}),
		nil,
		slog.NewTextHandler(&quiet, &slog.HandlerOptions{Level: slog.LevelWarn}),
	)
	if len(tee.handlers) != 2 {
		t.Fatalf("tee holds %d handlers, want the 2 non-nil ones", len(tee.handlers))
	}
	if !tee.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug not enabled although one handler wants it")
	}

	logger := slog.New(tee).With("session", "alice")
	logger.Info("conversation opened")
	logger.WithGroup("feed").Warn("sync failed", "attempt", 2)

	if !strings.Contains(verbose.String(), "conversation opened") || !strings.Contains(verbose.String(), "session=alice") {
		t.Errorf("verbose handler output = %q", verbose.String())
	}
	if strings.Contains(quiet.String(), "conversation opened") {
		t.Error("info record reached the warn-level handler")
	}
	if !strings.Contains(quiet.String(), "sync failed") || !strings.Contains(quiet.String(), "feed.attempt=2") {
		t.Errorf("warn handler output = %q", quiet.String())
	}
}
