// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dmui

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// logRecordMsg delivers a slog record to the model for display in the
// status bar.
type logRecordMsg struct {
	Summary string
	Level   slog.Level
}

// statusFadeDelay is how long a status message stays visible before the
// status bar falls back to the keyboard help line.
const statusFadeDelay = 5 * time.Second

// TUILogHandler is a slog.Handler that routes log records into a
// bubbletea program as messages, so warnings from the live feed and the
// core library surface in the status bar instead of corrupting the
// screen. Records below the configured level are dropped.
//
// Call SetProgram once the tea.Program exists. Records arriving before
// that are dropped. Handlers derived via WithAttrs/WithGroup share the
// program pointer, so one SetProgram call reaches all of them.
type TUILogHandler struct {
	level   slog.Leveler
	program *atomic.Pointer[tea.Program]
	attrs   []slog.Attr
	groups  []string
}

// NewTUILogHandler creates a handler that delivers records at or above
// level to the bubbletea program.
func NewTUILogHandler(level slog.Leveler) *TUILogHandler {
	return &TUILogHandler{
		level:   level,
		program: &atomic.Pointer[tea.Program]{},
	}
}

// SetProgram sets the program that receives log messages. Safe to call
// from any goroutine.
func (handler *TUILogHandler) SetProgram(program *tea.Program) {
	handler.program.Store(program)
}

// Enabled reports whether the handler is interested in records at the
// given level.
func (handler *TUILogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= handler.level.Level()
}

// Handle formats the record as "message (key=value, ...)" and sends it
// to the program.
func (handler *TUILogHandler) Handle(_ context.Context, record slog.Record) error {
	program := handler.program.Load()
	if program == nil {
		return nil
	}
	program.Send(logRecordMsg{
		Summary: handler.summarize(record),
		Level:   record.Level,
	})
	return nil
}

func (handler *TUILogHandler) summarize(record slog.Record) string {
	prefix := ""
	if len(handler.groups) > 0 {
		prefix = strings.Join(handler.groups, ".") + "."
	}

	var attrParts []string
	for _, attr := range handler.attrs {
		attrParts = append(attrParts, fmt.Sprintf("%s=%s", attr.Key, attr.Value))
	}
	record.Attrs(func(attr slog.Attr) bool {
		attrParts = append(attrParts, fmt.Sprintf("%s%s=%s", prefix, attr.Key, attr.Value))
		return true
	})

	if len(attrParts) == 0 {
		return record.Message
	}
	return record.Message + " (" + strings.Join(attrParts, ", ") + ")"
}

// WithAttrs returns a new handler with the given attributes appended.
func (handler *TUILogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	prefix := ""
	if len(handler.groups) > 0 {
		prefix = strings.Join(handler.groups, ".") + "."
	}
	combined := slices.Clone(handler.attrs)
	for _, attr := range attrs {
		combined = append(combined, slog.Attr{Key: prefix + attr.Key, Value: attr.Value})
	}
	return &TUILogHandler{
		level:   handler.level,
		program: handler.program,
		attrs:   combined,
		groups:  slices.Clone(handler.groups),
	}
}

// WithGroup returns a new handler that qualifies later attribute keys
// with name.
func (handler *TUILogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return handler
	}
	return &TUILogHandler{
		level:   handler.level,
		program: handler.program,
		attrs:   slices.Clone(handler.attrs),
		groups:  append(slices.Clone(handler.groups), name),
	}
}

// TeeHandler fans records out to several handlers, such as the status
// bar and a log file.
type TeeHandler struct {
	handlers []slog.Handler
}

// NewTeeHandler returns a handler that forwards to every non-nil handler.
func NewTeeHandler(handlers ...slog.Handler) *TeeHandler {
	tee := &TeeHandler{}
	for _, handler := range handlers {
		if handler != nil {
			tee.handlers = append(tee.handlers, handler)
		}
	}
	return tee
}

// Enabled reports whether any wrapped handler wants the level.
func (tee *TeeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range tee.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle forwards the record to each wrapped handler that wants it and
// returns the first error.
func (tee *TeeHandler) Handle(ctx context.Context, record slog.Record) error {
	var first error
	for _, handler := range tee.handlers {
		if !handler.Enabled(ctx, record.Level) {
			continue
		}
		if err := handler.Handle(ctx, record.Clone()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// WithAttrs applies the attributes to every wrapped handler.
func (tee *TeeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	derived := &TeeHandler{handlers: make([]slog.Handler, len(tee.handlers))}
	for index, handler := range tee.handlers {
		derived.handlers[index] = handler.WithAttrs(attrs)
	}
	return derived
}

// WithGroup applies the group to every wrapped handler.
func (tee *TeeHandler) WithGroup(name string) slog.Handler {
	derived := &TeeHandler{handlers: make([]slog.Handler, len(tee.handlers))}
	for index, handler := range tee.handlers {
		derived.handlers[index] = handler.WithGroup(name)
	}
	return derived
}
