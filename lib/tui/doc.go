// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package tui provides the terminal building blocks shared by the
// direct-message client's screens: the color theme, a scrollbar for
// scrollable panes, fuzzy matching for list filters, and splicing of
// modal boxes over a rendered view.
//
// The package holds no bubbletea model of its own. Screens in
// lib/dmui own their state and layout and call into these helpers
// while rendering.
package tui
