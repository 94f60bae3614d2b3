// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package dmui is the terminal user interface of the direct-message
// client, built on bubbletea. It has two screens: a sign-in form
// (login or registration) and the chat screen, which shows the
// conversation list, the selected conversation's timeline, and a
// compose box.
//
// The model drives the core components in lib/dm. Every network call
// runs as a tea.Cmd whose result message carries the session (and
// conversation) it was issued for; handlers drop results that no
// longer match what is on screen, so a reply that arrives after the
// user logged out or switched conversations never leaks into the view.
package dmui
