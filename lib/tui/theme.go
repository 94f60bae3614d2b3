// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tui

import "github.com/charmbracelet/lipgloss"

// Theme defines the color palette for the client's terminal screens.
// All colors use lipgloss ANSI 256-color codes for broad terminal
// compatibility.
type Theme struct {
	// Text colors.
	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	// Selected row in the conversation list.
	SelectedBackground lipgloss.Color
	SelectedForeground lipgloss.Color

	// Sender names in the timeline. Own messages and the counterpart's
	// messages are told apart by color as well as alignment.
	OwnSender   lipgloss.Color
	OtherSender lipgloss.Color

	// PendingText colors a local echo that the server has not
	// confirmed yet.
	PendingText lipgloss.Color

	// Status bar severities.
	ErrorText lipgloss.Color
	WarnText  lipgloss.Color
	InfoText  lipgloss.Color

	// UI chrome.
	HeaderForeground lipgloss.Color
	BorderColor      lipgloss.Color
	FocusAccent      lipgloss.Color // Border and scrollbar thumb of the focused pane.
	HelpText         lipgloss.Color

	// Filter match highlighting in the conversation list.
	SearchHighlightBackground lipgloss.Color

	// Links and Matrix identifiers in message bodies.
	LinkForeground lipgloss.Color

	// Modal boxes (new conversation prompt).
	ModalForeground lipgloss.Color
	ModalBackground lipgloss.Color
}

// SenderColor returns the color used for a message sender's name.
func (theme Theme) SenderColor(own bool) lipgloss.Color {
	if own {
		return theme.OwnSender
	}
	return theme.OtherSender
}

// DefaultTheme is the built-in dark-terminal color scheme. Designed for
// 256-color terminals with a dark background (the common case for
// development environments and tmux sessions).
var DefaultTheme = Theme{
	NormalText: lipgloss.Color("252"),
	FaintText:  lipgloss.Color("245"),

	SelectedBackground: lipgloss.Color("236"),
	SelectedForeground: lipgloss.Color("255"),

	OwnSender:   lipgloss.Color("114"), // green
	OtherSender: lipgloss.Color("75"),  // blue
	PendingText: lipgloss.Color("240"), // dim gray

	ErrorText: lipgloss.Color("196"), // red
	WarnText:  lipgloss.Color("220"), // amber
	InfoText:  lipgloss.Color("245"),

	HeaderForeground: lipgloss.Color("255"),
	BorderColor:      lipgloss.Color("240"),
	FocusAccent:      lipgloss.Color("220"),
	HelpText:         lipgloss.Color("241"),

	SearchHighlightBackground: lipgloss.Color("58"), // dark amber

	LinkForeground: lipgloss.Color("75"),

	ModalForeground: lipgloss.Color("252"),
	ModalBackground: lipgloss.Color("237"),
}
