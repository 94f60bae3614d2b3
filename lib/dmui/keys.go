// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dmui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the key bindings for both screens. Bindings that
// would collide with typing (q, j, k, n, /) only apply while the
// conversation list has focus.
type KeyMap struct {
	// Sign-in form.
	NextField     key.Binding
	PreviousField key.Binding
	ToggleMode    key.Binding // Switch between login and registration.
	Submit        key.Binding

	// Conversation list.
	Up              key.Binding
	Down            key.Binding
	Select          key.Binding
	FilterActivate  key.Binding
	NewConversation key.Binding
	AcceptInvite    key.Binding

	// Timeline scrolling, from the list or the compose box.
	PageUp   key.Binding
	PageDown key.Binding

	FocusToggle key.Binding // List and compose box.
	Cancel      key.Binding // Leave the filter, modal, or compose box.
	SignOut     key.Binding
	Quit        key.Binding
}

// DefaultKeyMap is the built-in key binding set. Vim-style navigation
// (j/k) alongside standard arrow keys.
var DefaultKeyMap = KeyMap{
	NextField: key.NewBinding(
		key.WithKeys("tab", "down"),
		key.WithHelp("Tab", "next field"),
	),
	PreviousField: key.NewBinding(
		key.WithKeys("shift+tab", "up"),
		key.WithHelp("S-Tab", "previous field"),
	),
	ToggleMode: key.NewBinding(
		key.WithKeys("ctrl+r"),
		key.WithHelp("C-r", "login/register"),
	),
	Submit: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("Enter", "submit"),
	),
	Up: key.NewBinding(
		key.WithKeys("k", "up"),
		key.WithHelp("k/↑", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("j", "down"),
		key.WithHelp("j/↓", "down"),
	),
	Select: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("Enter", "open"),
	),
	FilterActivate: key.NewBinding(
		key.WithKeys("/"),
		key.WithHelp("/", "filter"),
	),
	NewConversation: key.NewBinding(
		key.WithKeys("n"),
		key.WithHelp("n", "new"),
	),
	AcceptInvite: key.NewBinding(
		key.WithKeys("a"),
		key.WithHelp("a", "accept invitation"),
	),
	PageUp: key.NewBinding(
		key.WithKeys("pgup", "ctrl+u"),
		key.WithHelp("C-u", "scroll up"),
	),
	PageDown: key.NewBinding(
		key.WithKeys("pgdown", "ctrl+d"),
		key.WithHelp("C-d", "scroll down"),
	),
	FocusToggle: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("Tab", "switch pane"),
	),
	Cancel: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("Esc", "back"),
	),
	SignOut: key.NewBinding(
		key.WithKeys("ctrl+l"),
		key.WithHelp("C-l", "log out"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}
