// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dmui

import (
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/junegunn/fzf/src/util"

	"github.com/bureau-foundation/bureau-dm/lib/clock"
	"github.com/bureau-foundation/bureau-dm/lib/dm"
	"github.com/bureau-foundation/bureau-dm/lib/ref"
	"github.com/bureau-foundation/bureau-dm/lib/tui"
)

// Screen identifies which top-level screen is showing.
type Screen int

const (
	// ScreenSignIn is the login/registration form.
	ScreenSignIn Screen = iota
	// ScreenChat is the conversation list, timeline, and compose box.
	ScreenChat
)

// FocusRegion identifies which part of the chat screen receives
// keystrokes.
type FocusRegion int

const (
	// FocusList means navigation keys move the conversation cursor.
	FocusList FocusRegion = iota
	// FocusCompose means keystrokes edit the message being written.
	FocusCompose
	// FocusFilter means keystrokes go to the conversation filter.
	FocusFilter
	// FocusNewConversation means the new-conversation prompt is open.
	// All input routes to it until it is submitted or dismissed.
	FocusNewConversation
)

const defaultRequestTimeout = 30 * time.Second

// Services are the core components the screens drive.
type Services struct {
	Manager      *dm.Manager
	Directory    *dm.Directory
	Synchronizer *dm.Synchronizer
	Coordinator  *dm.Coordinator
}

// Config configures a Model.
type Config struct {
	Services

	// ServerAddress is the homeserver the sign-in form targets.
	ServerAddress string

	// Clock drives relative activity times in the conversation list.
	// Nil means the real clock.
	Clock clock.Clock

	// RequestTimeout bounds each network operation started from the
	// UI. Zero means 30 seconds.
	RequestTimeout time.Duration
}

// statusLine is a transient message shown in place of the help line.
type statusLine struct {
	text   string
	level  slog.Level
	serial int
}

// listedConversation is a conversation that passed the filter, with the
// rune positions of its label that matched.
type listedConversation struct {
	conversation dm.Conversation
	label        string
	positions    []int
}

// Model is the top-level bubbletea model for the client.
type Model struct {
	services       Services
	serverAddress  string
	clock          clock.Clock
	requestTimeout time.Duration
	theme          tui.Theme
	keys           KeyMap

	// Terminal dimensions (set by WindowSizeMsg).
	width  int
	height int
	ready  bool

	screen Screen
	form   signInForm

	// Chat screen state. session is nil on the sign-in screen.
	session       *dm.Session
	focus         FocusRegion
	conversations []dm.Conversation
	listed        []listedConversation
	cursor        int
	scrollOffset  int
	filter        textinput.Model
	slab          *util.Slab

	// selected is the open conversation. It may be absent from the
	// list: a conversation just created is selected before the
	// counterpart joins.
	selected ref.RoomID
	timeline []dm.MessageEvent
	viewport viewport.Model
	compose  textinput.Model
	sending  bool

	// invites are direct-conversation invitations awaiting acceptance;
	// the list pane offers the first one.
	invites   []dm.Invite
	accepting bool

	modal *newConversationModal

	status statusLine
}

// NewModel creates the model on the sign-in screen.
func NewModel(config Config) Model {
	modelClock := config.Clock
	if modelClock == nil {
		modelClock = clock.Real()
	}
	timeout := config.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	filter := textinput.New()
	filter.Prompt = "/ "
	filter.Placeholder = "filter conversations"

	compose := textinput.New()
	compose.Prompt = "> "
	compose.Placeholder = "Write a message"
	compose.CharLimit = 0

	return Model{
		services:       config.Services,
		serverAddress:  config.ServerAddress,
		clock:          modelClock,
		requestTimeout: timeout,
		theme:          tui.DefaultTheme,
		keys:           DefaultKeyMap,
		screen:         ScreenSignIn,
		form:           newSignInForm(),
		filter:         filter,
		slab:           tui.NewSlab(),
		viewport:       viewport.New(0, 0),
		compose:        compose,
	}
}

// Screen returns the screen currently showing.
func (model Model) Screen() Screen {
	return model.screen
}

// Init implements tea.Model.
func (model Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model. Keyboard input routes by screen and
// focus; results of background operations are checked against the
// current session before they touch the view.
func (model Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.KeyMsg:
		if model.screen == ScreenSignIn {
			return model.handleSignInKeys(message)
		}
		return model.handleChatKeys(message)

	case tea.WindowSizeMsg:
		model.width = message.Width
		model.height = message.Height
		model.ready = true
		model.updateLayout()
		return model, nil

	case sessionBegunMsg:
		return model.handleSessionBegun(message)

	case conversationsMsg:
		return model.handleConversations(message)

	case timelineMsg:
		return model.handleTimeline(message)

	case sentMsg:
		return model.handleSent(message)

	case startedMsg:
		return model.handleStarted(message)

	case acceptedMsg:
		return model.handleAccepted(message)

	case feedChangedMsg:
		return model.handleFeedChanged(message)

	case feedStoppedMsg:
		if !model.isCurrent(message.session) {
			return model, nil
		}
		text := "Live updates stopped"
		if message.err != nil {
			text += ": " + message.err.Error()
		}
		return model, model.setStatus(slog.LevelError, text)

	case logRecordMsg:
		return model, model.setStatus(message.Level, message.Summary)

	case statusFadeMsg:
		if message.serial == model.status.serial {
			model.status.text = ""
		}
		return model, nil
	}

	// Cursor blink and other component messages go to whichever text
	// input is focused.
	return model, model.updateFocusedInput(message)
}

func (model *Model) updateFocusedInput(message tea.Msg) tea.Cmd {
	var command tea.Cmd
	switch {
	case model.screen == ScreenSignIn:
		form := &model.form
		form.fields[form.focused], command = form.fields[form.focused].Update(message)
	case model.focus == FocusCompose:
		model.compose, command = model.compose.Update(message)
	case model.focus == FocusFilter:
		model.filter, command = model.filter.Update(message)
	case model.focus == FocusNewConversation && model.modal != nil:
		model.modal.input, command = model.modal.input.Update(message)
	}
	return command
}

// isCurrent reports whether a result issued for session still applies.
func (model Model) isCurrent(session *dm.Session) bool {
	return session != nil && session == model.session && model.screen == ScreenChat
}

// setStatus shows text in the status bar until it fades or is replaced.
func (model *Model) setStatus(level slog.Level, text string) tea.Cmd {
	model.status.serial++
	model.status.text = text
	model.status.level = level
	return fadeStatus(model.status.serial)
}

// View implements tea.Model.
func (model Model) View() string {
	if !model.ready {
		return "Loading..."
	}
	if model.screen == ScreenSignIn {
		return model.renderSignIn()
	}
	return model.renderChat()
}

func (model Model) renderStatus() string {
	style := lipgloss.NewStyle().Foreground(model.theme.InfoText)
	switch {
	case model.status.level >= slog.LevelError:
		style = style.Foreground(model.theme.ErrorText).Bold(true)
	case model.status.level >= slog.LevelWarn:
		style = style.Foreground(model.theme.WarnText)
	}
	text := " " + strings.ReplaceAll(model.status.text, "\n", " ")
	return style.MaxWidth(model.width).Render(text)
}
