// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dmui

import (
	"cmp"
	"log/slog"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/bureau-foundation/bureau-dm/lib/dm"
	"github.com/bureau-foundation/bureau-dm/lib/ref"
	"github.com/bureau-foundation/bureau-dm/lib/tui"
)

// enterChat switches to the chat screen for a freshly live session and
// starts the initial listing and the feed subscription.
func (model *Model) enterChat(session *dm.Session) tea.Cmd {
	model.resetChat()
	model.screen = ScreenChat
	model.session = session
	model.updateLayout()
	return tea.Batch(
		listConversations(model.services.Directory, session, model.requestTimeout),
		waitForFeed(session),
	)
}

// resetChat forgets everything shown for the previous session.
func (model *Model) resetChat() {
	model.session = nil
	model.focus = FocusList
	model.conversations = nil
	model.listed = nil
	model.cursor = 0
	model.scrollOffset = 0
	model.filter.Reset()
	model.filter.Blur()
	model.selected = ref.RoomID{}
	model.timeline = nil
	model.viewport.SetContent("")
	model.compose.Reset()
	model.compose.Blur()
	model.sending = false
	model.invites = nil
	model.accepting = false
	model.modal = nil
}

// signOut returns to the sign-in form immediately and ends the session
// in the background. Results still in flight for the old session are
// discarded when they arrive.
func (model Model) signOut() (tea.Model, tea.Cmd) {
	model.resetChat()
	model.screen = ScreenSignIn
	model.form.pending = false
	focus := model.form.focusField(fieldUsername)
	status := model.setStatus(slog.LevelInfo, "Logged out")
	return model, tea.Batch(endSession(model.services.Manager), focus, status)
}

// handleChatKeys routes keystrokes on the chat screen by focus region.
func (model Model) handleChatKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	if message.Type == tea.KeyCtrlC {
		return model, tea.Quit
	}
	if key.Matches(message, model.keys.SignOut) {
		return model.signOut()
	}

	switch model.focus {
	case FocusNewConversation:
		return model.handleModalKeys(message)
	case FocusFilter:
		return model.handleFilterKeys(message)
	case FocusCompose:
		return model.handleComposeKeys(message)
	}

	switch {
	case key.Matches(message, model.keys.Quit):
		return model, tea.Quit

	case key.Matches(message, model.keys.Up):
		if model.cursor > 0 {
			model.cursor--
			return model, model.selectAtCursor()
		}

	case key.Matches(message, model.keys.Down):
		if model.cursor < len(model.listed)-1 {
			model.cursor++
			return model, model.selectAtCursor()
		}

	case key.Matches(message, model.keys.Select), key.Matches(message, model.keys.FocusToggle):
		if !model.selected.IsZero() {
			model.focus = FocusCompose
			return model, model.compose.Focus()
		}

	case key.Matches(message, model.keys.FilterActivate):
		model.focus = FocusFilter
		return model, model.filter.Focus()

	case key.Matches(message, model.keys.Cancel):
		if model.filter.Value() != "" {
			model.filter.Reset()
			model.applyFilter()
		}

	case key.Matches(message, model.keys.NewConversation):
		model.modal = newNewConversationModal()
		model.focus = FocusNewConversation
		return model, model.modal.input.Focus()

	case key.Matches(message, model.keys.AcceptInvite):
		if len(model.invites) > 0 && !model.accepting {
			model.accepting = true
			return model, acceptInvite(model.services.Directory, model.session, model.invites[0], model.requestTimeout)
		}

	case key.Matches(message, model.keys.PageUp):
		model.viewport.HalfViewUp()

	case key.Matches(message, model.keys.PageDown):
		model.viewport.HalfViewDown()
	}
	return model, nil
}

func (model Model) handleComposeKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(message, model.keys.Submit):
		return model, model.submitMessage()

	case key.Matches(message, model.keys.FocusToggle), key.Matches(message, model.keys.Cancel):
		model.compose.Blur()
		model.focus = FocusList
		return model, nil

	case key.Matches(message, model.keys.PageUp):
		model.viewport.HalfViewUp()
		return model, nil

	case key.Matches(message, model.keys.PageDown):
		model.viewport.HalfViewDown()
		return model, nil
	}

	var command tea.Cmd
	model.compose, command = model.compose.Update(message)
	return model, command
}

func (model Model) handleFilterKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(message, model.keys.Cancel):
		// Esc clears the query first, then leaves the filter.
		if model.filter.Value() != "" {
			model.filter.Reset()
			model.applyFilter()
			return model, nil
		}
		model.filter.Blur()
		model.focus = FocusList
		return model, nil

	case message.Type == tea.KeyEnter:
		model.filter.Blur()
		model.focus = FocusList
		return model, model.selectAtCursor()
	}

	previous := model.filter.Value()
	var command tea.Cmd
	model.filter, command = model.filter.Update(message)
	if model.filter.Value() != previous {
		model.applyFilter()
	}
	return model, command
}

// submitMessage sends the compose box's text to the open conversation.
// Blank text is ignored, as is Enter while a send is in flight.
func (model *Model) submitMessage() tea.Cmd {
	body := model.compose.Value()
	if strings.TrimSpace(body) == "" || model.selected.IsZero() || model.sending {
		return nil
	}
	model.sending = true
	return sendMessage(model.services.Coordinator, model.session, model.selected, body, model.requestTimeout)
}

func (model Model) handleConversations(message conversationsMsg) (tea.Model, tea.Cmd) {
	if !model.isCurrent(message.session) {
		return model, nil
	}
	if message.err != nil {
		return model, model.setStatus(statusLevel(message.err), "Could not load conversations: "+describeError(message.err))
	}
	model.refreshInvites()
	return model, model.setConversations(message.conversations)
}

// refreshInvites reloads pending invitations from the feed's current view.
func (model *Model) refreshInvites() {
	invites, err := model.services.Directory.Invites(model.session)
	if err != nil {
		return
	}
	model.invites = invites
	model.ensureCursorVisible()
}

// setConversations replaces the list. The first conversation is opened
// automatically when nothing is selected yet.
func (model *Model) setConversations(conversations []dm.Conversation) tea.Cmd {
	model.conversations = conversations
	model.applyFilter()
	if model.selected.IsZero() && len(model.listed) > 0 {
		return model.selectConversation(model.listed[0].conversation.ID)
	}
	return nil
}

// applyFilter rebuilds the listed conversations from the filter query.
// With a query, matches are ordered best first; without one the list
// keeps the directory's order.
func (model *Model) applyFilter() {
	pattern := []rune(strings.TrimSpace(model.filter.Value()))
	type scored struct {
		listed listedConversation
		score  int
	}
	var matches []scored
	for _, conversation := range model.conversations {
		label := conversationLabel(conversation)
		result := tui.FuzzyMatch(label, pattern, model.slab)
		if !result.Matched {
			continue
		}
		matches = append(matches, scored{
			listed: listedConversation{conversation: conversation, label: label, positions: result.Positions},
			score:  result.Score,
		})
	}
	if len(pattern) > 0 {
		slices.SortStableFunc(matches, func(a, b scored) int {
			return cmp.Compare(b.score, a.score)
		})
	}

	model.listed = make([]listedConversation, len(matches))
	for index, match := range matches {
		model.listed[index] = match.listed
	}

	model.cursor = 0
	for index, listed := range model.listed {
		if listed.conversation.ID == model.selected {
			model.cursor = index
			break
		}
	}
	model.ensureCursorVisible()
}

func (model *Model) selectAtCursor() tea.Cmd {
	if model.cursor < 0 || model.cursor >= len(model.listed) {
		return nil
	}
	roomID := model.listed[model.cursor].conversation.ID
	if roomID == model.selected {
		return nil
	}
	return model.selectConversation(roomID)
}

// selectConversation opens roomID: whatever the feed already holds is
// shown at once, and a full load is started.
func (model *Model) selectConversation(roomID ref.RoomID) tea.Cmd {
	model.selected = roomID
	model.timeline = nil
	if view, err := model.services.Synchronizer.View(model.session, roomID); err == nil {
		model.timeline = view
	}
	for index, listed := range model.listed {
		if listed.conversation.ID == roomID {
			model.cursor = index
			break
		}
	}
	model.ensureCursorVisible()
	model.refreshTimeline(true)
	return loadTimeline(model.services.Synchronizer, model.session, roomID, model.requestTimeout)
}

func (model Model) handleTimeline(message timelineMsg) (tea.Model, tea.Cmd) {
	if !model.isCurrent(message.session) || message.roomID != model.selected {
		return model, nil
	}
	if message.err != nil {
		return model, model.setStatus(statusLevel(message.err), "Could not load messages: "+describeError(message.err))
	}
	model.timeline = message.timeline
	model.refreshTimeline(false)
	return model, nil
}

func (model Model) handleSent(message sentMsg) (tea.Model, tea.Cmd) {
	if !model.isCurrent(message.session) {
		return model, nil
	}
	model.sending = false
	if message.err != nil {
		// The compose box keeps the text so the user can retry. The
		// failed local echo is gone from the synchronizer's view.
		if message.roomID == model.selected {
			if view, err := model.services.Synchronizer.View(model.session, model.selected); err == nil {
				model.timeline = view
				model.refreshTimeline(false)
			}
		}
		return model, model.setStatus(statusLevel(message.err), "Message not sent: "+describeError(message.err))
	}

	if model.compose.Value() == message.body {
		model.compose.Reset()
	}
	if message.receipt.RefreshErr != nil {
		return model, model.setStatus(slog.LevelWarn, "Sent, but the timeline could not be refreshed: "+describeError(message.receipt.RefreshErr))
	}
	if message.roomID == model.selected {
		model.timeline = message.receipt.Timeline
		model.refreshTimeline(true)
	}
	return model, nil
}

func (model Model) handleStarted(message startedMsg) (tea.Model, tea.Cmd) {
	if !model.isCurrent(message.session) {
		return model, nil
	}
	if message.err != nil {
		if model.modal != nil {
			model.modal.pending = false
			model.modal.err = describeError(message.err)
			return model, nil
		}
		return model, model.setStatus(statusLevel(message.err), "Could not start conversation: "+describeError(message.err))
	}

	if model.modal != nil {
		model.modal = nil
		model.focus = FocusList
	}
	selectCommand := model.selectConversation(message.roomID)
	return model, tea.Batch(
		selectCommand,
		listConversations(model.services.Directory, model.session, model.requestTimeout),
	)
}

// handleAccepted opens a conversation once its invitation is accepted.
func (model Model) handleAccepted(message acceptedMsg) (tea.Model, tea.Cmd) {
	if !model.isCurrent(message.session) {
		return model, nil
	}
	model.accepting = false
	if message.err != nil {
		return model, model.setStatus(statusLevel(message.err), "Could not accept invitation: "+describeError(message.err))
	}
	model.refreshInvites()
	selectCommand := model.selectConversation(message.invite.ID)
	return model, tea.Batch(
		selectCommand,
		listConversations(model.services.Directory, model.session, model.requestTimeout),
		model.setStatus(slog.LevelInfo, "Joined conversation with "+message.invite.Inviter.String()),
	)
}

// handleFeedChanged redraws the list and the open timeline from the
// feed's current view, then waits for the next change.
func (model Model) handleFeedChanged(message feedChangedMsg) (tea.Model, tea.Cmd) {
	if !model.isCurrent(message.session) {
		return model, nil
	}
	commands := []tea.Cmd{waitForFeed(model.session)}
	model.refreshInvites()
	if conversations, err := model.services.Directory.Snapshot(model.session); err == nil {
		commands = append(commands, model.setConversations(conversations))
	}
	if !model.selected.IsZero() {
		if view, err := model.services.Synchronizer.View(model.session, model.selected); err == nil {
			model.timeline = view
			model.refreshTimeline(false)
		}
	}
	return model, tea.Batch(commands...)
}

// conversationLabel is the list label: the room name when set, then the
// counterpart's user ID, then the room ID.
func conversationLabel(conversation dm.Conversation) string {
	if conversation.Name != "" {
		return conversation.Name
	}
	if !conversation.Counterpart.IsZero() {
		return conversation.Counterpart.String()
	}
	return conversation.DisplayName()
}
