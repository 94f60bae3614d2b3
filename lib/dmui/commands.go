// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dmui

import (
	"context"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/bureau-foundation/bureau-dm/lib/dm"
	"github.com/bureau-foundation/bureau-dm/lib/ref"
)

// sessionBegunMsg carries the result of a login or registration.
// attempt identifies the form submission it answers.
type sessionBegunMsg struct {
	attempt int
	session *dm.Session
	err     error
}

type conversationsMsg struct {
	session       *dm.Session
	conversations []dm.Conversation
	err           error
}

type timelineMsg struct {
	session  *dm.Session
	roomID   ref.RoomID
	timeline []dm.MessageEvent
	err      error
}

type sentMsg struct {
	session *dm.Session
	roomID  ref.RoomID
	body    string
	receipt dm.Receipt
	err     error
}

type startedMsg struct {
	session *dm.Session
	roomID  ref.RoomID
	err     error
}

type acceptedMsg struct {
	session *dm.Session
	invite  dm.Invite
	err     error
}

// feedChangedMsg is delivered after the session's live feed applied a
// sync that changed what is visible.
type feedChangedMsg struct {
	session *dm.Session
}

// feedStoppedMsg is delivered once when the session's live feed exits.
type feedStoppedMsg struct {
	session *dm.Session
	err     error
}

// statusFadeMsg clears the status bar if it still shows message serial.
type statusFadeMsg struct {
	serial int
}

func beginSession(manager *dm.Manager, serverAddress string, credentials dm.Credentials, attempt int, timeout time.Duration) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		session, err := manager.Begin(ctx, serverAddress, credentials)
		return sessionBegunMsg{attempt: attempt, session: session, err: err}
	}
}

// endSession logs out in the background. The model has already
// forgotten the session, so there is nothing to report back.
func endSession(manager *dm.Manager) tea.Cmd {
	return func() tea.Msg {
		manager.End()
		return nil
	}
}

func listConversations(directory *dm.Directory, session *dm.Session, timeout time.Duration) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		conversations, err := directory.List(ctx, session)
		return conversationsMsg{session: session, conversations: conversations, err: err}
	}
}

func loadTimeline(synchronizer *dm.Synchronizer, session *dm.Session, roomID ref.RoomID, timeout time.Duration) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		timeline, err := synchronizer.Load(ctx, session, roomID)
		return timelineMsg{session: session, roomID: roomID, timeline: timeline, err: err}
	}
}

func sendMessage(coordinator *dm.Coordinator, session *dm.Session, roomID ref.RoomID, body string, timeout time.Duration) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		receipt, err := coordinator.Send(ctx, session, roomID, body)
		return sentMsg{session: session, roomID: roomID, body: body, receipt: receipt, err: err}
	}
}

func startConversation(directory *dm.Directory, session *dm.Session, counterpart string, timeout time.Duration) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		roomID, err := directory.Start(ctx, session, counterpart)
		return startedMsg{session: session, roomID: roomID, err: err}
	}
}

func acceptInvite(directory *dm.Directory, session *dm.Session, invite dm.Invite, timeout time.Duration) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		err := directory.Accept(ctx, session, invite.ID)
		return acceptedMsg{session: session, invite: invite, err: err}
	}
}

// waitForFeed blocks until the session's feed reports a change or
// stops. The model re-issues it after every change.
func waitForFeed(session *dm.Session) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-session.Changes(); !ok {
			return feedStoppedMsg{session: session, err: session.FeedErr()}
		}
		return feedChangedMsg{session: session}
	}
}

func fadeStatus(serial int) tea.Cmd {
	return tea.Tick(statusFadeDelay, func(time.Time) tea.Msg {
		return statusFadeMsg{serial: serial}
	})
}

// describeError renders a categorized error for the status bar or an
// inline form error.
func describeError(err error) string {
	switch dm.CategoryOf(err) {
	case dm.CategoryValidation:
		return err.Error()
	case dm.CategoryAuthentication:
		return "Authentication failed: " + err.Error()
	case dm.CategoryNetwork:
		return "Cannot reach the homeserver: " + err.Error()
	default:
		return "Server error: " + err.Error()
	}
}

// statusLevel picks the status bar severity for a failed operation.
func statusLevel(err error) slog.Level {
	if dm.CategoryOf(err) == dm.CategoryValidation {
		return slog.LevelWarn
	}
	return slog.LevelError
}
