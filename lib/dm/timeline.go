// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dm

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/bureau-foundation/bureau-dm/lib/ref"
	"github.com/bureau-foundation/bureau-dm/messaging"
)

// Confirmation is the delivery state of a MessageEvent.
type Confirmation int

const (
	// Confirmed events were delivered by the server and carry an event ID.
	Confirmed Confirmation = iota
	// Pending events were submitted locally and not yet echoed back.
	Pending
)

func (c Confirmation) String() string {
	if c == Pending {
		return "pending"
	}
	return "confirmed"
}

// MessageEvent is one chat message in a conversation timeline.
type MessageEvent struct {
	// ID is the event ID once confirmed and the transaction ID while
	// pending. Unique within one timeline.
	ID string

	EventID       ref.EventID
	TransactionID string
	Sender        ref.UserID
	MsgType       string
	Body          string
	FormattedBody string
	Timestamp     time.Time
	Confirmation  Confirmation

	// Own is true when the ownership rule attributes the event to the
	// local user.
	Own bool
}

// Ownership decides which timeline events count as the local user's.
type Ownership int

const (
	// OwnershipByIdentity attributes an event to the local user only
	// when its sender is the authenticated user ID.
	OwnershipByIdentity Ownership = iota

	// OwnershipByServer attributes every event sent from the local
	// user's homeserver to the local user. It misattributes messages
	// from other accounts on the same server.
	OwnershipByServer
)

// ParseOwnership maps a config value ("identity" or "server") to an
// Ownership rule.
func ParseOwnership(value string) (Ownership, error) {
	switch value {
	case "", "identity":
		return OwnershipByIdentity, nil
	case "server":
		return OwnershipByServer, nil
	default:
		return 0, fmt.Errorf("unknown ownership rule %q", value)
	}
}

// IsSelf reports whether sender counts as self under the rule.
func (o Ownership) IsSelf(sender, self ref.UserID) bool {
	if o == OwnershipByServer {
		return !sender.IsZero() && sender.Server() == self.Server()
	}
	return sender == self
}

// TimelineState is the per-conversation load state.
type TimelineState int

const (
	TimelineEmpty TimelineState = iota
	TimelineLoaded
)

func (s TimelineState) String() string {
	if s == TimelineLoaded {
		return "loaded"
	}
	return "empty"
}

// SynchronizerConfig configures a Synchronizer.
type SynchronizerConfig struct {
	Ownership Ownership

	// Logger receives diagnostics. Nil uses slog.Default().
	Logger *slog.Logger
}

// Synchronizer derives the ordered message timeline of a conversation
// from the session's live feed, merging in locally pending sends until
// the server confirms them. Its per-conversation state belongs to one
// session and resets when a different session is used.
type Synchronizer struct {
	ownership Ownership
	logger    *slog.Logger

	mu      sync.Mutex
	owner   *Session
	states  map[ref.RoomID]TimelineState
	pending map[ref.RoomID][]MessageEvent
}

// NewSynchronizer creates a Synchronizer with no loaded conversations.
func NewSynchronizer(config SynchronizerConfig) *Synchronizer {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Synchronizer{
		ownership: config.Ownership,
		logger:    logger,
		states:    make(map[ref.RoomID]TimelineState),
		pending:   make(map[ref.RoomID][]MessageEvent),
	}
}

// State returns the load state of a conversation for the session the
// synchronizer last served.
func (s *Synchronizer) State(roomID ref.RoomID) TimelineState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[roomID]
}

// Load catches the live feed up with the server and returns the
// conversation's messages, oldest first. Every call returns a new slice
// that replaces any previous result.
func (s *Synchronizer) Load(ctx context.Context, session *Session, roomID ref.RoomID) ([]MessageEvent, error) {
	if roomID.IsZero() {
		return nil, Validation("%w", errNoConversation)
	}
	if err := checkLive(session); err != nil {
		return nil, err
	}
	if _, err := session.acquire(); err != nil {
		return nil, classify(err, false)
	}
	err := session.feed.Catchup(ctx)
	session.release()
	if err != nil {
		return nil, classify(err, false)
	}

	timeline, err := s.View(session, roomID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.owner == session {
		s.states[roomID] = TimelineLoaded
	}
	s.mu.Unlock()

	s.logger.Debug("timeline loaded",
		"room_id", roomID,
		"messages", len(timeline),
	)
	return timeline, nil
}

// View returns the conversation's messages from the feed's current view
// without a server round trip. Used to redraw after the feed pushes
// changes.
func (s *Synchronizer) View(session *Session, roomID ref.RoomID) ([]MessageEvent, error) {
	if roomID.IsZero() {
		return nil, Validation("%w", errNoConversation)
	}
	if err := checkLive(session); err != nil {
		return nil, err
	}
	room, ok := session.feed.Room(roomID)
	if !ok {
		return nil, Server("conversation %s is not visible to %s", roomID, session.userID)
	}

	timeline := s.confirmedMessages(room, session.userID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.bindLocked(session) {
		return nil, classify(ErrSessionEnded, false)
	}
	return s.mergePendingLocked(roomID, timeline), nil
}

// confirmedMessages filters the room's timeline to m.room.message events
// and orders them by server timestamp, breaking ties by the order the
// feed received them.
func (s *Synchronizer) confirmedMessages(room messaging.RoomSnapshot, self ref.UserID) []MessageEvent {
	type sequenced struct {
		event    MessageEvent
		sequence int64
	}
	var collected []sequenced
	for _, event := range room.Events {
		switch event.Type {
		case ref.EventTypeMessage:
			msgType := event.ContentString("msgtype")
			if msgType == "" {
				// Redacted: content stripped.
				continue
			}
			collected = append(collected, sequenced{
				event: MessageEvent{
					ID:            event.EventID.String(),
					EventID:       event.EventID,
					TransactionID: event.TransactionID(),
					Sender:        event.Sender,
					MsgType:       msgType,
					Body:          event.ContentString("body"),
					FormattedBody: event.ContentString("formatted_body"),
					Timestamp:     time.UnixMilli(event.OriginServerTS),
					Confirmation:  Confirmed,
					Own:           s.ownership.IsSelf(event.Sender, self),
				},
				sequence: event.Sequence,
			})
		}
	}

	slices.SortStableFunc(collected, func(a, b sequenced) int {
		if order := a.event.Timestamp.Compare(b.event.Timestamp); order != 0 {
			return order
		}
		return cmp.Compare(a.sequence, b.sequence)
	})

	timeline := make([]MessageEvent, len(collected))
	for index, entry := range collected {
		timeline[index] = entry.event
	}
	return timeline
}

// mergePendingLocked drops pending events the server has echoed back and
// appends the rest after the confirmed timeline.
func (s *Synchronizer) mergePendingLocked(roomID ref.RoomID, timeline []MessageEvent) []MessageEvent {
	pending := s.pending[roomID]
	if len(pending) == 0 {
		return timeline
	}

	confirmedIDs := make(map[string]struct{}, len(timeline))
	confirmedTransactions := make(map[string]struct{})
	for _, event := range timeline {
		confirmedIDs[event.ID] = struct{}{}
		if event.TransactionID != "" {
			confirmedTransactions[event.TransactionID] = struct{}{}
		}
	}

	remaining := pending[:0]
	for _, event := range pending {
		if _, echoed := confirmedTransactions[event.TransactionID]; echoed {
			continue
		}
		if !event.EventID.IsZero() {
			if _, echoed := confirmedIDs[event.EventID.String()]; echoed {
				continue
			}
		}
		remaining = append(remaining, event)
	}
	if len(remaining) == 0 {
		delete(s.pending, roomID)
	} else {
		s.pending[roomID] = remaining
	}

	return append(slices.Clip(timeline), remaining...)
}

// bindLocked resets per-conversation state when session differs from
// the one the synchronizer last served. A session that ended since the
// caller checked it is refused, so it cannot displace its successor.
func (s *Synchronizer) bindLocked(session *Session) bool {
	if s.owner == session {
		return true
	}
	if !session.Live() {
		return false
	}
	s.owner = session
	clear(s.states)
	clear(s.pending)
	return true
}

// addPending records a locally submitted message.
func (s *Synchronizer) addPending(session *Session, roomID ref.RoomID, event MessageEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.bindLocked(session) {
		return
	}
	s.pending[roomID] = append(s.pending[roomID], event)
}

// confirmPending attaches the server-assigned event ID to a pending
// message so it reconciles even when the echo lacks a transaction ID.
func (s *Synchronizer) confirmPending(session *Session, roomID ref.RoomID, transactionID string, eventID ref.EventID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owner != session {
		return
	}
	for index := range s.pending[roomID] {
		if s.pending[roomID][index].TransactionID == transactionID {
			s.pending[roomID][index].EventID = eventID
			return
		}
	}
}

// dropPending forgets a pending message whose send failed.
func (s *Synchronizer) dropPending(session *Session, roomID ref.RoomID, transactionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owner != session {
		return
	}
	s.pending[roomID] = slices.DeleteFunc(s.pending[roomID], func(event MessageEvent) bool {
		return event.TransactionID == transactionID
	})
	if len(s.pending[roomID]) == 0 {
		delete(s.pending, roomID)
	}
}
