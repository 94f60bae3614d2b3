// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dm

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/bureau-foundation/bureau-dm/lib/ref"
	"github.com/bureau-foundation/bureau-dm/messaging"
)

// Conversation is a room classified as a direct conversation.
type Conversation struct {
	ID         ref.RoomID
	Name       string
	Membership string

	// Members are the joined members in the order the feed first saw
	// them, including the local user.
	Members []ref.UserID

	// Counterpart is the joined member who is not the local user. Zero
	// when the room's two members are both the local user.
	Counterpart ref.UserID

	// LastActivity is the timestamp of the newest timeline event, zero
	// when the room has none.
	LastActivity time.Time
}

// DisplayName returns the room name when it is set, otherwise the room ID.
func (c Conversation) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.ID.String()
}

// ParticipantCount returns the number of joined members.
func (c Conversation) ParticipantCount() int {
	return len(c.Members)
}

// IsDirect reports whether a room is a direct conversation: exactly two
// joined members and the local user's membership is join.
func IsDirect(room messaging.RoomSnapshot) bool {
	return len(room.JoinedMembers) == 2 && room.Membership == messaging.MembershipJoin
}

// Directory projects the rooms visible to a session onto the direct
// conversations among them. It keeps no state between calls.
type Directory struct {
	logger *slog.Logger
}

// NewDirectory creates a Directory. A nil logger uses slog.Default().
func NewDirectory(logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{logger: logger}
}

// List returns the session's direct conversations in the order the
// server first reported each room. The live feed is caught up with the
// server first, so rooms created by this client are included.
func (d *Directory) List(ctx context.Context, session *Session) ([]Conversation, error) {
	if err := checkLive(session); err != nil {
		return nil, err
	}
	if _, err := session.acquire(); err != nil {
		return nil, classify(err, false)
	}
	defer session.release()

	if err := session.feed.Catchup(ctx); err != nil {
		return nil, classify(err, false)
	}
	return d.Snapshot(session)
}

// Snapshot is List without the round trip: it projects whatever the
// live feed has already received. Used to redraw after a feed push.
func (d *Directory) Snapshot(session *Session) ([]Conversation, error) {
	if err := checkLive(session); err != nil {
		return nil, err
	}
	var conversations []Conversation
	for _, room := range session.feed.Rooms() {
		if !IsDirect(room) {
			continue
		}
		conversations = append(conversations, conversationFromRoom(room, session.userID))
	}
	return conversations, nil
}

// Conversation returns one direct conversation from the feed's current
// view without a round trip. The second result is false when the room is
// unknown or is not a direct conversation.
func (d *Directory) Conversation(session *Session, roomID ref.RoomID) (Conversation, bool) {
	if session == nil || !session.Live() {
		return Conversation{}, false
	}
	room, ok := session.feed.Room(roomID)
	if !ok || !IsDirect(room) {
		return Conversation{}, false
	}
	return conversationFromRoom(room, session.userID), true
}

// Start creates a private, invite-only room marked as direct and invites
// counterpart to it. counterpart must be a full Matrix user ID.
func (d *Directory) Start(ctx context.Context, session *Session, counterpart string) (ref.RoomID, error) {
	counterpart = strings.TrimSpace(counterpart)
	if counterpart == "" {
		return ref.RoomID{}, Validation("Enter the user ID of the person to message")
	}
	userID, err := ref.ParseUserID(counterpart)
	if err != nil {
		return ref.RoomID{}, Validation("%q is not a Matrix user ID (expected @name:server)", counterpart)
	}
	if err := checkLive(session); err != nil {
		return ref.RoomID{}, err
	}
	if userID == session.userID {
		return ref.RoomID{}, Validation("Cannot start a conversation with yourself")
	}

	matrix, err := session.acquire()
	if err != nil {
		return ref.RoomID{}, classify(err, false)
	}
	defer session.release()

	response, err := matrix.CreateRoom(ctx, messaging.CreateRoomRequest{
		Preset:     "private_chat",
		Visibility: "private",
		Invite:     []string{userID.String()},
		IsDirect:   true,
	})
	if err != nil {
		return ref.RoomID{}, classify(err, false)
	}

	d.logger.Info("started conversation",
		"room_id", response.RoomID,
		"counterpart", userID,
	)
	return response.RoomID, nil
}

// Invite is a pending invitation to a direct conversation that someone
// else started.
type Invite struct {
	ID      ref.RoomID
	Name    string
	Inviter ref.UserID
}

// Label returns the room name when set, otherwise the inviter.
func (i Invite) Label() string {
	if i.Name != "" {
		return i.Name
	}
	return i.Inviter.String()
}

// Invites returns the direct-conversation invitations the live feed has
// received and the local user has not yet accepted, in the order the
// server first reported them.
func (d *Directory) Invites(session *Session) ([]Invite, error) {
	if err := checkLive(session); err != nil {
		return nil, err
	}
	var invites []Invite
	for _, room := range session.feed.Rooms() {
		if room.Membership != messaging.MembershipInvite || !room.DirectInvite {
			continue
		}
		invites = append(invites, Invite{ID: room.RoomID, Name: room.Name, Inviter: room.Inviter})
	}
	return invites, nil
}

// Accept joins a room the local user was invited to. Once it returns, the
// feed has caught up, so the conversation appears in the next List or
// Snapshot.
func (d *Directory) Accept(ctx context.Context, session *Session, roomID ref.RoomID) error {
	if roomID.IsZero() {
		return Validation("%w", errNoConversation)
	}
	if err := checkLive(session); err != nil {
		return err
	}
	matrix, err := session.acquire()
	if err != nil {
		return classify(err, false)
	}
	defer session.release()

	if _, err := matrix.JoinRoom(ctx, roomID); err != nil {
		return classify(err, false)
	}
	d.logger.Info("accepted invitation", "room_id", roomID)

	if err := session.feed.Catchup(ctx); err != nil {
		return classify(err, false)
	}
	return nil
}

func conversationFromRoom(room messaging.RoomSnapshot, self ref.UserID) Conversation {
	conversation := Conversation{
		ID:         room.RoomID,
		Name:       room.Name,
		Membership: room.Membership,
		Members:    slices.Clone(room.JoinedMembers),
	}
	for _, member := range room.JoinedMembers {
		if member != self {
			conversation.Counterpart = member
			break
		}
	}
	if room.LastActivity > 0 {
		conversation.LastActivity = time.UnixMilli(room.LastActivity)
	}
	return conversation
}
