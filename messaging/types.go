// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"github.com/bureau-foundation/bureau-dm/lib/ref"
	"github.com/bureau-foundation/bureau-dm/lib/secret"
)

// Membership values carried in m.room.member content.
const (
	MembershipJoin   = "join"
	MembershipInvite = "invite"
	MembershipLeave  = "leave"
	MembershipBan    = "ban"
	MembershipKnock  = "knock"
)

// Message types for m.room.message content.
const (
	MsgTypeText   = "m.text"
	MsgTypeNotice = "m.notice"
	MsgTypeEmote  = "m.emote"
)

// FormatHTML is the only rich-text format Matrix defines for
// formatted_body.
const FormatHTML = "org.matrix.custom.html"

// UIAA stage types understood by Register.
const (
	StageDummy             = "m.login.dummy"
	StageRegistrationToken = "m.login.registration_token"
)

// RegisterRequest holds parameters for registering a new Matrix account.
// Password and RegistrationToken live in mmap-backed buffers. Register reads
// them but does not close them; the caller retains ownership.
type RegisterRequest struct {
	Username string
	Password *secret.Buffer

	// RegistrationToken completes the m.login.registration_token stage
	// when the homeserver requires it. Nil means only flows made of
	// m.login.dummy stages can be completed.
	RegistrationToken *secret.Buffer

	// DeviceDisplayName is sent as initial_device_display_name.
	DeviceDisplayName string
}

// AuthResponse is returned by Register and Login.
type AuthResponse struct {
	UserID      ref.UserID `json:"user_id"`
	AccessToken string     `json:"access_token"`
	DeviceID    string     `json:"device_id"`
}

// LoginRequest is the request body for password login.
type LoginRequest struct {
	Type                     string          `json:"type"`
	Identifier               LoginIdentifier `json:"identifier"`
	Password                 string          `json:"password"`
	InitialDeviceDisplayName string          `json:"initial_device_display_name,omitempty"`
}

// LoginIdentifier names the account for m.login.password.
type LoginIdentifier struct {
	Type string `json:"type"`
	User string `json:"user"`
}

// uiaaResponse is the 401 body returned while a User-Interactive
// Authentication flow is incomplete.
type uiaaResponse struct {
	Session   string     `json:"session"`
	Flows     []uiaaFlow `json:"flows"`
	Completed []string   `json:"completed"`
}

type uiaaFlow struct {
	Stages []string `json:"stages"`
}

// CreateRoomRequest holds parameters for creating a Matrix room.
type CreateRoomRequest struct {
	Name       string   `json:"name,omitempty"`
	Topic      string   `json:"topic,omitempty"`
	Visibility string   `json:"visibility,omitempty"` // "public" or "private"
	Preset     string   `json:"preset,omitempty"`     // "private_chat", "public_chat", "trusted_private_chat"
	Invite     []string `json:"invite,omitempty"`

	// IsDirect flags the invite as a direct-message invite on the
	// invitee's membership event.
	IsDirect bool `json:"is_direct,omitempty"`
}

// CreateRoomResponse is returned by CreateRoom.
type CreateRoomResponse struct {
	RoomID ref.RoomID `json:"room_id"`
}

// MessageContent is the content body of an m.room.message event.
// Format and FormattedBody are set together or not at all.
type MessageContent struct {
	MsgType       string `json:"msgtype"`
	Body          string `json:"body"`
	Format        string `json:"format,omitempty"`
	FormattedBody string `json:"formatted_body,omitempty"`
}

// NewTextMessage creates a plain text message.
func NewTextMessage(body string) MessageContent {
	return MessageContent{
		MsgType: MsgTypeText,
		Body:    body,
	}
}

// NewFormattedTextMessage creates a text message that carries an HTML
// rendering alongside the plain body. Clients without HTML support fall back
// to body.
func NewFormattedTextMessage(body, html string) MessageContent {
	return MessageContent{
		MsgType:       MsgTypeText,
		Body:          body,
		Format:        FormatHTML,
		FormattedBody: html,
	}
}

// Event represents a Matrix event from the server.
type Event struct {
	EventID        ref.EventID    `json:"event_id"`
	Type           ref.EventType  `json:"type"`
	Sender         ref.UserID     `json:"sender"`
	OriginServerTS int64          `json:"origin_server_ts"`
	Content        map[string]any `json:"content"`
	RoomID         ref.RoomID     `json:"room_id,omitempty"`
	StateKey       *string        `json:"state_key,omitempty"`
	Unsigned       *EventUnsigned `json:"unsigned,omitempty"`
}

// TransactionID returns the client transaction ID the homeserver echoes back
// to the sending device, or "" for events sent elsewhere.
func (e Event) TransactionID() string {
	if e.Unsigned == nil {
		return ""
	}
	return e.Unsigned.TransactionID
}

// ContentString returns a string field from the event content, or "" when the
// field is absent or not a string.
func (e Event) ContentString(field string) string {
	value, _ := e.Content[field].(string)
	return value
}

// EventUnsigned holds optional unsigned data attached to events.
type EventUnsigned struct {
	Age           int64  `json:"age,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
}

// SyncOptions controls the behavior of the /sync endpoint.
type SyncOptions struct {
	Since      string // next_batch token from previous sync; empty for initial sync
	Timeout    int    // long-poll timeout in milliseconds; 0 for immediate return
	SetTimeout bool   // if true, send the timeout parameter (needed to distinguish "not set" from "0")
	Filter     string // filter ID or inline JSON filter
}

// SyncResponse is the top-level response from /sync.
type SyncResponse struct {
	NextBatch string       `json:"next_batch"`
	Rooms     RoomsSection `json:"rooms"`
}

// RoomsSection contains per-room sync data grouped by membership state.
// Map keys are room IDs; encoding/json uses ref.RoomID's TextUnmarshaler
// for validation at deserialization.
type RoomsSection struct {
	Join   map[ref.RoomID]JoinedRoom  `json:"join,omitempty"`
	Invite map[ref.RoomID]InvitedRoom `json:"invite,omitempty"`
	Leave  map[ref.RoomID]LeftRoom    `json:"leave,omitempty"`
}

// JoinedRoom contains sync data for a room the user has joined.
type JoinedRoom struct {
	Timeline TimelineSection `json:"timeline"`
	State    StateSection    `json:"state"`
}

// InvitedRoom contains sync data for a room the user was invited to.
type InvitedRoom struct {
	InviteState StateSection `json:"invite_state"`
}

// LeftRoom contains sync data for a room the user has left.
type LeftRoom struct {
	Timeline TimelineSection `json:"timeline"`
	State    StateSection    `json:"state"`
}

// TimelineSection contains timeline events from a sync response.
type TimelineSection struct {
	Events    []Event `json:"events"`
	PrevBatch string  `json:"prev_batch"`
	Limited   bool    `json:"limited"`
}

// StateSection contains state events from a sync response.
type StateSection struct {
	Events []Event `json:"events"`
}

// SendEventResponse is returned by SendMessage and SendEvent.
type SendEventResponse struct {
	EventID ref.EventID `json:"event_id"`
}
