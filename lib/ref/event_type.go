// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

// EventType identifies a Matrix event type ("m.room.message",
// "m.room.member", ...). It is a named string rather than a struct
// wrapper: event types are opaque and need no validation, the type
// only keeps them from being confused with state keys or bodies.
type EventType string

// String returns the event type string.
func (t EventType) String() string { return string(t) }

// Event types the direct-message client reads or writes.
const (
	EventTypeMessage    EventType = "m.room.message"
	EventTypeMember     EventType = "m.room.member"
	EventTypeName       EventType = "m.room.name"
	EventTypeCreate     EventType = "m.room.create"
	EventTypeEncryption EventType = "m.room.encrypted"
)
