// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"

	"github.com/bureau-foundation/bureau-dm/lib/ref"
)

// Session is the set of authenticated Matrix operations the direct-message
// core performs. *DirectSession is the production implementation; tests may
// substitute their own to inject failures.
//
// DeviceID and CloseIdleConnections are not part of this interface. Code
// that needs them should type-assert to *DirectSession or to a narrow
// interface.
type Session interface {
	// UserID returns the fully-qualified Matrix user ID
	// (e.g., "@alice:matrix.org").
	UserID() ref.UserID

	// Close releases any resources held by the session. Idempotent.
	Close() error

	// Logout invalidates the access token on the homeserver.
	Logout(ctx context.Context) error

	// CreateRoom creates a new Matrix room.
	CreateRoom(ctx context.Context, request CreateRoomRequest) (*CreateRoomResponse, error)

	// JoinRoom joins a room by room ID, accepting a pending invite.
	// Returns the room ID.
	JoinRoom(ctx context.Context, roomID ref.RoomID) (ref.RoomID, error)

	// SendMessage sends an m.room.message event under transactionID.
	SendMessage(ctx context.Context, roomID ref.RoomID, transactionID string, content MessageContent) (ref.EventID, error)

	// SendEvent sends an event of any type to a room. Returns the event ID.
	SendEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, transactionID string, content any) (ref.EventID, error)

	// Sync performs an incremental sync with the homeserver.
	Sync(ctx context.Context, options SyncOptions) (*SyncResponse, error)
}

var _ Session = (*DirectSession)(nil)
