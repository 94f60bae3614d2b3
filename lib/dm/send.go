// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dm

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/bureau-foundation/bureau-dm/lib/clock"
	"github.com/bureau-foundation/bureau-dm/lib/ref"
	"github.com/bureau-foundation/bureau-dm/messaging"
)

// Receipt describes a completed send.
type Receipt struct {
	EventID       ref.EventID
	TransactionID string

	// Timeline is the conversation after the post-send refresh. Nil
	// when the refresh failed; RefreshErr then says why. The message
	// itself was delivered either way.
	Timeline   []MessageEvent
	RefreshErr error
}

// CoordinatorConfig configures a Coordinator.
type CoordinatorConfig struct {
	// Clock stamps pending messages. Nil uses clock.Real().
	Clock clock.Clock

	// Logger receives diagnostics. Nil uses slog.Default().
	Logger *slog.Logger
}

// Coordinator sends messages and reconciles them with a Synchronizer.
// It allows one send in flight per conversation and session; sends to
// different conversations proceed independently, and a send left running
// by an ended session never blocks the next one.
type Coordinator struct {
	synchronizer *Synchronizer
	clock        clock.Clock
	logger       *slog.Logger

	mu       sync.Mutex
	inFlight map[sendKey]struct{}
}

type sendKey struct {
	session *Session
	roomID  ref.RoomID
}

// NewCoordinator creates a Coordinator that records pending messages in
// synchronizer and refreshes it after each send.
func NewCoordinator(synchronizer *Synchronizer, config CoordinatorConfig) *Coordinator {
	sendClock := config.Clock
	if sendClock == nil {
		sendClock = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		synchronizer: synchronizer,
		clock:        sendClock,
		logger:       logger,
		inFlight:     make(map[sendKey]struct{}),
	}
}

// Sending reports whether session has a send to roomID in flight.
func (c *Coordinator) Sending(session *Session, roomID ref.RoomID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, sending := c.inFlight[sendKey{session: session, roomID: roomID}]
	return sending
}

// Send delivers body to the conversation and refreshes its timeline so
// the confirmed message appears exactly once. The message is held as a
// pending event, keyed by its transaction ID, until the server echoes it.
func (c *Coordinator) Send(ctx context.Context, session *Session, roomID ref.RoomID, body string) (Receipt, error) {
	if strings.TrimSpace(body) == "" {
		return Receipt{}, Validation("Message is empty")
	}
	if roomID.IsZero() {
		return Receipt{}, Validation("%w", errNoConversation)
	}
	if err := checkLive(session); err != nil {
		return Receipt{}, err
	}

	key := sendKey{session: session, roomID: roomID}
	c.mu.Lock()
	if _, sending := c.inFlight[key]; sending {
		c.mu.Unlock()
		return Receipt{}, Validation("a message is already being sent")
	}
	c.inFlight[key] = struct{}{}
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.inFlight, key)
		c.mu.Unlock()
	}()

	transactionID := messaging.NewTransactionID()
	content := MessageContent(body)
	c.synchronizer.addPending(session, roomID, MessageEvent{
		ID:            transactionID,
		TransactionID: transactionID,
		Sender:        session.userID,
		MsgType:       content.MsgType,
		Body:          content.Body,
		FormattedBody: content.FormattedBody,
		Timestamp:     c.clock.Now(),
		Confirmation:  Pending,
		Own:           true,
	})

	eventID, err := c.transmit(ctx, session, roomID, transactionID, content)
	if err != nil {
		c.synchronizer.dropPending(session, roomID, transactionID)
		c.logger.Warn("send failed",
			"room_id", roomID,
			"transaction_id", transactionID,
			"error", err,
		)
		return Receipt{}, classify(err, false)
	}
	c.synchronizer.confirmPending(session, roomID, transactionID, eventID)

	receipt := Receipt{EventID: eventID, TransactionID: transactionID}
	receipt.Timeline, receipt.RefreshErr = c.synchronizer.Load(ctx, session, roomID)
	if receipt.RefreshErr != nil {
		c.logger.Warn("refresh after send failed",
			"room_id", roomID,
			"event_id", eventID,
			"error", receipt.RefreshErr,
		)
	}
	return receipt, nil
}

func (c *Coordinator) transmit(ctx context.Context, session *Session, roomID ref.RoomID, transactionID string, content messaging.MessageContent) (ref.EventID, error) {
	matrix, err := session.acquire()
	if err != nil {
		return ref.EventID{}, err
	}
	defer session.release()
	return matrix.SendMessage(ctx, roomID, transactionID, content)
}
