// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/bureau-foundation/bureau-dm/lib/clock"
	"github.com/bureau-foundation/bureau-dm/lib/ref"
)

// ErrFeedStopped is returned by Feed operations after Stop.
var ErrFeedStopped = errors.New("messaging: live feed stopped")

// ErrFeedNotStarted is returned by Catchup before Start has succeeded.
var ErrFeedNotStarted = errors.New("messaging: live feed not started")

// FeedConfig controls the /sync loop behind a Feed. Zero values take the
// defaults noted on each field.
type FeedConfig struct {
	// Timeout is the server-side long-poll hold. Default 30s, which
	// matches the Matrix client-server recommendation.
	Timeout time.Duration

	// RetryDelay is the pause between a failed /sync and the next
	// attempt. Default 2s.
	RetryDelay time.Duration

	// RetryLimit is the number of consecutive failures after which Err
	// reports the feed as degraded. The loop keeps retrying. Default 5.
	RetryLimit int

	// TimelineLimit caps timeline events per room per response. Zero
	// uses the server default.
	TimelineLimit int

	// Clock drives retry backoff. Nil uses clock.Real().
	Clock clock.Clock

	// Logger receives sync loop diagnostics. Nil uses slog.Default().
	Logger *slog.Logger
}

// FeedEvent is a timeline event as recorded by the feed. Sequence is the
// position at which the feed first saw the event across all rooms; it is
// strictly increasing in server stream order.
type FeedEvent struct {
	Event
	Sequence int64
}

// RoomSnapshot is a point-in-time copy of one room's state as seen by the
// feed. The slices are owned by the caller.
type RoomSnapshot struct {
	RoomID        ref.RoomID
	Name          string
	Membership    string
	JoinedMembers []ref.UserID

	// LastActivity is the largest origin_server_ts (milliseconds) among
	// the room's timeline events, zero when none have been seen.
	LastActivity int64

	// Inviter is who invited the local user, set while Membership is
	// invite. DirectInvite reports whether the invite was marked as a
	// direct conversation.
	Inviter      ref.UserID
	DirectInvite bool

	// Events is the room's timeline, deduplicated by event ID, in the
	// order the server delivered it.
	Events []FeedEvent
}

type roomState struct {
	name         string
	membership   string
	members      map[ref.UserID]string
	memberOrder  []ref.UserID
	events       []FeedEvent
	seen         map[ref.EventID]struct{}
	lastActivity int64
	inviter      ref.UserID
	directInvite bool
}

type catchupWaiter struct {
	// after is the last sync attempt that had started when the waiter
	// registered. Only a later attempt can satisfy it.
	after  uint64
	result chan error
}

// Feed keeps a live, incrementally updated view of every room visible to a
// session by running a /sync long-poll loop. Each room has an append-only
// timeline deduplicated by event ID, plus the state the direct-message
// layer projects from: name, own membership, and joined members.
//
// Start performs the initial sync before returning, so the view is
// populated as soon as Start succeeds. Catchup forces a fresh round trip,
// so state changed by this client (a created room, a sent message) is
// visible once it returns. Changes delivers a coalesced signal after every
// sync that altered the view.
//
// Feed is safe for concurrent use.
type Feed struct {
	session Session
	config  FeedConfig
	filter  string
	clock   clock.Clock
	logger  *slog.Logger

	loopCtx    context.Context
	cancelLoop context.CancelFunc
	wake       chan struct{}
	changes    chan struct{}
	done       chan struct{}

	mu        sync.Mutex
	started   bool
	running   bool
	exited    bool
	exitErr   error
	nextBatch string
	rooms     map[ref.RoomID]*roomState
	order     []ref.RoomID
	sequence  int64
	attempt   uint64
	waiters   []*catchupWaiter
	interrupt context.CancelFunc
	failures  int
	lastErr   error
}

// NewFeed creates a Feed over session. Call Start to begin syncing.
func NewFeed(session Session, config FeedConfig) *Feed {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 2 * time.Second
	}
	if config.RetryLimit <= 0 {
		config.RetryLimit = 5
	}
	feedClock := config.Clock
	if feedClock == nil {
		feedClock = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	loopCtx, cancelLoop := context.WithCancel(context.Background())
	return &Feed{
		session:    session,
		config:     config,
		filter:     buildFeedFilter(config.TimelineLimit),
		clock:      feedClock,
		logger:     logger,
		loopCtx:    loopCtx,
		cancelLoop: cancelLoop,
		wake:       make(chan struct{}, 1),
		changes:    make(chan struct{}, 1),
		done:       make(chan struct{}),
		rooms:      make(map[ref.RoomID]*roomState),
	}
}

// buildFeedFilter constructs the inline JSON filter for /sync. Presence,
// account data, and ephemeral events are dropped; room state and timelines
// are kept in full.
func buildFeedFilter(timelineLimit int) string {
	roomFilter := map[string]any{
		"ephemeral": map[string]any{"types": []string{}},
	}
	if timelineLimit > 0 {
		roomFilter["timeline"] = map[string]any{"limit": timelineLimit}
	}

	top := map[string]any{
		"room":         roomFilter,
		"presence":     map[string]any{"types": []string{}},
		"account_data": map[string]any{"types": []string{}},
	}

	data, _ := json.Marshal(top)
	return string(data)
}

// Start performs the initial sync and launches the long-poll loop. The
// initial sync is bounded by ctx and by Stop; the loop runs until Stop or
// until the homeserver rejects the access token.
func (f *Feed) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.started {
		f.mu.Unlock()
		return fmt.Errorf("messaging: feed already started")
	}
	f.started = true
	f.mu.Unlock()

	syncCtx, cancelSync := context.WithCancel(ctx)
	defer cancelSync()
	stopWatch := context.AfterFunc(f.loopCtx, cancelSync)
	defer stopWatch()

	response, err := f.session.Sync(syncCtx, SyncOptions{
		SetTimeout: true,
		Timeout:    0,
		Filter:     f.filter,
	})
	if err != nil {
		if f.loopCtx.Err() != nil {
			f.finish(ErrFeedStopped)
			return ErrFeedStopped
		}
		wrapped := fmt.Errorf("messaging: initial sync: %w", err)
		f.finish(wrapped)
		return wrapped
	}
	f.apply(response)

	f.mu.Lock()
	if f.loopCtx.Err() != nil {
		f.mu.Unlock()
		f.finish(ErrFeedStopped)
		return ErrFeedStopped
	}
	f.running = true
	roomCount := len(f.order)
	f.mu.Unlock()

	go f.run()

	f.logger.Info("live feed started",
		"user_id", f.session.UserID(),
		"rooms", roomCount,
	)
	return nil
}

// Stop ends the long-poll loop and waits for it to exit. Pending Catchup
// calls return ErrFeedStopped and the Changes channel is closed.
// Idempotent.
func (f *Feed) Stop() {
	f.cancelLoop()

	f.mu.Lock()
	running := f.running
	f.mu.Unlock()

	if running {
		<-f.done
		return
	}
	f.finish(ErrFeedStopped)
}

// Done is closed when the feed has stopped for any reason.
func (f *Feed) Done() <-chan struct{} {
	return f.done
}

// Changes returns a channel that receives a value after each sync that
// changed the view. Signals coalesce: a receiver that falls behind sees one
// pending signal, not one per sync. Closed when the feed stops.
func (f *Feed) Changes() <-chan struct{} {
	return f.changes
}

// Err returns the error that stopped the feed, or the most recent sync
// error while the feed is degraded (RetryLimit consecutive failures).
// Returns nil while healthy and after a clean Stop.
func (f *Feed) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.exited {
		if errors.Is(f.exitErr, ErrFeedStopped) {
			return nil
		}
		return f.exitErr
	}
	if f.failures >= f.config.RetryLimit {
		return f.lastErr
	}
	return nil
}

// Catchup blocks until a /sync that started after the call has completed
// and been applied, interrupting any long-poll in flight so the round trip
// happens immediately. Returns that sync's error if it failed.
func (f *Feed) Catchup(ctx context.Context) error {
	f.mu.Lock()
	if f.exited {
		err := f.exitErr
		f.mu.Unlock()
		return err
	}
	if !f.running {
		f.mu.Unlock()
		return ErrFeedNotStarted
	}
	waiter := &catchupWaiter{
		after:  f.attempt,
		result: make(chan error, 1),
	}
	f.waiters = append(f.waiters, waiter)
	if f.interrupt != nil {
		f.interrupt()
	}
	f.mu.Unlock()

	select {
	case f.wake <- struct{}{}:
	default:
	}

	select {
	case err := <-waiter.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Rooms returns snapshots of every room the feed has seen, in the order
// the rooms first appeared in the sync stream.
func (f *Feed) Rooms() []RoomSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	snapshots := make([]RoomSnapshot, 0, len(f.order))
	for _, roomID := range f.order {
		snapshots = append(snapshots, f.rooms[roomID].snapshot(roomID))
	}
	return snapshots
}

// Room returns the snapshot of one room, or false if the feed has not seen it.
func (f *Feed) Room(roomID ref.RoomID) (RoomSnapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	room, ok := f.rooms[roomID]
	if !ok {
		return RoomSnapshot{}, false
	}
	return room.snapshot(roomID), true
}

func (f *Feed) run() {
	for {
		if f.loopCtx.Err() != nil {
			f.finish(ErrFeedStopped)
			return
		}

		f.mu.Lock()
		f.attempt++
		attempt := f.attempt
		since := f.nextBatch
		timeout := f.config.Timeout
		// Someone is waiting, or the last attempt failed: ask the server
		// to answer immediately instead of holding the connection.
		if len(f.waiters) > 0 || f.failures > 0 {
			timeout = 0
		}
		requestCtx, cancelRequest := context.WithCancel(f.loopCtx)
		f.interrupt = cancelRequest
		f.mu.Unlock()

		response, err := f.session.Sync(requestCtx, SyncOptions{
			Since:      since,
			SetTimeout: true,
			Timeout:    int(timeout / time.Millisecond),
			Filter:     f.filter,
		})
		interrupted := requestCtx.Err() != nil
		cancelRequest()

		f.mu.Lock()
		f.interrupt = nil
		f.mu.Unlock()

		if f.loopCtx.Err() != nil {
			continue
		}
		if err != nil && interrupted {
			// Catchup cut the long-poll short; go again with timeout 0.
			continue
		}
		if err != nil {
			if IsAuthError(err) {
				f.logger.Warn("live feed stopped: access token rejected",
					"user_id", f.session.UserID(),
					"error", err,
				)
				f.finish(fmt.Errorf("messaging: live feed stopped: %w", err))
				return
			}
			f.recordFailure(attempt, err)
			// TCP-level errors often leave a poisoned connection in the
			// HTTP pool. Drop idle connections so the retry dials fresh.
			if closer, ok := f.session.(interface{ CloseIdleConnections() }); ok {
				closer.CloseIdleConnections()
			}
			select {
			case <-f.loopCtx.Done():
			case <-f.wake:
			case <-f.clock.After(f.config.RetryDelay):
			}
			continue
		}

		changed := f.apply(response)
		f.resolve(attempt, nil)
		if changed {
			select {
			case f.changes <- struct{}{}:
			default:
			}
		}
	}
}

// recordFailure counts a failed sync and fails the waiters it was meant to
// satisfy.
func (f *Feed) recordFailure(attempt uint64, err error) {
	f.mu.Lock()
	f.failures++
	f.lastErr = err
	failures := f.failures
	f.mu.Unlock()

	if failures == f.config.RetryLimit {
		f.logger.Warn("live feed degraded",
			"user_id", f.session.UserID(),
			"consecutive_failures", failures,
			"error", err,
		)
	} else {
		f.logger.Debug("live feed sync error, retrying",
			"user_id", f.session.UserID(),
			"attempt", failures,
			"error", err,
		)
	}
	f.resolve(attempt, err)
}

// resolve answers every waiter whose registration preceded attempt. A nil
// err also clears the failure count.
func (f *Feed) resolve(attempt uint64, err error) {
	f.mu.Lock()
	if err == nil {
		if f.failures >= f.config.RetryLimit {
			f.logger.Info("live feed recovered", "user_id", f.session.UserID())
		}
		f.failures = 0
		f.lastErr = nil
	}
	var ready []*catchupWaiter
	remaining := f.waiters[:0]
	for _, waiter := range f.waiters {
		if waiter.after < attempt {
			ready = append(ready, waiter)
		} else {
			remaining = append(remaining, waiter)
		}
	}
	f.waiters = remaining
	f.mu.Unlock()

	for _, waiter := range ready {
		waiter.result <- err
	}
}

// finish records why the feed ended, releases all waiters, and closes the
// Changes and Done channels. Only the first call has any effect.
func (f *Feed) finish(err error) {
	f.mu.Lock()
	if f.exited {
		f.mu.Unlock()
		return
	}
	f.exited = true
	f.exitErr = err
	waiters := f.waiters
	f.waiters = nil
	f.mu.Unlock()

	f.cancelLoop()
	for _, waiter := range waiters {
		waiter.result <- err
	}
	close(f.changes)
	close(f.done)
}

// apply merges one sync response into the view and reports whether
// anything changed. Rooms new to this response are visited in room ID
// order so first-seen order is deterministic.
func (f *Feed) apply(response *SyncResponse) bool {
	self := f.session.UserID()
	f.mu.Lock()
	defer f.mu.Unlock()

	changed := false
	for _, roomID := range sortedRoomIDs(response.Rooms.Join) {
		joined := response.Rooms.Join[roomID]
		room, created := f.room(roomID)
		changed = changed || created
		for _, event := range joined.State.Events {
			changed = room.applyState(event) || changed
		}
		for _, event := range joined.Timeline.Events {
			changed = f.appendTimeline(room, event) || changed
		}
		changed = room.setMembership(MembershipJoin) || changed
	}

	for _, roomID := range sortedRoomIDs(response.Rooms.Invite) {
		invited := response.Rooms.Invite[roomID]
		room, created := f.room(roomID)
		changed = changed || created
		for _, event := range invited.InviteState.Events {
			changed = room.applyState(event) || changed
			if event.Type == ref.EventTypeMember && event.StateKey != nil && *event.StateKey == self.String() {
				room.inviter = event.Sender
				room.directInvite, _ = event.Content["is_direct"].(bool)
			}
		}
		changed = room.setMembership(MembershipInvite) || changed
	}

	for _, roomID := range sortedRoomIDs(response.Rooms.Leave) {
		left := response.Rooms.Leave[roomID]
		room, created := f.room(roomID)
		changed = changed || created
		for _, event := range left.State.Events {
			changed = room.applyState(event) || changed
		}
		for _, event := range left.Timeline.Events {
			changed = f.appendTimeline(room, event) || changed
		}
		changed = room.setMembership(MembershipLeave) || changed
	}

	if response.NextBatch != "" {
		f.nextBatch = response.NextBatch
	}
	return changed
}

// room returns the state for roomID, creating it on first sight. Caller
// holds f.mu.
func (f *Feed) room(roomID ref.RoomID) (*roomState, bool) {
	if room, ok := f.rooms[roomID]; ok {
		return room, false
	}
	room := &roomState{
		members: make(map[ref.UserID]string),
		seen:    make(map[ref.EventID]struct{}),
	}
	f.rooms[roomID] = room
	f.order = append(f.order, roomID)
	return room, true
}

// appendTimeline adds event to the room's log unless its ID was already
// recorded. Timeline events that carry a state key also update room state.
// Caller holds f.mu.
func (f *Feed) appendTimeline(room *roomState, event Event) bool {
	if event.EventID.IsZero() {
		return false
	}
	if _, seen := room.seen[event.EventID]; seen {
		return false
	}
	room.seen[event.EventID] = struct{}{}
	f.sequence++
	room.events = append(room.events, FeedEvent{Event: event, Sequence: f.sequence})
	if event.OriginServerTS > room.lastActivity {
		room.lastActivity = event.OriginServerTS
	}
	room.applyState(event)
	return true
}

func (r *roomState) setMembership(membership string) bool {
	if r.membership == membership {
		return false
	}
	r.membership = membership
	return true
}

// applyState folds one state event into the room. Only the member and name
// types matter to the view; everything else is ignored.
func (r *roomState) applyState(event Event) bool {
	if event.StateKey == nil {
		return false
	}
	switch event.Type {
	case ref.EventTypeMember:
		userID, err := ref.ParseUserID(*event.StateKey)
		if err != nil {
			return false
		}
		membership := event.ContentString("membership")
		previous, known := r.members[userID]
		if known && previous == membership {
			return false
		}
		if !known {
			r.memberOrder = append(r.memberOrder, userID)
		}
		r.members[userID] = membership
		return true
	case ref.EventTypeName:
		name := event.ContentString("name")
		if r.name == name {
			return false
		}
		r.name = name
		return true
	}
	return false
}

func (r *roomState) snapshot(roomID ref.RoomID) RoomSnapshot {
	joined := make([]ref.UserID, 0, 2)
	for _, userID := range r.memberOrder {
		if r.members[userID] == MembershipJoin {
			joined = append(joined, userID)
		}
	}
	snapshot := RoomSnapshot{
		RoomID:        roomID,
		Name:          r.name,
		Membership:    r.membership,
		JoinedMembers: joined,
		LastActivity:  r.lastActivity,
		Events:        slices.Clone(r.events),
	}
	if r.membership == MembershipInvite {
		snapshot.Inviter = r.inviter
		snapshot.DirectInvite = r.directInvite
	}
	return snapshot
}

func sortedRoomIDs[V any](rooms map[ref.RoomID]V) []ref.RoomID {
	roomIDs := make([]ref.RoomID, 0, len(rooms))
	for roomID := range rooms {
		roomIDs = append(roomIDs, roomID)
	}
	slices.SortFunc(roomIDs, func(a, b ref.RoomID) int {
		return cmp.Compare(a.String(), b.String())
	})
	return roomIDs
}
