// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dm

import (
	"slices"
	"testing"
	"time"

	"github.com/bureau-foundation/bureau-dm/lib/ref"
	"github.com/bureau-foundation/bureau-dm/messaging"
	"github.com/bureau-foundation/bureau-dm/messaging/messagingtest"
)

func bodies(timeline []MessageEvent) []string {
	result := make([]string, len(timeline))
	for index, event := range timeline {
		result[index] = event.Body
	}
	return result
}

// directRoom starts a fake homeserver with alice and bob sharing a joined
// room, signs alice in, and returns the pieces.
func directRoom(t *testing.T, options messagingtest.Options) (*messagingtest.Homeserver, *Manager, *Session, ref.RoomID, ref.UserID) {
	t.Helper()
	options.AutoJoin = true
	homeserver := messagingtest.Start(t.Cleanup, options)
	alice := homeserver.AddUser("alice", "password1")
	bob := homeserver.AddUser("bob", "password1")
	roomID := homeserver.CreateRoom(alice, "", bob)
	manager := newTestManager(t, ManagerConfig{})
	session := signIn(t, manager, homeserver, "alice")
	return homeserver, manager, session, roomID, bob
}

func TestLoadFiltersAndOrders(t *testing.T) {
	homeserver, _, session, roomID, bob := directRoom(t, messagingtest.Options{})
	const base int64 = 1_800_000_000_000

	homeserver.InjectMessage(roomID, bob, "later", base+9000)
	homeserver.InjectMessage(roomID, bob, "earlier", base+8000)
	homeserver.InjectEvent(roomID, messaging.Event{
		Type:    ref.EventType("m.reaction"),
		Sender:  bob,
		Content: map[string]any{"key": "+1"},
	})
	homeserver.InjectMessage(roomID, bob, "tie first", base+10000)
	homeserver.InjectMessage(roomID, session.UserID(), "tie second", base+10000)
	homeserver.InjectEvent(roomID, messaging.Event{
		Type:           ref.EventTypeMessage,
		Sender:         bob,
		OriginServerTS: base + 11000,
		Content:        map[string]any{},
	})

	synchronizer := NewSynchronizer(SynchronizerConfig{Logger: quietLogger()})
	timeline, err := synchronizer.Load(testContext(t), session, roomID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	want := []string{"earlier", "later", "tie first", "tie second"}
	if got := bodies(timeline); !slices.Equal(got, want) {
		t.Fatalf("timeline = %q, want %q", got, want)
	}

	seen := make(map[string]bool)
	for _, event := range timeline {
		if event.Confirmation != Confirmed {
			t.Errorf("%q is %s, want confirmed", event.Body, event.Confirmation)
		}
		if event.ID == "" || event.ID != event.EventID.String() {
			t.Errorf("%q ID = %q, want its event ID", event.Body, event.ID)
		}
		if seen[event.ID] {
			t.Errorf("duplicate ID %s", event.ID)
		}
		seen[event.ID] = true
		if event.MsgType != messaging.MsgTypeText {
			t.Errorf("%q MsgType = %q", event.Body, event.MsgType)
		}
	}
	if timeline[0].Timestamp != time.UnixMilli(base+8000) {
		t.Errorf("Timestamp = %v, want %v", timeline[0].Timestamp, time.UnixMilli(base+8000))
	}
	if timeline[0].Own {
		t.Error("bob's message attributed to alice")
	}
	if !timeline[3].Own {
		t.Error("alice's own message not attributed to her")
	}
}

func TestLoadIdempotent(t *testing.T) {
	homeserver, _, session, roomID, bob := directRoom(t, messagingtest.Options{})
	homeserver.InjectMessage(roomID, bob, "one", 0)
	homeserver.InjectMessage(roomID, bob, "two", 0)

	synchronizer := NewSynchronizer(SynchronizerConfig{Logger: quietLogger()})
	first, err := synchronizer.Load(testContext(t), session, roomID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	second, err := synchronizer.Load(testContext(t), session, roomID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !slices.Equal(first, second) {
		t.Errorf("successive loads differ:\n%v\n%v", first, second)
	}

	// The result is a fresh slice each time.
	first[0].Body = "mutated"
	third, _ := synchronizer.Load(testContext(t), session, roomID)
	if third[0].Body != "one" {
		t.Error("Load returned a slice shared with an earlier result")
	}
}

func TestLoadSeesNewMessages(t *testing.T) {
	homeserver, _, session, roomID, bob := directRoom(t, messagingtest.Options{})
	synchronizer := NewSynchronizer(SynchronizerConfig{Logger: quietLogger()})

	timeline, err := synchronizer.Load(testContext(t), session, roomID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(timeline) != 0 {
		t.Fatalf("expected no messages yet, got %q", bodies(timeline))
	}

	homeserver.InjectMessage(roomID, bob, "arrived", 0)
	timeline, err = synchronizer.Load(testContext(t), session, roomID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := bodies(timeline); !slices.Equal(got, []string{"arrived"}) {
		t.Errorf("timeline = %q, want [arrived]", got)
	}
}

func TestTimelineState(t *testing.T) {
	homeserver, manager, session, roomID, _ := directRoom(t, messagingtest.Options{})
	synchronizer := NewSynchronizer(SynchronizerConfig{Logger: quietLogger()})

	if state := synchronizer.State(roomID); state != TimelineEmpty {
		t.Fatalf("initial state = %s, want empty", state)
	}
	if _, err := synchronizer.Load(testContext(t), session, roomID); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if state := synchronizer.State(roomID); state != TimelineLoaded {
		t.Fatalf("state after Load = %s, want loaded", state)
	}
	if _, err := synchronizer.Load(testContext(t), session, roomID); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if state := synchronizer.State(roomID); state != TimelineLoaded {
		t.Fatalf("state after refresh = %s, want loaded", state)
	}

	// A different session starts from scratch.
	other := signIn(t, manager, homeserver, "bob")
	if _, err := synchronizer.View(other, roomID); err != nil {
		t.Fatalf("View: %v", err)
	}
	if state := synchronizer.State(roomID); state != TimelineEmpty {
		t.Errorf("state for a new session = %s, want empty", state)
	}
}

func TestLoadErrors(t *testing.T) {
	_, _, session, _, _ := directRoom(t, messagingtest.Options{})
	synchronizer := NewSynchronizer(SynchronizerConfig{Logger: quietLogger()})

	_, err := synchronizer.Load(testContext(t), session, ref.RoomID{})
	requireCategory(t, err, CategoryValidation)

	_, err = synchronizer.Load(testContext(t), session, ref.MustParseRoomID("!elsewhere:test.local"))
	requireCategory(t, err, CategoryServer)

	_, err = synchronizer.Load(testContext(t), nil, ref.MustParseRoomID("!elsewhere:test.local"))
	requireCategory(t, err, CategoryAuthentication)
}

func TestOwnershipIsSelf(t *testing.T) {
	alice := ref.MustParseUserID("@alice:example.org")
	bob := ref.MustParseUserID("@bob:example.org")
	remote := ref.MustParseUserID("@carol:elsewhere.net")

	tests := []struct {
		name      string
		ownership Ownership
		sender    ref.UserID
		want      bool
	}{
		{"identity self", OwnershipByIdentity, alice, true},
		{"identity same server", OwnershipByIdentity, bob, false},
		{"identity remote", OwnershipByIdentity, remote, false},
		{"server self", OwnershipByServer, alice, true},
		{"server same server misattributed", OwnershipByServer, bob, true},
		{"server remote", OwnershipByServer, remote, false},
		{"server zero sender", OwnershipByServer, ref.UserID{}, false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := test.ownership.IsSelf(test.sender, alice); got != test.want {
				t.Errorf("IsSelf(%s) = %v, want %v", test.sender, got, test.want)
			}
		})
	}
}

func TestParseOwnership(t *testing.T) {
	for value, want := range map[string]Ownership{
		"":         OwnershipByIdentity,
		"identity": OwnershipByIdentity,
		"server":   OwnershipByServer,
	} {
		got, err := ParseOwnership(value)
		if err != nil || got != want {
			t.Errorf("ParseOwnership(%q) = %v, %v; want %v", value, got, err, want)
		}
	}
	if _, err := ParseOwnership("domain"); err == nil {
		t.Error("ParseOwnership accepted an unknown rule")
	}
}

func TestViewMergesPending(t *testing.T) {
	homeserver, _, session, roomID, bob := directRoom(t, messagingtest.Options{})
	homeserver.InjectMessage(roomID, bob, "from bob", 0)
	synchronizer := NewSynchronizer(SynchronizerConfig{Logger: quietLogger()})
	if _, err := synchronizer.Load(testContext(t), session, roomID); err != nil {
		t.Fatalf("Load: %v", err)
	}

	synchronizer.addPending(session, roomID, MessageEvent{
		ID:            "dm-local",
		TransactionID: "dm-local",
		Sender:        session.UserID(),
		Body:          "still sending",
		Confirmation:  Pending,
		Own:           true,
	})
	timeline, err := synchronizer.View(session, roomID)
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	if got := bodies(timeline); !slices.Equal(got, []string{"from bob", "still sending"}) {
		t.Fatalf("timeline = %q", got)
	}
	if timeline[1].Confirmation != Pending {
		t.Errorf("local echo is %s, want pending", timeline[1].Confirmation)
	}

	// An echo without a transaction ID reconciles through the event ID
	// the send response reported.
	eventID := homeserver.InjectMessage(roomID, session.UserID(), "still sending", 0)
	synchronizer.confirmPending(session, roomID, "dm-local", eventID)
	timeline, err = synchronizer.Load(testContext(t), session, roomID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := bodies(timeline); !slices.Equal(got, []string{"from bob", "still sending"}) {
		t.Fatalf("timeline after echo = %q", got)
	}
	if timeline[1].Confirmation != Confirmed || timeline[1].EventID != eventID {
		t.Errorf("echo not reconciled: %+v", timeline[1])
	}

	synchronizer.addPending(session, roomID, MessageEvent{ID: "dm-doomed", TransactionID: "dm-doomed", Body: "doomed", Confirmation: Pending})
	synchronizer.dropPending(session, roomID, "dm-doomed")
	timeline, _ = synchronizer.View(session, roomID)
	if len(timeline) != 2 {
		t.Errorf("dropped pending event still visible: %q", bodies(timeline))
	}
}

func TestEndedSessionCannotRebind(t *testing.T) {
	homeserver, manager, old, roomID, _ := directRoom(t, messagingtest.Options{})
	synchronizer := NewSynchronizer(SynchronizerConfig{Logger: quietLogger()})
	if _, err := synchronizer.View(old, roomID); err != nil {
		t.Fatalf("View: %v", err)
	}

	manager.End()
	fresh := signIn(t, manager, homeserver, "alice")
	synchronizer.addPending(fresh, roomID, MessageEvent{
		ID:            "dm-fresh",
		TransactionID: "dm-fresh",
		Sender:        fresh.UserID(),
		Body:          "typed after signing back in",
		Confirmation:  Pending,
		Own:           true,
	})

	// A late call from the ended session, having passed its liveness
	// check before End, reaches the synchronizer.
	synchronizer.mu.Lock()
	bound := synchronizer.bindLocked(old)
	synchronizer.mu.Unlock()
	if bound {
		t.Error("ended session rebound the synchronizer")
	}
	synchronizer.addPending(old, roomID, MessageEvent{ID: "dm-stale", TransactionID: "dm-stale", Body: "stale", Confirmation: Pending})

	view, err := synchronizer.View(fresh, roomID)
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	if got := bodies(view); !slices.Equal(got, []string{"typed after signing back in"}) {
		t.Errorf("timeline = %q, want only the new session's pending echo", got)
	}

	_, err = synchronizer.View(old, roomID)
	requireCategory(t, err, CategoryAuthentication)
}
