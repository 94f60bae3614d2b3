// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dmui

import (
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"

	"github.com/bureau-foundation/bureau-dm/lib/clock"
	"github.com/bureau-foundation/bureau-dm/lib/dm"
	"github.com/bureau-foundation/bureau-dm/lib/ref"
	"github.com/bureau-foundation/bureau-dm/messaging"
	"github.com/bureau-foundation/bureau-dm/messaging/messagingtest"
)

// harness drives a Model against a fake homeserver the way a
// tea.Program would: commands run on their own goroutines and their
// results are applied one at a time on the test goroutine.
type harness struct {
	t          *testing.T
	homeserver *messagingtest.Homeserver
	manager    *dm.Manager
	model      Model
	messages   chan tea.Msg
	done       chan struct{}
	quit       bool
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	homeserver := messagingtest.Start(t.Cleanup, messagingtest.Options{AutoJoin: true})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	manager := dm.NewManager(dm.ManagerConfig{
		Logger:        logger,
		LogoutTimeout: time.Second,
		Feed:          messaging.FeedConfig{Timeout: time.Second, RetryDelay: 50 * time.Millisecond},
	})
	t.Cleanup(manager.End)
	synchronizer := dm.NewSynchronizer(dm.SynchronizerConfig{Logger: logger})

	h := &harness{
		t:          t,
		homeserver: homeserver,
		manager:    manager,
		messages:   make(chan tea.Msg, 64),
		done:       make(chan struct{}),
	}
	t.Cleanup(func() { close(h.done) })

	h.model = NewModel(Config{
		Services: Services{
			Manager:      manager,
			Directory:    dm.NewDirectory(logger),
			Synchronizer: synchronizer,
			Coordinator:  dm.NewCoordinator(synchronizer, dm.CoordinatorConfig{Logger: logger}),
		},
		ServerAddress:  homeserver.URL(),
		Clock:          clock.Fake(time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC)),
		RequestTimeout: 10 * time.Second,
	})
	h.update(tea.WindowSizeMsg{Width: 120, Height: 30})
	return h
}

// update applies message and starts whatever command it returns.
func (h *harness) update(message tea.Msg) {
	if _, isQuit := message.(tea.QuitMsg); isQuit {
		h.quit = true
		return
	}
	updated, command := h.model.Update(message)
	h.model = updated.(Model)
	h.dispatch(command)
}

// dispatch runs command in the background. Batches are unpacked so each
// leaf runs independently; a leaf that blocks (a tick, the feed wait)
// simply never reports.
func (h *harness) dispatch(command tea.Cmd) {
	if command == nil {
		return
	}
	go func() {
		message := command()
		if batch, isBatch := message.(tea.BatchMsg); isBatch {
			for _, inner := range batch {
				h.dispatch(inner)
			}
			return
		}
		if message == nil {
			return
		}
		select {
		case h.messages <- message:
		case <-h.done:
		}
	}()
}

// awaitState applies incoming messages until condition holds.
func (h *harness) awaitState(description string, condition func(Model) bool) {
	h.t.Helper()
	deadline := time.After(10 * time.Second)
	for !condition(h.model) {
		select {
		case message := <-h.messages:
			h.update(message)
		case <-deadline:
			h.t.Fatalf("timed out waiting for %s; screen:\n%s", description, ansi.Strip(h.model.View()))
		}
	}
}

func (h *harness) typeText(text string) {
	h.update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
}

func (h *harness) press(keyType tea.KeyType) {
	h.update(tea.KeyMsg{Type: keyType})
}

func (h *harness) screen() string {
	return ansi.Strip(h.model.View())
}

// signIn fills in the login form and waits for the chat screen.
func (h *harness) signIn(username string) {
	h.t.Helper()
	h.typeText(username)
	h.press(tea.KeyTab)
	h.typeText("password1")
	h.press(tea.KeyEnter)
	h.awaitState("the chat screen", func(m Model) bool { return m.Screen() == ScreenChat })
}

// withConversation creates alice and bob sharing a direct room that
// holds one message from bob, and signs alice in with that room open.
func withConversation(t *testing.T) (*harness, ref.RoomID, ref.UserID) {
	t.Helper()
	h := newHarness(t)
	alice := h.homeserver.AddUser("alice", "password1")
	bob := h.homeserver.AddUser("bob", "password1")
	roomID := h.homeserver.CreateRoom(alice, "", bob)
	h.homeserver.InjectMessage(roomID, bob, "hi alice", 0)

	h.signIn("alice")
	h.awaitState("the conversation to open", func(m Model) bool {
		return m.selected == roomID && len(m.timeline) == 1
	})
	return h, roomID, bob
}

func timelineBodies(timeline []dm.MessageEvent) []string {
	result := make([]string, len(timeline))
	for index, event := range timeline {
		result[index] = event.Body
	}
	return result
}

func TestSignInOpensFirstConversation(t *testing.T) {
	h, roomID, bob := withConversation(t)

	if h.model.session == nil || h.model.session.UserID().Localpart() != "alice" {
		t.Fatalf("session = %v, want alice's", h.model.session)
	}
	if len(h.model.conversations) != 1 || h.model.conversations[0].ID != roomID {
		t.Fatalf("conversations = %+v", h.model.conversations)
	}
	if h.model.conversations[0].Counterpart != bob {
		t.Errorf("counterpart = %s, want %s", h.model.conversations[0].Counterpart, bob)
	}
	if h.model.form.fields[fieldPassword].Value() != "" {
		t.Error("password left in the form after sign-in")
	}

	screen := h.screen()
	for _, want := range []string{"bureau-dm", "@alice:test.local", "@bob:test.local", "hi alice", "q quit"} {
		if !strings.Contains(screen, want) {
			t.Errorf("screen missing %q:\n%s", want, screen)
		}
	}
}

func TestSignInWrongPassword(t *testing.T) {
	h := newHarness(t)
	h.homeserver.AddUser("alice", "password1")

	h.typeText("alice")
	h.press(tea.KeyTab)
	h.typeText("not-the-password")
	h.press(tea.KeyEnter)
	if !h.model.form.pending {
		t.Fatal("form not pending after submit")
	}
	if !strings.Contains(h.screen(), "Signing in...") {
		t.Error("pending form does not say it is signing in")
	}

	h.awaitState("the login to fail", func(m Model) bool { return !m.form.pending })
	if h.model.Screen() != ScreenSignIn {
		t.Fatal("left the sign-in screen after a failed login")
	}
	if !strings.HasPrefix(h.model.form.err, "Authentication failed") {
		t.Errorf("form error = %q", h.model.form.err)
	}
	if h.manager.Current() != nil {
		t.Error("failed login left a live session")
	}
}

func TestSignInValidationBeforeNetwork(t *testing.T) {
	h := newHarness(t)

	h.typeText("alice")
	h.press(tea.KeyEnter)
	if h.model.form.err != "Password is required" {
		t.Errorf("form error = %q", h.model.form.err)
	}
	if h.model.form.pending {
		t.Error("invalid form submitted")
	}
	if count := h.homeserver.RequestCount("/login"); count != 0 {
		t.Errorf("%d login requests for an invalid form", count)
	}
	if !strings.Contains(h.screen(), "Password is required") {
		t.Error("inline error not rendered")
	}
}

func TestSignInRegister(t *testing.T) {
	h := newHarness(t)

	h.press(tea.KeyCtrlR)
	if h.model.form.mode != dm.ModeRegister {
		t.Fatal("ctrl+r did not switch to registration")
	}
	if !strings.Contains(h.screen(), "Create an account") {
		t.Error("registration form not rendered")
	}

	h.typeText("carol")
	h.press(tea.KeyTab)
	h.typeText("password1")
	h.press(tea.KeyTab)
	h.typeText("password2")
	h.press(tea.KeyEnter)
	if h.model.form.err != "Passwords do not match" {
		t.Fatalf("form error = %q", h.model.form.err)
	}
	if count := h.homeserver.RequestCount("/register"); count != 0 {
		t.Fatalf("%d register requests for mismatched passwords", count)
	}

	h.press(tea.KeyBackspace)
	h.typeText("1")
	h.press(tea.KeyEnter)
	h.awaitState("the chat screen", func(m Model) bool { return m.Screen() == ScreenChat })

	if !h.homeserver.HasUser(ref.MustParseUserID("@carol:test.local")) {
		t.Error("account not created")
	}
	screen := h.screen()
	if !strings.Contains(screen, "No conversations yet") {
		t.Errorf("new account screen missing the empty state:\n%s", screen)
	}
	if !strings.Contains(screen, "Select a conversation") {
		t.Errorf("timeline pane missing its placeholder:\n%s", screen)
	}
}

func TestSendFromComposeBox(t *testing.T) {
	h, roomID, _ := withConversation(t)

	h.press(tea.KeyTab)
	if h.model.focus != FocusCompose {
		t.Fatalf("focus = %d, want compose", h.model.focus)
	}
	h.typeText("hello bob")
	h.press(tea.KeyEnter)
	if !h.model.sending {
		t.Fatal("Enter did not start a send")
	}

	h.awaitState("the send to finish", func(m Model) bool { return !m.sending })
	if value := h.model.compose.Value(); value != "" {
		t.Errorf("compose box holds %q after a successful send", value)
	}
	want := []string{"hi alice", "hello bob"}
	if got := timelineBodies(h.model.timeline); !slices.Equal(got, want) {
		t.Fatalf("timeline = %q, want %q", got, want)
	}
	last := h.model.timeline[1]
	if last.Confirmation != dm.Confirmed || !last.Own {
		t.Errorf("sent message = %+v, want confirmed and own", last)
	}
	stored := h.homeserver.Messages(roomID)
	if len(stored) != 2 || stored[1].ContentString("body") != "hello bob" {
		t.Errorf("server holds %d messages", len(stored))
	}
	if !strings.Contains(h.screen(), "hello bob") {
		t.Error("sent message not on screen")
	}
}

func TestSendBlankIgnored(t *testing.T) {
	h, roomID, _ := withConversation(t)

	h.press(tea.KeyTab)
	h.typeText("   ")
	h.press(tea.KeyEnter)
	if h.model.sending {
		t.Error("blank message started a send")
	}
	if count := h.homeserver.RequestCount("/send/"); count != 0 {
		t.Errorf("%d send requests for a blank message", count)
	}
	if len(h.homeserver.Messages(roomID)) != 1 {
		t.Error("blank message reached the server")
	}
}

func TestSendFailureKeepsText(t *testing.T) {
	h, _, _ := withConversation(t)
	h.homeserver.Fail(http.MethodPut, "/send/", http.StatusInternalServerError, messaging.ErrCodeUnknown, "storage full")

	h.press(tea.KeyTab)
	h.typeText("will fail")
	h.press(tea.KeyEnter)
	h.awaitState("the send to fail", func(m Model) bool { return !m.sending })

	if value := h.model.compose.Value(); value != "will fail" {
		t.Errorf("compose box = %q, want the unsent text", value)
	}
	if !strings.HasPrefix(h.model.status.text, "Message not sent: Server error") {
		t.Errorf("status = %q", h.model.status.text)
	}
	if got := timelineBodies(h.model.timeline); !slices.Equal(got, []string{"hi alice"}) {
		t.Errorf("timeline after failed send = %q", got)
	}

	h.homeserver.ClearFailures()
	h.press(tea.KeyEnter)
	h.awaitState("the retry to finish", func(m Model) bool { return !m.sending })
	if got := timelineBodies(h.model.timeline); !slices.Equal(got, []string{"hi alice", "will fail"}) {
		t.Errorf("timeline after retry = %q", got)
	}
}

func TestStartConversation(t *testing.T) {
	h, original, _ := withConversation(t)
	dave := h.homeserver.AddUser("dave", "password1")

	h.typeText("n")
	if h.model.focus != FocusNewConversation || h.model.modal == nil {
		t.Fatal("n did not open the new conversation prompt")
	}
	if !strings.Contains(h.screen(), "New conversation") {
		t.Error("prompt not rendered")
	}

	h.typeText(dave.String())
	h.press(tea.KeyEnter)
	h.awaitState("the new conversation to open", func(m Model) bool {
		return m.modal == nil && m.selected != original
	})
	if h.model.focus != FocusList {
		t.Errorf("focus = %d, want the list", h.model.focus)
	}
	roomID := h.model.selected
	if membership := h.homeserver.Membership(roomID, dave); membership != messaging.MembershipJoin {
		t.Errorf("dave's membership = %q", membership)
	}

	h.awaitState("the list to include the new conversation", func(m Model) bool {
		return len(m.conversations) == 2
	})
	if h.model.selected != roomID {
		t.Error("relisting changed the selection")
	}
}

func TestStartConversationInvalidUser(t *testing.T) {
	h, _, _ := withConversation(t)

	h.typeText("n")
	h.typeText("dave")
	h.press(tea.KeyEnter)
	h.awaitState("the prompt to report the error", func(m Model) bool {
		return m.modal != nil && !m.modal.pending && m.modal.err != ""
	})
	if !strings.Contains(h.model.modal.err, "not a Matrix user ID") {
		t.Errorf("prompt error = %q", h.model.modal.err)
	}
	if count := h.homeserver.RequestCount("/createRoom"); count != 0 {
		t.Errorf("%d createRoom requests for an invalid user ID", count)
	}

	h.press(tea.KeyEscape)
	if h.model.modal != nil || h.model.focus != FocusList {
		t.Error("Esc did not close the prompt")
	}
}

func TestAcceptInvitation(t *testing.T) {
	h, original, _ := withConversation(t)
	carol := h.homeserver.AddUser("carol", "password1")
	alice := h.model.session.UserID()

	roomID := h.homeserver.InviteDirect(carol, alice)
	h.awaitState("the invitation to arrive", func(m Model) bool { return len(m.invites) == 1 })
	if h.model.invites[0].ID != roomID || h.model.invites[0].Inviter != carol {
		t.Fatalf("invites = %+v", h.model.invites)
	}
	screen := h.screen()
	for _, want := range []string{"✉ @carol:test.local", "a accept"} {
		if !strings.Contains(screen, want) {
			t.Errorf("screen missing %q:\n%s", want, screen)
		}
	}
	if h.model.selected != original {
		t.Error("an arriving invitation changed the selection")
	}

	h.typeText("a")
	if !h.model.accepting {
		t.Fatal("a did not start accepting the invitation")
	}
	h.awaitState("the accepted conversation to open", func(m Model) bool {
		return !m.accepting && m.selected == roomID
	})
	if membership := h.homeserver.Membership(roomID, alice); membership != messaging.MembershipJoin {
		t.Errorf("alice's membership = %q, want join", membership)
	}
	if len(h.model.invites) != 0 {
		t.Errorf("accepted invitation still offered: %+v", h.model.invites)
	}
	if !strings.HasPrefix(h.model.status.text, "Joined conversation with @carol") {
		t.Errorf("status = %q", h.model.status.text)
	}
	h.awaitState("the list to include the accepted conversation", func(m Model) bool {
		return len(m.conversations) == 2
	})
}

func TestAcceptWithoutInvitationIgnored(t *testing.T) {
	h, _, _ := withConversation(t)
	h.typeText("a")
	if h.model.accepting {
		t.Error("a started accepting with no invitation pending")
	}
	if count := h.homeserver.RequestCount("/join/"); count != 0 {
		t.Errorf("%d join requests with no invitation", count)
	}
}

func TestFeedChangeRefreshesTimeline(t *testing.T) {
	h, roomID, bob := withConversation(t)

	h.homeserver.InjectMessage(roomID, bob, "live update", 0)
	h.awaitState("the pushed message", func(m Model) bool {
		bodies := timelineBodies(m.timeline)
		return len(bodies) > 0 && bodies[len(bodies)-1] == "live update"
	})
	if !strings.Contains(h.screen(), "live update") {
		t.Error("pushed message not on screen")
	}
}

func TestStaleResultsDiscardedAfterSignOut(t *testing.T) {
	h, roomID, _ := withConversation(t)
	old := h.model.session

	h.press(tea.KeyCtrlL)
	if h.model.Screen() != ScreenSignIn {
		t.Fatal("ctrl+l did not return to the sign-in form")
	}
	if h.model.status.text != "Logged out" {
		t.Errorf("status = %q", h.model.status.text)
	}
	if h.model.session != nil || !h.model.selected.IsZero() {
		t.Error("chat state survived sign-out")
	}

	stale := []dm.MessageEvent{{ID: "stale", Body: "stale"}}
	h.update(timelineMsg{session: old, roomID: roomID, timeline: stale})
	h.update(conversationsMsg{session: old, conversations: []dm.Conversation{{ID: roomID}}})
	h.update(sentMsg{session: old, roomID: roomID, body: "late", receipt: dm.Receipt{Timeline: stale}})
	h.update(feedChangedMsg{session: old})
	h.update(sessionBegunMsg{attempt: h.model.form.attempt - 1, session: old})

	if h.model.timeline != nil || h.model.conversations != nil {
		t.Error("a result for the ended session reached the view")
	}
	if h.model.Screen() != ScreenSignIn {
		t.Error("a stale sign-in result switched screens")
	}

	deadline := time.Now().Add(10 * time.Second)
	for h.manager.Current() != nil {
		if time.Now().After(deadline) {
			t.Fatal("session not ended after sign-out")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if old.Live() {
		t.Error("old session still live")
	}
}

func TestConversationFilter(t *testing.T) {
	h := newHarness(t)
	alice := h.homeserver.AddUser("alice", "password1")
	bob := h.homeserver.AddUser("bob", "password1")
	carol := h.homeserver.AddUser("carol", "password1")
	planning := h.homeserver.CreateRoom(alice, "Planning", carol)
	withBob := h.homeserver.CreateRoom(alice, "", bob)

	h.signIn("alice")
	h.awaitState("both conversations", func(m Model) bool { return len(m.conversations) == 2 })
	if h.model.selected != planning {
		t.Fatalf("selected = %s, want the first listed conversation", h.model.selected)
	}

	h.typeText("/")
	if h.model.focus != FocusFilter {
		t.Fatal("/ did not focus the filter")
	}
	h.typeText("bob")
	if len(h.model.listed) != 1 || h.model.listed[0].conversation.ID != withBob {
		t.Fatalf("listed = %+v, want only the conversation with bob", h.model.listed)
	}
	if len(h.model.listed[0].positions) == 0 {
		t.Error("match positions not recorded")
	}

	h.press(tea.KeyEnter)
	if h.model.focus != FocusList || h.model.selected != withBob {
		t.Fatalf("Enter in the filter: focus %d, selected %s", h.model.focus, h.model.selected)
	}

	h.press(tea.KeyEscape)
	if h.model.filter.Value() != "" || len(h.model.listed) != 2 {
		t.Fatal("Esc did not clear the filter")
	}
	if h.model.cursor != 1 {
		t.Errorf("cursor = %d, want it on the selected conversation", h.model.cursor)
	}

	h.typeText("/")
	h.typeText("zzz")
	if len(h.model.listed) != 0 || !strings.Contains(h.screen(), "No matches") {
		t.Error("unmatched filter not shown as empty")
	}
}

func TestListNavigation(t *testing.T) {
	h := newHarness(t)
	alice := h.homeserver.AddUser("alice", "password1")
	bob := h.homeserver.AddUser("bob", "password1")
	carol := h.homeserver.AddUser("carol", "password1")
	first := h.homeserver.CreateRoom(alice, "", bob)
	second := h.homeserver.CreateRoom(alice, "", carol)
	h.homeserver.InjectMessage(second, carol, "from carol", 0)

	h.signIn("alice")
	h.awaitState("both conversations", func(m Model) bool { return len(m.conversations) == 2 })
	if h.model.selected != first {
		t.Fatalf("selected = %s, want %s", h.model.selected, first)
	}

	h.typeText("j")
	if h.model.selected != second || h.model.cursor != 1 {
		t.Fatalf("j: selected %s cursor %d", h.model.selected, h.model.cursor)
	}
	h.awaitState("carol's message", func(m Model) bool {
		return slices.Equal(timelineBodies(m.timeline), []string{"from carol"})
	})

	h.typeText("j")
	if h.model.cursor != 1 {
		t.Errorf("cursor moved past the end: %d", h.model.cursor)
	}
	h.typeText("k")
	if h.model.selected != first || h.model.cursor != 0 {
		t.Errorf("k: selected %s cursor %d", h.model.selected, h.model.cursor)
	}
}

func TestQuitKeys(t *testing.T) {
	t.Run("q types into the sign-in form", func(t *testing.T) {
		model := NewModel(Config{})
		updated, _ := model.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
		updated, _ = updated.(Model).Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
		model = updated.(Model)
		if value := model.form.fields[fieldUsername].Value(); value != "q" {
			t.Errorf("username = %q, want q", value)
		}
	})

	t.Run("ctrl+c quits from the sign-in form", func(t *testing.T) {
		_, command := NewModel(Config{}).Update(tea.KeyMsg{Type: tea.KeyCtrlC})
		if command == nil {
			t.Fatal("ctrl+c returned no command")
		}
		if _, isQuit := command().(tea.QuitMsg); !isQuit {
			t.Error("ctrl+c did not quit")
		}
	})

	t.Run("q quits from the conversation list", func(t *testing.T) {
		h, _, _ := withConversation(t)
		h.typeText("q")
		if !h.quit {
			h.awaitState("quit", func(Model) bool { return h.quit })
		}
	})
}

func TestLogRecordStatus(t *testing.T) {
	model := NewModel(Config{})
	updated, _ := model.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	updated, command := updated.(Model).Update(logRecordMsg{Summary: "sync failed (attempt=3)", Level: slog.LevelWarn})
	model = updated.(Model)
	if command == nil {
		t.Fatal("status did not schedule a fade")
	}
	if !strings.Contains(ansi.Strip(model.View()), "sync failed (attempt=3)") {
		t.Error("log record not shown in the status bar")
	}

	serial := model.status.serial
	updated, _ = model.Update(logRecordMsg{Summary: "newer", Level: slog.LevelError})
	model = updated.(Model)

	// A fade for the replaced message leaves the newer one.
	updated, _ = model.Update(statusFadeMsg{serial: serial})
	model = updated.(Model)
	if model.status.text != "newer" {
		t.Fatalf("status = %q after a stale fade", model.status.text)
	}
	updated, _ = model.Update(statusFadeMsg{serial: model.status.serial})
	model = updated.(Model)
	if model.status.text != "" {
		t.Errorf("status = %q after its fade", model.status.text)
	}
}

func TestRenderTimeline(t *testing.T) {
	model := NewModel(Config{})
	updated, _ := model.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	model = updated.(Model)

	if model.renderTimeline() != "" {
		t.Error("timeline rendered with no conversation open")
	}

	model.selected = ref.MustParseRoomID("!room:test.local")
	if got := ansi.Strip(model.renderTimeline()); !strings.Contains(got, "No messages yet. Start the conversation!") {
		t.Errorf("empty timeline = %q", got)
	}

	alice := ref.MustParseUserID("@alice:test.local")
	bob := ref.MustParseUserID("@bob:test.local")
	stamp := time.Date(2026, 3, 1, 14, 5, 0, 0, time.UTC)
	model.timeline = []dm.MessageEvent{
		{ID: "$1", Sender: bob, MsgType: messaging.MsgTypeText, Body: "hi there", Timestamp: stamp, Confirmation: dm.Confirmed},
		{ID: "$2", Sender: bob, MsgType: messaging.MsgTypeEmote, Body: "waves", Timestamp: stamp, Confirmation: dm.Confirmed},
		{ID: "dm-1", Sender: alice, MsgType: messaging.MsgTypeText, Body: "on my way", Timestamp: stamp, Confirmation: dm.Pending, Own: true},
	}
	got := ansi.Strip(model.renderTimeline())

	clockText := stamp.Local().Format("15:04")
	for _, want := range []string{
		"bob  " + clockText,
		"  hi there",
		"* bob waves",
		"alice  " + clockText + "  sending…",
		"  on my way",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("timeline missing %q:\n%s", want, got)
		}
	}
	if strings.Index(got, "hi there") > strings.Index(got, "on my way") {
		t.Error("messages out of order")
	}
}

func TestSenderName(t *testing.T) {
	if got := senderName(dm.MessageEvent{}); got != "unknown" {
		t.Errorf("zero sender = %q", got)
	}
	if got := senderName(dm.MessageEvent{Sender: ref.MustParseUserID("@bob:test.local")}); got != "bob" {
		t.Errorf("sender = %q, want bob", got)
	}
}

func TestConversationLabel(t *testing.T) {
	roomID := ref.MustParseRoomID("!room:test.local")
	bob := ref.MustParseUserID("@bob:test.local")
	tests := []struct {
		name         string
		conversation dm.Conversation
		want         string
	}{
		{"named", dm.Conversation{ID: roomID, Name: "Planning", Counterpart: bob}, "Planning"},
		{"counterpart", dm.Conversation{ID: roomID, Counterpart: bob}, "@bob:test.local"},
		{"room ID", dm.Conversation{ID: roomID}, "!room:test.local"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := conversationLabel(test.conversation); got != test.want {
				t.Errorf("label = %q, want %q", got, test.want)
			}
		})
	}
}
