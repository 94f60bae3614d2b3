// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package messagingtest provides an in-memory Matrix homeserver for tests
// that exercise the messaging client and the layers built on it.
//
// The server implements the subset of the client-server API the
// direct-message client uses: registration with UIAA, password login,
// logout, room creation with invites, joining, idempotent sends,
// and /sync with long-polling. State lives in memory and every event gets a
// position in a single global stream, which doubles as the sync token.
package messagingtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bureau-foundation/bureau-dm/lib/ref"
	"github.com/bureau-foundation/bureau-dm/messaging"
)

// maxHold caps how long a /sync long-poll is held, whatever timeout the
// client asked for, so test servers shut down promptly.
const maxHold = 5 * time.Second

// baseTimestamp is the origin_server_ts of stream position zero. Each
// position adds one second.
const baseTimestamp int64 = 1_767_225_600_000 // 2026-01-01T00:00:00Z

// Options configures a Homeserver.
type Options struct {
	// ServerName is the domain part of generated IDs. Default "test.local".
	ServerName string

	// RegistrationToken, when set, makes registration require the
	// m.login.registration_token stage with this token instead of
	// m.login.dummy.
	RegistrationToken string

	// AutoJoin makes invited local users join immediately, standing in
	// for a counterpart who accepts the invite.
	AutoJoin bool
}

// Homeserver is a fake Matrix homeserver backed by httptest.Server.
type Homeserver struct {
	server     *httptest.Server
	serverName string
	options    Options

	mu          sync.Mutex
	accounts    map[ref.UserID]string // user → password
	tokens      map[string]ref.UserID
	uiaa        map[string]map[string]bool
	rooms       map[ref.RoomID]*fakeRoom
	roomOrder   []ref.RoomID
	position    int
	transaction map[string]ref.EventID // token + "\x00" + txn → event
	wakeup      chan struct{}
	failures    []failure
	sendGate    chan struct{}
	requests    []string
	counter     int
}

type fakeRoom struct {
	id          ref.RoomID
	members     map[ref.UserID]string
	memberSince map[ref.UserID]int // position of the user's latest membership change
	events      []storedEvent
}

type storedEvent struct {
	position int
	event    messaging.Event
	token    string // access token that sent it, for transaction_id echo
	txnID    string
}

type failure struct {
	method   string
	fragment string
	status   int
	errcode  string
	message  string
}

// New starts a Homeserver. Call Close when done, or use Start to tie the
// shutdown to a test's cleanup.
func New(options Options) *Homeserver {
	if options.ServerName == "" {
		options.ServerName = "test.local"
	}
	h := &Homeserver{
		serverName:  options.ServerName,
		options:     options,
		accounts:    make(map[ref.UserID]string),
		tokens:      make(map[string]ref.UserID),
		uiaa:        make(map[string]map[string]bool),
		rooms:       make(map[ref.RoomID]*fakeRoom),
		transaction: make(map[string]ref.EventID),
		wakeup:      make(chan struct{}),
	}
	h.server = httptest.NewServer(h.handler())
	return h
}

// Start creates a Homeserver and registers its shutdown with cleanup
// (typically t.Cleanup).
func Start(cleanup func(func()), options Options) *Homeserver {
	h := New(options)
	cleanup(h.Close)
	return h
}

// URL returns the base URL clients should use.
func (h *Homeserver) URL() string {
	return h.server.URL
}

// ServerName returns the domain used in generated IDs.
func (h *Homeserver) ServerName() string {
	return h.serverName
}

// Close drops open connections (including held long-polls) and shuts the
// server down.
func (h *Homeserver) Close() {
	h.server.CloseClientConnections()
	h.server.Close()
}

// AddUser creates an account directly, bypassing registration.
func (h *Homeserver) AddUser(localpart, password string) ref.UserID {
	userID := ref.MustParseUserID("@" + localpart + ":" + h.serverName)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.accounts[userID] = password
	return userID
}

// TokenFor mints an access token for an existing user.
func (h *Homeserver) TokenFor(userID ref.UserID) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.mintToken(userID)
}

// HasUser reports whether an account exists.
func (h *Homeserver) HasUser(userID ref.UserID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.accounts[userID]
	return ok
}

// TokenValid reports whether an access token is still accepted.
func (h *Homeserver) TokenValid(token string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.tokens[token]
	return ok
}

// ActiveTokens returns how many access tokens are currently valid.
func (h *Homeserver) ActiveTokens() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.tokens)
}

// CreateRoom creates a room on behalf of creator, the way the createRoom
// endpoint would.
func (h *Homeserver) CreateRoom(creator ref.UserID, name string, invite ...ref.UserID) ref.RoomID {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.createRoom(creator, name, invite, false, h.options.AutoJoin)
	h.changed()
	return room.id
}

// InviteDirect creates a room on behalf of creator and invites invitee
// with the invite marked as direct, the way another client starting a
// conversation would. The invite stays pending even with AutoJoin.
func (h *Homeserver) InviteDirect(creator, invitee ref.UserID) ref.RoomID {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.createRoom(creator, "", []ref.UserID{invitee}, true, false)
	h.changed()
	return room.id
}

// Join makes userID join roomID directly.
func (h *Homeserver) Join(roomID ref.RoomID, userID ref.UserID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[roomID]
	h.setMembership(room, userID, userID, messaging.MembershipJoin, false)
	h.changed()
}

// Leave makes userID leave roomID directly.
func (h *Homeserver) Leave(roomID ref.RoomID, userID ref.UserID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[roomID]
	h.setMembership(room, userID, userID, messaging.MembershipLeave, false)
	h.changed()
}

// InjectMessage appends an m.text message from sender. A zero timestamp
// uses the stream-derived default.
func (h *Homeserver) InjectMessage(roomID ref.RoomID, sender ref.UserID, body string, timestamp int64) ref.EventID {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[roomID]
	stored := h.appendEvent(room, messaging.Event{
		Type:    ref.EventTypeMessage,
		Sender:  sender,
		Content: map[string]any{"msgtype": messaging.MsgTypeText, "body": body},
	}, timestamp)
	h.changed()
	return stored.event.EventID
}

// InjectEvent appends an arbitrary event. A zero OriginServerTS uses the
// stream-derived default.
func (h *Homeserver) InjectEvent(roomID ref.RoomID, event messaging.Event) ref.EventID {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[roomID]
	stored := h.appendEvent(room, event, event.OriginServerTS)
	h.changed()
	return stored.event.EventID
}

// Messages returns the m.room.message events stored for a room, in stream
// order.
func (h *Homeserver) Messages(roomID ref.RoomID) []messaging.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	var messages []messaging.Event
	for _, stored := range h.rooms[roomID].events {
		if stored.event.Type == ref.EventTypeMessage {
			messages = append(messages, stored.event)
		}
	}
	return messages
}

// Membership returns a user's current membership in a room, or "".
func (h *Homeserver) Membership(roomID ref.RoomID, userID ref.UserID) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[roomID]
	if !ok {
		return ""
	}
	return room.members[userID]
}

// Fail makes every request whose method matches and whose path contains
// fragment fail with the given status and errcode until ClearFailures.
// An empty method matches any method.
func (h *Homeserver) Fail(method, fragment string, status int, errcode, message string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures = append(h.failures, failure{
		method:   method,
		fragment: fragment,
		status:   status,
		errcode:  errcode,
		message:  message,
	})
}

// ClearFailures removes every rule installed by Fail.
func (h *Homeserver) ClearFailures() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures = nil
}

// GateSends holds every send request until release is called.
func (h *Homeserver) GateSends() (release func()) {
	gate := make(chan struct{})
	h.mu.Lock()
	h.sendGate = gate
	h.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			if h.sendGate == gate {
				h.sendGate = nil
			}
			h.mu.Unlock()
			close(gate)
		})
	}
}

// Requests returns "METHOD path" for every request received, in order.
func (h *Homeserver) Requests() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.requests...)
}

// RequestCount returns how many requests had a path containing fragment.
func (h *Homeserver) RequestCount(fragment string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	count := 0
	for _, request := range h.requests {
		if strings.Contains(request, fragment) {
			count++
		}
	}
	return count
}

// --- HTTP handling ---

func (h *Homeserver) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Use RawPath to preserve percent-encoded segments.
		rawPath := r.URL.RawPath
		if rawPath == "" {
			rawPath = r.URL.Path
		}

		h.mu.Lock()
		h.requests = append(h.requests, r.Method+" "+rawPath)
		injected, fail := h.matchFailure(r.Method, rawPath)
		h.mu.Unlock()
		if fail {
			writeError(w, injected.status, injected.errcode, injected.message)
			return
		}

		const clientPrefix = "/_matrix/client/"
		if !strings.HasPrefix(rawPath, clientPrefix) {
			http.NotFound(w, r)
			return
		}
		rest := rawPath[len(clientPrefix):]

		if rest == "versions" && r.Method == http.MethodGet {
			writeJSON(w, http.StatusOK, map[string]any{"versions": []string{"v1.11"}})
			return
		}

		rest = strings.TrimPrefix(rest, "v3/")
		switch {
		case rest == "register" && r.Method == http.MethodPost:
			h.handleRegister(w, r)
			return
		case rest == "login" && r.Method == http.MethodPost:
			h.handleLogin(w, r)
			return
		}

		userID, token, ok := h.authenticate(w, r)
		if !ok {
			return
		}

		switch {
		case rest == "logout" && r.Method == http.MethodPost:
			h.mu.Lock()
			delete(h.tokens, token)
			h.mu.Unlock()
			writeJSON(w, http.StatusOK, map[string]any{})
		case rest == "createRoom" && r.Method == http.MethodPost:
			h.handleCreateRoom(w, r, userID)
		case rest == "sync" && r.Method == http.MethodGet:
			h.handleSync(w, r, userID, token)
		case strings.HasPrefix(rest, "join/") && r.Method == http.MethodPost:
			roomID, err := ref.ParseRoomID(unescape(rest[len("join/"):]))
			if err != nil {
				writeError(w, http.StatusBadRequest, messaging.ErrCodeInvalidParam, err.Error())
				return
			}
			h.handleJoin(w, userID, roomID)
		case strings.HasPrefix(rest, "rooms/"):
			segments := strings.Split(rest[len("rooms/"):], "/")
			roomID, err := ref.ParseRoomID(unescape(segments[0]))
			if err != nil {
				writeError(w, http.StatusBadRequest, messaging.ErrCodeInvalidParam, err.Error())
				return
			}
			if len(segments) == 4 && segments[1] == "send" && r.Method == http.MethodPut {
				h.handleSend(w, r, userID, token, roomID, ref.EventType(unescape(segments[2])), unescape(segments[3]))
				return
			}
			http.NotFound(w, r)
		default:
			writeError(w, http.StatusNotFound, messaging.ErrCodeUnrecognized, "unrecognized request")
		}
	})
}

func (h *Homeserver) matchFailure(method, path string) (failure, bool) {
	for _, rule := range h.failures {
		if rule.method != "" && rule.method != method {
			continue
		}
		if strings.Contains(path, rule.fragment) {
			return rule, true
		}
	}
	return failure{}, false
}

func (h *Homeserver) authenticate(w http.ResponseWriter, r *http.Request) (ref.UserID, string, bool) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		writeError(w, http.StatusUnauthorized, messaging.ErrCodeMissingToken, "missing access token")
		return ref.UserID{}, "", false
	}
	h.mu.Lock()
	userID, ok := h.tokens[token]
	h.mu.Unlock()
	if !ok {
		writeError(w, http.StatusUnauthorized, messaging.ErrCodeUnknownToken, "unknown access token")
		return ref.UserID{}, "", false
	}
	return userID, token, true
}

type registerBody struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Auth     *struct {
		Type    string `json:"type"`
		Session string `json:"session"`
		Token   string `json:"token"`
	} `json:"auth"`
}

func (h *Homeserver) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body registerBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, messaging.ErrCodeBadJSON, err.Error())
		return
	}

	stage := messaging.StageDummy
	if h.options.RegistrationToken != "" {
		stage = messaging.StageRegistrationToken
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	challenge := func(session string, status int, errcode, message string) {
		response := map[string]any{
			"session":   session,
			"flows":     []map[string]any{{"stages": []string{stage}}},
			"params":    map[string]any{},
			"completed": []string{},
		}
		if errcode != "" {
			response["errcode"] = errcode
			response["error"] = message
		}
		writeJSON(w, status, response)
	}

	if body.Auth == nil {
		h.counter++
		session := "uiaa-" + strconv.Itoa(h.counter)
		h.uiaa[session] = make(map[string]bool)
		challenge(session, http.StatusUnauthorized, "", "")
		return
	}
	completed, ok := h.uiaa[body.Auth.Session]
	if !ok {
		writeError(w, http.StatusBadRequest, messaging.ErrCodeUnknown, "unknown UIAA session")
		return
	}
	if body.Auth.Type != stage {
		challenge(body.Auth.Session, http.StatusUnauthorized, messaging.ErrCodeForbidden, "unexpected auth stage")
		return
	}
	if stage == messaging.StageRegistrationToken && body.Auth.Token != h.options.RegistrationToken {
		challenge(body.Auth.Session, http.StatusUnauthorized, messaging.ErrCodeForbidden, "invalid registration token")
		return
	}
	completed[stage] = true

	if body.Username == "" || strings.ContainsAny(body.Username, ":@ ") || strings.ToLower(body.Username) != body.Username {
		writeError(w, http.StatusBadRequest, messaging.ErrCodeInvalidUsername, "invalid username")
		return
	}
	userID, err := ref.ParseUserID("@" + body.Username + ":" + h.serverName)
	if err != nil {
		writeError(w, http.StatusBadRequest, messaging.ErrCodeInvalidUsername, err.Error())
		return
	}
	if _, taken := h.accounts[userID]; taken {
		writeError(w, http.StatusBadRequest, messaging.ErrCodeUserInUse, "User ID already taken.")
		return
	}
	delete(h.uiaa, body.Auth.Session)
	h.accounts[userID] = body.Password
	token := h.mintToken(userID)
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":      userID.String(),
		"access_token": token,
		"device_id":    "DEVICE" + strconv.Itoa(h.counter),
	})
}

func (h *Homeserver) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body messaging.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, messaging.ErrCodeBadJSON, err.Error())
		return
	}
	if body.Type != "m.login.password" {
		writeError(w, http.StatusBadRequest, messaging.ErrCodeUnknown, "unsupported login type")
		return
	}

	user := body.Identifier.User
	if !strings.HasPrefix(user, "@") {
		user = "@" + user + ":" + h.serverName
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	userID, err := ref.ParseUserID(user)
	password, exists := h.accounts[userID]
	if err != nil || !exists || password != body.Password {
		writeError(w, http.StatusForbidden, messaging.ErrCodeForbidden, "Invalid username or password")
		return
	}
	token := h.mintToken(userID)
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":      userID.String(),
		"access_token": token,
		"device_id":    "DEVICE" + strconv.Itoa(h.counter),
	})
}

func (h *Homeserver) handleCreateRoom(w http.ResponseWriter, r *http.Request, creator ref.UserID) {
	var body messaging.CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, messaging.ErrCodeBadJSON, err.Error())
		return
	}

	invite := make([]ref.UserID, 0, len(body.Invite))
	for _, raw := range body.Invite {
		userID, err := ref.ParseUserID(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, messaging.ErrCodeInvalidParam, err.Error())
			return
		}
		invite = append(invite, userID)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, userID := range invite {
		if userID.Server().String() != h.serverName {
			continue
		}
		if _, exists := h.accounts[userID]; !exists {
			writeError(w, http.StatusNotFound, messaging.ErrCodeNotFound, "Unknown user "+userID.String())
			return
		}
	}
	room := h.createRoom(creator, body.Name, invite, body.IsDirect, h.options.AutoJoin)
	h.changed()
	writeJSON(w, http.StatusOK, map[string]any{"room_id": room.id.String()})
}

func (h *Homeserver) handleJoin(w http.ResponseWriter, userID ref.UserID, roomID ref.RoomID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[roomID]
	if !ok {
		writeError(w, http.StatusNotFound, messaging.ErrCodeNotFound, "unknown room")
		return
	}
	membership := room.members[userID]
	if membership != messaging.MembershipInvite && membership != messaging.MembershipJoin {
		writeError(w, http.StatusForbidden, messaging.ErrCodeForbidden, "not invited")
		return
	}
	if membership != messaging.MembershipJoin {
		h.setMembership(room, userID, userID, messaging.MembershipJoin, false)
		h.changed()
	}
	writeJSON(w, http.StatusOK, map[string]any{"room_id": roomID.String()})
}

func (h *Homeserver) handleSend(w http.ResponseWriter, r *http.Request, sender ref.UserID, token string, roomID ref.RoomID, eventType ref.EventType, txnID string) {
	var content map[string]any
	if err := json.NewDecoder(r.Body).Decode(&content); err != nil {
		writeError(w, http.StatusBadRequest, messaging.ErrCodeBadJSON, err.Error())
		return
	}

	h.mu.Lock()
	gate := h.sendGate
	h.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	key := token + "\x00" + txnID
	if eventID, ok := h.transaction[key]; ok {
		writeJSON(w, http.StatusOK, map[string]any{"event_id": eventID.String()})
		return
	}
	room, ok := h.rooms[roomID]
	if !ok {
		writeError(w, http.StatusNotFound, messaging.ErrCodeNotFound, "unknown room")
		return
	}
	if room.members[sender] != messaging.MembershipJoin {
		writeError(w, http.StatusForbidden, messaging.ErrCodeForbidden, "sender not in room")
		return
	}
	stored := h.appendEvent(room, messaging.Event{
		Type:    eventType,
		Sender:  sender,
		Content: content,
	}, 0)
	stored.token = token
	stored.txnID = txnID
	h.transaction[key] = stored.event.EventID
	h.changed()
	writeJSON(w, http.StatusOK, map[string]any{"event_id": stored.event.EventID.String()})
}

func (h *Homeserver) handleSync(w http.ResponseWriter, r *http.Request, userID ref.UserID, token string) {
	query := r.URL.Query()
	since := 0
	if raw := query.Get("since"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, messaging.ErrCodeInvalidParam, "bad since token")
			return
		}
		since = parsed
	}
	timeout := 0
	if raw := query.Get("timeout"); raw != "" {
		timeout, _ = strconv.Atoi(raw)
	}
	hold := time.Duration(timeout) * time.Millisecond
	if hold > maxHold {
		hold = maxHold
	}
	deadline := time.After(hold)

	for {
		h.mu.Lock()
		response, empty := h.buildSync(userID, token, since)
		wakeup := h.wakeup
		h.mu.Unlock()

		if !empty || hold <= 0 {
			writeJSON(w, http.StatusOK, response)
			return
		}
		select {
		case <-wakeup:
		case <-deadline:
			writeJSON(w, http.StatusOK, response)
			return
		case <-r.Context().Done():
			return
		}
	}
}

// buildSync assembles the /sync response for userID covering stream
// positions after since. Rooms the user joined after since get their whole
// history in the timeline; state is delivered through the timeline only.
// Caller holds h.mu.
func (h *Homeserver) buildSync(userID ref.UserID, token string, since int) (messaging.SyncResponse, bool) {
	response := messaging.SyncResponse{
		NextBatch: strconv.Itoa(h.position),
		Rooms: messaging.RoomsSection{
			Join:   make(map[ref.RoomID]messaging.JoinedRoom),
			Invite: make(map[ref.RoomID]messaging.InvitedRoom),
			Leave:  make(map[ref.RoomID]messaging.LeftRoom),
		},
	}
	empty := true
	for _, roomID := range h.roomOrder {
		room := h.rooms[roomID]
		membership, member := room.members[userID]
		if !member {
			continue
		}
		changedAt := room.memberSince[userID]

		switch membership {
		case messaging.MembershipJoin:
			from := since
			if changedAt > since {
				from = 0
			}
			events := h.eventsAfter(room, from, token)
			if len(events) == 0 {
				continue
			}
			response.Rooms.Join[roomID] = messaging.JoinedRoom{
				Timeline: messaging.TimelineSection{Events: events},
			}
			empty = false
		case messaging.MembershipInvite:
			if changedAt <= since {
				continue
			}
			response.Rooms.Invite[roomID] = messaging.InvitedRoom{
				InviteState: messaging.StateSection{Events: h.strippedState(room)},
			}
			empty = false
		default:
			if changedAt <= since {
				continue
			}
			response.Rooms.Leave[roomID] = messaging.LeftRoom{
				Timeline: messaging.TimelineSection{Events: h.eventsAfter(room, since, token)},
			}
			empty = false
		}
	}
	return response, empty
}

func (h *Homeserver) eventsAfter(room *fakeRoom, since int, token string) []messaging.Event {
	var events []messaging.Event
	for _, stored := range room.events {
		if stored.position <= since {
			continue
		}
		event := stored.event
		if stored.txnID != "" && stored.token == token {
			event.Unsigned = &messaging.EventUnsigned{TransactionID: stored.txnID}
		}
		events = append(events, event)
	}
	return events
}

func (h *Homeserver) strippedState(room *fakeRoom) []messaging.Event {
	var events []messaging.Event
	for _, stored := range room.events {
		if stored.event.StateKey == nil {
			continue
		}
		switch stored.event.Type {
		case ref.EventTypeMember, ref.EventTypeName, ref.EventTypeCreate:
			events = append(events, messaging.Event{
				Type:     stored.event.Type,
				Sender:   stored.event.Sender,
				StateKey: stored.event.StateKey,
				Content:  stored.event.Content,
			})
		}
	}
	return events
}

// --- state mutation (caller holds h.mu) ---

func (h *Homeserver) createRoom(creator ref.UserID, name string, invite []ref.UserID, isDirect, autoJoin bool) *fakeRoom {
	h.counter++
	room := &fakeRoom{
		id:          ref.MustParseRoomID("!room" + strconv.Itoa(h.counter) + ":" + h.serverName),
		members:     make(map[ref.UserID]string),
		memberSince: make(map[ref.UserID]int),
	}
	h.rooms[room.id] = room
	h.roomOrder = append(h.roomOrder, room.id)

	empty := ""
	h.appendEvent(room, messaging.Event{
		Type:     ref.EventTypeCreate,
		Sender:   creator,
		StateKey: &empty,
		Content:  map[string]any{"creator": creator.String(), "room_version": "11"},
	}, 0)
	h.setMembership(room, creator, creator, messaging.MembershipJoin, false)
	if name != "" {
		h.appendEvent(room, messaging.Event{
			Type:     ref.EventTypeName,
			Sender:   creator,
			StateKey: &empty,
			Content:  map[string]any{"name": name},
		}, 0)
	}
	for _, invitee := range invite {
		h.setMembership(room, creator, invitee, messaging.MembershipInvite, isDirect)
		if _, exists := h.accounts[invitee]; exists && autoJoin {
			h.setMembership(room, invitee, invitee, messaging.MembershipJoin, false)
		}
	}
	return room
}

func (h *Homeserver) setMembership(room *fakeRoom, sender, target ref.UserID, membership string, isDirect bool) {
	stateKey := target.String()
	content := map[string]any{"membership": membership}
	if isDirect {
		content["is_direct"] = true
	}
	stored := h.appendEvent(room, messaging.Event{
		Type:     ref.EventTypeMember,
		Sender:   sender,
		StateKey: &stateKey,
		Content:  content,
	}, 0)
	room.members[target] = membership
	room.memberSince[target] = stored.position
}

func (h *Homeserver) appendEvent(room *fakeRoom, event messaging.Event, timestamp int64) *storedEvent {
	h.position++
	if timestamp == 0 {
		timestamp = baseTimestamp + int64(h.position)*1000
	}
	event.EventID = ref.MustParseEventID(fmt.Sprintf("$event%d", h.position))
	event.RoomID = room.id
	event.OriginServerTS = timestamp
	room.events = append(room.events, storedEvent{position: h.position, event: event})
	return &room.events[len(room.events)-1]
}

// changed wakes every held /sync.
func (h *Homeserver) changed() {
	close(h.wakeup)
	h.wakeup = make(chan struct{})
}

func (h *Homeserver) mintToken(userID ref.UserID) string {
	h.counter++
	token := "token-" + strconv.Itoa(h.counter)
	h.tokens[token] = userID
	return token
}

func unescape(segment string) string {
	decoded, err := url.PathUnescape(segment)
	if err != nil {
		return segment
	}
	return decoded
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, errcode, message string) {
	writeJSON(w, status, map[string]string{
		"errcode": errcode,
		"error":   message,
	})
}
