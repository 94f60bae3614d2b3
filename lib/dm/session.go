// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/bureau-foundation/bureau-dm/lib/ref"
	"github.com/bureau-foundation/bureau-dm/lib/secret"
	"github.com/bureau-foundation/bureau-dm/messaging"
)

// MinPasswordLength is the shortest password accepted for registration,
// counted in characters.
const MinPasswordLength = 8

// SessionState is the connection state of a Session.
type SessionState int32

const (
	StateUnauthenticated SessionState = iota
	StateAuthenticating
	StateLive
	StateTerminated
)

func (s SessionState) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateLive:
		return "live"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("SessionState(%d)", int32(s))
	}
}

// Mode selects how Begin obtains a session.
type Mode int

const (
	// ModeLogin signs in to an existing account.
	ModeLogin Mode = iota
	// ModeRegister creates an account and signs in to it.
	ModeRegister
)

func (m Mode) String() string {
	if m == ModeRegister {
		return "register"
	}
	return "login"
}

// Credentials are the values a user submits on the login or register form.
type Credentials struct {
	Mode     Mode
	Username string
	Password string

	// Confirm must equal Password in ModeRegister. Ignored for login.
	Confirm string
}

// Validate checks the credentials without touching the network.
func (c Credentials) Validate() error {
	if strings.TrimSpace(c.Username) == "" {
		return Validation("Username is required")
	}
	if c.Password == "" {
		return Validation("Password is required")
	}
	if c.Mode != ModeRegister {
		return nil
	}
	if c.Password != c.Confirm {
		return Validation("Passwords do not match")
	}
	if utf8.RuneCountInString(c.Password) < MinPasswordLength {
		return Validation("Password must be at least %d characters long", MinPasswordLength)
	}
	return nil
}

// Session is one authenticated connection to a homeserver together with
// its live feed. Sessions are created by Manager.Begin and ended by
// Manager.End. Once ended, every operation fails with ErrSessionEnded.
type Session struct {
	serverAddress string
	userID        ref.UserID
	matrix        *messaging.DirectSession
	feed          *messaging.Feed
	logger        *slog.Logger

	state atomic.Int32

	// refs counts callers using the access token. The owner reference
	// is released by terminate; the token is closed when the count
	// reaches zero, so an operation in flight during End never reads a
	// released buffer.
	mu     sync.Mutex
	refs   int
	closed bool
}

func newSession(serverAddress string, matrix *messaging.DirectSession, feed *messaging.Feed, logger *slog.Logger) *Session {
	session := &Session{
		serverAddress: serverAddress,
		userID:        matrix.UserID(),
		matrix:        matrix,
		feed:          feed,
		logger:        logger,
		refs:          1,
	}
	session.state.Store(int32(StateAuthenticating))
	return session
}

// ServerAddress returns the homeserver base URL.
func (s *Session) ServerAddress() string { return s.serverAddress }

// UserID returns the authenticated identity.
func (s *Session) UserID() ref.UserID { return s.userID }

// State returns the current connection state.
func (s *Session) State() SessionState { return SessionState(s.state.Load()) }

// Live reports whether the session can be used.
func (s *Session) Live() bool { return s.State() == StateLive }

// Changes receives a coalesced signal whenever the live feed observed new
// rooms, membership, or events. Closed when the feed stops.
func (s *Session) Changes() <-chan struct{} { return s.feed.Changes() }

// Done is closed when the live feed stops, either because the session
// ended or because the homeserver revoked the access token.
func (s *Session) Done() <-chan struct{} { return s.feed.Done() }

// FeedErr reports why the live feed stopped, or the latest sync failure
// while it is degraded. Nil while healthy.
func (s *Session) FeedErr() error { return s.feed.Err() }

// acquire returns the Matrix session for one operation. Callers must
// call release when the operation finishes.
func (s *Session) acquire() (*messaging.DirectSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State() != StateLive || s.closed {
		return nil, ErrSessionEnded
	}
	s.refs++
	return s.matrix, nil
}

func (s *Session) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs--
	if s.refs == 0 && !s.closed {
		s.closed = true
		s.matrix.Close()
	}
}

// terminate stops the feed, invalidates the token on the server when
// logout is true, and drops the owner reference. Only the first call
// does anything.
func (s *Session) terminate(ctx context.Context, logout bool) {
	for {
		previous := s.State()
		if previous == StateTerminated {
			return
		}
		if s.state.CompareAndSwap(int32(previous), int32(StateTerminated)) {
			break
		}
	}

	s.feed.Stop()
	if logout {
		if err := s.matrix.Logout(ctx); err != nil {
			s.logger.Warn("logout failed, discarding token locally",
				"user_id", s.userID,
				"error", err,
			)
		}
	}
	s.release()
	s.logger.Info("session ended", "user_id", s.userID)
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// DeviceDisplayName is sent with login and registration. Empty uses
	// messaging.DefaultDeviceDisplayName.
	DeviceDisplayName string

	// RegistrationToken completes token-authenticated registration on
	// homeservers that require it.
	RegistrationToken string

	// HTTPClient is used for every request. Nil uses http.DefaultClient.
	HTTPClient *http.Client

	// Feed configures the live feed of each session. Its Logger
	// defaults to Logger.
	Feed messaging.FeedConfig

	// LogoutTimeout bounds the server-side logout performed by End.
	// Default 5s.
	LogoutTimeout time.Duration

	// Logger receives lifecycle messages. Nil uses slog.Default().
	Logger *slog.Logger
}

// Manager owns the process-wide live Session. At most one session is
// live at a time: Begin tears down the current one before authenticating,
// and a Begin overtaken by End or by another Begin releases the session
// it created instead of installing it.
type Manager struct {
	config ManagerConfig
	logger *slog.Logger

	mu         sync.Mutex
	current    *Session
	generation uint64
}

// NewManager creates a Manager with no live session.
func NewManager(config ManagerConfig) *Manager {
	if config.LogoutTimeout <= 0 {
		config.LogoutTimeout = 5 * time.Second
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if config.Feed.Logger == nil {
		config.Feed.Logger = logger
	}
	return &Manager{config: config, logger: logger}
}

// Current returns the live session, or nil.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Begin authenticates against serverAddress, starts the live feed, and
// installs the result as the current session. Credentials are validated
// before any network call. Any previously live session is ended first.
func (m *Manager) Begin(ctx context.Context, serverAddress string, credentials Credentials) (*Session, error) {
	if err := credentials.Validate(); err != nil {
		return nil, err
	}
	client, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: serverAddress,
		HTTPClient:    m.config.HTTPClient,
		Logger:        m.logger,
	})
	if err != nil {
		return nil, Validation("invalid server address: %w", err)
	}

	m.mu.Lock()
	m.generation++
	generation := m.generation
	previous := m.current
	m.current = nil
	m.mu.Unlock()

	if previous != nil {
		m.endSession(previous)
	}

	matrix, err := m.authenticate(ctx, client, credentials)
	if err != nil {
		return nil, classify(err, true)
	}

	feedConfig := m.config.Feed
	feed := messaging.NewFeed(matrix, feedConfig)
	session := newSession(client.BaseURL(), matrix, feed, m.logger)
	if err := feed.Start(ctx); err != nil {
		session.terminate(context.Background(), false)
		return nil, classify(err, false)
	}

	m.mu.Lock()
	if m.generation != generation {
		m.mu.Unlock()
		m.logger.Info("discarding superseded session", "user_id", session.userID)
		m.endSession(session)
		return nil, classify(fmt.Errorf("sign-in superseded: %w", ErrSessionEnded), true)
	}
	session.state.Store(int32(StateLive))
	m.current = session
	m.mu.Unlock()

	m.logger.Info("session live",
		"user_id", session.userID,
		"server", session.serverAddress,
		"device_id", matrix.DeviceID(),
		"mode", credentials.Mode.String(),
	)
	return session, nil
}

func (m *Manager) authenticate(ctx context.Context, client *messaging.Client, credentials Credentials) (*messaging.DirectSession, error) {
	password, err := secret.NewFromString(credentials.Password)
	if err != nil {
		return nil, fmt.Errorf("protecting password: %w", err)
	}
	defer password.Close()

	username := strings.TrimSpace(credentials.Username)
	if credentials.Mode == ModeLogin {
		return client.Login(ctx, username, password, m.config.DeviceDisplayName)
	}

	request := messaging.RegisterRequest{
		Username:          username,
		Password:          password,
		DeviceDisplayName: m.config.DeviceDisplayName,
	}
	if m.config.RegistrationToken != "" {
		token, err := secret.NewFromString(m.config.RegistrationToken)
		if err != nil {
			return nil, fmt.Errorf("protecting registration token: %w", err)
		}
		defer token.Close()
		request.RegistrationToken = token
	}
	return client.Register(ctx, request)
}

// End stops the live feed, logs the session out on the homeserver, and
// releases it. Does nothing when no session is live. A Begin still in
// progress is superseded.
func (m *Manager) End() {
	m.mu.Lock()
	m.generation++
	session := m.current
	m.current = nil
	m.mu.Unlock()

	if session != nil {
		m.endSession(session)
	}
}

func (m *Manager) endSession(session *Session) {
	ctx, cancel := context.WithTimeout(context.Background(), m.config.LogoutTimeout)
	defer cancel()
	session.terminate(ctx, true)
}

// checkLive returns ErrSessionEnded, categorized, when session is nil or
// no longer live.
func checkLive(session *Session) error {
	if session == nil || !session.Live() {
		return classify(ErrSessionEnded, false)
	}
	return nil
}

// errNoConversation is returned when an operation needs a conversation
// and none was given.
var errNoConversation = errors.New("no conversation selected")
