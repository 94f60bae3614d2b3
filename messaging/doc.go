// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging wraps the subset of the Matrix client-server API that a
// direct-message client needs.
//
// [Client] is an unauthenticated client bound to one homeserver. It handles
// account registration (user-interactive auth with the m.login.dummy or
// m.login.registration_token stage) and password login, returning an
// authenticated [DirectSession]. Client holds the HTTP transport shared by
// every session derived from it.
//
// [DirectSession] carries the access token in mmap-backed secret.Buffer
// memory and exposes room creation, joins, message sends with caller-chosen
// transaction IDs, room history, membership listing, sync and logout.
// Callers must call Close to release the protected memory. The [Session]
// interface captures the operations the higher layers depend on so tests can
// substitute scripted implementations.
//
// [Feed] is the single owner of a session's sync stream. It runs one
// long-poll loop, merges every response into an in-memory room table and
// lets callers force a fresh sync with Catchup. Events are deduplicated by
// event ID and numbered in arrival order so consumers can break timestamp
// ties deterministically.
//
// All API errors are returned as [*MatrixError] carrying the Matrix error
// code and HTTP status. [IsMatrixError] tests for a specific code and
// [IsAuthError] reports whether the server rejected the credentials.
//
// Package messagingtest provides an in-process fake homeserver that
// implements the same endpoints for tests.
package messaging
