// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package dm is the core of the direct-message client: session lifecycle,
// conversation discovery, timeline synchronization, and sending.
//
// [Manager] owns the single live [Session]. Begin validates credentials
// locally, signs in or registers, and starts the session's live feed
// (a [messaging.Feed]); End stops the feed and logs out. Other components
// receive the session by asking the Manager and never keep it past an
// operation: once a session ends, every operation on it fails with
// [ErrSessionEnded] instead of acting on stale state.
//
// [Directory] projects the rooms visible to a session onto the direct
// conversations among them (two joined members, local membership join),
// creates new ones, and accepts invitations to ones others started. [Synchronizer] derives a conversation's ordered
// message timeline from the feed's deduplicated per-room log and merges
// in messages still pending. [Coordinator] sends messages one at a time
// per session and conversation and refreshes the Synchronizer when the server
// confirms them.
//
// Every failure returned by this package is an [*Error] whose Category
// tells validation, authentication, network, and server failures apart.
// Validation failures never reach the network.
package dm
