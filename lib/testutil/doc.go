// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [RequireReceive] and [RequireClosed] wrap the select-with-timeout
// pattern used when a test waits on the live feed's change
// notifications or on a goroutine finishing. They are the only place
// tests touch the wall clock, and the timeout is a hang guard, not a
// synchronization mechanism.
//
// [UniqueID] generates distinguishable message bodies and usernames
// so tests that share a fake homeserver never collide.
//
// All helpers call t.Fatalf on failure.
package testutil
