// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides validated, immutable Matrix identifiers for the
// direct-message client: user IDs (@localpart:server), room IDs
// (!opaque:server), event IDs ($opaque), event types, and server names.
//
// Identifiers are parsed once at the boundary where they enter the
// process (a /sync response, a user typing a counterpart into the new
// conversation form) and passed around as typed values afterward, so a
// room ID can never be handed to a function expecting a user ID.
//
// JSON marshaling uses the canonical string form via
// encoding.TextMarshaler. An empty JSON string decodes to the zero value.
package ref
