// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds the two secrets the direct-message client
// touches: the password typed into the login or registration form, and
// the access token the homeserver returns for the session.
//
// [Buffer] allocates memory outside the Go heap via mmap(MAP_ANONYMOUS)
// so the garbage collector never copies it, and asks the kernel to lock
// it into RAM (mlock) and exclude it from core dumps
// (MADV_DONTDUMP). On Close the memory is zeroed and unmapped. Locking
// is best-effort: containers often run with a tiny RLIMIT_MEMLOCK, and
// a session should still be usable there. [Buffer.Locked] reports
// whether the lock took.
//
// Access the contents with [Buffer.Bytes] (a slice into the mapping)
// or [Buffer.String] (a heap copy, for JSON request bodies and HTTP
// headers only). After Close any access panics. Close is idempotent.
package secret
