// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// The direct-message client reads the time in three places: stamping
// a locally pending message before the server assigns a timestamp,
// backing off between failed /sync attempts, and rendering "last
// activity" in the conversation list. Each takes a Clock so tests can
// pin the time with Fake and step it with Advance instead of sleeping.
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go feed.run(ctx)            // registers an After waiter on retry
//	c.WaitForTimers(1)
//	c.Advance(2 * time.Second)  // the retry fires deterministically
package clock
