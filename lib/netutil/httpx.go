// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides HTTP I/O helpers for the Matrix client.
//
// ReadResponse bounds response body reads at MaxResponseSize so a
// misbehaving homeserver cannot exhaust memory. IsNetworkError
// separates "could not reach the server" failures from responses the
// server actually sent, which is the line between a network error and
// a server error in the client's error taxonomy.
package netutil

import (
	"io"
)

// MaxResponseSize bounds JSON API response reads: 64 MB. An initial
// /sync for an account with long histories is the largest response the
// client reads; it is far below this.
const MaxResponseSize int64 = 64 << 20

// ReadResponse reads a JSON API response body up to MaxResponseSize
// bytes. Use instead of io.ReadAll when reading HTTP response bodies.
func ReadResponse(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxResponseSize))
}

// ErrorBody reads an HTTP error response body for a diagnostic message.
// Read errors are ignored; a partial body is still useful.
func ErrorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, 4096))
	return string(data)
}
