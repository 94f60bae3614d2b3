// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import "fmt"

// ServerName is a validated Matrix server name (e.g., "example.org",
// "matrix.example.com:8448"). It is the part of a user ID after the
// colon.
type ServerName struct {
	name string
}

// ParseServerName validates and wraps a raw server name. Returns an
// error if it is empty or contains control characters or sigils.
func ParseServerName(raw string) (ServerName, error) {
	if raw == "" {
		return ServerName{}, fmt.Errorf("server name is empty")
	}
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c <= ' ' || c == '@' || c == '#' || c == '!' {
			return ServerName{}, fmt.Errorf("server name %q: invalid character at position %d", raw, i)
		}
	}
	return ServerName{name: raw}, nil
}

// String returns the server name.
func (s ServerName) String() string { return s.name }

// IsZero reports whether the ServerName is the zero value.
func (s ServerName) IsZero() bool { return s.name == "" }
