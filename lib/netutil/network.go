// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"context"
	"errors"
	"io"
	"net"
	"net/url"
	"syscall"
)

// IsNetworkError reports whether err is a transport-level failure: the
// request never produced an HTTP response. DNS failures, refused or
// reset connections, timeouts, and truncated responses all qualify.
// Context cancellation does not: a cancelled request is the caller's
// decision, not the network's.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	var urlError *url.Error
	if errors.As(err, &urlError) {
		if errors.Is(urlError.Err, context.Canceled) {
			return false
		}
		return true
	}
	var dnsError *net.DNSError
	if errors.As(err, &dnsError) {
		return true
	}
	var opError *net.OpError
	if errors.As(err, &opError) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}
