// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dm

import (
	"context"
	"errors"
	"fmt"

	"github.com/bureau-foundation/bureau-dm/lib/netutil"
	"github.com/bureau-foundation/bureau-dm/messaging"
)

// Category classifies a failure so the interface can decide what to show
// and where, without parsing error text.
type Category string

const (
	// CategoryValidation means input was rejected locally before any
	// network call: empty fields, password policy, malformed user IDs.
	CategoryValidation Category = "validation"

	// CategoryAuthentication means the homeserver rejected the
	// credentials or the session is no longer signed in.
	CategoryAuthentication Category = "authentication"

	// CategoryNetwork means the homeserver could not be reached.
	CategoryNetwork Category = "network"

	// CategoryServer means the homeserver answered with a failure.
	CategoryServer Category = "server"
)

// ErrSessionEnded is returned by operations on a session that has been
// ended or superseded. No operation re-authenticates implicitly.
var ErrSessionEnded = errors.New("dm: session has ended")

// Error is a categorized failure from a core operation. It wraps the
// underlying error so errors.Is and errors.As still reach
// *messaging.MatrixError and transport errors.
type Error struct {
	Category Category
	Err      error
}

// Error returns the underlying message. The category travels separately.
func (e *Error) Error() string { return e.Err.Error() }

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Err }

// Validation creates a validation error.
func Validation(format string, args ...any) *Error {
	return &Error{Category: CategoryValidation, Err: fmt.Errorf(format, args...)}
}

// Authentication creates an authentication error.
func Authentication(format string, args ...any) *Error {
	return &Error{Category: CategoryAuthentication, Err: fmt.Errorf(format, args...)}
}

// Network creates a network error.
func Network(format string, args ...any) *Error {
	return &Error{Category: CategoryNetwork, Err: fmt.Errorf(format, args...)}
}

// Server creates a server error.
func Server(format string, args ...any) *Error {
	return &Error{Category: CategoryServer, Err: fmt.Errorf(format, args...)}
}

// CategoryOf returns the category of the first *Error in err's chain, or
// the empty string when err carries none.
func CategoryOf(err error) Category {
	var categorized *Error
	if errors.As(err, &categorized) {
		return categorized.Category
	}
	return ""
}

// classify wraps err with the category its cause implies. Errors that are
// already categorized pass through unchanged. When signingIn is true, any
// client error from the homeserver counts as a credential rejection: a
// taken username or an uncompletable registration flow is the server
// refusing the supplied credentials.
func classify(err error, signingIn bool) error {
	if err == nil {
		return nil
	}
	var categorized *Error
	if errors.As(err, &categorized) {
		return err
	}
	switch {
	case errors.Is(err, ErrSessionEnded):
		return &Error{Category: CategoryAuthentication, Err: err}
	case netutil.IsNetworkError(err), errors.Is(err, context.DeadlineExceeded):
		return &Error{Category: CategoryNetwork, Err: err}
	case messaging.IsAuthError(err):
		return &Error{Category: CategoryAuthentication, Err: err}
	case signingIn && errors.Is(err, messaging.ErrUnsupportedAuthFlow):
		return &Error{Category: CategoryAuthentication, Err: err}
	}
	var matrixErr *messaging.MatrixError
	if signingIn && errors.As(err, &matrixErr) && matrixErr.StatusCode >= 400 && matrixErr.StatusCode < 500 {
		return &Error{Category: CategoryAuthentication, Err: err}
	}
	return &Error{Category: CategoryServer, Err: err}
}

// Classify wraps err with the category its cause implies: transport
// failures are network errors, credential rejections are authentication
// errors, and every other failure is a server error. Categorized errors
// pass through unchanged and nil stays nil.
func Classify(err error) error {
	return classify(err, false)
}
