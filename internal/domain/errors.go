package domain

import "errors"

var (
	// ErrValidation marks a malformed request, rejected before any store call.
	ErrValidation = errors.New("validation error")

	// ErrStoreUnavailable marks a failed append or query against the message store.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrNotFound marks an unmatched HTTP path.
	ErrNotFound = errors.New("not found")

	// ErrMethodNotAllowed marks an HTTP verb mismatch on a known path.
	ErrMethodNotAllowed = errors.New("method not allowed")

	// ErrSessionClosed is returned for events arriving after disconnect.
	ErrSessionClosed = errors.New("session closed")
)
