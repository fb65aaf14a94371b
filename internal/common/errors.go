// Package common defines the sentinel errors shared by the client and server
// layers of contactsync. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Store and service errors.
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrInvalidRequest = errors.New("invalid request")

	// Network errors. Always recoverable: the pending state of the record is
	// left untouched and the next reconnect retries it.
	ErrTransport = errors.New("transport failure")

	// Event channel errors.
	ErrMalformedEvent   = errors.New("malformed event")
	ErrUnknownEventType = errors.New("unknown event type")

	ErrInternal = errors.New("internal error")
)
