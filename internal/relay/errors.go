package relay

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated signals that the session is invalid. Every call
	// fails uniformly with this error on HTTP 401; the caller's only
	// sane reaction is to stop polling and tear the session down.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrEmptyBody rejects a send whose body is empty after trimming.
	// Caught before any network call.
	ErrEmptyBody = errors.New("message body is empty")

	// ErrNoRecipient rejects a send with neither recipient nor chat id.
	// Caught before any network call.
	ErrNoRecipient = errors.New("no recipient or chat id")
)

// ServerError is a non-auth error status from the relay, carrying the
// server's own message when it supplied one.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("relay: server returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("relay: server returned %d", e.Status)
}
