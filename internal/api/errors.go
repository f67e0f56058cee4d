package api

import (
	"errors"
	"fmt"
)

var (
	// ErrAuth signals the backend rejected the organization public key.
	ErrAuth = errors.New("public key rejected")
	// ErrNotFound signals the backend does not know the session id. Callers
	// recover from this locally by creating a fresh session.
	ErrNotFound = errors.New("session not found")
)

// APIError is a backend-reported failure carrying the HTTP status and the
// backend's human-readable message.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: status %d", e.Status)
	}
	return fmt.Sprintf("api error: status %d: %s", e.Status, e.Message)
}

// NetworkError wraps a transport-level failure. These are retryable.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }
