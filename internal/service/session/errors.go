package session

import "errors"

var (
	// ErrFlowInFlight signals a start or retry was attempted while another
	// session flow was still hydrating.
	ErrFlowInFlight = errors.New("a session flow is already in flight")
	// ErrNoSession signals an operation that needs an active session was
	// called without one.
	ErrNoSession = errors.New("no active session")
)
