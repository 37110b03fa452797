package client

import "errors"

var (
	// ErrServerUnresponsive means no response arrived within the request
	// timeout. The session is left open; the operator chooses whether to
	// reconnect or quit.
	ErrServerUnresponsive = errors.New("server unresponsive")

	// ErrSessionClosed means the session was already torn down.
	ErrSessionClosed = errors.New("session closed")

	errUnbalancedQuotes = errors.New("unbalanced quotes")
)
