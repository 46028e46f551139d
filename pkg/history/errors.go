package history

import "errors"

var (
	// ErrEmptySessionID indicates a write or delete without a session ID
	ErrEmptySessionID = errors.New("session id cannot be empty")

	// ErrEmptyRole indicates a turn logged without a role
	ErrEmptyRole = errors.New("role cannot be empty")

	// ErrEmptyQuery indicates a search with an empty or whitespace-only query
	ErrEmptyQuery = errors.New("search query cannot be empty")

	// ErrSessionNotFound indicates the referenced session does not exist
	ErrSessionNotFound = errors.New("session not found")

	// ErrUpstream indicates an external summarizer or provider failure
	ErrUpstream = errors.New("upstream failure")
)
