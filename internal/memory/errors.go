package memory

import "errors"

var (
	// ErrInvalid marks a missing or out-of-range required field.
	ErrInvalid = errors.New("invalid argument")

	// ErrSessionActive is returned by StartSession while a session is
	// already open. Callers that want a fresh session end the current
	// one first, which keeps its consolidation path intact.
	ErrSessionActive = errors.New("session already active")
)
