package domain

import "errors"

var (
	// ErrSessionNotFound is returned when no session matches the id or room code.
	ErrSessionNotFound = errors.New("session not found")
	// ErrParticipantNotFound is returned when a participant cannot be resolved in a session.
	ErrParticipantNotFound = errors.New("participant not found in session")
	// ErrNotHost rejects host-only operations from any other connection.
	ErrNotHost = errors.New("only the host can perform this action")
	// ErrNotParticipant rejects participant-only operations from hosts or unjoined connections.
	ErrNotParticipant = errors.New("join the session as a participant first")
	// ErrInvalidStatus indicates the session is not in a status that allows the operation.
	ErrInvalidStatus = errors.New("operation not allowed in current session status")
	// ErrSessionEnded is returned when the session is completed or its deadline passed.
	ErrSessionEnded = errors.New("session has ended")
	// ErrNoItems rejects publishing or starting a session without items.
	ErrNoItems = errors.New("session has no items")
	// ErrItemOutOfRange indicates a submitted item index is invalid.
	ErrItemOutOfRange = errors.New("item index out of range")
	// ErrAlreadyAnswered rejects a second answer to a single-shot item.
	ErrAlreadyAnswered = errors.New("already answered")
	// ErrDisqualified rejects scoring events from a disqualified participant.
	ErrDisqualified = errors.New("participant is disqualified")
	// ErrLateJoinClosed rejects new participants once an active session disallows late joins.
	ErrLateJoinClosed = errors.New("late joining is disabled for this session")
	// ErrInvalidPayload indicates malformed or missing event fields.
	ErrInvalidPayload = errors.New("invalid payload")
	// ErrConflict is returned by a store when the saved version is stale.
	ErrConflict = errors.New("session was modified concurrently")
	// ErrCodeTaken is returned by a store when a room code is already assigned.
	ErrCodeTaken = errors.New("room code already in use")
)
