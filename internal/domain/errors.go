package domain

import "errors"

var (
	// ErrNotAuthorized is returned when a join attempt fails the membership check.
	// The connection is closed without a handshake-level error payload.
	ErrNotAuthorized = errors.New("not authorized for room")
	// ErrRoomNotFound is returned when acting on a room with no live session.
	ErrRoomNotFound = errors.New("room not found")
	// ErrGameInProgress rejects a start command while a game is already active.
	ErrGameInProgress = errors.New("game already in progress")
	// ErrNoActiveGame rejects game commands when the room is idle.
	ErrNoActiveGame = errors.New("no active game")
	// ErrStaleRound rejects an answer referencing a round that has already advanced.
	ErrStaleRound = errors.New("stale round reference")
	// ErrAlreadyAnswered marks a duplicate submission; callers treat it as a no-op.
	ErrAlreadyAnswered = errors.New("participant already answered this round")
	// ErrNotProfessor rejects professor-only commands from other roles.
	ErrNotProfessor = errors.New("command requires professor role")
	// ErrInvalidCommand marks a malformed or out-of-context command; silently ignored.
	ErrInvalidCommand = errors.New("invalid command")
	// ErrContentNotFound indicates quiz or challenge content could not be loaded.
	ErrContentNotFound = errors.New("content not found")
	// ErrEmptyContent marks an empty chat payload; dropped silently, never surfaced.
	ErrEmptyContent = errors.New("empty chat content")
)
