package rooms

import "errors"

// Caller-visible failure conditions. Handlers map these to HTTP statuses;
// none of them are fatal.
var (
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomEnded    = errors.New("room has ended")
	ErrPollNotFound = errors.New("poll not found")
	ErrInvalidPoll  = errors.New("poll must have at least two options")
)
