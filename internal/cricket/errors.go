package cricket

import "errors"

var (
	ErrInvalidMove     = errors.New("move must be between 1 and 6")
	ErrNotInRound      = errors.New("session is not accepting moves")
	ErrNotAParticipant = errors.New("not a participant in this session")
	ErrDuplicateMove   = errors.New("move already submitted for this ball")
	ErrWrongPhase      = errors.New("transition not allowed in current phase")
	ErrMovesPending    = errors.New("both moves are required to resolve the ball")
	ErrSessionFinished = errors.New("session already finished")
	ErrSameParticipant = errors.New("a session needs two distinct participants")
)
