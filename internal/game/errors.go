package game

import (
	"errors"

	"github.com/handcricket/backend/internal/cricket"
	"github.com/handcricket/backend/internal/store"
)

var errorCodes = []struct {
	err  error
	code string
}{
	{store.ErrStoreUnavailable, "store_unavailable"},
	{store.ErrAlreadyActive, "already_active"},
	{store.ErrNotQueued, "not_queued"},
	{store.ErrNotFound, "not_found"},
	{cricket.ErrInvalidMove, "invalid_move"},
	{cricket.ErrNotInRound, "not_in_round"},
	{cricket.ErrSessionFinished, "not_in_round"},
	{cricket.ErrNotAParticipant, "not_a_participant"},
	{cricket.ErrDuplicateMove, "duplicate_move"},
	{cricket.ErrWrongPhase, "wrong_phase"},
}

// ErrorCode maps an error to its wire code. Only store outages are retryable.
func ErrorCode(err error) (code string, retry bool) {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code, ec.err == store.ErrStoreUnavailable
		}
	}
	return "internal", false
}

func errorEnvelope(eventType string, err error) Envelope {
	code, retry := ErrorCode(err)
	msg := err.Error()
	if code == "internal" {
		msg = "Something went wrong"
	}
	return Envelope{Type: eventType, Data: ErrorData{Code: code, Message: msg, Retry: retry}}
}
