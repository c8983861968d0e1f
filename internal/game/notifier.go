package game

import (
	"context"

	"github.com/handcricket/backend/internal/cricket"
)

// Notifier delivers envelopes to connected participants. Delivery is best
// effort: participants without a live connection are skipped.
type Notifier interface {
	SendTo(participantID string, env Envelope)
	Broadcast(participantIDs []string, env Envelope)
}

// ResultSink persists finished sessions. Record must tolerate duplicates.
type ResultSink interface {
	Record(ctx context.Context, r cricket.SessionResult) error
}
