package game

import (
	"context"
	"log"
	"time"
)

// RunMatchmakerWorker periodically pairs waiting participants. Pairing also
// happens inline on every find_game; the sweep picks up requeued entries and
// entries enrolled through other processes when a pairing attempt failed.
func (c *Coordinator) RunMatchmakerWorker(ctx context.Context, poll time.Duration) error {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	log.Printf("[MATCHMAKER] Starting matchmaker worker (poll every %v)", poll)

	for {
		select {
		case <-ctx.Done():
			log.Printf("[MATCHMAKER] Worker stopped")
			return nil
		case <-ticker.C:
			c.PairWaiting(ctx)
		}
	}
}
