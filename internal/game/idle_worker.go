package game

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/handcricket/backend/internal/cricket"
	"github.com/handcricket/backend/internal/store"
)

var errIdleStale = errors.New("idle deadline no longer applies")

// armIdle schedules warning and forfeit deadlines for every participant that
// still owes a move on the current ball.
func (c *Coordinator) armIdle(ctx context.Context, s cricket.Session) {
	if c.settings.IdleForfeit <= 0 {
		return
	}
	now := c.now()
	round := roundOf(s)
	for _, id := range s.ParticipantIDs() {
		if !s.AwaitingMove(id) {
			continue
		}
		m := store.DeadlineMember(s.ID, id, round)
		if c.settings.IdleWarning > 0 && c.settings.IdleWarning < c.settings.IdleForfeit {
			if err := c.store.ScheduleDeadline(ctx, store.DeadlineWarning, m, now.Add(c.settings.IdleWarning)); err != nil {
				log.Printf("[IDLE] failed to schedule warning for %s: %v", m, err)
			}
		}
		if err := c.store.ScheduleDeadline(ctx, store.DeadlineForfeit, m, now.Add(c.settings.IdleForfeit)); err != nil {
			log.Printf("[IDLE] failed to schedule forfeit for %s: %v", m, err)
		}
	}
}

func (c *Coordinator) cancelIdle(ctx context.Context, sessionID, round string, participantIDs ...string) {
	if c.settings.IdleForfeit <= 0 {
		return
	}
	members := make([]string, 0, len(participantIDs))
	for _, id := range participantIDs {
		members = append(members, store.DeadlineMember(sessionID, id, round))
	}
	if err := c.store.CancelDeadlines(ctx, members...); err != nil {
		log.Printf("[IDLE] failed to cancel deadlines %v: %v", members, err)
	}
}

// RunIdleWorker polls the deadline sets until ctx is done. Several processes
// may run it against one store; each deadline is claimed by one of them.
func (c *Coordinator) RunIdleWorker(ctx context.Context, poll time.Duration) error {
	if c.settings.IdleForfeit <= 0 {
		log.Println("[IDLE] Idle forfeits disabled; idle worker not started")
		<-ctx.Done()
		return nil
	}

	log.Println("[IDLE] Idle worker started")
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[IDLE] Idle worker stopping")
			return nil
		case <-ticker.C:
			c.processIdle(ctx, c.now())
		}
	}
}

func (c *Coordinator) processIdle(ctx context.Context, now time.Time) {
	warnings, err := c.store.ClaimDue(ctx, store.DeadlineWarning, now)
	if err != nil {
		log.Printf("[IDLE] Failed to fetch idle warnings: %v", err)
	}
	for _, m := range warnings {
		c.idleWarning(ctx, m, now)
	}

	forfeits, err := c.store.ClaimDue(ctx, store.DeadlineForfeit, now)
	if err != nil {
		log.Printf("[IDLE] Failed to fetch idle forfeits: %v", err)
	}
	for _, m := range forfeits {
		c.idleForfeit(ctx, m)
	}
}

// idleGuard accepts only sessions where the participant still owes the move
// for the ball the deadline was armed for.
func idleGuard(participantID, round string) func(cricket.Session) error {
	return func(s cricket.Session) error {
		if !s.AwaitingMove(participantID) || roundOf(s) != round {
			return errIdleStale
		}
		return nil
	}
}

func (c *Coordinator) idleWarning(ctx context.Context, member string, now time.Time) {
	sessionID, participantID, round, ok := store.ParseDeadlineMember(member)
	if !ok {
		log.Printf("[IDLE] malformed member %q", member)
		return
	}
	s, err := c.store.GetSession(ctx, sessionID)
	if err != nil {
		log.Printf("[IDLE] skipping warning for %s: %v", member, err)
		return
	}
	if err := idleGuard(participantID, round)(s); err != nil {
		log.Printf("[IDLE] skipping warning for player %s in session %s (phase=%s)", participantID, sessionID, s.Phase)
		return
	}

	forfeitAt := now.Add(c.settings.IdleForfeit - c.settings.IdleWarning)
	name := participantID
	if p := s.Player(participantID); p != nil {
		name = p.Name
	}
	c.notifier.Broadcast(s.ParticipantIDs(), Envelope{Type: EventPlayerIdleWarning, Data: IdleWarningData{
		SessionID:        s.ID,
		ParticipantID:    participantID,
		ForfeitAt:        forfeitAt,
		RemainingSeconds: int(forfeitAt.Sub(now).Seconds()),
		Message:          fmt.Sprintf("%s is idle and will forfeit soon.", name),
	}})
	log.Printf("[IDLE] warned player %s in session %s (forfeit_at=%s)", participantID, sessionID, forfeitAt.Format(time.RFC3339))
}

func (c *Coordinator) idleForfeit(ctx context.Context, member string) {
	sessionID, participantID, round, ok := store.ParseDeadlineMember(member)
	if !ok {
		log.Printf("[IDLE] malformed member %q", member)
		return
	}
	if c.forfeit(ctx, sessionID, participantID, cricket.ReasonTimeout, idleGuard(participantID, round)) {
		log.Printf("[IDLE] Forfeited player %s in session %s due to inactivity", participantID, sessionID)
	}
}
