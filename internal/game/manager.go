package game

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/handcricket/backend/internal/config"
	"github.com/handcricket/backend/internal/cricket"
	"github.com/handcricket/backend/internal/matchmaking"
	"github.com/handcricket/backend/internal/store"
)

// Settings are the pacing and idle rules of a session.
type Settings struct {
	MaxBalls       int
	Countdown      int
	MatchedDelay   time.Duration
	CountdownDelay time.Duration
	ResultDelay    time.Duration
	InningsDelay   time.Duration
	IdleWarning    time.Duration
	IdleForfeit    time.Duration // zero disables idle forfeits
	SinkTimeout    time.Duration

	// Coin overrides the toss; nil flips a fair coin.
	Coin func() bool
}

func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		MaxBalls:       cfg.MaxBalls,
		Countdown:      cfg.CountdownSeconds,
		MatchedDelay:   config.Millis(cfg.MatchedDelayMs),
		CountdownDelay: time.Duration(cfg.CountdownSeconds) * time.Second,
		ResultDelay:    config.Millis(cfg.ResultDelayMs),
		InningsDelay:   config.Millis(cfg.InningsDelayMs),
		IdleWarning:    time.Duration(cfg.IdleWarningSeconds) * time.Second,
		IdleForfeit:    time.Duration(cfg.IdleForfeitSeconds) * time.Second,
		SinkTimeout:    10 * time.Second,
	}
}

// Coordinator drives sessions from matchmaking to the result. Any number of
// coordinators may share one store; per-session ordering inside a process
// comes from sessionLocks and across processes from the store's guarded
// updates.
type Coordinator struct {
	store    store.Store
	queue    *matchmaking.Queue
	notifier Notifier
	sink     ResultSink
	settings Settings

	locks  *sessionLocks
	timers *sessionTimers
	wg     sync.WaitGroup
	now    func() time.Time
}

func NewCoordinator(st store.Store, n Notifier, sink ResultSink, settings Settings) *Coordinator {
	if settings.SinkTimeout <= 0 {
		settings.SinkTimeout = 10 * time.Second
	}
	return &Coordinator{
		store:    st,
		queue:    matchmaking.NewQueue(st),
		notifier: n,
		sink:     sink,
		settings: settings,
		locks:    newSessionLocks(),
		timers:   newSessionTimers(),
		now:      time.Now,
	}
}

// Close cancels pending timers and waits for in-flight result writes.
func (c *Coordinator) Close() {
	c.timers.close()
	c.wg.Wait()
}

// Connect records a verified identity and binds it to a connection handle.
func (c *Coordinator) Connect(ctx context.Context, p cricket.Participant, handle string) error {
	if err := c.store.SaveProfile(ctx, p); err != nil {
		return err
	}
	if err := c.store.BindConnection(ctx, p.ID, handle); err != nil {
		return err
	}

	st, err := c.store.GetStatus(ctx, p.ID)
	if err != nil {
		return err
	}
	if st.Kind == store.StatusInSession {
		s, err := c.store.GetSession(ctx, st.SessionID)
		switch {
		case errors.Is(err, store.ErrNotFound) || (err == nil && !s.IsActive()):
			// Leftover from a session that already ended or expired.
			if err := c.store.ReleaseSession(ctx, p.ID, st.SessionID); err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			// A newer connection replaced a live one.
			c.notifier.SendTo(p.ID, Envelope{Type: EventGameState, Data: SessionData{SessionID: s.ID, State: cricket.PublicView(s)}})
		}
	}

	log.Printf("[SESSION] %s connected (%s)", p.ID, handle)
	return nil
}

// Status returns the participant's matchmaking status.
func (c *Coordinator) Status(ctx context.Context, participantID string) (store.PlayerStatus, error) {
	return c.store.GetStatus(ctx, participantID)
}

// QueueLength reports how many participants are waiting.
func (c *Coordinator) QueueLength(ctx context.Context) (int64, error) {
	return c.queue.Length(ctx)
}

// QueuePosition is the participant's 1-based place in the queue.
func (c *Coordinator) QueuePosition(ctx context.Context, participantID string) (int64, error) {
	return c.queue.Position(ctx, participantID)
}

// FindGame enrolls the participant and pairs whoever is waiting.
func (c *Coordinator) FindGame(ctx context.Context, participantID string) {
	if _, err := c.queue.Enroll(ctx, participantID); err != nil {
		c.notifier.SendTo(participantID, errorEnvelope(EventMatchmakingError, err))
		return
	}

	pos, err := c.queue.Position(ctx, participantID)
	if err != nil {
		log.Printf("[MATCH] position lookup for %s failed: %v", participantID, err)
	}
	c.notifier.SendTo(participantID, Envelope{Type: EventMatchmakingStatus, Data: MatchmakingStatusData{
		Status:   MatchSearching,
		Position: pos,
		Message:  "Looking for an opponent...",
	}})

	c.PairWaiting(ctx)
}

// CancelMatchmaking takes a waiting participant out of the queue.
func (c *Coordinator) CancelMatchmaking(ctx context.Context, participantID string) {
	if err := c.queue.Cancel(ctx, participantID); err != nil {
		c.notifier.SendTo(participantID, errorEnvelope(EventMatchmakingError, err))
		return
	}
	c.notifier.SendTo(participantID, Envelope{Type: EventMatchmakingCancelled, Data: MessageData{Message: "Matchmaking cancelled"}})
}

// PairWaiting forms sessions while at least two participants are queued.
func (c *Coordinator) PairWaiting(ctx context.Context) {
	for {
		pair, err := c.queue.TryPair(ctx)
		if err != nil {
			log.Printf("[MATCH] pairing failed: %v", err)
			return
		}
		if pair == nil {
			return
		}
		if err := c.startSession(ctx, pair); err != nil {
			log.Printf("[MATCH] could not start session for %v: %v", pair.IDs(), err)
			return
		}
	}
}

func (c *Coordinator) startSession(ctx context.Context, pair *matchmaking.Pair) error {
	ids := pair.IDs()

	var connected, vanished []string
	for _, id := range ids {
		h, err := c.store.ConnectionHandle(ctx, id)
		if err != nil {
			c.requeue(ctx, ids...)
			return err
		}
		if h == "" {
			vanished = append(vanished, id)
		} else {
			connected = append(connected, id)
		}
	}
	if len(vanished) > 0 {
		for _, id := range vanished {
			log.Printf("[MATCH] %s vanished before pairing completed", id)
			if err := c.store.SetStatus(ctx, id, store.Idle()); err != nil {
				log.Printf("[MATCH] failed to reset %s: %v", id, err)
			}
		}
		c.requeue(ctx, connected...)
		return nil
	}

	a, b := c.participant(ctx, ids[0]), c.participant(ctx, ids[1])
	s, err := cricket.Create(a, b, cricket.Options{MaxBalls: c.settings.MaxBalls, Coin: c.settings.Coin, Now: c.now})
	if err != nil {
		return err
	}
	if err := c.store.CreateSession(ctx, s); err != nil {
		c.requeue(ctx, ids...)
		return err
	}

	log.Printf("[SESSION] Session %s created: %s vs %s, %s bats first", s.ID, a.ID, b.ID, s.BattingFirst)
	c.notifier.Broadcast(ids, Envelope{Type: EventGameMatched, Data: SessionData{SessionID: s.ID, State: cricket.PublicView(s)}})
	c.timers.after(s.ID, c.settings.MatchedDelay, func() { c.startCountdown(s.ID) })
	return nil
}

func (c *Coordinator) requeue(ctx context.Context, ids ...string) {
	for _, id := range ids {
		if _, err := c.queue.Requeue(ctx, id); err != nil {
			log.Printf("[MATCH] failed to requeue %s: %v", id, err)
			continue
		}
		c.notifier.SendTo(id, Envelope{Type: EventMatchmakingStatus, Data: MatchmakingStatusData{
			Status:  MatchRequeued,
			Message: "Opponent left. Looking for another opponent...",
		}})
	}
}

func (c *Coordinator) participant(ctx context.Context, id string) cricket.Participant {
	p, err := c.store.GetProfile(ctx, id)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Printf("[SESSION] profile lookup for %s failed: %v", id, err)
		}
		return cricket.Participant{ID: id, Name: id}
	}
	return p
}

// step adapts a state machine transition to a guarded store update.
func step(fn func(cricket.Session) (cricket.Session, error)) store.UpdateFunc {
	return func(s *cricket.Session) error {
		next, err := fn(*s)
		if err != nil {
			return err
		}
		*s = next
		return nil
	}
}

// skipped logs a continuation that found the session moved on.
func skipped(what, sessionID string, err error) {
	if errors.Is(err, cricket.ErrWrongPhase) || errors.Is(err, cricket.ErrSessionFinished) ||
		errors.Is(err, store.ErrNotFound) || errors.Is(err, errIdleStale) {
		log.Printf("[SESSION] %s skipped for %s: %v", what, sessionID, err)
		return
	}
	log.Printf("[SESSION] %s failed for %s: %v", what, sessionID, err)
}

func (c *Coordinator) startCountdown(sessionID string) {
	unlock := c.locks.lock(sessionID)
	defer unlock()

	s, err := c.store.UpdateSession(context.Background(), sessionID, step(cricket.StartCountdown))
	if err != nil {
		skipped("countdown", sessionID, err)
		return
	}
	c.notifier.Broadcast(s.ParticipantIDs(), Envelope{Type: EventGameStartCountdown, Data: CountdownData{
		SessionID: s.ID,
		Countdown: c.settings.Countdown,
		State:     cricket.PublicView(s),
	}})
	c.timers.after(sessionID, c.settings.CountdownDelay, func() { c.beginInnings(sessionID) })
}

func (c *Coordinator) beginInnings(sessionID string) {
	unlock := c.locks.lock(sessionID)
	defer unlock()

	ctx := context.Background()
	s, err := c.store.UpdateSession(ctx, sessionID, step(cricket.BeginInnings))
	if err != nil {
		skipped("innings start", sessionID, err)
		return
	}
	log.Printf("[SESSION] Session %s innings %d started, %s batting", s.ID, s.Innings, s.Batter().ID)
	c.notifier.Broadcast(s.ParticipantIDs(), Envelope{Type: EventInningsStart, Data: InningsStartData{
		SessionID: s.ID,
		Innings:   s.Innings,
		Target:    s.Target,
		BatterID:  s.Batter().ID,
		State:     cricket.PublicView(s),
	}})
	c.armIdle(ctx, s)
}

// PlayerMove records a move. The second move of a ball resolves it in the
// same guarded update, so exactly one caller ever resolves a given ball.
func (c *Coordinator) PlayerMove(ctx context.Context, participantID string, req PlayerMoveRequest) {
	unlock := c.locks.lock(req.SessionID)
	defer unlock()

	var (
		round       string
		resolved    bool
		inningsOver bool
		reason      cricket.InningsEndReason
		outcome     cricket.BallOutcome
	)
	s, err := c.store.UpdateSession(ctx, req.SessionID, func(cur *cricket.Session) error {
		resolved, inningsOver = false, false
		round = roundOf(*cur)

		next, both, err := cricket.SubmitMove(*cur, participantID, req.Move)
		if err != nil {
			return err
		}
		if both {
			if next, outcome, err = cricket.ResolveBall(next); err != nil {
				return err
			}
			resolved = true
			inningsOver, reason = cricket.CheckInningsEnd(next)
			if inningsOver && next.Innings == 2 {
				if next, err = cricket.Finalize(next); err != nil {
					return err
				}
			}
		}
		*cur = next
		return nil
	})
	if err != nil {
		c.notifier.SendTo(participantID, errorEnvelope(EventMoveError, err))
		return
	}

	ids := s.ParticipantIDs()
	if !resolved {
		c.cancelIdle(ctx, s.ID, round, participantID)
		c.notifier.Broadcast(ids, Envelope{Type: EventPlayerMoved, Data: PlayerMovedData{SessionID: s.ID, ParticipantID: participantID}})
		return
	}

	c.cancelIdle(ctx, s.ID, round, ids...)
	c.notifier.Broadcast(ids, Envelope{Type: EventMoveResult, Data: MoveResultData{
		SessionID: s.ID,
		Outcome:   outcome,
		State:     cricket.PublicView(s),
	}})

	switch {
	case !s.IsActive():
		// Sent under the lock so no shutdown can lose it once players are released.
		c.finish(s)
		c.notifier.Broadcast(ids, gameOver(s))
	case inningsOver:
		c.timers.after(s.ID, c.settings.ResultDelay, func() { c.endInnings(s.ID, reason) })
	default:
		c.timers.after(s.ID, c.settings.ResultDelay, func() { c.continueInnings(s.ID) })
	}
}

func (c *Coordinator) continueInnings(sessionID string) {
	unlock := c.locks.lock(sessionID)
	defer unlock()

	ctx := context.Background()
	s, err := c.store.GetSession(ctx, sessionID)
	if err != nil {
		skipped("continue", sessionID, err)
		return
	}
	if !s.InRound() {
		return
	}
	if ended, _ := cricket.CheckInningsEnd(s); ended {
		return
	}
	c.notifier.Broadcast(s.ParticipantIDs(), Envelope{Type: EventContinueInnings, Data: SessionData{SessionID: s.ID, State: cricket.PublicView(s)}})
	c.armIdle(ctx, s)
}

func (c *Coordinator) endInnings(sessionID string, reason cricket.InningsEndReason) {
	unlock := c.locks.lock(sessionID)
	defer unlock()

	s, err := c.store.UpdateSession(context.Background(), sessionID, step(cricket.TransitionToInnings2))
	if err != nil {
		skipped("innings end", sessionID, err)
		return
	}
	log.Printf("[SESSION] Session %s innings 1 over (%s), target %d", s.ID, reason, *s.Target)
	c.notifier.Broadcast(s.ParticipantIDs(), Envelope{Type: EventInningsEnd, Data: InningsEndData{
		SessionID: s.ID,
		Innings:   1,
		Reason:    reason,
		Target:    s.Target,
		Message:   s.Message,
		State:     cricket.PublicView(s),
	}})
	c.timers.after(sessionID, c.settings.InningsDelay, func() { c.beginInnings(sessionID) })
}

// GetState replies with the public view of a session the caller plays in.
func (c *Coordinator) GetState(ctx context.Context, participantID string, req GetStateRequest) {
	s, err := c.store.GetSession(ctx, req.SessionID)
	if err == nil && s.Player(participantID) == nil {
		err = cricket.ErrNotAParticipant
	}
	if err != nil {
		c.notifier.SendTo(participantID, errorEnvelope(EventGameError, err))
		return
	}
	c.notifier.SendTo(participantID, Envelope{Type: EventGameState, Data: SessionData{SessionID: s.ID, State: cricket.PublicView(s)}})
}

// Touch keeps a live connection's binding and status from expiring.
func (c *Coordinator) Touch(ctx context.Context, participantID, handle string) {
	ok, err := c.store.TouchConnection(ctx, participantID, handle)
	if err != nil {
		log.Printf("[SESSION] keepalive for %s failed: %v", participantID, err)
		return
	}
	if !ok {
		log.Printf("[SESSION] %s: keepalive from replaced connection %s", participantID, handle)
	}
}

// Disconnect handles a dropped connection. A handle whose binding was taken
// over by a newer connection is ignored; an expired binding is not.
func (c *Coordinator) Disconnect(ctx context.Context, participantID, handle string) {
	removed, err := c.store.UnbindConnection(ctx, participantID, handle)
	if err != nil {
		log.Printf("[SESSION] unbind %s failed: %v", participantID, err)
	} else if !removed {
		log.Printf("[SESSION] %s: stale connection %s closed", participantID, handle)
		return
	}

	st, err := c.store.GetStatus(ctx, participantID)
	if err != nil {
		log.Printf("[SESSION] status lookup for %s failed: %v", participantID, err)
		return
	}
	switch st.Kind {
	case store.StatusQueued:
		if err := c.queue.Remove(ctx, participantID); err != nil {
			log.Printf("[MATCH] failed to remove %s: %v", participantID, err)
		}
	case store.StatusInSession:
		c.forfeit(ctx, st.SessionID, participantID, cricket.ReasonDisconnect, nil)
	}
	log.Printf("[SESSION] %s disconnected (%s)", participantID, handle)
}

// forfeit ends an active session against leaverID. guard, when set, runs
// inside the update and may veto the forfeit. It reports whether this call
// finished the session.
func (c *Coordinator) forfeit(ctx context.Context, sessionID, leaverID string, reason cricket.EndReason, guard func(cricket.Session) error) bool {
	unlock := c.locks.lock(sessionID)
	defer unlock()

	s, err := c.store.UpdateSession(ctx, sessionID, func(cur *cricket.Session) error {
		if guard != nil {
			if err := guard(*cur); err != nil {
				return err
			}
		}
		next, err := cricket.Forfeit(*cur, leaverID, reason)
		if err != nil {
			return err
		}
		*cur = next
		return nil
	})
	if err != nil {
		skipped("forfeit", sessionID, err)
		return false
	}

	c.finish(s)
	if reason == cricket.ReasonDisconnect {
		c.notifier.SendTo(s.Winner, Envelope{Type: EventPlayerDisconnected, Data: PlayerDisconnectedData{
			SessionID:     s.ID,
			ParticipantID: leaverID,
			Message:       s.Message,
		}})
	}
	c.notifier.Broadcast(s.ParticipantIDs(), gameOver(s))
	return true
}

// finish runs once per session, for the update that moved it to Finished.
func (c *Coordinator) finish(s cricket.Session) {
	c.timers.stop(s.ID)

	ctx := context.Background()
	for _, id := range s.ParticipantIDs() {
		if err := c.store.ReleaseSession(ctx, id, s.ID); err != nil {
			log.Printf("[SESSION] failed to release %s from %s: %v", id, s.ID, err)
		}
	}
	c.cancelIdle(ctx, s.ID, roundOf(s), s.ParticipantIDs()...)

	log.Printf("[SESSION] Session %s finished: winner=%q tie=%v reason=%s", s.ID, s.Winner, s.IsTie, s.EndReason)

	if c.sink == nil {
		return
	}
	res := cricket.Result(s)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.settings.SinkTimeout)
		defer cancel()
		if err := c.sink.Record(ctx, res); err != nil {
			log.Printf("[RESULTS] failed to record session %s: %v", res.SessionID, err)
		}
	}()
}

func gameOver(s cricket.Session) Envelope {
	return Envelope{Type: EventGameOver, Data: GameOverData{
		SessionID: s.ID,
		Winner:    s.Winner,
		IsTie:     s.IsTie,
		Reason:    s.EndReason,
		Message:   s.Message,
		State:     cricket.PublicView(s),
	}}
}

// roundOf identifies the ball currently being played.
func roundOf(s cricket.Session) string {
	return fmt.Sprintf("%d.%d", s.Innings, s.Batter().BallsFaced+1)
}
