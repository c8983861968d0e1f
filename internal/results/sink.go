package results

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"

	"github.com/handcricket/backend/internal/cricket"
	"github.com/handcricket/backend/internal/models"
)

// ErrNoStats is returned when a participant has no finished sessions yet.
var ErrNoStats = errors.New("no stats for participant")

const insertResult = `
INSERT INTO session_results (session_id, player_a_id, player_b_id, score_a, score_b, winner_id, is_tie, end_reason, finished_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (session_id) DO NOTHING`

const upsertStats = `
INSERT INTO player_stats (participant_id, display_name, matches, wins, losses, ties, runs, updated_at)
VALUES ($1, $2, 1, $3, $4, $5, $6, NOW())
ON CONFLICT (participant_id) DO UPDATE SET
    display_name = EXCLUDED.display_name,
    matches = player_stats.matches + 1,
    wins = player_stats.wins + EXCLUDED.wins,
    losses = player_stats.losses + EXCLUDED.losses,
    ties = player_stats.ties + EXCLUDED.ties,
    runs = player_stats.runs + EXCLUDED.runs,
    updated_at = NOW()`

const selectStats = `
SELECT participant_id, display_name, matches, wins, losses, ties, runs, updated_at
FROM player_stats WHERE participant_id = $1`

// PostgresSink records finished sessions and keeps per-participant tallies.
// A session id already present in session_results is ignored, so replays
// never double-count.
type PostgresSink struct {
	db *sqlx.DB
}

func NewPostgresSink(db *sqlx.DB) *PostgresSink {
	return &PostgresSink{db: db}
}

func (s *PostgresSink) Record(ctx context.Context, r cricket.SessionResult) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	winner := sql.NullString{String: r.Winner, Valid: r.Winner != ""}
	res, err := tx.ExecContext(ctx, insertResult,
		r.SessionID,
		r.ParticipantA.ID, r.ParticipantB.ID,
		r.ParticipantA.FinalScore, r.ParticipantB.FinalScore,
		winner, r.IsTie, string(r.Reason), r.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert result %s: %w", r.SessionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert result %s: %w", r.SessionID, err)
	}
	if n == 0 {
		log.Printf("[RESULTS] session %s already recorded, skipping", r.SessionID)
		return nil
	}

	for _, p := range []cricket.ParticipantResult{r.ParticipantA, r.ParticipantB} {
		win, loss, tie := outcome(r, p.ID)
		if _, err := tx.ExecContext(ctx, upsertStats, p.ID, p.Name, win, loss, tie, p.FinalScore); err != nil {
			return fmt.Errorf("update stats for %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit result %s: %w", r.SessionID, err)
	}
	log.Printf("[RESULTS] recorded session %s (winner=%q tie=%v reason=%s)", r.SessionID, r.Winner, r.IsTie, r.Reason)
	return nil
}

// Stats returns the tally for one participant.
func (s *PostgresSink) Stats(ctx context.Context, participantID string) (models.PlayerStats, error) {
	var st models.PlayerStats
	if err := s.db.GetContext(ctx, &st, selectStats, participantID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.PlayerStats{}, ErrNoStats
		}
		return models.PlayerStats{}, err
	}
	return st, nil
}

func outcome(r cricket.SessionResult, participantID string) (win, loss, tie int) {
	switch {
	case r.IsTie:
		return 0, 0, 1
	case r.Winner == participantID:
		return 1, 0, 0
	default:
		return 0, 1, 0
	}
}
