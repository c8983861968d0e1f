package models

import (
	"database/sql"
	"time"
)

// PlayerStats is the running tally of finished sessions for one participant
type PlayerStats struct {
	ParticipantID string    `db:"participant_id" json:"participant_id"`
	DisplayName   string    `db:"display_name" json:"display_name"`
	Matches       int       `db:"matches" json:"matches"`
	Wins          int       `db:"wins" json:"wins"`
	Losses        int       `db:"losses" json:"losses"`
	Ties          int       `db:"ties" json:"ties"`
	Runs          int       `db:"runs" json:"runs"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// SessionResult is one finished session; session_id is unique so a result
// can only ever be applied once
type SessionResult struct {
	SessionID  string         `db:"session_id" json:"session_id"`
	PlayerAID  string         `db:"player_a_id" json:"player_a_id"`
	PlayerBID  string         `db:"player_b_id" json:"player_b_id"`
	ScoreA     int            `db:"score_a" json:"score_a"`
	ScoreB     int            `db:"score_b" json:"score_b"`
	WinnerID   sql.NullString `db:"winner_id" json:"winner_id,omitempty"`
	IsTie      bool           `db:"is_tie" json:"is_tie"`
	EndReason  string         `db:"end_reason" json:"end_reason"`
	FinishedAt time.Time      `db:"finished_at" json:"finished_at"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}
