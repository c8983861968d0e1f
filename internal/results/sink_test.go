package results

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/handcricket/backend/internal/cricket"
)

func newMockSink(t *testing.T) (*PostgresSink, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresSink(sqlx.NewDb(db, "postgres")), mock
}

func sampleResult() cricket.SessionResult {
	return cricket.SessionResult{
		SessionID:    "s1",
		ParticipantA: cricket.ParticipantResult{ID: "a", Name: "Asha", FinalScore: 12},
		ParticipantB: cricket.ParticipantResult{ID: "b", Name: "Ben", FinalScore: 7},
		Winner:       "a",
		Reason:       cricket.ReasonNormal,
		FinishedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

var (
	insertRe = regexp.QuoteMeta("INSERT INTO session_results")
	statsRe  = regexp.QuoteMeta("INSERT INTO player_stats")
)

func TestRecordWritesResultAndStats(t *testing.T) {
	sink, mock := newMockSink(t)
	r := sampleResult()

	mock.ExpectBegin()
	mock.ExpectExec(insertRe).
		WithArgs("s1", "a", "b", 12, 7, "a", false, "normal", r.FinishedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(statsRe).WithArgs("a", "Asha", 1, 0, 0, 12).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(statsRe).WithArgs("b", "Ben", 0, 1, 0, 7).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, sink.Record(context.Background(), r))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordTieStoresNullWinner(t *testing.T) {
	sink, mock := newMockSink(t)
	r := sampleResult()
	r.Winner = ""
	r.IsTie = true
	r.ParticipantB.FinalScore = 12

	mock.ExpectBegin()
	mock.ExpectExec(insertRe).
		WithArgs("s1", "a", "b", 12, 12, nil, true, "normal", r.FinishedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(statsRe).WithArgs("a", "Asha", 0, 0, 1, 12).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(statsRe).WithArgs("b", "Ben", 0, 0, 1, 12).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, sink.Record(context.Background(), r))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordDuplicateSkipsStats(t *testing.T) {
	sink, mock := newMockSink(t)

	mock.ExpectBegin()
	mock.ExpectExec(insertRe).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	require.NoError(t, sink.Record(context.Background(), sampleResult()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRollsBackOnStatsFailure(t *testing.T) {
	sink, mock := newMockSink(t)

	mock.ExpectBegin()
	mock.ExpectExec(insertRe).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(statsRe).WillReturnError(errors.New("deadlock detected"))
	mock.ExpectRollback()

	err := sink.Record(context.Background(), sampleResult())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deadlock detected")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStats(t *testing.T) {
	sink, mock := newMockSink(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{"participant_id", "display_name", "matches", "wins", "losses", "ties", "runs", "updated_at"}).
		AddRow("a", "Asha", 3, 2, 1, 0, 40, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM player_stats")).WithArgs("a").WillReturnRows(rows)

	st, err := sink.Stats(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, 3, st.Matches)
	assert.Equal(t, 2, st.Wins)
	assert.Equal(t, 40, st.Runs)

	mock.ExpectQuery(regexp.QuoteMeta("FROM player_stats")).WithArgs("z").
		WillReturnRows(sqlmock.NewRows([]string{"participant_id"}))
	_, err = sink.Stats(context.Background(), "z")
	assert.ErrorIs(t, err, ErrNoStats)
	assert.NoError(t, mock.ExpectationsWereMet())
}
