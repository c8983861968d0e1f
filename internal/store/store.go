package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/handcricket/backend/internal/cricket"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrStoreUnavailable = errors.New("state store unavailable")
	ErrAlreadyActive    = errors.New("participant is already queued or in a session")
	ErrNotQueued        = errors.New("participant is not queued")
)

// StatusKind tags the PlayerStatus variant.
type StatusKind string

const (
	StatusIdle      StatusKind = "idle"
	StatusQueued    StatusKind = "queued"
	StatusInSession StatusKind = "in_session"
)

// PlayerStatus is the matchmaking status of a participant. SessionID is only
// set for StatusInSession, Seq only for StatusQueued.
type PlayerStatus struct {
	Kind      StatusKind `json:"kind"`
	SessionID string     `json:"sessionId,omitempty"`
	Seq       int64      `json:"seq,omitempty"`
}

func Idle() PlayerStatus { return PlayerStatus{Kind: StatusIdle} }

func InSession(sessionID string) PlayerStatus {
	return PlayerStatus{Kind: StatusInSession, SessionID: sessionID}
}

// Active reports whether the participant is queued or playing.
func (p PlayerStatus) Active() bool {
	return p.Kind == StatusQueued || p.Kind == StatusInSession
}

// QueueEntry is one waiting participant. Seq comes from a store-wide counter
// and orders entries FIFO.
type QueueEntry struct {
	ParticipantID string `json:"participantId"`
	Seq           int64  `json:"seq"`
}

// DeadlineKind names one of the idle deadline sets.
type DeadlineKind string

const (
	DeadlineWarning DeadlineKind = "idle_warning"
	DeadlineForfeit DeadlineKind = "idle_forfeit"
)

// UpdateFunc mutates a session copy inside a guarded update. Returning an
// error aborts the update and nothing is written.
type UpdateFunc func(s *cricket.Session) error

// Store is the shared state every server process works against.
type Store interface {
	// Enqueue appends the participant to the queue and marks it queued.
	// Fails with ErrAlreadyActive when it is queued or in a session.
	Enqueue(ctx context.Context, participantID string) (QueueEntry, error)
	// Requeue re-appends a participant popped by PopPair whose opponent vanished.
	Requeue(ctx context.Context, participantID string) (QueueEntry, error)
	// Dequeue removes the participant's entry and marks it idle.
	// Fails with ErrNotQueued when no entry exists.
	Dequeue(ctx context.Context, participantID string) error
	// PopPair atomically removes the two oldest live entries. It returns nil
	// when fewer than two are waiting.
	PopPair(ctx context.Context) ([]QueueEntry, error)
	QueueLength(ctx context.Context) (int64, error)
	// QueuePosition is 1-based; ErrNotQueued when absent.
	QueuePosition(ctx context.Context, participantID string) (int64, error)

	GetStatus(ctx context.Context, participantID string) (PlayerStatus, error)
	SetStatus(ctx context.Context, participantID string, st PlayerStatus) error
	// ReleaseSession sets the participant idle if it is still bound to sessionID.
	ReleaseSession(ctx context.Context, participantID, sessionID string) error

	SaveProfile(ctx context.Context, p cricket.Participant) error
	GetProfile(ctx context.Context, participantID string) (cricket.Participant, error)

	BindConnection(ctx context.Context, participantID, handle string) error
	// ConnectionHandle returns "" when the participant has no binding.
	ConnectionHandle(ctx context.Context, participantID string) (string, error)
	// TouchConnection extends the binding, status and profile expiry while
	// the connection is alive, restoring a binding that already expired. It
	// reports false when another handle owns the binding.
	TouchConnection(ctx context.Context, participantID, handle string) (bool, error)
	// UnbindConnection deletes the binding unless another handle owns it and
	// reports whether handle was current. A missing binding counts as current.
	UnbindConnection(ctx context.Context, participantID, handle string) (bool, error)

	// CreateSession stores a new session and marks both participants in_session.
	CreateSession(ctx context.Context, s cricket.Session) error
	GetSession(ctx context.Context, sessionID string) (cricket.Session, error)
	// UpdateSession applies fn under optimistic concurrency control and
	// returns the stored result. Version is bumped on every write.
	UpdateSession(ctx context.Context, sessionID string, fn UpdateFunc) (cricket.Session, error)

	ScheduleDeadline(ctx context.Context, kind DeadlineKind, member string, at time.Time) error
	CancelDeadlines(ctx context.Context, members ...string) error
	// ClaimDue removes and returns every member of kind due at or before now.
	// A member is returned to exactly one caller.
	ClaimDue(ctx context.Context, kind DeadlineKind, now time.Time) ([]string, error)
}

// Options are the retention settings shared by both implementations.
type Options struct {
	SessionTTL       time.Duration
	SessionRetention time.Duration
	StatusTTL        time.Duration
	Timeout          time.Duration
}

func (o Options) withDefaults() Options {
	if o.SessionTTL <= 0 {
		o.SessionTTL = time.Hour
	}
	if o.SessionRetention <= 0 {
		o.SessionRetention = 5 * time.Minute
	}
	if o.StatusTTL <= 0 {
		o.StatusTTL = time.Hour
	}
	if o.Timeout <= 0 {
		o.Timeout = 2 * time.Second
	}
	return o
}

func (o Options) sessionExpiry(s cricket.Session) time.Duration {
	if s.IsActive() {
		return o.SessionTTL
	}
	return o.SessionRetention
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// DeadlineMember builds the deadline set member for one participant's ball.
func DeadlineMember(sessionID, participantID string, round string) string {
	return fmt.Sprintf("s:%s:p:%s:r:%s", sessionID, participantID, round)
}

// ParseDeadlineMember is the inverse of DeadlineMember.
func ParseDeadlineMember(m string) (sessionID, participantID, round string, ok bool) {
	// session ids are uuids and rounds are "<innings>.<ball>", so only the
	// participant id may contain separators.
	const (
		sPrefix = "s:"
		pMarker = ":p:"
		rMarker = ":r:"
	)
	if !strings.HasPrefix(m, sPrefix) {
		return "", "", "", false
	}
	rest := m[len(sPrefix):]
	pi := strings.Index(rest, pMarker)
	ri := strings.LastIndex(rest, rMarker)
	if pi < 0 || ri < 0 || ri < pi+len(pMarker) {
		return "", "", "", false
	}
	return rest[:pi], rest[pi+len(pMarker) : ri], rest[ri+len(rMarker):], true
}
