package cricket

import "time"

// Phase is the lifecycle phase of a session. Phases only move forward:
// toss -> startInnings -> innings1 -> startInnings -> innings2 -> result.
type Phase string

const (
	PhaseToss         Phase = "toss"
	PhaseStartInnings Phase = "startInnings"
	PhaseInnings1     Phase = "innings1"
	PhaseInnings2     Phase = "innings2"
	PhaseResult       Phase = "result"
)

// Status is the coarse session status.
type Status string

const (
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

// EndReason records why a session finished.
type EndReason string

const (
	ReasonNormal     EndReason = "normal"
	ReasonDisconnect EndReason = "disconnect"
	ReasonTimeout    EndReason = "timeout"
)

// InningsEndReason records why an innings ended.
type InningsEndReason string

const (
	InningsNotEnded      InningsEndReason = ""
	InningsOut           InningsEndReason = "out"
	InningsBallsComplete InningsEndReason = "balls_complete"
	InningsTargetChased  InningsEndReason = "target_chased"
)

const (
	DefaultMaxBalls = 6

	minMove = 1
	maxMove = 6
)

// Participant is the identity handed to the core by the identity provider.
type Participant struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// Player is a participant together with its per-session round state.
// PendingMove is 0 while unset.
type Player struct {
	Participant
	Score        int   `json:"score"`
	BallsFaced   int   `json:"ballsFaced"`
	IsOut        bool  `json:"isOut"`
	IsBatting    bool  `json:"isBatting"`
	MovesPerBall []int `json:"movesPerBall"`
	PendingMove  int   `json:"pendingMove,omitempty"`
}

// Session is the aggregate passed by value through the state machine.
type Session struct {
	ID           string    `json:"id"`
	Phase        Phase     `json:"phase"`
	Status       Status    `json:"status"`
	Player1      Player    `json:"player1"`
	Player2      Player    `json:"player2"`
	BattingFirst string    `json:"battingFirst"`
	Innings      int       `json:"innings"`
	MaxBalls     int       `json:"maxBalls"`
	Target       *int      `json:"target,omitempty"`
	Winner       string    `json:"winner,omitempty"`
	IsTie        bool      `json:"isTie"`
	EndReason    EndReason `json:"endReason,omitempty"`
	Message      string    `json:"message"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	Version      int64     `json:"version"`
}

// Clone returns a deep copy so callers never share slices or the target pointer.
func (s Session) Clone() Session {
	c := s
	c.Player1.MovesPerBall = append([]int(nil), s.Player1.MovesPerBall...)
	c.Player2.MovesPerBall = append([]int(nil), s.Player2.MovesPerBall...)
	if s.Target != nil {
		t := *s.Target
		c.Target = &t
	}
	return c
}

// Player returns the player with the given id, or nil.
func (s *Session) Player(id string) *Player {
	switch id {
	case s.Player1.ID:
		return &s.Player1
	case s.Player2.ID:
		return &s.Player2
	}
	return nil
}

// Opponent returns the other player, or nil when id is not a participant.
func (s *Session) Opponent(id string) *Player {
	switch id {
	case s.Player1.ID:
		return &s.Player2
	case s.Player2.ID:
		return &s.Player1
	}
	return nil
}

// Batter returns the player currently batting.
func (s *Session) Batter() *Player {
	if s.Player1.IsBatting {
		return &s.Player1
	}
	return &s.Player2
}

// Bowler returns the player currently bowling.
func (s *Session) Bowler() *Player {
	if s.Player1.IsBatting {
		return &s.Player2
	}
	return &s.Player1
}

// ParticipantIDs returns both participant ids in seat order.
func (s *Session) ParticipantIDs() []string {
	return []string{s.Player1.ID, s.Player2.ID}
}

// IsActive reports whether the session still accepts lifecycle transitions.
func (s *Session) IsActive() bool {
	return s.Status == StatusActive
}

// InRound reports whether moves are currently accepted.
func (s *Session) InRound() bool {
	return s.Status == StatusActive && (s.Phase == PhaseInnings1 || s.Phase == PhaseInnings2)
}

// AwaitingMove reports whether the given participant still owes a move for
// the current ball.
func (s *Session) AwaitingMove(id string) bool {
	p := s.Player(id)
	return p != nil && s.InRound() && p.PendingMove == 0
}

// BallOutcome is the result of resolving one ball.
type BallOutcome struct {
	Ball       int    `json:"ball"`
	BatterID   string `json:"batterId"`
	BowlerID   string `json:"bowlerId"`
	BatterMove int    `json:"batterMove"`
	BowlerMove int    `json:"bowlerMove"`
	IsOut      bool   `json:"isOut"`
	Runs       int    `json:"runs"`
	Message    string `json:"message"`
}

// ParticipantResult is one side of a finished session summary.
type ParticipantResult struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	FinalScore int    `json:"finalScore"`
}

// SessionResult is the record handed to the result sink.
type SessionResult struct {
	SessionID    string            `json:"sessionId"`
	ParticipantA ParticipantResult `json:"participantA"`
	ParticipantB ParticipantResult `json:"participantB"`
	Winner       string            `json:"winner,omitempty"`
	IsTie        bool              `json:"isTie"`
	Reason       EndReason         `json:"reason"`
	FinishedAt   time.Time         `json:"finishedAt"`
}
