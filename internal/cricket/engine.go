package cricket

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
)

// Options controls how new sessions are created. Zero values fall back to
// production defaults.
type Options struct {
	MaxBalls int
	Coin     func() bool // true when the first participant bats first
	Now      func() time.Time
	NewID    func() string
}

func (o Options) withDefaults() Options {
	if o.MaxBalls <= 0 {
		o.MaxBalls = DefaultMaxBalls
	}
	if o.Coin == nil {
		o.Coin = func() bool { return rand.IntN(2) == 0 }
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
	return o
}

// Create starts a new session for two distinct participants. A coin flip
// decides who bats first.
func Create(a, b Participant, opts Options) (Session, error) {
	if a.ID == "" || b.ID == "" || a.ID == b.ID {
		return Session{}, ErrSameParticipant
	}
	opts = opts.withDefaults()

	aBats := opts.Coin()
	now := opts.Now()

	s := Session{
		ID:        opts.NewID(),
		Phase:     PhaseToss,
		Status:    StatusActive,
		Player1:   Player{Participant: a, IsBatting: aBats, MovesPerBall: []int{}},
		Player2:   Player{Participant: b, IsBatting: !aBats, MovesPerBall: []int{}},
		Innings:   1,
		MaxBalls:  opts.MaxBalls,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.BattingFirst = s.Batter().ID
	s.Message = fmt.Sprintf("%s bats first!", s.Batter().Name)
	return s, nil
}

// StartCountdown moves a freshly created session out of the toss.
func StartCountdown(s Session) (Session, error) {
	if !s.IsActive() || s.Phase != PhaseToss {
		return s, ErrWrongPhase
	}
	ns := s.Clone()
	ns.Phase = PhaseStartInnings
	ns.Message = "Game starting soon..."
	return ns, nil
}

// BeginInnings opens the innings announced by the preceding startInnings phase.
func BeginInnings(s Session) (Session, error) {
	if !s.IsActive() || s.Phase != PhaseStartInnings {
		return s, ErrWrongPhase
	}
	ns := s.Clone()
	if ns.Innings == 1 {
		ns.Phase = PhaseInnings1
		ns.Message = fmt.Sprintf("%s is batting. Choose your move!", ns.Batter().Name)
	} else {
		ns.Phase = PhaseInnings2
		ns.Message = fmt.Sprintf("%s needs %d runs. Choose your move!", ns.Batter().Name, *ns.Target+1)
	}
	return ns, nil
}

// SubmitMove records a participant's hidden move for the current ball and
// reports whether both moves are now in.
func SubmitMove(s Session, participantID string, move int) (Session, bool, error) {
	if move < minMove || move > maxMove {
		return s, false, ErrInvalidMove
	}
	if !s.InRound() {
		return s, false, ErrNotInRound
	}
	if s.Player(participantID) == nil {
		return s, false, ErrNotAParticipant
	}
	if ended, _ := CheckInningsEnd(s); ended {
		return s, false, ErrNotInRound
	}

	ns := s.Clone()
	p := ns.Player(participantID)
	if p.PendingMove != 0 {
		return s, false, ErrDuplicateMove
	}
	p.PendingMove = move

	return ns, ns.Player1.PendingMove != 0 && ns.Player2.PendingMove != 0, nil
}

// ResolveBall reveals both pending moves. Equal moves dismiss the batter;
// otherwise the batter scores the value of their own move.
func ResolveBall(s Session) (Session, BallOutcome, error) {
	if !s.InRound() {
		return s, BallOutcome{}, ErrNotInRound
	}
	if s.Player1.PendingMove == 0 || s.Player2.PendingMove == 0 {
		return s, BallOutcome{}, ErrMovesPending
	}

	ns := s.Clone()
	bat, bowl := ns.Batter(), ns.Bowler()

	out := BallOutcome{
		BatterID:   bat.ID,
		BowlerID:   bowl.ID,
		BatterMove: bat.PendingMove,
		BowlerMove: bowl.PendingMove,
	}

	bat.MovesPerBall = append(bat.MovesPerBall, bat.PendingMove)
	bowl.MovesPerBall = append(bowl.MovesPerBall, bowl.PendingMove)
	bat.BallsFaced++
	out.Ball = bat.BallsFaced

	if out.BatterMove == out.BowlerMove {
		bat.IsOut = true
		out.IsOut = true
		out.Message = "OUT!"
	} else {
		out.Runs = out.BatterMove
		bat.Score += out.Runs
		if out.Runs == 1 {
			out.Message = "1 run!"
		} else {
			out.Message = fmt.Sprintf("%d runs!", out.Runs)
		}
	}

	bat.PendingMove = 0
	bowl.PendingMove = 0
	ns.Message = out.Message
	return ns, out, nil
}

// CheckInningsEnd reports whether the current innings is over and why.
func CheckInningsEnd(s Session) (bool, InningsEndReason) {
	bat := s.Batter()
	switch {
	case bat.IsOut:
		return true, InningsOut
	case bat.BallsFaced >= s.MaxBalls:
		return true, InningsBallsComplete
	case s.Innings == 2 && s.Target != nil && bat.Score > *s.Target:
		return true, InningsTargetChased
	}
	return false, InningsNotEnded
}

// TransitionToInnings2 swaps the batting side and sets the target from the
// first innings score.
func TransitionToInnings2(s Session) (Session, error) {
	if !s.IsActive() || s.Innings != 1 || s.Phase != PhaseInnings1 {
		return s, ErrWrongPhase
	}
	if ended, _ := CheckInningsEnd(s); !ended {
		return s, ErrWrongPhase
	}

	ns := s.Clone()
	target := ns.Batter().Score

	ns.Player1.IsBatting = !ns.Player1.IsBatting
	ns.Player2.IsBatting = !ns.Player2.IsBatting
	ns.Player1.IsOut = false
	ns.Player2.IsOut = false
	ns.Player1.PendingMove = 0
	ns.Player2.PendingMove = 0
	ns.Batter().BallsFaced = 0

	ns.Target = &target
	ns.Innings = 2
	ns.Phase = PhaseStartInnings
	ns.Message = fmt.Sprintf("Target: %d runs", target+1)
	return ns, nil
}

// Finalize computes the winner once the second innings has ended.
func Finalize(s Session) (Session, error) {
	if !s.IsActive() || s.Innings != 2 || s.Phase != PhaseInnings2 {
		return s, ErrWrongPhase
	}
	if ended, _ := CheckInningsEnd(s); !ended {
		return s, ErrWrongPhase
	}

	ns := s.Clone()
	p1, p2 := ns.Player1, ns.Player2
	switch {
	case p1.Score > p2.Score:
		ns.Winner = p1.ID
		ns.Message = fmt.Sprintf("%s wins by %d runs!", p1.Name, p1.Score-p2.Score)
	case p2.Score > p1.Score:
		ns.Winner = p2.ID
		ns.Message = fmt.Sprintf("%s wins by %d runs!", p2.Name, p2.Score-p1.Score)
	default:
		ns.Winner = ""
		ns.IsTie = true
		ns.Message = "It's a tie!"
	}

	ns.Phase = PhaseResult
	ns.Status = StatusFinished
	ns.EndReason = ReasonNormal
	return ns, nil
}

// Forfeit ends an active session in favour of the participant who stayed.
func Forfeit(s Session, leaverID string, reason EndReason) (Session, error) {
	if !s.IsActive() {
		return s, ErrSessionFinished
	}
	leaver, winner := s.Player(leaverID), s.Opponent(leaverID)
	if leaver == nil {
		return s, ErrNotAParticipant
	}

	ns := s.Clone()
	ns.Player1.PendingMove = 0
	ns.Player2.PendingMove = 0
	ns.Winner = winner.ID
	ns.IsTie = false
	ns.Phase = PhaseResult
	ns.Status = StatusFinished
	ns.EndReason = reason
	if reason == ReasonTimeout {
		ns.Message = fmt.Sprintf("%s ran out of time. %s wins!", leaver.Name, winner.Name)
	} else {
		ns.Message = fmt.Sprintf("%s disconnected. %s wins!", leaver.Name, winner.Name)
	}
	return ns, nil
}

// Result builds the summary handed to the result sink.
func Result(s Session) SessionResult {
	return SessionResult{
		SessionID:    s.ID,
		ParticipantA: ParticipantResult{ID: s.Player1.ID, Name: s.Player1.Name, FinalScore: s.Player1.Score},
		ParticipantB: ParticipantResult{ID: s.Player2.ID, Name: s.Player2.Name, FinalScore: s.Player2.Score},
		Winner:       s.Winner,
		IsTie:        s.IsTie,
		Reason:       s.EndReason,
		FinishedAt:   s.UpdatedAt,
	}
}
