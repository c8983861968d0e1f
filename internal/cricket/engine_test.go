package cricket

import (
	"errors"
	"testing"
	"time"
)

var (
	playerX = Participant{ID: "x", Name: "Xavier"}
	playerY = Participant{ID: "y", Name: "Yara"}
)

// newInningsSession returns a session already in innings 1 where X bats.
func newInningsSession(t *testing.T, maxBalls int) Session {
	t.Helper()
	s, err := Create(playerX, playerY, Options{
		MaxBalls: maxBalls,
		Coin:     func() bool { return true },
		Now:      func() time.Time { return time.Unix(1700000000, 0) },
		NewID:    func() string { return "session-1" },
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if s, err = StartCountdown(s); err != nil {
		t.Fatalf("StartCountdown: %v", err)
	}
	if s, err = BeginInnings(s); err != nil {
		t.Fatalf("BeginInnings: %v", err)
	}
	return s
}

// playBall submits both moves (X first) and resolves the ball.
func playBall(t *testing.T, s Session, xMove, yMove int) (Session, BallOutcome) {
	t.Helper()
	s, both, err := SubmitMove(s, "x", xMove)
	if err != nil {
		t.Fatalf("SubmitMove x: %v", err)
	}
	if both {
		t.Fatalf("both moves reported set after first submission")
	}
	s, both, err = SubmitMove(s, "y", yMove)
	if err != nil {
		t.Fatalf("SubmitMove y: %v", err)
	}
	if !both {
		t.Fatalf("both moves not reported set after second submission")
	}
	s, out, err := ResolveBall(s)
	if err != nil {
		t.Fatalf("ResolveBall: %v", err)
	}
	return s, out
}

func battingCount(s Session) int {
	n := 0
	if s.Player1.IsBatting {
		n++
	}
	if s.Player2.IsBatting {
		n++
	}
	return n
}

func TestCreateAssignsExactlyOneBatter(t *testing.T) {
	for _, coin := range []bool{true, false} {
		c := coin
		s, err := Create(playerX, playerY, Options{Coin: func() bool { return c }})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if battingCount(s) != 1 {
			t.Fatalf("coin=%v: expected exactly one batter, got %d", c, battingCount(s))
		}
		if s.Phase != PhaseToss || s.Status != StatusActive {
			t.Errorf("unexpected initial phase/status: %s/%s", s.Phase, s.Status)
		}
		if s.BattingFirst != s.Batter().ID {
			t.Errorf("battingFirst=%s but batter=%s", s.BattingFirst, s.Batter().ID)
		}
		if s.Target != nil {
			t.Errorf("target must be unset before innings 2")
		}
		if s.MaxBalls != DefaultMaxBalls {
			t.Errorf("expected default max balls %d, got %d", DefaultMaxBalls, s.MaxBalls)
		}
	}
}

func TestCreateRejectsSameParticipant(t *testing.T) {
	if _, err := Create(playerX, playerX, Options{}); !errors.Is(err, ErrSameParticipant) {
		t.Fatalf("expected ErrSameParticipant, got %v", err)
	}
	if _, err := Create(Participant{}, playerY, Options{}); !errors.Is(err, ErrSameParticipant) {
		t.Fatalf("expected ErrSameParticipant for empty id, got %v", err)
	}
}

func TestCreateMessageNamesBatter(t *testing.T) {
	s, _ := Create(playerX, playerY, Options{Coin: func() bool { return false }})
	if s.Message != "Yara bats first!" {
		t.Errorf("unexpected message %q", s.Message)
	}
}

func TestResolveBallRuleForEveryMovePair(t *testing.T) {
	for xm := 1; xm <= 6; xm++ {
		for ym := 1; ym <= 6; ym++ {
			s := newInningsSession(t, 6)
			s, out := playBall(t, s, xm, ym)

			if xm == ym {
				if !out.IsOut || out.Runs != 0 || s.Player1.Score != 0 || !s.Player1.IsOut {
					t.Errorf("x=%d y=%d: expected dismissal with zero runs, got %+v", xm, ym, out)
				}
			} else {
				if out.IsOut || out.Runs != xm || s.Player1.Score != xm {
					t.Errorf("x=%d y=%d: expected %d runs to batter, got %+v score=%d", xm, ym, xm, out, s.Player1.Score)
				}
			}
			if s.Player2.Score != 0 {
				t.Errorf("bowler must never score, got %d", s.Player2.Score)
			}
			if s.Player1.BallsFaced != 1 || s.Player2.BallsFaced != 0 {
				t.Errorf("balls faced should only grow for the batter: %d/%d", s.Player1.BallsFaced, s.Player2.BallsFaced)
			}
			if len(s.Player1.MovesPerBall) != 1 || len(s.Player2.MovesPerBall) != 1 {
				t.Errorf("both move sequences should be appended")
			}
			if s.Player1.PendingMove != 0 || s.Player2.PendingMove != 0 {
				t.Errorf("pending moves should be cleared after resolution")
			}
		}
	}
}

func TestScenarioRunsThenDismissal(t *testing.T) {
	s := newInningsSession(t, 6)

	s, out := playBall(t, s, 4, 2)
	if out.Runs != 4 || out.IsOut || s.Player1.Score != 4 || s.Player1.IsOut {
		t.Fatalf("ball 1: expected 4 runs not out, got %+v score=%d", out, s.Player1.Score)
	}
	if ended, _ := CheckInningsEnd(s); ended {
		t.Fatalf("innings must continue after ball 1")
	}

	s, out = playBall(t, s, 3, 3)
	if !out.IsOut || s.Player1.Score != 4 || !s.Player1.IsOut {
		t.Fatalf("ball 2: expected dismissal keeping score 4, got %+v score=%d", out, s.Player1.Score)
	}
	ended, reason := CheckInningsEnd(s)
	if !ended || reason != InningsOut {
		t.Fatalf("expected innings end with reason out, got %v %q", ended, reason)
	}
}

func TestCheckInningsEndBallsComplete(t *testing.T) {
	s := newInningsSession(t, 2)
	s, _ = playBall(t, s, 1, 2)
	if ended, _ := CheckInningsEnd(s); ended {
		t.Fatalf("innings ended too early")
	}
	s, _ = playBall(t, s, 1, 2)
	ended, reason := CheckInningsEnd(s)
	if !ended || reason != InningsBallsComplete {
		t.Fatalf("expected balls_complete, got %v %q", ended, reason)
	}
	if _, _, err := SubmitMove(s, "x", 3); !errors.Is(err, ErrNotInRound) {
		t.Fatalf("batter must not record moves after the last ball, got %v", err)
	}
}

func TestCheckInningsEndIffConditions(t *testing.T) {
	target := 10
	cases := []struct {
		name    string
		innings int
		target  *int
		out     bool
		balls   int
		score   int
		want    bool
	}{
		{"fresh", 1, nil, false, 0, 0, false},
		{"out", 1, nil, true, 1, 0, true},
		{"all balls", 1, nil, false, 6, 12, true},
		{"high score innings 1", 1, nil, false, 3, 30, false},
		{"equal target", 2, &target, false, 3, 10, false},
		{"beat target", 2, &target, false, 3, 11, true},
		{"below target", 2, &target, false, 5, 9, false},
	}
	for _, tc := range cases {
		s := newInningsSession(t, 6)
		s.Innings = tc.innings
		s.Target = tc.target
		s.Player1.IsOut = tc.out
		s.Player1.BallsFaced = tc.balls
		s.Player1.Score = tc.score
		if got, _ := CheckInningsEnd(s); got != tc.want {
			t.Errorf("%s: CheckInningsEnd=%v want %v", tc.name, got, tc.want)
		}
	}
}

func TestSubmitMoveErrors(t *testing.T) {
	s := newInningsSession(t, 6)

	if _, _, err := SubmitMove(s, "x", 0); !errors.Is(err, ErrInvalidMove) {
		t.Errorf("move 0: expected ErrInvalidMove, got %v", err)
	}
	if _, _, err := SubmitMove(s, "x", 7); !errors.Is(err, ErrInvalidMove) {
		t.Errorf("move 7: expected ErrInvalidMove, got %v", err)
	}
	if _, _, err := SubmitMove(s, "z", 3); !errors.Is(err, ErrNotAParticipant) {
		t.Errorf("stranger: expected ErrNotAParticipant, got %v", err)
	}

	s2, _, err := SubmitMove(s, "x", 3)
	if err != nil {
		t.Fatalf("SubmitMove: %v", err)
	}
	if _, _, err := SubmitMove(s2, "x", 4); !errors.Is(err, ErrDuplicateMove) {
		t.Errorf("second move: expected ErrDuplicateMove, got %v", err)
	}
	if s.Player1.PendingMove != 0 {
		t.Errorf("SubmitMove must not mutate its input snapshot")
	}

	toss, _ := Create(playerX, playerY, Options{})
	if _, _, err := SubmitMove(toss, toss.Player1.ID, 3); !errors.Is(err, ErrNotInRound) {
		t.Errorf("toss phase: expected ErrNotInRound, got %v", err)
	}
}

func TestResolveBallRequiresBothMoves(t *testing.T) {
	s := newInningsSession(t, 6)
	s, _, _ = SubmitMove(s, "x", 2)
	if _, _, err := ResolveBall(s); !errors.Is(err, ErrMovesPending) {
		t.Fatalf("expected ErrMovesPending, got %v", err)
	}
}

func TestScenarioTargetSetFromFirstInnings(t *testing.T) {
	s := newInningsSession(t, 6)
	s, _ = playBall(t, s, 6, 1)
	s, _ = playBall(t, s, 4, 1)
	s, _ = playBall(t, s, 2, 2) // out on 10

	if _, err := Finalize(s); !errors.Is(err, ErrWrongPhase) {
		t.Fatalf("Finalize in innings 1: expected ErrWrongPhase, got %v", err)
	}

	s, err := TransitionToInnings2(s)
	if err != nil {
		t.Fatalf("TransitionToInnings2: %v", err)
	}
	if s.Target == nil || *s.Target != 10 {
		t.Fatalf("expected target 10, got %v", s.Target)
	}
	if s.Message != "Target: 11 runs" {
		t.Errorf("unexpected message %q", s.Message)
	}
	if battingCount(s) != 1 || !s.Player2.IsBatting {
		t.Fatalf("expected Y to be the only batter after the swap")
	}
	if s.Player1.IsOut || s.Player2.IsOut || s.Player2.BallsFaced != 0 {
		t.Fatalf("out flags and incoming batter's balls must reset")
	}
	if s.Phase != PhaseStartInnings || s.Innings != 2 {
		t.Fatalf("expected startInnings / innings 2, got %s / %d", s.Phase, s.Innings)
	}

	s, err = BeginInnings(s)
	if err != nil || s.Phase != PhaseInnings2 {
		t.Fatalf("BeginInnings: %v phase=%s", err, s.Phase)
	}

	// Y reaches exactly 10: not enough.
	s, _ = playBall(t, s, 1, 5)
	s, _ = playBall(t, s, 1, 5)
	if ended, _ := CheckInningsEnd(s); ended {
		t.Fatalf("innings 2 must continue while score <= target")
	}
	// One more run passes the target.
	s, _ = playBall(t, s, 5, 1)
	ended, reason := CheckInningsEnd(s)
	if !ended || reason != InningsTargetChased {
		t.Fatalf("expected target_chased, got %v %q (score %d)", ended, reason, s.Player2.Score)
	}

	s, err = Finalize(s)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if s.Winner != "y" || s.IsTie || s.Status != StatusFinished || s.Phase != PhaseResult {
		t.Fatalf("unexpected final state: %+v", s)
	}
	if s.Message != "Yara wins by 1 runs!" {
		t.Errorf("unexpected message %q", s.Message)
	}
}

func TestScenarioTie(t *testing.T) {
	s := newInningsSession(t, 6)
	s, _ = playBall(t, s, 5, 1)
	s, _ = playBall(t, s, 3, 3)
	s, _ = TransitionToInnings2(s)
	s, _ = BeginInnings(s)
	s, _ = playBall(t, s, 1, 5) // Y scores 5
	s, _ = playBall(t, s, 2, 2) // Y out

	s, err := Finalize(s)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if !s.IsTie || s.Winner != "" {
		t.Fatalf("expected a tie with no winner, got winner=%q tie=%v", s.Winner, s.IsTie)
	}
	res := Result(s)
	if !res.IsTie || res.Winner != "" || res.ParticipantA.FinalScore != 5 || res.ParticipantB.FinalScore != 5 {
		t.Fatalf("unexpected result record %+v", res)
	}
}

func TestTransitionRequiresEndedFirstInnings(t *testing.T) {
	s := newInningsSession(t, 6)
	if _, err := TransitionToInnings2(s); !errors.Is(err, ErrWrongPhase) {
		t.Fatalf("expected ErrWrongPhase, got %v", err)
	}
}

func TestPhasesNeverRunBackward(t *testing.T) {
	s := newInningsSession(t, 6)
	if _, err := StartCountdown(s); !errors.Is(err, ErrWrongPhase) {
		t.Errorf("StartCountdown from innings1: expected ErrWrongPhase, got %v", err)
	}
	if _, err := BeginInnings(s); !errors.Is(err, ErrWrongPhase) {
		t.Errorf("BeginInnings from innings1: expected ErrWrongPhase, got %v", err)
	}
}

func TestForfeitIsIdempotent(t *testing.T) {
	s := newInningsSession(t, 6)
	s, err := Forfeit(s, "x", ReasonDisconnect)
	if err != nil {
		t.Fatalf("Forfeit: %v", err)
	}
	if s.Winner != "y" || s.Status != StatusFinished || s.Phase != PhaseResult || s.EndReason != ReasonDisconnect {
		t.Fatalf("unexpected forfeit state %+v", s)
	}
	if s.Message != "Xavier disconnected. Yara wins!" {
		t.Errorf("unexpected message %q", s.Message)
	}
	if _, err := Forfeit(s, "y", ReasonDisconnect); !errors.Is(err, ErrSessionFinished) {
		t.Fatalf("second forfeit: expected ErrSessionFinished, got %v", err)
	}
	if _, _, err := SubmitMove(s, "y", 2); !errors.Is(err, ErrNotInRound) {
		t.Fatalf("finished session must reject moves, got %v", err)
	}
}

func TestCloneDoesNotAlias(t *testing.T) {
	s := newInningsSession(t, 6)
	s, _ = playBall(t, s, 2, 1)
	c := s.Clone()
	c.Player1.MovesPerBall[0] = 6
	if s.Player1.MovesPerBall[0] != 2 {
		t.Fatalf("clone shares the move slice")
	}
}

func TestPublicViewHidesPendingMoves(t *testing.T) {
	s := newInningsSession(t, 6)
	s, _, _ = SubmitMove(s, "x", 4)
	v := PublicView(s)
	if !v.Player1.HasMoved || v.Player2.HasMoved {
		t.Fatalf("hasMoved flags wrong: %+v %+v", v.Player1, v.Player2)
	}
	if v.SessionID != s.ID || v.Phase != PhaseInnings1 {
		t.Fatalf("unexpected view %+v", v)
	}
}
