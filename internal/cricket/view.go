package cricket

// PlayerView is what clients see of a player. Pending moves stay hidden;
// only whether a move was made is exposed.
type PlayerView struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	AvatarURL    string `json:"avatarUrl,omitempty"`
	Score        int    `json:"score"`
	BallsFaced   int    `json:"ballsFaced"`
	IsOut        bool   `json:"isOut"`
	IsBatting    bool   `json:"isBatting"`
	MovesPerBall []int  `json:"movesPerBall"`
	HasMoved     bool   `json:"hasMoved"`
}

// View is the public representation of a session.
type View struct {
	SessionID    string     `json:"sessionId"`
	Phase        Phase      `json:"phase"`
	Status       Status     `json:"status"`
	Player1      PlayerView `json:"player1"`
	Player2      PlayerView `json:"player2"`
	BattingFirst string     `json:"battingFirst"`
	Innings      int        `json:"innings"`
	MaxBalls     int        `json:"maxBalls"`
	Target       *int       `json:"target,omitempty"`
	Winner       string     `json:"winner,omitempty"`
	IsTie        bool       `json:"isTie"`
	EndReason    EndReason  `json:"endReason,omitempty"`
	Message      string     `json:"message"`
}

func playerView(p Player) PlayerView {
	return PlayerView{
		ID:           p.ID,
		Name:         p.Name,
		AvatarURL:    p.AvatarURL,
		Score:        p.Score,
		BallsFaced:   p.BallsFaced,
		IsOut:        p.IsOut,
		IsBatting:    p.IsBatting,
		MovesPerBall: append([]int{}, p.MovesPerBall...),
		HasMoved:     p.PendingMove != 0,
	}
}

// PublicView renders the session for broadcast.
func PublicView(s Session) View {
	v := View{
		SessionID:    s.ID,
		Phase:        s.Phase,
		Status:       s.Status,
		Player1:      playerView(s.Player1),
		Player2:      playerView(s.Player2),
		BattingFirst: s.BattingFirst,
		Innings:      s.Innings,
		MaxBalls:     s.MaxBalls,
		Winner:       s.Winner,
		IsTie:        s.IsTie,
		EndReason:    s.EndReason,
		Message:      s.Message,
	}
	if s.Target != nil {
		t := *s.Target
		v.Target = &t
	}
	return v
}
