package game

import (
	"time"

	"github.com/handcricket/backend/internal/cricket"
)

// Event types sent by clients.
const (
	EventFindGame          = "find_game"
	EventCancelMatchmaking = "cancel_matchmaking"
	EventPlayerMove        = "player_move"
	EventGetState          = "get_state"
)

// Event types sent to clients.
const (
	EventMatchmakingStatus    = "matchmaking_status"
	EventMatchmakingError     = "matchmaking_error"
	EventMatchmakingCancelled = "matchmaking_cancelled"
	EventGameMatched          = "game_matched"
	EventGameStartCountdown   = "game_start_countdown"
	EventPlayerMoved          = "player_moved"
	EventMoveResult           = "move_result"
	EventContinueInnings      = "continue_innings"
	EventInningsEnd           = "innings_end"
	EventInningsStart         = "innings_start"
	EventPlayerIdleWarning    = "player_idle_warning"
	EventPlayerDisconnected   = "player_disconnected"
	EventGameOver             = "game_over"
	EventGameState            = "game_state"
	EventMoveError            = "move_error"
	EventGameError            = "game_error"
)

// Envelope is the wire frame in both directions.
type Envelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Matchmaking status values.
const (
	MatchSearching = "searching"
	MatchRequeued  = "requeued"
)

type MatchmakingStatusData struct {
	Status   string `json:"status"`
	Position int64  `json:"position,omitempty"`
	Message  string `json:"message"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Retry   bool   `json:"retry"`
}

type MessageData struct {
	Message string `json:"message"`
}

type SessionData struct {
	SessionID string       `json:"sessionId"`
	State     cricket.View `json:"state"`
}

type CountdownData struct {
	SessionID string       `json:"sessionId"`
	Countdown int          `json:"countdown"`
	State     cricket.View `json:"state"`
}

type PlayerMovedData struct {
	SessionID     string `json:"sessionId"`
	ParticipantID string `json:"participantId"`
}

type MoveResultData struct {
	SessionID string              `json:"sessionId"`
	Outcome   cricket.BallOutcome `json:"outcome"`
	State     cricket.View        `json:"state"`
}

type InningsEndData struct {
	SessionID string                   `json:"sessionId"`
	Innings   int                      `json:"innings"`
	Reason    cricket.InningsEndReason `json:"reason"`
	Target    *int                     `json:"target,omitempty"`
	Message   string                   `json:"message"`
	State     cricket.View             `json:"state"`
}

type InningsStartData struct {
	SessionID string       `json:"sessionId"`
	Innings   int          `json:"innings"`
	Target    *int         `json:"target,omitempty"`
	BatterID  string       `json:"batterId"`
	State     cricket.View `json:"state"`
}

type IdleWarningData struct {
	SessionID        string    `json:"sessionId"`
	ParticipantID    string    `json:"participantId"`
	ForfeitAt        time.Time `json:"forfeitAt"`
	RemainingSeconds int       `json:"remainingSeconds"`
	Message          string    `json:"message"`
}

type PlayerDisconnectedData struct {
	SessionID     string `json:"sessionId"`
	ParticipantID string `json:"participantId"`
	Message       string `json:"message"`
}

type GameOverData struct {
	SessionID string            `json:"sessionId"`
	Winner    string            `json:"winner,omitempty"`
	IsTie     bool              `json:"isTie"`
	Reason    cricket.EndReason `json:"reason"`
	Message   string            `json:"message"`
	State     cricket.View      `json:"state"`
}

// PlayerMoveRequest is the data of a player_move event.
type PlayerMoveRequest struct {
	SessionID string `json:"sessionId"`
	Move      int    `json:"move"`
}

// GetStateRequest is the data of a get_state event.
type GetStateRequest struct {
	SessionID string `json:"sessionId"`
}
