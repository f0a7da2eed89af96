package match

import (
	"github.com/toronlabs/toron_backend/internal/judge"
	"github.com/toronlabs/toron_backend/internal/types"
)

// Event names broadcast by a running match
const (
	EventTurnInfo         = "turn_info"
	EventTimerUpdate      = "timer_update"
	EventMessagesUpdated  = "messages_updated"
	EventPenaltyApplied   = "penalty_applied"
	EventOvertimeGranted  = "overtime_granted"
	EventTimeExtended     = "time_extended"
	EventTimeReduced      = "time_reduced"
	EventAIJudgeMessage   = "ai_judge_message"
	EventBattleResult      = "battle_result"
	EventBattleError       = "battle_error"
	EventRefereeScoreGate  = "show_referee_score_modal"
	EventPlayerListUpdated = "player_list_updated"
)

// Broadcaster delivers match events to room subscribers. The hub in
// the server package implements it.
type Broadcaster interface {
	BroadcastToRoom(roomID, event string, payload interface{})
	SendToUser(roomID, userID, event string, payload interface{})
}

// TurnInfo announces the current speaker and stage
type TurnInfo struct {
	CurrentPlayerID  string `json:"currentPlayerId"`
	Stage            int    `json:"stage"`
	Message          string `json:"message"`
	StageDescription string `json:"stageDescription"`
}

// JudgeMessage carries AI judge prose to the room
type JudgeMessage struct {
	Message string `json:"message"`
	Stage   int    `json:"stage"`
}

// MessagesUpdated carries the full message log after an append
type MessagesUpdated struct {
	Messages []Message `json:"messages"`
}

// PenaltyApplied reports a change to a player's penalty points. Kind is
// "round" or "total" for overflow penalties and "referee" for manual
// adjustments, where PointsAdded may be negative.
type PenaltyApplied struct {
	UserID        string `json:"userId"`
	Kind          string `json:"kind"`
	PointsAdded   int    `json:"pointsAdded"`
	PenaltyPoints int    `json:"penaltyPoints"`
	PenaltyCount  int    `json:"penaltyCount"`
}

// OvertimeGranted reports a fresh overtime window for the speaker
type OvertimeGranted struct {
	UserID           string `json:"userId"`
	OvertimeLimitSec int64  `json:"overtimeLimitSec"`
}

// TimeAdjusted reports a referee change to a player's total budget
type TimeAdjusted struct {
	UserID          string `json:"userId"`
	Seconds         int    `json:"seconds"`
	RefereeID       string `json:"refereeId"`
	TotalTimeUsedMs int64  `json:"totalTimeUsedMs"`
}

// BattleResult is the terminal verdict broadcast
type BattleResult struct {
	Agree          judge.SideVerdict `json:"agree"`
	Disagree       judge.SideVerdict `json:"disagree"`
	WinnerUserID   string            `json:"winnerUserId"`
	EndedByPenalty bool              `json:"endedByPenalty"`
}

// BattleError tells the room the match ended without a verdict
type BattleError struct {
	Message string `json:"message"`
}

// RefereeScorePrompt asks the referee to submit human scores
type RefereeScorePrompt struct {
	RoomID string `json:"roomId"`
}

// HumanScores are the referee's scores for both sides
type HumanScores struct {
	Agree    int `json:"agree"`
	Disagree int `json:"disagree"`
}

// LogEntry is one accepted speech in the battle log persisted with the
// battle row
type LogEntry struct {
	UserID string `json:"userId"`
	Text   string `json:"text"`
	Phase  int    `json:"phase"`
}

// PlayerInfo is one entry of the player_list_updated payload
type PlayerInfo struct {
	UserID      string         `json:"userId"`
	DisplayName string         `json:"displayName"`
	Position    types.Position `json:"position"`
}

// PlayerListUpdated announces the final side assignment before phase 1
type PlayerListUpdated struct {
	Players []PlayerInfo `json:"players"`
}

// RoomSnapshot is the consolidated resync state for a reconnecting
// client
type RoomSnapshot struct {
	RoomID                string       `json:"roomId"`
	Active                bool         `json:"active"`
	Stage                 int          `json:"stage"`
	StageDescription      string       `json:"stageDescription"`
	CurrentPlayerID       string       `json:"currentPlayerId,omitempty"`
	IsMyTurn              bool         `json:"isMyTurn"`
	Messages              []Message    `json:"messages"`
	Timer                 *TimerUpdate `json:"timer,omitempty"`
	Players               []PlayerInfo `json:"players,omitempty"`
	MyPenaltyPoints       int          `json:"myPenaltyPoints"`
	MyPenaltyCount        int          `json:"myPenaltyCount"`
	OpponentPenaltyPoints int          `json:"opponentPenaltyPoints"`
	OpponentPenaltyCount  int          `json:"opponentPenaltyCount"`
}
