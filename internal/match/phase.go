package match

import (
	"fmt"

	"github.com/toronlabs/toron_backend/internal/types"
)

// Debate phases. A match walks them strictly in order: each accepted
// speech from the current speaker advances the phase by one. Phase 11
// is reached only when a player forfeits on accumulated penalties.
const (
	PhaseWaiting             = 0 // players loading the discussion view
	PhaseAgreeOpening        = 1
	PhaseDisagreeOpening     = 2
	PhaseDisagreeQuestion    = 3
	PhaseAgreeAnswer         = 4 // answer plus counter-question
	PhaseDisagreeAnswer      = 5 // answer plus counter-question
	PhaseAgreeRebuttal       = 6 // answer plus counter-question
	PhaseDisagreeFinalAnswer = 7
	PhaseAgreeClosing        = 8
	PhaseDisagreeClosing     = 9
	PhaseEvaluation          = 10
	PhaseTerminal            = 11
)

// SpeakerSide returns which side holds the floor in a phase.
// PositionNone means nobody speaks (waiting, evaluation, terminal).
func SpeakerSide(phase int) types.Position {
	switch phase {
	case PhaseAgreeOpening, PhaseAgreeAnswer, PhaseAgreeRebuttal, PhaseAgreeClosing:
		return types.PositionAgree
	case PhaseDisagreeOpening, PhaseDisagreeQuestion, PhaseDisagreeAnswer,
		PhaseDisagreeFinalAnswer, PhaseDisagreeClosing:
		return types.PositionDisagree
	default:
		return types.PositionNone
	}
}

// IsSpeaking reports whether the phase has a current speaker
func IsSpeaking(phase int) bool {
	return phase >= PhaseAgreeOpening && phase <= PhaseDisagreeClosing
}

// PhaseDescription returns the Korean stage name shown to clients
func PhaseDescription(phase int) string {
	switch phase {
	case PhaseWaiting:
		return "대기"
	case PhaseAgreeOpening:
		return "찬성측 입론"
	case PhaseDisagreeOpening:
		return "반대측 입론"
	case PhaseDisagreeQuestion:
		return "반대측 질의"
	case PhaseAgreeAnswer:
		return "찬성측 답변 및 질의"
	case PhaseDisagreeAnswer:
		return "반대측 답변 및 질의"
	case PhaseAgreeRebuttal:
		return "찬성측 답변 및 질의"
	case PhaseDisagreeFinalAnswer:
		return "반대측 답변"
	case PhaseAgreeClosing:
		return "찬성측 최종 변론"
	case PhaseDisagreeClosing:
		return "반대측 최종 변론"
	case PhaseEvaluation:
		return "판정"
	case PhaseTerminal:
		return "토론 종료"
	default:
		return "알 수 없음"
	}
}

// TurnAnnouncement returns the system message announcing a speaker's turn
func TurnAnnouncement(side types.Position, displayName string) string {
	return fmt.Sprintf("%s측 %s님의 대표발언 차례입니다.", side.Label(), displayName)
}
