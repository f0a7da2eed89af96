// Package match implements the nine-phase debate protocol: the turn
// state machine, the speaking clocks, the message journal and the
// terminal evaluation handshake. One Match exists per started battle;
// all of its state is serialized under a single mutex, so ticks,
// client events, referee actions and judge completions never interleave
// inside a match.
package match

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/toronlabs/toron_backend/internal/clock"
	"github.com/toronlabs/toron_backend/internal/database"
	"github.com/toronlabs/toron_backend/internal/judge"
	"github.com/toronlabs/toron_backend/internal/logging"
	"github.com/toronlabs/toron_backend/internal/metrics"
	"github.com/toronlabs/toron_backend/internal/types"
)

// Referee action errors
var (
	ErrNotReferee    = errors.New("only the room referee can do this")
	ErrUnknownPlayer = errors.New("target is not a player in this match")
	ErrScoreRange    = errors.New("scores must be between 0 and 100")
)

// Weights for blending the AI verdict with the referee's scores
const (
	aiWeight    = 0.4
	humanWeight = 0.6
)

// Player identifies one debater
type Player struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

// Config holds the tunable knobs of a match
type Config struct {
	Timer TimerConfig

	// SettleDelay is how long to wait after announcing the player list
	// before the first phase, so clients can render their roles.
	SettleDelay time.Duration

	// TickInterval is the speaking-clock granularity
	TickInterval time.Duration
}

// DefaultConfig returns the competition settings
func DefaultConfig() Config {
	return Config{
		Timer:        DefaultTimerConfig(),
		SettleDelay:  1500 * time.Millisecond,
		TickInterval: time.Second,
	}
}

// Notifier receives match lifecycle signals. Both calls arrive on fresh
// goroutines so implementations may block on the store or the judge.
type Notifier interface {
	// MatchEvaluationReady fires when the debate reaches the
	// evaluation phase and needs an AI verdict.
	MatchEvaluationReady(roomID string)

	// MatchFinished fires exactly once after the terminal
	// battle_result broadcast, carrying everything needed to persist
	// the result.
	MatchFinished(roomID string, outcome *Outcome)
}

// Outcome is the terminal result of a match
type Outcome struct {
	RoomID         string
	SubjectID      int64
	AgreeUserID    string
	DisagreeUserID string
	WinnerUserID   string
	LoserUserID    string
	Verdict        judge.Verdict
	EndedByPenalty bool
	LogJSON        string
	VerdictJSON    string
}

// Match is one running debate
type Match struct {
	mu sync.Mutex

	roomID   string
	subject  *database.Subject
	cfg      Config
	clock    clock.Clock
	hub      Broadcaster
	notifier Notifier
	metrics  *metrics.Metrics

	agree     Player
	disagree  Player
	refereeID string

	phase     int
	journal   *Journal
	timer     *TimerEngine
	speechLog []LogEntry

	aiVerdict       *judge.Verdict
	narration       string
	humanScores     *HumanScores
	awaitingReferee bool
	refereeGone     bool
	endedByPenalty  bool
	done            bool

	settleTimer clock.Timer
	tickTimer   clock.Timer
}

// New creates a match in the waiting phase. refereeID is empty when the
// room has no referee.
func New(roomID string, subject *database.Subject, agree, disagree Player, refereeID string,
	hub Broadcaster, notifier Notifier, met *metrics.Metrics, c clock.Clock, cfg Config) *Match {

	m := &Match{
		roomID:    roomID,
		subject:   subject,
		cfg:       cfg,
		clock:     c,
		hub:       hub,
		notifier:  notifier,
		metrics:   met,
		agree:     agree,
		disagree:  disagree,
		refereeID: refereeID,
		phase:     PhaseWaiting,
		journal:   NewJournal(),
		timer:     NewTimerEngine(cfg.Timer, c),
	}
	m.timer.Register(agree.UserID)
	m.timer.Register(disagree.UserID)
	return m
}

// Begin announces the final player list and schedules the first phase
// after the settle delay
func (m *Match) Begin() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.broadcast(EventPlayerListUpdated, m.playerListLocked())

	logging.LogMatchEvent("match_begin", m.roomID, map[string]interface{}{
		"agree":    m.agree.UserID,
		"disagree": m.disagree.UserID,
		"referee":  m.refereeID,
	})

	m.settleTimer = m.clock.AfterFunc(m.cfg.SettleDelay, m.enterFirstPhase)
}

func (m *Match) enterFirstPhase() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.done || m.phase != PhaseWaiting {
		return
	}
	m.advanceLocked(PhaseAgreeOpening)
}

// advanceLocked moves to the given phase and hands the floor to its
// speaker
func (m *Match) advanceLocked(phase int) {
	m.phase = phase
	speaker := m.speakerLocked()

	announcement := TurnAnnouncement(SpeakerSide(phase), speaker.DisplayName)
	if m.journal.Append(types.SenderSystem, announcement, m.clock.NowMs()) {
		m.broadcast(EventMessagesUpdated, MessagesUpdated{Messages: m.journal.Messages()})
	}
	m.broadcast(EventTurnInfo, TurnInfo{
		CurrentPlayerID:  speaker.UserID,
		Stage:            phase,
		Message:          announcement,
		StageDescription: PhaseDescription(phase),
	})

	m.timer.StartTurn(speaker.UserID)
	m.scheduleTickLocked()
}

// speakerLocked returns the player holding the floor in the current
// phase. Call only when IsSpeaking(m.phase).
func (m *Match) speakerLocked() Player {
	if SpeakerSide(m.phase) == types.PositionAgree {
		return m.agree
	}
	return m.disagree
}

func (m *Match) playerOf(userID string) (Player, types.Position, bool) {
	switch userID {
	case m.agree.UserID:
		return m.agree, types.PositionAgree, true
	case m.disagree.UserID:
		return m.disagree, types.PositionDisagree, true
	default:
		return Player{}, types.PositionNone, false
	}
}

func (m *Match) scheduleTickLocked() {
	if m.tickTimer != nil {
		m.tickTimer.Stop()
	}
	m.tickTimer = m.clock.AfterFunc(m.cfg.TickInterval, m.tick)
}

// tick runs once per interval while a speaker holds the floor
func (m *Match) tick() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.done || !IsSpeaking(m.phase) {
		return
	}

	update, overflow := m.timer.Tick()
	if update != nil {
		m.broadcast(EventTimerUpdate, update)
	}
	if overflow != nil {
		m.applyOverflowLocked(overflow)
	}
	if !m.done && IsSpeaking(m.phase) {
		m.scheduleTickLocked()
	}
}

// applyOverflowLocked charges a budget violation: penalty points, a
// fresh overtime window and, past the threshold, forfeit.
func (m *Match) applyOverflowLocked(of *Overflow) {
	player, _, ok := m.playerOf(of.UserID)
	if !ok {
		return
	}

	points, count, forfeited := m.timer.ApplyOverflow(of.UserID)
	m.metrics.RecordPenalty(string(of.Kind))

	text := fmt.Sprintf("시간 초과! %s님에게 벌점 %d점이 부과되었습니다. (누적 %d점)",
		player.DisplayName, m.cfg.Timer.PenaltyStep, points)
	if m.journal.Append(types.SenderSystem, text, m.clock.NowMs()) {
		m.broadcast(EventMessagesUpdated, MessagesUpdated{Messages: m.journal.Messages()})
	}

	m.broadcast(EventPenaltyApplied, PenaltyApplied{
		UserID:        of.UserID,
		Kind:          string(of.Kind),
		PointsAdded:   m.cfg.Timer.PenaltyStep,
		PenaltyPoints: points,
		PenaltyCount:  count,
	})
	m.broadcast(EventOvertimeGranted, OvertimeGranted{
		UserID:           of.UserID,
		OvertimeLimitSec: m.cfg.Timer.OvertimeLimitMs / 1000,
	})

	logging.LogTimerEvent("overflow_penalty", m.roomID, of.UserID, map[string]interface{}{
		"kind":   string(of.Kind),
		"points": points,
		"count":  count,
	})

	if forfeited {
		m.forfeitLocked(of.UserID)
	}
}

// forfeitLocked ends the match immediately with a fabricated 100/0
// verdict against the offender
func (m *Match) forfeitLocked(offenderID string) {
	offender, offenderSide, ok := m.playerOf(offenderID)
	if !ok {
		return
	}
	winner := m.agree
	winnerToken := "agree"
	if offenderSide == types.PositionAgree {
		winner = m.disagree
		winnerToken = "disagree"
	}

	m.phase = PhaseTerminal
	m.endedByPenalty = true

	verdict := judge.Verdict{
		Agree:    judge.SideVerdict{Score: 100, Good: "상대 실격", Bad: ""},
		Disagree: judge.SideVerdict{Score: 0, Good: "", Bad: "벌점 누적 실격"},
		Winner:   winnerToken,
	}
	if winnerToken == "disagree" {
		verdict.Agree, verdict.Disagree = verdict.Disagree, verdict.Agree
	}
	verdict.ResolveWinner(m.agree.UserID, m.disagree.UserID)

	text := fmt.Sprintf("%s님이 벌점 %d점 누적으로 실격되었습니다. %s님의 승리입니다.",
		offender.DisplayName, m.cfg.Timer.PenaltyMax, winner.DisplayName)
	if m.journal.Append(types.SenderJudge, text, m.clock.NowMs()) {
		m.broadcast(EventMessagesUpdated, MessagesUpdated{Messages: m.journal.Messages()})
	}
	m.broadcast(EventAIJudgeMessage, JudgeMessage{Message: text, Stage: PhaseTerminal})

	logging.LogMatchEvent("penalty_forfeit", m.roomID, map[string]interface{}{
		"offender": offenderID,
		"winner":   winner.UserID,
	})

	m.finishLocked(verdict)
}

// HandleMessage applies a speech from a player. Messages from anyone
// but the current speaker are dropped silently.
func (m *Match) HandleMessage(userID, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.done || !IsSpeaking(m.phase) {
		return
	}
	speaker := m.speakerLocked()
	if speaker.UserID != userID {
		return
	}

	m.timer.AbsorbTurn()

	_, side, _ := m.playerOf(userID)
	m.speechLog = append(m.speechLog, LogEntry{UserID: userID, Text: text, Phase: m.phase})
	m.journal.Append(side.Sender(), text, m.clock.NowMs())
	m.broadcast(EventMessagesUpdated, MessagesUpdated{Messages: m.journal.Messages()})

	next := m.phase + 1
	if next <= PhaseDisagreeClosing {
		m.advanceLocked(next)
		return
	}

	// All nine turns spoken: hand over to the judge
	m.phase = PhaseEvaluation
	if m.tickTimer != nil {
		m.tickTimer.Stop()
	}

	notice := "모든 발언이 종료되었습니다. AI 판정이 진행 중입니다."
	if m.journal.Append(types.SenderSystem, notice, m.clock.NowMs()) {
		m.broadcast(EventMessagesUpdated, MessagesUpdated{Messages: m.journal.Messages()})
	}
	m.broadcast(EventTurnInfo, TurnInfo{
		Stage:            PhaseEvaluation,
		Message:          notice,
		StageDescription: PhaseDescription(PhaseEvaluation),
	})

	logging.LogMatchEvent("evaluation_started", m.roomID, nil)
	go m.notifier.MatchEvaluationReady(m.roomID)
}

// ReportOverflow handles a client-side overflow claim. The engine
// trusts its own clock, not the client's.
func (m *Match) ReportOverflow(userID, kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.done || !IsSpeaking(m.phase) {
		return
	}
	if m.timer.CurrentUserID() != userID {
		return
	}

	var k OverflowKind
	switch kind {
	case "round", "overtime":
		k = OverflowRound
	case "total":
		k = OverflowTotal
	default:
		return
	}

	if of := m.timer.CheckOverflow(k); of != nil {
		m.applyOverflowLocked(of)
	}
}

// AddPoints is the referee pardon: it lowers a player's penalty points
func (m *Match) AddPoints(refereeID, targetID string, points int) error {
	return m.adjustPoints(refereeID, targetID, -points)
}

// DeductPoints raises a player's penalty points; crossing the maximum
// forfeits immediately
func (m *Match) DeductPoints(refereeID, targetID string, points int) error {
	return m.adjustPoints(refereeID, targetID, points)
}

func (m *Match) adjustPoints(refereeID, targetID string, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkRefereeLocked(refereeID, targetID); err != nil {
		return err
	}

	points, forfeited := m.timer.AdjustPenalty(targetID, delta)
	m.metrics.RecordPenalty("referee")

	m.broadcast(EventPenaltyApplied, PenaltyApplied{
		UserID:        targetID,
		Kind:          "referee",
		PointsAdded:   delta,
		PenaltyPoints: points,
		PenaltyCount:  m.timer.Player(targetID).PenaltyCount,
	})

	if forfeited {
		m.forfeitLocked(targetID)
	}
	return nil
}

// ExtendTime hands seconds of total budget back to a player
func (m *Match) ExtendTime(refereeID, targetID string, seconds int) error {
	return m.adjustTime(refereeID, targetID, seconds, EventTimeExtended)
}

// ReduceTime takes seconds of total budget away from a player
func (m *Match) ReduceTime(refereeID, targetID string, seconds int) error {
	return m.adjustTime(refereeID, targetID, seconds, EventTimeReduced)
}

func (m *Match) adjustTime(refereeID, targetID string, seconds int, event string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkRefereeLocked(refereeID, targetID); err != nil {
		return err
	}

	deltaMs := int64(seconds) * 1000
	if event == EventTimeExtended {
		deltaMs = -deltaMs
	}
	total := m.timer.AdjustTotal(targetID, deltaMs)

	m.broadcast(event, TimeAdjusted{
		UserID:          targetID,
		Seconds:         seconds,
		RefereeID:       refereeID,
		TotalTimeUsedMs: total,
	})
	return nil
}

func (m *Match) checkRefereeLocked(refereeID, targetID string) error {
	if m.done {
		return ErrUnknownPlayer
	}
	if m.refereeID == "" || refereeID != m.refereeID {
		return ErrNotReferee
	}
	if _, _, ok := m.playerOf(targetID); !ok {
		return ErrUnknownPlayer
	}
	return nil
}

// SubmitHumanScores records the referee's scores. Submitted after the
// AI verdict they finalize the match with blending; submitted before,
// they wait for the verdict to arrive.
func (m *Match) SubmitHumanScores(refereeID string, scores HumanScores) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.done {
		return ErrUnknownPlayer
	}
	if m.refereeID == "" || refereeID != m.refereeID {
		return ErrNotReferee
	}
	if scores.Agree < 0 || scores.Agree > 100 || scores.Disagree < 0 || scores.Disagree > 100 {
		return ErrScoreRange
	}

	m.humanScores = &scores
	logging.LogMatchEvent("human_scores_submitted", m.roomID, map[string]interface{}{
		"agree":    scores.Agree,
		"disagree": scores.Disagree,
	})

	if m.aiVerdict != nil {
		m.finalizeVerdictLocked()
	}
	return nil
}

// RefereeLeft drops the referee gate: if the match was waiting on human
// scores it finalizes with the AI verdict alone
func (m *Match) RefereeLeft() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.refereeGone = true
	if m.awaitingReferee && m.aiVerdict != nil && !m.done {
		m.awaitingReferee = false
		m.finalizeVerdictLocked()
	}
}

// EvaluationInput builds the judge request from the speech log
func (m *Match) EvaluationInput() judge.Input {
	m.mu.Lock()
	defer m.mu.Unlock()

	input := judge.Input{
		SubjectTitle: m.subject.Title,
		SubjectBody:  m.subject.Body,
		AgreeName:    m.agree.DisplayName,
		DisagreeName: m.disagree.DisplayName,
	}
	for _, entry := range m.speechLog {
		player, side, ok := m.playerOf(entry.UserID)
		if !ok {
			continue
		}
		input.Transcript = append(input.Transcript, judge.Entry{
			Side:    side.String(),
			Speaker: player.DisplayName,
			Text:    entry.Text,
		})
	}
	return input
}

// ApplyVerdict lands the AI verdict. With a referee present the match
// gates on human scores; otherwise it finalizes immediately. Late
// verdicts for finished matches are dropped.
func (m *Match) ApplyVerdict(v *judge.Verdict, narration string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.done || m.phase != PhaseEvaluation {
		return
	}

	m.aiVerdict = v
	m.narration = narration
	m.aiVerdict.ResolveWinner(m.agree.UserID, m.disagree.UserID)

	if m.journal.Append(types.SenderJudge, narration, m.clock.NowMs()) {
		m.broadcast(EventMessagesUpdated, MessagesUpdated{Messages: m.journal.Messages()})
	}
	m.broadcast(EventAIJudgeMessage, JudgeMessage{Message: narration, Stage: PhaseEvaluation})

	if m.refereeID != "" && !m.refereeGone && m.humanScores == nil {
		m.awaitingReferee = true
		m.hub.SendToUser(m.roomID, m.refereeID, EventRefereeScoreGate, RefereeScorePrompt{RoomID: m.roomID})
		logging.LogMatchEvent("awaiting_referee_scores", m.roomID, nil)
		return
	}
	m.finalizeVerdictLocked()
}

// finalizeVerdictLocked blends scores when human ones exist, recomputes
// the winner and ends the match
func (m *Match) finalizeVerdictLocked() {
	m.awaitingReferee = false
	final := *m.aiVerdict

	if m.humanScores != nil {
		final.Agree.Score = blendScore(m.aiVerdict.Agree.Score, m.humanScores.Agree)
		final.Disagree.Score = blendScore(m.aiVerdict.Disagree.Score, m.humanScores.Disagree)

		// Ties preserve the AI's call
		switch {
		case final.Agree.Score > final.Disagree.Score:
			final.Winner = "agree"
		case final.Disagree.Score > final.Agree.Score:
			final.Winner = "disagree"
		default:
			final.Winner = m.aiVerdict.Winner
		}
	}
	final.ResolveWinner(m.agree.UserID, m.disagree.UserID)

	m.finishLocked(final)
}

func blendScore(ai, human int) int {
	blended := int(math.Round(float64(ai)*aiWeight + float64(human)*humanWeight))
	if blended < 0 {
		return 0
	}
	if blended > 100 {
		return 100
	}
	return blended
}

// finishLocked broadcasts the terminal result and hands the outcome to
// the notifier. After this no further events leave the match.
func (m *Match) finishLocked(final judge.Verdict) {
	m.broadcast(EventBattleResult, BattleResult{
		Agree:          final.Agree,
		Disagree:       final.Disagree,
		WinnerUserID:   final.WinnerUserID,
		EndedByPenalty: m.endedByPenalty,
	})

	m.done = true
	m.stopTimersLocked()

	loserID := m.disagree.UserID
	if final.WinnerUserID == m.disagree.UserID {
		loserID = m.agree.UserID
	}

	logJSON, _ := json.Marshal(m.speechLog)
	verdictJSON, _ := json.Marshal(final)

	outcome := &Outcome{
		RoomID:         m.roomID,
		SubjectID:      m.subject.ID,
		AgreeUserID:    m.agree.UserID,
		DisagreeUserID: m.disagree.UserID,
		WinnerUserID:   final.WinnerUserID,
		LoserUserID:    loserID,
		Verdict:        final,
		EndedByPenalty: m.endedByPenalty,
		LogJSON:        string(logJSON),
		VerdictJSON:    string(verdictJSON),
	}

	logging.LogMatchEvent("match_finished", m.roomID, map[string]interface{}{
		"winner":           outcome.WinnerUserID,
		"ended_by_penalty": m.endedByPenalty,
	})

	go m.notifier.MatchFinished(m.roomID, outcome)
}

// Abort ends the match without a verdict: battle_error goes out and no
// result is persisted. Used when the judge fails.
func (m *Match) Abort(message string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.done {
		return
	}
	m.broadcast(EventBattleError, BattleError{Message: message})
	m.done = true
	m.stopTimersLocked()

	logging.LogMatchEvent("match_aborted", m.roomID, map[string]interface{}{
		"reason": message,
	})
}

func (m *Match) stopTimersLocked() {
	if m.settleTimer != nil {
		m.settleTimer.Stop()
	}
	if m.tickTimer != nil {
		m.tickTimer.Stop()
	}
}

// Messages returns the current journal
func (m *Match) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.journal.Messages()
}

// Phase returns the current phase
func (m *Match) Phase() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Done reports whether the match reached a terminal state
func (m *Match) Done() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done
}

// PlayerList returns the player_list_updated payload
func (m *Match) PlayerList() PlayerListUpdated {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playerListLocked()
}

func (m *Match) playerListLocked() PlayerListUpdated {
	return PlayerListUpdated{
		Players: []PlayerInfo{
			{UserID: m.agree.UserID, DisplayName: m.agree.DisplayName, Position: types.PositionAgree},
			{UserID: m.disagree.UserID, DisplayName: m.disagree.DisplayName, Position: types.PositionDisagree},
		},
	}
}

// Snapshot returns the consolidated state a reconnecting client needs
func (m *Match) Snapshot(callerID string) *RoomSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := &RoomSnapshot{
		RoomID:           m.roomID,
		Active:           !m.done,
		Stage:            m.phase,
		StageDescription: PhaseDescription(m.phase),
		Messages:         m.journal.Messages(),
		Players:          m.playerListLocked().Players,
	}

	if IsSpeaking(m.phase) {
		speaker := m.speakerLocked()
		snap.CurrentPlayerID = speaker.UserID
		snap.IsMyTurn = speaker.UserID == callerID
		snap.Timer = m.timer.Snapshot()
	}

	my, opponent := m.timer.Player(callerID), (*PlayerTimer)(nil)
	switch callerID {
	case m.agree.UserID:
		opponent = m.timer.Player(m.disagree.UserID)
	case m.disagree.UserID:
		opponent = m.timer.Player(m.agree.UserID)
	}
	if my != nil {
		snap.MyPenaltyPoints = my.PenaltyPoints
		snap.MyPenaltyCount = my.PenaltyCount
	}
	if opponent != nil {
		snap.OpponentPenaltyPoints = opponent.PenaltyPoints
		snap.OpponentPenaltyCount = opponent.PenaltyCount
	}

	return snap
}

// broadcast fans an event out to the room and counts it
func (m *Match) broadcast(event string, payload interface{}) {
	m.metrics.RecordBroadcast(event)
	m.hub.BroadcastToRoom(m.roomID, event, payload)
}
