package match

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toronlabs/toron_backend/internal/clock"
	"github.com/toronlabs/toron_backend/internal/database"
	"github.com/toronlabs/toron_backend/internal/judge"
)

type fakeEvent struct {
	Event      string
	Payload    interface{}
	TargetUser string
}

type fakeHub struct {
	mu     sync.Mutex
	events []fakeEvent
}

func (h *fakeHub) BroadcastToRoom(roomID, event string, payload interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, fakeEvent{Event: event, Payload: payload})
}

func (h *fakeHub) SendToUser(roomID, userID, event string, payload interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, fakeEvent{Event: event, Payload: payload, TargetUser: userID})
}

func (h *fakeHub) count(event string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, e := range h.events {
		if e.Event == event {
			n++
		}
	}
	return n
}

func (h *fakeHub) last(event string) (fakeEvent, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.events) - 1; i >= 0; i-- {
		if h.events[i].Event == event {
			return h.events[i], true
		}
	}
	return fakeEvent{}, false
}

func (h *fakeHub) firstIndex(event string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, e := range h.events {
		if e.Event == event {
			return i
		}
	}
	return -1
}

func (h *fakeHub) lastIndex(event string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.events) - 1; i >= 0; i-- {
		if h.events[i].Event == event {
			return i
		}
	}
	return -1
}

type fakeNotifier struct {
	evalReady chan string
	finished  chan *Outcome
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{
		evalReady: make(chan string, 2),
		finished:  make(chan *Outcome, 2),
	}
}

func (n *fakeNotifier) MatchEvaluationReady(roomID string) { n.evalReady <- roomID }
func (n *fakeNotifier) MatchFinished(roomID string, o *Outcome) {
	n.finished <- o
}

func waitOutcome(t *testing.T, n *fakeNotifier) *Outcome {
	t.Helper()
	select {
	case o := <-n.finished:
		return o
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for match outcome")
		return nil
	}
}

func waitEvaluation(t *testing.T, n *fakeNotifier) {
	t.Helper()
	select {
	case <-n.evalReady:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for evaluation signal")
	}
}

var (
	alice = Player{UserID: "alice", DisplayName: "Alice"}
	bob   = Player{UserID: "bob", DisplayName: "Bob"}
)

func newTestMatch(withReferee bool) (*Match, *fakeHub, *fakeNotifier, *clock.FakeClock) {
	c := clock.NewFakeClock(1_000_000)
	hub := &fakeHub{}
	notifier := newFakeNotifier()
	subject := &database.Subject{ID: 7, Title: "인공지능 판사를 도입해야 한다", Body: "본문"}

	refereeID := ""
	if withReferee {
		refereeID = "ref"
	}
	m := New("room-1", subject, alice, bob, refereeID, hub, notifier, nil, c, DefaultConfig())
	return m, hub, notifier, c
}

// startDebate runs Begin plus the settle delay, landing in phase 1
func startDebate(m *Match, c *clock.FakeClock) {
	m.Begin()
	c.Advance(DefaultConfig().SettleDelay)
}

// speakAll walks all nine turns with the correct speaker each phase
func speakAll(t *testing.T, m *Match, n *fakeNotifier) {
	t.Helper()
	speeches := []struct {
		userID string
		text   string
	}{
		{"alice", "A1"}, {"bob", "D1"}, {"bob", "D2"}, {"alice", "A2"},
		{"bob", "D3"}, {"alice", "A3"}, {"bob", "D4"}, {"alice", "A4"}, {"bob", "D5"},
	}
	for i, s := range speeches {
		require.Equal(t, i+1, m.Phase(), "speech %d sent in wrong phase", i+1)
		m.HandleMessage(s.userID, s.text)
	}
	require.Equal(t, PhaseEvaluation, m.Phase())
	waitEvaluation(t, n)
}

func aiVerdict(agreeScore, disagreeScore int, winner string) *judge.Verdict {
	return &judge.Verdict{
		Agree:    judge.SideVerdict{Score: agreeScore, Good: "논리", Bad: "근거"},
		Disagree: judge.SideVerdict{Score: disagreeScore, Good: "반박", Bad: "전개"},
		Winner:   winner,
	}
}

func TestBeginAnnouncesPlayersBeforeFirstTurn(t *testing.T) {
	m, hub, _, c := newTestMatch(false)
	startDebate(m, c)

	assert.Equal(t, PhaseAgreeOpening, m.Phase())
	assert.Less(t, hub.firstIndex(EventPlayerListUpdated), hub.firstIndex(EventTurnInfo))

	turn, ok := hub.last(EventTurnInfo)
	require.True(t, ok)
	info := turn.Payload.(TurnInfo)
	assert.Equal(t, "alice", info.CurrentPlayerID)
	assert.Equal(t, PhaseAgreeOpening, info.Stage)
	assert.Equal(t, "찬성측 입론", info.StageDescription)
	assert.Contains(t, info.Message, "찬성측 Alice님의 대표발언 차례입니다.")
}

func TestTurnInfoPrecedesFirstTimerUpdate(t *testing.T) {
	m, hub, _, c := newTestMatch(false)
	startDebate(m, c)

	c.Advance(time.Second)
	require.Equal(t, 1, hub.count(EventTimerUpdate))
	assert.Less(t, hub.firstIndex(EventTurnInfo), hub.firstIndex(EventTimerUpdate))

	update, _ := hub.last(EventTimerUpdate)
	payload := update.Payload.(*TimerUpdate)
	assert.Equal(t, "alice", payload.CurrentPlayerID)
	assert.Equal(t, int64(119), payload.RoundTimeRemainingSec)
}

func TestNonCurrentSpeakerIsSilentlyIgnored(t *testing.T) {
	m, hub, _, c := newTestMatch(false)
	startDebate(m, c)
	before := hub.count(EventMessagesUpdated)

	m.HandleMessage("bob", "새치기 발언")
	m.HandleMessage("zoe", "관전자 발언")

	assert.Equal(t, PhaseAgreeOpening, m.Phase())
	assert.Equal(t, before, hub.count(EventMessagesUpdated))
}

func TestFullDebateWithoutReferee(t *testing.T) {
	m, hub, notifier, c := newTestMatch(false)
	startDebate(m, c)
	speakAll(t, m, notifier)

	m.ApplyVerdict(aiVerdict(80, 70, "agree"), "치열한 토론 끝에 찬성측의 승리입니다.")

	outcome := waitOutcome(t, notifier)
	assert.Equal(t, "room-1", outcome.RoomID)
	assert.Equal(t, int64(7), outcome.SubjectID)
	assert.Equal(t, "alice", outcome.WinnerUserID)
	assert.Equal(t, "bob", outcome.LoserUserID)
	assert.False(t, outcome.EndedByPenalty)
	assert.Contains(t, outcome.LogJSON, "A1")
	assert.Contains(t, outcome.LogJSON, "D5")
	assert.Contains(t, outcome.VerdictJSON, `"winnerUserId":"alice"`)

	result, ok := hub.last(EventBattleResult)
	require.True(t, ok)
	payload := result.Payload.(BattleResult)
	assert.Equal(t, 80, payload.Agree.Score)
	assert.Equal(t, "alice", payload.WinnerUserID)

	narration, ok := hub.last(EventAIJudgeMessage)
	require.True(t, ok)
	assert.Contains(t, narration.Payload.(JudgeMessage).Message, "찬성측의 승리")
	assert.True(t, m.Done())
}

func TestRoundOverflowPenaltyThenOvertimeWindow(t *testing.T) {
	m, hub, _, c := newTestMatch(false)
	startDebate(m, c)

	c.Advance(121 * time.Second)
	require.Equal(t, 1, hub.count(EventPenaltyApplied))
	require.Equal(t, 1, hub.count(EventOvertimeGranted))

	penalty, _ := hub.last(EventPenaltyApplied)
	payload := penalty.Payload.(PenaltyApplied)
	assert.Equal(t, "alice", payload.UserID)
	assert.Equal(t, "round", payload.Kind)
	assert.Equal(t, 3, payload.PenaltyPoints)
	assert.Equal(t, 1, payload.PenaltyCount)

	// Another overflow only once the 30s overtime window is spent
	c.Advance(30 * time.Second)
	assert.Equal(t, 1, hub.count(EventPenaltyApplied))
	c.Advance(time.Second)
	assert.Equal(t, 2, hub.count(EventPenaltyApplied))
}

func TestPenaltyForfeitAfterSixOverflows(t *testing.T) {
	m, hub, notifier, c := newTestMatch(false)
	startDebate(m, c)

	// Speaker never talks: overflows at 121s then every 31s
	c.Advance(280 * time.Second)

	outcome := waitOutcome(t, notifier)
	assert.Equal(t, "bob", outcome.WinnerUserID)
	assert.True(t, outcome.EndedByPenalty)
	assert.Equal(t, PhaseTerminal, m.Phase())
	assert.Equal(t, 6, hub.count(EventPenaltyApplied))
	assert.Less(t, hub.lastIndex(EventPenaltyApplied), hub.firstIndex(EventBattleResult))

	result, _ := hub.last(EventBattleResult)
	payload := result.Payload.(BattleResult)
	assert.True(t, payload.EndedByPenalty)
	assert.Equal(t, 100, payload.Disagree.Score)
	assert.Equal(t, 0, payload.Agree.Score)

	// A late judge verdict for the dead match is dropped
	m.ApplyVerdict(aiVerdict(90, 10, "agree"), "늦은 판정")
	assert.Equal(t, 1, hub.count(EventBattleResult))
}

func TestRefereeBlendSwitchesWinner(t *testing.T) {
	m, hub, notifier, c := newTestMatch(true)
	startDebate(m, c)
	speakAll(t, m, notifier)

	m.ApplyVerdict(aiVerdict(60, 80, "disagree"), "반대측 우세")

	gate, ok := hub.last(EventRefereeScoreGate)
	require.True(t, ok, "referee must be asked for scores before the result")
	assert.Equal(t, "ref", gate.TargetUser)
	assert.Equal(t, 0, hub.count(EventBattleResult))

	require.NoError(t, m.SubmitHumanScores("ref", HumanScores{Agree: 90, Disagree: 50}))

	outcome := waitOutcome(t, notifier)
	assert.Equal(t, 78, outcome.Verdict.Agree.Score)
	assert.Equal(t, 62, outcome.Verdict.Disagree.Score)
	assert.Equal(t, "alice", outcome.WinnerUserID, "blend flips the winner to the agree side")
}

func TestBlendTiePreservesAIWinner(t *testing.T) {
	m, _, notifier, c := newTestMatch(true)
	startDebate(m, c)
	speakAll(t, m, notifier)

	m.ApplyVerdict(aiVerdict(50, 50, "disagree"), "박빙")
	require.NoError(t, m.SubmitHumanScores("ref", HumanScores{Agree: 70, Disagree: 70}))

	outcome := waitOutcome(t, notifier)
	assert.Equal(t, outcome.Verdict.Agree.Score, outcome.Verdict.Disagree.Score)
	assert.Equal(t, "bob", outcome.WinnerUserID, "ties keep the AI's call")
}

func TestRefereeLeavingReleasesTheGate(t *testing.T) {
	m, _, notifier, c := newTestMatch(true)
	startDebate(m, c)
	speakAll(t, m, notifier)

	m.ApplyVerdict(aiVerdict(75, 40, "agree"), "찬성 우세")
	m.RefereeLeft()

	outcome := waitOutcome(t, notifier)
	assert.Equal(t, "alice", outcome.WinnerUserID)
	assert.Equal(t, 75, outcome.Verdict.Agree.Score, "AI scores stand when the referee walks out")
}

func TestRefereePointAdjustments(t *testing.T) {
	m, hub, notifier, c := newTestMatch(true)
	startDebate(m, c)

	assert.ErrorIs(t, m.DeductPoints("bob", "alice", 3), ErrNotReferee)
	assert.ErrorIs(t, m.DeductPoints("ref", "zoe", 3), ErrUnknownPlayer)

	require.NoError(t, m.DeductPoints("ref", "alice", 17))
	assert.Equal(t, 0, hub.count(EventBattleResult), "forfeit must not fire below the threshold")

	require.NoError(t, m.AddPoints("ref", "alice", 20))
	penalty, _ := hub.last(EventPenaltyApplied)
	assert.Equal(t, 0, penalty.Payload.(PenaltyApplied).PenaltyPoints, "pardons clamp at zero")

	// Reaching the maximum forfeits on that exact transition
	require.NoError(t, m.DeductPoints("ref", "alice", 18))
	outcome := waitOutcome(t, notifier)
	assert.Equal(t, "bob", outcome.WinnerUserID)
	assert.True(t, outcome.EndedByPenalty)
}

func TestRefereeTimeAdjustments(t *testing.T) {
	m, hub, _, c := newTestMatch(true)
	startDebate(m, c)

	require.NoError(t, m.ReduceTime("ref", "bob", 45))
	reduced, _ := hub.last(EventTimeReduced)
	assert.Equal(t, int64(45_000), reduced.Payload.(TimeAdjusted).TotalTimeUsedMs)

	require.NoError(t, m.ExtendTime("ref", "bob", 60))
	extended, _ := hub.last(EventTimeExtended)
	payload := extended.Payload.(TimeAdjusted)
	assert.Equal(t, int64(0), payload.TotalTimeUsedMs, "extension clamps usage at zero")
	assert.Equal(t, "ref", payload.RefereeID)
}

func TestSubmitScoresValidation(t *testing.T) {
	m, _, notifier, c := newTestMatch(true)
	startDebate(m, c)
	speakAll(t, m, notifier)

	assert.ErrorIs(t, m.SubmitHumanScores("alice", HumanScores{Agree: 50, Disagree: 50}), ErrNotReferee)
	assert.ErrorIs(t, m.SubmitHumanScores("ref", HumanScores{Agree: 101, Disagree: 50}), ErrScoreRange)
	assert.ErrorIs(t, m.SubmitHumanScores("ref", HumanScores{Agree: 50, Disagree: -1}), ErrScoreRange)
}

func TestSnapshotForReconnectingPlayer(t *testing.T) {
	m, _, _, c := newTestMatch(false)
	startDebate(m, c)

	m.HandleMessage("alice", "A1")
	m.HandleMessage("bob", "D1")
	m.HandleMessage("bob", "D2")
	require.Equal(t, 4, m.Phase())
	c.Advance(5 * time.Second)

	snap := m.Snapshot("alice")
	assert.True(t, snap.Active)
	assert.Equal(t, 4, snap.Stage)
	assert.Equal(t, "찬성측 답변 및 질의", snap.StageDescription)
	assert.Equal(t, "alice", snap.CurrentPlayerID)
	assert.True(t, snap.IsMyTurn)
	require.NotNil(t, snap.Timer)
	assert.Equal(t, "alice", snap.Timer.CurrentPlayerID)
	assert.Len(t, snap.Players, 2)

	// Speeches plus the four turn announcements so far
	texts := make([]string, 0, len(snap.Messages))
	for _, msg := range snap.Messages {
		texts = append(texts, msg.Text)
	}
	assert.Contains(t, strings.Join(texts, "|"), "A1")
	assert.Contains(t, strings.Join(texts, "|"), "D2")

	spectator := m.Snapshot("zoe")
	assert.False(t, spectator.IsMyTurn)
	assert.Equal(t, "alice", spectator.CurrentPlayerID)
}

func TestEvaluationInputCarriesFullTranscript(t *testing.T) {
	m, _, notifier, c := newTestMatch(false)
	startDebate(m, c)
	speakAll(t, m, notifier)

	input := m.EvaluationInput()
	assert.Equal(t, "인공지능 판사를 도입해야 한다", input.SubjectTitle)
	assert.Equal(t, "Alice", input.AgreeName)
	assert.Equal(t, "Bob", input.DisagreeName)
	require.Len(t, input.Transcript, 9)
	assert.Equal(t, "agree", input.Transcript[0].Side)
	assert.Equal(t, "A1", input.Transcript[0].Text)
	assert.Equal(t, "disagree", input.Transcript[8].Side)
	assert.Equal(t, "D5", input.Transcript[8].Text)
}

func TestAbortEndsWithoutResult(t *testing.T) {
	m, hub, notifier, c := newTestMatch(false)
	startDebate(m, c)
	speakAll(t, m, notifier)

	m.Abort("AI 판정 중 오류가 발생했습니다.")

	assert.Equal(t, 1, hub.count(EventBattleError))
	assert.Equal(t, 0, hub.count(EventBattleResult))
	assert.True(t, m.Done())

	select {
	case <-notifier.finished:
		t.Fatal("aborted matches must not produce an outcome")
	case <-time.After(50 * time.Millisecond):
	}

	// Everything after the abort is inert
	m.HandleMessage("alice", "추가 발언")
	m.ApplyVerdict(aiVerdict(80, 70, "agree"), "늦은 판정")
	assert.Equal(t, 0, hub.count(EventBattleResult))
}
