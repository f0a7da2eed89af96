package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/toronlabs/toron_backend/internal/clock"
	"github.com/toronlabs/toron_backend/internal/database"
	"github.com/toronlabs/toron_backend/internal/judge"
	"github.com/toronlabs/toron_backend/internal/logging"
	"github.com/toronlabs/toron_backend/internal/match"
	"github.com/toronlabs/toron_backend/internal/metrics"
	"github.com/toronlabs/toron_backend/internal/rating"
	"github.com/toronlabs/toron_backend/internal/room"
	"github.com/toronlabs/toron_backend/internal/types"
)

// judgeTimeout bounds a single evaluation call
const judgeTimeout = 2 * time.Minute

// cleanupInterval is how often the sweeper looks for abandoned rooms
const cleanupInterval = 10 * time.Minute

// Evaluator is the slice of the judge the manager needs. The real
// judge.Judge satisfies it; tests swap in a canned one.
type Evaluator interface {
	Evaluate(ctx context.Context, input judge.Input) (*judge.Verdict, string, error)
}

// MatchManager owns the live matches and everything around their
// lifecycle: room negotiation, match start, judge completion,
// persistence and teardown. It implements match.Broadcaster and
// match.Notifier.
type MatchManager struct {
	db        database.DatabaseInterface
	registry  *room.Registry
	hub       *Hub
	sessions  *Sessions
	evaluator Evaluator
	metrics   *metrics.Metrics
	clock     clock.Clock
	matchCfg  match.Config

	mu      sync.Mutex
	matches map[string]*match.Match

	stopCleanup chan struct{}
	cleanupOnce sync.Once
}

// NewMatchManager wires the manager. The match config is usually
// match.DefaultConfig(); tests shrink the delays.
func NewMatchManager(db database.DatabaseInterface, registry *room.Registry, hub *Hub,
	sessions *Sessions, evaluator Evaluator, met *metrics.Metrics, c clock.Clock,
	matchCfg match.Config) *MatchManager {

	return &MatchManager{
		db:          db,
		registry:    registry,
		hub:         hub,
		sessions:    sessions,
		evaluator:   evaluator,
		metrics:     met,
		clock:       c,
		matchCfg:    matchCfg,
		matches:     make(map[string]*match.Match),
		stopCleanup: make(chan struct{}),
	}
}

// BroadcastToRoom implements match.Broadcaster
func (mm *MatchManager) BroadcastToRoom(roomID, event string, payload interface{}) {
	mm.hub.Broadcast(roomID, event, payload)
}

// SendToUser implements match.Broadcaster: the event goes only to the
// connection the user is currently bound to
func (mm *MatchManager) SendToUser(roomID, userID, event string, payload interface{}) {
	if connID, ok := mm.sessions.ConnFor(userID); ok {
		mm.hub.Send(connID, event, payload)
	}
}

// Match returns the live match for a room, or nil
func (mm *MatchManager) Match(roomID string) *match.Match {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	return mm.matches[roomID]
}

func (mm *MatchManager) dropMatch(roomID string) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	delete(mm.matches, roomID)
}

// Subjects returns the subject list, falling back to the built-in five
// when the store cannot be read
func (mm *MatchManager) Subjects() []*database.Subject {
	subjects, err := mm.db.ListSubjects()
	if err != nil || len(subjects) == 0 {
		logging.Warn("Subject list unavailable, serving built-ins", map[string]interface{}{
			"error": fmt.Sprintf("%v", err),
		})
		return database.BuiltinSubjects()
	}
	return subjects
}

// Rooms returns the open rooms index
func (mm *MatchManager) Rooms() []*room.View {
	return mm.registry.List()
}

// MyRoom returns the room a user is seated in, or nil
func (mm *MatchManager) MyRoom(userID string) *room.View {
	return mm.registry.FindByUser(userID)
}

// Profile fetches (or auto-creates) a user's profile
func (mm *MatchManager) Profile(userID string) (*database.Profile, error) {
	return mm.db.GetProfile(userID)
}

// CreateRoom opens a room around a subject with the caller as its first
// occupant
func (mm *MatchManager) CreateRoom(connID, userID string, subjectID int64) (*room.View, error) {
	profile, err := mm.db.GetProfile(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %v", err)
	}
	subject, err := mm.lookupSubject(subjectID)
	if err != nil {
		return nil, err
	}

	view := mm.registry.Create(subject, room.NewParticipant{
		ConnectionID: connID,
		UserID:       userID,
		DisplayName:  profile.DisplayName,
		IsAdmin:      profile.IsAdmin,
		Rating:       profile.Rating,
		Wins:         profile.Wins,
		Losses:       profile.Loses,
	})

	mm.hub.JoinRoomChannel(view.RoomID, connID)
	mm.publishRoomsIndex()
	return view, nil
}

// lookupSubject reads a subject, trying the built-in list when the
// store is unavailable so room creation survives a flaky disk
func (mm *MatchManager) lookupSubject(subjectID int64) (*database.Subject, error) {
	subject, err := mm.db.GetSubject(subjectID)
	if err == nil {
		return subject, nil
	}
	if errors.Is(err, database.ErrNotFound) {
		return nil, err
	}
	for _, builtin := range database.BuiltinSubjects() {
		if builtin.ID == subjectID {
			return builtin, nil
		}
	}
	return nil, err
}

// JoinRoom seats a user in a room
func (mm *MatchManager) JoinRoom(connID, userID, roomID string) (*room.View, error) {
	profile, err := mm.db.GetProfile(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %v", err)
	}

	view, err := mm.registry.Join(roomID, room.NewParticipant{
		ConnectionID: connID,
		UserID:       userID,
		DisplayName:  profile.DisplayName,
		IsAdmin:      profile.IsAdmin,
		Rating:       profile.Rating,
		Wins:         profile.Wins,
		Losses:       profile.Loses,
	})
	if err != nil {
		return nil, err
	}

	mm.hub.JoinRoomChannel(roomID, connID)
	mm.hub.Broadcast(roomID, "room_update", view)
	mm.publishRoomsIndex()
	return view, nil
}

// LeaveRoom removes a user's seat. A referee leaving a gated match
// releases the referee gate; the last participant out tears the room
// down.
func (mm *MatchManager) LeaveRoom(connID, userID, roomID string) error {
	if m := mm.Match(roomID); m != nil {
		if referee, ok := mm.registry.Referee(roomID); ok && referee.UserID == userID {
			m.RefereeLeft()
		}
	}

	deleted, view, err := mm.registry.Leave(roomID, userID)
	if err != nil {
		return err
	}
	mm.hub.LeaveRoomChannel(roomID, connID)

	if deleted {
		if m := mm.Match(roomID); m != nil {
			m.Abort("모든 참가자가 퇴장하여 경기가 종료되었습니다.")
			mm.dropMatch(roomID)
			mm.metrics.MatchStopped()
		}
		mm.hub.CloseRoomChannel(roomID)
	} else {
		mm.hub.Broadcast(roomID, "room_update", view)
	}
	mm.publishRoomsIndex()
	return nil
}

// SelectRole changes a participant's role
func (mm *MatchManager) SelectRole(userID, roomID, roleName string) (*room.View, error) {
	role, err := types.ParseRole(roleName)
	if err != nil {
		return nil, err
	}
	profile, err := mm.db.GetProfile(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %v", err)
	}

	view, err := mm.registry.SelectRole(roomID, userID, role, profile.IsAdmin)
	if err != nil {
		return nil, err
	}
	mm.hub.Broadcast(roomID, "role_selected", map[string]interface{}{
		"userId": userID,
		"role":   role.String(),
	})
	mm.hub.Broadcast(roomID, "room_update", view)
	return view, nil
}

// SelectPosition picks (or clears) a player's side
func (mm *MatchManager) SelectPosition(userID, roomID, positionName string) (*room.View, error) {
	position, err := types.ParsePosition(positionName)
	if err != nil {
		return nil, err
	}

	view, err := mm.registry.SelectPosition(roomID, userID, position)
	if err != nil {
		return nil, err
	}
	mm.hub.Broadcast(roomID, "position_selected", map[string]interface{}{
		"userId":   userID,
		"position": position.String(),
	})
	mm.hub.Broadcast(roomID, "room_update", view)
	return view, nil
}

// ToggleReady flips a participant's ready flag; two ready players start
// the battle
func (mm *MatchManager) ToggleReady(userID, roomID string) (*room.View, error) {
	started, view, err := mm.registry.ToggleReady(roomID, userID)
	if err != nil {
		return nil, err
	}
	mm.hub.Broadcast(roomID, "room_update", view)
	if started {
		mm.hub.Broadcast(roomID, "battle_start", map[string]interface{}{
			"roomId":  roomID,
			"subject": view.Subject,
		})
		mm.publishRoomsIndex()
	}
	return view, nil
}

// JoinDiscussionRoom is the reconnect path into a started battle: the
// seat's connection is rebound and the new connection re-subscribed to
// the room channel
func (mm *MatchManager) JoinDiscussionRoom(connID, userID, roomID string) (*room.View, error) {
	if err := mm.registry.RebindConnection(roomID, userID, connID); err != nil {
		return nil, err
	}
	mm.hub.JoinRoomChannel(roomID, connID)
	mm.sessions.Bind(connID, userID)
	return mm.registry.Get(roomID)
}

// DiscussionViewReady records that a player's battle view finished
// loading; when both players are in, the match starts
func (mm *MatchManager) DiscussionViewReady(userID, roomID string) error {
	bothReady, err := mm.registry.SetViewReady(roomID, userID)
	if err != nil {
		return err
	}
	if bothReady {
		mm.startMatch(roomID)
	}
	return nil
}

// startMatch builds and begins the match for a room. Idempotent: the
// second view-ready signal for a room that already has a match is a
// no-op.
func (mm *MatchManager) startMatch(roomID string) {
	mm.mu.Lock()
	if _, exists := mm.matches[roomID]; exists {
		mm.mu.Unlock()
		return
	}
	mm.mu.Unlock()

	agree, disagree, err := mm.registry.ResolvePositions(roomID)
	if err != nil {
		logging.Error("Failed to resolve positions", map[string]interface{}{
			"room_id": roomID,
			"error":   err.Error(),
		})
		return
	}
	view, err := mm.registry.Get(roomID)
	if err != nil {
		return
	}

	refereeID := ""
	if referee, ok := mm.registry.Referee(roomID); ok {
		refereeID = referee.UserID
	}

	m := match.New(roomID, view.Subject,
		match.Player{UserID: agree.UserID, DisplayName: agree.DisplayName},
		match.Player{UserID: disagree.UserID, DisplayName: disagree.DisplayName},
		refereeID, mm, mm, mm.metrics, mm.clock, mm.matchCfg)

	mm.mu.Lock()
	if _, exists := mm.matches[roomID]; exists {
		mm.mu.Unlock()
		return
	}
	mm.matches[roomID] = m
	mm.mu.Unlock()

	mm.metrics.MatchStarted()
	m.Begin()
}

// SendMessage forwards a speech to the room's match
func (mm *MatchManager) SendMessage(userID, roomID, text string) error {
	m := mm.Match(roomID)
	if m == nil {
		return room.ErrRoomNotFound
	}
	m.HandleMessage(userID, text)
	return nil
}

// TimeOverflow forwards a client-side overflow claim
func (mm *MatchManager) TimeOverflow(userID, roomID, kind string) error {
	m := mm.Match(roomID)
	if m == nil {
		return room.ErrRoomNotFound
	}
	m.ReportOverflow(userID, kind)
	return nil
}

// RefereeAddPoints pardons penalty points
func (mm *MatchManager) RefereeAddPoints(refereeID, roomID, targetID string, points int) error {
	m := mm.Match(roomID)
	if m == nil {
		return room.ErrRoomNotFound
	}
	return m.AddPoints(refereeID, targetID, points)
}

// RefereeDeductPoints raises penalty points
func (mm *MatchManager) RefereeDeductPoints(refereeID, roomID, targetID string, points int) error {
	m := mm.Match(roomID)
	if m == nil {
		return room.ErrRoomNotFound
	}
	return m.DeductPoints(refereeID, targetID, points)
}

// RefereeExtendTime hands total budget back to a player
func (mm *MatchManager) RefereeExtendTime(refereeID, roomID, targetID string, seconds int) error {
	m := mm.Match(roomID)
	if m == nil {
		return room.ErrRoomNotFound
	}
	return m.ExtendTime(refereeID, targetID, seconds)
}

// RefereeReduceTime takes total budget away from a player
func (mm *MatchManager) RefereeReduceTime(refereeID, roomID, targetID string, seconds int) error {
	m := mm.Match(roomID)
	if m == nil {
		return room.ErrRoomNotFound
	}
	return m.ReduceTime(refereeID, targetID, seconds)
}

// RefereeSubmitScores records the referee's human scores
func (mm *MatchManager) RefereeSubmitScores(refereeID, roomID string, scores match.HumanScores) error {
	m := mm.Match(roomID)
	if m == nil {
		return room.ErrRoomNotFound
	}
	return m.SubmitHumanScores(refereeID, scores)
}

// Messages returns a room's current message log
func (mm *MatchManager) Messages(roomID string) []match.Message {
	m := mm.Match(roomID)
	if m == nil {
		return []match.Message{}
	}
	return m.Messages()
}

// RoomState returns the consolidated resync snapshot. A room without a
// live match reads as terminal with an empty log.
func (mm *MatchManager) RoomState(userID, roomID string) *match.RoomSnapshot {
	m := mm.Match(roomID)
	if m == nil {
		return &match.RoomSnapshot{
			RoomID:   roomID,
			Active:   false,
			Stage:    match.PhaseTerminal,
			Messages: []match.Message{},
		}
	}
	return m.Snapshot(userID)
}

// MatchEvaluationReady implements match.Notifier: it runs the judge off
// the match lock and lands the verdict (or the error) back on the match
func (mm *MatchManager) MatchEvaluationReady(roomID string) {
	defer mm.recoverPanic("evaluation", roomID)

	m := mm.Match(roomID)
	if m == nil {
		return
	}

	input := m.EvaluationInput()
	logging.LogJudgeEvent("evaluation_requested", roomID, map[string]interface{}{
		"turns": len(input.Transcript),
	})

	ctx, cancel := context.WithTimeout(context.Background(), judgeTimeout)
	defer cancel()

	started := time.Now()
	verdict, narration, err := mm.evaluator.Evaluate(ctx, input)
	if err != nil {
		mm.metrics.RecordJudgeRequest("error", time.Since(started))
		logging.LogJudgeEvent("evaluation_failed", roomID, map[string]interface{}{
			"error": err.Error(),
		})

		m.Abort("AI 판정 중 오류가 발생했습니다. 경기 결과는 기록되지 않습니다.")
		mm.dropMatch(roomID)
		mm.registry.MarkCompleted(roomID)
		mm.metrics.RecordMatchFinished("error")
		mm.metrics.MatchStopped()
		return
	}
	mm.metrics.RecordJudgeRequest("ok", time.Since(started))

	m.ApplyVerdict(verdict, narration)
}

// MatchFinished implements match.Notifier: the outcome is persisted,
// ratings updated and the room torn down. The terminal broadcast has
// already gone out by the time this runs.
func (mm *MatchManager) MatchFinished(roomID string, outcome *match.Outcome) {
	defer mm.recoverPanic("finish", roomID)

	battle := &database.Battle{
		Player1:     outcome.AgreeUserID,
		Player2:     outcome.DisagreeUserID,
		SubjectID:   outcome.SubjectID,
		WinnerID:    outcome.WinnerUserID,
		LogJSON:     outcome.LogJSON,
		VerdictJSON: outcome.VerdictJSON,
	}
	if _, err := mm.db.InsertBattle(battle); err != nil {
		logging.Error("Failed to persist battle", map[string]interface{}{
			"room_id": roomID,
			"error":   err.Error(),
		})
	}

	mm.applyRatings(roomID, outcome)

	result := "verdict"
	if outcome.EndedByPenalty {
		result = "forfeit"
	}
	mm.metrics.RecordMatchFinished(result)
	mm.metrics.MatchStopped()

	mm.dropMatch(roomID)
	mm.registry.Remove(roomID)
	mm.hub.CloseRoomChannel(roomID)
	mm.publishRoomsIndex()
}

// applyRatings runs one Elo update for the pair. A profile read failure
// skips the update rather than guessing at ratings.
func (mm *MatchManager) applyRatings(roomID string, outcome *match.Outcome) {
	winner, err := mm.db.GetProfile(outcome.WinnerUserID)
	if err != nil {
		logging.Error("Failed to load winner profile", map[string]interface{}{
			"room_id": roomID, "user_id": outcome.WinnerUserID, "error": err.Error(),
		})
		return
	}
	loser, err := mm.db.GetProfile(outcome.LoserUserID)
	if err != nil {
		logging.Error("Failed to load loser profile", map[string]interface{}{
			"room_id": roomID, "user_id": outcome.LoserUserID, "error": err.Error(),
		})
		return
	}

	newWinner, newLoser := rating.Update(winner.Rating, loser.Rating)
	if err := mm.db.RecordResult(outcome.WinnerUserID, newWinner, outcome.LoserUserID, newLoser); err != nil {
		logging.Error("Failed to record result", map[string]interface{}{
			"room_id": roomID, "error": err.Error(),
		})
		return
	}

	logging.LogMatchEvent("ratings_updated", roomID, map[string]interface{}{
		"winner":        outcome.WinnerUserID,
		"winner_rating": newWinner,
		"loser":         outcome.LoserUserID,
		"loser_rating":  newLoser,
	})
}

// publishRoomsIndex pushes the open-rooms list to every connection and
// refreshes the gauge
func (mm *MatchManager) publishRoomsIndex() {
	mm.hub.BroadcastAll("rooms_update", map[string]interface{}{
		"rooms": mm.registry.List(),
	})
	mm.metrics.SetRoomsOpen(mm.registry.Count())
}

// StartCleanup launches the periodic sweep for completed rooms nobody
// is left in.
func (mm *MatchManager) StartCleanup() {
	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				mm.sweep()
			case <-mm.stopCleanup:
				return
			}
		}
	}()
}

// StopCleanup stops the periodic sweep
func (mm *MatchManager) StopCleanup() {
	mm.cleanupOnce.Do(func() {
		close(mm.stopCleanup)
	})
}

func (mm *MatchManager) sweep() {
	for _, view := range mm.registry.List() {
		if view.IsCompleted && len(view.Participants) == 0 {
			mm.registry.Remove(view.RoomID)
			mm.hub.CloseRoomChannel(view.RoomID)
			mm.dropMatch(view.RoomID)
		}
	}
	mm.metrics.SetRoomsOpen(mm.registry.Count())
}

func (mm *MatchManager) recoverPanic(stage, roomID string) {
	if r := recover(); r != nil {
		logging.Error("Recovered panic in match manager", map[string]interface{}{
			"stage":   stage,
			"room_id": roomID,
			"panic":   fmt.Sprintf("%v", r),
		})
	}
}
