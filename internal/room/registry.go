package room

import (
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/toronlabs/toron_backend/internal/clock"
	"github.com/toronlabs/toron_backend/internal/database"
	"github.com/toronlabs/toron_backend/internal/logging"
	"github.com/toronlabs/toron_backend/internal/types"
)

// Registry errors. Handlers map these onto callback error payloads.
var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrBattleStarted    = errors.New("battle already started")
	ErrBattleNotStarted = errors.New("battle has not started")
	ErrRoomCompleted    = errors.New("room already completed")
	ErrNotParticipant   = errors.New("user is not in the room")
	ErrNotPlayer        = errors.New("only players can do this")
	ErrRefereeAdmin     = errors.New("referee role requires admin")
	ErrRefereeTaken     = errors.New("room already has a referee")
	ErrPositionTaken    = errors.New("position already taken")
)

// Registry is the process-wide set of rooms. Every operation is a short
// critical section; the registry never calls the store or the judge
// while holding its lock.
type Registry struct {
	mu    sync.RWMutex
	clock clock.Clock
	rooms map[string]*Room
}

// NewRegistry creates an empty room registry
func NewRegistry(c clock.Clock) *Registry {
	return &Registry{
		clock: c,
		rooms: make(map[string]*Room),
	}
}

// NewParticipant describes a user entering a room
type NewParticipant struct {
	ConnectionID string
	UserID       string
	DisplayName  string
	IsAdmin      bool
	Rating       float64
	Wins         int
	Losses       int
}

func (np NewParticipant) seat(role types.Role) *Participant {
	return &Participant{
		ConnectionID: np.ConnectionID,
		UserID:       np.UserID,
		DisplayName:  np.DisplayName,
		Role:         role,
		Position:     types.PositionNone,
		Rating:       np.Rating,
		Wins:         np.Wins,
		Losses:       np.Losses,
	}
}

// Create builds a room around a subject. Admins enter as the referee,
// everyone else as the first player.
func (g *Registry) Create(subject *database.Subject, np NewParticipant) *View {
	g.mu.Lock()
	defer g.mu.Unlock()

	role := types.RolePlayer
	if np.IsAdmin {
		role = types.RoleReferee
	}

	room := &Room{
		ID:           uuid.New().String(),
		Subject:      subject,
		Participants: []*Participant{np.seat(role)},
		HasReferee:   role == types.RoleReferee,
		CreatedAtMs:  g.clock.NowMs(),
	}
	g.rooms[room.ID] = room

	logging.LogRoomEvent("room_created", room.ID, map[string]interface{}{
		"user_id": np.UserID,
		"subject": subject.Title,
		"role":    role.String(),
	})

	return room.view()
}

// Join adds a user to a room. The first two non-referee entrants become
// players, everyone after that spectates. A user already seated only
// has their connection refreshed.
func (g *Registry) Join(roomID string, np NewParticipant) (*View, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	room, ok := g.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}

	if existing := room.participant(np.UserID); existing != nil {
		existing.ConnectionID = np.ConnectionID
		return room.view(), nil
	}
	if room.BattleStarted {
		return nil, ErrBattleStarted
	}
	if room.IsCompleted {
		return nil, ErrRoomCompleted
	}

	role := types.RoleSpectator
	if len(room.players()) < 2 {
		role = types.RolePlayer
	}
	room.Participants = append(room.Participants, np.seat(role))

	logging.LogRoomEvent("room_joined", roomID, map[string]interface{}{
		"user_id": np.UserID,
		"role":    role.String(),
	})

	return room.view(), nil
}

// Leave removes a user's seat. The last one out deletes the room;
// otherwise everyone's ready flag drops and the referee flag is
// recomputed.
func (g *Registry) Leave(roomID, userID string) (deleted bool, view *View, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	room, ok := g.rooms[roomID]
	if !ok {
		return false, nil, ErrRoomNotFound
	}

	idx := -1
	for i, p := range room.Participants {
		if p.UserID == userID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, nil, ErrNotParticipant
	}
	room.Participants = append(room.Participants[:idx], room.Participants[idx+1:]...)

	if len(room.Participants) == 0 {
		delete(g.rooms, roomID)
		logging.LogRoomEvent("room_deleted", roomID, nil)
		return true, nil, nil
	}

	for _, p := range room.Participants {
		p.IsReady = false
	}
	room.recomputeReferee()

	logging.LogRoomEvent("room_left", roomID, map[string]interface{}{
		"user_id": userID,
	})
	return false, room.view(), nil
}

// SelectRole changes a participant's role. Referee needs the admin flag
// and an empty referee seat; any role change resets position and
// readiness.
func (g *Registry) SelectRole(roomID, userID string, role types.Role, isAdmin bool) (*View, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	room, ok := g.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	if room.BattleStarted {
		return nil, ErrBattleStarted
	}
	p := room.participant(userID)
	if p == nil {
		return nil, ErrNotParticipant
	}

	if role == types.RoleReferee {
		if !isAdmin {
			return nil, ErrRefereeAdmin
		}
		for _, other := range room.Participants {
			if other.UserID != userID && other.Role == types.RoleReferee {
				return nil, ErrRefereeTaken
			}
		}
	}

	p.Role = role
	p.Position = types.PositionNone
	p.IsReady = false
	room.recomputeReferee()

	return room.view(), nil
}

// SelectPosition picks a side for a player. Re-picking the held side
// clears it; a side held by the other player is rejected.
func (g *Registry) SelectPosition(roomID, userID string, pos types.Position) (*View, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	room, ok := g.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	if room.BattleStarted {
		return nil, ErrBattleStarted
	}
	p := room.participant(userID)
	if p == nil {
		return nil, ErrNotParticipant
	}
	if p.Role != types.RolePlayer {
		return nil, ErrNotPlayer
	}

	if pos == types.PositionNone || p.Position == pos {
		p.Position = types.PositionNone
		return room.view(), nil
	}
	for _, other := range room.players() {
		if other.UserID != userID && other.Position == pos {
			return nil, ErrPositionTaken
		}
	}
	p.Position = pos

	return room.view(), nil
}

// ToggleReady flips a participant's ready flag. When at least two
// players are ready the battle is marked started; spectators and the
// referee never block the start.
func (g *Registry) ToggleReady(roomID, userID string) (started bool, view *View, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	room, ok := g.rooms[roomID]
	if !ok {
		return false, nil, ErrRoomNotFound
	}
	if room.BattleStarted {
		return false, nil, ErrBattleStarted
	}
	p := room.participant(userID)
	if p == nil {
		return false, nil, ErrNotParticipant
	}

	p.IsReady = !p.IsReady

	readyPlayers := 0
	for _, player := range room.players() {
		if player.IsReady {
			readyPlayers++
		}
	}
	if readyPlayers >= 2 {
		room.BattleStarted = true
		logging.LogRoomEvent("battle_started", roomID, map[string]interface{}{
			"subject": room.Subject.Title,
		})
	}

	return room.BattleStarted, room.view(), nil
}

// RebindConnection points a participant's seat at a new connection.
// This is the reconnect path: the seat survives, only its transport
// identity changes.
func (g *Registry) RebindConnection(roomID, userID, connectionID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	room, ok := g.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	p := room.participant(userID)
	if p == nil {
		return ErrNotParticipant
	}
	p.ConnectionID = connectionID
	return nil
}

// SetViewReady records that a player's discussion view finished
// loading. It reports whether both players are now ready, which is the
// signal to start the match. Only a started battle accepts the signal;
// the ready toggle is what commits the room to a battle.
func (g *Registry) SetViewReady(roomID, userID string) (bothReady bool, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	room, ok := g.rooms[roomID]
	if !ok {
		return false, ErrRoomNotFound
	}
	if !room.BattleStarted {
		return false, ErrBattleNotStarted
	}
	p := room.participant(userID)
	if p == nil {
		return false, ErrNotParticipant
	}
	p.ViewReady = true

	players := room.players()
	if len(players) < 2 {
		return false, nil
	}
	for _, player := range players {
		if !player.ViewReady {
			return false, nil
		}
	}
	return true, nil
}

// ResolvePositions fills in any missing side before the first phase.
// With one side chosen the other player takes the complement; with
// neither chosen the first-seated player argues agree. It returns the
// two players in (agree, disagree) order.
func (g *Registry) ResolvePositions(roomID string) (agree, disagree Participant, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	room, ok := g.rooms[roomID]
	if !ok {
		return Participant{}, Participant{}, ErrRoomNotFound
	}
	players := room.players()
	if len(players) < 2 {
		return Participant{}, Participant{}, ErrNotPlayer
	}

	first, second := players[0], players[1]
	switch {
	case first.Position != types.PositionNone && second.Position == types.PositionNone:
		second.Position = first.Position.Opposite()
	case first.Position == types.PositionNone && second.Position != types.PositionNone:
		first.Position = second.Position.Opposite()
	case first.Position == types.PositionNone && second.Position == types.PositionNone:
		first.Position = types.PositionAgree
		second.Position = types.PositionDisagree
	}

	if first.Position == types.PositionAgree {
		return *first, *second, nil
	}
	return *second, *first, nil
}

// Referee returns the referee seat of a room, if any
func (g *Registry) Referee(roomID string) (Participant, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	room, ok := g.rooms[roomID]
	if !ok {
		return Participant{}, false
	}
	for _, p := range room.Participants {
		if p.Role == types.RoleReferee {
			return *p, true
		}
	}
	return Participant{}, false
}

// Get returns a room view
func (g *Registry) Get(roomID string) (*View, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	room, ok := g.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return room.view(), nil
}

// List returns all open rooms, newest first
func (g *Registry) List() []*View {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ordered := make([]*Room, 0, len(g.rooms))
	for _, room := range g.rooms {
		ordered = append(ordered, room)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].CreatedAtMs > ordered[j].CreatedAtMs
	})

	views := make([]*View, 0, len(ordered))
	for _, room := range ordered {
		views = append(views, room.view())
	}
	return views
}

// FindByUser returns the room a user is seated in, or nil
func (g *Registry) FindByUser(userID string) *View {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, room := range g.rooms {
		if room.participant(userID) != nil {
			return room.view()
		}
	}
	return nil
}

// MarkCompleted flags a room as finished so nobody can join it
func (g *Registry) MarkCompleted(roomID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if room, ok := g.rooms[roomID]; ok {
		room.IsCompleted = true
	}
}

// Remove deletes a room outright. Used by match teardown.
func (g *Registry) Remove(roomID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.rooms[roomID]; ok {
		delete(g.rooms, roomID)
		logging.LogRoomEvent("room_deleted", roomID, nil)
	}
}

// Count returns the number of open rooms
func (g *Registry) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms)
}
