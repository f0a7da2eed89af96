package room

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toronlabs/toron_backend/internal/clock"
	"github.com/toronlabs/toron_backend/internal/database"
	"github.com/toronlabs/toron_backend/internal/types"
)

func testSubject() *database.Subject {
	return &database.Subject{ID: 1, Title: "인공지능 판사를 도입해야 한다", Body: "본문"}
}

func player(conn, user string) NewParticipant {
	return NewParticipant{
		ConnectionID: conn,
		UserID:       user,
		DisplayName:  user,
		Rating:       1500,
	}
}

func TestCreateRoomRoles(t *testing.T) {
	g := NewRegistry(clock.NewFakeClock(0))

	tests := []struct {
		name     string
		isAdmin  bool
		wantRole types.Role
	}{
		{"regular user becomes player", false, types.RolePlayer},
		{"admin becomes referee", true, types.RoleReferee},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			np := player("c1", "creator-"+tt.name)
			np.IsAdmin = tt.isAdmin

			view := g.Create(testSubject(), np)
			require.Len(t, view.Participants, 1)
			assert.Equal(t, tt.wantRole, view.Participants[0].Role)
			assert.Equal(t, tt.isAdmin, view.HasReferee)
			assert.False(t, view.BattleStarted)
		})
	}
}

func TestJoinAssignsPlayerThenSpectator(t *testing.T) {
	g := NewRegistry(clock.NewFakeClock(0))
	view := g.Create(testSubject(), player("c1", "alice"))

	view, err := g.Join(view.RoomID, player("c2", "bob"))
	require.NoError(t, err)
	view, err = g.Join(view.RoomID, player("c3", "carol"))
	require.NoError(t, err)

	roles := map[string]types.Role{}
	for _, p := range view.Participants {
		roles[p.UserID] = p.Role
	}
	assert.Equal(t, types.RolePlayer, roles["alice"])
	assert.Equal(t, types.RolePlayer, roles["bob"])
	assert.Equal(t, types.RoleSpectator, roles["carol"])
	assert.Equal(t, 2, view.PlayerCount)
}

func TestJoinTwiceOnlyRefreshesConnection(t *testing.T) {
	g := NewRegistry(clock.NewFakeClock(0))
	view := g.Create(testSubject(), player("c1", "alice"))

	view, err := g.Join(view.RoomID, player("c2", "bob"))
	require.NoError(t, err)

	// Same user, fresh connection
	view, err = g.Join(view.RoomID, player("c9", "bob"))
	require.NoError(t, err)
	assert.Len(t, view.Participants, 2)

	require.NoError(t, g.RebindConnection(view.RoomID, "bob", "c10"))
	again, err := g.Get(view.RoomID)
	require.NoError(t, err)
	assert.Len(t, again.Participants, 2)
}

func TestJoinRejectedAfterBattleStart(t *testing.T) {
	g := NewRegistry(clock.NewFakeClock(0))
	view := g.Create(testSubject(), player("c1", "alice"))
	_, err := g.Join(view.RoomID, player("c2", "bob"))
	require.NoError(t, err)

	_, _, err = g.ToggleReady(view.RoomID, "alice")
	require.NoError(t, err)
	started, _, err := g.ToggleReady(view.RoomID, "bob")
	require.NoError(t, err)
	require.True(t, started)

	_, err = g.Join(view.RoomID, player("c3", "carol"))
	assert.ErrorIs(t, err, ErrBattleStarted)
}

func TestSelectRoleRefereeRules(t *testing.T) {
	g := NewRegistry(clock.NewFakeClock(0))
	view := g.Create(testSubject(), player("c1", "alice"))
	_, err := g.Join(view.RoomID, player("c2", "bob"))
	require.NoError(t, err)

	_, err = g.SelectRole(view.RoomID, "bob", types.RoleReferee, false)
	assert.ErrorIs(t, err, ErrRefereeAdmin)

	updated, err := g.SelectRole(view.RoomID, "bob", types.RoleReferee, true)
	require.NoError(t, err)
	assert.True(t, updated.HasReferee)

	// Second referee seat is rejected even for an admin
	_, err = g.SelectRole(view.RoomID, "alice", types.RoleReferee, true)
	assert.ErrorIs(t, err, ErrRefereeTaken)
}

func TestSelectRoleResetsPositionAndReady(t *testing.T) {
	g := NewRegistry(clock.NewFakeClock(0))
	view := g.Create(testSubject(), player("c1", "alice"))

	_, err := g.SelectPosition(view.RoomID, "alice", types.PositionAgree)
	require.NoError(t, err)
	_, _, err = g.ToggleReady(view.RoomID, "alice")
	require.NoError(t, err)

	updated, err := g.SelectRole(view.RoomID, "alice", types.RoleSpectator, false)
	require.NoError(t, err)
	assert.Equal(t, types.PositionNone, updated.Participants[0].Position)
	assert.False(t, updated.Participants[0].IsReady)
}

func TestSelectPositionToggleClears(t *testing.T) {
	g := NewRegistry(clock.NewFakeClock(0))
	view := g.Create(testSubject(), player("c1", "alice"))

	updated, err := g.SelectPosition(view.RoomID, "alice", types.PositionAgree)
	require.NoError(t, err)
	assert.Equal(t, types.PositionAgree, updated.Participants[0].Position)

	// Picking the held side again clears it
	updated, err = g.SelectPosition(view.RoomID, "alice", types.PositionAgree)
	require.NoError(t, err)
	assert.Equal(t, types.PositionNone, updated.Participants[0].Position)
}

func TestSelectPositionConflicts(t *testing.T) {
	g := NewRegistry(clock.NewFakeClock(0))
	view := g.Create(testSubject(), player("c1", "alice"))
	_, err := g.Join(view.RoomID, player("c2", "bob"))
	require.NoError(t, err)
	_, err = g.Join(view.RoomID, player("c3", "carol"))
	require.NoError(t, err)

	_, err = g.SelectPosition(view.RoomID, "alice", types.PositionAgree)
	require.NoError(t, err)

	_, err = g.SelectPosition(view.RoomID, "bob", types.PositionAgree)
	assert.ErrorIs(t, err, ErrPositionTaken)

	// Spectators have no side
	_, err = g.SelectPosition(view.RoomID, "carol", types.PositionDisagree)
	assert.ErrorIs(t, err, ErrNotPlayer)
}

func TestToggleReadyIsInvolution(t *testing.T) {
	g := NewRegistry(clock.NewFakeClock(0))
	view := g.Create(testSubject(), player("c1", "alice"))

	_, updated, err := g.ToggleReady(view.RoomID, "alice")
	require.NoError(t, err)
	assert.True(t, updated.Participants[0].IsReady)

	_, updated, err = g.ToggleReady(view.RoomID, "alice")
	require.NoError(t, err)
	assert.False(t, updated.Participants[0].IsReady)
}

func TestReadySpectatorDoesNotStart(t *testing.T) {
	g := NewRegistry(clock.NewFakeClock(0))
	view := g.Create(testSubject(), player("c1", "alice"))
	_, err := g.Join(view.RoomID, player("c2", "bob"))
	require.NoError(t, err)
	_, err = g.Join(view.RoomID, player("c3", "carol"))
	require.NoError(t, err)

	_, _, err = g.ToggleReady(view.RoomID, "alice")
	require.NoError(t, err)
	started, _, err := g.ToggleReady(view.RoomID, "carol")
	require.NoError(t, err)
	assert.False(t, started)

	started, _, err = g.ToggleReady(view.RoomID, "bob")
	require.NoError(t, err)
	assert.True(t, started)
}

func TestLeaveResetsReadyAndReferee(t *testing.T) {
	g := NewRegistry(clock.NewFakeClock(0))
	np := player("c1", "ref")
	np.IsAdmin = true
	view := g.Create(testSubject(), np)
	_, err := g.Join(view.RoomID, player("c2", "alice"))
	require.NoError(t, err)
	_, err = g.Join(view.RoomID, player("c3", "bob"))
	require.NoError(t, err)

	_, _, err = g.ToggleReady(view.RoomID, "alice")
	require.NoError(t, err)

	deleted, updated, err := g.Leave(view.RoomID, "ref")
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.False(t, updated.HasReferee)
	for _, p := range updated.Participants {
		assert.False(t, p.IsReady)
	}
}

func TestLastLeaveDeletesRoom(t *testing.T) {
	g := NewRegistry(clock.NewFakeClock(0))
	view := g.Create(testSubject(), player("c1", "alice"))

	deleted, _, err := g.Leave(view.RoomID, "alice")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Equal(t, 0, g.Count())

	_, err = g.Get(view.RoomID)
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestResolvePositions(t *testing.T) {
	tests := []struct {
		name      string
		first     types.Position
		second    types.Position
		wantAgree string
	}{
		{"both unset defaults first to agree", types.PositionNone, types.PositionNone, "alice"},
		{"first picked agree", types.PositionAgree, types.PositionNone, "alice"},
		{"first picked disagree", types.PositionDisagree, types.PositionNone, "bob"},
		{"second picked agree", types.PositionNone, types.PositionAgree, "bob"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewRegistry(clock.NewFakeClock(0))
			view := g.Create(testSubject(), player("c1", "alice"))
			_, err := g.Join(view.RoomID, player("c2", "bob"))
			require.NoError(t, err)

			if tt.first != types.PositionNone {
				_, err = g.SelectPosition(view.RoomID, "alice", tt.first)
				require.NoError(t, err)
			}
			if tt.second != types.PositionNone {
				_, err = g.SelectPosition(view.RoomID, "bob", tt.second)
				require.NoError(t, err)
			}

			agree, disagree, err := g.ResolvePositions(view.RoomID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantAgree, agree.UserID)
			assert.NotEqual(t, agree.UserID, disagree.UserID)
			assert.Equal(t, types.PositionAgree, agree.Position)
			assert.Equal(t, types.PositionDisagree, disagree.Position)
		})
	}
}

func TestSetViewReadyRequiresBothPlayers(t *testing.T) {
	g := NewRegistry(clock.NewFakeClock(0))
	view := g.Create(testSubject(), player("c1", "alice"))
	_, err := g.Join(view.RoomID, player("c2", "bob"))
	require.NoError(t, err)
	_, _, err = g.ToggleReady(view.RoomID, "alice")
	require.NoError(t, err)
	_, _, err = g.ToggleReady(view.RoomID, "bob")
	require.NoError(t, err)

	both, err := g.SetViewReady(view.RoomID, "alice")
	require.NoError(t, err)
	assert.False(t, both)

	both, err = g.SetViewReady(view.RoomID, "bob")
	require.NoError(t, err)
	assert.True(t, both)
}

func TestSetViewReadyRequiresStartedBattle(t *testing.T) {
	g := NewRegistry(clock.NewFakeClock(0))
	view := g.Create(testSubject(), player("c1", "alice"))
	_, err := g.Join(view.RoomID, player("c2", "bob"))
	require.NoError(t, err)

	// Neither player toggled ready: the room is still in negotiation
	both, err := g.SetViewReady(view.RoomID, "alice")
	assert.ErrorIs(t, err, ErrBattleNotStarted)
	assert.False(t, both)

	both, err = g.SetViewReady(view.RoomID, "bob")
	assert.ErrorIs(t, err, ErrBattleNotStarted)
	assert.False(t, both)
}

func TestFindByUser(t *testing.T) {
	g := NewRegistry(clock.NewFakeClock(0))
	view := g.Create(testSubject(), player("c1", "alice"))

	found := g.FindByUser("alice")
	require.NotNil(t, found)
	assert.Equal(t, view.RoomID, found.RoomID)

	assert.Nil(t, g.FindByUser("nobody"))
}

func TestListNewestFirst(t *testing.T) {
	c := clock.NewFakeClock(0)
	g := NewRegistry(c)

	first := g.Create(testSubject(), player("c1", "alice"))
	c.Advance(time.Second)
	second := g.Create(testSubject(), player("c2", "bob"))

	list := g.List()
	require.Len(t, list, 2)
	assert.Equal(t, second.RoomID, list[0].RoomID)
	assert.Equal(t, first.RoomID, list[1].RoomID)
}
