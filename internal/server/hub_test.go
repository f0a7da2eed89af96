package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(c *Client) []outbound {
	var out []outbound
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return out
			}
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestBroadcastReachesOnlyRoomMembers(t *testing.T) {
	hub := NewHub()
	a, b, outsider := newClient(nil), newClient(nil), newClient(nil)
	hub.Register(a)
	hub.Register(b)
	hub.Register(outsider)
	hub.JoinRoomChannel("room-1", a.ID)
	hub.JoinRoomChannel("room-1", b.ID)

	hub.Broadcast("room-1", "turn_info", map[string]string{"stage": "1"})

	require.Len(t, drain(a), 1)
	require.Len(t, drain(b), 1)
	assert.Empty(t, drain(outsider))
}

func TestBroadcastAllReachesEveryConnection(t *testing.T) {
	hub := NewHub()
	a, b := newClient(nil), newClient(nil)
	hub.Register(a)
	hub.Register(b)
	hub.JoinRoomChannel("room-1", a.ID)

	hub.BroadcastAll("rooms_update", nil)

	assert.Len(t, drain(a), 1)
	assert.Len(t, drain(b), 1)
}

func TestSendTargetsSingleConnection(t *testing.T) {
	hub := NewHub()
	a, b := newClient(nil), newClient(nil)
	hub.Register(a)
	hub.Register(b)

	require.True(t, hub.Send(a.ID, "show_referee_score_modal", nil))
	assert.False(t, hub.Send("unknown-conn", "show_referee_score_modal", nil))

	msgs := drain(a)
	require.Len(t, msgs, 1)
	assert.Equal(t, "show_referee_score_modal", msgs[0].Event)
	assert.Empty(t, drain(b))
}

func TestLeaveRoomChannelStopsDelivery(t *testing.T) {
	hub := NewHub()
	a := newClient(nil)
	hub.Register(a)
	hub.JoinRoomChannel("room-1", a.ID)
	hub.LeaveRoomChannel("room-1", a.ID)

	hub.Broadcast("room-1", "turn_info", nil)
	assert.Empty(t, drain(a))
}

func TestUnregisterRemovesFromAllRooms(t *testing.T) {
	hub := NewHub()
	a := newClient(nil)
	hub.Register(a)
	hub.JoinRoomChannel("room-1", a.ID)
	hub.JoinRoomChannel("room-2", a.ID)

	hub.Unregister(a.ID)

	_, ok := hub.Client(a.ID)
	assert.False(t, ok)
	assert.Equal(t, 0, hub.ConnectionCount())

	// The send channel is closed so the writer pump exits
	_, open := <-a.send
	assert.False(t, open)

	// Double unregister is harmless
	hub.Unregister(a.ID)
}

func TestCloseRoomChannelKeepsConnectionsAlive(t *testing.T) {
	hub := NewHub()
	a := newClient(nil)
	hub.Register(a)
	hub.JoinRoomChannel("room-1", a.ID)

	hub.CloseRoomChannel("room-1")

	hub.Broadcast("room-1", "turn_info", nil)
	assert.Empty(t, drain(a))

	require.True(t, hub.Send(a.ID, "rooms_update", nil))
	assert.Len(t, drain(a), 1)
}

func TestSlowConsumerDropsInsteadOfBlocking(t *testing.T) {
	hub := NewHub()
	a := newClient(nil)
	hub.Register(a)
	hub.JoinRoomChannel("room-1", a.ID)

	// Nobody drains a.send: overflow past the buffer must not block
	for i := 0; i < sendBuffer+10; i++ {
		hub.Broadcast("room-1", "timer_update", i)
	}
	assert.Len(t, drain(a), sendBuffer)
}
