// Package room holds the process-wide registry of debate rooms and the
// role/position negotiation that happens before a match starts. Rooms
// are plain data guarded by the registry; once a battle starts the
// match package owns the live debate state.
package room

import (
	"github.com/toronlabs/toron_backend/internal/database"
	"github.com/toronlabs/toron_backend/internal/types"
)

// Participant is one user's seat in a room. A user holds at most one
// seat per room; reconnecting refreshes ConnectionID instead of adding
// a second seat.
type Participant struct {
	ConnectionID string         `json:"-"`
	UserID       string         `json:"userId"`
	DisplayName  string         `json:"displayName"`
	Role         types.Role     `json:"role"`
	Position     types.Position `json:"position"`
	IsReady      bool           `json:"isReady"`
	ViewReady    bool           `json:"-"`

	// Profile snapshots taken at join time, shown in the lobby
	Rating float64 `json:"rating"`
	Wins   int     `json:"wins"`
	Losses int     `json:"losses"`
}

// Room is a debate room. Fields are mutated only by the Registry under
// its lock.
type Room struct {
	ID            string
	Subject       *database.Subject
	Participants  []*Participant
	BattleStarted bool
	IsCompleted   bool
	HasReferee    bool
	CreatedAtMs   int64
}

// View is the wire representation of a room
type View struct {
	RoomID        string            `json:"roomId"`
	Subject       *database.Subject `json:"subject"`
	Participants  []Participant     `json:"participants"`
	BattleStarted bool              `json:"battleStarted"`
	IsCompleted   bool              `json:"isCompleted"`
	HasReferee    bool              `json:"hasReferee"`
	PlayerCount   int               `json:"playerCount"`
}

func (r *Room) view() *View {
	v := &View{
		RoomID:        r.ID,
		Subject:       r.Subject,
		Participants:  make([]Participant, 0, len(r.Participants)),
		BattleStarted: r.BattleStarted,
		IsCompleted:   r.IsCompleted,
		HasReferee:    r.HasReferee,
	}
	for _, p := range r.Participants {
		v.Participants = append(v.Participants, *p)
		if p.Role == types.RolePlayer {
			v.PlayerCount++
		}
	}
	return v
}

func (r *Room) participant(userID string) *Participant {
	for _, p := range r.Participants {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

func (r *Room) players() []*Participant {
	var out []*Participant
	for _, p := range r.Participants {
		if p.Role == types.RolePlayer {
			out = append(out, p)
		}
	}
	return out
}

func (r *Room) recomputeReferee() {
	r.HasReferee = false
	for _, p := range r.Participants {
		if p.Role == types.RoleReferee {
			r.HasReferee = true
			return
		}
	}
}
