package types

import (
	"fmt"
)

// Role represents what a participant does inside a room
type Role string

const (
	RolePlayer    Role = "player"    // Takes a side and speaks during the debate
	RoleSpectator Role = "spectator" // Watches the debate without speaking
	RoleReferee   Role = "referee"   // Adjusts penalties, time and submits human scores
)

// Position represents the side a player argues for
type Position string

const (
	// PositionAgree - Argues in favour of the subject
	PositionAgree Position = "agree"

	// PositionDisagree - Argues against the subject
	PositionDisagree Position = "disagree"

	// PositionNone - No side chosen yet
	PositionNone Position = ""
)

// Sender represents who authored a debate message
type Sender string

const (
	SenderSystem   Sender = "system"   // Turn announcements and room notices
	SenderJudge    Sender = "judge"    // AI judge commentary and verdict prose
	SenderAgree    Sender = "agree"    // The player arguing in favour
	SenderDisagree Sender = "disagree" // The player arguing against
)

var (
	// AllRoles contains all valid roles
	AllRoles = []Role{
		RolePlayer,
		RoleSpectator,
		RoleReferee,
	}

	// AllPositions contains all selectable positions
	AllPositions = []Position{
		PositionAgree,
		PositionDisagree,
	}

	// roleMap maps string values to Role
	roleMap = map[string]Role{
		string(RolePlayer):    RolePlayer,
		string(RoleSpectator): RoleSpectator,
		string(RoleReferee):   RoleReferee,
	}

	// positionMap maps string values to Position
	positionMap = map[string]Position{
		string(PositionAgree):    PositionAgree,
		string(PositionDisagree): PositionDisagree,
	}

	// senderMap maps string values to Sender
	senderMap = map[string]Sender{
		string(SenderSystem):   SenderSystem,
		string(SenderJudge):    SenderJudge,
		string(SenderAgree):    SenderAgree,
		string(SenderDisagree): SenderDisagree,
	}
)

// Error types for invalid values
var (
	ErrInvalidRole     = fmt.Errorf("invalid role")
	ErrInvalidPosition = fmt.Errorf("invalid position")
	ErrInvalidSender   = fmt.Errorf("invalid sender")
)

// IsValid checks if the Role is valid
func (r Role) IsValid() bool {
	_, ok := roleMap[string(r)]
	return ok
}

// String converts the enum to string
func (r Role) String() string {
	return string(r)
}

// ParseRole parses a string into a Role
func ParseRole(s string) (Role, error) {
	if role, ok := roleMap[s]; ok {
		return role, nil
	}
	return "", fmt.Errorf("%w: %s", ErrInvalidRole, s)
}

// Description returns a human-readable description of the role
func (r Role) Description() string {
	switch r {
	case RolePlayer:
		return "Takes a side and speaks during the debate"
	case RoleSpectator:
		return "Watches the debate without speaking"
	case RoleReferee:
		return "Adjusts penalties, time and submits human scores"
	default:
		return "Unknown role"
	}
}

// IsValid checks if the Position is valid. PositionNone is not a
// selectable position and reports false.
func (p Position) IsValid() bool {
	_, ok := positionMap[string(p)]
	return ok
}

// String converts the enum to string
func (p Position) String() string {
	return string(p)
}

// ParsePosition parses a string into a Position. The empty string parses
// to PositionNone so that clearing a selection round-trips.
func ParsePosition(s string) (Position, error) {
	if s == "" {
		return PositionNone, nil
	}
	if pos, ok := positionMap[s]; ok {
		return pos, nil
	}
	return "", fmt.Errorf("%w: %s", ErrInvalidPosition, s)
}

// Opposite returns the complementary side. PositionNone has no complement
// and returns itself.
func (p Position) Opposite() Position {
	switch p {
	case PositionAgree:
		return PositionDisagree
	case PositionDisagree:
		return PositionAgree
	default:
		return PositionNone
	}
}

// Label returns the Korean side label used in announcements
func (p Position) Label() string {
	switch p {
	case PositionAgree:
		return "찬성"
	case PositionDisagree:
		return "반대"
	default:
		return ""
	}
}

// Sender returns the message sender tag for this side
func (p Position) Sender() Sender {
	switch p {
	case PositionAgree:
		return SenderAgree
	case PositionDisagree:
		return SenderDisagree
	default:
		return SenderSystem
	}
}

// IsValid checks if the Sender is valid
func (s Sender) IsValid() bool {
	_, ok := senderMap[string(s)]
	return ok
}

// String converts the enum to string
func (s Sender) String() string {
	return string(s)
}

// ParseSender parses a string into a Sender
func ParseSender(s string) (Sender, error) {
	if sender, ok := senderMap[s]; ok {
		return sender, nil
	}
	return "", fmt.Errorf("%w: %s", ErrInvalidSender, s)
}
