package room

import "github.com/google/uuid"

// Authority is the capability token for host-gated operations. A
// controller either holds one or it doesn't; the engine checks the
// token instead of comparing identities at every call site. The token
// is advisory: any client could write host-gated fields directly, and
// the design tolerates that as a documented trust boundary rather than
// a security boundary.
type Authority struct {
	roomID   uuid.UUID
	playerID string
}

// RoomID returns the room this token is scoped to.
func (a *Authority) RoomID() uuid.UUID {
	return a.roomID
}

// PlayerID returns the player holding the token.
func (a *Authority) PlayerID() string {
	return a.playerID
}

// allows reports whether the token grants host authority over roomID.
func (a *Authority) allows(roomID uuid.UUID) bool {
	return a != nil && a.roomID == roomID
}
