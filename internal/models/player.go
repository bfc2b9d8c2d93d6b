package models

import (
	"time"

	"github.com/google/uuid"
)

// Player represents one membership in a room. The (RoomID, PlayerID)
// pair is the record key; each player's controller writes only its own
// record, so concurrent writes never contend.
type Player struct {
	RoomID      uuid.UUID `json:"room_id"`
	PlayerID    string    `json:"player_id"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	Score       int       `json:"score"`
	IsHost      bool      `json:"is_host"`
	JoinedAt    time.Time `json:"joined_at"`
}
