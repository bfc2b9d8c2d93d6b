package models

import (
	"time"

	"github.com/google/uuid"
)

// Guess is one entry in a room's append-only guess feed. The feed is a
// shared activity log, never an authoritative score source.
type Guess struct {
	ID          uuid.UUID `json:"id"`
	RoomID      uuid.UUID `json:"room_id"`
	PlayerID    string    `json:"player_id"`
	DisplayName string    `json:"display_name"`
	Text        string    `json:"text"`
	IsCorrect   bool      `json:"is_correct"`
	IsClose     bool      `json:"is_close"`
	CreatedAt   time.Time `json:"created_at"`
}
