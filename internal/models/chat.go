package models

import (
	"time"

	"github.com/google/uuid"
)

// ChatMessage is one entry in a room's append-only chat feed.
type ChatMessage struct {
	ID          uuid.UUID `json:"id"`
	RoomID      uuid.UUID `json:"room_id"`
	PlayerID    string    `json:"player_id"`
	DisplayName string    `json:"display_name"`
	Text        string    `json:"text"`
	CreatedAt   time.Time `json:"created_at"`
}
