// Package realtime delivers room change notifications to session
// controllers. The bus is eventually consistent and per-room ordered;
// authoritative state always lives in the store documents.
package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Satelliteq/PixelHunt-sub000/internal/models"
)

// Event is the envelope carried for every room event.
type Event struct {
	ID        string          `json:"id"`
	RoomID    string          `json:"room_id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// EventType identifies the payload carried by an Event.
type EventType string

const (
	EventTypeRoomUpdated    EventType = "RoomUpdated"
	EventTypeRoomDeleted    EventType = "RoomDeleted"
	EventTypePlayerJoined   EventType = "PlayerJoined"
	EventTypePlayerLeft     EventType = "PlayerLeft"
	EventTypePlayerKicked   EventType = "PlayerKicked"
	EventTypeHostChanged    EventType = "HostChanged"
	EventTypeGuessSubmitted EventType = "GuessSubmitted"
	EventTypeChatPosted     EventType = "ChatPosted"
	EventTypeRevealProgress EventType = "RevealProgress"
)

// RoomUpdatedPayload carries the full room document after a transition.
// Shipping the whole document keeps every observer's view atomic even
// when a transition touched several fields.
type RoomUpdatedPayload struct {
	Room models.Room `json:"room"`
}

// RoomDeletedPayload announces that the room no longer exists.
type RoomDeletedPayload struct {
	RoomID string `json:"room_id"`
}

// PlayerJoinedPayload announces a new membership record.
type PlayerJoinedPayload struct {
	Player models.Player `json:"player"`
}

// PlayerLeftPayload announces a departed player and, when the host
// left, the migration target that now holds host authority.
type PlayerLeftPayload struct {
	PlayerID  string `json:"player_id"`
	NewHostID string `json:"new_host_id,omitempty"`
}

// PlayerKickedPayload announces a removal by the host. The kicked
// player's own controller reacts by leaving and notifying its user.
type PlayerKickedPayload struct {
	PlayerID string `json:"player_id"`
}

// HostChangedPayload announces a manual host transfer.
type HostChangedPayload struct {
	HostID string `json:"host_id"`
}

// GuessSubmittedPayload carries a guess feed entry. Visibility rules
// (close guesses stay private, correct guesses are redacted for
// everyone but the guesser) are applied at the transport edge.
type GuessSubmittedPayload struct {
	Guess models.Guess `json:"guess"`
}

// ChatPostedPayload carries a chat feed entry.
type ChatPostedPayload struct {
	Message models.ChatMessage `json:"message"`
}

// RevealProgressPayload carries the host's reveal state so every
// controller can render the grid and score against the same percent.
type RevealProgressPayload struct {
	QuestionIndex int   `json:"question_index"`
	Cells         []int `json:"cells"`
	Percent       int   `json:"percent"`
}

// NewEvent wraps a payload in an envelope for the given room.
func NewEvent(roomID uuid.UUID, eventType EventType, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return Event{
		ID:        uuid.New().String(),
		RoomID:    roomID.String(),
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}, nil
}

// ParsePayload decodes an event's payload into its typed form.
func ParsePayload(event Event) (any, error) {
	switch event.Type {
	case EventTypeRoomUpdated:
		var payload RoomUpdatedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil
	case EventTypeRoomDeleted:
		var payload RoomDeletedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil
	case EventTypePlayerJoined:
		var payload PlayerJoinedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil
	case EventTypePlayerLeft:
		var payload PlayerLeftPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil
	case EventTypePlayerKicked:
		var payload PlayerKickedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil
	case EventTypeHostChanged:
		var payload HostChangedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil
	case EventTypeGuessSubmitted:
		var payload GuessSubmittedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil
	case EventTypeChatPosted:
		var payload ChatPostedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil
	case EventTypeRevealProgress:
		var payload RevealProgressPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil
	default:
		return nil, fmt.Errorf("unknown event type: %s", event.Type)
	}
}
