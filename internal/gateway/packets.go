package gateway

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Satelliteq/PixelHunt-sub000/internal/models"
	"github.com/Satelliteq/PixelHunt-sub000/internal/realtime"
)

// ClientPacket is the envelope for every message a client sends over
// the websocket.
type ClientPacket struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Client packet types.
const (
	PacketTypeGuess    = "guess"
	PacketTypeChat     = "chat"
	PacketTypeStart    = "start"
	PacketTypeKick     = "kick"
	PacketTypeTransfer = "transfer"
	PacketTypeSettings = "settings"
	PacketTypeReset    = "reset"
	PacketTypeLeave    = "leave"
)

// TextPayload carries guess and chat packet bodies.
type TextPayload struct {
	Text string `json:"text"`
}

// TargetPayload carries kick and transfer packet bodies.
type TargetPayload struct {
	PlayerID string `json:"player_id"`
}

// SettingsPayload carries a settings update packet body.
type SettingsPayload struct {
	Settings models.RoomSettings `json:"settings"`
}

// NoticeEventType is a synthetic event type used only on the websocket
// edge, never on the bus. It carries per-user transient notices in the
// same envelope clients already parse.
const NoticeEventType realtime.EventType = "Notice"

// NoticePayload is the body of a Notice frame.
type NoticePayload struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// NewNoticeFrame builds a Notice event frame for one user.
func NewNoticeFrame(roomID uuid.UUID, level, message string) ([]byte, error) {
	data, err := json.Marshal(NoticePayload{Level: level, Message: message})
	if err != nil {
		return nil, err
	}
	return json.Marshal(realtime.Event{
		ID:        uuid.New().String(),
		RoomID:    roomID.String(),
		Type:      NoticeEventType,
		Timestamp: time.Now(),
		Data:      data,
	})
}

// redactGuess masks the text of a correct guess so other players see
// that someone solved the question without seeing the answer.
func redactGuess(guess models.Guess) models.Guess {
	guess.Text = strings.Repeat("*", len([]rune(guess.Text)))
	return guess
}
