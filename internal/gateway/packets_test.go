package gateway

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Satelliteq/PixelHunt-sub000/internal/models"
	"github.com/Satelliteq/PixelHunt-sub000/internal/realtime"
)

func TestRedactGuessMasksTextOnly(t *testing.T) {
	guess := models.Guess{
		PlayerID:    "p1",
		DisplayName: "Player One",
		Text:        "eiffel tower",
		IsCorrect:   true,
	}

	redacted := redactGuess(guess)
	assert.Equal(t, "************", redacted.Text)
	assert.True(t, redacted.IsCorrect)
	assert.Equal(t, "Player One", redacted.DisplayName)

	// The original is untouched.
	assert.Equal(t, "eiffel tower", guess.Text)
}

func TestRedactGuessCountsRunes(t *testing.T) {
	redacted := redactGuess(models.Guess{Text: "güeß"})
	assert.Equal(t, "****", redacted.Text)
}

func TestNoticeFrameRoundTrip(t *testing.T) {
	roomID := uuid.New()
	frame, err := NewNoticeFrame(roomID, "error", "room is full")
	require.NoError(t, err)

	var event realtime.Event
	require.NoError(t, json.Unmarshal(frame, &event))
	assert.Equal(t, NoticeEventType, event.Type)
	assert.Equal(t, roomID.String(), event.RoomID)

	var payload NoticePayload
	require.NoError(t, json.Unmarshal(event.Data, &payload))
	assert.Equal(t, "error", payload.Level)
	assert.Equal(t, "room is full", payload.Message)
}
