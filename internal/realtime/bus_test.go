package realtime

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBusDeliversPerRoom(t *testing.T) {
	bus := NewMemoryBus()
	roomA := uuid.New()
	roomB := uuid.New()

	var gotA, gotB []EventType
	unsubA, err := bus.Subscribe(roomA, func(e Event) { gotA = append(gotA, e.Type) })
	require.NoError(t, err)
	defer unsubA()
	unsubB, err := bus.Subscribe(roomB, func(e Event) { gotB = append(gotB, e.Type) })
	require.NoError(t, err)
	defer unsubB()

	event, err := NewEvent(roomA, EventTypeRoomUpdated, RoomUpdatedPayload{})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), event))

	assert.Equal(t, []EventType{EventTypeRoomUpdated}, gotA)
	assert.Empty(t, gotB, "events stay within their room")
}

func TestMemoryBusDeliversInPublishOrder(t *testing.T) {
	bus := NewMemoryBus()
	roomID := uuid.New()

	var got []EventType
	unsub, err := bus.Subscribe(roomID, func(e Event) { got = append(got, e.Type) })
	require.NoError(t, err)
	defer unsub()

	for _, eventType := range []EventType{EventTypePlayerJoined, EventTypeRoomUpdated, EventTypePlayerLeft} {
		event, err := NewEvent(roomID, eventType, struct{}{})
		require.NoError(t, err)
		require.NoError(t, bus.Publish(context.Background(), event))
	}

	assert.Equal(t, []EventType{EventTypePlayerJoined, EventTypeRoomUpdated, EventTypePlayerLeft}, got)
}

func TestMemoryBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewMemoryBus()
	roomID := uuid.New()

	delivered := 0
	unsub, err := bus.Subscribe(roomID, func(Event) { delivered++ })
	require.NoError(t, err)

	event, err := NewEvent(roomID, EventTypeRoomUpdated, struct{}{})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), event))
	unsub()
	require.NoError(t, bus.Publish(context.Background(), event))

	assert.Equal(t, 1, delivered)
}

func TestParsePayloadRoundTrip(t *testing.T) {
	roomID := uuid.New()
	event, err := NewEvent(roomID, EventTypePlayerLeft, PlayerLeftPayload{
		PlayerID:  "p1",
		NewHostID: "p2",
	})
	require.NoError(t, err)

	parsed, err := ParsePayload(event)
	require.NoError(t, err)
	payload, ok := parsed.(PlayerLeftPayload)
	require.True(t, ok)
	assert.Equal(t, "p1", payload.PlayerID)
	assert.Equal(t, "p2", payload.NewHostID)
}

func TestParsePayloadRejectsUnknownType(t *testing.T) {
	_, err := ParsePayload(Event{Type: "Bogus"})
	assert.Error(t, err)
}
