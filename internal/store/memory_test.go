package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Satelliteq/PixelHunt-sub000/internal/models"
)

func testRoom() models.Room {
	return models.Room{
		ID:       uuid.New(),
		Name:     "room",
		HostID:   "host",
		Status:   models.RoomStatusWaiting,
		Settings: models.DefaultRoomSettings(),
		TestID:   "test-1",
	}
}

func TestMemoryRoomLifecycle(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	created := testRoom()

	require.NoError(t, m.CreateRoom(ctx, created))

	got, err := m.GetRoom(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	require.NoError(t, m.DeleteRoom(ctx, created.ID))
	_, err = m.GetRoom(ctx, created.ID)
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestMemoryApplyTransitionIsAtomic(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	created := testRoom()
	require.NoError(t, m.CreateRoom(ctx, created))

	status := models.RoomStatusCountdown
	countdown := 3
	index := 0
	total := 5
	question := models.Question{Prompt: "q0", Answers: []string{"a"}}
	updated, err := m.ApplyTransition(ctx, created.ID, RoomTransition{
		Status:               &status,
		Countdown:            &countdown,
		CurrentQuestionIndex: &index,
		TotalQuestions:       &total,
		CurrentQuestion:      &question,
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusCountdown, updated.Status)
	assert.Equal(t, 3, updated.Countdown)
	assert.Equal(t, 5, updated.TotalQuestions)
	require.NotNil(t, updated.CurrentQuestion)

	// Untouched fields survive the transition.
	assert.Equal(t, created.Name, updated.Name)
	assert.Equal(t, created.HostID, updated.HostID)

	finished := models.RoomStatusFinished
	updated, err = m.ApplyTransition(ctx, created.ID, RoomTransition{
		Status:               &finished,
		ClearCurrentQuestion: true,
	})
	require.NoError(t, err)
	assert.Nil(t, updated.CurrentQuestion)

	_, err = m.ApplyTransition(ctx, uuid.New(), RoomTransition{Status: &finished})
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestMemoryListPlayersOrderedByJoinTime(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	created := testRoom()
	require.NoError(t, m.CreateRoom(ctx, created))

	base := time.Now()
	for i, id := range []string{"charlie", "alice", "bob"} {
		require.NoError(t, m.CreatePlayer(ctx, models.Player{
			RoomID:   created.ID,
			PlayerID: id,
			JoinedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	players, err := m.ListPlayers(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, players, 3)
	assert.Equal(t, "charlie", players[0].PlayerID)
	assert.Equal(t, "alice", players[1].PlayerID)
	assert.Equal(t, "bob", players[2].PlayerID)
}

func TestMemoryResetScoresAndGuesses(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	created := testRoom()
	require.NoError(t, m.CreateRoom(ctx, created))
	require.NoError(t, m.CreatePlayer(ctx, models.Player{RoomID: created.ID, PlayerID: "p1"}))
	require.NoError(t, m.UpdateScore(ctx, created.ID, "p1", 800))
	require.NoError(t, m.AppendGuess(ctx, models.Guess{ID: uuid.New(), RoomID: created.ID, PlayerID: "p1", Text: "x"}))

	require.NoError(t, m.ResetScores(ctx, created.ID))
	require.NoError(t, m.ClearGuesses(ctx, created.ID))

	player, err := m.GetPlayer(ctx, created.ID, "p1")
	require.NoError(t, err)
	assert.Zero(t, player.Score)

	guesses, err := m.RecentGuesses(ctx, created.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, guesses)
}

func TestMemoryRecentGuessesNewestFirstWithLimit(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	created := testRoom()
	require.NoError(t, m.CreateRoom(ctx, created))

	base := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, m.AppendGuess(ctx, models.Guess{
			ID:        uuid.New(),
			RoomID:    created.ID,
			PlayerID:  "p1",
			Text:      string(rune('a' + i)),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	guesses, err := m.RecentGuesses(ctx, created.ID, 3)
	require.NoError(t, err)
	require.Len(t, guesses, 3)
	assert.Equal(t, "e", guesses[0].Text)
	assert.Equal(t, "d", guesses[1].Text)
	assert.Equal(t, "c", guesses[2].Text)
}
