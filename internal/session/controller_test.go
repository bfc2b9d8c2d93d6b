package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Satelliteq/PixelHunt-sub000/internal/models"
	"github.com/Satelliteq/PixelHunt-sub000/internal/questions"
	"github.com/Satelliteq/PixelHunt-sub000/internal/realtime"
	"github.com/Satelliteq/PixelHunt-sub000/internal/room"
	"github.com/Satelliteq/PixelHunt-sub000/internal/scoring"
	"github.com/Satelliteq/PixelHunt-sub000/internal/store"
)

const sessionTestID = "test-1"

type fixture struct {
	store  *store.Memory
	bus    *realtime.MemoryBus
	clock  *clockwork.FakeClock
	engine *room.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewMemory()
	bus := realtime.NewMemoryBus()
	clock := clockwork.NewFakeClock()
	bank := questions.Static{
		sessionTestID: {
			{Prompt: "q0", ImageURL: "img0", Answers: []string{"eiffel tower"}},
			{Prompt: "q1", ImageURL: "img1", Answers: []string{"colosseum"}},
		},
	}
	return &fixture{
		store:  st,
		bus:    bus,
		clock:  clock,
		engine: room.NewEngine(st, bank, bus, clock),
	}
}

func (f *fixture) config() Config {
	return Config{
		Engine: f.engine,
		Store:  f.store,
		Bus:    f.bus,
		Clock:  f.clock,
	}
}

func (f *fixture) createRoom(t *testing.T, settings models.RoomSettings) *models.Room {
	t.Helper()
	created, _, err := f.engine.CreateRoom(context.Background(), "e2e room", sessionTestID,
		room.Identity{PlayerID: "player-a", DisplayName: "Player A"}, settings)
	require.NoError(t, err)
	return created
}

// joinAndRun joins a player and starts their session loop; the loop is
// torn down with the test.
func (f *fixture) joinAndRun(t *testing.T, roomID uuid.UUID, playerID, name string) *Controller {
	t.Helper()
	ctrl, err := Join(context.Background(), f.config(), roomID, room.Identity{
		PlayerID:    playerID,
		DisplayName: name,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		ctrl.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ctrl
}

// advanceUntil moves the fake clock forward one second at a time until
// cond holds. It waits for at least minWaiters timers to be parked
// before each step, and after each step gives the session loops a
// moment to consume the tick so the clock never runs ahead of them.
func (f *fixture) advanceUntil(t *testing.T, minWaiters int, cond func() bool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for i := 0; i < 200; i++ {
		if cond() {
			return
		}
		require.NoError(t, f.clock.BlockUntilContext(ctx, minWaiters))
		f.clock.Advance(time.Second)
		settle := time.Now().Add(20 * time.Millisecond)
		for time.Now().Before(settle) {
			if cond() {
				return
			}
			time.Sleep(2 * time.Millisecond)
		}
	}
	t.Fatal("condition not reached after 200 simulated seconds")
}

func (f *fixture) roomStatus(roomID uuid.UUID) models.RoomStatus {
	current, err := f.store.GetRoom(context.Background(), roomID)
	if err != nil {
		return ""
	}
	return current.Status
}

func TestGameFlowEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	settings := models.DefaultRoomSettings()
	settings.MinPlayers = 2
	settings.QuestionTimeSec = 20
	created := f.createRoom(t, settings)

	host := f.joinAndRun(t, created.ID, "player-a", "Player A")
	guest := f.joinAndRun(t, created.ID, "player-b", "Player B")
	require.True(t, host.IsHost(ctx))
	require.False(t, guest.IsHost(ctx))

	// Host starts; the room enters the 3 second countdown.
	require.NoError(t, host.StartGame(ctx))
	current, err := f.store.GetRoom(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusCountdown, current.Status)
	assert.Equal(t, room.InterQuestionCountdown, current.Countdown)

	// Three ticks later the first question is live.
	f.advanceUntil(t, 2, func() bool {
		current, err := f.store.GetRoom(ctx, created.ID)
		return err == nil && current.Status == models.RoomStatusPlaying && current.CurrentQuestionIndex == 0
	})

	// The host's scheduler publishes the initial 20% reveal; both
	// controllers observe it.
	require.Eventually(t, func() bool {
		return host.RevealPercent(ctx) == 20 && guest.RevealPercent(ctx) == 20
	}, 5*time.Second, 10*time.Millisecond, "initial reveal should reach both sessions")

	// A correct guess at 20% reveal scores against that percentage.
	require.NoError(t, host.SubmitGuess(ctx, "Eiffel Tower"))
	player, err := f.store.GetPlayer(ctx, created.ID, "player-a")
	require.NoError(t, err)
	assert.Equal(t, scoring.Score(20), player.Score)

	// A second correct guess on the same question scores nothing.
	require.NoError(t, host.SubmitGuess(ctx, "eiffel tower"))
	player, err = f.store.GetPlayer(ctx, created.ID, "player-a")
	require.NoError(t, err)
	assert.Equal(t, scoring.Score(20), player.Score)

	// A wrong guess leaves the guesser's score untouched but lands in
	// the shared feed.
	require.NoError(t, guest.SubmitGuess(ctx, "louvre"))
	guestPlayer, err := f.store.GetPlayer(ctx, created.ID, "player-b")
	require.NoError(t, err)
	assert.Zero(t, guestPlayer.Score)

	guesses, err := f.store.RecentGuesses(ctx, created.ID, 10)
	require.NoError(t, err)
	require.NotEmpty(t, guesses)
	assert.Equal(t, "louvre", guesses[0].Text)
	assert.False(t, guesses[0].IsCorrect)

	// Run the question timer out; the host advances to question 1 with
	// a fresh countdown.
	f.advanceUntil(t, 2, func() bool {
		current, err := f.store.GetRoom(ctx, created.ID)
		return err == nil && current.CurrentQuestionIndex == 1
	})

	// Play the rest of the game out.
	f.advanceUntil(t, 2, func() bool {
		return f.roomStatus(created.ID) == models.RoomStatusFinished
	})

	// The leaderboard comes straight from the player records.
	board, err := f.engine.Leaderboard(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, "player-a", board[0].PlayerID)
	assert.Equal(t, scoring.Score(20), board[0].Score)
	assert.Equal(t, "player-b", board[1].PlayerID)
}

func TestGuessValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.createRoom(t, models.DefaultRoomSettings())
	host := f.joinAndRun(t, created.ID, "player-a", "Player A")

	err := host.SubmitGuess(ctx, "   ")
	assert.ErrorIs(t, err, ErrEmptyGuess)

	// The room is still waiting; no question is loaded.
	err = host.SubmitGuess(ctx, "eiffel tower")
	assert.ErrorIs(t, err, ErrQuestionNotLoaded)
}

func TestChatDisabledRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	settings := models.DefaultRoomSettings()
	settings.AllowChat = false
	created := f.createRoom(t, settings)
	host := f.joinAndRun(t, created.ID, "player-a", "Player A")

	err := host.SendChat(ctx, "hello")
	assert.ErrorIs(t, err, ErrChatDisabled)
}

func TestChatAppendsToFeed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.createRoom(t, models.DefaultRoomSettings())
	host := f.joinAndRun(t, created.ID, "player-a", "Player A")

	require.NoError(t, host.SendChat(ctx, "good luck!"))
	messages, err := f.store.RecentChat(ctx, created.ID, 10)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "good luck!", messages[0].Text)
}

func TestKickedPlayerSessionStops(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.createRoom(t, models.DefaultRoomSettings())
	host := f.joinAndRun(t, created.ID, "player-a", "Player A")
	guest := f.joinAndRun(t, created.ID, "player-b", "Player B")

	require.NoError(t, host.KickPlayer(ctx, "player-b"))

	select {
	case <-guest.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("kicked player's session did not stop")
	}
	_, err := f.store.GetPlayer(ctx, created.ID, "player-b")
	assert.ErrorIs(t, err, store.ErrPlayerNotFound)
}

func TestHostLeaveHandsAuthorityToGuest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.createRoom(t, models.DefaultRoomSettings())

	host := f.joinAndRun(t, created.ID, "player-a", "Player A")
	f.clock.Advance(time.Millisecond)
	guest := f.joinAndRun(t, created.ID, "player-b", "Player B")

	require.NoError(t, host.Leave(ctx))
	require.Eventually(t, func() bool {
		return guest.IsHost(ctx)
	}, 5*time.Second, 10*time.Millisecond, "remaining player should claim host authority")

	current, err := f.store.GetRoom(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "player-b", current.HostID)
}

func TestOperationsFailAfterLeave(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.createRoom(t, models.DefaultRoomSettings())
	host := f.joinAndRun(t, created.ID, "player-a", "Player A")

	require.NoError(t, host.Leave(ctx))
	err := host.SubmitGuess(ctx, "anything")
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestGuessRateLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	settings := models.DefaultRoomSettings()
	settings.MinPlayers = 1
	created := f.createRoom(t, settings)
	host := f.joinAndRun(t, created.ID, "player-a", "Player A")

	require.NoError(t, host.StartGame(ctx))
	f.advanceUntil(t, 1, func() bool {
		return f.roomStatus(created.ID) == models.RoomStatusPlaying
	})

	var rateLimited bool
	for i := 0; i < 10; i++ {
		err := host.SubmitGuess(ctx, fmt.Sprintf("wrong-%d", i))
		if errors.Is(err, ErrTooManyGuesses) {
			rateLimited = true
			break
		}
		require.NoError(t, err)
	}
	assert.True(t, rateLimited, "burst of guesses should hit the rate limit")
}
