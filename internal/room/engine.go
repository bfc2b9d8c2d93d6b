// Package room owns the shared room document's lifecycle: the status
// state machine, host election and migration, and the membership rules
// around joining, leaving and kicking. Every state change it makes is a
// single atomic store transition followed by a bus event; a failed bus
// publish is logged and dropped rather than failing the operation.
package room

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/Satelliteq/PixelHunt-sub000/internal/models"
	"github.com/Satelliteq/PixelHunt-sub000/internal/questions"
	"github.com/Satelliteq/PixelHunt-sub000/internal/realtime"
	"github.com/Satelliteq/PixelHunt-sub000/internal/store"
)

// InterQuestionCountdown is the short pause, in seconds, between the
// start signal (or a question advance) and the question becoming
// playable.
const InterQuestionCountdown = 3

// Store defines what the engine needs from the shared room store.
type Store interface {
	store.RoomStore
	store.PlayerStore
	store.GuessStore
}

// Identity is the opaque player identity supplied by the external
// identity provider.
type Identity struct {
	PlayerID    string
	DisplayName string
	AvatarURL   string
}

// Engine applies room lifecycle transitions against the shared store.
type Engine struct {
	store Store
	bank  questions.Bank
	bus   realtime.Bus
	clock clockwork.Clock
}

// NewEngine creates a room engine.
func NewEngine(st Store, bank questions.Bank, bus realtime.Bus, clock clockwork.Clock) *Engine {
	return &Engine{
		store: st,
		bank:  bank,
		bus:   bus,
		clock: clock,
	}
}

// CreateRoom opens a new room in the waiting state with its creator as
// host, and returns the host authority token.
func (e *Engine) CreateRoom(ctx context.Context, name, testID string, creator Identity, settings models.RoomSettings) (*models.Room, *Authority, error) {
	if err := validateSettings(settings); err != nil {
		return nil, nil, err
	}

	now := e.clock.Now()
	room := models.Room{
		ID:        uuid.New(),
		Name:      name,
		HostID:    creator.PlayerID,
		Status:    models.RoomStatusWaiting,
		Settings:  settings,
		TestID:    testID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.CreateRoom(ctx, room); err != nil {
		return nil, nil, fmt.Errorf("failed to create room: %w", err)
	}

	player := models.Player{
		RoomID:      room.ID,
		PlayerID:    creator.PlayerID,
		DisplayName: creator.DisplayName,
		AvatarURL:   creator.AvatarURL,
		IsHost:      true,
		JoinedAt:    now,
	}
	if err := e.store.CreatePlayer(ctx, player); err != nil {
		return nil, nil, fmt.Errorf("failed to create host player: %w", err)
	}

	log.Info().
		Str("room_id", room.ID.String()).
		Str("host_id", creator.PlayerID).
		Str("test_id", testID).
		Msg("room created")

	e.publish(ctx, room.ID, realtime.EventTypeRoomUpdated, realtime.RoomUpdatedPayload{Room: room})
	e.publish(ctx, room.ID, realtime.EventTypePlayerJoined, realtime.PlayerJoinedPayload{Player: player})

	return &room, &Authority{roomID: room.ID, playerID: creator.PlayerID}, nil
}

// Join adds a player to a room, applying the host election rules: the
// first player in, or the room's original creator, becomes host. Joins
// are idempotent; rejoining returns the existing record. Returns a
// non-nil Authority only when the joiner holds host authority.
func (e *Engine) Join(ctx context.Context, roomID uuid.UUID, id Identity) (*models.Player, *Authority, error) {
	room, err := e.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}

	if existing, err := e.store.GetPlayer(ctx, roomID, id.PlayerID); err == nil {
		var auth *Authority
		if existing.IsHost {
			auth = &Authority{roomID: roomID, playerID: id.PlayerID}
		}
		return existing, auth, nil
	} else if !errors.Is(err, store.ErrPlayerNotFound) {
		return nil, nil, err
	}

	if room.Status == models.RoomStatusPlaying {
		return nil, nil, ErrGameInProgress
	}
	count, err := e.store.CountPlayers(ctx, roomID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to count players: %w", err)
	}
	if count >= room.Settings.MaxPlayers {
		return nil, nil, ErrRoomFull
	}

	isHost := count == 0 || id.PlayerID == room.HostID
	player := models.Player{
		RoomID:      roomID,
		PlayerID:    id.PlayerID,
		DisplayName: id.DisplayName,
		AvatarURL:   id.AvatarURL,
		IsHost:      isHost,
		JoinedAt:    e.clock.Now(),
	}
	if err := e.store.CreatePlayer(ctx, player); err != nil {
		return nil, nil, fmt.Errorf("failed to create player: %w", err)
	}

	if isHost && room.HostID != id.PlayerID {
		if _, err := e.store.ApplyTransition(ctx, roomID, store.RoomTransition{HostID: &id.PlayerID}); err != nil {
			return nil, nil, fmt.Errorf("failed to record host: %w", err)
		}
	}

	log.Info().
		Str("room_id", roomID.String()).
		Str("player_id", id.PlayerID).
		Bool("is_host", isHost).
		Msg("player joined")

	e.publish(ctx, roomID, realtime.EventTypePlayerJoined, realtime.PlayerJoinedPayload{Player: player})

	var auth *Authority
	if isHost {
		auth = &Authority{roomID: roomID, playerID: id.PlayerID}
	}
	return &player, auth, nil
}

// Leave removes the player's own record. A departing host hands
// authority to the earliest remaining joiner; the last player to leave
// deletes the room.
func (e *Engine) Leave(ctx context.Context, roomID uuid.UUID, playerID string) error {
	player, err := e.store.GetPlayer(ctx, roomID, playerID)
	if err != nil {
		return err
	}
	if err := e.store.DeletePlayer(ctx, roomID, playerID); err != nil {
		return fmt.Errorf("failed to delete player: %w", err)
	}

	remaining, err := e.store.ListPlayers(ctx, roomID)
	if err != nil {
		return fmt.Errorf("failed to list remaining players: %w", err)
	}

	if len(remaining) == 0 {
		if err := e.store.DeleteRoom(ctx, roomID); err != nil {
			return fmt.Errorf("failed to delete empty room: %w", err)
		}
		log.Info().Str("room_id", roomID.String()).Msg("last player left, room deleted")
		e.publish(ctx, roomID, realtime.EventTypeRoomDeleted, realtime.RoomDeletedPayload{RoomID: roomID.String()})
		return nil
	}

	payload := realtime.PlayerLeftPayload{PlayerID: playerID}
	if player.IsHost {
		// Earliest joiner inherits host authority.
		newHost := remaining[0]
		if err := e.store.SetHost(ctx, roomID, newHost.PlayerID, true); err != nil {
			return fmt.Errorf("failed to migrate host: %w", err)
		}
		if _, err := e.store.ApplyTransition(ctx, roomID, store.RoomTransition{HostID: &newHost.PlayerID}); err != nil {
			return fmt.Errorf("failed to record migrated host: %w", err)
		}
		payload.NewHostID = newHost.PlayerID
		log.Info().
			Str("room_id", roomID.String()).
			Str("old_host", playerID).
			Str("new_host", newHost.PlayerID).
			Msg("host migrated")
	}

	e.publish(ctx, roomID, realtime.EventTypePlayerLeft, payload)
	return nil
}

// Kick removes a non-host player from the room. The removed player's
// controller observes the PlayerKicked event and navigates away.
func (e *Engine) Kick(ctx context.Context, auth *Authority, roomID uuid.UUID, targetID string) error {
	if !auth.allows(roomID) {
		return ErrNotHost
	}
	target, err := e.store.GetPlayer(ctx, roomID, targetID)
	if err != nil {
		return err
	}
	if target.IsHost {
		return ErrKickHost
	}
	if err := e.store.DeletePlayer(ctx, roomID, targetID); err != nil {
		return fmt.Errorf("failed to kick player: %w", err)
	}

	log.Info().
		Str("room_id", roomID.String()).
		Str("player_id", targetID).
		Msg("player kicked")

	e.publish(ctx, roomID, realtime.EventTypePlayerKicked, realtime.PlayerKickedPayload{PlayerID: targetID})
	return nil
}

// TransferHost hands host authority to another present player. Only
// allowed while the room is waiting, never mid-game. The caller's
// token is void afterwards; the target claims its own via ClaimAuthority.
func (e *Engine) TransferHost(ctx context.Context, auth *Authority, roomID uuid.UUID, targetID string) error {
	if !auth.allows(roomID) {
		return ErrNotHost
	}
	room, err := e.store.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if room.Status != models.RoomStatusWaiting {
		return ErrTransferWhilePlaying
	}
	if _, err := e.store.GetPlayer(ctx, roomID, targetID); err != nil {
		return err
	}

	if err := e.store.SetHost(ctx, roomID, auth.PlayerID(), false); err != nil {
		return fmt.Errorf("failed to clear host flag: %w", err)
	}
	if err := e.store.SetHost(ctx, roomID, targetID, true); err != nil {
		return fmt.Errorf("failed to set host flag: %w", err)
	}
	if _, err := e.store.ApplyTransition(ctx, roomID, store.RoomTransition{HostID: &targetID}); err != nil {
		return fmt.Errorf("failed to record host transfer: %w", err)
	}

	log.Info().
		Str("room_id", roomID.String()).
		Str("old_host", auth.PlayerID()).
		Str("new_host", targetID).
		Msg("host transferred")

	e.publish(ctx, roomID, realtime.EventTypeHostChanged, realtime.HostChangedPayload{HostID: targetID})
	return nil
}

// ClaimAuthority returns a host token for playerID after verifying the
// shared document names them host. Controllers call this when they
// observe a HostChanged or migration event naming themselves.
func (e *Engine) ClaimAuthority(ctx context.Context, roomID uuid.UUID, playerID string) (*Authority, error) {
	room, err := e.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.HostID != playerID {
		return nil, ErrNotHost
	}
	return &Authority{roomID: roomID, playerID: playerID}, nil
}

// Start moves a waiting room into the pre-question countdown, gated on
// the minimum player count. An under-populated start is rejected with
// no state change.
func (e *Engine) Start(ctx context.Context, auth *Authority, roomID uuid.UUID) (*models.Room, error) {
	if !auth.allows(roomID) {
		return nil, ErrNotHost
	}
	room, err := e.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.Status != models.RoomStatusWaiting {
		return nil, ErrWrongStatus
	}
	count, err := e.store.CountPlayers(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to count players: %w", err)
	}
	if count < room.Settings.MinPlayers {
		return nil, ErrNotEnoughPlayers
	}

	qs, err := e.bank.GetTest(ctx, room.TestID)
	if err != nil {
		return nil, fmt.Errorf("failed to load test: %w", err)
	}
	if len(qs) == 0 {
		return nil, ErrNoQuestions
	}

	status := models.RoomStatusCountdown
	countdown := InterQuestionCountdown
	index := 0
	total := len(qs)
	updated, err := e.store.ApplyTransition(ctx, roomID, store.RoomTransition{
		Status:               &status,
		Countdown:            &countdown,
		CurrentQuestionIndex: &index,
		TotalQuestions:       &total,
		CurrentQuestion:      &qs[0],
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start room: %w", err)
	}

	log.Info().
		Str("room_id", roomID.String()).
		Int("players", count).
		Int("total_questions", total).
		Msg("game started")

	e.publish(ctx, roomID, realtime.EventTypeRoomUpdated, realtime.RoomUpdatedPayload{Room: *updated})
	return updated, nil
}

// CountdownTick decrements the shared countdown by one second and, on
// reaching zero, flips the room into playing. Only the host drives it;
// the countdown never goes negative.
func (e *Engine) CountdownTick(ctx context.Context, auth *Authority, roomID uuid.UUID) (*models.Room, error) {
	if !auth.allows(roomID) {
		return nil, ErrNotHost
	}
	room, err := e.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.Status != models.RoomStatusCountdown {
		return nil, ErrWrongStatus
	}

	var tr store.RoomTransition
	if room.Countdown > 1 {
		next := room.Countdown - 1
		tr.Countdown = &next
	} else {
		status := models.RoomStatusPlaying
		zero := 0
		tr.Status = &status
		tr.Countdown = &zero
	}

	updated, err := e.store.ApplyTransition(ctx, roomID, tr)
	if err != nil {
		return nil, fmt.Errorf("failed to tick countdown: %w", err)
	}
	e.publish(ctx, roomID, realtime.EventTypeRoomUpdated, realtime.RoomUpdatedPayload{Room: *updated})
	return updated, nil
}

// Advance moves the room past the current question: either into the
// inter-question countdown with the next question denormalized into
// the document, or into the finished state when no question remains.
// The whole transition is one atomic write.
func (e *Engine) Advance(ctx context.Context, auth *Authority, roomID uuid.UUID) (*models.Room, error) {
	if !auth.allows(roomID) {
		return nil, ErrNotHost
	}
	room, err := e.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.Status != models.RoomStatusPlaying {
		return nil, ErrWrongStatus
	}

	next := room.CurrentQuestionIndex + 1
	if next >= room.TotalQuestions {
		status := models.RoomStatusFinished
		zero := 0
		updated, err := e.store.ApplyTransition(ctx, roomID, store.RoomTransition{
			Status:               &status,
			Countdown:            &zero,
			ClearCurrentQuestion: true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to finish room: %w", err)
		}
		log.Info().Str("room_id", roomID.String()).Msg("game finished")
		e.publish(ctx, roomID, realtime.EventTypeRoomUpdated, realtime.RoomUpdatedPayload{Room: *updated})
		return updated, nil
	}

	qs, err := e.bank.GetTest(ctx, room.TestID)
	if err != nil {
		return nil, fmt.Errorf("failed to load test: %w", err)
	}
	if next >= len(qs) {
		return nil, fmt.Errorf("question %d out of range for test %s", next, room.TestID)
	}

	status := models.RoomStatusCountdown
	countdown := InterQuestionCountdown
	updated, err := e.store.ApplyTransition(ctx, roomID, store.RoomTransition{
		Status:               &status,
		Countdown:            &countdown,
		CurrentQuestionIndex: &next,
		CurrentQuestion:      &qs[next],
	})
	if err != nil {
		return nil, fmt.Errorf("failed to advance question: %w", err)
	}

	log.Info().
		Str("room_id", roomID.String()).
		Int("question_index", next).
		Msg("question advanced")

	e.publish(ctx, roomID, realtime.EventTypeRoomUpdated, realtime.RoomUpdatedPayload{Room: *updated})
	return updated, nil
}

// Reset returns a finished room to the waiting state, zeroing every
// player's score and clearing the guess feed.
func (e *Engine) Reset(ctx context.Context, auth *Authority, roomID uuid.UUID) (*models.Room, error) {
	if !auth.allows(roomID) {
		return nil, ErrNotHost
	}
	room, err := e.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.Status != models.RoomStatusFinished {
		return nil, ErrWrongStatus
	}

	if err := e.store.ResetScores(ctx, roomID); err != nil {
		return nil, fmt.Errorf("failed to reset scores: %w", err)
	}
	if err := e.store.ClearGuesses(ctx, roomID); err != nil {
		return nil, fmt.Errorf("failed to clear guesses: %w", err)
	}

	status := models.RoomStatusWaiting
	zero := 0
	updated, err := e.store.ApplyTransition(ctx, roomID, store.RoomTransition{
		Status:               &status,
		Countdown:            &zero,
		CurrentQuestionIndex: &zero,
		ClearCurrentQuestion: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to reset room: %w", err)
	}

	log.Info().Str("room_id", roomID.String()).Msg("room reset")
	e.publish(ctx, roomID, realtime.EventTypeRoomUpdated, realtime.RoomUpdatedPayload{Room: *updated})
	return updated, nil
}

// UpdateSettings replaces the room settings. Waiting rooms only.
func (e *Engine) UpdateSettings(ctx context.Context, auth *Authority, roomID uuid.UUID, settings models.RoomSettings) (*models.Room, error) {
	if !auth.allows(roomID) {
		return nil, ErrNotHost
	}
	if err := validateSettings(settings); err != nil {
		return nil, err
	}
	room, err := e.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.Status != models.RoomStatusWaiting {
		return nil, ErrWrongStatus
	}

	updated, err := e.store.ApplyTransition(ctx, roomID, store.RoomTransition{Settings: &settings})
	if err != nil {
		return nil, fmt.Errorf("failed to update settings: %w", err)
	}
	e.publish(ctx, roomID, realtime.EventTypeRoomUpdated, realtime.RoomUpdatedPayload{Room: *updated})
	return updated, nil
}

// Leaderboard returns the room's players sorted by score, highest
// first, with join order breaking ties.
func (e *Engine) Leaderboard(ctx context.Context, roomID uuid.UUID) ([]models.Player, error) {
	players, err := e.store.ListPlayers(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}
	sort.SliceStable(players, func(i, j int) bool {
		return players[i].Score > players[j].Score
	})
	return players, nil
}

func validateSettings(s models.RoomSettings) error {
	if s.MaxPlayers < 2 {
		return fmt.Errorf("%w: max players must be at least 2", ErrInvalidSettings)
	}
	if s.MinPlayers < 1 || s.MinPlayers > s.MaxPlayers {
		return fmt.Errorf("%w: min players must be between 1 and max players", ErrInvalidSettings)
	}
	if s.QuestionTimeSec <= 0 {
		return fmt.Errorf("%w: question time must be positive", ErrInvalidSettings)
	}
	return nil
}

// publish sends an event on the bus. Failures are logged and dropped:
// a lost notification only delays observers until the next write, the
// store remains authoritative.
func (e *Engine) publish(ctx context.Context, roomID uuid.UUID, eventType realtime.EventType, payload any) {
	event, err := realtime.NewEvent(roomID, eventType, payload)
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID.String()).Msg("failed to build event")
		return
	}
	if err := e.bus.Publish(ctx, event); err != nil {
		log.Error().Err(err).
			Str("room_id", roomID.String()).
			Str("event_type", string(eventType)).
			Msg("failed to publish event")
	}
}

// QuestionDuration returns the per-question timer for a room's settings.
func QuestionDuration(s models.RoomSettings) time.Duration {
	return time.Duration(s.QuestionTimeSec) * time.Second
}
