// Package store is the shared room store boundary: per-document reads
// and writes, equality lookups, and append-only feeds. Coordination
// between session controllers happens entirely through these documents;
// the realtime bus only tells clients that something changed.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/Satelliteq/PixelHunt-sub000/internal/models"
)

var (
	// ErrRoomNotFound is returned when a room id resolves to nothing,
	// including rooms deleted after their last player left.
	ErrRoomNotFound = errors.New("room not found")
	// ErrPlayerNotFound is returned when a (room, player) pair has no record.
	ErrPlayerNotFound = errors.New("player not found")
)

// RoomTransition is one logical room state change. All set fields are
// written in a single atomic update so no client can observe a partial
// transition (e.g. a new question index with the old status).
type RoomTransition struct {
	Name                 *string
	HostID               *string
	Status               *models.RoomStatus
	Settings             *models.RoomSettings
	CurrentQuestionIndex *int
	TotalQuestions       *int
	Countdown            *int
	CurrentQuestion      *models.Question
	ClearCurrentQuestion bool
}

// RoomStore owns the room documents.
type RoomStore interface {
	CreateRoom(ctx context.Context, room models.Room) error
	GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error)
	// ApplyTransition performs one atomic multi-field update and
	// returns the resulting document.
	ApplyTransition(ctx context.Context, id uuid.UUID, tr RoomTransition) (*models.Room, error)
	DeleteRoom(ctx context.Context, id uuid.UUID) error
}

// PlayerStore owns the per-membership player records, keyed by
// (roomID, playerID) and partitioned so each controller writes only its
// own record.
type PlayerStore interface {
	CreatePlayer(ctx context.Context, player models.Player) error
	GetPlayer(ctx context.Context, roomID uuid.UUID, playerID string) (*models.Player, error)
	// ListPlayers returns the room's players ordered by join time,
	// earliest first. Host migration picks the head of this list.
	ListPlayers(ctx context.Context, roomID uuid.UUID) ([]models.Player, error)
	CountPlayers(ctx context.Context, roomID uuid.UUID) (int, error)
	UpdateScore(ctx context.Context, roomID uuid.UUID, playerID string, score int) error
	SetHost(ctx context.Context, roomID uuid.UUID, playerID string, isHost bool) error
	ResetScores(ctx context.Context, roomID uuid.UUID) error
	DeletePlayer(ctx context.Context, roomID uuid.UUID, playerID string) error
}

// GuessStore owns the append-only guess feed.
type GuessStore interface {
	AppendGuess(ctx context.Context, guess models.Guess) error
	// RecentGuesses returns up to limit guesses, newest first.
	RecentGuesses(ctx context.Context, roomID uuid.UUID, limit int) ([]models.Guess, error)
	ClearGuesses(ctx context.Context, roomID uuid.UUID) error
}

// ChatStore owns the append-only chat feed.
type ChatStore interface {
	AppendChat(ctx context.Context, msg models.ChatMessage) error
	RecentChat(ctx context.Context, roomID uuid.UUID, limit int) ([]models.ChatMessage, error)
}

// Store aggregates every collection the coordinator touches.
type Store interface {
	RoomStore
	PlayerStore
	GuessStore
	ChatStore
}
