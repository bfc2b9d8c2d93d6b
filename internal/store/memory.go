package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Satelliteq/PixelHunt-sub000/internal/models"
)

// Memory is an in-process Store used by tests and single-node dev
// setups. It honors the same atomicity contract as the Postgres store:
// a transition mutates the room document under one lock acquisition.
type Memory struct {
	mu      sync.RWMutex
	rooms   map[uuid.UUID]*models.Room
	players map[uuid.UUID]map[string]*models.Player
	guesses map[uuid.UUID][]models.Guess
	chat    map[uuid.UUID][]models.ChatMessage
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		rooms:   make(map[uuid.UUID]*models.Room),
		players: make(map[uuid.UUID]map[string]*models.Player),
		guesses: make(map[uuid.UUID][]models.Guess),
		chat:    make(map[uuid.UUID][]models.ChatMessage),
	}
}

func (m *Memory) CreateRoom(ctx context.Context, room models.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := room
	m.rooms[room.ID] = &r
	return nil
}

func (m *Memory) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	cp := *room
	return &cp, nil
}

func (m *Memory) ApplyTransition(ctx context.Context, id uuid.UUID, tr RoomTransition) (*models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	if tr.Name != nil {
		room.Name = *tr.Name
	}
	if tr.HostID != nil {
		room.HostID = *tr.HostID
	}
	if tr.Status != nil {
		room.Status = *tr.Status
	}
	if tr.Settings != nil {
		room.Settings = *tr.Settings
	}
	if tr.CurrentQuestionIndex != nil {
		room.CurrentQuestionIndex = *tr.CurrentQuestionIndex
	}
	if tr.TotalQuestions != nil {
		room.TotalQuestions = *tr.TotalQuestions
	}
	if tr.Countdown != nil {
		room.Countdown = *tr.Countdown
	}
	if tr.CurrentQuestion != nil {
		q := *tr.CurrentQuestion
		room.CurrentQuestion = &q
	}
	if tr.ClearCurrentQuestion {
		room.CurrentQuestion = nil
	}
	room.UpdatedAt = time.Now()
	cp := *room
	return &cp, nil
}

func (m *Memory) DeleteRoom(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[id]; !ok {
		return ErrRoomNotFound
	}
	delete(m.rooms, id)
	delete(m.players, id)
	delete(m.guesses, id)
	delete(m.chat, id)
	return nil
}

func (m *Memory) CreatePlayer(ctx context.Context, player models.Player) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.players[player.RoomID] == nil {
		m.players[player.RoomID] = make(map[string]*models.Player)
	}
	p := player
	m.players[player.RoomID][player.PlayerID] = &p
	return nil
}

func (m *Memory) GetPlayer(ctx context.Context, roomID uuid.UUID, playerID string) (*models.Player, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	player, ok := m.players[roomID][playerID]
	if !ok {
		return nil, ErrPlayerNotFound
	}
	cp := *player
	return &cp, nil
}

func (m *Memory) ListPlayers(ctx context.Context, roomID uuid.UUID) ([]models.Player, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	players := make([]models.Player, 0, len(m.players[roomID]))
	for _, p := range m.players[roomID] {
		players = append(players, *p)
	}
	sort.Slice(players, func(i, j int) bool {
		if players[i].JoinedAt.Equal(players[j].JoinedAt) {
			return players[i].PlayerID < players[j].PlayerID
		}
		return players[i].JoinedAt.Before(players[j].JoinedAt)
	})
	return players, nil
}

func (m *Memory) CountPlayers(ctx context.Context, roomID uuid.UUID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.players[roomID]), nil
}

func (m *Memory) UpdateScore(ctx context.Context, roomID uuid.UUID, playerID string, score int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	player, ok := m.players[roomID][playerID]
	if !ok {
		return ErrPlayerNotFound
	}
	player.Score = score
	return nil
}

func (m *Memory) SetHost(ctx context.Context, roomID uuid.UUID, playerID string, isHost bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	player, ok := m.players[roomID][playerID]
	if !ok {
		return ErrPlayerNotFound
	}
	player.IsHost = isHost
	return nil
}

func (m *Memory) ResetScores(ctx context.Context, roomID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.players[roomID] {
		p.Score = 0
	}
	return nil
}

func (m *Memory) DeletePlayer(ctx context.Context, roomID uuid.UUID, playerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.players[roomID][playerID]; !ok {
		return ErrPlayerNotFound
	}
	delete(m.players[roomID], playerID)
	return nil
}

func (m *Memory) AppendGuess(ctx context.Context, guess models.Guess) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.guesses[guess.RoomID] = append(m.guesses[guess.RoomID], guess)
	return nil
}

func (m *Memory) RecentGuesses(ctx context.Context, roomID uuid.UUID, limit int) ([]models.Guess, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.guesses[roomID]
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}
	recent := make([]models.Guess, 0, limit)
	for i := len(all) - 1; i >= len(all)-limit; i-- {
		recent = append(recent, all[i])
	}
	return recent, nil
}

func (m *Memory) ClearGuesses(ctx context.Context, roomID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.guesses, roomID)
	return nil
}

func (m *Memory) AppendChat(ctx context.Context, msg models.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chat[msg.RoomID] = append(m.chat[msg.RoomID], msg)
	return nil
}

func (m *Memory) RecentChat(ctx context.Context, roomID uuid.UUID, limit int) ([]models.ChatMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.chat[roomID]
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}
	recent := make([]models.ChatMessage, 0, limit)
	for i := len(all) - 1; i >= len(all)-limit; i-- {
		recent = append(recent, all[i])
	}
	return recent, nil
}
