package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Satelliteq/PixelHunt-sub000/internal/models"
)

//go:embed schema.sql
var schemaSQL string

// NotifyChannel is the Postgres NOTIFY channel carrying room ids after
// every room-document write. The change listener LISTENs here and
// republishes snapshots on the realtime bus.
const NotifyChannel = "room_events"

// Postgres is the production Store backed by a pgx pool. Every room
// transition is a single UPDATE statement, so concurrent readers see
// either the whole transition or none of it.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Postgres store on an existing pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// EnsureSchema creates the coordinator's tables if they do not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

func (p *Postgres) CreateRoom(ctx context.Context, room models.Room) error {
	settings, err := json.Marshal(room.Settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	var question []byte
	if room.CurrentQuestion != nil {
		question, err = json.Marshal(room.CurrentQuestion)
		if err != nil {
			return fmt.Errorf("failed to marshal current question: %w", err)
		}
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO rooms (id, name, host_id, status, settings, test_id,
			current_question_index, total_questions, countdown, current_question)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		room.ID, room.Name, room.HostID, room.Status, settings, room.TestID,
		room.CurrentQuestionIndex, room.TotalQuestions, room.Countdown, question,
	)
	if err != nil {
		return fmt.Errorf("failed to create room: %w", err)
	}
	return p.notify(ctx, room.ID)
}

func (p *Postgres) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, name, host_id, status, settings, test_id,
			current_question_index, total_questions, countdown, current_question,
			created_at, updated_at
		FROM rooms WHERE id = $1`, id)
	return scanRoom(row)
}

func (p *Postgres) ApplyTransition(ctx context.Context, id uuid.UUID, tr RoomTransition) (*models.Room, error) {
	sets := []string{"updated_at = now()"}
	args := []any{id}

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if tr.Name != nil {
		add("name", *tr.Name)
	}
	if tr.HostID != nil {
		add("host_id", *tr.HostID)
	}
	if tr.Status != nil {
		add("status", *tr.Status)
	}
	if tr.Settings != nil {
		settings, err := json.Marshal(tr.Settings)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal settings: %w", err)
		}
		add("settings", settings)
	}
	if tr.CurrentQuestionIndex != nil {
		add("current_question_index", *tr.CurrentQuestionIndex)
	}
	if tr.TotalQuestions != nil {
		add("total_questions", *tr.TotalQuestions)
	}
	if tr.Countdown != nil {
		add("countdown", *tr.Countdown)
	}
	if tr.CurrentQuestion != nil {
		question, err := json.Marshal(tr.CurrentQuestion)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal current question: %w", err)
		}
		add("current_question", question)
	} else if tr.ClearCurrentQuestion {
		sets = append(sets, "current_question = NULL")
	}

	query := fmt.Sprintf(`
		UPDATE rooms SET %s WHERE id = $1
		RETURNING id, name, host_id, status, settings, test_id,
			current_question_index, total_questions, countdown, current_question,
			created_at, updated_at`, strings.Join(sets, ", "))

	room, err := scanRoom(p.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, err
	}
	if err := p.notify(ctx, id); err != nil {
		return nil, err
	}
	return room, nil
}

func (p *Postgres) DeleteRoom(ctx context.Context, id uuid.UUID) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM rooms WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete room: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRoomNotFound
	}
	_, _ = p.pool.Exec(ctx, `DELETE FROM guesses WHERE room_id = $1`, id)
	_, _ = p.pool.Exec(ctx, `DELETE FROM chat_messages WHERE room_id = $1`, id)
	return p.notify(ctx, id)
}

func (p *Postgres) CreatePlayer(ctx context.Context, player models.Player) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO players (room_id, player_id, display_name, avatar_url, score, is_host, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		player.RoomID, player.PlayerID, player.DisplayName, player.AvatarURL,
		player.Score, player.IsHost, player.JoinedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create player: %w", err)
	}
	return nil
}

func (p *Postgres) GetPlayer(ctx context.Context, roomID uuid.UUID, playerID string) (*models.Player, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT room_id, player_id, display_name, avatar_url, score, is_host, joined_at
		FROM players WHERE room_id = $1 AND player_id = $2`, roomID, playerID)

	var player models.Player
	err := row.Scan(&player.RoomID, &player.PlayerID, &player.DisplayName,
		&player.AvatarURL, &player.Score, &player.IsHost, &player.JoinedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPlayerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get player: %w", err)
	}
	return &player, nil
}

func (p *Postgres) ListPlayers(ctx context.Context, roomID uuid.UUID) ([]models.Player, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT room_id, player_id, display_name, avatar_url, score, is_host, joined_at
		FROM players WHERE room_id = $1 ORDER BY joined_at ASC, player_id ASC`, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}
	defer rows.Close()

	var players []models.Player
	for rows.Next() {
		var player models.Player
		if err := rows.Scan(&player.RoomID, &player.PlayerID, &player.DisplayName,
			&player.AvatarURL, &player.Score, &player.IsHost, &player.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan player: %w", err)
		}
		players = append(players, player)
	}
	return players, rows.Err()
}

func (p *Postgres) CountPlayers(ctx context.Context, roomID uuid.UUID) (int, error) {
	var count int
	err := p.pool.QueryRow(ctx, `SELECT count(*) FROM players WHERE room_id = $1`, roomID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count players: %w", err)
	}
	return count, nil
}

func (p *Postgres) UpdateScore(ctx context.Context, roomID uuid.UUID, playerID string, score int) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE players SET score = $3 WHERE room_id = $1 AND player_id = $2`,
		roomID, playerID, score)
	if err != nil {
		return fmt.Errorf("failed to update score: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPlayerNotFound
	}
	return nil
}

func (p *Postgres) SetHost(ctx context.Context, roomID uuid.UUID, playerID string, isHost bool) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE players SET is_host = $3 WHERE room_id = $1 AND player_id = $2`,
		roomID, playerID, isHost)
	if err != nil {
		return fmt.Errorf("failed to set host flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPlayerNotFound
	}
	return nil
}

func (p *Postgres) ResetScores(ctx context.Context, roomID uuid.UUID) error {
	if _, err := p.pool.Exec(ctx, `UPDATE players SET score = 0 WHERE room_id = $1`, roomID); err != nil {
		return fmt.Errorf("failed to reset scores: %w", err)
	}
	return nil
}

func (p *Postgres) DeletePlayer(ctx context.Context, roomID uuid.UUID, playerID string) error {
	tag, err := p.pool.Exec(ctx, `
		DELETE FROM players WHERE room_id = $1 AND player_id = $2`, roomID, playerID)
	if err != nil {
		return fmt.Errorf("failed to delete player: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPlayerNotFound
	}
	return nil
}

func (p *Postgres) AppendGuess(ctx context.Context, guess models.Guess) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO guesses (id, room_id, player_id, display_name, text, is_correct, is_close, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		guess.ID, guess.RoomID, guess.PlayerID, guess.DisplayName,
		guess.Text, guess.IsCorrect, guess.IsClose, guess.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append guess: %w", err)
	}
	return nil
}

func (p *Postgres) RecentGuesses(ctx context.Context, roomID uuid.UUID, limit int) ([]models.Guess, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, room_id, player_id, display_name, text, is_correct, is_close, created_at
		FROM guesses WHERE room_id = $1 ORDER BY created_at DESC LIMIT $2`, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent guesses: %w", err)
	}
	defer rows.Close()

	var guesses []models.Guess
	for rows.Next() {
		var guess models.Guess
		if err := rows.Scan(&guess.ID, &guess.RoomID, &guess.PlayerID, &guess.DisplayName,
			&guess.Text, &guess.IsCorrect, &guess.IsClose, &guess.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan guess: %w", err)
		}
		guesses = append(guesses, guess)
	}
	return guesses, rows.Err()
}

func (p *Postgres) ClearGuesses(ctx context.Context, roomID uuid.UUID) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM guesses WHERE room_id = $1`, roomID); err != nil {
		return fmt.Errorf("failed to clear guesses: %w", err)
	}
	return nil
}

func (p *Postgres) AppendChat(ctx context.Context, msg models.ChatMessage) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO chat_messages (id, room_id, player_id, display_name, text, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, msg.RoomID, msg.PlayerID, msg.DisplayName, msg.Text, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append chat message: %w", err)
	}
	return nil
}

func (p *Postgres) RecentChat(ctx context.Context, roomID uuid.UUID, limit int) ([]models.ChatMessage, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, room_id, player_id, display_name, text, created_at
		FROM chat_messages WHERE room_id = $1 ORDER BY created_at DESC LIMIT $2`, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent chat: %w", err)
	}
	defer rows.Close()

	var msgs []models.ChatMessage
	for rows.Next() {
		var msg models.ChatMessage
		if err := rows.Scan(&msg.ID, &msg.RoomID, &msg.PlayerID, &msg.DisplayName,
			&msg.Text, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// notify publishes the room id on the NOTIFY channel so the change
// listener can fan the new document out to subscribed clients.
func (p *Postgres) notify(ctx context.Context, roomID uuid.UUID) error {
	if _, err := p.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, NotifyChannel, roomID.String()); err != nil {
		return fmt.Errorf("failed to notify room change: %w", err)
	}
	return nil
}

func scanRoom(row pgx.Row) (*models.Room, error) {
	var (
		room     models.Room
		settings []byte
		question []byte
	)
	err := row.Scan(&room.ID, &room.Name, &room.HostID, &room.Status, &settings,
		&room.TestID, &room.CurrentQuestionIndex, &room.TotalQuestions,
		&room.Countdown, &question, &room.CreatedAt, &room.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan room: %w", err)
	}
	if err := json.Unmarshal(settings, &room.Settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	if len(question) > 0 {
		var q models.Question
		if err := json.Unmarshal(question, &q); err != nil {
			return nil, fmt.Errorf("failed to unmarshal current question: %w", err)
		}
		room.CurrentQuestion = &q
	}
	return &room, nil
}
