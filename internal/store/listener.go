package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/sqlc-dev/pqtype"

	"github.com/Satelliteq/PixelHunt-sub000/internal/models"
	"github.com/Satelliteq/PixelHunt-sub000/internal/realtime"
)

// ListenerConfig configures the Postgres change listener.
type ListenerConfig struct {
	DatabaseURL      string        // Postgres DSN for LISTEN/NOTIFY
	NotifyChannel    string        // Channel name to LISTEN on
	FallbackInterval time.Duration // How often to poll for missed changes
	PingInterval     time.Duration
}

// DefaultListenerConfig returns the default listener configuration.
func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		NotifyChannel:    NotifyChannel,
		FallbackInterval: 30 * time.Second,
		PingInterval:     90 * time.Second,
	}
}

// Listener bridges the store to the realtime bus across processes: it
// LISTENs for room-document writes, re-fetches the changed document and
// republishes it as a RoomUpdated (or RoomDeleted) event. A fallback
// poll catches notifications lost while the connection was down.
type Listener struct {
	db       *sql.DB
	listener *pq.Listener
	bus      realtime.Bus
	cfg      ListenerConfig
	lastPoll time.Time
}

// NewListener starts LISTENing on the configured channel.
func NewListener(dbConn *sql.DB, bus realtime.Bus, cfg ListenerConfig) (*Listener, error) {
	l := pq.NewListener(
		cfg.DatabaseURL,
		10*time.Second,
		time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("listener event")
			}
		},
	)
	if err := l.Listen(cfg.NotifyChannel); err != nil {
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().
		Str("channel", cfg.NotifyChannel).
		Msg("listening for room changes")

	return &Listener{
		db:       dbConn,
		listener: l,
		bus:      bus,
		cfg:      cfg,
		lastPoll: time.Now(),
	}, nil
}

// Start blocks, relaying room change notifications until ctx ends.
func (l *Listener) Start(ctx context.Context) error {
	log.Info().
		Str("channel", l.cfg.NotifyChannel).
		Dur("ping_interval", l.cfg.PingInterval).
		Dur("fallback_interval", l.cfg.FallbackInterval).
		Msg("room change listener started")

	pingTicker := time.NewTicker(l.cfg.PingInterval)
	fallbackTicker := time.NewTicker(l.cfg.FallbackInterval)
	defer pingTicker.Stop()
	defer fallbackTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("room change listener shutting down")
			return l.Stop()
		case note := <-l.listener.Notify:
			if note == nil {
				// nil notification means the connection was lost and re-established
				continue
			}
			if err := l.handleNotification(ctx, note.Extra); err != nil {
				log.Error().Err(err).Msg("failed to handle room notification")
			}
		case <-fallbackTicker.C:
			if err := l.republishChanged(ctx); err != nil {
				log.Error().Err(err).Msg("failed to republish changed rooms")
			}
		case <-pingTicker.C:
			if err := l.listener.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping listener")
			}
		}
	}
}

// Stop closes the underlying LISTEN connection.
func (l *Listener) Stop() error {
	return l.listener.Close()
}

// handleNotification re-fetches the room named by the notification
// payload and republishes its current document on the bus.
func (l *Listener) handleNotification(ctx context.Context, extra string) error {
	roomID, err := uuid.Parse(extra)
	if err != nil {
		return fmt.Errorf("invalid room ID in notification: %w", err)
	}

	room, err := l.fetchRoom(ctx, roomID)
	if errors.Is(err, ErrRoomNotFound) {
		event, err := realtime.NewEvent(roomID, realtime.EventTypeRoomDeleted,
			realtime.RoomDeletedPayload{RoomID: roomID.String()})
		if err != nil {
			return err
		}
		return l.bus.Publish(ctx, event)
	}
	if err != nil {
		return fmt.Errorf("failed to fetch room: %w", err)
	}

	event, err := realtime.NewEvent(roomID, realtime.EventTypeRoomUpdated,
		realtime.RoomUpdatedPayload{Room: *room})
	if err != nil {
		return err
	}
	if err := l.bus.Publish(ctx, event); err != nil {
		return fmt.Errorf("failed to publish room update: %w", err)
	}

	log.Debug().Str("room_id", roomID.String()).Msg("republished room change")
	return nil
}

// republishChanged publishes every room written since the last poll, in
// case a NOTIFY was lost while the connection was down.
func (l *Listener) republishChanged(ctx context.Context) error {
	since := l.lastPoll
	polledAt := time.Now()

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, name, host_id, status, settings, test_id,
			current_question_index, total_questions, countdown, current_question,
			created_at, updated_at
		FROM rooms WHERE updated_at > $1`, since)
	if err != nil {
		return fmt.Errorf("failed to query changed rooms: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		room, err := scanRoomSQL(rows)
		if err != nil {
			return err
		}
		event, err := realtime.NewEvent(room.ID, realtime.EventTypeRoomUpdated,
			realtime.RoomUpdatedPayload{Room: *room})
		if err != nil {
			return err
		}
		if err := l.bus.Publish(ctx, event); err != nil {
			log.Error().Err(err).Str("room_id", room.ID.String()).Msg("failed to republish room")
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	// Advance the window only once the poll succeeded, so rooms written
	// during a failed poll are retried on the next tick.
	l.lastPoll = polledAt
	return nil
}

func (l *Listener) fetchRoom(ctx context.Context, roomID uuid.UUID) (*models.Room, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT id, name, host_id, status, settings, test_id,
			current_question_index, total_questions, countdown, current_question,
			created_at, updated_at
		FROM rooms WHERE id = $1`, roomID)
	return scanRoomSQL(row)
}

type sqlRow interface {
	Scan(dest ...any) error
}

func scanRoomSQL(row sqlRow) (*models.Room, error) {
	var (
		room     models.Room
		settings []byte
		question pqtype.NullRawMessage
	)
	err := row.Scan(&room.ID, &room.Name, &room.HostID, &room.Status, &settings,
		&room.TestID, &room.CurrentQuestionIndex, &room.TotalQuestions,
		&room.Countdown, &question, &room.CreatedAt, &room.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan room: %w", err)
	}
	if err := json.Unmarshal(settings, &room.Settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	if question.Valid {
		var q models.Question
		if err := json.Unmarshal(question.RawMessage, &q); err != nil {
			return nil, fmt.Errorf("failed to unmarshal current question: %w", err)
		}
		room.CurrentQuestion = &q
	}
	return &room, nil
}
