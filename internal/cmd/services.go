package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"

	"github.com/Satelliteq/PixelHunt-sub000/internal/gateway"
	"github.com/Satelliteq/PixelHunt-sub000/internal/questions"
	"github.com/Satelliteq/PixelHunt-sub000/internal/realtime"
	"github.com/Satelliteq/PixelHunt-sub000/internal/room"
	"github.com/Satelliteq/PixelHunt-sub000/internal/store"
)

// Services wires the coordinator's components together.
type Services struct {
	Store             *store.Postgres
	Bus               *realtime.NATSBus
	Engine            *room.Engine
	ConnectionManager *gateway.ConnectionManager
	Handler           *gateway.Handler
	Listener          *store.Listener
}

func setupServices(ctx context.Context, config *Config, pool *pgxpool.Pool, listenerDB *sql.DB, dsn string) (*Services, error) {
	st := store.NewPostgres(pool)
	if err := st.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	busConfig := realtime.DefaultNATSBusConfig()
	busConfig.URL = config.NATS.URL
	busConfig.StreamName = config.NATS.StreamName
	bus, err := realtime.NewNATSBus(ctx, busConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create event bus: %w", err)
	}

	bank := questions.NewClient(config.QuestionBank.BaseURL)
	if apiKey := os.Getenv("QUESTION_BANK_API_KEY"); apiKey != "" {
		bank.SetHeader(config.QuestionBank.APIKeyHeader, apiKey)
	}

	clock := clockwork.NewRealClock()
	engine := room.NewEngine(st, bank, bus, clock)

	cm := gateway.NewConnectionManager(engine, st, bus, clock, gateway.DefaultConnectionConfig())
	handler := gateway.NewHandler(engine, cm)

	listenerConfig := store.DefaultListenerConfig()
	listenerConfig.DatabaseURL = dsn
	listener, err := store.NewListener(listenerDB, bus, listenerConfig)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("failed to create change listener: %w", err)
	}

	return &Services{
		Store:             st,
		Bus:               bus,
		Engine:            engine,
		ConnectionManager: cm,
		Handler:           handler,
		Listener:          listener,
	}, nil
}
