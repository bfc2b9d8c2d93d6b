package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/Satelliteq/PixelHunt-sub000/internal/dbconfig"
)

// setupDatabase opens the pgx pool the store runs on plus a plain
// database/sql handle for the LISTEN/NOTIFY listener, which needs
// lib/pq semantics.
func setupDatabase(ctx context.Context, cfg dbconfig.Config) (*pgxpool.Pool, *sql.DB, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	listenerDB, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to open listener connection: %w", err)
	}
	if err := listenerDB.PingContext(ctx); err != nil {
		pool.Close()
		listenerDB.Close()
		return nil, nil, fmt.Errorf("failed to ping listener connection: %w", err)
	}

	log.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Database).
		Msg("connected to database")

	return pool, listenerDB, nil
}
