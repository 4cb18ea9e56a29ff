// Package postgres implements the image and group repositories on PostgreSQL with pgvector.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/photo-groups/internal/config"
	"github.com/kozaktomas/photo-groups/internal/database"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

const connectTimeout = 10 * time.Second

// Pool is the connection pool shared by the repositories.
type Pool struct {
	*sql.DB
}

// Open connects to PostgreSQL and verifies the connection.
func Open(ctx context.Context, cfg *config.DatabaseConfig) (*Pool, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, errors.New("database URL is required")
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Pool{DB: db}, nil
}

// Initialize opens the pool, applies pending migrations and registers the repositories
// with the database package. The caller owns the returned pool.
func Initialize(ctx context.Context, cfg *config.DatabaseConfig) (*Pool, error) {
	pool, err := Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	database.RegisterPostgresBackend(
		func() database.ImageWriter { return NewImageRepository(pool) },
		func() database.GroupWriter { return NewGroupRepository(pool) },
	)

	stats := pool.Stats()
	log.Debug().Int("max_open", stats.MaxOpenConnections).Msg("PostgreSQL backend ready")
	return pool, nil
}
