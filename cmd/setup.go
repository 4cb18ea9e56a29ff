package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/photo-groups/internal/cluster"
	"github.com/kozaktomas/photo-groups/internal/config"
	"github.com/kozaktomas/photo-groups/internal/database"
	"github.com/kozaktomas/photo-groups/internal/database/postgres"
	"github.com/kozaktomas/photo-groups/internal/lock"
	"github.com/kozaktomas/photo-groups/internal/similar"
	"github.com/rs/zerolog/log"
)

// app bundles the storage backend and the similar-groups service shared by commands.
type app struct {
	cfg     *config.Config
	pool    *postgres.Pool
	images  database.ImageWriter
	groups  database.GroupWriter
	service *similar.Service
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// setupApp connects to PostgreSQL, runs migrations and builds the service.
func setupApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}

	log.Debug().Msg("Connecting to PostgreSQL database")
	pool, err := postgres.Initialize(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	a := &app{cfg: cfg, pool: pool}
	a.closers = append(a.closers, func() {
		if err := pool.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close database pool")
		}
	})

	images, err := database.GetImageWriter(ctx)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to get image writer: %w", err)
	}
	groups, err := database.GetGroupWriter(ctx)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to get group writer: %w", err)
	}

	locker, err := newLocker(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	if rl, ok := locker.(*lock.RedisLocker); ok {
		a.closers = append(a.closers, rl.Close)
	}

	engine := cluster.NewEngine(cluster.WithApproximateAbove(cfg.Cluster.HNSWThreshold))

	a.images = images
	a.groups = groups
	a.service = similar.NewService(images, groups, engine, locker, cfg.Cluster)
	return a, nil
}

// newLocker uses Redis when REDIS_ADDR is set so that several instances share run locks.
func newLocker(cfg *config.Config) (lock.Locker, error) {
	if cfg.Redis.Addr == "" {
		log.Debug().Msg("Using in-process cluster lock")
		return lock.NewLocalLocker(), nil
	}
	rl, err := lock.NewRedisLocker(cfg.Redis.Addr, cfg.Cluster.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	log.Info().Str("addr", cfg.Redis.Addr).Msg("Using Redis cluster lock")
	return rl, nil
}
