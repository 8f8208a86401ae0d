// Package app wires configured backends for the binaries.
package app

import (
	"context"
	"fmt"
	"time"

	"shiftbook/internal/config"
	"shiftbook/internal/database"
	"shiftbook/internal/domain"
	"shiftbook/internal/gormstore"
	"shiftbook/internal/metrics"
	"shiftbook/internal/repository"
	"shiftbook/internal/rest"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Store is the opened backend. SQLite is non-nil only for the sqlite backend,
// which is the one that supports file backups and role seeding.
type Store struct {
	domain.Store
	SQLite *database.DB
}

// OpenStore opens the configured backend and wraps it with metrics. redisClient
// may be nil; it only caches REST reads.
func OpenStore(cfg *config.Config, redisClient *redis.Client, logger *zerolog.Logger) (*Store, error) {
	unique := cfg.Booking.UniqueSlot()

	switch cfg.Store.Backend {
	case config.BackendREST:
		c := rest.NewClient(cfg.Store.REST.URL, cfg.Store.REST.APIKey, time.Duration(cfg.Store.REST.Timeout)*time.Second, logger)
		if redisClient != nil {
			c.UseRedisCache(redisClient, time.Duration(cfg.Store.REST.CacheTTL)*time.Second)
		}
		return &Store{Store: metrics.InstrumentStore(c)}, nil

	case config.BackendSQLite:
		db, err := database.NewDB(cfg.Store.SQLite.Path, unique, logger)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", cfg.Store.SQLite.Path, err)
		}
		return &Store{Store: metrics.InstrumentStore(db), SQLite: db}, nil

	case config.BackendPostgres:
		s, err := gormstore.Open(cfg.Store.Postgres, unique, logger)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return &Store{Store: metrics.InstrumentStore(s)}, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}

// OpenRedis returns nil when Redis is not configured or not reachable.
func OpenRedis(ctx context.Context, cfg config.RedisConfig, logger *zerolog.Logger) *redis.Client {
	if cfg.Address == "" {
		return nil
	}
	client := repository.NewRedisClient(cfg)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := repository.Ping(pingCtx, client); err != nil {
		logger.Warn().Err(err).Str("addr", cfg.Address).Msg("redis connection failed, continuing without redis")
		_ = client.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Address).Msg("redis connected")
	return client
}

// SessionRepository prefers Redis and falls back to process memory.
func SessionRepository(redisClient *redis.Client, ttl time.Duration, logger *zerolog.Logger) domain.SessionRepository {
	memory := repository.NewMemorySessionRepository(ttl)
	if redisClient == nil {
		return memory
	}
	return repository.NewFailoverSessionRepository(repository.NewRedisSessionRepository(redisClient, ttl), memory, logger)
}
