package docstore

import (
	"context"
	"fmt"
	"path/filepath"

	"eng-metrics/internal/errdefs"

	"github.com/rs/zerolog/log"
)

// Backend names accepted by Open.
const (
	BackendFile     = "file"
	BackendBadger   = "badger"
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config selects and configures a backend.
type Config struct {
	Backend     string
	Dir         string
	PostgresDSN string
	Redis       RedisConfig
}

// Open creates the Store selected by cfg.Backend.
func Open(ctx context.Context, cfg Config) (Store, error) {
	log.Debug().Str("backend", cfg.Backend).Msg("Opening document store")

	switch cfg.Backend {
	case BackendFile, "":
		return NewFileStore(cfg.Dir)
	case BackendBadger:
		return OpenBadgerStore(filepath.Join(cfg.Dir, "badger"))
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres backend requires POSTGRES_DSN: %w", errdefs.ErrConfiguration)
		}
		return OpenPostgresStore(ctx, cfg.PostgresDSN)
	case BackendRedis:
		if cfg.Redis.Addr == "" {
			return nil, fmt.Errorf("redis backend requires REDIS_ADDR: %w", errdefs.ErrConfiguration)
		}
		return OpenRedisStore(ctx, cfg.Redis)
	default:
		return nil, fmt.Errorf("unknown store backend %q: %w", cfg.Backend, errdefs.ErrConfiguration)
	}
}
