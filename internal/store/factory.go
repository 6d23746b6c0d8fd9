package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"finance-enricher/internal/common/errors"
	"finance-enricher/internal/config"
	"finance-enricher/internal/redis"
)

// New creates a durable store backend based on configuration.
func New(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.StoreBackend {
	case "sqlite":
		return NewSQLiteStore(cfg.StoreSQLitePath)

	case "redis":
		db, _ := strconv.Atoi(cfg.RedisDB)
		poolSize, _ := strconv.Atoi(cfg.RedisPoolSize)
		client, err := redis.NewClient(&redis.Config{
			Address:  cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       db,
			PoolSize: poolSize,
		})
		if err != nil {
			return nil, err
		}
		return NewRedisStore(client), nil

	case "postgres", "postgresql":
		return NewPostgresStore(ctx, cfg.PostgresURL)

	default:
		return nil, errors.ConfigError(fmt.Sprintf("unsupported store backend: %s", cfg.StoreBackend))
	}
}

// escapeLike escapes LIKE wildcards in a literal prefix. Cache keys contain
// no wildcards today, but the store should not rely on that.
func escapeLike(prefix string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(prefix)
}
