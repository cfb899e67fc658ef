package cache

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Tom-Camp/fe/internal/config"
	"github.com/Tom-Camp/fe/internal/db"
	"github.com/Tom-Camp/fe/internal/migrate"
)

// Open builds the backend selected by cfg.CacheBackend.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (Backend, error) {
	switch cfg.CacheBackend {
	case config.CacheMemory, "":
		return NewMemory(nil), nil
	case config.CacheNone:
		return None{}, nil
	case config.CacheRedis:
		return NewRedis(ctx, RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	case config.CacheSQLite:
		conn, err := db.Open(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		if err := migrate.Run(ctx, conn, logger); err != nil {
			_ = db.Close(conn)
			return nil, fmt.Errorf("migrate: %w", err)
		}
		s := NewSQLite(conn, nil)
		s.ownsDB = true
		return s, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}
