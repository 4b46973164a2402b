// Package cache provides the shared redis client.
package cache

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/entitlepool/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("cache",
	fx.Provide(NewRedisClient),
)

// NewRedisClient returns nil when no redis address is configured; callers
// then run without a shared cache.
func NewRedisClient(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*redis.Client, error) {
	if cfg.RedisAddr == "" {
		log.Info("redis disabled, catalog cache off")
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})

	log.Info("redis connected", zap.String("addr", cfg.RedisAddr), zap.Int("db", cfg.RedisDB))
	return client, nil
}
