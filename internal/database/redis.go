package database

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/corebank/ledger/internal/config"
)

// OpenRedis connects to Redis and verifies the connection with a ping.
func OpenRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Host + ":" + cfg.Port,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return rdb, nil
}
