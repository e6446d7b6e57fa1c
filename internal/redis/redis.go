package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/kiosksync/internal/config"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/model"
)

const keyPrefix = "kiosksync:marker:"

// InitRedis connects and pings the configured server.
func InitRedis(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Address, err)
	}
	log.Info().Str("addr", cfg.Address).Msg("connected to redis")
	return client, nil
}

// MarkerCache keeps the current loop marker per scope for a short TTL.
type MarkerCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewMarkerCache(rdb redis.Cmdable, ttl time.Duration) *MarkerCache {
	return &MarkerCache{rdb: rdb, ttl: ttl}
}

func markerKey(scope model.Scope) string {
	return keyPrefix + string(scope.Kind) + ":" + strconv.FormatInt(scope.ID, 10)
}

func (c *MarkerCache) GetMarker(ctx context.Context, scope model.Scope) (int64, bool, error) {
	v, err := c.rdb.Get(ctx, markerKey(scope)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

func (c *MarkerCache) SetMarker(ctx context.Context, scope model.Scope, marker int64) error {
	return c.rdb.Set(ctx, markerKey(scope), marker, c.ttl).Err()
}

func (c *MarkerCache) InvalidateMarker(ctx context.Context, scope model.Scope) error {
	return c.rdb.Del(ctx, markerKey(scope)).Err()
}
