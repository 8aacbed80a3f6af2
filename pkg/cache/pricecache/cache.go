// Package pricecache keeps the latest tick of each coin in Redis.
package pricecache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cryptobroker/internal/domain"
	"cryptobroker/internal/price"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var _ price.Cache = (*RedisCache)(nil)

const DefaultTTL = 30 * time.Second

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// New wraps client. A ttl <= 0 falls back to DefaultTTL; entries always expire
// so a stale price cannot outlive the ingestion feed for long.
func New(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{client: client, ttl: ttl, logger: logger}
}

// Ping checks the connection to the Redis server.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func key(coinID string) string {
	return fmt.Sprintf("price:latest:%s", coinID)
}

func (c *RedisCache) Get(ctx context.Context, coinID string) (domain.PriceTick, bool, error) {
	fields, err := c.client.HGetAll(ctx, key(coinID)).Result()
	if errors.Is(err, redis.Nil) || (err == nil && len(fields) == 0) {
		return domain.PriceTick{}, false, nil
	}
	if err != nil {
		return domain.PriceTick{}, false, err
	}

	p, err := decimal.NewFromString(fields["price"])
	if err != nil {
		c.logger.Warn("could not parse cached price", zap.String("coin", coinID), zap.Error(err))
		return domain.PriceTick{}, false, nil
	}
	asOf, err := time.Parse(time.RFC3339Nano, fields["as_of"])
	if err != nil {
		c.logger.Warn("could not parse cached timestamp", zap.String("coin", coinID), zap.Error(err))
		return domain.PriceTick{}, false, nil
	}
	return domain.PriceTick{CoinID: coinID, AsOf: asOf, Price: p}, true, nil
}

func (c *RedisCache) Set(ctx context.Context, tick domain.PriceTick) error {
	k := key(tick.CoinID)

	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, k,
		"price", tick.Price.String(),
		"as_of", tick.AsOf.UTC().Format(time.RFC3339Nano),
	)
	pipe.Expire(ctx, k, c.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache price of %s: %w", tick.CoinID, err)
	}
	return nil
}

// Invalidate drops the cached tick of coinID.
func (c *RedisCache) Invalidate(ctx context.Context, coinID string) error {
	return c.client.Del(ctx, key(coinID)).Err()
}
