// Package price values instruments at their most recent observed price.
package price

import (
	"context"
	"errors"
	"fmt"

	"cryptobroker/internal/domain"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Store returns the newest tick of an instrument (ordered by asOf descending, first row).
// It must return domain.ErrNotFound when the instrument has no price history.
type Store interface {
	LatestTick(ctx context.Context, coinID string) (domain.PriceTick, error)
}

// Cache is an optional read-through layer in front of Store.
type Cache interface {
	Get(ctx context.Context, coinID string) (domain.PriceTick, bool, error)
	Set(ctx context.Context, tick domain.PriceTick) error
}

type Lookup struct {
	store  Store
	cache  Cache
	logger *zap.Logger
}

type Option func(*Lookup)

// WithCache serves prices from c when present and fills it on a miss.
func WithCache(c Cache) Option {
	return func(l *Lookup) { l.cache = c }
}

func NewLookup(store Store, logger *zap.Logger, opts ...Option) *Lookup {
	l := &Lookup{store: store, logger: logger}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LatestPrice returns the most recent price of coinID.
// A price <= 0 cannot value a trade and fails with domain.ErrNonPositivePrice.
func (l *Lookup) LatestPrice(ctx context.Context, coinID string) (decimal.Decimal, error) {
	tick, err := l.latestTick(ctx, coinID)
	if err != nil {
		return decimal.Zero, err
	}
	if !tick.Price.IsPositive() {
		return decimal.Zero, fmt.Errorf("price of %s is %s: %w", coinID, tick.Price, domain.ErrNonPositivePrice)
	}
	return tick.Price, nil
}

func (l *Lookup) latestTick(ctx context.Context, coinID string) (domain.PriceTick, error) {
	if l.cache != nil {
		tick, ok, err := l.cache.Get(ctx, coinID)
		switch {
		case err != nil:
			l.logger.Warn("price cache read failed", zap.String("coin", coinID), zap.Error(err))
		case ok:
			return tick, nil
		}
	}

	tick, err := l.store.LatestTick(ctx, coinID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.PriceTick{}, fmt.Errorf("no price history for %s: %w", coinID, domain.ErrNotFound)
	}
	if err != nil {
		l.logger.Error("latest price query failed", zap.String("coin", coinID), zap.Error(err))
		return domain.PriceTick{}, domain.Persist("latest price", err)
	}

	if l.cache != nil {
		if err := l.cache.Set(ctx, tick); err != nil {
			l.logger.Warn("price cache write failed", zap.String("coin", coinID), zap.Error(err))
		}
	}
	return tick, nil
}
