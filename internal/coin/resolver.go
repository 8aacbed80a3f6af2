// Package coin turns loosely specified coin keys into a single instrument.
package coin

import (
	"context"
	"fmt"

	"cryptobroker/internal/domain"

	"go.uber.org/zap"
)

// DefaultListLimit caps ListCurrencies when the caller passes no limit.
const DefaultListLimit = 200

// Store reads the latest-price projection of the currency snapshots.
type Store interface {
	// LookupLatest returns the current record of every instrument matching p.
	LookupLatest(ctx context.Context, p Predicate) ([]domain.CurrencyRecord, error)
	// ListLatest returns current records ordered by market cap descending.
	ListLatest(ctx context.Context, limit int) ([]domain.CurrencyRecord, error)
}

type Resolver struct {
	store  Store
	logger *zap.Logger
}

func NewResolver(store Store, logger *zap.Logger) *Resolver {
	return &Resolver{store: store, logger: logger}
}

// Resolve returns the one instrument identified by key.
// Zero matches yield domain.ErrNotFound, several yield *domain.AmbiguousError.
func (r *Resolver) Resolve(ctx context.Context, key domain.CoinKey) (domain.CurrencyRecord, error) {
	p, err := PredicateFor(key)
	if err != nil {
		return domain.CurrencyRecord{}, err
	}

	matches, err := r.store.LookupLatest(ctx, p)
	if err != nil {
		r.logger.Error("coin lookup failed", zap.Stringer("predicate", p), zap.Error(err))
		return domain.CurrencyRecord{}, domain.Persist("lookup coin", err)
	}

	switch len(matches) {
	case 0:
		return domain.CurrencyRecord{}, fmt.Errorf("coin %s: %w", p, domain.ErrNotFound)
	case 1:
		r.logger.Debug("coin resolved", zap.Stringer("predicate", p), zap.String("id", matches[0].ID))
		return matches[0], nil
	}

	r.logger.Debug("coin key is ambiguous", zap.Stringer("predicate", p), zap.Int("candidates", len(matches)))
	return domain.CurrencyRecord{}, &domain.AmbiguousError{Key: key, Candidates: matches}
}

// List returns the current snapshot of the largest instruments by market cap.
func (r *Resolver) List(ctx context.Context, limit int) ([]domain.CurrencyRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	list, err := r.store.ListLatest(ctx, limit)
	if err != nil {
		return nil, domain.Persist("list currencies", err)
	}
	return list, nil
}
