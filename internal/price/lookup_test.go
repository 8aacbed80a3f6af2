package price

import (
	"context"
	"errors"
	"testing"
	"time"

	"cryptobroker/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubStore struct {
	ticks map[string]domain.PriceTick
	err   error
	calls int
}

func (s *stubStore) LatestTick(_ context.Context, coinID string) (domain.PriceTick, error) {
	s.calls++
	if s.err != nil {
		return domain.PriceTick{}, s.err
	}
	tick, ok := s.ticks[coinID]
	if !ok {
		return domain.PriceTick{}, domain.ErrNotFound
	}
	return tick, nil
}

type mapCache struct {
	ticks  map[string]domain.PriceTick
	getErr error
}

func (c *mapCache) Get(_ context.Context, coinID string) (domain.PriceTick, bool, error) {
	if c.getErr != nil {
		return domain.PriceTick{}, false, c.getErr
	}
	tick, ok := c.ticks[coinID]
	return tick, ok, nil
}

func (c *mapCache) Set(_ context.Context, tick domain.PriceTick) error {
	c.ticks[tick.CoinID] = tick
	return nil
}

func tick(coin, price string) domain.PriceTick {
	return domain.PriceTick{CoinID: coin, AsOf: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Price: decimal.RequireFromString(price)}
}

// go test -v --run TestLatestPrice
func TestLatestPrice(t *testing.T) {
	ctx := context.Background()
	store := &stubStore{ticks: map[string]domain.PriceTick{
		"bitcoin": tick("bitcoin", "43000.5"),
		"dead":    tick("dead", "0"),
		"broken":  tick("broken", "-1"),
	}}
	lookup := NewLookup(store, zap.NewNop())

	got, err := lookup.LatestPrice(ctx, "bitcoin")
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.RequireFromString("43000.5")))

	_, err = lookup.LatestPrice(ctx, "dead")
	assert.ErrorIs(t, err, domain.ErrNonPositivePrice)

	_, err = lookup.LatestPrice(ctx, "broken")
	assert.ErrorIs(t, err, domain.ErrNonPositivePrice)

	_, err = lookup.LatestPrice(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// go test -v --run TestLatestPriceStoreFailure
func TestLatestPriceStoreFailure(t *testing.T) {
	lookup := NewLookup(&stubStore{err: errors.New("conn closed")}, zap.NewNop())

	_, err := lookup.LatestPrice(context.Background(), "bitcoin")
	assert.ErrorIs(t, err, domain.ErrPersistence)
}

// go test -v --run TestLatestPriceCache
func TestLatestPriceCache(t *testing.T) {
	ctx := context.Background()
	store := &stubStore{ticks: map[string]domain.PriceTick{"bitcoin": tick("bitcoin", "100")}}
	cache := &mapCache{ticks: map[string]domain.PriceTick{}}
	lookup := NewLookup(store, zap.NewNop(), WithCache(cache))

	for i := 0; i < 3; i++ {
		got, err := lookup.LatestPrice(ctx, "bitcoin")
		require.NoError(t, err)
		assert.True(t, got.Equal(decimal.NewFromInt(100)))
	}
	assert.Equal(t, 1, store.calls, "only the first call misses the cache")

	// a failing cache falls back to the store
	cache.getErr = errors.New("redis down")
	_, err := lookup.LatestPrice(ctx, "bitcoin")
	require.NoError(t, err)
	assert.Equal(t, 2, store.calls)
}
