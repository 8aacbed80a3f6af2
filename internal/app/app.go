// Package app wires configuration, storage and the broker services together.
package app

import (
	"context"
	"fmt"
	"time"

	"cryptobroker/config"
	"cryptobroker/internal/coin"
	"cryptobroker/internal/domain"
	"cryptobroker/internal/ledger"
	"cryptobroker/internal/perf"
	"cryptobroker/internal/portfolio"
	"cryptobroker/internal/price"
	"cryptobroker/pkg/cache/pricecache"
	"cryptobroker/pkg/storage/memory"
	"cryptobroker/pkg/storage/postgres"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Storage is everything the services need from a backend.
type Storage interface {
	coin.Store
	price.Store
	ledger.Store
	perf.TickStore
	portfolio.Store
	InsertCurrency(ctx context.Context, rec domain.CurrencyRecord) error
}

type App struct {
	Config *config.Config
	Logger *zap.Logger

	Storage   Storage
	Coins     *coin.Resolver
	Ledger    *ledger.Ledger
	Candles   *perf.Aggregator
	Portfolio *portfolio.View

	prices  *pricecache.RedisCache
	closers []func() error
}

type Option func(*options)

type options struct {
	storage Storage
	clock   func() time.Time
}

// WithStorage skips opening the configured driver and uses s instead.
func WithStorage(s Storage) Option {
	return func(o *options) { o.storage = s }
}

// WithClock sets the ledger time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	reward, err := decimal.NewFromString(cfg.Ledger.DailyReward)
	if err != nil {
		return nil, fmt.Errorf("daily reward %q: %w", cfg.Ledger.DailyReward, err)
	}

	a := &App{Config: cfg, Logger: logger, Storage: o.storage}
	if a.Storage == nil {
		if err := a.openStorage(ctx); err != nil {
			return nil, err
		}
	}

	// trades always price from storage; reports may read through the cache
	direct := price.NewLookup(a.Storage, logger.Named("price"))
	reporting := direct
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, rdb.Close)

		a.prices = pricecache.New(rdb, cfg.Redis.PriceTTL, logger.Named("pricecache"))
		if err := a.prices.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, prices will be read from storage", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		reporting = price.NewLookup(a.Storage, logger.Named("price"), price.WithCache(a.prices))
	}

	ledgerOpts := []ledger.Option{ledger.WithDailyReward(reward)}
	if o.clock != nil {
		ledgerOpts = append(ledgerOpts, ledger.WithClock(o.clock))
	}

	a.Coins = coin.NewResolver(a.Storage, logger.Named("coin"))
	a.Ledger = ledger.New(a.Storage, direct, logger.Named("ledger"), ledgerOpts...)
	a.Candles = perf.NewAggregator(a.Storage, logger.Named("perf"))
	a.Portfolio = portfolio.NewView(a.Storage, reporting, logger.Named("portfolio"))
	return a, nil
}

func (a *App) openStorage(ctx context.Context) error {
	switch a.Config.Storage.Driver {
	case "memory":
		a.Logger.Info("using in-memory storage")
		a.Storage = memory.NewStore()
		return nil
	case "postgres":
		client, err := postgres.InitializeAndMigrate(ctx, a.Config.Postgres, a.Config.App.Environment,
			a.Config.Storage.CreateDB, a.Config.Storage.AutoMigrate)
		if err != nil {
			return fmt.Errorf("failed to connect to DB: %w", err)
		}
		a.Logger.Info("connected to postgres", zap.String("host", a.Config.Postgres.Host), zap.String("db", a.Config.Postgres.DBName))
		a.Storage = client
		a.closers = append(a.closers, client.Close)
		return nil
	}
	return fmt.Errorf("unknown storage driver %q", a.Config.Storage.Driver)
}

type healthChecker interface {
	IsHealthy(ctx context.Context) bool
}

// Healthy reports whether the storage backend answers. Backends without a
// connection to check are always healthy.
func (a *App) Healthy(ctx context.Context) bool {
	hc, ok := a.Storage.(healthChecker)
	if !ok {
		return true
	}
	return hc.IsHealthy(ctx)
}

// Close releases connections in reverse order of opening.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}

// Buy resolves key to one instrument and buys qty of it for userID.
func (a *App) Buy(ctx context.Context, key domain.CoinKey, qty decimal.Decimal, userID string) (int64, domain.CurrencyRecord, error) {
	c, err := a.Coins.Resolve(ctx, key)
	if err != nil {
		return 0, c, err
	}
	id, err := a.Ledger.Buy(ctx, c.ID, qty, userID)
	return id, c, err
}

// Sell resolves key to one instrument and sells qty of it for userID.
func (a *App) Sell(ctx context.Context, key domain.CoinKey, qty decimal.Decimal, userID string) (int64, domain.CurrencyRecord, error) {
	c, err := a.Coins.Resolve(ctx, key)
	if err != nil {
		return 0, c, err
	}
	id, err := a.Ledger.Sell(ctx, c.ID, qty, userID)
	return id, c, err
}

// Candlesticks resolves key and summarizes its ticks in [start, end].
func (a *App) Candlesticks(ctx context.Context, key domain.CoinKey, start, end time.Time, g perf.Granularity) ([]domain.Candlestick, error) {
	c, err := a.Coins.Resolve(ctx, key)
	if err != nil {
		return nil, err
	}
	return a.Candles.GetCandlesticks(ctx, start, end, c.ID, g)
}

// ListCurrencies returns the largest instruments, capped by the configured list limit.
func (a *App) ListCurrencies(ctx context.Context) ([]domain.CurrencyRecord, error) {
	return a.Coins.List(ctx, a.Config.Ledger.ListLimit)
}

// ImportCurrencies stores snapshot rows and returns how many were accepted.
// Cached prices of the imported coins are dropped so reports see the new rows.
func (a *App) ImportCurrencies(ctx context.Context, recs []domain.CurrencyRecord) (int, error) {
	n := 0
	touched := make(map[string]struct{})
	defer a.invalidatePrices(ctx, touched)

	for _, rec := range recs {
		if rec.ID == "" || rec.AsOf.IsZero() {
			a.Logger.Warn("skipping snapshot without id or timestamp", zap.String("id", rec.ID))
			continue
		}
		if err := a.Storage.InsertCurrency(ctx, rec); err != nil {
			return n, domain.Persist("import currency", err)
		}
		touched[rec.ID] = struct{}{}
		n++
	}
	a.Logger.Info("currencies imported", zap.Int("rows", n), zap.Int("skipped", len(recs)-n))
	return n, nil
}

func (a *App) invalidatePrices(ctx context.Context, coinIDs map[string]struct{}) {
	if a.prices == nil {
		return
	}
	for id := range coinIDs {
		if err := a.prices.Invalidate(ctx, id); err != nil {
			a.Logger.Warn("price cache invalidation failed", zap.String("coin", id), zap.Error(err))
		}
	}
}
