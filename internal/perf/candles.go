// Package perf summarizes price history into OHLC candlesticks.
package perf

import (
	"context"
	"time"

	"cryptobroker/internal/domain"

	"go.uber.org/zap"
)

// TickStore reads price observations of one instrument with asOf in [start, end], oldest first.
type TickStore interface {
	Ticks(ctx context.Context, coinID string, start, end time.Time) ([]domain.PriceTick, error)
}

// Partition splits ordered ticks into n contiguous buckets of near equal size, NTILE style.
// The first len(ticks)%n buckets hold one extra tick; with fewer ticks than buckets the
// trailing buckets are empty.
func Partition(ticks []domain.PriceTick, n int) [][]domain.PriceTick {
	if n < 1 {
		return nil
	}
	size, extra := len(ticks)/n, len(ticks)%n

	out := make([][]domain.PriceTick, n)
	pos := 0
	for i := range out {
		k := size
		if i < extra {
			k++
		}
		out[i] = ticks[pos : pos+k : pos+k]
		pos += k
	}
	return out
}

// Reduce folds one bucket into a candle. Empty buckets report false.
func Reduce(bucket []domain.PriceTick) (domain.Candlestick, bool) {
	if len(bucket) == 0 {
		return domain.Candlestick{}, false
	}

	first, last := bucket[0], bucket[len(bucket)-1]
	c := domain.Candlestick{
		OpenTime: first.AsOf,
		Open:     first.Price,
		Close:    last.Price,
		Low:      first.Price,
		High:     first.Price,
	}
	for _, t := range bucket[1:] {
		if t.Price.LessThan(c.Low) {
			c.Low = t.Price
		}
		if t.Price.GreaterThan(c.High) {
			c.High = t.Price
		}
	}
	return c, true
}

// Candlesticks reduces a tick sequence into at most n candles ordered by open time.
// Buckets beyond len(ticks) would all be empty, so n is capped there first.
func Candlesticks(ticks []domain.PriceTick, n int) []domain.Candlestick {
	if n > len(ticks) {
		n = len(ticks)
	}
	buckets := Partition(ticks, n)
	out := make([]domain.Candlestick, 0, len(buckets))
	for _, b := range buckets {
		if c, ok := Reduce(b); ok {
			out = append(out, c)
		}
	}
	return out
}

// Aggregator serves candle queries. It only reads and takes no ledger locks.
type Aggregator struct {
	ticks  TickStore
	logger *zap.Logger
}

func NewAggregator(ticks TickStore, logger *zap.Logger) *Aggregator {
	return &Aggregator{ticks: ticks, logger: logger}
}

// GetCandlesticks loads the ticks of coinID in [start, end] and summarizes them at granularity g.
func (a *Aggregator) GetCandlesticks(ctx context.Context, start, end time.Time, coinID string, g Granularity) ([]domain.Candlestick, error) {
	n, err := BucketCount(start, end, g)
	if err != nil {
		return nil, err
	}

	ticks, err := a.ticks.Ticks(ctx, coinID, start, end)
	if err != nil {
		a.logger.Error("tick query failed", zap.String("coin", coinID), zap.Error(err))
		return nil, domain.Persist("load ticks", err)
	}

	candles := Candlesticks(ticks, n)
	a.logger.Debug("candles built",
		zap.String("coin", coinID),
		zap.Stringer("granularity", g),
		zap.Int("buckets", n),
		zap.Int("ticks", len(ticks)),
		zap.Int("candles", len(candles)))
	return candles, nil
}
