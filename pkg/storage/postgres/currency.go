package postgres

import (
	"context"
	"fmt"
	"time"

	"cryptobroker/internal/coin"
	"cryptobroker/internal/domain"

	"gorm.io/gorm"
)

// latest selects the newest cryptodata row of every instrument.
func (p *PostgresClient) latest(ctx context.Context) *gorm.DB {
	ranked := p.DB.Model(&CryptoDataRecord{}).
		Select("*, ROW_NUMBER() OVER (PARTITION BY id ORDER BY as_of DESC) AS rn")
	return p.DB.WithContext(ctx).Table("(?) AS ranked", ranked).Where("rn = 1")
}

func (p *PostgresClient) LookupLatest(ctx context.Context, pred coin.Predicate) ([]domain.CurrencyRecord, error) {
	q := p.latest(ctx)
	if pred.Field.CaseInsensitive() {
		q = q.Where(fmt.Sprintf("LOWER(%s) = LOWER(?)", pred.Field.Column()), pred.Value)
	} else {
		q = q.Where(fmt.Sprintf("%s = ?", pred.Field.Column()), pred.Value)
	}

	var rows []CryptoDataRecord
	if err := q.Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("lookup %s: %w", pred, err)
	}
	return toCurrencies(rows), nil
}

func (p *PostgresClient) ListLatest(ctx context.Context, limit int) ([]domain.CurrencyRecord, error) {
	q := p.latest(ctx).Order("market_cap DESC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []CryptoDataRecord
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list currencies: %w", err)
	}
	return toCurrencies(rows), nil
}

func (p *PostgresClient) LatestTick(ctx context.Context, coinID string) (domain.PriceTick, error) {
	var rows []CryptoDataRecord
	err := p.DB.WithContext(ctx).
		Where("id = ?", coinID).
		Order("as_of DESC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return domain.PriceTick{}, fmt.Errorf("latest tick %s: %w", coinID, err)
	}
	if len(rows) == 0 {
		return domain.PriceTick{}, domain.ErrNotFound
	}
	return domain.PriceTick{CoinID: rows[0].ID, AsOf: rows[0].AsOf.UTC(), Price: rows[0].Price}, nil
}

// Ticks returns the rows of coinID with asOf in [start, end], oldest first.
func (p *PostgresClient) Ticks(ctx context.Context, coinID string, start, end time.Time) ([]domain.PriceTick, error) {
	var rows []CryptoDataRecord
	err := p.DB.WithContext(ctx).
		Select("id", "as_of", "price").
		Where("id = ? AND as_of >= ? AND as_of <= ?", coinID, start.UTC(), end.UTC()).
		Order("as_of ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("ticks %s: %w", coinID, err)
	}

	out := make([]domain.PriceTick, len(rows))
	for i, r := range rows {
		out[i] = domain.PriceTick{CoinID: r.ID, AsOf: r.AsOf.UTC(), Price: r.Price}
	}
	return out, nil
}

// InsertCurrency stores one snapshot. Re-inserting the same (id, asOf) is a no-op.
func (p *PostgresClient) InsertCurrency(ctx context.Context, c domain.CurrencyRecord) error {
	rec := ToCryptoDataRecord(c)
	return p.DB.WithContext(ctx).Clauses(onConflictNothing("id", "as_of")).Create(rec).Error
}

func toCurrencies(rows []CryptoDataRecord) []domain.CurrencyRecord {
	out := make([]domain.CurrencyRecord, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out
}
