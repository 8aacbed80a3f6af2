package postgres

import (
	"context"
	"fmt"

	"cryptobroker/internal/domain"

	"github.com/shopspring/decimal"
)

type positionRow struct {
	CryptoID string
	Qty      decimal.Decimal
	Cost     decimal.Decimal
}

// Positions aggregates the trade log of userID into open positions, named after the latest snapshot.
func (p *PostgresClient) Positions(ctx context.Context, userID string) ([]domain.Position, error) {
	var rows []positionRow
	err := p.DB.WithContext(ctx).Model(&TransactionRecord{}).
		Select("crypto_id, SUM("+signedQty+") AS qty, SUM("+signedCost+") AS cost").
		Where("user_id = ?", userID).
		Group("crypto_id").
		Having("SUM(" + signedQty + ") > 0").
		Order("crypto_id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("positions %s: %w", userID, err)
	}
	if len(rows) == 0 {
		return []domain.Position{}, nil
	}

	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.CryptoID
	}
	var latest []CryptoDataRecord
	if err := p.latest(ctx).Select("id", "name").Where("id IN ?", ids).Find(&latest).Error; err != nil {
		return nil, fmt.Errorf("position names %s: %w", userID, err)
	}
	names := make(map[string]string, len(latest))
	for _, r := range latest {
		names[r.ID] = r.Name
	}

	out := make([]domain.Position, len(rows))
	for i, r := range rows {
		out[i] = domain.Position{
			UserID:    userID,
			CoinID:    r.CryptoID,
			Name:      names[r.CryptoID],
			Qty:       r.Qty,
			CostBasis: r.Cost,
		}
	}
	return out, nil
}

func (p *PostgresClient) UpdateServerPatrons(ctx context.Context, serverID string, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	recs := make([]ServerPatronRecord, len(userIDs))
	for i, id := range userIDs {
		recs[i] = ServerPatronRecord{ServerID: serverID, UserID: id}
	}
	err := p.DB.WithContext(ctx).
		Clauses(onConflictNothing("server_id", "user_id")).
		Create(&recs).Error
	if err != nil {
		return fmt.Errorf("update patrons of %s: %w", serverID, err)
	}
	return nil
}

type patronRow struct {
	ServerID      string
	UserID        string
	WalletUser    *string
	WalletBalance decimal.NullDecimal
}

func (p *PostgresClient) ServerPatrons(ctx context.Context, serverID string) ([]domain.Patron, error) {
	var rows []patronRow
	err := p.DB.WithContext(ctx).
		Table("server_patrons AS sp").
		Select("sp.server_id, sp.user_id, w.user_id AS wallet_user, w.wallet_balance").
		Joins("LEFT JOIN wallet AS w ON w.user_id = sp.user_id").
		Where("sp.server_id = ?", serverID).
		Order("sp.user_id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("patrons of %s: %w", serverID, err)
	}

	out := make([]domain.Patron, len(rows))
	for i, r := range rows {
		out[i] = domain.Patron{
			ServerID:  r.ServerID,
			UserID:    r.UserID,
			Balance:   r.WalletBalance.Decimal,
			HasWallet: r.WalletUser != nil,
		}
	}
	return out, nil
}
