package postgres

import (
	"context"
	"fmt"
	"time"

	"cryptobroker/internal/domain"
	"cryptobroker/internal/ledger"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const signedQty = "CASE WHEN buy_sell_indicator = 'B' THEN qty ELSE -qty END"
const signedCost = "CASE WHEN buy_sell_indicator = 'B' THEN cost ELSE -cost END"

func onConflictNothing(columns ...string) clause.OnConflict {
	cols := make([]clause.Column, len(columns))
	for i, c := range columns {
		cols[i] = clause.Column{Name: c}
	}
	return clause.OnConflict{Columns: cols, DoNothing: true}
}

// WithWalletLock runs fn inside a database transaction holding SELECT ... FOR UPDATE
// on the wallet row of userID. Unfunded users have no row to lock; callers that
// need the lock for them create the row with EnsureWallet first.
func (p *PostgresClient) WithWalletLock(ctx context.Context, userID string, fn func(tx ledger.WalletTx) error) error {
	var fnErr error
	err := p.DB.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		var rows []WalletRecord
		if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).
			Limit(1).
			Find(&rows).Error; err != nil {
			return fmt.Errorf("lock wallet %s: %w", userID, err)
		}

		tx := &walletTx{db: db, userID: userID}
		if len(rows) == 1 {
			tx.state = ledger.WalletState{
				Exists:     true,
				Balance:    rows[0].WalletBalance,
				RewardedAt: rows[0].RewardedAt,
			}
		}

		if fnErr = fn(tx); fnErr != nil {
			return fnErr
		}

		// an abandoned unit of work must not commit
		return ctx.Err()
	})
	if err == nil {
		return nil
	}
	if fnErr != nil && err == fnErr {
		return fnErr
	}
	return domain.Persist("wallet transaction", err)
}

type walletTx struct {
	db     *gorm.DB
	userID string
	state  ledger.WalletState
}

func (t *walletTx) Wallet() ledger.WalletState { return t.state }

func (t *walletTx) Holding(coinID string) (decimal.Decimal, error) {
	var held decimal.NullDecimal
	err := t.db.Model(&TransactionRecord{}).
		Select("COALESCE(SUM("+signedQty+"), 0)").
		Where("user_id = ? AND crypto_id = ?", t.userID, coinID).
		Row().
		Scan(&held)
	if err != nil {
		return decimal.Zero, domain.Persist("holding", err)
	}
	return held.Decimal, nil
}

func (t *walletTx) UpdateWallet(balance decimal.Decimal, rewardedAt *time.Time) error {
	rec := WalletRecord{
		UserID:        t.userID,
		WalletBalance: decimal.NewNullDecimal(balance),
		RewardedAt:    t.state.RewardedAt,
	}
	update := []string{"wallet_balance"}
	if rewardedAt != nil {
		at := rewardedAt.UTC()
		rec.RewardedAt = &at
		update = append(update, "rewarded_at")
	}

	err := t.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns(update),
	}).Create(&rec).Error
	if err != nil {
		return domain.Persist("update wallet", err)
	}

	t.state.Exists = true
	t.state.Balance = rec.WalletBalance
	t.state.RewardedAt = rec.RewardedAt
	return nil
}

func (t *walletTx) AppendTransaction(tr domain.Transaction) (int64, error) {
	rec := TransactionRecord{
		UserID:           tr.UserID,
		CryptoID:         tr.CoinID,
		Qty:              tr.Qty,
		Cost:             tr.Cost,
		BuySellIndicator: string(tr.Side),
		CreatedAt:        tr.Timestamp.UTC(),
	}
	if err := t.db.Create(&rec).Error; err != nil {
		return 0, domain.Persist("append transaction", err)
	}
	return rec.ID, nil
}

func (p *PostgresClient) EnsureWallet(ctx context.Context, userID string) error {
	rec := WalletRecord{UserID: userID, WalletBalance: decimal.NewNullDecimal(decimal.Zero)}
	if err := p.DB.WithContext(ctx).Clauses(onConflictNothing("user_id")).Create(&rec).Error; err != nil {
		return fmt.Errorf("ensure wallet %s: %w", userID, err)
	}
	return nil
}

func (p *PostgresClient) Wallet(ctx context.Context, userID string) (domain.Wallet, error) {
	var rows []WalletRecord
	if err := p.DB.WithContext(ctx).Where("user_id = ?", userID).Limit(1).Find(&rows).Error; err != nil {
		return domain.Wallet{}, fmt.Errorf("wallet %s: %w", userID, err)
	}
	if len(rows) == 0 {
		return domain.Wallet{}, domain.ErrNotFound
	}
	return domain.Wallet{UserID: userID, Balance: rows[0].WalletBalance.Decimal}, nil
}

// Transactions returns the committed trade log of userID, oldest first.
func (p *PostgresClient) Transactions(ctx context.Context, userID string) ([]domain.Transaction, error) {
	var rows []TransactionRecord
	if err := p.DB.WithContext(ctx).Where("user_id = ?", userID).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("transactions %s: %w", userID, err)
	}

	out := make([]domain.Transaction, len(rows))
	for i, r := range rows {
		out[i] = domain.Transaction{
			ID:        r.ID,
			UserID:    r.UserID,
			CoinID:    r.CryptoID,
			Qty:       r.Qty,
			Cost:      r.Cost,
			Side:      domain.Side(r.BuySellIndicator),
			Timestamp: r.CreatedAt.UTC(),
		}
	}
	return out, nil
}
