// Package ledger performs balance-safe trades against user wallets.
//
// Every mutation runs inside Store.WithWalletLock, so trades of one user are
// serialized while trades of different users proceed concurrently. Nothing is
// cached in process memory between calls.
package ledger

import (
	"context"
	"fmt"
	"time"

	"cryptobroker/internal/domain"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultDailyReward is credited by DailyReward unless overridden.
var DefaultDailyReward = decimal.NewFromInt(100)

// Pricer values a coin at its current price.
type Pricer interface {
	LatestPrice(ctx context.Context, coinID string) (decimal.Decimal, error)
}

type Ledger struct {
	store  Store
	prices Pricer
	logger *zap.Logger
	now    func() time.Time
	reward decimal.Decimal
}

type Option func(*Ledger)

// WithClock overrides the time source used for transaction timestamps and reward days.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithDailyReward sets the amount credited by DailyReward.
func WithDailyReward(amount decimal.Decimal) Option {
	return func(l *Ledger) { l.reward = amount }
}

func New(store Store, prices Pricer, logger *zap.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		prices: prices,
		logger: logger,
		now:    time.Now,
		reward: DefaultDailyReward,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Buy debits qty * current price from the wallet of userID and records a buy.
func (l *Ledger) Buy(ctx context.Context, coinID string, qty decimal.Decimal, userID string) (int64, error) {
	if !qty.IsPositive() {
		return 0, domain.ErrInvalidQuantity
	}

	var txID int64
	var cost decimal.Decimal
	err := l.store.WithWalletLock(ctx, userID, func(tx WalletTx) error {
		w := tx.Wallet()

		price, err := l.prices.LatestPrice(ctx, coinID)
		if err != nil {
			return err
		}

		cost = qty.Mul(price)
		if !w.Balance.Valid || w.Balance.Decimal.Sub(cost).IsNegative() {
			return fmt.Errorf("buy %s %s costs %s: %w", qty, coinID, cost, domain.ErrInsufficientFunds)
		}

		if err := tx.UpdateWallet(w.Balance.Decimal.Sub(cost), nil); err != nil {
			return err
		}
		txID, err = tx.AppendTransaction(domain.Transaction{
			UserID:    userID,
			CoinID:    coinID,
			Qty:       qty,
			Cost:      cost,
			Side:      domain.Buy,
			Timestamp: l.now().UTC(),
		})
		return err
	})
	if err != nil {
		return 0, l.reject("buy", coinID, userID, qty, err)
	}

	l.logger.Info("buy committed",
		zap.Int64("transaction_id", txID),
		zap.String("user", userID),
		zap.String("coin", coinID),
		zap.Stringer("qty", qty),
		zap.Stringer("cost", cost))
	return txID, nil
}

// Sell credits qty * current price to the wallet of userID and records a sell.
// The price is taken at request time, under the same lock as the holdings check.
func (l *Ledger) Sell(ctx context.Context, coinID string, qty decimal.Decimal, userID string) (int64, error) {
	if !qty.IsPositive() {
		return 0, domain.ErrInvalidQuantity
	}

	var txID int64
	var proceeds decimal.Decimal
	err := l.store.WithWalletLock(ctx, userID, func(tx WalletTx) error {
		w := tx.Wallet()
		if !w.Exists {
			return fmt.Errorf("sell %s %s: no wallet: %w", qty, coinID, domain.ErrInsufficientHoldings)
		}

		held, err := tx.Holding(coinID)
		if err != nil {
			return err
		}
		if held.LessThan(qty) {
			return fmt.Errorf("sell %s %s holding %s: %w", qty, coinID, held, domain.ErrInsufficientHoldings)
		}

		price, err := l.prices.LatestPrice(ctx, coinID)
		if err != nil {
			return err
		}

		proceeds = qty.Mul(price)
		if err := tx.UpdateWallet(w.Balance.Decimal.Add(proceeds), nil); err != nil {
			return err
		}
		txID, err = tx.AppendTransaction(domain.Transaction{
			UserID:    userID,
			CoinID:    coinID,
			Qty:       qty,
			Cost:      proceeds,
			Side:      domain.Sell,
			Timestamp: l.now().UTC(),
		})
		return err
	})
	if err != nil {
		return 0, l.reject("sell", coinID, userID, qty, err)
	}

	l.logger.Info("sell committed",
		zap.Int64("transaction_id", txID),
		zap.String("user", userID),
		zap.String("coin", coinID),
		zap.Stringer("qty", qty),
		zap.Stringer("proceeds", proceeds))
	return txID, nil
}

// Balance returns the committed wallet balance of userID.
func (l *Ledger) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	w, err := l.store.Wallet(ctx, userID)
	if err != nil {
		return decimal.Zero, domain.Persist("wallet balance", err)
	}
	return w.Balance, nil
}

// DailyReward credits the reward amount once per UTC day and returns the new balance.
// The first reward creates the wallet.
func (l *Ledger) DailyReward(ctx context.Context, userID string) (decimal.Decimal, error) {
	if err := l.store.EnsureWallet(ctx, userID); err != nil {
		return decimal.Zero, domain.Persist("ensure wallet", err)
	}

	now := l.now().UTC()
	today := now.Truncate(24 * time.Hour)

	var balance decimal.Decimal
	err := l.store.WithWalletLock(ctx, userID, func(tx WalletTx) error {
		w := tx.Wallet()
		if w.RewardedAt != nil && !w.RewardedAt.UTC().Before(today) {
			return fmt.Errorf("user %s on %s: %w", userID, today.Format(time.DateOnly), domain.ErrRewardClaimed)
		}
		balance = w.Balance.Decimal.Add(l.reward)
		return tx.UpdateWallet(balance, &now)
	})
	if err != nil {
		if !domain.IsDomain(err) {
			l.logger.Error("daily reward failed", zap.String("user", userID), zap.Error(err))
		}
		return decimal.Zero, domain.Persist("daily reward", err)
	}

	l.logger.Info("daily reward credited", zap.String("user", userID), zap.Stringer("balance", balance))
	return balance, nil
}

// reject logs a failed trade and normalizes its error.
func (l *Ledger) reject(op, coinID, userID string, qty decimal.Decimal, err error) error {
	fields := []zap.Field{
		zap.String("user", userID),
		zap.String("coin", coinID),
		zap.Stringer("qty", qty),
		zap.Error(err),
	}
	if domain.IsDomain(err) {
		l.logger.Warn(op+" rejected", fields...)
	} else {
		l.logger.Error(op+" failed", fields...)
	}
	return domain.Persist(op, err)
}
