package ledger

import (
	"context"
	"time"

	"cryptobroker/internal/domain"

	"github.com/shopspring/decimal"
)

// Store owns wallet rows and the append-only transaction log.
type Store interface {
	// WithWalletLock runs fn while holding an exclusive lock on the wallet of userID.
	// The lock is taken before the wallet is read and released on commit or rollback.
	// Writes made through tx become visible together when fn returns nil; any error
	// from fn, or a cancelled ctx, discards all of them. Errors returned by fn are
	// passed back unchanged.
	WithWalletLock(ctx context.Context, userID string, fn func(tx WalletTx) error) error

	// EnsureWallet creates an empty wallet for userID if none exists.
	EnsureWallet(ctx context.Context, userID string) error

	// Wallet reads the committed wallet without locking. Missing wallets yield domain.ErrNotFound.
	Wallet(ctx context.Context, userID string) (domain.Wallet, error)
}

// WalletState is the wallet row as read under the lock.
type WalletState struct {
	Exists     bool
	Balance    decimal.NullDecimal
	RewardedAt *time.Time
}

// WalletTx is the unit of work handed to WithWalletLock callbacks.
type WalletTx interface {
	Wallet() WalletState
	// Holding is the net quantity of coinID held by the locked user.
	Holding(coinID string) (decimal.Decimal, error)
	// UpdateWallet writes the balance. A nil rewardedAt keeps the stored value.
	UpdateWallet(balance decimal.Decimal, rewardedAt *time.Time) error
	AppendTransaction(t domain.Transaction) (int64, error)
}
