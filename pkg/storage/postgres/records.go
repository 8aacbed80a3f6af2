package postgres

import (
	"time"

	"cryptobroker/internal/domain"

	"github.com/shopspring/decimal"
)

// CryptoDataRecord is one market snapshot of an instrument. Every row is also a price tick.
type CryptoDataRecord struct {
	ID   string    `gorm:"primaryKey;type:text;column:id"`
	AsOf time.Time `gorm:"primaryKey;column:as_of;index:idx_cryptodata_as_of"`

	Symbol string          `gorm:"type:text;not null;index:idx_cryptodata_symbol"`
	Name   string          `gorm:"type:text;not null;index:idx_cryptodata_name"`
	Price  decimal.Decimal `gorm:"type:numeric;not null"`

	MarketCap          decimal.Decimal `gorm:"type:numeric;not null;default:0"`
	Volume             decimal.Decimal `gorm:"type:numeric;not null;default:0"`
	ImageURL           string          `gorm:"type:text;column:image_url"`
	CoingeckoTimestamp string          `gorm:"type:text;column:coingecko_timestamp"`
}

func (CryptoDataRecord) TableName() string {
	return "cryptodata"
}

func (r CryptoDataRecord) toDomain() domain.CurrencyRecord {
	return domain.CurrencyRecord{
		ID:                 r.ID,
		Symbol:             r.Symbol,
		Name:               r.Name,
		Price:              r.Price,
		AsOf:               r.AsOf.UTC(),
		MarketCap:          r.MarketCap,
		Volume:             r.Volume,
		ImageURL:           r.ImageURL,
		CoingeckoTimestamp: r.CoingeckoTimestamp,
	}
}

// ToCryptoDataRecord converts a currency snapshot for insertion.
func ToCryptoDataRecord(c domain.CurrencyRecord) *CryptoDataRecord {
	return &CryptoDataRecord{
		ID:                 c.ID,
		AsOf:               c.AsOf.UTC(),
		Symbol:             c.Symbol,
		Name:               c.Name,
		Price:              c.Price,
		MarketCap:          c.MarketCap,
		Volume:             c.Volume,
		ImageURL:           c.ImageURL,
		CoingeckoTimestamp: c.CoingeckoTimestamp,
	}
}

// WalletRecord holds the cash balance of one user. A NULL balance means the wallet was never funded.
type WalletRecord struct {
	UserID        string              `gorm:"primaryKey;type:text;column:user_id"`
	WalletBalance decimal.NullDecimal `gorm:"type:numeric;column:wallet_balance"`
	RewardedAt    *time.Time          `gorm:"column:rewarded_at"`
}

func (WalletRecord) TableName() string {
	return "wallet"
}

// TransactionRecord is one row of the append-only trade log.
type TransactionRecord struct {
	ID               int64           `gorm:"primaryKey;autoIncrement"`
	UserID           string          `gorm:"type:text;not null;index:idx_transactions_user_crypto"`
	CryptoID         string          `gorm:"type:text;not null;index:idx_transactions_user_crypto;column:crypto_id"`
	Qty              decimal.Decimal `gorm:"type:numeric;not null"`
	Cost             decimal.Decimal `gorm:"type:numeric;not null"`
	BuySellIndicator string          `gorm:"type:char(1);not null;column:buy_sell_indicator"`
	CreatedAt        time.Time       `gorm:"not null"`
}

func (TransactionRecord) TableName() string {
	return "transactions"
}

// ServerPatronRecord links a user to a server for leaderboards.
type ServerPatronRecord struct {
	ID       uint   `gorm:"primaryKey"`
	ServerID string `gorm:"type:text;not null;index:idx_server_user,unique"`
	UserID   string `gorm:"type:text;not null;index:idx_server_user,unique"`
}

func (ServerPatronRecord) TableName() string {
	return "server_patrons"
}
