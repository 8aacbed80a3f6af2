package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CurrencyRecord is one price snapshot of an instrument as produced by the ingestion feed.
// Several rows exist per ID; only the one with the latest AsOf is current.
type CurrencyRecord struct {
	ID                 string          `json:"id"`
	Symbol             string          `json:"symbol"`
	Name               string          `json:"name"`
	Price              decimal.Decimal `json:"price"`
	AsOf               time.Time       `json:"asOf"`
	MarketCap          decimal.Decimal `json:"marketCap"`
	Volume             decimal.Decimal `json:"volume"`
	ImageURL           string          `json:"imageUrl"`
	CoingeckoTimestamp string          `json:"coingeckoTimestamp"`
}

// PriceTick is a single price observation of an instrument.
type PriceTick struct {
	CoinID string          `json:"coinId"`
	AsOf   time.Time       `json:"asOf"`
	Price  decimal.Decimal `json:"price"`
}

// Candlestick summarizes a bucket of ticks.
type Candlestick struct {
	OpenTime time.Time       `json:"openDateTime"`
	Open     decimal.Decimal `json:"open"`
	Close    decimal.Decimal `json:"close"`
	Low      decimal.Decimal `json:"low"`
	High     decimal.Decimal `json:"high"`
}

// Wallet holds the cash balance of a user.
type Wallet struct {
	UserID  string          `json:"userId"`
	Balance decimal.Decimal `json:"balance"`
}

// Side tells a buy from a sell. The values match the buy_sell_indicator column.
type Side string

const (
	Buy  Side = "B"
	Sell Side = "S"
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	}
	return "unknown"
}

// Transaction is an immutable ledger entry written once per committed trade.
type Transaction struct {
	ID        int64           `json:"id"`
	UserID    string          `json:"userId"`
	CoinID    string          `json:"coinId"`
	Qty       decimal.Decimal `json:"qty"`
	Cost      decimal.Decimal `json:"cost"`
	Side      Side            `json:"side"`
	Timestamp time.Time       `json:"timestamp"`
}

// SignedQty is +Qty for buys and -Qty for sells.
func (t Transaction) SignedQty() decimal.Decimal {
	if t.Side == Sell {
		return t.Qty.Neg()
	}
	return t.Qty
}

// SignedCost is the cash flow into the position: +Cost for buys, -Cost for sells.
func (t Transaction) SignedCost() decimal.Decimal {
	if t.Side == Sell {
		return t.Cost.Neg()
	}
	return t.Cost
}

// Position is the net holding of a user in one instrument.
type Position struct {
	UserID    string          `json:"userId"`
	CoinID    string          `json:"coinId"`
	Name      string          `json:"name"`
	Qty       decimal.Decimal `json:"qty"`
	CostBasis decimal.Decimal `json:"costBasis"`
}

// CoinKey is a partially specified instrument reference. Fields are tried in
// the order ID, Name, Symbol and only the first non-empty one is used.
type CoinKey struct {
	ID     string `json:"crypto_id,omitempty"`
	Name   string `json:"name,omitempty"`
	Symbol string `json:"symbol,omitempty"`
}

// IsEmpty reports whether no field is set.
func (k CoinKey) IsEmpty() bool {
	return k.ID == "" && k.Name == "" && k.Symbol == ""
}

// Patron is a user registered on a server, with the wallet balance used for ranking.
type Patron struct {
	ServerID  string          `json:"serverId"`
	UserID    string          `json:"userId"`
	Balance   decimal.Decimal `json:"balance"`
	HasWallet bool            `json:"hasWallet"`
}
