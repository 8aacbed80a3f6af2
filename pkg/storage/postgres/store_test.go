package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"cryptobroker/internal/coin"
	"cryptobroker/internal/domain"
	"cryptobroker/internal/ledger"
	"cryptobroker/internal/perf"
	"cryptobroker/internal/portfolio"
	"cryptobroker/internal/price"
	"cryptobroker/pkg/storage/postgres"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func seedCurrencies(t *testing.T, client *postgres.PostgresClient) {
	t.Helper()
	ctx := context.Background()
	rows := []domain.CurrencyRecord{
		{ID: "bitcoin", Symbol: "btc", Name: "Bitcoin", Price: dec("1"), AsOf: t0, MarketCap: dec("900")},
		{ID: "bitcoin", Symbol: "btc", Name: "Bitcoin", Price: dec("2"), AsOf: t0.Add(time.Hour), MarketCap: dec("1000")},
		{ID: "ethereum", Symbol: "eth", Name: "Ethereum", Price: dec("4"), AsOf: t0, MarketCap: dec("500")},
		{ID: "ethereum-wormhole", Symbol: "eth", Name: "Ethereum (Wormhole)", Price: dec("3"), AsOf: t0, MarketCap: dec("10")},
	}
	for _, r := range rows {
		require.NoError(t, client.InsertCurrency(ctx, r))
	}
	// duplicates are ignored
	require.NoError(t, client.InsertCurrency(ctx, rows[0]))
}

// go test -v --run TestCurrencyQueries
func TestCurrencyQueries(t *testing.T) {
	client := newSQLiteClient(t)
	seedCurrencies(t, client)
	ctx := context.Background()

	tests := []struct {
		name    string
		pred    coin.Predicate
		wantIDs []string
	}{
		{"name ignores case", coin.Predicate{Field: coin.FieldName, Value: "BITCOIN"}, []string{"bitcoin"}},
		{"shared symbol", coin.Predicate{Field: coin.FieldSymbol, Value: "ETH"}, []string{"ethereum", "ethereum-wormhole"}},
		{"id is exact", coin.Predicate{Field: coin.FieldID, Value: "Bitcoin"}, nil},
		{"id", coin.Predicate{Field: coin.FieldID, Value: "ethereum"}, []string{"ethereum"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := client.LookupLatest(ctx, tt.pred)
			require.NoError(t, err)
			var ids []string
			for _, r := range got {
				ids = append(ids, r.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}

	latest, err := client.LookupLatest(ctx, coin.Predicate{Field: coin.FieldID, Value: "bitcoin"})
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.True(t, latest[0].Price.Equal(dec("2")), "newest snapshot wins")

	list, err := client.ListLatest(ctx, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "bitcoin", list[0].ID)
	assert.Equal(t, "ethereum", list[1].ID)

	tick, err := client.LatestTick(ctx, "bitcoin")
	require.NoError(t, err)
	assert.True(t, tick.Price.Equal(dec("2")))
	assert.True(t, tick.AsOf.Equal(t0.Add(time.Hour)))

	_, err = client.LatestTick(ctx, "dogecoin")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	ticks, err := client.Ticks(ctx, "bitcoin", t0, t0.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, ticks, 2, "range is inclusive")
	assert.True(t, ticks[0].AsOf.Before(ticks[1].AsOf))

	ticks, err = client.Ticks(ctx, "bitcoin", t0.Add(time.Minute), t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Len(t, ticks, 1)
}

// go test -v --run TestLedgerOverSQL
func TestLedgerOverSQL(t *testing.T) {
	client := newSQLiteClient(t)
	seedCurrencies(t, client)
	ctx := context.Background()

	now := t0.Add(2 * time.Hour)
	l := ledger.New(client, price.NewLookup(client, zap.NewNop()), zap.NewNop(),
		ledger.WithClock(func() time.Time { return now }))

	_, err := l.Buy(ctx, "bitcoin", dec("1"), "alice")
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds, "no wallet yet")

	balance, err := l.DailyReward(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("100")))

	_, err = l.DailyReward(ctx, "alice")
	assert.ErrorIs(t, err, domain.ErrRewardClaimed)

	buyID, err := l.Buy(ctx, "bitcoin", dec("2"), "alice")
	require.NoError(t, err)
	sellID, err := l.Sell(ctx, "bitcoin", dec("1"), "alice")
	require.NoError(t, err)
	assert.Greater(t, sellID, buyID)

	_, err = l.Sell(ctx, "bitcoin", dec("5"), "alice")
	assert.ErrorIs(t, err, domain.ErrInsufficientHoldings)
	_, err = l.Buy(ctx, "ethereum", dec("1000"), "alice")
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	balance, err = l.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("98")), "got %s", balance)

	txs, err := client.Transactions(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, domain.Buy, txs[0].Side)
	assert.Equal(t, domain.Sell, txs[1].Side)

	positions, err := client.Positions(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "Bitcoin", positions[0].Name)
	assert.True(t, positions[0].Qty.Equal(dec("1")))
	assert.True(t, positions[0].CostBasis.Equal(dec("2")))

	// next UTC day
	now = now.Add(24 * time.Hour)
	balance, err = l.DailyReward(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("198")))
}

// go test -v --run TestWalletLockRollback
func TestWalletLockRollback(t *testing.T) {
	client := newSQLiteClient(t)
	ctx := context.Background()
	require.NoError(t, client.EnsureWallet(ctx, "bob"))

	write := func(tx ledger.WalletTx) error {
		if err := tx.UpdateWallet(dec("500"), nil); err != nil {
			return err
		}
		_, err := tx.AppendTransaction(domain.Transaction{
			UserID: "bob", CoinID: "bitcoin", Qty: dec("1"), Cost: dec("1"), Side: domain.Buy, Timestamp: t0,
		})
		return err
	}

	boom := errors.New("boom")
	err := client.WithWalletLock(ctx, "bob", func(tx ledger.WalletTx) error {
		if err := write(tx); err != nil {
			return err
		}
		return boom
	})
	assert.Same(t, boom, err, "callback errors come back unchanged")

	cctx, cancel := context.WithCancel(ctx)
	err = client.WithWalletLock(cctx, "bob", func(tx ledger.WalletTx) error {
		err := write(tx)
		cancel()
		return err
	})
	assert.ErrorIs(t, err, domain.ErrPersistence)

	w, err := client.Wallet(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, w.Balance.IsZero())
	txs, err := client.Transactions(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, txs)

	_, err = client.Wallet(ctx, "nobody")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// go test -v --run TestPatronsOverSQL
func TestPatronsOverSQL(t *testing.T) {
	client := newSQLiteClient(t)
	ctx := context.Background()
	require.NoError(t, client.EnsureWallet(ctx, "alice"))

	view := portfolio.NewView(client, price.NewLookup(client, zap.NewNop()), zap.NewNop())
	require.NoError(t, view.UpdateServerPatrons(ctx, "guild", []string{"alice", "bob", "alice"}))
	require.NoError(t, view.UpdateServerPatrons(ctx, "guild", []string{"bob"}))
	require.NoError(t, client.UpdateServerPatrons(ctx, "guild", nil))

	patrons, err := client.ServerPatrons(ctx, "guild")
	require.NoError(t, err)
	require.Len(t, patrons, 2)
	assert.Equal(t, "alice", patrons[0].UserID)
	assert.True(t, patrons[0].HasWallet)
	assert.Equal(t, "bob", patrons[1].UserID)
	assert.False(t, patrons[1].HasWallet)

	board, err := view.Leaderboard(ctx, "guild", 10)
	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, "alice", board[0].UserID)
}

// go test -v --run TestCandlesOverSQL
func TestCandlesOverSQL(t *testing.T) {
	client := newSQLiteClient(t)
	ctx := context.Background()
	for i, p := range []string{"10", "12", "9", "11"} {
		require.NoError(t, client.InsertCurrency(ctx, domain.CurrencyRecord{
			ID: "bitcoin", Symbol: "btc", Name: "Bitcoin", Price: dec(p), AsOf: t0.Add(time.Duration(i) * time.Hour),
		}))
	}

	agg := perf.NewAggregator(client, zap.NewNop())
	candles, err := agg.GetCandlesticks(ctx, t0, t0.Add(4*time.Hour), "bitcoin", perf.IntraDay)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.True(t, candles[0].Open.Equal(dec("10")))
	assert.True(t, candles[0].High.Equal(dec("12")))
	assert.True(t, candles[1].Low.Equal(dec("9")))
	assert.True(t, candles[1].Close.Equal(dec("11")))
}
