// Package memory is a process-local implementation of every storage port.
// It honors the same per-user wallet locking contract as the Postgres store.
package memory

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"cryptobroker/internal/coin"
	"cryptobroker/internal/domain"
	"cryptobroker/internal/ledger"
	"cryptobroker/internal/perf"
	"cryptobroker/internal/portfolio"
	"cryptobroker/internal/price"

	"github.com/shopspring/decimal"
)

var (
	_ coin.Store      = (*Store)(nil)
	_ price.Store     = (*Store)(nil)
	_ ledger.Store    = (*Store)(nil)
	_ perf.TickStore  = (*Store)(nil)
	_ portfolio.Store = (*Store)(nil)
)

type Store struct {
	globalMu   sync.RWMutex
	currencies map[string][]domain.CurrencyRecord
	wallets    map[string]*walletEntry
	patrons    map[string]map[string]struct{}

	lastTxID atomic.Int64
}

// walletEntry pairs the row lock (held for a whole unit of work) with the data
// lock (held only while reading or publishing committed state).
type walletEntry struct {
	lock sync.Mutex

	mu         sync.RWMutex
	exists     bool
	balance    decimal.NullDecimal
	rewardedAt *time.Time
	txs        []domain.Transaction
}

func NewStore() *Store {
	return &Store{
		currencies: make(map[string][]domain.CurrencyRecord),
		wallets:    make(map[string]*walletEntry),
		patrons:    make(map[string]map[string]struct{}),
	}
}

// AddCurrency appends a snapshot row, as the ingestion feed would.
func (s *Store) AddCurrency(rec domain.CurrencyRecord) {
	s.globalMu.Lock()
	defer s.globalMu.Unlock()
	s.currencies[rec.ID] = append(s.currencies[rec.ID], rec)
}

// InsertCurrency stores one snapshot. Re-inserting the same (id, asOf) is a no-op.
func (s *Store) InsertCurrency(ctx context.Context, rec domain.CurrencyRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.globalMu.Lock()
	defer s.globalMu.Unlock()
	for _, r := range s.currencies[rec.ID] {
		if r.AsOf.Equal(rec.AsOf) {
			return nil
		}
	}
	s.currencies[rec.ID] = append(s.currencies[rec.ID], rec)
	return nil
}

// SetWallet creates or overwrites a wallet balance outside of any trade.
func (s *Store) SetWallet(userID string, balance decimal.Decimal) {
	e := s.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.exists = true
	e.balance = decimal.NewNullDecimal(balance)
}

// Transactions returns a copy of the committed transactions of userID.
func (s *Store) Transactions(userID string) []domain.Transaction {
	e, ok := s.lookupEntry(userID)
	if !ok {
		return nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	cp := make([]domain.Transaction, len(e.txs))
	copy(cp, e.txs)
	return cp
}

func (s *Store) lookupEntry(userID string) (*walletEntry, bool) {
	s.globalMu.RLock()
	defer s.globalMu.RUnlock()
	e, ok := s.wallets[userID]
	return e, ok
}

func (s *Store) entry(userID string) *walletEntry {
	// Fast path: shared lock only
	if e, ok := s.lookupEntry(userID); ok {
		return e
	}

	s.globalMu.Lock()
	defer s.globalMu.Unlock()
	e, ok := s.wallets[userID]
	if !ok {
		e = &walletEntry{}
		s.wallets[userID] = e
	}
	return e
}

// latest returns the newest row of every instrument. Callers hold globalMu.
func (s *Store) latest() []domain.CurrencyRecord {
	out := make([]domain.CurrencyRecord, 0, len(s.currencies))
	for _, rows := range s.currencies {
		if len(rows) == 0 {
			continue
		}
		best := rows[0]
		for _, r := range rows[1:] {
			if r.AsOf.After(best.AsOf) {
				best = r
			}
		}
		out = append(out, best)
	}
	return out
}

func (s *Store) LookupLatest(ctx context.Context, p coin.Predicate) ([]domain.CurrencyRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.globalMu.RLock()
	defer s.globalMu.RUnlock()

	var out []domain.CurrencyRecord
	for _, rec := range s.latest() {
		if p.Matches(rec) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListLatest(ctx context.Context, limit int) ([]domain.CurrencyRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.globalMu.RLock()
	out := s.latest()
	s.globalMu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if c := out[i].MarketCap.Cmp(out[j].MarketCap); c != 0 {
			return c > 0
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) LatestTick(ctx context.Context, coinID string) (domain.PriceTick, error) {
	if err := ctx.Err(); err != nil {
		return domain.PriceTick{}, err
	}
	s.globalMu.RLock()
	defer s.globalMu.RUnlock()

	rows := s.currencies[coinID]
	if len(rows) == 0 {
		return domain.PriceTick{}, domain.ErrNotFound
	}
	best := rows[0]
	for _, r := range rows[1:] {
		if r.AsOf.After(best.AsOf) {
			best = r
		}
	}
	return domain.PriceTick{CoinID: best.ID, AsOf: best.AsOf, Price: best.Price}, nil
}

// Ticks returns the rows of coinID with asOf in [start, end], oldest first.
func (s *Store) Ticks(ctx context.Context, coinID string, start, end time.Time) ([]domain.PriceTick, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.globalMu.RLock()
	defer s.globalMu.RUnlock()

	var out []domain.PriceTick
	for _, r := range s.currencies[coinID] {
		if r.AsOf.Before(start) || r.AsOf.After(end) {
			continue
		}
		out = append(out, domain.PriceTick{CoinID: r.ID, AsOf: r.AsOf, Price: r.Price})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].AsOf.Before(out[j].AsOf) })
	return out, nil
}

func (s *Store) EnsureWallet(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e := s.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.exists {
		e.exists = true
		e.balance = decimal.NewNullDecimal(decimal.Zero)
	}
	return nil
}

func (s *Store) Wallet(ctx context.Context, userID string) (domain.Wallet, error) {
	if err := ctx.Err(); err != nil {
		return domain.Wallet{}, err
	}
	e, ok := s.lookupEntry(userID)
	if !ok {
		return domain.Wallet{}, domain.ErrNotFound
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.exists {
		return domain.Wallet{}, domain.ErrNotFound
	}
	return domain.Wallet{UserID: userID, Balance: e.balance.Decimal}, nil
}

func (s *Store) WithWalletLock(ctx context.Context, userID string, fn func(tx ledger.WalletTx) error) error {
	e := s.entry(userID)

	e.lock.Lock()
	defer e.lock.Unlock()

	if err := ctx.Err(); err != nil {
		return domain.Persist("lock wallet", err)
	}

	e.mu.RLock()
	tx := &walletTx{
		store: s,
		state: ledger.WalletState{Exists: e.exists, Balance: e.balance, RewardedAt: e.rewardedAt},
		held:  make(map[string]decimal.Decimal),
	}
	for _, t := range e.txs {
		tx.held[t.CoinID] = tx.held[t.CoinID].Add(t.SignedQty())
	}
	e.mu.RUnlock()

	if err := fn(tx); err != nil {
		return err
	}

	// an abandoned unit of work must not publish anything
	if err := ctx.Err(); err != nil {
		return domain.Persist("commit wallet", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if tx.dirty {
		e.exists = true
		e.balance = tx.state.Balance
		e.rewardedAt = tx.state.RewardedAt
	}
	e.txs = append(e.txs, tx.pending...)
	return nil
}

type walletTx struct {
	store   *Store
	state   ledger.WalletState
	held    map[string]decimal.Decimal
	dirty   bool
	pending []domain.Transaction
}

func (t *walletTx) Wallet() ledger.WalletState { return t.state }

func (t *walletTx) Holding(coinID string) (decimal.Decimal, error) {
	return t.held[coinID], nil
}

func (t *walletTx) UpdateWallet(balance decimal.Decimal, rewardedAt *time.Time) error {
	t.dirty = true
	t.state.Balance = decimal.NewNullDecimal(balance)
	if rewardedAt != nil {
		at := *rewardedAt
		t.state.RewardedAt = &at
	}
	return nil
}

func (t *walletTx) AppendTransaction(tr domain.Transaction) (int64, error) {
	tr.ID = t.store.lastTxID.Add(1)
	t.pending = append(t.pending, tr)
	t.held[tr.CoinID] = t.held[tr.CoinID].Add(tr.SignedQty())
	return tr.ID, nil
}

// Positions aggregates committed transactions of userID into open positions.
func (s *Store) Positions(ctx context.Context, userID string) ([]domain.Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	txs := s.Transactions(userID)

	byCoin := make(map[string]*domain.Position)
	var order []string
	for _, t := range txs {
		p, ok := byCoin[t.CoinID]
		if !ok {
			p = &domain.Position{UserID: userID, CoinID: t.CoinID}
			byCoin[t.CoinID] = p
			order = append(order, t.CoinID)
		}
		p.Qty = p.Qty.Add(t.SignedQty())
		p.CostBasis = p.CostBasis.Add(t.SignedCost())
	}

	s.globalMu.RLock()
	names := make(map[string]string)
	for _, rec := range s.latest() {
		names[rec.ID] = rec.Name
	}
	s.globalMu.RUnlock()

	sort.Strings(order)
	out := make([]domain.Position, 0, len(order))
	for _, id := range order {
		p := byCoin[id]
		if !p.Qty.IsPositive() {
			continue
		}
		p.Name = names[id]
		out = append(out, *p)
	}
	return out, nil
}

func (s *Store) UpdateServerPatrons(ctx context.Context, serverID string, userIDs []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.globalMu.Lock()
	defer s.globalMu.Unlock()

	members, ok := s.patrons[serverID]
	if !ok {
		members = make(map[string]struct{})
		s.patrons[serverID] = members
	}
	for _, id := range userIDs {
		members[id] = struct{}{}
	}
	return nil
}

func (s *Store) ServerPatrons(ctx context.Context, serverID string) ([]domain.Patron, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.globalMu.RLock()
	ids := make([]string, 0, len(s.patrons[serverID]))
	for id := range s.patrons[serverID] {
		ids = append(ids, id)
	}
	s.globalMu.RUnlock()
	sort.Strings(ids)

	out := make([]domain.Patron, 0, len(ids))
	for _, id := range ids {
		p := domain.Patron{ServerID: serverID, UserID: id}
		if w, err := s.Wallet(ctx, id); err == nil {
			p.Balance = w.Balance
			p.HasWallet = true
		}
		out = append(out, p)
	}
	return out, nil
}
