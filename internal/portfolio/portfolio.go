// Package portfolio reports balances and positions. It only reads and takes no wallet locks,
// so a report may mix a balance and a valuation from either side of an in-flight trade.
package portfolio

import (
	"context"
	"sort"

	"cryptobroker/internal/domain"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Store interface {
	Wallet(ctx context.Context, userID string) (domain.Wallet, error)
	// Positions returns the open positions (qty > 0) of userID.
	Positions(ctx context.Context, userID string) ([]domain.Position, error)
	UpdateServerPatrons(ctx context.Context, serverID string, userIDs []string) error
	ServerPatrons(ctx context.Context, serverID string) ([]domain.Patron, error)
}

type Pricer interface {
	LatestPrice(ctx context.Context, coinID string) (decimal.Decimal, error)
}

// PositionView is a position valued at the latest price.
// Priced is false when the coin has no usable price; CurrentValue is then zero.
type PositionView struct {
	domain.Position
	Price        decimal.Decimal `json:"price"`
	CurrentValue decimal.Decimal `json:"currentValue"`
	Priced       bool            `json:"priced"`
}

type Portfolio struct {
	UserID     string          `json:"userId"`
	Balance    decimal.Decimal `json:"balance"`
	Positions  []PositionView  `json:"positions"`
	TotalValue decimal.Decimal `json:"totalValue"`
}

type View struct {
	store  Store
	prices Pricer
	logger *zap.Logger
}

func NewView(store Store, prices Pricer, logger *zap.Logger) *View {
	return &View{store: store, prices: prices, logger: logger}
}

// GetPortfolio joins the wallet balance of userID with every open position valued at its latest price.
func (v *View) GetPortfolio(ctx context.Context, userID string) (Portfolio, error) {
	w, err := v.store.Wallet(ctx, userID)
	if err != nil {
		return Portfolio{}, domain.Persist("portfolio wallet", err)
	}

	positions, err := v.store.Positions(ctx, userID)
	if err != nil {
		v.logger.Error("positions query failed", zap.String("user", userID), zap.Error(err))
		return Portfolio{}, domain.Persist("portfolio positions", err)
	}

	p := Portfolio{
		UserID:     userID,
		Balance:    w.Balance,
		Positions:  make([]PositionView, 0, len(positions)),
		TotalValue: w.Balance,
	}
	for _, pos := range positions {
		view := PositionView{Position: pos}
		if pos.CostBasis.IsNegative() {
			view.CostBasis = decimal.Zero
		}

		price, err := v.prices.LatestPrice(ctx, pos.CoinID)
		switch {
		case err == nil:
			view.Price = price
			view.CurrentValue = pos.Qty.Mul(price)
			view.Priced = true
			p.TotalValue = p.TotalValue.Add(view.CurrentValue)
		case domain.IsDomain(err):
			v.logger.Warn("position left unpriced", zap.String("user", userID), zap.String("coin", pos.CoinID), zap.Error(err))
		default:
			return Portfolio{}, domain.Persist("portfolio valuation", err)
		}
		p.Positions = append(p.Positions, view)
	}

	v.logger.Debug("portfolio built", zap.String("user", userID), zap.Int("positions", len(p.Positions)))
	return p, nil
}

// UpdateServerPatrons records userIDs as members of serverID. Repeated calls are idempotent.
func (v *View) UpdateServerPatrons(ctx context.Context, serverID string, userIDs []string) error {
	seen := make(map[string]bool, len(userIDs))
	ids := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil
	}

	if err := v.store.UpdateServerPatrons(ctx, serverID, ids); err != nil {
		v.logger.Error("patron update failed", zap.String("server", serverID), zap.Error(err))
		return domain.Persist("update server patrons", err)
	}
	v.logger.Info("server patrons updated", zap.String("server", serverID), zap.Int("users", len(ids)))
	return nil
}

// Leaderboard ranks the patrons of serverID by wallet balance, richest first.
// Patrons without a wallet rank last. A limit <= 0 returns everyone.
func (v *View) Leaderboard(ctx context.Context, serverID string, limit int) ([]domain.Patron, error) {
	patrons, err := v.store.ServerPatrons(ctx, serverID)
	if err != nil {
		return nil, domain.Persist("server patrons", err)
	}

	sort.SliceStable(patrons, func(i, j int) bool {
		a, b := patrons[i], patrons[j]
		if a.HasWallet != b.HasWallet {
			return a.HasWallet
		}
		if c := a.Balance.Cmp(b.Balance); c != 0 {
			return c > 0
		}
		return a.UserID < b.UserID
	})
	if limit > 0 && len(patrons) > limit {
		patrons = patrons[:limit]
	}
	return patrons, nil
}
