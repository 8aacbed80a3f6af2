package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"cryptobroker/internal/app"
	"cryptobroker/internal/domain"
	"cryptobroker/internal/perf"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

type command func(ctx context.Context, a *app.App, args []string, out io.Writer) error

var commands = map[string]command{
	"migrate":     runMigrate,
	"import":      runImport,
	"list":        runList,
	"resolve":     runResolve,
	"balance":     runBalance,
	"reward":      runReward,
	"buy":         runTrade(domain.Buy),
	"sell":        runTrade(domain.Sell),
	"portfolio":   runPortfolio,
	"candles":     runCandles,
	"patrons":     runPatrons,
	"leaderboard": runLeaderboard,
}

type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return usageError{msg: fmt.Sprintf(format, args...)}
}

func newFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func coinFlags(fs *flag.FlagSet) *domain.CoinKey {
	var k domain.CoinKey
	fs.StringVar(&k.ID, "id", "", "coin id")
	fs.StringVar(&k.Name, "name", "", "coin name")
	fs.StringVar(&k.Symbol, "symbol", "", "coin symbol")
	return &k
}

func requireFlag(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return usagef("-%s is required", name)
	}
	return nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runMigrate(ctx context.Context, a *app.App, _ []string, out io.Writer) error {
	if !a.Healthy(ctx) {
		return fmt.Errorf("storage %s unhealthy after migrate", a.Config.Storage.Driver)
	}
	return writeJSON(out, map[string]any{"status": "migrated", "driver": a.Config.Storage.Driver, "healthy": true})
}

func runImport(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := newFlags("import")
	file := fs.String("file", "", "JSON array of currency snapshots")
	if err := fs.Parse(args); err != nil {
		return usagef("%v", err)
	}
	if err := requireFlag("file", *file); err != nil {
		return err
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		return err
	}
	var recs []domain.CurrencyRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		return usagef("decode %s: %v", *file, err)
	}

	n, err := a.ImportCurrencies(ctx, recs)
	if err != nil {
		return err
	}
	return writeJSON(out, map[string]int{"imported": n, "skipped": len(recs) - n})
}

func runList(ctx context.Context, a *app.App, _ []string, out io.Writer) error {
	list, err := a.ListCurrencies(ctx)
	if err != nil {
		return err
	}
	return writeJSON(out, list)
}

func runResolve(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := newFlags("resolve")
	key := coinFlags(fs)
	if err := fs.Parse(args); err != nil {
		return usagef("%v", err)
	}
	c, err := a.Coins.Resolve(ctx, *key)
	if err != nil {
		return err
	}
	return writeJSON(out, c)
}

func runBalance(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := newFlags("balance")
	user := fs.String("user", "", "user id")
	if err := fs.Parse(args); err != nil {
		return usagef("%v", err)
	}
	if err := requireFlag("user", *user); err != nil {
		return err
	}
	b, err := a.Ledger.Balance(ctx, *user)
	if err != nil {
		return err
	}
	return writeJSON(out, domain.Wallet{UserID: *user, Balance: b})
}

func runReward(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := newFlags("reward")
	user := fs.String("user", "", "user id")
	if err := fs.Parse(args); err != nil {
		return usagef("%v", err)
	}
	if err := requireFlag("user", *user); err != nil {
		return err
	}
	b, err := a.Ledger.DailyReward(ctx, *user)
	if err != nil {
		return err
	}
	return writeJSON(out, domain.Wallet{UserID: *user, Balance: b})
}

type tradeResult struct {
	TransactionID int64       `json:"transactionId"`
	Side          domain.Side `json:"side"`
	CoinID        string      `json:"coinId"`
	Name          string      `json:"name"`
	Qty           string      `json:"qty"`
}

func runTrade(side domain.Side) command {
	return func(ctx context.Context, a *app.App, args []string, out io.Writer) error {
		fs := newFlags(side.String())
		key := coinFlags(fs)
		user := fs.String("user", "", "user id")
		qtyStr := fs.String("qty", "", "quantity, a positive decimal")
		if err := fs.Parse(args); err != nil {
			return usagef("%v", err)
		}
		if err := requireFlag("user", *user); err != nil {
			return err
		}
		qty, err := decimal.NewFromString(*qtyStr)
		if err != nil {
			return fmt.Errorf("qty %q: %w", *qtyStr, domain.ErrInvalidQuantity)
		}

		trade := a.Buy
		if side == domain.Sell {
			trade = a.Sell
		}
		id, c, err := trade(ctx, *key, qty, *user)
		if err != nil {
			return err
		}
		return writeJSON(out, tradeResult{TransactionID: id, Side: side, CoinID: c.ID, Name: c.Name, Qty: qty.String()})
	}
}

func runPortfolio(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := newFlags("portfolio")
	user := fs.String("user", "", "user id")
	if err := fs.Parse(args); err != nil {
		return usagef("%v", err)
	}
	if err := requireFlag("user", *user); err != nil {
		return err
	}
	p, err := a.Portfolio.GetPortfolio(ctx, *user)
	if err != nil {
		return err
	}
	return writeJSON(out, p)
}

func runCandles(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := newFlags("candles")
	key := coinFlags(fs)
	from := fs.String("from", "", "range start, RFC3339")
	to := fs.String("to", "", "range end, RFC3339 (default now)")
	gran := fs.String("granularity", perf.Daily.String(), "intraday, daily, weekly, monthly, quarterly or annual")
	if err := fs.Parse(args); err != nil {
		return usagef("%v", err)
	}

	start, err := time.Parse(time.RFC3339, *from)
	if err != nil {
		return usagef("-from: %v", err)
	}
	end := time.Now().UTC()
	if *to != "" {
		if end, err = time.Parse(time.RFC3339, *to); err != nil {
			return usagef("-to: %v", err)
		}
	}
	g, err := perf.ParseGranularity(*gran)
	if err != nil {
		return err
	}

	candles, err := a.Candlesticks(ctx, *key, start, end, g)
	if err != nil {
		return err
	}
	return writeJSON(out, candles)
}

func runPatrons(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := newFlags("patrons")
	server := fs.String("server", "", "server id")
	users := fs.String("users", "", "comma separated user ids")
	if err := fs.Parse(args); err != nil {
		return usagef("%v", err)
	}
	if err := requireFlag("server", *server); err != nil {
		return err
	}

	var ids []string
	for _, id := range strings.Split(*users, ",") {
		ids = append(ids, strings.TrimSpace(id))
	}
	if err := a.Portfolio.UpdateServerPatrons(ctx, *server, ids); err != nil {
		return err
	}
	return writeJSON(out, map[string]string{"status": "updated", "server": *server})
}

func runLeaderboard(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := newFlags("leaderboard")
	server := fs.String("server", "", "server id")
	limit := fs.Int("limit", 10, "number of patrons to show, 0 for all")
	if err := fs.Parse(args); err != nil {
		return usagef("%v", err)
	}
	if err := requireFlag("server", *server); err != nil {
		return err
	}
	board, err := a.Portfolio.Leaderboard(ctx, *server, *limit)
	if err != nil {
		return err
	}
	return writeJSON(out, board)
}
