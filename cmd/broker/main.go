package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"cryptobroker/config"
	"cryptobroker/internal/app"
	"cryptobroker/internal/domain"
	"cryptobroker/logger"

	"go.uber.org/zap"
)

const usage = `usage: broker [-config dir] <command> [flags]

commands:
  migrate       create and migrate the database
  import        load currency snapshots from a JSON file
  list          list the largest currencies by market cap
  resolve       resolve a coin key to one currency
  balance       show a wallet balance
  reward        claim the daily reward
  buy, sell     trade a coin
  portfolio     show balance and valued positions
  candles       summarize price history as OHLC candles
  patrons       register server members
  leaderboard   rank server members by balance
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("broker", flag.ContinueOnError)
	global.SetOutput(stderr)
	global.Usage = func() { fmt.Fprint(stderr, usage) }
	configDir := global.String("config", "", "directory holding config.yaml")
	if err := global.Parse(args); err != nil {
		return 2
	}
	if global.NArg() == 0 {
		global.Usage()
		return 2
	}
	name, rest := global.Arg(0), global.Args()[1:]

	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n", name)
		global.Usage()
		return 2
	}

	// viper config
	cfg, err := config.Load(*configDir)
	if err != nil {
		fmt.Fprintf(stderr, "failed to load config: %v\n", err)
		return 1
	}
	if name == "migrate" {
		cfg.Storage.AutoMigrate = true
	}

	// zap logger
	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(stderr, "failed to create logger: %v\n", err)
		return 1
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", zap.Error(err))
		return 1
	}
	defer a.Close()

	if cfg.Ledger.OpTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Ledger.OpTimeout)
		defer cancel()
	}

	if err := cmd(ctx, a, rest, stdout); err != nil {
		return report(stderr, log, name, err)
	}
	return 0
}

// report prints err for the operator. Rejections exit 1, usage errors 2, infrastructure failures 3.
func report(w io.Writer, log *zap.Logger, name string, err error) int {
	var usageErr usageError
	if errors.As(err, &usageErr) || errors.Is(err, flag.ErrHelp) {
		fmt.Fprintf(w, "%s: %v\n", name, err)
		return 2
	}

	var amb *domain.AmbiguousError
	if errors.As(err, &amb) {
		fmt.Fprintf(w, "%s: %v\n", name, err)
		for _, c := range amb.Candidates {
			fmt.Fprintf(w, "  %s\t%s\t%s\n", c.ID, c.Symbol, c.Name)
		}
		return 1
	}

	if domain.IsDomain(err) {
		fmt.Fprintf(w, "%s: %v\n", name, err)
		return 1
	}

	log.Error("command failed", zap.String("command", name), zap.Error(err))
	fmt.Fprintf(w, "%s: %v\n", name, err)
	return 3
}
