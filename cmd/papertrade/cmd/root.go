package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tradeforge/papertrade/config"
	"github.com/tradeforge/papertrade/exchange"
	"github.com/tradeforge/papertrade/feed"
	"github.com/tradeforge/papertrade/store"
)

var rootCmd = &cobra.Command{
	Use:   "papertrade",
	Short: "A paper-trading exchange for autonomous agents",
	Long: `Papertrade runs a simulated exchange: it aggregates market data from
independent sources, fills orders against a synthetic mark price with
fees and slippage, keeps margin-based accounts, and liquidates accounts
that breach their solvency thresholds.`,
}

var cfgPath string

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "f", "", "path to config file (YAML or JSON)")
}

// app wires the store, feed and engine for one command invocation.
type app struct {
	cfg        *config.Config
	store      *store.SQLite
	aggregator *feed.Aggregator
	engine     *exchange.Engine
	log        *slog.Logger
}

func openApp() (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(log)

	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	sources := []feed.Source{
		feed.NewKraken(cfg.Sources.KrakenURL),
		feed.NewCoinbase(cfg.Sources.CoinbaseURL),
	}
	dex := feed.NewDexScreener(cfg.Sources.DexScreenerURL, log)

	aggregator := feed.NewAggregator(db, sources, dex, log)
	engine := exchange.NewEngine(db, aggregator, log)

	return &app{
		cfg:        cfg,
		store:      db,
		aggregator: aggregator,
		engine:     engine,
		log:        log,
	}, nil
}

func (a *app) close() {
	a.store.Close()
}
