package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Run the market data polling loops",
	Long: `Poll the majors sources and the memecoin pools on their configured
intervals, refresh the universe periodically, and run the account
lifecycle sweep. Runs until interrupted.`,
	RunE: runFeed,
}

func init() {
	rootCmd.AddCommand(feedCmd)
}

func runFeed(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.aggregator.WarmCache(ctx); err != nil {
		a.log.Warn("price cache warm-up failed", "error", err)
	}
	if _, err := a.aggregator.RefreshUniverse(ctx); err != nil {
		a.log.Warn("initial universe refresh failed", "error", err)
	}

	majors := time.NewTicker(a.cfg.Feed.MajorsInterval.Std())
	memecoins := time.NewTicker(a.cfg.Feed.MemecoinInterval.Std())
	universe := time.NewTicker(a.cfg.Feed.UniverseInterval.Std())
	sweep := time.NewTicker(a.cfg.Feed.SweepInterval.Std())
	defer majors.Stop()
	defer memecoins.Stop()
	defer universe.Stop()
	defer sweep.Stop()

	a.log.Info("feed loops started",
		"majors", a.cfg.Feed.MajorsInterval.Std(),
		"memecoins", a.cfg.Feed.MemecoinInterval.Std(),
		"universe", a.cfg.Feed.UniverseInterval.Std(),
		"sweep", a.cfg.Feed.SweepInterval.Std(),
	)

	for {
		select {
		case <-ctx.Done():
			a.log.Info("shutting down")
			return nil
		case <-majors.C:
			if ticks, err := a.aggregator.PollMajors(ctx); err != nil {
				a.log.Warn("majors poll failed", "error", err)
			} else {
				a.log.Debug("majors polled", "accepted", len(ticks))
			}
		case <-memecoins.C:
			if ticks, err := a.aggregator.PollMemecoins(ctx); err != nil {
				a.log.Warn("memecoin poll failed", "error", err)
			} else {
				a.log.Debug("memecoins polled", "accepted", len(ticks))
			}
		case <-universe.C:
			if _, err := a.aggregator.RefreshUniverse(ctx); err != nil {
				a.log.Warn("universe refresh failed", "error", err)
			}
		case <-sweep.C:
			res, err := a.engine.Sweep(ctx)
			if err != nil {
				a.log.Warn("lifecycle sweep failed", "error", err)
				continue
			}
			if res.Transitioned > 0 {
				a.log.Info("lifecycle sweep", "checked", res.Checked, "transitioned", res.Transitioned)
			}
		}
	}
}
