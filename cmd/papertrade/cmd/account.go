package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage trading accounts",
}

var accountCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Provision a new account with the starting balance",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		acct, err := a.engine.CreateAccount(context.Background())
		if err != nil {
			return err
		}
		fmt.Printf("created account %s with cash %.2f\n", acct.ID, acct.Cash)
		return nil
	},
}

var accountShowCmd = &cobra.Command{
	Use:   "show <account-id>",
	Short: "Show an account and its open positions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		acct, positions, err := a.engine.GetAccount(context.Background(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("account %s [%s]\n", acct.ID, acct.Status)
		fmt.Printf("  cash: %.2f  equity: %.2f  margin used: %.2f\n", acct.Cash, acct.Equity, acct.MarginUsed)
		if acct.DeathReason != "" {
			fmt.Printf("  death: %s (equity %.2f)\n", acct.DeathReason, acct.DeathEquity)
		}
		for _, p := range positions {
			fmt.Printf("  %s %s qty %.6f @ %.8f (mark %.8f, upnl %.2f)\n",
				p.Side, p.Symbol, p.Quantity, p.AvgEntryPrice, p.MarkPrice, p.UnrealizedPnL)
		}
		return nil
	},
}

var accountSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one lifecycle sweep over all active accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		ctx := context.Background()
		if err := a.aggregator.WarmCache(ctx); err != nil {
			a.log.Warn("price cache warm-up failed", "error", err)
		}

		res, err := a.engine.Sweep(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("checked %d accounts, %d transitioned\n", res.Checked, res.Transitioned)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(accountCmd)
	accountCmd.AddCommand(accountCreateCmd)
	accountCmd.AddCommand(accountShowCmd)
	accountCmd.AddCommand(accountSweepCmd)
}
