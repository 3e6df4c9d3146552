package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tradeforge/papertrade/exchange"
	"github.com/tradeforge/papertrade/market"
)

var orderCmd = &cobra.Command{
	Use:   "order",
	Short: "Place one order through the trading pipeline",
	Long: `Fetch fresh quotes, then run one order through validation, pricing,
margin checks and settlement.

Example:
  papertrade order --account 01J... --symbol MAJOR:BTC-USD --side BUY --quantity 0.1 --leverage 2`,
	RunE: runOrder,
}

var (
	orderAccount  string
	orderSymbol   string
	orderSide     string
	orderQuantity float64
	orderLeverage float64
)

func init() {
	rootCmd.AddCommand(orderCmd)

	orderCmd.Flags().StringVar(&orderAccount, "account", "", "account id (required)")
	orderCmd.Flags().StringVar(&orderSymbol, "symbol", "", "canonical symbol (required)")
	orderCmd.Flags().StringVar(&orderSide, "side", "", "BUY or SELL (required)")
	orderCmd.Flags().Float64Var(&orderQuantity, "quantity", 0, "quantity (required)")
	orderCmd.Flags().Float64Var(&orderLeverage, "leverage", 1, "leverage (majors only)")
	orderCmd.MarkFlagRequired("account")
	orderCmd.MarkFlagRequired("symbol")
	orderCmd.MarkFlagRequired("side")
	orderCmd.MarkFlagRequired("quantity")
}

func runOrder(cmd *cobra.Command, args []string) error {
	side := market.OrderSide(strings.ToUpper(orderSide))
	if side != market.Buy && side != market.Sell {
		return fmt.Errorf("side must be BUY or SELL, got %q", orderSide)
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx := context.Background()

	// Pull fresh quotes before placing so a cold start can still fill.
	if err := a.aggregator.WarmCache(ctx); err != nil {
		a.log.Warn("price cache warm-up failed", "error", err)
	}
	if _, err := a.aggregator.PollMajors(ctx); err != nil {
		a.log.Warn("majors poll failed", "error", err)
	}
	if market.Classify(orderSymbol) == market.ClassMemecoin {
		if _, err := a.aggregator.PollMemecoins(ctx); err != nil {
			a.log.Warn("memecoin poll failed", "error", err)
		}
	}

	res, err := a.engine.PlaceOrder(ctx, exchange.PlaceOrderRequest{
		AccountID: orderAccount,
		Symbol:    orderSymbol,
		Side:      side,
		Quantity:  orderQuantity,
		Leverage:  orderLeverage,
	})
	if err != nil {
		return err
	}

	if !res.Success {
		fmt.Printf("REJECTED: %s (order %s)\n", res.RejectReason, res.OrderID)
		return nil
	}

	fmt.Printf("FILLED: order %s trade %s\n", res.OrderID, res.TradeID)
	fmt.Printf("  fill price: %.8f  fee: %.4f\n", res.FillPrice, res.Fee)
	if res.AccountTerminated {
		fmt.Printf("  account terminated: %s\n", res.TerminalState)
	}
	return nil
}
