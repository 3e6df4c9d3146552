package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var universeCmd = &cobra.Command{
	Use:   "universe",
	Short: "Refresh and print the tradable universe",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		universe, err := a.aggregator.RefreshUniverse(context.Background())
		if err != nil {
			return err
		}

		for _, t := range universe {
			if t.IsMajor {
				fmt.Printf("%-44s %s\n", t.Symbol, t.Name)
				continue
			}
			fmt.Printf("%-44s %s  liq $%.0f  vol24h $%.0f\n",
				t.Symbol, t.Name, t.LiquidityUSD, t.Volume24hUSD)
		}
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Probe the upstream market data sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		failed := false
		for name, err := range a.aggregator.HealthCheck(context.Background()) {
			if err != nil {
				failed = true
				fmt.Printf("%-12s DOWN: %v\n", name, err)
				continue
			}
			fmt.Printf("%-12s ok\n", name)
		}
		if failed {
			return fmt.Errorf("one or more sources unavailable")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(universeCmd)
	rootCmd.AddCommand(healthCmd)
}
