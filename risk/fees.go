// Package risk holds the pure calculators of the exchange: fees and
// slippage, margin and solvency, and order validation. Nothing in this
// package performs I/O or reads a clock; identical inputs always produce
// identical outputs so fills can be replayed and tested deterministically.
package risk

import (
	"github.com/tradeforge/papertrade/market"
)

// FillQuote is the priced result of a prospective fill.
type FillQuote struct {
	FeeBps      float64
	FeeAmount   float64
	SlippageBps float64
	FillPrice   float64
}

// PriceFill computes fee, slippage and the resulting fill price for an
// order against the mark price. The fill price is always adverse to the
// trader: above mark for a BUY, below mark for a SELL.
//
// Memecoin slippage scales with price impact, notional relative to pool
// liquidity, and is capped; majors pay a flat spread.
func PriceFill(markPrice, quantity float64, class market.AssetClass, side market.OrderSide, liquidityUSD float64) FillQuote {
	notional := quantity * markPrice

	feeBps := market.MemecoinFeeBps
	if class == market.ClassMajor {
		feeBps = market.MajorsFeeBps
	}
	feeAmount := notional * feeBps / 10_000

	var slippageBps float64
	if class == market.ClassMajor {
		slippageBps = market.MajorsSlippageBps
	} else {
		slippageBps = market.MemecoinBaseSlippageBps
		if liquidityUSD > 0 {
			// 100 bps of slippage per 1% of pool liquidity consumed.
			impact := notional / liquidityUSD
			slippageBps += impact * 100 * 100
			if slippageBps > market.MaxSlippageBps {
				slippageBps = market.MaxSlippageBps
			}
		}
	}

	mult := slippageBps / 10_000
	fillPrice := markPrice * (1 - mult)
	if side == market.Buy {
		fillPrice = markPrice * (1 + mult)
	}

	return FillQuote{
		FeeBps:      feeBps,
		FeeAmount:   feeAmount,
		SlippageBps: slippageBps,
		FillPrice:   fillPrice,
	}
}
