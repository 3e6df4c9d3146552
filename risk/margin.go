package risk

import (
	"fmt"
	"math"

	"github.com/tradeforge/papertrade/market"
)

// OpenPosition is the snapshot of one open position that the margin
// calculators consume. MarkPrice falls back to the entry price when no
// fresher mark is known.
type OpenPosition struct {
	Symbol     string
	Side       market.PositionSide
	Quantity   float64
	EntryPrice float64
	MarkPrice  float64
}

// MarginCheck is the full breakdown of a collateral check, kept for the
// reject reason and for callers that want to report the numbers.
type MarginCheck struct {
	Notional       float64
	InitialMargin  float64
	TotalMargin    float64
	Maintenance    float64
	FreeCollateral float64
	CanOpen        bool
	Reason         string
}

// CheckMargin decides whether a new position with the given notional and
// requested leverage fits the account's collateral. Leverage above the
// class cap is an outright rejection; within the computation the effective
// leverage is clamped to the cap, so both enforcement points hold even if
// the validator was bypassed.
func CheckMargin(equity, marginUsed, notional, leverage float64, class market.AssetClass) MarginCheck {
	maxLev := class.MaxLeverage()
	effective := math.Min(leverage, maxLev)

	initial := notional / effective
	total := marginUsed + initial
	maintenance := total * market.MaintenanceRatio
	free := equity - total

	chk := MarginCheck{
		Notional:       notional,
		InitialMargin:  initial,
		TotalMargin:    total,
		Maintenance:    maintenance,
		FreeCollateral: free,
		CanOpen:        true,
	}

	switch {
	case leverage > maxLev:
		chk.CanOpen = false
		chk.Reason = fmt.Sprintf("%s: %gx > %gx", ReasonLeverageExceedsMax, leverage, maxLev)
	case free < 0:
		chk.CanOpen = false
		chk.Reason = fmt.Sprintf("%s: need %.2f, have %.2f", ReasonInsufficientCollateral, initial, equity-marginUsed)
	case equity < maintenance:
		chk.CanOpen = false
		chk.Reason = fmt.Sprintf("%s: equity %.2f below %.2f", ReasonBelowMaintenance, equity, maintenance)
	}

	return chk
}

// ComputeMarginUsed sums reserved collateral over open positions. Only
// majors are leveraged; memecoin spot holdings reserve nothing.
func ComputeMarginUsed(positions []OpenPosition) float64 {
	var total float64
	for _, p := range positions {
		if market.Classify(p.Symbol) != market.ClassMajor {
			continue
		}
		total += math.Abs(p.Quantity) * p.MarkPrice / market.LeverageCap
	}
	return total
}

// ComputeUnrealizedPnL is the directed PnL of a single position at the
// given mark.
func ComputeUnrealizedPnL(side market.PositionSide, quantity, entryPrice, markPrice float64) float64 {
	diff := markPrice - entryPrice
	if side == market.Short {
		diff = -diff
	}
	return diff * math.Abs(quantity)
}

// ComputeEquity is cash plus the sum of directed unrealized PnL across
// open positions.
func ComputeEquity(cash float64, positions []OpenPosition) float64 {
	equity := cash
	for _, p := range positions {
		equity += ComputeUnrealizedPnL(p.Side, p.Quantity, p.EntryPrice, p.MarkPrice)
	}
	return equity
}

// TerminalCheck is the result of a solvency check.
type TerminalCheck struct {
	IsTerminal bool
	Reason     string // "ZEROED" or "LIQUIDATED"
}

// CheckTerminal decides whether an account has reached a terminal state:
// ZEROED when equity is depleted, otherwise LIQUIDATED when equity has
// fallen below the maintenance requirement of its open margin.
func CheckTerminal(equity, marginUsed float64) TerminalCheck {
	if equity <= market.ZeroEpsilon {
		return TerminalCheck{IsTerminal: true, Reason: "ZEROED"}
	}
	if marginUsed > 0 && equity < marginUsed*market.MaintenanceRatio {
		return TerminalCheck{IsTerminal: true, Reason: "LIQUIDATED"}
	}
	return TerminalCheck{}
}
