package exchange

import (
	"math"

	"github.com/tradeforge/papertrade/market"
)

// UpdateType classifies a position mutation.
type UpdateType string

const (
	UpdateOpen     UpdateType = "OPEN"
	UpdateIncrease UpdateType = "INCREASE"
	UpdateReduce   UpdateType = "REDUCE"
	UpdateClose    UpdateType = "CLOSE"
	UpdateFlip     UpdateType = "FLIP"
)

// PositionUpdate is the pure result of applying a fill to an existing
// position (or to none).
type PositionUpdate struct {
	Type        UpdateType
	PositionID  string // empty for OPEN
	NewQuantity float64
	NewAvgEntry float64
	RealizedPnL float64
	ShouldClose bool
}

// ComputePositionUpdate turns a fill into a position mutation. It is a
// pure state-transition function:
//
//   - no open position: OPEN at the fill price
//   - same direction: INCREASE, entry re-averaged by quantity
//   - opposite, smaller: REDUCE, PnL realized on the filled quantity
//   - opposite, equal: CLOSE
//   - opposite, larger: FLIP for majors (excess opens the other way at the
//     fill price); memecoins CLOSE and discard the excess, since shorting
//     is not permitted.
func ComputePositionUpdate(class market.AssetClass, orderSide market.OrderSide, fillQty, fillPrice float64, existing *Position) PositionUpdate {
	fillSide := market.SideFor(orderSide)

	if existing == nil || !existing.Open {
		return PositionUpdate{
			Type:        UpdateOpen,
			NewQuantity: fillQty,
			NewAvgEntry: fillPrice,
		}
	}

	pos := existing

	if pos.Side == fillSide {
		totalQty := pos.Quantity + fillQty
		newAvg := (pos.AvgEntryPrice*pos.Quantity + fillPrice*fillQty) / totalQty
		return PositionUpdate{
			Type:        UpdateIncrease,
			PositionID:  pos.ID,
			NewQuantity: totalQty,
			NewAvgEntry: newAvg,
		}
	}

	// Opposite direction: realize PnL per unit against the average entry.
	pnlPerUnit := fillPrice - pos.AvgEntryPrice
	if pos.Side == market.Short {
		pnlPerUnit = -pnlPerUnit
	}

	switch {
	case fillQty < pos.Quantity:
		return PositionUpdate{
			Type:        UpdateReduce,
			PositionID:  pos.ID,
			NewQuantity: pos.Quantity - fillQty,
			NewAvgEntry: pos.AvgEntryPrice,
			RealizedPnL: pnlPerUnit * fillQty,
		}
	case fillQty == pos.Quantity:
		return PositionUpdate{
			Type:        UpdateClose,
			PositionID:  pos.ID,
			RealizedPnL: pnlPerUnit * fillQty,
			ShouldClose: true,
		}
	}

	// Excess quantity beyond the existing position.
	if class != market.ClassMajor {
		// Spot-only instruments cannot flip short; the order is capped
		// to the owned quantity in effect.
		return PositionUpdate{
			Type:        UpdateClose,
			PositionID:  pos.ID,
			RealizedPnL: pnlPerUnit * pos.Quantity,
			ShouldClose: true,
		}
	}

	// The excess opens in the fill's direction at the same fill price.
	return PositionUpdate{
		Type:        UpdateFlip,
		PositionID:  pos.ID,
		NewQuantity: fillQty - pos.Quantity,
		NewAvgEntry: fillPrice,
		RealizedPnL: pnlPerUnit * pos.Quantity,
		ShouldClose: true,
	}
}

// markToMarket recomputes a position's unrealized PnL at the given mark.
func markToMarket(p *Position, markPrice float64) {
	p.MarkPrice = markPrice
	diff := markPrice - p.AvgEntryPrice
	if p.Side == market.Short {
		diff = -diff
	}
	p.UnrealizedPnL = diff * math.Abs(p.Quantity)
}
