package risk

import (
	"fmt"
	"time"

	"github.com/tradeforge/papertrade/market"
)

// Machine-readable reject reasons. These are persisted on rejected orders
// and surfaced to callers verbatim; they are business outcomes, not errors.
const (
	ReasonInvalidQuantity        = "INVALID_QUANTITY"
	ReasonSymbolNotTradable      = "SYMBOL_NOT_TRADABLE"
	ReasonNoQuote                = "NO_QUOTE_AVAILABLE"
	ReasonQuoteStale             = "QUOTE_STALE"
	ReasonMemecoinNoLeverage     = "MEMECOIN_NO_LEVERAGE"
	ReasonMemecoinSellOwnership  = "MEMECOIN_SELL_REQUIRES_OWNERSHIP"
	ReasonLeverageExceedsMax     = "LEVERAGE_EXCEEDS_MAX"
	ReasonInsufficientCollateral = "INSUFFICIENT_COLLATERAL"
	ReasonBelowMaintenance       = "BELOW_MAINTENANCE"
	ReasonRateLimited            = "ORDER_RATE_LIMITED"
	ReasonAccountNotFound        = "ACCOUNT_NOT_FOUND"
)

// AccountState is the slice of account data the validator needs.
type AccountState struct {
	Status     string // "ACTIVE" unless terminal
	Cash       float64
	Equity     float64
	MarginUsed float64
}

// OrderRequest carries everything needed to validate one order attempt.
type OrderRequest struct {
	Symbol   string
	Side     market.OrderSide
	Quantity float64
	Leverage float64
	Class    market.AssetClass

	Account   AccountState
	Positions []OpenPosition
	Quote     *market.Tick // nil when no quote is cached
	Tradable  map[string]struct{}
	Now       time.Time
}

// ValidationResult reports the first failed check, if any.
type ValidationResult struct {
	Valid  bool
	Reason string
}

func reject(reason string) ValidationResult {
	return ValidationResult{Reason: reason}
}

// Validate runs the order checks in a fixed sequence, short-circuiting on
// the first failure: account state, quantity, tradability, quote
// freshness, asset-class rules, leverage cap.
func Validate(req OrderRequest) ValidationResult {
	if req.Account.Status != "ACTIVE" {
		return reject("ACCOUNT_" + req.Account.Status)
	}
	if req.Quantity <= 0 {
		return reject(ReasonInvalidQuantity)
	}
	if _, ok := req.Tradable[req.Symbol]; !ok {
		return reject(fmt.Sprintf("%s: %s", ReasonSymbolNotTradable, req.Symbol))
	}
	if req.Quote == nil {
		return reject(ReasonNoQuote)
	}
	if req.Now.Sub(req.Quote.At) > market.PriceStaleness {
		return reject(ReasonQuoteStale)
	}

	if req.Class == market.ClassMemecoin {
		if req.Leverage > 1 {
			return reject(ReasonMemecoinNoLeverage)
		}
		if req.Side == market.Sell && ownedLong(req.Positions, req.Symbol) < req.Quantity {
			return reject(ReasonMemecoinSellOwnership)
		}
	}

	if maxLev := req.Class.MaxLeverage(); req.Leverage > maxLev {
		return reject(fmt.Sprintf("%s: %gx > %gx", ReasonLeverageExceedsMax, req.Leverage, maxLev))
	}

	return ValidationResult{Valid: true}
}

func ownedLong(positions []OpenPosition, symbol string) float64 {
	for _, p := range positions {
		if p.Symbol == symbol && p.Side == market.Long {
			return p.Quantity
		}
	}
	return 0
}
