// Package exchange is the authoritative write path for account, position,
// order and trade state. Every order flows through Engine.PlaceOrder and
// every terminal transition through Engine.CheckAndTransition; no other
// component mutates persisted trading state.
package exchange

import (
	"context"
	"time"

	"github.com/tradeforge/papertrade/market"
)

// AccountStatus is the lifecycle state of a trading account. Anything
// other than ACTIVE is terminal: no further orders are accepted.
type AccountStatus string

const (
	StatusActive     AccountStatus = "ACTIVE"
	StatusZeroed     AccountStatus = "ZEROED"
	StatusLiquidated AccountStatus = "LIQUIDATED"
	StatusEnded      AccountStatus = "ENDED"
)

// Account owns cash, derived equity/margin, and a lifecycle status.
type Account struct {
	ID          string
	Cash        float64
	Equity      float64
	MarginUsed  float64
	Status      AccountStatus
	DeathReason string
	DeathEquity float64
	DeathAt     *time.Time
	CreatedAt   time.Time
}

// Position is one open or closed holding, keyed by (account, symbol)
// while open. Quantity is strictly positive; direction lives in Side.
type Position struct {
	ID            string
	AccountID     string
	Symbol        string
	Side          market.PositionSide
	Quantity      float64
	AvgEntryPrice float64
	MarkPrice     float64
	UnrealizedPnL float64
	RealizedPnL   float64
	Open          bool
	OpenedAt      time.Time
	ClosedAt      *time.Time
}

// OrderStatus is the outcome of an order attempt.
type OrderStatus string

const (
	OrderFilled   OrderStatus = "FILLED"
	OrderRejected OrderStatus = "REJECTED"
)

// Order is the immutable record of one order attempt, append-only.
type Order struct {
	ID             string
	AccountID      string
	Symbol         string
	Side           market.OrderSide
	Quantity       float64
	Leverage       float64
	Status         OrderStatus
	RejectReason   string
	RequestedPrice float64
	FilledPrice    float64
	Fee            float64
	SlippageBps    float64
	CreatedAt      time.Time
}

// Trade is the immutable execution record of a FILLED order, append-only.
type Trade struct {
	ID          string
	OrderID     string
	AccountID   string
	Symbol      string
	Side        market.OrderSide
	Quantity    float64
	Price       float64
	Fee         float64
	RealizedPnL float64
	CreatedAt   time.Time
}

// AccountEvent is one entry of the audit log: order outcomes and terminal
// transitions, with a JSON payload snapshot.
type AccountEvent struct {
	ID        string
	AccountID string
	Type      string
	Payload   map[string]any
	CreatedAt time.Time
}

// PositionClose describes closing an existing position row inside a
// settlement.
type PositionClose struct {
	PositionID  string
	ClosePrice  float64
	RealizedPnL float64 // cumulative realized after this close
	ClosedAt    time.Time
}

// Settlement is everything a FILLED order changes, applied by the store in
// a single transaction so an order can never persist without its trade,
// position effects and cash update.
type Settlement struct {
	Order          Order
	Trade          Trade
	ClosePosition  *PositionClose
	UpdatePosition *Position
	InsertPosition *Position
	AccountID      string
	NewCash        float64
	Event          AccountEvent
}

// Store is the persistence surface the engine drives. Implemented by
// store.SQLite; tests substitute an in-memory fake.
type Store interface {
	CreateAccount(ctx context.Context, a Account) error
	GetAccount(ctx context.Context, id string) (Account, error)
	ListActiveAccounts(ctx context.Context) ([]Account, error)
	UpdateAccountSolvency(ctx context.Context, id string, equity, marginUsed float64) error
	MarkAccountTerminal(ctx context.Context, id string, status AccountStatus, reason string, equity float64, at time.Time) error

	OpenPositions(ctx context.Context, accountID string) ([]Position, error)
	RefreshPositionMark(ctx context.Context, positionID string, markPrice, unrealizedPnL float64) error
	ForceClosePosition(ctx context.Context, c PositionClose) error

	InsertOrder(ctx context.Context, o Order) error
	ApplySettlement(ctx context.Context, s Settlement) error

	AppendEvent(ctx context.Context, e AccountEvent) error
}

// MarketData is the quote and universe surface the engine reads. The feed
// aggregator implements it.
type MarketData interface {
	// Quote returns a usable (non-stale) tick, or ok=false.
	Quote(symbol string) (market.Tick, bool)
	// LastMark returns the most recent tick regardless of staleness.
	LastMark(symbol string) (market.Tick, bool)
	// Universe returns the current tradable symbol set.
	Universe(ctx context.Context) ([]market.UniverseToken, error)
}

// OrderResult is what a caller gets back from PlaceOrder. Business
// rejections land here as RejectReason, not as an error.
type OrderResult struct {
	Success           bool
	OrderID           string
	TradeID           string
	FillPrice         float64
	Fee               float64
	RejectReason      string
	AccountTerminated bool
	TerminalState     AccountStatus
}

// TransitionResult reports the outcome of a terminal-state check.
type TransitionResult struct {
	Transitioned bool
	NewState     AccountStatus
}
