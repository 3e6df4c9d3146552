package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tradeforge/papertrade/market"
	"github.com/tradeforge/papertrade/pkg/id"
	"github.com/tradeforge/papertrade/risk"
)

// Engine composes the validator, fee and margin calculators and the
// position state machine into the order pipeline:
//
//	REQUESTED -> VALIDATED -> PRICED -> MARGIN-CHECKED -> FILLED|REJECTED -> SETTLED
type Engine struct {
	store    Store
	md       MarketData
	locks    *accountLocks
	limiters *accountLimiters
	log      *slog.Logger
	now      func() time.Time
}

func NewEngine(store Store, md MarketData, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		store:    store,
		md:       md,
		locks:    newAccountLocks(),
		limiters: newAccountLimiters(),
		log:      log,
		now:      time.Now,
	}
}

// CreateAccount provisions a new ACTIVE account with the starting balance.
func (e *Engine) CreateAccount(ctx context.Context) (Account, error) {
	a := Account{
		ID:        id.New(),
		Cash:      market.StartingBalance,
		Equity:    market.StartingBalance,
		Status:    StatusActive,
		CreatedAt: e.now(),
	}
	if err := e.store.CreateAccount(ctx, a); err != nil {
		return Account{}, fmt.Errorf("create account: %w", err)
	}
	return a, nil
}

// GetAccount returns an account with its open positions.
func (e *Engine) GetAccount(ctx context.Context, accountID string) (Account, []Position, error) {
	a, err := e.store.GetAccount(ctx, accountID)
	if err != nil {
		return Account{}, nil, fmt.Errorf("get account: %w", err)
	}
	positions, err := e.store.OpenPositions(ctx, accountID)
	if err != nil {
		return Account{}, nil, fmt.Errorf("open positions: %w", err)
	}
	return a, positions, nil
}

// PlaceOrderRequest is one order attempt. Leverage defaults to 1.
type PlaceOrderRequest struct {
	AccountID string
	Symbol    string
	Side      market.OrderSide
	Quantity  float64
	Leverage  float64
}

// PlaceOrder runs the full pipeline for one order. Business rejections
// come back as a REJECTED OrderResult; the error return is reserved for
// infrastructure failures.
func (e *Engine) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (OrderResult, error) {
	if req.Leverage <= 0 {
		req.Leverage = 1
	}

	unlock := e.locks.lock(req.AccountID)
	defer unlock()

	if !e.limiters.allow(req.AccountID) {
		res, err := e.rejectOrder(ctx, req, 0, risk.ReasonRateLimited)
		return res, err
	}

	account, err := e.store.GetAccount(ctx, req.AccountID)
	if err != nil {
		// Missing account is fatal for this request only; nothing was
		// written, so shared state is untouched.
		return OrderResult{RejectReason: risk.ReasonAccountNotFound}, nil
	}

	positions, err := e.store.OpenPositions(ctx, req.AccountID)
	if err != nil {
		return OrderResult{}, fmt.Errorf("place order: load positions: %w", err)
	}

	universe, err := e.md.Universe(ctx)
	if err != nil {
		return OrderResult{}, fmt.Errorf("place order: load universe: %w", err)
	}
	tradable := make(map[string]struct{}, len(universe))
	for _, t := range universe {
		tradable[t.Symbol] = struct{}{}
	}

	var quote *market.Tick
	if q, ok := e.md.Quote(req.Symbol); ok {
		quote = &q
	}

	class := market.Classify(req.Symbol)

	validation := risk.Validate(risk.OrderRequest{
		Symbol:   req.Symbol,
		Side:     req.Side,
		Quantity: req.Quantity,
		Leverage: req.Leverage,
		Class:    class,
		Account: risk.AccountState{
			Status:     string(account.Status),
			Cash:       account.Cash,
			Equity:     account.Equity,
			MarginUsed: account.MarginUsed,
		},
		Positions: toRiskPositions(positions),
		Quote:     quote,
		Tradable:  tradable,
		Now:       e.now(),
	})
	if !validation.Valid {
		return e.rejectOrder(ctx, req, 0, validation.Reason)
	}

	// Price the fill adversely to the trader.
	mark := quote.Price
	fill := risk.PriceFill(mark, req.Quantity, class, req.Side, quote.LiquidityUSD)

	// Margin is checked against the fill notional, not the mark notional.
	notional := req.Quantity * fill.FillPrice
	marginChk := risk.CheckMargin(account.Equity, account.MarginUsed, notional, req.Leverage, class)
	if !marginChk.CanOpen {
		return e.rejectOrder(ctx, req, mark, marginChk.Reason)
	}

	existing := findOpen(positions, req.Symbol)
	update := ComputePositionUpdate(class, req.Side, req.Quantity, fill.FillPrice, existing)

	settlement := e.buildSettlement(req, account, existing, update, mark, fill)
	if err := e.store.ApplySettlement(ctx, settlement); err != nil {
		return OrderResult{}, fmt.Errorf("place order: settle: %w", err)
	}

	e.log.Info("order filled",
		"account", req.AccountID,
		"symbol", req.Symbol,
		"side", req.Side,
		"quantity", req.Quantity,
		"fill_price", fill.FillPrice,
		"fee", fill.FeeAmount,
		"update", update.Type,
	)

	// Terminal check runs under the same account lock.
	transition, err := e.checkAndTransitionLocked(ctx, req.AccountID)
	if err != nil {
		e.log.Warn("post-fill terminal check failed", "account", req.AccountID, "error", err)
	}

	return OrderResult{
		Success:           true,
		OrderID:           settlement.Order.ID,
		TradeID:           settlement.Trade.ID,
		FillPrice:         fill.FillPrice,
		Fee:               fill.FeeAmount,
		AccountTerminated: transition.Transitioned,
		TerminalState:     transition.NewState,
	}, nil
}

// rejectOrder persists a REJECTED order record plus its audit event and
// returns the rejection as a non-error outcome.
func (e *Engine) rejectOrder(ctx context.Context, req PlaceOrderRequest, requestedPrice float64, reason string) (OrderResult, error) {
	o := Order{
		ID:             id.New(),
		AccountID:      req.AccountID,
		Symbol:         req.Symbol,
		Side:           req.Side,
		Quantity:       req.Quantity,
		Leverage:       req.Leverage,
		Status:         OrderRejected,
		RejectReason:   reason,
		RequestedPrice: requestedPrice,
		CreatedAt:      e.now(),
	}
	if err := e.store.InsertOrder(ctx, o); err != nil {
		return OrderResult{}, fmt.Errorf("record rejected order: %w", err)
	}
	if err := e.store.AppendEvent(ctx, AccountEvent{
		ID:        id.New(),
		AccountID: req.AccountID,
		Type:      "ORDER_REJECTED",
		Payload: map[string]any{
			"orderId":  o.ID,
			"symbol":   req.Symbol,
			"side":     req.Side,
			"quantity": req.Quantity,
			"reason":   reason,
		},
		CreatedAt: e.now(),
	}); err != nil {
		return OrderResult{}, fmt.Errorf("record rejected order event: %w", err)
	}

	e.log.Info("order rejected",
		"account", req.AccountID,
		"symbol", req.Symbol,
		"side", req.Side,
		"reason", reason,
	)

	return OrderResult{OrderID: o.ID, RejectReason: reason}, nil
}

// buildSettlement assembles every row a fill changes. Cash moves by
// -(notional+fee) on BUY and +(notional-fee) on SELL, plus any realized
// PnL from reducing or closing against an existing position.
func (e *Engine) buildSettlement(req PlaceOrderRequest, account Account, existing *Position, update PositionUpdate, mark float64, fill risk.FillQuote) Settlement {
	now := e.now()
	notional := req.Quantity * fill.FillPrice

	order := Order{
		ID:             id.New(),
		AccountID:      req.AccountID,
		Symbol:         req.Symbol,
		Side:           req.Side,
		Quantity:       req.Quantity,
		Leverage:       req.Leverage,
		Status:         OrderFilled,
		RequestedPrice: mark,
		FilledPrice:    fill.FillPrice,
		Fee:            fill.FeeAmount,
		SlippageBps:    fill.SlippageBps,
		CreatedAt:      now,
	}

	trade := Trade{
		ID:          id.New(),
		OrderID:     order.ID,
		AccountID:   req.AccountID,
		Symbol:      req.Symbol,
		Side:        req.Side,
		Quantity:    req.Quantity,
		Price:       fill.FillPrice,
		Fee:         fill.FeeAmount,
		RealizedPnL: update.RealizedPnL,
		CreatedAt:   now,
	}

	s := Settlement{
		Order:     order,
		Trade:     trade,
		AccountID: req.AccountID,
	}

	priorRealized := 0.0
	if existing != nil {
		priorRealized = existing.RealizedPnL
	}

	if update.ShouldClose && update.PositionID != "" {
		s.ClosePosition = &PositionClose{
			PositionID:  update.PositionID,
			ClosePrice:  fill.FillPrice,
			RealizedPnL: priorRealized + update.RealizedPnL,
			ClosedAt:    now,
		}
	}

	switch update.Type {
	case UpdateOpen, UpdateFlip:
		p := Position{
			ID:            id.New(),
			AccountID:     req.AccountID,
			Symbol:        req.Symbol,
			Side:          market.SideFor(req.Side),
			Quantity:      update.NewQuantity,
			AvgEntryPrice: update.NewAvgEntry,
			MarkPrice:     fill.FillPrice,
			Open:          true,
			OpenedAt:      now,
		}
		s.InsertPosition = &p
	case UpdateIncrease, UpdateReduce:
		p := *existing
		p.Quantity = update.NewQuantity
		p.AvgEntryPrice = update.NewAvgEntry
		p.RealizedPnL = priorRealized + update.RealizedPnL
		markToMarket(&p, fill.FillPrice)
		s.UpdatePosition = &p
	}

	cashDelta := -(notional + fill.FeeAmount)
	if req.Side == market.Sell {
		cashDelta = notional - fill.FeeAmount
	}
	s.NewCash = account.Cash + cashDelta + update.RealizedPnL

	s.Event = AccountEvent{
		ID:        id.New(),
		AccountID: req.AccountID,
		Type:      "ORDER_FILLED",
		Payload: map[string]any{
			"orderId":     order.ID,
			"tradeId":     trade.ID,
			"symbol":      req.Symbol,
			"side":        req.Side,
			"quantity":    req.Quantity,
			"fillPrice":   fill.FillPrice,
			"fee":         fill.FeeAmount,
			"realizedPnl": update.RealizedPnL,
		},
		CreatedAt: now,
	}

	return s
}

func findOpen(positions []Position, symbol string) *Position {
	for i := range positions {
		if positions[i].Symbol == symbol && positions[i].Open {
			return &positions[i]
		}
	}
	return nil
}

func toRiskPositions(positions []Position) []risk.OpenPosition {
	out := make([]risk.OpenPosition, 0, len(positions))
	for _, p := range positions {
		mark := p.MarkPrice
		if mark == 0 {
			mark = p.AvgEntryPrice
		}
		out = append(out, risk.OpenPosition{
			Symbol:     p.Symbol,
			Side:       p.Side,
			Quantity:   p.Quantity,
			EntryPrice: p.AvgEntryPrice,
			MarkPrice:  mark,
		})
	}
	return out
}
