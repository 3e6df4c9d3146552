package exchange

import (
	"context"
	"fmt"

	"github.com/tradeforge/papertrade/market"
	"github.com/tradeforge/papertrade/pkg/id"
	"github.com/tradeforge/papertrade/risk"
)

// CheckAndTransition refreshes an account's solvency and, if a terminal
// threshold is breached, force-closes every open position and flips the
// account to ZEROED or LIQUIDATED. It is idempotent: once the account is
// no longer ACTIVE the call is a no-op, and the per-account lock makes
// overlapping sweeps converge without double-closing.
func (e *Engine) CheckAndTransition(ctx context.Context, accountID string) (TransitionResult, error) {
	unlock := e.locks.lock(accountID)
	defer unlock()
	return e.checkAndTransitionLocked(ctx, accountID)
}

func (e *Engine) checkAndTransitionLocked(ctx context.Context, accountID string) (TransitionResult, error) {
	account, err := e.store.GetAccount(ctx, accountID)
	if err != nil {
		return TransitionResult{}, fmt.Errorf("terminal check: %w", err)
	}
	if account.Status != StatusActive {
		return TransitionResult{}, nil
	}

	positions, err := e.store.OpenPositions(ctx, accountID)
	if err != nil {
		return TransitionResult{}, fmt.Errorf("terminal check: load positions: %w", err)
	}

	// Mark open positions to the freshest price we have and persist the
	// refresh, so equity reflects the market rather than the last fill.
	for i := range positions {
		p := &positions[i]
		mark := p.MarkPrice
		if q, ok := e.md.Quote(p.Symbol); ok {
			mark = q.Price
		} else if last, ok := e.md.LastMark(p.Symbol); ok {
			mark = last.Price
		}
		if mark == 0 {
			mark = p.AvgEntryPrice
		}
		markToMarket(p, mark)
		if err := e.store.RefreshPositionMark(ctx, p.ID, p.MarkPrice, p.UnrealizedPnL); err != nil {
			return TransitionResult{}, fmt.Errorf("terminal check: refresh mark: %w", err)
		}
	}

	snapshot := toRiskPositions(positions)
	equity := risk.ComputeEquity(account.Cash, snapshot)
	marginUsed := risk.ComputeMarginUsed(snapshot)

	if err := e.store.UpdateAccountSolvency(ctx, accountID, equity, marginUsed); err != nil {
		return TransitionResult{}, fmt.Errorf("terminal check: refresh account: %w", err)
	}

	terminal := risk.CheckTerminal(equity, marginUsed)
	if !terminal.IsTerminal {
		return TransitionResult{}, nil
	}

	e.log.Warn("account breached solvency",
		"account", accountID,
		"state", terminal.Reason,
		"equity", equity,
		"margin_used", marginUsed,
	)

	// Force-close everything, best effort: a failure on one position must
	// not leave the others open or the account ACTIVE past insolvency.
	var closeErrs []error
	closed := 0
	for _, p := range positions {
		if err := e.forceClose(ctx, p); err != nil {
			closeErrs = append(closeErrs, fmt.Errorf("close %s: %w", p.Symbol, err))
			continue
		}
		closed++
	}

	newState := StatusZeroed
	deathReason := "EQUITY_DEPLETED"
	if terminal.Reason == "LIQUIDATED" {
		newState = StatusLiquidated
		deathReason = "MAINTENANCE_MARGIN_BREACH"
	}

	now := e.now()
	if err := e.store.MarkAccountTerminal(ctx, accountID, newState, deathReason, equity, now); err != nil {
		return TransitionResult{}, fmt.Errorf("terminal check: mark terminal: %w", err)
	}

	if err := e.store.AppendEvent(ctx, AccountEvent{
		ID:        id.New(),
		AccountID: accountID,
		Type:      terminal.Reason,
		Payload: map[string]any{
			"equity":          equity,
			"marginUsed":      marginUsed,
			"positionsClosed": closed,
			"timestamp":       now.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		},
		CreatedAt: now,
	}); err != nil {
		return TransitionResult{}, fmt.Errorf("terminal check: append event: %w", err)
	}

	res := TransitionResult{Transitioned: true, NewState: newState}
	if len(closeErrs) > 0 {
		return res, fmt.Errorf("terminal check: %d of %d forced closes failed: %v", len(closeErrs), len(positions), closeErrs)
	}
	return res, nil
}

// forceClose settles one position as a forced closing fill on the side
// opposite the position, at the freshest mark available.
func (e *Engine) forceClose(ctx context.Context, p Position) error {
	mark := p.MarkPrice
	liquidity := 0.0
	if q, ok := e.md.Quote(p.Symbol); ok {
		mark = q.Price
		liquidity = q.LiquidityUSD
	} else if last, ok := e.md.LastMark(p.Symbol); ok {
		mark = last.Price
		liquidity = last.LiquidityUSD
	}
	if mark == 0 {
		mark = p.AvgEntryPrice
	}

	class := market.Classify(p.Symbol)
	fill := risk.PriceFill(mark, p.Quantity, class, p.Side.Opposite(), liquidity)

	realized := risk.ComputeUnrealizedPnL(p.Side, p.Quantity, p.AvgEntryPrice, fill.FillPrice)

	return e.store.ForceClosePosition(ctx, PositionClose{
		PositionID:  p.ID,
		ClosePrice:  fill.FillPrice,
		RealizedPnL: p.RealizedPnL + realized - fill.FeeAmount,
		ClosedAt:    e.now(),
	})
}

// SweepResult summarizes one lifecycle pass over the active accounts.
type SweepResult struct {
	Checked      int
	Transitioned int
}

// Sweep runs the terminal check over every ACTIVE account. Safe to invoke
// on a timer; accounts already terminal are skipped by the guard.
func (e *Engine) Sweep(ctx context.Context) (SweepResult, error) {
	accounts, err := e.store.ListActiveAccounts(ctx)
	if err != nil {
		return SweepResult{}, fmt.Errorf("sweep: %w", err)
	}

	res := SweepResult{Checked: len(accounts)}
	for _, a := range accounts {
		tr, err := e.CheckAndTransition(ctx, a.ID)
		if err != nil {
			e.log.Warn("sweep: terminal check failed", "account", a.ID, "error", err)
		}
		if tr.Transitioned {
			res.Transitioned++
		}
	}
	return res, nil
}
