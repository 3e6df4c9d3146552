package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tradeforge/papertrade/exchange"
)

func (s *SQLite) OpenPositions(ctx context.Context, accountID string) ([]exchange.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, symbol, side, quantity, avg_entry_price, mark_price,
		       unrealized_pnl, realized_pnl, is_open, opened_at, closed_at
		FROM positions WHERE account_id = ? AND is_open = 1 ORDER BY opened_at`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []exchange.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPosition(rows *sql.Rows) (exchange.Position, error) {
	var p exchange.Position
	var closedAt sql.NullTime
	err := rows.Scan(&p.ID, &p.AccountID, &p.Symbol, &p.Side, &p.Quantity,
		&p.AvgEntryPrice, &p.MarkPrice, &p.UnrealizedPnL, &p.RealizedPnL,
		&p.Open, &p.OpenedAt, &closedAt)
	if err != nil {
		return exchange.Position{}, err
	}
	if closedAt.Valid {
		t := closedAt.Time
		p.ClosedAt = &t
	}
	return p, nil
}

func (s *SQLite) RefreshPositionMark(ctx context.Context, positionID string, markPrice, unrealizedPnL float64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE positions SET mark_price = ?, unrealized_pnl = ? WHERE id = ? AND is_open = 1`,
		markPrice, unrealizedPnL, positionID)
	return err
}

func (s *SQLite) ForceClosePosition(ctx context.Context, c exchange.PositionClose) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE positions
		SET is_open = 0, closed_at = ?, mark_price = ?, realized_pnl = ?,
		    unrealized_pnl = 0, quantity = 0
		WHERE id = ? AND is_open = 1`,
		c.ClosedAt, c.ClosePrice, c.RealizedPnL, c.PositionID)
	return err
}

func (s *SQLite) InsertOrder(ctx context.Context, o exchange.Order) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders
		(id, account_id, symbol, side, quantity, leverage, status, reject_reason,
		 requested_price, filled_price, fee, slippage_bps, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.AccountID, o.Symbol, o.Side, o.Quantity, o.Leverage, o.Status,
		o.RejectReason, o.RequestedPrice, o.FilledPrice, o.Fee, o.SlippageBps, o.CreatedAt)
	return err
}

// ApplySettlement writes the full effect of a FILLED order in one
// transaction: order, position mutations, trade, cash and audit event. A
// partial settlement can never persist.
func (s *SQLite) ApplySettlement(ctx context.Context, st exchange.Settlement) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin settlement: %w", err)
	}
	defer tx.Rollback()

	o := st.Order
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO orders
		(id, account_id, symbol, side, quantity, leverage, status, reject_reason,
		 requested_price, filled_price, fee, slippage_bps, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.AccountID, o.Symbol, o.Side, o.Quantity, o.Leverage, o.Status,
		o.RejectReason, o.RequestedPrice, o.FilledPrice, o.Fee, o.SlippageBps, o.CreatedAt); err != nil {
		return fmt.Errorf("settle order: %w", err)
	}

	if c := st.ClosePosition; c != nil {
		if _, err := tx.ExecContext(ctx, `
			UPDATE positions
			SET is_open = 0, closed_at = ?, mark_price = ?, realized_pnl = ?,
			    unrealized_pnl = 0, quantity = 0
			WHERE id = ? AND is_open = 1`,
			c.ClosedAt, c.ClosePrice, c.RealizedPnL, c.PositionID); err != nil {
			return fmt.Errorf("settle close position: %w", err)
		}
	}

	if p := st.UpdatePosition; p != nil {
		if _, err := tx.ExecContext(ctx, `
			UPDATE positions
			SET quantity = ?, avg_entry_price = ?, mark_price = ?,
			    unrealized_pnl = ?, realized_pnl = ?
			WHERE id = ? AND is_open = 1`,
			p.Quantity, p.AvgEntryPrice, p.MarkPrice, p.UnrealizedPnL,
			p.RealizedPnL, p.ID); err != nil {
			return fmt.Errorf("settle update position: %w", err)
		}
	}

	if p := st.InsertPosition; p != nil {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO positions
			(id, account_id, symbol, side, quantity, avg_entry_price, mark_price,
			 unrealized_pnl, realized_pnl, is_open, opened_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)`,
			p.ID, p.AccountID, p.Symbol, p.Side, p.Quantity, p.AvgEntryPrice,
			p.MarkPrice, p.UnrealizedPnL, p.RealizedPnL, p.OpenedAt); err != nil {
			return fmt.Errorf("settle insert position: %w", err)
		}
	}

	t := st.Trade
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO trades
		(id, order_id, account_id, symbol, side, quantity, price, fee, realized_pnl, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.OrderID, t.AccountID, t.Symbol, t.Side, t.Quantity, t.Price,
		t.Fee, t.RealizedPnL, t.CreatedAt); err != nil {
		return fmt.Errorf("settle trade: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE accounts SET cash = ? WHERE id = ?`,
		st.NewCash, st.AccountID); err != nil {
		return fmt.Errorf("settle cash: %w", err)
	}

	payload, err := jsonPayload(st.Event.Payload)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO account_events (id, account_id, event_type, payload, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		st.Event.ID, st.Event.AccountID, st.Event.Type, payload, st.Event.CreatedAt); err != nil {
		return fmt.Errorf("settle event: %w", err)
	}

	return tx.Commit()
}

// ListOrders returns the order log for one account, newest first.
func (s *SQLite) ListOrders(ctx context.Context, accountID string, limit int) ([]exchange.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, symbol, side, quantity, leverage, status, reject_reason,
		       requested_price, filled_price, fee, slippage_bps, created_at
		FROM orders WHERE account_id = ? ORDER BY created_at DESC LIMIT ?`,
		accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []exchange.Order
	for rows.Next() {
		var o exchange.Order
		if err := rows.Scan(&o.ID, &o.AccountID, &o.Symbol, &o.Side, &o.Quantity,
			&o.Leverage, &o.Status, &o.RejectReason, &o.RequestedPrice,
			&o.FilledPrice, &o.Fee, &o.SlippageBps, &o.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ListTrades returns the execution log for one account, newest first.
func (s *SQLite) ListTrades(ctx context.Context, accountID string, limit int) ([]exchange.Trade, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, account_id, symbol, side, quantity, price, fee, realized_pnl, created_at
		FROM trades WHERE account_id = ? ORDER BY created_at DESC LIMIT ?`,
		accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []exchange.Trade
	for rows.Next() {
		var t exchange.Trade
		if err := rows.Scan(&t.ID, &t.OrderID, &t.AccountID, &t.Symbol, &t.Side,
			&t.Quantity, &t.Price, &t.Fee, &t.RealizedPnL, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
