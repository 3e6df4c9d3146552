package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tradeforge/papertrade/exchange"
)

// SQLite implements exchange.Store and the feed's persistence surface on
// a single sqlite database.
type SQLite struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) CreateAccount(ctx context.Context, a exchange.Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, cash, equity, margin_used, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.Cash, a.Equity, a.MarginUsed, a.Status, a.CreatedAt,
	)
	return err
}

func (s *SQLite) GetAccount(ctx context.Context, id string) (exchange.Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, cash, equity, margin_used, status, death_reason, death_equity, death_at, created_at
		FROM accounts WHERE id = ?`, id)

	var a exchange.Account
	var deathAt sql.NullTime
	err := row.Scan(&a.ID, &a.Cash, &a.Equity, &a.MarginUsed, &a.Status,
		&a.DeathReason, &a.DeathEquity, &deathAt, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return exchange.Account{}, fmt.Errorf("account %q not found", id)
	}
	if err != nil {
		return exchange.Account{}, err
	}
	if deathAt.Valid {
		t := deathAt.Time
		a.DeathAt = &t
	}
	return a, nil
}

func (s *SQLite) ListActiveAccounts(ctx context.Context) ([]exchange.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, cash, equity, margin_used, status, death_reason, death_equity, death_at, created_at
		FROM accounts WHERE status = 'ACTIVE' ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []exchange.Account
	for rows.Next() {
		var a exchange.Account
		var deathAt sql.NullTime
		if err := rows.Scan(&a.ID, &a.Cash, &a.Equity, &a.MarginUsed, &a.Status,
			&a.DeathReason, &a.DeathEquity, &deathAt, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLite) UpdateAccountSolvency(ctx context.Context, id string, equity, marginUsed float64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET equity = ?, margin_used = ? WHERE id = ?`,
		equity, marginUsed, id)
	return err
}

func (s *SQLite) MarkAccountTerminal(ctx context.Context, id string, status exchange.AccountStatus, reason string, equity float64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE accounts
		SET status = ?, death_reason = ?, death_equity = ?, death_at = ?
		WHERE id = ? AND status = 'ACTIVE'`,
		status, reason, equity, at, id)
	return err
}

func jsonPayload(p map[string]any) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal event payload: %w", err)
	}
	return string(b), nil
}

func (s *SQLite) AppendEvent(ctx context.Context, e exchange.AccountEvent) error {
	payload, err := jsonPayload(e.Payload)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO account_events (id, account_id, event_type, payload, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.AccountID, e.Type, payload, e.CreatedAt)
	return err
}

// ListEvents returns the audit log for one account, oldest first.
func (s *SQLite) ListEvents(ctx context.Context, accountID string) ([]exchange.AccountEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, event_type, payload, created_at
		FROM account_events WHERE account_id = ? ORDER BY created_at`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []exchange.AccountEvent
	for rows.Next() {
		var e exchange.AccountEvent
		var payload string
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Type, &payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal event payload: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
