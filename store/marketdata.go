package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/tradeforge/papertrade/market"
)

// InsertTicks appends accepted ticks to the durable price history.
func (s *SQLite) InsertTicks(ctx context.Context, ticks []market.Tick) error {
	if len(ticks) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO price_ticks (symbol, price, liquidity_usd, volume_24h_usd, source, tick_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, t := range ticks {
		if _, err := stmt.ExecContext(ctx, t.Symbol, t.Price, t.LiquidityUSD,
			t.Volume24hUSD, t.Source, t.At); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LatestTicks returns the most recent stored tick per symbol, used to
// rehydrate the price cache on startup.
func (s *SQLite) LatestTicks(ctx context.Context) ([]market.Tick, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, price, liquidity_usd, volume_24h_usd, source, tick_at
		FROM price_ticks
		WHERE id IN (SELECT MAX(id) FROM price_ticks GROUP BY symbol)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []market.Tick
	for rows.Next() {
		var t market.Tick
		if err := rows.Scan(&t.Symbol, &t.Price, &t.LiquidityUSD,
			&t.Volume24hUSD, &t.Source, &t.At); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpsertUniverseToken inserts or refreshes one tradable symbol; discovery
// is idempotent by symbol.
func (s *SQLite) UpsertUniverseToken(ctx context.Context, t market.UniverseToken, refreshedAt time.Time) error {
	var pairCreated any
	if !t.PairCreatedAt.IsZero() {
		pairCreated = t.PairCreatedAt
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tradable_universe
		(symbol, name, chain, address, is_major, liquidity_usd, volume_24h_usd,
		 pair_created_at, last_refreshed_at, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(symbol) DO UPDATE SET
			name = excluded.name,
			chain = excluded.chain,
			address = excluded.address,
			liquidity_usd = excluded.liquidity_usd,
			volume_24h_usd = excluded.volume_24h_usd,
			pair_created_at = excluded.pair_created_at,
			last_refreshed_at = excluded.last_refreshed_at,
			is_active = 1`,
		t.Symbol, t.Name, t.Chain, t.Address, t.IsMajor,
		t.LiquidityUSD, t.Volume24hUSD, pairCreated, refreshedAt)
	return err
}

// ActiveUniverse returns the active tradable symbols, majors first.
func (s *SQLite) ActiveUniverse(ctx context.Context) ([]market.UniverseToken, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, name, chain, address, is_major, liquidity_usd, volume_24h_usd, pair_created_at
		FROM tradable_universe WHERE is_active = 1 ORDER BY is_major DESC, symbol`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []market.UniverseToken
	for rows.Next() {
		var t market.UniverseToken
		var pairCreated sql.NullTime
		if err := rows.Scan(&t.Symbol, &t.Name, &t.Chain, &t.Address, &t.IsMajor,
			&t.LiquidityUSD, &t.Volume24hUSD, &pairCreated); err != nil {
			return nil, err
		}
		if pairCreated.Valid {
			t.PairCreatedAt = pairCreated.Time
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
