// Package store persists the exchange state in SQLite: accounts,
// positions, the append-only order and trade logs, tick history, the audit
// event log and the tradable universe.
package store

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id TEXT PRIMARY KEY,
	cash REAL NOT NULL,
	equity REAL NOT NULL,
	margin_used REAL NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'ACTIVE',
	death_reason TEXT NOT NULL DEFAULT '',
	death_equity REAL NOT NULL DEFAULT 0,
	death_at DATETIME,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
	id TEXT PRIMARY KEY,
	account_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	quantity REAL NOT NULL,
	avg_entry_price REAL NOT NULL,
	mark_price REAL NOT NULL DEFAULT 0,
	unrealized_pnl REAL NOT NULL DEFAULT 0,
	realized_pnl REAL NOT NULL DEFAULT 0,
	is_open INTEGER NOT NULL DEFAULT 1,
	opened_at DATETIME NOT NULL,
	closed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_positions_account_open ON positions(account_id, is_open);

CREATE TABLE IF NOT EXISTS orders (
	id TEXT PRIMARY KEY,
	account_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	quantity REAL NOT NULL,
	leverage REAL NOT NULL,
	status TEXT NOT NULL,
	reject_reason TEXT NOT NULL DEFAULT '',
	requested_price REAL NOT NULL DEFAULT 0,
	filled_price REAL NOT NULL DEFAULT 0,
	fee REAL NOT NULL DEFAULT 0,
	slippage_bps REAL NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_orders_account ON orders(account_id, created_at);

CREATE TABLE IF NOT EXISTS trades (
	id TEXT PRIMARY KEY,
	order_id TEXT NOT NULL,
	account_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	quantity REAL NOT NULL,
	price REAL NOT NULL,
	fee REAL NOT NULL,
	realized_pnl REAL NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_account ON trades(account_id, created_at);

CREATE TABLE IF NOT EXISTS price_ticks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol TEXT NOT NULL,
	price REAL NOT NULL,
	liquidity_usd REAL NOT NULL DEFAULT 0,
	volume_24h_usd REAL NOT NULL DEFAULT 0,
	source TEXT NOT NULL,
	tick_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_price_ticks_symbol ON price_ticks(symbol, tick_at);

CREATE TABLE IF NOT EXISTS account_events (
	id TEXT PRIMARY KEY,
	account_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_account_events_account ON account_events(account_id, created_at);

CREATE TABLE IF NOT EXISTS tradable_universe (
	symbol TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	chain TEXT NOT NULL DEFAULT '',
	address TEXT NOT NULL DEFAULT '',
	is_major INTEGER NOT NULL DEFAULT 0,
	liquidity_usd REAL NOT NULL DEFAULT 0,
	volume_24h_usd REAL NOT NULL DEFAULT 0,
	pair_created_at DATETIME,
	last_refreshed_at DATETIME NOT NULL,
	is_active INTEGER NOT NULL DEFAULT 1
);
`
