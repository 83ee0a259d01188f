// journal/schema.go
package journal

const Schema = `
CREATE TABLE IF NOT EXISTS trades (
	trade_id TEXT PRIMARY KEY,
	ticker TEXT NOT NULL,
	asset_type TEXT NOT NULL,
	entry_price REAL NOT NULL,
	stop_price REAL NOT NULL,
	target_price REAL,
	shares REAL NOT NULL,
	remaining_shares REAL,
	original_shares REAL,
	status TEXT NOT NULL,
	entry_time DATETIME NOT NULL,
	exit_date TEXT NOT NULL DEFAULT '',
	exit_price REAL,
	pnl REAL,
	trim_history TEXT NOT NULL DEFAULT '[]',
	strike REAL,
	expiration TEXT NOT NULL DEFAULT '',
	option_type TEXT NOT NULL DEFAULT '',
	risk_dollars REAL NOT NULL DEFAULT 0,
	notes TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_trades_entry_time ON trades(entry_time);
CREATE INDEX IF NOT EXISTS idx_trades_exit_date ON trades(exit_date);

CREATE TABLE IF NOT EXISTS cash_flows (
	cash_flow_id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	amount REAL NOT NULL,
	timestamp DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cash_flows_timestamp ON cash_flows(timestamp);

CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`
