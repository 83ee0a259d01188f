package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

const startingBalanceKey = "starting_balance"

// Store is the durable home of trades, cash flows and account settings.
type Store interface {
	AddTrade(ctx context.Context, t Trade) error
	UpdateTrade(ctx context.Context, t Trade) error
	DeleteTrade(ctx context.Context, id string) error
	GetTrade(ctx context.Context, id string) (Trade, error)
	ListTrades(ctx context.Context) ([]Trade, error)

	AddCashFlow(ctx context.Context, c CashFlow) error
	DeleteCashFlow(ctx context.Context, id string) error
	GetCashFlow(ctx context.Context, id string) (CashFlow, error)
	ListCashFlows(ctx context.Context) ([]CashFlow, error)

	StartingBalance(ctx context.Context) (*float64, error)
	SetStartingBalance(ctx context.Context, v float64) error

	Close() error
}

type SQLite struct {
	db *sql.DB
}

var _ Store = (*SQLite)(nil)

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// One writer keeps SQLite from returning SQLITE_BUSY under the API server.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLite{db: db}, nil
}

// DB exposes the connection so other stores can share the file.
func (j *SQLite) DB() *sql.DB { return j.db }

const tradeColumns = `trade_id, ticker, asset_type, entry_price, stop_price, target_price,
	shares, remaining_shares, original_shares, status, entry_time, exit_date, exit_price,
	pnl, trim_history, strike, expiration, option_type, risk_dollars, notes`

func tradeArgs(t Trade) ([]any, error) {
	trims := t.TrimHistory
	if trims == nil {
		trims = []Trim{}
	}
	th, err := json.Marshal(trims)
	if err != nil {
		return nil, fmt.Errorf("encode trim history: %w", err)
	}
	return []any{
		t.ID, t.Ticker, string(t.AssetType), t.Entry, t.Stop, nullFloat(t.Target),
		t.Shares, nullFloat(t.RemainingShares), nullFloat(t.OriginalShares), string(t.Status),
		t.EntryTime, t.ExitDate, nullFloat(t.ExitPrice),
		nullFloat(t.PnL), string(th), nullFloat(t.Strike), t.Expiration, string(t.OptionType),
		t.RiskDollars, t.Notes,
	}, nil
}

func (j *SQLite) AddTrade(ctx context.Context, t Trade) error {
	args, err := tradeArgs(t)
	if err != nil {
		return err
	}
	_, err = j.db.ExecContext(ctx, `
		INSERT INTO trades (`+tradeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("insert trade %s: %w", t.ID, err)
	}
	return nil
}

func (j *SQLite) UpdateTrade(ctx context.Context, t Trade) error {
	args, err := tradeArgs(t)
	if err != nil {
		return err
	}
	// Move the id to the WHERE clause.
	args = append(args[1:], args[0])
	res, err := j.db.ExecContext(ctx, `
		UPDATE trades SET
			ticker = ?, asset_type = ?, entry_price = ?, stop_price = ?, target_price = ?,
			shares = ?, remaining_shares = ?, original_shares = ?, status = ?, entry_time = ?,
			exit_date = ?, exit_price = ?, pnl = ?, trim_history = ?, strike = ?, expiration = ?,
			option_type = ?, risk_dollars = ?, notes = ?
		WHERE trade_id = ?`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("update trade %s: %w", t.ID, err)
	}
	return expectOne(res, "trade", t.ID)
}

func (j *SQLite) DeleteTrade(ctx context.Context, id string) error {
	res, err := j.db.ExecContext(ctx, `DELETE FROM trades WHERE trade_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete trade %s: %w", id, err)
	}
	return expectOne(res, "trade", id)
}

func (j *SQLite) AddCashFlow(ctx context.Context, c CashFlow) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO cash_flows (cash_flow_id, type, amount, timestamp)
		VALUES (?, ?, ?, ?)`,
		c.ID, string(c.Type), c.Amount, c.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert cash flow %s: %w", c.ID, err)
	}
	return nil
}

func (j *SQLite) DeleteCashFlow(ctx context.Context, id string) error {
	res, err := j.db.ExecContext(ctx, `DELETE FROM cash_flows WHERE cash_flow_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete cash flow %s: %w", id, err)
	}
	return expectOne(res, "cash flow", id)
}

// StartingBalance returns nil when no balance was ever configured.
func (j *SQLite) StartingBalance(ctx context.Context) (*float64, error) {
	var raw string
	err := j.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, startingBalanceKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read starting balance: %w", err)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("parse starting balance %q: %w", raw, err)
	}
	v := d.InexactFloat64()
	return &v, nil
}

func (j *SQLite) SetStartingBalance(ctx context.Context, v float64) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		startingBalanceKey, decimal.NewFromFloat(v).String(),
	)
	if err != nil {
		return fmt.Errorf("write starting balance: %w", err)
	}
	return nil
}

func (j *SQLite) Close() error {
	return j.db.Close()
}

func expectOne(res sql.Result, what, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %q: %w", what, id, ErrNotFound)
	}
	return nil
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}
