package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rustyeddy/tradebook/market"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrade(row rowScanner) (Trade, error) {
	var (
		rec                                  Trade
		asset, status, optionType, trimsJSON string
		target, remaining, original          sql.NullFloat64
		exitPrice, pnl, strike               sql.NullFloat64
	)
	err := row.Scan(
		&rec.ID,
		&rec.Ticker,
		&asset,
		&rec.Entry,
		&rec.Stop,
		&target,
		&rec.Shares,
		&remaining,
		&original,
		&status,
		&rec.EntryTime,
		&rec.ExitDate,
		&exitPrice,
		&pnl,
		&trimsJSON,
		&strike,
		&rec.Expiration,
		&optionType,
		&rec.RiskDollars,
		&rec.Notes,
	)
	if err != nil {
		return Trade{}, err
	}
	rec.AssetType = assetType(asset)
	rec.Status = Status(status)
	rec.OptionType = optionTypeOf(optionType)
	rec.Target = floatPtr(target)
	rec.RemainingShares = floatPtr(remaining)
	rec.OriginalShares = floatPtr(original)
	rec.ExitPrice = floatPtr(exitPrice)
	rec.PnL = floatPtr(pnl)
	rec.Strike = floatPtr(strike)
	if trimsJSON != "" && trimsJSON != "[]" {
		if err := json.Unmarshal([]byte(trimsJSON), &rec.TrimHistory); err != nil {
			return Trade{}, fmt.Errorf("decode trim history of %s: %w", rec.ID, err)
		}
	}
	return rec, nil
}

// GetTrade returns a single trade by ID.
func (j *SQLite) GetTrade(ctx context.Context, tradeID string) (Trade, error) {
	row := j.db.QueryRowContext(ctx, `
		SELECT `+tradeColumns+`
		FROM trades
		WHERE trade_id = ?`, tradeID)

	rec, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Trade{}, fmt.Errorf("trade %q: %w", tradeID, ErrNotFound)
		}
		return Trade{}, err
	}
	return rec, nil
}

// ListTrades returns every trade ordered by entry time.
func (j *SQLite) ListTrades(ctx context.Context) ([]Trade, error) {
	return j.queryTrades(ctx, `
		SELECT `+tradeColumns+`
		FROM trades
		ORDER BY entry_time ASC, trade_id ASC`)
}

// ListTradesClosedBetween returns trades whose exit date is within [from, to].
func (j *SQLite) ListTradesClosedBetween(ctx context.Context, from, to string) ([]Trade, error) {
	return j.queryTrades(ctx, `
		SELECT `+tradeColumns+`
		FROM trades
		WHERE exit_date != '' AND exit_date >= ? AND exit_date <= ?
		ORDER BY exit_date ASC, trade_id ASC`, from, to)
}

func (j *SQLite) queryTrades(ctx context.Context, query string, args ...any) ([]Trade, error) {
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Trade
	for rows.Next() {
		rec, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (j *SQLite) GetCashFlow(ctx context.Context, id string) (CashFlow, error) {
	var (
		c   CashFlow
		typ string
	)
	err := j.db.QueryRowContext(ctx, `
		SELECT cash_flow_id, type, amount, timestamp
		FROM cash_flows
		WHERE cash_flow_id = ?`, id).Scan(&c.ID, &typ, &c.Amount, &c.Timestamp)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CashFlow{}, fmt.Errorf("cash flow %q: %w", id, ErrNotFound)
		}
		return CashFlow{}, err
	}
	c.Type = CashFlowType(typ)
	return c, nil
}

// ListCashFlows returns every deposit and withdrawal in time order.
func (j *SQLite) ListCashFlows(ctx context.Context) ([]CashFlow, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT cash_flow_id, type, amount, timestamp
		FROM cash_flows
		ORDER BY timestamp ASC, cash_flow_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CashFlow
	for rows.Next() {
		var (
			c   CashFlow
			typ string
		)
		if err := rows.Scan(&c.ID, &typ, &c.Amount, &c.Timestamp); err != nil {
			return nil, err
		}
		c.Type = CashFlowType(typ)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func assetType(s string) market.AssetType {
	if a, ok := market.ParseAssetType(s); ok {
		return a
	}
	return market.AssetType(s)
}

func optionTypeOf(s string) market.OptionType {
	if s == "" {
		return ""
	}
	if o, ok := market.ParseOptionType(s); ok {
		return o
	}
	return market.OptionType(s)
}
