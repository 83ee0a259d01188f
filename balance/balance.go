// Package balance answers what the account is worth, now or at the close of
// a past day, from a ledger snapshot and a price map.
package balance

import (
	"errors"
	"fmt"
	"slices"

	"github.com/rs/zerolog"
	"github.com/rustyeddy/tradebook/journal"
	"github.com/rustyeddy/tradebook/market"
	"github.com/shopspring/decimal"
)

// ErrNoStartingBalance is returned by every entry point when the account has
// no configured starting balance. It is a configuration problem, not missing
// data, so it is never degraded into a partial result.
var ErrNoStartingBalance = errors.New("no starting balance configured")

// Result is one balance computation. Balance = RealizedBalance + UnrealizedPnL.
type Result struct {
	Balance         float64         `json:"balance"`
	RealizedBalance float64         `json:"realizedBalance"`
	UnrealizedPnL   float64         `json:"unrealizedPnL"`
	PricesUsed      market.PriceMap `json:"prices,omitempty"`
	PositionsPriced []string        `json:"positionsPriced,omitempty"`
	MissingTickers  []string        `json:"missingTickers,omitempty"`
}

// Complete reports whether every open position had a price.
func (r Result) Complete() bool { return len(r.MissingTickers) == 0 }

type Calculator struct {
	log zerolog.Logger
}

func NewCalculator(log zerolog.Logger) Calculator {
	return Calculator{log: log.With().Str("component", "balance").Logger()}
}

// CurrentBalance values every realized trade and cash flow with no date
// bound, and marks open positions with prices.
func (c Calculator) CurrentBalance(snap journal.Snapshot, prices market.PriceMap) (Result, error) {
	if snap.StartingBalance == nil {
		return Result{}, ErrNoStartingBalance
	}

	realized := decimal.NewFromFloat(*snap.StartingBalance)
	for _, t := range snap.Trades {
		if t.IsRealized() {
			realized = realized.Add(decimal.NewFromFloat(journal.RealizedPnL(t)))
		}
	}
	realized = realized.Add(netCashFlow(snap.CashFlows, ""))

	var positions []position
	for _, t := range snap.Trades {
		if t.IsOpen() {
			positions = append(positions, position{trade: t, shares: t.OpenShares()})
		}
	}
	return c.finish(realized, positions, prices), nil
}

// BalanceAtDate values the account at the close of date. Only trims and
// exits dated on or before date are realized, only cash flows on or before
// date count, and a trade that exits on date is closed for that date.
// eodPrices must be the closing prices of that day.
func (c Calculator) BalanceAtDate(date string, snap journal.Snapshot, eodPrices market.PriceMap) (Result, error) {
	if snap.StartingBalance == nil {
		return Result{}, ErrNoStartingBalance
	}
	if _, err := market.ParseDate(date); err != nil {
		return Result{}, fmt.Errorf("balance at date: %w", err)
	}

	realized := decimal.NewFromFloat(*snap.StartingBalance)
	for _, t := range snap.Trades {
		realized = realized.Add(decimal.NewFromFloat(journal.RealizedPnLAsOf(t, date)))
	}
	realized = realized.Add(netCashFlow(snap.CashFlows, date))

	var positions []position
	for _, t := range snap.Trades {
		if n := t.SharesOpenAt(date); n > 0 {
			positions = append(positions, position{trade: t, shares: n})
		}
	}
	return c.finish(realized, positions, eodPrices), nil
}

type position struct {
	trade  journal.Trade
	shares float64
}

func (c Calculator) finish(realized decimal.Decimal, positions []position, prices market.PriceMap) Result {
	unrealized := decimal.Zero
	used := market.PriceMap{}
	var priced, missing []string

	for _, p := range positions {
		key := p.trade.PriceKey()
		price, ok := prices.Get(key)
		if !ok {
			c.log.Debug().Str("key", key).Str("trade", p.trade.ID).Msg("no price for open position")
			if !slices.Contains(missing, key) {
				missing = append(missing, key)
			}
			continue
		}
		unrealized = unrealized.Add(
			decimal.NewFromFloat(price).
				Sub(decimal.NewFromFloat(p.trade.Entry)).
				Mul(decimal.NewFromFloat(p.shares)).
				Mul(decimal.NewFromFloat(p.trade.Multiplier())),
		)
		used[key] = price
		if !slices.Contains(priced, key) {
			priced = append(priced, key)
		}
	}
	slices.Sort(priced)
	slices.Sort(missing)

	r := Result{
		RealizedBalance: realized.Round(2).InexactFloat64(),
		UnrealizedPnL:   unrealized.Round(2).InexactFloat64(),
		Balance:         realized.Add(unrealized).Round(2).InexactFloat64(),
		PositionsPriced: priced,
		MissingTickers:  missing,
	}
	if len(used) > 0 {
		r.PricesUsed = used
	}
	return r
}

// OpenPositionKeys lists the price keys needed to value the current open
// positions.
func OpenPositionKeys(snap journal.Snapshot) []string {
	var keys []string
	for _, t := range snap.Trades {
		if t.IsOpen() && !slices.Contains(keys, t.PriceKey()) {
			keys = append(keys, t.PriceKey())
		}
	}
	slices.Sort(keys)
	return keys
}

// OpenPositionKeysAt lists the price keys needed to value the positions held
// at the close of date.
func OpenPositionKeysAt(snap journal.Snapshot, date string) []string {
	var keys []string
	for _, t := range snap.Trades {
		if t.SharesOpenAt(date) > 0 && !slices.Contains(keys, t.PriceKey()) {
			keys = append(keys, t.PriceKey())
		}
	}
	slices.Sort(keys)
	return keys
}
