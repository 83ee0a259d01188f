// Package calendar turns EOD snapshots into daily, weekly and monthly P&L.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rustyeddy/tradebook/balance"
	"github.com/rustyeddy/tradebook/eod"
	"github.com/rustyeddy/tradebook/journal"
	"github.com/rustyeddy/tradebook/market"
	"github.com/shopspring/decimal"
)

var ErrNotSaturday = errors.New("week anchor must be a Saturday")

type CashFlowReader interface {
	ListCashFlows(ctx context.Context) ([]journal.CashFlow, error)
}

// Aggregator reads only trusted snapshots. A day without one has no P&L.
type Aggregator struct {
	cache *eod.Cache
	flows CashFlowReader
	cal   market.Calendar
	log   zerolog.Logger
}

func New(cache *eod.Cache, flows CashFlowReader, cal market.Calendar, log zerolog.Logger) *Aggregator {
	return &Aggregator{
		cache: cache,
		flows: flows,
		cal:   cal,
		log:   log.With().Str("component", "calendar").Logger(),
	}
}

func (a *Aggregator) trusted(ctx context.Context, date string) (*eod.Snapshot, bool) {
	s := a.cache.Get(ctx, date)
	if s == nil || !s.Trusted() {
		return nil, false
	}
	return s, true
}

// DailyPnL is the change in balance from the previous trading day's close,
// less the cash deposited or withdrawn since then.
func (a *Aggregator) DailyPnL(ctx context.Context, date string) (float64, bool) {
	flows, err := a.flows.ListCashFlows(ctx)
	if err != nil {
		a.log.Warn().Err(err).Str("date", date).Msg("cash flows unreadable")
		return 0, false
	}
	return a.dailyPnL(ctx, date, flows)
}

func (a *Aggregator) dailyPnL(ctx context.Context, date string, flows []journal.CashFlow) (float64, bool) {
	if _, err := market.ParseDate(date); err != nil {
		return 0, false
	}
	cur, ok := a.trusted(ctx, date)
	if !ok {
		return 0, false
	}
	prevDate := a.cal.PrevTradingDay(date)
	prev, ok := a.trusted(ctx, prevDate)
	if !ok {
		return 0, false
	}
	pnl := decimal.NewFromFloat(cur.Balance).
		Sub(decimal.NewFromFloat(prev.Balance)).
		Sub(decimal.NewFromFloat(balance.CashFlowBetween(flows, prevDate, date)))
	return pnl.Round(2).InexactFloat64(), true
}

// WeekRange returns Monday through Friday of the week that ends on the
// Friday before saturday.
func WeekRange(saturday string) ([]string, error) {
	if _, err := market.ParseDate(saturday); err != nil {
		return nil, err
	}
	if market.Weekday(saturday) != time.Saturday {
		return nil, fmt.Errorf("%w: %s is a %s", ErrNotSaturday, saturday, market.Weekday(saturday))
	}
	return market.Days(market.AddDays(saturday, -5), market.AddDays(saturday, -1)), nil
}

// WeeklyPnL sums the daily P&L of the days in the week that have data. It
// reports false only when none of them do.
func (a *Aggregator) WeeklyPnL(ctx context.Context, saturday string) (float64, bool, error) {
	if _, err := WeekRange(saturday); err != nil {
		return 0, false, err
	}
	flows, err := a.flows.ListCashFlows(ctx)
	if err != nil {
		a.log.Warn().Err(err).Str("week", saturday).Msg("cash flows unreadable")
		return 0, false, nil
	}
	pnl := a.weekFromDays(ctx, saturday, flows)
	if pnl == nil {
		return 0, false, nil
	}
	return *pnl, true, nil
}

// Day is one cell of a month grid. PnL is nil when the day has no data.
type Day struct {
	Date    string   `json:"date"`
	Trading bool     `json:"trading"`
	PnL     *float64 `json:"pnl"`
}

// Week is one row of a month grid, anchored on the Saturday that ends it.
type Week struct {
	Saturday string   `json:"saturday"`
	PnL      *float64 `json:"pnl"`
}

type Month struct {
	Year  int      `json:"year"`
	Month int      `json:"month"`
	Days  []Day    `json:"days"`
	Weeks []Week   `json:"weeks"`
	Total *float64 `json:"total"`
}

// Month builds the grid for one calendar month.
func (a *Aggregator) Month(ctx context.Context, year int, month time.Month) (Month, error) {
	if month < time.January || month > time.December {
		return Month{}, fmt.Errorf("invalid month %d", month)
	}
	flows, err := a.flows.ListCashFlows(ctx)
	if err != nil {
		return Month{}, fmt.Errorf("calendar month: %w", err)
	}

	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)
	out := Month{Year: year, Month: int(month)}

	total := decimal.Zero
	hasData := false
	for _, d := range market.Days(market.FormatDate(first), market.FormatDate(last)) {
		day := Day{Date: d, Trading: a.cal.IsTradingDay(d)}
		if day.Trading {
			if pnl, ok := a.dailyPnL(ctx, d, flows); ok {
				day.PnL = &pnl
				total = total.Add(decimal.NewFromFloat(pnl))
				hasData = true
			}
		}
		out.Days = append(out.Days, day)
		if market.Weekday(d) == time.Saturday {
			out.Weeks = append(out.Weeks, Week{Saturday: d, PnL: a.weekFromDays(ctx, d, flows)})
		}
	}
	// A month that ends midweek still reports its last partial week.
	if market.Weekday(market.FormatDate(last)) != time.Saturday {
		sat := market.FormatDate(last)
		for market.Weekday(sat) != time.Saturday {
			sat = market.AddDays(sat, 1)
		}
		out.Weeks = append(out.Weeks, Week{Saturday: sat, PnL: a.weekFromDays(ctx, sat, flows)})
	}
	if hasData {
		t := total.InexactFloat64()
		out.Total = &t
	}
	return out, nil
}

func (a *Aggregator) weekFromDays(ctx context.Context, saturday string, flows []journal.CashFlow) *float64 {
	days, err := WeekRange(saturday)
	if err != nil {
		return nil
	}
	sum := decimal.Zero
	found := false
	for _, d := range days {
		if pnl, ok := a.dailyPnL(ctx, d, flows); ok {
			sum = sum.Add(decimal.NewFromFloat(pnl))
			found = true
		}
	}
	if !found {
		return nil
	}
	v := sum.InexactFloat64()
	return &v
}
