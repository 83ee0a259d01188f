// Package equity builds the account's daily equity curve from the EOD cache,
// recomputing and backfilling the days it cannot trust.
package equity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rustyeddy/tradebook/balance"
	"github.com/rustyeddy/tradebook/eod"
	"github.com/rustyeddy/tradebook/journal"
	"github.com/rustyeddy/tradebook/market"
	"github.com/shopspring/decimal"
)

type LedgerReader interface {
	Snapshot(ctx context.Context) (journal.Snapshot, error)
}

// Point is the account at the close of one day. DayPnL excludes the cash
// that moved since the previous point.
type Point struct {
	Date            string  `json:"date"`
	Balance         float64 `json:"balance"`
	RealizedBalance float64 `json:"realizedBalance"`
	UnrealizedPnL   float64 `json:"unrealizedPnL"`
	DayPnL          float64 `json:"dayPnL"`
	CashFlow        float64 `json:"cashFlow"`
	Incomplete      bool    `json:"incomplete,omitempty"`
}

type Manager struct {
	ledger LedgerReader
	cache  *eod.Cache
	hist   market.HistoricalPriceSource
	live   market.LivePriceSource
	calc   balance.Calculator
	cal    market.Calendar
	log    zerolog.Logger
	now    func() time.Time

	// mu guards gen and curves. Write-backs to the EOD cache happen under mu
	// and only when gen still matches the value read when the computation
	// began, so an invalidation can never be undone by a slow build.
	mu     sync.Mutex
	gen    uint64
	curves map[string][]Point
}

func NewManager(ledger LedgerReader, cache *eod.Cache, hist market.HistoricalPriceSource,
	live market.LivePriceSource, cal market.Calendar, log zerolog.Logger) *Manager {
	return &Manager{
		ledger: ledger,
		cache:  cache,
		hist:   hist,
		live:   live,
		calc:   balance.NewCalculator(log),
		cal:    cal,
		log:    log.With().Str("component", "equity").Logger(),
		now:    time.Now,
		curves: make(map[string][]Point),
	}
}

// SetClock replaces the time source used to decide what "today" is.
func (m *Manager) SetClock(now func() time.Time) { m.now = now }

func (m *Manager) generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen
}

// Build returns one point per trading day from the first ledger event
// through to, plus weekend days that carry an event, restricted to
// [from, to]. Empty bounds are open; to defaults to today and is never
// later than today.
func (m *Manager) Build(ctx context.Context, from, to string) ([]Point, error) {
	today := m.cal.Today(m.now())
	if to == "" || to > today {
		to = today
	}
	for _, d := range []string{from, to} {
		if d == "" {
			continue
		}
		if _, err := market.ParseDate(d); err != nil {
			return nil, fmt.Errorf("equity: %w", err)
		}
	}

	gen := m.generation()
	key := from + "|" + to
	m.mu.Lock()
	if pts, ok := m.curves[key]; ok && m.gen == gen {
		m.mu.Unlock()
		return clonePoints(pts), nil
	}
	m.mu.Unlock()

	snap, err := m.ledger.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("equity: %w", err)
	}
	if snap.StartingBalance == nil {
		return nil, balance.ErrNoStartingBalance
	}
	anchor, ok := snap.EarliestDate()
	if !ok || anchor > to {
		return []Point{}, nil
	}

	events := eventDays(snap)
	pending := make(map[string]eod.Snapshot)
	prevDate := ""
	prevBalance := *snap.StartingBalance
	out := []Point{}
	for _, d := range market.Days(anchor, to) {
		if !m.cal.IsTradingDay(d) && !events[d] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p, s, err := m.point(ctx, snap, d, today)
		if err != nil {
			return nil, err
		}
		if s != nil {
			pending[d] = *s
		}
		if prevDate == "" {
			p.CashFlow = balance.NetCashFlowThrough(snap.CashFlows, d)
		} else {
			p.CashFlow = balance.CashFlowBetween(snap.CashFlows, prevDate, d)
		}
		p.DayPnL = roundCents(p.Balance - prevBalance - p.CashFlow)
		prevDate, prevBalance = d, p.Balance
		if from == "" || d >= from {
			out = append(out, p)
		}
	}

	// Today's point moves with live prices, so only closed ranges are
	// memoized.
	m.mu.Lock()
	if m.gen == gen {
		m.saveLocked(ctx, pending)
		if to < today {
			m.curves[key] = clonePoints(out)
		}
	}
	m.mu.Unlock()
	return out, nil
}

// BalanceOnDate computes the balance at the close of date without building
// the curve. It reports false when there is no starting balance, the date
// is invalid or in the future, or the ledger cannot be read.
func (m *Manager) BalanceOnDate(ctx context.Context, date string) (float64, bool) {
	p, ok := m.PointOnDate(ctx, date)
	if !ok {
		return 0, false
	}
	return p.Balance, true
}

// PointOnDate is BalanceOnDate with the full breakdown. DayPnL and CashFlow
// are left zero.
func (m *Manager) PointOnDate(ctx context.Context, date string) (Point, bool) {
	if _, err := market.ParseDate(date); err != nil {
		return Point{}, false
	}
	today := m.cal.Today(m.now())
	if date > today {
		return Point{}, false
	}
	gen := m.generation()
	snap, err := m.ledger.Snapshot(ctx)
	if err != nil {
		m.log.Warn().Err(err).Str("date", date).Msg("ledger unreadable")
		return Point{}, false
	}
	if snap.StartingBalance == nil {
		return Point{}, false
	}
	p, s, err := m.point(ctx, snap, date, today)
	if err != nil {
		return Point{}, false
	}
	if s != nil {
		m.mu.Lock()
		if m.gen == gen {
			m.saveLocked(ctx, map[string]eod.Snapshot{date: *s})
		}
		m.mu.Unlock()
	}
	return p, true
}

// saveLocked writes computed snapshots back to the EOD cache in one store
// write. Callers hold mu and have checked the generation.
func (m *Manager) saveLocked(ctx context.Context, batch map[string]eod.Snapshot) {
	if err := m.cache.SaveMany(ctx, batch); err != nil {
		m.log.Warn().Err(err).Int("snapshots", len(batch)).Msg("eod write-back failed")
	}
}

// point values one day: a trusted cached snapshot when there is one,
// otherwise a fresh computation. For a computed past day on or after the
// first ledger event it also returns the snapshot to write back, flagged
// when incomplete; today uses live prices and is left to the recorder.
func (m *Manager) point(ctx context.Context, snap journal.Snapshot, date, today string) (Point, *eod.Snapshot, error) {
	if s := m.cache.Get(ctx, date); s != nil && s.Trusted() {
		return Point{
			Date:            date,
			Balance:         s.Balance,
			RealizedBalance: s.RealizedBalance,
			UnrealizedPnL:   s.UnrealizedPnL,
		}, nil, nil
	}

	keys := balance.OpenPositionKeysAt(snap, date)
	prices := market.PriceMap{}
	source := eod.SourceHistorical
	if date == today {
		source = eod.SourceLive
		if len(keys) > 0 && m.live != nil {
			p, err := m.live.CurrentPrices(ctx, keys)
			if err != nil {
				m.log.Warn().Err(err).Msg("live prices unavailable")
			} else {
				prices = p
			}
		}
	} else if len(keys) > 0 && m.hist != nil {
		var missing []string
		prices, missing = market.PricesOnDate(ctx, m.hist, keys, date)
		if len(missing) > 0 {
			m.log.Info().Str("date", date).Strs("missing", missing).Msg("historical prices missing")
		}
	}

	res, err := m.calc.BalanceAtDate(date, snap, prices)
	if err != nil {
		return Point{}, nil, err
	}

	// Days before the first ledger event are just the starting balance and
	// are never cached.
	var pending *eod.Snapshot
	if anchor, ok := snap.EarliestDate(); ok && date >= anchor && date < today {
		s := eod.FromResult(date, res, balance.DayCashFlow(snap.CashFlows, date), source, m.now())
		pending = &s
	}

	return Point{
		Date:            date,
		Balance:         res.Balance,
		RealizedBalance: res.RealizedBalance,
		UnrealizedPnL:   res.UnrealizedPnL,
		Incomplete:      !res.Complete(),
	}, pending, nil
}

// InvalidateForTrade drops cached balances from the earliest entry date of
// the given trades onward. On an update pass both the old and new versions.
func (m *Manager) InvalidateForTrade(ctx context.Context, trades ...journal.Trade) {
	from := ""
	for _, t := range trades {
		if d := t.EntryDate(); from == "" || d < from {
			from = d
		}
	}
	if from != "" {
		m.InvalidateFromDate(ctx, from)
	}
}

// InvalidateFromDate drops every cached snapshot dated on or after date and
// every memoized curve.
func (m *Manager) InvalidateFromDate(ctx context.Context, date string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	clear(m.curves)
	n, err := m.cache.InvalidateFromDate(ctx, date)
	ev := m.log.Debug()
	if err != nil {
		ev = m.log.Warn().Err(err)
	}
	ev.Str("from", date).Int("removed", n).Uint64("generation", m.gen).Msg("equity invalidated")
}

// Reset drops every memoized curve without touching the EOD cache. Used
// after the cache itself has been cleared.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.gen++
	clear(m.curves)
	m.mu.Unlock()
}

func eventDays(snap journal.Snapshot) map[string]bool {
	days := make(map[string]bool)
	for _, t := range snap.Trades {
		days[t.EntryDate()] = true
		if t.ExitDate != "" {
			days[t.ExitDate] = true
		}
		for _, tr := range t.TrimHistory {
			days[tr.Date] = true
		}
	}
	for _, c := range snap.CashFlows {
		days[c.Date()] = true
	}
	return days
}

func clonePoints(pts []Point) []Point {
	out := make([]Point, len(pts))
	copy(out, pts)
	return out
}

func roundCents(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
