package app

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rustyeddy/tradebook/config"
	"github.com/rustyeddy/tradebook/journal"
	"github.com/rustyeddy/tradebook/market"
	"github.com/rustyeddy/tradebook/pricing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fp(v float64) *float64 { return &v }

type env struct {
	app    *App
	cfg    *config.Config
	prices *pricing.Static
	loc    *time.Location
}

func newEnv(t *testing.T, dbPath string, now time.Time) *env {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.DBPath = dbPath
	cal, err := cfg.Calendar()
	require.NoError(t, err)

	prices := pricing.NewStatic(nil)
	for _, d := range market.Days("2024-03-01", "2024-03-15") {
		prices.SetOn("ACME", d, 10)
	}

	a, err := New(cfg, Deps{
		Log:        zerolog.Nop(),
		Live:       prices,
		Historical: prices,
		Now:        func() time.Time { return now },
	})
	require.NoError(t, err)
	require.NoError(t, a.Init(context.Background()))
	t.Cleanup(func() { _ = a.Close() })
	return &env{app: a, cfg: cfg, prices: prices, loc: cal.Location}
}

func (e *env) at(date string, hour int) time.Time {
	d, err := market.ParseDate(date)
	if err != nil {
		panic(err)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, e.loc)
}

// seed records the end-to-end scenario: $10,000 start, 100 ACME bought at
// $10 on Monday 2024-03-04, $500 deposited Wednesday, sold at $12 Friday.
func (e *env) seed(t *testing.T) journal.Trade {
	t.Helper()
	ctx := context.Background()
	l := e.app.Ledger

	tr, err := l.AddTrade(ctx, journal.Trade{
		Ticker: "ACME", AssetType: market.Stock, Entry: 10, Stop: 9, Shares: 100,
		EntryTime: e.at("2024-03-04", 10), RiskDollars: 100,
	})
	require.NoError(t, err)
	_, err = l.AddCashFlow(ctx, journal.CashFlow{Type: journal.Deposit, Amount: 500, Timestamp: e.at("2024-03-06", 9)})
	require.NoError(t, err)
	tr, err = l.CloseTrade(ctx, tr.ID, "2024-03-08", 12)
	require.NoError(t, err)
	return tr
}

func weekAfter(loc *time.Location) time.Time {
	return time.Date(2024, 3, 11, 12, 0, 0, 0, loc)
}

func TestEndToEndScenario(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	loc := market.DefaultCalendar().Location
	e := newEnv(t, filepath.Join(t.TempDir(), "tb.db"), weekAfter(loc))
	tr := e.seed(t)
	assert.Equal(t, 200.0, journal.RealizedPnL(tr))

	for date, want := range map[string]float64{
		"2024-03-05": 10000,
		"2024-03-06": 10500,
		"2024-03-08": 10700,
	} {
		got, ok := e.app.Equity.BalanceOnDate(ctx, date)
		require.True(t, ok, date)
		assert.Equal(t, want, got, date)
	}

	pts, err := e.app.Equity.Build(ctx, "", "2024-03-08")
	require.NoError(t, err)
	require.Len(t, pts, 5)
	assert.Equal(t, 200.0, pts[4].DayPnL)
	assert.Equal(t, 0.0, pts[4].CashFlow)

	pnl, ok := e.app.Calendar.DailyPnL(ctx, "2024-03-08")
	require.True(t, ok)
	assert.Equal(t, 200.0, pnl)

	week, ok, err := e.app.Calendar.WeeklyPnL(ctx, "2024-03-09")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 200.0, week)

	sum, err := e.app.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10700.0, sum.Balance.Balance)
	require.NotNil(t, sum.Stats.WinRate)
	assert.Equal(t, 100.0, *sum.Stats.WinRate)
}

func TestCashFlowEventInvalidatesLaterDays(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	loc := market.DefaultCalendar().Location
	e := newEnv(t, filepath.Join(t.TempDir(), "tb.db"), weekAfter(loc))
	e.seed(t)

	_, err := e.app.Equity.Build(ctx, "", "2024-03-08")
	require.NoError(t, err)
	before, ok := e.app.Equity.BalanceOnDate(ctx, "2024-03-07")
	require.True(t, ok)
	assert.Equal(t, 10500.0, before)

	cf, err := e.app.Ledger.AddCashFlow(ctx, journal.CashFlow{
		Type: journal.Deposit, Amount: 1000, Timestamp: e.at("2024-03-05", 11),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-03-04"}, e.app.EOD.Dates(ctx))

	after, ok := e.app.Equity.BalanceOnDate(ctx, "2024-03-07")
	require.True(t, ok)
	assert.Equal(t, 11500.0, after)

	require.NoError(t, e.app.Ledger.DeleteCashFlow(ctx, cf.ID))
	restored, ok := e.app.Equity.BalanceOnDate(ctx, "2024-03-07")
	require.True(t, ok)
	assert.Equal(t, 10500.0, restored)
}

func TestTradeEventsInvalidateStatsAndEquity(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	loc := market.DefaultCalendar().Location
	e := newEnv(t, filepath.Join(t.TempDir(), "tb.db"), weekAfter(loc))
	tr := e.seed(t)

	sum, err := e.app.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 200.0, *sum.Stats.LargestWin)
	_, err = e.app.Equity.Build(ctx, "", "")
	require.NoError(t, err)

	// Same id, new P&L: the checksum cannot see it, the event must.
	tr.PnL = fp(-100)
	tr.ExitPrice = fp(9)
	require.NoError(t, e.app.Ledger.UpdateTrade(ctx, tr))
	assert.False(t, e.app.Stats.IsValid([]journal.Trade{tr}))
	assert.Empty(t, e.app.EOD.Dates(ctx))

	sum, err = e.app.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, -100.0, *sum.Stats.LargestLoss)
	assert.Equal(t, 10400.0, sum.Balance.Balance)

	bal, ok := e.app.Equity.BalanceOnDate(ctx, "2024-03-08")
	require.True(t, ok)
	assert.Equal(t, 10400.0, bal)

	require.NoError(t, e.app.Ledger.DeleteTrade(ctx, tr.ID))
	sum, err = e.app.Refresh(ctx)
	require.NoError(t, err)
	assert.Nil(t, sum.Stats.WinRate)
	assert.Equal(t, 10500.0, sum.Balance.Balance)
}

func TestStartingBalanceChangeClearsEverything(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	loc := market.DefaultCalendar().Location
	e := newEnv(t, filepath.Join(t.TempDir(), "tb.db"), weekAfter(loc))
	e.seed(t)

	_, err := e.app.Equity.Build(ctx, "", "")
	require.NoError(t, err)
	require.NotEmpty(t, e.app.EOD.Dates(ctx))

	require.NoError(t, e.app.Ledger.SetStartingBalance(ctx, 20000))
	assert.Empty(t, e.app.EOD.Dates(ctx))

	bal, ok := e.app.Equity.BalanceOnDate(ctx, "2024-03-05")
	require.True(t, ok)
	assert.Equal(t, 20000.0, bal)
}

func TestRestartKeepsCaches(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	loc := market.DefaultCalendar().Location
	path := filepath.Join(t.TempDir(), "tb.db")

	first := newEnv(t, path, weekAfter(loc))
	first.seed(t)
	_, err := first.app.Equity.Build(ctx, "", "")
	require.NoError(t, err)
	_, err = first.app.Refresh(ctx)
	require.NoError(t, err)
	dates := first.app.EOD.Dates(ctx)
	require.NoError(t, first.app.Close())

	second := newEnv(t, path, weekAfter(loc))
	assert.Equal(t, dates, second.app.EOD.Dates(ctx))
	trades, err := second.app.Ledger.ListTrades(ctx)
	require.NoError(t, err)
	assert.True(t, second.app.Stats.IsValid(trades))

	start, err := second.app.Ledger.StartingBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10000.0, *start)
}

func TestConcurrentRefreshShares(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	loc := market.DefaultCalendar().Location
	e := newEnv(t, filepath.Join(t.TempDir(), "tb.db"), weekAfter(loc))
	e.seed(t)

	var wg sync.WaitGroup
	results := make([]Summary, 8)
	errs := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = e.app.Refresh(ctx)
		}()
	}
	wg.Wait()
	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, 10700.0, results[i].Balance.Balance)
	}
}

func TestCaptureEOD(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	loc := market.DefaultCalendar().Location
	e := newEnv(t, filepath.Join(t.TempDir(), "tb.db"), time.Date(2024, 3, 7, 16, 30, 0, 0, loc))

	_, err := e.app.Ledger.AddTrade(ctx, journal.Trade{
		Ticker: "ACME", AssetType: market.Stock, Entry: 10, Shares: 100,
		EntryTime: e.at("2024-03-04", 10),
	})
	require.NoError(t, err)
	e.prices.Set("ACME", 11)

	res, err := e.app.CaptureEOD(ctx)
	require.NoError(t, err)
	require.True(t, res.Saved)
	assert.Equal(t, 10100.0, res.Snapshot.Balance)

	res, err = e.app.CaptureEOD(ctx)
	require.NoError(t, err)
	assert.False(t, res.Saved)

	require.NoError(t, eodJob{app: e.app}.Run())
}

func TestStatsBetween(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	loc := market.DefaultCalendar().Location
	e := newEnv(t, filepath.Join(t.TempDir(), "tb.db"), weekAfter(loc))
	e.seed(t)

	all, err := e.app.StatsBetween(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, 1, all.WinsLosses.Total)

	none, err := e.app.StatsBetween(ctx, "2024-03-09", "")
	require.NoError(t, err)
	assert.Nil(t, none.WinRate)

	_, err = e.app.StatsBetween(ctx, "last week", "")
	assert.Error(t, err)
}

func TestScheduleRegistersJob(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Storage.DBPath = filepath.Join(t.TempDir(), "tb.db")

	a, err := New(cfg, Deps{Log: zerolog.Nop(), Schedule: true})
	require.NoError(t, err)
	require.NoError(t, a.Init(context.Background()))
	require.NotNil(t, a.sched)
	assert.Equal(t, 1, a.sched.Entries())
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Account.StartingBalance = nil
	_, err := New(cfg, Deps{Log: zerolog.Nop()})
	assert.True(t, IsMisconfigured(err))
}
