// Package app wires the ledger, caches and calculators into one service
// with an explicit lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rustyeddy/tradebook/balance"
	"github.com/rustyeddy/tradebook/calendar"
	"github.com/rustyeddy/tradebook/config"
	"github.com/rustyeddy/tradebook/eod"
	"github.com/rustyeddy/tradebook/equity"
	"github.com/rustyeddy/tradebook/journal"
	"github.com/rustyeddy/tradebook/kv"
	"github.com/rustyeddy/tradebook/market"
	"github.com/rustyeddy/tradebook/pricing"
	"github.com/rustyeddy/tradebook/stats"
	"golang.org/x/sync/singleflight"
)

// Deps overrides parts of the service, mostly for tests. Zero values pick
// the configured defaults.
type Deps struct {
	Log        zerolog.Logger
	Live       market.LivePriceSource
	Historical market.HistoricalPriceSource
	Now        func() time.Time
	// Schedule starts the cron EOD job in Init.
	Schedule bool
}

type App struct {
	cfg  *config.Config
	log  zerolog.Logger
	now  func() time.Time
	cal  market.Calendar
	deps Deps

	store   *journal.SQLite
	kv      *kv.SQLite
	live    market.LivePriceSource
	hist    market.HistoricalPriceSource
	calc    balance.Calculator
	sched   *Scheduler
	unsub   func()
	flights singleflight.Group

	Ledger   *journal.Ledger
	EOD      *eod.Cache
	Recorder *eod.Recorder
	Equity   *equity.Manager
	Stats    *stats.Cache
	Calendar *calendar.Aggregator
	Memo     *balance.Memo
}

// New validates cfg and prepares the service. Nothing is opened until Init.
func New(cfg *config.Config, deps Deps) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cal, err := cfg.Calendar()
	if err != nil {
		return nil, err
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	calc := balance.NewCalculator(deps.Log)
	return &App{
		cfg:  cfg,
		log:  deps.Log.With().Str("component", "app").Logger(),
		now:  now,
		cal:  cal,
		deps: deps,
		calc: calc,
		Memo: balance.NewMemo(calc),
	}, nil
}

// Init opens the stores, builds every component, subscribes them to ledger
// events and syncs the configured starting balance into the ledger.
func (a *App) Init(ctx context.Context) error {
	store, err := journal.NewSQLite(a.cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	a.store = store
	if a.kv, err = kv.NewSQLiteDB(store.DB()); err != nil {
		store.Close()
		return fmt.Errorf("open kv: %w", err)
	}

	if err := a.initPrices(); err != nil {
		store.Close()
		return err
	}

	log := a.deps.Log
	a.Ledger = journal.NewLedger(store, journal.NewBus(), log)
	a.EOD = eod.NewCache(a.kv, log)
	a.EOD.Load(ctx)
	a.Recorder = eod.NewRecorder(a.EOD, a.Ledger, a.live, a.calc, a.cal, log)
	a.Equity = equity.NewManager(a.Ledger, a.EOD, a.hist, a.live, a.cal, log)
	a.Equity.SetClock(a.now)
	a.Stats = stats.NewCache(stats.NewCalculator(), a.kv, log)
	a.Stats.Load(ctx)
	a.Calendar = calendar.New(a.EOD, a.Ledger, a.cal, log)

	a.unsub = a.Ledger.Bus().Subscribe(a.handle)

	if err := a.syncStartingBalance(ctx); err != nil {
		a.Close()
		return err
	}

	if a.deps.Schedule && a.cfg.Market.EODSchedule != "" {
		a.sched = NewScheduler(a.cal.Location, log)
		if err := a.sched.AddJob(a.cfg.Market.EODSchedule, eodJob{app: a}); err != nil {
			a.Close()
			return fmt.Errorf("schedule eod capture: %w", err)
		}
		a.sched.Start()
	}

	a.log.Info().Str("db", a.cfg.Storage.DBPath).Str("prices", a.cfg.Prices.Provider).Msg("tradebook initialized")
	return nil
}

func (a *App) initPrices() error {
	a.live, a.hist = a.deps.Live, a.deps.Historical
	if a.live != nil && a.hist != nil {
		return nil
	}

	var live market.LivePriceSource
	var hist market.HistoricalPriceSource
	switch a.cfg.Prices.Provider {
	case "alpaca":
		delay, err := a.cfg.RequestDelay()
		if err != nil {
			return err
		}
		client := pricing.NewAlpaca(a.cfg.Prices.APIKeyID, a.cfg.Prices.APISecretKey,
			a.cfg.Prices.Feed, a.cal.Location, a.deps.Log)
		live = client
		hist = pricing.NewHistoricalCache(pricing.NewThrottled(client, delay), a.kv, a.deps.Log)
	default:
		s := pricing.NewStatic(a.cfg.Prices.Static)
		live, hist = s, s
	}
	if a.live == nil {
		a.live = live
	}
	if a.hist == nil {
		a.hist = hist
	}
	return nil
}

func (a *App) syncStartingBalance(ctx context.Context) error {
	want := *a.cfg.Account.StartingBalance
	have, err := a.Ledger.StartingBalance(ctx)
	if err != nil {
		return fmt.Errorf("read starting balance: %w", err)
	}
	if have != nil && *have == want {
		return nil
	}
	return a.Ledger.SetStartingBalance(ctx, want)
}

// Close tears down in reverse order of Init. It is safe to call more than
// once.
func (a *App) Close() error {
	if a.sched != nil {
		a.sched.Stop()
		a.sched = nil
	}
	if a.unsub != nil {
		a.unsub()
		a.unsub = nil
	}
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}

func (a *App) Config() *config.Config { return a.cfg }

func (a *App) MarketCalendar() market.Calendar { return a.cal }

// handle runs inside the ledger mutation that published ev, so every cache
// is invalidated before the mutating call returns.
func (a *App) handle(ev journal.Event) {
	ctx := context.Background()
	switch e := ev.(type) {
	case journal.TradeAddedEvent:
		a.tradeChanged(ctx, e.Trade)
	case journal.TradeUpdatedEvent:
		a.tradeChanged(ctx, e.Old, e.New)
	case journal.TradeDeletedEvent:
		a.tradeChanged(ctx, e.Trade)
	case journal.CashFlowAddedEvent:
		a.cashFlowChanged(ctx, e.CashFlow)
	case journal.CashFlowDeletedEvent:
		a.cashFlowChanged(ctx, e.CashFlow)
	case journal.SettingsChangedEvent:
		_ = a.EOD.ClearAll(ctx)
		a.Equity.Reset()
		a.Stats.Invalidate(ctx)
		a.Memo.Invalidate()
	}
	a.log.Debug().Str("event", string(ev.EventType())).Msg("caches invalidated")
}

func (a *App) tradeChanged(ctx context.Context, trades ...journal.Trade) {
	a.Stats.Invalidate(ctx)
	a.Equity.InvalidateForTrade(ctx, trades...)
	a.Memo.Invalidate()
}

func (a *App) cashFlowChanged(ctx context.Context, c journal.CashFlow) {
	a.Equity.InvalidateFromDate(ctx, c.Date())
	a.Memo.Invalidate()
}

// Summary is the state shown on the dashboard.
type Summary struct {
	Balance balance.Result `json:"balance"`
	Stats   stats.Record   `json:"stats"`
	At      time.Time      `json:"at"`
}

// Refresh recomputes the current balance and statistics. Overlapping calls
// share one computation.
func (a *App) Refresh(ctx context.Context) (Summary, error) {
	v, err, shared := a.flights.Do("refresh", func() (any, error) {
		return a.refresh(ctx)
	})
	if shared {
		a.log.Debug().Msg("refresh already in flight, shared result")
	}
	if err != nil {
		return Summary{}, err
	}
	return v.(Summary), nil
}

func (a *App) refresh(ctx context.Context) (Summary, error) {
	snap, err := a.Ledger.Snapshot(ctx)
	if err != nil {
		return Summary{}, err
	}
	prices := a.livePrices(ctx, balance.OpenPositionKeys(snap))
	res, err := a.Memo.CurrentSize(snap, prices)
	if err != nil {
		return Summary{}, err
	}
	rec := a.Stats.CalculateAndCache(ctx, snap.Trades)
	return Summary{Balance: res, Stats: rec, At: a.now()}, nil
}

func (a *App) livePrices(ctx context.Context, keys []string) market.PriceMap {
	if len(keys) == 0 {
		return market.PriceMap{}
	}
	prices, err := a.live.CurrentPrices(ctx, keys)
	if err != nil {
		a.log.Warn().Err(err).Int("positions", len(keys)).Msg("live prices unavailable")
		return market.PriceMap{}
	}
	return prices
}

// StatsBetween computes statistics for trades that exited in [from, to].
// The unbounded query goes through the cache.
func (a *App) StatsBetween(ctx context.Context, from, to string) (stats.Record, error) {
	trades, err := a.Ledger.ListTrades(ctx)
	if err != nil {
		return stats.Record{}, err
	}
	if from == "" && to == "" {
		return a.Stats.CalculateAndCache(ctx, trades), nil
	}
	for _, d := range []string{from, to} {
		if d == "" {
			continue
		}
		if _, err := market.ParseDate(d); err != nil {
			return stats.Record{}, err
		}
	}
	filtered := stats.FilterByExitRange(trades, from, to)
	rec := stats.NewCalculator().Compute(filtered)
	rec.TradeCount = len(filtered)
	return rec, nil
}

// CaptureEOD runs the recorder once; concurrent triggers share the run.
func (a *App) CaptureEOD(ctx context.Context) (eod.CaptureResult, error) {
	v, err, _ := a.flights.Do("eod", func() (any, error) {
		return a.Recorder.Capture(ctx, a.now())
	})
	if err != nil {
		return eod.CaptureResult{}, err
	}
	return v.(eod.CaptureResult), nil
}

// IsMisconfigured reports whether err comes from a missing starting balance.
func IsMisconfigured(err error) bool {
	return errors.Is(err, balance.ErrNoStartingBalance) || errors.Is(err, config.ErrNoStartingBalance)
}

type eodJob struct{ app *App }

func (eodJob) Name() string { return "eod-capture" }

func (j eodJob) Run() error {
	res, err := j.app.CaptureEOD(context.Background())
	if err != nil {
		return err
	}
	if !res.Saved {
		j.app.log.Debug().Str("reason", res.Reason).Msg("eod capture skipped")
	}
	return nil
}
