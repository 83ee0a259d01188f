package eod

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rustyeddy/tradebook/balance"
	"github.com/rustyeddy/tradebook/journal"
	"github.com/rustyeddy/tradebook/market"
)

// SnapshotSource reads the current ledger.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (journal.Snapshot, error)
}

type CaptureResult struct {
	Saved    bool      `json:"saved"`
	Reason   string    `json:"reason"`
	Snapshot *Snapshot `json:"snapshot,omitempty"`
}

// Recorder commits today's live balance as the day's snapshot. It saves at
// most once per trading day, and only after the session has closed, so
// intraday price polling never overwrites a day's closing value.
type Recorder struct {
	cache  *Cache
	ledger SnapshotSource
	live   market.LivePriceSource
	calc   balance.Calculator
	cal    market.Calendar
	log    zerolog.Logger
}

func NewRecorder(cache *Cache, ledger SnapshotSource, live market.LivePriceSource,
	calc balance.Calculator, cal market.Calendar, log zerolog.Logger) *Recorder {
	return &Recorder{
		cache:  cache,
		ledger: ledger,
		live:   live,
		calc:   calc,
		cal:    cal,
		log:    log.With().Str("component", "eod-recorder").Logger(),
	}
}

// Capture saves today's snapshot when the rules allow it. A trusted snapshot
// for today is never replaced; an untrusted one is retried.
func (r *Recorder) Capture(ctx context.Context, now time.Time) (CaptureResult, error) {
	today := r.cal.Today(now)

	if r.cal.MostRecentTradingDay(now) != today {
		return r.skip(today, "not a trading day"), nil
	}
	if !r.cal.AfterClose(now) {
		return r.skip(today, "market still open"), nil
	}
	if prev := r.cache.Get(ctx, today); prev != nil && prev.Trusted() {
		return r.skip(today, "already captured"), nil
	}

	snap, err := r.ledger.Snapshot(ctx)
	if err != nil {
		return CaptureResult{}, fmt.Errorf("eod capture: %w", err)
	}

	keys := balance.OpenPositionKeys(snap)
	prices := market.PriceMap{}
	if len(keys) > 0 && r.live != nil {
		p, err := r.live.CurrentPrices(ctx, keys)
		if err != nil {
			r.log.Warn().Err(err).Int("positions", len(keys)).Msg("live prices unavailable")
		} else {
			prices = p
		}
	}

	res, err := r.calc.CurrentBalance(snap, prices)
	if err != nil {
		return CaptureResult{}, fmt.Errorf("eod capture: %w", err)
	}

	s := FromResult(today, res, balance.DayCashFlow(snap.CashFlows, today), SourceLive, now)
	// A persistence failure is logged by the cache; the in-memory copy stands.
	_ = r.cache.Save(ctx, today, s)

	ev := r.log.Info().Str("date", today).Float64("balance", s.Balance)
	if s.Incomplete {
		ev = ev.Strs("missing", s.MissingTickers)
	}
	ev.Bool("incomplete", s.Incomplete).Msg("eod snapshot saved")

	return CaptureResult{Saved: true, Reason: "captured", Snapshot: &s}, nil
}

func (r *Recorder) skip(date, reason string) CaptureResult {
	r.log.Info().Str("date", date).Str("reason", reason).Msg("eod capture skipped")
	return CaptureResult{Reason: reason}
}
