package stats

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rustyeddy/tradebook/journal"
	"github.com/rustyeddy/tradebook/kv"
)

const RecordVersion = 1

const storeKey = "stats/record"

// Record is one full statistics computation plus the fingerprint of the
// trade set it was computed from.
type Record struct {
	Version        int            `msgpack:"version" json:"version"`
	TradeCount     int            `msgpack:"trade_count" json:"tradeCount"`
	TradeChecksum  string         `msgpack:"checksum" json:"tradeChecksum"`
	WinRate        *float64       `msgpack:"win_rate" json:"winRate"`
	WinsLosses     WinsLosses     `msgpack:"wins_losses" json:"winsLosses"`
	AvgWin         *float64       `msgpack:"avg_win" json:"avgWin"`
	AvgLoss        *float64       `msgpack:"avg_loss" json:"avgLoss"`
	ProfitFactor   *float64       `msgpack:"profit_factor" json:"profitFactor"`
	Expectancy     *float64       `msgpack:"expectancy" json:"expectancy"`
	LargestWin     *float64       `msgpack:"largest_win" json:"largestWin"`
	LargestLoss    *float64       `msgpack:"largest_loss" json:"largestLoss"`
	AvgHoldTime    *time.Duration `msgpack:"avg_hold" json:"avgHoldTime"`
	TotalPnL       float64        `msgpack:"total_pnl" json:"totalPnL"`
	ClosedTradeIDs []string       `msgpack:"closed_ids" json:"closedTradeIds"`
	CachedAt       time.Time      `msgpack:"cached_at" json:"cachedAt"`
}

// Checksum fingerprints a trade set by its size and sorted ids. It notices
// added, removed or renamed trades but not edits to an existing trade, so
// owners must also call Invalidate on every trade mutation.
func Checksum(trades []journal.Trade) string {
	ids := make([]string, 0, len(trades))
	for _, t := range trades {
		ids = append(ids, t.ID)
	}
	slices.Sort(ids)
	h := fnv.New64a()
	for _, id := range ids {
		_, _ = h.Write([]byte(id))
		_, _ = h.Write([]byte{0})
	}
	return fmt.Sprintf("%d-%016x", len(trades), h.Sum64())
}

// Cache memoizes a full Record for one trade set and persists it.
type Cache struct {
	calc  Calculator
	store kv.Store
	log   zerolog.Logger
	now   func() time.Time

	mu  sync.Mutex
	rec Record
}

func NewCache(calc Calculator, store kv.Store, log zerolog.Logger) *Cache {
	return &Cache{
		calc:  calc,
		store: store,
		log:   log.With().Str("component", "stats").Logger(),
		now:   time.Now,
	}
}

// Load restores the persisted record. Anything unreadable leaves the cache
// empty.
func (c *Cache) Load(ctx context.Context) {
	var rec Record
	err := kv.Load(ctx, c.store, storeKey, RecordVersion, &rec)
	switch {
	case err == nil:
	case errors.Is(err, kv.ErrNotFound):
		return
	case errors.Is(err, kv.ErrVersion):
		c.log.Info().Err(err).Msg("stats cache from another version ignored")
		return
	default:
		c.log.Warn().Err(err).Msg("stats cache unreadable, starting cold")
		return
	}
	c.mu.Lock()
	c.rec = rec
	c.mu.Unlock()
}

func (c *Cache) IsValid(trades []journal.Trade) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.validLocked(trades)
}

func (c *Cache) validLocked(trades []journal.Trade) bool {
	return c.rec.TradeCount > 0 && c.rec.TradeChecksum == Checksum(trades)
}

// CalculateAndCache returns the cached record when it matches trades and
// otherwise recomputes, stores and persists a new one.
func (c *Cache) CalculateAndCache(ctx context.Context, trades []journal.Trade) Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.validLocked(trades) {
		return c.rec
	}

	rec := c.calc.Compute(trades)
	rec.TradeCount = len(trades)
	rec.TradeChecksum = Checksum(trades)
	rec.CachedAt = c.now()
	c.rec = rec

	if err := kv.Put(ctx, c.store, storeKey, RecordVersion, rec); err != nil {
		c.log.Warn().Err(err).Msg("stats cache not persisted")
	}
	c.log.Debug().Int("trades", rec.TradeCount).Int("realized", rec.WinsLosses.Total).Msg("stats recomputed")
	return rec
}

// Invalidate empties the cache so the next read recomputes.
func (c *Cache) Invalidate(ctx context.Context) {
	c.mu.Lock()
	c.rec = Record{}
	c.mu.Unlock()
	if err := c.store.Remove(ctx, storeKey); err != nil {
		c.log.Warn().Err(err).Msg("stats cache not removed from store")
	}
	c.log.Debug().Msg("stats cache invalidated")
}

// cached returns the stored record when it is valid for trades.
func (c *Cache) cached(trades []journal.Trade) (Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.validLocked(trades) {
		return Record{}, false
	}
	return c.rec, true
}

// The accessors below answer from the cache when it matches trades, and
// otherwise compute only the requested metric without touching the cache.

func (c *Cache) WinRate(trades []journal.Trade) *float64 {
	if r, ok := c.cached(trades); ok {
		return r.WinRate
	}
	return c.calc.WinRate(trades)
}

func (c *Cache) WinsLosses(trades []journal.Trade) WinsLosses {
	if r, ok := c.cached(trades); ok {
		return r.WinsLosses
	}
	return c.calc.WinsLosses(trades)
}

func (c *Cache) AvgWin(trades []journal.Trade) *float64 {
	if r, ok := c.cached(trades); ok {
		return r.AvgWin
	}
	return c.calc.AvgWin(trades)
}

func (c *Cache) AvgLoss(trades []journal.Trade) *float64 {
	if r, ok := c.cached(trades); ok {
		return r.AvgLoss
	}
	return c.calc.AvgLoss(trades)
}

func (c *Cache) ProfitFactor(trades []journal.Trade) *float64 {
	if r, ok := c.cached(trades); ok {
		return r.ProfitFactor
	}
	return c.calc.ProfitFactor(trades)
}

func (c *Cache) AvgWinLossRatio(trades []journal.Trade) *float64 {
	if r, ok := c.cached(trades); ok {
		return winLossRatio(r.AvgWin, r.AvgLoss)
	}
	return c.calc.AvgWinLossRatio(trades)
}

func (c *Cache) Expectancy(trades []journal.Trade) *float64 {
	if r, ok := c.cached(trades); ok {
		return r.Expectancy
	}
	return c.calc.Expectancy(trades)
}

func (c *Cache) LargestWin(trades []journal.Trade) *float64 {
	if r, ok := c.cached(trades); ok {
		return r.LargestWin
	}
	return c.calc.LargestWin(trades)
}

func (c *Cache) LargestLoss(trades []journal.Trade) *float64 {
	if r, ok := c.cached(trades); ok {
		return r.LargestLoss
	}
	return c.calc.LargestLoss(trades)
}

func (c *Cache) AvgHoldTime(trades []journal.Trade) *time.Duration {
	if r, ok := c.cached(trades); ok {
		return r.AvgHoldTime
	}
	return c.calc.AvgHoldTime(trades)
}
