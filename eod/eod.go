// Package eod keeps one end-of-day balance snapshot per trading day.
package eod

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rustyeddy/tradebook/balance"
	"github.com/rustyeddy/tradebook/kv"
)

// SchemaVersion is stamped on every snapshot and on the persisted map.
const SchemaVersion = 1

const storeKey = "eod/snapshots"

const (
	SourceLive       = "live"
	SourceHistorical = "historical"
)

type Snapshot struct {
	Version         int                `msgpack:"version" json:"version"`
	Date            string             `msgpack:"date" json:"date"`
	Balance         float64            `msgpack:"balance" json:"balance"`
	RealizedBalance float64            `msgpack:"realized" json:"realizedBalance"`
	UnrealizedPnL   float64            `msgpack:"unrealized" json:"unrealizedPnL"`
	StockPrices     map[string]float64 `msgpack:"prices" json:"stockPrices,omitempty"`
	PositionsPriced []string           `msgpack:"priced" json:"positionsPriced,omitempty"`
	CashFlow        float64            `msgpack:"cash_flow" json:"cashFlow"`
	SavedAt         time.Time          `msgpack:"saved_at" json:"timestamp"`
	Source          string             `msgpack:"source" json:"source"`
	Incomplete      bool               `msgpack:"incomplete" json:"incomplete"`
	MissingTickers  []string           `msgpack:"missing,omitempty" json:"missingTickers,omitempty"`
	Error           string             `msgpack:"error,omitempty" json:"error,omitempty"`
}

// Trusted reports whether the snapshot may be used as an authoritative
// balance. Incomplete or failed snapshots, and snapshots from another
// schema version, must be recomputed.
func (s Snapshot) Trusted() bool {
	return !s.Incomplete && s.Error == "" && s.Version == SchemaVersion
}

// FromResult builds a snapshot from a balance computation.
func FromResult(date string, r balance.Result, cashFlow float64, source string, at time.Time) Snapshot {
	return Snapshot{
		Version:         SchemaVersion,
		Date:            date,
		Balance:         r.Balance,
		RealizedBalance: r.RealizedBalance,
		UnrealizedPnL:   r.UnrealizedPnL,
		StockPrices:     r.PricesUsed,
		PositionsPriced: r.PositionsPriced,
		CashFlow:        cashFlow,
		SavedAt:         at,
		Source:          source,
		Incomplete:      !r.Complete(),
		MissingTickers:  r.MissingTickers,
	}
}

func (s Snapshot) clone() Snapshot {
	s.StockPrices = maps.Clone(s.StockPrices)
	s.PositionsPriced = slices.Clone(s.PositionsPriced)
	s.MissingTickers = slices.Clone(s.MissingTickers)
	return s
}

// Cache is the durable date-keyed snapshot store. The whole map is persisted
// under one key and mirrored in memory; it is read from the store on first
// use. A store that cannot be read behaves as an empty cache.
type Cache struct {
	store kv.Store
	log   zerolog.Logger

	mu     sync.RWMutex
	loaded bool
	data   map[string]Snapshot
}

func NewCache(store kv.Store, log zerolog.Logger) *Cache {
	return &Cache{
		store: store,
		log:   log.With().Str("component", "eod").Logger(),
		data:  make(map[string]Snapshot),
	}
}

// Load reads the persisted snapshots, replacing the in-memory mirror.
func (c *Cache) Load(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadLocked(ctx)
}

func (c *Cache) loadLocked(ctx context.Context) {
	c.loaded = true
	data := make(map[string]Snapshot)
	err := kv.Load(ctx, c.store, storeKey, SchemaVersion, &data)
	switch {
	case err == nil:
		c.data = data
		c.log.Debug().Int("snapshots", len(data)).Msg("eod cache loaded")
	case errors.Is(err, kv.ErrNotFound):
		c.data = make(map[string]Snapshot)
	case errors.Is(err, kv.ErrVersion):
		c.log.Info().Err(err).Msg("eod cache written by another version, rebuilding")
		c.data = make(map[string]Snapshot)
	default:
		c.log.Warn().Err(err).Msg("eod cache unreadable, starting cold")
		c.data = make(map[string]Snapshot)
	}
}

func (c *Cache) ensure(ctx context.Context) {
	c.mu.RLock()
	ok := c.loaded
	c.mu.RUnlock()
	if ok {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		c.loadLocked(ctx)
	}
}

func (c *Cache) persistLocked(ctx context.Context) error {
	if err := kv.Put(ctx, c.store, storeKey, SchemaVersion, c.data); err != nil {
		c.log.Warn().Err(err).Msg("eod cache not persisted")
		return err
	}
	return nil
}

// Get returns a copy of the snapshot for date, or nil.
func (c *Cache) Get(ctx context.Context, date string) *Snapshot {
	c.ensure(ctx)
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.data[date]
	if !ok {
		return nil
	}
	s = s.clone()
	return &s
}

func (c *Cache) Has(ctx context.Context, date string) bool {
	c.ensure(ctx)
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.data[date]
	return ok
}

// Save stores s for date, replacing any earlier snapshot. The in-memory
// copy is updated even when persisting fails.
func (c *Cache) Save(ctx context.Context, date string, s Snapshot) error {
	c.ensure(ctx)
	s = s.clone()
	s.Date = date
	if s.Version == 0 {
		s.Version = SchemaVersion
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[date] = s
	return c.persistLocked(ctx)
}

// SaveMany stores every snapshot in batch, keyed by date, with a single
// write to the backing store.
func (c *Cache) SaveMany(ctx context.Context, batch map[string]Snapshot) error {
	if len(batch) == 0 {
		return nil
	}
	c.ensure(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	for date, s := range batch {
		s = s.clone()
		s.Date = date
		if s.Version == 0 {
			s.Version = SchemaVersion
		}
		c.data[date] = s
	}
	return c.persistLocked(ctx)
}

// InvalidateFromDate removes every snapshot dated on or after date and
// returns how many were removed.
func (c *Cache) InvalidateFromDate(ctx context.Context, date string) (int, error) {
	c.ensure(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for d := range c.data {
		if d >= date {
			delete(c.data, d)
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	c.log.Debug().Str("from", date).Int("removed", n).Msg("eod snapshots invalidated")
	return n, c.persistLocked(ctx)
}

// ClearAll drops every snapshot.
func (c *Cache) ClearAll(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loaded = true
	c.data = make(map[string]Snapshot)
	c.log.Debug().Msg("eod cache cleared")
	if err := c.store.Remove(ctx, storeKey); err != nil {
		c.log.Warn().Err(err).Msg("eod cache not cleared in store")
		return err
	}
	return nil
}

// Dates lists the cached dates in ascending order.
func (c *Cache) Dates(ctx context.Context) []string {
	c.ensure(ctx)
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Sorted(maps.Keys(c.data))
}
