package eod

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rustyeddy/tradebook/balance"
	"github.com/rustyeddy/tradebook/journal"
	"github.com/rustyeddy/tradebook/kv"
	"github.com/rustyeddy/tradebook/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenStore struct{}

var errBroken = errors.New("disk on fire")

func (brokenStore) Get(context.Context, string) ([]byte, error) { return nil, errBroken }
func (brokenStore) Set(context.Context, string, []byte) error   { return errBroken }
func (brokenStore) Remove(context.Context, string) error        { return errBroken }

type countingStore struct {
	kv.Store
	sets int
}

func (s *countingStore) Set(ctx context.Context, key string, value []byte) error {
	s.sets++
	return s.Store.Set(ctx, key, value)
}

func snap(date string, bal float64) Snapshot {
	return Snapshot{Version: SchemaVersion, Date: date, Balance: bal, RealizedBalance: bal, Source: SourceHistorical}
}

func TestCacheSaveGetHas(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := NewCache(kv.NewMemory(), zerolog.Nop())

	assert.Nil(t, c.Get(ctx, "2024-03-04"))
	assert.False(t, c.Has(ctx, "2024-03-04"))

	require.NoError(t, c.Save(ctx, "2024-03-04", snap("2024-03-04", 100)))
	require.NoError(t, c.Save(ctx, "2024-03-04", snap("2024-03-04", 200)))

	got := c.Get(ctx, "2024-03-04")
	require.NotNil(t, got)
	assert.Equal(t, 200.0, got.Balance)
	assert.True(t, c.Has(ctx, "2024-03-04"))

	got.Balance = 1
	assert.Equal(t, 200.0, c.Get(ctx, "2024-03-04").Balance)
}

func TestCacheSaveManyWritesOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := &countingStore{Store: kv.NewMemory()}
	c := NewCache(store, zerolog.Nop())

	require.NoError(t, c.SaveMany(ctx, nil))
	assert.Zero(t, store.sets)

	batch := map[string]Snapshot{}
	for i, d := range []string{"2024-03-04", "2024-03-05", "2024-03-06"} {
		batch[d] = Snapshot{Balance: float64(i)}
	}
	require.NoError(t, c.SaveMany(ctx, batch))
	assert.Equal(t, 1, store.sets)
	assert.Equal(t, []string{"2024-03-04", "2024-03-05", "2024-03-06"}, c.Dates(ctx))

	got := NewCache(store, zerolog.Nop()).Get(ctx, "2024-03-05")
	require.NotNil(t, got)
	assert.Equal(t, "2024-03-05", got.Date)
	assert.Equal(t, SchemaVersion, got.Version)
	assert.Equal(t, 1.0, got.Balance)
}

func TestCacheInvalidateAndClear(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := NewCache(kv.NewMemory(), zerolog.Nop())

	for i, d := range []string{"2024-03-04", "2024-03-05", "2024-03-06", "2024-03-07"} {
		require.NoError(t, c.Save(ctx, d, snap(d, float64(i))))
	}

	n, err := c.InvalidateFromDate(ctx, "2024-03-06")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"2024-03-04", "2024-03-05"}, c.Dates(ctx))

	require.NoError(t, c.ClearAll(ctx))
	assert.Empty(t, c.Dates(ctx))
}

func TestCachePersists(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := kv.NewMemory()

	c := NewCache(store, zerolog.Nop())
	s := snap("2024-03-04", 10500)
	s.StockPrices = map[string]float64{"AAPL": 171.5}
	s.Incomplete = true
	s.MissingTickers = []string{"ZZZZ"}
	require.NoError(t, c.Save(ctx, "2024-03-04", s))

	again := NewCache(store, zerolog.Nop())
	got := again.Get(ctx, "2024-03-04")
	require.NotNil(t, got)
	assert.Equal(t, 10500.0, got.Balance)
	assert.Equal(t, 171.5, got.StockPrices["AAPL"])
	assert.Equal(t, []string{"ZZZZ"}, got.MissingTickers)
	assert.False(t, got.Trusted())
}

func TestCacheVersionMismatchIsCold(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := kv.NewMemory()

	old := map[string]Snapshot{"2024-03-04": snap("2024-03-04", 1)}
	require.NoError(t, kv.Put(ctx, store, storeKey, SchemaVersion+1, old))

	c := NewCache(store, zerolog.Nop())
	assert.Nil(t, c.Get(ctx, "2024-03-04"))
}

func TestCacheBrokenStoreIsCold(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := NewCache(brokenStore{}, zerolog.Nop())

	assert.False(t, c.Has(ctx, "2024-03-04"))
	err := c.Save(ctx, "2024-03-04", snap("2024-03-04", 5))
	assert.ErrorIs(t, err, errBroken)
	// Still served from memory.
	assert.Equal(t, 5.0, c.Get(ctx, "2024-03-04").Balance)
}

func TestTrusted(t *testing.T) {
	t.Parallel()

	s := snap("2024-03-04", 1)
	assert.True(t, s.Trusted())

	s.Incomplete = true
	assert.False(t, s.Trusted())

	s = snap("2024-03-04", 1)
	s.Error = "prices failed"
	assert.False(t, s.Trusted())

	s = snap("2024-03-04", 1)
	s.Version = 0
	assert.False(t, s.Trusted())
}

type staticLedger struct{ snap journal.Snapshot }

func (l staticLedger) Snapshot(context.Context) (journal.Snapshot, error) { return l.snap, nil }

type livePrices struct {
	prices market.PriceMap
	calls  int
}

func (l *livePrices) CurrentPrices(_ context.Context, keys []string) (market.PriceMap, error) {
	l.calls++
	out := market.PriceMap{}
	for _, k := range keys {
		if p, ok := l.prices.Get(k); ok {
			out[k] = p
		}
	}
	return out, nil
}

func ptr(v float64) *float64 { return &v }

func recorderFixture(t *testing.T, prices market.PriceMap) (*Recorder, *Cache, *livePrices, market.Calendar) {
	t.Helper()
	cal := market.DefaultCalendar()
	ledger := staticLedger{snap: journal.Snapshot{
		StartingBalance: ptr(10000),
		Trades: []journal.Trade{{
			ID: "t", Ticker: "AAPL", AssetType: market.Stock, Entry: 100, Shares: 10,
			Status: journal.Open, EntryTime: time.Date(2024, 3, 4, 10, 0, 0, 0, cal.Location),
		}},
		CashFlows: []journal.CashFlow{{
			ID: "d", Type: journal.Deposit, Amount: 250,
			Timestamp: time.Date(2024, 3, 8, 9, 0, 0, 0, cal.Location),
		}},
	}}
	live := &livePrices{prices: prices}
	cache := NewCache(kv.NewMemory(), zerolog.Nop())
	r := NewRecorder(cache, ledger, live, balance.NewCalculator(zerolog.Nop()), cal, zerolog.Nop())
	return r, cache, live, cal
}

func TestCaptureRules(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r, cache, live, cal := recorderFixture(t, market.PriceMap{"AAPL": 110})

	// Friday before the close.
	res, err := r.Capture(ctx, time.Date(2024, 3, 8, 15, 59, 0, 0, cal.Location))
	require.NoError(t, err)
	assert.False(t, res.Saved)
	assert.Equal(t, "market still open", res.Reason)

	// Saturday.
	res, err = r.Capture(ctx, time.Date(2024, 3, 9, 18, 0, 0, 0, cal.Location))
	require.NoError(t, err)
	assert.False(t, res.Saved)
	assert.Equal(t, "not a trading day", res.Reason)
	assert.Zero(t, live.calls)

	res, err = r.Capture(ctx, time.Date(2024, 3, 8, 16, 5, 0, 0, cal.Location))
	require.NoError(t, err)
	require.True(t, res.Saved)
	assert.Equal(t, 10350.0, res.Snapshot.Balance)
	assert.Equal(t, 250.0, res.Snapshot.CashFlow)
	assert.Equal(t, SourceLive, res.Snapshot.Source)
	assert.True(t, res.Snapshot.Trusted())
	assert.True(t, cache.Has(ctx, "2024-03-08"))

	// Later polling the same evening does not overwrite the close.
	res, err = r.Capture(ctx, time.Date(2024, 3, 8, 20, 0, 0, 0, cal.Location))
	require.NoError(t, err)
	assert.False(t, res.Saved)
	assert.Equal(t, "already captured", res.Reason)
	assert.Equal(t, 1, live.calls)
}

func TestCaptureIncompleteIsRetried(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r, cache, live, cal := recorderFixture(t, market.PriceMap{})

	res, err := r.Capture(ctx, time.Date(2024, 3, 8, 16, 30, 0, 0, cal.Location))
	require.NoError(t, err)
	require.True(t, res.Saved)
	assert.True(t, res.Snapshot.Incomplete)
	assert.Equal(t, []string{"AAPL"}, res.Snapshot.MissingTickers)
	assert.Equal(t, 10250.0, res.Snapshot.Balance)

	live.prices = market.PriceMap{"AAPL": 90}
	res, err = r.Capture(ctx, time.Date(2024, 3, 8, 17, 0, 0, 0, cal.Location))
	require.NoError(t, err)
	require.True(t, res.Saved)
	assert.False(t, res.Snapshot.Incomplete)
	assert.Equal(t, 10150.0, cache.Get(ctx, "2024-03-08").Balance)
}
