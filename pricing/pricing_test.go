package pricing

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/rs/zerolog"
	"github.com/rustyeddy/tradebook/kv"
	"github.com/rustyeddy/tradebook/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMarketData struct {
	trades   map[string]float64
	bars     map[string][]marketdata.Bar
	failFor  map[string]bool
	requests [][]string
	barReqs  []marketdata.GetBarsRequest
}

func (f *fakeMarketData) GetLatestTrades(symbols []string, _ marketdata.GetLatestTradeRequest) (map[string]marketdata.Trade, error) {
	f.requests = append(f.requests, symbols)
	out := make(map[string]marketdata.Trade)
	for _, s := range symbols {
		if f.failFor[s] {
			return nil, fmt.Errorf("422 invalid symbol %s", s)
		}
		if p, ok := f.trades[s]; ok {
			out[s] = marketdata.Trade{Price: p}
		}
	}
	return out, nil
}

func (f *fakeMarketData) GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error) {
	f.barReqs = append(f.barReqs, req)
	if f.failFor[symbol] {
		return nil, errors.New("rate limited")
	}
	return f.bars[symbol], nil
}

func TestAlpacaCurrentPrices(t *testing.T) {
	t.Parallel()

	md := &fakeMarketData{trades: map[string]float64{"AAPL": 171.25, "MSFT": 410}}
	a := newAlpaca(md, "", time.UTC, zerolog.Nop())

	prices, err := a.CurrentPrices(context.Background(), []string{"AAPL", "MSFT", "ZZZZ", "SPY 2024-04-19 500 C"})
	require.NoError(t, err)
	assert.Equal(t, market.PriceMap{"AAPL": 171.25, "MSFT": 410}, prices)
	require.Len(t, md.requests, 1)
	assert.Equal(t, []string{"AAPL", "MSFT", "ZZZZ"}, md.requests[0])
}

func TestAlpacaBatchFailureDoesNotAbort(t *testing.T) {
	t.Parallel()

	md := &fakeMarketData{trades: map[string]float64{}, failFor: map[string]bool{"BAD": true}}
	var keys []string
	for i := range batchSize {
		sym := fmt.Sprintf("S%03d", i)
		md.trades[sym] = float64(i + 1)
		keys = append(keys, sym)
	}
	keys[0] = "BAD"
	keys = append(keys, "LAST")
	md.trades["LAST"] = 5

	a := newAlpaca(md, "sip", time.UTC, zerolog.Nop())
	prices, err := a.CurrentPrices(context.Background(), keys)
	require.NoError(t, err)
	assert.Len(t, md.requests, 2)
	assert.Equal(t, market.PriceMap{"LAST": 5}, prices)

	_, err = a.CurrentPrices(context.Background(), []string{"BAD"})
	assert.Error(t, err)
}

func TestAlpacaPriceOnDate(t *testing.T) {
	t.Parallel()

	ny := market.DefaultCalendar().Location
	md := &fakeMarketData{bars: map[string][]marketdata.Bar{
		"AAPL": {{Timestamp: time.Date(2024, 3, 5, 0, 0, 0, 0, ny), Close: 170.12}},
	}, failFor: map[string]bool{"BAD": true}}
	a := newAlpaca(md, "", ny, zerolog.Nop())
	ctx := context.Background()

	p, err := a.PriceOnDate(ctx, "AAPL", "2024-03-05")
	require.NoError(t, err)
	assert.Equal(t, 170.12, p)
	assert.Equal(t, marketdata.OneDay, md.barReqs[0].TimeFrame)

	_, err = a.PriceOnDate(ctx, "AAPL", "2024-03-06")
	assert.ErrorIs(t, err, market.ErrPriceUnavailable)

	_, err = a.PriceOnDate(ctx, "SPY 2024-04-19 500 C", "2024-03-05")
	assert.ErrorIs(t, err, market.ErrPriceUnavailable)

	_, err = a.PriceOnDate(ctx, "BAD", "2024-03-05")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, market.ErrPriceUnavailable)
}

type countingSource struct {
	calls int
	price float64
	err   error
}

func (c *countingSource) PriceOnDate(context.Context, string, string) (float64, error) {
	c.calls++
	return c.price, c.err
}

func TestThrottledSpacesCalls(t *testing.T) {
	t.Parallel()

	src := &countingSource{price: 1}
	th := NewThrottled(src, 20*time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for range 3 {
		_, err := th.PriceOnDate(ctx, "AAPL", "2024-03-05")
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	assert.Equal(t, 3, src.calls)
}

func TestThrottledHonorsContext(t *testing.T) {
	t.Parallel()

	src := &countingSource{price: 1}
	th := NewThrottled(src, time.Hour)
	_, err := th.PriceOnDate(context.Background(), "AAPL", "2024-03-05")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = th.PriceOnDate(ctx, "AAPL", "2024-03-06")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, src.calls)
}

func TestHistoricalCache(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := kv.NewMemory()
	src := &countingSource{price: 99.5}
	c := NewHistoricalCache(src, store, zerolog.Nop())

	for range 3 {
		p, err := c.PriceOnDate(ctx, "AAPL", "2024-03-05")
		require.NoError(t, err)
		assert.Equal(t, 99.5, p)
	}
	assert.Equal(t, 1, src.calls)

	// Survives a new cache over the same store.
	again := NewHistoricalCache(src, store, zerolog.Nop())
	p, err := again.PriceOnDate(ctx, "AAPL", "2024-03-05")
	require.NoError(t, err)
	assert.Equal(t, 99.5, p)
	assert.Equal(t, 1, src.calls)

	src.err = market.ErrPriceUnavailable
	_, err = c.PriceOnDate(ctx, "MSFT", "2024-03-05")
	assert.ErrorIs(t, err, market.ErrPriceUnavailable)
	_, err = c.PriceOnDate(ctx, "MSFT", "2024-03-05")
	assert.Error(t, err)
	assert.Equal(t, 3, src.calls)
}

func TestStatic(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewStatic(map[string]float64{"aapl": 171})
	s.SetOn("AAPL", "2024-03-05", 170)
	s.Set("ZERO", 0)

	p, err := s.Get("AAPL")
	require.NoError(t, err)
	assert.Equal(t, 171.0, p)

	_, err = s.Get("NO_SUCH")
	assert.ErrorIs(t, err, market.ErrPriceUnavailable)

	prices, err := s.CurrentPrices(ctx, []string{"AAPL", "ZERO", "NO_SUCH"})
	require.NoError(t, err)
	assert.Equal(t, market.PriceMap{"AAPL": 171}, prices)

	p, err = s.PriceOnDate(ctx, "aapl", "2024-03-05")
	require.NoError(t, err)
	assert.Equal(t, 170.0, p)

	_, err = s.PriceOnDate(ctx, "AAPL", "2024-03-06")
	assert.ErrorIs(t, err, market.ErrPriceUnavailable)
}
