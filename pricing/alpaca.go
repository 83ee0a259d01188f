package pricing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/rs/zerolog"
	"github.com/rustyeddy/tradebook/market"
)

// marketData is the part of *marketdata.Client the adapter uses.
type marketData interface {
	GetLatestTrades(symbols []string, req marketdata.GetLatestTradeRequest) (map[string]marketdata.Trade, error)
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
}

// batchSize is the number of symbols sent per latest-trades request.
const batchSize = 100

// Alpaca prices stocks from Alpaca market data: the latest trade for live
// prices and the daily bar close for historical ones. Option contract keys
// are never priced.
type Alpaca struct {
	md   marketData
	feed marketdata.Feed
	loc  *time.Location
	log  zerolog.Logger
}

var (
	_ market.LivePriceSource       = (*Alpaca)(nil)
	_ market.HistoricalPriceSource = (*Alpaca)(nil)
)

// NewAlpaca builds a client from explicit credentials. Empty credentials
// fall back to the APCA_* environment variables read by the SDK.
func NewAlpaca(keyID, secret, feed string, loc *time.Location, log zerolog.Logger) *Alpaca {
	md := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    keyID,
		APISecret: secret,
	})
	return newAlpaca(md, feed, loc, log)
}

func newAlpaca(md marketData, feed string, loc *time.Location, log zerolog.Logger) *Alpaca {
	if loc == nil {
		loc = market.DefaultCalendar().Location
	}
	f := marketdata.IEX
	if feed != "" {
		f = marketdata.Feed(strings.ToLower(feed))
	}
	return &Alpaca{
		md:   md,
		feed: f,
		loc:  loc,
		log:  log.With().Str("component", "alpaca").Logger(),
	}
}

func isOptionKey(key string) bool { return strings.Contains(key, " ") }

// CurrentPrices fetches latest trades in batches. A failed batch is logged
// and skipped; the call fails only if every batch failed.
func (a *Alpaca) CurrentPrices(ctx context.Context, keys []string) (market.PriceMap, error) {
	var symbols []string
	for _, k := range keys {
		if isOptionKey(k) {
			a.log.Debug().Str("key", k).Msg("option contracts are not priced")
			continue
		}
		symbols = append(symbols, k)
	}

	out := market.PriceMap{}
	var lastErr error
	failed, batches := 0, 0
	for start := 0; start < len(symbols); start += batchSize {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		batch := symbols[start:min(start+batchSize, len(symbols))]
		batches++
		trades, err := a.md.GetLatestTrades(batch, marketdata.GetLatestTradeRequest{Feed: a.feed})
		if err != nil {
			failed++
			lastErr = err
			a.log.Warn().Err(err).Strs("symbols", batch).Msg("latest trades failed")
			continue
		}
		for sym, tr := range trades {
			if tr.Price > 0 {
				out[sym] = tr.Price
			}
		}
	}
	if batches > 0 && failed == batches {
		return out, fmt.Errorf("alpaca latest trades: %w", lastErr)
	}
	if missing := len(symbols) - len(out); missing > 0 {
		a.log.Info().Int("requested", len(symbols)).Int("missing", missing).Msg("live prices incomplete")
	}
	return out, nil
}

// PriceOnDate returns the close of the daily bar for date.
func (a *Alpaca) PriceOnDate(ctx context.Context, key, date string) (float64, error) {
	if isOptionKey(key) {
		return 0, fmt.Errorf("%w: %s", market.ErrPriceUnavailable, key)
	}
	d, err := market.ParseDate(date)
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, a.loc)
	bars, err := a.md.GetBars(key, marketdata.GetBarsRequest{
		TimeFrame:  marketdata.OneDay,
		Adjustment: marketdata.Raw,
		Start:      start,
		End:        start.AddDate(0, 0, 1),
		Feed:       a.feed,
	})
	if err != nil {
		return 0, fmt.Errorf("alpaca bars %s %s: %w", key, date, err)
	}
	for _, b := range bars {
		if b.Timestamp.In(a.loc).Format(market.DateFormat) == date && b.Close > 0 {
			return b.Close, nil
		}
	}
	return 0, fmt.Errorf("%w: no bar for %s on %s", market.ErrPriceUnavailable, key, date)
}
