package market

import (
	"context"
	"errors"
	"sort"
)

// ErrPriceUnavailable is returned by price sources that have no quote for a
// key. Callers treat it as missing data, not as a failure.
var ErrPriceUnavailable = errors.New("price unavailable")

// PriceMap maps a position price key (see journal.Trade.PriceKey) to a price.
type PriceMap map[string]float64

// Get returns the price for key, reporting false when absent or non-positive.
func (m PriceMap) Get(key string) (float64, bool) {
	p, ok := m[key]
	if !ok || p <= 0 {
		return 0, false
	}
	return p, true
}

// Keys returns the map keys sorted.
func (m PriceMap) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a shallow copy that is safe to mutate.
func (m PriceMap) Clone() PriceMap {
	out := make(PriceMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// LivePriceSource returns current prices for a batch of keys. Keys it cannot
// price are simply absent from the result; an error means the whole batch
// failed.
type LivePriceSource interface {
	CurrentPrices(ctx context.Context, keys []string) (PriceMap, error)
}

// HistoricalPriceSource returns the closing price of key on date (YYYY-MM-DD).
type HistoricalPriceSource interface {
	PriceOnDate(ctx context.Context, key, date string) (float64, error)
}

// PricesOnDate collects historical prices for keys, skipping the ones the
// source cannot provide. The returned slice lists the keys left unpriced.
func PricesOnDate(ctx context.Context, src HistoricalPriceSource, keys []string, date string) (PriceMap, []string) {
	out := make(PriceMap, len(keys))
	var missing []string
	for _, k := range keys {
		if ctx.Err() != nil {
			missing = append(missing, k)
			continue
		}
		p, err := src.PriceOnDate(ctx, k, date)
		if err != nil || p <= 0 {
			missing = append(missing, k)
			continue
		}
		out[k] = p
	}
	return out, missing
}
