package pricing

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/rustyeddy/tradebook/kv"
	"github.com/rustyeddy/tradebook/market"
)

const priceVersion = 1

// HistoricalCache remembers closing prices durably. Closing prices do not
// change, so entries never expire. Failures are not cached.
type HistoricalCache struct {
	src   market.HistoricalPriceSource
	store kv.Store
	log   zerolog.Logger
}

func NewHistoricalCache(src market.HistoricalPriceSource, store kv.Store, log zerolog.Logger) *HistoricalCache {
	return &HistoricalCache{
		src:   src,
		store: store,
		log:   log.With().Str("component", "price-cache").Logger(),
	}
}

func priceKey(key, date string) string { return "prices/" + key + "/" + date }

func (c *HistoricalCache) PriceOnDate(ctx context.Context, key, date string) (float64, error) {
	var p float64
	err := kv.Load(ctx, c.store, priceKey(key, date), priceVersion, &p)
	switch {
	case err == nil && p > 0:
		return p, nil
	case err == nil, errors.Is(err, kv.ErrNotFound), errors.Is(err, kv.ErrVersion):
	default:
		c.log.Warn().Err(err).Str("key", key).Str("date", date).Msg("price cache read failed")
	}

	p, err = c.src.PriceOnDate(ctx, key, date)
	if err != nil {
		return 0, err
	}
	if err := kv.Put(ctx, c.store, priceKey(key, date), priceVersion, p); err != nil {
		c.log.Warn().Err(err).Str("key", key).Str("date", date).Msg("price cache write failed")
	}
	return p, nil
}
