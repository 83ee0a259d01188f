// Package pricing adapts price providers to the market price source
// interfaces.
package pricing

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rustyeddy/tradebook/market"
)

// Static serves prices set in configuration or by tests. Historical prices
// are looked up per date; a key without one is unavailable.
type Static struct {
	mu      sync.RWMutex
	latest  map[string]float64
	history map[string]map[string]float64
}

var (
	_ market.LivePriceSource       = (*Static)(nil)
	_ market.HistoricalPriceSource = (*Static)(nil)
)

func NewStatic(prices map[string]float64) *Static {
	s := &Static{
		latest:  make(map[string]float64),
		history: make(map[string]map[string]float64),
	}
	for k, p := range prices {
		s.Set(k, p)
	}
	return s
}

func (s *Static) Set(key string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest[strings.ToUpper(key)] = price
}

// SetOn records the close of key on date.
func (s *Static) SetOn(key, date string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key = strings.ToUpper(key)
	if s.history[key] == nil {
		s.history[key] = make(map[string]float64)
	}
	s.history[key][date] = price
}

func (s *Static) Get(key string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.latest[strings.ToUpper(key)]
	if !ok || p <= 0 {
		return 0, fmt.Errorf("%w: %s", market.ErrPriceUnavailable, key)
	}
	return p, nil
}

func (s *Static) CurrentPrices(_ context.Context, keys []string) (market.PriceMap, error) {
	out := market.PriceMap{}
	for _, k := range keys {
		if p, err := s.Get(k); err == nil {
			out[k] = p
		}
	}
	return out, nil
}

func (s *Static) PriceOnDate(_ context.Context, key, date string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.history[strings.ToUpper(key)][date]
	if !ok || p <= 0 {
		return 0, fmt.Errorf("%w: %s on %s", market.ErrPriceUnavailable, key, date)
	}
	return p, nil
}
