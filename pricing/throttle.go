package pricing

import (
	"context"
	"sync"
	"time"

	"github.com/rustyeddy/tradebook/market"
)

// Throttled spaces out calls to a historical source so that successive
// upstream requests are at least delay apart.
type Throttled struct {
	src   market.HistoricalPriceSource
	delay time.Duration

	mu   sync.Mutex
	last time.Time
}

func NewThrottled(src market.HistoricalPriceSource, delay time.Duration) *Throttled {
	return &Throttled{src: src, delay: delay}
}

func (t *Throttled) PriceOnDate(ctx context.Context, key, date string) (float64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if wait := t.delay - time.Since(t.last); !t.last.IsZero() && wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return 0, ctx.Err()
		case <-timer.C:
		}
	}
	defer func() { t.last = time.Now() }()
	return t.src.PriceOnDate(ctx, key, date)
}
