// Package stats computes aggregate trading statistics over a set of trades.
// Every ratio returns nil when there is nothing to measure, so "no data" is
// never confused with zero.
package stats

import (
	"slices"
	"time"

	"github.com/rustyeddy/tradebook/journal"
	"gonum.org/v1/gonum/stat"
)

type WinsLosses struct {
	Wins   int `msgpack:"wins" json:"wins"`
	Losses int `msgpack:"losses" json:"losses"`
	Total  int `msgpack:"total" json:"total"`
}

// Calculator is stateless. A trade counts once it has realized P&L (closed
// or trimmed); a P&L of exactly zero is a loss.
type Calculator struct{}

func NewCalculator() Calculator { return Calculator{} }

type partition struct {
	wins, losses []float64
	ids          []string
}

func split(trades []journal.Trade) partition {
	var p partition
	for _, t := range trades {
		if !t.IsRealized() {
			continue
		}
		pnl := journal.RealizedPnL(t)
		if pnl > 0 {
			p.wins = append(p.wins, pnl)
		} else {
			p.losses = append(p.losses, pnl)
		}
		p.ids = append(p.ids, t.ID)
	}
	return p
}

func (p partition) total() int { return len(p.wins) + len(p.losses) }

func sum(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s
}

func mean(xs []float64) *float64 {
	if len(xs) == 0 {
		return nil
	}
	m := stat.Mean(xs, nil)
	return &m
}

func ptr(v float64) *float64 { return &v }

// WinRate is the percentage (0-100) of realized trades that made money.
func (Calculator) WinRate(trades []journal.Trade) *float64 {
	return split(trades).winRate()
}

func (p partition) winRate() *float64 {
	if p.total() == 0 {
		return nil
	}
	return ptr(float64(len(p.wins)) / float64(p.total()) * 100)
}

func (Calculator) WinsLosses(trades []journal.Trade) WinsLosses {
	p := split(trades)
	return WinsLosses{Wins: len(p.wins), Losses: len(p.losses), Total: p.total()}
}

func (Calculator) AvgWin(trades []journal.Trade) *float64 { return mean(split(trades).wins) }

func (Calculator) AvgLoss(trades []journal.Trade) *float64 { return mean(split(trades).losses) }

// ProfitFactor is gross profit over gross loss.
func (Calculator) ProfitFactor(trades []journal.Trade) *float64 {
	return split(trades).profitFactor()
}

func (p partition) profitFactor() *float64 {
	if len(p.wins) == 0 || len(p.losses) == 0 {
		return nil
	}
	loss := -sum(p.losses)
	if loss == 0 {
		return nil
	}
	return ptr(sum(p.wins) / loss)
}

func (Calculator) AvgWinLossRatio(trades []journal.Trade) *float64 {
	p := split(trades)
	return winLossRatio(mean(p.wins), mean(p.losses))
}

func winLossRatio(avgWin, avgLoss *float64) *float64 {
	if avgWin == nil || avgLoss == nil || *avgLoss == 0 {
		return nil
	}
	l := *avgLoss
	if l < 0 {
		l = -l
	}
	return ptr(*avgWin / l)
}

// Expectancy is the expected P&L per realized trade.
func (Calculator) Expectancy(trades []journal.Trade) *float64 {
	return split(trades).expectancy()
}

func (p partition) expectancy() *float64 {
	n := float64(p.total())
	if n == 0 {
		return nil
	}
	var e float64
	if w := mean(p.wins); w != nil {
		e += float64(len(p.wins)) / n * *w
	}
	if l := mean(p.losses); l != nil {
		e += float64(len(p.losses)) / n * *l
	}
	return &e
}

// LargestWin is the highest realized P&L. With only losing trades it is the
// smallest loss.
func (Calculator) LargestWin(trades []journal.Trade) *float64 {
	return split(trades).largest()
}

func (p partition) largest() *float64 {
	all := append(slices.Clone(p.wins), p.losses...)
	if len(all) == 0 {
		return nil
	}
	return ptr(slices.Max(all))
}

// LargestLoss is the lowest realized P&L.
func (Calculator) LargestLoss(trades []journal.Trade) *float64 {
	return split(trades).smallest()
}

func (p partition) smallest() *float64 {
	all := append(slices.Clone(p.wins), p.losses...)
	if len(all) == 0 {
		return nil
	}
	return ptr(slices.Min(all))
}

// AvgHoldTime is the mean entry-to-exit time of fully closed trades.
func (Calculator) AvgHoldTime(trades []journal.Trade) *time.Duration {
	var holds []float64
	for _, t := range trades {
		if d, ok := t.HoldTime(); ok {
			holds = append(holds, float64(d))
		}
	}
	m := mean(holds)
	if m == nil {
		return nil
	}
	d := time.Duration(*m)
	return &d
}

// TotalPnL is the realized P&L of every closed or trimmed trade.
func (Calculator) TotalPnL(trades []journal.Trade) float64 {
	return journal.RealizedPnLBatch(trades)
}

// Compute evaluates every metric in one pass. Cache bookkeeping fields are
// left for the caller.
func (c Calculator) Compute(trades []journal.Trade) Record {
	p := split(trades)
	avgWin, avgLoss := mean(p.wins), mean(p.losses)
	ids := slices.Clone(p.ids)
	slices.Sort(ids)
	return Record{
		Version:        RecordVersion,
		WinRate:        p.winRate(),
		WinsLosses:     WinsLosses{Wins: len(p.wins), Losses: len(p.losses), Total: p.total()},
		AvgWin:         avgWin,
		AvgLoss:        avgLoss,
		ProfitFactor:   p.profitFactor(),
		Expectancy:     p.expectancy(),
		LargestWin:     p.largest(),
		LargestLoss:    p.smallest(),
		AvgHoldTime:    c.AvgHoldTime(trades),
		TotalPnL:       sum(p.wins) + sum(p.losses),
		ClosedTradeIDs: ids,
	}
}

// FilterByExitRange keeps realized trades whose last exit (the close, or the
// latest trim for trimmed trades) falls in [from, to]. Empty bounds are
// open.
func FilterByExitRange(trades []journal.Trade, from, to string) []journal.Trade {
	var out []journal.Trade
	for _, t := range trades {
		d := exitDate(t)
		if d == "" {
			continue
		}
		if (from == "" || d >= from) && (to == "" || d <= to) {
			out = append(out, t)
		}
	}
	return out
}

func exitDate(t journal.Trade) string {
	if t.Status == journal.Closed {
		return t.ExitDate
	}
	last := ""
	for _, tr := range t.TrimHistory {
		if tr.Date > last {
			last = tr.Date
		}
	}
	return last
}
