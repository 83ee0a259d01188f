package balance

import (
	"encoding/binary"
	"hash"
	"hash/fnv"
	"math"
	"sync"

	"github.com/rustyeddy/tradebook/journal"
	"github.com/rustyeddy/tradebook/market"
)

// Memo caches the current account size keyed by a fingerprint of everything
// CurrentBalance reads. A changed input produces a new fingerprint, and the
// owner can also drop the value with Invalidate.
type Memo struct {
	calc Calculator

	mu     sync.Mutex
	valid  bool
	key    uint64
	result Result
}

func NewMemo(calc Calculator) *Memo {
	return &Memo{calc: calc}
}

// CurrentSize returns the cached current balance when the inputs are
// unchanged, and recomputes otherwise.
func (m *Memo) CurrentSize(snap journal.Snapshot, prices market.PriceMap) (Result, error) {
	key := Fingerprint(snap, prices)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.valid && m.key == key {
		return m.result, nil
	}
	r, err := m.calc.CurrentBalance(snap, prices)
	if err != nil {
		m.valid = false
		return Result{}, err
	}
	m.valid, m.key, m.result = true, key, r
	return r, nil
}

func (m *Memo) Invalidate() {
	m.mu.Lock()
	m.valid = false
	m.mu.Unlock()
}

// Fingerprint hashes the balance-relevant fields of a snapshot and a price
// map. Price iteration is in key order.
func Fingerprint(snap journal.Snapshot, prices market.PriceMap) uint64 {
	h := fnv.New64a()
	if snap.StartingBalance != nil {
		writeFloat(h, 1)
		writeFloat(h, *snap.StartingBalance)
	} else {
		writeFloat(h, 0)
	}
	for _, t := range snap.Trades {
		writeString(h, t.ID)
		writeString(h, string(t.Status))
		writeString(h, string(t.AssetType))
		writeString(h, t.PriceKey())
		writeFloat(h, t.Entry)
		writeFloat(h, t.Shares)
		writeFloatPtr(h, t.RemainingShares)
		writeFloatPtr(h, t.OriginalShares)
		writeString(h, t.ExitDate)
		writeFloatPtr(h, t.ExitPrice)
		writeFloatPtr(h, t.PnL)
		for _, tr := range t.TrimHistory {
			writeString(h, tr.Date)
			writeFloat(h, tr.Shares)
			writeFloat(h, tr.PnL)
		}
	}
	for _, c := range snap.CashFlows {
		writeString(h, c.ID)
		writeString(h, c.Date())
		writeFloat(h, c.Signed())
	}
	for _, k := range prices.Keys() {
		writeString(h, k)
		writeFloat(h, prices[k])
	}
	return h.Sum64()
}

func writeString(h hash.Hash64, s string) {
	_, _ = h.Write([]byte(s))
	_, _ = h.Write([]byte{0})
}

func writeFloat(h hash.Hash64, v float64) {
	_, _ = h.Write(binary.LittleEndian.AppendUint64(nil, math.Float64bits(v)))
}

func writeFloatPtr(h hash.Hash64, v *float64) {
	if v == nil {
		_, _ = h.Write([]byte{0})
		return
	}
	writeFloat(h, *v)
}
