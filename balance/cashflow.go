package balance

import (
	"github.com/rustyeddy/tradebook/journal"
	"github.com/shopspring/decimal"
)

// through == "" sums every flow.
func netCashFlow(txs []journal.CashFlow, through string) decimal.Decimal {
	sum := decimal.Zero
	for _, tx := range txs {
		if through != "" && tx.Date() > through {
			continue
		}
		sum = sum.Add(decimal.NewFromFloat(tx.Signed()))
	}
	return sum
}

// DayCashFlow is the signed sum of flows dated exactly date.
func DayCashFlow(txs []journal.CashFlow, date string) float64 {
	sum := decimal.Zero
	for _, tx := range txs {
		if tx.Date() == date {
			sum = sum.Add(decimal.NewFromFloat(tx.Signed()))
		}
	}
	return sum.InexactFloat64()
}

// NetCashFlow is the signed sum of every flow.
func NetCashFlow(txs []journal.CashFlow) float64 {
	return netCashFlow(txs, "").InexactFloat64()
}

// NetCashFlowThrough is the signed sum of flows dated on or before date.
func NetCashFlowThrough(txs []journal.CashFlow, date string) float64 {
	return netCashFlow(txs, date).InexactFloat64()
}

// CashFlowBetween is the signed sum of flows dated in (after, through].
func CashFlowBetween(txs []journal.CashFlow, after, through string) float64 {
	sum := decimal.Zero
	for _, tx := range txs {
		if d := tx.Date(); d > after && d <= through {
			sum = sum.Add(decimal.NewFromFloat(tx.Signed()))
		}
	}
	return sum.InexactFloat64()
}
