package journal

// finalLegPnL is the P&L of the closing leg. Trades imported without a
// stored P&L derive it from the exit price and the shares left after trims.
func finalLegPnL(t Trade) float64 {
	if t.PnL != nil {
		return *t.PnL
	}
	if t.ExitPrice == nil {
		return 0
	}
	shares := t.Original() - t.trimmedShares("")
	if shares <= 0 {
		return 0
	}
	return legPnL(t, *t.ExitPrice, shares)
}

func trimPnL(t Trade, through string) float64 {
	var sum float64
	for _, tr := range t.TrimHistory {
		if through == "" || tr.Date <= through {
			sum += tr.PnL
		}
	}
	return sum
}

// RealizedPnL is the P&L locked in by a trade: the final close plus every
// trim for closed trades, the trims alone for trimmed trades, 0 when open.
func RealizedPnL(t Trade) float64 {
	switch t.Status {
	case Closed:
		return finalLegPnL(t) + trimPnL(t, "")
	case Trimmed:
		return trimPnL(t, "")
	}
	return 0
}

// RealizedPnLAsOf counts only trims and exits dated on or before date.
func RealizedPnLAsOf(t Trade, date string) float64 {
	switch t.Status {
	case Closed:
		sum := trimPnL(t, date)
		if t.ExitDate != "" && t.ExitDate <= date {
			sum += finalLegPnL(t)
		}
		return sum
	case Trimmed:
		return trimPnL(t, date)
	}
	return 0
}

// RealizedPnLBatch sums RealizedPnL over closed and trimmed trades.
func RealizedPnLBatch(trades []Trade) float64 {
	var sum float64
	for _, t := range trades {
		if t.IsRealized() {
			sum += RealizedPnL(t)
		}
	}
	return sum
}

// RealizedPnLBatchAsOf sums RealizedPnLAsOf over every trade.
func RealizedPnLBatchAsOf(trades []Trade, date string) float64 {
	var sum float64
	for _, t := range trades {
		sum += RealizedPnLAsOf(t, date)
	}
	return sum
}
