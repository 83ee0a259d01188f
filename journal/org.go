package journal

import (
	"fmt"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/rustyeddy/tradebook/market"
)

// FormatTradeOrg renders a Trade as an Org-mode block suitable for pasting
// into a journal. Structured facts go into a PROPERTIES drawer for search.
func FormatTradeOrg(t Trade) string {
	heading := fmt.Sprintf("** Trade: %s %s (%s)", t.Ticker, t.AssetType, shortID(t.ID))

	var b strings.Builder
	b.WriteString(heading)
	b.WriteString("\n")
	b.WriteString(":PROPERTIES:\n")
	b.WriteString(fmt.Sprintf(":TRADE_ID: %s\n", t.ID))
	b.WriteString(fmt.Sprintf(":TICKER: %s\n", t.Ticker))
	b.WriteString(fmt.Sprintf(":ASSET_TYPE: %s\n", t.AssetType))
	b.WriteString(fmt.Sprintf(":STATUS: %s\n", t.Status))
	b.WriteString(fmt.Sprintf(":SHARES: %g\n", t.Original()))
	if t.Status == Trimmed {
		b.WriteString(fmt.Sprintf(":REMAINING: %g\n", t.OpenShares()))
	}
	b.WriteString(fmt.Sprintf(":ENTRY_PRICE: %.2f\n", t.Entry))
	b.WriteString(fmt.Sprintf(":STOP_PRICE: %.2f\n", t.Stop))
	b.WriteString(fmt.Sprintf(":OPEN_TIME: %s\n", t.EntryTime.UTC().Format(time.RFC3339)))
	if t.AssetType == market.Options && t.Strike != nil {
		b.WriteString(fmt.Sprintf(":CONTRACT: %s\n", t.PriceKey()))
	}
	if t.ExitDate != "" {
		b.WriteString(fmt.Sprintf(":EXIT_DATE: %s\n", t.ExitDate))
	}
	if t.ExitPrice != nil {
		b.WriteString(fmt.Sprintf(":EXIT_PRICE: %.2f\n", *t.ExitPrice))
	}
	b.WriteString(fmt.Sprintf(":RISK: %s\n", Dollars(t.ScaledRisk())))
	if t.IsRealized() {
		b.WriteString(fmt.Sprintf(":REALIZED_PL: %s\n", Dollars(RealizedPnL(t))))
	}
	b.WriteString(":END:\n")

	if len(t.TrimHistory) > 0 {
		b.WriteString("\n*** Trims\n")
		b.WriteString("| Date | Shares | Price | P/L |\n|------+--------+-------+-----|\n")
		for _, tr := range t.TrimHistory {
			b.WriteString(fmt.Sprintf("| %s | %g | %.2f | %s |\n", tr.Date, tr.Shares, tr.Price, Dollars(tr.PnL)))
		}
	}
	if t.Notes != "" {
		b.WriteString("\n*** Notes\n")
		b.WriteString(t.Notes)
		b.WriteString("\n")
	}

	return b.String()
}

// FormatTradesOrg renders multiple trades separated by blank lines.
func FormatTradesOrg(trades []Trade) string {
	var b strings.Builder
	for i, t := range trades {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(FormatTradeOrg(t))
	}
	return b.String()
}

// Dollars formats a USD amount, e.g. "$1,234.50" or "-$20.00".
func Dollars(v float64) string {
	return money.NewFromFloat(v, money.USD).Display()
}

func shortID(full string) string {
	if len(full) <= 10 {
		return full
	}
	return full[:10]
}
