// journal/journal.go
package journal

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/tradebook/market"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidTrade    = errors.New("invalid trade")
	ErrInvalidCashFlow = errors.New("invalid cash flow")
)

type Status string

const (
	Open    Status = "open"
	Closed  Status = "closed"
	Trimmed Status = "trimmed"
)

// Trim is one partial close of a position. PnL already includes the asset
// multiplier.
type Trim struct {
	Date   string  `json:"date"`
	Shares float64 `json:"shares"`
	Price  float64 `json:"price"`
	PnL    float64 `json:"pnl"`
}

// Trade is one journal entry. Shares is the size at entry; RemainingShares
// tracks what is left after trims. PnL is the P&L of the final close leg
// only, trims carry their own.
type Trade struct {
	ID        string           `json:"id"`
	Ticker    string           `json:"ticker"`
	AssetType market.AssetType `json:"assetType"`
	Entry     float64          `json:"entry"`
	Stop      float64          `json:"stop"`
	Target    *float64         `json:"target,omitempty"`

	Shares          float64  `json:"shares"`
	RemainingShares *float64 `json:"remainingShares,omitempty"`
	OriginalShares  *float64 `json:"originalShares,omitempty"`

	Status    Status    `json:"status"`
	EntryTime time.Time `json:"timestamp"`
	ExitDate  string    `json:"exitDate,omitempty"`
	ExitPrice *float64  `json:"exitPrice,omitempty"`
	PnL       *float64  `json:"pnl,omitempty"`

	TrimHistory []Trim `json:"trimHistory,omitempty"`

	Strike     *float64          `json:"strike,omitempty"`
	Expiration string            `json:"expirationDate,omitempty"`
	OptionType market.OptionType `json:"optionType,omitempty"`

	// RiskDollars is stored without the option multiplier; see ScaledRisk.
	RiskDollars float64 `json:"riskDollars"`
	Notes       string  `json:"notes,omitempty"`
}

// EntryDate is the trading day the position was opened.
func (t Trade) EntryDate() string { return market.FormatDate(t.EntryTime) }

func (t Trade) Multiplier() float64 { return market.Multiplier(t.AssetType) }

// ScaledRisk is the dollar risk with the option multiplier applied.
func (t Trade) ScaledRisk() float64 { return t.RiskDollars * t.Multiplier() }

// PriceKey identifies the instrument whose price marks this position.
// Stocks use the ticker; options use an OCC-style contract key so an
// option premium is never confused with the underlying's price.
func (t Trade) PriceKey() string {
	if t.AssetType != market.Options {
		return strings.ToUpper(t.Ticker)
	}
	strike := 0.0
	if t.Strike != nil {
		strike = *t.Strike
	}
	side := "C"
	if t.OptionType == market.Put {
		side = "P"
	}
	return fmt.Sprintf("%s %s %s %s", strings.ToUpper(t.Ticker), t.Expiration,
		decimal.NewFromFloat(strike).String(), side)
}

// Original is the position size at entry.
func (t Trade) Original() float64 {
	if t.OriginalShares != nil {
		return *t.OriginalShares
	}
	return t.Shares
}

func (t Trade) trimmedShares(through string) float64 {
	var n float64
	for _, tr := range t.TrimHistory {
		if through == "" || tr.Date <= through {
			n += tr.Shares
		}
	}
	return n
}

func (t Trade) lastTrimDate() string {
	last := ""
	for _, tr := range t.TrimHistory {
		if tr.Date > last {
			last = tr.Date
		}
	}
	return last
}

// OpenShares is the size still held right now.
func (t Trade) OpenShares() float64 {
	if t.Status == Closed {
		return 0
	}
	if t.RemainingShares != nil {
		return *t.RemainingShares
	}
	return t.Shares
}

// IsOpen reports whether some part of the position is still held.
func (t Trade) IsOpen() bool {
	switch t.Status {
	case Open:
		return true
	case Trimmed:
		return t.OpenShares() > 0
	}
	return false
}

// IsRealized reports whether the trade has any realized P&L.
func (t Trade) IsRealized() bool { return t.Status == Closed || t.Status == Trimmed }

// SharesOpenAt is the size held at the close of date. A trade that exits
// on date is already closed for that date.
func (t Trade) SharesOpenAt(date string) float64 {
	if t.EntryDate() > date {
		return 0
	}
	if t.ExitDate != "" && t.ExitDate <= date {
		return 0
	}
	n := t.Original() - t.trimmedShares(date)
	if n < 0 {
		return 0
	}
	return n
}

// HoldTime is the time between entry and exit, measured in whole days.
func (t Trade) HoldTime() (time.Duration, bool) {
	if t.Status != Closed || t.ExitDate == "" {
		return 0, false
	}
	entry, err := market.ParseDate(t.EntryDate())
	if err != nil {
		return 0, false
	}
	exit, err := market.ParseDate(t.ExitDate)
	if err != nil || exit.Before(entry) {
		return 0, false
	}
	return exit.Sub(entry), true
}

// Validate checks the stored fields for internal consistency.
func (t Trade) Validate() error {
	if strings.TrimSpace(t.Ticker) == "" {
		return fmt.Errorf("%w: ticker is required", ErrInvalidTrade)
	}
	if t.Entry <= 0 {
		return fmt.Errorf("%w: entry price must be positive", ErrInvalidTrade)
	}
	if t.Shares <= 0 {
		return fmt.Errorf("%w: shares must be positive", ErrInvalidTrade)
	}
	if t.EntryTime.IsZero() {
		return fmt.Errorf("%w: entry timestamp is required", ErrInvalidTrade)
	}
	if _, ok := market.Assets[t.AssetType]; !ok {
		return fmt.Errorf("%w: unknown asset type %q", ErrInvalidTrade, t.AssetType)
	}
	switch t.Status {
	case Open, Trimmed, Closed:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTrade, t.Status)
	}
	if t.AssetType == market.Options {
		if t.Strike == nil || *t.Strike <= 0 {
			return fmt.Errorf("%w: options require a strike", ErrInvalidTrade)
		}
		if _, err := market.ParseDate(t.Expiration); err != nil {
			return fmt.Errorf("%w: options require an expiration date: %v", ErrInvalidTrade, err)
		}
		if t.OptionType != market.Call && t.OptionType != market.Put {
			return fmt.Errorf("%w: option type must be call or put", ErrInvalidTrade)
		}
	}
	if t.Status == Closed && t.ExitDate == "" {
		return fmt.Errorf("%w: closed trade needs an exit date", ErrInvalidTrade)
	}
	if t.ExitDate != "" {
		if _, err := market.ParseDate(t.ExitDate); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidTrade, err)
		}
		if t.ExitDate < t.EntryDate() {
			return fmt.Errorf("%w: exit date %s before entry date %s", ErrInvalidTrade, t.ExitDate, t.EntryDate())
		}
	}
	if t.trimmedShares("") > t.Original() {
		return fmt.Errorf("%w: trimmed %.4g shares of %.4g", ErrInvalidTrade, t.trimmedShares(""), t.Original())
	}
	for _, tr := range t.TrimHistory {
		if _, err := market.ParseDate(tr.Date); err != nil {
			return fmt.Errorf("%w: trim: %v", ErrInvalidTrade, err)
		}
		if tr.Date < t.EntryDate() {
			return fmt.Errorf("%w: trim date %s before entry date %s", ErrInvalidTrade, tr.Date, t.EntryDate())
		}
		if t.ExitDate != "" && tr.Date > t.ExitDate {
			return fmt.Errorf("%w: trim date %s after exit date %s", ErrInvalidTrade, tr.Date, t.ExitDate)
		}
	}
	return nil
}

func legPnL(t Trade, price, shares float64) float64 {
	return roundCents((price - t.Entry) * shares * t.Multiplier())
}

// Trim closes part of the position at price on date.
func (t *Trade) Trim(date string, shares, price float64) error {
	if t.Status == Closed {
		return fmt.Errorf("%w: trade %s is closed", ErrInvalidTrade, t.ID)
	}
	if _, err := market.ParseDate(date); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTrade, err)
	}
	if date < t.EntryDate() {
		return fmt.Errorf("%w: trim date %s before entry date %s", ErrInvalidTrade, date, t.EntryDate())
	}
	open := t.OpenShares()
	if shares <= 0 || shares > open {
		return fmt.Errorf("%w: cannot trim %.4g of %.4g open shares", ErrInvalidTrade, shares, open)
	}
	if price <= 0 {
		return fmt.Errorf("%w: trim price must be positive", ErrInvalidTrade)
	}
	if t.OriginalShares == nil {
		orig := t.Shares
		t.OriginalShares = &orig
	}
	t.TrimHistory = append(t.TrimHistory, Trim{
		Date:   date,
		Shares: shares,
		Price:  price,
		PnL:    legPnL(*t, price, shares),
	})
	remaining := open - shares
	t.RemainingShares = &remaining
	if remaining == 0 {
		// Fully trimmed: the last trim is the close.
		t.Status = Closed
		t.ExitDate = date
		p, zero := price, 0.0
		t.ExitPrice = &p
		t.PnL = &zero
		return nil
	}
	t.Status = Trimmed
	return nil
}

// Close exits whatever is left of the position at price on date.
func (t *Trade) Close(date string, price float64) error {
	if t.Status == Closed {
		return fmt.Errorf("%w: trade %s is already closed", ErrInvalidTrade, t.ID)
	}
	if _, err := market.ParseDate(date); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTrade, err)
	}
	if date < t.EntryDate() {
		return fmt.Errorf("%w: exit date %s before entry date %s", ErrInvalidTrade, date, t.EntryDate())
	}
	if last := t.lastTrimDate(); date < last {
		return fmt.Errorf("%w: exit date %s before last trim %s", ErrInvalidTrade, date, last)
	}
	if price < 0 {
		return fmt.Errorf("%w: exit price must not be negative", ErrInvalidTrade)
	}
	pnl := legPnL(*t, price, t.OpenShares())
	zero := 0.0
	p := price
	t.ExitDate = date
	t.ExitPrice = &p
	t.PnL = &pnl
	t.RemainingShares = &zero
	t.Status = Closed
	return nil
}

type CashFlowType string

const (
	Deposit    CashFlowType = "deposit"
	Withdrawal CashFlowType = "withdrawal"
)

// CashFlow is a deposit or withdrawal. Amount is always positive; edits are
// modeled as delete + recreate.
type CashFlow struct {
	ID        string       `json:"id"`
	Type      CashFlowType `json:"type"`
	Amount    float64      `json:"amount"`
	Timestamp time.Time    `json:"timestamp"`
}

func (c CashFlow) Date() string { return market.FormatDate(c.Timestamp) }

// Signed returns +Amount for deposits and -Amount for withdrawals.
func (c CashFlow) Signed() float64 {
	if c.Type == Withdrawal {
		return -c.Amount
	}
	return c.Amount
}

func (c CashFlow) Validate() error {
	if c.Type != Deposit && c.Type != Withdrawal {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidCashFlow, c.Type)
	}
	if c.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidCashFlow)
	}
	if c.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp is required", ErrInvalidCashFlow)
	}
	return nil
}

// Snapshot is a read-only view of the ledger at one moment.
type Snapshot struct {
	Trades          []Trade
	CashFlows       []CashFlow
	StartingBalance *float64
}

// EarliestDate returns the first day with a trade entry or cash flow.
func (s Snapshot) EarliestDate() (string, bool) {
	first := ""
	for _, t := range s.Trades {
		if d := t.EntryDate(); first == "" || d < first {
			first = d
		}
	}
	for _, c := range s.CashFlows {
		if d := c.Date(); first == "" || d < first {
			first = d
		}
	}
	return first, first != ""
}

// Trade looks a trade up by id.
func (s Snapshot) Trade(id string) (Trade, bool) {
	for _, t := range s.Trades {
		if t.ID == id {
			return t, true
		}
	}
	return Trade{}, false
}

func roundCents(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
