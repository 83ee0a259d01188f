package journal

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rustyeddy/tradebook/pkg/id"
)

// Ledger owns the trade and cash-flow records. Every successful mutation is
// published on the bus before the call returns.
type Ledger struct {
	store Store
	bus   *Bus
	log   zerolog.Logger
}

func NewLedger(store Store, bus *Bus, log zerolog.Logger) *Ledger {
	if bus == nil {
		bus = NewBus()
	}
	return &Ledger{
		store: store,
		bus:   bus,
		log:   log.With().Str("component", "ledger").Logger(),
	}
}

func (l *Ledger) Bus() *Bus { return l.bus }

// Snapshot reads the whole ledger.
func (l *Ledger) Snapshot(ctx context.Context) (Snapshot, error) {
	trades, err := l.store.ListTrades(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("list trades: %w", err)
	}
	flows, err := l.store.ListCashFlows(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("list cash flows: %w", err)
	}
	start, err := l.store.StartingBalance(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Trades: trades, CashFlows: flows, StartingBalance: start}, nil
}

func (l *Ledger) GetTrade(ctx context.Context, tradeID string) (Trade, error) {
	return l.store.GetTrade(ctx, tradeID)
}

func (l *Ledger) ListTrades(ctx context.Context) ([]Trade, error) {
	return l.store.ListTrades(ctx)
}

func (l *Ledger) ListCashFlows(ctx context.Context) ([]CashFlow, error) {
	return l.store.ListCashFlows(ctx)
}

func (l *Ledger) StartingBalance(ctx context.Context) (*float64, error) {
	return l.store.StartingBalance(ctx)
}

// AddTrade assigns an id and default status when missing, validates and
// stores the trade.
func (l *Ledger) AddTrade(ctx context.Context, t Trade) (Trade, error) {
	if t.ID == "" {
		t.ID = id.Trade(t.EntryTime)
	}
	if t.Status == "" {
		t.Status = Open
	}
	if err := t.Validate(); err != nil {
		return Trade{}, err
	}
	if err := l.store.AddTrade(ctx, t); err != nil {
		return Trade{}, err
	}
	l.log.Debug().Str("trade", t.ID).Str("ticker", t.Ticker).Msg("trade added")
	l.bus.Publish(TradeAddedEvent{Trade: t})
	return t, nil
}

func (l *Ledger) UpdateTrade(ctx context.Context, t Trade) error {
	old, err := l.store.GetTrade(ctx, t.ID)
	if err != nil {
		return err
	}
	if err := t.Validate(); err != nil {
		return err
	}
	if err := l.store.UpdateTrade(ctx, t); err != nil {
		return err
	}
	l.log.Debug().Str("trade", t.ID).Str("status", string(t.Status)).Msg("trade updated")
	l.bus.Publish(TradeUpdatedEvent{Old: old, New: t})
	return nil
}

// TrimTrade partially closes a trade.
func (l *Ledger) TrimTrade(ctx context.Context, tradeID, date string, shares, price float64) (Trade, error) {
	t, err := l.store.GetTrade(ctx, tradeID)
	if err != nil {
		return Trade{}, err
	}
	if err := t.Trim(date, shares, price); err != nil {
		return Trade{}, err
	}
	if err := l.UpdateTrade(ctx, t); err != nil {
		return Trade{}, err
	}
	return t, nil
}

// CloseTrade exits the remaining shares of a trade.
func (l *Ledger) CloseTrade(ctx context.Context, tradeID, date string, price float64) (Trade, error) {
	t, err := l.store.GetTrade(ctx, tradeID)
	if err != nil {
		return Trade{}, err
	}
	if err := t.Close(date, price); err != nil {
		return Trade{}, err
	}
	if err := l.UpdateTrade(ctx, t); err != nil {
		return Trade{}, err
	}
	return t, nil
}

func (l *Ledger) DeleteTrade(ctx context.Context, tradeID string) error {
	t, err := l.store.GetTrade(ctx, tradeID)
	if err != nil {
		return err
	}
	if err := l.store.DeleteTrade(ctx, tradeID); err != nil {
		return err
	}
	l.log.Debug().Str("trade", tradeID).Msg("trade deleted")
	l.bus.Publish(TradeDeletedEvent{Trade: t})
	return nil
}

func (l *Ledger) AddCashFlow(ctx context.Context, c CashFlow) (CashFlow, error) {
	if c.ID == "" {
		c.ID = id.CashFlow(c.Timestamp)
	}
	if err := c.Validate(); err != nil {
		return CashFlow{}, err
	}
	if err := l.store.AddCashFlow(ctx, c); err != nil {
		return CashFlow{}, err
	}
	l.log.Debug().Str("cash_flow", c.ID).Str("date", c.Date()).Float64("amount", c.Signed()).Msg("cash flow added")
	l.bus.Publish(CashFlowAddedEvent{CashFlow: c})
	return c, nil
}

func (l *Ledger) DeleteCashFlow(ctx context.Context, cashFlowID string) error {
	c, err := l.store.GetCashFlow(ctx, cashFlowID)
	if err != nil {
		return err
	}
	if err := l.store.DeleteCashFlow(ctx, cashFlowID); err != nil {
		return err
	}
	l.log.Debug().Str("cash_flow", cashFlowID).Msg("cash flow deleted")
	l.bus.Publish(CashFlowDeletedEvent{CashFlow: c})
	return nil
}

func (l *Ledger) SetStartingBalance(ctx context.Context, v float64) error {
	prev, err := l.store.StartingBalance(ctx)
	if err != nil {
		return err
	}
	if err := l.store.SetStartingBalance(ctx, v); err != nil {
		return err
	}
	l.log.Info().Float64("starting_balance", v).Msg("starting balance changed")
	l.bus.Publish(SettingsChangedEvent{Previous: prev, StartingBalance: v})
	return nil
}
