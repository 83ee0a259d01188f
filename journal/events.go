package journal

import (
	"slices"
	"sync"
)

// EventType names a ledger mutation.
type EventType string

const (
	TradeAdded      EventType = "trade_added"
	TradeUpdated    EventType = "trade_updated"
	TradeDeleted    EventType = "trade_deleted"
	CashFlowAdded   EventType = "cash_flow_added"
	CashFlowDeleted EventType = "cash_flow_deleted"
	SettingsChanged EventType = "settings_changed"
)

// Event is implemented by every typed ledger event payload.
type Event interface {
	EventType() EventType
}

type TradeAddedEvent struct {
	Trade Trade
}

func (e TradeAddedEvent) EventType() EventType { return TradeAdded }

// TradeUpdatedEvent carries both versions so subscribers can invalidate from
// the earlier of the two entry dates.
type TradeUpdatedEvent struct {
	Old Trade
	New Trade
}

func (e TradeUpdatedEvent) EventType() EventType { return TradeUpdated }

type TradeDeletedEvent struct {
	Trade Trade
}

func (e TradeDeletedEvent) EventType() EventType { return TradeDeleted }

type CashFlowAddedEvent struct {
	CashFlow CashFlow
}

func (e CashFlowAddedEvent) EventType() EventType { return CashFlowAdded }

type CashFlowDeletedEvent struct {
	CashFlow CashFlow
}

func (e CashFlowDeletedEvent) EventType() EventType { return CashFlowDeleted }

type SettingsChangedEvent struct {
	Previous        *float64
	StartingBalance float64
}

func (e SettingsChangedEvent) EventType() EventType { return SettingsChanged }

// Handler receives events synchronously on the publishing goroutine.
type Handler func(Event)

// Bus is a synchronous publish/subscribe channel between the ledger and its
// dependents. Publish returns only after every handler ran, so invalidation
// is complete before the mutating call returns.
type Bus struct {
	mu       sync.RWMutex
	next     int
	handlers map[int]Handler
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[int]Handler)}
}

// Subscribe registers h and returns a function that removes it.
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	b.handlers[id] = h
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers, id)
	}
}

// Publish delivers e to every subscriber in subscription order.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	ids := make([]int, 0, len(b.handlers))
	for id := range b.handlers {
		ids = append(ids, id)
	}
	hs := make([]Handler, 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		hs = append(hs, b.handlers[id])
	}
	b.mu.RUnlock()

	for _, h := range hs {
		h(e)
	}
}
