package model

import (
	"time"

	"github.com/google/uuid"

	"main/internal/model/enum"
)

// Event is the unit delivered through the bus. Implementations are
// immutable after publish.
type Event interface {
	Kind() enum.EventKind
	EventID() string
	Time() time.Time
}

// EventMeta carries the identity fields shared by every event.
type EventMeta struct {
	ID string
	Ts time.Time
}

func NewEventMeta() EventMeta {
	return EventMeta{
		ID: uuid.New().String(),
		Ts: time.Now().UTC(),
	}
}

func (m EventMeta) EventID() string {
	return m.ID
}

func (m EventMeta) Time() time.Time {
	return m.Ts
}

// MarketDataEvent is a raw tick observation.
type MarketDataEvent struct {
	EventMeta
	Symbol string
	Price  float64
	Volume float64
}

func (MarketDataEvent) Kind() enum.EventKind { return enum.EventMarketData }

// KlineEvent wraps a confirmed candle.
type KlineEvent struct {
	EventMeta
	Kline Kline
}

func (KlineEvent) Kind() enum.EventKind { return enum.EventKline }

// OrderUpdateEvent mirrors the private order feed.
type OrderUpdateEvent struct {
	EventMeta
	OrderID     string
	OrderLinkID string
	Symbol      string
	Side        enum.OrderSide
	Status      enum.OrderStatus
	Price       float64
	Quantity    float64
}

func (OrderUpdateEvent) Kind() enum.EventKind { return enum.EventOrderUpdate }

// TradeClosedEvent reports a realized round trip.
type TradeClosedEvent struct {
	EventMeta
	Trade Trade
}

func (TradeClosedEvent) Kind() enum.EventKind { return enum.EventTradeClosed }

// RegimeEvent announces a market-regime reclassification. Activation
// toggling happens in the bus handler consuming it, never on the
// classifier goroutine.
type RegimeEvent struct {
	EventMeta
	Regime enum.Regime
}

func (RegimeEvent) Kind() enum.EventKind { return enum.EventRegime }

// SentimentEvent carries an external sentiment score.
type SentimentEvent struct {
	EventMeta
	Symbol string
	Score  float64
	Source string
}

func (SentimentEvent) Kind() enum.EventKind { return enum.EventSentiment }
