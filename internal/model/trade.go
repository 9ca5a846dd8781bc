package model

import (
	"time"

	"main/internal/model/enum"
)

// Kline is one OHLCV bar. Only confirmed bars flow through the bus.
type Kline struct {
	Symbol    string
	Interval  string
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	Start     time.Time
	Confirmed bool
}

// Trade is the write-once record of an executed order.
type Trade struct {
	Symbol        string
	Side          enum.OrderSide
	Price         float64
	Quantity      float64
	Value         float64
	PnL           float64
	Strategy      string
	ExecutionType enum.ExecutionType
	Timestamp     time.Time
}

// Position is the risk manager's local view of open exposure.
// MaxPrice/MinPrice track the running extremes since entry and feed
// the trailing stop.
type Position struct {
	Symbol        string
	Side          enum.OrderSide
	EntryPrice    float64
	Quantity      float64
	MaxPrice      float64
	MinPrice      float64
	OpenedAt      time.Time
	TrailingArmed bool
	TrailingSince time.Time
	Quality       int
}

// ApplyFill volume-weight-averages a new fill into the position.
func (p *Position) ApplyFill(price, qty float64) {
	total := p.Quantity + qty
	if total <= 0 {
		return
	}
	p.EntryPrice = (p.EntryPrice*p.Quantity + price*qty) / total
	p.Quantity = total
	if price > p.MaxPrice {
		p.MaxPrice = price
	}
	if p.MinPrice == 0 || price < p.MinPrice {
		p.MinPrice = price
	}
}

// UnrealizedPct returns the signed unrealized PnL percentage at the
// given mark price.
func (p *Position) UnrealizedPct(mark float64) float64 {
	if p.EntryPrice <= 0 {
		return 0
	}
	pct := (mark - p.EntryPrice) / p.EntryPrice
	if p.Side == enum.OrderSideSell {
		return -pct
	}
	return pct
}

// RiskState is the persisted daily loss bookkeeping. LastResetDate is
// a UTC calendar day in ISO form; the reset happens exactly once per
// day.
type RiskState struct {
	DailyLoss           float64
	LastResetDate       string
	ConsecutiveLossDays int
}
