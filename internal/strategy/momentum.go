package strategy

import (
	"context"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"

	"main/internal/model"
	"main/internal/model/enum"
)

const (
	momentumFastWindow = 9
	momentumSlowWindow = 21
)

// Momentum trades moving-average crossovers: a fast average crossing
// the slow one opens with the trend, the opposite cross flips the
// intent. One position direction per symbol at a time; the risk layer
// turns an opposite intent into a close.
type Momentum struct {
	symbols []string
	active  bool
	closes  map[string][]float64
	lastDir map[string]enum.SignalType
}

func NewMomentum(symbols []string) *Momentum {
	return &Momentum{
		symbols: symbols,
		active:  true,
		closes:  make(map[string][]float64),
		lastDir: make(map[string]enum.SignalType),
	}
}

func (m *Momentum) Name() string          { return "momentum" }
func (m *Momentum) Symbols() []string     { return m.symbols }
func (m *Momentum) IsActive() bool        { return m.active }
func (m *Momentum) SetActive(active bool) { m.active = active }

func (m *Momentum) OnMarketData(ctx context.Context, kline model.Kline) (*model.Signal, error) {
	window := append(m.closes[kline.Symbol], kline.Close)
	if len(window) > momentumSlowWindow+1 {
		window = window[len(window)-momentumSlowWindow-1:]
	}
	m.closes[kline.Symbol] = window
	if len(window) <= momentumSlowWindow {
		return nil, nil
	}

	prev := window[:len(window)-1]
	fastPrev, slowPrev := mean(tail(prev, momentumFastWindow)), mean(tail(prev, momentumSlowWindow))
	fast, slow := mean(tail(window, momentumFastWindow)), mean(tail(window, momentumSlowWindow))

	var dir enum.SignalType
	switch {
	case fastPrev <= slowPrev && fast > slow:
		dir = enum.SignalBuy
	case fastPrev >= slowPrev && fast < slow:
		dir = enum.SignalSell
	default:
		return nil, nil
	}
	if m.lastDir[kline.Symbol] == dir {
		return nil, nil
	}
	m.lastDir[kline.Symbol] = dir

	sig := &model.Signal{
		TraceID:  model.NewEventMeta().ID,
		Type:     dir,
		Symbol:   kline.Symbol,
		Price:    kline.Close,
		Category: enum.CategoryLinear,
		Reason:   "Type B: momentum crossover",
	}
	if dir == enum.SignalBuy {
		sig.TakeProfits = []model.TakeProfitLevel{
			{Price: kline.Close * 1.015, QuantityPct: 0.5, Reason: "momentum tp1"},
			{Price: kline.Close * 1.03, QuantityPct: 0.5, Reason: "momentum tp2"},
		}
	}
	return sig, nil
}

func (m *Momentum) OnOrderUpdate(ctx context.Context, update model.OrderUpdateEvent) error {
	return nil
}

type momentumState struct {
	Closes  []float64       `json:"closes"`
	LastDir enum.SignalType `json:"lastDir"`
}

func (m *Momentum) StateSnapshot(symbol string) ([]byte, error) {
	window, ok := m.closes[symbol]
	if !ok {
		return nil, nil
	}
	return sonic.Marshal(momentumState{Closes: window, LastDir: m.lastDir[symbol]})
}

func (m *Momentum) RestoreState(symbol string, state []byte) error {
	var snap momentumState
	if err := sonic.Unmarshal(state, &snap); err != nil {
		return errors.Wrap(err, "decode momentum state")
	}
	m.closes[symbol] = snap.Closes
	m.lastDir[symbol] = snap.LastDir
	return nil
}

func tail(values []float64, n int) []float64 {
	if len(values) <= n {
		return values
	}
	return values[len(values)-n:]
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
