package strategy

import (
	"context"
	"math"

	"main/internal/model"
	"main/internal/model/enum"
)

const (
	reversionWindow    = 20
	reversionBandWidth = 2.0
)

// MeanReversion fades excursions beyond a standard-deviation band
// around the rolling mean. It only makes sense in a ranging market;
// the regime table keeps it off elsewhere.
type MeanReversion struct {
	symbols []string
	active  bool
	closes  map[string][]float64
}

func NewMeanReversion(symbols []string) *MeanReversion {
	return &MeanReversion{
		symbols: symbols,
		active:  true,
		closes:  make(map[string][]float64),
	}
}

func (m *MeanReversion) Name() string          { return "mean_reversion" }
func (m *MeanReversion) Symbols() []string     { return m.symbols }
func (m *MeanReversion) IsActive() bool        { return m.active }
func (m *MeanReversion) SetActive(active bool) { m.active = active }

func (m *MeanReversion) OnMarketData(ctx context.Context, kline model.Kline) (*model.Signal, error) {
	window := append(m.closes[kline.Symbol], kline.Close)
	if len(window) > reversionWindow {
		window = window[len(window)-reversionWindow:]
	}
	m.closes[kline.Symbol] = window
	if len(window) < reversionWindow {
		return nil, nil
	}

	avg := mean(window)
	variance := 0.0
	for _, v := range window {
		variance += (v - avg) * (v - avg)
	}
	std := math.Sqrt(variance / float64(len(window)))
	if std == 0 {
		return nil, nil
	}

	var dir enum.SignalType
	switch {
	case kline.Close < avg-reversionBandWidth*std:
		dir = enum.SignalBuy
	case kline.Close > avg+reversionBandWidth*std:
		dir = enum.SignalSell
	default:
		return nil, nil
	}

	return &model.Signal{
		TraceID:  model.NewEventMeta().ID,
		Type:     dir,
		Symbol:   kline.Symbol,
		Price:    kline.Close,
		Category: enum.CategoryLinear,
		Reason:   "Type C: band reversion",
	}, nil
}

func (m *MeanReversion) OnOrderUpdate(ctx context.Context, update model.OrderUpdateEvent) error {
	return nil
}
