package strategy

import (
	"context"
	"math"

	"main/internal/model"
	"main/internal/model/enum"
	"main/pkg/exception"
)

const (
	regimeLookback     = 48
	volatileRangeRatio = 0.03
	trendingDriftRatio = 0.015
)

// KlineReader is the storage slice the classifier reads from.
type KlineReader interface {
	Klines(ctx context.Context, symbol, interval string, limit int) ([]model.Kline, error)
}

// VolatilityClassifier labels the regime from recent stored bars:
// wide average true range marks volatile, a strong net drift marks
// trending, otherwise ranging.
type VolatilityClassifier struct {
	store    KlineReader
	interval string
}

func NewVolatilityClassifier(store KlineReader, interval string) *VolatilityClassifier {
	return &VolatilityClassifier{store: store, interval: interval}
}

func (c *VolatilityClassifier) Classify(ctx context.Context, symbol string) (enum.Regime, error) {
	bars, err := c.store.Klines(ctx, symbol, c.interval, regimeLookback)
	if err != nil {
		return enum.RegimeUnknown, err
	}
	if len(bars) < regimeLookback/2 {
		return enum.RegimeUnknown, exception.ErrHistoryTooShort
	}

	first, last := bars[0].Close, bars[len(bars)-1].Close
	if first <= 0 || last <= 0 {
		return enum.RegimeUnknown, exception.ErrHistoryTooShort
	}

	rangeSum := 0.0
	for _, bar := range bars {
		if bar.Close > 0 {
			rangeSum += (bar.High - bar.Low) / bar.Close
		}
	}
	avgRange := rangeSum / float64(len(bars))
	drift := math.Abs(last-first) / first

	switch {
	case avgRange >= volatileRangeRatio:
		return enum.RegimeVolatile, nil
	case drift >= trendingDriftRatio:
		return enum.RegimeTrending, nil
	default:
		return enum.RegimeRanging, nil
	}
}
