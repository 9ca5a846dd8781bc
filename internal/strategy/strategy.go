package strategy

import (
	"context"

	"main/internal/model"
	"main/internal/model/enum"
)

// Strategy is the capability contract the orchestrator drives.
// OnMarketData may return a nil signal when the bar produces no
// intent; errors are isolated per strategy per tick.
type Strategy interface {
	Name() string
	Symbols() []string
	IsActive() bool
	SetActive(active bool)
	OnMarketData(ctx context.Context, kline model.Kline) (*model.Signal, error)
	OnOrderUpdate(ctx context.Context, update model.OrderUpdateEvent) error
}

// Stateful strategies survive restarts: the orchestrator snapshots and
// restores one opaque blob per strategy per symbol.
type Stateful interface {
	StateSnapshot(symbol string) ([]byte, error)
	RestoreState(symbol string, state []byte) error
}

// compatibleRegimes is the static strategy-activation table. A
// strategy absent from the table trades in every regime.
var compatibleRegimes = map[string][]enum.Regime{
	"momentum":       {enum.RegimeTrending},
	"mean_reversion": {enum.RegimeRanging},
}

func regimeAllows(name string, regime enum.Regime) bool {
	allowed, ok := compatibleRegimes[name]
	if !ok || regime == enum.RegimeUnknown {
		return true
	}
	for _, r := range allowed {
		if r == regime {
			return true
		}
	}
	return false
}
