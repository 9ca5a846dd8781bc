package risk

import (
	"context"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/model/enum"
	"main/internal/obs"
)

// evaluateMode recomputes the trading mode from equity ratio and
// loss-day count, at most once per 60s. The hysteresis band
// (recoveryExitRatio) keeps the mode from flapping between NORMAL and
// RECOVERY around the recovery threshold.
func (e *Engine) evaluateMode(ctx context.Context, now time.Time) {
	if !e.lastModeEval.IsZero() && now.Sub(e.lastModeEval) < time.Minute {
		return
	}
	e.lastModeEval = now

	equity, _, err := e.probe.Account(ctx)
	if err != nil {
		logs.Errorf("equity probe failed, keeping mode %s, err: %+v", e.mode, err)
		return
	}
	obs.SetEquity(equity)

	// The first observed equity seeds the initial deposit.
	if e.initialDeposit <= 0 {
		if equity > 0 {
			e.initialDeposit = equity
			logs.Infof("initial deposit set from first equity observation: %.2f", equity)
		}
		return
	}

	ratio := equity / e.initialDeposit
	prev := e.mode
	switch {
	case ratio < e.cfg.EmergencyRatio:
		e.mode = enum.ModeEmergencyStop
	case ratio < e.cfg.RecoveryRatio || e.state.ConsecutiveLossDays >= 2:
		e.mode = enum.ModeRecovery
	case prev == enum.ModeRecovery && ratio < e.cfg.RecoveryExitRatio:
		e.mode = enum.ModeRecovery
	default:
		e.mode = enum.ModeNormal
	}

	if e.mode != prev {
		logs.Warnf("trading mode changed: %s -> %s (ratio=%.3f loss_days=%d)",
			prev, e.mode, ratio, e.state.ConsecutiveLossDays)
		obs.SetTradingMode(e.mode)
		if prev == enum.ModeEmergencyStop {
			e.emergencyClosed = false
		}
	}
}
