package risk

import (
	"context"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/alert"
	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/obs"
	"main/internal/ops"
	"main/pkg/exception"
)

// Rejection reasons, one per gate. Logged and persisted with the
// "REJECTED: " prefix so downstream tooling can parse them.
const (
	ReasonSymbolBlacklist = "SYMBOL_BLACKLIST"
	ReasonSessionBlackout = "SESSION_BLACKOUT"
	ReasonCooldown        = "COOLDOWN"
	ReasonMaxPositions    = "MAX_POSITIONS"
	ReasonCorrelated      = "CORRELATED_ASSET"
	ReasonEmergencyStop   = "EMERGENCY_STOP"
	ReasonDailyLossLimit  = "DAILY_LOSS_LIMIT"
	ReasonPriceRange      = "PRICE_RANGE"
	ReasonMinNotional     = "MIN_NOTIONAL"
	ReasonMinQuantity     = "MIN_QUANTITY"
	ReasonMaxTradeLoss    = "MAX_TRADE_LOSS"
)

// AccountProbe reports marked-to-market equity and the unrealized PnL
// component already included in it. Probe failures degrade to zero
// balance instead of propagating.
type AccountProbe interface {
	Account(ctx context.Context) (equity, unrealized float64, err error)
}

// Executor routes approved or risk-driven closing signals to a broker.
type Executor interface {
	Execute(ctx context.Context, sig *model.Signal, strategy string) error
}

// Persistence is the slice of storage the engine writes through.
type Persistence interface {
	RiskState(ctx context.Context) (model.RiskState, error)
	UpdateRiskState(ctx context.Context, state model.RiskState) error
	SaveSignal(ctx context.Context, sig *model.Signal, status string) error
}

// Engine is the sole authority deciding whether, and at what size, a
// signal may execute. All mutable state is touched only from bus
// handler context (single-writer discipline), so no locking here.
type Engine struct {
	cfg      ops.RiskConfig
	symbols  map[string]ops.SymbolConfig
	probe    AccountProbe
	executor Executor
	store    Persistence
	notifier *alert.Notifier

	state          model.RiskState
	mode           enum.TradingMode
	regime         enum.Regime
	initialDeposit float64
	lastModeEval   time.Time
	lastLossAt     time.Time

	positions map[string]*model.Position
	lastPrice map[string]float64
	seenFills map[string]struct{}

	// pendingQuality carries an approved entry signal's quality tag to
	// the fill that opens the position. Keyed by symbol: one position
	// per symbol, so the latest approval wins.
	pendingQuality map[string]int

	emergencyClosed bool
	dailyClosed     bool

	now func() time.Time
}

func NewEngine(cfg ops.RiskConfig, symbols map[string]ops.SymbolConfig, probe AccountProbe, executor Executor, store Persistence, notifier *alert.Notifier) *Engine {
	return &Engine{
		cfg:            cfg,
		symbols:        symbols,
		probe:          probe,
		executor:       executor,
		store:          store,
		notifier:       notifier,
		mode:           enum.ModeNormal,
		positions:      make(map[string]*model.Position),
		lastPrice:      make(map[string]float64),
		seenFills:      make(map[string]struct{}),
		pendingQuality: make(map[string]int),
		now:            time.Now,
	}
}

// Restore loads the persisted risk state once at startup. A missing
// row is a fresh start, not an error.
func (e *Engine) Restore(ctx context.Context) error {
	state, err := e.store.RiskState(ctx)
	if errors.Is(err, exception.ErrStateNotFound) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "restore risk state")
	}
	e.state = state
	return nil
}

// SetRegime feeds the external market-regime classification into
// sizing decisions.
func (e *Engine) SetRegime(regime enum.Regime) {
	if e.regime != regime {
		logs.Infof("market regime changed: %s -> %s", e.regime, regime)
	}
	e.regime = regime
}

// Mode returns the current trading mode.
func (e *Engine) Mode() enum.TradingMode {
	return e.mode
}

// CheckSignal runs the ordered gate chain. On approval the signal's
// price, quantity, leverage and stop-loss are populated; on rejection
// the caller-supplied fields stay untouched and exactly one gate's
// reason is returned.
func (e *Engine) CheckSignal(ctx context.Context, sig *model.Signal) (bool, string) {
	now := e.now().UTC()

	// Gate 1: daily reset.
	e.maybeDailyReset(ctx, now)

	// Gate 2: symbol blacklist.
	for _, blocked := range e.cfg.SymbolBlacklist {
		if blocked == sig.Symbol {
			return false, e.reject(ctx, sig, ReasonSymbolBlacklist)
		}
	}

	// Gate 3: session blackout.
	for _, hour := range e.cfg.BlackoutHoursUTC {
		if now.Hour() == hour {
			return false, e.reject(ctx, sig, ReasonSessionBlackout)
		}
	}

	// Gate 4: cooldown after the last realized loss.
	if e.cfg.CooldownSec > 0 && !e.lastLossAt.IsZero() {
		if now.Sub(e.lastLossAt) < time.Duration(e.cfg.CooldownSec)*time.Second {
			return false, e.reject(ctx, sig, ReasonCooldown)
		}
	}

	// Gate 5: reduce-only short-circuit. Closing existing opposite
	// exposure skips the entry gates entirely.
	if pos, ok := e.positions[sig.Symbol]; ok && pos.Side != sig.Side() {
		if sig.Quantity <= 0 || sig.Quantity > pos.Quantity {
			sig.Quantity = pos.Quantity
		}
		sig.ReduceOnly = true
		return true, "REDUCE_ONLY"
	}

	// Gate 6: position count and replacement.
	if allowed, reason := e.checkPositionLimit(ctx, sig); !allowed {
		return false, e.reject(ctx, sig, reason)
	}

	// Gate 7: correlation.
	for open := range e.positions {
		if open != sig.Symbol && e.correlated(open, sig.Symbol) {
			return false, e.reject(ctx, sig, ReasonCorrelated)
		}
	}

	// Gate 8: trading mode.
	e.evaluateMode(ctx, now)
	if e.mode == enum.ModeEmergencyStop {
		if !e.emergencyClosed {
			e.emergencyClosed = true
			e.forceCloseAll(ctx, "EMERGENCY_STOP")
			e.notifier.Send("EMERGENCY_STOP", "equity ratio below emergency threshold, all positions closed")
		}
		return false, e.reject(ctx, sig, ReasonEmergencyStop)
	}

	// Gate 9: daily loss budget.
	if e.cfg.MaxDailyLoss > 0 && e.state.DailyLoss >= e.cfg.MaxDailyLoss {
		if !e.dailyClosed {
			e.dailyClosed = true
			e.forceCloseAll(ctx, "DAILY_LOSS_LIMIT")
			e.notifier.Send("DAILY_LOSS_LIMIT", "daily loss budget exhausted, all positions closed")
		}
		return false, e.reject(ctx, sig, ReasonDailyLossLimit)
	}

	// Gate 10: sizing.
	if allowed, reason := e.size(ctx, sig); !allowed {
		return false, e.reject(ctx, sig, reason)
	}
	e.pendingQuality[sig.Symbol] = sig.Quality()
	return true, "APPROVED"
}

func (e *Engine) reject(ctx context.Context, sig *model.Signal, reason string) string {
	logs.Infof("REJECTED: %s symbol=%s strategy=%s trace=%s", reason, sig.Symbol, sig.Strategy, sig.TraceID)
	obs.IncRejection(reason)
	if err := e.store.SaveSignal(ctx, sig, "REJECTED: "+reason); err != nil {
		logs.Errorf("persist rejection, err: %+v", err)
	}
	return reason
}

// checkPositionLimit evaluates the replacement rule once the open
// symbol count is at the cap: a fully profitable book blocks entry, a
// position losing more than the replacement threshold is evicted, and
// a higher-quality signal may displace a lower-quality holding.
func (e *Engine) checkPositionLimit(ctx context.Context, sig *model.Signal) (bool, string) {
	others := make([]*model.Position, 0, len(e.positions))
	for symbol, pos := range e.positions {
		if symbol != sig.Symbol {
			others = append(others, pos)
		}
	}
	if len(others) < e.cfg.MaxOpenPositions {
		return true, ""
	}

	allProfitable := true
	var worst *model.Position
	var worstPct float64
	for _, pos := range others {
		mark, ok := e.lastPrice[pos.Symbol]
		if !ok {
			mark = pos.EntryPrice
		}
		pct := pos.UnrealizedPct(mark)
		if pct < e.cfg.ReplaceProfitPct {
			allProfitable = false
		}
		if worst == nil || pct < worstPct {
			worst, worstPct = pos, pct
		}
	}

	if allProfitable {
		return false, ReasonMaxPositions
	}
	if worst != nil && worstPct <= -e.cfg.ReplaceLossPct {
		logs.Infof("replacing losing position %s (%.2f%%) with %s", worst.Symbol, worstPct*100, sig.Symbol)
		e.closePosition(ctx, worst, "REPLACED")
		return true, ""
	}
	if sig.Quality() >= 2 && worst != nil && worst.Quality < sig.Quality() {
		logs.Infof("evicting lower-quality position %s for %s", worst.Symbol, sig.Symbol)
		e.closePosition(ctx, worst, "REPLACED")
		return true, ""
	}
	return false, ReasonMaxPositions
}

func (e *Engine) correlated(a, b string) bool {
	for _, group := range e.cfg.CorrelationGroups {
		foundA, foundB := false, false
		for _, symbol := range group {
			if symbol == a {
				foundA = true
			}
			if symbol == b {
				foundB = true
			}
		}
		if foundA && foundB {
			return true
		}
	}
	return false
}

// size applies the sizing formula and populates the signal in place.
// Nothing is written until every check passes.
func (e *Engine) size(ctx context.Context, sig *model.Signal) (bool, string) {
	spec, ok := e.symbols[sig.Symbol]
	if !ok {
		return false, ReasonPriceRange
	}
	if sig.Price <= 0 {
		return false, ReasonPriceRange
	}
	if spec.PriceMin > 0 && sig.Price < spec.PriceMin {
		return false, ReasonPriceRange
	}
	if spec.PriceMax > 0 && sig.Price > spec.PriceMax {
		return false, ReasonPriceRange
	}

	balance := e.balance(ctx)
	target := balance * e.cfg.RiskPerTrade
	if e.cfg.MaxPositionSize > 0 && target > e.cfg.MaxPositionSize {
		target = e.cfg.MaxPositionSize
	}
	if e.cfg.StopLossPct > 0 && e.cfg.MaxDailyLoss > 0 {
		remaining := (e.cfg.MaxDailyLoss - e.state.DailyLoss) / e.cfg.StopLossPct
		if target > remaining {
			target = remaining
		}
	}

	leverage := sig.Leverage
	if leverage <= 0 || leverage > e.cfg.MaxLeverage {
		leverage = e.cfg.MaxLeverage
	}
	if leverage > e.cfg.GlobalMaxLeverage {
		leverage = e.cfg.GlobalMaxLeverage
	}
	if leverage <= 0 {
		leverage = 1
	}
	category := sig.Category
	if !category.IsAvailable() {
		category = enum.CategoryLinear
	}

	// RECOVERY mode or a volatile regime downsizes: cap exposure,
	// drop leverage, stay in spot.
	if e.mode == enum.ModeRecovery || e.regime == enum.RegimeVolatile {
		if limit := balance * e.cfg.RecoveryCapPct; target > limit {
			target = limit
		}
		category = enum.CategorySpot
		leverage = 1
	}

	if e.cfg.MinOrderNotional > 0 && target < e.cfg.MinOrderNotional {
		return false, ReasonMinNotional
	}

	quantity := model.FloorQuantity(target/sig.Price, spec.QtyDecimals)
	if quantity <= 0 || (spec.MinQty > 0 && quantity < spec.MinQty) {
		return false, ReasonMinQuantity
	}

	if e.cfg.MaxLossPerTrade > 0 && target*e.cfg.StopLossPct > e.cfg.MaxLossPerTrade {
		return false, ReasonMaxTradeLoss
	}

	stopLoss := sig.Price * (1 - e.cfg.StopLossPct)
	if sig.Side() == enum.OrderSideSell {
		stopLoss = sig.Price * (1 + e.cfg.StopLossPct)
	}

	sig.Quantity = quantity
	sig.Leverage = leverage
	sig.Category = category
	sig.StopLoss = stopLoss
	sig.RiskPercentage = e.cfg.RiskPerTrade
	return true, ""
}

// balance probes the account and degrades to zero on any failure.
func (e *Engine) balance(ctx context.Context) float64 {
	balance, _, err := e.probe.Account(ctx)
	if err != nil {
		logs.Errorf("balance probe failed, degrading to 0, err: %+v", err)
		return 0
	}
	return balance
}

// maybeDailyReset rolls the daily bookkeeping exactly once per UTC
// calendar day.
func (e *Engine) maybeDailyReset(ctx context.Context, now time.Time) {
	today := now.Format(time.DateOnly)
	if e.state.LastResetDate == today {
		return
	}
	if e.state.LastResetDate != "" {
		if e.cfg.MaxDailyLoss > 0 && e.state.DailyLoss >= e.cfg.MaxDailyLoss {
			e.state.ConsecutiveLossDays++
		} else {
			e.state.ConsecutiveLossDays = 0
		}
	}
	e.state.DailyLoss = 0
	e.state.LastResetDate = today
	e.dailyClosed = false
	// Fill dedup only guards against feed redelivery, which happens
	// within seconds; a one-day window bounds the map.
	e.seenFills = make(map[string]struct{})
	logs.Infof("daily risk reset: loss_days=%d", e.state.ConsecutiveLossDays)
	e.persistState(ctx)
}

// persistState writes through best-effort; in-memory state stays
// authoritative on failure.
func (e *Engine) persistState(ctx context.Context) {
	if err := e.store.UpdateRiskState(ctx, e.state); err != nil {
		logs.Errorf("persist risk state, err: %+v", err)
	}
}
