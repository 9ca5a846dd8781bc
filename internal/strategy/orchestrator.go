package strategy

import (
	"context"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"main/internal/model"
	"main/internal/model/enum"
)

// RiskGate is the risk manager slice the orchestrator submits through.
type RiskGate interface {
	CheckSignal(ctx context.Context, sig *model.Signal) (bool, string)
	SetRegime(regime enum.Regime)
}

// Executor routes approved signals.
type Executor interface {
	Execute(ctx context.Context, sig *model.Signal, strategy string) error
}

// History is the storage slice used for warmup and state restarts.
type History interface {
	Klines(ctx context.Context, symbol, interval string, limit int) ([]model.Kline, error)
	SaveKline(ctx context.Context, k model.Kline) error
	StrategyState(ctx context.Context, strategy, symbol string) ([]byte, error)
	SaveStrategyState(ctx context.Context, strategy, symbol string, state []byte) error
}

// MarketSource backfills kline history when storage is short.
type MarketSource interface {
	Klines(ctx context.Context, category, symbol, interval string, limit int) ([]model.Kline, error)
}

// Classifier labels the current market regime per symbol.
type Classifier interface {
	Classify(ctx context.Context, symbol string) (enum.Regime, error)
}

// Publisher is the event-bus slice the regime loop publishes through.
type Publisher interface {
	Publish(e model.Event) error
}

// Orchestrator owns strategy lifecycle: registration, warmup replay,
// market-data fan-out and regime-driven activation.
type Orchestrator struct {
	strategies []Strategy
	risk       RiskGate
	executor   Executor
	store      History
	market     MarketSource
	classifier Classifier
	bus        Publisher

	interval   string
	warmupBars int

	// regime is owned by the bus worker: written only in HandleRegime,
	// read only in bus handler context.
	regime enum.Regime
}

func NewOrchestrator(risk RiskGate, executor Executor, store History, market MarketSource, classifier Classifier, bus Publisher, interval string, warmupBars int) *Orchestrator {
	return &Orchestrator{
		risk:       risk,
		executor:   executor,
		store:      store,
		market:     market,
		classifier: classifier,
		bus:        bus,
		interval:   interval,
		warmupBars: warmupBars,
	}
}

func (o *Orchestrator) Register(s Strategy) {
	o.strategies = append(o.strategies, s)
	logs.Infof("strategy registered: %s %v", s.Name(), s.Symbols())
}

// Warmup primes every strategy's indicators by replaying recent bars
// in chronological order. Storage is the first source; when it holds
// fewer bars than requested the exchange backfills and the bars are
// persisted. Signals produced during replay are discarded. A symbol
// with no obtainable history is skipped, not fatal.
func (o *Orchestrator) Warmup(ctx context.Context) error {
	o.restoreStates(ctx)

	history := make(map[string][]model.Kline)
	for _, symbol := range o.uniqueSymbols() {
		bars, err := o.warmupBarsFor(ctx, symbol)
		if err != nil {
			logs.Warnf("warmup history for %s unavailable, skipping, err: %+v", symbol, err)
			continue
		}
		history[symbol] = bars
	}

	for _, s := range o.strategies {
		for _, symbol := range s.Symbols() {
			bars, ok := history[symbol]
			if !ok {
				continue
			}
			replayed := 0
			for _, bar := range bars {
				if _, err := s.OnMarketData(ctx, bar); err != nil {
					logs.Warnf("warmup replay %s/%s, err: %+v", s.Name(), symbol, err)
					break
				}
				replayed++
			}
			logs.Infof("warmup %s/%s replayed %d bars", s.Name(), symbol, replayed)
		}
	}
	return nil
}

func (o *Orchestrator) warmupBarsFor(ctx context.Context, symbol string) ([]model.Kline, error) {
	bars, err := o.store.Klines(ctx, symbol, o.interval, o.warmupBars)
	if err != nil {
		logs.Warnf("load stored klines for %s, err: %+v", symbol, err)
	}
	if len(bars) >= o.warmupBars {
		return bars, nil
	}

	fetched, err := o.market.Klines(ctx, enum.CategoryLinear.String(), symbol, o.interval, o.warmupBars)
	if err != nil {
		if len(bars) > 0 {
			return bars, nil
		}
		return nil, errors.Wrap(err, "backfill klines")
	}
	for _, bar := range fetched {
		if err := o.store.SaveKline(ctx, bar); err != nil {
			logs.Errorf("persist backfilled kline, err: %+v", err)
			break
		}
	}
	if reloaded, err := o.store.Klines(ctx, symbol, o.interval, o.warmupBars); err == nil && len(reloaded) > 0 {
		return reloaded, nil
	}
	return fetched, nil
}

// HandleKline fans a confirmed bar out to every active strategy
// trading its symbol, then pushes any produced intent through the risk
// gate and on to execution. Per-strategy errors are isolated.
func (o *Orchestrator) HandleKline(ctx context.Context, ev model.Event) error {
	kline, ok := ev.(model.KlineEvent)
	if !ok || !kline.Kline.Confirmed {
		return nil
	}
	if err := o.store.SaveKline(ctx, kline.Kline); err != nil {
		logs.Errorf("persist kline, err: %+v", err)
	}

	for _, s := range o.strategies {
		if !s.IsActive() || !trades(s, kline.Kline.Symbol) {
			continue
		}
		sig, err := s.OnMarketData(ctx, kline.Kline)
		if err != nil {
			logs.Errorf("strategy %s on %s, err: %+v", s.Name(), kline.Kline.Symbol, err)
			continue
		}
		if sig == nil || sig.Type == enum.SignalHold {
			continue
		}
		sig.Strategy = s.Name()
		o.submit(ctx, sig, s.Name())
	}
	return nil
}

func (o *Orchestrator) submit(ctx context.Context, sig *model.Signal, name string) {
	approved, reason := o.risk.CheckSignal(ctx, sig)
	if !approved {
		return
	}
	logs.Infof("signal approved (%s): %s %s qty=%v trace=%s", reason, sig.Type, sig.Symbol, sig.Quantity, sig.TraceID)
	if err := o.executor.Execute(ctx, sig, name); err != nil {
		logs.Errorf("execute signal from %s, err: %+v", name, err)
	}
}

// HandleOrderUpdate forwards fills to the strategies trading the
// symbol so they can track their own exposure.
func (o *Orchestrator) HandleOrderUpdate(ctx context.Context, ev model.Event) error {
	update, ok := ev.(model.OrderUpdateEvent)
	if !ok {
		return nil
	}
	for _, s := range o.strategies {
		if !trades(s, update.Symbol) {
			continue
		}
		if err := s.OnOrderUpdate(ctx, update); err != nil {
			logs.Errorf("strategy %s order update, err: %+v", s.Name(), err)
		}
	}
	return nil
}

// RunRegimeLoop reclassifies the market on a fixed cadence. The loop
// itself only reads history through the classifier and publishes a
// RegimeEvent; all activation toggling happens in HandleRegime on the
// bus worker, keeping strategy and risk state single-writer.
func (o *Orchestrator) RunRegimeLoop(ctx context.Context, refresh time.Duration) {
	ticker := time.NewTicker(refresh)
	defer ticker.Stop()

	last := o.publishRegime(ctx, enum.RegimeUnknown)
	for {
		select {
		case <-ctx.Done():
			return
		case <-sys.Shutdown():
			return
		case <-ticker.C:
			last = o.publishRegime(ctx, last)
		}
	}
}

// publishRegime classifies the first traded symbol and reports a
// change to the bus. Returns the regime last handed off, so an
// unchanged classification publishes nothing.
func (o *Orchestrator) publishRegime(ctx context.Context, last enum.Regime) enum.Regime {
	symbols := o.uniqueSymbols()
	if len(symbols) == 0 {
		return last
	}
	regime, err := o.classifier.Classify(ctx, symbols[0])
	if err != nil {
		logs.Warnf("regime classification, err: %+v", err)
		return last
	}
	if regime == last {
		return last
	}
	if err := o.bus.Publish(model.RegimeEvent{EventMeta: model.NewEventMeta(), Regime: regime}); err != nil {
		logs.Errorf("publish regime change, err: %+v", err)
		return last
	}
	return regime
}

// HandleRegime applies a reclassification: feeds it to the risk engine
// and toggles strategy activation against the compatibility table.
// Toggling only flips the active flag; in-flight processing is never
// interrupted.
func (o *Orchestrator) HandleRegime(ctx context.Context, ev model.Event) error {
	change, ok := ev.(model.RegimeEvent)
	if !ok || change.Regime == o.regime {
		return nil
	}
	o.regime = change.Regime
	o.risk.SetRegime(change.Regime)

	for _, s := range o.strategies {
		allowed := regimeAllows(s.Name(), change.Regime)
		if allowed != s.IsActive() {
			logs.Infof("strategy %s %s in %s regime", s.Name(), onOff(allowed), change.Regime)
			s.SetActive(allowed)
		}
	}
	return nil
}

// SaveStates snapshots stateful strategies for warm restart.
func (o *Orchestrator) SaveStates(ctx context.Context) {
	for _, s := range o.strategies {
		stateful, ok := s.(Stateful)
		if !ok {
			continue
		}
		for _, symbol := range s.Symbols() {
			blob, err := stateful.StateSnapshot(symbol)
			if err != nil || len(blob) == 0 {
				continue
			}
			if err := o.store.SaveStrategyState(ctx, s.Name(), symbol, blob); err != nil {
				logs.Errorf("save state %s/%s, err: %+v", s.Name(), symbol, err)
			}
		}
	}
}

func (o *Orchestrator) restoreStates(ctx context.Context) {
	for _, s := range o.strategies {
		stateful, ok := s.(Stateful)
		if !ok {
			continue
		}
		for _, symbol := range s.Symbols() {
			blob, err := o.store.StrategyState(ctx, s.Name(), symbol)
			if err != nil || len(blob) == 0 {
				continue
			}
			if err := stateful.RestoreState(symbol, blob); err != nil {
				logs.Warnf("restore state %s/%s, err: %+v", s.Name(), symbol, err)
			}
		}
	}
}

func (o *Orchestrator) uniqueSymbols() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, s := range o.strategies {
		for _, symbol := range s.Symbols() {
			if _, ok := seen[symbol]; ok {
				continue
			}
			seen[symbol] = struct{}{}
			out = append(out, symbol)
		}
	}
	return out
}

func trades(s Strategy, symbol string) bool {
	for _, sym := range s.Symbols() {
		if sym == symbol {
			return true
		}
	}
	return false
}

func onOff(active bool) string {
	if active {
		return "enabled"
	}
	return "disabled"
}
