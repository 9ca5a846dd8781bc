package strategy

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/errors"

	"main/internal/model"
	"main/internal/model/enum"
)

type fakeRisk struct {
	approve bool
	checked []*model.Signal
	regime  enum.Regime
}

func (r *fakeRisk) CheckSignal(ctx context.Context, sig *model.Signal) (bool, string) {
	r.checked = append(r.checked, sig)
	if r.approve {
		return true, "APPROVED"
	}
	return false, "DAILY_LOSS_LIMIT"
}

func (r *fakeRisk) SetRegime(regime enum.Regime) { r.regime = regime }

type fakeExec struct {
	calls []string
}

func (e *fakeExec) Execute(ctx context.Context, sig *model.Signal, strategy string) error {
	e.calls = append(e.calls, strategy)
	return nil
}

type fakeHistory struct {
	stored map[string][]model.Kline
	saved  []model.Kline
	states map[string][]byte
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{stored: make(map[string][]model.Kline), states: make(map[string][]byte)}
}

func (h *fakeHistory) Klines(ctx context.Context, symbol, interval string, limit int) ([]model.Kline, error) {
	return h.stored[symbol], nil
}

func (h *fakeHistory) SaveKline(ctx context.Context, k model.Kline) error {
	h.saved = append(h.saved, k)
	h.stored[k.Symbol] = append(h.stored[k.Symbol], k)
	return nil
}

func (h *fakeHistory) StrategyState(ctx context.Context, strategy, symbol string) ([]byte, error) {
	return h.states[strategy+"/"+symbol], nil
}

func (h *fakeHistory) SaveStrategyState(ctx context.Context, strategy, symbol string, state []byte) error {
	h.states[strategy+"/"+symbol] = state
	return nil
}

type fakeMarket struct {
	bars  []model.Kline
	calls int
}

func (m *fakeMarket) Klines(ctx context.Context, category, symbol, interval string, limit int) ([]model.Kline, error) {
	m.calls++
	return m.bars, nil
}

type fakeClassifier struct {
	regime enum.Regime
	err    error
}

func (c *fakeClassifier) Classify(ctx context.Context, symbol string) (enum.Regime, error) {
	return c.regime, c.err
}

type fakeBus struct {
	mu     sync.Mutex
	events []model.Event
}

func (b *fakeBus) Publish(e model.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
	return nil
}

func (b *fakeBus) published() []model.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.Event(nil), b.events...)
}

type stubStrategy struct {
	name    string
	symbols []string
	active  bool
	seen    []model.Kline
	signal  *model.Signal
	err     error
}

func (s *stubStrategy) Name() string          { return s.name }
func (s *stubStrategy) Symbols() []string     { return s.symbols }
func (s *stubStrategy) IsActive() bool        { return s.active }
func (s *stubStrategy) SetActive(active bool) { s.active = active }

func (s *stubStrategy) OnMarketData(ctx context.Context, kline model.Kline) (*model.Signal, error) {
	s.seen = append(s.seen, kline)
	if s.err != nil {
		return nil, s.err
	}
	return s.signal, nil
}

func (s *stubStrategy) OnOrderUpdate(ctx context.Context, update model.OrderUpdateEvent) error {
	return nil
}

func bars(symbol string, n int) []model.Kline {
	out := make([]model.Kline, 0, n)
	start := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		out = append(out, model.Kline{
			Symbol:    symbol,
			Interval:  "5",
			Close:     100 + float64(i),
			Start:     start.Add(time.Duration(i) * 5 * time.Minute),
			Confirmed: true,
		})
	}
	return out
}

func newTestOrchestrator(store *fakeHistory, market *fakeMarket, risk *fakeRisk, exec *fakeExec) *Orchestrator {
	return NewOrchestrator(risk, exec, store, market, &fakeClassifier{regime: enum.RegimeTrending}, &fakeBus{}, "5", 10)
}

func TestWarmupReplaysStoredHistory(t *testing.T) {
	store := newFakeHistory()
	store.stored["BTCUSDT"] = bars("BTCUSDT", 10)
	market := &fakeMarket{}
	o := newTestOrchestrator(store, market, &fakeRisk{}, &fakeExec{})

	s := &stubStrategy{name: "stub", symbols: []string{"BTCUSDT"}, active: true}
	o.Register(s)
	require.NoError(t, o.Warmup(t.Context()))

	assert.Len(t, s.seen, 10)
	assert.Equal(t, 0, market.calls, "storage was sufficient, no backfill expected")
	// Replay is chronological.
	assert.True(t, s.seen[0].Start.Before(s.seen[9].Start))
}

func TestWarmupBackfillsFromExchange(t *testing.T) {
	store := newFakeHistory()
	market := &fakeMarket{bars: bars("BTCUSDT", 10)}
	o := newTestOrchestrator(store, market, &fakeRisk{}, &fakeExec{})

	s := &stubStrategy{name: "stub", symbols: []string{"BTCUSDT"}, active: true}
	o.Register(s)
	require.NoError(t, o.Warmup(t.Context()))

	assert.Equal(t, 1, market.calls)
	assert.Len(t, store.saved, 10, "backfilled bars are persisted")
	assert.Len(t, s.seen, 10)
}

func TestWarmupIsolatesFailingStrategy(t *testing.T) {
	store := newFakeHistory()
	store.stored["BTCUSDT"] = bars("BTCUSDT", 10)
	o := newTestOrchestrator(store, &fakeMarket{}, &fakeRisk{}, &fakeExec{})

	broken := &stubStrategy{name: "broken", symbols: []string{"BTCUSDT"}, active: true, err: errors.New("indicator blew up")}
	healthy := &stubStrategy{name: "healthy", symbols: []string{"BTCUSDT"}, active: true}
	o.Register(broken)
	o.Register(healthy)

	require.NoError(t, o.Warmup(t.Context()))
	assert.Len(t, healthy.seen, 10)
}

func TestHandleKlineFanOutAndSequencing(t *testing.T) {
	store := newFakeHistory()
	risk := &fakeRisk{approve: true}
	exec := &fakeExec{}
	o := newTestOrchestrator(store, &fakeMarket{}, risk, exec)

	signaling := &stubStrategy{
		name: "signaling", symbols: []string{"BTCUSDT"}, active: true,
		signal: &model.Signal{Type: enum.SignalBuy, Symbol: "BTCUSDT", Price: 100},
	}
	inactive := &stubStrategy{name: "inactive", symbols: []string{"BTCUSDT"}}
	otherSymbol := &stubStrategy{name: "other", symbols: []string{"ETHUSDT"}, active: true}
	o.Register(signaling)
	o.Register(inactive)
	o.Register(otherSymbol)

	ev := model.KlineEvent{EventMeta: model.NewEventMeta(), Kline: model.Kline{Symbol: "BTCUSDT", Close: 100, Confirmed: true}}
	require.NoError(t, o.HandleKline(t.Context(), ev))

	assert.Len(t, signaling.seen, 1)
	assert.Empty(t, inactive.seen)
	assert.Empty(t, otherSymbol.seen)
	require.Len(t, risk.checked, 1)
	assert.Equal(t, "signaling", risk.checked[0].Strategy)
	assert.Equal(t, []string{"signaling"}, exec.calls)
	assert.Len(t, store.saved, 1, "live confirmed bars are persisted")
}

func TestHandleKlineRejectedSignalNotExecuted(t *testing.T) {
	risk := &fakeRisk{approve: false}
	exec := &fakeExec{}
	o := newTestOrchestrator(newFakeHistory(), &fakeMarket{}, risk, exec)
	o.Register(&stubStrategy{
		name: "signaling", symbols: []string{"BTCUSDT"}, active: true,
		signal: &model.Signal{Type: enum.SignalBuy, Symbol: "BTCUSDT", Price: 100},
	})

	ev := model.KlineEvent{EventMeta: model.NewEventMeta(), Kline: model.Kline{Symbol: "BTCUSDT", Close: 100, Confirmed: true}}
	require.NoError(t, o.HandleKline(t.Context(), ev))

	assert.Len(t, risk.checked, 1)
	assert.Empty(t, exec.calls)
}

func TestRegimeChangeTogglesByTable(t *testing.T) {
	risk := &fakeRisk{}
	o := NewOrchestrator(risk, &fakeExec{}, newFakeHistory(), &fakeMarket{}, &fakeClassifier{}, &fakeBus{}, "5", 10)

	momentum := &stubStrategy{name: "momentum", symbols: []string{"BTCUSDT"}, active: true}
	reversion := &stubStrategy{name: "mean_reversion", symbols: []string{"BTCUSDT"}, active: false}
	untabled := &stubStrategy{name: "scalper", symbols: []string{"BTCUSDT"}, active: false}
	o.Register(momentum)
	o.Register(reversion)
	o.Register(untabled)

	require.NoError(t, o.HandleRegime(t.Context(), model.RegimeEvent{EventMeta: model.NewEventMeta(), Regime: enum.RegimeRanging}))

	assert.Equal(t, enum.RegimeRanging, risk.regime)
	assert.False(t, momentum.IsActive())
	assert.True(t, reversion.IsActive())
	assert.True(t, untabled.IsActive(), "strategies outside the table trade in every regime")

	require.NoError(t, o.HandleRegime(t.Context(), model.RegimeEvent{EventMeta: model.NewEventMeta(), Regime: enum.RegimeTrending}))
	assert.True(t, momentum.IsActive())
	assert.False(t, reversion.IsActive())
}

func TestRegimeLoopPublishesWithoutToggling(t *testing.T) {
	risk := &fakeRisk{}
	bus := &fakeBus{}
	classifier := &fakeClassifier{regime: enum.RegimeRanging}
	o := NewOrchestrator(risk, &fakeExec{}, newFakeHistory(), &fakeMarket{}, classifier, bus, "5", 10)

	momentum := &stubStrategy{name: "momentum", symbols: []string{"BTCUSDT"}, active: true}
	o.Register(momentum)

	last := o.publishRegime(t.Context(), enum.RegimeUnknown)
	assert.Equal(t, enum.RegimeRanging, last)

	// The classifier goroutine only reports; activation and risk state
	// change when the bus delivers the event.
	require.Len(t, bus.published(), 1)
	change, ok := bus.published()[0].(model.RegimeEvent)
	require.True(t, ok)
	assert.Equal(t, enum.RegimeRanging, change.Regime)
	assert.True(t, momentum.IsActive())
	assert.Equal(t, enum.RegimeUnknown, risk.regime)

	// Unchanged classification publishes nothing.
	last = o.publishRegime(t.Context(), last)
	assert.Equal(t, enum.RegimeRanging, last)
	assert.Len(t, bus.published(), 1)
}

func TestRegimeClassificationConcurrentWithKlines(t *testing.T) {
	risk := &fakeRisk{approve: true}
	bus := &fakeBus{}
	classifier := &fakeClassifier{regime: enum.RegimeTrending}
	o := NewOrchestrator(risk, &fakeExec{}, newFakeHistory(), &fakeMarket{}, classifier, bus, "5", 10)
	o.Register(&stubStrategy{name: "momentum", symbols: []string{"BTCUSDT"}, active: true})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			regime := enum.RegimeTrending
			if i%2 == 0 {
				regime = enum.RegimeRanging
			}
			classifier.regime = regime
			o.publishRegime(context.Background(), enum.RegimeUnknown)
		}
	}()

	ev := model.KlineEvent{EventMeta: model.NewEventMeta(), Kline: model.Kline{Symbol: "BTCUSDT", Close: 100, Confirmed: true}}
	for i := 0; i < 200; i++ {
		require.NoError(t, o.HandleKline(t.Context(), ev))
	}
	<-done
	assert.NotEmpty(t, bus.published())
}

func TestStrategyStateRoundTrip(t *testing.T) {
	store := newFakeHistory()
	o := newTestOrchestrator(store, &fakeMarket{}, &fakeRisk{}, &fakeExec{})

	m := NewMomentum([]string{"BTCUSDT"})
	o.Register(m)
	for i := 0; i < 25; i++ {
		_, err := m.OnMarketData(t.Context(), model.Kline{Symbol: "BTCUSDT", Close: 100 + float64(i)})
		require.NoError(t, err)
	}
	o.SaveStates(t.Context())
	require.NotEmpty(t, store.states["momentum/BTCUSDT"])

	restored := NewMomentum([]string{"BTCUSDT"})
	o2 := newTestOrchestrator(store, &fakeMarket{}, &fakeRisk{}, &fakeExec{})
	o2.Register(restored)
	o2.restoreStates(t.Context())

	assert.Equal(t, m.closes["BTCUSDT"], restored.closes["BTCUSDT"])
}
