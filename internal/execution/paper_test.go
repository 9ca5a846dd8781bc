package execution

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/model"
	"main/internal/model/enum"
	"main/pkg/exception"
)

type fakeBus struct {
	events []model.Event
}

func (b *fakeBus) Publish(e model.Event) error {
	b.events = append(b.events, e)
	return nil
}

type fakeTrades struct {
	trades []model.Trade
}

func (s *fakeTrades) SaveTrade(ctx context.Context, t model.Trade) error {
	s.trades = append(s.trades, t)
	return nil
}

func (b *fakeBus) closes() []model.TradeClosedEvent {
	var out []model.TradeClosedEvent
	for _, e := range b.events {
		if closed, ok := e.(model.TradeClosedEvent); ok {
			out = append(out, closed)
		}
	}
	return out
}

func TestPaperRoundTrip(t *testing.T) {
	bus := &fakeBus{}
	trades := &fakeTrades{}
	broker := NewPaperBroker(1000, bus, trades)

	buy := &model.Signal{TraceID: "t1", Type: enum.SignalBuy, Symbol: "BTCUSDT", Price: 100, Quantity: 2}
	require.NoError(t, broker.Execute(t.Context(), buy, "momentum"))

	equity, unrealized, err := broker.Account(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1000.0, equity)
	assert.Equal(t, 0.0, unrealized)

	sell := &model.Signal{TraceID: "t2", Type: enum.SignalSell, Symbol: "BTCUSDT", Price: 110, Quantity: 2, ReduceOnly: true}
	require.NoError(t, broker.Execute(t.Context(), sell, "momentum"))

	equity, unrealized, err = broker.Account(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1020.0, equity)
	assert.Equal(t, 0.0, unrealized)

	closes := bus.closes()
	require.Len(t, closes, 1)
	assert.Equal(t, 20.0, closes[0].Trade.PnL)
	require.Len(t, trades.trades, 2)
	assert.Equal(t, enum.ExecutionPaper, trades.trades[0].ExecutionType)
}

func TestPaperVwapAveraging(t *testing.T) {
	broker := NewPaperBroker(10_000, &fakeBus{}, &fakeTrades{})

	require.NoError(t, broker.Execute(t.Context(), &model.Signal{TraceID: "t1", Type: enum.SignalBuy, Symbol: "ETHUSDT", Price: 100, Quantity: 10}, "s"))
	require.NoError(t, broker.Execute(t.Context(), &model.Signal{TraceID: "t2", Type: enum.SignalBuy, Symbol: "ETHUSDT", Price: 200, Quantity: 10}, "s"))

	pos := broker.positions["ETHUSDT"]
	require.NotNil(t, pos)
	assert.Equal(t, 150.0, pos.entry)
	assert.Equal(t, 20.0, pos.quantity)
}

func TestPaperInsufficientBalance(t *testing.T) {
	broker := NewPaperBroker(100, &fakeBus{}, &fakeTrades{})

	err := broker.Execute(t.Context(), &model.Signal{TraceID: "t1", Type: enum.SignalBuy, Symbol: "BTCUSDT", Price: 100, Quantity: 2}, "s")
	assert.ErrorIs(t, err, exception.ErrInsufficientBalance)
}

func TestPaperCloseWithoutPosition(t *testing.T) {
	broker := NewPaperBroker(1000, &fakeBus{}, &fakeTrades{})

	err := broker.Execute(t.Context(), &model.Signal{TraceID: "t1", Type: enum.SignalSell, Symbol: "BTCUSDT", Price: 100, Quantity: 1, ReduceOnly: true}, "s")
	assert.ErrorIs(t, err, exception.ErrNoOpposingPosition)
}

func TestPaperTakeProfitLadderConsumesOnce(t *testing.T) {
	bus := &fakeBus{}
	broker := NewPaperBroker(1000, bus, &fakeTrades{})

	buy := &model.Signal{
		TraceID: "t1", Type: enum.SignalBuy, Symbol: "BTCUSDT", Price: 100, Quantity: 4,
		TakeProfits: []model.TakeProfitLevel{
			{Price: 110, QuantityPct: 0.5, Reason: "tp1"},
			{Price: 120, QuantityPct: 0.5, Reason: "tp2"},
		},
	}
	require.NoError(t, broker.Execute(t.Context(), buy, "s"))

	// First rung crossed: half the position exits at 110.
	require.NoError(t, broker.HandleKline(t.Context(), model.KlineEvent{
		EventMeta: model.NewEventMeta(),
		Kline:     model.Kline{Symbol: "BTCUSDT", Close: 112, Confirmed: true},
	}))
	pos := broker.positions["BTCUSDT"]
	require.NotNil(t, pos)
	assert.Equal(t, 2.0, pos.quantity)
	require.Len(t, bus.closes(), 1)
	assert.Equal(t, 20.0, bus.closes()[0].Trade.PnL)

	// Same price again: the consumed rung stays consumed.
	require.NoError(t, broker.HandleKline(t.Context(), model.KlineEvent{
		EventMeta: model.NewEventMeta(),
		Kline:     model.Kline{Symbol: "BTCUSDT", Close: 112, Confirmed: true},
	}))
	assert.Equal(t, 2.0, broker.positions["BTCUSDT"].quantity)

	// Second rung clears the rest and the position is gone.
	require.NoError(t, broker.HandleKline(t.Context(), model.KlineEvent{
		EventMeta: model.NewEventMeta(),
		Kline:     model.Kline{Symbol: "BTCUSDT", Close: 121, Confirmed: true},
	}))
	assert.NotContains(t, broker.positions, "BTCUSDT")
	assert.Len(t, bus.closes(), 2)
}
