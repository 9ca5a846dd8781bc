package execution

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/errors"

	"main/internal/model"
	"main/internal/model/enum"
	"main/pkg/exception"
)

type fakeSignals struct {
	statuses []string
}

func (s *fakeSignals) SaveSignal(ctx context.Context, sig *model.Signal, status string) error {
	s.statuses = append(s.statuses, status)
	return nil
}

type fakeBroker struct {
	calls int
	err   error
}

func (b *fakeBroker) Execute(ctx context.Context, sig *model.Signal, strategy string) error {
	b.calls++
	return b.err
}

func (b *fakeBroker) Account(ctx context.Context) (float64, float64, error) {
	return 1000, 0, nil
}

func TestManagerRoutesByMode(t *testing.T) {
	store := &fakeSignals{}
	paper := &fakeBroker{}
	real := &fakeBroker{}
	m := NewManager(enum.ExecutionPaper, store)
	m.Register(enum.ExecutionPaper, paper)
	m.Register(enum.ExecutionReal, real)

	sig := &model.Signal{Type: enum.SignalBuy, Symbol: "BTCUSDT", Price: 100, Quantity: 1}
	require.NoError(t, m.Execute(t.Context(), sig, "momentum"))

	assert.Equal(t, 1, paper.calls)
	assert.Equal(t, 0, real.calls)
	assert.Equal(t, []string{"EXECUTED"}, store.statuses)
}

func TestManagerRejectsInvalidSignal(t *testing.T) {
	m := NewManager(enum.ExecutionPaper, &fakeSignals{})
	m.Register(enum.ExecutionPaper, &fakeBroker{})

	testCases := []struct {
		desc string
		sig  *model.Signal
	}{
		{"nil signal", nil},
		{"hold signal", &model.Signal{Type: enum.SignalHold, Symbol: "BTCUSDT", Price: 100, Quantity: 1}},
		{"zero quantity", &model.Signal{Type: enum.SignalBuy, Symbol: "BTCUSDT", Price: 100}},
		{"zero price", &model.Signal{Type: enum.SignalBuy, Symbol: "BTCUSDT", Quantity: 1}},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			err := m.Execute(t.Context(), tc.sig, "s")
			assert.ErrorIs(t, err, exception.ErrOrderInvalidSignal)
		})
	}
}

func TestManagerUnregisteredMode(t *testing.T) {
	m := NewManager(enum.ExecutionReal, &fakeSignals{})

	sig := &model.Signal{Type: enum.SignalBuy, Symbol: "BTCUSDT", Price: 100, Quantity: 1}
	err := m.Execute(t.Context(), sig, "s")
	assert.True(t, errors.Is(err, exception.ErrUnsupportedExecution))

	_, _, err = m.Account(t.Context())
	assert.True(t, errors.Is(err, exception.ErrUnsupportedExecution))
}

func TestManagerPersistsFailure(t *testing.T) {
	store := &fakeSignals{}
	m := NewManager(enum.ExecutionPaper, store)
	m.Register(enum.ExecutionPaper, &fakeBroker{err: exception.ErrInsufficientBalance})

	sig := &model.Signal{Type: enum.SignalBuy, Symbol: "BTCUSDT", Price: 100, Quantity: 1}
	err := m.Execute(t.Context(), sig, "s")

	assert.True(t, errors.Is(err, exception.ErrInsufficientBalance))
	assert.Equal(t, []string{"FAILED"}, store.statuses)
}
