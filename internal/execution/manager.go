package execution

import (
	"context"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/obs"
	"main/pkg/exception"
)

// Broker executes approved signals against one venue, real or
// simulated.
type Broker interface {
	Execute(ctx context.Context, sig *model.Signal, strategy string) error
	Account(ctx context.Context) (balance, unrealized float64, err error)
}

// Publisher is the slice of the event bus brokers publish through.
type Publisher interface {
	Publish(e model.Event) error
}

// SignalSink persists the execution outcome of each signal.
type SignalSink interface {
	SaveSignal(ctx context.Context, sig *model.Signal, status string) error
}

// Manager routes signals to the broker registered for the configured
// execution mode. The mode is fixed at startup; there is no per-signal
// switching.
type Manager struct {
	mode    enum.ExecutionType
	brokers map[enum.ExecutionType]Broker
	store   SignalSink
}

func NewManager(mode enum.ExecutionType, store SignalSink) *Manager {
	return &Manager{
		mode:    mode,
		brokers: make(map[enum.ExecutionType]Broker),
		store:   store,
	}
}

func (m *Manager) Register(mode enum.ExecutionType, broker Broker) {
	m.brokers[mode] = broker
}

// Execute validates the sized signal and hands it to the active
// broker. Execution outcomes are persisted either way.
func (m *Manager) Execute(ctx context.Context, sig *model.Signal, strategy string) error {
	if sig == nil || !sig.Type.IsAvailable() || sig.Type == enum.SignalHold {
		return exception.ErrOrderInvalidSignal
	}
	if sig.Quantity <= 0 || sig.Price <= 0 {
		return exception.ErrOrderInvalidSignal
	}
	broker, ok := m.brokers[m.mode]
	if !ok {
		return errors.Wrapf(exception.ErrUnsupportedExecution, "mode %s", m.mode)
	}

	if err := broker.Execute(ctx, sig, strategy); err != nil {
		if saveErr := m.store.SaveSignal(ctx, sig, "FAILED"); saveErr != nil {
			logs.Errorf("persist failed signal, err: %+v", saveErr)
		}
		return errors.Wrapf(err, "execute %s %s", sig.Type, sig.Symbol)
	}

	obs.IncOrder(m.mode.String(), sig.Side().String())
	if err := m.store.SaveSignal(ctx, sig, "EXECUTED"); err != nil {
		logs.Errorf("persist executed signal, err: %+v", err)
	}
	return nil
}

// Account exposes the active broker's account probe.
func (m *Manager) Account(ctx context.Context) (float64, float64, error) {
	broker, ok := m.brokers[m.mode]
	if !ok {
		return 0, 0, exception.ErrUnsupportedExecution
	}
	return broker.Account(ctx)
}
