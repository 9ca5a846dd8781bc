package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/obs"
)

var (
	ErrQueueFull   = errors.New("event queue full")
	ErrQueueClosed = errors.New("event queue closed")
)

// Handler consumes one event. Errors are logged per handler and never
// block sibling handlers or the next event.
type Handler func(ctx context.Context, e model.Event) error

type namedHandler struct {
	name string
	fn   Handler
}

// Bus is a bounded, typed pub/sub broker with a single consumer
// worker. The worker runs every matching handler for one event, in
// registration order, before dequeuing the next. State touched only
// from handlers needs no locking.
type Bus struct {
	ch     chan model.Event
	sendMu sync.RWMutex
	closed uint32

	mu       sync.RWMutex
	handlers map[enum.EventKind][]namedHandler

	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
	grace   time.Duration
}

// New allocates a bus with the given queue capacity.
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = 1
	}
	return &Bus{
		ch:       make(chan model.Event, capacity),
		handlers: make(map[enum.EventKind][]namedHandler),
		done:     make(chan struct{}),
		grace:    5 * time.Second,
	}
}

// Subscribe registers a handler for an event kind. enum.EventAny
// subscribes to every event.
func (b *Bus) Subscribe(kind enum.EventKind, name string, h Handler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = append(b.handlers[kind], namedHandler{name: name, fn: h})
}

// Publish enqueues an event without blocking. A full queue drops the
// event and reports ErrQueueFull. The read lock keeps the send from
// racing the channel close in Stop.
func (b *Bus) Publish(e model.Event) error {
	b.sendMu.RLock()
	defer b.sendMu.RUnlock()
	if atomic.LoadUint32(&b.closed) != 0 {
		return ErrQueueClosed
	}
	select {
	case b.ch <- e:
		obs.ObserveEvent(e.Kind())
		return nil
	default:
		obs.IncQueueDrop()
		return ErrQueueFull
	}
}

// Start launches the consumer worker. Calling it twice is a no-op.
func (b *Bus) Start(ctx context.Context) {
	if b.running.Swap(true) {
		return
	}
	ctx, b.cancel = context.WithCancel(ctx)
	go b.run(ctx)
}

func (b *Bus) run(ctx context.Context) {
	defer close(b.done)
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-b.ch:
			if !ok {
				return
			}
			b.dispatch(ctx, e)
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, e model.Event) {
	b.mu.RLock()
	matched := make([]namedHandler, 0, 4)
	matched = append(matched, b.handlers[e.Kind()]...)
	if e.Kind() != enum.EventAny {
		matched = append(matched, b.handlers[enum.EventAny]...)
	}
	b.mu.RUnlock()

	for _, h := range matched {
		b.invoke(ctx, h, e)
	}
}

// invoke runs one handler to completion. Handlers execute sequentially
// in registration order; all shared risk and ledger state is mutated
// only from here, which is what makes it race-free without locks.
func (b *Bus) invoke(ctx context.Context, h namedHandler, e model.Event) {
	defer func() {
		if r := recover(); r != nil {
			logs.Errorf("handler %s panicked on %s: %v", h.name, e.Kind(), r)
		}
	}()
	if err := h.fn(ctx, e); err != nil {
		logs.Errorf("handler %s failed on %s, err: %+v", h.name, e.Kind(), err)
	}
}

// Stop closes the intake and waits for in-flight handlers up to the
// grace period before cancelling them. Safe to call more than once.
func (b *Bus) Stop() {
	if !b.running.Load() {
		return
	}
	b.sendMu.Lock()
	if atomic.CompareAndSwapUint32(&b.closed, 0, 1) {
		close(b.ch)
	}
	b.sendMu.Unlock()
	select {
	case <-b.done:
	case <-time.After(b.grace):
		logs.Warnf("event bus grace period elapsed, cancelling in-flight handlers")
		if b.cancel != nil {
			b.cancel()
		}
		<-b.done
	}
}
