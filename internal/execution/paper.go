package execution

import (
	"context"
	"sync"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/model"
	"main/internal/model/enum"
	"main/pkg/exception"
)

// TradeSink persists completed paper trades.
type TradeSink interface {
	SaveTrade(ctx context.Context, t model.Trade) error
}

type paperPosition struct {
	side        enum.OrderSide
	entry       float64
	quantity    float64
	originalQty float64
	strategy    string
	takeProfits []model.TakeProfitLevel
}

// PaperBroker simulates fills against an in-memory ledger. Every fill
// is echoed onto the bus as an order update so the rest of the engine
// behaves identically in paper and live mode.
type PaperBroker struct {
	mu        sync.Mutex
	balance   float64
	positions map[string]*paperPosition
	lastPrice map[string]float64
	bus       Publisher
	store     TradeSink
	now       func() time.Time
}

func NewPaperBroker(initialBalance float64, bus Publisher, store TradeSink) *PaperBroker {
	return &PaperBroker{
		balance:   initialBalance,
		positions: make(map[string]*paperPosition),
		lastPrice: make(map[string]float64),
		bus:       bus,
		store:     store,
		now:       time.Now,
	}
}

func (b *PaperBroker) Execute(ctx context.Context, sig *model.Signal, strategy string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	pos, open := b.positions[sig.Symbol]
	if sig.ReduceOnly || (open && pos.side != sig.Side()) {
		return b.reduce(ctx, sig, strategy)
	}
	return b.open(ctx, sig, strategy)
}

func (b *PaperBroker) open(ctx context.Context, sig *model.Signal, strategy string) error {
	cost := sig.Price * sig.Quantity
	if cost > b.balance {
		return exception.ErrInsufficientBalance
	}
	b.balance -= cost

	pos, ok := b.positions[sig.Symbol]
	if !ok {
		pos = &paperPosition{side: sig.Side(), strategy: strategy}
		b.positions[sig.Symbol] = pos
	}
	total := pos.quantity + sig.Quantity
	pos.entry = (pos.entry*pos.quantity + sig.Price*sig.Quantity) / total
	pos.quantity = total
	pos.originalQty = total
	pos.takeProfits = append([]model.TakeProfitLevel(nil), sig.TakeProfits...)

	b.recordFill(ctx, sig, strategy, sig.Quantity, 0)
	logs.Infof("paper fill %s %s qty=%v @ %v, balance %.2f", sig.Side(), sig.Symbol, sig.Quantity, sig.Price, b.balance)
	b.fireTakeProfits(ctx, sig.Symbol, sig.Price)
	return nil
}

func (b *PaperBroker) reduce(ctx context.Context, sig *model.Signal, strategy string) error {
	pos, ok := b.positions[sig.Symbol]
	if !ok || pos.side == sig.Side() {
		return exception.ErrNoOpposingPosition
	}
	qty := sig.Quantity
	if qty > pos.quantity {
		qty = pos.quantity
	}

	pnl := (sig.Price - pos.entry) * qty
	if pos.side == enum.OrderSideSell {
		pnl = -pnl
	}
	b.balance += pos.entry*qty + pnl

	pos.quantity -= qty
	if pos.quantity <= 0 {
		delete(b.positions, sig.Symbol)
	}

	b.recordFill(ctx, sig, strategy, qty, pnl)
	logs.Infof("paper close %s qty=%v @ %v pnl=%.2f, balance %.2f", sig.Symbol, qty, sig.Price, pnl, b.balance)
	return nil
}

// recordFill persists the trade and echoes a synthetic filled order
// update plus, for closes, the realized round trip.
func (b *PaperBroker) recordFill(ctx context.Context, sig *model.Signal, strategy string, qty, pnl float64) {
	trade := model.Trade{
		Symbol:        sig.Symbol,
		Side:          sig.Side(),
		Price:         sig.Price,
		Quantity:      qty,
		Value:         sig.Price * qty,
		PnL:           pnl,
		Strategy:      strategy,
		ExecutionType: enum.ExecutionPaper,
		Timestamp:     b.now().UTC(),
	}
	if err := b.store.SaveTrade(ctx, trade); err != nil {
		logs.Errorf("persist paper trade, err: %+v", err)
	}

	meta := model.NewEventMeta()
	if err := b.bus.Publish(model.OrderUpdateEvent{
		EventMeta:   meta,
		OrderID:     "paper-" + meta.ID,
		OrderLinkID: sig.TraceID,
		Symbol:      sig.Symbol,
		Side:        sig.Side(),
		Status:      enum.OrderStatusFilled,
		Price:       sig.Price,
		Quantity:    qty,
	}); err != nil {
		logs.Errorf("publish paper order update, err: %+v", err)
	}
	if sig.ReduceOnly || pnl != 0 {
		if err := b.bus.Publish(model.TradeClosedEvent{
			EventMeta: model.NewEventMeta(),
			Trade:     trade,
		}); err != nil {
			logs.Errorf("publish paper trade close, err: %+v", err)
		}
	}
}

// HandleKline marks the ledger and fills resting take-profit levels
// against the bar close.
func (b *PaperBroker) HandleKline(ctx context.Context, ev model.Event) error {
	kline, ok := ev.(model.KlineEvent)
	if !ok {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastPrice[kline.Kline.Symbol] = kline.Kline.Close
	b.fireTakeProfits(ctx, kline.Kline.Symbol, kline.Kline.Close)
	return nil
}

// fireTakeProfits consumes every pending level the price has crossed.
// A level fires at most once, for its fraction of the original
// position size. Caller holds the lock.
func (b *PaperBroker) fireTakeProfits(ctx context.Context, symbol string, price float64) {
	pos, open := b.positions[symbol]
	if !open {
		return
	}
	for i := range pos.takeProfits {
		level := &pos.takeProfits[i]
		if level.Consumed {
			continue
		}
		crossed := price >= level.Price
		if pos.side == enum.OrderSideSell {
			crossed = price <= level.Price
		}
		if !crossed {
			continue
		}
		level.Consumed = true

		qty := pos.originalQty * level.QuantityPct
		if qty > pos.quantity {
			qty = pos.quantity
		}
		if qty <= 0 {
			continue
		}
		exit := &model.Signal{
			TraceID:    model.NewEventMeta().ID,
			Type:       enum.SignalSell,
			Symbol:     symbol,
			Price:      level.Price,
			Quantity:   qty,
			ReduceOnly: true,
			Reason:     level.Reason,
			Strategy:   pos.strategy,
		}
		if pos.side == enum.OrderSideSell {
			exit.Type = enum.SignalBuy
		}
		if err := b.reduce(ctx, exit, pos.strategy); err != nil {
			logs.Errorf("paper take-profit fill, err: %+v", err)
		}
		if _, still := b.positions[symbol]; !still {
			break
		}
	}
}

// Account reports ledger cash plus marked-to-market open exposure.
func (b *PaperBroker) Account(ctx context.Context) (float64, float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	unrealized := 0.0
	equity := b.balance
	for symbol, pos := range b.positions {
		mark, ok := b.lastPrice[symbol]
		if !ok {
			mark = pos.entry
		}
		pnl := (mark - pos.entry) * pos.quantity
		if pos.side == enum.OrderSideSell {
			pnl = -pnl
		}
		unrealized += pnl
		equity += pos.entry*pos.quantity + pnl
	}
	return equity, unrealized, nil
}
