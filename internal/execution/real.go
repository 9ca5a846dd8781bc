package execution

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/exchange/bybit"
	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/ops"
	"main/pkg/exception"
)

// RealBroker places orders on Bybit v5. Leverage changes and
// take-profit ladders are best-effort; only the entry order itself can
// fail an execution.
type RealBroker struct {
	client  *bybit.Client
	symbols map[string]ops.SymbolConfig
	store   TradeSink
	bus     Publisher
	now     func() time.Time
}

func NewRealBroker(client *bybit.Client, symbols map[string]ops.SymbolConfig, store TradeSink, bus Publisher) *RealBroker {
	return &RealBroker{
		client:  client,
		symbols: symbols,
		store:   store,
		bus:     bus,
		now:     time.Now,
	}
}

func (b *RealBroker) Execute(ctx context.Context, sig *model.Signal, strategy string) error {
	spec, ok := b.symbols[sig.Symbol]
	if !ok {
		return errors.Wrapf(exception.ErrExchangeBadSymbol, "%s", sig.Symbol)
	}
	quantity := sig.Quantity
	if !sig.ReduceOnly {
		// Sizing ran against a balance snapshot that may be stale by
		// submission time; re-cap against the capital available now.
		if balance, balErr := b.client.WalletBalance(ctx); balErr != nil {
			logs.Warnf("available balance probe for %s, err: %+v", sig.Symbol, balErr)
		} else if balance.Available > 0 {
			lev := float64(sig.Leverage)
			if lev < 1 {
				lev = 1
			}
			if affordable := balance.Available * lev / sig.Price; affordable < quantity {
				quantity = model.FloorQuantity(affordable, spec.QtyDecimals)
				logs.Warnf("capping %s qty %v -> %v against available capital", sig.Symbol, sig.Quantity, quantity)
			}
		}
	}
	qty := model.FormatQuantity(quantity, spec.QtyDecimals)
	if qty == "0" || qty == "" {
		if !sig.ReduceOnly && quantity < sig.Quantity {
			return errors.Wrapf(exception.ErrInsufficientBalance, "%s", sig.Symbol)
		}
		return exception.ErrOrderInvalidSignal
	}

	category := sig.Category.String()
	if sig.Category == enum.CategoryLinear && sig.Leverage > 0 && !sig.ReduceOnly {
		if err := b.client.SetLeverage(ctx, category, sig.Symbol, sig.Leverage); err != nil {
			logs.Warnf("set leverage %dx on %s, err: %+v", sig.Leverage, sig.Symbol, err)
		}
	}

	orderID, err := b.client.CreateOrder(ctx, bybit.OrderRequest{
		Category:    category,
		Symbol:      sig.Symbol,
		Side:        sig.Side().String(),
		OrderType:   "Market",
		Qty:         qty,
		ReduceOnly:  sig.ReduceOnly,
		OrderLinkID: clientOrderID(sig.TraceID),
	})
	if err != nil {
		return errors.Wrap(err, "market order")
	}
	logs.Infof("order placed %s %s %s qty=%s id=%s", category, sig.Side(), sig.Symbol, qty, orderID)

	trade := model.Trade{
		Symbol:        sig.Symbol,
		Side:          sig.Side(),
		Price:         sig.Price,
		Quantity:      quantity,
		Value:         sig.Price * quantity,
		Strategy:      strategy,
		ExecutionType: enum.ExecutionReal,
		Timestamp:     b.now().UTC(),
	}

	if sig.ReduceOnly {
		if pnl, pnlErr := b.client.ClosedPnL(ctx, category, sig.Symbol); pnlErr != nil {
			logs.Warnf("closed pnl query for %s, err: %+v", sig.Symbol, pnlErr)
		} else {
			trade.PnL = pnl
		}
		if pubErr := b.bus.Publish(model.TradeClosedEvent{
			EventMeta: model.NewEventMeta(),
			Trade:     trade,
		}); pubErr != nil {
			logs.Errorf("publish trade close, err: %+v", pubErr)
		}
	} else {
		b.placeTakeProfits(ctx, sig, spec, quantity)
	}

	if err := b.store.SaveTrade(ctx, trade); err != nil {
		logs.Errorf("persist trade, err: %+v", err)
	}
	return nil
}

// placeTakeProfits rests the partial ladder as post-only reduce-only
// limits. A rejected rung is logged and skipped; the entry stands.
func (b *RealBroker) placeTakeProfits(ctx context.Context, sig *model.Signal, spec ops.SymbolConfig, quantity float64) {
	for i, level := range sig.TakeProfits {
		qty := model.FormatQuantity(quantity*level.QuantityPct, spec.QtyDecimals)
		if qty == "0" || qty == "" {
			continue
		}
		_, err := b.client.CreateOrder(ctx, bybit.OrderRequest{
			Category:    sig.Category.String(),
			Symbol:      sig.Symbol,
			Side:        sig.Side().Opposite().String(),
			OrderType:   "Limit",
			Qty:         qty,
			Price:       strconv.FormatFloat(level.Price, 'f', -1, 64),
			PostOnly:    true,
			ReduceOnly:  true,
			OrderLinkID: clientOrderID(sig.TraceID + "-tp" + strconv.Itoa(i)),
		})
		if err != nil {
			logs.Warnf("take-profit rung %d on %s, err: %+v", i, sig.Symbol, err)
		}
	}
}

// Account reports wallet equity and the open unrealized PnL. A failed
// position probe degrades unrealized to zero rather than failing the
// balance read.
func (b *RealBroker) Account(ctx context.Context) (float64, float64, error) {
	balance, err := b.client.WalletBalance(ctx)
	if err != nil {
		return 0, 0, err
	}
	unrealized := 0.0
	positions, err := b.client.Positions(ctx, enum.CategoryLinear.String())
	if err != nil {
		logs.Warnf("position probe, err: %+v", err)
	} else {
		for _, pos := range positions {
			unrealized += pos.UnrealizedPnL
		}
	}
	return balance.Equity, unrealized, nil
}

// clientOrderID derives a deterministic exchange link id from the
// signal trace, so a retried submission collides instead of
// double-filling.
func clientOrderID(trace string) string {
	sum := sha256.Sum256([]byte(trace))
	return "bot-" + hex.EncodeToString(sum[:])[:24]
}
