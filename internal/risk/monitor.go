package risk

import (
	"context"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/obs"
)

// HandleOrderUpdate maintains the local position book from the
// private order feed. A fill is applied exactly once per order id.
func (e *Engine) HandleOrderUpdate(ctx context.Context, ev model.Event) error {
	update, ok := ev.(model.OrderUpdateEvent)
	if !ok {
		return nil
	}
	if update.Status != enum.OrderStatusFilled {
		return nil
	}
	if _, seen := e.seenFills[update.OrderID]; seen {
		return nil
	}
	e.seenFills[update.OrderID] = struct{}{}

	pos, open := e.positions[update.Symbol]
	switch {
	case !open:
		quality := e.pendingQuality[update.Symbol]
		delete(e.pendingQuality, update.Symbol)
		e.positions[update.Symbol] = &model.Position{
			Symbol:     update.Symbol,
			Side:       update.Side,
			EntryPrice: update.Price,
			Quantity:   update.Quantity,
			MaxPrice:   update.Price,
			MinPrice:   update.Price,
			OpenedAt:   e.now().UTC(),
			Quality:    quality,
		}
		logs.Infof("position opened %s %s qty=%v entry=%v", update.Symbol, update.Side, update.Quantity, update.Price)
	case pos.Side == update.Side:
		pos.ApplyFill(update.Price, update.Quantity)
	default:
		// Opposite-side fill reduces or closes.
		if update.Quantity >= pos.Quantity {
			delete(e.positions, update.Symbol)
			logs.Infof("position closed %s", update.Symbol)
		} else {
			pos.Quantity -= update.Quantity
		}
	}
	return nil
}

// HandleTradeClosed rolls realized losses into the daily budget and
// starts the loss cooldown.
func (e *Engine) HandleTradeClosed(ctx context.Context, ev model.Event) error {
	closed, ok := ev.(model.TradeClosedEvent)
	if !ok {
		return nil
	}
	if closed.Trade.PnL < 0 {
		e.state.DailyLoss += -closed.Trade.PnL
		e.lastLossAt = e.now().UTC()
		logs.Infof("realized loss %.2f, daily total %.2f", -closed.Trade.PnL, e.state.DailyLoss)
		e.persistState(ctx)
	}
	return nil
}

// HandleKline drives the local exit monitor: take-profit, cascade
// stop-loss and trailing stop against the running extreme price.
func (e *Engine) HandleKline(ctx context.Context, ev model.Event) error {
	kline, ok := ev.(model.KlineEvent)
	if !ok {
		return nil
	}
	price := kline.Kline.Close
	symbol := kline.Kline.Symbol
	e.lastPrice[symbol] = price

	pos, open := e.positions[symbol]
	if !open || price <= 0 {
		return nil
	}

	if price > pos.MaxPrice {
		pos.MaxPrice = price
	}
	if pos.MinPrice == 0 || price < pos.MinPrice {
		pos.MinPrice = price
	}

	now := e.now().UTC()
	if e.cfg.MinHoldSec > 0 && now.Sub(pos.OpenedAt) < time.Duration(e.cfg.MinHoldSec)*time.Second {
		return nil
	}

	pnl := pos.UnrealizedPct(price)

	if e.cfg.TakeProfitPct > 0 && pnl >= e.cfg.TakeProfitPct {
		e.closePosition(ctx, pos, "TAKE_PROFIT")
		return nil
	}

	if pnl > 0 {
		// In profit: arm the trailing stop after the trigger, with a
		// fixed activation delay, then track the running extreme.
		if e.cfg.TrailingTriggerPct > 0 && !pos.TrailingArmed && pnl >= e.cfg.TrailingTriggerPct {
			pos.TrailingArmed = true
			pos.TrailingSince = now
			logs.Infof("trailing stop armed for %s at %.2f%%", symbol, pnl*100)
		}
		if pos.TrailingArmed && now.Sub(pos.TrailingSince) >= time.Duration(e.cfg.TrailingDelaySec)*time.Second {
			extreme := pos.MaxPrice
			drawdown := (extreme - price) / extreme
			if pos.Side == enum.OrderSideSell {
				extreme = pos.MinPrice
				drawdown = (price - extreme) / extreme
			}
			if e.cfg.StopLossPct > 0 && drawdown >= e.cfg.StopLossPct {
				e.closePosition(ctx, pos, "TRAILING_STOP")
			}
		}
		// While in profit the plain stop-loss never fires.
		return nil
	}

	if e.cfg.StopLossPct > 0 && -pnl >= e.cfg.StopLossPct {
		loss := pos.Quantity * pos.EntryPrice * -pnl
		if e.cfg.PerExitLossCap > 0 && loss > e.cfg.PerExitLossCap {
			e.notifier.Send("CASCADE_STOP_OVERSIZED",
				"stop exit on "+symbol+" exceeds the per-exit loss cap")
		}
		e.closePosition(ctx, pos, "LOCAL_CASCADE_STOP")
	}
	return nil
}

// closePosition synthesizes a full-size closing signal and hands it
// straight to the execution manager, bypassing the entry gates. The
// position is dropped from the book on successful routing, which also
// makes the exit fire at most once.
func (e *Engine) closePosition(ctx context.Context, pos *model.Position, reason string) {
	sig := &model.Signal{
		TraceID:    model.NewEventMeta().ID,
		Type:       enum.SignalSell,
		Symbol:     pos.Symbol,
		Price:      e.lastPrice[pos.Symbol],
		Quantity:   pos.Quantity,
		Category:   enum.CategoryLinear,
		ReduceOnly: true,
		Reason:     reason,
		Strategy:   "risk_monitor",
	}
	if pos.Side == enum.OrderSideSell {
		sig.Type = enum.SignalBuy
	}
	if err := e.executor.Execute(ctx, sig, sig.Strategy); err != nil {
		logs.Errorf("close %s for %s failed, keeping position, err: %+v", pos.Symbol, reason, err)
		return
	}
	obs.IncExitReason(reason)
	delete(e.positions, pos.Symbol)
}

// forceCloseAll closes every tracked position. Used by the emergency
// and daily-loss gates; both guard it with a single-shot flag so the
// blanket close does not re-trigger on every rejected signal.
func (e *Engine) forceCloseAll(ctx context.Context, reason string) {
	for _, pos := range e.positions {
		e.closePosition(ctx, pos, reason)
	}
}

// Positions returns the tracked open positions; test and status use.
func (e *Engine) Positions() map[string]*model.Position {
	return e.positions
}
