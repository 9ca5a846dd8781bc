package bybit

import (
	"context"
	"fmt"
	"time"

	"github.com/yanun0323/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/pkg/sys"
	"github.com/yanun0323/pkg/ws"

	"main/internal/model"
)

// PublicWs streams public kline topics. Reconnect/backoff and
// resubscription are handled by the ws client; registered subscribe
// sidecars are replayed after reconnect.
type PublicWs struct {
	wss *ws.WebSocket
}

func NewPublicWs(ctx context.Context, url string) *PublicWs {
	return &PublicWs{
		wss: ws.New(ctx, url),
	}
}

func (repo *PublicWs) Start(ctx context.Context) error {
	if err := repo.wss.Start(ctx); err != nil {
		return errors.Wrap(err, "start wss")
	}
	return nil
}

func (repo *PublicWs) Close() {
	repo.wss.Close()
}

type wsOpRequest struct {
	Op   string   `json:"op"`
	Args []string `json:"args"`
}

type wsOpResponse struct {
	Op      string `json:"op"`
	Success bool   `json:"success"`
	RetMsg  string `json:"ret_msg"`
}

// SubscribeKline subscribes kline.{interval}.{symbol}.
func (repo *PublicWs) SubscribeKline(ctx context.Context, symbol, interval string) error {
	topic := fmt.Sprintf("kline.%s.%s", interval, symbol)
	appendIntoRegister := true
	if err := repo.wss.SendAndWait(ctx, ws.Sidecar{
		Sender: func(ctx context.Context, ws *ws.WebSocket) error {
			payload := wsOpRequest{
				Op:   "subscribe",
				Args: []string{topic},
			}
			if err := ws.WriteJSON(payload); err != nil {
				return errors.Wrap(err, "write subscribe payload").With("payload", payload)
			}
			return nil
		},
		Waiter: func(ctx context.Context, m ws.Message) (bool, error) {
			resp, ok := ws.ReadMessage[wsOpResponse](m)
			if !ok || resp.Op != "subscribe" {
				return false, nil
			}
			if !resp.Success {
				return false, errors.Errorf("subscribe rejected, msg: %s", resp.RetMsg)
			}
			return true, nil
		},
	}, appendIntoRegister); err != nil {
		return errors.Wrap(err, "send and wait")
	}

	return nil
}

type wsKlinePush struct {
	Topic string `json:"topic"`
	Data  []struct {
		Start    int64           `json:"start"`
		Interval string          `json:"interval"`
		Open     decimal.Decimal `json:"open"`
		High     decimal.Decimal `json:"high"`
		Low      decimal.Decimal `json:"low"`
		Close    decimal.Decimal `json:"close"`
		Volume   decimal.Decimal `json:"volume"`
		Confirm  bool            `json:"confirm"`
	} `json:"data"`
}

// ObserveKlines forwards confirmed bars only; in-progress candle
// updates are dropped.
func (repo *PublicWs) ObserveKlines(ctx context.Context, handler func(k model.Kline)) (unsubscribe func()) {
	ch, cancel := repo.wss.Subscribe()

	go func() {
		defer cancel()
		for {
			select {
			case <-sys.Shutdown():
				return
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}

				push, ok := ws.ReadMessage[wsKlinePush](m)
				if !ok || len(push.Data) == 0 {
					continue
				}
				symbol, isKline := klineTopicSymbol(push.Topic)
				if !isKline {
					continue
				}
				for _, row := range push.Data {
					if !row.Confirm {
						continue
					}
					handler(model.Kline{
						Symbol:    symbol,
						Interval:  row.Interval,
						Open:      parseFloat(row.Open.String()),
						High:      parseFloat(row.High.String()),
						Low:       parseFloat(row.Low.String()),
						Close:     parseFloat(row.Close.String()),
						Volume:    parseFloat(row.Volume.String()),
						Start:     time.UnixMilli(row.Start).UTC(),
						Confirmed: true,
					})
				}
			}
		}
	}()

	return cancel
}

// klineTopicSymbol splits "kline.{interval}.{symbol}".
func klineTopicSymbol(topic string) (string, bool) {
	const prefix = "kline."
	if len(topic) <= len(prefix) || topic[:len(prefix)] != prefix {
		return "", false
	}
	rest := topic[len(prefix):]
	for i := 0; i < len(rest); i++ {
		if rest[i] == '.' {
			if i+1 >= len(rest) {
				return "", false
			}
			return rest[i+1:], true
		}
	}
	return "", false
}

