package bybit

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/yanun0323/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
	"github.com/yanun0323/pkg/ws"

	"main/internal/model"
	"main/internal/model/enum"
)

// PrivateWs streams the authenticated order channel. Auth and
// subscribe sidecars are registered so they replay after reconnect.
type PrivateWs struct {
	wss       *ws.WebSocket
	apiKey    string
	apiSecret string
}

func NewPrivateWs(ctx context.Context, url, apiKey, apiSecret string) *PrivateWs {
	return &PrivateWs{
		wss:       ws.New(ctx, url),
		apiKey:    apiKey,
		apiSecret: apiSecret,
	}
}

func (repo *PrivateWs) Start(ctx context.Context) error {
	if err := repo.wss.Start(ctx); err != nil {
		return errors.Wrap(err, "start wss")
	}
	return nil
}

func (repo *PrivateWs) Close() {
	repo.wss.Close()
}

// Auth sends the signed auth op: HMAC-SHA256(secret, "GET/realtime"+expires).
func (repo *PrivateWs) Auth(ctx context.Context) error {
	appendIntoRegister := true
	if err := repo.wss.SendAndWait(ctx, ws.Sidecar{
		Sender: func(ctx context.Context, ws *ws.WebSocket) error {
			expires := strconv.FormatInt(time.Now().Add(10*time.Second).UnixMilli(), 10)
			mac := hmac.New(sha256.New, []byte(repo.apiSecret))
			mac.Write([]byte("GET/realtime" + expires))
			payload := wsOpRequest{
				Op:   "auth",
				Args: []string{repo.apiKey, expires, hex.EncodeToString(mac.Sum(nil))},
			}
			if err := ws.WriteJSON(payload); err != nil {
				return errors.Wrap(err, "write auth payload")
			}
			return nil
		},
		Waiter: func(ctx context.Context, m ws.Message) (bool, error) {
			resp, ok := ws.ReadMessage[wsOpResponse](m)
			if !ok || resp.Op != "auth" {
				return false, nil
			}
			if !resp.Success {
				return false, errors.Errorf("auth rejected, msg: %s", resp.RetMsg)
			}
			return true, nil
		},
	}, appendIntoRegister); err != nil {
		return errors.Wrap(err, "send and wait")
	}

	return nil
}

// SubscribeOrders subscribes the private order topic.
func (repo *PrivateWs) SubscribeOrders(ctx context.Context) error {
	appendIntoRegister := true
	if err := repo.wss.SendAndWait(ctx, ws.Sidecar{
		Sender: func(ctx context.Context, ws *ws.WebSocket) error {
			payload := wsOpRequest{
				Op:   "subscribe",
				Args: []string{"order"},
			}
			if err := ws.WriteJSON(payload); err != nil {
				return errors.Wrap(err, "write subscribe payload")
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

type wsOrderPush struct {
	Topic string `json:"topic"`
	Data  []struct {
		OrderID     string          `json:"orderId"`
		OrderLinkID string          `json:"orderLinkId"`
		Symbol      string          `json:"symbol"`
		Side        string          `json:"side"`
		OrderStatus string          `json:"orderStatus"`
		AvgPrice    decimal.Decimal `json:"avgPrice"`
		CumExecQty  decimal.Decimal `json:"cumExecQty"`
	} `json:"data"`
}

// ObserveOrders forwards private order updates.
func (repo *PrivateWs) ObserveOrders(ctx context.Context, handler func(u model.OrderUpdateEvent)) (unsubscribe func()) {
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

				push, ok := ws.ReadMessage[wsOrderPush](m)
				if !ok || push.Topic != "order" {
					continue
				}
				for _, row := range push.Data {
					status, known := orderStatus(row.OrderStatus)
					if !known {
						logs.Infof("order update with unknown status: %s", row.OrderStatus)
						continue
					}
					handler(model.OrderUpdateEvent{
						EventMeta:   model.NewEventMeta(),
						OrderID:     row.OrderID,
						OrderLinkID: row.OrderLinkID,
						Symbol:      row.Symbol,
						Side:        orderSide(row.Side),
						Status:      status,
						Price:       parseFloat(row.AvgPrice.String()),
						Quantity:    parseFloat(row.CumExecQty.String()),
					})
				}
			}
		}
	}()

	return cancel
}

func orderSide(s string) enum.OrderSide {
	if s == "Sell" {
		return enum.OrderSideSell
	}
	return enum.OrderSideBuy
}

func orderStatus(s string) (enum.OrderStatus, bool) {
	switch s {
	case "New", "Created", "Untriggered":
		return enum.OrderStatusNew, true
	case "PartiallyFilled":
		return enum.OrderStatusPartialFilled, true
	case "Filled":
		return enum.OrderStatusFilled, true
	case "Cancelled", "Deactivated":
		return enum.OrderStatusCanceled, true
	case "Rejected":
		return enum.OrderStatusRejected, true
	default:
		return 0, false
	}
}
