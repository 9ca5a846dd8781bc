package bybit

import (
	"context"

	"github.com/yanun0323/errors"
)

// OrderRequest is a v5 order create payload. Quantity and price are
// preformatted strings so the instrument step is decided by the
// caller, never by float rendering here.
type OrderRequest struct {
	Category    string `json:"category"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	OrderType   string `json:"orderType"`
	Qty         string `json:"qty"`
	Price       string `json:"price,omitempty"`
	TimeInForce string `json:"timeInForce,omitempty"`
	PostOnly    bool   `json:"-"`
	ReduceOnly  bool   `json:"reduceOnly,omitempty"`
	OrderLinkID string `json:"orderLinkId,omitempty"`
}

type orderResult struct {
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
}

// CreateOrder submits one order. OrderLinkID makes retried
// submissions idempotent: the exchange rejects a duplicate link id
// instead of double-filling.
func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (string, error) {
	if req.PostOnly {
		req.TimeInForce = "PostOnly"
	}
	var result orderResult
	if err := c.post(ctx, "/v5/order/create", req, &result); err != nil {
		return "", errors.Wrap(err, "create order")
	}
	return result.OrderID, nil
}
