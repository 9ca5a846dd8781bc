package bybit

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/yanun0323/errors"

	"main/internal/model"
)

type klineResult struct {
	Symbol   string      `json:"symbol"`
	Category string      `json:"category"`
	List     [][7]string `json:"list"`
}

// Klines fetches up to limit bars, newest first on the wire, returned
// in chronological order. Row layout: start, open, high, low, close,
// volume, turnover.
func (c *Client) Klines(ctx context.Context, category, symbol, interval string, limit int) ([]model.Kline, error) {
	query := url.Values{}
	query.Set("category", category)
	query.Set("symbol", symbol)
	query.Set("interval", interval)
	query.Set("limit", strconv.Itoa(limit))

	var result klineResult
	if err := c.get(ctx, "/v5/market/kline", query.Encode(), &result); err != nil {
		return nil, errors.Wrap(err, "fetch kline")
	}

	out := make([]model.Kline, 0, len(result.List))
	for i := len(result.List) - 1; i >= 0; i-- {
		row := result.List[i]
		startMs, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			continue
		}
		out = append(out, model.Kline{
			Symbol:    symbol,
			Interval:  interval,
			Open:      parseFloat(row[1]),
			High:      parseFloat(row[2]),
			Low:       parseFloat(row[3]),
			Close:     parseFloat(row[4]),
			Volume:    parseFloat(row[5]),
			Start:     time.UnixMilli(startMs).UTC(),
			Confirmed: true,
		})
	}
	return out, nil
}
