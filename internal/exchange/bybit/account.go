package bybit

import (
	"context"
	"net/url"
	"strconv"

	"github.com/yanun0323/decimal"
	"github.com/yanun0323/logs"

	"main/pkg/exception"
)

type walletResult struct {
	List []struct {
		AccountType    string          `json:"accountType"`
		TotalEquity    decimal.Decimal `json:"totalEquity"`
		TotalAvailable decimal.Decimal `json:"totalAvailableBalance"`
	} `json:"list"`
}

// Balance holds the wallet snapshot used for sizing.
type Balance struct {
	Equity    float64
	Available float64
}

// WalletBalance probes UNIFIED then CONTRACT account types
// sequentially; a failed probe is a soft negative, not an error.
func (c *Client) WalletBalance(ctx context.Context) (Balance, error) {
	for _, accountType := range []string{"UNIFIED", "CONTRACT"} {
		query := url.Values{}
		query.Set("accountType", accountType)

		var result walletResult
		if err := c.get(ctx, "/v5/account/wallet-balance", query.Encode(), &result); err != nil {
			logs.Infof("wallet probe %s failed, err: %+v", accountType, err)
			continue
		}
		for _, row := range result.List {
			equity := parseFloat(row.TotalEquity.String())
			if equity <= 0 {
				continue
			}
			return Balance{
				Equity:    equity,
				Available: parseFloat(row.TotalAvailable.String()),
			}, nil
		}
	}
	return Balance{}, exception.ErrExchangeNoBalance
}

type positionResult struct {
	List []struct {
		Symbol        string          `json:"symbol"`
		Side          string          `json:"side"`
		Size          decimal.Decimal `json:"size"`
		AvgPrice      decimal.Decimal `json:"avgPrice"`
		UnrealisedPnl decimal.Decimal `json:"unrealisedPnl"`
	} `json:"list"`
}

// ExchangePosition is one live position row.
type ExchangePosition struct {
	Symbol        string
	Side          string
	Size          float64
	AvgPrice      float64
	UnrealizedPnL float64
}

// Positions lists open positions for the category.
func (c *Client) Positions(ctx context.Context, category string) ([]ExchangePosition, error) {
	query := url.Values{}
	query.Set("category", category)
	query.Set("settleCoin", "USDT")

	var result positionResult
	if err := c.get(ctx, "/v5/position/list", query.Encode(), &result); err != nil {
		return nil, err
	}
	out := make([]ExchangePosition, 0, len(result.List))
	for _, row := range result.List {
		size := parseFloat(row.Size.String())
		if size <= 0 {
			continue
		}
		out = append(out, ExchangePosition{
			Symbol:        row.Symbol,
			Side:          row.Side,
			Size:          size,
			AvgPrice:      parseFloat(row.AvgPrice.String()),
			UnrealizedPnL: parseFloat(row.UnrealisedPnl.String()),
		})
	}
	return out, nil
}

// SetLeverage sets symbol leverage. Callers treat failures as
// non-blocking; Bybit rejects no-op changes with retCode 110043.
func (c *Client) SetLeverage(ctx context.Context, category, symbol string, leverage int) error {
	body := map[string]string{
		"category":     category,
		"symbol":       symbol,
		"buyLeverage":  strconv.Itoa(leverage),
		"sellLeverage": strconv.Itoa(leverage),
	}
	return c.post(ctx, "/v5/position/set-leverage", body, nil)
}

type closedPnlResult struct {
	List []struct {
		Symbol    string          `json:"symbol"`
		ClosedPnl decimal.Decimal `json:"closedPnl"`
		UpdatedAt string          `json:"updatedTime"`
	} `json:"list"`
}

// ClosedPnL sums realized PnL rows for the symbol.
func (c *Client) ClosedPnL(ctx context.Context, category, symbol string) (float64, error) {
	query := url.Values{}
	query.Set("category", category)
	query.Set("symbol", symbol)

	var result closedPnlResult
	if err := c.get(ctx, "/v5/position/closed-pnl", query.Encode(), &result); err != nil {
		return 0, err
	}
	total := 0.0
	for _, row := range result.List {
		total += parseFloat(row.ClosedPnl.String())
	}
	return total, nil
}
