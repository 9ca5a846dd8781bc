package bybit

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(baseURL string) *Client {
	return NewClient(Config{
		BaseURL:      baseURL,
		APIKey:       "key",
		APISecret:    "secret",
		RecvWindowMs: 5000,
	})
}

func TestSign(t *testing.T) {
	c := testClient("http://unused")

	got := c.sign("1700000000000", "payload")

	assert.Equal(t, "149ffccf015a80fcbb5418ef11688df00e9c97414fd6225791632bb51d8db972", got)
}

func TestGetSignsQueryAndDecodesEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v5/market/kline", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("X-BAPI-API-KEY"))
		assert.Equal(t, "5000", r.Header.Get("X-BAPI-RECV-WINDOW"))
		assert.NotEmpty(t, r.Header.Get("X-BAPI-TIMESTAMP"))
		assert.NotEmpty(t, r.Header.Get("X-BAPI-SIGN"))
		_, _ = w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{"symbol":"BTCUSDT","category":"linear","list":[["1700000000000","100","110","90","105","12","1260"]]}}`))
	}))
	defer srv.Close()

	klines, err := testClient(srv.URL).Klines(t.Context(), "linear", "BTCUSDT", "5", 1)

	require.NoError(t, err)
	require.Len(t, klines, 1)
	assert.Equal(t, 100.0, klines[0].Open)
	assert.Equal(t, 105.0, klines[0].Close)
	assert.True(t, klines[0].Confirmed)
}

func TestRetCodeBecomesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"retCode":10010,"retMsg":"invalid api key","result":{}}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).WalletBalance(t.Context())

	// Both probes fail on the retCode; the call degrades to no-balance.
	require.Error(t, err)
}

func TestCreateOrderPostOnlyAndIdempotency(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf, _ := io.ReadAll(r.Body)
		body = string(buf)
		_, _ = w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{"orderId":"abc","orderLinkId":"link-1"}}`))
	}))
	defer srv.Close()

	orderID, err := testClient(srv.URL).CreateOrder(t.Context(), OrderRequest{
		Category:    "linear",
		Symbol:      "BTCUSDT",
		Side:        "Sell",
		OrderType:   "Limit",
		Qty:         "0.5",
		Price:       "51000",
		PostOnly:    true,
		ReduceOnly:  true,
		OrderLinkID: "link-1",
	})

	require.NoError(t, err)
	assert.Equal(t, "abc", orderID)
	assert.Contains(t, body, `"timeInForce":"PostOnly"`)
	assert.Contains(t, body, `"reduceOnly":true`)
	assert.Contains(t, body, `"orderLinkId":"link-1"`)
}

func TestKlinesChronologicalOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Bybit returns newest first.
		_, _ = w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{"symbol":"BTCUSDT","category":"linear","list":[
			["1700000600000","105","115","95","108","10","1080"],
			["1700000300000","100","110","90","105","12","1260"]
		]}}`))
	}))
	defer srv.Close()

	klines, err := testClient(srv.URL).Klines(t.Context(), "linear", "BTCUSDT", "5", 2)

	require.NoError(t, err)
	require.Len(t, klines, 2)
	assert.True(t, klines[0].Start.Before(klines[1].Start))
	assert.Equal(t, 105.0, klines[0].Close)
	assert.Equal(t, 108.0, klines[1].Close)
}
