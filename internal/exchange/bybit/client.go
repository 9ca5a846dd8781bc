package bybit

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"
)

const defaultRecvWindowMs = 5000

// APIError is a structured exchange rejection. It aborts the single
// call with no partial state mutation; callers decide whether to
// degrade or retry.
type APIError struct {
	Code    int
	Message string
	Status  int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bybit api error, code: %d, status: %d, msg: %s", e.Code, e.Status, e.Message)
}

// Client is the signed REST client.
type Client struct {
	http       *http.Client
	baseURL    string
	apiKey     string
	apiSecret  string
	recvWindow string
}

// Config carries the REST connection settings.
type Config struct {
	BaseURL      string
	APIKey       string
	APISecret    string
	RecvWindowMs int
}

func NewClient(cfg Config) *Client {
	if cfg.RecvWindowMs <= 0 {
		cfg.RecvWindowMs = defaultRecvWindowMs
	}
	return &Client{
		http:       &http.Client{Timeout: 15 * time.Second},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		recvWindow: strconv.Itoa(cfg.RecvWindowMs),
	}
}

type envelope struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
	Time    int64           `json:"time"`
}

// sign computes HMAC-SHA256(secret, timestamp+apiKey+recvWindow+payload).
func (c *Client) sign(timestamp, payload string) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(timestamp + c.apiKey + c.recvWindow + payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) setAuthHeaders(r *http.Request, payload string) {
	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	r.Header.Set("X-BAPI-API-KEY", c.apiKey)
	r.Header.Set("X-BAPI-TIMESTAMP", timestamp)
	r.Header.Set("X-BAPI-RECV-WINDOW", c.recvWindow)
	r.Header.Set("X-BAPI-SIGN", c.sign(timestamp, payload))
}

// get issues a signed GET; query is the raw encoded query string.
func (c *Client) get(ctx context.Context, path, query string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	url := c.baseURL + path
	if query != "" {
		url += "?" + query
	}
	r, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	c.setAuthHeaders(r, query)
	return c.do(r, out)
}

// post issues a signed POST with a JSON body.
func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	payload, err := sonic.ConfigFastest.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "marshal body")
	}
	r, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	r.Header.Set("Content-Type", "application/json")
	c.setAuthHeaders(r, string(payload))
	return c.do(r, out)
}

func (c *Client) do(r *http.Request, out any) error {
	resp, err := c.http.Do(r)
	if err != nil {
		return errors.Wrap(err, "http call")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "read body")
	}

	var env envelope
	if err := sonic.ConfigFastest.Unmarshal(raw, &env); err != nil {
		return errors.Wrap(err, "decode envelope")
	}
	if env.RetCode != 0 {
		return &APIError{Code: env.RetCode, Message: env.RetMsg, Status: resp.StatusCode}
	}
	if out == nil {
		return nil
	}
	if err := sonic.ConfigFastest.Unmarshal(env.Result, out); err != nil {
		return errors.Wrap(err, "decode result")
	}
	return nil
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
