// Package breeze implements the broker capability against an ICICI
// Breeze-style REST API.
package breeze

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"levelbot/internal/broker"
	brcfg "levelbot/internal/config"

	"github.com/tidwall/gjson"
)

// Client wraps the Breeze REST endpoints the gateway needs.
type Client struct {
	baseURL      *url.URL
	httpClient   *http.Client
	apiKey       string
	sessionToken string
	stockCode    string
	exchangeCode string

	nowFn func() time.Time
}

// NewClient constructs a Breeze client from configuration.
func NewClient(cfg brcfg.BrokerConfig) (*Client, error) {
	raw := strings.TrimSpace(cfg.APIURL)
	if raw == "" {
		return nil, fmt.Errorf("broker.api_url cannot be empty")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing broker.api_url failed: %w", err)
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:      parsed,
		httpClient:   &http.Client{Timeout: timeout},
		apiKey:       strings.TrimSpace(cfg.APIKey),
		sessionToken: strings.TrimSpace(cfg.SessionToken),
		stockCode:    cfg.StockCode,
		exchangeCode: cfg.ExchangeCode,
		nowFn:        time.Now,
	}, nil
}

// SetHTTPClient sets the HTTP client for testing.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// nextExpiry returns the upcoming weekly expiry (Thursday) in the wire format
// the API expects.
func (c *Client) nextExpiry() string {
	now := c.nowFn()
	daysAhead := (int(time.Thursday) - int(now.Weekday()) + 7) % 7
	if daysAhead == 0 {
		daysAhead = 7
	}
	return now.AddDate(0, 0, daysAhead).Format("2006-01-02") + "T06:00:00.000Z"
}

func (c *Client) Place(ctx context.Context, req broker.OrderRequest) (broker.OrderResult, error) {
	payload := map[string]string{
		"stock_code":    c.stockCode,
		"exchange_code": c.exchangeCode,
		"product":       "options",
		"action":        "buy",
		"order_type":    "market",
		"quantity":      fmt.Sprintf("%d", req.Quantity),
		"price":         "0",
		"validity":      "day",
		"expiry_date":   c.nextExpiry(),
		"right":         string(req.Right),
		"strike_price":  fmt.Sprintf("%d", req.Strike),
		"user_remark":   req.Remark,
	}
	body, err := c.do(ctx, http.MethodPost, "order", payload)
	if err != nil {
		return broker.OrderResult{}, err
	}
	id := gjson.GetBytes(body, "Success.order_id")
	if !id.Exists() {
		return broker.OrderResult{}, fmt.Errorf("%w: %s", broker.ErrRejected, errorText(body))
	}
	return broker.OrderResult{OrderID: id.String(), Status: broker.StatusPending}, nil
}

func (c *Client) LastTradedPrice(ctx context.Context, strike int, right broker.OptionRight) (float64, error) {
	payload := map[string]string{
		"stock_code":    c.stockCode,
		"exchange_code": c.exchangeCode,
		"product_type":  "options",
		"expiry_date":   c.nextExpiry(),
		"right":         string(right),
		"strike_price":  fmt.Sprintf("%d", strike),
	}
	body, err := c.do(ctx, http.MethodGet, "quotes", payload)
	if err != nil {
		return 0, err
	}
	ltp := gjson.GetBytes(body, "Success.0.ltp")
	if !ltp.Exists() {
		return 0, fmt.Errorf("%w: %s", broker.ErrRejected, errorText(body))
	}
	return ltp.Float(), nil
}

func (c *Client) SquareOff(ctx context.Context, req broker.OrderRequest) (broker.OrderResult, error) {
	payload := map[string]string{
		"stock_code":    c.stockCode,
		"exchange_code": c.exchangeCode,
		"product":       "options",
		"action":        "sell",
		"order_type":    "market",
		"quantity":      fmt.Sprintf("%d", req.Quantity),
		"price":         "0",
		"validity":      "day",
		"stoploss":      "0",
		"expiry_date":   c.nextExpiry(),
		"right":         string(req.Right),
		"strike_price":  fmt.Sprintf("%d", req.Strike),
	}
	body, err := c.do(ctx, http.MethodPost, "squareoff", payload)
	if err != nil {
		return broker.OrderResult{}, err
	}
	id := gjson.GetBytes(body, "Success.order_id")
	if !id.Exists() {
		return broker.OrderResult{}, fmt.Errorf("%w: %s", broker.ErrRejected, errorText(body))
	}
	return broker.OrderResult{OrderID: id.String(), Status: broker.StatusPending}, nil
}

func (c *Client) OrderDetail(ctx context.Context, orderID string) (broker.OrderStatus, error) {
	payload := map[string]string{
		"exchange_code": c.exchangeCode,
		"order_id":      orderID,
	}
	body, err := c.do(ctx, http.MethodGet, "order", payload)
	if err != nil {
		return broker.StatusUnknown, err
	}
	st := gjson.GetBytes(body, "Success.0.status")
	if !st.Exists() {
		return broker.StatusUnknown, fmt.Errorf("%w: %s", broker.ErrRejected, errorText(body))
	}
	switch st.String() {
	case "Executed":
		return broker.StatusExecuted, nil
	case "Rejected":
		return broker.StatusRejected, nil
	case "Cancelled":
		return broker.StatusCancelled, nil
	case "Pending", "Ordered", "Requested":
		return broker.StatusPending, nil
	default:
		return broker.StatusUnknown, nil
	}
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload map[string]string) ([]byte, error) {
	u := *c.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + endpoint
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("X-Session-Token", c.sessionToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("breeze %s %s failed: %w", method, endpoint, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading breeze response failed: %w", err)
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("breeze %s returned %d", endpoint, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: %s returned %d: %s", broker.ErrRejected, endpoint, resp.StatusCode, errorText(body))
	}
	return body, nil
}

func errorText(body []byte) string {
	if msg := gjson.GetBytes(body, "Error"); msg.Exists() {
		return msg.String()
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return string(body)
}

var _ broker.Broker = (*Client)(nil)
