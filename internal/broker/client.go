package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alanyoungcy/optionbot/internal/crypto"
	"github.com/alanyoungcy/optionbot/internal/domain"
)

// Client is the REST client for the binary-options platform API.
type Client struct {
	baseURL    string
	auth       *crypto.HMACAuth
	account    domain.AccountType
	httpClient *http.Client

	// limiter, when set, throttles order placement to the platform's
	// accepted rate.
	limiter   domain.RateLimiter
	orderRate int
}

// NewClient creates a REST client for the given API root, e.g.
// "https://api.example-options.com/v1".
func NewClient(baseURL string, auth *crypto.HMACAuth, account domain.AccountType) *Client {
	return &Client{
		baseURL: baseURL,
		auth:    auth,
		account: account,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetRateLimiter throttles PlaceOrder to ordersPerSecond through the given
// limiter. Must be called before the client is shared across goroutines.
func (c *Client) SetRateLimiter(limiter domain.RateLimiter, ordersPerSecond int) {
	c.limiter = limiter
	c.orderRate = ordersPerSecond
}

// GetQuote returns the current spot quote for one asset.
func (c *Client) GetQuote(ctx context.Context, assetID string) (domain.Quote, error) {
	path := fmt.Sprintf("/quotes/%s", url.PathEscape(assetID))

	body, err := c.doSignedRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("broker: get quote %s: %w", assetID, err)
	}

	var q quotePayload
	if err := json.Unmarshal(body, &q); err != nil {
		return domain.Quote{}, fmt.Errorf("broker: decode quote: %w", err)
	}
	if q.AssetID == "" {
		q.AssetID = assetID
	}
	return q.toDomain(), nil
}

// GetCandles returns up to limit historical bars for the asset, oldest
// first. Used to warm the per-asset windows before trading starts and by
// the backfill mode.
func (c *Client) GetCandles(ctx context.Context, assetID string, interval time.Duration, limit int) ([]domain.Candle, error) {
	params := url.Values{}
	params.Set("interval_sec", strconv.Itoa(int(interval.Seconds())))
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	path := fmt.Sprintf("/candles/%s?%s", url.PathEscape(assetID), params.Encode())

	body, err := c.doSignedRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("broker: get candles %s: %w", assetID, err)
	}

	var resp struct {
		Candles []candlePayload `json:"candles"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("broker: decode candles: %w", err)
	}

	out := make([]domain.Candle, 0, len(resp.Candles))
	for _, c := range resp.Candles {
		out = append(out, c.toDomain())
	}
	return out, nil
}

// GetBalance returns the account balance on the platform side.
func (c *Client) GetBalance(ctx context.Context) (float64, error) {
	path := "/account/balance?account=" + url.QueryEscape(string(c.account))

	body, err := c.doSignedRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return 0, fmt.Errorf("broker: get balance: %w", err)
	}

	var resp balanceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("broker: decode balance: %w", err)
	}
	return resp.Balance, nil
}

// PlaceOrder submits one binary-options order and returns the platform's
// order ID. Rejections come back as ErrOrderRejected, transport and
// server-side failures as ErrConnectivity, so the caller can tell a
// compensable refusal from a broken line.
func (c *Client) PlaceOrder(ctx context.Context, order domain.Order) (string, error) {
	if c.limiter != nil && c.orderRate > 0 {
		allowed, err := c.limiter.Allow(ctx, "broker:orders", c.orderRate, time.Second)
		if err == nil && !allowed {
			return "", fmt.Errorf("broker: place order %s: %w", order.AssetID, domain.ErrRateLimited)
		}
	}

	req := orderRequest{
		AssetID:     order.AssetID,
		Contract:    wireContract(order.Direction),
		Amount:      order.Stake,
		DurationSec: int(order.Expiry.Seconds()),
		ClientRef:   order.ClientID,
		Account:     string(c.account),
	}

	body, err := c.doSignedRequest(ctx, http.MethodPost, "/orders", req)
	if err != nil {
		return "", fmt.Errorf("broker: place order %s: %w", order.AssetID, err)
	}

	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("broker: decode order response: %w", err)
	}

	if resp.Order.Status == "rejected" {
		return "", fmt.Errorf("broker: place order %s: %s: %w", order.AssetID, resp.Message, domain.ErrOrderRejected)
	}
	return resp.Order.ID, nil
}

// doSignedRequest builds, signs, sends and reads one HTTP request against
// the platform API.
func (c *Client) doSignedRequest(ctx context.Context, method, path string, reqBody any) ([]byte, error) {
	var (
		bodyReader io.Reader
		bodyBytes  []byte
	)
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyBytes = jsonBody
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range c.auth.Headers(method, path, string(bodyBytes)) {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("http request: %v: %w", err, domain.ErrConnectivity)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %v: %w", err, domain.ErrConnectivity)
	}

	if err := checkStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkStatus maps non-2xx HTTP status codes onto the error taxonomy.
func checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr errorResponse
	_ = json.Unmarshal(body, &apiErr)

	switch {
	case statusCode == http.StatusNotFound:
		return fmt.Errorf("%s (%s): %w", apiErr.Message, apiErr.Code, domain.ErrNotFound)
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return fmt.Errorf("%s (%s): %w", apiErr.Message, apiErr.Code, domain.ErrUnauthorized)
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%s (%s): %w", apiErr.Message, apiErr.Code, domain.ErrRateLimited)
	case statusCode == http.StatusBadRequest || statusCode == http.StatusConflict || statusCode == http.StatusUnprocessableEntity:
		return fmt.Errorf("%s (%s): %w", apiErr.Message, apiErr.Code, domain.ErrOrderRejected)
	case statusCode >= 500:
		return fmt.Errorf("HTTP %d: %s (%s): %w", statusCode, apiErr.Message, apiErr.Code, domain.ErrConnectivity)
	default:
		return fmt.Errorf("HTTP %d: %s (%s)", statusCode, apiErr.Message, apiErr.Code)
	}
}
