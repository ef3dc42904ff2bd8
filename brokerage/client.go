// Package brokerage wraps the third-party brokerage aggregation API.
// All core logic depends on the narrow Client interface and the typed
// structs below; nothing outside this package sees the wire format.
package brokerage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/abhip2006/copytrade-sub001/models"
)

// Credentials is the opaque per-user token pair issued by the aggregator.
type Credentials struct {
	UserRef    string
	UserSecret string
}

// CredentialsFor extracts credential material from a brokerage connection.
func CredentialsFor(conn models.BrokerageConnection) Credentials {
	return Credentials{UserRef: conn.UserRef, UserSecret: conn.UserSecret}
}

// RawPosition is one holding as reported by the aggregation API.
type RawPosition struct {
	Symbol     string  `json:"symbol"`
	SymbolID   string  `json:"symbol_id"`
	AssetClass string  `json:"asset_class"`
	Quantity   float64 `json:"units"`
	Price      float64 `json:"price"`
}

// AccountBalance is the total account value used for allocation sizing.
type AccountBalance struct {
	TotalValue float64 `json:"total_value"`
	Cash       float64 `json:"cash"`
	Currency   string  `json:"currency"`
}

// Quote is a last-trade quote for a symbol.
type Quote struct {
	Symbol    string  `json:"symbol"`
	LastPrice float64 `json:"last_trade_price"`
	Bid       float64 `json:"bid_price"`
	Ask       float64 `json:"ask_price"`
}

// ImpactRequest describes the order to validate before submission.
type ImpactRequest struct {
	AccountRef  string           `json:"account_id"`
	Symbol      string           `json:"universal_symbol_id"`
	Side        models.Side      `json:"action"`
	OrderType   models.OrderType `json:"order_type"`
	Quantity    float64          `json:"units"`
	TimeInForce string           `json:"time_in_force"`
}

// ImpactResult carries the trade reference used to place the order.
type ImpactResult struct {
	TradeID             string  `json:"trade_id"`
	EstimatedPrice      float64 `json:"price"`
	EstimatedValue      float64 `json:"trade_value"`
	RemainingCash       float64 `json:"remaining_cash"`
	EstimatedCommission float64 `json:"estimated_commissions"`
}

// OrderResult is the confirmed (or rejected) order outcome.
type OrderResult struct {
	OrderID       string  `json:"brokerage_order_id"`
	Status        string  `json:"status"`
	ExecutedPrice float64 `json:"execution_price"`
	FilledUnits   float64 `json:"filled_units"`
}

// APIError is a non-2xx response from the aggregator.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("brokerage api: status %d: %s", e.StatusCode, e.Body)
}

// HTTPClient talks to the brokerage aggregation API over HTTPS.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates an aggregation API client. requestTimeout bounds every
// call; no request may block past it.
func NewClient(baseURL string, requestTimeout time.Duration) *HTTPClient {
	if requestTimeout <= 0 {
		requestTimeout = 15 * time.Second
	}
	return &HTTPClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

// GetAccountPositions returns the current holdings for an account.
func (c *HTTPClient) GetAccountPositions(ctx context.Context, creds Credentials, accountRef string) ([]RawPosition, error) {
	var positions []RawPosition
	path := fmt.Sprintf("/accounts/%s/positions", url.PathEscape(accountRef))
	if err := c.doJSON(ctx, http.MethodGet, path, creds, nil, &positions); err != nil {
		return nil, fmt.Errorf("get positions for %s: %w", accountRef, err)
	}
	return positions, nil
}

// GetAccountBalance returns the total account value.
func (c *HTTPClient) GetAccountBalance(ctx context.Context, creds Credentials, accountRef string) (*AccountBalance, error) {
	var balance AccountBalance
	path := fmt.Sprintf("/accounts/%s/balances", url.PathEscape(accountRef))
	if err := c.doJSON(ctx, http.MethodGet, path, creds, nil, &balance); err != nil {
		return nil, fmt.Errorf("get balance for %s: %w", accountRef, err)
	}
	return &balance, nil
}

// GetSymbolQuote returns the latest quote for a symbol on an account's
// brokerage.
func (c *HTTPClient) GetSymbolQuote(ctx context.Context, creds Credentials, accountRef, symbol string) (*Quote, error) {
	var quotes []Quote
	path := fmt.Sprintf("/accounts/%s/quotes?symbols=%s", url.PathEscape(accountRef), url.QueryEscape(symbol))
	if err := c.doJSON(ctx, http.MethodGet, path, creds, nil, &quotes); err != nil {
		return nil, fmt.Errorf("get quote for %s: %w", symbol, err)
	}
	if len(quotes) == 0 {
		return nil, fmt.Errorf("get quote for %s: empty response", symbol)
	}
	return &quotes[0], nil
}

// CheckTradeImpact validates and prices an order before submission. The
// returned TradeID is required by PlaceOrder.
func (c *HTTPClient) CheckTradeImpact(ctx context.Context, creds Credentials, req ImpactRequest) (*ImpactResult, error) {
	if req.TimeInForce == "" {
		req.TimeInForce = "Day"
	}
	var result ImpactResult
	if err := c.doJSON(ctx, http.MethodPost, "/trade/impact", creds, req, &result); err != nil {
		return nil, fmt.Errorf("check impact %s %s: %w", req.Side, req.Symbol, err)
	}
	if result.TradeID == "" {
		return nil, fmt.Errorf("check impact %s %s: no trade id returned", req.Side, req.Symbol)
	}
	return &result, nil
}

// PlaceOrder submits a previously impact-checked trade.
func (c *HTTPClient) PlaceOrder(ctx context.Context, creds Credentials, tradeID string, waitForConfirmation bool) (*OrderResult, error) {
	var result OrderResult
	path := fmt.Sprintf("/trade/%s?wait_to_confirm=%t", url.PathEscape(tradeID), waitForConfirmation)
	if err := c.doJSON(ctx, http.MethodPost, path, creds, nil, &result); err != nil {
		return nil, fmt.Errorf("place order %s: %w", tradeID, err)
	}
	return &result, nil
}

func (c *HTTPClient) doJSON(ctx context.Context, method, path string, creds Credentials, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	// Opaque credential pair; never logged, never parsed.
	req.Header.Set("X-User-Id", creds.UserRef)
	req.Header.Set("X-User-Secret", creds.UserSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
