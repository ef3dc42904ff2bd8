package brokerage

import (
	"context"
	"sync"
)

// Client defines the aggregation API methods the core depends on.
// This interface enables dependency injection for testing.
type Client interface {
	GetAccountPositions(ctx context.Context, creds Credentials, accountRef string) ([]RawPosition, error)
	GetAccountBalance(ctx context.Context, creds Credentials, accountRef string) (*AccountBalance, error)
	GetSymbolQuote(ctx context.Context, creds Credentials, accountRef, symbol string) (*Quote, error)
	CheckTradeImpact(ctx context.Context, creds Credentials, req ImpactRequest) (*ImpactResult, error)
	PlaceOrder(ctx context.Context, creds Credentials, tradeID string, waitForConfirmation bool) (*OrderResult, error)
}

// Ensure both implementations satisfy the interface.
var _ Client = (*HTTPClient)(nil)
var _ Client = (*MockClient)(nil)

// PlaceOrderCall records a call to PlaceOrder for test assertions.
type PlaceOrderCall struct {
	Creds               Credentials
	TradeID             string
	WaitForConfirmation bool
}

// ImpactCall records a call to CheckTradeImpact.
type ImpactCall struct {
	Creds   Credentials
	Request ImpactRequest
}

// MockClient is a mock aggregation API client for testing.
type MockClient struct {
	mu sync.RWMutex

	// Response data, keyed by accountRef where it matters
	Positions map[string][]RawPosition
	Balances  map[string]*AccountBalance
	Quotes    map[string]*Quote // keyed by symbol
	Impact    *ImpactResult
	Order     *OrderResult

	// Call tracking for assertions
	Calls       map[string]int
	ImpactCalls []ImpactCall
	OrderCalls  []PlaceOrderCall

	// Error injection for testing error paths
	ErrorOnNext map[string]error

	// Per-account error injection (e.g. one leader's brokerage is down)
	ErrorForAccount map[string]error
}

// NewMockClient creates a new mock brokerage client.
func NewMockClient() *MockClient {
	return &MockClient{
		Positions:       make(map[string][]RawPosition),
		Balances:        make(map[string]*AccountBalance),
		Quotes:          make(map[string]*Quote),
		Calls:           make(map[string]int),
		ErrorOnNext:     make(map[string]error),
		ErrorForAccount: make(map[string]error),
	}
}

func (m *MockClient) trackCall(name string) error {
	m.Calls[name]++
	if err, ok := m.ErrorOnNext[name]; ok {
		delete(m.ErrorOnNext, name)
		return err
	}
	return nil
}

func (m *MockClient) GetAccountPositions(ctx context.Context, creds Credentials, accountRef string) ([]RawPosition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("GetAccountPositions"); err != nil {
		return nil, err
	}
	if err, ok := m.ErrorForAccount[accountRef]; ok {
		return nil, err
	}
	return m.Positions[accountRef], nil
}

func (m *MockClient) GetAccountBalance(ctx context.Context, creds Credentials, accountRef string) (*AccountBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("GetAccountBalance"); err != nil {
		return nil, err
	}
	if err, ok := m.ErrorForAccount[accountRef]; ok {
		return nil, err
	}
	if b, ok := m.Balances[accountRef]; ok {
		return b, nil
	}
	return &AccountBalance{TotalValue: 10000, Cash: 10000, Currency: "USD"}, nil
}

func (m *MockClient) GetSymbolQuote(ctx context.Context, creds Credentials, accountRef, symbol string) (*Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("GetSymbolQuote"); err != nil {
		return nil, err
	}
	if q, ok := m.Quotes[symbol]; ok {
		return q, nil
	}
	return &Quote{Symbol: symbol, LastPrice: 100}, nil
}

func (m *MockClient) CheckTradeImpact(ctx context.Context, creds Credentials, req ImpactRequest) (*ImpactResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("CheckTradeImpact"); err != nil {
		return nil, err
	}
	if err, ok := m.ErrorForAccount[req.AccountRef]; ok {
		return nil, err
	}
	m.ImpactCalls = append(m.ImpactCalls, ImpactCall{Creds: creds, Request: req})
	if m.Impact != nil {
		return m.Impact, nil
	}
	return &ImpactResult{TradeID: "impact-trade-1", EstimatedPrice: 100}, nil
}

func (m *MockClient) PlaceOrder(ctx context.Context, creds Credentials, tradeID string, waitForConfirmation bool) (*OrderResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("PlaceOrder"); err != nil {
		return nil, err
	}
	m.OrderCalls = append(m.OrderCalls, PlaceOrderCall{Creds: creds, TradeID: tradeID, WaitForConfirmation: waitForConfirmation})
	if m.Order != nil {
		return m.Order, nil
	}
	return &OrderResult{OrderID: "order-1", Status: "EXECUTED", ExecutedPrice: 100}, nil
}
