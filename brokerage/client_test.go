package brokerage

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/abhip2006/copytrade-sub001/models"
)

func TestGetAccountPositionsSendsCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/accounts/acct-1/positions" {
			t.Errorf("path = %s, want /accounts/acct-1/positions", r.URL.Path)
		}
		if got := r.Header.Get("X-User-Id"); got != "user-ref" {
			t.Errorf("X-User-Id = %q, want user-ref", got)
		}
		if got := r.Header.Get("X-User-Secret"); got != "user-secret" {
			t.Errorf("X-User-Secret = %q, want user-secret", got)
		}
		json.NewEncoder(w).Encode([]RawPosition{
			{Symbol: "AAPL", AssetClass: "equity", Quantity: 100, Price: 150},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	creds := Credentials{UserRef: "user-ref", UserSecret: "user-secret"}

	positions, err := client.GetAccountPositions(context.Background(), creds, "acct-1")
	if err != nil {
		t.Fatalf("GetAccountPositions() error = %v", err)
	}
	if len(positions) != 1 || positions[0].Symbol != "AAPL" || positions[0].Quantity != 100 {
		t.Errorf("positions = %+v, want one AAPL x100", positions)
	}
}

func TestCheckTradeImpactRequiresTradeID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ImpactResult{EstimatedPrice: 100})
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	_, err := client.CheckTradeImpact(context.Background(), Credentials{}, ImpactRequest{
		AccountRef: "acct-1",
		Symbol:     "AAPL",
		Side:       models.SideBuy,
		OrderType:  models.OrderTypeMarket,
		Quantity:   10,
	})
	if err == nil {
		t.Fatal("CheckTradeImpact() expected error for missing trade id")
	}
}

func TestCheckTradeImpactDefaultsTimeInForce(t *testing.T) {
	var received ImpactRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		json.NewEncoder(w).Encode(ImpactResult{TradeID: "trade-1", EstimatedPrice: 100})
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	result, err := client.CheckTradeImpact(context.Background(), Credentials{}, ImpactRequest{
		AccountRef: "acct-1",
		Symbol:     "AAPL",
		Side:       models.SideBuy,
		OrderType:  models.OrderTypeMarket,
		Quantity:   10,
	})
	if err != nil {
		t.Fatalf("CheckTradeImpact() error = %v", err)
	}
	if result.TradeID != "trade-1" {
		t.Errorf("TradeID = %q, want trade-1", result.TradeID)
	}
	if received.TimeInForce != "Day" {
		t.Errorf("TimeInForce = %q, want Day", received.TimeInForce)
	}
}

func TestAPIErrorOnNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"detail":"account disabled"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	_, err := client.GetAccountBalance(context.Background(), Credentials{}, "acct-1")
	if err == nil {
		t.Fatal("GetAccountBalance() expected error")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusForbidden {
		t.Errorf("StatusCode = %d, want 403", apiErr.StatusCode)
	}
}

func TestGetSymbolQuoteEmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]Quote{})
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	if _, err := client.GetSymbolQuote(context.Background(), Credentials{}, "acct-1", "AAPL"); err == nil {
		t.Fatal("GetSymbolQuote() expected error for empty quote list")
	}
}
