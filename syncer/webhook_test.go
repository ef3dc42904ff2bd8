package syncer

import (
	"context"
	"testing"
	"time"

	"github.com/abhip2006/copytrade-sub001/models"
	"github.com/abhip2006/copytrade-sub001/storage"
)

func tradesPlacedEvent(userRef string, trades ...models.EventTrade) models.TradeEvent {
	return models.TradeEvent{
		EventType: models.EventTypeTradesPlaced,
		UserRef:   userRef,
		Trades:    trades,
	}
}

func TestIngestTradeEvent(t *testing.T) {
	store := storage.NewMockStore()
	conn := newTestLeader(store, "leader-1", "acct-1")
	g := NewIngestor(store)

	event := tradesPlacedEvent(conn.UserRef,
		models.EventTrade{
			Symbol:     "AAPL",
			AssetClass: "equity",
			Action:     "BUY",
			Quantity:   25,
			Price:      150,
			OrderID:    "bo-1",
			Timestamp:  time.Now().UTC(),
		},
		models.EventTrade{
			Symbol:   "TSLA",
			Action:   "sell",
			Quantity: 5,
			Price:    200,
			OrderID:  "bo-2",
		},
	)

	queued, err := g.IngestTradeEvent(context.Background(), event, models.SourceWebhook)
	if err != nil {
		t.Fatalf("IngestTradeEvent() error = %v", err)
	}
	if queued != 2 {
		t.Fatalf("queued = %d, want 2", queued)
	}

	for _, trade := range store.Trades {
		if trade.LeaderID != "leader-1" || trade.AccountRef != "acct-1" {
			t.Errorf("trade attribution = %s/%s, want leader-1/acct-1", trade.LeaderID, trade.AccountRef)
		}
		if trade.Source != models.SourceWebhook {
			t.Errorf("trade source = %s, want webhook", trade.Source)
		}
		if trade.Processed {
			t.Error("pushed trade arrived already processed")
		}
	}
}

func TestIngestTradeEventRedeliveryIsIdempotent(t *testing.T) {
	store := storage.NewMockStore()
	conn := newTestLeader(store, "leader-1", "acct-1")
	g := NewIngestor(store)

	event := tradesPlacedEvent(conn.UserRef, models.EventTrade{
		Symbol:   "AAPL",
		Action:   "BUY",
		Quantity: 25,
		Price:    150,
		OrderID:  "bo-1",
	})

	first, err := g.IngestTradeEvent(context.Background(), event, models.SourceWebhook)
	if err != nil {
		t.Fatalf("first delivery error = %v", err)
	}
	second, err := g.IngestTradeEvent(context.Background(), event, models.SourceWebhook)
	if err != nil {
		t.Fatalf("redelivery error = %v", err)
	}

	if first != 1 || second != 0 {
		t.Errorf("queued = %d then %d, want 1 then 0", first, second)
	}
	if len(store.Trades) != 1 {
		t.Errorf("%d trades stored after redelivery, want 1", len(store.Trades))
	}
}

func TestIngestTradeEventUnknownAccountDropped(t *testing.T) {
	store := storage.NewMockStore()
	newTestLeader(store, "leader-1", "acct-1")
	g := NewIngestor(store)

	event := tradesPlacedEvent("ref-somebody-else", models.EventTrade{
		Symbol:   "AAPL",
		Action:   "BUY",
		Quantity: 25,
		OrderID:  "bo-1",
	})

	queued, err := g.IngestTradeEvent(context.Background(), event, models.SourceWebhook)
	if err != nil {
		t.Fatalf("IngestTradeEvent() error = %v", err)
	}
	if queued != 0 || len(store.Trades) != 0 {
		t.Errorf("queued %d trades for unknown account, want 0", queued)
	}
}

func TestIngestTradeEventIgnoresOtherEventTypes(t *testing.T) {
	store := storage.NewMockStore()
	conn := newTestLeader(store, "leader-1", "acct-1")
	g := NewIngestor(store)

	event := models.TradeEvent{
		EventType: "ACCOUNT_UPDATED",
		UserRef:   conn.UserRef,
		Trades:    []models.EventTrade{{Symbol: "AAPL", Action: "BUY", Quantity: 1}},
	}

	queued, err := g.IngestTradeEvent(context.Background(), event, models.SourceWebhook)
	if err != nil {
		t.Fatalf("IngestTradeEvent() error = %v", err)
	}
	if queued != 0 || len(store.Trades) != 0 {
		t.Errorf("queued %d trades for non-trade event, want 0", queued)
	}
}

func TestIngestTradeEventSkipsMalformedFills(t *testing.T) {
	store := storage.NewMockStore()
	conn := newTestLeader(store, "leader-1", "acct-1")
	g := NewIngestor(store)

	event := tradesPlacedEvent(conn.UserRef,
		models.EventTrade{Symbol: "AAPL", Action: "HOLD", Quantity: 5, OrderID: "bo-1"},
		models.EventTrade{Symbol: "", Action: "BUY", Quantity: 5, OrderID: "bo-2"},
		models.EventTrade{Symbol: "TSLA", Action: "BUY", Quantity: 0, OrderID: "bo-3"},
		models.EventTrade{Symbol: "MSFT", Action: "BUY", Quantity: 5, Price: 400, OrderID: "bo-4"},
	)

	queued, err := g.IngestTradeEvent(context.Background(), event, models.SourceWebhook)
	if err != nil {
		t.Fatalf("IngestTradeEvent() error = %v", err)
	}
	if queued != 1 {
		t.Fatalf("queued = %d, want only the valid fill", queued)
	}
	for _, trade := range store.Trades {
		if trade.Symbol != "MSFT" {
			t.Errorf("stored trade symbol = %s, want MSFT", trade.Symbol)
		}
	}
}
