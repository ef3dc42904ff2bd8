package syncer

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/abhip2006/copytrade-sub001/models"
	"github.com/abhip2006/copytrade-sub001/storage"
)

// Ingestor converts pushed trade events into pending leader trades, skipping
// polling latency for brokers that report fills.
type Ingestor struct {
	store storage.DataStore
}

// NewIngestor creates a trade event ingestor.
func NewIngestor(store storage.DataStore) *Ingestor {
	return &Ingestor{store: store}
}

// IngestTradeEvent stores a pushed trade event's fills as pending leader
// trades. Returns the number of newly queued trades; redelivered events
// insert zero rows because each fill's row ID is derived from its order ID.
func (g *Ingestor) IngestTradeEvent(ctx context.Context, event models.TradeEvent, source models.TradeSource) (int, error) {
	if event.EventType != models.EventTypeTradesPlaced {
		return 0, nil
	}
	if len(event.Trades) == 0 {
		return 0, nil
	}

	conn, err := g.resolveLeader(ctx, event.UserRef)
	if err != nil {
		return 0, err
	}
	if conn == nil {
		// Events for accounts we do not copy from are acknowledged and
		// dropped so the sender stops redelivering.
		log.Printf("[ingest] event for unknown account ref, dropping %d trades", len(event.Trades))
		return 0, nil
	}

	now := time.Now().UTC()
	trades := make([]models.LeaderTrade, 0, len(event.Trades))
	for _, t := range event.Trades {
		side := models.Side(strings.ToUpper(t.Action))
		if side != models.SideBuy && side != models.SideSell {
			log.Printf("[ingest] skipping trade with unknown action %q", t.Action)
			continue
		}
		if t.Symbol == "" || t.Quantity <= 0 {
			continue
		}

		trade := models.LeaderTrade{
			ID:         tradeIDForOrder(conn.ID, t.OrderID, t.Symbol, side),
			LeaderID:   conn.UserID,
			AccountRef: conn.AccountRef,
			Symbol:     t.Symbol,
			AssetClass: t.AssetClass,
			Side:       side,
			Quantity:   t.Quantity,
			Price:      t.Price,
			OrderType:  models.OrderTypeMarket,
			Source:     source,
			DetectedAt: now,
		}
		if !t.Timestamp.IsZero() {
			ts := t.Timestamp
			trade.ExecutedAt = &ts
			trade.DetectedAt = ts
		}
		trades = append(trades, trade)
	}
	if len(trades) == 0 {
		return 0, nil
	}

	inserted, err := g.store.SaveLeaderTrades(ctx, trades)
	if err != nil {
		return 0, fmt.Errorf("save pushed trades: %w", err)
	}
	if inserted < len(trades) {
		log.Printf("[ingest] %d of %d pushed trades were already recorded", len(trades)-inserted, len(trades))
	}
	return inserted, nil
}

// resolveLeader maps the event's opaque user ref to a leader connection.
// Returns nil without error when no leader matches.
func (g *Ingestor) resolveLeader(ctx context.Context, userRef string) (*models.BrokerageConnection, error) {
	if userRef == "" {
		return nil, nil
	}
	conns, err := g.store.ListLeaderConnections(ctx)
	if err != nil {
		return nil, fmt.Errorf("list leader connections: %w", err)
	}
	for i := range conns {
		if conns[i].UserRef == userRef {
			return &conns[i], nil
		}
	}
	return nil, nil
}

// tradeIDForOrder derives a stable UUID from the fill's identity so that
// redelivered events collide on the primary key instead of duplicating.
func tradeIDForOrder(connID, orderID, symbol string, side models.Side) string {
	if orderID == "" {
		return uuid.NewString()
	}
	name := fmt.Sprintf("%s:%s:%s:%s", connID, orderID, symbol, side)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}
