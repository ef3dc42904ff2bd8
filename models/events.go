package models

import "time"

// TradeEvent is a validated, already-authenticated push payload from the
// aggregation API (webhook or activity stream). Signature verification and
// raw payload parsing happen upstream; the core only sees this typed form.
type TradeEvent struct {
	EventType string       `json:"event_type"`
	UserRef   string       `json:"user_ref"`
	Trades    []EventTrade `json:"trades"`
}

// EventTrade is one executed trade inside a TradeEvent.
type EventTrade struct {
	Symbol     string    `json:"symbol"`
	AssetClass string    `json:"asset_class"`
	Action     string    `json:"action"` // BUY or SELL
	Quantity   float64   `json:"quantity"`
	Price      float64   `json:"price"`
	OrderID    string    `json:"order_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// EventTypeTradesPlaced is the only event type the ingest path acts on.
const EventTypeTradesPlaced = "TRADES_PLACED"
