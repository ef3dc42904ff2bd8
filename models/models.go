package models

import "time"

// Side of a trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType is the brokerage order type used to replicate a trade.
type OrderType string

const (
	OrderTypeMarket OrderType = "Market"
	OrderTypeLimit  OrderType = "Limit"
)

// TradeSource records how a leader trade entered the pipeline.
type TradeSource string

const (
	SourcePoll    TradeSource = "poll"
	SourceWebhook TradeSource = "webhook"
	SourceStream  TradeSource = "stream"
)

// AllocationMethod determines how a follower's order is sized.
type AllocationMethod string

const (
	AllocFixedPercent AllocationMethod = "fixed_percent"
	AllocFixedDollar  AllocationMethod = "fixed_dollar"
	AllocProportional AllocationMethod = "proportional"
)

// RelationshipStatus is the lifecycle state of a copy relationship.
// Relationships are never hard-deleted; stopping preserves execution history.
type RelationshipStatus string

const (
	RelationshipActive  RelationshipStatus = "active"
	RelationshipStopped RelationshipStatus = "stopped"
)

// ExecutionStatus is the per-(trade, relationship) state machine.
// Terminal states (success, failed, skipped) are immutable.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionExecuting ExecutionStatus = "executing"
	ExecutionSuccess   ExecutionStatus = "success"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionSkipped   ExecutionStatus = "skipped"
)

// PositionStatus for platform-tracked positions.
type PositionStatus string

const (
	PositionOpen   PositionStatus = "open"
	PositionClosed PositionStatus = "closed"
)

// Skip/exit reason codes surfaced on CopyExecution and Position rows.
const (
	ReasonRelationshipStopped = "relationship_stopped"
	ReasonAssetClassFilter    = "asset_class_filter"
	ReasonLossLimitReached    = "loss_limit_reached"
	ReasonNoConnection        = "no_brokerage_connection"
	ReasonSizeTooSmall        = "size_too_small"
	ReasonDuplicate           = "duplicate_execution"

	ExitReasonStopLoss   = "stop_loss"
	ExitReasonTakeProfit = "take_profit"
	ExitReasonLeaderExit = "leader_exit"
)

// User is a platform account. A user can lead, follow, or both.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	IsLeader  bool      `json:"is_leader"`
	CreatedAt time.Time `json:"created_at"`
}

// BrokerageConnection links a user to an account at the aggregation API.
// UserRef/UserSecret are opaque credential material resolved externally;
// this core never interprets their contents.
type BrokerageConnection struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Broker     string    `json:"broker"`
	AccountRef string    `json:"account_ref"`
	UserRef    string    `json:"-"`
	UserSecret string    `json:"-"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}

// LeaderTrade is one detected or reported trade event from a leader account.
// Rows are append-only; Processed flips to true once the engine has attempted
// propagation to all followers.
type LeaderTrade struct {
	ID         string      `json:"id"`
	LeaderID   string      `json:"leader_id"`
	AccountRef string      `json:"account_ref"`
	Symbol     string      `json:"symbol"`
	AssetClass string      `json:"asset_class"`
	Side       Side        `json:"side"`
	Quantity   float64     `json:"quantity"`
	Price      float64     `json:"price,omitempty"` // 0 when unknown at detection time
	OrderType  OrderType   `json:"order_type"`
	Source     TradeSource `json:"source"`
	IsExit     bool        `json:"is_exit"`
	Processed  bool        `json:"processed"`
	DetectedAt time.Time   `json:"detected_at"`
	ExecutedAt *time.Time  `json:"executed_at,omitempty"`
}

// PositionSnapshot is a point-in-time symbol→signed-quantity map for one
// brokerage account. Snapshots are appended, never updated in place.
type PositionSnapshot struct {
	ID         string             `json:"id"`
	AccountRef string             `json:"account_ref"`
	Positions  map[string]float64 `json:"positions"`
	CapturedAt time.Time          `json:"captured_at"`
}

// CopyRelationship is a directed follower→leader subscription.
// At most one relationship exists per (follower, leader) pair.
type CopyRelationship struct {
	ID              string             `json:"id"`
	FollowerID      string             `json:"follower_id"`
	LeaderID        string             `json:"leader_id"`
	Status          RelationshipStatus `json:"status"`
	Method          AllocationMethod   `json:"allocation_method"`
	AllocationValue float64            `json:"allocation_value"`

	MaxPositionSize  *float64 `json:"max_position_size,omitempty"`
	MaxRiskPerTrade  *float64 `json:"max_risk_per_trade,omitempty"` // percent of portfolio
	AssetClassFilter string   `json:"asset_class_filter,omitempty"` // empty = all classes

	CopyStopLoss       bool     `json:"copy_stop_loss"`
	CopyTakeProfit     bool     `json:"copy_take_profit"`
	StopLossOverride   *float64 `json:"stop_loss_override,omitempty"`   // percent below entry
	TakeProfitOverride *float64 `json:"take_profit_override,omitempty"` // percent above entry
	TrailingStop       bool     `json:"trailing_stop"`
	StopCopyingOnLoss  *float64 `json:"stop_copying_on_loss,omitempty"` // percent recent drawdown

	CreatedAt time.Time  `json:"created_at"`
	StoppedAt *time.Time `json:"stopped_at,omitempty"`
}

// CopyExecution is one attempt to replicate a LeaderTrade for one follower.
// At most one row exists per (leader_trade, relationship) pair.
type CopyExecution struct {
	ID             string          `json:"id"`
	RelationshipID string          `json:"relationship_id"`
	LeaderTradeID  string          `json:"leader_trade_id"`
	FollowerID     string          `json:"follower_id"`
	Symbol         string          `json:"symbol"`
	Side           Side            `json:"side"`
	Quantity       float64         `json:"quantity"`
	Status         ExecutionStatus `json:"status"`
	Reason         string          `json:"reason,omitempty"`
	ExecutedPrice  float64         `json:"executed_price,omitempty"`
	OrderID        string          `json:"order_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

// Position is a platform-tracked open holding with optional stop-loss /
// take-profit thresholds (distinct from brokerage-native stop orders).
type Position struct {
	ID           string         `json:"id"`
	OwnerID      string         `json:"owner_id"`
	AccountRef   string         `json:"account_ref"`
	Symbol       string         `json:"symbol"`
	Quantity     float64        `json:"quantity"`
	AvgCost      float64        `json:"avg_cost"`
	CurrentPrice float64        `json:"current_price"`
	StopLoss     *float64       `json:"stop_loss,omitempty"`
	TakeProfit   *float64       `json:"take_profit,omitempty"`
	Status       PositionStatus `json:"status"`
	ExitReason   string         `json:"exit_reason,omitempty"`
	ExitPrice    float64        `json:"exit_price,omitempty"`
	OpenedAt     time.Time      `json:"opened_at"`
	ClosedAt     *time.Time     `json:"closed_at,omitempty"`
}

// DetectionSummary is the result of one PollAllLeaders invocation.
type DetectionSummary struct {
	LeadersPolled  int       `json:"leaders_polled"`
	TradesDetected int       `json:"trades_detected"`
	Failures       int       `json:"failures"`
	StartedAt      time.Time `json:"started_at"`
	DurationMS     int64     `json:"duration_ms"`
}

// ProcessSummary is the result of one ProcessAllPendingTrades invocation.
type ProcessSummary struct {
	TradesProcessed int       `json:"trades_processed"`
	Attempted       int       `json:"attempted"`
	Succeeded       int       `json:"succeeded"`
	Failed          int       `json:"failed"`
	Skipped         int       `json:"skipped"`
	StartedAt       time.Time `json:"started_at"`
	DurationMS      int64     `json:"duration_ms"`
}

// PositionCheckDetail is one monitored position's outcome within a cycle.
type PositionCheckDetail struct {
	PositionID string  `json:"position_id"`
	Symbol     string  `json:"symbol"`
	Triggered  bool    `json:"triggered"`
	Reason     string  `json:"reason,omitempty"`
	Price      float64 `json:"price,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// MonitorSummary is the result of one MonitorAllPositions invocation.
type MonitorSummary struct {
	Checked    int                   `json:"checked"`
	Triggered  int                   `json:"triggered"`
	Closed     int                   `json:"closed"`
	Failed     int                   `json:"failed"`
	Details    []PositionCheckDetail `json:"details,omitempty"`
	StartedAt  time.Time             `json:"started_at"`
	DurationMS int64                 `json:"duration_ms"`
}
