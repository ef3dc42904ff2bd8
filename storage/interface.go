package storage

import (
	"context"
	"errors"
	"time"

	"github.com/abhip2006/copytrade-sub001/models"
)

// Sentinel errors callers match with errors.Is. The Postgres store maps
// unique-constraint violations onto the duplicate sentinels so the engine
// can treat "already being processed" as a no-op skip.
var (
	ErrNotFound              = errors.New("storage: not found")
	ErrDuplicateExecution    = errors.New("storage: execution already exists for trade/relationship")
	ErrDuplicateRelationship = errors.New("storage: relationship already exists for follower/leader")
)

// DataStore defines the interface for storage backends.
type DataStore interface {
	Close() error

	// Leader accounts
	ListLeaderConnections(ctx context.Context) ([]models.BrokerageConnection, error)
	GetActiveConnection(ctx context.Context, userID string) (*models.BrokerageConnection, error)

	// Position snapshots (append-only diff baselines)
	GetLatestSnapshot(ctx context.Context, accountRef string) (*models.PositionSnapshot, error)
	SaveSnapshot(ctx context.Context, snapshot models.PositionSnapshot) error

	// Leader trades (pending queue, append-only audit trail)
	SaveLeaderTrades(ctx context.Context, trades []models.LeaderTrade) (int, error)
	ListUnprocessedTrades(ctx context.Context, limit int) ([]models.LeaderTrade, error)
	MarkTradeProcessed(ctx context.Context, tradeID string) error

	// Copy relationships
	CreateRelationship(ctx context.Context, rel models.CopyRelationship) error
	StopRelationship(ctx context.Context, id string) error
	GetRelationship(ctx context.Context, id string) (*models.CopyRelationship, error)
	ListActiveRelationshipsForLeader(ctx context.Context, leaderID string) ([]models.CopyRelationship, error)

	// Copy executions
	CreateExecution(ctx context.Context, exec models.CopyExecution) error
	UpdateExecution(ctx context.Context, exec models.CopyExecution) error
	ListExecutionsForTrade(ctx context.Context, tradeID string) ([]models.CopyExecution, error)
	ListExecutionsForFollower(ctx context.Context, followerID string, limit int) ([]models.CopyExecution, error)

	// Platform-tracked positions
	UpsertPosition(ctx context.Context, pos models.Position) error
	GetOpenPosition(ctx context.Context, ownerID, symbol string) (*models.Position, error)
	ListOpenPositionsWithTriggers(ctx context.Context) ([]models.Position, error)
	ClosePosition(ctx context.Context, positionID, reason string, exitPrice float64, closedAt time.Time) error

	// Follower recent realized loss, as a positive percent, over the window.
	GetFollowerLossPct(ctx context.Context, followerID string, window time.Duration) (float64, error)
}

// Ensure both implementations satisfy the interface.
var _ DataStore = (*PostgresStore)(nil)
var _ DataStore = (*MockStore)(nil)
