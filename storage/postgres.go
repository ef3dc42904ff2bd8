package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/abhip2006/copytrade-sub001/models"
)

const uniqueViolation = "23505"

// PostgresStore wraps PostgreSQL persistence with Redis caching.
type PostgresStore struct {
	pool  *pgxpool.Pool
	redis *redis.Client
}

// NewPostgres creates a new PostgreSQL store with connection pooling and a
// Redis cache, both configured from the environment.
func NewPostgres() (*PostgresStore, error) {
	host := getEnv("POSTGRES_HOST", "localhost")
	port := getEnv("POSTGRES_PORT", "5432")
	user := getEnv("POSTGRES_USER", "copytrade")
	password := getEnv("POSTGRES_PASSWORD", "copytrade")
	dbname := getEnv("POSTGRES_DB", "copytrade")

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
		user, password, host, port, dbname)

	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute
	config.HealthCheckPeriod = 30 * time.Second

	// Scheduler invocations are bounded; no query may outlive one.
	config.ConnConfig.RuntimeParams["statement_timeout"] = "30000"
	config.ConnConfig.RuntimeParams["lock_timeout"] = "10000"

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", getEnv("REDIS_HOST", "localhost"), getEnv("REDIS_PORT", "6379")),
		Password:     getEnv("REDIS_PASSWORD", ""),
		DB:           0,
		PoolSize:     50,
		MinIdleConns: 5,
		MaxRetries:   3,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		pool.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	return &PostgresStore{pool: pool, redis: rdb}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Close releases database connections.
func (s *PostgresStore) Close() error {
	if s.redis != nil {
		s.redis.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Redis exposes the cache client for auxiliary stores (run metrics).
func (s *PostgresStore) Redis() *redis.Client {
	return s.redis
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// ListLeaderConnections returns the active brokerage connection of every
// leader account.
func (s *PostgresStore) ListLeaderConnections(ctx context.Context) ([]models.BrokerageConnection, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.user_id, c.broker, c.account_ref, c.user_ref, c.user_secret, c.active, c.created_at
		FROM brokerage_connections c
		JOIN users u ON u.id = c.user_id
		WHERE u.is_leader AND c.active
		ORDER BY c.created_at`)
	if err != nil {
		return nil, fmt.Errorf("list leader connections: %w", err)
	}
	defer rows.Close()

	var conns []models.BrokerageConnection
	for rows.Next() {
		var c models.BrokerageConnection
		if err := rows.Scan(&c.ID, &c.UserID, &c.Broker, &c.AccountRef, &c.UserRef, &c.UserSecret, &c.Active, &c.CreatedAt); err != nil {
			return nil, err
		}
		conns = append(conns, c)
	}
	return conns, rows.Err()
}

// GetActiveConnection returns a user's active brokerage connection, or
// ErrNotFound when the connection is missing or revoked.
func (s *PostgresStore) GetActiveConnection(ctx context.Context, userID string) (*models.BrokerageConnection, error) {
	var c models.BrokerageConnection
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, broker, account_ref, user_ref, user_secret, active, created_at
		FROM brokerage_connections
		WHERE user_id = $1 AND active
		ORDER BY created_at DESC
		LIMIT 1`, userID).
		Scan(&c.ID, &c.UserID, &c.Broker, &c.AccountRef, &c.UserRef, &c.UserSecret, &c.Active, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get connection for %s: %w", userID, err)
	}
	return &c, nil
}

// GetLatestSnapshot returns the most recent position snapshot for an
// account, or ErrNotFound when the account has never been polled.
func (s *PostgresStore) GetLatestSnapshot(ctx context.Context, accountRef string) (*models.PositionSnapshot, error) {
	var snap models.PositionSnapshot
	var positionsJSON []byte
	err := s.pool.QueryRow(ctx, `
		SELECT id, account_ref, positions, captured_at
		FROM position_snapshots
		WHERE account_ref = $1
		ORDER BY captured_at DESC
		LIMIT 1`, accountRef).
		Scan(&snap.ID, &snap.AccountRef, &positionsJSON, &snap.CapturedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot for %s: %w", accountRef, err)
	}
	if err := json.Unmarshal(positionsJSON, &snap.Positions); err != nil {
		return nil, fmt.Errorf("decode snapshot for %s: %w", accountRef, err)
	}
	return &snap, nil
}

// SaveSnapshot appends a new snapshot. Snapshots are never updated in place.
func (s *PostgresStore) SaveSnapshot(ctx context.Context, snapshot models.PositionSnapshot) error {
	positionsJSON, err := json.Marshal(snapshot.Positions)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO position_snapshots (id, account_ref, positions, captured_at)
		VALUES ($1, $2, $3, $4)`,
		snapshot.ID, snapshot.AccountRef, positionsJSON, snapshot.CapturedAt)
	if err != nil {
		return fmt.Errorf("save snapshot for %s: %w", snapshot.AccountRef, err)
	}
	return nil
}

// SaveLeaderTrades appends leader trades, ignoring rows whose ID already
// exists (webhook replays). Returns the number of rows actually inserted.
func (s *PostgresStore) SaveLeaderTrades(ctx context.Context, trades []models.LeaderTrade) (int, error) {
	if len(trades) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("save trades: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	inserted := 0
	for _, t := range trades {
		tag, err := tx.Exec(ctx, `
			INSERT INTO leader_trades
				(id, leader_id, account_ref, symbol, asset_class, side, quantity, price,
				 order_type, source, is_exit, processed, detected_at, executed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			ON CONFLICT (id) DO NOTHING`,
			t.ID, t.LeaderID, t.AccountRef, t.Symbol, t.AssetClass, t.Side, t.Quantity, t.Price,
			t.OrderType, t.Source, t.IsExit, t.Processed, t.DetectedAt, t.ExecutedAt)
		if err != nil {
			return 0, fmt.Errorf("save trade %s: %w", t.ID, err)
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("save trades: commit: %w", err)
	}
	return inserted, nil
}

// ListUnprocessedTrades returns pending leader trades, oldest first.
func (s *PostgresStore) ListUnprocessedTrades(ctx context.Context, limit int) ([]models.LeaderTrade, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, leader_id, account_ref, symbol, asset_class, side, quantity, price,
		       order_type, source, is_exit, processed, detected_at, executed_at
		FROM leader_trades
		WHERE NOT processed
		ORDER BY detected_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unprocessed trades: %w", err)
	}
	defer rows.Close()
	return scanLeaderTrades(rows)
}

func scanLeaderTrades(rows pgx.Rows) ([]models.LeaderTrade, error) {
	var trades []models.LeaderTrade
	for rows.Next() {
		var t models.LeaderTrade
		if err := rows.Scan(&t.ID, &t.LeaderID, &t.AccountRef, &t.Symbol, &t.AssetClass, &t.Side,
			&t.Quantity, &t.Price, &t.OrderType, &t.Source, &t.IsExit, &t.Processed,
			&t.DetectedAt, &t.ExecutedAt); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// MarkTradeProcessed flips the processed flag after the engine has attempted
// propagation to all followers.
func (s *PostgresStore) MarkTradeProcessed(ctx context.Context, tradeID string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE leader_trades SET processed = TRUE WHERE id = $1`, tradeID)
	if err != nil {
		return fmt.Errorf("mark trade %s processed: %w", tradeID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateRelationship inserts a follower→leader subscription. The unique
// constraint on (follower_id, leader_id) surfaces as
// ErrDuplicateRelationship.
func (s *PostgresStore) CreateRelationship(ctx context.Context, rel models.CopyRelationship) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO copy_relationships
			(id, follower_id, leader_id, status, allocation_method, allocation_value,
			 max_position_size, max_risk_per_trade, asset_class_filter,
			 copy_stop_loss, copy_take_profit, stop_loss_override, take_profit_override,
			 trailing_stop, stop_copying_on_loss, created_at, stopped_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		rel.ID, rel.FollowerID, rel.LeaderID, rel.Status, rel.Method, rel.AllocationValue,
		rel.MaxPositionSize, rel.MaxRiskPerTrade, rel.AssetClassFilter,
		rel.CopyStopLoss, rel.CopyTakeProfit, rel.StopLossOverride, rel.TakeProfitOverride,
		rel.TrailingStop, rel.StopCopyingOnLoss, rel.CreatedAt, rel.StoppedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateRelationship
	}
	if err != nil {
		return fmt.Errorf("create relationship %s→%s: %w", rel.FollowerID, rel.LeaderID, err)
	}
	s.invalidateRelationshipCache(ctx, rel.LeaderID)
	return nil
}

// StopRelationship soft-deletes by transitioning status to stopped.
// Execution history is preserved; rows are never hard-deleted.
func (s *PostgresStore) StopRelationship(ctx context.Context, id string) error {
	var leaderID string
	err := s.pool.QueryRow(ctx, `
		UPDATE copy_relationships
		SET status = $1, stopped_at = NOW()
		WHERE id = $2 AND status = $3
		RETURNING leader_id`,
		models.RelationshipStopped, id, models.RelationshipActive).Scan(&leaderID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("stop relationship %s: %w", id, err)
	}
	s.invalidateRelationshipCache(ctx, leaderID)
	return nil
}

// GetRelationship loads one relationship by ID.
func (s *PostgresStore) GetRelationship(ctx context.Context, id string) (*models.CopyRelationship, error) {
	rows, err := s.pool.Query(ctx, relationshipSelect+` WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("get relationship %s: %w", id, err)
	}
	defer rows.Close()

	rels, err := scanRelationships(rows)
	if err != nil {
		return nil, err
	}
	if len(rels) == 0 {
		return nil, ErrNotFound
	}
	return &rels[0], nil
}

const relationshipSelect = `
	SELECT id, follower_id, leader_id, status, allocation_method, allocation_value,
	       max_position_size, max_risk_per_trade, asset_class_filter,
	       copy_stop_loss, copy_take_profit, stop_loss_override, take_profit_override,
	       trailing_stop, stop_copying_on_loss, created_at, stopped_at
	FROM copy_relationships`

// ListActiveRelationshipsForLeader returns every active subscription
// targeting a leader, cached briefly in Redis (the engine reads this once
// per pending trade).
func (s *PostgresStore) ListActiveRelationshipsForLeader(ctx context.Context, leaderID string) ([]models.CopyRelationship, error) {
	cacheKey := "relationships:" + leaderID
	if cached, err := s.redis.Get(ctx, cacheKey).Result(); err == nil {
		var rels []models.CopyRelationship
		if json.Unmarshal([]byte(cached), &rels) == nil {
			return rels, nil
		}
	}

	rows, err := s.pool.Query(ctx, relationshipSelect+`
		WHERE leader_id = $1 AND status = $2
		ORDER BY created_at`, leaderID, models.RelationshipActive)
	if err != nil {
		return nil, fmt.Errorf("list relationships for leader %s: %w", leaderID, err)
	}
	defer rows.Close()

	rels, err := scanRelationships(rows)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(rels); err == nil {
		s.redis.Set(ctx, cacheKey, data, 15*time.Second)
	}
	return rels, nil
}

func scanRelationships(rows pgx.Rows) ([]models.CopyRelationship, error) {
	var rels []models.CopyRelationship
	for rows.Next() {
		var r models.CopyRelationship
		if err := rows.Scan(&r.ID, &r.FollowerID, &r.LeaderID, &r.Status, &r.Method, &r.AllocationValue,
			&r.MaxPositionSize, &r.MaxRiskPerTrade, &r.AssetClassFilter,
			&r.CopyStopLoss, &r.CopyTakeProfit, &r.StopLossOverride, &r.TakeProfitOverride,
			&r.TrailingStop, &r.StopCopyingOnLoss, &r.CreatedAt, &r.StoppedAt); err != nil {
			return nil, err
		}
		rels = append(rels, r)
	}
	return rels, rows.Err()
}

// CreateExecution inserts the pending row that claims a (trade,
// relationship) pair. The unique constraint on (leader_trade_id,
// relationship_id) acts as the cross-invocation lock; a violation surfaces
// as ErrDuplicateExecution and means another invocation holds the pair.
func (s *PostgresStore) CreateExecution(ctx context.Context, exec models.CopyExecution) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO copy_executions
			(id, relationship_id, leader_trade_id, follower_id, symbol, side, quantity,
			 status, reason, executed_price, order_id, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		exec.ID, exec.RelationshipID, exec.LeaderTradeID, exec.FollowerID, exec.Symbol,
		exec.Side, exec.Quantity, exec.Status, exec.Reason, exec.ExecutedPrice,
		exec.OrderID, exec.CreatedAt, exec.CompletedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateExecution
	}
	if err != nil {
		return fmt.Errorf("create execution for trade %s: %w", exec.LeaderTradeID, err)
	}
	return nil
}

// UpdateExecution advances an execution's state. Terminal rows are left
// untouched so a crashed invocation can never overwrite an outcome.
func (s *PostgresStore) UpdateExecution(ctx context.Context, exec models.CopyExecution) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE copy_executions
		SET status = $1, reason = $2, quantity = $3, executed_price = $4,
		    order_id = $5, completed_at = $6
		WHERE id = $7 AND status IN ($8, $9)`,
		exec.Status, exec.Reason, exec.Quantity, exec.ExecutedPrice,
		exec.OrderID, exec.CompletedAt, exec.ID,
		models.ExecutionPending, models.ExecutionExecuting)
	if err != nil {
		return fmt.Errorf("update execution %s: %w", exec.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	s.redis.Del(ctx, "executions:"+exec.FollowerID)
	return nil
}

// ListExecutionsForTrade returns all execution attempts for one leader trade.
func (s *PostgresStore) ListExecutionsForTrade(ctx context.Context, tradeID string) ([]models.CopyExecution, error) {
	rows, err := s.pool.Query(ctx, executionSelect+`
		WHERE leader_trade_id = $1
		ORDER BY created_at`, tradeID)
	if err != nil {
		return nil, fmt.Errorf("list executions for trade %s: %w", tradeID, err)
	}
	defer rows.Close()
	return scanExecutions(rows)
}

const executionSelect = `
	SELECT id, relationship_id, leader_trade_id, follower_id, symbol, side, quantity,
	       status, reason, executed_price, order_id, created_at, completed_at
	FROM copy_executions`

// ListExecutionsForFollower returns a follower's recent executions with their
// reason codes (the audit trail), cached briefly in Redis.
func (s *PostgresStore) ListExecutionsForFollower(ctx context.Context, followerID string, limit int) ([]models.CopyExecution, error) {
	if limit <= 0 {
		limit = 100
	}

	cacheKey := "executions:" + followerID
	if cached, err := s.redis.Get(ctx, cacheKey).Result(); err == nil {
		var execs []models.CopyExecution
		if json.Unmarshal([]byte(cached), &execs) == nil && len(execs) >= limit {
			return execs[:limit], nil
		}
	}

	rows, err := s.pool.Query(ctx, executionSelect+`
		WHERE follower_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, followerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list executions for follower %s: %w", followerID, err)
	}
	defer rows.Close()

	execs, err := scanExecutions(rows)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(execs); err == nil {
		s.redis.Set(ctx, cacheKey, data, 30*time.Second)
	}
	return execs, nil
}

func scanExecutions(rows pgx.Rows) ([]models.CopyExecution, error) {
	var execs []models.CopyExecution
	for rows.Next() {
		var e models.CopyExecution
		if err := rows.Scan(&e.ID, &e.RelationshipID, &e.LeaderTradeID, &e.FollowerID, &e.Symbol,
			&e.Side, &e.Quantity, &e.Status, &e.Reason, &e.ExecutedPrice,
			&e.OrderID, &e.CreatedAt, &e.CompletedAt); err != nil {
			return nil, err
		}
		execs = append(execs, e)
	}
	return execs, rows.Err()
}

// UpsertPosition creates or refreshes a platform-tracked open position,
// keyed by (owner, account, symbol).
func (s *PostgresStore) UpsertPosition(ctx context.Context, pos models.Position) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO positions
			(id, owner_id, account_ref, symbol, quantity, avg_cost, current_price,
			 stop_loss, take_profit, status, exit_reason, exit_price, opened_at, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (owner_id, account_ref, symbol) WHERE status = 'open'
		DO UPDATE SET
			quantity = positions.quantity + EXCLUDED.quantity,
			avg_cost = CASE
				WHEN positions.quantity + EXCLUDED.quantity > 0 THEN
					(positions.avg_cost * positions.quantity + EXCLUDED.avg_cost * EXCLUDED.quantity)
					/ (positions.quantity + EXCLUDED.quantity)
				ELSE positions.avg_cost
			END,
			current_price = EXCLUDED.current_price,
			stop_loss = COALESCE(EXCLUDED.stop_loss, positions.stop_loss),
			take_profit = COALESCE(EXCLUDED.take_profit, positions.take_profit)`,
		pos.ID, pos.OwnerID, pos.AccountRef, pos.Symbol, pos.Quantity, pos.AvgCost,
		pos.CurrentPrice, pos.StopLoss, pos.TakeProfit, pos.Status, pos.ExitReason,
		pos.ExitPrice, pos.OpenedAt, pos.ClosedAt)
	if err != nil {
		return fmt.Errorf("upsert position %s/%s: %w", pos.OwnerID, pos.Symbol, err)
	}
	return nil
}

// GetOpenPosition returns an owner's open position in a symbol, or
// ErrNotFound.
func (s *PostgresStore) GetOpenPosition(ctx context.Context, ownerID, symbol string) (*models.Position, error) {
	var p models.Position
	err := s.pool.QueryRow(ctx, `
		SELECT id, owner_id, account_ref, symbol, quantity, avg_cost, current_price,
		       stop_loss, take_profit, status, exit_reason, exit_price, opened_at, closed_at
		FROM positions
		WHERE owner_id = $1 AND symbol = $2 AND status = $3
		LIMIT 1`, ownerID, symbol, models.PositionOpen).
		Scan(&p.ID, &p.OwnerID, &p.AccountRef, &p.Symbol, &p.Quantity, &p.AvgCost,
			&p.CurrentPrice, &p.StopLoss, &p.TakeProfit, &p.Status, &p.ExitReason,
			&p.ExitPrice, &p.OpenedAt, &p.ClosedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get open position %s/%s: %w", ownerID, symbol, err)
	}
	return &p, nil
}

// ListOpenPositionsWithTriggers returns open positions carrying at least one
// stop-loss or take-profit threshold.
func (s *PostgresStore) ListOpenPositionsWithTriggers(ctx context.Context) ([]models.Position, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, owner_id, account_ref, symbol, quantity, avg_cost, current_price,
		       stop_loss, take_profit, status, exit_reason, exit_price, opened_at, closed_at
		FROM positions
		WHERE status = $1 AND (stop_loss IS NOT NULL OR take_profit IS NOT NULL)
		ORDER BY opened_at`, models.PositionOpen)
	if err != nil {
		return nil, fmt.Errorf("list monitored positions: %w", err)
	}
	defer rows.Close()

	var positions []models.Position
	for rows.Next() {
		var p models.Position
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.AccountRef, &p.Symbol, &p.Quantity, &p.AvgCost,
			&p.CurrentPrice, &p.StopLoss, &p.TakeProfit, &p.Status, &p.ExitReason,
			&p.ExitPrice, &p.OpenedAt, &p.ClosedAt); err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// ClosePosition marks a position closed with its exit detail. Only open
// positions transition; a concurrent close is a no-op reported as ErrNotFound.
func (s *PostgresStore) ClosePosition(ctx context.Context, positionID, reason string, exitPrice float64, closedAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE positions
		SET status = $1, exit_reason = $2, exit_price = $3, closed_at = $4
		WHERE id = $5 AND status = $6`,
		models.PositionClosed, reason, exitPrice, closedAt, positionID, models.PositionOpen)
	if err != nil {
		return fmt.Errorf("close position %s: %w", positionID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetFollowerLossPct computes the follower's realized loss over the window
// as a positive percent of invested capital. Returns 0 when flat or up.
func (s *PostgresStore) GetFollowerLossPct(ctx context.Context, followerID string, window time.Duration) (float64, error) {
	var pnl, invested float64
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM((exit_price - avg_cost) * quantity), 0),
		       COALESCE(SUM(avg_cost * quantity), 0)
		FROM positions
		WHERE owner_id = $1 AND status = $2 AND closed_at >= $3`,
		followerID, models.PositionClosed, time.Now().Add(-window)).
		Scan(&pnl, &invested)
	if err != nil {
		return 0, fmt.Errorf("follower loss for %s: %w", followerID, err)
	}
	if invested <= 0 || pnl >= 0 {
		return 0, nil
	}
	return -pnl / invested * 100, nil
}

func (s *PostgresStore) invalidateRelationshipCache(ctx context.Context, leaderID string) {
	s.redis.Del(ctx, "relationships:"+leaderID)
}
