package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/abhip2006/copytrade-sub001/models"
)

// MockStore is an in-memory DataStore for testing. It enforces the same
// uniqueness invariants as the Postgres store so idempotency tests exercise
// the real contract.
type MockStore struct {
	mu sync.RWMutex

	// Storage maps
	Users         map[string]models.User
	Connections   map[string]models.BrokerageConnection // keyed by user ID
	Snapshots     map[string][]models.PositionSnapshot  // keyed by account ref, append order
	Trades        map[string]models.LeaderTrade
	Relationships map[string]models.CopyRelationship
	Executions    map[string]models.CopyExecution // keyed by execution ID
	Positions     map[string]models.Position
	LossPct       map[string]float64 // follower ID -> recent loss percent

	// Call tracking for assertions
	Calls map[string]int

	// Error injection for testing error paths
	ErrorOnNext map[string]error
}

// NewMockStore creates a new mock store.
func NewMockStore() *MockStore {
	return &MockStore{
		Users:         make(map[string]models.User),
		Connections:   make(map[string]models.BrokerageConnection),
		Snapshots:     make(map[string][]models.PositionSnapshot),
		Trades:        make(map[string]models.LeaderTrade),
		Relationships: make(map[string]models.CopyRelationship),
		Executions:    make(map[string]models.CopyExecution),
		Positions:     make(map[string]models.Position),
		LossPct:       make(map[string]float64),
		Calls:         make(map[string]int),
		ErrorOnNext:   make(map[string]error),
	}
}

func (m *MockStore) trackCall(name string) error {
	m.Calls[name]++
	if err, ok := m.ErrorOnNext[name]; ok {
		delete(m.ErrorOnNext, name)
		return err
	}
	return nil
}

func (m *MockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trackCall("Close")
}

func (m *MockStore) ListLeaderConnections(ctx context.Context) ([]models.BrokerageConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("ListLeaderConnections"); err != nil {
		return nil, err
	}
	var conns []models.BrokerageConnection
	for _, c := range m.Connections {
		u, ok := m.Users[c.UserID]
		if ok && u.IsLeader && c.Active {
			conns = append(conns, c)
		}
	}
	sort.Slice(conns, func(i, j int) bool { return conns[i].UserID < conns[j].UserID })
	return conns, nil
}

func (m *MockStore) GetActiveConnection(ctx context.Context, userID string) (*models.BrokerageConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("GetActiveConnection"); err != nil {
		return nil, err
	}
	c, ok := m.Connections[userID]
	if !ok || !c.Active {
		return nil, ErrNotFound
	}
	conn := c
	return &conn, nil
}

func (m *MockStore) GetLatestSnapshot(ctx context.Context, accountRef string) (*models.PositionSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("GetLatestSnapshot"); err != nil {
		return nil, err
	}
	snaps := m.Snapshots[accountRef]
	if len(snaps) == 0 {
		return nil, ErrNotFound
	}
	snap := snaps[len(snaps)-1]
	return &snap, nil
}

func (m *MockStore) SaveSnapshot(ctx context.Context, snapshot models.PositionSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("SaveSnapshot"); err != nil {
		return err
	}
	m.Snapshots[snapshot.AccountRef] = append(m.Snapshots[snapshot.AccountRef], snapshot)
	return nil
}

func (m *MockStore) SaveLeaderTrades(ctx context.Context, trades []models.LeaderTrade) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("SaveLeaderTrades"); err != nil {
		return 0, err
	}
	inserted := 0
	for _, t := range trades {
		if _, exists := m.Trades[t.ID]; exists {
			continue
		}
		m.Trades[t.ID] = t
		inserted++
	}
	return inserted, nil
}

func (m *MockStore) ListUnprocessedTrades(ctx context.Context, limit int) ([]models.LeaderTrade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("ListUnprocessedTrades"); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	var trades []models.LeaderTrade
	for _, t := range m.Trades {
		if !t.Processed {
			trades = append(trades, t)
		}
	}
	sort.Slice(trades, func(i, j int) bool { return trades[i].DetectedAt.Before(trades[j].DetectedAt) })
	if len(trades) > limit {
		trades = trades[:limit]
	}
	return trades, nil
}

func (m *MockStore) MarkTradeProcessed(ctx context.Context, tradeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("MarkTradeProcessed"); err != nil {
		return err
	}
	t, ok := m.Trades[tradeID]
	if !ok {
		return ErrNotFound
	}
	t.Processed = true
	m.Trades[tradeID] = t
	return nil
}

func (m *MockStore) CreateRelationship(ctx context.Context, rel models.CopyRelationship) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("CreateRelationship"); err != nil {
		return err
	}
	for _, existing := range m.Relationships {
		if existing.FollowerID == rel.FollowerID && existing.LeaderID == rel.LeaderID {
			return ErrDuplicateRelationship
		}
	}
	m.Relationships[rel.ID] = rel
	return nil
}

func (m *MockStore) StopRelationship(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("StopRelationship"); err != nil {
		return err
	}
	rel, ok := m.Relationships[id]
	if !ok || rel.Status != models.RelationshipActive {
		return ErrNotFound
	}
	now := time.Now()
	rel.Status = models.RelationshipStopped
	rel.StoppedAt = &now
	m.Relationships[id] = rel
	return nil
}

func (m *MockStore) GetRelationship(ctx context.Context, id string) (*models.CopyRelationship, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("GetRelationship"); err != nil {
		return nil, err
	}
	rel, ok := m.Relationships[id]
	if !ok {
		return nil, ErrNotFound
	}
	r := rel
	return &r, nil
}

func (m *MockStore) ListActiveRelationshipsForLeader(ctx context.Context, leaderID string) ([]models.CopyRelationship, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("ListActiveRelationshipsForLeader"); err != nil {
		return nil, err
	}
	var rels []models.CopyRelationship
	for _, r := range m.Relationships {
		if r.LeaderID == leaderID && r.Status == models.RelationshipActive {
			rels = append(rels, r)
		}
	}
	sort.Slice(rels, func(i, j int) bool { return rels[i].ID < rels[j].ID })
	return rels, nil
}

func (m *MockStore) CreateExecution(ctx context.Context, exec models.CopyExecution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("CreateExecution"); err != nil {
		return err
	}
	for _, existing := range m.Executions {
		if existing.LeaderTradeID == exec.LeaderTradeID && existing.RelationshipID == exec.RelationshipID {
			return ErrDuplicateExecution
		}
	}
	m.Executions[exec.ID] = exec
	return nil
}

func (m *MockStore) UpdateExecution(ctx context.Context, exec models.CopyExecution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("UpdateExecution"); err != nil {
		return err
	}
	existing, ok := m.Executions[exec.ID]
	if !ok {
		return ErrNotFound
	}
	// Terminal rows are immutable, mirroring the Postgres guard.
	if existing.Status != models.ExecutionPending && existing.Status != models.ExecutionExecuting {
		return ErrNotFound
	}
	m.Executions[exec.ID] = exec
	return nil
}

func (m *MockStore) ListExecutionsForTrade(ctx context.Context, tradeID string) ([]models.CopyExecution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("ListExecutionsForTrade"); err != nil {
		return nil, err
	}
	var execs []models.CopyExecution
	for _, e := range m.Executions {
		if e.LeaderTradeID == tradeID {
			execs = append(execs, e)
		}
	}
	sort.Slice(execs, func(i, j int) bool { return execs[i].ID < execs[j].ID })
	return execs, nil
}

func (m *MockStore) ListExecutionsForFollower(ctx context.Context, followerID string, limit int) ([]models.CopyExecution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("ListExecutionsForFollower"); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	var execs []models.CopyExecution
	for _, e := range m.Executions {
		if e.FollowerID == followerID {
			execs = append(execs, e)
		}
	}
	sort.Slice(execs, func(i, j int) bool { return execs[i].CreatedAt.After(execs[j].CreatedAt) })
	if len(execs) > limit {
		execs = execs[:limit]
	}
	return execs, nil
}

func (m *MockStore) UpsertPosition(ctx context.Context, pos models.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("UpsertPosition"); err != nil {
		return err
	}
	for id, existing := range m.Positions {
		if existing.OwnerID == pos.OwnerID && existing.AccountRef == pos.AccountRef &&
			existing.Symbol == pos.Symbol && existing.Status == models.PositionOpen {
			total := existing.Quantity + pos.Quantity
			if total > 0 {
				existing.AvgCost = (existing.AvgCost*existing.Quantity + pos.AvgCost*pos.Quantity) / total
			}
			existing.Quantity = total
			existing.CurrentPrice = pos.CurrentPrice
			if pos.StopLoss != nil {
				existing.StopLoss = pos.StopLoss
			}
			if pos.TakeProfit != nil {
				existing.TakeProfit = pos.TakeProfit
			}
			m.Positions[id] = existing
			return nil
		}
	}
	m.Positions[pos.ID] = pos
	return nil
}

func (m *MockStore) GetOpenPosition(ctx context.Context, ownerID, symbol string) (*models.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("GetOpenPosition"); err != nil {
		return nil, err
	}
	for _, p := range m.Positions {
		if p.OwnerID == ownerID && p.Symbol == symbol && p.Status == models.PositionOpen {
			pos := p
			return &pos, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MockStore) ListOpenPositionsWithTriggers(ctx context.Context) ([]models.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("ListOpenPositionsWithTriggers"); err != nil {
		return nil, err
	}
	var positions []models.Position
	for _, p := range m.Positions {
		if p.Status == models.PositionOpen && (p.StopLoss != nil || p.TakeProfit != nil) {
			positions = append(positions, p)
		}
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].ID < positions[j].ID })
	return positions, nil
}

func (m *MockStore) ClosePosition(ctx context.Context, positionID, reason string, exitPrice float64, closedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("ClosePosition"); err != nil {
		return err
	}
	p, ok := m.Positions[positionID]
	if !ok || p.Status != models.PositionOpen {
		return ErrNotFound
	}
	p.Status = models.PositionClosed
	p.ExitReason = reason
	p.ExitPrice = exitPrice
	p.ClosedAt = &closedAt
	m.Positions[positionID] = p
	return nil
}

func (m *MockStore) GetFollowerLossPct(ctx context.Context, followerID string, window time.Duration) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("GetFollowerLossPct"); err != nil {
		return 0, err
	}
	return m.LossPct[followerID], nil
}
