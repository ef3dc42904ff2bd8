package syncer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/abhip2006/copytrade-sub001/brokerage"
	"github.com/abhip2006/copytrade-sub001/config"
	"github.com/abhip2006/copytrade-sub001/models"
	"github.com/abhip2006/copytrade-sub001/storage"
)

func newTestEngine(store *storage.MockStore, broker *brokerage.MockClient) *Engine {
	return NewEngine(store, broker, config.EngineConfig{MaxWorkers: 4, TradeBatchSize: 10}, testPolicyConfig(), time.Second)
}

func seedLeaderTrade(store *storage.MockStore, side models.Side, isExit bool) models.LeaderTrade {
	trade := models.LeaderTrade{
		ID:         "trade-1",
		LeaderID:   "leader-1",
		AccountRef: "leader-acct",
		Symbol:     "AAPL",
		AssetClass: "equity",
		Side:       side,
		Quantity:   100,
		Price:      150,
		OrderType:  models.OrderTypeMarket,
		Source:     models.SourcePoll,
		IsExit:     isExit,
		DetectedAt: time.Now().UTC(),
	}
	store.Trades[trade.ID] = trade
	return trade
}

func seedFollower(store *storage.MockStore, followerID, relID string) models.CopyRelationship {
	store.Connections[followerID] = models.BrokerageConnection{
		ID:         "conn-" + followerID,
		UserID:     followerID,
		AccountRef: followerID + "-acct",
		UserRef:    "ref-" + followerID,
		UserSecret: "secret-" + followerID,
		Active:     true,
	}
	rel := models.CopyRelationship{
		ID:              relID,
		FollowerID:      followerID,
		LeaderID:        "leader-1",
		Status:          models.RelationshipActive,
		Method:          models.AllocFixedDollar,
		AllocationValue: 1500,
		CreatedAt:       time.Now().UTC(),
	}
	store.Relationships[rel.ID] = rel
	return rel
}

func executionFor(store *storage.MockStore, relID string) *models.CopyExecution {
	for _, e := range store.Executions {
		if e.RelationshipID == relID {
			exec := e
			return &exec
		}
	}
	return nil
}

func TestProcessAllPendingTradesSuccess(t *testing.T) {
	store := storage.NewMockStore()
	broker := brokerage.NewMockClient()
	seedLeaderTrade(store, models.SideBuy, false)
	rel := seedFollower(store, "follower-1", "rel-1")
	broker.Order = &brokerage.OrderResult{OrderID: "order-9", Status: "EXECUTED", ExecutedPrice: 150}

	engine := newTestEngine(store, broker)

	summary, err := engine.ProcessAllPendingTrades(context.Background())
	if err != nil {
		t.Fatalf("ProcessAllPendingTrades() error = %v", err)
	}
	if summary.TradesProcessed != 1 || summary.Attempted != 1 || summary.Succeeded != 1 {
		t.Errorf("summary = %+v, want 1 processed, 1 attempted, 1 succeeded", summary)
	}

	exec := executionFor(store, rel.ID)
	if exec == nil {
		t.Fatal("no execution recorded")
	}
	if exec.Status != models.ExecutionSuccess {
		t.Errorf("execution status = %s, want success", exec.Status)
	}
	if exec.Quantity != 10 { // 1500 fixed dollar at price 150
		t.Errorf("execution quantity = %v, want 10", exec.Quantity)
	}
	if exec.OrderID != "order-9" || exec.ExecutedPrice != 150 {
		t.Errorf("execution order = %s @ %v, want order-9 @ 150", exec.OrderID, exec.ExecutedPrice)
	}
	if exec.CompletedAt == nil {
		t.Error("execution has no completion time")
	}

	if !store.Trades["trade-1"].Processed {
		t.Error("trade not marked processed")
	}

	pos, err := store.GetOpenPosition(context.Background(), "follower-1", "AAPL")
	if err != nil {
		t.Fatalf("follower position not tracked: %v", err)
	}
	if pos.Quantity != 10 || pos.AvgCost != 150 {
		t.Errorf("position = %v @ %v, want 10 @ 150", pos.Quantity, pos.AvgCost)
	}
}

func TestProcessAllPendingTradesAtMostOnce(t *testing.T) {
	store := storage.NewMockStore()
	broker := brokerage.NewMockClient()
	seedLeaderTrade(store, models.SideBuy, false)
	seedFollower(store, "follower-1", "rel-1")

	engine := newTestEngine(store, broker)

	for i := 0; i < 2; i++ {
		if _, err := engine.ProcessAllPendingTrades(context.Background()); err != nil {
			t.Fatalf("run %d error = %v", i, err)
		}
	}

	if got := broker.Calls["PlaceOrder"]; got != 1 {
		t.Errorf("PlaceOrder called %d times across reruns, want 1", got)
	}
	if len(store.Executions) != 1 {
		t.Errorf("%d execution rows, want 1", len(store.Executions))
	}
}

func TestProcessDuplicateExecutionCountsAsSkip(t *testing.T) {
	store := storage.NewMockStore()
	broker := brokerage.NewMockClient()
	trade := seedLeaderTrade(store, models.SideBuy, false)
	rel := seedFollower(store, "follower-1", "rel-1")

	// A previous invocation already claimed this pair.
	store.Executions["prior"] = models.CopyExecution{
		ID:             "prior",
		RelationshipID: rel.ID,
		LeaderTradeID:  trade.ID,
		FollowerID:     rel.FollowerID,
		Status:         models.ExecutionSuccess,
		CreatedAt:      time.Now().UTC(),
	}

	engine := newTestEngine(store, broker)

	summary, err := engine.ProcessAllPendingTrades(context.Background())
	if err != nil {
		t.Fatalf("ProcessAllPendingTrades() error = %v", err)
	}
	if summary.Skipped != 1 || summary.Attempted != 0 {
		t.Errorf("summary = %+v, want 1 skipped and 0 attempted", summary)
	}
	if broker.Calls["PlaceOrder"] != 0 {
		t.Errorf("PlaceOrder called %d times for duplicate, want 0", broker.Calls["PlaceOrder"])
	}
	if !store.Trades[trade.ID].Processed {
		t.Error("trade not marked processed")
	}
}

func TestProcessFollowerIsolation(t *testing.T) {
	store := storage.NewMockStore()
	broker := brokerage.NewMockClient()
	seedLeaderTrade(store, models.SideBuy, false)
	relOK := seedFollower(store, "follower-1", "rel-1")
	relBad := seedFollower(store, "follower-2", "rel-2")

	// follower-2's brokerage rejects everything; follower-1 is unaffected.
	broker.ErrorForAccount["follower-2-acct"] = errors.New("insufficient funds")

	engine := newTestEngine(store, broker)

	summary, err := engine.ProcessAllPendingTrades(context.Background())
	if err != nil {
		t.Fatalf("ProcessAllPendingTrades() error = %v", err)
	}
	if summary.Succeeded != 1 || summary.Failed != 1 {
		t.Errorf("summary = %+v, want 1 succeeded and 1 failed", summary)
	}

	if exec := executionFor(store, relOK.ID); exec == nil || exec.Status != models.ExecutionSuccess {
		t.Errorf("healthy follower execution = %+v, want success", exec)
	}
	bad := executionFor(store, relBad.ID)
	if bad == nil || bad.Status != models.ExecutionFailed {
		t.Fatalf("failing follower execution = %+v, want failed", bad)
	}
	if bad.Reason == "" {
		t.Error("failed execution has no reason")
	}

	if !store.Trades["trade-1"].Processed {
		t.Error("trade not marked processed despite partial failure")
	}
}

func TestProcessSkipRecordsReason(t *testing.T) {
	store := storage.NewMockStore()
	broker := brokerage.NewMockClient()
	seedLeaderTrade(store, models.SideBuy, false)
	rel := seedFollower(store, "follower-1", "rel-1")

	// Connection revoked after subscribing.
	conn := store.Connections["follower-1"]
	conn.Active = false
	store.Connections["follower-1"] = conn

	engine := newTestEngine(store, broker)

	summary, err := engine.ProcessAllPendingTrades(context.Background())
	if err != nil {
		t.Fatalf("ProcessAllPendingTrades() error = %v", err)
	}
	if summary.Skipped != 1 || summary.Succeeded != 0 {
		t.Errorf("summary = %+v, want 1 skipped", summary)
	}

	exec := executionFor(store, rel.ID)
	if exec == nil || exec.Status != models.ExecutionSkipped {
		t.Fatalf("execution = %+v, want skipped", exec)
	}
	if exec.Reason != models.ReasonNoConnection {
		t.Errorf("skip reason = %q, want %q", exec.Reason, models.ReasonNoConnection)
	}
	if broker.Calls["PlaceOrder"] != 0 {
		t.Error("order placed for skipped execution")
	}
}

func TestProcessLeaderExitClosesFollowerPosition(t *testing.T) {
	store := storage.NewMockStore()
	broker := brokerage.NewMockClient()
	seedLeaderTrade(store, models.SideSell, true)
	seedFollower(store, "follower-1", "rel-1")
	broker.Order = &brokerage.OrderResult{OrderID: "order-2", Status: "EXECUTED", ExecutedPrice: 150}

	store.Positions["pos-1"] = models.Position{
		ID:         "pos-1",
		OwnerID:    "follower-1",
		AccountRef: "follower-1-acct",
		Symbol:     "AAPL",
		Quantity:   10,
		AvgCost:    120,
		Status:     models.PositionOpen,
		OpenedAt:   time.Now().UTC(),
	}

	engine := newTestEngine(store, broker)

	summary, err := engine.ProcessAllPendingTrades(context.Background())
	if err != nil {
		t.Fatalf("ProcessAllPendingTrades() error = %v", err)
	}
	if summary.Succeeded != 1 {
		t.Fatalf("summary = %+v, want 1 succeeded", summary)
	}

	pos := store.Positions["pos-1"]
	if pos.Status != models.PositionClosed {
		t.Fatalf("position status = %s, want closed", pos.Status)
	}
	if pos.ExitReason != models.ExitReasonLeaderExit {
		t.Errorf("exit reason = %q, want %q", pos.ExitReason, models.ExitReasonLeaderExit)
	}
	if pos.ExitPrice != 150 {
		t.Errorf("exit price = %v, want 150", pos.ExitPrice)
	}
}

func TestProcessExecutingTransitionFailureReachesTerminalState(t *testing.T) {
	store := storage.NewMockStore()
	broker := brokerage.NewMockClient()
	seedLeaderTrade(store, models.SideBuy, false)
	rel := seedFollower(store, "follower-1", "rel-1")

	// The transition to executing fails once; the row must not be left at
	// pending, which would claim the pair against re-entry forever.
	store.ErrorOnNext["UpdateExecution"] = errors.New("db hiccup")

	engine := newTestEngine(store, broker)

	summary, err := engine.ProcessAllPendingTrades(context.Background())
	if err != nil {
		t.Fatalf("ProcessAllPendingTrades() error = %v", err)
	}
	if summary.Failed != 1 {
		t.Errorf("summary = %+v, want 1 failed", summary)
	}

	exec := executionFor(store, rel.ID)
	if exec == nil {
		t.Fatal("no execution recorded")
	}
	if exec.Status != models.ExecutionFailed {
		t.Fatalf("execution status = %s, want terminal failed", exec.Status)
	}
	if exec.Reason == "" {
		t.Error("failed execution has no reason")
	}
	if broker.Calls["PlaceOrder"] != 0 {
		t.Error("order placed despite failed transition")
	}
}

func TestProcessFatalOnListError(t *testing.T) {
	store := storage.NewMockStore()
	store.ErrorOnNext["ListUnprocessedTrades"] = errors.New("db down")
	engine := newTestEngine(store, brokerage.NewMockClient())

	if _, err := engine.ProcessAllPendingTrades(context.Background()); err == nil {
		t.Fatal("ProcessAllPendingTrades() expected error when trades cannot be listed")
	}
}
