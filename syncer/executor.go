package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/abhip2006/copytrade-sub001/brokerage"
	"github.com/abhip2006/copytrade-sub001/config"
	"github.com/abhip2006/copytrade-sub001/models"
	"github.com/abhip2006/copytrade-sub001/storage"
)

// Engine fans pending leader trades out to followers. The central invariant
// is follower isolation: one follower's brokerage error, insufficient funds,
// or timeout never affects another follower's copy of the same trade, and
// never causes duplicate orders on re-entry.
type Engine struct {
	store        storage.DataStore
	broker       brokerage.Client
	cfg          config.EngineConfig
	policy       config.PolicyConfig
	orderTimeout time.Duration
}

// NewEngine creates a copy execution engine.
func NewEngine(store storage.DataStore, broker brokerage.Client, cfg config.EngineConfig, policy config.PolicyConfig, orderTimeout time.Duration) *Engine {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 8
	}
	if cfg.TradeBatchSize <= 0 {
		cfg.TradeBatchSize = 100
	}
	if orderTimeout <= 0 {
		orderTimeout = 30 * time.Second
	}
	return &Engine{store: store, broker: broker, cfg: cfg, policy: policy, orderTimeout: orderTimeout}
}

type executionOutcome int

const (
	outcomeSucceeded executionOutcome = iota
	outcomeFailed
	outcomeSkipped
	outcomeDuplicate
)

// ProcessAllPendingTrades drives every unprocessed leader trade through
// per-follower execution with bounded parallelism per trade. Relationships
// are isolated from each other; the trade is marked processed once every
// relationship has a terminal outcome, regardless of individual results.
func (e *Engine) ProcessAllPendingTrades(ctx context.Context) (*models.ProcessSummary, error) {
	start := time.Now()

	trades, err := e.store.ListUnprocessedTrades(ctx, e.cfg.TradeBatchSize)
	if err != nil {
		return nil, err
	}

	summary := &models.ProcessSummary{StartedAt: start.UTC()}
	if len(trades) == 0 {
		summary.DurationMS = time.Since(start).Milliseconds()
		return summary, nil
	}

	log.Printf("[engine] processing %d pending trades", len(trades))

	for _, trade := range trades {
		if err := ctx.Err(); err != nil {
			// Cooperative cancellation: committed executions stay valid and
			// the remaining trades are picked up by the next invocation.
			summary.DurationMS = time.Since(start).Milliseconds()
			return summary, err
		}

		rels, err := e.store.ListActiveRelationshipsForLeader(ctx, trade.LeaderID)
		if err != nil {
			log.Printf("[engine] trade %s: listing relationships failed: %v", trade.ID, err)
			continue
		}

		var mu sync.Mutex
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.cfg.MaxWorkers)

		for _, rel := range rels {
			rel := rel
			g.Go(func() error {
				outcome := e.processRelationship(gctx, trade, rel)
				mu.Lock()
				switch outcome {
				case outcomeSucceeded:
					summary.Attempted++
					summary.Succeeded++
				case outcomeFailed:
					summary.Attempted++
					summary.Failed++
				case outcomeSkipped:
					summary.Attempted++
					summary.Skipped++
				case outcomeDuplicate:
					summary.Skipped++
				}
				mu.Unlock()
				return nil
			})
		}
		g.Wait()

		if err := e.store.MarkTradeProcessed(ctx, trade.ID); err != nil {
			log.Printf("[engine] trade %s: marking processed failed: %v", trade.ID, err)
			continue
		}
		summary.TradesProcessed++
	}

	summary.DurationMS = time.Since(start).Milliseconds()
	log.Printf("[engine] processed %d trades: %d succeeded, %d failed, %d skipped in %s",
		summary.TradesProcessed, summary.Succeeded, summary.Failed, summary.Skipped, time.Since(start))
	return summary, nil
}

// processRelationship runs one (trade, relationship) pair through the state
// machine: pending → skipped, or pending → executing → success | failed.
func (e *Engine) processRelationship(ctx context.Context, trade models.LeaderTrade, rel models.CopyRelationship) executionOutcome {
	exec := models.CopyExecution{
		ID:             uuid.NewString(),
		RelationshipID: rel.ID,
		LeaderTradeID:  trade.ID,
		FollowerID:     rel.FollowerID,
		Symbol:         trade.Symbol,
		Side:           trade.Side,
		Status:         models.ExecutionPending,
		CreatedAt:      time.Now().UTC(),
	}

	// The unique constraint on (trade, relationship) is the lock: a
	// duplicate means another invocation already claimed this pair.
	if err := e.store.CreateExecution(ctx, exec); err != nil {
		if errors.Is(err, storage.ErrDuplicateExecution) {
			return outcomeDuplicate
		}
		log.Printf("[engine] trade %s / rel %s: creating execution failed: %v", trade.ID, rel.ID, err)
		return outcomeFailed
	}

	input, failReason := e.gatherPolicyInput(ctx, trade, rel)
	if failReason != "" {
		e.finishExecution(ctx, exec, models.ExecutionFailed, failReason, 0, "")
		return outcomeFailed
	}

	decision := EvaluateCopy(input, e.policy)
	if !decision.Eligible {
		e.finishExecution(ctx, exec, models.ExecutionSkipped, decision.Reason, 0, "")
		return outcomeSkipped
	}

	exec.Quantity = decision.Quantity
	exec.Status = models.ExecutionExecuting
	if err := e.store.UpdateExecution(ctx, exec); err != nil {
		log.Printf("[engine] execution %s: transition to executing failed: %v", exec.ID, err)
		// A row stuck at pending would claim the pair against re-entry
		// forever; push it to a terminal state if the store recovers.
		e.finishExecution(ctx, exec, models.ExecutionFailed, fmt.Sprintf("transition to executing: %v", err), 0, "")
		return outcomeFailed
	}

	conn, err := e.store.GetActiveConnection(ctx, rel.FollowerID)
	if err != nil {
		e.finishExecution(ctx, exec, models.ExecutionFailed, fmt.Sprintf("load connection: %v", err), 0, "")
		return outcomeFailed
	}
	creds := brokerage.CredentialsFor(*conn)

	// Impact check, then place. Both calls are bounded; a timeout is a
	// failed execution, never a row left pending.
	callCtx, cancel := context.WithTimeout(ctx, e.orderTimeout)
	defer cancel()

	impact, err := e.broker.CheckTradeImpact(callCtx, creds, brokerage.ImpactRequest{
		AccountRef: conn.AccountRef,
		Symbol:     trade.Symbol,
		Side:       trade.Side,
		OrderType:  trade.OrderType,
		Quantity:   decision.Quantity,
	})
	if err != nil {
		e.finishExecution(ctx, exec, models.ExecutionFailed, fmt.Sprintf("impact check: %v", err), 0, "")
		return outcomeFailed
	}

	order, err := e.broker.PlaceOrder(callCtx, creds, impact.TradeID, true)
	if err != nil {
		e.finishExecution(ctx, exec, models.ExecutionFailed, fmt.Sprintf("place order: %v", err), 0, "")
		return outcomeFailed
	}

	executedPrice := order.ExecutedPrice
	if executedPrice <= 0 {
		executedPrice = impact.EstimatedPrice
	}
	e.finishExecution(ctx, exec, models.ExecutionSuccess, "", executedPrice, order.OrderID)
	e.recordFollowerPosition(ctx, trade, rel, *conn, decision, executedPrice)

	log.Printf("[engine] copied %s %s x%.4f for follower %s (order %s)",
		trade.Side, trade.Symbol, decision.Quantity, rel.FollowerID, order.OrderID)
	return outcomeSucceeded
}

// gatherPolicyInput performs the lookups EvaluateCopy needs. A non-empty
// reason marks a transient failure for this pair only.
func (e *Engine) gatherPolicyInput(ctx context.Context, trade models.LeaderTrade, rel models.CopyRelationship) (PolicyInput, string) {
	input := PolicyInput{Trade: trade, Relationship: rel, TradePrice: trade.Price}

	conn, err := e.store.GetActiveConnection(ctx, rel.FollowerID)
	if errors.Is(err, storage.ErrNotFound) {
		return input, "" // HasConnection stays false; policy skips with a reason code
	}
	if err != nil {
		return input, fmt.Sprintf("load connection: %v", err)
	}
	input.HasConnection = true
	creds := brokerage.CredentialsFor(*conn)

	if rel.StopCopyingOnLoss != nil {
		window := time.Duration(e.policy.LossWindowDays) * 24 * time.Hour
		lossPct, err := e.store.GetFollowerLossPct(ctx, rel.FollowerID, window)
		if err != nil {
			return input, fmt.Sprintf("load recent performance: %v", err)
		}
		input.RecentLossPct = lossPct
	}

	if input.TradePrice <= 0 {
		callCtx, cancel := context.WithTimeout(ctx, e.orderTimeout)
		quote, err := e.broker.GetSymbolQuote(callCtx, creds, conn.AccountRef, trade.Symbol)
		cancel()
		if err != nil {
			return input, fmt.Sprintf("resolve price: %v", err)
		}
		input.TradePrice = quote.LastPrice
	}

	callCtx, cancel := context.WithTimeout(ctx, e.orderTimeout)
	balance, err := e.broker.GetAccountBalance(callCtx, creds, conn.AccountRef)
	cancel()
	if err != nil {
		return input, fmt.Sprintf("load follower balance: %v", err)
	}
	input.FollowerPortfolio = balance.TotalValue

	if rel.Method == models.AllocProportional {
		leaderConn, err := e.store.GetActiveConnection(ctx, trade.LeaderID)
		if err != nil {
			return input, fmt.Sprintf("load leader connection: %v", err)
		}
		callCtx, cancel := context.WithTimeout(ctx, e.orderTimeout)
		leaderBalance, err := e.broker.GetAccountBalance(callCtx, brokerage.CredentialsFor(*leaderConn), trade.AccountRef)
		cancel()
		if err != nil {
			return input, fmt.Sprintf("load leader balance: %v", err)
		}
		input.LeaderPortfolio = leaderBalance.TotalValue
	}

	if trade.Side == models.SideBuy && (rel.CopyStopLoss || rel.CopyTakeProfit) {
		leaderPos, err := e.store.GetOpenPosition(ctx, trade.LeaderID, trade.Symbol)
		if err == nil {
			input.LeaderStopLoss = leaderPos.StopLoss
			input.LeaderTakeProfit = leaderPos.TakeProfit
		} else if !errors.Is(err, storage.ErrNotFound) {
			return input, fmt.Sprintf("load leader position: %v", err)
		}
	}

	return input, ""
}

func (e *Engine) finishExecution(ctx context.Context, exec models.CopyExecution, status models.ExecutionStatus, reason string, executedPrice float64, orderID string) {
	now := time.Now().UTC()
	exec.Status = status
	exec.Reason = reason
	exec.ExecutedPrice = executedPrice
	exec.OrderID = orderID
	exec.CompletedAt = &now
	if err := e.store.UpdateExecution(ctx, exec); err != nil {
		log.Printf("[engine] execution %s: recording %s failed: %v", exec.ID, status, err)
	}
}

// recordFollowerPosition keeps the platform's view of the follower's holding
// in sync after a successful copy, tagging new positions with the decided
// stop-loss/take-profit triggers.
func (e *Engine) recordFollowerPosition(ctx context.Context, trade models.LeaderTrade, rel models.CopyRelationship, conn models.BrokerageConnection, decision CopyDecision, executedPrice float64) {
	now := time.Now().UTC()

	if trade.Side == models.SideBuy {
		pos := models.Position{
			ID:           uuid.NewString(),
			OwnerID:      rel.FollowerID,
			AccountRef:   conn.AccountRef,
			Symbol:       trade.Symbol,
			Quantity:     decision.Quantity,
			AvgCost:      executedPrice,
			CurrentPrice: executedPrice,
			StopLoss:     decision.StopLoss,
			TakeProfit:   decision.TakeProfit,
			Status:       models.PositionOpen,
			OpenedAt:     now,
		}
		if err := e.store.UpsertPosition(ctx, pos); err != nil {
			log.Printf("[engine] warning: tracking position for %s/%s failed: %v", rel.FollowerID, trade.Symbol, err)
		}
		return
	}

	existing, err := e.store.GetOpenPosition(ctx, rel.FollowerID, trade.Symbol)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Printf("[engine] warning: loading position for %s/%s failed: %v", rel.FollowerID, trade.Symbol, err)
		}
		return
	}

	if trade.IsExit || decision.Quantity >= existing.Quantity {
		if err := e.store.ClosePosition(ctx, existing.ID, models.ExitReasonLeaderExit, executedPrice, now); err != nil {
			log.Printf("[engine] warning: closing position %s failed: %v", existing.ID, err)
		}
		return
	}

	reduction := models.Position{
		ID:           uuid.NewString(),
		OwnerID:      rel.FollowerID,
		AccountRef:   conn.AccountRef,
		Symbol:       trade.Symbol,
		Quantity:     -decision.Quantity,
		AvgCost:      existing.AvgCost,
		CurrentPrice: executedPrice,
		Status:       models.PositionOpen,
		OpenedAt:     now,
	}
	if err := e.store.UpsertPosition(ctx, reduction); err != nil {
		log.Printf("[engine] warning: reducing position for %s/%s failed: %v", rel.FollowerID, trade.Symbol, err)
	}
}
