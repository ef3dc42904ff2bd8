// Package syncer contains the copy-trading core: trade detection, the
// risk/sizing policy, copy execution fan-out, and position risk monitoring.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/abhip2006/copytrade-sub001/brokerage"
	"github.com/abhip2006/copytrade-sub001/config"
	"github.com/abhip2006/copytrade-sub001/models"
	"github.com/abhip2006/copytrade-sub001/storage"
)

// Detector turns raw position changes into a canonical LeaderTrade stream.
type Detector struct {
	store  storage.DataStore
	broker brokerage.Client
	cfg    config.DetectorConfig
}

// NewDetector creates a trade detector.
func NewDetector(store storage.DataStore, broker brokerage.Client, cfg config.DetectorConfig) *Detector {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 8
	}
	return &Detector{store: store, broker: broker, cfg: cfg}
}

// DetectedTrade is one synthesized trade from a snapshot diff.
type DetectedTrade struct {
	Symbol   string
	Side     models.Side
	Quantity float64
	IsExit   bool
}

// NormalizePositions maps a brokerage's raw position list into
// symbol→signed quantity, deduplicating by symbol. Missing quantities
// default to zero. No side effects.
func NormalizePositions(raw []brokerage.RawPosition) map[string]float64 {
	normalized := make(map[string]float64, len(raw))
	for _, p := range raw {
		if p.Symbol == "" {
			continue
		}
		normalized[p.Symbol] += p.Quantity
	}
	return normalized
}

// DetectTrades diffs two normalized position maps and synthesizes the trades
// that explain the change. Pure and deterministic: symbols are visited in
// sorted order and the output deltas exactly reconstruct current − previous.
//
// A position that flips sign within one poll interval comes out as a single
// SELL of the full magnitude change; IsExit is set only when the new
// quantity is exactly zero.
func DetectTrades(current, previous map[string]float64) []DetectedTrade {
	symbols := make([]string, 0, len(current)+len(previous))
	seen := make(map[string]bool, len(current)+len(previous))
	for sym := range current {
		symbols = append(symbols, sym)
		seen[sym] = true
	}
	for sym := range previous {
		if !seen[sym] {
			symbols = append(symbols, sym)
		}
	}
	sort.Strings(symbols)

	var trades []DetectedTrade
	for _, sym := range symbols {
		curr := current[sym]
		prev := previous[sym]
		switch {
		case curr > prev:
			trades = append(trades, DetectedTrade{
				Symbol:   sym,
				Side:     models.SideBuy,
				Quantity: curr - prev,
			})
		case curr < prev:
			trades = append(trades, DetectedTrade{
				Symbol:   sym,
				Side:     models.SideSell,
				Quantity: prev - curr,
				IsExit:   curr == 0,
			})
		}
	}
	return trades
}

// DetectTradesForAccount fetches current positions for one leader
// connection, diffs against the stored snapshot, persists the new snapshot,
// and returns the synthesized LeaderTrade rows. The first run has no
// baseline and produces no trades.
func (d *Detector) DetectTradesForAccount(ctx context.Context, conn models.BrokerageConnection) ([]models.LeaderTrade, error) {
	creds := brokerage.CredentialsFor(conn)

	raw, err := d.broker.GetAccountPositions(ctx, creds, conn.AccountRef)
	if err != nil {
		return nil, err
	}
	current := NormalizePositions(raw)

	// Raw rows carry the price and asset class the diff loses.
	rawBySymbol := make(map[string]brokerage.RawPosition, len(raw))
	for _, p := range raw {
		rawBySymbol[p.Symbol] = p
	}

	previous := map[string]float64{}
	baselineID := ""
	firstRun := false
	snap, err := d.store.GetLatestSnapshot(ctx, conn.AccountRef)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		firstRun = true
	case err != nil:
		return nil, err
	default:
		previous = snap.Positions
		baselineID = snap.ID
	}

	now := time.Now().UTC()
	if err := d.store.SaveSnapshot(ctx, models.PositionSnapshot{
		ID:         uuid.NewString(),
		AccountRef: conn.AccountRef,
		Positions:  current,
		CapturedAt: now,
	}); err != nil {
		return nil, err
	}

	// No baseline means no trades; the snapshot just saved becomes the
	// baseline for the next poll.
	if firstRun {
		return nil, nil
	}

	detected := DetectTrades(current, previous)
	trades := make([]models.LeaderTrade, 0, len(detected))
	for _, dt := range detected {
		trade := models.LeaderTrade{
			ID:         tradeIDForDiff(conn.AccountRef, baselineID, dt.Symbol, dt.Side),
			LeaderID:   conn.UserID,
			AccountRef: conn.AccountRef,
			Symbol:     dt.Symbol,
			Side:       dt.Side,
			Quantity:   dt.Quantity,
			OrderType:  models.OrderTypeMarket,
			Source:     models.SourcePoll,
			IsExit:     dt.IsExit,
			DetectedAt: now,
		}
		if rp, ok := rawBySymbol[dt.Symbol]; ok {
			trade.Price = rp.Price
			trade.AssetClass = rp.AssetClass
		}
		trades = append(trades, trade)
	}
	return trades, nil
}

// tradeIDForDiff derives a stable ID from the baseline snapshot and the
// detected change. Overlapping invocations that diff the same baseline
// synthesize identical IDs and collide on insert instead of double-detecting
// one position change.
func tradeIDForDiff(accountRef, baselineID, symbol string, side models.Side) string {
	name := fmt.Sprintf("%s:%s:%s:%s", accountRef, baselineID, symbol, side)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

// PollAllLeaders runs detection across every leader account with bounded
// parallelism. One account's transient brokerage failure is logged and
// counted but never blocks polling of other leaders. Safe to invoke while a
// prior invocation is still running: snapshots append, and trades diffed
// against the same baseline share IDs so only one copy persists.
func (d *Detector) PollAllLeaders(ctx context.Context) (*models.DetectionSummary, error) {
	start := time.Now()

	conns, err := d.store.ListLeaderConnections(ctx)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	summary := &models.DetectionSummary{StartedAt: start.UTC()}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.MaxWorkers)

	for _, conn := range conns {
		conn := conn
		g.Go(func() error {
			trades, err := d.DetectTradesForAccount(gctx, conn)
			if err != nil {
				log.Printf("[detector] account %s: detection failed: %v", conn.AccountRef, err)
				mu.Lock()
				summary.Failures++
				summary.LeadersPolled++
				mu.Unlock()
				return nil
			}

			saved := 0
			if len(trades) > 0 {
				saved, err = d.store.SaveLeaderTrades(gctx, trades)
				if err != nil {
					log.Printf("[detector] account %s: saving %d trades failed: %v", conn.AccountRef, len(trades), err)
					mu.Lock()
					summary.Failures++
					summary.LeadersPolled++
					mu.Unlock()
					return nil
				}
			}

			mu.Lock()
			summary.LeadersPolled++
			summary.TradesDetected += saved
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	summary.DurationMS = time.Since(start).Milliseconds()
	if summary.TradesDetected > 0 {
		log.Printf("[detector] polled %d leaders, detected %d trades in %s",
			summary.LeadersPolled, summary.TradesDetected, time.Since(start))
	}
	return summary, nil
}
