package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/abhip2006/copytrade-sub001/brokerage"
	"github.com/abhip2006/copytrade-sub001/config"
	"github.com/abhip2006/copytrade-sub001/models"
	"github.com/abhip2006/copytrade-sub001/storage"
)

// RiskMonitor scans open positions that carry stop-loss or take-profit
// triggers and closes the ones whose current price has crossed a threshold.
type RiskMonitor struct {
	store        storage.DataStore
	broker       brokerage.Client
	cfg          config.MonitorConfig
	orderTimeout time.Duration
}

// NewRiskMonitor creates a position risk monitor.
func NewRiskMonitor(store storage.DataStore, broker brokerage.Client, cfg config.MonitorConfig, orderTimeout time.Duration) *RiskMonitor {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 8
	}
	if orderTimeout <= 0 {
		orderTimeout = 30 * time.Second
	}
	return &RiskMonitor{store: store, broker: broker, cfg: cfg, orderTimeout: orderTimeout}
}

// ShouldClosePosition decides whether price crosses a trigger. Stop-loss is
// checked first so it wins when both thresholds are satisfied at once (a gap
// through both is treated as the protective exit).
func ShouldClosePosition(pos models.Position, price float64) (bool, string) {
	if price <= 0 {
		return false, ""
	}
	if pos.StopLoss != nil && *pos.StopLoss > 0 && price <= *pos.StopLoss {
		return true, models.ExitReasonStopLoss
	}
	if pos.TakeProfit != nil && *pos.TakeProfit > 0 && price >= *pos.TakeProfit {
		return true, models.ExitReasonTakeProfit
	}
	return false, ""
}

// MonitorAllPositions runs one scan cycle. Each position is checked
// independently; a quote or order failure on one leaves the rest of the scan
// untouched and the failed position open for the next cycle.
func (m *RiskMonitor) MonitorAllPositions(ctx context.Context) (*models.MonitorSummary, error) {
	start := time.Now()

	positions, err := m.store.ListOpenPositionsWithTriggers(ctx)
	if err != nil {
		return nil, err
	}

	summary := &models.MonitorSummary{StartedAt: start.UTC()}
	if len(positions) == 0 {
		summary.DurationMS = time.Since(start).Milliseconds()
		return summary, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.MaxWorkers)

	for _, pos := range positions {
		pos := pos
		g.Go(func() error {
			detail := m.checkPosition(gctx, pos)
			mu.Lock()
			summary.Checked++
			if detail.Triggered {
				summary.Triggered++
			}
			if detail.Error != "" {
				summary.Failed++
			} else if detail.Triggered {
				summary.Closed++
			}
			summary.Details = append(summary.Details, detail)
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	summary.DurationMS = time.Since(start).Milliseconds()
	if summary.Triggered > 0 || summary.Failed > 0 {
		log.Printf("[monitor] checked %d positions: %d triggered, %d closed, %d failed in %s",
			summary.Checked, summary.Triggered, summary.Closed, summary.Failed, time.Since(start))
	}
	return summary, nil
}

func (m *RiskMonitor) checkPosition(ctx context.Context, pos models.Position) models.PositionCheckDetail {
	detail := models.PositionCheckDetail{PositionID: pos.ID, Symbol: pos.Symbol}

	conn, err := m.store.GetActiveConnection(ctx, pos.OwnerID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Connection revoked after the position opened. Nothing to sell
			// through; leave the row open and move on.
			return detail
		}
		detail.Error = fmt.Sprintf("load connection: %v", err)
		return detail
	}
	creds := brokerage.CredentialsFor(*conn)

	callCtx, cancel := context.WithTimeout(ctx, m.orderTimeout)
	quote, err := m.broker.GetSymbolQuote(callCtx, creds, pos.AccountRef, pos.Symbol)
	cancel()
	if err != nil {
		detail.Error = fmt.Sprintf("get quote: %v", err)
		return detail
	}
	detail.Price = quote.LastPrice

	triggered, reason := ShouldClosePosition(pos, quote.LastPrice)
	if !triggered {
		return detail
	}
	detail.Triggered = true
	detail.Reason = reason

	log.Printf("[monitor] %s triggered for %s %s at %.4f", reason, pos.OwnerID, pos.Symbol, quote.LastPrice)

	exitPrice, err := m.closePosition(ctx, creds, conn.AccountRef, pos)
	if err != nil {
		// Position stays open; the next scan retries the exit.
		detail.Error = fmt.Sprintf("close position: %v", err)
		return detail
	}

	if err := m.store.ClosePosition(ctx, pos.ID, reason, exitPrice, time.Now().UTC()); err != nil {
		detail.Error = fmt.Sprintf("record close: %v", err)
	}
	return detail
}

// closePosition submits a market sell for the full tracked quantity and
// returns the executed price.
func (m *RiskMonitor) closePosition(ctx context.Context, creds brokerage.Credentials, accountRef string, pos models.Position) (float64, error) {
	callCtx, cancel := context.WithTimeout(ctx, m.orderTimeout)
	defer cancel()

	impact, err := m.broker.CheckTradeImpact(callCtx, creds, brokerage.ImpactRequest{
		AccountRef: accountRef,
		Symbol:     pos.Symbol,
		Side:       models.SideSell,
		OrderType:  models.OrderTypeMarket,
		Quantity:   pos.Quantity,
	})
	if err != nil {
		return 0, err
	}

	order, err := m.broker.PlaceOrder(callCtx, creds, impact.TradeID, true)
	if err != nil {
		return 0, err
	}

	if order.ExecutedPrice > 0 {
		return order.ExecutedPrice, nil
	}
	return impact.EstimatedPrice, nil
}
