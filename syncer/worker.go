package syncer

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/abhip2006/copytrade-sub001/config"
)

// Worker drives the three scheduled entry points on their configured
// intervals. Each loop runs once immediately on start, then on its ticker.
// Loops are independent; a failing cycle logs and waits for the next tick.
type Worker struct {
	detector *Detector
	engine   *Engine
	monitor  *RiskMonitor
	metrics  *MetricsStore
	cfg      *config.Config

	wg sync.WaitGroup
}

// Every cycle is bounded; an overrunning cycle is cut off and the next tick
// resumes from persisted state.
const runTimeout = 60 * time.Second

// NewWorker wires the scheduled loops together.
func NewWorker(detector *Detector, engine *Engine, monitor *RiskMonitor, metrics *MetricsStore, cfg *config.Config) *Worker {
	return &Worker{
		detector: detector,
		engine:   engine,
		monitor:  monitor,
		metrics:  metrics,
		cfg:      cfg,
	}
}

// Start launches the detection, processing, and monitoring loops. It returns
// immediately; cancel ctx and call Wait to shut down.
func (w *Worker) Start(ctx context.Context) {
	w.startLoop(ctx, "detector", time.Duration(w.cfg.Detector.PollIntervalSec)*time.Second, w.runDetection)
	w.startLoop(ctx, "engine", time.Duration(w.cfg.Engine.ProcessIntervalSec)*time.Second, w.runProcessing)
	w.startLoop(ctx, "monitor", time.Duration(w.cfg.Monitor.ScanIntervalSec)*time.Second, w.runMonitoring)
}

// Wait blocks until all loops have exited after ctx cancellation.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) startLoop(ctx context.Context, name string, interval time.Duration, run func(context.Context)) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		log.Printf("[worker] %s loop started, interval %s", name, interval)

		runOnce := func() {
			runCtx, cancel := context.WithTimeout(ctx, runTimeout)
			defer cancel()
			run(runCtx)
		}

		runOnce()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Printf("[worker] %s loop stopped", name)
				return
			case <-ticker.C:
				runOnce()
			}
		}
	}()
}

func (w *Worker) runDetection(ctx context.Context) {
	summary, err := w.detector.PollAllLeaders(ctx)
	if err != nil {
		log.Printf("[worker] detection cycle failed: %v", err)
		return
	}
	w.metrics.RecordRun(ctx, ComponentDetector, summary)
}

func (w *Worker) runProcessing(ctx context.Context) {
	summary, err := w.engine.ProcessAllPendingTrades(ctx)
	if err != nil {
		log.Printf("[worker] processing cycle failed: %v", err)
		return
	}
	w.metrics.RecordRun(ctx, ComponentEngine, summary)
}

func (w *Worker) runMonitoring(ctx context.Context) {
	summary, err := w.monitor.MonitorAllPositions(ctx)
	if err != nil {
		log.Printf("[worker] monitoring cycle failed: %v", err)
		return
	}
	w.metrics.RecordRun(ctx, ComponentMonitor, summary)
}
