package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/abhip2006/copytrade-sub001/brokerage"
	"github.com/abhip2006/copytrade-sub001/config"
	"github.com/abhip2006/copytrade-sub001/models"
	"github.com/abhip2006/copytrade-sub001/storage"
	"github.com/abhip2006/copytrade-sub001/syncer"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using defaults")
	}

	cfgPath := os.Getenv("COPYTRADE_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	store, err := storage.NewPostgres()
	if err != nil {
		log.Fatalf("failed to init storage: %v", err)
	}
	defer store.Close()

	baseURL := os.Getenv("BROKERAGE_API_URL")
	if baseURL == "" {
		baseURL = cfg.Brokerage.BaseURL
	}
	broker := brokerage.NewClient(baseURL, time.Duration(cfg.Brokerage.RequestTimeoutMS)*time.Millisecond)

	orderTimeout := time.Duration(cfg.Brokerage.OrderTimeoutMS) * time.Millisecond
	detector := syncer.NewDetector(store, broker, cfg.Detector)
	engine := syncer.NewEngine(store, broker, cfg.Engine, cfg.Policy, orderTimeout)
	monitor := syncer.NewRiskMonitor(store, broker, cfg.Monitor, orderTimeout)
	metrics := syncer.NewMetricsStore(store.Redis())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	worker := syncer.NewWorker(detector, engine, monitor, metrics, cfg)
	worker.Start(ctx)

	// Activity stream is optional; polling covers detection when the
	// aggregator offers no push feed.
	var stream *brokerage.ActivityStream
	streamURL := os.Getenv("BROKERAGE_STREAM_URL")
	if streamURL == "" {
		streamURL = cfg.Brokerage.StreamURL
	}
	if streamURL != "" {
		ingestor := syncer.NewIngestor(store)
		stream = brokerage.NewActivityStream(streamURL, func(event models.TradeEvent) {
			if _, err := ingestor.IngestTradeEvent(ctx, event, models.SourceStream); err != nil {
				log.Printf("[worker] stream ingest failed: %v", err)
			}
		})
		if err := stream.Start(ctx); err != nil {
			log.Printf("[worker] activity stream failed to start: %v", err)
		}
	}

	log.Println("[worker] started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("[worker] received %s, shutting down", sig)

	cancel()
	if stream != nil {
		stream.Stop()
	}
	worker.Wait()
	log.Println("[worker] stopped")
}
