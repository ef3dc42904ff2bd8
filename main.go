package main

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/abhip2006/copytrade-sub001/brokerage"
	"github.com/abhip2006/copytrade-sub001/config"
	"github.com/abhip2006/copytrade-sub001/handlers"
	"github.com/abhip2006/copytrade-sub001/middleware"
	"github.com/abhip2006/copytrade-sub001/storage"
	"github.com/abhip2006/copytrade-sub001/syncer"
)

func main() {
	// Load environment variables
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
	ingestor := syncer.NewIngestor(store)
	metrics := syncer.NewMetricsStore(store.Redis())

	// Set up router
	r := gin.Default()

	h := handlers.NewHandler(cfg, store, detector, engine, monitor, ingestor, metrics)

	// Public routes
	r.GET("/health", h.Health)
	r.POST("/webhooks/trades", middleware.WebhookSecret(), h.IngestWebhook)

	// Follower-facing API
	api := r.Group("/api")
	{
		api.POST("/relationships", h.CreateRelationship)
		api.GET("/relationships/:id", h.GetRelationship)
		api.POST("/relationships/:id/stop", h.StopRelationship)
		api.GET("/followers/:id/executions", h.GetFollowerExecutions)
		api.GET("/trades/:id/executions", h.GetTradeExecutions)
	}

	// Scheduler and operations endpoints
	internal := r.Group("/internal", middleware.BasicAuth())
	{
		internal.POST("/run/detect", h.RunDetect)
		internal.POST("/run/process", h.RunProcess)
		internal.POST("/run/monitor", h.RunMonitor)
		internal.GET("/metrics", h.GetMetrics)
	}

	// Get port from environment or use default
	port := os.Getenv("PORT")
	if port == "" {
		port = strconv.Itoa(cfg.Server.Port)
	}

	log.Printf("Server starting on http://localhost:%s", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatal(err)
	}
}
