package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/abhip2006/copytrade-sub001/config"
	"github.com/abhip2006/copytrade-sub001/models"
	"github.com/abhip2006/copytrade-sub001/storage"
	"github.com/abhip2006/copytrade-sub001/syncer"
)

// Handler handles HTTP requests
type Handler struct {
	cfg      *config.Config
	store    storage.DataStore
	detector *syncer.Detector
	engine   *syncer.Engine
	monitor  *syncer.RiskMonitor
	ingestor *syncer.Ingestor
	metrics  *syncer.MetricsStore
}

// NewHandler creates a new handler
func NewHandler(cfg *config.Config, store storage.DataStore, detector *syncer.Detector, engine *syncer.Engine, monitor *syncer.RiskMonitor, ingestor *syncer.Ingestor, metrics *syncer.MetricsStore) *Handler {
	return &Handler{
		cfg:      cfg,
		store:    store,
		detector: detector,
		engine:   engine,
		monitor:  monitor,
		ingestor: ingestor,
		metrics:  metrics,
	}
}

// RunDetect triggers one detection cycle and returns its summary.
func (h *Handler) RunDetect(c *gin.Context) {
	summary, err := h.detector.PollAllLeaders(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "detection failed: " + err.Error()})
		return
	}
	h.metrics.RecordRun(c.Request.Context(), syncer.ComponentDetector, summary)
	c.JSON(http.StatusOK, summary)
}

// RunProcess triggers one execution cycle and returns its summary.
func (h *Handler) RunProcess(c *gin.Context) {
	summary, err := h.engine.ProcessAllPendingTrades(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed: " + err.Error()})
		return
	}
	h.metrics.RecordRun(c.Request.Context(), syncer.ComponentEngine, summary)
	c.JSON(http.StatusOK, summary)
}

// RunMonitor triggers one position scan and returns its summary.
func (h *Handler) RunMonitor(c *gin.Context) {
	summary, err := h.monitor.MonitorAllPositions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "monitoring failed: " + err.Error()})
		return
	}
	h.metrics.RecordRun(c.Request.Context(), syncer.ComponentMonitor, summary)
	c.JSON(http.StatusOK, summary)
}

// IngestWebhook accepts a pushed trade event from the aggregation API.
// Redeliveries are safe: already-recorded fills insert zero rows.
func (h *Handler) IngestWebhook(c *gin.Context) {
	var event models.TradeEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload: " + err.Error()})
		return
	}

	queued, err := h.ingestor.IngestTradeEvent(c.Request.Context(), event, models.SourceWebhook)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ingest failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"queued": queued,
	})
}

// CreateRelationshipRequest is the payload for subscribing to a leader.
type CreateRelationshipRequest struct {
	FollowerID      string  `json:"follower_id"`
	LeaderID        string  `json:"leader_id"`
	Method          string  `json:"allocation_method"`
	AllocationValue float64 `json:"allocation_value"`

	MaxPositionSize  *float64 `json:"max_position_size"`
	MaxRiskPerTrade  *float64 `json:"max_risk_per_trade"`
	AssetClassFilter string   `json:"asset_class_filter"`

	CopyStopLoss       bool     `json:"copy_stop_loss"`
	CopyTakeProfit     bool     `json:"copy_take_profit"`
	StopLossOverride   *float64 `json:"stop_loss_override"`
	TakeProfitOverride *float64 `json:"take_profit_override"`
	TrailingStop       bool     `json:"trailing_stop"`
	StopCopyingOnLoss  *float64 `json:"stop_copying_on_loss"`
}

// CreateRelationship subscribes a follower to a leader.
func (h *Handler) CreateRelationship(c *gin.Context) {
	var req CreateRelationshipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	if req.FollowerID == "" || req.LeaderID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "follower_id and leader_id required"})
		return
	}
	if req.FollowerID == req.LeaderID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot follow yourself"})
		return
	}

	method := models.AllocationMethod(req.Method)
	switch method {
	case models.AllocFixedPercent, models.AllocFixedDollar, models.AllocProportional:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "allocation_method must be fixed_percent, fixed_dollar, or proportional"})
		return
	}
	if method != models.AllocProportional && req.AllocationValue <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "allocation_value must be positive"})
		return
	}

	// Subscribing requires a connection to copy through. Revocation after
	// subscribing is handled at execution time instead.
	if _, err := h.store.GetActiveConnection(c.Request.Context(), req.FollowerID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "follower has no active brokerage connection"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify brokerage connection"})
		return
	}

	rel := models.CopyRelationship{
		ID:              uuid.NewString(),
		FollowerID:      req.FollowerID,
		LeaderID:        req.LeaderID,
		Status:          models.RelationshipActive,
		Method:          method,
		AllocationValue: req.AllocationValue,

		MaxPositionSize:  req.MaxPositionSize,
		MaxRiskPerTrade:  req.MaxRiskPerTrade,
		AssetClassFilter: req.AssetClassFilter,

		CopyStopLoss:       req.CopyStopLoss,
		CopyTakeProfit:     req.CopyTakeProfit,
		StopLossOverride:   req.StopLossOverride,
		TakeProfitOverride: req.TakeProfitOverride,
		TrailingStop:       req.TrailingStop,
		StopCopyingOnLoss:  req.StopCopyingOnLoss,

		CreatedAt: time.Now().UTC(),
	}

	if err := h.store.CreateRelationship(c.Request.Context(), rel); err != nil {
		if errors.Is(err, storage.ErrDuplicateRelationship) {
			c.JSON(http.StatusConflict, gin.H{"error": "relationship already exists for this follower and leader"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create relationship"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"relationship": rel,
	})
}

// StopRelationship stops copying without deleting history.
func (h *Handler) StopRelationship(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "relationship ID required"})
		return
	}

	if err := h.store.StopRelationship(c.Request.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "relationship not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to stop relationship"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
	})
}

// GetRelationship returns one relationship by ID.
func (h *Handler) GetRelationship(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "relationship ID required"})
		return
	}

	rel, err := h.store.GetRelationship(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "relationship not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load relationship"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"relationship": rel,
	})
}

// GetFollowerExecutions returns a follower's copy execution audit trail.
func (h *Handler) GetFollowerExecutions(c *gin.Context) {
	followerID := c.Param("id")
	if followerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "follower ID required"})
		return
	}

	limit := 200
	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 1000 {
			limit = l
		}
	}

	executions, err := h.store.ListExecutionsForFollower(c.Request.Context(), followerID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load executions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"executions": executions,
		"count":      len(executions),
	})
}

// GetTradeExecutions returns every follower outcome for one leader trade.
func (h *Handler) GetTradeExecutions(c *gin.Context) {
	tradeID := c.Param("id")
	if tradeID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "trade ID required"})
		return
	}

	executions, err := h.store.ListExecutionsForTrade(c.Request.Context(), tradeID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load executions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"executions": executions,
		"count":      len(executions),
	})
}

// GetMetrics reports the latest run summary per worker component.
func (h *Handler) GetMetrics(c *gin.Context) {
	runs, err := h.metrics.LastRuns(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load run summaries"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"runs": runs,
	})
}

// Health is a liveness probe.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
