package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/shortforge-go/internal/app"
	"github.com/yourusername/shortforge-go/internal/domain"
	"github.com/yourusername/shortforge-go/internal/infrastructure"
	"go.uber.org/zap"
)

// RunHandler handles run-related HTTP requests
type RunHandler struct {
	runMgr *app.RunManager
	logger *zap.Logger
}

// NewRunHandler creates a new run handler
func NewRunHandler(runMgr *app.RunManager, logger *zap.Logger) *RunHandler {
	return &RunHandler{
		runMgr: runMgr,
		logger: logger,
	}
}

// CreateRunRequest represents a request to generate a video
type CreateRunRequest struct {
	Topic       string `json:"topic" binding:"required"`
	AspectRatio string `json:"aspect_ratio,omitempty"`
}

// CreateRun handles POST /api/v1/runs
func (h *RunHandler) CreateRun(c *gin.Context) {
	var req CreateRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	run, err := h.runMgr.Submit(req.Topic, domain.AspectRatio(req.AspectRatio))
	if err != nil {
		var valErr *domain.ValidationError
		switch {
		case errors.As(err, &valErr):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, app.ErrManagerClosed):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		default:
			h.logger.Error("Failed to submit run", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusAccepted, run)
}

// GetRun handles GET /api/v1/runs/:id
func (h *RunHandler) GetRun(c *gin.Context) {
	id := c.Param("id")

	run, err := h.runMgr.Get(id)
	if err != nil {
		if errors.Is(err, infrastructure.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
			return
		}
		h.logger.Error("Failed to get run", zap.String("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, run)
}

// ListRuns handles GET /api/v1/runs
func (h *RunHandler) ListRuns(c *gin.Context) {
	filters := make(map[string]interface{})

	if status := c.Query("status"); status != "" {
		filters["status"] = status
	}
	if aspect := c.Query("aspect_ratio"); aspect != "" {
		filters["aspect_ratio"] = aspect
	}

	runs, err := h.runMgr.List(filters)
	if err != nil {
		h.logger.Error("Failed to list runs", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, runs)
}

// GetStats handles GET /api/v1/runs/stats
func (h *RunHandler) GetStats(c *gin.Context) {
	stats, err := h.runMgr.Stats()
	if err != nil {
		h.logger.Error("Failed to get stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, stats)
}
