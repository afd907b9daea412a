// Package api exposes the publisher's HTTP surface: publish and generate
// operations, publish history, breaker status, and the media streaming
// proxy.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/social-publisher/internal/generation"
	"github.com/jonesrussell/social-publisher/internal/logger"
	"github.com/jonesrussell/social-publisher/internal/metrics"
	"github.com/jonesrussell/social-publisher/internal/models"
	"github.com/jonesrussell/social-publisher/internal/publish"
	"github.com/jonesrussell/social-publisher/internal/redislock"
	"github.com/jonesrussell/social-publisher/internal/resilience"
)

// HistoryReader is the slice of the history repository the API uses.
type HistoryReader interface {
	ListHistory(ctx context.Context, filter *models.PublishHistoryFilter) ([]models.PublishHistory, error)
}

// Handlers provides HTTP handlers for the API
type Handlers struct {
	dispatcher   *publish.Dispatcher
	orchestrator *generation.Orchestrator
	history      HistoryReader
	metrics      *metrics.Metrics
	logger       logger.Logger
	version      string
}

// NewHandlers creates a new handlers instance. History and metrics may be
// nil when no database or registry is configured.
func NewHandlers(dispatcher *publish.Dispatcher, orchestrator *generation.Orchestrator, history HistoryReader, m *metrics.Metrics, log logger.Logger, version string) *Handlers {
	return &Handlers{
		dispatcher:   dispatcher,
		orchestrator: orchestrator,
		history:      history,
		metrics:      m,
		logger:       log,
		version:      version,
	}
}

// publishRequest is the body of POST /api/v1/publish.
type publishRequest struct {
	ContentID    string   `json:"content_id" binding:"required"`
	Destinations []string `json:"destinations"`
}

// Publish handles POST /api/v1/publish
func (h *Handlers) Publish(c *gin.Context) {
	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content_id is required"})
		return
	}

	results, err := h.dispatcher.Publish(c.Request.Context(), req.ContentID, req.Destinations)
	if err != nil {
		h.publishError(c, req.ContentID, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"content_id": req.ContentID,
		"results":    results,
	})
}

// publishError maps dispatch-level failures (before any destination ran) to
// response codes. Per-destination failures travel inside the results.
func (h *Handlers) publishError(c *gin.Context, contentID string, err error) {
	h.logger.Error("Publish request failed",
		logger.String("content_id", contentID),
		logger.Error(err),
	)
	switch {
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "content not found"})
	case errors.Is(err, redislock.ErrAlreadyLocked):
		c.JSON(http.StatusConflict, gin.H{"error": "content is already being published"})
	case errors.Is(err, models.ErrContentHasNoDestinations):
		c.JSON(http.StatusBadRequest, gin.H{"error": "content has no destinations"})
	case publish.IsUserActionable(err):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": resilience.RedactString(err.Error())})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": resilience.RedactString(err.Error())})
	}
}

// generateRequest is the body of POST /api/v1/generate.
type generateRequest struct {
	Model          string `json:"model" binding:"required"`
	Prompt         string `json:"prompt" binding:"required"`
	NegativePrompt string `json:"negative_prompt"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	NumImages      int    `json:"num_images"`
}

// Generate handles POST /api/v1/generate
func (h *Handlers) Generate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "model and prompt are required"})
		return
	}

	urls, err := h.orchestrator.Generate(c.Request.Context(), models.GenerationRequest{
		Model:          req.Model,
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Width:          req.Width,
		Height:         req.Height,
		NumImages:      req.NumImages,
	})
	if err != nil {
		h.observeGeneration(req.Model, "failed")
		h.generateError(c, req.Model, err)
		return
	}

	h.observeGeneration(req.Model, "ok")
	c.JSON(http.StatusOK, gin.H{"urls": urls})
}

func (h *Handlers) observeGeneration(model, status string) {
	if h.metrics == nil {
		return
	}
	h.metrics.GenerationJobs.WithLabelValues(model, status).Inc()
}

func (h *Handlers) generateError(c *gin.Context, model string, err error) {
	h.logger.Error("Generation request failed",
		logger.String("model", model),
		logger.Error(err),
	)
	redacted := resilience.RedactString(err.Error())
	switch {
	case errors.Is(err, generation.ErrUnknownModel):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  redacted,
			"models": h.orchestrator.Models(),
		})
	case errors.Is(err, generation.ErrGenerationTimedOut):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": redacted})
	case errors.Is(err, generation.ErrGenerationFailed),
		errors.Is(err, generation.ErrMalformedProviderResponse):
		c.JSON(http.StatusBadGateway, gin.H{"error": redacted})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": redacted})
	}
}

// GetHistory handles GET /api/v1/history
func (h *Handlers) GetHistory(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "history store is not configured"})
		return
	}

	filter := &models.PublishHistoryFilter{
		ContentID:   c.Query("content_id"),
		Destination: c.Query("destination"),
		Status:      models.ResultStatus(c.Query("status")),
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(c.DefaultQuery("offset", "0")); err == nil {
		filter.Offset = offset
	}
	if from := c.Query("from"); from != "" {
		if ts, err := time.Parse(time.RFC3339, from); err == nil {
			filter.StartDate = &ts
		}
	}
	if to := c.Query("to"); to != "" {
		if ts, err := time.Parse(time.RFC3339, to); err == nil {
			filter.EndDate = &ts
		}
	}

	history, err := h.history.ListHistory(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list publish history",
			logger.Error(err),
			logger.String("path", c.Request.URL.Path),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve publish history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"history": history,
		"count":   len(history),
	})
}

// GetBreakers handles GET /api/v1/status/breakers
func (h *Handlers) GetBreakers(c *gin.Context) {
	states := h.dispatcher.BreakerStates()
	out := make(map[string]string, len(states))
	for key, state := range states {
		out[key] = state.String()
	}
	c.JSON(http.StatusOK, gin.H{"breakers": out})
}

// ResetBreakers handles POST /api/v1/status/breakers/reset
func (h *Handlers) ResetBreakers(c *gin.Context) {
	h.dispatcher.ResetBreakers()
	h.logger.Info("Circuit breakers reset by operator")
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

// Health handles GET /health
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "social-publisher",
		"version": h.version,
	})
}
