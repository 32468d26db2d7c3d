package handlers

import (
	"context"
	"net/http"
	"time"

	"incident-report-bot/models"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const serviceName = "incident-report-bot"

// RunSource returns the most recent run, or nil when none has finished.
type RunSource interface {
	LastRun(ctx context.Context) (*models.RunEvent, error)
}

// Handlers serves health, status and metrics.
type Handlers struct {
	runs RunSource
	log  log.Interface
}

func NewHandlers(runs RunSource, logger log.Interface) *Handlers {
	return &Handlers{runs: runs, log: logger}
}

// HealthCheck handles health check requests
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": serviceName,
	})
}

// GetStatus returns the outcome of the last run
func (h *Handlers) GetStatus(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	last, err := h.runs.LastRun(ctx)
	if err != nil {
		h.log.WithError(err).Warn("Failed to get last run")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get bot status",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"service":  serviceName,
		"last_run": last,
	})
}

// NewRouter wires the status routes.
func NewRouter(h *Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	api := router.Group("/api/v1")
	{
		api.GET("/health", h.HealthCheck)
		api.GET("/status", h.GetStatus)
	}
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return router
}
