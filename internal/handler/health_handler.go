package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/union-api/internal/service"
	"github.com/noah-isme/union-api/pkg/jobs"
)

const pingTimeout = 2 * time.Second

type dbPinger interface {
	PingContext(ctx context.Context) error
}

type cachePinger interface {
	Ping(ctx context.Context) error
}

type queueStats interface {
	Stats() jobs.Stats
}

// HealthHandler exposes liveness, readiness and metrics endpoints.
type HealthHandler struct {
	db      dbPinger
	cache   cachePinger
	metrics *service.MetricsService
	audit   queueStats
	started time.Time
	now     func() time.Time
}

// NewHealthHandler constructs a health handler. cache may be nil when Redis is off.
func NewHealthHandler(db dbPinger, cache cachePinger, metrics *service.MetricsService) *HealthHandler {
	return &HealthHandler{db: db, cache: cache, metrics: metrics, started: time.Now(), now: time.Now}
}

// WithAuditStats reports the audit writer queue in the detailed health payload.
func (h *HealthHandler) WithAuditStats(audit queueStats) *HealthHandler {
	h.audit = audit
	return h
}

// Root godoc
// @Summary Service banner
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router / [get]
func (h *HealthHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"name": "Student Union API", "status": "ok"})
}

// Live responds with a generic OK payload for liveness checks.
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready reports 503 until the database answers.
func (h *HealthHandler) Ready(c *gin.Context) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// Detailed godoc
// @Summary Dependency health
// @Description Database and cache state, audit queue counters and process uptime
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /api/health [get]
func (h *HealthHandler) Detailed(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
	defer cancel()

	status := http.StatusOK
	database := "connected"
	if h.db == nil || h.db.PingContext(ctx) != nil {
		database = "disconnected"
		status = http.StatusServiceUnavailable
	}

	cache := "disabled"
	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			cache = "unavailable"
		} else {
			cache = "connected"
		}
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}

	payload := gin.H{
		"status":    overall,
		"database":  database,
		"cache":     cache,
		"uptime":    h.now().Sub(h.started).Round(time.Second).String(),
		"timestamp": h.now().UTC(),
	}
	if h.audit != nil {
		payload["audit"] = h.audit.Stats()
	}
	c.JSON(status, payload)
}

// Prometheus serves the Prometheus metrics endpoint.
func (h *HealthHandler) Prometheus(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}
