package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthResponse is the body of GET /api/healthcheck
type HealthResponse struct {
	Status          string    `json:"status"`
	Message         string    `json:"message"`
	Timestamp       time.Time `json:"timestamp"`
	Version         string    `json:"version"`
	ModelConfigured bool      `json:"modelConfigured"`
	Database        string    `json:"database,omitempty"`
}

const storePingTimeout = 2 * time.Second

// Healthcheck reports readiness. A missing model key is a warning, not a
// failure, since chat degrades to the fallback answer.
func (h *Handler) Healthcheck(c *gin.Context) {
	resp := HealthResponse{
		Status:          "ok",
		Message:         "API is running",
		Timestamp:       h.now().UTC(),
		Version:         h.version,
		ModelConfigured: h.modelConfigured,
	}
	if !h.modelConfigured {
		resp.Status = "warning"
		resp.Message = "API is running but the language model is not configured"
	}
	if h.store != nil {
		resp.Database = "ok"
		if err := h.store.Ping(c.Request.Context(), storePingTimeout); err != nil {
			h.log.WarnWithFieldsCtx(c.Request.Context(), "Store ping failed", map[string]interface{}{
				"error": err.Error(),
			})
			resp.Database = "unreachable"
			resp.Status = "warning"
			resp.Message = "API is running but the database is unreachable"
		}
	}

	c.JSON(http.StatusOK, resp)
}

// Liveness answers load balancer health checks
func (h *Handler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": h.now().UTC()})
}
