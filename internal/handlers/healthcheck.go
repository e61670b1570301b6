package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/platebook/importer-backend/internal/health"
)

// HealthHandler reports dependency health: 200 while every probe passes,
// 503 with per-probe detail otherwise.
type HealthHandler struct {
	monitor *health.Monitor
}

func NewHealthHandler(monitor *health.Monitor) *HealthHandler {
	return &HealthHandler{monitor: monitor}
}

// GET /healthz
func (h *HealthHandler) Healthz(c *gin.Context) {
	checks := h.monitor.Check(c.Request.Context())

	healthy := true
	detail := make([]gin.H, 0, len(checks))
	for _, chk := range checks {
		entry := gin.H{"name": chk.Name, "healthy": chk.Healthy}
		if chk.Error != "" {
			entry["error"] = chk.Error
		}
		if !chk.Healthy {
			healthy = false
		}
		detail = append(detail, entry)
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"healthy": healthy, "checks": detail})
}
