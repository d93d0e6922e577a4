package api

import (
	"net/http"
	"time"

	"github.com/priceline/replacement-pricer/server/internal/api/respond"
	"github.com/priceline/replacement-pricer/server/internal/health"
)

// HealthHandler serves the aggregate service health flag.
type HealthHandler struct {
	checker *health.ServiceChecker
}

func NewHealthHandler(checker *health.ServiceChecker) *HealthHandler {
	return &HealthHandler{checker: checker}
}

// CheckHealth handles GET /api/health. Always returns 200; body reports
// healthy/unhealthy. 500 indicates a handler failure, not a dependency one.
func (h *HealthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	status := "unhealthy"
	if h.checker.IsHealthy() {
		status = "healthy"
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
