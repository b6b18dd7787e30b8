package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/sqlforge/sqlforge/internal/models"
)

const version = "1.0.0"

// Pinger is implemented by storage backends that can report connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	storage    Pinger
	llmEnabled bool
}

func NewHealthHandler(storage Pinger, llmEnabled bool) *HealthHandler {
	return &HealthHandler{storage: storage, llmEnabled: llmEnabled}
}

// Health handles GET /health with a storage connectivity check.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"server": "ok"}
	overallStatus := "healthy"

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if h.storage != nil {
		if err := h.storage.Ping(ctx); err != nil {
			checks["storage"] = "unavailable: " + err.Error()
			overallStatus = "degraded"
		} else {
			checks["storage"] = "ok"
		}
	} else {
		checks["storage"] = "memory"
	}

	if h.llmEnabled {
		checks["llm"] = "configured"
	} else {
		checks["llm"] = "disabled"
	}

	statusCode := http.StatusOK
	if overallStatus == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	models.WriteJSON(w, statusCode, models.HealthResponse{
		Status:  overallStatus,
		Version: version,
		Checks:  checks,
	})
}
