package handlers

import (
	"net/http"
	"time"

	"qalam-backend/internal/repository/ddb"
	"qalam-backend/pkg/api"
)

// IndexStates reports the readiness of the store's secondary indexes.
type IndexStates interface {
	States() map[string]ddb.IndexState
}

// HealthHandler answers liveness probes.
type HealthHandler struct {
	service string
	indexes IndexStates
	clock   func() time.Time
}

// NewHealthHandler creates a health handler. indexes may be nil when the
// store has no secondary indexes to report.
func NewHealthHandler(service string, indexes IndexStates) *HealthHandler {
	return &HealthHandler{service: service, indexes: indexes, clock: time.Now}
}

// Health handles GET /health. The service stays healthy while indexes are
// building because lookups fall back to scans.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := api.HealthResponse{
		Status:    "healthy",
		Service:   h.service,
		Timestamp: h.clock().UTC().Format(time.RFC3339),
	}
	if h.indexes != nil {
		states := h.indexes.States()
		resp.Indexes = make(map[string]string, len(states))
		for name, state := range states {
			resp.Indexes[name] = string(state)
		}
	}
	api.Success(w, http.StatusOK, resp)
}
