package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// StoreChecker is implemented by both storage backends.
type StoreChecker interface {
	Ping(ctx context.Context) error
	SchemaVersion(ctx context.Context) (int64, error)
}

type HealthResponse struct {
	Status        string `json:"status"`
	Store         string `json:"store"`
	SchemaVersion int64  `json:"schemaVersion,omitempty"`
}

// HealthHandler reports whether the server can reach its store.
type HealthHandler struct {
	store   StoreChecker
	backend string
	logger  *slog.Logger
}

// NewHealthHandler creates a HealthHandler. backend ("sqlite", "postgres")
// is echoed in the response.
func NewHealthHandler(store StoreChecker, backend string, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{store: store, backend: backend, logger: logger}
}

// HandleHealth pings the store with a short timeout.
//
// HTTP: GET /healthz
// RESPONSE: 200 {"status":"ok","store":"sqlite","schemaVersion":2}
//
//	503 {"status":"unavailable","store":"sqlite"}
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.logger.Error("health check: store unreachable", slog.String("error", err.Error()))
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable", Store: h.backend})
		return
	}

	version, err := h.store.SchemaVersion(ctx)
	if err != nil {
		h.logger.Warn("health check: reading schema version", slog.String("error", err.Error()))
	}

	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Store: h.backend, SchemaVersion: version})
}
