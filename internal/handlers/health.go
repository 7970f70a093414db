package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/mihaisavezi/endpoint-proxy/internal/config"
)

type HealthHandler struct {
	config *config.Manager
	logger *slog.Logger
}

func NewHealthHandler(config *config.Manager, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		config: config,
		logger: logger,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	resp := map[string]any{
		"status":    "ok",
		"providers": len(h.config.Get().Providers),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("Failed to write health check response", "error", err)
	}
}
