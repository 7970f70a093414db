package handlers

import (
	"log/slog"
	"net/http"

	"github.com/mihaisavezi/endpoint-proxy/internal/config"
	"github.com/mihaisavezi/endpoint-proxy/internal/providers"
)

type modelEntry struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by"`
}

type modelList struct {
	Object string       `json:"object"`
	Data   []modelEntry `json:"data"`
}

// ModelsHandler serves GET /v1/models in the OpenAI list shape. Every id is
// routable as is.
type ModelsHandler struct {
	config *config.Manager
	logger *slog.Logger
}

func NewModelsHandler(config *config.Manager, logger *slog.Logger) *ModelsHandler {
	return &ModelsHandler{
		config: config,
		logger: logger,
	}
}

func (h *ModelsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cfg := h.config.Get()

	list := modelList{Object: "list", Data: []modelEntry{}}

	for _, p := range cfg.Providers {
		for _, m := range p.GetAllowedModels() {
			list.Data = append(list.Data, modelEntry{
				ID:      providers.ModelInfo{Provider: p.Name, Model: m}.String(),
				Object:  "model",
				OwnedBy: p.Name,
			})
		}
	}

	writeJSON(w, http.StatusOK, list, h.logger)
}
