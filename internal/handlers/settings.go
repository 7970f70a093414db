package handlers

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/mihaisavezi/endpoint-proxy/internal/config"
)

// SettingsHandler exports and imports the whole configuration document.
type SettingsHandler struct {
	config *config.Manager
	logger *slog.Logger
}

func NewSettingsHandler(config *config.Manager, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{
		config: config,
		logger: logger,
	}
}

// Export handles GET /api/settings.
func (h *SettingsHandler) Export(w http.ResponseWriter, r *http.Request) {
	data, err := h.config.Export()
	if err != nil {
		h.logger.Error("Failed to export config", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to export config"}, h.logger)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="endpoint-proxy-config.json"`)
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write(data); err != nil {
		h.logger.Error("Failed to write export", "error", err)
	}
}

// Import handles POST /api/settings. The document replaces the stored
// configuration only when it validates.
func (h *SettingsHandler) Import(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxRequestBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Failed to read request body"}, h.logger)
		return
	}

	if err := h.config.Import(data); err != nil {
		h.logger.Warn("Rejected config import", "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()}, h.logger)

		return
	}

	h.logger.Info("Imported config", "path", h.config.GetPath())
	writeJSON(w, http.StatusOK, map[string]bool{"success": true}, h.logger)
}
