package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/mihaisavezi/endpoint-proxy/internal/config"
)

const (
	StatusActive = "active"
	StatusError  = "error"
)

type connectionError struct {
	code    int
	message string
	at      time.Time
}

// StatusTracker remembers the last upstream failure per connection until a
// later request through that connection succeeds.
type StatusTracker struct {
	mu     sync.RWMutex
	errors map[string]connectionError
	now    func() time.Time
}

func NewStatusTracker() *StatusTracker {
	return &StatusTracker{
		errors: make(map[string]connectionError),
		now:    time.Now,
	}
}

func (t *StatusTracker) RecordFailure(connection string, code int, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.errors[connection] = connectionError{code: code, message: message, at: t.now().UTC()}
}

func (t *StatusTracker) Clear(connection string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.errors, connection)
}

// ConnectionStatus is one entry of GET /api/providers.
type ConnectionStatus struct {
	Name        string     `json:"name"`
	Provider    string     `json:"provider"`
	Models      int        `json:"models"`
	TestStatus  string     `json:"testStatus"`
	LastError   string     `json:"lastError,omitempty"`
	ErrorCode   int        `json:"errorCode,omitempty"`
	LastErrorAt *time.Time `json:"lastErrorAt,omitempty"`
}

func (t *StatusTracker) Status(name, provider string, models int) ConnectionStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	st := ConnectionStatus{Name: name, Provider: provider, Models: models, TestStatus: StatusActive}

	if e, ok := t.errors[name]; ok {
		at := e.at
		st.TestStatus = StatusError
		st.LastError = e.message
		st.ErrorCode = e.code
		st.LastErrorAt = &at
	}

	return st
}

// ProvidersHandler lists configured connections with their last known state.
type ProvidersHandler struct {
	config *config.Manager
	proxy  *ProxyHandler
	status *StatusTracker
	logger *slog.Logger
}

func NewProvidersHandler(config *config.Manager, proxy *ProxyHandler, status *StatusTracker, logger *slog.Logger) *ProvidersHandler {
	return &ProvidersHandler{
		config: config,
		proxy:  proxy,
		status: status,
		logger: logger,
	}
}

func (h *ProvidersHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cfg := h.config.Get()

	connections := make([]ConnectionStatus, 0, len(cfg.Providers))
	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		connections = append(connections, h.status.Status(p.Name, h.proxy.providerID(p), len(p.GetAllowedModels())))
	}

	writeJSON(w, http.StatusOK, map[string]any{"connections": connections}, h.logger)
}

func writeJSON(w http.ResponseWriter, code int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to write response", "error", err)
	}
}
