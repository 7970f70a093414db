package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/pkoukk/tiktoken-go"
	"github.com/tidwall/gjson"

	"github.com/mihaisavezi/endpoint-proxy/internal/auth"
	"github.com/mihaisavezi/endpoint-proxy/internal/config"
	"github.com/mihaisavezi/endpoint-proxy/internal/dispatch"
	"github.com/mihaisavezi/endpoint-proxy/internal/middleware"
	"github.com/mihaisavezi/endpoint-proxy/internal/providers"
)

// MaxRequestBytes bounds inbound request bodies.
const MaxRequestBytes = 32 << 20

var errProviderNotConfigured = errors.New("provider not found in configuration")

// ProxyHandler serves the OpenAI-compatible endpoints and hands every call to
// the dispatcher.
type ProxyHandler struct {
	config     *config.Manager
	registry   *providers.Registry
	dispatcher *dispatch.Dispatcher
	status     *StatusTracker
	logger     *slog.Logger
}

func NewProxyHandler(config *config.Manager, registry *providers.Registry, dispatcher *dispatch.Dispatcher, status *StatusTracker, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		config:     config,
		registry:   registry,
		dispatcher: dispatcher,
		status:     status,
		logger:     logger,
	}
}

type dispatchFunc func(ctx context.Context, body []byte, info providers.ModelInfo, creds *auth.Credentials, opts dispatch.Options) dispatch.Result

// Embeddings handles POST /v1/embeddings.
func (h *ProxyHandler) Embeddings(w http.ResponseWriter, r *http.Request) {
	cfg := h.config.Get()

	fallback := cfg.Router.Embeddings
	if fallback == "" {
		fallback = cfg.Router.Default
	}

	h.serve(w, r, "embeddings", fallback, h.dispatcher.Embeddings)
}

// ChatCompletions handles POST /v1/chat/completions.
func (h *ProxyHandler) ChatCompletions(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "chat", h.config.Get().Router.Default, h.dispatcher.ChatCompletions)
}

func (h *ProxyHandler) serve(w http.ResponseWriter, r *http.Request, operation, fallback string, run dispatchFunc) {
	cfg := h.config.Get()
	logger := h.logger.With("request_id", middleware.RequestIDFromContext(r.Context()))

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxRequestBytes))
	if err != nil {
		h.httpError(w, http.StatusBadRequest, "failed to read request body: %v", err)
		return
	}

	providerCfg, model, err := h.resolveTarget(gjson.GetBytes(body, "model").String(), fallback, cfg)
	if err != nil {
		h.httpError(w, http.StatusBadRequest, "%v", err)
		return
	}

	if !providerCfg.IsModelAllowed(model) {
		h.httpError(w, http.StatusForbidden, "model '%s' is not allowed for provider '%s'", model, providerCfg.Name)
		return
	}

	info := providers.ModelInfo{Provider: h.providerID(providerCfg), Model: model}

	inputTokens := 0
	if cfg.LogTokens {
		inputTokens = h.countInputTokens(string(body))
	}

	logger.Info("Proxying request",
		"operation", operation,
		"connection", providerCfg.Name,
		"provider", info.Provider,
		"model", info.Model,
		"input_tokens", inputTokens,
	)

	ctx := r.Context()
	if cfg.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	connection := providerCfg.Name

	result := run(ctx, body, info, providerCfg.ConnectionCredentials(), dispatch.Options{
		Logger: logger,
		OnCredentialsRefreshed: func(_ context.Context, refreshed *auth.Credentials) error {
			return h.config.UpdateProvider(connection, func(p *config.Provider) {
				p.Merge(refreshed)
			})
		},
		OnRequestSuccess: func(context.Context) error {
			h.status.Clear(connection)
			return nil
		},
	})

	h.logResult(logger, result, connection, inputTokens)
	result.Write(w)
}

// resolveTarget finds the configured connection and upstream model for a
// requested model. It accepts "provider/model", "provider,model", or a bare
// model listed by some connection, and falls back to the router default.
func (h *ProxyHandler) resolveTarget(requested, fallback string, cfg *config.Config) (*config.Provider, string, error) {
	if info, ok := providers.ParseModel(requested); ok {
		if p, found := cfg.FindProvider(info.Provider); found {
			return p, info.Model, nil
		}
	}

	if requested != "" {
		for i := range cfg.Providers {
			if cfg.Providers[i].HasModel(requested) {
				return &cfg.Providers[i], requested, nil
			}
		}
	}

	if info, ok := providers.ParseModel(fallback); ok && requested == "" {
		if p, found := cfg.FindProvider(info.Provider); found {
			return p, info.Model, nil
		}

		return nil, "", fmt.Errorf("provider '%s': %w", info.Provider, errProviderNotConfigured)
	}

	if requested == "" {
		return nil, "", errors.New("model is required and no default route is configured")
	}

	name := requested
	if info, ok := providers.ParseModel(requested); ok {
		name = info.Provider
	}

	return nil, "", fmt.Errorf("provider '%s': %w", name, errProviderNotConfigured)
}

// providerID maps a configured connection onto a provider identifier. Known
// names are used as is; otherwise a connection with an API base is matched
// by domain, or joins the compatible family.
func (h *ProxyHandler) providerID(p *config.Provider) string {
	if providers.Parse(p.Name).Known() {
		return p.Name
	}

	if p.APIBase == "" {
		return p.Name
	}

	if known, err := h.registry.GetByDomain(p.APIBase); err == nil {
		return known.ID
	}

	return providers.CompatibleID(p.Name)
}

func (h *ProxyHandler) countInputTokens(text string) int {
	tke, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		h.logger.Error("Failed to get tiktoken encoding", "error", err)
		return 0
	}

	return len(tke.Encode(text, nil, nil))
}

func (h *ProxyHandler) logResult(logger *slog.Logger, result dispatch.Result, connection string, inputTokens int) {
	switch res := result.(type) {
	case *dispatch.Success:
		logFields := []any{
			"status", res.StatusCode,
			"input_tokens", inputTokens,
		}

		if usage := gjson.GetBytes(res.Body, "usage"); usage.Exists() {
			logFields = append(logFields,
				"prompt_tokens", usage.Get("prompt_tokens").Int(),
				"total_tokens", usage.Get("total_tokens").Int(),
			)
		}

		logger.Info("Successful response", logFields...)
	case *dispatch.Failure:
		if res.Kind == dispatch.UpstreamError || res.Kind == dispatch.GatewayError {
			h.status.RecordFailure(connection, res.Status, res.Message)
		}

		logger.Error("Upstream error response",
			"status", res.Status,
			"kind", res.Kind.String(),
			"error", res.Message,
		)
	}
}

func (h *ProxyHandler) httpError(w http.ResponseWriter, code int, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	h.logger.Error("HTTP Error", "code", code, "message", msg)

	(&dispatch.Failure{Status: code, Message: msg, Kind: dispatch.ClientInputError}).Write(w)
}
