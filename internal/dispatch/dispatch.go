// Package dispatch runs one upstream call end to end: build the provider
// request, send it, refresh expired credentials and replay once, then parse
// and normalize the response. Every outcome is returned as a Result.
package dispatch

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/andybalholm/brotli"

	"github.com/mihaisavezi/endpoint-proxy/internal/auth"
	"github.com/mihaisavezi/endpoint-proxy/internal/logging"
	"github.com/mihaisavezi/endpoint-proxy/internal/providers"
	"github.com/mihaisavezi/endpoint-proxy/internal/translator"
)

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options carry the per-call collaborators. Every field is optional.
type Options struct {
	Logger logging.Logger
	// OnCredentialsRefreshed receives the refreshed values after they have
	// been merged into the caller's credentials.
	OnCredentialsRefreshed func(ctx context.Context, refreshed *auth.Credentials) error
	// OnRequestSuccess runs before a Success is returned.
	OnRequestSuccess   func(ctx context.Context) error
	MaxRefreshAttempts int
}

func (o Options) refreshAttempts() int {
	if o.MaxRefreshAttempts > 0 {
		return o.MaxRefreshAttempts
	}

	return auth.DefaultRefreshAttempts
}

// Dispatcher holds the read-only lookup tables shared by all calls. It keeps
// no per-call state and is safe for concurrent use.
type Dispatcher struct {
	client      Doer
	endpoints   *providers.Registry
	executors   *auth.Executors
	translators *translator.Registry
}

// New creates a Dispatcher. Nil arguments fall back to http.DefaultClient and
// the built-in registries.
func New(client Doer, endpoints *providers.Registry, executors *auth.Executors, translators *translator.Registry) *Dispatcher {
	if client == nil {
		client = http.DefaultClient
	}

	if endpoints == nil {
		endpoints = providers.Default()
	}

	if executors == nil {
		executors = auth.DefaultExecutors(nil)
	}

	if translators == nil {
		translators = translator.Builtin()
	}

	return &Dispatcher{
		client:      client,
		endpoints:   endpoints,
		executors:   executors,
		translators: translators,
	}
}

// operation is what differs between the embeddings and chat flows.
type operation struct {
	name      string
	build     func(p providers.Provider, creds *auth.Credentials) (*providers.Request, error)
	normalize func(p providers.Provider, model string, body []byte) ([]byte, error)
}

// Embeddings dispatches an OpenAI-shaped embeddings request.
//
// creds is borrowed for the duration of the call and refreshed values are
// merged into it in place without locking. Callers sharing one
// *auth.Credentials across concurrent calls must serialize them or accept
// that the last merge wins.
func (d *Dispatcher) Embeddings(ctx context.Context, body []byte, info providers.ModelInfo, creds *auth.Credentials, opts Options) Result {
	return d.execute(ctx, operation{
		name: "embeddings",
		build: func(p providers.Provider, creds *auth.Credentials) (*providers.Request, error) {
			return d.endpoints.BuildEmbeddingsRequest(p, creds, info.Model, body)
		},
		normalize: func(_ providers.Provider, _ string, body []byte) ([]byte, error) {
			return normalizeEmbeddings(body)
		},
	}, info, creds, opts)
}

// ChatCompletions dispatches a non-streaming OpenAI-shaped chat request,
// translating it for upstreams that speak another dialect. The credential
// contract is the same as for Embeddings.
func (d *Dispatcher) ChatCompletions(ctx context.Context, body []byte, info providers.ModelInfo, creds *auth.Credentials, opts Options) Result {
	return d.execute(ctx, operation{
		name: "chat",
		build: func(p providers.Provider, creds *auth.Credentials) (*providers.Request, error) {
			return d.endpoints.BuildChatRequest(p, creds, info.Model, body, d.translators)
		},
		normalize: d.normalizeChat,
	}, info, creds, opts)
}

func (d *Dispatcher) execute(ctx context.Context, op operation, info providers.ModelInfo, creds *auth.Credentials, opts Options) Result {
	log := logging.OrNop(opts.Logger)

	if creds == nil {
		creds = &auth.Credentials{}
	}

	p := providers.Parse(info.Provider)

	req, err := op.build(p, creds)
	if err != nil {
		return buildFailure(info, err)
	}

	log.Debug("Dispatching request",
		"operation", op.name,
		"provider", p.ID,
		"model", info.Model,
		"url", req.URL,
	)

	resp, err := d.send(ctx, req)
	if err != nil {
		log.Debug("Upstream request failed", "provider", p.ID, "error", err)
		return fail(GatewayError, http.StatusBadGateway,
			formatProviderError(p.ID, info.Model, http.StatusBadGateway, err.Error(), creds.Secrets()))
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		if retried := d.refreshAndRetry(ctx, req, p, creds, opts, log); retried != nil {
			resp = retried
		}
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		msg := formatProviderError(p.ID, info.Model, resp.StatusCode, parseUpstreamError(resp.StatusCode, resp.Body), creds.Secrets())
		log.Debug("Provider error", "operation", op.name, "status", resp.StatusCode, "error", msg)

		return fail(UpstreamError, resp.StatusCode, msg)
	}

	if !json.Valid(resp.Body) {
		return fail(GatewayError, http.StatusBadGateway, fmt.Sprintf("Invalid JSON response from %s", p.ID))
	}

	normalized, err := op.normalize(p, info.Model, resp.Body)
	if err != nil {
		return fail(GatewayError, http.StatusBadGateway,
			formatProviderError(p.ID, info.Model, http.StatusBadGateway, err.Error(), creds.Secrets()))
	}

	if opts.OnRequestSuccess != nil {
		if err := opts.OnRequestSuccess(ctx); err != nil {
			log.Warn("Request success callback failed", "provider", p.ID, "error", err)
		}
	}

	log.Debug("Dispatch succeeded", "operation", op.name, "provider", p.ID, "model", info.Model)

	return succeed(normalized)
}

// refreshAndRetry refreshes creds and replays req once with rebuilt
// headers. It returns nil when the refresh or the replay failed, in which case
// the caller keeps the original response.
func (d *Dispatcher) refreshAndRetry(ctx context.Context, req *providers.Request, p providers.Provider, creds *auth.Credentials, opts Options, log logging.Logger) *upstreamResponse {
	executor := d.executors.For(p.ID)

	refreshed := auth.RefreshWithRetry(ctx, func(ctx context.Context) (*auth.Credentials, error) {
		return executor.RefreshCredentials(ctx, creds, log)
	}, opts.refreshAttempts(), log)

	if refreshed == nil {
		log.Warn("Credential refresh failed", "provider", p.ID)
		return nil
	}

	log.Info("Credentials refreshed", "provider", p.ID)

	creds.Merge(refreshed)

	if opts.OnCredentialsRefreshed != nil {
		if err := opts.OnCredentialsRefreshed(ctx, refreshed); err != nil {
			log.Warn("Credentials refreshed callback failed", "provider", p.ID, "error", err)
		}
	}

	header, err := d.endpoints.Headers(p, creds)
	if err != nil {
		log.Warn("Rebuilding headers after refresh failed", "provider", p.ID, "error", err)
		return nil
	}

	retry := *req
	retry.Header = header

	resp, err := d.send(ctx, &retry)
	if err != nil {
		log.Warn("Retry after credential refresh failed", "provider", p.ID, "error", err)
		return nil
	}

	return resp
}

// upstreamResponse is a fully read, decoded upstream response.
type upstreamResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (d *Dispatcher) send(ctx context.Context, req *providers.Request) (*upstreamResponse, error) {
	httpReq, err := req.HTTPRequest(ctx)
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Accept-Encoding", "gzip, br")

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	bodyReader, err := decompressReader(resp)
	if err != nil {
		return nil, fmt.Errorf("decompression error: %w", err)
	}

	if closer, ok := bodyReader.(io.Closer); ok && bodyReader != resp.Body {
		defer closer.Close()
	}

	body, err := io.ReadAll(bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to read upstream response: %w", err)
	}

	return &upstreamResponse{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

func decompressReader(resp *http.Response) (io.Reader, error) {
	var bodyReader io.Reader = resp.Body

	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		bodyReader = gzipReader
	case "br":
		bodyReader = brotli.NewReader(resp.Body)
	}

	return bodyReader, nil
}

// buildFailure classifies a request-building error. Every message names the
// provider and model the caller asked for.
func buildFailure(info providers.ModelInfo, err error) *Failure {
	msg := fmt.Sprintf("%s: %v", info, err)

	switch {
	case errors.Is(err, providers.ErrUnsupportedProvider):
		return fail(UnsupportedProviderError, http.StatusBadRequest, msg)
	case errors.Is(err, providers.ErrMissingTranslator):
		return fail(UnsupportedProviderError, http.StatusInternalServerError, msg)
	case errors.Is(err, providers.ErrInvalidBody),
		errors.Is(err, providers.ErrMissingInput),
		errors.Is(err, providers.ErrInvalidInput),
		errors.Is(err, providers.ErrInvalidMessages),
		errors.Is(err, providers.ErrStreamingUnsupported):
		return fail(ClientInputError, http.StatusBadRequest, msg)
	default:
		return fail(GatewayError, http.StatusInternalServerError, msg)
	}
}
