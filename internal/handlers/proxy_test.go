package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/mihaisavezi/endpoint-proxy/internal/auth"
	"github.com/mihaisavezi/endpoint-proxy/internal/config"
	"github.com/mihaisavezi/endpoint-proxy/internal/dispatch"
	"github.com/mihaisavezi/endpoint-proxy/internal/logging"
	"github.com/mihaisavezi/endpoint-proxy/internal/providers"
)

const upstreamEmbeddings = `{"object":"list","data":[{"object":"embedding","index":0,"embedding":[0.5,0.25]}],"model":"nomic-embed-text","usage":{"prompt_tokens":1,"total_tokens":1}}`

// upstream is a fake OpenAI-compatible server that records what it receives.
type upstream struct {
	*httptest.Server

	mu       sync.Mutex
	bodies   [][]byte
	auths    []string
	paths    []string
	handlers map[string]http.HandlerFunc
}

func newUpstream(t *testing.T, handlers map[string]http.HandlerFunc) *upstream {
	t.Helper()

	u := &upstream{handlers: handlers}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		u.mu.Lock()
		u.bodies = append(u.bodies, body)
		u.auths = append(u.auths, r.Header.Get("Authorization"))
		u.paths = append(u.paths, r.URL.Path)
		u.mu.Unlock()

		h, ok := u.handlers[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}

		h(w, r)
	}))
	t.Cleanup(u.Close)

	return u
}

type received struct {
	bodies [][]byte
	auths  []string
	paths  []string
}

func (u *upstream) received() received {
	u.mu.Lock()
	defer u.mu.Unlock()

	return received{
		bodies: append([][]byte(nil), u.bodies...),
		auths:  append([]string(nil), u.auths...),
		paths:  append([]string(nil), u.paths...),
	}
}

func jsonReply(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func newTestProxy(t *testing.T, cfg *config.Config, client *http.Client) (*ProxyHandler, *config.Manager) {
	t.Helper()

	mgr := config.NewManager(t.TempDir())
	require.NoError(t, mgr.Save(cfg))
	_, err := mgr.Load()
	require.NoError(t, err)

	registry := providers.Default()
	d := dispatch.New(client, registry, auth.DefaultExecutors(client), nil)

	return NewProxyHandler(mgr, registry, d, NewStatusTracker(), logging.Discard()), mgr
}

func localConfig(baseURL string) *config.Config {
	return &config.Config{
		Providers: []config.Provider{
			{
				Name:        "local",
				APIBase:     baseURL,
				Models:      []string{"nomic-embed-text", "bge-m3"},
				Credentials: auth.Credentials{APIKey: "local-key"},
			},
		},
		Router: config.RouterConfig{Default: "local/bge-m3", Embeddings: "local/nomic-embed-text"},
	}
}

func post(h http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, path, strings.NewReader(body)))

	return rec
}

func TestEmbeddings_RoutesToCompatibleConnection(t *testing.T) {
	up := newUpstream(t, map[string]http.HandlerFunc{"/embeddings": jsonReply(http.StatusOK, upstreamEmbeddings)})
	proxy, _ := newTestProxy(t, localConfig(up.URL), up.Client())

	tests := []struct {
		name  string
		body  string
		model string
	}{
		{"provider prefix", `{"model":"local/nomic-embed-text","input":"hi"}`, "nomic-embed-text"},
		{"comma form", `{"model":"local,bge-m3","input":"hi"}`, "bge-m3"},
		{"bare listed model", `{"model":"bge-m3","input":["a","b"]}`, "bge-m3"},
		{"router fallback", `{"input":"hi"}`, "nomic-embed-text"},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(proxy.Embeddings, "/v1/embeddings", tt.body)

			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.JSONEq(t, upstreamEmbeddings, rec.Body.String())

			got := up.received()
			require.Len(t, got.bodies, i+1)
			sent := got.bodies[i]
			assert.Equal(t, tt.model, gjson.GetBytes(sent, "model").String())
			assert.Equal(t, "float", gjson.GetBytes(sent, "encoding_format").String())
			assert.Equal(t, "Bearer local-key", got.auths[i])
			assert.Equal(t, "/embeddings", got.paths[i])
		})
	}
}

func TestEmbeddings_ClientErrors(t *testing.T) {
	up := newUpstream(t, map[string]http.HandlerFunc{"/embeddings": jsonReply(http.StatusOK, upstreamEmbeddings)})

	cfg := localConfig(up.URL)
	cfg.Providers[0].ModelWhitelist = []string{"nomic"}
	cfg.Router = config.RouterConfig{}

	proxy, _ := newTestProxy(t, cfg, up.Client())

	tests := []struct {
		name    string
		body    string
		status  int
		message string
	}{
		{"unconfigured provider", `{"model":"mistral/mistral-embed","input":"x"}`, http.StatusBadRequest, "mistral"},
		{"no model and no route", `{"input":"x"}`, http.StatusBadRequest, "no default route"},
		{"model not whitelisted", `{"model":"local/bge-m3","input":"x"}`, http.StatusForbidden, "not allowed"},
		{"missing input", `{"model":"local/nomic-embed-text"}`, http.StatusBadRequest, "input"},
		{"invalid input", `{"model":"local/nomic-embed-text","input":42}`, http.StatusBadRequest, "input"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(proxy.Embeddings, "/v1/embeddings", tt.body)

			assert.Equal(t, tt.status, rec.Code)

			var env dispatch.Envelope
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
			assert.False(t, env.Success)
			assert.Equal(t, tt.status, env.Status)
			assert.Contains(t, env.Error, tt.message)
		})
	}

	assert.Empty(t, up.received().bodies, "client errors never reach the upstream")
}

func TestEmbeddings_FailureStatusIsTrackedUntilSuccess(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)

	up := newUpstream(t, map[string]http.HandlerFunc{
		"/embeddings": func(w http.ResponseWriter, r *http.Request) {
			if fail.Load() {
				jsonReply(http.StatusInternalServerError, `{"error":{"message":"model overloaded"}}`)(w, r)
				return
			}

			jsonReply(http.StatusOK, upstreamEmbeddings)(w, r)
		},
	})

	proxy, mgr := newTestProxy(t, localConfig(up.URL), up.Client())
	statusHandler := NewProvidersHandler(mgr, proxy, proxy.status, logging.Discard())

	listStatus := func() gjson.Result {
		rec := httptest.NewRecorder()
		statusHandler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/providers", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		return gjson.Get(rec.Body.String(), "connections.0")
	}

	assert.Equal(t, StatusActive, listStatus().Get("testStatus").String())
	assert.Equal(t, "openai-compatible-local", listStatus().Get("provider").String())

	rec := post(proxy.Embeddings, "/v1/embeddings", `{"model":"local/nomic-embed-text","input":"x"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "model overloaded")

	st := listStatus()
	assert.Equal(t, StatusError, st.Get("testStatus").String())
	assert.Contains(t, st.Get("lastError").String(), "model overloaded")
	assert.Equal(t, int64(500), st.Get("errorCode").Int())
	assert.True(t, st.Get("lastErrorAt").Exists())

	fail.Store(false)

	rec = post(proxy.Embeddings, "/v1/embeddings", `{"model":"local/nomic-embed-text","input":"x"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, StatusActive, listStatus().Get("testStatus").String())
	assert.False(t, listStatus().Get("lastError").Exists())
}

func TestChatCompletions_RefreshedCredentialsArePersisted(t *testing.T) {
	up := newUpstream(t, map[string]http.HandlerFunc{
		"/v1/chat/completions": func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer fresh-token" {
				jsonReply(http.StatusUnauthorized, `{"error":{"message":"token expired"}}`)(w, r)
				return
			}

			jsonReply(http.StatusOK, `{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"hello"}}]}`)(w, r)
		},
		"/token": jsonReply(http.StatusOK, `{"access_token":"fresh-token","token_type":"Bearer","expires_in":3600}`),
	})

	cfg := &config.Config{
		Providers: []config.Provider{
			{
				Name:    "cursor",
				APIBase: up.URL,
				Credentials: auth.Credentials{
					AccessToken:  "stale-token",
					RefreshToken: "refresh-1",
					ProviderSpecificData: map[string]any{
						auth.DataKeyClientID: "client-1",
						auth.DataKeyTokenURL: up.URL + "/token",
					},
				},
			},
		},
	}

	proxy, mgr := newTestProxy(t, cfg, up.Client())

	rec := post(proxy.ChatCompletions, "/v1/chat/completions",
		`{"model":"cursor/gpt-4o","messages":[{"role":"user","content":"hi"}]}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "hello", gjson.Get(rec.Body.String(), "choices.0.message.content").String())

	got := up.received()
	assert.Equal(t, []string{"/v1/chat/completions", "/token", "/v1/chat/completions"}, got.paths)
	assert.Equal(t, []string{"Bearer stale-token", "", "Bearer fresh-token"}, got.auths)

	reloaded, err := mgr.Load()
	require.NoError(t, err)

	p, ok := reloaded.FindProvider("cursor")
	require.True(t, ok)
	assert.Equal(t, "fresh-token", p.AccessToken)
	assert.Equal(t, "refresh-1", p.RefreshToken)
	assert.False(t, p.ExpiresAt.IsZero())
	assert.Equal(t, "client-1", p.Data(auth.DataKeyClientID))
}

func TestChatCompletions_StreamingRejected(t *testing.T) {
	up := newUpstream(t, nil)
	proxy, _ := newTestProxy(t, localConfig(up.URL), up.Client())

	rec := post(proxy.ChatCompletions, "/v1/chat/completions",
		`{"model":"local/bge-m3","stream":true,"messages":[{"role":"user","content":"hi"}]}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, up.received().bodies)
}

func TestProviderID(t *testing.T) {
	proxy := &ProxyHandler{registry: providers.Default()}

	tests := []struct {
		provider config.Provider
		expected string
	}{
		{config.Provider{Name: "openai", APIBase: "https://api.openai.com/v1"}, "openai"},
		{config.Provider{Name: "cursor"}, "cursor"},
		{config.Provider{Name: "work-router", APIBase: "https://openrouter.ai/api/v1"}, "openrouter"},
		{config.Provider{Name: "ollama", APIBase: "http://localhost:11434/v1"}, "openai-compatible-ollama"},
		{config.Provider{Name: "mystery"}, "mystery"},
	}

	for _, tt := range tests {
		t.Run(tt.provider.Name, func(t *testing.T) {
			assert.Equal(t, tt.expected, proxy.providerID(&tt.provider))
		})
	}
}

func TestModelsHandler(t *testing.T) {
	mgr := config.NewManager(t.TempDir())
	require.NoError(t, mgr.Save(&config.Config{
		Providers: []config.Provider{
			{Name: "local", APIBase: "http://localhost:11434/v1", Models: []string{"bge-m3", "llama3"}, ModelWhitelist: []string{"bge"}},
			{Name: "openai", Models: []string{"gpt-4o"}},
		},
	}))
	_, err := mgr.Load()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	NewModelsHandler(mgr, logging.Discard()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/models", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"object":"list","data":[
		{"id":"local/bge-m3","object":"model","owned_by":"local"},
		{"id":"openai/gpt-4o","object":"model","owned_by":"openai"}
	]}`, rec.Body.String())
}

func TestSettingsHandler_ExportImport(t *testing.T) {
	mgr := config.NewManager(t.TempDir())
	require.NoError(t, mgr.Save(localConfig("http://localhost:11434/v1")))
	_, err := mgr.Load()
	require.NoError(t, err)

	h := NewSettingsHandler(mgr, logging.Discard())

	rec := httptest.NewRecorder()
	h.Export(rec, httptest.NewRequest(http.MethodGet, "/api/settings", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "local", gjson.Get(rec.Body.String(), "Providers.0.name").String())

	exported := rec.Body.String()

	rec = post(h.Import, "/api/settings", `{"Providers":[{"name":"a"},{"name":"a"}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.True(t, gjson.Get(rec.Body.String(), "error").Exists())

	rec = post(h.Import, "/api/settings", strings.Replace(exported, "local-key", "rotated-key", 1))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())
	assert.Equal(t, "rotated-key", mgr.Get().Providers[0].APIKey)
}

func TestHealthHandler(t *testing.T) {
	mgr := config.NewManager(t.TempDir())

	rec := httptest.NewRecorder()
	NewHealthHandler(mgr, logging.Discard()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","providers":0}`, rec.Body.String())
}
