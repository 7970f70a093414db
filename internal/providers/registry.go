package providers

import (
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"

	"github.com/mihaisavezi/endpoint-proxy/internal/auth"
)

// Endpoint knows where one kind of upstream lives and which extra headers it
// expects.
type Endpoint interface {
	Kind() Kind
	Name() string
	// ChatURL returns "" when the endpoint cannot be resolved.
	ChatURL(creds *auth.Credentials) string
	// EmbeddingsURL returns "" when the upstream has no embeddings API.
	EmbeddingsURL(creds *auth.Credentials) string
	SetHeaders(h http.Header)
}

// Registry manages endpoint instances. It is populated by Initialize before
// it is shared and only read afterwards.
type Registry struct {
	endpoints map[Kind]Endpoint
}

func NewRegistry() *Registry {
	return &Registry{
		endpoints: make(map[Kind]Endpoint),
	}
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide registry with every built-in endpoint.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry()
		defaultRegistry.Initialize()
	})

	return defaultRegistry
}

// Register adds an endpoint to the registry
func (r *Registry) Register(endpoint Endpoint) {
	r.endpoints[endpoint.Kind()] = endpoint
}

// Get retrieves the endpoint for a kind
func (r *Registry) Get(kind Kind) (Endpoint, bool) {
	if r == nil {
		return nil, false
	}

	endpoint, exists := r.endpoints[kind]

	return endpoint, exists
}

// Endpoint resolves a parsed provider. Unknown providers never resolve.
func (r *Registry) Endpoint(p Provider) (Endpoint, bool) {
	if !p.Known() {
		return nil, false
	}

	return r.Get(p.Kind)
}

// GetByDomain returns the built-in provider serving the API base URL domain
func (r *Registry) GetByDomain(apiBase string) (Provider, error) {
	u, err := url.Parse(apiBase)
	if err != nil {
		return Provider{}, fmt.Errorf("invalid API base URL: %w", err)
	}

	domain := strings.ToLower(u.Hostname())

	domainProviderMap := map[string]string{
		"openrouter.ai":     IDOpenRouter,
		"api.openrouter.ai": IDOpenRouter,
		"api.openai.com":    IDOpenAI,
		"openai.com":        IDOpenAI,
		"api2.cursor.sh":    IDCursor,
		"cursor.sh":         IDCursor,
	}

	if id, exists := domainProviderMap[domain]; exists {
		p := Parse(id)
		if _, found := r.Get(p.Kind); found {
			return p, nil
		}
	}

	return Provider{}, fmt.Errorf("no provider found for domain: %s", domain)
}

// List returns all registered endpoint names, sorted
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.endpoints))
	for _, endpoint := range r.endpoints {
		names = append(names, endpoint.Name())
	}

	slices.Sort(names)

	return names
}

// Initialize registers all built-in endpoints
func (r *Registry) Initialize() {
	r.Register(NewOpenAIEndpoint())
	r.Register(NewOpenRouterEndpoint())
	r.Register(NewCompatibleEndpoint())
	r.Register(NewCursorEndpoint())
}
