package providers

import (
	"net/http"

	"github.com/mihaisavezi/endpoint-proxy/internal/auth"
)

// DefaultCompatibleBaseURL is used when a compatible connection has no baseUrl.
const DefaultCompatibleBaseURL = "https://api.openai.com/v1"

// CompatibleEndpoint serves every openai-compatible-* connection. The base URL
// comes from the connection's provider-specific data.
type CompatibleEndpoint struct {
	name string
}

func NewCompatibleEndpoint() *CompatibleEndpoint {
	return &CompatibleEndpoint{
		name: KindCompatible.String(),
	}
}

func (e *CompatibleEndpoint) Kind() Kind {
	return KindCompatible
}

func (e *CompatibleEndpoint) Name() string {
	return e.name
}

func (e *CompatibleEndpoint) ChatURL(creds *auth.Credentials) string {
	return joinBase(creds.BaseURL(), DefaultCompatibleBaseURL, "/chat/completions")
}

func (e *CompatibleEndpoint) EmbeddingsURL(creds *auth.Credentials) string {
	return joinBase(creds.BaseURL(), DefaultCompatibleBaseURL, "/embeddings")
}

func (e *CompatibleEndpoint) SetHeaders(_ http.Header) {}
