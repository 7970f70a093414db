package providers

import (
	"net/http"

	"github.com/mihaisavezi/endpoint-proxy/internal/auth"
)

const (
	OpenRouterChatURL       = "https://openrouter.ai/api/v1/chat/completions"
	OpenRouterEmbeddingsURL = "https://openrouter.ai/api/v1/embeddings"

	// Attribution headers required by OpenRouter's terms of use.
	OpenRouterReferer = "https://endpoint-proxy.local"
	OpenRouterTitle   = "Endpoint Proxy"
)

type OpenRouterEndpoint struct {
	name string
}

func NewOpenRouterEndpoint() *OpenRouterEndpoint {
	return &OpenRouterEndpoint{
		name: IDOpenRouter,
	}
}

func (e *OpenRouterEndpoint) Kind() Kind {
	return KindOpenRouter
}

func (e *OpenRouterEndpoint) Name() string {
	return e.name
}

func (e *OpenRouterEndpoint) ChatURL(_ *auth.Credentials) string {
	return OpenRouterChatURL
}

func (e *OpenRouterEndpoint) EmbeddingsURL(_ *auth.Credentials) string {
	return OpenRouterEmbeddingsURL
}

func (e *OpenRouterEndpoint) SetHeaders(h http.Header) {
	h.Set("HTTP-Referer", OpenRouterReferer)
	h.Set("X-Title", OpenRouterTitle)
}
