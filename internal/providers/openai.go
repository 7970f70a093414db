package providers

import (
	"net/http"

	"github.com/mihaisavezi/endpoint-proxy/internal/auth"
)

const (
	OpenAIChatURL       = "https://api.openai.com/v1/chat/completions"
	OpenAIEmbeddingsURL = "https://api.openai.com/v1/embeddings"
)

type OpenAIEndpoint struct {
	name string
}

func NewOpenAIEndpoint() *OpenAIEndpoint {
	return &OpenAIEndpoint{
		name: IDOpenAI,
	}
}

func (e *OpenAIEndpoint) Kind() Kind {
	return KindOpenAI
}

func (e *OpenAIEndpoint) Name() string {
	return e.name
}

func (e *OpenAIEndpoint) ChatURL(_ *auth.Credentials) string {
	return OpenAIChatURL
}

func (e *OpenAIEndpoint) EmbeddingsURL(_ *auth.Credentials) string {
	return OpenAIEmbeddingsURL
}

func (e *OpenAIEndpoint) SetHeaders(_ http.Header) {}
