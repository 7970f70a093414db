package providers

import (
	"net/http"

	"github.com/mihaisavezi/endpoint-proxy/internal/auth"
)

const DefaultCursorBaseURL = "https://api2.cursor.sh"

// CursorEndpoint is the one upstream that does not speak the OpenAI dialect;
// chat bodies go through the openai->cursor translator. It has no
// embeddings API.
type CursorEndpoint struct {
	name string
}

func NewCursorEndpoint() *CursorEndpoint {
	return &CursorEndpoint{
		name: IDCursor,
	}
}

func (e *CursorEndpoint) Kind() Kind {
	return KindCursor
}

func (e *CursorEndpoint) Name() string {
	return e.name
}

func (e *CursorEndpoint) ChatURL(creds *auth.Credentials) string {
	return joinBase(creds.BaseURL(), DefaultCursorBaseURL, "/v1/chat/completions")
}

func (e *CursorEndpoint) EmbeddingsURL(_ *auth.Credentials) string {
	return ""
}

func (e *CursorEndpoint) SetHeaders(_ http.Header) {}
