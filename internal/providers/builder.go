package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/mihaisavezi/endpoint-proxy/internal/auth"
	"github.com/mihaisavezi/endpoint-proxy/internal/translator"
)

// Client-input errors. They are detected before any network call.
var (
	ErrInvalidBody          = errors.New("request body must be a JSON object")
	ErrMissingInput         = errors.New("missing required field: input")
	ErrInvalidInput         = errors.New("input must be a string or array of strings")
	ErrInvalidMessages      = errors.New("messages must be an array")
	ErrStreamingUnsupported = errors.New("streaming responses are not supported")
)

// Configuration errors.
var (
	ErrUnsupportedProvider = errors.New("unsupported provider")
	ErrMissingTranslator   = errors.New("no translator registered")
)

// Anthropic-style prompt caching hints that OpenAI rejects.
var openAIUnsupportedFields = []string{"cache_control"}

// Request is a fully built upstream call.
type Request struct {
	Provider Provider
	URL      string
	Header   http.Header
	Body     []byte
}

// HTTPRequest creates a POST for r bound to ctx. Each call gets a fresh body
// reader, so a Request can be sent more than once.
func (r *Request) HTTPRequest(ctx context.Context) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, bytes.NewReader(r.Body))
	if err != nil {
		return nil, fmt.Errorf("create upstream request: %w", err)
	}

	req.Header = r.Header.Clone()

	return req, nil
}

// ValidateEmbeddingsInput checks that input is present and is a string or an
// array.
func ValidateEmbeddingsInput(body []byte) error {
	if !gjson.ValidBytes(body) || !gjson.ParseBytes(body).IsObject() {
		return ErrInvalidBody
	}

	input := gjson.GetBytes(body, "input")

	switch {
	case !input.Exists() || input.Type == gjson.Null:
		return ErrMissingInput
	case input.Type == gjson.String && input.Str == "":
		return ErrMissingInput
	case input.Type == gjson.String, input.IsArray():
		return nil
	default:
		return ErrInvalidInput
	}
}

// ValidateChatBody checks that messages is an array and that no streaming
// response was asked for.
func ValidateChatBody(body []byte) error {
	if !gjson.ValidBytes(body) || !gjson.ParseBytes(body).IsObject() {
		return ErrInvalidBody
	}

	if !gjson.GetBytes(body, "messages").IsArray() {
		return ErrInvalidMessages
	}

	if gjson.GetBytes(body, "stream").Bool() {
		return ErrStreamingUnsupported
	}

	return nil
}

// Headers builds the upstream headers for p from the current credentials.
// It is also used to rebuild headers after a credential refresh.
func (r *Registry) Headers(p Provider, creds *auth.Credentials) (http.Header, error) {
	endpoint, ok := r.Endpoint(p)
	if !ok {
		return nil, unsupported(p, "requests")
	}

	h := baseHeaders(creds)
	endpoint.SetHeaders(h)

	return h, nil
}

func (r *Registry) EmbeddingsURL(p Provider, creds *auth.Credentials) (string, error) {
	endpoint, ok := r.Endpoint(p)
	if !ok {
		return "", unsupported(p, "embeddings")
	}

	url := endpoint.EmbeddingsURL(creds)
	if url == "" {
		return "", unsupported(p, "embeddings")
	}

	return url, nil
}

func (r *Registry) ChatURL(p Provider, creds *auth.Credentials) (string, error) {
	endpoint, ok := r.Endpoint(p)
	if !ok {
		return "", unsupported(p, "chat completions")
	}

	url := endpoint.ChatURL(creds)
	if url == "" {
		return "", unsupported(p, "chat completions")
	}

	return url, nil
}

// BuildEmbeddingsRequest validates body and reshapes it into the minimal
// embeddings schema {model, input, encoding_format}.
func (r *Registry) BuildEmbeddingsRequest(p Provider, creds *auth.Credentials, model string, body []byte) (*Request, error) {
	if err := ValidateEmbeddingsInput(body); err != nil {
		return nil, err
	}

	url, err := r.EmbeddingsURL(p, creds)
	if err != nil {
		return nil, err
	}

	header, err := r.Headers(p, creds)
	if err != nil {
		return nil, err
	}

	encodingFormat := gjson.GetBytes(body, "encoding_format").String()
	if encodingFormat == "" {
		encodingFormat = DefaultEncodingFormat
	}

	out := []byte(`{}`)

	out, err = sjson.SetBytes(out, "model", model)
	if err != nil {
		return nil, fmt.Errorf("set model: %w", err)
	}

	out, err = sjson.SetRawBytes(out, "input", []byte(gjson.GetBytes(body, "input").Raw))
	if err != nil {
		return nil, fmt.Errorf("set input: %w", err)
	}

	out, err = sjson.SetBytes(out, "encoding_format", encodingFormat)
	if err != nil {
		return nil, fmt.Errorf("set encoding_format: %w", err)
	}

	return &Request{Provider: p, URL: url, Header: header, Body: out}, nil
}

// BuildChatRequest validates body and shapes it for p. OpenAI-dialect
// upstreams receive the canonical body with model replaced; other dialects
// go through the translator registered for (openai, p.Format()).
func (r *Registry) BuildChatRequest(p Provider, creds *auth.Credentials, model string, body []byte, translators *translator.Registry) (*Request, error) {
	if err := ValidateChatBody(body); err != nil {
		return nil, err
	}

	url, err := r.ChatURL(p, creds)
	if err != nil {
		return nil, err
	}

	header, err := r.Headers(p, creds)
	if err != nil {
		return nil, err
	}

	out, err := sjson.SetBytes(body, "model", model)
	if err != nil {
		return nil, fmt.Errorf("set model: %w", err)
	}

	if p.Kind == KindOpenAI && bytes.Contains(out, []byte(`"cache_control"`)) {
		if out, err = stripFields(out, openAIUnsupportedFields); err != nil {
			return nil, err
		}
	}

	if target := p.Format(); target != translator.FormatOpenAI {
		reg, ok := translators.Lookup(translator.FormatOpenAI, target)
		if !ok {
			return nil, fmt.Errorf("%w: %s -> %s", ErrMissingTranslator, translator.FormatOpenAI, target)
		}

		if out, err = reg.Request(model, out, false); err != nil {
			return nil, fmt.Errorf("translate request for %s: %w", p.ID, err)
		}
	}

	return &Request{Provider: p, URL: url, Header: header, Body: out}, nil
}

func stripFields(body []byte, fields []string) ([]byte, error) {
	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("decode request body: %w", err)
	}

	out, err := json.Marshal(RemoveFieldsRecursively(data, fields))
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}

	return out, nil
}

func unsupported(p Provider, operation string) error {
	return fmt.Errorf("provider '%s' does not support %s: %w", p.ID, operation, ErrUnsupportedProvider)
}
