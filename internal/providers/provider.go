package providers

import (
	"strings"

	"github.com/mihaisavezi/endpoint-proxy/internal/translator"
)

// Kind is the closed set of upstreams the gateway knows how to reach.
type Kind int

const (
	KindUnknown Kind = iota
	KindOpenAI
	KindOpenRouter
	// KindCompatible is the family of self-hosted OpenAI-compatible endpoints.
	// Its base URL is carried in the connection credentials.
	KindCompatible
	KindCursor
)

const (
	IDOpenAI     = "openai"
	IDOpenRouter = "openrouter"
	IDCursor     = "cursor"

	// CompatiblePrefix marks ids of the compatible family, e.g. "openai-compatible-local".
	CompatiblePrefix = "openai-compatible-"
)

func (k Kind) String() string {
	switch k {
	case KindOpenAI:
		return "openai"
	case KindOpenRouter:
		return "openrouter"
	case KindCompatible:
		return "openai-compatible"
	case KindCursor:
		return "cursor"
	default:
		return "unknown"
	}
}

// Provider is a parsed provider identifier.
type Provider struct {
	ID   string
	Kind Kind
}

// Parse maps an identifier onto its Kind. Identifiers outside the known set
// resolve to KindUnknown; no URL is ever guessed for them.
func Parse(id string) Provider {
	id = strings.TrimSpace(id)

	switch {
	case id == IDOpenAI:
		return Provider{ID: id, Kind: KindOpenAI}
	case id == IDOpenRouter:
		return Provider{ID: id, Kind: KindOpenRouter}
	case id == IDCursor:
		return Provider{ID: id, Kind: KindCursor}
	case strings.HasPrefix(id, CompatiblePrefix) && len(id) > len(CompatiblePrefix):
		return Provider{ID: id, Kind: KindCompatible}
	default:
		return Provider{ID: id, Kind: KindUnknown}
	}
}

// CompatibleID returns the compatible-family id for a connection name.
func CompatibleID(name string) string {
	return CompatiblePrefix + name
}

func (p Provider) Known() bool {
	return p.Kind != KindUnknown
}

// Format is the wire dialect the upstream speaks.
func (p Provider) Format() translator.Format {
	if p.Kind == KindCursor {
		return translator.FormatCursor
	}

	return translator.FormatOpenAI
}

func (p Provider) String() string {
	return p.ID
}

// ModelInfo names the provider and the upstream model of one request.
type ModelInfo struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

func (m ModelInfo) String() string {
	return m.Provider + "/" + m.Model
}

// ParseModel splits "provider,model" or "provider/model". Only the first
// separator counts, so model names may themselves contain slashes.
func ParseModel(s string) (ModelInfo, bool) {
	s = strings.TrimSpace(s)

	for _, sep := range []string{",", "/"} {
		provider, model, ok := strings.Cut(s, sep)
		if !ok {
			continue
		}

		provider, model = strings.TrimSpace(provider), strings.TrimSpace(model)
		if provider == "" || model == "" {
			return ModelInfo{}, false
		}

		return ModelInfo{Provider: provider, Model: model}, true
	}

	return ModelInfo{}, false
}
