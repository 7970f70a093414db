package dispatch

import (
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/mihaisavezi/endpoint-proxy/internal/providers"
	"github.com/mihaisavezi/endpoint-proxy/internal/translator"
)

// normalizeEmbeddings returns OpenAI list-shaped bodies unchanged. A bare
// {"data": [...]} gets its object field, and {"embeddings": [[...]]} is
// rewritten into the list shape. Anything else passes through.
func normalizeEmbeddings(body []byte) ([]byte, error) {
	parsed := gjson.ParseBytes(body)
	data := parsed.Get("data")

	if parsed.Get("object").String() == "list" && data.IsArray() {
		return body, nil
	}

	if data.IsArray() {
		return sjson.SetBytes(body, "object", "list")
	}

	embeddings := parsed.Get("embeddings")
	if !embeddings.IsArray() {
		return body, nil
	}

	out := []byte(`{"object":"list","data":[]}`)

	var err error
	for i, vec := range embeddings.Array() {
		item := []byte(`{"object":"embedding"}`)

		if item, err = sjson.SetBytes(item, "index", i); err != nil {
			return nil, fmt.Errorf("normalize embeddings: %w", err)
		}

		if item, err = sjson.SetRawBytes(item, "embedding", []byte(vec.Raw)); err != nil {
			return nil, fmt.Errorf("normalize embeddings: %w", err)
		}

		if out, err = sjson.SetRawBytes(out, "data.-1", item); err != nil {
			return nil, fmt.Errorf("normalize embeddings: %w", err)
		}
	}

	for _, field := range []string{"model", "usage"} {
		if v := parsed.Get(field); v.Exists() {
			if out, err = sjson.SetRawBytes(out, field, []byte(v.Raw)); err != nil {
				return nil, fmt.Errorf("normalize embeddings: %w", err)
			}
		}
	}

	return out, nil
}

// normalizeChat applies the response half of the (openai -> upstream
// dialect) registration, if it has one.
func (d *Dispatcher) normalizeChat(p providers.Provider, model string, body []byte) ([]byte, error) {
	source := p.Format()
	if source == translator.FormatOpenAI {
		return body, nil
	}

	reg, ok := d.translators.Lookup(translator.FormatOpenAI, source)
	if !ok || reg.Response == nil {
		return body, nil
	}

	return reg.Response(model, body)
}
