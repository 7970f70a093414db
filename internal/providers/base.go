package providers

import (
	"net/http"
	"strings"

	"github.com/mihaisavezi/endpoint-proxy/internal/auth"
)

const (
	ContentTypeJSON     = "application/json"
	HeaderContentType   = "Content-Type"
	HeaderAuthorization = "Authorization"

	// DefaultEncodingFormat is sent when an embeddings request names none.
	DefaultEncodingFormat = "float"
)

// joinBase strips one trailing slash from base, falling back when it is
// empty, and appends suffix.
func joinBase(base, fallback, suffix string) string {
	if base == "" {
		base = fallback
	}

	return strings.TrimSuffix(base, "/") + suffix
}

// baseHeaders sets the JSON content type and, when the credentials carry a
// secret, the bearer authorization.
func baseHeaders(creds *auth.Credentials) http.Header {
	h := make(http.Header)
	h.Set(HeaderContentType, ContentTypeJSON)

	if bearer := creds.Bearer(); bearer != "" {
		h.Set(HeaderAuthorization, "Bearer "+bearer)
	}

	return h
}

// RemoveFieldsRecursively removes specified fields from nested JSON structures
func RemoveFieldsRecursively(data any, fieldsToRemove []string) any {
	switch v := data.(type) {
	case map[string]any:
		result := make(map[string]any)

		for key, value := range v {
			shouldRemove := false

			for _, field := range fieldsToRemove {
				if key == field {
					shouldRemove = true
					break
				}
			}

			if !shouldRemove {
				result[key] = RemoveFieldsRecursively(value, fieldsToRemove)
			}
		}

		return result
	case []any:
		result := make([]any, len(v))
		for i, item := range v {
			result[i] = RemoveFieldsRecursively(item, fieldsToRemove)
		}

		return result
	default:
		return v
	}
}
