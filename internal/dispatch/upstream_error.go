package dispatch

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
)

const (
	bodyPreviewLen = 280
	redacted       = "[REDACTED]"
)

// Paths tried in order when looking for a human-readable upstream message.
var upstreamMessagePaths = []string{
	"error.message",
	"message",
	"detail",
	"error_description",
	"errors.0.message",
	"error",
}

var bearerPattern = regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9._~+/=-]+`)

// parseUpstreamError extracts the message of a non-2xx upstream body.
func parseUpstreamError(status int, body []byte) string {
	if msg := extractUpstreamMessage(body); msg != "" {
		return msg
	}

	if preview := compactBodyPreview(body, bodyPreviewLen); preview != "" {
		return preview
	}

	if text := http.StatusText(status); text != "" {
		return text
	}

	return "upstream request failed"
}

func extractUpstreamMessage(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}

	parsed := gjson.ParseBytes(body)
	for _, path := range upstreamMessagePaths {
		v := parsed.Get(path)
		if v.Type == gjson.String {
			if msg := strings.TrimSpace(v.Str); msg != "" {
				return msg
			}
		}
	}

	return ""
}

func compactBodyPreview(body []byte, maxLen int) string {
	clean := strings.Join(strings.Fields(string(body)), " ")
	if len(clean) <= maxLen {
		return clean
	}

	cut := maxLen
	for cut > 0 && !utf8.RuneStart(clean[cut]) {
		cut--
	}

	return clean[:cut] + "..."
}

// formatProviderError prefixes message with provider, model and status and
// scrubs every credential value out of it.
func formatProviderError(provider, model string, status int, message string, secrets []string) string {
	return fmt.Sprintf("%s/%s [%d]: %s", provider, model, status, redact(message, secrets))
}

func redact(s string, secrets []string) string {
	for _, secret := range secrets {
		if secret != "" {
			s = strings.ReplaceAll(s, secret, redacted)
		}
	}

	return bearerPattern.ReplaceAllString(s, "${1}"+redacted)
}
