/*
Package providers resolves provider identifiers into a closed set of upstream
kinds and builds the provider-specific HTTP requests for them.

# Endpoint Implementation Guide

Each upstream the gateway can reach is an Endpoint registered in a Registry,
keyed by its Kind. An endpoint only knows where requests go and which extra
headers the upstream expects; request bodies are built by the Registry so every
endpoint gets identical validation.

## Endpoint Interface

	type Endpoint interface {
		Kind() Kind
		Name() string
		ChatURL(creds *auth.Credentials) string
		EmbeddingsURL(creds *auth.Credentials) string
		SetHeaders(h http.Header)
	}

An empty EmbeddingsURL means the upstream has no embeddings API. Building an
embeddings request for it fails with ErrUnsupportedProvider before any network
call is made.

## Provider Identifiers

Identifiers are parsed with Parse:

  - "openai", "openrouter" and "cursor" map to their own kinds
  - "openai-compatible-<name>" maps to KindCompatible
  - everything else, including the bare "openai-compatible" prefix, is
    KindUnknown and never resolves to an endpoint

Compatible connections read their base URL from the credentials'
provider-specific "baseUrl" entry and default to the public OpenAI API.

## Request Flow

 1. The caller parses the provider id and looks up the endpoint
 2. The body is validated (embeddings input, chat messages, no streaming)
 3. The registry writes the upstream model into the body
 4. OpenAI-bound chat bodies lose every cache_control field
 5. Non-OpenAI dialects go through the translator registered for
    (openai, dialect); a missing translator is ErrMissingTranslator
 6. Headers are the JSON content type, the bearer secret when present, and
    whatever SetHeaders adds

## Adding an Endpoint

 1. Add a Kind constant and its String value
 2. Extend Parse with the identifier
 3. Implement Endpoint in its own file
 4. Register it in (*Registry).Initialize
 5. If the upstream speaks its own dialect, return it from Provider.Format and
    register the matching translator pair

Tests for a new endpoint belong in registry_test.go (resolution and URLs)
and builder_test.go (headers and bodies).
*/
package providers
