package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"github.com/mihaisavezi/endpoint-proxy/internal/logging"
)

const (
	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter"
	ProviderCursor     = "cursor"

	DefaultCursorTokenURL = "https://api2.cursor.sh/oauth/token"
)

var (
	ErrRefreshNotSupported = errors.New("auth: refresh not supported")
	ErrNoRefreshToken      = errors.New("auth: no refresh token")
	ErrMissingClientID     = errors.New("auth: oauth client id is required")
)

// Executor knows how to refresh the credentials of one provider.
type Executor interface {
	Provider() string
	RefreshCredentials(ctx context.Context, creds *Credentials, log logging.Logger) (*Credentials, error)
}

// StaticKeyExecutor serves providers authenticated by long-lived API keys,
// which cannot be refreshed.
type StaticKeyExecutor struct {
	provider string
}

func NewStaticKeyExecutor(provider string) *StaticKeyExecutor {
	return &StaticKeyExecutor{provider: provider}
}

func (e *StaticKeyExecutor) Provider() string {
	return e.provider
}

func (e *StaticKeyExecutor) RefreshCredentials(_ context.Context, _ *Credentials, log logging.Logger) (*Credentials, error) {
	logging.OrNop(log).Debug("Static API key cannot be refreshed", "provider", e.provider)
	return nil, fmt.Errorf("%s: %w", e.provider, ErrRefreshNotSupported)
}

// OAuthExecutor refreshes access tokens through an OAuth2 refresh_token grant.
// The token endpoint and client id come from ProviderSpecificData, falling
// back to the executor defaults.
type OAuthExecutor struct {
	provider        string
	defaultTokenURL string
	defaultClientID string
	client          *http.Client
}

func NewOAuthExecutor(provider, tokenURL, clientID string, client *http.Client) *OAuthExecutor {
	return &OAuthExecutor{
		provider:        provider,
		defaultTokenURL: tokenURL,
		defaultClientID: clientID,
		client:          client,
	}
}

func (e *OAuthExecutor) Provider() string {
	return e.provider
}

func (e *OAuthExecutor) RefreshCredentials(ctx context.Context, creds *Credentials, log logging.Logger) (*Credentials, error) {
	log = logging.OrNop(log)

	if creds == nil || strings.TrimSpace(creds.RefreshToken) == "" {
		return nil, fmt.Errorf("%s: %w", e.provider, ErrNoRefreshToken)
	}

	tokenURL := firstNonEmpty(creds.Data(DataKeyTokenURL), e.defaultTokenURL)
	clientID := firstNonEmpty(creds.Data(DataKeyClientID), e.defaultClientID)

	if clientID == "" {
		return nil, fmt.Errorf("%s: %w", e.provider, ErrMissingClientID)
	}

	cfg := &oauth2.Config{
		ClientID: clientID,
		Endpoint: oauth2.Endpoint{
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	if e.client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, e.client)
	}

	log.Debug("Refreshing OAuth token", "provider", e.provider, "token_url", tokenURL)

	token, err := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: creds.RefreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("%s: refresh token exchange: %w", e.provider, err)
	}

	refreshed := &Credentials{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
	}

	// Providers that do not rotate refresh tokens omit the field.
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = creds.RefreshToken
	}

	return refreshed, nil
}

// Executors maps provider ids to their executor. Unknown ids get a
// StaticKeyExecutor, so lookups never return nil.
type Executors struct {
	byProvider map[string]Executor
}

func NewExecutors(executors ...Executor) *Executors {
	e := &Executors{byProvider: make(map[string]Executor, len(executors))}
	for _, ex := range executors {
		e.byProvider[ex.Provider()] = ex
	}

	return e
}

// DefaultExecutors registers the executors for the built-in providers.
func DefaultExecutors(client *http.Client) *Executors {
	return NewExecutors(
		NewStaticKeyExecutor(ProviderOpenAI),
		NewStaticKeyExecutor(ProviderOpenRouter),
		NewOAuthExecutor(ProviderCursor, DefaultCursorTokenURL, "", client),
	)
}

// For returns the executor registered for provider.
func (e *Executors) For(provider string) Executor {
	if e != nil {
		if ex, ok := e.byProvider[provider]; ok {
			return ex
		}
	}

	return NewStaticKeyExecutor(provider)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}

	return ""
}
