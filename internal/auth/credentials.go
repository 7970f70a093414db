// Package auth holds per-connection credentials, the per-provider executors
// that know how to refresh them, and the bounded refresh coordinator.
package auth

import (
	"maps"
	"strings"
	"time"
)

// Keys understood inside Credentials.ProviderSpecificData.
const (
	DataKeyBaseURL  = "baseUrl"
	DataKeyTokenURL = "tokenUrl"
	DataKeyClientID = "clientId"
)

// Credentials are the secrets of one logical upstream connection.
//
// The dispatch core borrows a *Credentials for the duration of one call and
// merges refreshed values into it in place. It does not synchronize that
// merge; callers sharing one *Credentials across concurrent requests must
// serialize access themselves or accept that the last merge wins.
type Credentials struct {
	APIKey               string         `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	AccessToken          string         `json:"access_token,omitempty" yaml:"access_token,omitempty"`
	RefreshToken         string         `json:"refresh_token,omitempty" yaml:"refresh_token,omitempty"`
	ExpiresAt            time.Time      `json:"expires_at,omitzero" yaml:"expires_at,omitempty"`
	ProviderSpecificData map[string]any `json:"provider_specific_data,omitempty" yaml:"provider_specific_data,omitempty"`
}

// Usable reports whether the credentials carry a bearer secret.
func (c *Credentials) Usable() bool {
	return c != nil && (c.APIKey != "" || c.AccessToken != "")
}

// Bearer returns the value for the Authorization header. The API key wins
// when both are present.
func (c *Credentials) Bearer() string {
	if c == nil {
		return ""
	}

	if c.APIKey != "" {
		return c.APIKey
	}

	return c.AccessToken
}

// Merge copies every non-empty field of other into c. ProviderSpecificData is
// merged key by key and never replaced wholesale.
func (c *Credentials) Merge(other *Credentials) {
	if c == nil || other == nil {
		return
	}

	if other.APIKey != "" {
		c.APIKey = other.APIKey
	}

	if other.AccessToken != "" {
		c.AccessToken = other.AccessToken
	}

	if other.RefreshToken != "" {
		c.RefreshToken = other.RefreshToken
	}

	if !other.ExpiresAt.IsZero() {
		c.ExpiresAt = other.ExpiresAt
	}

	if len(other.ProviderSpecificData) > 0 {
		if c.ProviderSpecificData == nil {
			c.ProviderSpecificData = make(map[string]any, len(other.ProviderSpecificData))
		}

		maps.Copy(c.ProviderSpecificData, other.ProviderSpecificData)
	}
}

// Clone returns a deep-enough copy: the ProviderSpecificData map is copied,
// its values are shared.
func (c *Credentials) Clone() *Credentials {
	if c == nil {
		return nil
	}

	out := *c
	if c.ProviderSpecificData != nil {
		out.ProviderSpecificData = maps.Clone(c.ProviderSpecificData)
	}

	return &out
}

// Data returns a string value from ProviderSpecificData.
func (c *Credentials) Data(key string) string {
	if c == nil || c.ProviderSpecificData == nil {
		return ""
	}

	if v, ok := c.ProviderSpecificData[key].(string); ok {
		return strings.TrimSpace(v)
	}

	return ""
}

// BaseURL is the caller-supplied endpoint base for compatible providers.
func (c *Credentials) BaseURL() string {
	return c.Data(DataKeyBaseURL)
}

// Secrets lists the non-empty secret values, used to scrub upstream messages.
func (c *Credentials) Secrets() []string {
	if c == nil {
		return nil
	}

	var out []string
	for _, s := range []string{c.APIKey, c.AccessToken, c.RefreshToken} {
		if s != "" {
			out = append(out, s)
		}
	}

	return out
}
