package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCredentials_UsableAndBearer(t *testing.T) {
	tests := []struct {
		name   string
		creds  *Credentials
		usable bool
		bearer string
	}{
		{name: "nil", creds: nil, usable: false, bearer: ""},
		{name: "empty", creds: &Credentials{}, usable: false, bearer: ""},
		{name: "refresh token only", creds: &Credentials{RefreshToken: "r"}, usable: false, bearer: ""},
		{name: "api key", creds: &Credentials{APIKey: "k"}, usable: true, bearer: "k"},
		{name: "access token", creds: &Credentials{AccessToken: "t"}, usable: true, bearer: "t"},
		{name: "api key wins", creds: &Credentials{APIKey: "k", AccessToken: "t"}, usable: true, bearer: "k"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.usable, tt.creds.Usable())
			assert.Equal(t, tt.bearer, tt.creds.Bearer())
		})
	}
}

func TestCredentials_MergeKeepsExistingFields(t *testing.T) {
	expiry := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	creds := &Credentials{
		AccessToken:          "old",
		RefreshToken:         "refresh",
		ProviderSpecificData: map[string]any{DataKeyBaseURL: "https://llm.internal/v1", "team": "a"},
	}

	creds.Merge(&Credentials{
		AccessToken:          "new",
		ExpiresAt:            expiry,
		ProviderSpecificData: map[string]any{"team": "b"},
	})

	assert.Equal(t, "new", creds.AccessToken)
	assert.Equal(t, "refresh", creds.RefreshToken, "empty fields must not clear existing values")
	assert.Equal(t, expiry, creds.ExpiresAt)
	assert.Equal(t, "https://llm.internal/v1", creds.BaseURL())
	assert.Equal(t, "b", creds.ProviderSpecificData["team"])
}

func TestCredentials_MergeNil(t *testing.T) {
	creds := &Credentials{APIKey: "k"}
	creds.Merge(nil)
	assert.Equal(t, "k", creds.APIKey)

	var nilCreds *Credentials
	assert.NotPanics(t, func() { nilCreds.Merge(&Credentials{APIKey: "x"}) })
}

func TestCredentials_MergeIntoEmptyData(t *testing.T) {
	creds := &Credentials{}
	creds.Merge(&Credentials{ProviderSpecificData: map[string]any{DataKeyTokenURL: "https://auth.example.com/token"}})

	assert.Equal(t, "https://auth.example.com/token", creds.Data(DataKeyTokenURL))
}

func TestCredentials_Clone(t *testing.T) {
	creds := &Credentials{APIKey: "k", ProviderSpecificData: map[string]any{"a": "1"}}
	clone := creds.Clone()

	clone.APIKey = "changed"
	clone.ProviderSpecificData["a"] = "2"

	assert.Equal(t, "k", creds.APIKey)
	assert.Equal(t, "1", creds.ProviderSpecificData["a"])

	var nilCreds *Credentials
	assert.Nil(t, nilCreds.Clone())
}

func TestCredentials_Secrets(t *testing.T) {
	creds := &Credentials{APIKey: "k", RefreshToken: "r"}
	assert.Equal(t, []string{"k", "r"}, creds.Secrets())
}
