package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaisavezi/endpoint-proxy/internal/logging"
)

func TestRefreshWithRetry_FirstSuccessStops(t *testing.T) {
	calls := 0

	creds := RefreshWithRetry(context.Background(), func(context.Context) (*Credentials, error) {
		calls++
		return &Credentials{AccessToken: "fresh"}, nil
	}, 3, logging.Discard())

	require.NotNil(t, creds)
	assert.Equal(t, "fresh", creds.AccessToken)
	assert.Equal(t, 1, calls)
}

func TestRefreshWithRetry_RecoversAfterFailures(t *testing.T) {
	calls := 0

	creds := RefreshWithRetry(context.Background(), func(context.Context) (*Credentials, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("temporary")
		}
		return &Credentials{APIKey: "k"}, nil
	}, 3, nil)

	require.NotNil(t, creds)
	assert.Equal(t, 3, calls)
}

func TestRefreshWithRetry_Exhausted(t *testing.T) {
	tests := []struct {
		name    string
		refresh RefreshFunc
	}{
		{
			name: "errors",
			refresh: func(context.Context) (*Credentials, error) {
				return nil, errors.New("denied")
			},
		},
		{
			name: "unusable credentials",
			refresh: func(context.Context) (*Credentials, error) {
				return &Credentials{RefreshToken: "only-refresh"}, nil
			},
		},
		{
			name: "nil credentials",
			refresh: func(context.Context) (*Credentials, error) {
				return nil, nil
			},
		},
		{
			name: "panics",
			refresh: func(context.Context) (*Credentials, error) {
				panic("executor bug")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			counted := func(ctx context.Context) (*Credentials, error) {
				calls++
				return tt.refresh(ctx)
			}

			var creds *Credentials
			assert.NotPanics(t, func() {
				creds = RefreshWithRetry(context.Background(), counted, 3, logging.Discard())
			})

			assert.Nil(t, creds)
			assert.Equal(t, 3, calls, "every attempt should be used")
		})
	}
}

func TestRefreshWithRetry_DefaultAttempts(t *testing.T) {
	calls := 0

	RefreshWithRetry(context.Background(), func(context.Context) (*Credentials, error) {
		calls++
		return nil, errors.New("no")
	}, 0, nil)

	assert.Equal(t, DefaultRefreshAttempts, calls)
}

func TestRefreshWithRetry_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	creds := RefreshWithRetry(ctx, func(context.Context) (*Credentials, error) {
		calls++
		cancel()
		return nil, errors.New("no")
	}, 3, nil)

	assert.Nil(t, creds)
	assert.Equal(t, 1, calls, "cancellation stops further attempts")
}

func TestRefreshWithRetry_NilFunc(t *testing.T) {
	assert.Nil(t, RefreshWithRetry(context.Background(), nil, 3, nil))
}
