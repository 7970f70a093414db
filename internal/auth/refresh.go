package auth

import (
	"context"
	"fmt"

	"github.com/mihaisavezi/endpoint-proxy/internal/logging"
)

// DefaultRefreshAttempts is how many times a refresh is tried before giving up.
const DefaultRefreshAttempts = 3

// RefreshFunc performs one refresh attempt.
type RefreshFunc func(ctx context.Context) (*Credentials, error)

// RefreshWithRetry runs refresh up to maxAttempts times and returns the first
// result that carries a usable secret. It returns nil when every attempt
// failed; that is a signal for the caller, not an error. Errors and panics
// raised by refresh are logged and count as a failed attempt.
func RefreshWithRetry(ctx context.Context, refresh RefreshFunc, maxAttempts int, log logging.Logger) *Credentials {
	log = logging.OrNop(log)

	if refresh == nil {
		return nil
	}

	if maxAttempts <= 0 {
		maxAttempts = DefaultRefreshAttempts
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			log.Warn("Credential refresh abandoned", "attempt", attempt, "error", err)
			return nil
		}

		creds, err := attemptRefresh(ctx, refresh)
		if err != nil {
			log.Warn("Credential refresh attempt failed",
				"attempt", attempt,
				"max_attempts", maxAttempts,
				"error", err,
			)

			continue
		}

		if creds.Usable() {
			log.Debug("Credential refresh succeeded", "attempt", attempt)
			return creds
		}

		log.Warn("Credential refresh returned no usable token", "attempt", attempt, "max_attempts", maxAttempts)
	}

	return nil
}

func attemptRefresh(ctx context.Context, refresh RefreshFunc) (creds *Credentials, err error) {
	defer func() {
		if r := recover(); r != nil {
			creds = nil
			err = fmt.Errorf("refresh panicked: %v", r)
		}
	}()

	return refresh(ctx)
}
