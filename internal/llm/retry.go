package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/maxxentropy/agentforge-sub001/internal/constants"
	forgeerrors "github.com/maxxentropy/agentforge-sub001/internal/errors"
)

// timeSleep is a wrapper for time.After that can be overridden in tests
// to avoid waiting out real backoff delays.
//
//nolint:gochecknoglobals // Required for test mocking
var timeSleep = func(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// isRetryable determines whether a provider error should be retried.
// Returns false for context errors, authentication failures, and missing
// executables. Everything else is treated as transient.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	errStr := strings.ToLower(err.Error())

	if strings.Contains(errStr, "authentication") ||
		strings.Contains(errStr, "api key") {
		return false
	}

	if strings.Contains(errStr, "not found") ||
		strings.Contains(errStr, "executable file not found") {
		return false
	}

	return true
}

// RetryProvider wraps a provider with exponential backoff on transient
// errors. Non-retryable errors return immediately.
type RetryProvider struct {
	inner  Provider
	logger zerolog.Logger
}

// WithRetry wraps the provider in retry handling.
func WithRetry(inner Provider, logger zerolog.Logger) *RetryProvider {
	return &RetryProvider{inner: inner, logger: logger}
}

// Generate calls the wrapped provider, retrying transient failures up to
// the attempt limit with doubling backoff between attempts.
func (p *RetryProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	var lastErr error
	backoff := constants.InitialBackoff

	for attempt := 1; attempt <= constants.MaxRetryAttempts; attempt++ {
		resp, err := p.inner.Generate(ctx, req)
		if err == nil {
			if attempt > 1 {
				p.logger.Info().
					Int("attempt", attempt).
					Msg("llm call succeeded after retry")
			}
			return resp, nil
		}

		if !isRetryable(err) {
			p.logger.Debug().
				Err(err).
				Int("attempt", attempt).
				Msg("llm call failed with non-retryable error")
			return nil, err
		}

		lastErr = err
		if attempt < constants.MaxRetryAttempts {
			p.logger.Warn().
				Err(err).
				Int("attempt", attempt).
				Int("max_attempts", constants.MaxRetryAttempts).
				Dur("backoff", backoff).
				Msg("llm call failed, will retry after backoff")

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-timeSleep(backoff):
				backoff *= constants.BackoffMultiplier
			}
		}
	}

	p.logger.Error().
		Err(lastErr).
		Int("max_attempts", constants.MaxRetryAttempts).
		Msg("llm call failed after max retries")

	return nil, fmt.Errorf("%w: %w", forgeerrors.ErrMaxRetriesExceeded, lastErr)
}

// Compile-time check that RetryProvider implements Provider.
var _ Provider = (*RetryProvider)(nil)
