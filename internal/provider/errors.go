package provider

import (
	"errors"
	"fmt"
	"time"
)

// AuthError means the provider rejected our credentials. Not retryable.
type AuthError struct {
	Provider string
	Message  string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authentication failed: %s", e.Provider, e.Message)
}

// RateLimitError is a 429. Retryable after the advertised delay.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: rate limited, retry after %s", e.Provider, e.RetryAfter)
	}
	return fmt.Sprintf("%s: rate limited", e.Provider)
}

// NetworkError covers transport failures and 5xx responses. Retryable.
type NetworkError struct {
	Provider string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Provider, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// BadRequestError means the request itself is malformed. Not retryable.
type BadRequestError struct {
	Provider string
	Status   int
	Message  string
}

func (e *BadRequestError) Error() string {
	return fmt.Sprintf("%s: bad request (%d): %s", e.Provider, e.Status, e.Message)
}

// ProviderUnavailableError means the adapter cannot serve at all: missing
// API key or offline mode.
type ProviderUnavailableError struct {
	Provider string
	Reason   string
}

func (e *ProviderUnavailableError) Error() string {
	return fmt.Sprintf("%s: provider unavailable: %s", e.Provider, e.Reason)
}

// IsRetryable reports whether the retry loop should attempt again.
func IsRetryable(err error) bool {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return true
	}
	var rateErr *RateLimitError
	return errors.As(err, &rateErr)
}

// IsUnavailable reports whether the error marks the provider as unusable,
// which the router treats as a fall-through signal.
func IsUnavailable(err error) bool {
	var unavailErr *ProviderUnavailableError
	if errors.As(err, &unavailErr) {
		return true
	}
	var authErr *AuthError
	return errors.As(err, &authErr)
}
