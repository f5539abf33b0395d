package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidContact        = errors.New("invalid contact for channel")
	ErrInvalidChannel        = errors.New("invalid channel")
	ErrInvalidRequest        = errors.New("invalid request")
	ErrRateLimited           = errors.New("rate limited")
	ErrChallengeNotFound     = errors.New("challenge not found")
	ErrOTPExpired            = errors.New("otp expired")
	ErrOTPInvalid            = errors.New("invalid code")
	ErrMaxAttemptsExceeded   = errors.New("max verification attempts exceeded")
	ErrContactMismatch       = errors.New("contact does not belong to caller")
	ErrNoProvidersForChannel = errors.New("no providers configured for channel")
)

// ProviderFailure is one provider's failure reason inside an
// AllProvidersFailedError.
type ProviderFailure struct {
	Provider string `json:"provider"`
	Reason   string `json:"reason"`
}

// AllProvidersFailedError means every provider tried for a channel
// failed on this request. The challenge is already marked failed by
// the time this surfaces.
type AllProvidersFailedError struct {
	Channel  Channel
	Failures []ProviderFailure
}

func (e *AllProvidersFailedError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Provider, f.Reason))
	}
	return fmt.Sprintf("all providers failed for channel %s [%s]", e.Channel, strings.Join(parts, "; "))
}

// RateLimitError carries the retry-after hint alongside the sentinel.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }
