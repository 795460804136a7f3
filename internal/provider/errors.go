package provider

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common provider failures.
var (
	// ErrMissingCredentials is returned when no API key can be resolved
	// for the configured provider.
	ErrMissingCredentials = errors.New("missing credentials")

	// ErrUnknownProvider is returned for a provider name no adapter serves.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrContextLengthExceeded, ErrContentBlocked and ErrRateLimit match any
	// ProviderError with the corresponding code under errors.Is.
	ErrContextLengthExceeded = errors.New("context length exceeded")
	ErrContentBlocked        = errors.New("content blocked by safety filters")
	ErrRateLimit             = errors.New("rate limit exceeded")
)

// ErrorCode represents a provider error code.
type ErrorCode string

const (
	ErrorCodeContextLength  ErrorCode = "context_length_exceeded"
	ErrorCodeContentBlocked ErrorCode = "content_blocked"
	ErrorCodeRateLimit      ErrorCode = "rate_limit"
	ErrorCodeQuota          ErrorCode = "quota_exceeded"
	ErrorCodeInvalidModel   ErrorCode = "invalid_model"
	ErrorCodeAuth           ErrorCode = "authentication_failed"
	ErrorCodePermission     ErrorCode = "permission_denied"
	ErrorCodeNetwork        ErrorCode = "network_error"
	ErrorCodeTimeout        ErrorCode = "timeout"
	ErrorCodeUnavailable    ErrorCode = "service_unavailable"
	ErrorCodeInvalidRequest ErrorCode = "invalid_request"
)

// ProviderError wraps errors with additional context.
type ProviderError struct {
	Code       ErrorCode
	Message    string
	Underlying error
	Retryable  bool
	RetryAfter *time.Duration
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Underlying)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Underlying
}

// Is matches the sentinel for e's code.
func (e *ProviderError) Is(target error) bool {
	switch e.Code {
	case ErrorCodeContextLength:
		return target == ErrContextLengthExceeded
	case ErrorCodeContentBlocked:
		return target == ErrContentBlocked
	case ErrorCodeRateLimit:
		return target == ErrRateLimit
	}
	return false
}

// CodeOf returns the error code carried by err, or "" if err is not a
// ProviderError.
func CodeOf(err error) ErrorCode {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Code
	}
	return ""
}

// IsFatal reports whether err ends the turn without offering a retry.
// Credential problems cannot be fixed by asking again.
func IsFatal(err error) bool {
	if errors.Is(err, ErrMissingCredentials) || errors.Is(err, ErrUnknownProvider) {
		return true
	}
	switch CodeOf(err) {
	case ErrorCodeAuth, ErrorCodePermission:
		return true
	default:
		return false
	}
}

// IsRetryable returns true if the error is retryable.
func IsRetryable(err error) bool {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Retryable
	}
	return false
}

// GetRetryAfter returns the retry-after duration if present.
func GetRetryAfter(err error) *time.Duration {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.RetryAfter
	}
	return nil
}
