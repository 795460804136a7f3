package provider

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProviderError_Classification(t *testing.T) {
	retryAfter := 2 * time.Second
	underlying := errors.New("503")
	err := fmt.Errorf("stream: %w", &ProviderError{
		Code:       ErrorCodeUnavailable,
		Message:    "service unavailable",
		Underlying: underlying,
		Retryable:  true,
		RetryAfter: &retryAfter,
	})

	assert.Equal(t, ErrorCodeUnavailable, CodeOf(err))
	assert.True(t, IsRetryable(err))
	assert.Equal(t, &retryAfter, GetRetryAfter(err))
	assert.ErrorIs(t, err, underlying)
	assert.False(t, IsFatal(err))
	assert.Contains(t, err.Error(), "service_unavailable")
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(&ProviderError{Code: ErrorCodeAuth}))
	assert.True(t, IsFatal(&ProviderError{Code: ErrorCodePermission}))
	assert.True(t, IsFatal(fmt.Errorf("x: %w", ErrMissingCredentials)))
	assert.False(t, IsFatal(&ProviderError{Code: ErrorCodeRateLimit}))
	assert.False(t, IsFatal(errors.New("plain")))
	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("plain")))
}

func TestProviderError_MatchesSentinels(t *testing.T) {
	tests := []struct {
		code     ErrorCode
		sentinel error
	}{
		{ErrorCodeContextLength, ErrContextLengthExceeded},
		{ErrorCodeContentBlocked, ErrContentBlocked},
		{ErrorCodeRateLimit, ErrRateLimit},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			underlying := errors.New("sdk error")
			err := fmt.Errorf("stream: %w", &ProviderError{Code: tt.code, Underlying: underlying})
			assert.ErrorIs(t, err, tt.sentinel)
			assert.ErrorIs(t, err, underlying)
		})
	}

	err := &ProviderError{Code: ErrorCodeUnavailable}
	assert.NotErrorIs(t, err, ErrRateLimit)
	assert.NotErrorIs(t, err, ErrContextLengthExceeded)
}
