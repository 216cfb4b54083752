package llm

import "fmt"

// ClientError is the base type for all llm errors.
type ClientError struct {
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// ProviderError is an error returned by an LLM provider.
type ProviderError struct {
	ClientError
	Provider   string
	StatusCode int
	Retryable  bool
	RetryAfter *float64 // seconds, from the provider when available
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("[%s] %s (status=%d, retryable=%v)", e.Provider, e.Message, e.StatusCode, e.Retryable)
}

// Concrete provider error types.

type AuthenticationError struct{ ProviderError }
type BillingError struct{ ProviderError }
type InvalidRequestError struct{ ProviderError }
type RateLimitError struct{ ProviderError }
type ServerError struct{ ProviderError }
type ContextLengthError struct{ ProviderError }

// Non-provider errors.

type NetworkError struct{ ClientError }
type TimeoutError struct{ ClientError }
type ConfigurationError struct{ ClientError }

// IsRetryable reports whether the error is safe to retry against the
// same provider. Authentication, billing, and malformed-request errors
// are never retryable; unknown errors default to retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch e := err.(type) {
	case *AuthenticationError, *BillingError, *InvalidRequestError,
		*ContextLengthError, *ConfigurationError:
		return false
	case *RateLimitError, *ServerError, *NetworkError, *TimeoutError:
		return true
	case *ProviderError:
		return e.Retryable
	default:
		return true
	}
}

// RetryAfterHint extracts a provider-supplied retry-after value in
// seconds, if the error carries one.
func RetryAfterHint(err error) (float64, bool) {
	rl, ok := err.(*RateLimitError)
	if !ok || rl.RetryAfter == nil {
		return 0, false
	}
	return *rl.RetryAfter, true
}
