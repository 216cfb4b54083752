package llm

import (
	"errors"
	"testing"
)

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"auth", &AuthenticationError{}, false},
		{"billing", &BillingError{}, false},
		{"invalid request", &InvalidRequestError{}, false},
		{"context length", &ContextLengthError{}, false},
		{"configuration", &ConfigurationError{}, false},
		{"rate limit", &RateLimitError{}, true},
		{"server", &ServerError{}, true},
		{"network", &NetworkError{}, true},
		{"timeout", &TimeoutError{}, true},
		{"generic provider retryable", &ProviderError{Retryable: true}, true},
		{"generic provider non-retryable", &ProviderError{Retryable: false}, false},
		{"unknown", errors.New("something odd"), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsRetryable(tc.err); got != tc.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestClientErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &ClientError{Message: "wrapped", Cause: cause}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
	if err.Error() != "wrapped: root cause" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestRetryAfterHint(t *testing.T) {
	after := 42.0
	rl := &RateLimitError{ProviderError: ProviderError{RetryAfter: &after}}
	got, ok := RetryAfterHint(rl)
	if !ok || got != 42.0 {
		t.Errorf("expected (42, true), got (%v, %v)", got, ok)
	}

	if _, ok := RetryAfterHint(&RateLimitError{}); ok {
		t.Error("expected no hint without RetryAfter")
	}
	if _, ok := RetryAfterHint(errors.New("plain")); ok {
		t.Error("expected no hint for plain error")
	}
}
