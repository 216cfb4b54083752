package harness

import (
	"context"
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		msg  string
		want ErrorClass
	}{
		{"429 Too Many Requests", ClassRateLimit},
		{"rate limit exceeded, retry after 32s", ClassRateLimit},
		{"usage limit reached", ClassRateLimit},
		{"connection reset by peer", ClassTransient},
		{"dial tcp: connection refused", ClassTransient},
		{"context deadline exceeded", ClassTransient},
		{"overloaded_error: Overloaded", ClassTransient},
		{"502 Bad Gateway", ClassTransient},
		{"invalid api key", ClassFatal},
		{"401 unauthorized", ClassFatal},
		{"billing hard limit reached", ClassFatal},
		// fatal patterns win over a rate-limit style composite
		{"401 too many requests", ClassFatal},
		// unknown errors fail closed
		{"something unexpected happened", ClassFatal},
	}
	for _, tt := range tests {
		if got := Classify(tt.msg); got != tt.want {
			t.Errorf("Classify(%q) = %v, want %v", tt.msg, got, tt.want)
		}
	}
}

func TestParseRateLimitNotLimited(t *testing.T) {
	info := ParseRateLimit("connection reset by peer")
	if info.IsRateLimited {
		t.Fatal("connection error classified as rate limit")
	}
	if info.ResetAt != nil {
		t.Fatal("unexpected reset time")
	}
}

func TestParseRateLimitRetryAfterSeconds(t *testing.T) {
	info := ParseRateLimit("rate limit exceeded, retry after 32s")
	if !info.IsRateLimited {
		t.Fatal("expected rate limit")
	}
	if info.ResetAt == nil {
		t.Fatal("expected reset time")
	}
	until := time.Until(*info.ResetAt)
	if until < 30*time.Second || until > 33*time.Second {
		t.Errorf("reset time %v from now, want ~32s", until)
	}
}

func TestParseRateLimitRFC3339(t *testing.T) {
	reset := time.Now().Add(10 * time.Minute).UTC().Truncate(time.Second)
	msg := "usage limit reached, resets at " + reset.Format(time.RFC3339)
	info := ParseRateLimit(msg)
	if info.ResetAt == nil {
		t.Fatal("expected reset time")
	}
	if !info.ResetAt.Equal(reset) {
		t.Errorf("reset = %v, want %v", info.ResetAt, reset)
	}
}

func TestParseRateLimitUnix(t *testing.T) {
	info := ParseRateLimit("rate limit hit, resets at 1767225600")
	if info.ResetAt == nil {
		t.Fatal("expected reset time")
	}
	if info.ResetAt.Unix() != 1767225600 {
		t.Errorf("reset unix = %d, want 1767225600", info.ResetAt.Unix())
	}
}

func TestRateLimitWaitUsesResetPlusBuffer(t *testing.T) {
	cfg := DefaultBackoffConfig()
	reset := time.Now().Add(2 * time.Minute)
	info := RateLimitInfo{IsRateLimited: true, ResetAt: &reset}

	wait := cfg.RateLimitWait(info, 0)
	want := 2*time.Minute + cfg.ResetBuffer
	if wait < want-2*time.Second || wait > want {
		t.Errorf("wait = %v, want ~%v", wait, want)
	}
}

func TestRateLimitWaitCappedAtCeiling(t *testing.T) {
	cfg := DefaultBackoffConfig()
	reset := time.Now().Add(4 * time.Hour)
	info := RateLimitInfo{IsRateLimited: true, ResetAt: &reset}

	if wait := cfg.RateLimitWait(info, 0); wait != cfg.MaxWait {
		t.Errorf("wait = %v, want ceiling %v", wait, cfg.MaxWait)
	}
}

func TestRateLimitWaitPastResetUsesBuffer(t *testing.T) {
	cfg := DefaultBackoffConfig()
	reset := time.Now().Add(-time.Minute)
	info := RateLimitInfo{IsRateLimited: true, ResetAt: &reset}

	if wait := cfg.RateLimitWait(info, 0); wait != cfg.ResetBuffer {
		t.Errorf("wait = %v, want buffer %v", wait, cfg.ResetBuffer)
	}
}

func TestRateLimitWaitExponentialWithoutReset(t *testing.T) {
	cfg := DefaultBackoffConfig()
	info := RateLimitInfo{IsRateLimited: true}

	wants := []time.Duration{15 * time.Second, 30 * time.Second, 60 * time.Second, 120 * time.Second}
	for attempt, want := range wants {
		if got := cfg.RateLimitWait(info, attempt); got != want {
			t.Errorf("attempt %d: wait = %v, want %v", attempt, got, want)
		}
	}
}

func TestTransientWaitSchedule(t *testing.T) {
	cfg := DefaultBackoffConfig()
	wants := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
	for attempt, want := range wants {
		if got := cfg.TransientWait(attempt); got != want {
			t.Errorf("attempt %d: wait = %v, want %v", attempt, got, want)
		}
	}
	// deep attempts hit the shorter ceiling
	if got := cfg.TransientWait(10); got != cfg.ConnMaxWait {
		t.Errorf("attempt 10: wait = %v, want ceiling %v", got, cfg.ConnMaxWait)
	}
}

func TestCountdownWaitZero(t *testing.T) {
	if err := CountdownWait(context.Background(), 0, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCountdownWaitCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := CountdownWait(ctx, time.Minute, nil)
	if err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestCountdownWaitNotifies(t *testing.T) {
	var seen []time.Duration
	err := CountdownWait(context.Background(), 1100*time.Millisecond, func(remaining time.Duration) {
		seen = append(seen, remaining)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(seen) == 0 {
		t.Fatal("notify never called")
	}
	if seen[0] != 1100*time.Millisecond {
		t.Errorf("first notify = %v, want full duration", seen[0])
	}
}
