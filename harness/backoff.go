package harness

import (
	"context"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrorClass buckets backend errors for retry decisions.
type ErrorClass int

const (
	// ClassFatal errors are propagated immediately; no retry.
	ClassFatal ErrorClass = iota
	// ClassRateLimit errors are retried after a reset-aware wait.
	ClassRateLimit
	// ClassTransient errors (connection resets and the like) are retried
	// on a shorter schedule.
	ClassTransient
)

// RateLimitInfo is the structured form of a backend rate-limit error.
// Derived per error, never persisted.
type RateLimitInfo struct {
	IsRateLimited bool
	ResetAt       *time.Time // parsed reset time, when the backend reports one
	ResetText     string     // raw matched reset text
}

var (
	rateLimitPatterns = []string{
		"rate limit",
		"rate_limit",
		"too many requests",
		"429",
		"usage limit",
	}
	transientPatterns = []string{
		"connection reset",
		"connection refused",
		"connection closed",
		"broken pipe",
		"no such host",
		"network is unreachable",
		"unexpected eof",
		"timeout",
		"deadline exceeded",
		"overloaded",
		"server error",
		"internal server",
		"502",
		"503",
		"529",
	}
	fatalPatterns = []string{
		"authentication",
		"unauthorized",
		"invalid api key",
		"401",
		"billing",
		"insufficient credit",
		"payment required",
	}

	// "retry after 32s", "retry_after: 32", "try again in 90 seconds"
	retryAfterRe = regexp.MustCompile(`(?i)(?:retry[ _-]?after|try again in)\D{0,3}(\d+)\s*(?:s|sec|seconds)?`)
	// "resets at 2026-08-30T12:00:00Z"
	resetAtRe = regexp.MustCompile(`(?i)resets? at\s+(\d{4}-\d{2}-\d{2}T[0-9:.+Z-]+)`)
	// "resets at 1767225600" (unix seconds)
	resetUnixRe = regexp.MustCompile(`(?i)resets? at\s+(\d{10})\b`)
)

// ParseRateLimit classifies an error message as a rate-limit signal and
// extracts the reset time when the backend reports one.
func ParseRateLimit(msg string) RateLimitInfo {
	lower := strings.ToLower(msg)

	limited := false
	for _, p := range rateLimitPatterns {
		if strings.Contains(lower, p) {
			limited = true
			break
		}
	}
	if !limited {
		return RateLimitInfo{}
	}

	info := RateLimitInfo{IsRateLimited: true}
	if m := retryAfterRe.FindStringSubmatch(msg); m != nil {
		if secs, err := strconv.Atoi(m[1]); err == nil {
			t := time.Now().Add(time.Duration(secs) * time.Second)
			info.ResetAt = &t
			info.ResetText = m[0]
		}
	} else if m := resetAtRe.FindStringSubmatch(msg); m != nil {
		if t, err := time.Parse(time.RFC3339, m[1]); err == nil {
			info.ResetAt = &t
			info.ResetText = m[0]
		}
	} else if m := resetUnixRe.FindStringSubmatch(msg); m != nil {
		if unix, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			t := time.Unix(unix, 0)
			info.ResetAt = &t
			info.ResetText = m[0]
		}
	}
	return info
}

// Classify buckets an error message. Fatal patterns are checked first so
// "401 too many requests" style composites fail closed; a rate-limit
// match beats the transient bucket; everything unrecognized is fatal.
func Classify(msg string) ErrorClass {
	lower := strings.ToLower(msg)
	for _, p := range fatalPatterns {
		if strings.Contains(lower, p) {
			return ClassFatal
		}
	}
	if ParseRateLimit(msg).IsRateLimited {
		return ClassRateLimit
	}
	for _, p := range transientPatterns {
		if strings.Contains(lower, p) {
			return ClassTransient
		}
	}
	return ClassFatal
}

// BackoffConfig tunes the wait computation. The observed production
// values are the defaults; callers may override any field.
type BackoffConfig struct {
	// ResetBuffer is added to a backend-reported reset time.
	ResetBuffer time.Duration
	// MaxWait caps every rate-limit wait.
	MaxWait time.Duration
	// BaseDelay and Multiplier drive the exponential schedule used when
	// no reset time was reported.
	BaseDelay  time.Duration
	Multiplier float64
	// ConnBaseDelay and ConnMaxWait tune the shorter schedule for
	// transient connection failures.
	ConnBaseDelay time.Duration
	ConnMaxWait   time.Duration
}

// DefaultBackoffConfig returns the default tuning.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		ResetBuffer:   30 * time.Second,
		MaxWait:       30 * time.Minute,
		BaseDelay:     15 * time.Second,
		Multiplier:    2.0,
		ConnBaseDelay: 2 * time.Second,
		ConnMaxWait:   60 * time.Second,
	}
}

// RateLimitWait computes how long to wait before retrying a rate-limited
// call. With a reported reset time the wait is time-until-reset plus the
// buffer, capped at MaxWait; otherwise the exponential schedule for the
// given attempt index applies.
func (b BackoffConfig) RateLimitWait(info RateLimitInfo, attempt int) time.Duration {
	if info.ResetAt != nil {
		wait := time.Until(*info.ResetAt) + b.ResetBuffer
		if wait < 0 {
			wait = b.ResetBuffer
		}
		if wait > b.MaxWait {
			wait = b.MaxWait
		}
		return wait
	}
	return b.exponential(b.BaseDelay, b.MaxWait, attempt)
}

// TransientWait computes the wait for a transient connection failure.
func (b BackoffConfig) TransientWait(attempt int) time.Duration {
	return b.exponential(b.ConnBaseDelay, b.ConnMaxWait, attempt)
}

func (b BackoffConfig) exponential(base, ceiling time.Duration, attempt int) time.Duration {
	mult := b.Multiplier
	if mult <= 0 {
		mult = 2.0
	}
	d := time.Duration(float64(base) * math.Pow(mult, float64(attempt)))
	if d > ceiling || d < 0 {
		return ceiling
	}
	return d
}

// CountdownWait blocks for d, ticking once per second. Each tick invokes
// notify (when non-nil) with the remaining duration so callers can show
// a countdown and pause/resume UI feedback around the wait. Returns the
// context error if cancelled.
func CountdownWait(ctx context.Context, d time.Duration, notify func(remaining time.Duration)) error {
	if d <= 0 {
		return nil
	}
	deadline := time.Now().Add(d)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	if notify != nil {
		notify(d)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return nil
			}
			if notify != nil {
				notify(remaining.Round(time.Second))
			}
		}
	}
}
