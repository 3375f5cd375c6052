// Package ratelimit provides the pure fixed-window rate limiting algorithm.
// All functions are deterministic - same input always produces same output.
package ratelimit

import "time"

// WindowState represents the current state of a rate limit window (value type).
type WindowState struct {
	Count   int       // Counted requests in the current window
	ResetAt time.Time // When the current window ends
}

// CheckResult represents the outcome of a rate limit check (value type).
type CheckResult struct {
	Allowed   bool
	Limit     int       // Configured requests per window
	Remaining int       // Requests remaining in window
	ResetAt   time.Time // When limit resets
	Reason    string    // If not allowed, why
}

// Config holds rate limit configuration (value type).
type Config struct {
	Limit  int           // Requests per window
	Window time.Duration // Window duration
}

// Reasons for denial
const (
	ReasonLimitExceeded = "rate_limit_exceeded"
)

// Check performs a fixed-window rate limit check.
// This is a PURE function - no side effects, deterministic.
//
// Windows are anchored at the first request of the window: a fresh entry
// gets ResetAt = now + cfg.Window. A rolling interval that straddles a
// window boundary can therefore pass up to twice the limit; that is the
// accepted imprecision of fixed-window counting, not a bug.
//
// Rejected requests do not increment the counter, so throttling never
// eats into the next window.
//
// Returns:
//   - result: whether the request is admitted and metadata
//   - newState: updated state (caller must persist)
func Check(state WindowState, cfg Config, now time.Time) (CheckResult, WindowState) {
	// No entry yet, or the window has elapsed: start a fresh window.
	if state.ResetAt.IsZero() || now.After(state.ResetAt) {
		state = WindowState{
			Count:   1,
			ResetAt: now.Add(cfg.Window),
		}
		return CheckResult{
			Allowed:   true,
			Limit:     cfg.Limit,
			Remaining: cfg.Limit - 1,
			ResetAt:   state.ResetAt,
		}, state
	}

	// Quota exhausted for this window.
	if state.Count >= cfg.Limit {
		return CheckResult{
			Allowed:   false,
			Limit:     cfg.Limit,
			Remaining: 0,
			ResetAt:   state.ResetAt,
			Reason:    ReasonLimitExceeded,
		}, state
	}

	state.Count++
	return CheckResult{
		Allowed:   true,
		Limit:     cfg.Limit,
		Remaining: cfg.Limit - state.Count,
		ResetAt:   state.ResetAt,
	}, state
}

// CalculateDelay returns how long the client should wait before retrying.
// This is a PURE function.
func CalculateDelay(result CheckResult, now time.Time) time.Duration {
	if result.Allowed {
		return 0
	}
	delay := result.ResetAt.Sub(now)
	if delay < 0 {
		return 0
	}
	return delay
}

// Expired reports whether the window for a state has fully elapsed.
// Used by counter stores to decide which entries to reap.
// This is a PURE function.
func Expired(state WindowState, now time.Time) bool {
	return !state.ResetAt.IsZero() && now.After(state.ResetAt)
}
