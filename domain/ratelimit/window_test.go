package ratelimit_test

import (
	"testing"
	"time"

	"github.com/ingestgate/ingestgate/domain/ratelimit"
)

var (
	baseTime = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	cfg      = ratelimit.Config{
		Limit:  10,
		Window: time.Minute,
	}
)

func TestCheck_FirstRequestStartsWindow(t *testing.T) {
	result, newState := ratelimit.Check(ratelimit.WindowState{}, cfg, baseTime)

	if !result.Allowed {
		t.Error("expected first request to be allowed")
	}
	if result.Remaining != 9 {
		t.Errorf("remaining = %d, want 9", result.Remaining)
	}
	if newState.Count != 1 {
		t.Errorf("count = %d, want 1", newState.Count)
	}
	// Window is anchored at the first request, not at a clock boundary.
	if want := baseTime.Add(time.Minute); !newState.ResetAt.Equal(want) {
		t.Errorf("resetAt = %v, want %v", newState.ResetAt, want)
	}
}

func TestCheck_AllowsWithinLimit(t *testing.T) {
	state := ratelimit.WindowState{
		Count:   5,
		ResetAt: baseTime.Add(30 * time.Second),
	}

	result, newState := ratelimit.Check(state, cfg, baseTime)

	if !result.Allowed {
		t.Error("expected request to be allowed")
	}
	if result.Remaining != 4 { // 10 - 6 = 4
		t.Errorf("remaining = %d, want 4", result.Remaining)
	}
	if newState.Count != 6 {
		t.Errorf("count = %d, want 6", newState.Count)
	}
	if !newState.ResetAt.Equal(state.ResetAt) {
		t.Error("resetAt must not change within a window")
	}
}

func TestCheck_DeniesOverLimit(t *testing.T) {
	state := ratelimit.WindowState{
		Count:   10,
		ResetAt: baseTime.Add(30 * time.Second),
	}

	result, newState := ratelimit.Check(state, cfg, baseTime)

	if result.Allowed {
		t.Error("expected request to be denied")
	}
	if result.Remaining != 0 {
		t.Errorf("remaining = %d, want 0", result.Remaining)
	}
	if result.Reason != ratelimit.ReasonLimitExceeded {
		t.Errorf("reason = %q, want %q", result.Reason, ratelimit.ReasonLimitExceeded)
	}
	// Rejections are not counted against the window.
	if newState.Count != 10 {
		t.Errorf("count = %d, want 10", newState.Count)
	}
}

func TestCheck_StaysDeniedWithinWindow(t *testing.T) {
	state := ratelimit.WindowState{
		Count:   10,
		ResetAt: baseTime.Add(30 * time.Second),
	}

	for i := 0; i < 5; i++ {
		var result ratelimit.CheckResult
		result, state = ratelimit.Check(state, cfg, baseTime.Add(time.Duration(i)*time.Second))
		if result.Allowed {
			t.Fatalf("request %d: expected denial within exhausted window", i)
		}
	}
	if state.Count != 10 {
		t.Errorf("count = %d, want 10 after repeated rejections", state.Count)
	}
}

func TestCheck_ResetsExpiredWindow(t *testing.T) {
	state := ratelimit.WindowState{
		Count:   100, // Way over limit
		ResetAt: baseTime.Add(-time.Hour),
	}

	result, newState := ratelimit.Check(state, cfg, baseTime)

	if !result.Allowed {
		t.Error("expected request to be allowed after window reset")
	}
	if result.Remaining != 9 { // fresh window: 10 - 1
		t.Errorf("remaining = %d, want 9", result.Remaining)
	}
	if newState.Count != 1 {
		t.Errorf("count = %d, want 1 (reset)", newState.Count)
	}
	if want := baseTime.Add(time.Minute); !newState.ResetAt.Equal(want) {
		t.Errorf("resetAt = %v, want %v", newState.ResetAt, want)
	}
}

func TestCheck_FullQuotaScenario(t *testing.T) {
	// 100 requests within 10 seconds against limit 100 / 60s: all admitted,
	// the last with remaining 0, the 101st rejected.
	scenarioCfg := ratelimit.Config{Limit: 100, Window: time.Minute}
	var state ratelimit.WindowState
	var result ratelimit.CheckResult

	for i := 0; i < 100; i++ {
		now := baseTime.Add(time.Duration(i) * 100 * time.Millisecond)
		result, state = ratelimit.Check(state, scenarioCfg, now)
		if !result.Allowed {
			t.Fatalf("request %d: expected admission", i+1)
		}
		if want := 100 - (i + 1); result.Remaining != want {
			t.Fatalf("request %d: remaining = %d, want %d", i+1, result.Remaining, want)
		}
	}

	result, _ = ratelimit.Check(state, scenarioCfg, baseTime.Add(10*time.Second))
	if result.Allowed {
		t.Error("expected 101st request to be denied")
	}
	if delay := ratelimit.CalculateDelay(result, baseTime.Add(10*time.Second)); delay > time.Minute {
		t.Errorf("delay = %v, want <= 60s", delay)
	}
}

func TestCheck_Deterministic(t *testing.T) {
	state := ratelimit.WindowState{
		Count:   7,
		ResetAt: baseTime.Add(30 * time.Second),
	}

	result1, state1 := ratelimit.Check(state, cfg, baseTime)
	result2, state2 := ratelimit.Check(state, cfg, baseTime)

	if result1 != result2 {
		t.Error("Check should be deterministic")
	}
	if state1 != state2 {
		t.Error("Check should be deterministic")
	}
}

func TestCalculateDelay(t *testing.T) {
	tests := []struct {
		name      string
		result    ratelimit.CheckResult
		now       time.Time
		wantDelay time.Duration
	}{
		{
			name: "allowed returns zero",
			result: ratelimit.CheckResult{
				Allowed: true,
				ResetAt: baseTime.Add(time.Minute),
			},
			now:       baseTime,
			wantDelay: 0,
		},
		{
			name: "denied returns time to reset",
			result: ratelimit.CheckResult{
				Allowed: false,
				ResetAt: baseTime.Add(30 * time.Second),
			},
			now:       baseTime,
			wantDelay: 30 * time.Second,
		},
		{
			name: "past reset returns zero",
			result: ratelimit.CheckResult{
				Allowed: false,
				ResetAt: baseTime.Add(-time.Second),
			},
			now:       baseTime,
			wantDelay: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ratelimit.CalculateDelay(tt.result, tt.now)
			if got != tt.wantDelay {
				t.Errorf("CalculateDelay() = %v, want %v", got, tt.wantDelay)
			}
		})
	}
}

func TestExpired(t *testing.T) {
	tests := []struct {
		name  string
		state ratelimit.WindowState
		want  bool
	}{
		{"zero state", ratelimit.WindowState{}, false},
		{"live window", ratelimit.WindowState{Count: 3, ResetAt: baseTime.Add(time.Second)}, false},
		{"elapsed window", ratelimit.WindowState{Count: 3, ResetAt: baseTime.Add(-time.Second)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ratelimit.Expired(tt.state, baseTime); got != tt.want {
				t.Errorf("Expired() = %v, want %v", got, tt.want)
			}
		})
	}
}

// Benchmark to ensure the rate limit check stays cheap on the hot path.
func BenchmarkCheck(b *testing.B) {
	state := ratelimit.WindowState{
		Count:   5,
		ResetAt: baseTime.Add(30 * time.Second),
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ratelimit.Check(state, cfg, baseTime)
	}
}
