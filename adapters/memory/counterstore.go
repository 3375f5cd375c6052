// Package memory provides the in-memory implementation of ports.CounterStore.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ingestgate/ingestgate/domain/ratelimit"
	"github.com/ingestgate/ingestgate/ports"
)

// CounterStore is a process-local counter table.
//
// Exactly one entry exists per distinct key. The table is swept by a
// background reaper so expired windows are eventually removed; between
// sweeps the table is unbounded, which is the accepted best-effort
// reclamation policy for an abuse-mitigation layer.
//
// The table is NOT shared across process instances: with multiple
// instances the effective global limit is N x instances. Deployments that
// need a single global limit use the redis-backed store instead.
type CounterStore struct {
	mu    sync.Mutex
	state map[string]ratelimit.WindowState

	clock  ports.Clock
	ticker *time.Ticker
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// Config configures the in-memory counter store.
type Config struct {
	// CleanupInterval is the reaper cadence. It is independent of, and
	// typically much larger than, the rate limit window (default: 5m).
	CleanupInterval time.Duration

	// Clock drives expiry decisions (default: wall clock).
	Clock ports.Clock
}

// NewCounterStore creates a counter store and starts its reaper.
func NewCounterStore(cfg Config) *CounterStore {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}
	if cfg.Clock == nil {
		cfg.Clock = realClock{}
	}

	s := &CounterStore{
		state: make(map[string]ratelimit.WindowState),
		clock: cfg.Clock,
		done:  make(chan struct{}),
	}

	s.ticker = time.NewTicker(cfg.CleanupInterval)
	s.wg.Add(1)
	go s.reapLoop()

	return s
}

// Check atomically evaluates and updates the fixed-window state for a key.
func (s *CounterStore) Check(ctx context.Context, key string, cfg ratelimit.Config, now time.Time) (ratelimit.CheckResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, newState := ratelimit.Check(s.state[key], cfg, now)
	s.state[key] = newState
	return result, nil
}

// Len returns the number of live entries.
func (s *CounterStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state)
}

// Sweep removes all entries whose window has fully elapsed.
// Normally invoked by the reaper; exported so tests and operators can
// force a pass.
func (s *CounterStore) Sweep() int {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, state := range s.state {
		if ratelimit.Expired(state, now) {
			delete(s.state, key)
			removed++
		}
	}
	return removed
}

// Clear removes all state (for testing).
func (s *CounterStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = make(map[string]ratelimit.WindowState)
}

// Close stops the reaper.
func (s *CounterStore) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.ticker.Stop()
	})
	s.wg.Wait()
	return nil
}

func (s *CounterStore) reapLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ticker.C:
			s.Sweep()
		case <-s.done:
			return
		}
	}
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Ensure interface compliance.
var _ ports.CounterStore = (*CounterStore)(nil)
