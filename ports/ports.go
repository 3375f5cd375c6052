// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"time"

	"github.com/ingestgate/ingestgate/domain/decision"
	"github.com/ingestgate/ingestgate/domain/gateway"
	"github.com/ingestgate/ingestgate/domain/ratelimit"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// -----------------------------------------------------------------------------
// Counter Store Ports
// -----------------------------------------------------------------------------

// CounterStore maintains per-key fixed-window counters.
//
// Check must atomically read, evaluate, and persist the window state for a
// key; two concurrent calls for the same key must not both observe the same
// prior count. A store is owned by the application and injected into the
// request path - there is no package-level counter table.
type CounterStore interface {
	// Check evaluates the fixed-window limit for key and updates its state.
	Check(ctx context.Context, key string, cfg ratelimit.Config, now time.Time) (ratelimit.CheckResult, error)

	// Close releases store resources, including any background reaper.
	Close() error
}

// -----------------------------------------------------------------------------
// Upstream Ports
// -----------------------------------------------------------------------------

// Upstream forwards a request to a backing service.
type Upstream interface {
	// Forward sends the request and returns the buffered response.
	Forward(ctx context.Context, req gateway.Request) (gateway.Response, error)

	// HealthCheck verifies the upstream is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases client resources.
	Close() error
}

// -----------------------------------------------------------------------------
// Decision Audit Ports
// -----------------------------------------------------------------------------

// DecisionStore persists admission decision events.
type DecisionStore interface {
	// RecordBatch stores multiple decision events.
	RecordBatch(ctx context.Context, events []decision.Event) error

	// Summary returns aggregated decision counts for a period.
	Summary(ctx context.Context, start, end time.Time) (decision.Summary, error)
}

// DecisionRecorder queues decision events for asynchronous persistence.
// Recording must never block or fail the request path.
type DecisionRecorder interface {
	// Record queues a decision event.
	Record(e decision.Event)

	// Flush forces immediate processing of queued events.
	Flush(ctx context.Context) error

	// Close flushes and stops the recorder.
	Close() error
}
