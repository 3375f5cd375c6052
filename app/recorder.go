package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ingestgate/ingestgate/domain/decision"
	"github.com/ingestgate/ingestgate/ports"
)

// BatchingRecorder buffers decision events and writes them in batches
// to the store, keeping the request path free of synchronous writes.
// Writes are fire-and-forget: a failed batch is logged and dropped, the
// audit trail is best-effort by contract.
type BatchingRecorder struct {
	store         ports.DecisionStore
	logger        zerolog.Logger
	buffer        []decision.Event
	mu            sync.Mutex
	batchSize     int
	flushInterval time.Duration
	stopCh        chan struct{}
	wg            sync.WaitGroup
	closeOnce     sync.Once
}

// NewBatchingRecorder creates a new batching decision recorder.
func NewBatchingRecorder(store ports.DecisionStore, batchSize int, flushInterval time.Duration, logger zerolog.Logger) *BatchingRecorder {
	if batchSize == 0 {
		batchSize = 100
	}
	if flushInterval == 0 {
		flushInterval = 10 * time.Second
	}

	r := &BatchingRecorder{
		store:         store,
		logger:        logger,
		buffer:        make([]decision.Event, 0, batchSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		stopCh:        make(chan struct{}),
	}

	r.wg.Add(1)
	go r.flushLoop()

	return r
}

// Record queues a decision event for processing.
func (r *BatchingRecorder) Record(e decision.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buffer = append(r.buffer, e)

	if len(r.buffer) >= r.batchSize {
		r.flushLocked(context.Background())
	}
}

// Flush forces immediate processing of queued events.
func (r *BatchingRecorder) Flush(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushLocked(ctx)
}

func (r *BatchingRecorder) flushLocked(ctx context.Context) error {
	if len(r.buffer) == 0 {
		return nil
	}

	events := make([]decision.Event, len(r.buffer))
	copy(events, r.buffer)
	r.buffer = r.buffer[:0]

	// Write in background to keep the caller off the write path. The
	// goroutine is tracked so Close waits for in-flight batches.
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := r.store.RecordBatch(ctx, events); err != nil {
			r.logger.Error().Err(err).Int("events", len(events)).Msg("decision batch write failed")
		}
	}()

	return nil
}

func (r *BatchingRecorder) flushLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Flush(context.Background())
		case <-r.stopCh:
			return
		}
	}
}

// Close stops the recorder and flushes remaining events.
func (r *BatchingRecorder) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.stopCh)
		r.wg.Wait()

		// Final flush with timeout
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r.mu.Lock()
		defer r.mu.Unlock()

		if len(r.buffer) > 0 {
			err = r.store.RecordBatch(ctx, r.buffer)
		}
	})
	return err
}

// Ensure interface compliance.
var _ ports.DecisionRecorder = (*BatchingRecorder)(nil)
