package app_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ingestgate/ingestgate/app"
	"github.com/ingestgate/ingestgate/domain/decision"
)

type fakeDecisionStore struct {
	mu      sync.Mutex
	batches [][]decision.Event
	gotSome chan struct{}
	once    sync.Once
}

func newFakeDecisionStore() *fakeDecisionStore {
	return &fakeDecisionStore{gotSome: make(chan struct{})}
}

func (s *fakeDecisionStore) RecordBatch(_ context.Context, events []decision.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := make([]decision.Event, len(events))
	copy(batch, events)
	s.batches = append(s.batches, batch)
	s.once.Do(func() { close(s.gotSome) })
	return nil
}

func (s *fakeDecisionStore) Summary(context.Context, time.Time, time.Time) (decision.Summary, error) {
	return decision.Summary{}, nil
}

func (s *fakeDecisionStore) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func TestBatchingRecorderFlushOnClose(t *testing.T) {
	store := newFakeDecisionStore()
	r := app.NewBatchingRecorder(store, 100, time.Hour, zerolog.Nop())

	r.Record(decision.Event{ID: "a", Tag: decision.TagAllowed})
	r.Record(decision.Event{ID: "b", Tag: decision.TagRateLimited})

	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := store.total(); got != 2 {
		t.Errorf("stored %d events, want 2", got)
	}
}

func TestBatchingRecorderFlushOnBatchSize(t *testing.T) {
	store := newFakeDecisionStore()
	r := app.NewBatchingRecorder(store, 3, time.Hour, zerolog.Nop())
	defer r.Close()

	for i := 0; i < 3; i++ {
		r.Record(decision.Event{ID: "e", Tag: decision.TagAllowed})
	}

	select {
	case <-store.gotSome:
	case <-time.After(2 * time.Second):
		t.Fatal("batch was not flushed")
	}
	if got := store.total(); got != 3 {
		t.Errorf("stored %d events, want 3", got)
	}
}

// blockingDecisionStore stalls RecordBatch until released, to observe
// what Close does while a background write is still in flight.
type blockingDecisionStore struct {
	fakeDecisionStore
	release chan struct{}
}

func (s *blockingDecisionStore) RecordBatch(ctx context.Context, events []decision.Event) error {
	<-s.release
	return s.fakeDecisionStore.RecordBatch(ctx, events)
}

func TestBatchingRecorderCloseWaitsForInflightWrite(t *testing.T) {
	store := &blockingDecisionStore{
		fakeDecisionStore: *newFakeDecisionStore(),
		release:           make(chan struct{}),
	}
	r := app.NewBatchingRecorder(store, 2, time.Hour, zerolog.Nop())

	// Hitting the batch size kicks off a background write, which now
	// blocks in the store.
	r.Record(decision.Event{ID: "a", Tag: decision.TagAllowed})
	r.Record(decision.Event{ID: "b", Tag: decision.TagAllowed})

	closed := make(chan struct{})
	go func() {
		r.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while a batch write was still in flight")
	case <-time.After(100 * time.Millisecond):
	}

	close(store.release)

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return after the write completed")
	}
	if got := store.total(); got != 2 {
		t.Errorf("stored %d events, want 2", got)
	}
}

func TestBatchingRecorderExplicitFlush(t *testing.T) {
	store := newFakeDecisionStore()
	r := app.NewBatchingRecorder(store, 100, time.Hour, zerolog.Nop())
	defer r.Close()

	r.Record(decision.Event{ID: "a", Tag: decision.TagBlockedInvalidPath})
	if err := r.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}

	select {
	case <-store.gotSome:
	case <-time.After(2 * time.Second):
		t.Fatal("flush did not reach the store")
	}
}
