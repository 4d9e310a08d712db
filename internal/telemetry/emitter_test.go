package telemetry

import (
	"context"
	"fmt"
	"testing"
	"time"
)

type captureStore struct {
	traces []TurnTrace
	err    error
}

func (s *captureStore) AppendTurnTrace(_ context.Context, trace TurnTrace) error {
	if s.err != nil {
		return s.err
	}
	s.traces = append(s.traces, trace)
	return nil
}

func TestEmitStampsTimestamp(t *testing.T) {
	store := &captureStore{}
	emitter := NewEmitter(store)
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	emitter.clock = func() time.Time { return fixed }

	if err := emitter.Emit(context.Background(), TurnTrace{GameID: "g1", TurnNumber: 4}); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if len(store.traces) != 1 {
		t.Fatalf("traces = %d, want 1", len(store.traces))
	}
	if !store.traces[0].Timestamp.Equal(fixed) {
		t.Errorf("timestamp = %v, want %v", store.traces[0].Timestamp, fixed)
	}
}

func TestEmitNilStoreIsNoop(t *testing.T) {
	emitter := NewEmitter(nil)
	if err := emitter.Emit(context.Background(), TurnTrace{}); err != nil {
		t.Fatalf("nil store emit should succeed: %v", err)
	}
	var absent *Emitter
	if err := absent.Emit(context.Background(), TurnTrace{}); err != nil {
		t.Fatalf("nil emitter should succeed: %v", err)
	}
}

func TestEmitPropagatesStoreError(t *testing.T) {
	store := &captureStore{err: fmt.Errorf("disk full")}
	emitter := NewEmitter(store)
	if err := emitter.Emit(context.Background(), TurnTrace{}); err == nil {
		t.Fatal("expected store error")
	}
}
