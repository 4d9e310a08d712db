// Package telemetry records best-effort per-turn traces for audit and debug.
//
// Trace persistence must never fail a turn: the emitter is a no-op when no
// store is configured, and callers are expected to log-and-continue on error.
package telemetry

import (
	"context"
	"time"
)

// TurnTrace captures what one turn assembled, trimmed, and spent.
type TurnTrace struct {
	GameID         string
	SessionID      string
	IdempotencyKey string
	TurnNumber     int

	Pieces        []string
	Included      []string
	Dropped       []string
	TokenEstimate int
	PolicyFlags   []string

	RepairAttempted bool
	Replayed        bool

	AssembleDuration time.Duration
	ModelDuration    time.Duration
	Timestamp        time.Time
}

// TraceStore persists turn traces.
type TraceStore interface {
	AppendTurnTrace(ctx context.Context, trace TurnTrace) error
}

// Emitter records turn traces through a TraceStore.
type Emitter struct {
	store TraceStore
	clock func() time.Time
}

// NewEmitter creates an emitter. A nil store yields a no-op emitter.
func NewEmitter(store TraceStore) *Emitter {
	return &Emitter{store: store, clock: time.Now}
}

// Emit records a turn trace. It is a no-op when the store is nil.
func (e *Emitter) Emit(ctx context.Context, trace TurnTrace) error {
	if e == nil || e.store == nil {
		return nil
	}
	if trace.Timestamp.IsZero() {
		clock := e.clock
		if clock == nil {
			clock = time.Now
		}
		trace.Timestamp = clock().UTC()
	}
	return e.store.AppendTurnTrace(ctx, trace)
}
