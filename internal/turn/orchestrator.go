package turn

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mirelark/storyloom/internal/bundle"
	apperrors "github.com/mirelark/storyloom/internal/errors"
	"github.com/mirelark/storyloom/internal/modelprovider"
	"github.com/mirelark/storyloom/internal/telemetry"
)

// Phase is one stage of the turn pipeline.
type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseBundleBuilding Phase = "bundle_building"
	PhaseAwaitingModel  Phase = "awaiting_model"
	PhaseValidating     Phase = "validating"
	PhaseRepairing      Phase = "repairing"
	PhaseNormalized     Phase = "normalized"
	PhasePersisted      Phase = "persisted"
	PhaseFailed         Phase = "failed"
)

// Assembler builds the turn bundle. Satisfied by *bundle.Assembler.
type Assembler interface {
	Assemble(ctx context.Context, in bundle.Input) (*bundle.Bundle, error)
}

// Locker is an optional cross-process single-flight lock over
// (game, idempotency key). TryAcquire returns release=nil when another holder
// already owns the key.
type Locker interface {
	TryAcquire(ctx context.Context, gameID, key string) (release func(), err error)
}

// Request is one turn invocation.
type Request struct {
	GameID         string
	SessionID      string
	IdempotencyKey string

	Bundle bundle.Input

	Model       string
	Instruction string
	Temperature float64

	// StoryClockAdvance is the ticks the story clock moves this turn. The
	// first turn of a game must not advance it; every later turn must.
	StoryClockAdvance int64
}

// Outcome is one completed turn. ResultJSON is the persisted serialization;
// replays return it byte-identical.
type Outcome struct {
	Result          Result
	ResultJSON      json.RawMessage
	TurnNumber      int
	Seed            uint64
	Replayed        bool
	RepairAttempted bool
}

// Config tunes orchestrator behavior.
type Config struct {
	// ReplayPollInterval is how often a lock loser re-checks the store for
	// the winner's result.
	ReplayPollInterval time.Duration
}

// Orchestrator sequences one turn end-to-end: replay check, bundle assembly,
// model invocation with repair, normalization, persistence, and audit trace.
type Orchestrator struct {
	assembler Assembler
	invoker   modelprovider.Invoker
	turns     Store
	locker    Locker
	emitter   *telemetry.Emitter
	poll      time.Duration
	clock     func() time.Time
}

// NewOrchestrator wires the turn pipeline. locker and emitter may be nil.
func NewOrchestrator(assembler Assembler, invoker modelprovider.Invoker, turns Store, locker Locker, emitter *telemetry.Emitter, cfg Config) *Orchestrator {
	poll := cfg.ReplayPollInterval
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	return &Orchestrator{
		assembler: assembler,
		invoker:   invoker,
		turns:     turns,
		locker:    locker,
		emitter:   emitter,
		poll:      poll,
		clock:     time.Now,
	}
}

// Run executes one turn. Duplicate (game, key) requests replay the stored
// result verbatim without re-invoking the model. On any fatal error the
// returned error is typed and no partial turn is persisted.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Outcome, error) {
	if err := validateRequest(req); err != nil {
		return Outcome{}, err
	}

	ctx, span := otel.Tracer("storyloom/turn").Start(ctx, "turn.Run",
		trace.WithAttributes(
			attribute.String("game.id", req.GameID),
			attribute.String("session.id", req.SessionID),
		))
	defer span.End()

	if outcome, ok, err := o.replay(ctx, req); err != nil {
		return Outcome{}, err
	} else if ok {
		span.SetAttributes(attribute.Bool("turn.replayed", true))
		o.emit(ctx, req, outcome, nil, 0, 0)
		return outcome, nil
	}

	if o.locker != nil {
		release, err := o.locker.TryAcquire(ctx, req.GameID, req.IdempotencyKey)
		if err != nil {
			return Outcome{}, fmt.Errorf("acquire turn lock: %w", err)
		}
		if release == nil {
			// Another request holds the key; wait for its persisted result.
			return o.awaitReplay(ctx, req)
		}
		defer release()
		// The winner may have finished between the replay check and the
		// lock grant.
		if outcome, ok, err := o.replay(ctx, req); err != nil {
			return Outcome{}, err
		} else if ok {
			return outcome, nil
		}
	}

	last, err := o.turns.LastTurnNumber(ctx, req.GameID)
	if err != nil {
		return Outcome{}, fmt.Errorf("last turn number for %s: %w", req.GameID, err)
	}
	turnNumber := last + 1
	if err := checkClockAdvance(turnNumber, req.StoryClockAdvance); err != nil {
		return Outcome{}, err
	}
	seed := Seed(req.SessionID, turnNumber)
	span.SetAttributes(attribute.Int("turn.number", turnNumber))

	markPhase(span, PhaseBundleBuilding)
	assembleStart := o.clock()
	assembled, err := o.assembler.Assemble(ctx, req.Bundle)
	if err != nil {
		markPhase(span, PhaseFailed)
		return Outcome{}, err
	}
	assembleDuration := o.clock().Sub(assembleStart)

	payload, err := json.Marshal(assembled.Packet)
	if err != nil {
		markPhase(span, PhaseFailed)
		return Outcome{}, apperrors.Wrap(apperrors.CodeInternalNormalization, err, "serialize bundle")
	}

	markPhase(span, PhaseAwaitingModel)
	modelStart := o.clock()
	gen, err := generate(ctx, o.invoker, modelprovider.Request{
		Model:       req.Model,
		Instruction: req.Instruction,
		Payload:     payload,
		Temperature: req.Temperature,
	})
	modelDuration := o.clock().Sub(modelStart)
	if gen.RepairAttempted {
		markPhase(span, PhaseRepairing)
	}
	if err != nil {
		span.SetAttributes(attribute.String("turn.error", string(apperrors.CodeOf(err))))
		markPhase(span, PhaseFailed)
		return Outcome{}, err
	}

	markPhase(span, PhaseNormalized)
	resultJSON, err := json.Marshal(gen.Result)
	if err != nil {
		markPhase(span, PhaseFailed)
		return Outcome{}, apperrors.Wrap(apperrors.CodeInternalNormalization, err, "serialize result")
	}

	record := Record{
		GameID:         req.GameID,
		SessionID:      req.SessionID,
		IdempotencyKey: req.IdempotencyKey,
		TurnNumber:     turnNumber,
		Seed:           seed,
		ResultJSON:     resultJSON,
		CreatedAt:      o.clock().UTC(),
	}
	if err := o.turns.PutTurn(ctx, record); err != nil {
		markPhase(span, PhaseFailed)
		return Outcome{}, err
	}
	markPhase(span, PhasePersisted)

	outcome := Outcome{
		Result:          gen.Result,
		ResultJSON:      resultJSON,
		TurnNumber:      turnNumber,
		Seed:            seed,
		RepairAttempted: gen.RepairAttempted,
	}
	o.emit(ctx, req, outcome, assembled, assembleDuration, modelDuration)
	return outcome, nil
}

// replay returns the stored outcome for (game, key) if one exists.
func (o *Orchestrator) replay(ctx context.Context, req Request) (Outcome, bool, error) {
	record, found, err := o.turns.GetTurn(ctx, req.GameID, req.IdempotencyKey)
	if err != nil {
		return Outcome{}, false, fmt.Errorf("replay lookup %s/%s: %w", req.GameID, req.IdempotencyKey, err)
	}
	if !found {
		return Outcome{}, false, nil
	}
	var result Result
	if err := json.Unmarshal(record.ResultJSON, &result); err != nil {
		return Outcome{}, false, apperrors.Wrap(apperrors.CodeInternalNormalization, err, "stored result for %s/%s", req.GameID, req.IdempotencyKey)
	}
	return Outcome{
		Result:     result,
		ResultJSON: record.ResultJSON,
		TurnNumber: record.TurnNumber,
		Seed:       record.Seed,
		Replayed:   true,
	}, true, nil
}

// awaitReplay polls the store until the lock holder's result lands or the
// context expires.
func (o *Orchestrator) awaitReplay(ctx context.Context, req Request) (Outcome, error) {
	ticker := time.NewTicker(o.poll)
	defer ticker.Stop()
	for {
		if outcome, ok, err := o.replay(ctx, req); err != nil {
			return Outcome{}, err
		} else if ok {
			return outcome, nil
		}
		select {
		case <-ctx.Done():
			return Outcome{}, apperrors.Wrap(apperrors.CodeModelTimeout, ctx.Err(),
				"waiting for concurrent turn %s/%s", req.GameID, req.IdempotencyKey)
		case <-ticker.C:
		}
	}
}

// emit records the audit trace. Trace failure never fails the turn.
func (o *Orchestrator) emit(ctx context.Context, req Request, outcome Outcome, assembled *bundle.Bundle, assembleDuration, modelDuration time.Duration) {
	record := telemetry.TurnTrace{
		GameID:           req.GameID,
		SessionID:        req.SessionID,
		IdempotencyKey:   req.IdempotencyKey,
		TurnNumber:       outcome.TurnNumber,
		RepairAttempted:  outcome.RepairAttempted,
		Replayed:         outcome.Replayed,
		AssembleDuration: assembleDuration,
		ModelDuration:    modelDuration,
	}
	if assembled != nil {
		record.Pieces = assembled.Pieces
		record.Included = assembled.Included
		record.Dropped = assembled.Dropped
		record.TokenEstimate = assembled.TokenEstimate
		record.PolicyFlags = assembled.PolicyFlags
	}
	_ = o.emitter.Emit(ctx, record)
}

func markPhase(span trace.Span, phase Phase) {
	span.SetAttributes(attribute.String("turn.phase", string(phase)))
}

func validateRequest(req Request) error {
	if strings.TrimSpace(req.GameID) == "" {
		return fmt.Errorf("game id is required")
	}
	if strings.TrimSpace(req.SessionID) == "" {
		return fmt.Errorf("session id is required")
	}
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		return fmt.Errorf("idempotency key is required")
	}
	return nil
}

// checkClockAdvance enforces the story-clock rule: the first turn must not
// advance the clock, every later turn must.
func checkClockAdvance(turnNumber int, advance int64) error {
	if turnNumber == 1 && advance != 0 {
		return apperrors.New(apperrors.CodeTurnConflict,
			"first turn must not advance the story clock (got %d ticks)", advance)
	}
	if turnNumber > 1 && advance <= 0 {
		return apperrors.New(apperrors.CodeTurnConflict,
			"turn %d must advance the story clock", turnNumber)
	}
	return nil
}
