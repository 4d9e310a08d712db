package sqlite

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	apperrors "github.com/mirelark/storyloom/internal/errors"
	"github.com/mirelark/storyloom/internal/telemetry"
	"github.com/mirelark/storyloom/internal/turn"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir() + "/turns.db")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testRecord(key string, number int) turn.Record {
	return turn.Record{
		GameID:         "game-1",
		SessionID:      "session-1",
		IdempotencyKey: key,
		TurnNumber:     number,
		Seed:           turn.Seed("session-1", number),
		ResultJSON:     json.RawMessage(`{"narrative":"A quiet street.","choices":[{"id":"go","label":"Go"}]}`),
	}
}

func TestPutAndGetTurnRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	put := testRecord("key-1", 1)
	if err := store.PutTurn(ctx, put); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, found, err := store.GetTurn(ctx, "game-1", "key-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !found {
		t.Fatal("record not found")
	}
	if got.TurnNumber != 1 || got.SessionID != "session-1" {
		t.Errorf("record = %+v", got)
	}
	if got.Seed != put.Seed {
		t.Errorf("seed = %d, want %d", got.Seed, put.Seed)
	}
	if !bytes.Equal(got.ResultJSON, put.ResultJSON) {
		t.Errorf("result not byte-identical:\n%s\n%s", got.ResultJSON, put.ResultJSON)
	}
	if got.CreatedAt.IsZero() {
		t.Error("created at not set")
	}
}

func TestGetTurnMissing(t *testing.T) {
	store := openTestStore(t)
	_, found, err := store.GetTurn(context.Background(), "game-1", "key-9")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if found {
		t.Fatal("found a record that was never written")
	}
}

func TestPutTurnRejectsNonSequentialNumber(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.PutTurn(ctx, testRecord("key-1", 1)); err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	err := store.PutTurn(ctx, testRecord("key-3", 3))
	if apperrors.CodeOf(err) != apperrors.CodeTurnConflict {
		t.Fatalf("code = %s, want TURN_CONFLICT", apperrors.CodeOf(err))
	}
	err = store.PutTurn(ctx, testRecord("key-dup", 1))
	if apperrors.CodeOf(err) != apperrors.CodeTurnConflict {
		t.Fatalf("code = %s, want TURN_CONFLICT", apperrors.CodeOf(err))
	}
	if err := store.PutTurn(ctx, testRecord("key-2", 2)); err != nil {
		t.Fatalf("turn 2: %v", err)
	}
}

func TestLastTurnNumber(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	last, err := store.LastTurnNumber(ctx, "game-1")
	if err != nil {
		t.Fatalf("last: %v", err)
	}
	if last != 0 {
		t.Fatalf("last = %d, want 0 for a fresh game", last)
	}

	for i := 1; i <= 3; i++ {
		if err := store.PutTurn(ctx, testRecord("key-"+string(rune('0'+i)), i)); err != nil {
			t.Fatalf("turn %d: %v", i, err)
		}
	}
	last, err = store.LastTurnNumber(ctx, "game-1")
	if err != nil {
		t.Fatalf("last: %v", err)
	}
	if last != 3 {
		t.Fatalf("last = %d, want 3", last)
	}

	// Other games are independent.
	last, err = store.LastTurnNumber(ctx, "game-2")
	if err != nil {
		t.Fatalf("last: %v", err)
	}
	if last != 0 {
		t.Fatalf("last = %d, want 0 for another game", last)
	}
}

func TestSeedSurvivesHighBit(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	record := testRecord("key-1", 1)
	record.Seed = math.MaxUint64 - 7
	if err := store.PutTurn(ctx, record); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, _, err := store.GetTurn(ctx, "game-1", "key-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Seed != record.Seed {
		t.Fatalf("seed = %d, want %d", got.Seed, record.Seed)
	}
}

func TestAppendTurnTrace(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	err := store.AppendTurnTrace(ctx, telemetry.TurnTrace{
		GameID:           "game-1",
		SessionID:        "session-1",
		IdempotencyKey:   "key-1",
		TurnNumber:       1,
		Pieces:           []string{"contract:core@1", "npc:npc-01"},
		Included:         []string{"contract:core@1"},
		Dropped:          []string{"npc:npc-01"},
		TokenEstimate:    812,
		PolicyFlags:      []string{"NPC_DROPPED"},
		RepairAttempted:  true,
		AssembleDuration: 3 * time.Millisecond,
		ModelDuration:    950 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	var (
		pieces   string
		estimate int
		repaired int
		modelMs  int64
	)
	row := store.sqlDB.QueryRow(`
SELECT pieces, token_estimate, repair_attempted, model_duration_ms
FROM turn_traces WHERE game_id = ? AND turn_number = ?`, "game-1", 1)
	if err := row.Scan(&pieces, &estimate, &repaired, &modelMs); err != nil {
		t.Fatalf("scan trace: %v", err)
	}
	if pieces != `["contract:core@1","npc:npc-01"]` {
		t.Errorf("pieces = %s", pieces)
	}
	if estimate != 812 || repaired != 1 || modelMs != 950 {
		t.Errorf("trace row = (%d, %d, %d)", estimate, repaired, modelMs)
	}
}
