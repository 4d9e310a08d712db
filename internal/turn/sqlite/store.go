// Package sqlite provides SQLite-backed persistence for turn records and
// audit traces.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	apperrors "github.com/mirelark/storyloom/internal/errors"
	sqlitemigrate "github.com/mirelark/storyloom/internal/platform/storage/sqlitemigrate"
	"github.com/mirelark/storyloom/internal/telemetry"
	"github.com/mirelark/storyloom/internal/turn"

	"github.com/mirelark/storyloom/internal/turn/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store is a SQLite-backed turn.Store that doubles as the audit trace sink.
type Store struct {
	sqlDB *sql.DB
	clock func() time.Time
}

// Open opens (and migrates) a turn store at the given path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.Apply(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, clock: time.Now}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// GetTurn returns the record under (game, key).
func (s *Store) GetTurn(ctx context.Context, gameID, key string) (turn.Record, bool, error) {
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT game_id, idempotency_key, session_id, turn_number, seed, result, created_at
FROM turns WHERE game_id = ? AND idempotency_key = ?`, gameID, key)

	var (
		record    turn.Record
		seed      int64
		result    string
		createdAt int64
	)
	err := row.Scan(&record.GameID, &record.IdempotencyKey, &record.SessionID,
		&record.TurnNumber, &seed, &result, &createdAt)
	if err == sql.ErrNoRows {
		return turn.Record{}, false, nil
	}
	if err != nil {
		return turn.Record{}, false, fmt.Errorf("get turn %s/%s: %w", gameID, key, err)
	}
	record.Seed = uint64(seed)
	record.ResultJSON = json.RawMessage(result)
	record.CreatedAt = time.UnixMilli(createdAt).UTC()
	return record, true, nil
}

// PutTurn persists a completed turn. The write is rejected with TURN_CONFLICT
// when the turn number is not exactly one past the game's last persisted
// number, so racing non-idempotent turns cannot both land.
func (s *Store) PutTurn(ctx context.Context, record turn.Record) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin put turn: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var last int
	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(turn_number), 0) FROM turns WHERE game_id = ?",
		record.GameID).Scan(&last); err != nil {
		return fmt.Errorf("last turn number for %s: %w", record.GameID, err)
	}
	if record.TurnNumber != last+1 {
		return apperrors.New(apperrors.CodeTurnConflict,
			"turn %d for game %s is not next (last persisted %d)", record.TurnNumber, record.GameID, last)
	}

	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.clock().UTC()
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO turns (game_id, idempotency_key, session_id, turn_number, seed, result, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.GameID,
		record.IdempotencyKey,
		record.SessionID,
		record.TurnNumber,
		int64(record.Seed),
		string(record.ResultJSON),
		createdAt.UnixMilli(),
	); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique") {
			return apperrors.Wrap(apperrors.CodeTurnConflict, err,
				"turn %d for game %s collided", record.TurnNumber, record.GameID)
		}
		return fmt.Errorf("insert turn %s/%s: %w", record.GameID, record.IdempotencyKey, err)
	}
	return tx.Commit()
}

// LastTurnNumber returns the highest persisted turn number for a game, or 0.
func (s *Store) LastTurnNumber(ctx context.Context, gameID string) (int, error) {
	var last int
	err := s.sqlDB.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(turn_number), 0) FROM turns WHERE game_id = ?", gameID).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("last turn number for %s: %w", gameID, err)
	}
	return last, nil
}

// AppendTurnTrace persists one audit trace. Implements telemetry.TraceStore.
func (s *Store) AppendTurnTrace(ctx context.Context, trace telemetry.TurnTrace) error {
	timestamp := trace.Timestamp
	if timestamp.IsZero() {
		timestamp = s.clock().UTC()
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO turn_traces (
    game_id, session_id, idempotency_key, turn_number,
    pieces, included, dropped, token_estimate, policy_flags,
    repair_attempted, replayed, assemble_duration_ms, model_duration_ms, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		trace.GameID,
		trace.SessionID,
		trace.IdempotencyKey,
		trace.TurnNumber,
		encodeList(trace.Pieces),
		encodeList(trace.Included),
		encodeList(trace.Dropped),
		trace.TokenEstimate,
		encodeList(trace.PolicyFlags),
		boolToInt(trace.RepairAttempted),
		boolToInt(trace.Replayed),
		trace.AssembleDuration.Milliseconds(),
		trace.ModelDuration.Milliseconds(),
		timestamp.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("append turn trace %s/%d: %w", trace.GameID, trace.TurnNumber, err)
	}
	return nil
}

func encodeList(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	encoded, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(encoded)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
