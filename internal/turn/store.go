package turn

import (
	"context"
	"encoding/json"
	"time"
)

// Record is one persisted turn outcome, keyed by (game, idempotency key).
// ResultJSON is the serialized Result replayed verbatim on duplicate requests.
type Record struct {
	GameID         string
	SessionID      string
	IdempotencyKey string
	TurnNumber     int
	Seed           uint64
	ResultJSON     json.RawMessage
	CreatedAt      time.Time
}

// Store persists turn records for idempotent replay and turn numbering.
type Store interface {
	// GetTurn returns the record under (game, key), or found=false.
	GetTurn(ctx context.Context, gameID, key string) (Record, bool, error)
	// PutTurn persists a completed turn. Writing a turn number that is not
	// exactly one past the game's last persisted number must fail, so
	// concurrent non-idempotent turns cannot both land.
	PutTurn(ctx context.Context, record Record) error
	// LastTurnNumber returns the highest persisted turn number for a game,
	// or 0 when the game has no turns.
	LastTurnNumber(ctx context.Context, gameID string) (int, error)
}
