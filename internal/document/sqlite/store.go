// Package sqlite provides SQLite-backed persistence for authored documents.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mirelark/storyloom/internal/document"
	apperrors "github.com/mirelark/storyloom/internal/errors"
	sqlitemigrate "github.com/mirelark/storyloom/internal/platform/storage/sqlitemigrate"

	"github.com/mirelark/storyloom/internal/document/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store is a SQLite-backed document.Store.
type Store struct {
	sqlDB *sql.DB
	clock func() time.Time
}

// Open opens (and migrates) a document store at the given path.
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

// Put validates, hashes, and persists one document version. Writing an
// existing (id, version) is rejected: versions are immutable.
func (s *Store) Put(ctx context.Context, doc document.Document) (document.Document, error) {
	normalized, err := document.Normalize(doc)
	if err != nil {
		return document.Document{}, apperrors.Wrap(apperrors.CodeDocumentInvalid, err, "document %s@%d: hash content", doc.ID, doc.Version)
	}
	if err := document.Validate(normalized); err != nil {
		return document.Document{}, err
	}

	canonical, err := document.Canonicalize(normalized.Content)
	if err != nil {
		return document.Document{}, apperrors.Wrap(apperrors.CodeDocumentInvalid, err, "document %s@%d: canonicalize", doc.ID, doc.Version)
	}
	normalized.Content = canonical
	normalized.CreatedAt = s.clock().UTC()

	result, err := s.sqlDB.ExecContext(ctx, `
INSERT OR IGNORE INTO documents (id, version, kind, content, hash, active, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		normalized.ID,
		normalized.Version,
		string(normalized.Kind),
		string(normalized.Content),
		normalized.Hash,
		boolToInt(normalized.Active),
		normalized.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return document.Document{}, fmt.Errorf("insert document %s@%d: %w", normalized.ID, normalized.Version, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return document.Document{}, fmt.Errorf("insert document %s@%d: %w", normalized.ID, normalized.Version, err)
	}
	if affected == 0 {
		return document.Document{}, apperrors.New(apperrors.CodeDocumentInvalid, "document %s@%d already exists", normalized.ID, normalized.Version)
	}

	if normalized.Active {
		if err := s.SetActive(ctx, normalized.ID, normalized.Version); err != nil {
			return document.Document{}, err
		}
	}
	return normalized, nil
}

// Get returns one document version.
func (s *Store) Get(ctx context.Context, id string, version int) (document.Document, error) {
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, version, kind, content, hash, active, created_at
FROM documents WHERE id = ? AND version = ?`, id, version)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return document.Document{}, document.NotFound(id, version)
	}
	if err != nil {
		return document.Document{}, fmt.Errorf("get document %s@%d: %w", id, version, err)
	}
	return doc, nil
}

// GetActive returns the active version of a document.
func (s *Store) GetActive(ctx context.Context, id string) (document.Document, error) {
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, version, kind, content, hash, active, created_at
FROM documents WHERE id = ? AND active = 1`, id)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return document.Document{}, document.NotFound(id, 0)
	}
	if err != nil {
		return document.Document{}, fmt.Errorf("get active document %s: %w", id, err)
	}
	return doc, nil
}

// SetActive marks one version active and clears the flag on every other
// version of the same id, in a single transaction.
func (s *Store) SetActive(ctx context.Context, id string, version int) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin set active: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx,
		"UPDATE documents SET active = 1 WHERE id = ? AND version = ?", id, version)
	if err != nil {
		return fmt.Errorf("activate document %s@%d: %w", id, version, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("activate document %s@%d: %w", id, version, err)
	}
	if affected == 0 {
		return document.NotFound(id, version)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE documents SET active = 0 WHERE id = ? AND version != ?", id, version); err != nil {
		return fmt.Errorf("deactivate other versions of %s: %w", id, err)
	}
	return tx.Commit()
}

func scanDocument(row *sql.Row) (document.Document, error) {
	var (
		doc       document.Document
		kind      string
		content   string
		active    int
		createdAt int64
	)
	if err := row.Scan(&doc.ID, &doc.Version, &kind, &content, &doc.Hash, &active, &createdAt); err != nil {
		return document.Document{}, err
	}
	doc.Kind = document.Kind(kind)
	doc.Content = json.RawMessage(content)
	doc.Active = active != 0
	doc.CreatedAt = time.UnixMilli(createdAt).UTC()
	return doc, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
