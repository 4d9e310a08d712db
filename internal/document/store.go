package document

import "context"

// Store provides read/write access to versioned documents.
//
// Put validates and hashes before persistence; Get and GetActive return a
// coded DOCUMENT_NOT_FOUND error when the lookup misses.
type Store interface {
	Put(ctx context.Context, doc Document) (Document, error)
	Get(ctx context.Context, id string, version int) (Document, error)
	GetActive(ctx context.Context, id string) (Document, error)
	SetActive(ctx context.Context, id string, version int) error
}
