// Package document models versioned, content-addressed authored documents.
//
// Identity is (id, version). The hash is a pure function of canonicalized
// content and identifies a document version for audit and dedup; it is not a
// security boundary.
package document

import (
	"encoding/json"
	"strings"
	"time"
)

// Kind discriminates the closed set of authored document kinds.
type Kind string

const (
	KindContract     Kind = "contract"
	KindRuleset      Kind = "ruleset"
	KindWorld        Kind = "world"
	KindAdventure    Kind = "adventure"
	KindNPC          Kind = "npc"
	KindScenario     Kind = "scenario"
	KindInjectionMap Kind = "injection-map"
)

// Kinds lists every valid document kind.
var Kinds = []Kind{
	KindContract,
	KindRuleset,
	KindWorld,
	KindAdventure,
	KindNPC,
	KindScenario,
	KindInjectionMap,
}

// Valid reports whether k names a known document kind.
func (k Kind) Valid() bool {
	for _, kind := range Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Document is one immutable version of an authored document.
type Document struct {
	ID        string
	Version   int
	Kind      Kind
	Content   json.RawMessage
	Hash      string
	Active    bool
	CreatedAt time.Time
}

// Ref names a specific document version, as carried in game snapshots.
type Ref struct {
	ID      string `json:"id"`
	Version int    `json:"version"`
}

// Normalize trims identity fields and recomputes the content hash. It is the
// single path by which documents acquire hashes before persistence.
func Normalize(doc Document) (Document, error) {
	doc.ID = strings.TrimSpace(doc.ID)
	hash, err := Hash(doc.Content)
	if err != nil {
		return Document{}, err
	}
	doc.Hash = hash
	return doc, nil
}
