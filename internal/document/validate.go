package document

import (
	"encoding/json"
	"fmt"

	apperrors "github.com/mirelark/storyloom/internal/errors"
)

// kindSchema describes the minimal shape a document kind must satisfy at
// write time. Invalid documents never reach the bundle assembler.
type kindSchema struct {
	required []string
}

var kindSchemas = map[Kind]kindSchema{
	KindContract:     {required: []string{"name", "instructions"}},
	KindRuleset:      {required: []string{"name", "rules"}},
	KindWorld:        {required: []string{"name"}},
	KindAdventure:    {required: []string{"title"}},
	KindNPC:          {required: []string{"name"}},
	KindScenario:     {required: []string{"entry_node", "nodes"}},
	KindInjectionMap: {required: []string{"injections"}},
}

// Validate checks doc against its kind's schema. It returns a coded
// DOCUMENT_INVALID error naming the document and the failing field so authors
// can fix their content.
func Validate(doc Document) error {
	if doc.ID == "" {
		return apperrors.New(apperrors.CodeDocumentInvalid, "document id is required")
	}
	if doc.Version < 1 {
		return apperrors.New(apperrors.CodeDocumentInvalid, "document %s: version must be >= 1", doc.ID)
	}
	if !doc.Kind.Valid() {
		return apperrors.New(apperrors.CodeDocumentInvalid, "document %s@%d: unknown kind %q", doc.ID, doc.Version, doc.Kind)
	}

	schema := kindSchemas[doc.Kind]
	var content map[string]json.RawMessage
	if err := json.Unmarshal(doc.Content, &content); err != nil {
		return apperrors.Wrap(apperrors.CodeDocumentInvalid, err, "document %s@%d: content is not a JSON object", doc.ID, doc.Version)
	}
	for _, field := range schema.required {
		raw, ok := content[field]
		if !ok {
			return apperrors.New(apperrors.CodeDocumentInvalid, "document %s@%d (%s): missing required field %q", doc.ID, doc.Version, doc.Kind, field)
		}
		if isEmptyJSON(raw) {
			return apperrors.New(apperrors.CodeDocumentInvalid, "document %s@%d (%s): field %q is empty", doc.ID, doc.Version, doc.Kind, field)
		}
	}
	return nil
}

func isEmptyJSON(raw json.RawMessage) bool {
	switch string(raw) {
	case "null", `""`, "{}", "[]":
		return true
	}
	return false
}

// NotFound builds the typed error for a missing (id, version) lookup.
func NotFound(id string, version int) error {
	if version == 0 {
		return apperrors.New(apperrors.CodeDocumentNotFound, "no active version of document %s", id)
	}
	return apperrors.New(apperrors.CodeDocumentNotFound, fmt.Sprintf("document %s@%d not found", id, version))
}
