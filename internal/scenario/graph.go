// Package scenario models the directed story graph and its guarded traversal.
package scenario

import (
	"context"
	"encoding/json"

	"github.com/mirelark/storyloom/internal/document"
	apperrors "github.com/mirelark/storyloom/internal/errors"
	"github.com/mirelark/storyloom/internal/guard"
)

// MaxSerializedBytes caps the stored size of one scenario graph.
const MaxSerializedBytes = 4096

// Node is one narrative beat.
type Node struct {
	ID     string `json:"id"`
	Title  string `json:"title,omitempty"`
	Prompt string `json:"prompt,omitempty"`
}

// Edge is a possible story transition. A nil guard is always traversable.
type Edge struct {
	From  string       `json:"from"`
	To    string       `json:"to"`
	Guard *guard.Guard `json:"guard,omitempty"`
}

// Graph is a directed scenario graph rooted at EntryNode.
type Graph struct {
	EntryNode string `json:"entry_node"`
	Nodes     []Node `json:"nodes"`
	Edges     []Edge `json:"edges,omitempty"`
}

// Parse decodes and validates a graph from document content.
func Parse(raw json.RawMessage) (Graph, error) {
	var g Graph
	if err := json.Unmarshal(raw, &g); err != nil {
		return Graph{}, apperrors.Wrap(apperrors.CodeGraphInvalid, err, "decode scenario graph")
	}
	if err := Validate(g); err != nil {
		return Graph{}, err
	}
	return g, nil
}

// Validate enforces the structural invariants: node-id uniqueness, edge
// endpoint existence, entry-node existence, guard well-formedness, and the
// serialized size cap. Any failure rejects the whole graph.
func Validate(g Graph) error {
	if len(g.Nodes) == 0 {
		return apperrors.New(apperrors.CodeGraphInvalid, "graph has no nodes")
	}
	if g.EntryNode == "" {
		return apperrors.New(apperrors.CodeGraphInvalid, "entry_node is required")
	}

	ids := make(map[string]bool, len(g.Nodes))
	for _, node := range g.Nodes {
		if node.ID == "" {
			return apperrors.New(apperrors.CodeGraphInvalid, "node with empty id")
		}
		if ids[node.ID] {
			return apperrors.New(apperrors.CodeGraphInvalid, "duplicate node id %q", node.ID)
		}
		ids[node.ID] = true
	}
	if !ids[g.EntryNode] {
		return apperrors.New(apperrors.CodeGraphInvalid, "entry_node %q is not a node", g.EntryNode)
	}
	for i, edge := range g.Edges {
		if !ids[edge.From] {
			return apperrors.New(apperrors.CodeGraphInvalid, "edge %d: unknown from-node %q", i, edge.From)
		}
		if !ids[edge.To] {
			return apperrors.New(apperrors.CodeGraphInvalid, "edge %d: unknown to-node %q", i, edge.To)
		}
		if edge.Guard != nil {
			if err := guard.Check(*edge.Guard); err != nil {
				return apperrors.Wrap(apperrors.CodeGraphInvalid, err, "edge %d (%s -> %s)", i, edge.From, edge.To)
			}
		}
	}

	serialized, err := json.Marshal(g)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeGraphInvalid, err, "serialize graph")
	}
	if len(serialized) > MaxSerializedBytes {
		return apperrors.New(apperrors.CodeGraphTooLarge, "graph serializes to %d bytes, cap is %d", len(serialized), MaxSerializedBytes)
	}
	return nil
}

// SetGraph validates g and persists it through the document store as one
// scenario document version. Validation failure leaves nothing persisted.
func SetGraph(ctx context.Context, store document.Store, id string, version int, g Graph) (document.Document, error) {
	if err := Validate(g); err != nil {
		return document.Document{}, err
	}
	content, err := json.Marshal(g)
	if err != nil {
		return document.Document{}, apperrors.Wrap(apperrors.CodeGraphInvalid, err, "serialize graph %s", id)
	}
	return store.Put(ctx, document.Document{
		ID:      id,
		Version: version,
		Kind:    document.KindScenario,
		Content: content,
		Active:  true,
	})
}
