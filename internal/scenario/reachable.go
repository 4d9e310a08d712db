package scenario

import (
	"github.com/mirelark/storyloom/internal/guard"
	"github.com/mirelark/storyloom/internal/state"
)

// Reachable returns every node reachable from the entry node under ctx, in
// breadth-first visit order. An edge is traversable only when its guard is
// absent or evaluates true. The entry node is always included.
//
// The result filters which narrative options are legal for the current turn.
func Reachable(g Graph, ctx state.Context) []string {
	outgoing := make(map[string][]Edge, len(g.Nodes))
	for _, edge := range g.Edges {
		outgoing[edge.From] = append(outgoing[edge.From], edge)
	}

	visited := map[string]bool{g.EntryNode: true}
	order := []string{g.EntryNode}
	queue := []string{g.EntryNode}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, edge := range outgoing[current] {
			if visited[edge.To] {
				continue
			}
			if edge.Guard != nil && !guard.Eval(*edge.Guard, ctx) {
				continue
			}
			visited[edge.To] = true
			order = append(order, edge.To)
			queue = append(queue, edge.To)
		}
	}
	return order
}
