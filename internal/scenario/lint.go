package scenario

import "fmt"

// Severity ranks a lint finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Lint finding codes.
const (
	LintUnknownNode   = "UNKNOWN_NODE"
	LintOrphanNode    = "ORPHAN_NODE"
	LintHighOutDegree = "HIGH_OUT_DEGREE"
	LintCycle         = "CYCLE"
)

// MaxOutDegree is the authoring threshold above which a node's fan-out is
// flagged.
const MaxOutDegree = 8

// Finding is one lint result. Lints are authoring feedback only; they never
// block evaluation.
type Finding struct {
	Severity Severity
	Code     string
	Message  string
}

// Lint statically analyses a graph: edges to unknown nodes (error), orphan
// nodes with no in/out edges (warning), fan-out above MaxOutDegree (warning),
// and cycles detected via DFS recursion stack (warning).
func Lint(g Graph) []Finding {
	var findings []Finding

	ids := make(map[string]bool, len(g.Nodes))
	for _, node := range g.Nodes {
		ids[node.ID] = true
	}

	outgoing := make(map[string][]string)
	degree := make(map[string]int)
	for i, edge := range g.Edges {
		for _, endpoint := range []string{edge.From, edge.To} {
			if !ids[endpoint] {
				findings = append(findings, Finding{
					Severity: SeverityError,
					Code:     LintUnknownNode,
					Message:  fmt.Sprintf("edge %d references unknown node %q", i, endpoint),
				})
			}
		}
		outgoing[edge.From] = append(outgoing[edge.From], edge.To)
		degree[edge.From]++
		degree[edge.To]++
	}

	for _, node := range g.Nodes {
		if degree[node.ID] == 0 && node.ID != g.EntryNode {
			findings = append(findings, Finding{
				Severity: SeverityWarning,
				Code:     LintOrphanNode,
				Message:  fmt.Sprintf("node %q has no edges", node.ID),
			})
		}
	}

	for _, node := range g.Nodes {
		if len(outgoing[node.ID]) > MaxOutDegree {
			findings = append(findings, Finding{
				Severity: SeverityWarning,
				Code:     LintHighOutDegree,
				Message:  fmt.Sprintf("node %q has out-degree %d, threshold is %d", node.ID, len(outgoing[node.ID]), MaxOutDegree),
			})
		}
	}

	if cycle := findCycle(g.Nodes, outgoing); cycle != "" {
		findings = append(findings, Finding{
			Severity: SeverityWarning,
			Code:     LintCycle,
			Message:  fmt.Sprintf("cycle detected through node %q", cycle),
		})
	}
	return findings
}

// findCycle runs DFS with an explicit recursion stack and returns the first
// node found on a back edge, or "" when the graph is acyclic.
func findCycle(nodes []Node, outgoing map[string][]string) string {
	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	mark := make(map[string]int, len(nodes))

	var visit func(id string) string
	visit = func(id string) string {
		mark[id] = inStack
		for _, next := range outgoing[id] {
			switch mark[next] {
			case inStack:
				return next
			case unvisited:
				if found := visit(next); found != "" {
					return found
				}
			}
		}
		mark[id] = done
		return ""
	}

	for _, node := range nodes {
		if mark[node.ID] == unvisited {
			if found := visit(node.ID); found != "" {
				return found
			}
		}
	}
	return ""
}
