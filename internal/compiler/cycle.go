package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/frontbase/internal/formula"
	"github.com/roach88/frontbase/internal/ir"
)

// CycleWarning represents a cycle between formula fields.
//
// Cycles are warnings, not errors: the store suppresses change events for
// unchanged values, so a cycle that converges stops on its own. A cycle that
// never converges recomputes forever, which is why it is reported.
type CycleWarning struct {
	Path    []string `json:"path"`    // Cycle path: ["Contact.a", "Contact.b", "Contact.a"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // "warning"
}

// AnalyzeCycles reports cycles in the formula dependency graph.
//
// Nodes are formula fields ("Model.field"). There is an edge A → B when
// formula B reads the field formula A writes, locally or through a
// relationship, so a write of A re-fires B.
//
// The algorithm:
//  1. Build the formula → dependent formula graph from dependencies
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1 or self-loops as a cycle warning
//
// Output is sorted by path so reports are stable.
func AnalyzeCycles(formulas []*formula.Formula) []CycleWarning {
	if len(formulas) == 0 {
		return []CycleWarning{}
	}

	graph := buildDependencyGraph(formulas)
	sccs := tarjanSCC(graph)

	warnings := []CycleWarning{}
	for _, scc := range sccs {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], graph)) {
			warnings = append(warnings, cycleSCCToWarning(scc, graph))
		}
	}

	sort.Slice(warnings, func(i, j int) bool {
		return strings.Join(warnings[i].Path, ",") < strings.Join(warnings[j].Path, ",")
	})
	return warnings
}

// dependencyGraph maps a formula node to the formula nodes it re-fires.
// Edge lists are sorted.
type dependencyGraph map[string][]string

func node(model, field string) string {
	return model + "." + field
}

func buildDependencyGraph(formulas []*formula.Formula) dependencyGraph {
	graph := make(dependencyGraph)

	// key "{model}:{field}" → formula nodes reading it
	readers := make(map[string][]string)
	for _, f := range formulas {
		n := node(f.Model, f.Field)
		graph[n] = []string{}
		for _, dep := range f.Dependencies {
			readers[dep.Key()] = append(readers[dep.Key()], n)
		}
	}

	for _, f := range formulas {
		n := node(f.Model, f.Field)
		seen := make(map[string]bool)
		for _, r := range readers[ir.Key(f.Model, f.Field)] {
			if !seen[r] {
				seen[r] = true
				graph[n] = append(graph[n], r)
			}
		}
		sort.Strings(graph[n])
	}

	return graph
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(n string, graph dependencyGraph) bool {
	for _, neighbor := range graph[n] {
		if neighbor == n {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in sorted order. Single-node SCCs without self-loops
// are NOT cycles.
func tarjanSCC(graph dependencyGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is a root node: pop the stack to form an SCC
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sort.Strings(scc)
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(graph))
	for n := range graph {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)
	for _, n := range nodes {
		if _, visited := indices[n]; !visited {
			strongConnect(n)
		}
	}

	return sccs
}

// cycleSCCToWarning converts an SCC to a CycleWarning.
func cycleSCCToWarning(scc []string, graph dependencyGraph) CycleWarning {
	if len(scc) == 1 {
		n := scc[0]
		return CycleWarning{
			Path:    []string{n, n},
			Message: fmt.Sprintf("Formula reads its own field: %s → %s", n, n),
			Level:   "warning",
		}
	}

	path := reconstructCyclePath(scc, graph)
	return CycleWarning{
		Path:    path,
		Message: fmt.Sprintf("Formula dependency cycle: %s", strings.Join(path, " → ")),
		Level:   "warning",
	}
}

// reconstructCyclePath walks edges inside the SCC from its first node until
// it returns to the start.
func reconstructCyclePath(scc []string, graph dependencyGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	sccSet := make(map[string]bool)
	for _, n := range scc {
		sccSet[n] = true
	}

	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, neighbor := range graph[current] {
			if sccSet[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}
		if next == "" {
			break
		}

		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}

	return path
}
