// Package dag holds the execution dependency graph of a plan and
// answers which artifacts are ready to run as others complete.
package dag

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrCycleDetected marks a dependency cycle in a runbook.
var ErrCycleDetected = errors.New("cycle detected")

// CycleError names the artifacts participating in a cycle.
type CycleError struct {
	Nodes []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected among artifacts: %s", strings.Join(e.Nodes, " -> "))
}

func (e *CycleError) Unwrap() error { return ErrCycleDetected }

// DAG is a directed acyclic graph of artifact ids. Edges point from a
// dependency to its dependent. Dependency lists preserve the order in
// which edges were added (the runbook declaration order).
type DAG struct {
	nodes      map[string]struct{}
	deps       map[string][]string
	dependents map[string][]string
}

// New returns an empty graph.
func New() *DAG {
	return &DAG{
		nodes:      make(map[string]struct{}),
		deps:       make(map[string][]string),
		dependents: make(map[string][]string),
	}
}

// AddNode registers an artifact id. Idempotent.
func (d *DAG) AddNode(id string) {
	d.nodes[id] = struct{}{}
}

// AddEdge records that dependent requires dependency. Both endpoints
// are registered as nodes. Duplicate edges are ignored.
func (d *DAG) AddEdge(dependency, dependent string) {
	d.AddNode(dependency)
	d.AddNode(dependent)
	for _, existing := range d.deps[dependent] {
		if existing == dependency {
			return
		}
	}
	d.deps[dependent] = append(d.deps[dependent], dependency)
	d.dependents[dependency] = append(d.dependents[dependency], dependent)
}

// Len returns the number of nodes.
func (d *DAG) Len() int { return len(d.nodes) }

// Nodes returns all artifact ids, sorted.
func (d *DAG) Nodes() []string {
	out := make([]string, 0, len(d.nodes))
	for id := range d.nodes {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Dependencies returns the direct dependencies of id in declaration
// order.
func (d *DAG) Dependencies(id string) []string {
	return append([]string(nil), d.deps[id]...)
}

// Dependents returns the direct dependents of id.
func (d *DAG) Dependents(id string) []string {
	return append([]string(nil), d.dependents[id]...)
}

// Descendants returns every transitive dependent of id (BFS order,
// deduplicated, excluding id itself).
func (d *DAG) Descendants(id string) []string {
	seen := map[string]bool{id: true}
	var out []string
	queue := append([]string(nil), d.dependents[id]...)
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
		queue = append(queue, d.dependents[n]...)
	}
	return out
}

// Validate detects cycles. A self-reference, a direct two-node cycle,
// and any longer cycle all fail with a *CycleError naming the
// participating nodes.
func (d *DAG) Validate() error {
	// Kahn's algorithm: nodes left over after peeling zero-indegree
	// layers are exactly the cycle participants (and their in-cycle
	// descendants).
	indegree := make(map[string]int, len(d.nodes))
	for id := range d.nodes {
		indegree[id] = len(d.deps[id])
	}
	var queue []string
	for id, n := range indegree {
		if n == 0 {
			queue = append(queue, id)
		}
	}
	visited := 0
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		visited++
		for _, dep := range d.dependents[n] {
			indegree[dep]--
			if indegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}
	if visited == len(d.nodes) {
		return nil
	}
	var cyclic []string
	for id, n := range indegree {
		if n > 0 {
			cyclic = append(cyclic, id)
		}
	}
	sort.Strings(cyclic)
	return &CycleError{Nodes: cyclic}
}

// Sorter returns a prepared topological iterator over the graph. The
// graph must have been validated first; Sorter does not re-check for
// cycles.
func (d *DAG) Sorter() *Sorter {
	s := &Sorter{
		dag:       d,
		remaining: make(map[string]int, len(d.nodes)),
		done:      make(map[string]bool, len(d.nodes)),
	}
	for id := range d.nodes {
		s.remaining[id] = len(d.deps[id])
		if s.remaining[id] == 0 {
			s.ready = append(s.ready, id)
		}
	}
	sort.Strings(s.ready)
	return s
}

// Sorter iterates a DAG in dependency order. Ready drains the current
// ready set; Done releases a node's dependents.
type Sorter struct {
	dag       *DAG
	remaining map[string]int
	done      map[string]bool
	ready     []string
	finished  int
}

// Ready returns the nodes that are currently runnable and removes them
// from the ready set. Multiple independent nodes may be returned
// together.
func (s *Sorter) Ready() []string {
	out := s.ready
	s.ready = nil
	return out
}

// Done marks a node finished, making dependents with no other
// outstanding dependencies ready. Marking a node twice is an error.
func (s *Sorter) Done(id string) error {
	if s.done[id] {
		return fmt.Errorf("sorter: node %q already done", id)
	}
	if _, ok := s.dag.nodes[id]; !ok {
		return fmt.Errorf("sorter: unknown node %q", id)
	}
	s.done[id] = true
	s.finished++
	newly := make([]string, 0, len(s.dag.dependents[id]))
	for _, dep := range s.dag.dependents[id] {
		s.remaining[dep]--
		if s.remaining[dep] == 0 {
			newly = append(newly, dep)
		}
	}
	sort.Strings(newly)
	s.ready = append(s.ready, newly...)
	return nil
}

// IsActive reports whether nodes remain unfinished.
func (s *Sorter) IsActive() bool {
	return s.finished < len(s.dag.nodes)
}
