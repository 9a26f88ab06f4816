package dag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddEdgePreservesDeclarationOrder(t *testing.T) {
	d := New()
	d.AddEdge("left", "merged")
	d.AddEdge("right", "merged")
	d.AddEdge("left", "merged") // duplicate edge is ignored

	assert.Equal(t, []string{"left", "right"}, d.Dependencies("merged"))
	assert.Equal(t, []string{"merged"}, d.Dependents("left"))
	assert.Equal(t, 3, d.Len())
	assert.Equal(t, []string{"left", "merged", "right"}, d.Nodes())
}

func TestDescendantsTransitive(t *testing.T) {
	// a -> b -> d, a -> c -> d, d -> e
	d := New()
	d.AddEdge("a", "b")
	d.AddEdge("a", "c")
	d.AddEdge("b", "d")
	d.AddEdge("c", "d")
	d.AddEdge("d", "e")

	desc := d.Descendants("a")
	assert.ElementsMatch(t, []string{"b", "c", "d", "e"}, desc)
	assert.ElementsMatch(t, []string{"e"}, d.Descendants("d"))
	assert.Empty(t, d.Descendants("e"))
}

func TestValidateAcceptsAcyclicGraph(t *testing.T) {
	d := New()
	d.AddNode("isolated")
	d.AddEdge("a", "b")
	d.AddEdge("b", "c")
	require.NoError(t, d.Validate())
}

func TestValidateRejectsSelfReference(t *testing.T) {
	d := New()
	d.AddEdge("a", "a")

	err := d.Validate()
	require.ErrorIs(t, err, ErrCycleDetected)
	var cerr *CycleError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, []string{"a"}, cerr.Nodes)
}

func TestValidateRejectsTwoNodeCycle(t *testing.T) {
	d := New()
	d.AddEdge("a", "b")
	d.AddEdge("b", "a")

	err := d.Validate()
	require.ErrorIs(t, err, ErrCycleDetected)
	var cerr *CycleError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, []string{"a", "b"}, cerr.Nodes)
	assert.Contains(t, err.Error(), "cycle detected among artifacts")
}

func TestValidateNamesOnlyCycleParticipants(t *testing.T) {
	// root -> a <-> b -> tail: the cycle is {a, b}; tail is stuck
	// behind it and also never peels.
	d := New()
	d.AddEdge("root", "a")
	d.AddEdge("a", "b")
	d.AddEdge("b", "a")
	d.AddEdge("b", "tail")

	err := d.Validate()
	var cerr *CycleError
	require.ErrorAs(t, err, &cerr)
	assert.Contains(t, cerr.Nodes, "a")
	assert.Contains(t, cerr.Nodes, "b")
	assert.NotContains(t, cerr.Nodes, "root")
}

func TestSorterTopologicalOrder(t *testing.T) {
	d := New()
	d.AddEdge("a", "b")
	d.AddEdge("a", "c")
	d.AddEdge("b", "d")
	d.AddEdge("c", "d")
	require.NoError(t, d.Validate())

	s := d.Sorter()
	assert.Equal(t, []string{"a"}, s.Ready())
	assert.Empty(t, s.Ready(), "Ready drains the set")

	require.NoError(t, s.Done("a"))
	assert.Equal(t, []string{"b", "c"}, s.Ready())

	require.NoError(t, s.Done("b"))
	assert.Empty(t, s.Ready(), "d still waits on c")
	require.NoError(t, s.Done("c"))
	assert.Equal(t, []string{"d"}, s.Ready())

	assert.True(t, s.IsActive())
	require.NoError(t, s.Done("d"))
	assert.False(t, s.IsActive())
}

func TestSorterDoneErrors(t *testing.T) {
	d := New()
	d.AddNode("a")

	s := d.Sorter()
	require.NoError(t, s.Done("a"))
	assert.Error(t, s.Done("a"), "double Done")
	assert.Error(t, s.Done("ghost"), "unknown node")
}

func TestSorterHoldsDependentsOfUnfinishedNodes(t *testing.T) {
	// If a node is never marked Done, none of its descendants become
	// ready and the sorter stays active.
	d := New()
	d.AddEdge("pending", "blocked")
	d.AddEdge("blocked", "tail")

	s := d.Sorter()
	assert.Equal(t, []string{"pending"}, s.Ready())
	assert.Empty(t, s.Ready())
	assert.True(t, s.IsActive())
}
