package depgraph

import (
	"testing"

	"github.com/cuemby/orchestrator/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildFromTaskList_RejectsCycles(t *testing.T) {
	nodes := []*Node{
		{ID: "PR-1", Dependencies: []string{"PR-3"}, ColdState: types.ColdNew},
		{ID: "PR-2", Dependencies: []string{"PR-1"}, ColdState: types.ColdNew},
		{ID: "PR-3", Dependencies: []string{"PR-2"}, ColdState: types.ColdNew},
	}
	g := New()
	err := g.BuildFromTaskList(nodes)
	require.ErrorIs(t, err, ErrCyclesDetected)
}

func TestBuildFromTaskList_AcyclicSucceeds(t *testing.T) {
	nodes := []*Node{
		{ID: "PR-1", ColdState: types.ColdNew},
		{ID: "PR-2", Dependencies: []string{"PR-1"}, ColdState: types.ColdNew},
		{ID: "PR-3", Dependencies: []string{"PR-2"}, ColdState: types.ColdNew},
	}
	g := New()
	require.NoError(t, g.BuildFromTaskList(nodes))
	assert.ElementsMatch(t, []string{"PR-2"}, g.Dependents("PR-1"))
	assert.ElementsMatch(t, []string{"PR-3"}, g.Dependents("PR-2"))
}

func TestGetAvailable_RespectsDependenciesWorkingAndTerminal(t *testing.T) {
	nodes := []*Node{
		{ID: "PR-1", ColdState: types.ColdCompleted},
		{ID: "PR-2", Dependencies: []string{"PR-1"}, ColdState: types.ColdReady},
		{ID: "PR-3", Dependencies: []string{"PR-2"}, ColdState: types.ColdNew},
		{ID: "PR-4", ColdState: types.ColdApproved},
		{ID: "PR-5", ColdState: types.ColdReady},
	}
	g := New()
	require.NoError(t, g.BuildFromTaskList(nodes))
	g.MarkWorking("PR-5")

	available := g.GetAvailable()
	var ids []string
	for _, n := range available {
		ids = append(ids, n.ID)
	}

	// PR-1, PR-4 are terminal (excluded); PR-3's dep PR-2 isn't completed
	// (excluded); PR-5 is marked working (excluded); only PR-2 qualifies.
	assert.ElementsMatch(t, []string{"PR-2"}, ids)
}

// TestGetAvailable_ReverseInclusion covers §8's bidirectional invariant:
// GetAvailable() == {n : deps ⊆ completed ∧ n ∉ working ∧ cold ∉ terminal}.
func TestGetAvailable_ReverseInclusion(t *testing.T) {
	nodes := []*Node{
		{ID: "PR-1", ColdState: types.ColdCompleted},
		{ID: "PR-2", Dependencies: []string{"PR-1"}, ColdState: types.ColdReady},
		{ID: "PR-3", Dependencies: []string{"PR-1", "PR-2"}, ColdState: types.ColdNew},
	}
	g := New()
	require.NoError(t, g.BuildFromTaskList(nodes))

	available := map[string]bool{}
	for _, n := range g.GetAvailable() {
		available[n.ID] = true
	}

	for _, n := range nodes {
		expected := !g.completed[n.ID] && !g.working[n.ID] &&
			n.ColdState != types.ColdCompleted && n.ColdState != types.ColdApproved &&
			g.dependenciesSatisfied(n)
		assert.Equal(t, expected, available[n.ID], "mismatch for %s", n.ID)
	}
}

func TestGetAvailableForWork_QCSkipsDependencyCheck(t *testing.T) {
	nodes := []*Node{
		{ID: "PR-1", Dependencies: []string{"PR-2"}, ColdState: types.ColdCompleted},
		{ID: "PR-2", ColdState: types.ColdReady},
	}
	g := New()
	require.NoError(t, g.BuildFromTaskList(nodes))

	qc := g.GetAvailableForWork(types.WorkQC)
	require.Len(t, qc, 1)
	assert.Equal(t, "PR-1", qc[0].ID)

	planning := g.GetAvailableForWork(types.WorkPlanning)
	require.Len(t, planning, 1)
	assert.Equal(t, "PR-2", planning[0].ID)
}

func TestMarkComplete_UnmarksWorkingAndUnlocksDependents(t *testing.T) {
	nodes := []*Node{
		{ID: "PR-1", ColdState: types.ColdReady},
		{ID: "PR-2", Dependencies: []string{"PR-1"}, ColdState: types.ColdNew},
	}
	g := New()
	require.NoError(t, g.BuildFromTaskList(nodes))
	g.MarkWorking("PR-1")
	assert.Empty(t, g.GetAvailable())

	g.MarkComplete("PR-1")
	assert.False(t, g.IsWorking("PR-1"))
	assert.True(t, g.IsCompleted("PR-1"))

	available := g.GetAvailable()
	require.Len(t, available, 1)
	assert.Equal(t, "PR-2", available[0].ID)
}

func TestMarkFailed_ClearsWorkingWithoutCompleting(t *testing.T) {
	nodes := []*Node{{ID: "PR-1", ColdState: types.ColdReady}}
	g := New()
	require.NoError(t, g.BuildFromTaskList(nodes))
	g.MarkWorking("PR-1")
	g.MarkFailed("PR-1")

	assert.False(t, g.IsWorking("PR-1"))
	assert.False(t, g.IsCompleted("PR-1"))
	assert.Len(t, g.GetAvailable(), 1)
}
