package conflict

import (
	"testing"

	"github.com/cuemby/orchestrator/internal/depgraph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectConflicts_FileOverlap(t *testing.T) {
	prs := []PRFiles{
		{ID: "PR-1", Files: []string{"src/a.ts", "src/b.ts"}},
		{ID: "PR-2", Files: []string{"src/c.ts"}},
		{ID: "PR-3", Files: []string{"src/b.ts", "src/d.ts"}},
	}
	d := New()
	d.DetectConflicts(prs)

	assert.True(t, d.HasConflict("PR-1", "PR-3"))
	assert.False(t, d.HasConflict("PR-1", "PR-2"))
	assert.False(t, d.HasConflict("PR-2", "PR-3"))

	assert.Equal(t, []string{"src/b.ts"}, d.ConflictingFiles("PR-1", "PR-3"))
	assert.Equal(t, []string{"src/b.ts"}, d.ConflictingFiles("PR-3", "PR-1"))

	assert.ElementsMatch(t, []string{"PR-3"}, d.ConflictingPRs("PR-1"))
	assert.ElementsMatch(t, []string{"PR-1", "PR-3"}, d.PRsForFile("src/b.ts"))
}

func TestDetectConflicts_AlwaysClearsFirst(t *testing.T) {
	d := New()
	d.DetectConflicts([]PRFiles{
		{ID: "PR-1", Files: []string{"src/a.ts"}},
		{ID: "PR-2", Files: []string{"src/a.ts"}},
	})
	require.True(t, d.HasConflict("PR-1", "PR-2"))

	d.DetectConflicts([]PRFiles{
		{ID: "PR-1", Files: []string{"src/a.ts"}},
		{ID: "PR-2", Files: []string{"src/z.ts"}},
	})
	assert.False(t, d.HasConflict("PR-1", "PR-2"))
}

func TestIndependentSets_NoOverlapWithinGroup(t *testing.T) {
	prs := []PRFiles{
		{ID: "PR-1", Files: []string{"a"}},
		{ID: "PR-2", Files: []string{"a"}},
		{ID: "PR-3", Files: []string{"b"}},
	}
	d := New()
	d.DetectConflicts(prs)

	nodes := []*depgraph.Node{{ID: "PR-1"}, {ID: "PR-2"}, {ID: "PR-3"}}
	sets := d.IndependentSets(nodes)

	for _, group := range sets {
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				assert.False(t, d.HasConflict(group[i], group[j]),
					"group %v should be pairwise conflict-free", group)
			}
		}
	}
}

func TestDensity(t *testing.T) {
	d := New()
	d.DetectConflicts([]PRFiles{
		{ID: "PR-1", Files: []string{"a"}},
		{ID: "PR-2", Files: []string{"a"}},
		{ID: "PR-3", Files: []string{"b"}},
	})
	nodes := []*depgraph.Node{{ID: "PR-1"}, {ID: "PR-2"}, {ID: "PR-3"}}
	// 1 conflicting pair out of 3 possible.
	assert.InDelta(t, 1.0/3.0, d.Density(nodes), 0.0001)
}

func TestDensity_FewerThanTwoNodes(t *testing.T) {
	d := New()
	assert.Equal(t, 0.0, d.Density(nil))
	assert.Equal(t, 0.0, d.Density([]*depgraph.Node{{ID: "PR-1"}}))
}
