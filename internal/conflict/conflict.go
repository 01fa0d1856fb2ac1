package conflict

import (
	"sort"
	"strings"

	"github.com/cuemby/orchestrator/internal/depgraph"
)

// PRFiles is the minimal view the detector needs: an id and its file set.
type PRFiles struct {
	ID    string
	Files []string
}

// Detector rebuilds a file-overlap conflict matrix over a PR population
// (component H).
type Detector struct {
	fileOwners map[string]map[string]bool      // file -> set of PR ids
	pairFiles  map[string]map[string]bool       // pairKey -> set of files
	cache      map[string]bool                  // pairKey -> has-conflict (positive only)
}

// New creates an empty detector.
func New() *Detector {
	return &Detector{
		fileOwners: make(map[string]map[string]bool),
		pairFiles:  make(map[string]map[string]bool),
		cache:      make(map[string]bool),
	}
}

func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "\x00" + b
}

// DetectConflicts rebuilds the conflict matrix from scratch, always
// clearing first (§4.8).
func (d *Detector) DetectConflicts(prs []PRFiles) {
	d.Clear()

	for _, pr := range prs {
		for _, f := range pr.Files {
			if d.fileOwners[f] == nil {
				d.fileOwners[f] = make(map[string]bool)
			}
			d.fileOwners[f][pr.ID] = true
		}
	}

	for file, owners := range d.fileOwners {
		if len(owners) < 2 {
			continue
		}
		ids := make([]string, 0, len(owners))
		for id := range owners {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				key := pairKey(ids[i], ids[j])
				if d.pairFiles[key] == nil {
					d.pairFiles[key] = make(map[string]bool)
				}
				d.pairFiles[key][file] = true
				d.cache[key] = true
			}
		}
	}
}

// Clear drops all state.
func (d *Detector) Clear() {
	d.fileOwners = make(map[string]map[string]bool)
	d.pairFiles = make(map[string]map[string]bool)
	d.cache = make(map[string]bool)
}

// HasConflict reports whether a and b share any file.
func (d *Detector) HasConflict(a, b string) bool {
	return d.cache[pairKey(a, b)]
}

// ConflictingFiles returns the full intersection of a's and b's files.
func (d *Detector) ConflictingFiles(a, b string) []string {
	set := d.pairFiles[pairKey(a, b)]
	out := make([]string, 0, len(set))
	for f := range set {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// ConflictingPRs returns every PR id that conflicts with a.
func (d *Detector) ConflictingPRs(a string) []string {
	var out []string
	for key := range d.cache {
		parts := strings.SplitN(key, "\x00", 2)
		if parts[0] == a {
			out = append(out, parts[1])
		} else if parts[1] == a {
			out = append(out, parts[0])
		}
	}
	sort.Strings(out)
	return out
}

// PRsForFile returns every PR id that owns f.
func (d *Detector) PRsForFile(f string) []string {
	set := d.fileOwners[f]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// IndependentSets greedily partitions nodes into conflict-free groups.
func (d *Detector) IndependentSets(nodes []*depgraph.Node) [][]string {
	var sets [][]string
	assigned := make(map[string]bool, len(nodes))

	ids := make([]string, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.ID)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if assigned[id] {
			continue
		}
		group := []string{id}
		assigned[id] = true
		for _, other := range ids {
			if assigned[other] {
				continue
			}
			conflictsWithGroup := false
			for _, member := range group {
				if d.HasConflict(member, other) {
					conflictsWithGroup = true
					break
				}
			}
			if !conflictsWithGroup {
				group = append(group, other)
				assigned[other] = true
			}
		}
		sets = append(sets, group)
	}
	return sets
}

// Density returns the fraction of possible pairs among nodes that
// conflict.
func (d *Detector) Density(nodes []*depgraph.Node) float64 {
	n := len(nodes)
	if n < 2 {
		return 0
	}
	possible := n * (n - 1) / 2
	actual := 0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if d.HasConflict(nodes[i].ID, nodes[j].ID) {
				actual++
			}
		}
	}
	return float64(actual) / float64(possible)
}
