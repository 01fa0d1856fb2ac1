package depgraph

import (
	"errors"
	"sort"

	"github.com/cuemby/orchestrator/internal/types"
)

// ErrCyclesDetected is returned when a dependency cycle is found at graph
// load time. The load is aborted entirely (§3, §7).
var ErrCyclesDetected = errors.New("depgraph: cycles detected")

// Node is one PR in the dependency graph, referenced by id rather than
// pointer so the forward/reverse edge caches never form ownership cycles
// between a node and its dependents (§9).
type Node struct {
	ID           string
	Dependencies []string
	ColdState    types.ColdState
}

// Graph holds PR nodes plus the completed/working sets and a reverse-edge
// (dependents) cache that is always kept consistent with the forward
// edges (component G).
type Graph struct {
	nodes      map[string]*Node
	dependents map[string]map[string]bool // id -> set of ids that depend on it
	completed  map[string]bool
	working    map[string]bool
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes:      make(map[string]*Node),
		dependents: make(map[string]map[string]bool),
		completed:  make(map[string]bool),
		working:    make(map[string]bool),
	}
}

// addNode inserts a node with forward edges from its dependency set,
// adding reverse edges to existing dependents transactionally.
func (g *Graph) addNode(n *Node) {
	g.nodes[n.ID] = n
	if _, ok := g.dependents[n.ID]; !ok {
		g.dependents[n.ID] = make(map[string]bool)
	}
	for _, dep := range n.Dependencies {
		if _, ok := g.dependents[dep]; !ok {
			g.dependents[dep] = make(map[string]bool)
		}
		g.dependents[dep][n.ID] = true
	}
}

// BuildFromTaskList clears the graph, inserts all nodes, consolidates
// reverse edges, then rejects the whole load with ErrCyclesDetected if a
// depth-first search finds a back edge.
func (g *Graph) BuildFromTaskList(nodes []*Node) error {
	g.nodes = make(map[string]*Node)
	g.dependents = make(map[string]map[string]bool)
	g.completed = make(map[string]bool)
	g.working = make(map[string]bool)

	for _, n := range nodes {
		g.addNode(n)
	}

	for _, n := range nodes {
		if n.ColdState == types.ColdCompleted || n.ColdState == types.ColdApproved {
			g.completed[n.ID] = true
		}
	}

	if g.hasCycle() {
		g.nodes = make(map[string]*Node)
		g.dependents = make(map[string]map[string]bool)
		g.completed = make(map[string]bool)
		g.working = make(map[string]bool)
		return ErrCyclesDetected
	}
	return nil
}

func (g *Graph) hasCycle() bool {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.nodes))

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		node, ok := g.nodes[id]
		if ok {
			for _, dep := range node.Dependencies {
				switch color[dep] {
				case gray:
					return true // back edge
				case white:
					if visit(dep) {
						return true
					}
				}
			}
		}
		color[id] = black
		return false
	}

	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if color[id] == white {
			if visit(id) {
				return true
			}
		}
	}
	return false
}

// GetAvailable returns nodes that are not completed/approved, not marked
// working, and whose full dependency set is contained in completed (§4.7).
func (g *Graph) GetAvailable() []*Node {
	var out []*Node
	for _, id := range g.sortedIDs() {
		n := g.nodes[id]
		if g.completed[id] || g.working[id] {
			continue
		}
		if n.ColdState == types.ColdCompleted || n.ColdState == types.ColdApproved {
			continue
		}
		if g.dependenciesSatisfied(n) {
			out = append(out, n)
		}
	}
	return out
}

func (g *Graph) dependenciesSatisfied(n *Node) bool {
	for _, dep := range n.Dependencies {
		if !g.completed[dep] {
			return false
		}
	}
	return true
}

// GetAvailableForWork additionally filters on the cold_state eligible for
// the given work type. For qc/review the dependency check is skipped:
// review may proceed even when downstream work isn't done (§4.7).
func (g *Graph) GetAvailableForWork(wt types.WorkType) []*Node {
	eligibleStates := types.EligibleColdStates(wt)
	eligible := make(map[types.ColdState]bool, len(eligibleStates))
	for _, s := range eligibleStates {
		eligible[s] = true
	}

	skipDepCheck := wt == types.WorkQC || wt == types.WorkReview

	var out []*Node
	for _, id := range g.sortedIDs() {
		n := g.nodes[id]
		if g.working[id] {
			continue
		}
		if !eligible[n.ColdState] {
			continue
		}
		if !skipDepCheck && !g.dependenciesSatisfied(n) {
			continue
		}
		out = append(out, n)
	}
	return out
}

func (g *Graph) sortedIDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// MarkWorking, MarkNotWorking, MarkComplete, and MarkFailed are idempotent
// updates to the completed/working sets (§4.7).
func (g *Graph) MarkWorking(id string)    { g.working[id] = true }
func (g *Graph) MarkNotWorking(id string) { delete(g.working, id) }
func (g *Graph) MarkComplete(id string) {
	g.completed[id] = true
	delete(g.working, id)
}
func (g *Graph) MarkFailed(id string) { delete(g.working, id) }

// Dependents returns the reverse-edge set for id: every node that depends
// on it.
func (g *Graph) Dependents(id string) []string {
	set := g.dependents[id]
	out := make([]string, 0, len(set))
	for dep := range set {
		out = append(out, dep)
	}
	sort.Strings(out)
	return out
}

// Node returns the node for id, or nil if absent.
func (g *Graph) Node(id string) *Node {
	return g.nodes[id]
}

// IsCompleted reports whether id is in the completed set.
func (g *Graph) IsCompleted(id string) bool { return g.completed[id] }

// IsWorking reports whether id is in the working set.
func (g *Graph) IsWorking(id string) bool { return g.working[id] }
