package transitions

import (
	"sort"

	"github.com/cuemby/orchestrator/internal/types"
)

// Rule is one edge of the authoritative transition table (§4.4). The table
// is closed and ordered; callers must treat it as data, never as branching
// code (§9 "Transition table as data").
type Rule struct {
	From           types.ColdOrHot
	To             types.ColdOrHot
	RequiresCommit bool
	Description    string
}

// table is the full, closed set of valid (from,to) edges. Self-loops are
// synthesized separately and are always valid.
var table = []Rule{
	// cold -> cold (commit)
	{From: "new", To: "ready", RequiresCommit: true, Description: "PR marked ready for work"},
	{From: "new", To: "blocked", RequiresCommit: true, Description: "PR blocked before work started"},
	{From: "blocked", To: "ready", RequiresCommit: true, Description: "Blocker cleared, PR ready again"},
	{From: "ready", To: "blocked", RequiresCommit: true, Description: "PR blocked while ready"},
	{From: "planned", To: "blocked", RequiresCommit: true, Description: "Planned PR blocked"},
	{From: "completed", To: "approved", RequiresCommit: true, Description: "Completed PR approved"},
	{From: "completed", To: "broken", RequiresCommit: true, Description: "Completed PR found broken"},
	{From: "approved", To: "broken", RequiresCommit: true, Description: "Approved PR regressed"},
	{From: "broken", To: "planned", RequiresCommit: true, Description: "Broken PR re-planned for repair"},

	// hot -> hot (no commit)
	{From: "investigating", To: "planning", RequiresCommit: false, Description: "Investigation complete, planning started"},
	{From: "planning", To: "in-progress", RequiresCommit: false, Description: "Plan ready, implementation started"},
	{From: "in-progress", To: "under-review", RequiresCommit: false, Description: "Implementation complete, under review"},

	// cold -> hot (no commit)
	{From: "ready", To: "investigating", RequiresCommit: false, Description: "Ready PR picked up for investigation"},
	{From: "ready", To: "in-progress", RequiresCommit: false, Description: "Ready PR picked up directly for implementation"},
	{From: "planned", To: "in-progress", RequiresCommit: false, Description: "Planned PR picked up for implementation"},
	{From: "planned", To: "investigating", RequiresCommit: false, Description: "Planned PR re-investigated"},
	{From: "completed", To: "under-review", RequiresCommit: false, Description: "Completed PR picked up for review"},
	{From: "broken", To: "investigating", RequiresCommit: false, Description: "Broken PR re-investigated"},

	// hot -> cold (commit)
	{From: "investigating", To: "planned", RequiresCommit: true, Description: "Investigation produced a plan"},
	{From: "planning", To: "planned", RequiresCommit: true, Description: "Planning complete"},
	{From: "in-progress", To: "completed", RequiresCommit: true, Description: "Implementation complete"},
	{From: "under-review", To: "approved", RequiresCommit: true, Description: "Review approved the PR"},
	{From: "under-review", To: "broken", RequiresCommit: true, Description: "Review found the PR broken"},
}

var (
	byPair map[pairKey]Rule
	byFrom map[types.ColdOrHot][]types.ColdOrHot
)

type pairKey struct {
	from types.ColdOrHot
	to   types.ColdOrHot
}

func init() {
	byPair = make(map[pairKey]Rule, len(table))
	byFrom = make(map[types.ColdOrHot][]types.ColdOrHot)

	for _, r := range table {
		byPair[pairKey{r.From, r.To}] = r
		byFrom[r.From] = append(byFrom[r.From], r.To)
	}
	for from := range byFrom {
		sort.Slice(byFrom[from], func(i, j int) bool {
			return byFrom[from][i] < byFrom[from][j]
		})
	}
}

// Result is the structured outcome of Validate.
type Result struct {
	Valid bool
	Error string
	Rule  *Rule
}

// Validate returns the rule governing a (from,to) pair, or a failure
// result when no such edge exists. Self-loops are always valid and never
// require a commit.
func Validate(from, to types.ColdOrHot) Result {
	if !types.IsValid(from) {
		return Result{Valid: false, Error: "unknown from-state: " + string(from)}
	}
	if !types.IsValid(to) {
		return Result{Valid: false, Error: "unknown to-state: " + string(to)}
	}

	if from == to {
		r := Rule{From: from, To: to, RequiresCommit: false, Description: "no-op self transition"}
		return Result{Valid: true, Rule: &r}
	}

	if r, ok := byPair[pairKey{from, to}]; ok {
		rc := r
		return Result{Valid: true, Rule: &rc}
	}

	return Result{Valid: false, Error: "no transition rule for " + string(from) + " -> " + string(to)}
}

// Targets returns the set of states reachable in one hop from s, not
// including the self-loop.
func Targets(s types.ColdOrHot) []types.ColdOrHot {
	out := byFrom[s]
	cp := make([]types.ColdOrHot, len(out))
	copy(cp, out)
	return cp
}

// RequiresCommit reports whether a transition's target requires a cold
// commit. Per §8's quantified invariant: true iff to is a cold state and
// from != to.
func RequiresCommit(from, to types.ColdOrHot) bool {
	if from == to {
		return false
	}
	return types.IsCold(to)
}
