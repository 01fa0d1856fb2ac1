package types

import "time"

// ColdState is one of the seven durable states a PR can occupy. Only cold
// states survive a crash; they are the source of truth in the cold store.
type ColdState string

const (
	ColdNew       ColdState = "new"
	ColdReady     ColdState = "ready"
	ColdBlocked   ColdState = "blocked"
	ColdPlanned   ColdState = "planned"
	ColdCompleted ColdState = "completed"
	ColdApproved  ColdState = "approved"
	ColdBroken    ColdState = "broken"
)

// HotState is one of the four ephemeral states a PR occupies only while
// actively being worked; it lives in the hot store and is discarded on
// recovery.
type HotState string

const (
	HotInvestigating HotState = "investigating"
	HotPlanning      HotState = "planning"
	HotInProgress    HotState = "in-progress"
	HotUnderReview   HotState = "under-review"
)

// Priority orders PRs for scheduling purposes, critical first.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// priorityRank gives each Priority an ascending sort weight (critical=0).
var priorityRank = map[Priority]int{
	PriorityCritical: 0,
	PriorityHigh:     1,
	PriorityMedium:   2,
	PriorityLow:      3,
}

// Rank returns the priority's ascending sort weight, unknown values sorting last.
func (p Priority) Rank() int {
	if r, ok := priorityRank[p]; ok {
		return r
	}
	return len(priorityRank)
}

// FileAction is the kind of change a PR makes to one of its files.
type FileAction string

const (
	FileActionCreate FileAction = "create"
	FileActionModify FileAction = "modify"
	FileActionDelete FileAction = "delete"
)

// FileChange describes one file a PR touches or expects to touch.
type FileChange struct {
	Path        string     `json:"path" yaml:"path"`
	Action      FileAction `json:"action" yaml:"action"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
}

// Complexity captures the planning estimate attached to a PR.
type Complexity struct {
	Score            int    `json:"score" yaml:"score"`
	EstimatedMinutes int    `json:"estimated_minutes" yaml:"estimated_minutes"`
	SuggestedModel   string `json:"suggested_model,omitempty" yaml:"suggested_model,omitempty"`
	Rationale        string `json:"rationale,omitempty" yaml:"rationale,omitempty"`
}

// PR is the central work item the engine tracks: identity, lifecycle state,
// dependencies, and the files it owns.
//
// Invariants (§3): cold_state is always set; hot_state is set only while the
// PR is being actively worked, regardless of cold_state; dependencies must
// be acyclic across the whole population (enforced by the dependency
// graph's loader, not by this type).
type PR struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	ColdState ColdState `json:"cold_state"`
	HotState  HotState  `json:"hot_state,omitempty"`

	Priority   Priority   `json:"priority"`
	Complexity Complexity `json:"complexity"`

	Dependencies []string `json:"dependencies,omitempty"`

	EstimatedFiles []FileChange `json:"estimated_files,omitempty"`
	ActualFiles    []FileChange `json:"actual_files,omitempty"`

	Leases        []string `json:"leases,omitempty"`
	AssignedAgent string   `json:"assigned_agent,omitempty"`

	LastTransitionAt time.Time `json:"last_transition_at,omitempty"`
}

// InProgress reports whether the PR is being actively worked, per §3
// invariant (ii): hot_state set implies "in progress" regardless of the
// cold state underneath it.
func (p *PR) InProgress() bool {
	return p.HotState != ""
}

// Files returns the union of estimated and actual file paths the PR
// touches, the set the conflict detector and lease manager reason over.
func (p *PR) Files() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(changes []FileChange) {
		for _, c := range changes {
			if !seen[c.Path] {
				seen[c.Path] = true
				out = append(out, c.Path)
			}
		}
	}
	add(p.ActualFiles)
	add(p.EstimatedFiles)
	return out
}

// AgentRole is the kind of work an agent performs.
type AgentRole string

const (
	RolePlanning AgentRole = "planning"
	RoleWorker   AgentRole = "worker"
	RoleQC       AgentRole = "qc"
	RoleReview   AgentRole = "review"
)

// AgentStatus is the lifecycle state of an agent record.
type AgentStatus string

const (
	AgentIdle    AgentStatus = "idle"
	AgentWorking AgentStatus = "working"
	AgentCrashed AgentStatus = "crashed"
)

// Agent is a registered worker process.
type Agent struct {
	ID            string      `json:"id"`
	Role          AgentRole   `json:"role"`
	Status        AgentStatus `json:"status"`
	LastHeartbeat time.Time   `json:"last_heartbeat"`
	AssignedPR    string      `json:"assigned_pr,omitempty"`
	PID           int         `json:"pid,omitempty"`
	StartedAt     time.Time   `json:"started_at"`
}

// Capability is an agent's capability profile used by the assignment
// manager's capability-matched strategy.
type Capability struct {
	MaxComplexity           int     `json:"max_complexity"`
	PreferredModel          string  `json:"preferred_model,omitempty"`
	AvgMinutesPerComplexity float64 `json:"avg_minutes_per_complexity"`
	SuccessRate             float64 `json:"success_rate"`
	Specializations         []string `json:"specializations,omitempty"`
}

// Lease is a time-bounded, exclusive write right over a single file path.
type Lease struct {
	Path         string    `json:"path"`
	HolderAgent  string    `json:"holder_agent"`
	PRID         string    `json:"pr_id"`
	AcquiredAt   time.Time `json:"acquired_at"`
	TTL          time.Duration `json:"ttl"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// EffectiveExpiry is acquired_at + ttl + grace, the point past which the
// key may already have been evicted by the hot store (§3, §4.6).
func (l Lease) EffectiveExpiry(grace time.Duration) time.Time {
	return l.AcquiredAt.Add(l.TTL).Add(grace)
}

// Expired reports whether the lease's effective expiry has passed as of now.
func (l Lease) Expired(now time.Time, grace time.Duration) bool {
	return now.After(l.EffectiveExpiry(grace))
}

// TransitionRule is one row of the closed transition table (§4.4): a legal
// (from, to) edge, whether it requires a cold commit, and a human
// description used in commit messages.
type TransitionRule struct {
	From            ColdOrHot
	To              ColdOrHot
	RequiresCommit  bool
	Description     string
}

// ColdOrHot is a state from either partition, used so the transition table
// can mix cold and hot states in a single (from, to) tuple.
type ColdOrHot string

// IsHot reports whether s is one of the four hot states.
func IsHot(s ColdOrHot) bool {
	switch HotState(s) {
	case HotInvestigating, HotPlanning, HotInProgress, HotUnderReview:
		return true
	}
	return false
}

// IsCold reports whether s is one of the seven cold states.
func IsCold(s ColdOrHot) bool {
	switch ColdState(s) {
	case ColdNew, ColdReady, ColdBlocked, ColdPlanned, ColdCompleted, ColdApproved, ColdBroken:
		return true
	}
	return false
}

// IsValid reports whether s belongs to either partition.
func IsValid(s ColdOrHot) bool {
	return IsCold(s) || IsHot(s)
}

// Transition is a recorded state change: the from/to pair, when it
// happened, and who/why.
type Transition struct {
	PRID      string    `json:"pr_id"`
	From      ColdOrHot `json:"from"`
	To        ColdOrHot `json:"to"`
	Timestamp time.Time `json:"timestamp"`
	AgentID   string    `json:"agent_id,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Committed bool      `json:"committed"`
}

// WorkType is the kind of eligibility filter the dependency graph and
// assignment manager apply when looking for available work (§4.7, §4.10).
type WorkType string

const (
	WorkPlanning       WorkType = "planning"
	WorkImplementation WorkType = "implementation"
	WorkQC             WorkType = "qc"
	WorkReview         WorkType = "review"
)

// EligibleColdStates returns the cold states a PR must be in to be
// considered available for the given work type (§4.7).
func EligibleColdStates(wt WorkType) []ColdState {
	switch wt {
	case WorkPlanning:
		return []ColdState{ColdNew, ColdReady}
	case WorkImplementation:
		return []ColdState{ColdPlanned}
	case WorkQC, WorkReview:
		return []ColdState{ColdCompleted}
	default:
		return nil
	}
}

// RoleForWorkType maps a work type to the agent role that performs it.
func RoleForWorkType(wt WorkType) AgentRole {
	switch wt {
	case WorkPlanning:
		return RolePlanning
	case WorkImplementation:
		return RoleWorker
	case WorkQC:
		return RoleQC
	case WorkReview:
		return RoleReview
	default:
		return ""
	}
}
