package assignment

import (
	"sort"
	"time"

	"github.com/cuemby/orchestrator/internal/config"
	"github.com/cuemby/orchestrator/internal/types"
)

// Strategy selects how selected PRs are paired with eligible agents.
type Strategy string

const (
	FirstAvailable     Strategy = "FIRST_AVAILABLE"
	LoadBalanced       Strategy = "LOAD_BALANCED"
	CapabilityMatched  Strategy = "CAPABILITY_MATCHED"
	RoundRobin         Strategy = "ROUND_ROBIN"
)

// AgentView is the minimal agent state the assignment manager needs.
type AgentView struct {
	ID                string
	Role              types.AgentRole
	Status            types.AgentStatus
	LastAssignedAt    time.Time
	AssignmentCount   int
	Capability        types.Capability
}

// PRView is the minimal PR state needed to match against agents.
type PRView struct {
	ID             string
	ColdState      types.ColdState
	Priority       types.Priority
	Complexity     int
	SuggestedModel string
}

// Assignment is one recorded pairing (§4.10).
type Assignment struct {
	PRID              string
	AgentID           string
	AssignedAt        time.Time
	EstimatedDuration time.Duration
	Priority          types.Priority
	Complexity        int
}

// Manager matches selected PRs to eligible agents (component J).
type Manager struct {
	cfg   config.AssignmentConfig
	clock func() time.Time
}

// New creates an assignment manager.
func New(cfg config.AssignmentConfig) *Manager {
	return &Manager{cfg: cfg, clock: time.Now}
}

// Eligible filters agents by status, assignment-count, and interval-since-
// last-assignment (§4.10).
func (m *Manager) Eligible(agents []AgentView) []AgentView {
	now := m.clock()
	maxAssignments := m.cfg.MaxAssignmentsPerAgent
	if maxAssignments <= 0 {
		maxAssignments = 1
	}

	var out []AgentView
	for _, a := range agents {
		if a.Status != types.AgentIdle {
			continue
		}
		if a.AssignmentCount >= maxAssignments {
			continue
		}
		if !a.LastAssignedAt.IsZero() && now.Sub(a.LastAssignedAt) < m.cfg.MinAssignmentInterval {
			continue
		}
		out = append(out, a)
	}
	return out
}

// roleFits reports whether a's role may work on a PR in the given
// cold_state (§4.10, mirroring types.EligibleColdStates).
func roleFits(role types.AgentRole, coldState types.ColdState) bool {
	var wt types.WorkType
	switch role {
	case types.RolePlanning:
		wt = types.WorkPlanning
	case types.RoleWorker:
		wt = types.WorkImplementation
	case types.RoleQC:
		wt = types.WorkQC
	case types.RoleReview:
		wt = types.WorkReview
	default:
		return false
	}
	for _, s := range types.EligibleColdStates(wt) {
		if s == coldState {
			return true
		}
	}
	return false
}

// Assign pairs selectedPRs with eligible agents using the configured
// strategy, returning the recorded assignments.
func (m *Manager) Assign(selectedPRs []PRView, agents []AgentView) []Assignment {
	pool := make([]AgentView, len(agents))
	copy(pool, agents)

	strategy := Strategy(m.cfg.Strategy)
	if strategy == "" {
		strategy = CapabilityMatched
	}

	var out []Assignment
	rrIndex := 0

	prs := make([]PRView, len(selectedPRs))
	copy(prs, selectedPRs)
	sort.SliceStable(prs, func(i, j int) bool { return prs[i].ID < prs[j].ID })

	for _, pr := range prs {
		candidates := make([]AgentView, 0, len(pool))
		for _, a := range pool {
			if roleFits(a.Role, pr.ColdState) && pr.Complexity <= a.Capability.MaxComplexity {
				candidates = append(candidates, a)
			}
		}
		if len(candidates) == 0 {
			continue
		}

		var chosen AgentView
		switch strategy {
		case FirstAvailable:
			chosen = candidates[0]
		case LoadBalanced:
			chosen = candidates[0]
			for _, c := range candidates[1:] {
				if c.AssignmentCount < chosen.AssignmentCount {
					chosen = c
				}
			}
		case RoundRobin:
			chosen = candidates[rrIndex%len(candidates)]
			rrIndex++
		default: // CapabilityMatched
			chosen = candidates[0]
			best := score(chosen, pr)
			for _, c := range candidates[1:] {
				if s := score(c, pr); s > best {
					chosen, best = c, s
				}
			}
		}

		est := time.Duration(float64(pr.Complexity)*chosen.Capability.AvgMinutesPerComplexity) * time.Minute
		out = append(out, Assignment{
			PRID:              pr.ID,
			AgentID:           chosen.ID,
			AssignedAt:        m.clock(),
			EstimatedDuration: est,
			Priority:          pr.Priority,
			Complexity:        pr.Complexity,
		})

		// Remove chosen agent from pool if now at capacity.
		maxAssignments := m.cfg.MaxAssignmentsPerAgent
		if maxAssignments <= 0 {
			maxAssignments = 1
		}
		chosen.AssignmentCount++
		if chosen.AssignmentCount >= maxAssignments {
			pool = removeAgent(pool, chosen.ID)
		} else {
			for i := range pool {
				if pool[i].ID == chosen.ID {
					pool[i].AssignmentCount = chosen.AssignmentCount
				}
			}
		}
	}

	return out
}

func removeAgent(pool []AgentView, id string) []AgentView {
	out := make([]AgentView, 0, len(pool))
	for _, a := range pool {
		if a.ID != id {
			out = append(out, a)
		}
	}
	return out
}

// score computes the capability-match score (§4.10): diff-based base
// score, model-match bonus, specialization bonus, scaled by success rate
// and priority multiplier.
func score(a AgentView, pr PRView) float64 {
	diff := a.Capability.MaxComplexity - pr.Complexity
	if diff < 0 {
		diff = -diff
	}
	base := float64(10-diff) * 2

	modelBonus := 0.0
	if pr.SuggestedModel != "" && a.Capability.PreferredModel == pr.SuggestedModel {
		modelBonus = 5
	}

	specializationBonus := 0.0
	if len(a.Capability.Specializations) > 0 {
		specializationBonus = 3
	}

	s := (base + modelBonus + specializationBonus) * a.Capability.SuccessRate

	switch pr.Priority {
	case types.PriorityCritical:
		s *= 1.5
	case types.PriorityHigh:
		s *= 1.2
	}

	return s
}
