package scheduler

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cuemby/orchestrator/internal/config"
	"github.com/cuemby/orchestrator/internal/conflict"
	"github.com/cuemby/orchestrator/internal/depgraph"
	"github.com/cuemby/orchestrator/internal/log"
	"github.com/cuemby/orchestrator/internal/metrics"
	"github.com/cuemby/orchestrator/internal/types"
	"github.com/rs/zerolog"
)

// Candidate is one eligible PR as seen by the scheduler.
type Candidate struct {
	ID         string
	Priority   types.Priority
	Complexity int
	Files      []string
}

// Result is the output of a scheduling cycle (§4.9).
type Result struct {
	SelectedPRs      []string
	BlockedPRs       []string
	BlockReasons     map[string]string
	Timestamp        time.Time
	SchedulingTimeMs int64
}

type cacheEntry struct {
	result    Result
	expiresAt time.Time
}

// Scheduler computes a maximum-parallel conflict-free work set over the
// dependency-eligible candidates (component I).
type Scheduler struct {
	cfg      config.SchedulerConfig
	detector *conflict.Detector
	logger   zerolog.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// New creates a scheduler.
func New(cfg config.SchedulerConfig, detector *conflict.Detector) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		detector: detector,
		logger:   log.WithComponent("scheduler"),
		cache:    make(map[string]cacheEntry),
	}
}

// InvalidateCache drops all cached results. Call after markComplete or
// markFailed in the dependency graph (§4.9).
func (s *Scheduler) InvalidateCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]cacheEntry)
}

// Schedule selects a conflict-free, dependency-eligible candidate set
// using the configured algorithm (§4.9).
func (s *Scheduler) Schedule(candidates []Candidate) Result {
	start := time.Now()
	timer := metrics.NewTimer()
	defer func() { timer.ObserveDuration(metrics.SchedulingLatency) }()

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].ID < candidates[j].ID
	})

	cacheKey := hashIDs(candidates)
	if s.cfg.EnableCaching {
		s.mu.Lock()
		entry, ok := s.cache[cacheKey]
		s.mu.Unlock()
		if ok && time.Now().Before(entry.expiresAt) {
			return entry.result
		}
	}

	var result Result
	switch s.cfg.Algorithm {
	case "maximal-degree":
		result = s.scheduleMaximalDegree(candidates, start)
	default:
		result = s.scheduleGreedy(candidates, start)
	}

	if s.cfg.EnableCaching {
		ttl := s.cfg.CacheTTL
		if ttl <= 0 {
			ttl = 5 * time.Second
		}
		s.mu.Lock()
		s.cache[cacheKey] = cacheEntry{result: result, expiresAt: time.Now().Add(ttl)}
		s.mu.Unlock()
	}

	metrics.PRsScheduled.Add(float64(len(result.SelectedPRs)))
	metrics.PRsBlocked.Add(float64(len(result.BlockedPRs)))

	return result
}

func hashIDs(candidates []Candidate) string {
	h := sha256.New()
	for _, c := range candidates {
		h.Write([]byte(c.ID))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

var priorityOrder = map[types.Priority]int{
	types.PriorityCritical: 0,
	types.PriorityHigh:     1,
	types.PriorityMedium:   2,
	types.PriorityLow:      3,
}

// scheduleGreedy sorts by (priority ascending, complexity ascending, id)
// and walks the list, respecting maxParallelPRs and the conflict graph
// (§4.9 "Greedy ordered").
func (s *Scheduler) scheduleGreedy(candidates []Candidate, start time.Time) Result {
	maxTime := s.cfg.MaxSchedulingTime
	if maxTime <= 0 {
		maxTime = 100 * time.Millisecond
	}
	maxParallel := s.cfg.MaxParallelPRs
	if maxParallel <= 0 {
		maxParallel = 5
	}

	ordered := make([]Candidate, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		if s.cfg.UsePriority && priorityOrder[ordered[i].Priority] != priorityOrder[ordered[j].Priority] {
			return priorityOrder[ordered[i].Priority] < priorityOrder[ordered[j].Priority]
		}
		if s.cfg.UseComplexity && ordered[i].Complexity != ordered[j].Complexity {
			return ordered[i].Complexity < ordered[j].Complexity
		}
		return ordered[i].ID < ordered[j].ID
	})

	var selected []string
	var blocked []string
	reasons := make(map[string]string)

	for _, c := range ordered {
		if time.Since(start) > maxTime {
			blocked = append(blocked, c.ID)
			reasons[c.ID] = "scheduling time budget exceeded"
			continue
		}

		if len(selected) >= maxParallel {
			blocked = append(blocked, c.ID)
			reasons[c.ID] = "capacity reached"
			continue
		}

		conflictsWith := ""
		var conflictFiles []string
		for _, sel := range selected {
			if s.detector.HasConflict(c.ID, sel) {
				conflictsWith = sel
				conflictFiles = s.detector.ConflictingFiles(c.ID, sel)
				break
			}
		}

		if conflictsWith != "" {
			blocked = append(blocked, c.ID)
			reasons[c.ID] = fmt.Sprintf("conflicts with %s on files %v", conflictsWith, conflictFiles)
			continue
		}

		selected = append(selected, c.ID)
	}

	return Result{
		SelectedPRs:      selected,
		BlockedPRs:       blocked,
		BlockReasons:     reasons,
		Timestamp:        time.Now(),
		SchedulingTimeMs: time.Since(start).Milliseconds(),
	}
}

// scheduleMaximalDegree sorts by ascending conflict-degree and greedily
// picks while excluding neighbors, yielding larger sets on dense graphs
// (§4.9 "Maximal by degree").
func (s *Scheduler) scheduleMaximalDegree(candidates []Candidate, start time.Time) Result {
	maxParallel := s.cfg.MaxParallelPRs
	if maxParallel <= 0 {
		maxParallel = 5
	}

	degree := make(map[string]int, len(candidates))
	for _, c := range candidates {
		degree[c.ID] = len(s.detector.ConflictingPRs(c.ID))
	}

	ordered := make([]Candidate, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		if degree[ordered[i].ID] != degree[ordered[j].ID] {
			return degree[ordered[i].ID] < degree[ordered[j].ID]
		}
		return ordered[i].ID < ordered[j].ID
	})

	excluded := make(map[string]bool)
	var selected []string
	var blocked []string
	reasons := make(map[string]string)

	for _, c := range ordered {
		if excluded[c.ID] {
			blocked = append(blocked, c.ID)
			reasons[c.ID] = "excluded by a lower-degree neighbor"
			continue
		}
		if len(selected) >= maxParallel {
			blocked = append(blocked, c.ID)
			reasons[c.ID] = "capacity reached"
			continue
		}
		selected = append(selected, c.ID)
		for _, neighbor := range s.detector.ConflictingPRs(c.ID) {
			excluded[neighbor] = true
		}
	}

	return Result{
		SelectedPRs:      selected,
		BlockedPRs:       blocked,
		BlockReasons:     reasons,
		Timestamp:        time.Now(),
		SchedulingTimeMs: time.Since(start).Milliseconds(),
	}
}

// CandidatesFromGraph converts available dependency-graph nodes into
// scheduler candidates given a file and metadata lookup.
func CandidatesFromGraph(nodes []*depgraph.Node, files func(id string) []string, priority func(id string) types.Priority, complexity func(id string) int) []Candidate {
	out := make([]Candidate, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, Candidate{
			ID:         n.ID,
			Priority:   priority(n.ID),
			Complexity: complexity(n.ID),
			Files:      files(n.ID),
		})
	}
	return out
}
