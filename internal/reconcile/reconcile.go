// Package reconcile aligns the hot store with the authoritative cold
// store (component N, §4.14): it classifies discrepancies into four
// conflict kinds, resolves them, and runs the full crash-recovery sweep at
// startup. The heartbeat-expired and concurrent-update kinds are declared
// but not produced by this package.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/orchestrator/internal/coldstore"
	"github.com/cuemby/orchestrator/internal/hotstate"
	"github.com/cuemby/orchestrator/internal/log"
	"github.com/cuemby/orchestrator/internal/metrics"
	"github.com/cuemby/orchestrator/internal/types"
	"github.com/rs/zerolog"
)

// Kind classifies a detected discrepancy between hot and cold state (§4.14).
type Kind string

const (
	// KindHotOnTerminal: a hot state exists for a PR whose cold state is
	// already completed/approved. Resolution: clear the hot state.
	KindHotOnTerminal Kind = "hot_on_terminal"
	// KindColdCacheMismatch: the hot store's cold-state cache disagrees
	// with git. Resolution: trust git, overwrite cache, clear hot state.
	KindColdCacheMismatch Kind = "cold_cache_mismatch"
	// KindMissingColdCache: git has the PR but the hot store has no cache
	// entry for it. Resolution: hydrate from git.
	KindMissingColdCache Kind = "missing_cold_cache"
	// KindOrphan: the hot store holds state for a PR id git doesn't know
	// about. Resolution: clear hot state.
	KindOrphan Kind = "orphan"
	// KindHeartbeatExpired: an agent's heartbeat is stale. Non-critical;
	// DetectConflicts does not produce it (stale agents are handled by the
	// registry's reaping pass).
	KindHeartbeatExpired Kind = "heartbeat_expired"
	// KindConcurrentUpdate: reserved for races observed during resolution
	// itself; non-critical and never auto-resolved. DetectConflicts and
	// Resolve do not produce it.
	KindConcurrentUpdate Kind = "concurrent_update"
)

// criticalKinds drop ValidationResult.Valid to false when present.
var criticalKinds = map[Kind]bool{
	KindHotOnTerminal:     true,
	KindColdCacheMismatch: true,
	KindMissingColdCache:  true,
	KindOrphan:            true,
}

// Conflict is one detected discrepancy with its recommended resolution.
type Conflict struct {
	Kind       Kind
	PRID       string
	Detail     string
	Resolution string
}

// ValidationResult is the outcome of ValidateConsistency.
type ValidationResult struct {
	Valid     bool
	Conflicts []Conflict
	Warnings  []Conflict
}

// Reconciler compares the cold store (source of truth) against the hot
// store's cache and ephemeral state, and resolves discrepancies (component N).
type Reconciler struct {
	cold   *coldstore.Store
	hot    *hotstate.Store
	logger zerolog.Logger

	reconciliations int64
	errors          int64
}

// New creates a reconciler over the given cold and hot stores.
func New(cold *coldstore.Store, hot *hotstate.Store) *Reconciler {
	return &Reconciler{cold: cold, hot: hot, logger: log.WithComponent("reconcile")}
}

// DetectConflicts loads cold state (source of truth) and current hot
// state and enumerates the four conflict kinds (§4.14). Agent heartbeats
// are not checked here.
func (r *Reconciler) DetectConflicts(ctx context.Context) ([]Conflict, error) {
	coldState, err := r.cold.ReconstructState()
	if err != nil {
		return nil, fmt.Errorf("reconcile: load cold state failed: %w", err)
	}

	hotStates, err := r.hot.GetAllHotStates(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconcile: load hot states failed: %w", err)
	}

	cachedIDs, err := r.hot.AllColdStateCacheIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconcile: load cold cache ids failed: %w", err)
	}
	cached := make(map[string]bool, len(cachedIDs))
	for _, id := range cachedIDs {
		cached[id] = true
	}

	var conflicts []Conflict

	for prID, pr := range coldState {
		cachedState, exists, err := r.hot.ColdStateCache(ctx, prID)
		if err != nil {
			return nil, err
		}

		if !exists {
			conflicts = append(conflicts, Conflict{
				Kind:       KindMissingColdCache,
				PRID:       prID,
				Detail:     "git has PR but hot store has no cold_state cache entry",
				Resolution: "hydrate cache from git",
			})
		} else if cachedState != pr.ColdState {
			conflicts = append(conflicts, Conflict{
				Kind:       KindColdCacheMismatch,
				PRID:       prID,
				Detail:     fmt.Sprintf("cache=%s git=%s", cachedState, pr.ColdState),
				Resolution: "trust git, overwrite cache, clear hot state",
			})
		}

		if hs, ok := hotStates[prID]; ok && hs != "" {
			if pr.ColdState == types.ColdCompleted || pr.ColdState == types.ColdApproved {
				conflicts = append(conflicts, Conflict{
					Kind:       KindHotOnTerminal,
					PRID:       prID,
					Detail:     fmt.Sprintf("hot_state=%s while cold_state=%s", hs, pr.ColdState),
					Resolution: "clear hot state",
				})
			}
		}
	}

	for prID := range hotStates {
		if _, ok := coldState[prID]; !ok {
			conflicts = append(conflicts, Conflict{
				Kind:       KindOrphan,
				PRID:       prID,
				Detail:     "hot store has state for a PR git does not know about",
				Resolution: "clear hot state",
			})
		}
	}
	for prID := range cached {
		if _, ok := coldState[prID]; !ok {
			conflicts = append(conflicts, Conflict{
				Kind:       KindOrphan,
				PRID:       prID,
				Detail:     "cold_state cache exists for a PR git does not know about",
				Resolution: "clear cache",
			})
		}
	}

	return conflicts, nil
}

// Resolve applies each conflict's recommendation sequentially, logging
// failures per-PR rather than aborting the batch (§4.14, §7).
func (r *Reconciler) Resolve(ctx context.Context, conflicts []Conflict) error {
	for _, c := range conflicts {
		metrics.ConflictsFoundTotal.WithLabelValues(string(c.Kind)).Inc()

		var err error
		switch c.Kind {
		case KindHotOnTerminal:
			err = r.hot.ClearHotState(ctx, c.PRID)
		case KindOrphan:
			// ClearHotState leaves pr:<id>:cold_state behind, so drop every
			// pr:* key of ids git does not know about.
			coldState, cerr := r.cold.ReconstructState()
			if cerr != nil {
				err = cerr
				break
			}
			validIDs := make(map[string]bool, len(coldState))
			for id := range coldState {
				validIDs[id] = true
			}
			_, err = r.hot.ClearOrphanedStates(ctx, validIDs)
		case KindColdCacheMismatch:
			if cerr := r.hot.ClearHotState(ctx, c.PRID); cerr != nil {
				err = cerr
				break
			}
			err = r.refreshCacheFromGit(ctx, c.PRID)
		case KindMissingColdCache:
			err = r.refreshCacheFromGit(ctx, c.PRID)
		default:
			continue
		}

		if err != nil {
			r.errors++
			r.logger.Error().Err(err).Str("pr_id", c.PRID).Str("kind", string(c.Kind)).Msg("reconciliation resolution failed")
		}
	}
	return nil
}

func (r *Reconciler) refreshCacheFromGit(ctx context.Context, prID string) error {
	coldState, err := r.cold.ReconstructState()
	if err != nil {
		return err
	}
	pr, ok := coldState[prID]
	if !ok {
		return nil
	}
	return r.hot.UpdateColdStateCache(ctx, prID, pr.ColdState)
}

// ReconcileAfterCrash runs on startup: since hot states never survive a
// crash, clear every one, drop orphans, and rehydrate every PR's cold
// cache from git (§4.14, scenario 5).
func (r *Reconciler) ReconcileAfterCrash(ctx context.Context) error {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReconciliationDuration)
		metrics.ReconciliationCyclesTotal.Inc()
	}()

	coldState, err := r.cold.ReconstructState()
	if err != nil {
		return fmt.Errorf("reconcile: load cold state failed: %w", err)
	}

	hotStates, err := r.hot.GetAllHotStates(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: load hot states failed: %w", err)
	}
	for prID := range hotStates {
		if err := r.hot.ClearHotState(ctx, prID); err != nil {
			r.logger.Error().Err(err).Str("pr_id", prID).Msg("failed to clear stale hot state on crash recovery")
		}
	}

	validIDs := make(map[string]bool, len(coldState))
	for id := range coldState {
		validIDs[id] = true
	}
	if _, err := r.hot.ClearOrphanedStates(ctx, validIDs); err != nil {
		r.logger.Error().Err(err).Msg("failed to clear orphaned states on crash recovery")
	}

	if err := r.hot.HydrateFromTaskList(ctx, coldState); err != nil {
		return fmt.Errorf("reconcile: rehydrate cold cache failed: %w", err)
	}

	r.reconciliations++
	r.logger.Info().Int("pr_count", len(coldState)).Msg("crash recovery reconciliation complete")
	return nil
}

// ValidateConsistency runs DetectConflicts and partitions the result into
// critical conflicts (which drop Valid to false) and non-critical warnings
// (§4.14).
func (r *Reconciler) ValidateConsistency(ctx context.Context) (ValidationResult, error) {
	conflicts, err := r.DetectConflicts(ctx)
	if err != nil {
		return ValidationResult{}, err
	}

	result := ValidationResult{Valid: true}
	for _, c := range conflicts {
		if criticalKinds[c.Kind] {
			result.Conflicts = append(result.Conflicts, c)
			result.Valid = false
		} else {
			result.Warnings = append(result.Warnings, c)
		}
	}
	return result, nil
}

// Counters exposes the running reconciliation/error counts for the status
// surface.
func (r *Reconciler) Counters() (reconciliations, errors int64) {
	return r.reconciliations, r.errors
}

// periodicInterval is the cadence DefaultInterval reports, for callers that
// want to schedule ValidateConsistency separately from crash recovery.
const periodicInterval = 5 * time.Minute

// DefaultInterval returns the recommended cadence for periodic
// (non-crash) consistency checks.
func DefaultInterval() time.Duration { return periodicInterval }
