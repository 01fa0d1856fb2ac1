package statemachine

import (
	"fmt"
	"time"

	"github.com/cuemby/orchestrator/internal/eventbus"
	"github.com/cuemby/orchestrator/internal/log"
	"github.com/cuemby/orchestrator/internal/metrics"
	"github.com/cuemby/orchestrator/internal/transitions"
	"github.com/cuemby/orchestrator/internal/types"
	"github.com/rs/zerolog"
)

// InvalidTransitionError is returned when a requested transition is not in
// the authoritative table (§7).
type InvalidTransitionError struct {
	From   types.ColdOrHot
	To     types.ColdOrHot
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s: %s", e.From, e.To, e.Reason)
}

// CommitMetadata accompanies a cold commit.
type CommitMetadata struct {
	PRID      string
	From      types.ColdOrHot
	To        types.ColdOrHot
	Timestamp time.Time
	AgentID   string
	Reason    string
}

// Committer is the cold-store write path the state machine invokes when a
// transition requires a commit (implemented by internal/coldstore).
type Committer interface {
	Commit(message string, meta CommitMetadata) error
}

// Snapshot is the minimal PR view the state machine needs to operate.
type Snapshot struct {
	PRID     string
	ColdState types.ColdState
	HotState  types.HotState
}

func (s Snapshot) current() types.ColdOrHot {
	if s.HotState != "" {
		return types.ColdOrHot(s.HotState)
	}
	return types.ColdOrHot(s.ColdState)
}

// Result is the outcome of a Transition call.
type Result struct {
	Success    bool
	NewState   types.ColdOrHot
	Committed  bool
	Transition *types.Transition
	Err        error
}

// StateMachine is a stateless operator over PR snapshots (§4.4): it
// validates structurally, emits the transition event before committing, and
// invokes the cold committer only when the rule requires it.
type StateMachine struct {
	bus       *eventbus.Bus
	committer Committer
	failures  *eventbus.FailureRing
	logger    zerolog.Logger
}

// New creates a state machine wired to the given event bus and committer.
func New(bus *eventbus.Bus, committer Committer) *StateMachine {
	return &StateMachine{
		bus:       bus,
		committer: committer,
		failures:  eventbus.NewFailureRing(100),
		logger:    log.WithComponent("statemachine"),
	}
}

// Transition validates `snapshot.current -> to`, emits the transition
// event, and invokes the committer when required. A commit failure fails
// the transition and reverts new_state; an event emission failure is
// recorded in the ring buffer but never fails the transition (§4.4, §7).
func (sm *StateMachine) Transition(snapshot Snapshot, to types.ColdOrHot, agentID, reason string) Result {
	from := snapshot.current()

	validation := transitions.Validate(from, to)
	if !validation.Valid {
		metrics.TransitionsTotal.WithLabelValues(string(from), string(to), "invalid").Inc()
		return Result{
			Success:  false,
			NewState: from,
			Err:      &InvalidTransitionError{From: from, To: to, Reason: validation.Error},
		}
	}

	now := time.Now()
	transition := &types.Transition{
		PRID:      snapshot.PRID,
		From:      from,
		To:        to,
		Timestamp: now,
		AgentID:   agentID,
		Reason:    reason,
	}

	sm.emit(snapshot.PRID, transition)

	requiresCommit := validation.Rule.RequiresCommit
	if !requiresCommit {
		metrics.TransitionsTotal.WithLabelValues(string(from), string(to), "success").Inc()
		transition.Committed = false
		return Result{Success: true, NewState: to, Committed: false, Transition: transition}
	}

	message := formatCommitMessage(snapshot.PRID, from, to, validation.Rule.Description, agentID, reason, now)
	meta := CommitMetadata{
		PRID:      snapshot.PRID,
		From:      from,
		To:        to,
		Timestamp: now,
		AgentID:   agentID,
		Reason:    reason,
	}

	if err := sm.committer.Commit(message, meta); err != nil {
		metrics.TransitionsTotal.WithLabelValues(string(from), string(to), "commit_failed").Inc()
		metrics.CommitsTotal.WithLabelValues("milestone", "failed").Inc()
		sm.logger.Error().Err(err).Str("pr_id", snapshot.PRID).Msg("cold commit failed, transition reverted")
		return Result{
			Success:  false,
			NewState: from,
			Err:      fmt.Errorf("commit failed: %w", err),
		}
	}

	metrics.CommitsTotal.WithLabelValues("milestone", "success").Inc()
	metrics.TransitionsTotal.WithLabelValues(string(from), string(to), "success").Inc()
	transition.Committed = true
	return Result{Success: true, NewState: to, Committed: true, Transition: transition}
}

func (sm *StateMachine) emit(prID string, transition *types.Transition) {
	defer func() {
		if r := recover(); r != nil {
			sm.failures.Record(prID, fmt.Errorf("panic emitting event: %v", r))
		}
	}()

	sm.bus.Publish(&eventbus.Event{
		Type:    eventbus.EventStateTransitioned,
		Message: fmt.Sprintf("%s: %s -> %s", transition.PRID, transition.From, transition.To),
		Payload: transition,
	})
}

// FailureRing exposes the ring buffer of event-emission failures for the
// status surface.
func (sm *StateMachine) FailureRing() *eventbus.FailureRing {
	return sm.failures
}

// formatCommitMessage builds the milestone commit message documented in
// §6: subject line, description, then an Agent/Reason/Metadata footer.
func formatCommitMessage(prID string, from, to types.ColdOrHot, description, agentID, reason string, timestamp time.Time) string {
	var footer string
	if agentID != "" {
		footer += fmt.Sprintf("Agent: %s\n", agentID)
	}
	if reason != "" {
		footer += fmt.Sprintf("Reason: %s\n", reason)
	}
	footer += fmt.Sprintf(
		"Metadata:\n- From: %s\n- To: %s\n- Timestamp: %s",
		from, to, timestamp.UTC().Format(time.RFC3339),
	)

	return fmt.Sprintf("%s: %s → %s\n\n%s\n\n%s", prID, from, to, description, footer)
}
