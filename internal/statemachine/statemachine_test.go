package statemachine

import (
	"errors"
	"testing"

	"github.com/cuemby/orchestrator/internal/eventbus"
	"github.com/cuemby/orchestrator/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCommitter struct {
	shouldFail bool
	calls      []CommitMetadata
	messages   []string
}

func (f *fakeCommitter) Commit(message string, meta CommitMetadata) error {
	if f.shouldFail {
		return errors.New("cold commit failed")
	}
	f.calls = append(f.calls, meta)
	f.messages = append(f.messages, message)
	return nil
}

func TestTransition_HotToHotNoCommit(t *testing.T) {
	bus := eventbus.NewBus()
	bus.Start()
	defer bus.Stop()
	committer := &fakeCommitter{}
	sm := New(bus, committer)

	snap := Snapshot{PRID: "PR-001", ColdState: types.ColdReady, HotState: types.HotInvestigating}
	res := sm.Transition(snap, types.ColdOrHot(types.HotPlanning), "agent-1", "")

	require.True(t, res.Success)
	assert.Equal(t, types.ColdOrHot(types.HotPlanning), res.NewState)
	assert.False(t, res.Committed)
	assert.Empty(t, committer.calls)
}

func TestTransition_MilestoneCommits(t *testing.T) {
	bus := eventbus.NewBus()
	bus.Start()
	defer bus.Stop()
	committer := &fakeCommitter{}
	sm := New(bus, committer)

	// cold=ready -> hot=in-progress (no commit)
	snap := Snapshot{PRID: "PR-001", ColdState: types.ColdReady}
	res := sm.Transition(snap, types.ColdOrHot(types.HotInProgress), "agent-1", "")
	require.True(t, res.Success)
	require.False(t, res.Committed)

	// hot=in-progress -> cold=completed (commit required)
	snap2 := Snapshot{PRID: "PR-001", ColdState: types.ColdReady, HotState: types.HotInProgress}
	res2 := sm.Transition(snap2, types.ColdOrHot(types.ColdCompleted), "agent-1", "")
	require.True(t, res2.Success)
	require.True(t, res2.Committed)
	require.Len(t, committer.calls, 1)
	assert.Equal(t, "PR-001", committer.calls[0].PRID)
	assert.Equal(t, types.ColdOrHot(types.ColdCompleted), committer.calls[0].To)
	assert.Contains(t, committer.messages[0], "PR-001: in-progress")
	assert.Contains(t, committer.messages[0], "Agent: agent-1")
	assert.Contains(t, committer.messages[0], "Metadata:\n- From: in-progress\n- To: completed")
}

func TestFormatCommitMessage_IncludesAgentReasonAndMetadata(t *testing.T) {
	bus := eventbus.NewBus()
	bus.Start()
	defer bus.Stop()
	committer := &fakeCommitter{}
	sm := New(bus, committer)

	snap := Snapshot{PRID: "PR-002", ColdState: types.ColdReady, HotState: types.HotInProgress}
	res := sm.Transition(snap, types.ColdOrHot(types.ColdCompleted), "agent-9", "tests green")

	require.True(t, res.Success)
	require.Len(t, committer.messages, 1)
	msg := committer.messages[0]
	assert.Contains(t, msg, "Agent: agent-9")
	assert.Contains(t, msg, "Reason: tests green")
	assert.Contains(t, msg, "Metadata:")
	assert.Contains(t, msg, "- Timestamp: ")
}

func TestTransition_InvalidRejected(t *testing.T) {
	bus := eventbus.NewBus()
	bus.Start()
	defer bus.Stop()
	committer := &fakeCommitter{}
	sm := New(bus, committer)

	snap := Snapshot{PRID: "PR-001", ColdState: types.ColdApproved}
	res := sm.Transition(snap, types.ColdOrHot(types.ColdReady), "agent-1", "")

	require.False(t, res.Success)
	assert.Equal(t, types.ColdOrHot(types.ColdApproved), res.NewState)
	require.Error(t, res.Err)
	var invalidErr *InvalidTransitionError
	assert.ErrorAs(t, res.Err, &invalidErr)
	assert.Empty(t, committer.calls)
}

func TestTransition_CommitFailureRevertsState(t *testing.T) {
	bus := eventbus.NewBus()
	bus.Start()
	defer bus.Stop()
	committer := &fakeCommitter{shouldFail: true}
	sm := New(bus, committer)

	snap := Snapshot{PRID: "PR-001", ColdState: types.ColdReady, HotState: types.HotInProgress}
	res := sm.Transition(snap, types.ColdOrHot(types.ColdCompleted), "agent-1", "")

	require.False(t, res.Success)
	assert.Equal(t, types.ColdOrHot(types.HotInProgress), res.NewState)
	require.Error(t, res.Err)
}

func TestTransition_EmitsTransitionEvent(t *testing.T) {
	bus := eventbus.NewBus()
	bus.Start()
	defer bus.Stop()
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	committer := &fakeCommitter{}
	sm := New(bus, committer)

	snap := Snapshot{PRID: "PR-002", ColdState: types.ColdReady, HotState: types.HotInProgress}
	res := sm.Transition(snap, types.ColdOrHot(types.ColdCompleted), "agent-1", "")
	require.True(t, res.Success)

	select {
	case evt := <-sub:
		assert.Equal(t, eventbus.EventStateTransitioned, evt.Type)
		assert.NotEmpty(t, evt.ID)
	default:
		t.Fatal("expected a transition event on the bus")
	}
}
