package mcp

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-sh/parley/pkg/schema"
)

func TestRunTracker_Lifecycle(t *testing.T) {
	tracker := newRunTracker()

	run := tracker.Begin("greeter")
	require.NotEmpty(t, run.ID)

	got, ok := tracker.Get(run.ID)
	require.True(t, ok)
	assert.Equal(t, RunStatusRunning, got.Status)
	assert.Nil(t, got.FinishedAt)

	runCtx := schema.NewContext("done", map[string]any{"greet_response": "Hello!"})
	runCtx.History = append(runCtx.History, schema.HistoryEntry{State: "greet"}, schema.HistoryEntry{State: "done"})
	tracker.Finish(run.ID, runCtx, nil)

	got, ok = tracker.Get(run.ID)
	require.True(t, ok)
	assert.Equal(t, RunStatusCompleted, got.Status)
	assert.Equal(t, "done", got.FinalState)
	assert.Equal(t, 2, got.Steps)
	assert.Equal(t, "Hello!", got.Variables["greet_response"])
	require.NotNil(t, got.FinishedAt)
}

func TestRunTracker_FinishWithError(t *testing.T) {
	tracker := newRunTracker()
	run := tracker.Begin("flaky")

	runCtx := schema.NewContext("call", nil)
	runCtx.History = append(runCtx.History, schema.HistoryEntry{State: "call"})
	tracker.Finish(run.ID, runCtx, errors.New("tool exploded"))

	got, ok := tracker.Get(run.ID)
	require.True(t, ok)
	assert.Equal(t, RunStatusFailed, got.Status)
	assert.Equal(t, "tool exploded", got.Error)
	// History survives the failure.
	assert.Equal(t, 1, got.Steps)
}

func TestRunTracker_GetMissing(t *testing.T) {
	tracker := newRunTracker()
	_, ok := tracker.Get("missing")
	assert.False(t, ok)
}

func TestRunTracker_FinishUnknownRunIsNoop(t *testing.T) {
	tracker := newRunTracker()
	tracker.Finish("missing", nil, nil)
	assert.Empty(t, tracker.List())
}

func TestRunTracker_ListSnapshot(t *testing.T) {
	tracker := newRunTracker()
	a := tracker.Begin("a")
	b := tracker.Begin("b")

	runs := tracker.List()
	require.Len(t, runs, 2)

	ids := []string{runs[0].ID, runs[1].ID}
	assert.Contains(t, ids, a.ID)
	assert.Contains(t, ids, b.ID)

	// Mutating the snapshot does not affect the tracker.
	runs[0].Status = RunStatusFailed
	got, _ := tracker.Get(runs[0].ID)
	assert.Equal(t, RunStatusRunning, got.Status)
}
