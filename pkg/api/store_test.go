package api

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-hq/agentic/pkg/models"
)

func storeScenarios(ids ...string) []*models.Scenario {
	out := make([]*models.Scenario, 0, len(ids))
	for _, id := range ids {
		out = append(out, &models.Scenario{ID: id, Steps: []models.Step{{Action: "noop"}}})
	}
	return out
}

func TestStoreAddAndGet(t *testing.T) {
	store := NewStore()
	run := store.Add(storeScenarios("a", "b"))

	assert.NotEmpty(t, run.ID)
	assert.Equal(t, RunStatePending, run.State)
	assert.Equal(t, []string{"a", "b"}, run.ScenarioIDs)
	assert.False(t, run.SubmittedAt.IsZero())

	got, err := store.Get(run.ID)
	require.NoError(t, err)
	assert.Equal(t, run, got)

	_, err = store.Get("nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestStoreListNewestFirst(t *testing.T) {
	store := NewStore()
	first := store.Add(storeScenarios("a"))
	second := store.Add(storeScenarios("b"))

	runs := store.List()
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID)
	assert.Equal(t, first.ID, runs[1].ID)
}

func TestStoreLifecycle(t *testing.T) {
	store := NewStore()
	run := store.Add(storeScenarios("a"))

	scenarios, ok := store.begin(run.ID, func() {})
	require.True(t, ok)
	require.Len(t, scenarios, 1)

	got, err := store.Get(run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStateRunning, got.State)
	require.NotNil(t, got.StartedAt)

	session := &models.TestSession{SessionID: "sess-1"}
	session.Summarize()
	store.finish(run.ID, session, nil)

	got, err = store.Get(run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStateFinished, got.State)
	require.NotNil(t, got.FinishedAt)
	assert.Equal(t, "sess-1", got.Session.SessionID)

	// begin on a non-pending run is a no-op.
	_, ok = store.begin(run.ID, func() {})
	assert.False(t, ok)
}

func TestStoreFinishWithError(t *testing.T) {
	store := NewStore()
	run := store.Add(storeScenarios("a"))
	_, ok := store.begin(run.ID, func() {})
	require.True(t, ok)

	store.finish(run.ID, nil, errors.New("prerequisite cycle"))

	got, err := store.Get(run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStateFailed, got.State)
	assert.Contains(t, got.Error, "prerequisite cycle")
}

func TestStoreCancelPending(t *testing.T) {
	store := NewStore()
	run := store.Add(storeScenarios("a"))

	got, err := store.Cancel(run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStateCancelled, got.State)
	require.NotNil(t, got.FinishedAt)

	// The executor skips a run cancelled while queued.
	_, ok := store.begin(run.ID, func() {})
	assert.False(t, ok)

	// A second cancel is a conflict.
	_, err = store.Cancel(run.ID)
	assert.ErrorIs(t, err, ErrRunFinished)
}

func TestStoreCancelRunning(t *testing.T) {
	store := NewStore()
	run := store.Add(storeScenarios("a"))

	fired := false
	_, ok := store.begin(run.ID, func() { fired = true })
	require.True(t, ok)

	got, err := store.Cancel(run.ID)
	require.NoError(t, err)
	assert.True(t, fired, "cancel should fire the run context")
	assert.Equal(t, RunStateRunning, got.State, "state settles when the executor finishes")

	store.finish(run.ID, &models.TestSession{SessionID: "sess-2"}, nil)
	got, err = store.Get(run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStateCancelled, got.State)
}

func TestStoreCancelUnknown(t *testing.T) {
	_, err := NewStore().Cancel("nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
}
