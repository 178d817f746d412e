package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pentaflow/pentaflow/pkg/domain"
)

func newRecord(id, userID string) *domain.ExecutionRecord {
	return &domain.ExecutionRecord{
		ExecutionID: id,
		WorkflowID:  "wf-1",
		UserID:      userID,
		Status:      domain.StatusPending,
		StartedAt:   time.Now(),
	}
}

func TestStore_CreateAndGet(t *testing.T) {
	store := NewExecutionStore()
	ctx := context.Background()

	id, err := store.Create(ctx, newRecord("exec-1", "alice"))
	require.NoError(t, err)
	assert.Equal(t, "exec-1", id)

	record, err := store.Get(ctx, "exec-1", "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, record.Status)
	assert.Nil(t, record.CompletedAt)
}

func TestStore_OwnerScoping(t *testing.T) {
	store := NewExecutionStore()
	ctx := context.Background()

	_, err := store.Create(ctx, newRecord("exec-1", "alice"))
	require.NoError(t, err)

	// Another user's record surfaces as NotFound, not as forbidden.
	_, err = store.Get(ctx, "exec-1", "bob")
	require.Error(t, err)
	assert.Equal(t, domain.ErrCodeNotFound, domain.ErrorCodeOf(err))

	_, err = store.History(ctx, "exec-1", "bob")
	require.Error(t, err)
	assert.Equal(t, domain.ErrCodeNotFound, domain.ErrorCodeOf(err))
}

func TestStore_UpdateIdempotentOnTerminal(t *testing.T) {
	store := NewExecutionStore()
	ctx := context.Background()

	_, err := store.Create(ctx, newRecord("exec-1", "alice"))
	require.NoError(t, err)

	applied, err := store.Update(ctx, "exec-1", domain.StatusRunning, nil, "", 0)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = store.Update(ctx, "exec-1", domain.StatusCompleted, nil, "", 1.5)
	require.NoError(t, err)
	assert.True(t, applied)

	record, err := store.Get(ctx, "exec-1", "alice")
	require.NoError(t, err)
	require.NotNil(t, record.CompletedAt)
	firstCompletion := *record.CompletedAt

	// A retried terminal write is a no-op.
	applied, err = store.Update(ctx, "exec-1", domain.StatusFailed, nil, "too late", 99)
	require.NoError(t, err)
	assert.False(t, applied)

	record, err = store.Get(ctx, "exec-1", "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, record.Status)
	assert.Empty(t, record.ErrorMessage)
	assert.Equal(t, firstCompletion, *record.CompletedAt)
	assert.Equal(t, 1.5, record.ExecutionTimeSeconds)
}

func TestStore_UpdateUnknownExecution(t *testing.T) {
	store := NewExecutionStore()

	_, err := store.Update(context.Background(), "ghost", domain.StatusRunning, nil, "", 0)
	require.Error(t, err)
	assert.Equal(t, domain.ErrCodeNotFound, domain.ErrorCodeOf(err))
}

func TestStore_HistoryAppendOnly(t *testing.T) {
	store := NewExecutionStore()
	ctx := context.Background()

	_, err := store.Create(ctx, newRecord("exec-1", "alice"))
	require.NoError(t, err)
	_, err = store.Update(ctx, "exec-1", domain.StatusRunning, nil, "", 0)
	require.NoError(t, err)
	_, err = store.Update(ctx, "exec-1", domain.StatusFailed, nil, "node b failed", 2.0)
	require.NoError(t, err)

	events, err := store.History(ctx, "exec-1", "alice")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, domain.StatusPending, events[0].Status)
	assert.Equal(t, domain.StatusRunning, events[1].Status)
	assert.Equal(t, domain.StatusFailed, events[2].Status)
	assert.Equal(t, "execution_finished", events[2].Metadata["event"])
	assert.Equal(t, "node b failed", events[2].Metadata["error_message"])
}

func TestStore_ListNewestFirst(t *testing.T) {
	store := NewExecutionStore()
	ctx := context.Background()

	base := time.Now()
	for i, id := range []string{"old", "mid", "new"} {
		record := newRecord(id, "alice")
		record.StartedAt = base.Add(time.Duration(i) * time.Minute)
		_, err := store.Create(ctx, record)
		require.NoError(t, err)
	}
	_, err := store.Create(ctx, newRecord("other", "bob"))
	require.NoError(t, err)

	records, err := store.List(ctx, "alice", 0, 10)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "new", records[0].ExecutionID)
	assert.Equal(t, "old", records[2].ExecutionID)

	page, err := store.List(ctx, "alice", 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "mid", page[0].ExecutionID)
}

func TestStore_Stats(t *testing.T) {
	store := NewExecutionStore()
	ctx := context.Background()

	cases := []struct {
		id     string
		status domain.ExecutionStatus
	}{
		{"e1", domain.StatusCompleted},
		{"e2", domain.StatusCompleted},
		{"e3", domain.StatusCompleted},
		{"e4", domain.StatusFailed},
		{"e5", domain.StatusCancelled},
		{"e6", domain.StatusRunning},
	}
	for _, tc := range cases {
		_, err := store.Create(ctx, newRecord(tc.id, "alice"))
		require.NoError(t, err)
		if tc.status != domain.StatusPending {
			_, err = store.Update(ctx, tc.id, tc.status, nil, "", 0)
			require.NoError(t, err)
		}
	}

	stats, err := store.Stats(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 6, stats.Total)
	assert.Equal(t, 3, stats.Completed)
	// Cancelled runs count as failures for the success rate.
	assert.Equal(t, 2, stats.Failed)
	assert.Equal(t, 1, stats.Running)
	assert.InDelta(t, 0.6, stats.SuccessRate, 1e-9)
}

func TestStore_StatsEmptyOwner(t *testing.T) {
	store := NewExecutionStore()

	stats, err := store.Stats(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Total)
	assert.Equal(t, 0.0, stats.SuccessRate)
}
