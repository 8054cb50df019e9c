package runs

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visascout/internal/logging"
	"visascout/pkg/models"
	"visascout/pkg/utils"
)

func newTestStore(t *testing.T, ttl time.Duration, maxRuns int) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "runs.json"), ttl, maxRuns)
}

func newRun(userID string) *Run {
	run := &Run{
		RunID:             NewRunID(),
		Status:            models.RunStatusPending,
		CurrentScanTarget: 300,
		Query: models.SearchQuery{
			UserID:   userID,
			Location: "Sydney",
			JobTitle: "Backend Engineer",
		},
	}
	run.AppendEvent("started", "Background search started.", 0, nil)
	return run
}

func TestAppendEventProtocol(t *testing.T) {
	run := &Run{}
	run.AppendEvent("started", "Background search started.", 0, nil)
	run.AppendEvent("running", "Background search is running.", 2, nil)
	run.AppendEvent("cancelling", "Cancellation requested. The run will stop after the current chunk.", -1, nil)
	run.AppendEvent("completed", "Done.", 250, map[string]any{"accepted": 12})

	require.Len(t, run.Events, 4)
	for i, event := range run.Events {
		assert.Equal(t, i, event.EventID)
	}
	assert.Equal(t, 4, run.NextEventID)

	require.NotNil(t, run.Events[0].ProgressPercent)
	assert.Zero(t, *run.Events[0].ProgressPercent)
	assert.Nil(t, run.Events[2].ProgressPercent, "negative progress is omitted")
	assert.Equal(t, 100.0, *run.Events[3].ProgressPercent, "progress clamps at 100")
	assert.Equal(t, map[string]any{"accepted": 12}, run.Events[3].Payload)
}

func TestStoreCreateAndUpdate(t *testing.T) {
	store := newTestStore(t, time.Hour, 500)
	run := newRun("user-1")
	require.NoError(t, store.Create(run))

	updated, err := store.Update(run.RunID, func(r *Run) error {
		r.Status = models.RunStatusRunning
		r.AttemptCount = 1
		r.AppendEvent("running", "Background search is running.", 2, nil)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusRunning, updated.Status)
	assert.Len(t, updated.Events, 2)

	got, err := store.Get(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.AttemptCount)
	assert.NotEmpty(t, got.ExpiresAt)
}

func TestStoreUnknownRun(t *testing.T) {
	store := newTestStore(t, time.Hour, 500)

	_, err := store.Get("nope")
	require.Error(t, err)
	var custom *utils.CustomError
	require.ErrorAs(t, err, &custom)
	assert.Equal(t, 404, custom.Code)
}

func TestStoreCrossUserRejected(t *testing.T) {
	store := newTestStore(t, time.Hour, 500)
	run := newRun("user-1")
	require.NoError(t, store.Create(run))

	_, err := store.GetForUser(run.RunID, "user-2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not belong")

	got, err := store.GetForUser(run.RunID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, run.RunID, got.RunID)
}

func TestStoreExpiryPrune(t *testing.T) {
	store := newTestStore(t, -time.Minute, 500)
	run := newRun("user-1")
	require.NoError(t, store.Create(run))

	_, err := store.Get(run.RunID)
	require.Error(t, err, "run created already past its TTL is pruned on load")
}

func TestStoreCapKeepsNewest(t *testing.T) {
	store := newTestStore(t, time.Hour, 2)

	var ids []string
	for i := 0; i < 3; i++ {
		run := newRun(fmt.Sprintf("user-%d", i))
		require.NoError(t, store.Create(run))
		ids = append(ids, run.RunID)
		time.Sleep(1100 * time.Millisecond)
	}

	_, err := store.Get(ids[0])
	require.Error(t, err)
	_, err = store.Get(ids[1])
	require.NoError(t, err)
	_, err = store.Get(ids[2])
	require.NoError(t, err)
}

func TestStoreExportAndDeleteUser(t *testing.T) {
	store := newTestStore(t, time.Hour, 500)
	require.NoError(t, store.Create(newRun("user-1")))
	require.NoError(t, store.Create(newRun("user-1")))
	require.NoError(t, store.Create(newRun("user-2")))

	exported, err := store.ExportUser("user-1")
	require.NoError(t, err)
	assert.Len(t, exported, 2)

	removed, err := store.DeleteUser("user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	exported, err = store.ExportUser("user-1")
	require.NoError(t, err)
	assert.Empty(t, exported)
}

func startExecutor(t *testing.T, store *Store, step StepFunc) *Executor {
	t.Helper()
	executor := NewExecutor(store, step, 1, logging.NewMultiLogger(logging.ErrorLevel))
	executor.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = executor.Stop(ctx)
	})
	return executor
}

func waitForStatus(t *testing.T, store *Store, runID string, want models.RunStatus) *Run {
	t.Helper()
	var got *Run
	require.Eventually(t, func() bool {
		run, err := store.Get(runID)
		if err != nil {
			return false
		}
		got = run
		return run.Status == want
	}, 5*time.Second, 10*time.Millisecond)
	return got
}

func TestExecutorRunsChunksUntilDone(t *testing.T) {
	store := newTestStore(t, time.Hour, 500)
	var chunks atomic.Int32

	step := func(ctx context.Context, runID string) (bool, error) {
		n := chunks.Add(1)
		done := n >= 3
		_, err := store.Update(runID, func(run *Run) error {
			run.AttemptCount++
			if run.Status == models.RunStatusPending {
				run.Status = models.RunStatusRunning
				run.AppendEvent("running", "Background search is running.", 2, nil)
			}
			if done {
				run.Status = models.RunStatusCompleted
				run.CompletedAt = utils.ToISO(utils.UTCNow())
				run.AppendEvent("completed", "Search complete.", 100, nil)
			}
			return nil
		})
		return done, err
	}

	executor := startExecutor(t, store, step)
	run := newRun("user-1")
	require.NoError(t, store.Create(run))
	require.NoError(t, executor.Enqueue(run.RunID))

	final := waitForStatus(t, store, run.RunID, models.RunStatusCompleted)
	assert.Equal(t, 3, final.AttemptCount)
	assert.Equal(t, int32(3), chunks.Load())
	assert.Equal(t, "completed", final.Events[len(final.Events)-1].Phase)
}

func TestExecutorCancelBetweenChunks(t *testing.T) {
	store := newTestStore(t, time.Hour, 500)
	run := newRun("user-1")
	require.NoError(t, store.Create(run))

	step := func(ctx context.Context, runID string) (bool, error) {
		// Request cancellation from "outside" after the first chunk; the
		// executor must settle the run before starting the next one.
		_, err := store.Update(runID, func(r *Run) error {
			r.AttemptCount++
			r.CancelRequested = true
			r.Status = models.RunStatusCancelling
			r.AppendEvent("cancelling", "Cancellation requested. The run will stop after the current chunk.", -1, nil)
			return nil
		})
		return false, err
	}

	executor := startExecutor(t, store, step)
	require.NoError(t, executor.Enqueue(run.RunID))

	final := waitForStatus(t, store, run.RunID, models.RunStatusCancelled)
	assert.Equal(t, 1, final.AttemptCount, "no second chunk after cancellation")
	assert.Empty(t, final.Error)
	assert.Equal(t, "cancelled", final.Events[len(final.Events)-1].Phase)
	assert.Equal(t, 100.0, *final.Events[len(final.Events)-1].ProgressPercent)
}

func TestExecutorSettlesFailure(t *testing.T) {
	store := newTestStore(t, time.Hour, 500)
	run := newRun("user-1")
	require.NoError(t, store.Create(run))

	step := func(ctx context.Context, runID string) (bool, error) {
		return false, errors.New("dataset is unreadable")
	}

	executor := startExecutor(t, store, step)
	require.NoError(t, executor.Enqueue(run.RunID))

	final := waitForStatus(t, store, run.RunID, models.RunStatusFailed)
	assert.Equal(t, "dataset is unreadable", final.Error)
	assert.NotEmpty(t, final.CompletedAt)
}

func TestExecutorCancelledStepError(t *testing.T) {
	store := newTestStore(t, time.Hour, 500)
	run := newRun("user-1")
	require.NoError(t, store.Create(run))

	step := func(ctx context.Context, runID string) (bool, error) {
		return false, fmt.Errorf("mid-chunk: %w", utils.ErrRunCancelled)
	}

	executor := startExecutor(t, store, step)
	require.NoError(t, executor.Enqueue(run.RunID))

	final := waitForStatus(t, store, run.RunID, models.RunStatusCancelled)
	assert.Empty(t, final.Error, "cancellation is not an error state")
}

func TestExecutorEnqueueWhenStopped(t *testing.T) {
	store := newTestStore(t, time.Hour, 500)
	executor := NewExecutor(store, func(ctx context.Context, runID string) (bool, error) {
		return true, nil
	}, 1, logging.NewMultiLogger(logging.ErrorLevel))

	err := executor.Enqueue("whatever")
	require.Error(t, err)
}
