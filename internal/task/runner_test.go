package task

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRunnerConfig() TaskRunnerConfig {
	return TaskRunnerConfig{
		WorkerCount:            2,
		QueueSize:              10,
		StuckTaskAge:           time.Minute,
		StuckTaskCheckInterval: time.Hour, // keep the monitor quiet in tests
	}
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestTaskRunnerExecutesSubmittedTask(t *testing.T) {
	store := NewMockTaskStore()
	runner := NewTaskRunner(store, testRunnerConfig(), discardLogger())
	require.NoError(t, runner.Start())
	defer runner.Stop()

	var mu sync.Mutex
	executed := false

	task := NewMockTask(uuid.New(), "mock_task", nil)
	task.ExecuteFn = func(ctx context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		executed = true
		return nil
	}

	require.NoError(t, runner.Submit(context.Background(), task))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return executed
	})

	// The persisted status ends up completed.
	waitFor(t, func() bool {
		store.mutex.RLock()
		defer store.mutex.RUnlock()
		saved, ok := store.tasks[task.ID()]
		return ok && saved.Status() == TaskStatusCompleted
	})
}

func TestTaskRunnerMarksFailedTask(t *testing.T) {
	store := NewMockTaskStore()
	runner := NewTaskRunner(store, testRunnerConfig(), discardLogger())

	var mu sync.Mutex
	var handledErr error
	runner.SetErrorHandler(func(task Task, err error) {
		mu.Lock()
		defer mu.Unlock()
		handledErr = err
	})

	require.NoError(t, runner.Start())
	defer runner.Stop()

	task := NewMockTask(uuid.New(), "mock_task", nil)
	task.ExecuteFn = func(ctx context.Context) error {
		return errors.New("boom")
	}

	require.NoError(t, runner.Submit(context.Background(), task))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return handledErr != nil
	})

	waitFor(t, func() bool {
		store.mutex.RLock()
		defer store.mutex.RUnlock()
		saved, ok := store.tasks[task.ID()]
		return ok && saved.Status() == TaskStatusFailed
	})
}

func TestTaskRunnerSubmitFailsWhenStoreFails(t *testing.T) {
	store := NewMockTaskStore()
	store.SaveFn = func(ctx context.Context, task Task) error {
		return errors.New("db unavailable")
	}

	runner := NewTaskRunner(store, testRunnerConfig(), discardLogger())

	err := runner.Submit(context.Background(), NewMockTask(uuid.New(), "mock_task", nil))
	assert.Error(t, err)
}

func TestTaskRunnerRecoversPersistedTasks(t *testing.T) {
	store := NewMockTaskStore()

	var mu sync.Mutex
	executed := make(map[uuid.UUID]bool)
	record := func(id uuid.UUID) func(ctx context.Context) error {
		return func(ctx context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			executed[id] = true
			return nil
		}
	}

	// A pending task from a previous run and a processing task left behind
	// by a crash.
	pending := NewMockTask(uuid.New(), "mock_task", nil)
	pending.ExecuteFn = record(pending.ID())
	require.NoError(t, store.SaveTask(context.Background(), pending))

	interrupted := NewMockTask(uuid.New(), "mock_task", nil)
	interrupted.TaskStatus = TaskStatusProcessing
	interrupted.ExecuteFn = record(interrupted.ID())
	require.NoError(t, store.SaveTask(context.Background(), interrupted))

	runner := NewTaskRunner(store, testRunnerConfig(), discardLogger())
	require.NoError(t, runner.Start())
	defer runner.Stop()

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return executed[pending.ID()] && executed[interrupted.ID()]
	})
}

func TestTaskRunnerStopDrainsWorkers(t *testing.T) {
	store := NewMockTaskStore()
	runner := NewTaskRunner(store, testRunnerConfig(), discardLogger())
	require.NoError(t, runner.Start())

	done := make(chan struct{})
	go func() {
		runner.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}
