package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// TaskRunnerConfig holds configuration for the task runner
type TaskRunnerConfig struct {
	// WorkerCount determines how many concurrent workers process tasks
	WorkerCount int

	// QueueSize determines the buffer size for the in-memory task queue
	QueueSize int

	// StuckTaskAge defines how long a task can be in processing state
	// before it's considered stuck and reset
	StuckTaskAge time.Duration

	// StuckTaskCheckInterval defines how often to check for stuck tasks
	// If zero, defaults to 5 minutes
	StuckTaskCheckInterval time.Duration
}

// DefaultTaskRunnerConfig returns a TaskRunnerConfig with reasonable defaults
func DefaultTaskRunnerConfig() TaskRunnerConfig {
	return TaskRunnerConfig{
		WorkerCount:            2,
		QueueSize:              100,
		StuckTaskAge:           30 * time.Minute,
		StuckTaskCheckInterval: 5 * time.Minute,
	}
}

// TaskRunner manages background task processing. Tasks are persisted to the
// store before being enqueued, so a crash between submission and execution
// is recoverable on the next start.
type TaskRunner struct {
	store      TaskStore
	queue      *TaskQueue
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	config     TaskRunnerConfig
	logger     *slog.Logger
	errHandler func(task Task, err error)
}

// NewTaskRunner creates a new TaskRunner
func NewTaskRunner(store TaskStore, config TaskRunnerConfig, logger *slog.Logger) *TaskRunner {
	// Apply default check interval if not specified
	if config.StuckTaskCheckInterval == 0 {
		config.StuckTaskCheckInterval = 5 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &TaskRunner{
		store:      store,
		queue:      NewTaskQueue(config.QueueSize, logger),
		ctx:        ctx,
		cancelFunc: cancel,
		wg:         sync.WaitGroup{},
		config:     config,
		logger:     logger,
		errHandler: func(task Task, err error) {
			// Default error handler just logs the error
			logger.Error("task execution failed",
				"task_id", task.ID(),
				"task_type", task.Type(),
				"error", err)
		},
	}
}

// SetErrorHandler allows setting a custom error handler function
func (r *TaskRunner) SetErrorHandler(handler func(task Task, err error)) {
	r.errHandler = handler
}

// Submit persists a new task and adds it to the queue.
// The database write happens first so the task survives a crash even if
// it never reaches the in-memory queue.
func (r *TaskRunner) Submit(ctx context.Context, task Task) error {
	if err := r.store.SaveTask(ctx, task); err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}

	if err := r.queue.Enqueue(task); err != nil {
		// The task is saved as pending, so recovery will pick it up on the
		// next start even though the queue rejected it now.
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	return nil
}

// Start initializes the worker pool and begins processing tasks
func (r *TaskRunner) Start() error {
	// Recover unfinished tasks from previous runs
	if err := r.Recover(); err != nil {
		return fmt.Errorf("failed to recover tasks: %w", err)
	}

	// Start worker goroutines
	for i := 0; i < r.config.WorkerCount; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}

	// Start goroutine to check for stuck tasks periodically
	r.wg.Add(1)
	go r.stuckTaskMonitor()

	return nil
}

// Stop gracefully shuts down the task runner
func (r *TaskRunner) Stop() {
	r.cancelFunc()
	r.wg.Wait()
	r.queue.Close()
}

// Recover loads any unfinished tasks from the database and requeues them.
// Tasks left in "processing" by a crashed instance are reset to "pending"
// first, which gives the queue at-least-once delivery semantics.
func (r *TaskRunner) Recover() error {
	ctx := context.Background()

	pendingTasks, err := r.store.GetPendingTasks(ctx)
	if err != nil {
		return fmt.Errorf("failed to get pending tasks: %w", err)
	}

	// Tasks in "processing" state were interrupted by a crash; pick them all
	// up regardless of age.
	processingTasks, err := r.store.GetProcessingTasks(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to get processing tasks: %w", err)
	}

	r.logger.Info("recovering unfinished tasks",
		"pending_count", len(pendingTasks),
		"processing_count", len(processingTasks))

	for _, task := range pendingTasks {
		if err := r.queue.Enqueue(task); err != nil {
			r.logger.Error("failed to requeue pending task",
				"task_id", task.ID(),
				"task_type", task.Type(),
				"error", err)
		}
	}

	for _, task := range processingTasks {
		if err := r.store.UpdateTaskStatus(ctx, task.ID(), TaskStatusPending, "Reset after recovery"); err != nil {
			r.logger.Error("failed to reset processing task status",
				"task_id", task.ID(),
				"task_type", task.Type(),
				"error", err)
			continue
		}

		if err := r.queue.Enqueue(task); err != nil {
			r.logger.Error("failed to requeue processing task",
				"task_id", task.ID(),
				"task_type", task.Type(),
				"error", err)
		}
	}

	return nil
}

// worker processes tasks from the queue
func (r *TaskRunner) worker(id int) {
	defer r.wg.Done()

	r.logger.Debug("starting worker", "worker_id", id)

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Debug("stopping worker", "worker_id", id)
			return

		case task, ok := <-r.queue.GetChannel():
			if !ok {
				r.logger.Debug("task channel closed, stopping worker", "worker_id", id)
				return
			}

			r.processTask(task, id)
		}
	}
}

// processTask handles execution of a single task
func (r *TaskRunner) processTask(task Task, workerID int) {
	ctx := context.Background()
	logger := r.logger.With(
		"task_id", task.ID(),
		"task_type", task.Type(),
		"worker_id", workerID,
	)

	// Update task status to processing
	if err := r.store.UpdateTaskStatus(ctx, task.ID(), TaskStatusProcessing, ""); err != nil {
		logger.Error("failed to update task status to processing", "error", err)
		return
	}

	logger.Info("processing task")

	err := task.Execute(ctx)

	if err != nil {
		logger.Error("task execution failed", "error", err)
		if updateErr := r.store.UpdateTaskStatus(ctx, task.ID(), TaskStatusFailed, err.Error()); updateErr != nil {
			logger.Error("failed to update task status to failed", "error", updateErr)
		}

		r.errHandler(task, err)
	} else {
		logger.Info("task completed successfully")
		if updateErr := r.store.UpdateTaskStatus(ctx, task.ID(), TaskStatusCompleted, ""); updateErr != nil {
			logger.Error("failed to update task status to completed", "error", updateErr)
		}
	}
}

// stuckTaskMonitor periodically checks for tasks that have been in "processing"
// state for too long and resets them
func (r *TaskRunner) stuckTaskMonitor() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.StuckTaskCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return

		case <-ticker.C:
			ctx := context.Background()

			stuckTasks, err := r.store.GetProcessingTasks(ctx, r.config.StuckTaskAge)
			if err != nil {
				r.logger.Error("failed to check for stuck tasks", "error", err)
				continue
			}

			if len(stuckTasks) == 0 {
				continue
			}

			r.logger.Info("found stuck tasks", "count", len(stuckTasks))

			for _, task := range stuckTasks {
				if err := r.store.UpdateTaskStatus(ctx, task.ID(), TaskStatusPending,
					"Reset after being stuck in processing state"); err != nil {
					r.logger.Error("failed to reset stuck task status",
						"task_id", task.ID(),
						"task_type", task.Type(),
						"error", err)
					continue
				}

				if err := r.queue.Enqueue(task); err != nil {
					r.logger.Error("failed to requeue stuck task",
						"task_id", task.ID(),
						"task_type", task.Type(),
						"error", err)
					continue
				}

				r.logger.Info("requeued stuck task",
					"task_id", task.ID(),
					"task_type", task.Type())
			}
		}
	}
}
