package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/voicenote-api/internal/events"
)

// TaskSubmitter is the slice of the TaskRunner the event handler needs.
type TaskSubmitter interface {
	// Submit persists a task and queues it for execution
	Submit(ctx context.Context, task Task) error
}

// TaskFactoryEventHandler implements the events.EventHandler interface.
// It turns task request events into concrete tasks using the factory
// registered for the event type and submits them to the runner.
type TaskFactoryEventHandler struct {
	factories map[string]TaskFactory
	runner    TaskSubmitter
	logger    *slog.Logger
}

// NewTaskFactoryEventHandler creates a new event handler that dispatches
// events to the given per-type factories and submits the resulting tasks
// to the provided runner.
func NewTaskFactoryEventHandler(
	runner TaskSubmitter,
	logger *slog.Logger,
) *TaskFactoryEventHandler {
	return &TaskFactoryEventHandler{
		factories: make(map[string]TaskFactory),
		runner:    runner,
		logger:    logger.With("component", "task_factory_event_handler"),
	}
}

// RegisterFactory associates an event type with a task factory.
func (h *TaskFactoryEventHandler) RegisterFactory(eventType string, factory TaskFactory) {
	h.factories[eventType] = factory
}

// HandleEvent processes events by creating and submitting tasks.
// Events with no registered factory are ignored so other handlers can
// claim them.
func (h *TaskFactoryEventHandler) HandleEvent(
	ctx context.Context,
	event *events.TaskRequestEvent,
) error {
	factory, ok := h.factories[event.Type]
	if !ok {
		h.logger.Debug("ignoring event with unsupported type",
			"event_type", event.Type,
			"event_id", event.ID)
		return nil
	}

	var payload struct {
		NoteID uuid.UUID `json:"note_id"`
	}

	if err := event.UnmarshalPayload(&payload); err != nil {
		h.logger.Error("failed to unmarshal payload", "error", err, "event_id", event.ID)
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	if payload.NoteID == uuid.Nil {
		h.logger.Error("event payload has no note ID", "event_id", event.ID)
		return fmt.Errorf("event payload has no note ID")
	}

	task, err := factory.CreateTask(payload.NoteID)
	if err != nil {
		h.logger.Error("failed to create task",
			"error", err,
			"note_id", payload.NoteID,
			"event_id", event.ID)
		return fmt.Errorf("failed to create task: %w", err)
	}

	if err := h.runner.Submit(ctx, task); err != nil {
		h.logger.Error("failed to submit task",
			"error", err,
			"task_id", task.ID(),
			"note_id", payload.NoteID,
			"event_id", event.ID)
		return fmt.Errorf("failed to submit task: %w", err)
	}

	h.logger.Info("task created and submitted successfully",
		"task_id", task.ID(),
		"task_type", task.Type(),
		"note_id", payload.NoteID,
		"event_id", event.ID)
	return nil
}

// Ensure TaskFactoryEventHandler implements events.EventHandler
var _ events.EventHandler = (*TaskFactoryEventHandler)(nil)
