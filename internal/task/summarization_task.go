package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/voicenote-api/internal/store"
	"github.com/phrazzld/voicenote-api/internal/summarization"
)

// SummarizationTask implements the Task interface for summarizing the
// transcript of a note.
type SummarizationTask struct {
	id          uuid.UUID
	noteID      uuid.UUID
	noteService NoteService
	summarizer  summarization.Summarizer
	logger      *slog.Logger
	status      TaskStatus
}

// NewSummarizationTask creates a new summarization task for the given note
func NewSummarizationTask(
	noteID uuid.UUID,
	noteService NoteService,
	summarizer summarization.Summarizer,
	logger *slog.Logger,
) (*SummarizationTask, error) {
	if noteService == nil {
		return nil, ErrNilNoteService
	}
	if summarizer == nil {
		return nil, ErrNilSummarizer
	}
	if logger == nil {
		return nil, ErrNilLogger
	}
	if noteID == uuid.Nil {
		return nil, ErrEmptyNoteID
	}

	return &SummarizationTask{
		id:          uuid.New(),
		noteID:      noteID,
		noteService: noteService,
		summarizer:  summarizer,
		logger:      logger.With("task_type", TaskTypeSummarization, "note_id", noteID),
		status:      TaskStatusPending,
	}, nil
}

// withID replaces the generated task ID. Used when rehydrating a persisted
// task so status updates target the original row.
func (t *SummarizationTask) withID(id uuid.UUID) *SummarizationTask {
	t.id = id
	return t
}

// ID returns the task's unique identifier
func (t *SummarizationTask) ID() uuid.UUID {
	return t.id
}

// Type returns the task type identifier
func (t *SummarizationTask) Type() string {
	return TaskTypeSummarization
}

// Payload returns the task data as a byte slice
func (t *SummarizationTask) Payload() []byte {
	data, err := json.Marshal(notePayload{NoteID: t.noteID})
	if err != nil {
		t.logger.Error("failed to marshal task payload", "error", err)
		return []byte{}
	}
	return data
}

// Status returns the current task status
func (t *SummarizationTask) Status() TaskStatus {
	return t.status
}

// Execute summarizes the note's transcript and stores the summary, which
// also marks the note completed. Notes with no transcript or already in a
// terminal status are discarded without error, so a redelivered task is a
// no-op.
func (t *SummarizationTask) Execute(ctx context.Context) error {
	t.status = TaskStatusProcessing
	t.logger.Info("starting summarization task")

	if err := ctx.Err(); err != nil {
		t.status = TaskStatusFailed
		return fmt.Errorf("task cancelled by context: %w", err)
	}

	note, err := t.noteService.GetNote(ctx, t.noteID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			t.logger.Warn("note no longer exists, discarding task")
			t.status = TaskStatusCompleted
			return nil
		}
		t.status = TaskStatusFailed
		return fmt.Errorf("failed to retrieve note: %w", err)
	}

	if note.Transcript == "" {
		t.logger.Warn("note has no transcript, discarding task", "note_status", note.Status)
		t.status = TaskStatusCompleted
		return nil
	}

	if note.Status.IsTerminal() {
		// Already summarized (or failed); a redelivery must not overwrite.
		t.logger.Info("note already in terminal status, discarding task",
			"note_status", note.Status)
		t.status = TaskStatusCompleted
		return nil
	}

	summary, err := t.summarizer.Summarize(ctx, note.Transcript)
	if err != nil {
		t.status = TaskStatusFailed
		t.logger.Error("summarization failed", "error", err)
		if markErr := t.noteService.MarkFailed(ctx, t.noteID, "summarization failed"); markErr != nil {
			t.logger.Error("failed to mark note as failed", "error", markErr)
		}
		return fmt.Errorf("summarization failed: %w", err)
	}

	t.logger.Info("summarization succeeded", "summary_length", len(summary))

	if err := t.noteService.SaveSummary(ctx, t.noteID, summary); err != nil {
		t.status = TaskStatusFailed
		t.logger.Error("failed to save summary", "error", err)
		if markErr := t.noteService.MarkFailed(ctx, t.noteID, "failed to save summary"); markErr != nil {
			t.logger.Error("failed to mark note as failed", "error", markErr)
		}
		return fmt.Errorf("failed to save summary: %w", err)
	}

	t.status = TaskStatusCompleted
	t.logger.Info("summarization task completed successfully")
	return nil
}
