package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/voicenote-api/internal/domain"
	"github.com/phrazzld/voicenote-api/internal/events"
	"github.com/phrazzld/voicenote-api/internal/store"
	"github.com/phrazzld/voicenote-api/internal/transcription"
)

// Common errors
var (
	ErrNilNoteService = errors.New("note service cannot be nil")
	ErrNilTranscriber = errors.New("transcriber cannot be nil")
	ErrNilSummarizer  = errors.New("summarizer cannot be nil")
	ErrNilAudioReader = errors.New("audio reader cannot be nil")
	ErrNilEmitter     = errors.New("event emitter cannot be nil")
	ErrNilLogger      = errors.New("logger cannot be nil")
	ErrEmptyNoteID    = errors.New("note ID cannot be empty")
)

// NoteService defines the note operations the processing tasks need.
// The full service lives in the service package; tasks only see this slice.
type NoteService interface {
	// GetNote retrieves a note by its ID without ownership checks
	GetNote(ctx context.Context, noteID uuid.UUID) (*domain.Note, error)

	// SaveTranscript persists the transcript for a note
	SaveTranscript(ctx context.Context, noteID uuid.UUID, transcript string) error

	// SaveSummary persists the summary for a note and marks it completed
	SaveSummary(ctx context.Context, noteID uuid.UUID, summary string) error

	// MarkFailed transitions a note to the failed status
	MarkFailed(ctx context.Context, noteID uuid.UUID, reason string) error
}

// AudioReader loads stored note audio from the blob store.
type AudioReader interface {
	// ReadAudio returns the audio bytes and MIME type for the given path
	ReadAudio(ctx context.Context, path string) ([]byte, string, error)
}

// notePayload is the serialized data stored with transcription and
// summarization tasks.
type notePayload struct {
	NoteID uuid.UUID `json:"note_id"`
}

// TranscriptionTask implements the Task interface for transcribing the
// uploaded audio of a note.
type TranscriptionTask struct {
	id          uuid.UUID
	noteID      uuid.UUID
	noteService NoteService
	transcriber transcription.Transcriber
	audioReader AudioReader
	emitter     events.EventEmitter
	logger      *slog.Logger
	status      TaskStatus
}

// NewTranscriptionTask creates a new transcription task for the given note
func NewTranscriptionTask(
	noteID uuid.UUID,
	noteService NoteService,
	transcriber transcription.Transcriber,
	audioReader AudioReader,
	emitter events.EventEmitter,
	logger *slog.Logger,
) (*TranscriptionTask, error) {
	if noteService == nil {
		return nil, ErrNilNoteService
	}
	if transcriber == nil {
		return nil, ErrNilTranscriber
	}
	if audioReader == nil {
		return nil, ErrNilAudioReader
	}
	if emitter == nil {
		return nil, ErrNilEmitter
	}
	if logger == nil {
		return nil, ErrNilLogger
	}
	if noteID == uuid.Nil {
		return nil, ErrEmptyNoteID
	}

	return &TranscriptionTask{
		id:          uuid.New(),
		noteID:      noteID,
		noteService: noteService,
		transcriber: transcriber,
		audioReader: audioReader,
		emitter:     emitter,
		logger:      logger.With("task_type", TaskTypeTranscription, "note_id", noteID),
		status:      TaskStatusPending,
	}, nil
}

// withID replaces the generated task ID. Used when rehydrating a persisted
// task so status updates target the original row.
func (t *TranscriptionTask) withID(id uuid.UUID) *TranscriptionTask {
	t.id = id
	return t
}

// ID returns the task's unique identifier
func (t *TranscriptionTask) ID() uuid.UUID {
	return t.id
}

// Type returns the task type identifier
func (t *TranscriptionTask) Type() string {
	return TaskTypeTranscription
}

// Payload returns the task data as a byte slice
func (t *TranscriptionTask) Payload() []byte {
	data, err := json.Marshal(notePayload{NoteID: t.noteID})
	if err != nil {
		t.logger.Error("failed to marshal task payload", "error", err)
		return []byte{}
	}
	return data
}

// Status returns the current task status
func (t *TranscriptionTask) Status() TaskStatus {
	return t.status
}

// Execute transcribes the note's audio and stores the transcript, then
// requests summarization. Notes that no longer qualify for transcription
// (deleted, wrong status, no audio) are discarded without error so a
// redelivered task cannot corrupt later state.
func (t *TranscriptionTask) Execute(ctx context.Context) error {
	t.status = TaskStatusProcessing
	t.logger.Info("starting transcription task")

	if err := ctx.Err(); err != nil {
		t.status = TaskStatusFailed
		return fmt.Errorf("task cancelled by context: %w", err)
	}

	note, err := t.noteService.GetNote(ctx, t.noteID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// The note was deleted after the task was queued.
			t.logger.Warn("note no longer exists, discarding task")
			t.status = TaskStatusCompleted
			return nil
		}
		t.status = TaskStatusFailed
		return fmt.Errorf("failed to retrieve note: %w", err)
	}

	if note.Status != domain.NoteStatusProcessing || note.AudioPath == "" {
		t.logger.Warn("note not eligible for transcription, discarding task",
			"note_status", note.Status,
			"has_audio", note.AudioPath != "")
		t.status = TaskStatusCompleted
		return nil
	}

	audio, mimeType, err := t.audioReader.ReadAudio(ctx, note.AudioPath)
	if err != nil {
		t.status = TaskStatusFailed
		t.logger.Error("failed to read note audio", "error", err, "audio_path", note.AudioPath)
		if markErr := t.noteService.MarkFailed(ctx, t.noteID, "audio file unreadable"); markErr != nil {
			t.logger.Error("failed to mark note as failed", "error", markErr)
		}
		return fmt.Errorf("failed to read note audio: %w", err)
	}

	transcript, err := t.transcriber.Transcribe(ctx, audio, mimeType)
	if err != nil {
		t.status = TaskStatusFailed
		t.logger.Error("transcription failed", "error", err)
		if markErr := t.noteService.MarkFailed(ctx, t.noteID, "transcription failed"); markErr != nil {
			t.logger.Error("failed to mark note as failed", "error", markErr)
		}
		return fmt.Errorf("transcription failed: %w", err)
	}

	t.logger.Info("transcription succeeded", "transcript_length", len(transcript))

	if err := t.noteService.SaveTranscript(ctx, t.noteID, transcript); err != nil {
		t.status = TaskStatusFailed
		t.logger.Error("failed to save transcript", "error", err)
		if markErr := t.noteService.MarkFailed(ctx, t.noteID, "failed to save transcript"); markErr != nil {
			t.logger.Error("failed to mark note as failed", "error", markErr)
		}
		return fmt.Errorf("failed to save transcript: %w", err)
	}

	// The transcript is committed before the summarization request goes out,
	// so a redelivered summarization task always sees it.
	event, err := events.NewTaskRequestEvent(TaskTypeSummarization, notePayload{NoteID: t.noteID})
	if err != nil {
		t.status = TaskStatusFailed
		if markErr := t.noteService.MarkFailed(ctx, t.noteID, "failed to request summarization"); markErr != nil {
			t.logger.Error("failed to mark note as failed", "error", markErr)
		}
		return fmt.Errorf("failed to create summarization event: %w", err)
	}

	if err := t.emitter.EmitEvent(ctx, event); err != nil {
		t.status = TaskStatusFailed
		t.logger.Error("failed to request summarization", "error", err)
		if markErr := t.noteService.MarkFailed(ctx, t.noteID, "failed to request summarization"); markErr != nil {
			t.logger.Error("failed to mark note as failed", "error", markErr)
		}
		return fmt.Errorf("failed to request summarization: %w", err)
	}

	t.status = TaskStatusCompleted
	t.logger.Info("transcription task completed successfully")
	return nil
}
