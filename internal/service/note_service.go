package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/voicenote-api/internal/domain"
	"github.com/phrazzld/voicenote-api/internal/events"
	"github.com/phrazzld/voicenote-api/internal/platform/localfs"
	"github.com/phrazzld/voicenote-api/internal/store"
	"github.com/phrazzld/voicenote-api/internal/task"
)

// AudioStore is the blob storage surface the note service needs.
// The local filesystem implementation lives in platform/localfs.
type AudioStore interface {
	// Promote moves a completed upload part to its final location and
	// returns the path to store on the note
	Promote(ctx context.Context, noteID uuid.UUID, filename string) (string, error)

	// DiscardPart removes an in-progress upload part, if any
	DiscardPart(noteID uuid.UUID) error

	// Remove deletes a stored audio file
	Remove(ctx context.Context, path string) error
}

// NoteUpdate carries the optional metadata changes for a note.
// Nil fields are left unchanged.
type NoteUpdate struct {
	Title     *string
	Tags      *string
	TextNotes *string
}

// NoteService provides note-related operations, including the upload
// completion step that hands a note off to the processing pipeline.
type NoteService interface {
	// CreateNote creates a new note in pending status
	CreateNote(ctx context.Context, ownerID uuid.UUID, title, tags, textNotes string) (*domain.Note, error)

	// GetNoteForOwner retrieves a note scoped to its owner
	GetNoteForOwner(ctx context.Context, noteID, ownerID uuid.UUID) (*domain.Note, error)

	// ListNotes retrieves the owner's notes matching the filter
	ListNotes(ctx context.Context, ownerID uuid.UUID, filter store.NoteFilter) ([]*domain.Note, error)

	// UpdateNote applies metadata changes to a note
	UpdateNote(ctx context.Context, noteID, ownerID uuid.UUID, update NoteUpdate) (*domain.Note, error)

	// DeleteNote removes a note along with its stored audio
	DeleteNote(ctx context.Context, noteID, ownerID uuid.UUID) error

	// BeginUpload validates that a note can receive audio and moves it to
	// uploading status. Reopening an interrupted upload is allowed.
	BeginUpload(ctx context.Context, noteID, ownerID uuid.UUID) (*domain.Note, error)

	// CompleteUpload finalizes a chunked upload and queues transcription.
	// It is idempotent: completing an already-completed upload returns the
	// note's current state without side effects.
	CompleteUpload(ctx context.Context, noteID, ownerID uuid.UUID, filename string) (*domain.Note, error)

	// GetNote retrieves a note by ID without ownership checks.
	// Used by the background tasks, which act on behalf of the system.
	GetNote(ctx context.Context, noteID uuid.UUID) (*domain.Note, error)

	// SaveTranscript persists a transcript for a note
	SaveTranscript(ctx context.Context, noteID uuid.UUID, transcript string) error

	// SaveSummary persists a summary for a note and marks it completed
	SaveSummary(ctx context.Context, noteID uuid.UUID, summary string) error

	// MarkFailed transitions a note to failed status
	MarkFailed(ctx context.Context, noteID uuid.UUID, reason string) error
}

// Common sentinel errors for NoteService
var (
	// ErrNoteNotFound indicates that the note does not exist or is not
	// visible to the caller
	ErrNoteNotFound = errors.New("note not found")

	// ErrNoAudioUploaded indicates upload completion was requested before
	// any audio chunks arrived
	ErrNoAudioUploaded = errors.New("no audio has been uploaded for this note")

	// ErrUploadNotAllowed indicates the note's status does not admit an
	// upload (it already failed, or processing has moved past upload)
	ErrUploadNotAllowed = errors.New("note does not accept uploads in its current status")
)

// NoteServiceError wraps errors from the note service with context.
type NoteServiceError struct {
	// Operation is the operation that failed (e.g., "create_note", "complete_upload")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for NoteServiceError.
func (e *NoteServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("note service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("note service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *NoteServiceError) Unwrap() error {
	return e.Err
}

// NewNoteServiceError creates a new NoteServiceError.
// It returns known sentinel errors directly without wrapping.
func NewNoteServiceError(operation, message string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrNoteNotFound) ||
		errors.Is(err, ErrNoAudioUploaded) ||
		errors.Is(err, ErrUploadNotAllowed) {
		return err
	}

	if errors.Is(err, store.ErrNoteNotFound) {
		return ErrNoteNotFound
	}

	return &NoteServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}

// noteServiceImpl implements the NoteService interface
type noteServiceImpl struct {
	noteStore    store.NoteStore
	db           *sql.DB
	audioStore   AudioStore
	eventEmitter events.EventEmitter
	logger       *slog.Logger
}

// NewNoteService creates a new NoteService.
// It returns an error if any of the required dependencies are nil.
func NewNoteService(
	noteStore store.NoteStore,
	db *sql.DB,
	audioStore AudioStore,
	eventEmitter events.EventEmitter,
	logger *slog.Logger,
) (NoteService, error) {
	if noteStore == nil {
		return nil, &NoteServiceError{
			Operation: "create_service",
			Message:   "noteStore cannot be nil",
		}
	}
	if db == nil {
		return nil, &NoteServiceError{
			Operation: "create_service",
			Message:   "db cannot be nil",
		}
	}
	if audioStore == nil {
		return nil, &NoteServiceError{
			Operation: "create_service",
			Message:   "audioStore cannot be nil",
		}
	}
	if eventEmitter == nil {
		return nil, &NoteServiceError{
			Operation: "create_service",
			Message:   "eventEmitter cannot be nil",
		}
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &noteServiceImpl{
		noteStore:    noteStore,
		db:           db,
		audioStore:   audioStore,
		eventEmitter: eventEmitter,
		logger:       logger.With("component", "note_service"),
	}, nil
}

// Ensure NoteService covers the subset the background tasks depend on.
var _ task.NoteService = (NoteService)(nil)

// CreateNote creates a new note with pending status.
func (s *noteServiceImpl) CreateNote(
	ctx context.Context,
	ownerID uuid.UUID,
	title, tags, textNotes string,
) (*domain.Note, error) {
	note, err := domain.NewNote(ownerID, title, tags, textNotes)
	if err != nil {
		s.logger.Warn("failed to create note object",
			"error", err,
			"owner_id", ownerID)
		return nil, NewNoteServiceError("create_note", "failed to create note object", err)
	}

	if err := s.noteStore.Create(ctx, note); err != nil {
		s.logger.Error("failed to save note",
			"error", err,
			"note_id", note.ID,
			"owner_id", ownerID)
		return nil, NewNoteServiceError("create_note", "failed to save note to database", err)
	}

	s.logger.Info("note created successfully",
		"note_id", note.ID,
		"owner_id", ownerID)
	return note, nil
}

// GetNoteForOwner retrieves a note scoped to its owner.
func (s *noteServiceImpl) GetNoteForOwner(
	ctx context.Context,
	noteID, ownerID uuid.UUID,
) (*domain.Note, error) {
	note, err := s.noteStore.GetForOwner(ctx, noteID, ownerID)
	if err != nil {
		if errors.Is(err, store.ErrNoteNotFound) {
			return nil, ErrNoteNotFound
		}
		s.logger.Error("failed to retrieve note",
			"error", err,
			"note_id", noteID)
		return nil, NewNoteServiceError("get_note", "failed to retrieve note", err)
	}

	return note, nil
}

// ListNotes retrieves the owner's notes matching the filter.
func (s *noteServiceImpl) ListNotes(
	ctx context.Context,
	ownerID uuid.UUID,
	filter store.NoteFilter,
) ([]*domain.Note, error) {
	notes, err := s.noteStore.List(ctx, ownerID, filter)
	if err != nil {
		s.logger.Error("failed to list notes",
			"error", err,
			"owner_id", ownerID)
		return nil, NewNoteServiceError("list_notes", "failed to list notes", err)
	}

	return notes, nil
}

// UpdateNote applies metadata changes to a note within a transaction so the
// read-modify-write cannot interleave with another update.
func (s *noteServiceImpl) UpdateNote(
	ctx context.Context,
	noteID, ownerID uuid.UUID,
	update NoteUpdate,
) (*domain.Note, error) {
	var updated *domain.Note

	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		txStore := s.noteStore.WithTx(tx)

		note, err := txStore.GetForOwner(ctx, noteID, ownerID)
		if err != nil {
			if errors.Is(err, store.ErrNoteNotFound) {
				return ErrNoteNotFound
			}
			return NewNoteServiceError("update_note", "failed to retrieve note", err)
		}

		if update.Title != nil {
			note.Title = *update.Title
		}
		if update.Tags != nil {
			note.Tags = *update.Tags
		}
		if update.TextNotes != nil {
			note.TextNotes = *update.TextNotes
		}

		if err := txStore.Update(ctx, note); err != nil {
			if errors.Is(err, store.ErrNoteNotFound) {
				return ErrNoteNotFound
			}
			return NewNoteServiceError("update_note", "failed to save note", err)
		}

		updated = note
		return nil
	})

	if err != nil {
		return nil, err
	}

	s.logger.Info("note updated successfully",
		"note_id", noteID,
		"owner_id", ownerID)
	return updated, nil
}

// DeleteNote removes a note and its stored audio. The database row goes
// first; a leftover audio file is recoverable garbage, a dangling row
// pointing at deleted audio is not.
func (s *noteServiceImpl) DeleteNote(ctx context.Context, noteID, ownerID uuid.UUID) error {
	note, err := s.noteStore.GetForOwner(ctx, noteID, ownerID)
	if err != nil {
		if errors.Is(err, store.ErrNoteNotFound) {
			return ErrNoteNotFound
		}
		return NewNoteServiceError("delete_note", "failed to retrieve note", err)
	}

	if err := s.noteStore.Delete(ctx, noteID, ownerID); err != nil {
		if errors.Is(err, store.ErrNoteNotFound) {
			return ErrNoteNotFound
		}
		s.logger.Error("failed to delete note",
			"error", err,
			"note_id", noteID)
		return NewNoteServiceError("delete_note", "failed to delete note", err)
	}

	if note.AudioPath != "" {
		if err := s.audioStore.Remove(ctx, note.AudioPath); err != nil {
			s.logger.Error("failed to remove note audio after delete",
				"error", err,
				"note_id", noteID,
				"audio_path", note.AudioPath)
		}
	}
	if err := s.audioStore.DiscardPart(noteID); err != nil {
		s.logger.Error("failed to discard upload part after delete",
			"error", err,
			"note_id", noteID)
	}

	s.logger.Info("note deleted successfully",
		"note_id", noteID,
		"owner_id", ownerID)
	return nil
}

// BeginUpload validates that a note can receive audio and moves it to
// uploading status. A note already in uploading status is accepted as-is
// so interrupted transfers can resume.
func (s *noteServiceImpl) BeginUpload(
	ctx context.Context,
	noteID, ownerID uuid.UUID,
) (*domain.Note, error) {
	note, err := s.noteStore.GetByID(ctx, noteID)
	if err != nil {
		if errors.Is(err, store.ErrNoteNotFound) {
			return nil, ErrNoteNotFound
		}
		return nil, NewNoteServiceError("begin_upload", "failed to retrieve note", err)
	}

	if note.OwnerID != ownerID {
		return nil, ErrNotOwned
	}

	if !note.Status.AcceptsUpload() {
		return nil, ErrUploadNotAllowed
	}

	if note.Status == domain.NoteStatusPending {
		if err := s.noteStore.UpdateStatus(ctx, noteID, domain.NoteStatusUploading); err != nil {
			return nil, NewNoteServiceError("begin_upload", "failed to update note status", err)
		}
		note.Status = domain.NoteStatusUploading
	}

	s.logger.Info("upload started",
		"note_id", noteID,
		"owner_id", ownerID)
	return note, nil
}

// CompleteUpload finalizes a chunked upload: the part file is promoted to
// its final location, the note moves to processing with a conditional
// status update, and a transcription task is requested. The status
// predicate makes the operation idempotent; whichever completion lands
// first wins and every later attempt just observes the result.
func (s *noteServiceImpl) CompleteUpload(
	ctx context.Context,
	noteID, ownerID uuid.UUID,
	filename string,
) (*domain.Note, error) {
	note, err := s.noteStore.GetForOwner(ctx, noteID, ownerID)
	if err != nil {
		if errors.Is(err, store.ErrNoteNotFound) {
			return nil, ErrNoteNotFound
		}
		return nil, NewNoteServiceError("complete_upload", "failed to retrieve note", err)
	}

	// Already past upload: report the current state instead of failing,
	// so retried completions are harmless.
	if note.Status == domain.NoteStatusProcessing || note.Status == domain.NoteStatusCompleted {
		s.logger.Info("upload already completed, returning current state",
			"note_id", noteID,
			"status", note.Status)
		return note, nil
	}

	if !note.Status.AcceptsUpload() {
		return nil, ErrUploadNotAllowed
	}

	audioPath, err := s.audioStore.Promote(ctx, noteID, filename)
	if err != nil {
		if errors.Is(err, localfs.ErrPartNotFound) {
			// A concurrent completion may have promoted the part between our
			// status read and this call. Re-check before reporting no audio.
			current, getErr := s.noteStore.GetForOwner(ctx, noteID, ownerID)
			if getErr == nil &&
				(current.Status == domain.NoteStatusProcessing ||
					current.Status == domain.NoteStatusCompleted) {
				s.logger.Info("concurrent upload completion detected",
					"note_id", noteID,
					"status", current.Status)
				return current, nil
			}
			return nil, ErrNoAudioUploaded
		}
		s.logger.Error("failed to promote upload",
			"error", err,
			"note_id", noteID)
		return nil, NewNoteServiceError("complete_upload", "failed to store audio", err)
	}

	err = s.noteStore.CompleteUpload(ctx, noteID, note.Status, audioPath)
	if err != nil {
		if errors.Is(err, store.ErrStatusConflict) {
			// A concurrent completion won the conditional update.
			current, getErr := s.noteStore.GetForOwner(ctx, noteID, ownerID)
			if getErr != nil {
				return nil, NewNoteServiceError(
					"complete_upload", "failed to reload note after conflict", getErr)
			}
			s.logger.Info("concurrent upload completion detected",
				"note_id", noteID,
				"status", current.Status)
			return current, nil
		}
		if errors.Is(err, store.ErrNoteNotFound) {
			return nil, ErrNoteNotFound
		}
		return nil, NewNoteServiceError("complete_upload", "failed to finalize upload", err)
	}

	// The status change is committed before the event goes out, so a
	// duplicate transcription task always finds consistent state.
	payload := struct {
		NoteID uuid.UUID `json:"note_id"`
	}{NoteID: noteID}

	event, err := events.NewTaskRequestEvent(task.TaskTypeTranscription, payload)
	if err != nil {
		s.logger.Error("failed to create transcription event",
			"error", err,
			"note_id", noteID)
		return nil, NewNoteServiceError("complete_upload", "failed to create event", err)
	}

	if err := s.eventEmitter.EmitEvent(ctx, event); err != nil {
		s.logger.Error("failed to emit transcription event",
			"error", err,
			"note_id", noteID,
			"event_id", event.ID)
		return nil, NewNoteServiceError("complete_upload", "failed to emit event", err)
	}

	s.logger.Info("upload completed and transcription requested",
		"note_id", noteID,
		"audio_path", audioPath,
		"event_id", event.ID)

	note.AudioPath = audioPath
	note.Status = domain.NoteStatusProcessing
	return note, nil
}

// GetNote retrieves a note by ID without ownership checks.
func (s *noteServiceImpl) GetNote(ctx context.Context, noteID uuid.UUID) (*domain.Note, error) {
	note, err := s.noteStore.GetByID(ctx, noteID)
	if err != nil {
		if errors.Is(err, store.ErrNoteNotFound) {
			// Tasks check for store.ErrNotFound to decide whether to discard.
			return nil, store.ErrNoteNotFound
		}
		return nil, NewNoteServiceError("get_note", "failed to retrieve note", err)
	}
	return note, nil
}

// SaveTranscript persists a transcript for a note. The status stays at
// processing; the pipeline completes when the summary lands.
func (s *noteServiceImpl) SaveTranscript(
	ctx context.Context,
	noteID uuid.UUID,
	transcript string,
) error {
	if err := s.noteStore.SaveTranscript(ctx, noteID, transcript); err != nil {
		if errors.Is(err, store.ErrNoteNotFound) {
			return store.ErrNoteNotFound
		}
		return NewNoteServiceError("save_transcript", "failed to save transcript", err)
	}

	s.logger.Info("transcript saved",
		"note_id", noteID,
		"transcript_length", len(transcript))
	return nil
}

// SaveSummary persists a summary for a note and marks it completed.
func (s *noteServiceImpl) SaveSummary(ctx context.Context, noteID uuid.UUID, summary string) error {
	if err := s.noteStore.SaveSummary(ctx, noteID, summary); err != nil {
		if errors.Is(err, store.ErrNoteNotFound) {
			return store.ErrNoteNotFound
		}
		return NewNoteServiceError("save_summary", "failed to save summary", err)
	}

	s.logger.Info("summary saved, note completed",
		"note_id", noteID,
		"summary_length", len(summary))
	return nil
}

// MarkFailed transitions a note to failed status. Terminal notes are left
// untouched so a late failure report cannot clobber a completed note.
func (s *noteServiceImpl) MarkFailed(ctx context.Context, noteID uuid.UUID, reason string) error {
	note, err := s.noteStore.GetByID(ctx, noteID)
	if err != nil {
		if errors.Is(err, store.ErrNoteNotFound) {
			return store.ErrNoteNotFound
		}
		return NewNoteServiceError("mark_failed", "failed to retrieve note", err)
	}

	if note.Status.IsTerminal() {
		s.logger.Warn("ignoring failure for note already in terminal status",
			"note_id", noteID,
			"status", note.Status,
			"reason", reason)
		return nil
	}

	if err := s.noteStore.UpdateStatus(ctx, noteID, domain.NoteStatusFailed); err != nil {
		return NewNoteServiceError("mark_failed", "failed to update note status", err)
	}

	s.logger.Warn("note marked as failed",
		"note_id", noteID,
		"reason", reason)
	return nil
}
