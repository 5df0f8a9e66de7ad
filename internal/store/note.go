package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/voicenote-api/internal/domain"
)

// DefaultNoteListLimit caps list results when the caller does not ask
// for an explicit page size.
const DefaultNoteListLimit = 100

// NoteFilter describes the optional filtering, sorting, and pagination
// parameters for listing notes. Zero values mean "no constraint".
type NoteFilter struct {
	// Status restricts results to notes in the given status.
	Status domain.NoteStatus

	// Tags restricts results to notes whose tags contain any of the
	// comma-separated values.
	Tags []string

	// Search is matched case-insensitively against title, text notes,
	// transcript, and summary.
	Search string

	// DateFrom and DateTo bound the creation timestamp.
	DateFrom time.Time
	DateTo   time.Time

	// SortBy is one of created_at, updated_at, title, status.
	// Defaults to created_at when empty.
	SortBy string

	// Order is "asc" or "desc". Defaults to "desc" when empty.
	Order string

	// Limit and Offset paginate results. Limit defaults to 100.
	Limit  int
	Offset int
}

// NoteStore defines the interface for note data persistence.
type NoteStore interface {
	// Create saves a new note to the store.
	// It handles domain validation internally.
	// Returns validation errors from the domain Note if data is invalid.
	Create(ctx context.Context, note *domain.Note) error

	// GetByID retrieves a note by its unique ID.
	// Returns ErrNoteNotFound if the note does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Note, error)

	// GetForOwner retrieves a note by ID, scoped to its owner.
	// Returns ErrNoteNotFound if the note does not exist or belongs
	// to a different owner.
	GetForOwner(ctx context.Context, id, ownerID uuid.UUID) (*domain.Note, error)

	// List retrieves the owner's notes matching the filter.
	// Returns an empty slice if no notes match.
	List(ctx context.Context, ownerID uuid.UUID, filter NoteFilter) ([]*domain.Note, error)

	// Update saves changes to an existing note's metadata fields
	// (title, tags, text notes). Returns ErrNoteNotFound if the note
	// does not exist.
	Update(ctx context.Context, note *domain.Note) error

	// UpdateStatus updates the status of an existing note.
	// Returns ErrNoteNotFound if the note does not exist.
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.NoteStatus) error

	// CompleteUpload atomically sets the audio path and moves the note
	// from the expected status to processing. It is the conditional
	// update-if-status-matches primitive: if the note is not in the
	// expected status the update affects no rows and ErrStatusConflict
	// is returned, so concurrent completions cannot both succeed.
	CompleteUpload(
		ctx context.Context,
		id uuid.UUID,
		expected domain.NoteStatus,
		audioPath string,
	) error

	// SaveTranscript persists the transcript for a note. Status is left
	// untouched; transcription alone does not complete the pipeline.
	SaveTranscript(ctx context.Context, id uuid.UUID, transcript string) error

	// SaveSummary persists the summary and marks the note completed.
	SaveSummary(ctx context.Context, id uuid.UUID, summary string) error

	// Delete removes a note owned by the given owner.
	// Returns ErrNoteNotFound if the note does not exist or belongs
	// to a different owner.
	Delete(ctx context.Context, id, ownerID uuid.UUID) error

	// WithTx returns a new NoteStore instance that uses the provided
	// transaction. The transaction should be created and managed by the
	// caller (typically a service).
	WithTx(tx *sql.Tx) NoteStore
}
