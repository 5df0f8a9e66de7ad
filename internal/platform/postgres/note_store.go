package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/voicenote-api/internal/domain"
	"github.com/phrazzld/voicenote-api/internal/platform/logger"
	"github.com/phrazzld/voicenote-api/internal/store"
)

// Whitelisted sort columns for note listing. Anything else falls back to
// created_at so user input never reaches the ORDER BY clause directly.
var noteSortColumns = map[string]string{
	"created_at": "created_at",
	"updated_at": "updated_at",
	"title":      "title",
	"status":     "status",
}

// PostgresNoteStore implements the store.NoteStore interface
// using a PostgreSQL database as the storage backend.
type PostgresNoteStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresNoteStore creates a new PostgreSQL implementation of the NoteStore interface.
// It accepts a database connection or transaction that should be initialized and managed by the caller.
// If logger is nil, a default logger will be used.
func NewPostgresNoteStore(db store.DBTX, logger *slog.Logger) *PostgresNoteStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresNoteStore{
		db:     db,
		logger: logger.With(slog.String("component", "note_store")),
	}
}

// Ensure PostgresNoteStore implements store.NoteStore interface
var _ store.NoteStore = (*PostgresNoteStore)(nil)

// WithTx returns a new NoteStore instance backed by the given transaction.
func (s *PostgresNoteStore) WithTx(tx *sql.Tx) store.NoteStore {
	return &PostgresNoteStore{
		db:     tx,
		logger: s.logger,
	}
}

// Create implements store.NoteStore.Create
// It saves a new note to the database, handling domain validation.
// Returns validation errors from the domain Note if data is invalid.
func (s *PostgresNoteStore) Create(ctx context.Context, note *domain.Note) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := note.Validate(); err != nil {
		log.Warn("note validation failed during create",
			slog.String("error", err.Error()),
			slog.String("note_id", note.ID.String()))
		return err
	}

	query := `
		INSERT INTO notes (id, owner_id, title, tags, text_notes, audio_path,
			transcript, summary, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.db.ExecContext(
		ctx,
		query,
		note.ID,
		note.OwnerID,
		note.Title,
		note.Tags,
		note.TextNotes,
		note.AudioPath,
		note.Transcript,
		note.Summary,
		note.Status,
		note.CreatedAt,
		note.UpdatedAt,
	)

	if err != nil {
		log.Error("failed to create note",
			slog.String("error", err.Error()),
			slog.String("note_id", note.ID.String()),
			slog.String("owner_id", note.OwnerID.String()))
		return err
	}

	log.Info("note created successfully",
		slog.String("note_id", note.ID.String()),
		slog.String("owner_id", note.OwnerID.String()),
		slog.String("status", string(note.Status)))
	return nil
}

// GetByID implements store.NoteStore.GetByID
// It retrieves a note by its unique ID.
// Returns store.ErrNoteNotFound if the note does not exist.
func (s *PostgresNoteStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Note, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	log.Debug("retrieving note by ID", slog.String("note_id", id.String()))

	query := noteSelectColumns + ` WHERE id = $1`

	note, err := s.scanNote(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("note not found", slog.String("note_id", id.String()))
			return nil, store.ErrNoteNotFound
		}
		log.Error("failed to get note by ID",
			slog.String("error", err.Error()),
			slog.String("note_id", id.String()))
		return nil, err
	}

	return note, nil
}

// GetForOwner implements store.NoteStore.GetForOwner
// It retrieves a note by ID scoped to its owner.
// Returns store.ErrNoteNotFound if the note does not exist or belongs to
// a different owner, so callers cannot distinguish the two cases.
func (s *PostgresNoteStore) GetForOwner(
	ctx context.Context,
	id, ownerID uuid.UUID,
) (*domain.Note, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := noteSelectColumns + ` WHERE id = $1 AND owner_id = $2`

	note, err := s.scanNote(s.db.QueryRowContext(ctx, query, id, ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("note not found for owner",
				slog.String("note_id", id.String()),
				slog.String("owner_id", ownerID.String()))
			return nil, store.ErrNoteNotFound
		}
		log.Error("failed to get note for owner",
			slog.String("error", err.Error()),
			slog.String("note_id", id.String()))
		return nil, err
	}

	return note, nil
}

// List implements store.NoteStore.List
// It retrieves the owner's notes matching the filter, sorted and paginated.
// Returns an empty slice if no notes match the criteria.
func (s *PostgresNoteStore) List(
	ctx context.Context,
	ownerID uuid.UUID,
	filter store.NoteFilter,
) ([]*domain.Note, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	conditions := []string{"owner_id = $1"}
	args := []interface{}{ownerID}

	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}

	if len(filter.Tags) > 0 {
		tagConditions := make([]string, 0, len(filter.Tags))
		for _, tag := range filter.Tags {
			args = append(args, "%"+tag+"%")
			tagConditions = append(tagConditions, fmt.Sprintf("tags ILIKE $%d", len(args)))
		}
		conditions = append(conditions, "("+strings.Join(tagConditions, " OR ")+")")
	}

	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		n := len(args)
		conditions = append(conditions, fmt.Sprintf(
			"(title ILIKE $%d OR text_notes ILIKE $%d OR transcript ILIKE $%d OR summary ILIKE $%d)",
			n, n, n, n))
	}

	if !filter.DateFrom.IsZero() {
		args = append(args, filter.DateFrom)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}

	if !filter.DateTo.IsZero() {
		args = append(args, filter.DateTo)
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	sortColumn, ok := noteSortColumns[filter.SortBy]
	if !ok {
		sortColumn = "created_at"
	}
	order := "DESC"
	if strings.EqualFold(filter.Order, "asc") {
		order = "ASC"
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = store.DefaultNoteListLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit, offset)

	query := fmt.Sprintf("%s WHERE %s ORDER BY %s %s LIMIT $%d OFFSET $%d",
		noteSelectColumns,
		strings.Join(conditions, " AND "),
		sortColumn,
		order,
		len(args)-1,
		len(args),
	)

	log.Debug("listing notes",
		slog.String("owner_id", ownerID.String()),
		slog.Int("condition_count", len(conditions)),
		slog.String("sort_by", sortColumn),
		slog.String("order", order))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query notes",
			slog.String("error", err.Error()),
			slog.String("owner_id", ownerID.String()))
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Error("failed to close rows", slog.String("error", err.Error()))
		}
	}()

	notes := []*domain.Note{}
	for rows.Next() {
		note, err := s.scanNote(rows)
		if err != nil {
			log.Error("failed to scan note row", slog.String("error", err.Error()))
			return nil, err
		}
		notes = append(notes, note)
	}

	if err := rows.Err(); err != nil {
		log.Error("error after scanning rows", slog.String("error", err.Error()))
		return nil, err
	}

	log.Debug("found notes",
		slog.String("owner_id", ownerID.String()),
		slog.Int("count", len(notes)))
	return notes, nil
}

// Update implements store.NoteStore.Update
// It saves changes to an existing note's metadata fields.
// Returns store.ErrNoteNotFound if the note does not exist.
func (s *PostgresNoteStore) Update(ctx context.Context, note *domain.Note) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := note.Validate(); err != nil {
		log.Warn("note validation failed during update",
			slog.String("error", err.Error()),
			slog.String("note_id", note.ID.String()))
		return err
	}

	query := `
		UPDATE notes
		SET title = $1, tags = $2, text_notes = $3, updated_at = $4
		WHERE id = $5
	`

	result, err := s.db.ExecContext(
		ctx,
		query,
		note.Title,
		note.Tags,
		note.TextNotes,
		note.UpdatedAt,
		note.ID,
	)

	if err != nil {
		log.Error("failed to update note",
			slog.String("error", err.Error()),
			slog.String("note_id", note.ID.String()))
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		log.Error("failed to get rows affected",
			slog.String("error", err.Error()),
			slog.String("note_id", note.ID.String()))
		return err
	}

	if rowsAffected == 0 {
		log.Debug("note not found for update",
			slog.String("note_id", note.ID.String()))
		return store.ErrNoteNotFound
	}

	log.Info("note updated successfully",
		slog.String("note_id", note.ID.String()))
	return nil
}

// UpdateStatus implements store.NoteStore.UpdateStatus
// It updates the status of an existing note.
// Returns store.ErrNoteNotFound if the note does not exist.
func (s *PostgresNoteStore) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	status domain.NoteStatus,
) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	log.Debug("updating note status",
		slog.String("note_id", id.String()),
		slog.String("status", string(status)))

	query := `
		UPDATE notes
		SET status = $1, updated_at = $2
		WHERE id = $3
	`

	result, err := s.db.ExecContext(ctx, query, status, time.Now().UTC(), id)
	if err != nil {
		log.Error("failed to update note status",
			slog.String("error", err.Error()),
			slog.String("note_id", id.String()),
			slog.String("status", string(status)))
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		log.Error("failed to get rows affected",
			slog.String("error", err.Error()),
			slog.String("note_id", id.String()))
		return err
	}

	if rowsAffected == 0 {
		log.Debug("note not found for status update",
			slog.String("note_id", id.String()))
		return store.ErrNoteNotFound
	}

	log.Info("note status updated successfully",
		slog.String("note_id", id.String()),
		slog.String("status", string(status)))
	return nil
}

// CompleteUpload implements store.NoteStore.CompleteUpload
// It atomically records the audio path and moves the note from the expected
// status to processing. The status predicate is part of the UPDATE itself,
// so two concurrent completions cannot both succeed.
// Returns store.ErrNoteNotFound if the note does not exist and
// store.ErrStatusConflict if it exists but is not in the expected status.
func (s *PostgresNoteStore) CompleteUpload(
	ctx context.Context,
	id uuid.UUID,
	expected domain.NoteStatus,
	audioPath string,
) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE notes
		SET audio_path = $1, status = $2, updated_at = $3
		WHERE id = $4 AND status = $5
	`

	result, err := s.db.ExecContext(
		ctx,
		query,
		audioPath,
		domain.NoteStatusProcessing,
		time.Now().UTC(),
		id,
		expected,
	)

	if err != nil {
		log.Error("failed to complete upload",
			slog.String("error", err.Error()),
			slog.String("note_id", id.String()))
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		log.Error("failed to get rows affected",
			slog.String("error", err.Error()),
			slog.String("note_id", id.String()))
		return err
	}

	if rowsAffected == 0 {
		// Distinguish a missing note from a status mismatch.
		var currentStatus string
		err := s.db.QueryRowContext(ctx, `SELECT status FROM notes WHERE id = $1`, id).
			Scan(&currentStatus)
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("note not found for upload completion",
				slog.String("note_id", id.String()))
			return store.ErrNoteNotFound
		}
		if err != nil {
			log.Error("failed to check note status after conflict",
				slog.String("error", err.Error()),
				slog.String("note_id", id.String()))
			return err
		}

		log.Warn("upload completion rejected due to status conflict",
			slog.String("note_id", id.String()),
			slog.String("expected_status", string(expected)),
			slog.String("current_status", currentStatus))
		return fmt.Errorf("%w: note is %s, expected %s",
			store.ErrStatusConflict, currentStatus, expected)
	}

	log.Info("upload completed successfully",
		slog.String("note_id", id.String()),
		slog.String("audio_path", audioPath))
	return nil
}

// SaveTranscript implements store.NoteStore.SaveTranscript
// It persists the transcript without touching the status; the note stays in
// processing until the summary lands.
// Returns store.ErrNoteNotFound if the note does not exist.
func (s *PostgresNoteStore) SaveTranscript(
	ctx context.Context,
	id uuid.UUID,
	transcript string,
) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE notes
		SET transcript = $1, updated_at = $2
		WHERE id = $3
	`

	result, err := s.db.ExecContext(ctx, query, transcript, time.Now().UTC(), id)
	if err != nil {
		log.Error("failed to save transcript",
			slog.String("error", err.Error()),
			slog.String("note_id", id.String()))
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		log.Error("failed to get rows affected",
			slog.String("error", err.Error()),
			slog.String("note_id", id.String()))
		return err
	}

	if rowsAffected == 0 {
		log.Debug("note not found for transcript save",
			slog.String("note_id", id.String()))
		return store.ErrNoteNotFound
	}

	log.Info("transcript saved successfully",
		slog.String("note_id", id.String()),
		slog.Int("transcript_length", len(transcript)))
	return nil
}

// SaveSummary implements store.NoteStore.SaveSummary
// It persists the summary and marks the note completed in a single update.
// Returns store.ErrNoteNotFound if the note does not exist.
func (s *PostgresNoteStore) SaveSummary(ctx context.Context, id uuid.UUID, summary string) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE notes
		SET summary = $1, status = $2, updated_at = $3
		WHERE id = $4
	`

	result, err := s.db.ExecContext(
		ctx,
		query,
		summary,
		domain.NoteStatusCompleted,
		time.Now().UTC(),
		id,
	)
	if err != nil {
		log.Error("failed to save summary",
			slog.String("error", err.Error()),
			slog.String("note_id", id.String()))
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		log.Error("failed to get rows affected",
			slog.String("error", err.Error()),
			slog.String("note_id", id.String()))
		return err
	}

	if rowsAffected == 0 {
		log.Debug("note not found for summary save",
			slog.String("note_id", id.String()))
		return store.ErrNoteNotFound
	}

	log.Info("summary saved successfully",
		slog.String("note_id", id.String()),
		slog.Int("summary_length", len(summary)))
	return nil
}

// Delete implements store.NoteStore.Delete
// It removes a note owned by the given owner.
// Returns store.ErrNoteNotFound if the note does not exist or belongs to
// a different owner.
func (s *PostgresNoteStore) Delete(ctx context.Context, id, ownerID uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `DELETE FROM notes WHERE id = $1 AND owner_id = $2`

	result, err := s.db.ExecContext(ctx, query, id, ownerID)
	if err != nil {
		log.Error("failed to delete note",
			slog.String("error", err.Error()),
			slog.String("note_id", id.String()))
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		log.Error("failed to get rows affected",
			slog.String("error", err.Error()),
			slog.String("note_id", id.String()))
		return err
	}

	if rowsAffected == 0 {
		log.Debug("note not found for delete",
			slog.String("note_id", id.String()),
			slog.String("owner_id", ownerID.String()))
		return store.ErrNoteNotFound
	}

	log.Info("note deleted successfully",
		slog.String("note_id", id.String()),
		slog.String("owner_id", ownerID.String()))
	return nil
}

// noteSelectColumns is shared by all note lookups so every read path scans
// the same column order.
const noteSelectColumns = `
	SELECT id, owner_id, title, tags, text_notes, audio_path,
		transcript, summary, status, created_at, updated_at
	FROM notes`

// rowScanner abstracts *sql.Row and *sql.Rows for scanNote.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanNote reads one note row in the noteSelectColumns order.
func (s *PostgresNoteStore) scanNote(row rowScanner) (*domain.Note, error) {
	var note domain.Note
	var status string
	var tags, textNotes, audioPath, transcript, summary sql.NullString

	err := row.Scan(
		&note.ID,
		&note.OwnerID,
		&note.Title,
		&tags,
		&textNotes,
		&audioPath,
		&transcript,
		&summary,
		&status,
		&note.CreatedAt,
		&note.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	note.Tags = tags.String
	note.TextNotes = textNotes.String
	note.AudioPath = audioPath.String
	note.Transcript = transcript.String
	note.Summary = summary.String
	note.Status = domain.NoteStatus(status)

	return &note, nil
}
