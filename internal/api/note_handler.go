package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/phrazzld/voicenote-api/internal/api/shared"
	"github.com/phrazzld/voicenote-api/internal/domain"
	"github.com/phrazzld/voicenote-api/internal/platform/logger"
	"github.com/phrazzld/voicenote-api/internal/service"
	"github.com/phrazzld/voicenote-api/internal/store"
)

// NoteHandler handles note-related HTTP requests.
type NoteHandler struct {
	noteService service.NoteService
	logger      *slog.Logger
}

// NewNoteHandler creates a new NoteHandler with the given dependencies.
func NewNoteHandler(noteService service.NoteService, logger *slog.Logger) *NoteHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &NoteHandler{
		noteService: noteService,
		logger:      logger.With("component", "note_handler"),
	}
}

// CreateNote handles POST /api/notes requests.
// It creates a new note in pending status, ready to receive an audio upload.
func (h *NoteHandler) CreateNote(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := getUserIDFromContext(r)
	if !ok {
		log.Warn("user ID not found or invalid in request context")
		HandleAPIError(w, r, domain.ErrUnauthorized, "User ID not found or invalid")
		return
	}

	var req CreateNoteRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		log.Debug("failed to decode request body", "error", err)
		HandleAPIError(w, r, err, "Invalid request format")
		return
	}

	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}

	note, err := h.noteService.CreateNote(r.Context(), userID, req.Title, req.Tags, req.TextNotes)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusCreated, noteToResponse(note))
}

// GetNote handles GET /api/notes/{id} requests.
func (h *NoteHandler) GetNote(w http.ResponseWriter, r *http.Request) {
	userID, noteID, ok := handleUserIDAndPathUUID(w, r, "id", h.logger)
	if !ok {
		return
	}

	note, err := h.noteService.GetNoteForOwner(r.Context(), noteID, userID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, noteToResponse(note))
}

// ListNotes handles GET /api/notes requests.
// Filtering, sorting, and pagination are controlled by query parameters:
// status, tags (comma-separated), search, from, to, sort_by, order,
// limit, offset.
func (h *NoteHandler) ListNotes(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := getUserIDFromContext(r)
	if !ok {
		log.Warn("user ID not found or invalid in request context")
		HandleAPIError(w, r, domain.ErrUnauthorized, "User ID not found or invalid")
		return
	}

	filter, err := parseNoteFilter(r)
	if err != nil {
		log.Debug("invalid list query parameters", "error", err)
		HandleAPIError(w, r, err, "")
		return
	}

	notes, err := h.noteService.ListNotes(r.Context(), userID, filter)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	responses := make([]NoteResponse, 0, len(notes))
	for _, note := range notes {
		responses = append(responses, noteToResponse(note))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = store.DefaultNoteListLimit
	}

	shared.RespondWithJSON(w, r, http.StatusOK, NoteListResponse{
		Notes:  responses,
		Count:  len(responses),
		Limit:  limit,
		Offset: filter.Offset,
	})
}

// UpdateNote handles PATCH /api/notes/{id} requests.
// Only metadata fields (title, tags, text notes) can be changed; the
// pipeline fields are owned by the background workers.
func (h *NoteHandler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	userID, noteID, ok := handleUserIDAndPathUUID(w, r, "id", h.logger)
	if !ok {
		return
	}

	var req UpdateNoteRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		HandleAPIError(w, r, err, "Invalid request format")
		return
	}

	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}

	note, err := h.noteService.UpdateNote(r.Context(), noteID, userID, service.NoteUpdate{
		Title:     req.Title,
		Tags:      req.Tags,
		TextNotes: req.TextNotes,
	})
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, noteToResponse(note))
}

// DeleteNote handles DELETE /api/notes/{id} requests.
func (h *NoteHandler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	userID, noteID, ok := handleUserIDAndPathUUID(w, r, "id", h.logger)
	if !ok {
		return
	}

	if err := h.noteService.DeleteNote(r.Context(), noteID, userID); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CompleteUpload handles POST /api/notes/{id}/complete-upload requests.
// It is the HTTP fallback for clients whose WebSocket connection dropped
// after the last chunk but before the done acknowledgment arrived. The
// operation is idempotent with the WebSocket completion path.
func (h *NoteHandler) CompleteUpload(w http.ResponseWriter, r *http.Request) {
	userID, noteID, ok := handleUserIDAndPathUUID(w, r, "id", h.logger)
	if !ok {
		return
	}

	// The body is optional; an empty body means no filename hint.
	var req CompleteUploadRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := shared.DecodeJSON(r, &req); err != nil {
			HandleAPIError(w, r, err, "Invalid request format")
			return
		}
		if err := shared.ValidateRequest(req); err != nil {
			shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
			return
		}
	}

	note, err := h.noteService.CompleteUpload(r.Context(), noteID, userID, req.Filename)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, noteToResponse(note))
}

// parseNoteFilter builds a store.NoteFilter from list query parameters.
func parseNoteFilter(r *http.Request) (store.NoteFilter, error) {
	q := r.URL.Query()
	var filter store.NoteFilter

	if status := q.Get("status"); status != "" {
		s := domain.NoteStatus(status)
		switch s {
		case domain.NoteStatusPending, domain.NoteStatusUploading,
			domain.NoteStatusProcessing, domain.NoteStatusCompleted,
			domain.NoteStatusFailed:
			filter.Status = s
		default:
			return store.NoteFilter{}, domain.NewValidationError(
				"status", "is not a valid note status", domain.ErrValidation)
		}
	}

	if tags := q.Get("tags"); tags != "" {
		filter.Tags = splitTags(tags)
	}

	filter.Search = q.Get("search")

	if from := q.Get("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return store.NoteFilter{}, domain.NewValidationError(
				"from", "must be an RFC 3339 timestamp", domain.ErrValidation)
		}
		filter.DateFrom = t
	}

	if to := q.Get("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return store.NoteFilter{}, domain.NewValidationError(
				"to", "must be an RFC 3339 timestamp", domain.ErrValidation)
		}
		filter.DateTo = t
	}

	filter.SortBy = q.Get("sort_by")
	filter.Order = q.Get("order")

	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			return store.NoteFilter{}, domain.NewValidationError(
				"limit", "must be a positive integer", domain.ErrValidation)
		}
		filter.Limit = limit
	}

	if offsetStr := q.Get("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			return store.NoteFilter{}, domain.NewValidationError(
				"offset", "must be a non-negative integer", domain.ErrValidation)
		}
		filter.Offset = offset
	}

	return filter, nil
}

// splitTags splits a comma-separated tag list, trimming whitespace and
// dropping empty entries.
func splitTags(raw string) []string {
	var tags []string
	for _, part := range strings.Split(raw, ",") {
		if tag := strings.TrimSpace(part); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}
