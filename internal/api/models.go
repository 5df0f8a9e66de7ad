package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/voicenote-api/internal/domain"
)

// Common request/response structures

// CreateNoteRequest defines the payload for creating a new audio note.
type CreateNoteRequest struct {
	Title     string `json:"title"      validate:"required,min=1,max=255"`
	Tags      string `json:"tags"       validate:"max=500"`
	TextNotes string `json:"text_notes" validate:"max=10000"`
}

// UpdateNoteRequest defines the payload for updating note metadata.
// Omitted fields are left unchanged.
type UpdateNoteRequest struct {
	Title     *string `json:"title,omitempty"      validate:"omitempty,min=1,max=255"`
	Tags      *string `json:"tags,omitempty"       validate:"omitempty,max=500"`
	TextNotes *string `json:"text_notes,omitempty" validate:"omitempty,max=10000"`
}

// CompleteUploadRequest defines the optional payload for the upload
// completion endpoint. Filename is used only for its extension.
type CompleteUploadRequest struct {
	Filename string `json:"filename" validate:"max=255"`
}

// NoteResponse represents the response data for a note.
type NoteResponse struct {
	ID         uuid.UUID `json:"id"`
	OwnerID    uuid.UUID `json:"owner_id"`
	Title      string    `json:"title"`
	Tags       string    `json:"tags,omitempty"`
	TextNotes  string    `json:"text_notes,omitempty"`
	AudioPath  string    `json:"audio_path,omitempty"`
	Transcript string    `json:"transcript,omitempty"`
	Summary    string    `json:"summary,omitempty"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NoteListResponse wraps a page of notes.
type NoteListResponse struct {
	Notes  []NoteResponse `json:"notes"`
	Count  int            `json:"count"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// noteToResponse converts a domain.Note to a NoteResponse.
func noteToResponse(note *domain.Note) NoteResponse {
	return NoteResponse{
		ID:         note.ID,
		OwnerID:    note.OwnerID,
		Title:      note.Title,
		Tags:       note.Tags,
		TextNotes:  note.TextNotes,
		AudioPath:  note.AudioPath,
		Transcript: note.Transcript,
		Summary:    note.Summary,
		Status:     string(note.Status),
		CreatedAt:  note.CreatedAt,
		UpdatedAt:  note.UpdatedAt,
	}
}
