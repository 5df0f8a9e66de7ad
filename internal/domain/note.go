package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// NoteStatus represents the processing state of an audio note.
type NoteStatus string

// Possible note status values. Progression is monotonic
// (pending -> uploading -> processing -> completed) except that
// failed is reachable from any non-terminal state.
const (
	NoteStatusPending    NoteStatus = "pending"
	NoteStatusUploading  NoteStatus = "uploading"
	NoteStatusProcessing NoteStatus = "processing"
	NoteStatusCompleted  NoteStatus = "completed"
	NoteStatusFailed     NoteStatus = "failed"
)

// Common validation errors for Note
var (
	ErrEmptyNoteID           = errors.New("note ID cannot be empty")
	ErrEmptyNoteOwnerID      = errors.New("note owner ID cannot be empty")
	ErrEmptyNoteTitle        = errors.New("note title cannot be empty")
	ErrInvalidNoteStatus     = errors.New("invalid note status")
	ErrInvalidNoteTransition = errors.New("invalid note status transition")
	ErrTranscriptWithoutAudio = errors.New(
		"transcript cannot be set before audio path",
	)
	ErrSummaryWithoutTranscript = errors.New(
		"summary cannot be set before transcript",
	)
)

// Note represents one audio note tracking the full audio-to-summary
// pipeline: audio is uploaded in chunks, transcribed, then summarized.
// Status is the externally observable progress signal.
type Note struct {
	ID         uuid.UUID  `json:"id"`
	OwnerID    uuid.UUID  `json:"owner_id"`
	Title      string     `json:"title"`
	Tags       string     `json:"tags,omitempty"`
	TextNotes  string     `json:"text_notes,omitempty"`
	AudioPath  string     `json:"audio_path,omitempty"`
	Transcript string     `json:"transcript,omitempty"`
	Summary    string     `json:"summary,omitempty"`
	Status     NoteStatus `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// NewNote creates a new Note with the given owner ID and title.
// It generates a new UUID for the note ID, sets the status to pending,
// and sets the creation/update timestamps.
// Returns an error if validation fails.
func NewNote(ownerID uuid.UUID, title, tags, textNotes string) (*Note, error) {
	note := &Note{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Title:     title,
		Tags:      tags,
		TextNotes: textNotes,
		Status:    NoteStatusPending,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	if err := note.Validate(); err != nil {
		return nil, err
	}

	return note, nil
}

// Validate checks if the Note has valid data.
// Returns an error if any field fails validation.
func (n *Note) Validate() error {
	if n.ID == uuid.Nil {
		return ErrEmptyNoteID
	}

	if n.OwnerID == uuid.Nil {
		return ErrEmptyNoteOwnerID
	}

	if n.Title == "" {
		return ErrEmptyNoteTitle
	}

	if !isValidNoteStatus(n.Status) {
		return ErrInvalidNoteStatus
	}

	// transcript requires audio, summary requires transcript
	if n.Transcript != "" && n.AudioPath == "" {
		return ErrTranscriptWithoutAudio
	}
	if n.Summary != "" && n.Transcript == "" {
		return ErrSummaryWithoutTranscript
	}

	return nil
}

// UpdateStatus updates the note's status and bumps the UpdatedAt timestamp.
// Returns an error if the new status is invalid or the transition would
// move backwards or out of a terminal state.
func (n *Note) UpdateStatus(status NoteStatus) error {
	if !isValidNoteStatus(status) {
		return ErrInvalidNoteStatus
	}

	if !CanTransition(n.Status, status) {
		return ErrInvalidNoteTransition
	}

	n.Status = status
	n.UpdatedAt = time.Now().UTC()
	return nil
}

// IsTerminal reports whether the status admits no further transitions.
func (s NoteStatus) IsTerminal() bool {
	return s == NoteStatusCompleted || s == NoteStatusFailed
}

// AcceptsUpload reports whether an upload channel may be opened for a note
// in this status. Re-opening while uploading is allowed so interrupted
// transfers can resume.
func (s NoteStatus) AcceptsUpload() bool {
	return s == NoteStatusPending || s == NoteStatusUploading
}

// CanTransition reports whether moving from one status to another respects
// the monotonic lifecycle. failed is reachable from any non-terminal state.
func CanTransition(from, to NoteStatus) bool {
	if from == to {
		return true
	}
	if from.IsTerminal() {
		return false
	}
	if to == NoteStatusFailed {
		return true
	}

	switch from {
	case NoteStatusPending:
		return to == NoteStatusUploading || to == NoteStatusProcessing
	case NoteStatusUploading:
		return to == NoteStatusProcessing
	case NoteStatusProcessing:
		return to == NoteStatusCompleted
	default:
		return false
	}
}

// isValidNoteStatus checks if the given status is a valid NoteStatus.
func isValidNoteStatus(status NoteStatus) bool {
	switch status {
	case NoteStatusPending, NoteStatusUploading, NoteStatusProcessing,
		NoteStatusCompleted, NoteStatusFailed:
		return true
	default:
		return false
	}
}
