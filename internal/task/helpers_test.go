package task

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/voicenote-api/internal/domain"
	"github.com/phrazzld/voicenote-api/internal/events"
	"github.com/phrazzld/voicenote-api/internal/store"
)

// discardLogger returns a logger that drops everything, for quiet tests.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeNoteService is a hand-rolled NoteService for task tests. Notes are
// held in memory keyed by ID; nil function fields fall back to the map.
type fakeNoteService struct {
	mu          sync.Mutex
	notes       map[uuid.UUID]*domain.Note
	transcripts map[uuid.UUID]string
	summaries   map[uuid.UUID]string
	failed      map[uuid.UUID]string

	saveTranscriptErr error
	saveSummaryErr    error
}

func newFakeNoteService(notes ...*domain.Note) *fakeNoteService {
	s := &fakeNoteService{
		notes:       make(map[uuid.UUID]*domain.Note),
		transcripts: make(map[uuid.UUID]string),
		summaries:   make(map[uuid.UUID]string),
		failed:      make(map[uuid.UUID]string),
	}
	for _, n := range notes {
		s.notes[n.ID] = n
	}
	return s
}

func (s *fakeNoteService) GetNote(ctx context.Context, noteID uuid.UUID) (*domain.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	note, ok := s.notes[noteID]
	if !ok {
		return nil, store.ErrNoteNotFound
	}
	copied := *note
	return &copied, nil
}

func (s *fakeNoteService) SaveTranscript(ctx context.Context, noteID uuid.UUID, transcript string) error {
	if s.saveTranscriptErr != nil {
		return s.saveTranscriptErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcripts[noteID] = transcript
	if note, ok := s.notes[noteID]; ok {
		note.Transcript = transcript
	}
	return nil
}

func (s *fakeNoteService) SaveSummary(ctx context.Context, noteID uuid.UUID, summary string) error {
	if s.saveSummaryErr != nil {
		return s.saveSummaryErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries[noteID] = summary
	if note, ok := s.notes[noteID]; ok {
		note.Summary = summary
		note.Status = domain.NoteStatusCompleted
	}
	return nil
}

func (s *fakeNoteService) MarkFailed(ctx context.Context, noteID uuid.UUID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[noteID] = reason
	if note, ok := s.notes[noteID]; ok {
		note.Status = domain.NoteStatusFailed
	}
	return nil
}

// fakeTranscriber returns a fixed transcript or error.
type fakeTranscriber struct {
	transcript string
	err        error
	calls      int
}

func (t *fakeTranscriber) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	t.calls++
	if t.err != nil {
		return "", t.err
	}
	return t.transcript, nil
}

// fakeSummarizer returns a fixed summary or error.
type fakeSummarizer struct {
	summary string
	err     error
	calls   int
}

func (s *fakeSummarizer) Summarize(ctx context.Context, transcript string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.summary, nil
}

// fakeAudioReader serves fixed audio bytes or an error.
type fakeAudioReader struct {
	audio    []byte
	mimeType string
	err      error
}

func (r *fakeAudioReader) ReadAudio(ctx context.Context, path string) ([]byte, string, error) {
	if r.err != nil {
		return nil, "", r.err
	}
	return r.audio, r.mimeType, nil
}

// capturingEmitter records every emitted event.
type capturingEmitter struct {
	mu     sync.Mutex
	events []*events.TaskRequestEvent
	err    error
}

func (e *capturingEmitter) EmitEvent(ctx context.Context, event *events.TaskRequestEvent) error {
	if e.err != nil {
		return e.err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return nil
}

func (e *capturingEmitter) emitted() []*events.TaskRequestEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*events.TaskRequestEvent, len(e.events))
	copy(out, e.events)
	return out
}

// processingNote builds a note that qualifies for transcription.
func processingNote(audioPath string) *domain.Note {
	note, err := domain.NewNote(uuid.New(), "test note", "", "")
	if err != nil {
		panic(err)
	}
	note.Status = domain.NoteStatusProcessing
	note.AudioPath = audioPath
	return note
}
