package task

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/voicenote-api/internal/domain"
)

// transcribedNote builds a note mid-pipeline with a transcript committed.
func transcribedNote(transcript string) *domain.Note {
	note := processingNote("note.mp3")
	note.Transcript = transcript
	return note
}

func newSummarizationTaskForTest(
	t *testing.T,
	svc *fakeNoteService,
	summarizer *fakeSummarizer,
	noteID uuid.UUID,
) *SummarizationTask {
	t.Helper()
	task, err := NewSummarizationTask(noteID, svc, summarizer, discardLogger())
	require.NoError(t, err)
	return task
}

func TestNewSummarizationTaskValidation(t *testing.T) {
	svc := newFakeNoteService()
	summarizer := &fakeSummarizer{}
	noteID := uuid.New()

	_, err := NewSummarizationTask(noteID, nil, summarizer, discardLogger())
	assert.ErrorIs(t, err, ErrNilNoteService)

	_, err = NewSummarizationTask(noteID, svc, nil, discardLogger())
	assert.ErrorIs(t, err, ErrNilSummarizer)

	_, err = NewSummarizationTask(noteID, svc, summarizer, nil)
	assert.ErrorIs(t, err, ErrNilLogger)

	_, err = NewSummarizationTask(uuid.Nil, svc, summarizer, discardLogger())
	assert.ErrorIs(t, err, ErrEmptyNoteID)
}

func TestSummarizationTaskExecuteSuccess(t *testing.T) {
	note := transcribedNote("a long transcript about many things")
	svc := newFakeNoteService(note)
	summarizer := &fakeSummarizer{summary: "A short summary."}

	task := newSummarizationTaskForTest(t, svc, summarizer, note.ID)
	err := task.Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, TaskStatusCompleted, task.Status())
	assert.Equal(t, "A short summary.", svc.summaries[note.ID])
	// Summarization is the terminal successful step.
	assert.Equal(t, domain.NoteStatusCompleted, svc.notes[note.ID].Status)
}

func TestSummarizationTaskDiscardsMissingNote(t *testing.T) {
	svc := newFakeNoteService()
	task := newSummarizationTaskForTest(t, svc, &fakeSummarizer{}, uuid.New())

	err := task.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TaskStatusCompleted, task.Status())
}

func TestSummarizationTaskDiscardsStaleNote(t *testing.T) {
	tests := []struct {
		name  string
		setup func(n *domain.Note)
	}{
		{
			name:  "empty transcript",
			setup: func(n *domain.Note) { n.Transcript = "" },
		},
		{
			name: "already completed",
			setup: func(n *domain.Note) {
				n.Summary = "done"
				n.Status = domain.NoteStatusCompleted
			},
		},
		{
			name:  "already failed",
			setup: func(n *domain.Note) { n.Status = domain.NoteStatusFailed },
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			note := transcribedNote("transcript")
			tc.setup(note)
			svc := newFakeNoteService(note)
			summarizer := &fakeSummarizer{summary: "should not be used"}

			task := newSummarizationTaskForTest(t, svc, summarizer, note.ID)
			err := task.Execute(context.Background())
			require.NoError(t, err)

			assert.Equal(t, TaskStatusCompleted, task.Status())
			assert.Zero(t, summarizer.calls)
			// The stored note is untouched by the discard.
			assert.NotContains(t, svc.summaries, note.ID)
		})
	}
}

func TestSummarizationTaskMarksNoteFailedOnSummarizeError(t *testing.T) {
	note := transcribedNote("transcript")
	svc := newFakeNoteService(note)
	summarizer := &fakeSummarizer{err: errors.New("model overloaded")}

	task := newSummarizationTaskForTest(t, svc, summarizer, note.ID)
	err := task.Execute(context.Background())
	require.Error(t, err)

	assert.Equal(t, TaskStatusFailed, task.Status())
	assert.Equal(t, domain.NoteStatusFailed, svc.notes[note.ID].Status)
	assert.Contains(t, svc.failed, note.ID)
}

func TestSummarizationTaskSaveFailure(t *testing.T) {
	note := transcribedNote("transcript")
	svc := newFakeNoteService(note)
	svc.saveSummaryErr = errors.New("db down")

	task := newSummarizationTaskForTest(t, svc, &fakeSummarizer{summary: "s"}, note.ID)
	err := task.Execute(context.Background())
	require.Error(t, err)
	assert.Equal(t, TaskStatusFailed, task.Status())
	// The note must not stay in processing with no task in flight.
	assert.Equal(t, domain.NoteStatusFailed, svc.notes[note.ID].Status)
	assert.Contains(t, svc.failed, note.ID)
}
