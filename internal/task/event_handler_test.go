package task

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/voicenote-api/internal/events"
)

// recordingSubmitter captures submitted tasks.
type recordingSubmitter struct {
	tasks []Task
	err   error
}

func (s *recordingSubmitter) Submit(ctx context.Context, task Task) error {
	if s.err != nil {
		return s.err
	}
	s.tasks = append(s.tasks, task)
	return nil
}

// stubFactory returns a canned task for any note ID.
type stubFactory struct {
	created []uuid.UUID
	err     error
}

func (f *stubFactory) CreateTask(noteID uuid.UUID) (Task, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, noteID)
	return NewMockTask(uuid.New(), TaskTypeTranscription, nil), nil
}

func (f *stubFactory) CreateFromPayload(taskID uuid.UUID, payload []byte) (Task, error) {
	return NewMockTask(taskID, TaskTypeTranscription, payload), nil
}

func newTranscriptionEvent(t *testing.T, noteID uuid.UUID) *events.TaskRequestEvent {
	t.Helper()
	event, err := events.NewTaskRequestEvent(TaskTypeTranscription, notePayload{NoteID: noteID})
	require.NoError(t, err)
	return event
}

func TestTaskFactoryEventHandlerSubmitsTask(t *testing.T) {
	submitter := &recordingSubmitter{}
	factory := &stubFactory{}

	handler := NewTaskFactoryEventHandler(submitter, discardLogger())
	handler.RegisterFactory(TaskTypeTranscription, factory)

	noteID := uuid.New()
	err := handler.HandleEvent(context.Background(), newTranscriptionEvent(t, noteID))
	require.NoError(t, err)

	assert.Equal(t, []uuid.UUID{noteID}, factory.created)
	require.Len(t, submitter.tasks, 1)
}

func TestTaskFactoryEventHandlerIgnoresUnknownType(t *testing.T) {
	submitter := &recordingSubmitter{}
	handler := NewTaskFactoryEventHandler(submitter, discardLogger())

	event, err := events.NewTaskRequestEvent("unknown_type", notePayload{NoteID: uuid.New()})
	require.NoError(t, err)

	require.NoError(t, handler.HandleEvent(context.Background(), event))
	assert.Empty(t, submitter.tasks)
}

func TestTaskFactoryEventHandlerRejectsEmptyNoteID(t *testing.T) {
	handler := NewTaskFactoryEventHandler(&recordingSubmitter{}, discardLogger())
	handler.RegisterFactory(TaskTypeTranscription, &stubFactory{})

	err := handler.HandleEvent(context.Background(), newTranscriptionEvent(t, uuid.Nil))
	assert.Error(t, err)
}

func TestTaskFactoryEventHandlerPropagatesSubmitError(t *testing.T) {
	submitter := &recordingSubmitter{err: errors.New("queue full")}
	handler := NewTaskFactoryEventHandler(submitter, discardLogger())
	handler.RegisterFactory(TaskTypeTranscription, &stubFactory{})

	err := handler.HandleEvent(context.Background(), newTranscriptionEvent(t, uuid.New()))
	assert.Error(t, err)
}
