package task

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscriptionTaskFactoryCreateFromPayload(t *testing.T) {
	factory := NewTranscriptionTaskFactory(
		newFakeNoteService(),
		&fakeTranscriber{},
		&fakeAudioReader{},
		&capturingEmitter{},
		discardLogger(),
	)

	noteID := uuid.New()
	taskID := uuid.New()
	payload, err := json.Marshal(notePayload{NoteID: noteID})
	require.NoError(t, err)

	task, err := factory.CreateFromPayload(taskID, payload)
	require.NoError(t, err)

	// Rehydrated tasks keep the persisted row's ID so status updates land
	// on the original job.
	assert.Equal(t, taskID, task.ID())
	assert.Equal(t, TaskTypeTranscription, task.Type())

	var decoded notePayload
	require.NoError(t, json.Unmarshal(task.Payload(), &decoded))
	assert.Equal(t, noteID, decoded.NoteID)
}

func TestSummarizationTaskFactoryCreateFromPayload(t *testing.T) {
	factory := NewSummarizationTaskFactory(
		newFakeNoteService(),
		&fakeSummarizer{},
		discardLogger(),
	)

	noteID := uuid.New()
	taskID := uuid.New()
	payload, err := json.Marshal(notePayload{NoteID: noteID})
	require.NoError(t, err)

	task, err := factory.CreateFromPayload(taskID, payload)
	require.NoError(t, err)
	assert.Equal(t, taskID, task.ID())
	assert.Equal(t, TaskTypeSummarization, task.Type())
}

func TestFactoryCreateFromPayloadRejectsGarbage(t *testing.T) {
	factory := NewSummarizationTaskFactory(
		newFakeNoteService(),
		&fakeSummarizer{},
		discardLogger(),
	)

	_, err := factory.CreateFromPayload(uuid.New(), []byte("not json"))
	assert.Error(t, err)
}

func TestFactoryRegistryRehydrate(t *testing.T) {
	registry := NewFactoryRegistry()
	registry.Register(TaskTypeTranscription, NewTranscriptionTaskFactory(
		newFakeNoteService(),
		&fakeTranscriber{},
		&fakeAudioReader{},
		&capturingEmitter{},
		discardLogger(),
	))

	noteID := uuid.New()
	taskID := uuid.New()
	payload, err := json.Marshal(notePayload{NoteID: noteID})
	require.NoError(t, err)

	task, err := registry.Rehydrate(taskID, TaskTypeTranscription, payload)
	require.NoError(t, err)
	assert.Equal(t, taskID, task.ID())

	_, err = registry.Rehydrate(taskID, "unknown_type", payload)
	assert.Error(t, err)
}
