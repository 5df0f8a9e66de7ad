package task

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/voicenote-api/internal/events"
	"github.com/phrazzld/voicenote-api/internal/summarization"
	"github.com/phrazzld/voicenote-api/internal/transcription"
)

// TaskFactory creates a fresh task of one type for the given note.
type TaskFactory interface {
	// CreateTask creates a new task for the specified note
	CreateTask(noteID uuid.UUID) (Task, error)

	// CreateFromPayload reconstructs a persisted task from its stored ID
	// and payload so recovery can re-execute it
	CreateFromPayload(taskID uuid.UUID, payload []byte) (Task, error)
}

// TranscriptionTaskFactory creates TranscriptionTask instances
type TranscriptionTaskFactory struct {
	noteService NoteService
	transcriber transcription.Transcriber
	audioReader AudioReader
	emitter     events.EventEmitter
	logger      *slog.Logger
}

// NewTranscriptionTaskFactory creates a new factory for TranscriptionTasks
func NewTranscriptionTaskFactory(
	noteService NoteService,
	transcriber transcription.Transcriber,
	audioReader AudioReader,
	emitter events.EventEmitter,
	logger *slog.Logger,
) *TranscriptionTaskFactory {
	return &TranscriptionTaskFactory{
		noteService: noteService,
		transcriber: transcriber,
		audioReader: audioReader,
		emitter:     emitter,
		logger:      logger.With("component", "transcription_task_factory"),
	}
}

// CreateTask creates a new TranscriptionTask for the specified note
func (f *TranscriptionTaskFactory) CreateTask(noteID uuid.UUID) (Task, error) {
	return NewTranscriptionTask(
		noteID,
		f.noteService,
		f.transcriber,
		f.audioReader,
		f.emitter,
		f.logger,
	)
}

// CreateFromPayload reconstructs a TranscriptionTask from persisted data
func (f *TranscriptionTaskFactory) CreateFromPayload(taskID uuid.UUID, payload []byte) (Task, error) {
	var p notePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transcription payload: %w", err)
	}

	task, err := NewTranscriptionTask(
		p.NoteID,
		f.noteService,
		f.transcriber,
		f.audioReader,
		f.emitter,
		f.logger,
	)
	if err != nil {
		return nil, err
	}

	return task.withID(taskID), nil
}

// SummarizationTaskFactory creates SummarizationTask instances
type SummarizationTaskFactory struct {
	noteService NoteService
	summarizer  summarization.Summarizer
	logger      *slog.Logger
}

// NewSummarizationTaskFactory creates a new factory for SummarizationTasks
func NewSummarizationTaskFactory(
	noteService NoteService,
	summarizer summarization.Summarizer,
	logger *slog.Logger,
) *SummarizationTaskFactory {
	return &SummarizationTaskFactory{
		noteService: noteService,
		summarizer:  summarizer,
		logger:      logger.With("component", "summarization_task_factory"),
	}
}

// CreateTask creates a new SummarizationTask for the specified note
func (f *SummarizationTaskFactory) CreateTask(noteID uuid.UUID) (Task, error) {
	return NewSummarizationTask(noteID, f.noteService, f.summarizer, f.logger)
}

// CreateFromPayload reconstructs a SummarizationTask from persisted data
func (f *SummarizationTaskFactory) CreateFromPayload(taskID uuid.UUID, payload []byte) (Task, error) {
	var p notePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal summarization payload: %w", err)
	}

	task, err := NewSummarizationTask(p.NoteID, f.noteService, f.summarizer, f.logger)
	if err != nil {
		return nil, err
	}

	return task.withID(taskID), nil
}

// FactoryRegistry maps task types to the factories that can reconstruct
// their tasks. The store uses it to rehydrate persisted tasks during
// recovery.
type FactoryRegistry struct {
	mu        sync.RWMutex
	factories map[string]TaskFactory
}

// NewFactoryRegistry creates an empty registry
func NewFactoryRegistry() *FactoryRegistry {
	return &FactoryRegistry{
		factories: make(map[string]TaskFactory),
	}
}

// Register associates a task type with a factory
func (r *FactoryRegistry) Register(taskType string, factory TaskFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[taskType] = factory
}

// Rehydrate reconstructs a persisted task using the factory registered for
// its type. Returns an error for unknown task types.
func (r *FactoryRegistry) Rehydrate(taskID uuid.UUID, taskType string, payload []byte) (Task, error) {
	r.mu.RLock()
	factory, ok := r.factories[taskType]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("no factory registered for task type %q", taskType)
	}

	return factory.CreateFromPayload(taskID, payload)
}
