package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/phrazzld/voicenote-api/internal/config"
	"github.com/phrazzld/voicenote-api/internal/events"
	"github.com/phrazzld/voicenote-api/internal/platform/deepgram"
	"github.com/phrazzld/voicenote-api/internal/platform/gemini"
	"github.com/phrazzld/voicenote-api/internal/platform/localfs"
	"github.com/phrazzld/voicenote-api/internal/platform/postgres"
	"github.com/phrazzld/voicenote-api/internal/service"
	"github.com/phrazzld/voicenote-api/internal/service/auth"
	"github.com/phrazzld/voicenote-api/internal/store"
	"github.com/phrazzld/voicenote-api/internal/task"
)

// application holds all the shared application dependencies to simplify
// management and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	// Stores
	noteStore store.NoteStore
	taskStore *postgres.PostgresTaskStore

	// Platform clients
	audioStore  *localfs.AudioStore
	transcriber *deepgram.Transcriber
	summarizer  *gemini.Summarizer

	// Services
	jwtService  auth.JWTService
	noteService service.NoteService

	// Event system
	eventEmitter events.EventEmitter

	// Task handling
	taskRunner *task.TaskRunner
}

// newApplication creates a new application instance with all dependencies
// initialized. It accepts core dependencies like configuration, logger, and
// database connection that must be established before application
// initialization.
func newApplication(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	db *sql.DB,
) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
	}

	var err error
	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}

	app.audioStore, err = localfs.NewAudioStore(cfg.Upload.Dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio store: %w", err)
	}

	app.noteStore = postgres.NewPostgresNoteStore(db, logger)
	app.taskStore = postgres.NewPostgresTaskStore(db, nil)

	app.transcriber, err = deepgram.NewTranscriber(
		logger.With("component", "deepgram_transcriber"),
		cfg.Transcription,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize transcriber: %w", err)
	}

	app.summarizer, err = gemini.NewSummarizer(
		ctx,
		logger.With("component", "gemini_summarizer"),
		cfg.LLM,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize summarizer: %w", err)
	}

	app.eventEmitter = events.NewInMemoryEventEmitter(logger)

	app.noteService, err = service.NewNoteService(
		app.noteStore,
		db,
		app.audioStore,
		app.eventEmitter,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create note service: %w", err)
	}

	// The runner is created before the factories because the factories
	// need the note service, but it must not start until the factory
	// registry is installed; recovery rehydrates persisted jobs through it.
	app.taskRunner = task.NewTaskRunner(app.taskStore, task.TaskRunnerConfig{
		WorkerCount:  cfg.Worker.Count,
		QueueSize:    cfg.Worker.QueueSize,
		StuckTaskAge: time.Duration(cfg.Worker.StuckJobAgeMinutes) * time.Minute,
	}, logger)

	transcriptionFactory := task.NewTranscriptionTaskFactory(
		app.noteService,
		app.transcriber,
		app.audioStore,
		app.eventEmitter,
		logger,
	)
	summarizationFactory := task.NewSummarizationTaskFactory(
		app.noteService,
		app.summarizer,
		logger,
	)

	registry := task.NewFactoryRegistry()
	registry.Register(task.TaskTypeTranscription, transcriptionFactory)
	registry.Register(task.TaskTypeSummarization, summarizationFactory)
	app.taskStore.SetRegistry(registry)

	eventHandler := task.NewTaskFactoryEventHandler(app.taskRunner, logger)
	eventHandler.RegisterFactory(task.TaskTypeTranscription, transcriptionFactory)
	eventHandler.RegisterFactory(task.TaskTypeSummarization, summarizationFactory)

	if emitter, ok := app.eventEmitter.(*events.InMemoryEventEmitter); ok {
		emitter.RegisterHandler(eventHandler)
	} else {
		return nil, fmt.Errorf("unexpected event emitter type, cannot register task handler")
	}

	// Start recovers persisted jobs and launches the worker pool.
	if err := app.taskRunner.Start(); err != nil {
		return nil, fmt.Errorf("failed to start task runner: %w", err)
	}

	logger.Info("application initialized successfully")
	return app, nil
}

// Run starts the HTTP server and blocks until the context is canceled or
// the server fails.
func (app *application) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", app.config.Server.Port),
		Handler:           app.setupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		app.logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	return nil
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.taskRunner != nil {
		app.taskRunner.Stop()
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database connection", "error", err)
		}
	}

	app.logger.Info("application shutdown completed")
}
