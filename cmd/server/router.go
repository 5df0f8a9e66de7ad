package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/phrazzld/voicenote-api/internal/api"
	apiMiddleware "github.com/phrazzld/voicenote-api/internal/api/middleware"
)

// setupRouter creates and configures the application router with all routes
// and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware)

	authMiddleware := apiMiddleware.NewAuthMiddleware(app.jwtService)

	noteHandler := api.NewNoteHandler(app.noteService, app.logger)
	uploadHandler := api.NewUploadHandler(
		app.noteService,
		app.audioStore,
		int64(app.config.Upload.MaxUploadSizeMB)*1024*1024,
		app.logger,
	)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			// Note CRUD endpoints
			r.Post("/notes", noteHandler.CreateNote)
			r.Get("/notes", noteHandler.ListNotes)
			r.Get("/notes/{id}", noteHandler.GetNote)
			r.Patch("/notes/{id}", noteHandler.UpdateNote)
			r.Delete("/notes/{id}", noteHandler.DeleteNote)

			// Upload completion fallback for dropped WebSocket connections
			r.Post("/notes/{id}/complete-upload", noteHandler.CompleteUpload)

			// Chunked audio upload channel
			r.Get("/ws/notes/{id}/audio", uploadHandler.HandleUpload)
		})
	})

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("failed to write health check response", "error", err)
		}
	})

	return r
}
