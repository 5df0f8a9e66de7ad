package localfs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Common errors returned by the audio store
var (
	ErrPartNotFound  = errors.New("upload part not found")
	ErrAudioNotFound = errors.New("audio file not found")
	ErrInvalidPath   = errors.New("invalid audio path")
)

// mimeTypes maps stored audio extensions to their MIME types. Unknown
// extensions fall back to audio/mpeg, matching the most common uploads.
var mimeTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".m4a":  "audio/mp4",
	".ogg":  "audio/ogg",
	".webm": "audio/webm",
	".flac": "audio/flac",
}

// AudioStore keeps note audio on the local filesystem. In-progress uploads
// live as append-mode part files under <dir>/tmp; completed uploads are
// renamed into <dir> under their note ID. Paths stored on notes are
// relative to the base directory so the directory can move between
// deployments.
type AudioStore struct {
	dir    string
	logger *slog.Logger
}

// NewAudioStore creates the base and tmp directories if needed and returns
// a store rooted at dir.
func NewAudioStore(dir string, logger *slog.Logger) (*AudioStore, error) {
	if dir == "" {
		return nil, errors.New("audio store directory cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Join(dir, "tmp"), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audio store directories: %w", err)
	}

	return &AudioStore{
		dir:    dir,
		logger: logger.With(slog.String("component", "audio_store")),
	}, nil
}

// PartWriter appends chunks to an in-progress upload. It tracks the total
// size so the upload handler can acknowledge received byte counts.
type PartWriter struct {
	f    *os.File
	size int64
}

// Write appends a chunk to the part file.
func (w *PartWriter) Write(p []byte) (int, error) {
	n, err := w.f.Write(p)
	w.size += int64(n)
	return n, err
}

// Size returns the total bytes in the part file, including bytes written
// by earlier interrupted sessions.
func (w *PartWriter) Size() int64 {
	return w.size
}

// Close closes the underlying file. The part file is kept on disk so an
// interrupted upload can resume.
func (w *PartWriter) Close() error {
	return w.f.Close()
}

// OpenPart opens the part file for the given note in append mode, creating
// it if this is the first chunk. The returned writer starts at the current
// file size, which is what makes resumed uploads possible.
func (s *AudioStore) OpenPart(noteID uuid.UUID) (*PartWriter, error) {
	path := s.partPath(noteID)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open part file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to stat part file: %w", err)
	}

	s.logger.Debug("opened upload part",
		slog.String("note_id", noteID.String()),
		slog.Int64("existing_bytes", info.Size()))

	return &PartWriter{f: f, size: info.Size()}, nil
}

// PartSize returns the number of bytes already received for the note.
// Returns 0 with no error when no part file exists yet.
func (s *AudioStore) PartSize(noteID uuid.UUID) (int64, error) {
	info, err := os.Stat(s.partPath(noteID))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to stat part file: %w", err)
	}
	return info.Size(), nil
}

// Promote moves the completed part file to its final location and returns
// the relative path to store on the note. The extension is taken from the
// original filename when recognized.
func (s *AudioStore) Promote(ctx context.Context, noteID uuid.UUID, filename string) (string, error) {
	partPath := s.partPath(noteID)

	if _, err := os.Stat(partPath); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: note %s", ErrPartNotFound, noteID)
		}
		return "", fmt.Errorf("failed to stat part file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := mimeTypes[ext]; !ok {
		ext = ".mp3"
	}

	relPath := noteID.String() + ext
	finalPath := filepath.Join(s.dir, relPath)

	if err := os.Rename(partPath, finalPath); err != nil {
		return "", fmt.Errorf("failed to promote part file: %w", err)
	}

	s.logger.Info("upload promoted to final location",
		slog.String("note_id", noteID.String()),
		slog.String("audio_path", relPath))

	return relPath, nil
}

// DiscardPart removes the in-progress part file for a note, if any.
func (s *AudioStore) DiscardPart(noteID uuid.UUID) error {
	err := os.Remove(s.partPath(noteID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to discard part file: %w", err)
	}
	return nil
}

// ReadAudio returns the audio bytes and MIME type for a stored path.
// The path must be a bare filename produced by Promote; anything that
// resolves outside the base directory is rejected.
func (s *AudioStore) ReadAudio(ctx context.Context, path string) ([]byte, string, error) {
	if path == "" || filepath.Base(path) != path {
		return nil, "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}

	data, err := os.ReadFile(filepath.Join(s.dir, path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", fmt.Errorf("%w: %s", ErrAudioNotFound, path)
		}
		return nil, "", fmt.Errorf("failed to read audio file: %w", err)
	}

	mimeType, ok := mimeTypes[strings.ToLower(filepath.Ext(path))]
	if !ok {
		mimeType = "audio/mpeg"
	}

	return data, mimeType, nil
}

// Remove deletes a stored audio file. Missing files are not an error so
// note deletion stays idempotent.
func (s *AudioStore) Remove(ctx context.Context, path string) error {
	if path == "" {
		return nil
	}
	if filepath.Base(path) != path {
		return fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}

	err := os.Remove(filepath.Join(s.dir, path))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove audio file: %w", err)
	}

	s.logger.Debug("audio file removed", slog.String("audio_path", path))
	return nil
}

// partPath returns the location of the in-progress upload for a note.
func (s *AudioStore) partPath(noteID uuid.UUID) string {
	return filepath.Join(s.dir, "tmp", noteID.String()+".part")
}
