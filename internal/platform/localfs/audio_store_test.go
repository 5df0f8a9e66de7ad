package localfs

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *AudioStore {
	t.Helper()
	store, err := NewAudioStore(t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return store
}

func TestNewAudioStoreCreatesDirectories(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "audio")
	_, err := NewAudioStore(dir, nil)
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(dir, "tmp"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	_, err = NewAudioStore("", nil)
	assert.Error(t, err)
}

func TestPartWriterAppendsChunksInOrder(t *testing.T) {
	store := newTestStore(t)
	noteID := uuid.New()

	part, err := store.OpenPart(noteID)
	require.NoError(t, err)

	chunks := [][]byte{[]byte("RIFF"), []byte("...."), []byte("end")}
	for _, chunk := range chunks {
		n, err := part.Write(chunk)
		require.NoError(t, err)
		assert.Equal(t, len(chunk), n)
	}
	assert.Equal(t, int64(11), part.Size())
	require.NoError(t, part.Close())

	// The assembled blob is byte-identical to the chunk concatenation.
	data, err := os.ReadFile(filepath.Join(store.dir, "tmp", noteID.String()+".part"))
	require.NoError(t, err)
	assert.Equal(t, []byte("RIFF....end"), data)
}

func TestOpenPartResumesExistingUpload(t *testing.T) {
	store := newTestStore(t)
	noteID := uuid.New()

	part, err := store.OpenPart(noteID)
	require.NoError(t, err)
	_, err = part.Write([]byte("first"))
	require.NoError(t, err)
	require.NoError(t, part.Close())

	// A second session appends where the first left off.
	part, err = store.OpenPart(noteID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), part.Size())
	_, err = part.Write([]byte("second"))
	require.NoError(t, err)
	assert.Equal(t, int64(11), part.Size())
	require.NoError(t, part.Close())

	size, err := store.PartSize(noteID)
	require.NoError(t, err)
	assert.Equal(t, int64(11), size)
}

func TestPartSizeWithoutPart(t *testing.T) {
	store := newTestStore(t)
	size, err := store.PartSize(uuid.New())
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestPromote(t *testing.T) {
	store := newTestStore(t)
	noteID := uuid.New()

	part, err := store.OpenPart(noteID)
	require.NoError(t, err)
	_, err = part.Write([]byte("audio data"))
	require.NoError(t, err)
	require.NoError(t, part.Close())

	relPath, err := store.Promote(context.Background(), noteID, "recording.wav")
	require.NoError(t, err)
	assert.Equal(t, noteID.String()+".wav", relPath)

	// The part file is gone and the final file holds the bytes.
	size, err := store.PartSize(noteID)
	require.NoError(t, err)
	assert.Zero(t, size)

	data, mimeType, err := store.ReadAudio(context.Background(), relPath)
	require.NoError(t, err)
	assert.Equal(t, []byte("audio data"), data)
	assert.Equal(t, "audio/wav", mimeType)
}

func TestPromoteDefaultsUnknownExtension(t *testing.T) {
	store := newTestStore(t)
	noteID := uuid.New()

	part, err := store.OpenPart(noteID)
	require.NoError(t, err)
	_, err = part.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, part.Close())

	relPath, err := store.Promote(context.Background(), noteID, "mystery.xyz")
	require.NoError(t, err)
	assert.Equal(t, noteID.String()+".mp3", relPath)
}

func TestPromoteWithoutPart(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Promote(context.Background(), uuid.New(), "a.mp3")
	assert.ErrorIs(t, err, ErrPartNotFound)
}

func TestDiscardPart(t *testing.T) {
	store := newTestStore(t)
	noteID := uuid.New()

	part, err := store.OpenPart(noteID)
	require.NoError(t, err)
	_, err = part.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, part.Close())

	require.NoError(t, store.DiscardPart(noteID))
	size, err := store.PartSize(noteID)
	require.NoError(t, err)
	assert.Zero(t, size)

	// Discarding an absent part is a no-op.
	require.NoError(t, store.DiscardPart(noteID))
}

func TestReadAudioRejectsTraversal(t *testing.T) {
	store := newTestStore(t)

	for _, path := range []string{"", "../secrets", "sub/dir.mp3", "/etc/passwd"} {
		_, _, err := store.ReadAudio(context.Background(), path)
		assert.ErrorIs(t, err, ErrInvalidPath, "path %q", path)
	}
}

func TestReadAudioMissingFile(t *testing.T) {
	store := newTestStore(t)
	_, _, err := store.ReadAudio(context.Background(), "nope.mp3")
	assert.ErrorIs(t, err, ErrAudioNotFound)
}

func TestRemove(t *testing.T) {
	store := newTestStore(t)
	noteID := uuid.New()

	part, err := store.OpenPart(noteID)
	require.NoError(t, err)
	_, err = part.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, part.Close())

	relPath, err := store.Promote(context.Background(), noteID, "a.mp3")
	require.NoError(t, err)

	require.NoError(t, store.Remove(context.Background(), relPath))
	_, _, err = store.ReadAudio(context.Background(), relPath)
	assert.ErrorIs(t, err, ErrAudioNotFound)

	// Removing again is a no-op; empty paths are ignored.
	require.NoError(t, store.Remove(context.Background(), relPath))
	require.NoError(t, store.Remove(context.Background(), ""))

	assert.Error(t, store.Remove(context.Background(), "../escape.mp3"))
}
