package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/voicenote-api/internal/domain"
	"github.com/phrazzld/voicenote-api/internal/platform/localfs"
	"github.com/phrazzld/voicenote-api/internal/service"
)

type uploadFixture struct {
	svc    *fakeNoteService
	audio  *localfs.AudioStore
	server *httptest.Server
	userID uuid.UUID
}

func newUploadFixture(t *testing.T, maxUploadBytes int64) *uploadFixture {
	t.Helper()

	svc := newFakeNoteService()
	audio, err := localfs.NewAudioStore(t.TempDir(), discardLogger())
	require.NoError(t, err)

	userID := uuid.New()
	handler := NewUploadHandler(svc, audio, maxUploadBytes, discardLogger())

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(injectUserID(userID))
		r.Get("/api/ws/notes/{id}/audio", handler.HandleUpload)
	})

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	return &uploadFixture{svc: svc, audio: audio, server: server, userID: userID}
}

func (f *uploadFixture) dial(t *testing.T, noteID uuid.UUID) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") +
		"/api/ws/notes/" + noteID.String() + "/audio"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readAck(t *testing.T, conn *websocket.Conn) uploadAck {
	t.Helper()
	var ack uploadAck
	require.NoError(t, conn.ReadJSON(&ack))
	return ack
}

// expectClose reads until the peer's close frame and asserts its code.
func expectClose(t *testing.T, conn *websocket.Conn, code int) {
	t.Helper()
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			assert.True(t, websocket.IsCloseError(err, code),
				"expected close code %d, got %v", code, err)
			return
		}
	}
}

func TestUploadChannelStreamsChunks(t *testing.T) {
	f := newUploadFixture(t, 0)
	note := seedServiceNote(t, f.svc, f.userID, domain.NoteStatusPending)

	conn := f.dial(t, note.ID)

	ready := readAck(t, conn)
	assert.Equal(t, "ready", ready.Status)
	assert.Zero(t, ready.TotalBytes)

	chunks := [][]byte{[]byte("RIFF"), []byte("audio-"), []byte("bytes")}
	var total int64
	for _, chunk := range chunks {
		require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, chunk))
		total += int64(len(chunk))

		ack := readAck(t, conn)
		assert.Equal(t, "received", ack.Status)
		assert.Equal(t, len(chunk), ack.Bytes)
		assert.Equal(t, total, ack.TotalBytes)
	}

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"action":"done","filename":"clip.wav"}`)))

	done := readAck(t, conn)
	assert.Equal(t, "completed", done.Status)
	assert.Equal(t, string(domain.NoteStatusProcessing), done.NoteStatus)
	assert.NotEmpty(t, done.AudioPath)

	expectClose(t, conn, websocket.CloseNormalClosure)
	assert.Equal(t, 1, f.svc.completeCalls)
}

func TestUploadChannelRejectsMissingNote(t *testing.T) {
	f := newUploadFixture(t, 0)

	conn := f.dial(t, uuid.New())

	ack := readAck(t, conn)
	assert.Equal(t, "error", ack.Status)
	expectClose(t, conn, CloseNoteNotFound)
}

func TestUploadChannelRejectsOtherOwner(t *testing.T) {
	f := newUploadFixture(t, 0)
	note := seedServiceNote(t, f.svc, uuid.New(), domain.NoteStatusPending)

	conn := f.dial(t, note.ID)

	readAck(t, conn)
	expectClose(t, conn, CloseNotOwner)
}

func TestUploadChannelRejectsIneligibleStatus(t *testing.T) {
	f := newUploadFixture(t, 0)
	note := seedServiceNote(t, f.svc, f.userID, domain.NoteStatusCompleted)

	conn := f.dial(t, note.ID)

	readAck(t, conn)
	expectClose(t, conn, CloseUploadNotAllowed)
}

func TestUploadChannelEnforcesSizeLimit(t *testing.T) {
	f := newUploadFixture(t, 8)
	note := seedServiceNote(t, f.svc, f.userID, domain.NoteStatusPending)

	conn := f.dial(t, note.ID)
	readAck(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage,
		[]byte("way past the eight byte limit")))

	expectClose(t, conn, websocket.CloseMessageTooBig)

	// The oversized part is discarded rather than left half-written.
	size, err := f.audio.PartSize(note.ID)
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestUploadChannelResumesAfterDisconnect(t *testing.T) {
	f := newUploadFixture(t, 0)
	note := seedServiceNote(t, f.svc, f.userID, domain.NoteStatusPending)

	// First session: send one chunk and drop the connection without done.
	conn := f.dial(t, note.ID)
	readAck(t, conn)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("first")))
	ack := readAck(t, conn)
	assert.Equal(t, int64(5), ack.TotalBytes)
	require.NoError(t, conn.Close())

	// The partial audio survives the disconnect.
	size, err := f.audio.PartSize(note.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)

	// Second session resumes at the part's size.
	conn = f.dial(t, note.ID)
	ready := readAck(t, conn)
	assert.Equal(t, "ready", ready.Status)
	assert.Equal(t, int64(5), ready.TotalBytes)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("second")))
	ack = readAck(t, conn)
	assert.Equal(t, int64(11), ack.TotalBytes)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"done"}`)))
	done := readAck(t, conn)
	assert.Equal(t, "completed", done.Status)
	expectClose(t, conn, websocket.CloseNormalClosure)
}

func TestUploadChannelIgnoresMalformedControlFrames(t *testing.T) {
	f := newUploadFixture(t, 0)
	note := seedServiceNote(t, f.svc, f.userID, domain.NoteStatusPending)

	conn := f.dial(t, note.ID)
	readAck(t, conn)

	// Garbage text frames are skipped; the channel stays usable.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{broken")))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("chunk")))

	ack := readAck(t, conn)
	assert.Equal(t, "received", ack.Status)
}

func TestUploadChannelDoneWithoutAudio(t *testing.T) {
	f := newUploadFixture(t, 0)
	note := seedServiceNote(t, f.svc, f.userID, domain.NoteStatusPending)
	f.svc.completeErr = service.ErrNoAudioUploaded

	conn := f.dial(t, note.ID)
	readAck(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"done"}`)))

	ack := readAck(t, conn)
	assert.Equal(t, "error", ack.Status)
	expectClose(t, conn, CloseUploadNotAllowed)
}

func TestUploadChannelRequiresAuth(t *testing.T) {
	svc := newFakeNoteService()
	audio, err := localfs.NewAudioStore(t.TempDir(), discardLogger())
	require.NoError(t, err)

	handler := NewUploadHandler(svc, audio, 0, discardLogger())
	r := chi.NewRouter()
	r.Get("/api/ws/notes/{id}/audio", handler.HandleUpload)

	server := httptest.NewServer(r)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") +
		"/api/ws/notes/" + uuid.NewString() + "/audio"

	// Without a user in context the handler responds before upgrading.
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
