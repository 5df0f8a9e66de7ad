package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/phrazzld/voicenote-api/internal/platform/localfs"
	"github.com/phrazzld/voicenote-api/internal/platform/logger"
	"github.com/phrazzld/voicenote-api/internal/service"
)

// Application-specific WebSocket close codes for upload channel rejection.
// The 4000-4999 range is reserved for application use.
const (
	CloseNoteNotFound     = 4404
	CloseNotOwner         = 4403
	CloseUploadNotAllowed = 4409
	CloseStorageFailure   = 4500
)

// writeWait bounds how long a single control or ack write may take before
// the connection is considered dead.
const writeWait = 10 * time.Second

// uploadControlMessage is a text frame sent by the client on the upload
// channel. The client may send a filename hint at any point before done;
// {"action":"done"} finalizes the upload.
type uploadControlMessage struct {
	Action   string `json:"action,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// uploadAck acknowledges channel state back to the client. Status is
// "ready" on open (TotalBytes carries the resume offset), "received"
// after each chunk, "completed" after done, or "error".
type uploadAck struct {
	Status     string `json:"status"`
	Bytes      int    `json:"bytes,omitempty"`
	TotalBytes int64  `json:"total_bytes"`
	NoteStatus string `json:"note_status,omitempty"`
	AudioPath  string `json:"audio_path,omitempty"`
	Error      string `json:"error,omitempty"`
}

// UploadHandler handles the WebSocket audio upload channel.
//
// The channel protocol: the client connects to /api/ws/notes/{id}/audio,
// streams binary frames that are appended verbatim to a per-note part
// file, and sends {"action":"done"} to finalize. Disconnecting without
// done leaves the part file in place so a later channel can resume.
type UploadHandler struct {
	noteService    service.NoteService
	audioStore     *localfs.AudioStore
	maxUploadBytes int64
	logger         *slog.Logger
	upgrader       websocket.Upgrader
}

// NewUploadHandler creates a new UploadHandler with the given dependencies.
// maxUploadBytes bounds the total size of one note's audio; zero disables
// the bound.
func NewUploadHandler(
	noteService service.NoteService,
	audioStore *localfs.AudioStore,
	maxUploadBytes int64,
	logger *slog.Logger,
) *UploadHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UploadHandler{
		noteService:    noteService,
		audioStore:     audioStore,
		maxUploadBytes: maxUploadBytes,
		logger:         logger.With("component", "upload_handler"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  32 * 1024,
			WriteBufferSize: 32 * 1024,
			// Token auth happens in middleware; cross-origin browser
			// clients are expected.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// HandleUpload handles GET /api/ws/notes/{id}/audio requests.
func (h *UploadHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, noteID, ok := handleUserIDAndPathUUID(w, r, "id", h.logger)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade writes its own HTTP error response.
		log.Debug("websocket upgrade failed", "error", err, "note_id", noteID)
		return
	}
	defer func() {
		if err := conn.Close(); err != nil {
			log.Debug("error closing websocket connection", "error", err)
		}
	}()

	log = log.With("note_id", noteID, "owner_id", userID)

	// Gate the channel before touching storage. Rejections use distinct
	// close codes so clients can tell a missing note from a status problem.
	if _, err := h.noteService.BeginUpload(r.Context(), noteID, userID); err != nil {
		switch {
		case errors.Is(err, service.ErrNoteNotFound):
			h.reject(conn, CloseNoteNotFound, "note not found")
		case errors.Is(err, service.ErrNotOwned):
			h.reject(conn, CloseNotOwner, "note is owned by another user")
		case errors.Is(err, service.ErrUploadNotAllowed):
			h.reject(conn, CloseUploadNotAllowed, "note does not accept uploads in its current status")
		default:
			log.Error("failed to begin upload", "error", err)
			h.reject(conn, CloseStorageFailure, "internal error")
		}
		return
	}

	// One part file handle for the channel's lifetime, closed on every
	// exit path. Opening in append mode makes reconnects resume where the
	// previous channel left off.
	part, err := h.audioStore.OpenPart(noteID)
	if err != nil {
		log.Error("failed to open upload part file", "error", err)
		h.reject(conn, CloseStorageFailure, "failed to open upload storage")
		return
	}
	defer func() {
		if err := part.Close(); err != nil {
			log.Error("error closing upload part file", "error", err)
		}
	}()

	if h.maxUploadBytes > 0 {
		// Generous slack for frame overhead and control messages.
		conn.SetReadLimit(h.maxUploadBytes + 64*1024)
	}

	// Tell the client where to resume from.
	if err := h.writeAck(conn, uploadAck{Status: "ready", TotalBytes: part.Size()}); err != nil {
		log.Debug("failed to send ready ack", "error", err)
		return
	}

	log.Info("upload channel opened", "resume_offset", part.Size())

	var filename string

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			// Disconnect without done: the part file stays for resume and
			// the note stays in uploading status.
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Info("upload channel disconnected mid-transfer",
					"error", err,
					"bytes_received", part.Size())
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			if h.maxUploadBytes > 0 && part.Size()+int64(len(data)) > h.maxUploadBytes {
				log.Warn("upload exceeds size limit",
					"limit_bytes", h.maxUploadBytes,
					"attempted_bytes", part.Size()+int64(len(data)))
				if err := h.audioStore.DiscardPart(noteID); err != nil {
					log.Error("failed to discard oversized upload part", "error", err)
				}
				h.closeWith(conn, websocket.CloseMessageTooBig, "upload exceeds size limit")
				return
			}

			if _, err := part.Write(data); err != nil {
				// A failed append aborts the channel without retry; the
				// note stays resumable.
				log.Error("failed to append upload chunk", "error", err)
				h.reject(conn, CloseStorageFailure, "failed to store chunk")
				return
			}

			if err := h.writeAck(conn, uploadAck{
				Status:     "received",
				Bytes:      len(data),
				TotalBytes: part.Size(),
			}); err != nil {
				log.Debug("failed to send chunk ack", "error", err)
				return
			}

		case websocket.TextMessage:
			var msg uploadControlMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				log.Debug("ignoring malformed control message", "error", err)
				continue
			}

			if msg.Filename != "" {
				filename = msg.Filename
			}

			if msg.Action != "done" {
				continue
			}

			h.complete(r.Context(), conn, log, noteID, userID, filename)
			return

		default:
			// Ping/pong and close frames are handled by gorilla internally.
		}
	}
}

// complete finalizes the upload through the same idempotent service method
// the HTTP completion endpoint uses, then reports the outcome and closes.
func (h *UploadHandler) complete(
	ctx context.Context,
	conn *websocket.Conn,
	log *slog.Logger,
	noteID, userID uuid.UUID,
	filename string,
) {
	note, err := h.noteService.CompleteUpload(ctx, noteID, userID, filename)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNoAudioUploaded):
			h.reject(conn, CloseUploadNotAllowed, "no audio has been uploaded")
		case errors.Is(err, service.ErrUploadNotAllowed):
			h.reject(conn, CloseUploadNotAllowed, "note does not accept uploads in its current status")
		default:
			log.Error("failed to complete upload", "error", err)
			h.reject(conn, CloseStorageFailure, "failed to complete upload")
		}
		return
	}

	if err := h.writeAck(conn, uploadAck{
		Status:     "completed",
		NoteStatus: string(note.Status),
		AudioPath:  note.AudioPath,
	}); err != nil {
		log.Debug("failed to send completion ack", "error", err)
		return
	}

	log.Info("upload completed over websocket",
		"audio_path", note.AudioPath,
		"status", note.Status)

	h.closeWith(conn, websocket.CloseNormalClosure, "")
}

// reject sends a JSON error frame followed by a close frame with the given
// application close code.
func (h *UploadHandler) reject(conn *websocket.Conn, code int, message string) {
	_ = h.writeAck(conn, uploadAck{Status: "error", Error: message})
	h.closeWith(conn, code, message)
}

// closeWith sends a close frame with the given code and reason.
func (h *UploadHandler) closeWith(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(writeWait)
	msg := websocket.FormatCloseMessage(code, reason)
	if err := conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		h.logger.Debug("failed to write close frame", "error", err, "code", code)
	}
}

// writeAck marshals and sends an ack as a text frame.
func (h *UploadHandler) writeAck(conn *websocket.Conn, ack uploadAck) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(ack)
}
