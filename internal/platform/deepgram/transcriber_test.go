package deepgram

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/voicenote-api/internal/config"
	"github.com/phrazzld/voicenote-api/internal/transcription"
)

const successBody = `{
	"results": {
		"channels": [
			{"alternatives": [{"transcript": "hello world", "confidence": 0.98}]}
		]
	}
}`

func testConfig() config.TranscriptionConfig {
	return config.TranscriptionConfig{
		DeepgramAPIKey:    "test-key",
		Model:             "nova-2",
		TimeoutSeconds:    5,
		MaxRetries:        2,
		RetryDelaySeconds: 1,
	}
}

func newTestTranscriber(t *testing.T, serverURL string, cfg config.TranscriptionConfig) *Transcriber {
	t.Helper()
	tr, err := NewTranscriber(
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		cfg,
		WithBaseURL(serverURL),
	)
	require.NoError(t, err)
	return tr
}

func TestNewTranscriberValidation(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err := NewTranscriber(nil, testConfig())
	assert.Error(t, err)

	cfg := testConfig()
	cfg.DeepgramAPIKey = ""
	_, err = NewTranscriber(logger, cfg)
	assert.ErrorIs(t, err, transcription.ErrInvalidConfig)

	cfg = testConfig()
	cfg.Model = ""
	_, err = NewTranscriber(logger, cfg)
	assert.ErrorIs(t, err, transcription.ErrInvalidConfig)
}

func TestTranscribeSuccess(t *testing.T) {
	var gotAuth, gotContentType string
	var gotBody []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		assert.Equal(t, "nova-2", r.URL.Query().Get("model"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(successBody))
	}))
	defer server.Close()

	tr := newTestTranscriber(t, server.URL, testConfig())

	text, err := tr.Transcribe(context.Background(), []byte("audio bytes"), "audio/wav")
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
	assert.Equal(t, "Token test-key", gotAuth)
	assert.Equal(t, "audio/wav", gotContentType)
	assert.Equal(t, []byte("audio bytes"), gotBody)
}

func TestTranscribeRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(successBody))
	}))
	defer server.Close()

	tr := newTestTranscriber(t, server.URL, testConfig())

	text, err := tr.Transcribe(context.Background(), []byte("x"), "")
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
	assert.Equal(t, int32(3), calls.Load())
}

func TestTranscribeExhaustsRetries(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	tr := newTestTranscriber(t, server.URL, testConfig())

	_, err := tr.Transcribe(context.Background(), []byte("x"), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, transcription.ErrTransientFailure)
	// MaxRetries=2 means 3 attempts total.
	assert.Equal(t, int32(3), calls.Load())
}

func TestTranscribeDoesNotRetryPermanentFailures(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"err_msg": "unsupported audio format"}`))
	}))
	defer server.Close()

	tr := newTestTranscriber(t, server.URL, testConfig())

	_, err := tr.Transcribe(context.Background(), []byte("x"), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, transcription.ErrPermanentFailure)
	assert.Equal(t, int32(1), calls.Load())
}

func TestTranscribeRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(successBody))
	}))
	defer server.Close()

	tr := newTestTranscriber(t, server.URL, testConfig())

	text, err := tr.Transcribe(context.Background(), []byte("x"), "")
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
	assert.Equal(t, int32(2), calls.Load())
}

func TestTranscribeEmptyAudio(t *testing.T) {
	tr := newTestTranscriber(t, "http://unused.invalid", testConfig())

	_, err := tr.Transcribe(context.Background(), nil, "")
	assert.ErrorIs(t, err, transcription.ErrPermanentFailure)
}

func TestTranscribeMalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results": {"channels": []}}`))
	}))
	defer server.Close()

	tr := newTestTranscriber(t, server.URL, testConfig())

	_, err := tr.Transcribe(context.Background(), []byte("x"), "")
	assert.ErrorIs(t, err, transcription.ErrInvalidResponse)
}
