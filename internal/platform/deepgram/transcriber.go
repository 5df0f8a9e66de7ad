package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"github.com/phrazzld/voicenote-api/internal/config"
	"github.com/phrazzld/voicenote-api/internal/transcription"
)

// defaultBaseURL is Deepgram's prerecorded transcription endpoint.
const defaultBaseURL = "https://api.deepgram.com/v1/listen"

// Transcriber implements the transcription.Transcriber interface using
// Deepgram's prerecorded REST API.
type Transcriber struct {
	// logger is used for structured logging
	logger *slog.Logger

	// config contains the Deepgram integration settings
	config config.TranscriptionConfig

	// httpClient issues the API requests; injectable for tests
	httpClient *http.Client

	// baseURL is the endpoint to call; overridable for tests
	baseURL string
}

// Option customizes a Transcriber. Used by tests to point the client at a
// local server.
type Option func(*Transcriber)

// WithHTTPClient overrides the HTTP client used for API calls.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Transcriber) {
		t.httpClient = c
	}
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(u string) Option {
	return func(t *Transcriber) {
		t.baseURL = u
	}
}

// NewTranscriber creates a new Deepgram-backed Transcriber.
// Returns an error if the configuration is incomplete.
func NewTranscriber(
	logger *slog.Logger,
	cfg config.TranscriptionConfig,
	opts ...Option,
) (*Transcriber, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.DeepgramAPIKey == "" {
		return nil, fmt.Errorf("%w: deepgram API key cannot be empty", transcription.ErrInvalidConfig)
	}

	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model cannot be empty", transcription.ErrInvalidConfig)
	}

	t := &Transcriber{
		logger:  logger.With("component", "deepgram_transcriber"),
		config:  cfg,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}

	for _, opt := range opts {
		opt(t)
	}

	return t, nil
}

// Ensure Transcriber implements the transcription.Transcriber interface
var _ transcription.Transcriber = (*Transcriber)(nil)

// listenResponse mirrors the slice of Deepgram's response the service needs.
type listenResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// Transcribe sends the audio bytes to Deepgram and returns the transcript.
//
// It attempts the call up to config.MaxRetries+1 times, using exponential
// backoff with jitter between attempts for transient errors (network
// failures, timeouts, 429 and 5xx responses). Client errors other than 429
// are permanent and returned immediately without retrying.
func (t *Transcriber) Transcribe(
	ctx context.Context,
	audio []byte,
	mimeType string,
) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("%w: audio payload is empty", transcription.ErrPermanentFailure)
	}
	if mimeType == "" {
		mimeType = "audio/mpeg"
	}

	maxRetries := t.config.MaxRetries
	baseDelaySeconds := t.config.RetryDelaySeconds
	if maxRetries < 0 {
		t.logger.WarnContext(ctx, "invalid max retries value, using default", "max_retries", 2)
		maxRetries = 2
	}
	if baseDelaySeconds < 1 {
		t.logger.WarnContext(ctx, "invalid retry delay value, using default", "base_delay_seconds", 2)
		baseDelaySeconds = 2
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		attemptNum := attempt + 1 // 1-based for logging
		t.logger.InfoContext(ctx, "calling Deepgram API",
			"attempt", attemptNum,
			"max_attempts", maxRetries+1,
			"audio_bytes", len(audio))

		text, err := t.callOnce(ctx, audio, mimeType)
		if err == nil {
			t.logger.InfoContext(ctx, "Deepgram API call successful",
				"attempt", attemptNum,
				"transcript_length", len(text))
			return text, nil
		}

		lastErr = err
		t.logger.ErrorContext(ctx, "Deepgram API call failed",
			"attempt", attemptNum,
			"error", err)

		// Permanent failures are not retried.
		if !errors.Is(err, transcription.ErrTransientFailure) {
			return "", err
		}

		if attempt >= maxRetries {
			break
		}

		// delay = baseDelay * (2^attempt) * (0.5 + rand(0, 0.5))
		backoffSeconds := float64(baseDelaySeconds) * math.Pow(2, float64(attempt))
		jitterFactor := 0.5 + rng.Float64()*0.5
		delay := time.Duration(backoffSeconds * jitterFactor * float64(time.Second))

		t.logger.InfoContext(ctx, "retrying after delay",
			"attempt", attemptNum,
			"delay", delay)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", transcription.ErrTransientFailure, ctx.Err())
		}
	}

	return "", fmt.Errorf("%w: exceeded maximum retry attempts (%d): %v",
		transcription.ErrTransientFailure, maxRetries, lastErr)
}

// callOnce performs a single API request with a per-attempt timeout and
// classifies the outcome as transient or permanent.
func (t *Transcriber) callOnce(ctx context.Context, audio []byte, mimeType string) (string, error) {
	timeout := time.Duration(t.config.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, t.requestURL(), bytes.NewReader(audio))
	if err != nil {
		return "", fmt.Errorf("%w: failed to build request: %v", transcription.ErrPermanentFailure, err)
	}
	req.Header.Set("Authorization", "Token "+t.config.DeepgramAPIKey)
	req.Header.Set("Content-Type", mimeType)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		// Network failures and timeouts are retry-eligible.
		return "", fmt.Errorf("%w: %v", transcription.ErrTransientFailure, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read response body: %v", transcription.ErrTransientFailure, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to parsing
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", fmt.Errorf("%w: deepgram returned status %d", transcription.ErrTransientFailure, resp.StatusCode)
	default:
		return "", fmt.Errorf("%w: deepgram returned status %d: %s",
			transcription.ErrPermanentFailure, resp.StatusCode, truncate(string(body), 200))
	}

	var parsed listenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("%w: failed to parse response: %v", transcription.ErrInvalidResponse, err)
	}

	if len(parsed.Results.Channels) == 0 || len(parsed.Results.Channels[0].Alternatives) == 0 {
		return "", fmt.Errorf("%w: response contains no transcript", transcription.ErrInvalidResponse)
	}

	alt := parsed.Results.Channels[0].Alternatives[0]
	t.logger.DebugContext(ctx, "Deepgram response received",
		"transcript_length", len(alt.Transcript),
		"confidence", alt.Confidence)

	return alt.Transcript, nil
}

// requestURL builds the listen endpoint URL with model and language params.
func (t *Transcriber) requestURL() string {
	params := url.Values{}
	params.Set("model", t.config.Model)
	params.Set("smart_format", "true")
	if t.config.Language != "" {
		params.Set("language", t.config.Language)
	}
	return t.baseURL + "?" + params.Encode()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
