package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/phrazzld/voicenote-api/internal/config"
	"github.com/phrazzld/voicenote-api/internal/summarization"
	"google.golang.org/genai"
)

// summaryPrompt asks the model for a short summary of a voice note
// transcript. The transcript is appended after the instructions.
const summaryPrompt = `You are an assistant that writes brief, informative summaries of voice notes.

Write a summary of 2-3 sentences capturing the key points and the main idea of the following transcript. Respond with the summary only.

Transcript:
%s`

// Summarizer implements the summarization.Summarizer interface using
// Google's Gemini API.
type Summarizer struct {
	// logger is used for structured logging
	logger *slog.Logger

	// config contains LLM-specific configuration
	config config.LLMConfig

	// client is the Gemini API client for making requests
	client *genai.Client

	// model is the name of the Gemini model to use
	model string
}

// NewSummarizer creates a new instance of Summarizer with the provided dependencies.
//
// Parameters:
//   - ctx: Context for the operation, which can be used for cancellation
//   - logger: A structured logger for operation logging
//   - cfg: LLM configuration containing API key, model name, and retry settings
//
// Returns:
//   - A properly initialized Summarizer or an error if initialization fails
func NewSummarizer(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*Summarizer, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", summarization.ErrInvalidConfig)
	}

	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", summarization.ErrInvalidConfig)
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v",
			summarization.ErrInvalidConfig, err)
	}

	return &Summarizer{
		logger: logger.With("component", "gemini_summarizer"),
		config: cfg,
		client: client,
		model:  cfg.ModelName,
	}, nil
}

// Ensure Summarizer implements the summarization.Summarizer interface
var _ summarization.Summarizer = (*Summarizer)(nil)

// Summarize produces a short summary of the transcript via the Gemini API.
//
// It attempts the call up to config.MaxRetries+1 times, using exponential
// backoff with jitter between retries for transient errors. Permanent errors
// (content blocked by safety filters, empty responses) are returned
// immediately without retrying.
func (s *Summarizer) Summarize(ctx context.Context, transcript string) (string, error) {
	if transcript == "" {
		return "", summarization.ErrEmptyTranscript
	}

	prompt := fmt.Sprintf(summaryPrompt, transcript)

	maxRetries := s.config.MaxRetries
	baseDelaySeconds := s.config.RetryDelaySeconds
	if maxRetries < 0 {
		s.logger.WarnContext(ctx, "invalid max retries value, using default", "max_retries", 2)
		maxRetries = 2
	}
	if baseDelaySeconds < 1 {
		s.logger.WarnContext(ctx, "invalid retry delay value, using default", "base_delay_seconds", 2)
		baseDelaySeconds = 2
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		attemptNum := attempt + 1
		s.logger.InfoContext(ctx, "calling Gemini API",
			"attempt", attemptNum,
			"max_attempts", maxRetries+1,
			"transcript_length", len(transcript))

		summary, err := s.callOnce(ctx, prompt)
		if err == nil {
			s.logger.InfoContext(ctx, "Gemini API call successful",
				"attempt", attemptNum,
				"summary_length", len(summary))
			return summary, nil
		}

		lastErr = err
		s.logger.ErrorContext(ctx, "Gemini API call failed",
			"attempt", attemptNum,
			"error", err)

		// Permanent errors are returned immediately.
		if errors.Is(err, summarization.ErrContentBlocked) ||
			errors.Is(err, summarization.ErrInvalidResponse) {
			return "", err
		}

		if attempt >= maxRetries {
			break
		}

		// delay = baseDelay * (2^attempt) * (0.5 + rand(0, 0.5))
		backoffSeconds := float64(baseDelaySeconds) * math.Pow(2, float64(attempt))
		jitterFactor := 0.5 + rng.Float64()*0.5
		delay := time.Duration(backoffSeconds * jitterFactor * float64(time.Second))

		s.logger.InfoContext(ctx, "retrying after delay",
			"attempt", attemptNum,
			"delay", delay)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", summarization.ErrTransientFailure, ctx.Err())
		}
	}

	return "", fmt.Errorf("%w: exceeded maximum retry attempts (%d): %v",
		summarization.ErrTransientFailure, maxRetries, lastErr)
}

// callOnce performs a single generate-content request with a per-attempt
// timeout and classifies the outcome.
func (s *Summarizer) callOnce(ctx context.Context, prompt string) (string, error) {
	timeout := time.Duration(s.config.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := s.client.Models.GenerateContent(callCtx, s.model, genai.Text(prompt), nil)
	if err != nil {
		// API and network errors are assumed transient; the retry bound
		// keeps genuinely broken requests from looping forever.
		return "", fmt.Errorf("%w: %v", summarization.ErrTransientFailure, err)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no content generated", summarization.ErrInvalidResponse)
	}

	if resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("%w: transcript rejected", summarization.ErrContentBlocked)
	}

	summary := strings.TrimSpace(resp.Text())
	if summary == "" {
		return "", fmt.Errorf("%w: empty summary in response", summarization.ErrInvalidResponse)
	}

	return summary, nil
}
