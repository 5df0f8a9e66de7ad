package gemini

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/voicenote-api/internal/config"
	"github.com/phrazzld/voicenote-api/internal/summarization"
)

func testLLMConfig() config.LLMConfig {
	return config.LLMConfig{
		GeminiAPIKey:      "test-key",
		ModelName:         "gemini-2.0-flash",
		TimeoutSeconds:    5,
		MaxRetries:        1,
		RetryDelaySeconds: 1,
	}
}

func TestNewSummarizerValidation(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err := NewSummarizer(ctx, nil, testLLMConfig())
	assert.Error(t, err)

	cfg := testLLMConfig()
	cfg.GeminiAPIKey = ""
	_, err = NewSummarizer(ctx, logger, cfg)
	assert.ErrorIs(t, err, summarization.ErrInvalidConfig)

	cfg = testLLMConfig()
	cfg.ModelName = ""
	_, err = NewSummarizer(ctx, logger, cfg)
	assert.ErrorIs(t, err, summarization.ErrInvalidConfig)
}

func TestSummarizeRejectsEmptyTranscript(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s, err := NewSummarizer(ctx, logger, testLLMConfig())
	require.NoError(t, err)

	// Rejected before any API call is made.
	_, err = s.Summarize(ctx, "")
	assert.ErrorIs(t, err, summarization.ErrEmptyTranscript)
}
