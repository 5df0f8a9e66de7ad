package summarization

import "context"

// Summarizer defines the interface for producing a short summary of a
// transcript. Like transcription.Transcriber, it is the boundary between the
// pipeline and the external language model.
type Summarizer interface {
	// Summarize returns a brief summary of the given transcript text.
	// Errors are classified as transient (retry-eligible) or permanent;
	// see errors.go.
	Summarize(ctx context.Context, transcript string) (string, error)
}
