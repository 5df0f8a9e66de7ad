package transcription

import "context"

// Transcriber defines the interface for converting recorded audio into text.
// This interface serves as a boundary between the application core and
// external speech-to-text services, following the hexagonal architecture
// pattern.
type Transcriber interface {
	// Transcribe converts the given audio bytes into text.
	//
	// Parameters:
	//   - ctx: Context for the operation, which can be used for cancellation
	//   - audio: The raw audio bytes to transcribe
	//   - mimeType: A format hint for the audio payload (e.g. "audio/mpeg")
	//
	// Returns:
	//   - The transcript text
	//   - An error classifying the failure (see errors.go): transient
	//     failures are retry-eligible, permanent failures are not.
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}
