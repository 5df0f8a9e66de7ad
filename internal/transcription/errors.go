package transcription

import "errors"

// Common errors returned by the transcription package
var (
	// ErrTranscriptionFailed is returned when transcription fails for any general reason
	ErrTranscriptionFailed = errors.New("failed to transcribe audio")

	// ErrInvalidResponse is returned when the speech-to-text response cannot be parsed
	ErrInvalidResponse = errors.New("invalid response from transcription service")

	// ErrTransientFailure is returned for temporary errors that might resolve on retry
	ErrTransientFailure = errors.New("transient error during transcription")

	// ErrPermanentFailure is returned when the service rejected the input and a
	// retry with the same input would fail again
	ErrPermanentFailure = errors.New("permanent error during transcription")

	// ErrInvalidConfig is returned when the transcriber configuration is invalid
	ErrInvalidConfig = errors.New("invalid transcriber configuration")
)
