// Package transcription defines the interface for speech-to-text services
// used by the audio processing pipeline. Concrete implementations live under
// internal/platform (e.g. the Deepgram client) so the core never depends on
// a specific vendor.
package transcription
