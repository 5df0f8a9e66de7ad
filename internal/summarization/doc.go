// Package summarization defines the interface for text summarization
// services used by the audio processing pipeline. The Gemini implementation
// lives under internal/platform/gemini.
package summarization
