// Package deepgram implements the transcription.Transcriber interface
// against Deepgram's prerecorded speech-to-text REST API.
package deepgram
