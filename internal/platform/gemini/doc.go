// Package gemini implements the summarization.Summarizer interface using
// Google's Gemini API.
//
// This package is an infrastructure adapter: it translates between the
// application's summarization contract and the external Gemini service
// without exposing vendor details to the core application. It handles
// prompt construction, retry logic with exponential backoff for transient
// errors, and classification of content-filter and malformed-response
// outcomes into the summarization package's error taxonomy.
package gemini
