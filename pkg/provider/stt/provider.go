// Package stt defines the Transcriber interface for speech-to-text backends.
//
// A transcriber wraps a remote batch transcription API (e.g., ElevenLabs
// Scribe or a whisper-server instance) and converts one complete audio sample
// into text. Implementations make at most one outbound network call per
// Transcribe invocation; retry and backoff policy belongs to the caller.
//
// Implementors must be safe for concurrent use.
package stt

import (
	"context"
	"fmt"
	"strings"
)

// Transcript is the result of transcribing one audio sample.
type Transcript struct {
	// Text is the transcribed text. An empty Text with a nil error means the
	// provider detected no speech in the sample; callers must treat this as a
	// valid outcome, not a failure.
	Text string

	// Confidence is the provider's confidence in the transcription, in [0, 1].
	// Zero when the provider does not report one.
	Confidence float64

	// Language is the BCP-47 language code the provider detected or was
	// configured with. May be empty.
	Language string
}

// IsEmpty reports whether the transcript carries no speech. Whitespace-only
// text counts as empty; some backends emit stray whitespace for silence.
func (t Transcript) IsEmpty() bool {
	return strings.TrimSpace(t.Text) == ""
}

// TranscriptionError is returned when the provider is unreachable, answers
// with a non-success status, or its response cannot be parsed into text.
type TranscriptionError struct {
	// Provider is the backend name (e.g., "elevenlabs", "whisper").
	Provider string

	// Status is the HTTP status code, when the failure came from an HTTP
	// response. Zero for transport-level failures.
	Status int

	// Err is the underlying cause.
	Err error
}

func (e *TranscriptionError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: transcription failed with status %d: %v", e.Provider, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: transcription failed: %v", e.Provider, e.Err)
}

func (e *TranscriptionError) Unwrap() error { return e.Err }

// Transcriber is the abstraction over any speech-to-text backend.
//
// Transcribe converts one complete, self-contained audio sample into a
// Transcript. The caller owns chunk boundaries; audio must be a full encoded
// sample, not a partial frame. Implementations must honour ctx cancellation
// and deadlines, reporting them as a *TranscriptionError like any other
// provider failure.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (Transcript, error)
}
