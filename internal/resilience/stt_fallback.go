package resilience

import (
	"context"

	"github.com/callwarden/callwarden/pkg/provider/stt"
)

// STTFallback implements [stt.Transcriber] with automatic failover across
// multiple STT backends. Each backend has its own circuit breaker; when the
// primary fails or its breaker is open, the next healthy fallback is tried.
type STTFallback struct {
	group *FallbackGroup[stt.Transcriber]
}

// Compile-time interface assertion.
var _ stt.Transcriber = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
func NewSTTFallback(primary stt.Transcriber, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional transcriber as a fallback.
func (f *STTFallback) AddFallback(name string, t stt.Transcriber) {
	f.group.AddFallback(name, t)
}

// Transcribe submits the audio to the first healthy backend and returns its
// transcript. Each backend makes at most one outbound call per attempt; the
// group never retries the same backend within a single Transcribe.
func (f *STTFallback) Transcribe(ctx context.Context, audio []byte) (stt.Transcript, error) {
	return ExecuteWithResult(f.group, func(t stt.Transcriber) (stt.Transcript, error) {
		return t.Transcribe(ctx, audio)
	})
}
