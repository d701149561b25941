// Package mock provides a test double for the stt.Transcriber interface.
//
// Use Transcriber in unit tests to feed controlled transcripts to the
// pipeline without a live speech-to-text backend.
//
// Example:
//
//	tr := &mock.Transcriber{
//	    Result: stt.Transcript{Text: "hello"},
//	}
//	transcript, err := tr.Transcribe(ctx, audio)
package mock

import (
	"context"
	"sync"

	"github.com/callwarden/callwarden/pkg/provider/stt"
)

// Call records a single invocation of Transcribe.
type Call struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Audio is the raw audio passed to Transcribe.
	Audio []byte
}

// Transcriber is a mock implementation of stt.Transcriber.
// Zero values cause Transcribe to return an empty Transcript and nil error.
type Transcriber struct {
	mu sync.Mutex

	// Result is returned by Transcribe when Results is empty.
	Result stt.Transcript

	// Results, when non-empty, is consumed one entry per call, in order. After
	// the last entry is consumed, Result is returned for subsequent calls.
	Results []stt.Transcript

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// TranscribeFunc, if non-nil, overrides all other fields.
	TranscribeFunc func(ctx context.Context, audio []byte) (stt.Transcript, error)

	// Calls records every invocation of Transcribe in order.
	Calls []Call
}

// Transcribe implements stt.Transcriber.
func (t *Transcriber) Transcribe(ctx context.Context, audio []byte) (stt.Transcript, error) {
	t.mu.Lock()
	t.Calls = append(t.Calls, Call{Ctx: ctx, Audio: audio})
	fn := t.TranscribeFunc
	result := t.Result
	if len(t.Results) > 0 {
		result = t.Results[0]
		t.Results = t.Results[1:]
	}
	err := t.Err
	t.mu.Unlock()

	if fn != nil {
		return fn(ctx, audio)
	}
	if err != nil {
		return stt.Transcript{}, err
	}
	return result, nil
}

// CallCount returns the number of Transcribe invocations so far.
func (t *Transcriber) CallCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.Calls)
}
