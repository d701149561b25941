// Package analysis defines the Analyzer interface for LLM-backed scam risk
// assessment and the Verdict structure it produces.
//
// An analyzer wraps a generative-language API (e.g., OpenAI, Gemini through
// any-llm-go) and exposes a single operation: given the transcript of the
// latest audio segment and the flattened conversation context, return a
// structured risk verdict. Implementations make exactly one outbound call per
// Analyze invocation and never retry; retry policy belongs to the caller.
//
// Implementors must be safe for concurrent use.
package analysis

import (
	"context"
	"fmt"
)

// SystemPrompt is the instruction block sent to the model ahead of every
// analysis request. The model must answer with a bare JSON object so that
// ParseVerdict can validate it strictly.
const SystemPrompt = "You are an elite fraud detection AI. Analyze the transcript for social engineering. " +
	"If you detect requests for 'Gift Cards', 'Crypto', 'OTP', or 'Immediate Action' " +
	"under threat, you MUST classify as HIGH risk. " +
	"Respond ONLY in valid JSON with keys: risk_level (low|medium|high), " +
	"scam_type (string), reasons (list), and confidence (0.0-1.0)."

// UserPrompt assembles the per-request prompt from the current transcript and
// the flattened prior context. contextText may be empty for the first chunk
// of a call.
func UserPrompt(transcript, contextText string) string {
	if contextText == "" {
		return "New Audio Segment to Analyze: " + transcript
	}
	return fmt.Sprintf("Previous Context: %s\nNew Audio Segment to Analyze: %s", contextText, transcript)
}

// AnalysisError is returned when the provider is unreachable, times out, or
// produces structured output that fails validation. Malformed output is
// rejected rather than coerced; silently repairing the model's answer would
// hide detection-quality problems from the caller.
type AnalysisError struct {
	// Provider is the backend name (e.g., "openai", "gemini").
	Provider string

	// Reason is a short machine-readable cause ("request", "empty_response",
	// "invalid_verdict").
	Reason string

	// Err is the underlying cause.
	Err error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("%s: analysis failed (%s): %v", e.Provider, e.Reason, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// Analyzer is the abstraction over any risk-analysis backend.
//
// Analyze submits the transcript and context to the model and returns the
// validated verdict. transcript must be non-empty; contextText may be empty.
// Implementations must honour ctx cancellation and deadlines, reporting them
// as a *AnalysisError like any other provider failure.
type Analyzer interface {
	Analyze(ctx context.Context, transcript, contextText string) (*Verdict, error)
}
