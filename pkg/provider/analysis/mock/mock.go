// Package mock provides a mock analysis.Analyzer for testing.
package mock

import (
	"context"
	"sync"

	"github.com/callwarden/callwarden/pkg/provider/analysis"
)

// Call records a single Analyze invocation.
type Call struct {
	Ctx         context.Context
	Transcript  string
	ContextText string
}

// Analyzer is a configurable mock implementation of analysis.Analyzer.
//
// The zero value returns a low-risk verdict for every call. Set Verdict,
// Verdicts, or Err to control the responses, or AnalyzeFunc to take over
// entirely.
type Analyzer struct {
	mu sync.Mutex

	// Verdict is returned by every Analyze call when Verdicts is empty.
	Verdict *analysis.Verdict

	// Verdicts are consumed in order, one per call. When exhausted,
	// Verdict (or the default) is returned.
	Verdicts []*analysis.Verdict

	// Err, when set, is returned by every Analyze call.
	Err error

	// AnalyzeFunc, when set, overrides all other fields.
	AnalyzeFunc func(ctx context.Context, transcript, contextText string) (*analysis.Verdict, error)

	// Calls records every invocation.
	Calls []Call
}

// Analyze implements analysis.Analyzer.
func (a *Analyzer) Analyze(ctx context.Context, transcript, contextText string) (*analysis.Verdict, error) {
	a.mu.Lock()
	a.Calls = append(a.Calls, Call{Ctx: ctx, Transcript: transcript, ContextText: contextText})

	if a.AnalyzeFunc != nil {
		fn := a.AnalyzeFunc
		a.mu.Unlock()
		return fn(ctx, transcript, contextText)
	}
	defer a.mu.Unlock()

	if a.Err != nil {
		return nil, a.Err
	}
	if len(a.Verdicts) > 0 {
		v := a.Verdicts[0]
		a.Verdicts = a.Verdicts[1:]
		return v, nil
	}
	if a.Verdict != nil {
		return a.Verdict, nil
	}
	return &analysis.Verdict{
		RiskLevel:  analysis.RiskLow,
		Reasons:    []string{},
		Confidence: 0.5,
	}, nil
}

// CallCount returns the number of recorded Analyze invocations.
func (a *Analyzer) CallCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.Calls)
}
