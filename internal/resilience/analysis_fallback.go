package resilience

import (
	"context"

	"github.com/callwarden/callwarden/pkg/provider/analysis"
)

// AnalysisFallback implements [analysis.Analyzer] with automatic failover
// across multiple analysis backends. Each backend has its own circuit breaker.
//
// Failover only ever substitutes one real model's verdict for another's. When
// every backend fails, the error is surfaced to the caller; no default verdict
// is synthesised.
type AnalysisFallback struct {
	group *FallbackGroup[analysis.Analyzer]
}

// Compile-time interface assertion.
var _ analysis.Analyzer = (*AnalysisFallback)(nil)

// NewAnalysisFallback creates an [AnalysisFallback] with primary as the
// preferred backend.
func NewAnalysisFallback(primary analysis.Analyzer, primaryName string, cfg FallbackConfig) *AnalysisFallback {
	return &AnalysisFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional analyzer as a fallback.
func (f *AnalysisFallback) AddFallback(name string, a analysis.Analyzer) {
	f.group.AddFallback(name, a)
}

// Analyze submits the transcript to the first healthy backend and returns its
// verdict.
func (f *AnalysisFallback) Analyze(ctx context.Context, transcript, contextText string) (*analysis.Verdict, error) {
	return ExecuteWithResult(f.group, func(a analysis.Analyzer) (*analysis.Verdict, error) {
		return a.Analyze(ctx, transcript, contextText)
	})
}
