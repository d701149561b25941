// Package pipeline orchestrates the per-chunk processing flow: decode the
// payload, transcribe it, fold the transcript into the session's context
// window, and run risk analysis over transcript plus context.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/callwarden/callwarden/internal/chunk"
	"github.com/callwarden/callwarden/internal/observe"
	"github.com/callwarden/callwarden/internal/session"
	"github.com/callwarden/callwarden/pkg/provider/analysis"
	"github.com/callwarden/callwarden/pkg/provider/stt"
)

// Stage identifies the step of chunk processing in which a failure occurred.
type Stage string

const (
	StageDecode     Stage = "decode"
	StageTranscribe Stage = "transcribe"
	StageAppend     Stage = "append"
	StageAnalyze    Stage = "analyze"
)

// StageError reports a chunk-processing failure together with the stage that
// produced it. The wrapped error carries the provider-specific detail.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Result is the outcome of processing one audio chunk.
type Result struct {
	// SessionID identifies the call session the chunk belongs to.
	SessionID string `json:"session_id"`

	// ChunkID is the caller-supplied chunk identifier, echoed back.
	ChunkID uint64 `json:"chunk_id"`

	// Silent reports that the chunk carried no speech. When true, the
	// window was not touched and no analysis ran; all remaining fields
	// except SessionID and ChunkID are zero.
	Silent bool `json:"silent"`

	// Transcript is the text recognised in this chunk.
	Transcript string `json:"transcript,omitempty"`

	// Context is the flattened window supplied to analysis, with this
	// chunk's fragment as its last entry.
	Context string `json:"context,omitempty"`

	// Verdict is the risk assessment for this chunk. Nil when Silent.
	Verdict *analysis.Verdict `json:"verdict,omitempty"`

	// WindowLen is the number of fragments in the window after the append.
	WindowLen int `json:"window_len"`

	// Evicted is the number of fragments the append pushed out of the
	// window, by age or by count.
	Evicted int `json:"evicted"`
}

// Option configures a [Pipeline].
type Option func(*Pipeline)

// WithSTTTimeout bounds each transcription call. Zero means no bound beyond
// the request context.
func WithSTTTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.sttTimeout = d }
}

// WithAnalysisTimeout bounds each analysis call. Zero means no bound beyond
// the request context.
func WithAnalysisTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.analysisTimeout = d }
}

// WithMetrics overrides the metrics sink, primarily for tests.
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// Pipeline runs the decode, transcribe, append and analyze stages for every
// incoming chunk and keeps the per-session context window current.
//
// Per-session ordering: the session lock is held across append, flatten and
// analyze, so two chunks for the same session cannot interleave their window
// mutations and every analysis sees a stable snapshot that ends with the
// chunk it is analysing. Transcription runs outside the lock; holding it
// through provider latency would serialise unrelated network waits.
type Pipeline struct {
	registry    *session.Registry
	transcriber stt.Transcriber
	analyzer    analysis.Analyzer

	sttTimeout      time.Duration
	analysisTimeout time.Duration
	metrics         *observe.Metrics
}

// New creates a Pipeline. The registry, transcriber and analyzer are all
// required.
func New(registry *session.Registry, transcriber stt.Transcriber, analyzer analysis.Analyzer, opts ...Option) (*Pipeline, error) {
	if registry == nil {
		return nil, errors.New("session registry is required")
	}
	if transcriber == nil {
		return nil, errors.New("transcriber is required")
	}
	if analyzer == nil {
		return nil, errors.New("analyzer is required")
	}
	p := &Pipeline{
		registry:    registry,
		transcriber: transcriber,
		analyzer:    analyzer,
		metrics:     observe.DefaultMetrics(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Process runs one chunk through the pipeline and returns its result. A
// non-nil error is always a *StageError naming the failed stage.
//
// Failure isolation: a decode or transcription failure leaves the session's
// window untouched. An analysis failure does not unwind the append; the
// fragment is real history and stays in the window.
func (p *Pipeline) Process(ctx context.Context, sessionID string, chunkID uint64, payload string) (*Result, error) {
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "pipeline.process", trace.WithAttributes(
		attribute.String("session.id", sessionID),
		attribute.Int64("chunk.id", int64(chunkID)),
	))
	defer span.End()
	defer func() {
		p.metrics.PipelineDuration.Record(ctx, time.Since(start).Seconds())
	}()

	log := observe.Logger(ctx).With("session_id", sessionID, "chunk_id", chunkID)

	// Validation comes first: an empty or malformed payload is a decode
	// failure regardless of its length.
	audio, err := chunk.Decode(payload)
	if err != nil {
		p.metrics.RecordChunk(ctx, "failed")
		return nil, &StageError{Stage: StageDecode, Err: err}
	}

	// Valid payloads below the size floor cannot hold intelligible speech.
	// They are silence, not an error.
	if chunk.TooShort(payload) {
		log.Debug("chunk below minimum payload size, treating as silence")
		return p.silentResult(ctx, sessionID, chunkID), nil
	}

	transcript, err := p.transcribe(ctx, audio)
	if err != nil {
		log.Warn("transcription failed", "error", err)
		p.metrics.RecordProviderError(ctx, providerName(err, "stt"), "stt")
		p.metrics.RecordChunk(ctx, "failed")
		return nil, &StageError{Stage: StageTranscribe, Err: err}
	}
	if transcript.IsEmpty() {
		log.Debug("no speech recognised in chunk")
		return p.silentResult(ctx, sessionID, chunkID), nil
	}

	sess, created := p.lockSession(sessionID)
	defer sess.Unlock()
	if created {
		p.metrics.ActiveSessions.Add(ctx, 1)
		log.Info("session created")
	}

	evicted := sess.Window.Append(transcript.Text, chunkID)
	p.metrics.RecordEvictions(ctx, evicted)
	contextText := sess.Window.Flatten()
	windowLen := sess.Window.Len()

	sess.Stats.ChunkCount++
	sess.Stats.EvictedTotal += uint64(evicted)
	sess.Touch(time.Now())

	verdict, err := p.analyze(ctx, transcript.Text, contextText)
	if err != nil {
		log.Warn("analysis failed, fragment retained in window", "error", err)
		p.metrics.RecordProviderError(ctx, providerName(err, "analysis"), "analysis")
		p.metrics.RecordChunk(ctx, "failed")
		return nil, &StageError{Stage: StageAnalyze, Err: err}
	}

	sess.Stats.LastRiskLevel = string(verdict.RiskLevel)
	p.metrics.RecordVerdict(ctx, string(verdict.RiskLevel))
	p.metrics.RecordChunk(ctx, "analyzed")
	log.Info("chunk analyzed",
		"risk_level", verdict.RiskLevel,
		"confidence", verdict.Confidence,
		"window_len", windowLen,
		"evicted", evicted)

	return &Result{
		SessionID:  sessionID,
		ChunkID:    chunkID,
		Transcript: transcript.Text,
		Context:    contextText,
		Verdict:    verdict,
		WindowLen:  windowLen,
		Evicted:    evicted,
	}, nil
}

// silentResult records a silent chunk against the session without mutating
// its window. The session is still created and touched so that a stream of
// silence keeps the call alive in the registry.
func (p *Pipeline) silentResult(ctx context.Context, sessionID string, chunkID uint64) *Result {
	sess, created := p.lockSession(sessionID)
	if created {
		p.metrics.ActiveSessions.Add(ctx, 1)
	}
	sess.Stats.ChunkCount++
	sess.Touch(time.Now())
	sess.Unlock()

	p.metrics.RecordChunk(ctx, "silent")
	return &Result{SessionID: sessionID, ChunkID: chunkID, Silent: true}
}

// lockSession returns the session for id with its lock held, reporting
// whether this call created it. A session looked up just before the idle
// sweep removed it is detected after the lock is acquired and the lookup is
// retried, so a chunk never lands its fragment in a session the registry no
// longer tracks.
func (p *Pipeline) lockSession(id string) (*session.Session, bool) {
	for {
		sess, existed := p.registry.GetOrCreate(id)
		sess.Lock()
		if !sess.Expired() {
			return sess, !existed
		}
		sess.Unlock()
	}
}

// Transcribe runs only the decode and transcribe stages against a standalone
// payload, touching no session state. Silent payloads (valid but below the
// size floor) yield an empty transcript. A non-nil error is a *StageError.
func (p *Pipeline) Transcribe(ctx context.Context, payload string) (stt.Transcript, error) {
	audio, err := chunk.Decode(payload)
	if err != nil {
		return stt.Transcript{}, &StageError{Stage: StageDecode, Err: err}
	}
	if chunk.TooShort(payload) {
		return stt.Transcript{}, nil
	}
	transcript, err := p.transcribe(ctx, audio)
	if err != nil {
		p.metrics.RecordProviderError(ctx, providerName(err, "stt"), "stt")
		return stt.Transcript{}, &StageError{Stage: StageTranscribe, Err: err}
	}
	return transcript, nil
}

// Analyze runs only the risk analysis stage over caller-supplied transcript
// and context text, with no session window involved. A non-nil error is a
// *StageError.
func (p *Pipeline) Analyze(ctx context.Context, transcript, contextText string) (*analysis.Verdict, error) {
	verdict, err := p.analyze(ctx, transcript, contextText)
	if err != nil {
		p.metrics.RecordProviderError(ctx, providerName(err, "analysis"), "analysis")
		return nil, &StageError{Stage: StageAnalyze, Err: err}
	}
	p.metrics.RecordVerdict(ctx, string(verdict.RiskLevel))
	return verdict, nil
}

func (p *Pipeline) transcribe(ctx context.Context, audio []byte) (stt.Transcript, error) {
	if p.sttTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.sttTimeout)
		defer cancel()
	}
	start := time.Now()
	transcript, err := p.transcriber.Transcribe(ctx, audio)
	p.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
	return transcript, err
}

func (p *Pipeline) analyze(ctx context.Context, transcript, contextText string) (*analysis.Verdict, error) {
	if p.analysisTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.analysisTimeout)
		defer cancel()
	}
	start := time.Now()
	verdict, err := p.analyzer.Analyze(ctx, transcript, contextText)
	p.metrics.AnalysisDuration.Record(ctx, time.Since(start).Seconds())
	return verdict, err
}

// providerName extracts the provider label from a typed provider error,
// falling back to the stage kind when the error carries none.
func providerName(err error, fallback string) string {
	var te *stt.TranscriptionError
	if errors.As(err, &te) && te.Provider != "" {
		return te.Provider
	}
	var ae *analysis.AnalysisError
	if errors.As(err, &ae) && ae.Provider != "" {
		return ae.Provider
	}
	return fallback
}
