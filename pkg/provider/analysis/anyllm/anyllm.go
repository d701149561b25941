// Package anyllm provides a risk analyzer backed by
// github.com/mozilla-ai/any-llm-go, a unified multi-provider interface that
// supports OpenAI, Anthropic, Gemini, Ollama, DeepSeek, Mistral, Groq, and more.
//
// Usage:
//
//	a, err := anyllm.New("openai", "gpt-4o-mini", anyllmlib.WithAPIKey("sk-..."))
//	a, err := anyllm.NewAnthropic("claude-3-5-haiku-latest", anyllmlib.WithAPIKey("sk-ant-..."))
package anyllm

import (
	"context"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/callwarden/callwarden/pkg/provider/analysis"
)

// defaultTemperature keeps verdicts stable across identical transcripts.
const defaultTemperature = 0.1

// Analyzer implements analysis.Analyzer by wrapping github.com/mozilla-ai/any-llm-go.
type Analyzer struct {
	backend      anyllmlib.Provider
	providerName string
	model        string
	temperature  float64
}

// New creates a new Analyzer backed by the given LLM provider name.
//
// providerName is one of: "openai", "anthropic", "gemini", "ollama", "deepseek",
// "mistral", "groq", "llamacpp", "llamafile".
//
// model is the specific model to use (e.g., "gpt-4o-mini", "claude-3-5-haiku-latest").
//
// opts are any-llm-go configuration options (e.g., anyllmlib.WithAPIKey, anyllmlib.WithBaseURL).
// If no API key option is provided, the provider will fall back to the relevant
// environment variable (e.g., OPENAI_API_KEY, ANTHROPIC_API_KEY, etc.).
func New(providerName string, model string, opts ...anyllmlib.Option) (*Analyzer, error) {
	if providerName == "" {
		return nil, fmt.Errorf("anyllm: providerName must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}

	backend, err := createBackend(providerName, opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", providerName, err)
	}

	return &Analyzer{
		backend:      backend,
		providerName: strings.ToLower(providerName),
		model:        model,
		temperature:  defaultTemperature,
	}, nil
}

// NewOpenAI creates an Analyzer backed by OpenAI.
// Without options, it reads the OPENAI_API_KEY environment variable.
func NewOpenAI(model string, opts ...anyllmlib.Option) (*Analyzer, error) {
	return New("openai", model, opts...)
}

// NewAnthropic creates an Analyzer backed by Anthropic.
// Without options, it reads the ANTHROPIC_API_KEY environment variable.
func NewAnthropic(model string, opts ...anyllmlib.Option) (*Analyzer, error) {
	return New("anthropic", model, opts...)
}

// NewGemini creates an Analyzer backed by Google Gemini.
// Without options, it reads the GEMINI_API_KEY or GOOGLE_API_KEY environment variable.
func NewGemini(model string, opts ...anyllmlib.Option) (*Analyzer, error) {
	return New("gemini", model, opts...)
}

// NewOllama creates an Analyzer backed by Ollama (local inference).
// Without options, it connects to http://localhost:11434.
func NewOllama(model string, opts ...anyllmlib.Option) (*Analyzer, error) {
	return New("ollama", model, opts...)
}

// NewDeepSeek creates an Analyzer backed by DeepSeek.
// Without options, it reads the DEEPSEEK_API_KEY environment variable.
func NewDeepSeek(model string, opts ...anyllmlib.Option) (*Analyzer, error) {
	return New("deepseek", model, opts...)
}

// NewMistral creates an Analyzer backed by Mistral AI.
// Without options, it reads the MISTRAL_API_KEY environment variable.
func NewMistral(model string, opts ...anyllmlib.Option) (*Analyzer, error) {
	return New("mistral", model, opts...)
}

// NewGroq creates an Analyzer backed by Groq.
// Without options, it reads the GROQ_API_KEY environment variable.
func NewGroq(model string, opts ...anyllmlib.Option) (*Analyzer, error) {
	return New("groq", model, opts...)
}

// NewLlamaCpp creates an Analyzer backed by a running llama.cpp server.
// Without options, it connects to http://127.0.0.1:8080/v1.
func NewLlamaCpp(model string, opts ...anyllmlib.Option) (*Analyzer, error) {
	return New("llamacpp", model, opts...)
}

// NewLlamaFile creates an Analyzer backed by a running llamafile server.
// Without options, it connects to the default llamafile server.
func NewLlamaFile(model string, opts ...anyllmlib.Option) (*Analyzer, error) {
	return New("llamafile", model, opts...)
}

// createBackend creates the underlying any-llm-go provider for the given provider name.
func createBackend(providerName string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(providerName) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	case "llamacpp":
		return llamacpp.New(opts...)
	case "llamafile":
		return llamafile.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: openai, anthropic, gemini, ollama, deepseek, mistral, groq, llamacpp, llamafile", providerName)
	}
}

// Analyze implements analysis.Analyzer.
func (a *Analyzer) Analyze(ctx context.Context, transcript, contextText string) (*analysis.Verdict, error) {
	t := a.temperature
	params := anyllmlib.CompletionParams{
		Model: a.model,
		Messages: []anyllmlib.Message{
			{Role: anyllmlib.RoleSystem, Content: analysis.SystemPrompt},
			{Role: anyllmlib.RoleUser, Content: analysis.UserPrompt(transcript, contextText)},
		},
		Temperature: &t,
	}

	resp, err := a.backend.Completion(ctx, params)
	if err != nil {
		return nil, &analysis.AnalysisError{Provider: a.providerName, Reason: "request", Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &analysis.AnalysisError{Provider: a.providerName, Reason: "empty_response", Err: fmt.Errorf("no choices in response")}
	}

	content := resp.Choices[0].Message.ContentString()
	if content == "" {
		return nil, &analysis.AnalysisError{Provider: a.providerName, Reason: "empty_response", Err: fmt.Errorf("empty message content")}
	}

	verdict, err := analysis.ParseVerdict([]byte(content))
	if err != nil {
		return nil, &analysis.AnalysisError{Provider: a.providerName, Reason: "invalid_verdict", Err: err}
	}
	return verdict, nil
}
