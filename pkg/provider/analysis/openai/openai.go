// Package openai provides a risk analyzer backed by the OpenAI API.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/callwarden/callwarden/pkg/provider/analysis"
)

// defaultTemperature keeps the model's answer close to deterministic so that
// identical transcripts yield stable verdicts.
const defaultTemperature = 0.1

// Analyzer implements analysis.Analyzer using the OpenAI chat completions API.
type Analyzer struct {
	client      oai.Client
	model       string
	temperature float64
}

// config holds optional configuration for the analyzer.
type config struct {
	baseURL     string
	timeout     time.Duration
	temperature float64
}

// Option is a functional option for Analyzer.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL. Useful for tests and
// OpenAI-compatible gateways.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithTemperature overrides the default sampling temperature.
func WithTemperature(t float64) Option {
	return func(c *config) {
		c.temperature = t
	}
}

// New constructs a new OpenAI-backed Analyzer.
func New(apiKey string, model string, opts ...Option) (*Analyzer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	cfg := &config{temperature: defaultTemperature}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	client := oai.NewClient(reqOpts...)
	return &Analyzer{client: client, model: model, temperature: cfg.temperature}, nil
}

// Analyze implements analysis.Analyzer. It requests a JSON-object response
// and validates it with analysis.ParseVerdict.
func (a *Analyzer) Analyze(ctx context.Context, transcript, contextText string) (*analysis.Verdict, error) {
	params := oai.ChatCompletionNewParams{
		Model: shared.ChatModel(a.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(analysis.SystemPrompt),
			oai.UserMessage(analysis.UserPrompt(transcript, contextText)),
		},
		Temperature: param.NewOpt(a.temperature),
		ResponseFormat: oai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	}

	resp, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, &analysis.AnalysisError{Provider: "openai", Reason: "request", Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &analysis.AnalysisError{Provider: "openai", Reason: "empty_response", Err: fmt.Errorf("no choices in response")}
	}

	verdict, err := analysis.ParseVerdict([]byte(resp.Choices[0].Message.Content))
	if err != nil {
		return nil, &analysis.AnalysisError{Provider: "openai", Reason: "invalid_verdict", Err: err}
	}
	return verdict, nil
}
