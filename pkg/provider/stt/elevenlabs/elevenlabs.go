// Package elevenlabs provides an ElevenLabs-backed speech-to-text transcriber
// using the Scribe batch API. It implements the stt.Transcriber interface.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/callwarden/callwarden/pkg/provider/stt"
)

const (
	defaultBaseURL  = "https://api.elevenlabs.io"
	sttPath         = "/v1/speech-to-text"
	defaultModel    = "scribe_v2"
	defaultLanguage = "en"
)

// Option is a functional option for configuring the ElevenLabs Transcriber.
type Option func(*Transcriber)

// WithModel sets the Scribe model ID (e.g., "scribe_v2").
func WithModel(model string) Option {
	return func(t *Transcriber) {
		t.model = model
	}
}

// WithLanguage sets the BCP-47 language code sent with each request.
func WithLanguage(lang string) Option {
	return func(t *Transcriber) {
		t.language = lang
	}
}

// WithBaseURL overrides the default API endpoint. Useful for tests and
// API-compatible gateways.
func WithBaseURL(baseURL string) Option {
	return func(t *Transcriber) {
		t.baseURL = baseURL
	}
}

// WithTimeout sets a per-request HTTP timeout. A caller-supplied context
// deadline still applies on top of this.
func WithTimeout(d time.Duration) Option {
	return func(t *Transcriber) {
		t.httpClient.Timeout = d
	}
}

// Transcriber implements stt.Transcriber backed by the ElevenLabs Scribe API.
type Transcriber struct {
	apiKey     string
	baseURL    string
	model      string
	language   string
	httpClient *http.Client
}

// New creates a new ElevenLabs Transcriber. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Transcriber, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	t := &Transcriber{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		model:      defaultModel,
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// sttResponse is the JSON body returned by POST /v1/speech-to-text.
type sttResponse struct {
	Text         string  `json:"text"`
	LanguageCode string  `json:"language_code"`
	Confidence   float64 `json:"language_probability"`
}

// Transcribe posts the audio sample to the Scribe endpoint as multipart form
// data and returns the transcript. Exactly one outbound request is made.
func (t *Transcriber) Transcribe(ctx context.Context, audio []byte) (stt.Transcript, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return stt.Transcript{}, wrapErr(0, fmt.Errorf("create form file: %w", err))
	}
	if _, err := fw.Write(audio); err != nil {
		return stt.Transcript{}, wrapErr(0, fmt.Errorf("write audio data: %w", err))
	}
	if err := mw.WriteField("model_id", t.model); err != nil {
		return stt.Transcript{}, wrapErr(0, fmt.Errorf("write model_id field: %w", err))
	}
	if t.language != "" {
		if err := mw.WriteField("language_code", t.language); err != nil {
			return stt.Transcript{}, wrapErr(0, fmt.Errorf("write language_code field: %w", err))
		}
	}
	if err := mw.Close(); err != nil {
		return stt.Transcript{}, wrapErr(0, fmt.Errorf("close multipart writer: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+sttPath, &body)
	if err != nil {
		return stt.Transcript{}, wrapErr(0, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("xi-api-key", t.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return stt.Transcript{}, wrapErr(0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return stt.Transcript{}, wrapErr(resp.StatusCode, fmt.Errorf("server response: %s", bytes.TrimSpace(detail)))
	}

	var sr sttResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return stt.Transcript{}, wrapErr(0, fmt.Errorf("parse JSON response: %w", err))
	}

	lang := sr.LanguageCode
	if lang == "" {
		lang = t.language
	}
	return stt.Transcript{
		Text:       sr.Text,
		Confidence: sr.Confidence,
		Language:   lang,
	}, nil
}

// wrapErr builds the typed transcription error for this backend.
func wrapErr(status int, err error) *stt.TranscriptionError {
	return &stt.TranscriptionError{Provider: "elevenlabs", Status: status, Err: err}
}
