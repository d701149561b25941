// Package whisper provides a whisper-server-backed speech-to-text transcriber.
//
// It submits complete audio samples to a running whisper-server binary (which
// exposes a REST API at POST /inference) as multipart batch requests. Because
// whisper.cpp is a batch engine there is no streaming; each Transcribe call
// maps to exactly one inference request.
package whisper

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

const defaultLanguage = "en"

// Option is a functional option for configuring the whisper Transcriber.
type Option func(*Transcriber)

// WithModel sets the model identifier forwarded to the whisper-server
// (e.g., "base.en", "small"). When empty the server uses whichever model it
// was started with.
func WithModel(model string) Option {
	return func(t *Transcriber) {
		t.model = model
	}
}

// WithLanguage sets the BCP-47 language code sent to the server. Defaults
// to "en".
func WithLanguage(lang string) Option {
	return func(t *Transcriber) {
		t.language = lang
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(t *Transcriber) {
		t.httpClient.Timeout = d
	}
}

// Transcriber implements stt.Transcriber backed by a whisper-server HTTP API.
type Transcriber struct {
	serverURL  string
	model      string
	language   string
	httpClient *http.Client
}

// New creates a new Transcriber that connects to the whisper-server at
// serverURL (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Transcriber, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	t := &Transcriber{
		serverURL:  serverURL,
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// Transcribe posts the audio sample to the /inference endpoint as
// multipart/form-data and returns the transcribed text.
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
	if t.language != "" {
		if err := mw.WriteField("language", t.language); err != nil {
			return stt.Transcript{}, wrapErr(0, fmt.Errorf("write language field: %w", err))
		}
	}
	if t.model != "" {
		if err := mw.WriteField("model", t.model); err != nil {
			return stt.Transcript{}, wrapErr(0, fmt.Errorf("write model field: %w", err))
		}
	}
	if err := mw.Close(); err != nil {
		return stt.Transcript{}, wrapErr(0, fmt.Errorf("close multipart writer: %w", err))
	}

	endpoint := t.serverURL + "/inference"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return stt.Transcript{}, wrapErr(0, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return stt.Transcript{}, wrapErr(0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return stt.Transcript{}, wrapErr(resp.StatusCode, errors.New("non-success inference response"))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return stt.Transcript{}, wrapErr(0, fmt.Errorf("read response body: %w", err))
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return stt.Transcript{}, wrapErr(0, fmt.Errorf("parse JSON response: %w", err))
	}

	return stt.Transcript{Text: result.Text, Language: t.language}, nil
}

// wrapErr builds the typed transcription error for this backend.
func wrapErr(status int, err error) *stt.TranscriptionError {
	return &stt.TranscriptionError{Provider: "whisper", Status: status, Err: err}
}
