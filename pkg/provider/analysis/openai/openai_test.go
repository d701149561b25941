package openai_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/callwarden/callwarden/pkg/provider/analysis"
	"github.com/callwarden/callwarden/pkg/provider/analysis/openai"
)

// newMockServer creates a chat-completions test server that answers every
// request with the given assistant message content.
func newMockServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"model":   "gpt-4o-mini",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message": map[string]any{
					"role":    "assistant",
					"content": content,
				},
			}},
		})
	}))
}

func TestNew_EmptyAPIKey_ReturnsError(t *testing.T) {
	_, err := openai.New("", "gpt-4o-mini")
	if err == nil {
		t.Fatal("expected error for empty apiKey, got nil")
	}
}

func TestNew_EmptyModel_ReturnsError(t *testing.T) {
	_, err := openai.New("sk-test", "")
	if err == nil {
		t.Fatal("expected error for empty model, got nil")
	}
}

func TestAnalyze_ValidVerdict_ReturnsParsed(t *testing.T) {
	srv := newMockServer(t, `{"risk_level": "high", "scam_type": "otp", "reasons": ["asked for one-time code"], "confidence": 0.95}`)
	defer srv.Close()

	a, err := openai.New("sk-test", "gpt-4o-mini", openai.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	v, err := a.Analyze(context.Background(), "read me the code from your phone", "this is your bank calling")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if v.RiskLevel != analysis.RiskHigh {
		t.Errorf("RiskLevel = %q; want %q", v.RiskLevel, analysis.RiskHigh)
	}
	if v.ScamType != "otp" {
		t.Errorf("ScamType = %q; want %q", v.ScamType, "otp")
	}
}

func TestAnalyze_FencedVerdict_IsAccepted(t *testing.T) {
	srv := newMockServer(t, "```json\n{\"risk_level\": \"low\", \"reasons\": [], \"confidence\": 0.2}\n```")
	defer srv.Close()

	a, _ := openai.New("sk-test", "gpt-4o-mini", openai.WithBaseURL(srv.URL))
	v, err := a.Analyze(context.Background(), "hi grandma", "")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if v.RiskLevel != analysis.RiskLow {
		t.Errorf("RiskLevel = %q; want %q", v.RiskLevel, analysis.RiskLow)
	}
}

func TestAnalyze_InvalidVerdict_ReturnsAnalysisError(t *testing.T) {
	srv := newMockServer(t, `{"risk_level": "catastrophic", "confidence": 0.9}`)
	defer srv.Close()

	a, _ := openai.New("sk-test", "gpt-4o-mini", openai.WithBaseURL(srv.URL))
	_, err := a.Analyze(context.Background(), "hello", "")
	if err == nil {
		t.Fatal("expected error for invalid verdict, got nil")
	}

	var aerr *analysis.AnalysisError
	if !errors.As(err, &aerr) {
		t.Fatalf("error type = %T; want *analysis.AnalysisError", err)
	}
	if aerr.Provider != "openai" {
		t.Errorf("Provider = %q; want %q", aerr.Provider, "openai")
	}
	if aerr.Reason != "invalid_verdict" {
		t.Errorf("Reason = %q; want %q", aerr.Reason, "invalid_verdict")
	}
}

func TestAnalyze_ServerError_ReturnsAnalysisError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "rate limited"}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	a, _ := openai.New("sk-test", "gpt-4o-mini", openai.WithBaseURL(srv.URL))
	_, err := a.Analyze(context.Background(), "hello", "")
	if err == nil {
		t.Fatal("expected error for 429 response, got nil")
	}

	var aerr *analysis.AnalysisError
	if !errors.As(err, &aerr) {
		t.Fatalf("error type = %T; want *analysis.AnalysisError", err)
	}
	if aerr.Reason != "request" {
		t.Errorf("Reason = %q; want %q", aerr.Reason, "request")
	}
}

func TestAnalyze_SendsSystemAndUserMessages(t *testing.T) {
	var gotMessages []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []map[string]any `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotMessages = req.Messages

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{
				"message": map[string]any{
					"role":    "assistant",
					"content": `{"risk_level": "low", "reasons": [], "confidence": 0.1}`,
				},
			}},
		})
	}))
	defer srv.Close()

	a, _ := openai.New("sk-test", "gpt-4o-mini", openai.WithBaseURL(srv.URL))
	if _, err := a.Analyze(context.Background(), "segment text", "prior context"); err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if len(gotMessages) != 2 {
		t.Fatalf("len(messages) = %d; want 2", len(gotMessages))
	}
	if role := gotMessages[0]["role"]; role != "system" {
		t.Errorf("first message role = %v; want system", role)
	}
	if role := gotMessages[1]["role"]; role != "user" {
		t.Errorf("second message role = %v; want user", role)
	}
}
