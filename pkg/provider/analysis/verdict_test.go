package analysis_test

import (
	"strings"
	"testing"

	"github.com/callwarden/callwarden/pkg/provider/analysis"
)

func TestParseVerdict_ValidInput(t *testing.T) {
	input := `{
		"risk_level": "high",
		"scam_type": "gift_card",
		"reasons": ["urgency", "payment via gift cards"],
		"confidence": 0.92
	}`

	v, err := analysis.ParseVerdict([]byte(input))
	if err != nil {
		t.Fatalf("ParseVerdict: %v", err)
	}
	if v.RiskLevel != analysis.RiskHigh {
		t.Errorf("RiskLevel = %q; want %q", v.RiskLevel, analysis.RiskHigh)
	}
	if v.ScamType != "gift_card" {
		t.Errorf("ScamType = %q; want %q", v.ScamType, "gift_card")
	}
	if len(v.Reasons) != 2 {
		t.Errorf("len(Reasons) = %d; want 2", len(v.Reasons))
	}
	if v.Confidence != 0.92 {
		t.Errorf("Confidence = %v; want 0.92", v.Confidence)
	}
}

func TestParseVerdict_UppercaseRiskLevel_Normalised(t *testing.T) {
	input := `{"risk_level": "HIGH", "reasons": [], "confidence": 0.8}`
	v, err := analysis.ParseVerdict([]byte(input))
	if err != nil {
		t.Fatalf("ParseVerdict: %v", err)
	}
	if v.RiskLevel != analysis.RiskHigh {
		t.Errorf("RiskLevel = %q; want %q", v.RiskLevel, analysis.RiskHigh)
	}
}

func TestParseVerdict_MissingReasons_NormalisesToEmptyList(t *testing.T) {
	input := `{"risk_level": "low", "confidence": 0.3}`
	v, err := analysis.ParseVerdict([]byte(input))
	if err != nil {
		t.Fatalf("ParseVerdict: %v", err)
	}
	if v.Reasons == nil {
		t.Error("Reasons is nil; want empty slice")
	}
	if len(v.Reasons) != 0 {
		t.Errorf("len(Reasons) = %d; want 0", len(v.Reasons))
	}
}

func TestParseVerdict_MissingScamType_IsAllowed(t *testing.T) {
	input := `{"risk_level": "medium", "reasons": ["vague threat"], "confidence": 0.5}`
	v, err := analysis.ParseVerdict([]byte(input))
	if err != nil {
		t.Fatalf("ParseVerdict: %v", err)
	}
	if v.ScamType != "" {
		t.Errorf("ScamType = %q; want empty", v.ScamType)
	}
}

func TestParseVerdict_MarkdownFences_Stripped(t *testing.T) {
	input := "```json\n{\"risk_level\": \"low\", \"reasons\": [], \"confidence\": 0.1}\n```"
	v, err := analysis.ParseVerdict([]byte(input))
	if err != nil {
		t.Fatalf("ParseVerdict: %v", err)
	}
	if v.RiskLevel != analysis.RiskLow {
		t.Errorf("RiskLevel = %q; want %q", v.RiskLevel, analysis.RiskLow)
	}
}

func TestParseVerdict_RejectsInvalidInput(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{"not json", "the call seems fine to me"},
		{"missing risk_level", `{"reasons": [], "confidence": 0.5}`},
		{"unknown risk_level", `{"risk_level": "severe", "reasons": [], "confidence": 0.5}`},
		{"missing confidence", `{"risk_level": "low", "reasons": []}`},
		{"confidence below range", `{"risk_level": "low", "reasons": [], "confidence": -0.1}`},
		{"confidence above range", `{"risk_level": "low", "reasons": [], "confidence": 1.5}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := analysis.ParseVerdict([]byte(tc.input)); err == nil {
				t.Errorf("ParseVerdict(%q) succeeded; want error", tc.input)
			}
		})
	}
}

func TestRiskLevel_IsValid(t *testing.T) {
	for _, level := range []analysis.RiskLevel{analysis.RiskLow, analysis.RiskMedium, analysis.RiskHigh} {
		if !level.IsValid() {
			t.Errorf("IsValid() = false for %q", level)
		}
	}
	if analysis.RiskLevel("critical").IsValid() {
		t.Error(`IsValid() = true for "critical"; want false`)
	}
}

func TestUserPrompt_IncludesContextWhenPresent(t *testing.T) {
	p := analysis.UserPrompt("send me gift cards", "hello. who is this.")
	if !strings.Contains(p, "Previous Context: hello. who is this.") {
		t.Errorf("prompt missing context section: %q", p)
	}
	if !strings.Contains(p, "New Audio Segment to Analyze: send me gift cards") {
		t.Errorf("prompt missing transcript section: %q", p)
	}
}

func TestUserPrompt_OmitsContextWhenEmpty(t *testing.T) {
	p := analysis.UserPrompt("hello", "")
	if strings.Contains(p, "Previous Context") {
		t.Errorf("prompt should omit context section when empty: %q", p)
	}
}
