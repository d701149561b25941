package analysis

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RiskLevel classifies how likely the analyzed segment is part of a scam.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// IsValid reports whether r is a recognised risk level.
func (r RiskLevel) IsValid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	}
	return false
}

// Verdict is the structured risk judgment for one transcript segment.
// A Verdict is produced fresh per analysis call and never mutated after
// construction.
type Verdict struct {
	// RiskLevel is the overall classification.
	RiskLevel RiskLevel `json:"risk_level"`

	// ScamType names the suspected scam category. Empty when the model did
	// not identify one.
	ScamType string `json:"scam_type,omitempty"`

	// Reasons lists the indicators behind the classification, in the order
	// the model reported them.
	Reasons []string `json:"reasons"`

	// Confidence is the model's confidence in the verdict, in [0, 1].
	Confidence float64 `json:"confidence"`
}

// rawVerdict mirrors the model's JSON answer with pointer fields so that
// missing keys can be told apart from zero values.
type rawVerdict struct {
	RiskLevel  *string  `json:"risk_level"`
	ScamType   string   `json:"scam_type"`
	Reasons    []string `json:"reasons"`
	Confidence *float64 `json:"confidence"`
}

// ParseVerdict validates the model's JSON answer and returns the verdict.
// It rejects rather than coerces: a missing risk_level or confidence, an
// unrecognised risk level, or a confidence outside [0, 1] is an error.
// A missing reasons key normalises to an empty list; scam_type is optional.
//
// Markdown code fences around the JSON object are stripped before parsing,
// since several models wrap JSON answers in them regardless of instructions.
func ParseVerdict(data []byte) (*Verdict, error) {
	payload := stripFences(data)

	var raw rawVerdict
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("verdict is not valid JSON: %w", err)
	}

	if raw.RiskLevel == nil {
		return nil, fmt.Errorf("verdict is missing required field %q", "risk_level")
	}
	level := RiskLevel(strings.ToLower(*raw.RiskLevel))
	if !level.IsValid() {
		return nil, fmt.Errorf("verdict risk_level %q is not one of low, medium, high", *raw.RiskLevel)
	}

	if raw.Confidence == nil {
		return nil, fmt.Errorf("verdict is missing required field %q", "confidence")
	}
	if *raw.Confidence < 0 || *raw.Confidence > 1 {
		return nil, fmt.Errorf("verdict confidence %v is outside [0, 1]", *raw.Confidence)
	}

	reasons := raw.Reasons
	if reasons == nil {
		reasons = []string{}
	}

	return &Verdict{
		RiskLevel:  level,
		ScamType:   raw.ScamType,
		Reasons:    reasons,
		Confidence: *raw.Confidence,
	}, nil
}

// stripFences removes a surrounding markdown code fence (``` or ```json)
// if present. The content between the fences is returned unchanged.
func stripFences(data []byte) []byte {
	s := strings.TrimSpace(string(data))
	if !strings.HasPrefix(s, "```") {
		return data
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		// Drop the language tag on the opening fence line.
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return []byte(strings.TrimSpace(s))
}
