package taskengine

import (
	"encoding/json"
	"strings"
	"time"
)

// Confidence heuristic constants. These thresholds are a rough signal of
// response quality, not a calibrated probability.
const (
	confidenceBaseline = 0.8
	confidenceMin      = 0.1
	confidenceMax      = 1.0
)

// ParseResult extracts a JSON object from free-form model output. It never
// fails: if no JSON-looking span exists or decoding throws, it wraps the raw
// text instead, with a "parseError" flag distinguishing the fallback from a
// successful parse. The returned map always contains an "outputs" field.
func ParseResult(raw string, step *Step) map[string]any {
	span, ok := extractJSON(raw)
	if !ok {
		return fallbackResult(raw, step)
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(span), &decoded); err != nil || decoded == nil {
		return fallbackResult(raw, step)
	}
	if _, ok := decoded["outputs"]; !ok {
		decoded["outputs"] = map[string]any{
			"result": strings.TrimSpace(raw),
		}
	}
	return decoded
}

// extractJSON returns the span from the first '{' to the last '}'. This is a
// heuristic scan, not a JSON tokenizer: unbalanced braces in surrounding free
// text can misextract. Downstream parseError semantics depend on exactly when
// this fails, so it is deliberately not a real bracket matcher.
func extractJSON(s string) (string, bool) {
	start := strings.Index(s, "{")
	if start < 0 {
		return "", false
	}
	end := strings.LastIndex(s, "}")
	if end < start {
		return "", false
	}
	return s[start : end+1], true
}

func fallbackResult(raw string, step *Step) map[string]any {
	return map[string]any{
		"result":     strings.TrimSpace(raw),
		"stepName":   step.Name,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"parseError": true,
	}
}

// CalculateConfidence computes a heuristic quality score for a response.
// Starts at a fixed baseline, adjusted by completion token count and the
// richness of the step description, clamped to [0.1, 1.0].
func CalculateConfidence(completionTokens int, step *Step) float64 {
	confidence := confidenceBaseline
	if completionTokens > 500 {
		confidence += 0.1
	} else if completionTokens < 100 {
		confidence -= 0.1
	}
	if len(step.Description) > 100 {
		confidence += 0.05
	}
	if confidence < confidenceMin {
		return confidenceMin
	}
	if confidence > confidenceMax {
		return confidenceMax
	}
	return confidence
}
