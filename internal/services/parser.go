package services

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"alfredoptarigan/ai-cv-evaluator/internal/logger"
	"alfredoptarigan/ai-cv-evaluator/internal/models"
)

const malformedPreviewChars = 200

// MalformedResponseError reports model output that could not be read as a score payload.
type MalformedResponseError struct {
	Reason  string
	Preview string
	Err     error
}

func (e *MalformedResponseError) Error() string {
	msg := "malformed model response: " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Preview != "" {
		msg += fmt.Sprintf(" (response: %q)", e.Preview)
	}
	return msg
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

func malformed(raw, reason string, err error) *MalformedResponseError {
	return &MalformedResponseError{
		Reason:  reason,
		Preview: logger.TruncateForLog(raw, malformedPreviewChars),
		Err:     err,
	}
}

// ScoreReport is the structured payload a scoring call must produce.
type ScoreReport struct {
	Scores   models.ScoreBreakdown `json:"scores"`
	Feedback string                `json:"feedback"`
}

// ParseScoreReport recovers the JSON object from raw model text. Code fences and
// surrounding prose are ignored.
func ParseScoreReport(raw string) (*ScoreReport, error) {
	span, ok := extractJSONObject(raw)
	if !ok {
		return nil, malformed(raw, "no JSON object found", nil)
	}

	var report ScoreReport
	if err := json.Unmarshal([]byte(span), &report); err != nil {
		return nil, malformed(raw, "invalid JSON", err)
	}

	if len(report.Scores) == 0 {
		return nil, malformed(raw, "no criterion scores", nil)
	}

	report.Feedback = strings.TrimSpace(report.Feedback)
	if report.Feedback == "" {
		return nil, malformed(raw, "empty overall feedback", nil)
	}
	return &report, nil
}

// ApplyRubric validates the scores against rubric and takes every weight from it.
// Criteria the rubric does not name are dropped.
func (r *ScoreReport) ApplyRubric(rubric Rubric) error {
	weights := rubric.Weights()

	for key, cs := range r.Scores {
		w, ok := weights[key]
		if !ok {
			delete(r.Scores, key)
			continue
		}
		if cs.Score < 1 || cs.Score > 5 || math.IsNaN(cs.Score) {
			return &MalformedResponseError{Reason: fmt.Sprintf("score for %q out of range 1-5: %v", key, cs.Score)}
		}
		cs.Weight = w
		cs.Feedback = strings.TrimSpace(cs.Feedback)
		r.Scores[key] = cs
	}

	for _, c := range rubric.Criteria {
		if _, ok := r.Scores[c.Key]; !ok {
			return &MalformedResponseError{Reason: fmt.Sprintf("missing score for %q", c.Key)}
		}
	}

	return nil
}

// WeightedScore returns Σ(score×weight)/Σ(weight). It is 0 when the weights sum to zero or less.
func WeightedScore(breakdown models.ScoreBreakdown) float64 {
	var sum, total float64
	for _, cs := range breakdown {
		sum += cs.Score * cs.Weight
		total += cs.Weight
	}
	if total <= 0 {
		return 0
	}
	return sum / total
}

func extractJSONObject(raw string) (string, bool) {
	text := strings.ReplaceAll(raw, "```json", "")
	text = strings.ReplaceAll(text, "```JSON", "")
	text = strings.ReplaceAll(text, "```", "")

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}
