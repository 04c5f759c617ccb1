package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type EvaluationStatus string

const (
	StatusQueued     EvaluationStatus = "QUEUED"
	StatusProcessing EvaluationStatus = "PROCESSING"
	StatusCompleted  EvaluationStatus = "COMPLETED"
	StatusFailed     EvaluationStatus = "FAILED"
)

// ErrInvalidTransition is returned when a status update would break the job lifecycle.
var ErrInvalidTransition = errors.New("invalid status transition")

// IsTerminal reports whether no processing attempt is pending for the status.
func (s EvaluationStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo encodes the job lifecycle. FAILED -> PROCESSING is a queue-level retry.
func (s EvaluationStatus) CanTransitionTo(next EvaluationStatus) bool {
	switch next {
	case StatusProcessing:
		return s == StatusQueued || s == StatusFailed
	case StatusCompleted, StatusFailed:
		return s == StatusProcessing
	default:
		return false
	}
}

// SourcesFor lists the statuses from which next may be reached.
func SourcesFor(next EvaluationStatus) []EvaluationStatus {
	var sources []EvaluationStatus
	for _, s := range []EvaluationStatus{StatusQueued, StatusProcessing, StatusCompleted, StatusFailed} {
		if s.CanTransitionTo(next) {
			sources = append(sources, s)
		}
	}
	return sources
}

// CriterionScore is one line of a per-criterion breakdown.
type CriterionScore struct {
	Score    float64 `json:"score"`
	Weight   float64 `json:"weight"`
	Feedback string  `json:"feedback,omitempty"`
}

// ScoreBreakdown maps criterion key to its score. Stored as a JSON column.
type ScoreBreakdown map[string]CriterionScore

func (b ScoreBreakdown) Value() (driver.Value, error) {
	if b == nil {
		return nil, nil
	}
	return json.Marshal(b)
}

func (b *ScoreBreakdown) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*b = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported breakdown column type %T", src)
	}
	return json.Unmarshal(raw, b)
}

type Evaluation struct {
	ID                uuid.UUID        `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	JobTitle          string           `gorm:"type:text" json:"job_title"`
	CVDocumentID      uuid.UUID        `gorm:"type:uuid;not null" json:"cv_document_id"`
	ProjectDocumentID uuid.UUID        `gorm:"type:uuid;not null" json:"project_document_id"`
	Status            EvaluationStatus `gorm:"not null;default:'QUEUED';index" json:"status"`
	Attempts          int              `gorm:"not null;default:0" json:"attempts"`

	CVMatchRate       *float64       `gorm:"type:decimal(5,4)" json:"cv_match_rate,omitempty"`
	CVFeedback        *string        `gorm:"type:text" json:"cv_feedback,omitempty"`
	CVBreakdown       ScoreBreakdown `gorm:"type:jsonb" json:"cv_breakdown,omitempty"`
	ProjectScore      *float64       `gorm:"type:decimal(5,4)" json:"project_score,omitempty"`
	ProjectFeedback   *string        `gorm:"type:text" json:"project_feedback,omitempty"`
	ProjectBreakdown  ScoreBreakdown `gorm:"type:jsonb" json:"project_breakdown,omitempty"`
	OverallSummary    *string        `gorm:"type:text" json:"overall_summary,omitempty"`
	SynthesisProvider *string        `gorm:"type:text" json:"synthesis_provider,omitempty"`
	SynthesisModel    *string        `gorm:"type:text" json:"synthesis_model,omitempty"`
	TotalTokens       *int           `json:"total_tokens,omitempty"`
	ProcessingTimeMs  *int64         `json:"processing_time_ms,omitempty"`
	ErrorMessage      *string        `gorm:"type:text" json:"error_message,omitempty"`

	CreatedAt   time.Time  `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Relations
	CVDocument      Document `gorm:"foreignKey:CVDocumentID" json:"-"`
	ProjectDocument Document `gorm:"foreignKey:ProjectDocumentID" json:"-"`
}

func (Evaluation) TableName() string {
	return "evaluations"
}

// EvaluationResult is the payload persisted with a COMPLETED job.
type EvaluationResult struct {
	CVMatchRate       float64
	CVFeedback        string
	CVBreakdown       ScoreBreakdown
	ProjectScore      float64
	ProjectFeedback   string
	ProjectBreakdown  ScoreBreakdown
	OverallSummary    string
	SynthesisProvider string
	SynthesisModel    string
	TotalTokens       int
	ProcessingTimeMs  int64
}
