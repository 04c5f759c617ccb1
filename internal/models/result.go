package models

import "time"

type UploadResponse struct {
	ID           string `json:"id"`
	Filename     string `json:"filename"`
	OriginalName string `json:"original_name"`
	FileType     string `json:"file_type"`
}

type EvaluateRequest struct {
	JobTitle          string `json:"job_title" validate:"required,max=200"`
	CVDocumentID      string `json:"cv_document_id" validate:"required,uuid"`
	ProjectDocumentID string `json:"project_document_id" validate:"required,uuid"`
}

type EvaluateResponse struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	JobTitle  string    `json:"job_title"`
	CreatedAt time.Time `json:"created_at"`
}

type ResultResponse struct {
	ID           string          `json:"id"`
	Status       string          `json:"status"`
	JobTitle     string          `json:"job_title"`
	Attempts     int             `json:"attempts"`
	CreatedAt    time.Time       `json:"created_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	Result       *EvaluationData `json:"result,omitempty"`
	ErrorMessage *string         `json:"error_message,omitempty"`
}

type EvaluationData struct {
	CVMatchRate       float64        `json:"cv_match_rate"`
	CVFeedback        string         `json:"cv_feedback"`
	CVBreakdown       ScoreBreakdown `json:"cv_breakdown,omitempty"`
	ProjectScore      float64        `json:"project_score"`
	ProjectFeedback   string         `json:"project_feedback"`
	ProjectBreakdown  ScoreBreakdown `json:"project_breakdown,omitempty"`
	OverallSummary    string         `json:"overall_summary"`
	SynthesisProvider string         `json:"synthesis_provider,omitempty"`
	SynthesisModel    string         `json:"synthesis_model,omitempty"`
	TotalTokens       int            `json:"total_tokens"`
	ProcessingTimeMs  int64          `json:"processing_time_ms"`
}

// EvaluationTaskPayload is the queue payload for one evaluation job.
type EvaluationTaskPayload struct {
	EvaluationID string `json:"evaluation_id"`
}
