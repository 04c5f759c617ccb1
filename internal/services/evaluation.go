package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"alfredoptarigan/ai-cv-evaluator/internal/logger"
	"alfredoptarigan/ai-cv-evaluator/internal/models"
	"alfredoptarigan/ai-cv-evaluator/internal/repositories"
)

// EvaluationService is the submission and status surface of the core.
type EvaluationService interface {
	StartEvaluation(ctx context.Context, jobTitle, cvFileID, projectFileID string) (*models.EvaluateResponse, error)
	GetJobResult(ctx context.Context, jobID string) (*models.ResultResponse, error)
}

type evaluationService struct {
	evalRepo repositories.EvaluationRepository
	texts    TextStore
	queue    JobQueue
	logger   *zap.Logger
}

func NewEvaluationService(evalRepo repositories.EvaluationRepository, texts TextStore, queue JobQueue, log *zap.Logger) EvaluationService {
	return &evaluationService{
		evalRepo: evalRepo,
		texts:    texts,
		queue:    queue,
		logger:   logger.OrNop(log),
	}
}

// StartEvaluation validates both file ids before persisting a QUEUED job.
// An enqueue failure is logged and left to the pending job sweeper.
func (s *evaluationService) StartEvaluation(ctx context.Context, jobTitle, cvFileID, projectFileID string) (*models.EvaluateResponse, error) {
	cvID, err := parseID("CV document", cvFileID)
	if err != nil {
		return nil, err
	}
	projectID, err := parseID("project document", projectFileID)
	if err != nil {
		return nil, err
	}

	if err := s.texts.Exists(ctx, cvID); err != nil {
		return nil, fmt.Errorf("CV document: %w", err)
	}
	if err := s.texts.Exists(ctx, projectID); err != nil {
		return nil, fmt.Errorf("project document: %w", err)
	}

	eval := &models.Evaluation{
		ID:                uuid.New(),
		JobTitle:          strings.TrimSpace(jobTitle),
		CVDocumentID:      cvID,
		ProjectDocumentID: projectID,
		Status:            models.StatusQueued,
	}
	if err := s.evalRepo.Create(ctx, eval); err != nil {
		return nil, err
	}

	id := eval.ID.String()
	err = s.queue.Enqueue(ctx, models.EvaluationTaskPayload{EvaluationID: id}, EnqueueOptions{IdempotencyKey: id})
	if err != nil {
		s.logger.Warn("enqueue failed, job left for the sweeper", zap.String(logger.FieldJobID, id), zap.Error(err))
	}

	return &models.EvaluateResponse{
		ID:        id,
		Status:    string(eval.Status),
		JobTitle:  eval.JobTitle,
		CreatedAt: eval.CreatedAt,
	}, nil
}

// GetJobResult returns the status snapshot, with the result iff COMPLETED and the error iff FAILED.
func (s *evaluationService) GetJobResult(ctx context.Context, jobID string) (*models.ResultResponse, error) {
	id, err := parseID("evaluation", jobID)
	if err != nil {
		return nil, err
	}

	eval, err := s.evalRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	return NewResultResponse(eval), nil
}

func NewResultResponse(eval *models.Evaluation) *models.ResultResponse {
	resp := &models.ResultResponse{
		ID:          eval.ID.String(),
		Status:      string(eval.Status),
		JobTitle:    eval.JobTitle,
		Attempts:    eval.Attempts,
		CreatedAt:   eval.CreatedAt,
		StartedAt:   eval.StartedAt,
		CompletedAt: eval.CompletedAt,
	}

	switch eval.Status {
	case models.StatusCompleted:
		resp.Result = &models.EvaluationData{
			CVMatchRate:       deref(eval.CVMatchRate),
			CVFeedback:        deref(eval.CVFeedback),
			CVBreakdown:       eval.CVBreakdown,
			ProjectScore:      deref(eval.ProjectScore),
			ProjectFeedback:   deref(eval.ProjectFeedback),
			ProjectBreakdown:  eval.ProjectBreakdown,
			OverallSummary:    deref(eval.OverallSummary),
			SynthesisProvider: deref(eval.SynthesisProvider),
			SynthesisModel:    deref(eval.SynthesisModel),
			TotalTokens:       deref(eval.TotalTokens),
			ProcessingTimeMs:  deref(eval.ProcessingTimeMs),
		}
	case models.StatusFailed:
		resp.ErrorMessage = eval.ErrorMessage
	}

	return resp
}

func parseID(kind, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s %q: %w", kind, raw, ErrNotFound)
	}
	return id, nil
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
