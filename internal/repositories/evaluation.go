package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"alfredoptarigan/ai-cv-evaluator/internal/models"
)

// ErrNotFound is returned when a referenced evaluation or document does not exist.
var ErrNotFound = errors.New("resource not found")

type EvaluationRepository interface {
	Create(ctx context.Context, eval *models.Evaluation) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Evaluation, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, next models.EvaluationStatus, patch *StatusPatch) error
	FindPendingJobs(ctx context.Context, createdBefore time.Time, limit int) ([]models.Evaluation, error)
	FindStaleJobs(ctx context.Context, updatedBefore time.Time, limit int) ([]models.Evaluation, error)
}

// StatusPatch carries the payload written together with a terminal status.
type StatusPatch struct {
	Result       *models.EvaluationResult
	ErrorMessage string
}

type evaluationRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewEvaluationRepository(db *gorm.DB) EvaluationRepository {
	return &evaluationRepository{db: db, now: time.Now}
}

func (r *evaluationRepository) Create(ctx context.Context, eval *models.Evaluation) error {
	if err := r.db.WithContext(ctx).Create(eval).Error; err != nil {
		return fmt.Errorf("failed to create evaluation: %w", err)
	}
	return nil
}

func (r *evaluationRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Evaluation, error) {
	var eval models.Evaluation
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&eval).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("evaluation %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find evaluation: %w", err)
	}
	return &eval, nil
}

// UpdateStatus moves the job to next only from a status allowed by the lifecycle.
// The conditional WHERE makes the check and the write one statement.
func (r *evaluationRepository) UpdateStatus(ctx context.Context, id uuid.UUID, next models.EvaluationStatus, patch *StatusPatch) error {
	updates, err := statusUpdates(next, patch, r.now())
	if err != nil {
		return err
	}

	result := r.db.WithContext(ctx).Model(&models.Evaluation{}).
		Where("id = ? AND status IN ?", id, models.SourcesFor(next)).
		Updates(updates)

	if result.Error != nil {
		return fmt.Errorf("failed to update status: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&models.Evaluation{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to update status: %w", err)
		}
		if count == 0 {
			return fmt.Errorf("evaluation %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("evaluation %s to %s: %w", id, next, models.ErrInvalidTransition)
	}

	return nil
}

func statusUpdates(next models.EvaluationStatus, patch *StatusPatch, now time.Time) (map[string]interface{}, error) {
	updates := map[string]interface{}{
		"status":     next,
		"updated_at": now,
	}

	switch next {
	case models.StatusProcessing:
		updates["attempts"] = gorm.Expr("attempts + 1")
		updates["started_at"] = gorm.Expr("COALESCE(started_at, ?)", now)
		updates["completed_at"] = nil
		updates["error_message"] = nil

	case models.StatusCompleted:
		if patch == nil || patch.Result == nil {
			return nil, errors.New("completed status requires a result payload")
		}
		res := patch.Result
		updates["cv_match_rate"] = res.CVMatchRate
		updates["cv_feedback"] = res.CVFeedback
		updates["cv_breakdown"] = res.CVBreakdown
		updates["project_score"] = res.ProjectScore
		updates["project_feedback"] = res.ProjectFeedback
		updates["project_breakdown"] = res.ProjectBreakdown
		updates["overall_summary"] = res.OverallSummary
		updates["synthesis_provider"] = res.SynthesisProvider
		updates["synthesis_model"] = res.SynthesisModel
		updates["total_tokens"] = res.TotalTokens
		updates["processing_time_ms"] = res.ProcessingTimeMs
		updates["error_message"] = nil
		updates["completed_at"] = now

	case models.StatusFailed:
		if patch == nil || patch.ErrorMessage == "" {
			return nil, errors.New("failed status requires an error message")
		}
		for _, column := range resultColumns {
			updates[column] = nil
		}
		updates["error_message"] = patch.ErrorMessage
		updates["completed_at"] = now

	default:
		return nil, fmt.Errorf("status %s: %w", next, models.ErrInvalidTransition)
	}

	return updates, nil
}

var resultColumns = []string{
	"cv_match_rate", "cv_feedback", "cv_breakdown",
	"project_score", "project_feedback", "project_breakdown",
	"overall_summary", "synthesis_provider", "synthesis_model",
	"total_tokens", "processing_time_ms",
}

func (r *evaluationRepository) FindPendingJobs(ctx context.Context, createdBefore time.Time, limit int) ([]models.Evaluation, error) {
	var evals []models.Evaluation
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.StatusQueued, createdBefore).
		Order("created_at ASC").
		Limit(limit).
		Find(&evals).Error

	if err != nil {
		return nil, fmt.Errorf("failed to find pending jobs: %w", err)
	}

	return evals, nil
}

// FindStaleJobs lists PROCESSING jobs whose row has not been touched since updatedBefore.
func (r *evaluationRepository) FindStaleJobs(ctx context.Context, updatedBefore time.Time, limit int) ([]models.Evaluation, error) {
	var evals []models.Evaluation
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", models.StatusProcessing, updatedBefore).
		Order("updated_at ASC").
		Limit(limit).
		Find(&evals).Error

	if err != nil {
		return nil, fmt.Errorf("failed to find stale jobs: %w", err)
	}

	return evals, nil
}
