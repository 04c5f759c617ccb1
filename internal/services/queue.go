package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"alfredoptarigan/ai-cv-evaluator/internal/logger"
	"alfredoptarigan/ai-cv-evaluator/internal/models"
)

const (
	TaskTypeEvaluate = "evaluation:run"
	EvaluationQueue  = "evaluations"

	taskRetention = 24 * time.Hour
)

type EnqueueOptions struct {
	// IdempotencyKey collapses repeated enqueues of the same job.
	IdempotencyKey string
}

// JobQueue delivers evaluation jobs to the orchestrator at least once per enqueue.
type JobQueue interface {
	Enqueue(ctx context.Context, payload models.EvaluationTaskPayload, opts EnqueueOptions) error
}

// RetryPolicy is the job-level retry budget applied by a queue.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Timeout      time.Duration
}

// Delay returns the wait before retry n (0-based), doubling from InitialDelay.
func (p RetryPolicy) Delay(n int) time.Duration {
	if n < 0 {
		n = 0
	}
	if n > 16 {
		n = 16
	}
	return p.InitialDelay << n
}

type asynqQueue struct {
	client *asynq.Client
	policy RetryPolicy
	logger *zap.Logger
}

func NewAsynqQueue(client *asynq.Client, policy RetryPolicy, log *zap.Logger) JobQueue {
	return &asynqQueue{client: client, policy: policy, logger: logger.OrNop(log)}
}

func NewEvaluationTask(payload models.EvaluationTaskPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode task payload: %w", err)
	}
	return asynq.NewTask(TaskTypeEvaluate, data), nil
}

// Enqueue implements JobQueue. A task id already known to the broker counts as enqueued.
func (q *asynqQueue) Enqueue(ctx context.Context, payload models.EvaluationTaskPayload, opts EnqueueOptions) error {
	task, err := NewEvaluationTask(payload)
	if err != nil {
		return err
	}

	taskOpts := []asynq.Option{
		asynq.Queue(EvaluationQueue),
		asynq.MaxRetry(max(q.policy.MaxAttempts-1, 0)),
		asynq.Retention(taskRetention),
	}
	if q.policy.Timeout > 0 {
		taskOpts = append(taskOpts, asynq.Timeout(q.policy.Timeout))
	}
	if opts.IdempotencyKey != "" {
		taskOpts = append(taskOpts, asynq.TaskID(opts.IdempotencyKey))
	}

	info, err := q.client.EnqueueContext(ctx, task, taskOpts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		q.logger.Debug("evaluation task already enqueued", zap.String(logger.FieldJobID, payload.EvaluationID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue evaluation: %w", err)
	}

	q.logger.Info("evaluation task enqueued",
		zap.String(logger.FieldJobID, payload.EvaluationID),
		zap.String("task_id", info.ID),
		zap.String("queue", info.Queue),
	)
	return nil
}

// RetryDelayFunc adapts the policy to asynq.Config.
func (p RetryPolicy) RetryDelayFunc() asynq.RetryDelayFunc {
	return func(n int, _ error, _ *asynq.Task) time.Duration {
		return p.Delay(n)
	}
}

// EvaluationTaskHandler runs evaluation tasks delivered by asynq.
type EvaluationTaskHandler struct {
	evaluator EvaluatorService
	logger    *zap.Logger
}

func NewEvaluationTaskHandler(evaluator EvaluatorService, log *zap.Logger) *EvaluationTaskHandler {
	return &EvaluationTaskHandler{evaluator: evaluator, logger: logger.OrNop(log)}
}

// ProcessTask implements asynq.Handler. Unknown jobs and bad payloads skip retries.
func (h *EvaluationTaskHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var payload models.EvaluationTaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid evaluation payload: %v: %w", err, asynq.SkipRetry)
	}

	evalID, err := uuid.Parse(payload.EvaluationID)
	if err != nil {
		return fmt.Errorf("invalid evaluation id %q: %w", payload.EvaluationID, asynq.SkipRetry)
	}

	if err := h.evaluator.EvaluateCandidate(ctx, evalID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}
	return nil
}
