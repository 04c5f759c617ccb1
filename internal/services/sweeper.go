package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"alfredoptarigan/ai-cv-evaluator/internal/logger"
	"alfredoptarigan/ai-cv-evaluator/internal/models"
	"alfredoptarigan/ai-cv-evaluator/internal/repositories"
)

const (
	sweepBatchSize = 10

	abandonedMessage = "processing attempt abandoned"
)

// PendingJobSweeper re-enqueues jobs that stayed QUEUED, e.g. after a failed enqueue.
// With staleAfter set it also recovers PROCESSING jobs whose worker went away.
type PendingJobSweeper struct {
	evalRepo   repositories.EvaluationRepository
	queue      JobQueue
	interval   time.Duration
	staleAfter time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// NewPendingJobSweeper builds a sweeper. A staleAfter of zero or less disables
// recovery of PROCESSING jobs.
func NewPendingJobSweeper(evalRepo repositories.EvaluationRepository, queue JobQueue, interval, staleAfter time.Duration, log *zap.Logger) *PendingJobSweeper {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &PendingJobSweeper{
		evalRepo:   evalRepo,
		queue:      queue,
		interval:   interval,
		staleAfter: staleAfter,
		logger:     logger.OrNop(log),
		now:        time.Now,
	}
}

// Run sweeps every interval until ctx is done.
func (s *PendingJobSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logger.Warn("failed to sweep pending jobs", zap.Error(err))
			}
		}
	}
}

// SweepOnce enqueues jobs created more than one interval ago that are still QUEUED,
// then recovers stale PROCESSING jobs. It returns how many jobs were enqueued.
func (s *PendingJobSweeper) SweepOnce(ctx context.Context) (int, error) {
	jobs, err := s.evalRepo.FindPendingJobs(ctx, s.now().Add(-s.interval), sweepBatchSize)
	if err != nil {
		return 0, err
	}

	enqueued := 0
	for _, job := range jobs {
		id := job.ID.String()
		if s.enqueue(ctx, id, id) {
			enqueued++
		}
	}

	recovered, err := s.recoverStale(ctx)
	if err != nil {
		return enqueued, err
	}

	if enqueued > 0 || recovered > 0 {
		s.logger.Info("re-enqueued pending jobs", zap.Int("queued", enqueued), zap.Int("recovered", recovered))
	}
	return enqueued + recovered, nil
}

// recoverStale fails PROCESSING jobs untouched for staleAfter and enqueues them
// again. Each recovery uses a fresh key so brokers that remember the original
// task id still accept it.
func (s *PendingJobSweeper) recoverStale(ctx context.Context) (int, error) {
	if s.staleAfter <= 0 {
		return 0, nil
	}

	jobs, err := s.evalRepo.FindStaleJobs(ctx, s.now().Add(-s.staleAfter), sweepBatchSize)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, job := range jobs {
		id := job.ID.String()
		err := s.evalRepo.UpdateStatus(ctx, job.ID, models.StatusFailed, &repositories.StatusPatch{ErrorMessage: abandonedMessage})
		if errors.Is(err, models.ErrInvalidTransition) {
			continue
		}
		if err != nil {
			s.logger.Warn("failed to release stale job", zap.String(logger.FieldJobID, id), zap.Error(err))
			continue
		}

		s.logger.Warn("recovering stale job",
			zap.String(logger.FieldJobID, id),
			zap.Int("attempts", job.Attempts),
			zap.Time("updated_at", job.UpdatedAt),
		)
		if s.enqueue(ctx, id, fmt.Sprintf("%s:recover:%d", id, job.Attempts)) {
			recovered++
		}
	}
	return recovered, nil
}

func (s *PendingJobSweeper) enqueue(ctx context.Context, id, key string) bool {
	err := s.queue.Enqueue(ctx, models.EvaluationTaskPayload{EvaluationID: id}, EnqueueOptions{IdempotencyKey: key})
	if err != nil {
		s.logger.Warn("failed to re-enqueue job", zap.String(logger.FieldJobID, id), zap.Error(err))
		return false
	}
	return true
}
