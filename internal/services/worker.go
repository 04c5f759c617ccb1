package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"alfredoptarigan/ai-cv-evaluator/internal/logger"
	"alfredoptarigan/ai-cv-evaluator/internal/models"
)

var (
	ErrWorkerStopped = errors.New("worker stopped")
	// ErrQueueFull means the job stays QUEUED for the pending-job sweeper.
	ErrQueueFull = errors.New("worker queue full")
)

const workerQueueCapacity = 100

type queuedJob struct {
	id  uuid.UUID
	key string
}

// Worker is the in-process JobQueue used when no Redis broker is configured.
type Worker interface {
	JobQueue
	Start(ctx context.Context)
	Stop()
}

type worker struct {
	evaluator   EvaluatorService
	policy      RetryPolicy
	concurrency int
	logger      *zap.Logger

	jobQueue chan queuedJob
	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	pending map[string]struct{}
}

func NewWorker(evaluator EvaluatorService, concurrency int, policy RetryPolicy, log *zap.Logger) Worker {
	if concurrency <= 0 {
		concurrency = 1
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	if policy.InitialDelay <= 0 {
		policy.InitialDelay = time.Second
	}
	return &worker{
		evaluator:   evaluator,
		policy:      policy,
		concurrency: concurrency,
		logger:      logger.OrNop(log),
		jobQueue:    make(chan queuedJob, workerQueueCapacity),
		stopChan:    make(chan struct{}),
		pending:     make(map[string]struct{}),
	}
}

// Start implements Worker.
func (w *worker) Start(ctx context.Context) {
	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.processJobs(ctx, i+1)
	}

	w.logger.Info("worker started", zap.Int("concurrency", w.concurrency))
}

// Stop implements Worker. Jobs already running finish first.
func (w *worker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopChan)
	})
	w.wg.Wait()
	w.logger.Info("worker stopped")
}

// Enqueue implements JobQueue. A key that is still queued or running is not enqueued twice.
// It never blocks: a full queue returns ErrQueueFull.
func (w *worker) Enqueue(ctx context.Context, payload models.EvaluationTaskPayload, opts EnqueueOptions) error {
	evalID, err := uuid.Parse(payload.EvaluationID)
	if err != nil {
		return fmt.Errorf("invalid evaluation id %q: %w", payload.EvaluationID, err)
	}

	select {
	case <-w.stopChan:
		return ErrWorkerStopped
	default:
	}

	key := opts.IdempotencyKey
	if key == "" {
		key = evalID.String()
	}

	w.mu.Lock()
	if _, ok := w.pending[key]; ok {
		w.mu.Unlock()
		return nil
	}
	w.pending[key] = struct{}{}
	w.mu.Unlock()

	select {
	case w.jobQueue <- queuedJob{id: evalID, key: key}:
		w.logger.Debug("job enqueued", zap.String(logger.FieldJobID, evalID.String()))
		return nil
	case <-w.stopChan:
		w.release(key)
		return ErrWorkerStopped
	case <-ctx.Done():
		w.release(key)
		return ctx.Err()
	default:
		w.release(key)
		return ErrQueueFull
	}
}

func (w *worker) release(key string) {
	w.mu.Lock()
	delete(w.pending, key)
	w.mu.Unlock()
}

func (w *worker) processJobs(ctx context.Context, workerID int) {
	defer w.wg.Done()
	log := w.logger.With(zap.Int("worker", workerID))

	for {
		select {
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		case job := <-w.jobQueue:
			if err := w.run(ctx, job.id); err != nil {
				log.Error("job failed", zap.String(logger.FieldJobID, job.id.String()), zap.Error(err))
			}
			w.release(job.key)
		}
	}
}

// run applies the job-level retry policy around one evaluation.
func (w *worker) run(ctx context.Context, evalID uuid.UUID) error {
	backoff := retry.WithMaxRetries(uint64(w.policy.MaxAttempts-1), retry.NewExponential(w.policy.InitialDelay))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		jobCtx, cancel := w.jobContext(ctx)
		defer cancel()

		err := w.evaluator.EvaluateCandidate(jobCtx, evalID)
		if err == nil || errors.Is(err, ErrNotFound) {
			return err
		}
		return retry.RetryableError(err)
	})
}

func (w *worker) jobContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if w.policy.Timeout > 0 {
		return context.WithTimeout(ctx, w.policy.Timeout)
	}
	return context.WithCancel(ctx)
}
