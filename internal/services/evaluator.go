package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"alfredoptarigan/ai-cv-evaluator/internal/llm"
	"alfredoptarigan/ai-cv-evaluator/internal/logger"
	"alfredoptarigan/ai-cv-evaluator/internal/models"
	"alfredoptarigan/ai-cv-evaluator/internal/repositories"
)

const (
	scoringTemperature   = 0.3
	scoringMaxTokens     = 4096
	synthesisTemperature = 0.5
	synthesisMaxTokens   = 1024

	persistTimeout = 10 * time.Second
)

// Completer is the completion client as seen by the orchestrator.
type Completer interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string, opts llm.Options) (*llm.Response, error)
}

type EvaluatorService interface {
	EvaluateCandidate(ctx context.Context, evalID uuid.UUID) error
}

type EvaluatorOptions struct {
	TopK             int
	PreferredBackend string
}

type evaluatorService struct {
	evalRepo  repositories.EvaluationRepository
	texts     TextStore
	retriever Retriever
	completer Completer
	assembler *PromptAssembler
	opts      EvaluatorOptions
	logger    *zap.Logger
	now       func() time.Time
}

func NewEvaluatorService(
	evalRepo repositories.EvaluationRepository,
	texts TextStore,
	retriever Retriever,
	completer Completer,
	assembler *PromptAssembler,
	opts EvaluatorOptions,
	log *zap.Logger,
) EvaluatorService {
	if assembler == nil {
		assembler = NewPromptAssembler(0)
	}
	return &evaluatorService{
		evalRepo:  evalRepo,
		texts:     texts,
		retriever: retriever,
		completer: completer,
		assembler: assembler,
		opts:      opts,
		logger:    logger.OrNop(log),
		now:       time.Now,
	}
}

// groundTruth holds the four retrieval results of one attempt.
type groundTruth struct {
	jobRequirements RetrievalResult
	cvRubric        RetrievalResult
	caseStudy       RetrievalResult
	projectRubric   RetrievalResult
}

type scoredSection struct {
	breakdown models.ScoreBreakdown
	feedback  string
	weighted  float64
	usage     llm.Usage
}

// EvaluateCandidate runs one processing attempt. Any failure after the job
// entered PROCESSING is persisted as FAILED and returned so the queue can retry.
func (e *evaluatorService) EvaluateCandidate(ctx context.Context, evalID uuid.UUID) error {
	log := e.logger.With(zap.String(logger.FieldJobID, evalID.String()))

	eval, err := e.evalRepo.FindByID(ctx, evalID)
	if err != nil {
		return err
	}

	if eval.Status == models.StatusCompleted {
		log.Info("evaluation already completed, skipping")
		return nil
	}

	if err := e.evalRepo.UpdateStatus(ctx, evalID, models.StatusProcessing, nil); err != nil {
		return fmt.Errorf("failed to start evaluation: %w", err)
	}

	start := e.now()
	log.Info("evaluation started", zap.String("job_title", eval.JobTitle), zap.Int("attempt", eval.Attempts+1))

	result, err := e.process(ctx, eval, log)
	if err != nil {
		e.markFailed(ctx, evalID, err, log)
		return err
	}

	result.ProcessingTimeMs = e.now().Sub(start).Milliseconds()

	persistCtx, cancel := detachedContext(ctx)
	defer cancel()

	if err := e.evalRepo.UpdateStatus(persistCtx, evalID, models.StatusCompleted, &repositories.StatusPatch{Result: result}); err != nil {
		err = fmt.Errorf("failed to save results: %w", err)
		e.markFailed(ctx, evalID, err, log)
		return err
	}

	log.Info("evaluation completed",
		zap.Float64("cv_match_rate", result.CVMatchRate),
		zap.Float64("project_score", result.ProjectScore),
		zap.Int("total_tokens", result.TotalTokens),
		zap.Int64("processing_time_ms", result.ProcessingTimeMs),
	)
	return nil
}

func (e *evaluatorService) process(ctx context.Context, eval *models.Evaluation, log *zap.Logger) (*models.EvaluationResult, error) {
	cvText, err := e.texts.GetText(ctx, eval.CVDocumentID)
	if err != nil {
		return nil, fmt.Errorf("failed to read CV: %w", err)
	}

	projectText, err := e.texts.GetText(ctx, eval.ProjectDocumentID)
	if err != nil {
		return nil, fmt.Errorf("failed to read project report: %w", err)
	}

	truth := e.retrieveGroundTruth(ctx, eval.JobTitle, log)

	var cv, project *scoredSection
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		prompt := e.assembler.CVEvaluation(ScoringInput{
			JobTitle:      eval.JobTitle,
			SourceText:    cvText,
			Requirements:  truth.jobRequirements.Context,
			RubricContext: truth.cvRubric.Context,
		})
		section, err := e.score(gctx, prompt, CVRubric, log)
		if err != nil {
			return fmt.Errorf("CV scoring failed: %w", err)
		}
		cv = section
		return nil
	})

	g.Go(func() error {
		prompt := e.assembler.ProjectEvaluation(ScoringInput{
			JobTitle:      eval.JobTitle,
			SourceText:    projectText,
			Requirements:  truth.caseStudy.Context,
			RubricContext: truth.projectRubric.Context,
		})
		section, err := e.score(gctx, prompt, ProjectRubric, log)
		if err != nil {
			return fmt.Errorf("project scoring failed: %w", err)
		}
		project = section
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	cvMatchRate := cv.weighted / 5
	synthesis := e.assembler.Synthesis(SynthesisInput{
		JobTitle:        eval.JobTitle,
		CVMatchRate:     cvMatchRate,
		CVFeedback:      cv.feedback,
		ProjectScore:    project.weighted,
		ProjectFeedback: project.feedback,
	})

	resp, err := e.completer.Generate(ctx, synthesis.System, synthesis.User, llm.Options{
		Temperature:      synthesisTemperature,
		MaxTokens:        synthesisMaxTokens,
		PreferredBackend: e.opts.PreferredBackend,
	})
	if err != nil {
		return nil, fmt.Errorf("synthesis failed: %w", err)
	}

	summary := strings.TrimSpace(resp.Text)
	if summary == "" {
		return nil, fmt.Errorf("synthesis failed: %w", malformed(resp.Text, "empty summary", nil))
	}

	usage := cv.usage.Add(project.usage).Add(resp.Usage)
	log.Debug("synthesis done", append(logger.CommonFields(resp.Provider, resp.Model), zap.Int("total_tokens", usage.TotalTokens))...)

	return &models.EvaluationResult{
		CVMatchRate:       cvMatchRate,
		CVFeedback:        cv.feedback,
		CVBreakdown:       cv.breakdown,
		ProjectScore:      project.weighted,
		ProjectFeedback:   project.feedback,
		ProjectBreakdown:  project.breakdown,
		OverallSummary:    summary,
		SynthesisProvider: resp.Provider,
		SynthesisModel:    resp.Model,
		TotalTokens:       usage.TotalTokens,
	}, nil
}

// retrieveGroundTruth runs the four retrievals concurrently. Each one writes its
// own slot and a panic in one leaves only that slot empty.
func (e *evaluatorService) retrieveGroundTruth(ctx context.Context, jobTitle string, log *zap.Logger) groundTruth {
	var truth groundTruth

	queries := []struct {
		docType DocumentType
		dst     *RetrievalResult
	}{
		{DocTypeJobDescription, &truth.jobRequirements},
		{DocTypeCVRubric, &truth.cvRubric},
		{DocTypeCaseStudy, &truth.caseStudy},
		{DocTypeProjectRubric, &truth.projectRubric},
	}

	var wg sync.WaitGroup
	for _, q := range queries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					log.Error("retrieval panicked", zap.String("doc_type", string(q.docType)), zap.Any("panic", rec))
				}
			}()
			*q.dst = e.retriever.Retrieve(ctx, RetrievalQuery(q.docType, jobTitle), q.docType, e.opts.TopK)
		}()
	}
	wg.Wait()

	log.Debug("ground truth retrieved",
		zap.Bool("job_requirements", !truth.jobRequirements.Empty()),
		zap.Bool("cv_rubric", !truth.cvRubric.Empty()),
		zap.Bool("case_study", !truth.caseStudy.Empty()),
		zap.Bool("project_rubric", !truth.projectRubric.Empty()),
	)
	return truth
}

func (e *evaluatorService) score(ctx context.Context, prompt Prompt, rubric Rubric, log *zap.Logger) (*scoredSection, error) {
	resp, err := e.completer.Generate(ctx, prompt.System, prompt.User, llm.Options{
		Temperature:      scoringTemperature,
		MaxTokens:        scoringMaxTokens,
		PreferredBackend: e.opts.PreferredBackend,
	})
	if err != nil {
		return nil, err
	}

	report, err := ParseScoreReport(resp.Text)
	if err != nil {
		log.Warn("unparseable score payload", append(logger.CommonFields(resp.Provider, resp.Model),
			zap.String("rubric", rubric.Name), zap.Error(err))...)
		return nil, err
	}

	if err := report.ApplyRubric(rubric); err != nil {
		return nil, err
	}

	return &scoredSection{
		breakdown: report.Scores,
		feedback:  report.Feedback,
		weighted:  WeightedScore(report.Scores),
		usage:     resp.Usage,
	}, nil
}

// markFailed records cause as the job error. It outlives a cancelled ctx so a
// timed-out attempt still leaves PROCESSING.
func (e *evaluatorService) markFailed(ctx context.Context, evalID uuid.UUID, cause error, log *zap.Logger) {
	persistCtx, cancel := detachedContext(ctx)
	defer cancel()

	err := e.evalRepo.UpdateStatus(persistCtx, evalID, models.StatusFailed, &repositories.StatusPatch{ErrorMessage: cause.Error()})
	if err != nil && !errors.Is(err, models.ErrInvalidTransition) {
		log.Error("failed to record evaluation failure", zap.NamedError("cause", cause), zap.Error(err))
		return
	}
	log.Warn("evaluation failed", zap.Error(cause))
}

func detachedContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
}
