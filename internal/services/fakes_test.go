package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"alfredoptarigan/ai-cv-evaluator/internal/llm"
	"alfredoptarigan/ai-cv-evaluator/internal/models"
	"alfredoptarigan/ai-cv-evaluator/internal/repositories"
)

// fakeEvalRepo keeps evaluations in memory and enforces the status lifecycle.
type fakeEvalRepo struct {
	mu          sync.Mutex
	evals       map[uuid.UUID]*models.Evaluation
	transitions []models.EvaluationStatus
	createErr   error
	clock       time.Time
}

func newFakeEvalRepo() *fakeEvalRepo {
	return &fakeEvalRepo{
		evals: make(map[uuid.UUID]*models.Evaluation),
		clock: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (r *fakeEvalRepo) tick() time.Time {
	r.clock = r.clock.Add(time.Second)
	return r.clock
}

func (r *fakeEvalRepo) Create(_ context.Context, eval *models.Evaluation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	if eval.CreatedAt.IsZero() {
		eval.CreatedAt = r.tick()
	}
	cp := *eval
	r.evals[eval.ID] = &cp
	return nil
}

func (r *fakeEvalRepo) FindByID(_ context.Context, id uuid.UUID) (*models.Evaluation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	eval, ok := r.evals[id]
	if !ok {
		return nil, fmt.Errorf("evaluation %s: %w", id, repositories.ErrNotFound)
	}
	cp := *eval
	return &cp, nil
}

func (r *fakeEvalRepo) UpdateStatus(ctx context.Context, id uuid.UUID, next models.EvaluationStatus, patch *repositories.StatusPatch) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	eval, ok := r.evals[id]
	if !ok {
		return fmt.Errorf("evaluation %s: %w", id, repositories.ErrNotFound)
	}
	if !eval.Status.CanTransitionTo(next) {
		return fmt.Errorf("%s to %s: %w", eval.Status, next, models.ErrInvalidTransition)
	}

	now := r.tick()
	switch next {
	case models.StatusProcessing:
		eval.Attempts++
		if eval.StartedAt == nil {
			eval.StartedAt = &now
		}
		eval.CompletedAt = nil
		eval.ErrorMessage = nil
	case models.StatusCompleted:
		if patch == nil || patch.Result == nil {
			return fmt.Errorf("completed status requires a result payload")
		}
		res := patch.Result
		eval.CVMatchRate = &res.CVMatchRate
		eval.CVFeedback = &res.CVFeedback
		eval.CVBreakdown = res.CVBreakdown
		eval.ProjectScore = &res.ProjectScore
		eval.ProjectFeedback = &res.ProjectFeedback
		eval.ProjectBreakdown = res.ProjectBreakdown
		eval.OverallSummary = &res.OverallSummary
		eval.SynthesisProvider = &res.SynthesisProvider
		eval.SynthesisModel = &res.SynthesisModel
		eval.TotalTokens = &res.TotalTokens
		eval.ProcessingTimeMs = &res.ProcessingTimeMs
		eval.CompletedAt = &now
	case models.StatusFailed:
		if patch == nil || patch.ErrorMessage == "" {
			return fmt.Errorf("failed status requires an error message")
		}
		eval.CVMatchRate, eval.CVFeedback, eval.CVBreakdown = nil, nil, nil
		eval.ProjectScore, eval.ProjectFeedback, eval.ProjectBreakdown = nil, nil, nil
		eval.OverallSummary, eval.SynthesisProvider, eval.SynthesisModel = nil, nil, nil
		eval.TotalTokens, eval.ProcessingTimeMs = nil, nil
		msg := patch.ErrorMessage
		eval.ErrorMessage = &msg
		eval.CompletedAt = &now
	}

	eval.Status = next
	eval.UpdatedAt = now
	r.transitions = append(r.transitions, next)
	return nil
}

func (r *fakeEvalRepo) FindPendingJobs(_ context.Context, createdBefore time.Time, limit int) ([]models.Evaluation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Evaluation
	for _, eval := range r.evals {
		if eval.Status == models.StatusQueued && eval.CreatedAt.Before(createdBefore) && len(out) < limit {
			out = append(out, *eval)
		}
	}
	return out, nil
}

func (r *fakeEvalRepo) seed(status models.EvaluationStatus, cvID, projectID uuid.UUID) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.New()
	r.evals[id] = &models.Evaluation{
		ID:                id,
		JobTitle:          "Backend Developer",
		CVDocumentID:      cvID,
		ProjectDocumentID: projectID,
		Status:            status,
		CreatedAt:         r.tick(),
	}
	r.evals[id].UpdatedAt = r.evals[id].CreatedAt
	return id
}

func (r *fakeEvalRepo) FindStaleJobs(_ context.Context, updatedBefore time.Time, limit int) ([]models.Evaluation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Evaluation
	for _, eval := range r.evals {
		if eval.Status == models.StatusProcessing && eval.UpdatedAt.Before(updatedBefore) && len(out) < limit {
			out = append(out, *eval)
		}
	}
	return out, nil
}

func (r *fakeEvalRepo) history() []models.EvaluationStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.EvaluationStatus(nil), r.transitions...)
}

type fakeTextStore struct {
	texts map[uuid.UUID]string
}

func newFakeTextStore() *fakeTextStore {
	return &fakeTextStore{texts: make(map[uuid.UUID]string)}
}

func (s *fakeTextStore) add(text string) uuid.UUID {
	id := uuid.New()
	s.texts[id] = text
	return id
}

func (s *fakeTextStore) Exists(ctx context.Context, fileID uuid.UUID) error {
	_, err := s.GetText(ctx, fileID)
	return err
}

func (s *fakeTextStore) GetText(_ context.Context, fileID uuid.UUID) (string, error) {
	text, ok := s.texts[fileID]
	if !ok {
		return "", fmt.Errorf("document %s: %w", fileID, repositories.ErrNotFound)
	}
	return text, nil
}

type fakeRetriever struct {
	mu      sync.Mutex
	results map[DocumentType]RetrievalResult
	panicOn DocumentType
	queries map[DocumentType]string
}

func (f *fakeRetriever) Retrieve(_ context.Context, query string, docType DocumentType, _ int) RetrievalResult {
	f.mu.Lock()
	if f.queries == nil {
		f.queries = make(map[DocumentType]string)
	}
	f.queries[docType] = query
	f.mu.Unlock()

	if docType == f.panicOn {
		panic("store exploded")
	}
	return f.results[docType]
}

func (f *fakeRetriever) IsAvailable() bool { return true }

// scriptedCompleter answers by prompt kind.
type scriptedCompleter struct {
	mu      sync.Mutex
	cvText  string
	project string
	summary string
	err     error
	calls   []completerCall
}

type completerCall struct {
	system string
	user   string
	opts   llm.Options
}

const (
	cvScoresJSON = `{"scores": {
		"technical_skills": {"score": 4, "weight": 0.4, "feedback": "Strong Go and Postgres"},
		"experience_level": {"score": 3, "weight": 0.25, "feedback": "Three years"},
		"relevant_achievements": {"score": 4, "weight": 0.2, "feedback": "Scaled a payments API"},
		"cultural_fit": {"score": 5, "weight": 0.15, "feedback": "Mentors juniors"}
	}, "feedback": "Solid backend profile with limited AI exposure."}`

	projectScoresJSON = "Here you go:\n```json\n" + `{"scores": {
		"correctness": {"score": 4, "feedback": "Chaining works"},
		"code_quality": {"score": 4, "feedback": "Modular"},
		"resilience": {"score": 3, "feedback": "Retries but no timeouts"},
		"documentation": {"score": 5, "feedback": "Great README"},
		"creativity": {"score": 2, "feedback": "Few extras"}
	}, "feedback": "Working pipeline, resilience could improve."}` + "\n```"

	summaryText = "The candidate shows strong backend fundamentals. The project works end to end. Resilience needs work. Recommendation: Hire."
)

func newScriptedCompleter() *scriptedCompleter {
	return &scriptedCompleter{cvText: cvScoresJSON, project: projectScoresJSON, summary: summaryText}
}

func (s *scriptedCompleter) Generate(_ context.Context, system, user string, opts llm.Options) (*llm.Response, error) {
	s.mu.Lock()
	s.calls = append(s.calls, completerCall{system: system, user: user, opts: opts})
	s.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}

	switch {
	case strings.Contains(user, "CANDIDATE CV"):
		return &llm.Response{Text: s.cvText, Provider: "gemini", Model: "g", Usage: llm.Usage{TotalTokens: 100}}, nil
	case strings.Contains(user, "CANDIDATE PROJECT REPORT"):
		return &llm.Response{Text: s.project, Provider: "gemini", Model: "g", Usage: llm.Usage{TotalTokens: 200}}, nil
	default:
		return &llm.Response{Text: s.summary, Provider: "claude", Model: "c", Usage: llm.Usage{TotalTokens: 50}}, nil
	}
}

func (s *scriptedCompleter) callFor(marker string) (completerCall, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.calls {
		if strings.Contains(c.user, marker) {
			return c, true
		}
	}
	return completerCall{}, false
}

type recordingQueue struct {
	mu       sync.Mutex
	payloads []models.EvaluationTaskPayload
	keys     []string
	err      error
}

func (q *recordingQueue) Enqueue(_ context.Context, payload models.EvaluationTaskPayload, opts EnqueueOptions) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.payloads = append(q.payloads, payload)
	q.keys = append(q.keys, opts.IdempotencyKey)
	return nil
}

func (q *recordingQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.payloads)
}
