package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"alfredoptarigan/ai-cv-evaluator/internal/logger"
)

// DocumentType labels a ground-truth collection in the context store.
type DocumentType string

const (
	DocTypeJobDescription DocumentType = "job_description"
	DocTypeCaseStudy      DocumentType = "case_study"
	DocTypeCVRubric       DocumentType = "cv_rubric"
	DocTypeProjectRubric  DocumentType = "project_rubric"
)

// DocumentTypes lists every type the ingest tool accepts.
func DocumentTypes() []DocumentType {
	return []DocumentType{DocTypeJobDescription, DocTypeCaseStudy, DocTypeCVRubric, DocTypeProjectRubric}
}

func ParseDocumentType(s string) (DocumentType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, t := range DocumentTypes() {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown document type %q", s)
}

type Passage struct {
	Text     string
	Score    float64
	Metadata map[string]string
}

// RetrievalResult is what one retrieval call yields. An empty Context means
// nothing relevant was found or the store was unreachable.
type RetrievalResult struct {
	Context   string
	Passages  []Passage
	Score     float64
	LatencyMs int64
}

func (r RetrievalResult) Empty() bool {
	return strings.TrimSpace(r.Context) == ""
}

type Retriever interface {
	Retrieve(ctx context.Context, query string, docType DocumentType, topK int) RetrievalResult
	IsAvailable() bool
}

type RetrievalOptions struct {
	TopK     int
	MinScore float64
}

type retrievalClient struct {
	embedder Embedder
	searcher VectorSearcher
	opts     RetrievalOptions
	logger   *zap.Logger
	now      func() time.Time
}

// NewRetrievalClient returns a Retriever. Either dependency may be nil, in which
// case the client is unavailable and every call yields an empty result.
func NewRetrievalClient(embedder Embedder, searcher VectorSearcher, opts RetrievalOptions, log *zap.Logger) Retriever {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	return &retrievalClient{
		embedder: embedder,
		searcher: searcher,
		opts:     opts,
		logger:   logger.OrNop(log),
		now:      time.Now,
	}
}

func (r *retrievalClient) IsAvailable() bool {
	return r.embedder != nil && r.searcher != nil
}

// Retrieve never fails: store and embedding errors are logged and degrade to an
// empty result so evaluation can continue without ground truth.
func (r *retrievalClient) Retrieve(ctx context.Context, query string, docType DocumentType, topK int) (result RetrievalResult) {
	start := r.now()
	log := r.logger.With(zap.String("doc_type", string(docType)))

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("retrieval panicked", zap.Any("panic", rec))
			result = RetrievalResult{}
		}
		result.LatencyMs = r.now().Sub(start).Milliseconds()
	}()

	if !r.IsAvailable() {
		log.Debug("context store unavailable, skipping retrieval")
		return RetrievalResult{}
	}

	if topK <= 0 {
		topK = r.opts.TopK
	}

	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		log.Warn("failed to embed retrieval query", zap.Error(err))
		return RetrievalResult{}
	}

	hits, err := r.searcher.SearchSimilar(ctx, vector, string(docType), topK)
	if err != nil {
		log.Warn("context store search failed", zap.Error(err))
		return RetrievalResult{}
	}

	result = assemblePassages(hits, r.opts.MinScore)
	log.Debug("retrieved context",
		zap.Int("passages", len(result.Passages)),
		zap.Int("dropped", len(hits)-len(result.Passages)),
		zap.Float64("mean_score", result.Score),
	)
	return result
}

// assemblePassages drops hits below minScore and joins the rest in rank order.
func assemblePassages(hits []SearchResult, minScore float64) RetrievalResult {
	var (
		passages []Passage
		texts    []string
		total    float64
	)

	for _, hit := range hits {
		score := float64(hit.Score)
		if score < minScore {
			continue
		}
		text := strings.TrimSpace(hit.Text)
		if text == "" {
			continue
		}
		passages = append(passages, Passage{Text: text, Score: score, Metadata: hit.Metadata})
		texts = append(texts, text)
		total += score
	}

	if len(passages) == 0 {
		return RetrievalResult{}
	}

	return RetrievalResult{
		Context:  strings.Join(texts, "\n\n"),
		Passages: passages,
		Score:    total / float64(len(passages)),
	}
}
