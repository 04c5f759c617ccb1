package services

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"alfredoptarigan/ai-cv-evaluator/internal/logger"
)

// IngestRequest describes one reference document to load into the context store.
type IngestRequest struct {
	Path      string
	DocType   DocumentType
	Source    string
	Replace   bool
	ChunkSize int
	Overlap   int
}

type IngestReport struct {
	Source   string
	Pages    int
	Chunks   int
	Stored   int
	Failed   int
	Replaced bool
}

// Ingestor turns reference PDFs into embedded chunks in the vector store.
type Ingestor struct {
	parser   PDFParserService
	chunker  TextChunker
	embedder Embedder
	store    VectorStore
	logger   *zap.Logger
}

func NewIngestor(parser PDFParserService, chunker TextChunker, embedder Embedder, store VectorStore, log *zap.Logger) *Ingestor {
	return &Ingestor{
		parser:   parser,
		chunker:  chunker,
		embedder: embedder,
		store:    store,
		logger:   logger.OrNop(log),
	}
}

// Ingest stores every chunk it can embed. A chunk failure is counted, not fatal;
// the call fails only when nothing was stored.
func (i *Ingestor) Ingest(ctx context.Context, req IngestRequest) (*IngestReport, error) {
	source := strings.TrimSpace(req.Source)
	if source == "" {
		source = filepath.Base(req.Path)
	}
	log := i.logger.With(zap.String("source", source), zap.String("doc_type", string(req.DocType)))

	content, err := i.parser.ExtractText(req.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to extract %s: %w", req.Path, err)
	}

	report := &IngestReport{Source: source, Pages: content.PageCount}

	if req.Replace {
		if err := i.store.DeleteBySource(ctx, source); err != nil {
			return nil, err
		}
		report.Replaced = true
	}

	chunks := i.chunker.ChunkText(content.Text, req.ChunkSize, req.Overlap)
	report.Chunks = len(chunks)
	log.Info("document chunked", zap.Int("pages", content.PageCount), zap.Int("chunks", len(chunks)))

	for idx, text := range chunks {
		embedding, err := i.embedder.EmbedDocument(ctx, text)
		if err != nil {
			log.Warn("failed to embed chunk", zap.Int("chunk", idx), zap.Error(err))
			report.Failed++
			continue
		}

		chunk := ContextChunk{Source: source, DocType: req.DocType, Index: idx, Text: text}
		if err := i.store.UpsertChunk(ctx, chunk, embedding); err != nil {
			log.Warn("failed to store chunk", zap.Int("chunk", idx), zap.Error(err))
			report.Failed++
			continue
		}
		report.Stored++
	}

	if report.Stored == 0 {
		return report, fmt.Errorf("no chunks stored for %s", source)
	}
	return report, nil
}
