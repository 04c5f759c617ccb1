package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"alfredoptarigan/ai-cv-evaluator/internal/config"
	"alfredoptarigan/ai-cv-evaluator/internal/llm"
	"alfredoptarigan/ai-cv-evaluator/internal/logger"
	"alfredoptarigan/ai-cv-evaluator/internal/services"
)

// referenceDocs is ingested when no --file is given.
var referenceDocs = []struct {
	Path    string
	DocType services.DocumentType
	Source  string
}{
	{"./reference_docs/Job_Description.pdf", services.DocTypeJobDescription, "Job Description - Product Engineer (Backend)"},
	{"./reference_docs/case_study_brief.pdf", services.DocTypeCaseStudy, "Case Study Brief"},
	{"./reference_docs/cv_scoring_rubric.pdf", services.DocTypeCVRubric, "CV Scoring Rubric"},
	{"./reference_docs/project_scoring_rubric.pdf", services.DocTypeProjectRubric, "Project Scoring Rubric"},
}

type ingestFlags struct {
	file      string
	docType   string
	source    string
	replace   bool
	chunkSize int
	overlap   int
	debug     bool
	json      bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &ingestFlags{}

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Load reference PDFs (job descriptions, case studies, rubrics) into the context store",
		Example: `  ingest --file ./docs/jd.pdf --type job_description --replace
  ingest   # ingests the default ./reference_docs set`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), flags)
		},
	}

	cmd.Flags().StringVarP(&flags.file, "file", "f", "", "PDF to ingest (default: the ./reference_docs set)")
	cmd.Flags().StringVarP(&flags.docType, "type", "t", "", "document type: job_description, case_study, cv_rubric, project_rubric")
	cmd.Flags().StringVarP(&flags.source, "source", "s", "", "source name stored with every chunk (default: file name)")
	cmd.Flags().BoolVar(&flags.replace, "replace", false, "delete previously ingested chunks of the same source first")
	cmd.Flags().IntVar(&flags.chunkSize, "chunk-size", services.DefaultChunkSize, "maximum chunk size in characters")
	cmd.Flags().IntVar(&flags.overlap, "overlap", services.DefaultChunkOverlap, "characters repeated between consecutive chunks")
	cmd.Flags().BoolVarP(&flags.debug, "debug", "d", false, "verbose/debug output")
	cmd.Flags().BoolVarP(&flags.json, "json", "j", false, "json format for logging")

	return cmd
}

func run(ctx context.Context, flags *ingestFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log, err := logger.New(flags.json, flags.debug)
	if err != nil {
		return fmt.Errorf("creating a logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	requests, err := buildRequests(flags)
	if err != nil {
		return err
	}

	cfg := config.Load()
	if !cfg.Gemini.Enabled() {
		return errors.New("GEMINI_API_KEY is required for embeddings")
	}

	genaiClient, err := llm.NewGenAIClient(ctx, cfg.Gemini.APIKey)
	if err != nil {
		return err
	}

	store, err := services.NewQdrantService(cfg.Qdrant.URL, cfg.Qdrant.APIKey, cfg.Qdrant.Collection, cfg.Qdrant.VectorSize, log)
	if err != nil {
		return err
	}
	if err := store.InitCollection(ctx); err != nil {
		return err
	}

	ingestor := services.NewIngestor(
		services.NewPDFParserService(),
		services.NewTextChunker(),
		services.NewGeminiEmbedder(genaiClient, cfg.Retrieval.EmbeddingModel),
		store,
		log,
	)

	var failed int
	for _, req := range requests {
		if _, err := os.Stat(req.Path); err != nil {
			log.Warn("file not found, skipping", zap.String("path", req.Path))
			failed++
			continue
		}

		report, err := ingestor.Ingest(ctx, req)
		if err != nil {
			log.Error("ingestion failed", zap.String("path", req.Path), zap.Error(err))
			failed++
			continue
		}

		log.Info("document ingested",
			zap.String("source", report.Source),
			zap.String("doc_type", string(req.DocType)),
			zap.Int("pages", report.Pages),
			zap.Int("chunks", report.Chunks),
			zap.Int("stored", report.Stored),
			zap.Int("failed_chunks", report.Failed),
			zap.Bool("replaced", report.Replaced),
		)
	}

	log.Info("ingestion finished", zap.Int("succeeded", len(requests)-failed), zap.Int("failed", failed))
	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed to ingest", failed, len(requests))
	}
	return nil
}

func buildRequests(flags *ingestFlags) ([]services.IngestRequest, error) {
	if flags.file == "" {
		requests := make([]services.IngestRequest, 0, len(referenceDocs))
		for _, doc := range referenceDocs {
			requests = append(requests, services.IngestRequest{
				Path:      doc.Path,
				DocType:   doc.DocType,
				Source:    doc.Source,
				Replace:   flags.replace,
				ChunkSize: flags.chunkSize,
				Overlap:   flags.overlap,
			})
		}
		return requests, nil
	}

	docType, err := services.ParseDocumentType(flags.docType)
	if err != nil {
		return nil, fmt.Errorf("--type: %w", err)
	}

	return []services.IngestRequest{{
		Path:      flags.file,
		DocType:   docType,
		Source:    flags.source,
		Replace:   flags.replace,
		ChunkSize: flags.chunkSize,
		Overlap:   flags.overlap,
	}}, nil
}
