package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"alfredoptarigan/ai-cv-evaluator/internal/repositories"
)

// ErrNotFound marks an unknown job or file id. It is never retried.
var ErrNotFound = repositories.ErrNotFound

// TextStore resolves uploaded file ids to plain text.
type TextStore interface {
	Exists(ctx context.Context, fileID uuid.UUID) error
	GetText(ctx context.Context, fileID uuid.UUID) (string, error)
}

type documentTextStore struct {
	docRepo repositories.DocumentRepository
	parser  PDFParserService
}

func NewDocumentTextStore(docRepo repositories.DocumentRepository, parser PDFParserService) TextStore {
	return &documentTextStore{docRepo: docRepo, parser: parser}
}

// Exists returns an error wrapping ErrNotFound when fileID is unknown.
func (s *documentTextStore) Exists(ctx context.Context, fileID uuid.UUID) error {
	_, err := s.docRepo.FindByID(ctx, fileID)
	return err
}

func (s *documentTextStore) GetText(ctx context.Context, fileID uuid.UUID) (string, error) {
	doc, err := s.docRepo.FindByID(ctx, fileID)
	if err != nil {
		return "", err
	}

	content, err := s.parser.ExtractText(doc.FilePath)
	if err != nil {
		return "", fmt.Errorf("failed to read %s %s: %w", doc.FileType, doc.ID, err)
	}

	return content.Text, nil
}
