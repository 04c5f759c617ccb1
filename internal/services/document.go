package services

import (
	"context"
	"fmt"
	"mime/multipart"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"alfredoptarigan/ai-cv-evaluator/internal/logger"
	"alfredoptarigan/ai-cv-evaluator/internal/models"
	"alfredoptarigan/ai-cv-evaluator/internal/repositories"
)

type DocumentService interface {
	Upload(ctx context.Context, file *multipart.FileHeader, fileType string) (*models.UploadResponse, error)
}

type documentService struct {
	docRepo repositories.DocumentRepository
	storage StorageService
	logger  *zap.Logger
}

func NewDocumentService(docRepo repositories.DocumentRepository, storage StorageService, log *zap.Logger) DocumentService {
	return &documentService{docRepo: docRepo, storage: storage, logger: logger.OrNop(log)}
}

// Upload stores the file and its Document row. The file is removed if the row cannot be written.
func (s *documentService) Upload(ctx context.Context, file *multipart.FileHeader, fileType string) (*models.UploadResponse, error) {
	if fileType != models.FileTypeCV && fileType != models.FileTypeProjectReport {
		return nil, fmt.Errorf("%w: unknown file type %q", ErrInvalidUpload, fileType)
	}

	stored, err := s.storage.SaveFile(file, fileType)
	if err != nil {
		return nil, err
	}

	doc := &models.Document{
		ID:               uuid.New(),
		Filename:         stored.Filename,
		OriginalFileName: file.Filename,
		FileType:         fileType,
		FilePath:         stored.Path,
		SizeBytes:        file.Size,
	}

	if err := s.docRepo.Create(ctx, doc); err != nil {
		if delErr := s.storage.DeleteFile(stored.Filename); delErr != nil {
			s.logger.Warn("failed to clean up orphaned upload", zap.String("filename", stored.Filename), zap.Error(delErr))
		}
		return nil, err
	}

	s.logger.Info("document uploaded",
		zap.String("document_id", doc.ID.String()),
		zap.String("file_type", fileType),
		zap.Int64("size", file.Size),
	)

	return &models.UploadResponse{
		ID:           doc.ID.String(),
		Filename:     doc.Filename,
		OriginalName: doc.OriginalFileName,
		FileType:     doc.FileType,
	}, nil
}
