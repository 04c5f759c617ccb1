package services

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidUpload marks a rejected file (wrong type, too large, empty).
var ErrInvalidUpload = errors.New("invalid upload")

type StoredFile struct {
	Filename string
	Path     string
}

type StorageService interface {
	SaveFile(file *multipart.FileHeader, fileType string) (*StoredFile, error)
	DeleteFile(filename string) error
	EnsureUploadDir() error
}

type storageService struct {
	uploadPath  string
	maxFileSize int64
}

func NewStorageService(uploadPath string, maxFileSize int64) StorageService {
	return &storageService{
		uploadPath:  uploadPath,
		maxFileSize: maxFileSize,
	}
}

func (s *storageService) EnsureUploadDir() error {
	if err := os.MkdirAll(s.uploadPath, 0755); err != nil {
		return fmt.Errorf("failed to create upload directory: %w", err)
	}

	return nil
}

// SaveFile stores a PDF under a generated name. Partial files are removed on error.
func (s *storageService) SaveFile(file *multipart.FileHeader, fileType string) (*StoredFile, error) {
	ext := strings.ToLower(filepath.Ext(file.Filename))
	if ext != ".pdf" {
		return nil, fmt.Errorf("%w: extension %q, only .pdf is accepted", ErrInvalidUpload, ext)
	}
	if file.Size <= 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrInvalidUpload, file.Filename)
	}
	if s.maxFileSize > 0 && file.Size > s.maxFileSize {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrInvalidUpload, file.Filename, s.maxFileSize)
	}

	stored := &StoredFile{Filename: fmt.Sprintf("%s_%s%s", fileType, uuid.New().String(), ext)}
	stored.Path = filepath.Join(s.uploadPath, stored.Filename)

	src, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(stored.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create destination file: %w", err)
	}

	_, copyErr := io.Copy(dst, src)
	closeErr := dst.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(stored.Path)
		return nil, fmt.Errorf("failed to save file: %w", err)
	}

	return stored, nil
}

func (s *storageService) DeleteFile(filename string) error {
	if err := os.Remove(filepath.Join(s.uploadPath, filepath.Base(filename))); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}
