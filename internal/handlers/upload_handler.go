package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"alfredoptarigan/ai-cv-evaluator/internal/logger"
	"alfredoptarigan/ai-cv-evaluator/internal/models"
	"alfredoptarigan/ai-cv-evaluator/internal/services"
)

type UploadHandler struct {
	documents services.DocumentService
	logger    *zap.Logger
}

func NewUploadHandler(documents services.DocumentService, log *zap.Logger) *UploadHandler {
	return &UploadHandler{
		documents: documents,
		logger:    logger.OrNop(log),
	}
}

// HandleUpload handles POST /upload with "cv" and/or "project_report" PDF parts.
func (h *UploadHandler) HandleUpload(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "failed to parse multipart form")
	}

	var responses []models.UploadResponse

	for _, fileType := range []string{models.FileTypeCV, models.FileTypeProjectReport} {
		files, ok := form.File[fileType]
		if !ok || len(files) == 0 {
			continue
		}

		resp, err := h.documents.Upload(c.UserContext(), files[0], fileType)
		if err != nil {
			if errorStatus(err) == fiber.StatusInternalServerError {
				h.logger.Error("failed to store upload", zap.String("file_type", fileType), zap.Error(err))
			}
			return serviceError(c, err)
		}
		responses = append(responses, *resp)
	}

	if len(responses) == 0 {
		return errorResponse(c, fiber.StatusBadRequest,
			"no valid files uploaded, send 'cv' and/or 'project_report' as PDF files")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":   "Files uploaded successfully",
		"documents": responses,
	})
}
