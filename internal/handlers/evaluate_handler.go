package handlers

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"alfredoptarigan/ai-cv-evaluator/internal/logger"
	"alfredoptarigan/ai-cv-evaluator/internal/models"
	"alfredoptarigan/ai-cv-evaluator/internal/services"
)

type EvaluationHandler struct {
	evaluations services.EvaluationService
	validator   *validator.Validate
	logger      *zap.Logger
}

func NewEvaluationHandler(evaluations services.EvaluationService, v *validator.Validate, log *zap.Logger) *EvaluationHandler {
	return &EvaluationHandler{
		evaluations: evaluations,
		validator:   v,
		logger:      logger.OrNop(log),
	}
}

// HandleEvaluate handles POST /evaluate
func (h *EvaluationHandler) HandleEvaluate(c *fiber.Ctx) error {
	var req models.EvaluateRequest
	if err := c.BodyParser(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "invalid request payload")
	}

	if err := h.validator.Struct(&req); err != nil {
		return validationError(c, err)
	}

	resp, err := h.evaluations.StartEvaluation(c.UserContext(), req.JobTitle, req.CVDocumentID, req.ProjectDocumentID)
	if err != nil {
		if errorStatus(err) == fiber.StatusInternalServerError {
			h.logger.Error("failed to start evaluation", zap.Error(err))
		}
		return serviceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(resp)
}
