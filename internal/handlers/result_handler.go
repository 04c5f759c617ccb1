package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"alfredoptarigan/ai-cv-evaluator/internal/logger"
	"alfredoptarigan/ai-cv-evaluator/internal/services"
)

type ResultHandler struct {
	evaluations services.EvaluationService
	logger      *zap.Logger
}

func NewResultHandler(evaluations services.EvaluationService, log *zap.Logger) *ResultHandler {
	return &ResultHandler{
		evaluations: evaluations,
		logger:      logger.OrNop(log),
	}
}

// HandleGetResult handles GET /result/:id
func (h *ResultHandler) HandleGetResult(c *fiber.Ctx) error {
	result, err := h.evaluations.GetJobResult(c.UserContext(), c.Params("id"))
	if err != nil {
		if errorStatus(err) == fiber.StatusInternalServerError {
			h.logger.Error("failed to load evaluation", zap.String(logger.FieldJobID, c.Params("id")), zap.Error(err))
		}
		return serviceError(c, err)
	}

	return c.JSON(result)
}
