package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// RegisterRoutes mounts the API under router.
func RegisterRoutes(router fiber.Router, upload *UploadHandler, evaluate *EvaluationHandler, result *ResultHandler) {
	router.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now(),
		})
	})

	router.Post("/upload", upload.HandleUpload)
	router.Post("/evaluate", evaluate.HandleEvaluate)
	router.Get("/result/:id", result.HandleGetResult)
}
