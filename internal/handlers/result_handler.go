package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"ai-evaluator/internal/models"
	"ai-evaluator/internal/repositories"
)

type ResultHandler struct {
	evalRepo repositories.EvaluationRepository
}

func NewResultHandler(evalRepo repositories.EvaluationRepository) *ResultHandler {
	return &ResultHandler{
		evalRepo: evalRepo,
	}
}

// HandleGetResult handles GET /result/:id. The result field is non-null iff
// the job completed; error_message is non-null iff it failed.
func (h *ResultHandler) HandleGetResult(c *fiber.Ctx) error {
	idParam := c.Params("id")
	evalID, err := uuid.Parse(idParam)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid evaluation ID format",
		})
	}

	evaluation, err := h.evalRepo.FindByID(evalID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Evaluation not found",
		})
	}

	response := models.ResultResponse{
		ID:     evaluation.ID.String(),
		Status: string(evaluation.Status),
	}

	if evaluation.Status == models.StatusCompleted {
		result := &models.EvaluationResult{
			CVFeedback:      evaluation.CVFeedback,
			ProjectFeedback: evaluation.ProjectFeedback,
		}
		if evaluation.CVMatchRate != nil {
			result.CVMatchRate = *evaluation.CVMatchRate
		}
		if evaluation.ProjectScore != nil {
			result.ProjectScore = *evaluation.ProjectScore
		}
		if evaluation.OverallSummary != nil {
			result.OverallSummary = *evaluation.OverallSummary
		}
		if evaluation.JobKey != nil {
			result.JobKey = *evaluation.JobKey
		}
		response.Result = result
	}

	if evaluation.Status == models.StatusFailed {
		response.ErrorMessage = evaluation.ErrorMessage
	}

	return c.JSON(response)
}
