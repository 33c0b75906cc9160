package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/alejandroramirez/llm-powered-candidate-scoring/internal/model"
	"github.com/alejandroramirez/llm-powered-candidate-scoring/internal/service"
	"github.com/alejandroramirez/llm-powered-candidate-scoring/pkg/response"
)

type ScoreHandler struct {
	service   *service.ScoreService
	validator *validator.Validate
}

func NewScoreHandler(svc *service.ScoreService, v *validator.Validate) *ScoreHandler {
	return &ScoreHandler{
		service:   svc,
		validator: v,
	}
}

// Submit handles POST /api/score
func (h *ScoreHandler) Submit(c *fiber.Ctx) error {
	var req model.ScoreSubmitRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.Submit(c.Context(), req.JobDescription)
	if err != nil {
		if errors.Is(err, service.ErrPoolUnavailable) {
			return response.ScoringError(c, err.Error())
		}
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, result)
}

// Status handles GET /api/score/status?id=<jobId>
func (h *ScoreHandler) Status(c *fiber.Ctx) error {
	jobID := c.Query("id")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.GetStatus(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			// Unknown, expired and cancelled jobs all read as pending
			return response.OK(c, model.PendingStatusResponse{Status: "pending"})
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// Cancel handles POST /api/score/cancel/:jobId
func (h *ScoreHandler) Cancel(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.Cancel(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}
