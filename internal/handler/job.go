package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/waveroom/api/internal/middleware"
	"github.com/waveroom/api/internal/model"
	"github.com/waveroom/api/internal/service"
	"github.com/waveroom/api/pkg/response"
)

type JobHandler struct {
	service   *service.JobService
	validator *validator.Validate
}

func NewJobHandler(svc *service.JobService, v *validator.Validate) *JobHandler {
	return &JobHandler{
		service:   svc,
		validator: v,
	}
}

// Create handles POST /api/jobs
// @Summary      Create processing job
// @Description  Queue a tool run against an uploaded asset
// @Tags         Jobs
// @Accept       json
// @Produce      json
// @Param        request body model.CreateJobRequest true "Job request"
// @Success      202 {object} model.CreateJobResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/jobs [post]
func (h *JobHandler) Create(c *fiber.Ctx) error {
	var req model.CreateJobRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	job, err := h.service.CreateJob(c.Context(), middleware.GetSessionID(c), &req)
	switch err {
	case nil:
	case service.ErrInvalidTool:
		return response.ValidationError(c, "Unknown tool type", nil)
	case service.ErrAssetNotFound:
		return response.NotFound(c, "Asset not found")
	case service.ErrAssetNotReady:
		return response.AssetNotReady(c, "Asset upload not complete or expired")
	default:
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, &model.CreateJobResponse{
		JobID:         job.ID,
		Status:        job.Status,
		Progress:      job.Progress,
		Provider:      job.Provider,
		Model:         job.Model,
		RecoveryState: job.RecoveryState,
		AttemptCount:  job.AttemptCount,
		QualityFlags:  job.QualityFlags,
		CreatedAt:     job.CreatedAt,
	})
}

// Status handles GET /api/jobs/:jobId
// @Summary      Get job status
// @Description  Poll the status, progress, recovery metadata and artifacts of a job
// @Tags         Jobs
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.JobStatusResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/jobs/{jobId} [get]
func (h *JobHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.GetJobStatus(c.Context(), middleware.GetSessionID(c), jobID)
	if err != nil {
		if err == service.ErrJobNotFound {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}
