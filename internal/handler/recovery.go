package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/waveroom/api/internal/service"
	"github.com/waveroom/api/pkg/response"
)

type RecoveryHandler struct {
	service *service.RecoveryService
}

func NewRecoveryHandler(svc *service.RecoveryService) *RecoveryHandler {
	return &RecoveryHandler{service: svc}
}

// Sweep handles POST /admin/recovery/sweep
// @Summary      Trigger recovery sweep
// @Description  Scan for stale jobs and retry, heal or fail them
// @Tags         Recovery
// @Produce      json
// @Success      200 {object} model.SweepSummary
// @Failure      401 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Router       /admin/recovery/sweep [post]
func (h *RecoveryHandler) Sweep(c *fiber.Ctx) error {
	summary, err := h.service.Sweep(c.Context())
	if err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, summary)
}
