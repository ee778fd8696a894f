package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/waveroom/api/internal/model"
	"github.com/waveroom/api/internal/provider"
	"github.com/waveroom/api/internal/service"
	"github.com/waveroom/api/pkg/response"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw webhook body.
const SignatureHeader = "X-Webhook-Signature"

type WebhookHandler struct {
	registry   *provider.Registry
	reconciler *service.ReconcileService
}

func NewWebhookHandler(registry *provider.Registry, reconciler *service.ReconcileService) *WebhookHandler {
	return &WebhookHandler{
		registry:   registry,
		reconciler: reconciler,
	}
}

// Receive handles POST /webhooks/:provider
// @Summary      Provider callback
// @Description  Receive a progress or terminal callback from an inference provider
// @Tags         Webhooks
// @Accept       json
// @Produce      json
// @Param        provider path string true "Provider name"
// @Success      200 {object} model.WebhookAck
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Router       /webhooks/{provider} [post]
func (h *WebhookHandler) Receive(c *fiber.Ctx) error {
	providerName := c.Params("provider")
	body := c.Body()

	// signature is verified before the payload is parsed at all
	if err := h.registry.Verify(providerName, body, c.Get(SignatureHeader)); err != nil {
		if errors.Is(err, provider.ErrUnknownProvider) {
			return response.NotFound(c, "Unknown provider")
		}
		return response.Unauthorized(c, "Invalid webhook signature")
	}

	sig, err := h.registry.Normalize(providerName, body)
	if err != nil {
		return response.ValidationError(c, "Malformed webhook payload", nil)
	}

	job, err := h.reconciler.Apply(c.Context(), providerName, sig)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			return response.NotFound(c, "Unknown external job id")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, &model.WebhookAck{
		JobID:  job.ID,
		Status: job.Status,
	})
}
