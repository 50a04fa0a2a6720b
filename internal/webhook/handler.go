package webhook

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"courier/internal/logger"
	"courier/pkg/errors"
)

type Handler struct {
	service *Service
	logger  logger.Logger
}

func NewHandler(service *Service, log logger.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  log,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.POST("/webhooks/messages", h.HandleMessage)
}

// HandleMessage answers 200 on accept-or-duplicate, 400 on malformed
// payload and 5xx on internal failure. The provider retries on 5xx only.
func (h *Handler) HandleMessage(c *gin.Context) {
	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	outcome, err := h.service.Handle(c.Request.Context(), req)
	if err != nil {
		status := errors.ToHTTPStatus(err)
		if status < http.StatusInternalServerError && !errors.IsValidation(err) {
			status = http.StatusInternalServerError
		}
		h.logger.ErrorwCtx(c.Request.Context(), "Webhook handling failed",
			"error", err,
			"status", status,
		)
		c.JSON(status, errors.ToErrorResponse(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": string(outcome)})
}
