package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"gympay/internal/service"
)

const (
	signatureHeader    = "Stripe-Signature"
	maxWebhookBodySize = 1 << 20
)

// WebhookHandler receives processor webhook deliveries.
type WebhookHandler struct {
	webhookService *service.WebhookService
	logger         *zap.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(webhookService *service.WebhookService, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		webhookService: webhookService,
		logger:         logger,
	}
}

// Receive handles POST /payments/webhook
func (h *WebhookHandler) Receive(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodySize))
	if err != nil || len(payload) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Success: false, Error: "invalid webhook payload"})
		return
	}

	err = h.webhookService.Handle(c.Request.Context(), payload, c.GetHeader(signatureHeader), c.ClientIP())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
