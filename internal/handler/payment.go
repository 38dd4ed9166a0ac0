package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"gympay/internal/domain"
	"gympay/internal/middleware"
	"gympay/internal/service"
)

// PaymentHandler handles HTTP requests for parent-facing payments.
type PaymentHandler struct {
	paymentService *service.PaymentService
	receiptService *service.ReceiptService
	logger         *zap.Logger
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(paymentService *service.PaymentService, receiptService *service.ReceiptService, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
		receiptService: receiptService,
		logger:         logger,
	}
}

// InitiatePaymentResponse is the HTTP response for POST /payments.
type InitiatePaymentResponse struct {
	Success      bool   `json:"success"`
	PaymentID    int64  `json:"paymentId"`
	ClientSecret string `json:"clientSecret"`
	MockMode     bool   `json:"mockMode,omitempty"`
}

// ConfirmPaymentResponse is the HTTP response for PATCH /payments.
type ConfirmPaymentResponse struct {
	Success  bool             `json:"success"`
	Message  string           `json:"message,omitempty"`
	Error    string           `json:"error,omitempty"`
	MockMode bool             `json:"mockMode,omitempty"`
	Payment  *PaymentResponse `json:"payment,omitempty"`
}

// PaymentListResponse wraps a list of payments.
type PaymentListResponse struct {
	Success  bool              `json:"success"`
	Payments []PaymentResponse `json:"payments"`
}

// Initiate handles POST /payments
func (h *PaymentHandler) Initiate(c *gin.Context) {
	var req InitiatePaymentRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}
	if err := validateStruct(&req.initiateFields, initiateRules, initiateMessages); err != nil {
		respondError(c, h.logger, err)
		return
	}

	amount, err := parseAmount(req.Amount, "amount")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	dueDate, err := parseDate(req.DueDate, "dueDate")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	result, err := h.paymentService.Initiate(c.Request.Context(), service.InitiateRequest{
		EnrollmentID:   req.EnrollmentID,
		Amount:         amount,
		PaymentType:    domain.PaymentType(req.PaymentType),
		Description:    req.Description,
		CustomerEmail:  req.CustomerEmail,
		BillingAddress: req.BillingAddress,
		DueDate:        dueDate,
		ActorID:        middleware.PrincipalID(c),
		IdempotencyKey: c.GetHeader("Idempotency-Key"),
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondJSON(c, http.StatusOK, InitiatePaymentResponse{
		Success:      true,
		PaymentID:    result.Payment.ID,
		ClientSecret: result.ClientSecret,
		MockMode:     result.MockMode,
	})
}

// Confirm handles PATCH /payments
func (h *PaymentHandler) Confirm(c *gin.Context) {
	var req ConfirmPaymentRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}
	if err := validateStruct(&req, confirmRules, confirmMessages); err != nil {
		respondError(c, h.logger, err)
		return
	}

	result, err := h.paymentService.Confirm(c.Request.Context(), service.ConfirmRequest{
		IntentID:        req.PaymentIntentID,
		PaymentMethodID: req.PaymentMethodID,
		ActorID:         middleware.PrincipalID(c),
	})
	if errors.Is(err, service.ErrPaymentNotSucceeded) && result != nil {
		payment := toPaymentResponse(result.Payment)
		respondJSON(c, http.StatusBadRequest, ConfirmPaymentResponse{
			Success: false,
			Message: result.Message,
			Error:   err.Error(),
			Payment: &payment,
		})
		return
	}
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	payment := toPaymentResponse(result.Payment)
	respondJSON(c, http.StatusOK, ConfirmPaymentResponse{
		Success:  true,
		Message:  result.Message,
		MockMode: result.MockMode,
		Payment:  &payment,
	})
}

// Get handles GET /payments?paymentId=|enrollmentId=
func (h *PaymentHandler) Get(c *gin.Context) {
	paymentID, err := queryInt64(c, "paymentId")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	enrollmentID, err := queryInt64(c, "enrollmentId")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	payments, err := h.paymentService.Lookup(c.Request.Context(), service.LookupRequest{
		PaymentID:    paymentID,
		EnrollmentID: enrollmentID,
		Principal:    middleware.Principal(c),
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondJSON(c, http.StatusOK, PaymentListResponse{
		Success:  true,
		Payments: toPaymentResponses(payments),
	})
}

// Receipt handles GET /payments/receipt?paymentId=
func (h *PaymentHandler) Receipt(c *gin.Context) {
	paymentID, err := queryInt64(c, "paymentId")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	payments, err := h.paymentService.Lookup(c.Request.Context(), service.LookupRequest{
		PaymentID: paymentID,
		Principal: middleware.Principal(c),
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	text, _, err := h.receiptService.Receipt(c.Request.Context(), payments[0].ID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.String(http.StatusOK, text)
}
