package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"gympay/internal/auth"
	"gympay/internal/domain"
	"gympay/internal/repository"
	"gympay/internal/service"
)

const (
	msgInternal = "internal server error"
	msgUpstream = "payment processor unavailable, please try again later"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// respondError sends an error response with the appropriate HTTP status code.
// Server-side failures are logged in full and hidden from the caller.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	code := mapErrorToHTTPStatus(err)

	message := err.Error()
	switch {
	case code == http.StatusBadGateway:
		message = msgUpstream
	case code >= http.StatusInternalServerError:
		message = msgInternal
	case errors.Is(err, domain.ErrInvalidSignature):
		message = domain.ErrInvalidSignature.Error()
	}

	if code >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", code),
			zap.Error(err),
		)
		_ = c.Error(err)
	}

	c.JSON(code, ErrorResponse{Success: false, Error: message})
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// mapErrorToHTTPStatus maps service/repository errors to HTTP status codes.
func mapErrorToHTTPStatus(err error) int {
	var validationErr ValidationError

	switch {
	// Validation errors - Bad Request
	case errors.As(err, &validationErr),
		errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest

	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized

	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden

	// Not found errors
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound

	// Business rule errors
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrInvalidSignature),
		errors.Is(err, service.ErrPaymentNotDeletable),
		errors.Is(err, service.ErrPaymentNotSucceeded),
		errors.Is(err, service.ErrReceiptUnavailable),
		errors.Is(err, service.ErrPaymentsDisabled):
		return http.StatusBadRequest

	case errors.Is(err, repository.ErrDuplicate):
		return http.StatusConflict

	// External processor failures
	case errors.Is(err, service.ErrUpstreamFailure):
		return http.StatusBadGateway

	// Default to internal server error
	default:
		return http.StatusInternalServerError
	}
}

// PaymentResponse is the JSON view of a payment.
type PaymentResponse struct {
	ID               int64                  `json:"id"`
	ExternalIntentID string                 `json:"externalIntentId,omitempty"`
	EnrollmentID     int64                  `json:"enrollmentId"`
	Amount           json.Number            `json:"amount"`
	PaymentType      string                 `json:"paymentType"`
	Status           string                 `json:"status"`
	PaymentMethod    string                 `json:"paymentMethod"`
	ParentEmail      string                 `json:"parentEmail,omitempty"`
	Description      string                 `json:"description,omitempty"`
	DueDate          *time.Time             `json:"dueDate,omitempty"`
	BillingAddress   *domain.BillingAddress `json:"billingAddress,omitempty"`
	PaidDate         *time.Time             `json:"paidDate,omitempty"`
	FailureReason    string                 `json:"failureReason,omitempty"`
	ReceiptURL       string                 `json:"receiptUrl,omitempty"`
	RefundAmount     *json.Number           `json:"refundAmount,omitempty"`
	ProcessingFee    *json.Number           `json:"processingFee,omitempty"`
	Notes            string                 `json:"notes,omitempty"`
	CreatedAt        time.Time              `json:"createdAt"`
	UpdatedAt        time.Time              `json:"updatedAt"`
}

func toPaymentResponse(p *domain.Payment) PaymentResponse {
	resp := PaymentResponse{
		ID:               p.ID,
		ExternalIntentID: p.ExternalIntentID,
		EnrollmentID:     p.EnrollmentID,
		Amount:           json.Number(p.Amount.StringFixed(2)),
		PaymentType:      string(p.PaymentType),
		Status:           string(p.Status),
		PaymentMethod:    string(p.PaymentMethod),
		ParentEmail:      p.ParentEmail,
		Description:      p.Description,
		DueDate:          p.DueDate,
		BillingAddress:   p.BillingAddress,
		PaidDate:         p.PaidDate,
		FailureReason:    p.FailureReason,
		ReceiptURL:       p.ReceiptURL,
		Notes:            p.Notes,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
	if p.RefundAmount != nil {
		n := json.Number(p.RefundAmount.StringFixed(2))
		resp.RefundAmount = &n
	}
	if p.ProcessingFee != nil {
		n := json.Number(p.ProcessingFee.StringFixed(2))
		resp.ProcessingFee = &n
	}
	return resp
}

func toPaymentResponses(payments []*domain.Payment) []PaymentResponse {
	out := make([]PaymentResponse, 0, len(payments))
	for _, p := range payments {
		out = append(out, toPaymentResponse(p))
	}
	return out
}
