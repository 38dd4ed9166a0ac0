package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"gympay/internal/domain"
	"gympay/internal/middleware"
	"gympay/internal/repository"
	"gympay/internal/service"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// AdminHandler handles the back-office payment endpoints.
type AdminHandler struct {
	adminService *service.AdminService
	logger       *zap.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(adminService *service.AdminService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		adminService: adminService,
		logger:       logger,
	}
}

// AdminListResponse is the HTTP response for GET /admin/payments.
type AdminListResponse struct {
	Success  bool              `json:"success"`
	Payments []PaymentResponse `json:"payments"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

// AdminPaymentResponse wraps a single payment.
type AdminPaymentResponse struct {
	Success bool            `json:"success"`
	Payment PaymentResponse `json:"payment"`
}

// List handles GET /admin/payments
func (h *AdminHandler) List(c *gin.Context) {
	enrollmentID, err := queryInt64(c, "enrollmentId")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	limit, err := queryInt(c, "limit", defaultPageSize)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if limit == 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	payments, err := h.adminService.List(c.Request.Context(), repository.PaymentFilter{
		Status:       domain.PaymentStatus(strings.ToLower(c.Query("status"))),
		EnrollmentID: enrollmentID,
		Limit:        limit,
		Offset:       offset,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondJSON(c, http.StatusOK, AdminListResponse{
		Success:  true,
		Payments: toPaymentResponses(payments),
		Limit:    limit,
		Offset:   offset,
	})
}

// Create handles POST /admin/payments
func (h *AdminHandler) Create(c *gin.Context) {
	var req CreatePaymentRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}
	if err := validateStruct(&req, createRules, createMessages); err != nil {
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

	payment, err := h.adminService.Create(c.Request.Context(), service.CreateRequest{
		EnrollmentID: req.EnrollmentID,
		Amount:       amount,
		PaymentType:  domain.PaymentType(req.PaymentType),
		Status:       domain.PaymentStatus(req.Status),
		Description:  req.Description,
		ParentEmail:  req.ParentEmail,
		Notes:        req.Notes,
		DueDate:      dueDate,
		ActorID:      middleware.PrincipalID(c),
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondJSON(c, http.StatusCreated, AdminPaymentResponse{
		Success: true,
		Payment: toPaymentResponse(payment),
	})
}

// Update handles PATCH /admin/payments
func (h *AdminHandler) Update(c *gin.Context) {
	var req UpdatePaymentRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}
	if err := validateStruct(&req, updateRules, updateMessages); err != nil {
		respondError(c, h.logger, err)
		return
	}

	var refund *decimal.Decimal
	if req.RefundAmount != "" {
		amount, err := parseAmount(req.RefundAmount, "refundAmount")
		if err != nil {
			respondError(c, h.logger, err)
			return
		}
		refund = &amount
	}

	payment, err := h.adminService.Update(c.Request.Context(), service.UpdateRequest{
		ID:           req.ID,
		Status:       domain.PaymentStatus(req.Status),
		Notes:        req.Notes,
		RefundAmount: refund,
		ActorID:      middleware.PrincipalID(c),
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondJSON(c, http.StatusOK, AdminPaymentResponse{
		Success: true,
		Payment: toPaymentResponse(payment),
	})
}

// Delete handles DELETE /admin/payments?id=
func (h *AdminHandler) Delete(c *gin.Context) {
	id, err := queryInt64(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	if err := h.adminService.Delete(c.Request.Context(), id, middleware.PrincipalID(c)); err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"success": true})
}
