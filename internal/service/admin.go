package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"gympay/internal/domain"
	"gympay/internal/repository"
)

// AdminService implements the back-office payment overrides.
type AdminService struct {
	paymentRepo   repository.PaymentRepository
	enrollments   *EnrollmentService
	notifications *NotificationService
	audit         AuditRecorder
	logger        *zap.Logger
	now           func() time.Time
}

// NewAdminService creates a new AdminService.
func NewAdminService(
	paymentRepo repository.PaymentRepository,
	enrollments *EnrollmentService,
	notifications *NotificationService,
	audit AuditRecorder,
	logger *zap.Logger,
) *AdminService {
	return &AdminService{
		paymentRepo:   paymentRepo,
		enrollments:   enrollments,
		notifications: notifications,
		audit:         audit,
		logger:        logger,
		now:           time.Now,
	}
}

// List returns payments matching filter, newest first.
func (s *AdminService) List(ctx context.Context, filter repository.PaymentFilter) ([]*domain.Payment, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, ErrInvalidStatus
	}
	return s.paymentRepo.List(ctx, filter)
}

// CreateRequest contains the parameters for recording a manual payment.
type CreateRequest struct {
	EnrollmentID int64
	Amount       decimal.Decimal
	PaymentType  domain.PaymentType
	Status       domain.PaymentStatus
	Description  string
	ParentEmail  string
	Notes        string
	DueDate      *time.Time
	ActorID      string
}

// Create records a payment taken outside the processor (cash, cheque, transfer).
// Only pending and completed are accepted as initial statuses.
func (s *AdminService) Create(ctx context.Context, req CreateRequest) (*domain.Payment, error) {
	if req.EnrollmentID <= 0 {
		return nil, ErrInvalidEnrollmentID
	}
	if err := ValidateAmount(req.Amount); err != nil {
		return nil, err
	}
	if !req.PaymentType.Valid() {
		return nil, ErrInvalidPaymentType
	}

	status := req.Status
	if status == "" {
		status = domain.PaymentStatusPending
	}
	if status != domain.PaymentStatusPending && status != domain.PaymentStatusCompleted {
		return nil, ErrInvalidStatus
	}

	enrollment, err := s.enrollments.Get(ctx, req.EnrollmentID)
	if err != nil {
		return nil, err
	}

	email := strings.TrimSpace(req.ParentEmail)
	if email == "" {
		email = enrollment.ParentEmail
	}

	payment := &domain.Payment{
		EnrollmentID:  req.EnrollmentID,
		Amount:        req.Amount,
		PaymentType:   req.PaymentType,
		Status:        status,
		PaymentMethod: domain.PaymentMethodManual,
		ParentEmail:   email,
		Description:   strings.TrimSpace(req.Description),
		DueDate:       req.DueDate,
		Notes:         strings.TrimSpace(req.Notes),
	}
	if status == domain.PaymentStatusCompleted {
		paidAt := s.now().UTC()
		payment.PaidDate = &paidAt
	}

	if err := s.paymentRepo.Create(ctx, payment); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, domain.AuditEntry{
		Action:   domain.AuditPaymentCreate,
		Resource: paymentResource(payment.ID),
		ActorID:  req.ActorID,
		Success:  true,
		Details: map[string]any{
			"enrollment_id": payment.EnrollmentID,
			"amount":        payment.Amount.StringFixed(2),
			"payment_type":  string(payment.PaymentType),
			"status":        string(payment.Status),
		},
	})

	return payment, nil
}

// UpdateRequest contains the parameters for an operator status override.
type UpdateRequest struct {
	ID           int64
	Status       domain.PaymentStatus
	Notes        string
	RefundAmount *decimal.Decimal
	ActorID      string
}

// Update applies an operator override. Refunds are bookkeeping only: the
// processor is not contacted.
func (s *AdminService) Update(ctx context.Context, req UpdateRequest) (*domain.Payment, error) {
	if req.ID <= 0 {
		return nil, ErrInvalidPaymentID
	}
	if !req.Status.Valid() {
		return nil, ErrInvalidStatus
	}
	if req.RefundAmount != nil && req.Status != domain.PaymentStatusRefunded {
		return nil, ErrRefundWithoutRefundStatus
	}

	payment, err := s.paymentRepo.GetByID(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	before := *payment

	update := domain.PaymentUpdate{
		Status:      req.Status,
		AppendNotes: strings.TrimSpace(req.Notes),
	}

	switch req.Status {
	case domain.PaymentStatusRefunded:
		refund := payment.Amount
		if req.RefundAmount != nil {
			refund = *req.RefundAmount
		}
		if !refund.IsPositive() || refund.GreaterThan(payment.Amount) || !refund.Equal(refund.Round(2)) {
			return nil, ErrRefundExceedsAmount
		}
		update.RefundAmount = &refund
	case domain.PaymentStatusCompleted:
		paidAt := s.now().UTC()
		update.PaidDate = &paidAt
	}

	updated, changed, err := transition(ctx, s.paymentRepo, payment, update, override)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			s.logger.Warn("admin override rejected",
				zap.Int64("payment_id", req.ID),
				zap.String("from", string(before.Status)),
				zap.String("to", string(req.Status)),
				zap.String("actor_id", req.ActorID),
			)
		}
		return nil, err
	}

	details := map[string]any{
		"before": snapshot(&before),
		"after":  snapshot(updated),
	}
	if update.AppendNotes != "" {
		details["notes"] = update.AppendNotes
	}
	s.audit.Record(ctx, domain.AuditEntry{
		Action:   domain.AuditPaymentOverride,
		Resource: paymentResource(updated.ID),
		ActorID:  req.ActorID,
		Success:  true,
		Details:  details,
	})

	if changed {
		s.notifications.NotifyStatusChange(ctx, updated)
	}

	return updated, nil
}

// Delete removes a payment that is still pending.
func (s *AdminService) Delete(ctx context.Context, id int64, actorID string) error {
	if id <= 0 {
		return ErrInvalidPaymentID
	}

	err := s.paymentRepo.DeletePending(ctx, id)
	if errors.Is(err, repository.ErrConflict) {
		s.audit.Record(ctx, domain.AuditEntry{
			Action:   domain.AuditPaymentDelete,
			Resource: paymentResource(id),
			ActorID:  actorID,
			Success:  false,
			Details:  map[string]any{"reason": "not pending"},
		})
		return ErrPaymentNotDeletable
	}
	if err != nil {
		return err
	}

	s.audit.Record(ctx, domain.AuditEntry{
		Action:   domain.AuditPaymentDelete,
		Resource: paymentResource(id),
		ActorID:  actorID,
		Success:  true,
	})

	return nil
}

func snapshot(p *domain.Payment) map[string]any {
	out := map[string]any{
		"status": string(p.Status),
		"amount": p.Amount.StringFixed(2),
	}
	if p.RefundAmount != nil {
		out["refund_amount"] = p.RefundAmount.StringFixed(2)
	}
	if p.PaidDate != nil {
		out["paid_date"] = p.PaidDate.Format(time.RFC3339)
	}
	return out
}
