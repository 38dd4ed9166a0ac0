package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"gympay/internal/domain"
	"gympay/internal/repository"
)

// MockClientSecret is returned instead of a processor client secret in mock mode.
const MockClientSecret = "mock_client_secret"

var maxPaymentAmount = decimal.NewFromInt(10000)

// Processor is the external payment processor.
type Processor interface {
	FindOrCreateCustomer(ctx context.Context, email, name string) (string, error)
	CreateIntent(ctx context.Context, req domain.IntentRequest) (*domain.Intent, error)
	GetIntent(ctx context.Context, intentID string) (*domain.Intent, error)
}

// PaymentService handles parent-facing payment operations.
// A nil processor puts the service in mock mode.
type PaymentService struct {
	paymentRepo   repository.PaymentRepository
	enrollments   *EnrollmentService
	processor     Processor
	receipts      *ReceiptService
	notifications *NotificationService
	audit         AuditRecorder
	logger        *zap.Logger
	currency      string
	now           func() time.Time
}

// NewPaymentService creates a new PaymentService.
func NewPaymentService(
	paymentRepo repository.PaymentRepository,
	enrollments *EnrollmentService,
	processor Processor,
	receipts *ReceiptService,
	notifications *NotificationService,
	audit AuditRecorder,
	logger *zap.Logger,
	currency string,
) *PaymentService {
	if currency == "" {
		currency = "usd"
	}
	return &PaymentService{
		paymentRepo:   paymentRepo,
		enrollments:   enrollments,
		processor:     processor,
		receipts:      receipts,
		notifications: notifications,
		audit:         audit,
		logger:        logger,
		currency:      currency,
		now:           time.Now,
	}
}

// MockMode reports whether the processor is disabled.
func (s *PaymentService) MockMode() bool {
	return s.processor == nil
}

// ValidateAmount enforces 0 < amount <= 10000 with at most two decimals.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() || amount.GreaterThan(maxPaymentAmount) {
		return ErrInvalidAmount
	}
	if !amount.Equal(amount.Round(2)) {
		return ErrInvalidAmount
	}
	return nil
}

// InitiateRequest contains the parameters for starting a payment.
type InitiateRequest struct {
	EnrollmentID   int64
	Amount         decimal.Decimal
	PaymentType    domain.PaymentType
	Description    string
	CustomerEmail  string
	BillingAddress *domain.BillingAddress
	DueDate        *time.Time
	ActorID        string
	IdempotencyKey string
}

// InitiateResult is what the caller needs to finish the payment client-side.
type InitiateResult struct {
	Payment      *domain.Payment
	ClientSecret string
	MockMode     bool
}

// Initiate creates a processor intent (or a mock one) and the matching pending record.
// The local record is only written once the intent id is known.
func (s *PaymentService) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	if req.EnrollmentID <= 0 {
		return nil, ErrInvalidEnrollmentID
	}
	if err := ValidateAmount(req.Amount); err != nil {
		return nil, err
	}
	if !req.PaymentType.Valid() {
		return nil, ErrInvalidPaymentType
	}

	enrollment, err := s.enrollments.Get(ctx, req.EnrollmentID)
	if err != nil {
		return nil, err
	}

	email := strings.TrimSpace(req.CustomerEmail)
	if email == "" {
		email = enrollment.ParentEmail
	}

	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = fmt.Sprintf("%s - %s", req.PaymentType.Label(), enrollment.StudentName)
	}

	payment := &domain.Payment{
		EnrollmentID:   req.EnrollmentID,
		Amount:         req.Amount,
		PaymentType:    req.PaymentType,
		Status:         domain.PaymentStatusPending,
		ParentEmail:    email,
		Description:    description,
		DueDate:        req.DueDate,
		BillingAddress: req.BillingAddress,
	}

	result := &InitiateResult{Payment: payment}

	if s.MockMode() {
		payment.ExternalIntentID = domain.NewMockIntentID(s.now())
		payment.PaymentMethod = domain.PaymentMethodMock
		result.ClientSecret = MockClientSecret
		result.MockMode = true
	} else {
		if email == "" {
			return nil, ErrMissingEmail
		}
		intent, err := s.createIntent(ctx, payment, enrollment, req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		payment.ExternalIntentID = intent.ID
		payment.PaymentMethod = domain.PaymentMethodCard
		result.ClientSecret = intent.ClientSecret
	}

	if err := s.paymentRepo.Create(ctx, payment); err != nil {
		if !result.MockMode {
			s.logger.Error("payment intent created without local record",
				zap.String("intent_id", payment.ExternalIntentID),
				zap.Int64("enrollment_id", payment.EnrollmentID),
				zap.Error(err),
			)
		}
		return nil, err
	}

	s.logger.Info("payment initiated",
		zap.Int64("payment_id", payment.ID),
		zap.Int64("enrollment_id", payment.EnrollmentID),
		zap.String("amount", payment.Amount.StringFixed(2)),
		zap.Bool("mock_mode", result.MockMode),
	)

	s.audit.Record(ctx, domain.AuditEntry{
		Action:   domain.AuditPaymentInitiate,
		Resource: paymentResource(payment.ID),
		ActorID:  req.ActorID,
		Success:  true,
		Details: map[string]any{
			"enrollment_id": payment.EnrollmentID,
			"amount":        payment.Amount.StringFixed(2),
			"payment_type":  string(payment.PaymentType),
			"intent_id":     payment.ExternalIntentID,
			"mock_mode":     result.MockMode,
		},
	})

	return result, nil
}

func (s *PaymentService) createIntent(ctx context.Context, payment *domain.Payment, enrollment *domain.Enrollment, idempotencyKey string) (*domain.Intent, error) {
	customerID, err := s.processor.FindOrCreateCustomer(ctx, payment.ParentEmail, enrollment.ParentName)
	if err != nil {
		s.logger.Error("processor customer lookup failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUpstreamFailure, err)
	}

	if idempotencyKey == "" {
		idempotencyKey = uuid.New().String()
	}

	intent, err := s.processor.CreateIntent(ctx, domain.IntentRequest{
		AmountMinor:  payment.AmountMinorUnits(),
		Currency:     s.currency,
		CustomerID:   customerID,
		Description:  payment.Description,
		ReceiptEmail: payment.ParentEmail,
		Metadata: map[string]string{
			"enrollment_id": strconv.FormatInt(payment.EnrollmentID, 10),
			"payment_type":  string(payment.PaymentType),
		},
		IdempotencyKey: "initiate:" + idempotencyKey,
	})
	if err != nil {
		s.logger.Error("processor intent creation failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUpstreamFailure, err)
	}

	return intent, nil
}

// ConfirmRequest contains the parameters for a client-side confirmation.
type ConfirmRequest struct {
	IntentID        string
	PaymentMethodID string
	ActorID         string
}

// ConfirmResult reports the outcome of a confirmation.
type ConfirmResult struct {
	Payment  *domain.Payment
	Message  string
	MockMode bool
}

// Confirm reconciles a payment after the client finished its part.
// Mock intents complete locally; live intents are re-read from the processor,
// which stays authoritative. A non-success outcome is returned with an
// ErrPaymentNotSucceeded error alongside the result.
func (s *PaymentService) Confirm(ctx context.Context, req ConfirmRequest) (*ConfirmResult, error) {
	intentID := strings.TrimSpace(req.IntentID)
	if intentID == "" {
		return nil, ErrInvalidIntentID
	}

	payment, err := s.paymentRepo.GetByExternalIntentID(ctx, intentID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()

	if domain.IsMockIntentID(intentID) {
		updated, err := s.apply(ctx, payment, domain.PaymentUpdate{
			Status:     domain.PaymentStatusCompleted,
			PaidDate:   &now,
			ReceiptURL: s.receipts.MockReceiptURL(intentID),
		}, req.ActorID, "confirm")
		if err != nil {
			return nil, err
		}
		return &ConfirmResult{Payment: updated, Message: "Payment confirmed", MockMode: true}, nil
	}

	if s.MockMode() {
		return nil, ErrPaymentsDisabled
	}

	intent, err := s.processor.GetIntent(ctx, intentID)
	if err != nil {
		s.logger.Error("processor intent lookup failed", zap.String("intent_id", intentID), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUpstreamFailure, err)
	}

	update, settled := updateFromIntent(intent, now)
	if !settled {
		// The client confirmed before the intent reached an outcome.
		// Leave the record alone so the webhook can still settle it.
		s.logger.Info("payment intent still open",
			zap.Int64("payment_id", payment.ID),
			zap.String("intent_status", intent.Status),
		)
		return &ConfirmResult{Payment: payment, Message: "Payment requires further action"},
			fmt.Errorf("%w: payment status: %s", ErrPaymentNotSucceeded, intent.Status)
	}

	updated, err := s.apply(ctx, payment, update, req.ActorID, "confirm")
	if err != nil {
		return nil, err
	}

	result := &ConfirmResult{Payment: updated}
	switch updated.Status {
	case domain.PaymentStatusCompleted:
		result.Message = "Payment confirmed"
		return result, nil
	case domain.PaymentStatusProcessing:
		result.Message = "Payment is processing"
	case domain.PaymentStatusCancelled:
		result.Message = "Payment was cancelled"
	default:
		result.Message = "Payment failed"
	}

	return result, fmt.Errorf("%w: payment status: %s", ErrPaymentNotSucceeded, intent.Status)
}

// updateFromIntent maps the processor's view of an intent to a status write.
// It returns false while the intent is still open (awaiting action, confirmation
// or capture); only a declined attempt is written as failed.
func updateFromIntent(intent *domain.Intent, now time.Time) (domain.PaymentUpdate, bool) {
	switch {
	case intent.Status == domain.IntentStatusSucceeded:
		return domain.PaymentUpdate{
			Status:        domain.PaymentStatusCompleted,
			PaidDate:      &now,
			ReceiptURL:    intent.ReceiptURL,
			ProcessingFee: intent.ProcessingFee,
		}, true
	case intent.Status == domain.IntentStatusProcessing:
		return domain.PaymentUpdate{Status: domain.PaymentStatusProcessing}, true
	case intent.Status == domain.IntentStatusCanceled:
		return domain.PaymentUpdate{Status: domain.PaymentStatusCancelled}, true
	case intent.Failed():
		reason := intent.ErrorMessage
		if intent.ErrorType != "" && intent.ErrorMessage != "" {
			reason = intent.ErrorType + ": " + intent.ErrorMessage
		} else if reason == "" {
			reason = intent.ErrorType
		}
		return domain.PaymentUpdate{
			Status:        domain.PaymentStatusFailed,
			FailureReason: reason,
		}, true
	default:
		return domain.PaymentUpdate{}, false
	}
}

// apply runs an automated transition and its side effects.
func (s *PaymentService) apply(ctx context.Context, payment *domain.Payment, update domain.PaymentUpdate, actorID, source string) (*domain.Payment, error) {
	from := payment.Status
	updated, changed, err := transition(ctx, s.paymentRepo, payment, update, automated)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			s.logger.Warn("payment transition rejected",
				zap.Int64("payment_id", payment.ID),
				zap.String("from", string(from)),
				zap.String("to", string(update.Status)),
				zap.String("source", source),
			)
		}
		return nil, err
	}

	s.audit.Record(ctx, domain.AuditEntry{
		Action:   domain.AuditPaymentConfirm,
		Resource: paymentResource(updated.ID),
		ActorID:  actorID,
		Success:  true,
		Details: map[string]any{
			"from":    string(from),
			"to":      string(updated.Status),
			"changed": changed,
			"source":  source,
		},
	})

	if changed {
		s.notifications.NotifyStatusChange(ctx, updated)
	}

	return updated, nil
}

// LookupRequest selects payments by id or by enrollment.
type LookupRequest struct {
	PaymentID    int64
	EnrollmentID int64
	Principal    *domain.Principal
}

// Lookup returns the requested payments. Parents only see payments billed
// to their own email.
func (s *PaymentService) Lookup(ctx context.Context, req LookupRequest) ([]*domain.Payment, error) {
	switch {
	case req.PaymentID > 0:
		payment, err := s.paymentRepo.GetByID(ctx, req.PaymentID)
		if err != nil {
			return nil, err
		}
		if !visibleTo(req.Principal, payment) {
			return nil, repository.ErrNotFound
		}
		return []*domain.Payment{payment}, nil

	case req.EnrollmentID > 0:
		payments, err := s.paymentRepo.ListByEnrollmentID(ctx, req.EnrollmentID)
		if err != nil {
			return nil, err
		}
		visible := make([]*domain.Payment, 0, len(payments))
		for _, p := range payments {
			if visibleTo(req.Principal, p) {
				visible = append(visible, p)
			}
		}
		return visible, nil

	default:
		return nil, ErrMissingLookup
	}
}

func visibleTo(principal *domain.Principal, payment *domain.Payment) bool {
	if principal == nil || principal.Role != domain.RoleParent {
		return true
	}
	return strings.EqualFold(principal.Email, payment.ParentEmail)
}

func paymentResource(id int64) string {
	return "payment:" + strconv.FormatInt(id, 10)
}
