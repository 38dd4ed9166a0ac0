package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"gympay/internal/domain"
	"gympay/internal/redis"
	"gympay/internal/repository"
)

// WebhookVerifier authenticates and decodes a processor webhook delivery.
type WebhookVerifier interface {
	Verify(payload []byte, header string) (*domain.ProcessorEvent, error)
}

// WebhookService reconciles payment records with processor events.
// The processor is the authority for terminal outcomes.
type WebhookService struct {
	paymentRepo   repository.PaymentRepository
	verifier      WebhookVerifier
	events        redis.EventStoreInterface
	processor     Processor
	notifications *NotificationService
	audit         AuditRecorder
	logger        *zap.Logger
	eventTTL      time.Duration
	claimTTL      time.Duration
	now           func() time.Time
}

// NewWebhookService creates a new WebhookService. events and processor may be nil.
func NewWebhookService(
	paymentRepo repository.PaymentRepository,
	verifier WebhookVerifier,
	events redis.EventStoreInterface,
	processor Processor,
	notifications *NotificationService,
	audit AuditRecorder,
	logger *zap.Logger,
) *WebhookService {
	return &WebhookService{
		paymentRepo:   paymentRepo,
		verifier:      verifier,
		events:        events,
		processor:     processor,
		notifications: notifications,
		audit:         audit,
		logger:        logger,
		eventTTL:      redis.EventTTL,
		claimTTL:      redis.EventClaimTTL,
		now:           time.Now,
	}
}

// Handle authenticates a delivery and applies it. Business-level misses
// (unknown record, stale transition, unmodeled event) are acknowledged;
// only authentication and storage failures return an error.
func (s *WebhookService) Handle(ctx context.Context, payload []byte, signature string, sourceIP string) error {
	event, err := s.verifier.Verify(payload, signature)
	if err != nil {
		s.logger.Warn("webhook signature rejected", zap.String("ip", sourceIP), zap.Error(err))
		s.audit.Record(ctx, domain.AuditEntry{
			Action:   domain.AuditWebhookSignature,
			Resource: "webhook",
			Success:  false,
			Details: map[string]any{
				"ip":    sourceIP,
				"error": err.Error(),
			},
		})
		if !errors.Is(err, domain.ErrInvalidSignature) {
			err = fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
		}
		return err
	}

	logger := s.logger.With(
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type),
	)

	claimed := false
	if s.events != nil {
		// Claims stay short until dispatch commits.
		first, err := s.events.MarkProcessed(ctx, event.ID, s.claimTTL)
		if err != nil {
			// Duplicate processing is harmless; the state machine absorbs it.
			logger.Warn("webhook dedupe unavailable", zap.Error(err))
		} else if !first {
			logger.Info("webhook event already processed")
			return nil
		} else {
			claimed = true
		}
	}

	if err := s.dispatch(ctx, event, logger); err != nil {
		if claimed {
			if releaseErr := s.events.Release(ctx, event.ID); releaseErr != nil {
				logger.Warn("webhook dedupe release failed", zap.Error(releaseErr))
			}
		}
		logger.Error("webhook processing failed", zap.Error(err))
		return err
	}

	if claimed {
		if err := s.events.Commit(ctx, event.ID, s.eventTTL); err != nil {
			logger.Warn("webhook dedupe commit failed", zap.Error(err))
		}
	}

	return nil
}

func (s *WebhookService) dispatch(ctx context.Context, event *domain.ProcessorEvent, logger *zap.Logger) error {
	switch event.Kind {
	case domain.EventIntentSucceeded, domain.EventIntentFailed,
		domain.EventIntentCanceled, domain.EventIntentProcessing:
		return s.reconcileIntent(ctx, event, logger)

	case domain.EventDisputeCreated:
		logger.Warn("payment dispute opened",
			zap.String("dispute_id", event.ObjectID),
			zap.String("intent_id", event.IntentID),
			zap.String("reason", event.Reason),
		)
		s.auditEvent(ctx, domain.AuditWebhookDispute, event)

	case domain.EventCustomerCreated:
		s.auditEvent(ctx, domain.AuditWebhookCustomer, event)

	case domain.EventInvoiceSucceeded:
		s.auditEvent(ctx, domain.AuditWebhookInvoicePaid, event)

	case domain.EventInvoiceFailed:
		logger.Warn("invoice payment failed", zap.String("invoice_id", event.ObjectID))
		s.auditEvent(ctx, domain.AuditWebhookInvoiceFailure, event)

	default:
		logger.Debug("webhook event ignored")
	}

	return nil
}

func (s *WebhookService) reconcileIntent(ctx context.Context, event *domain.ProcessorEvent, logger *zap.Logger) error {
	logger = logger.With(zap.String("intent_id", event.IntentID))

	payment, err := s.paymentRepo.GetByExternalIntentID(ctx, event.IntentID)
	if errors.Is(err, repository.ErrNotFound) {
		logger.Warn("webhook for unknown payment intent")
		return nil
	}
	if err != nil {
		return err
	}

	update := s.updateFromEvent(ctx, event, logger)
	from := payment.Status

	updated, changed, err := transition(ctx, s.paymentRepo, payment, update, automated)
	if errors.Is(err, domain.ErrInvalidTransition) {
		logger.Warn("webhook transition rejected",
			zap.Int64("payment_id", payment.ID),
			zap.String("from", string(from)),
			zap.String("to", string(update.Status)),
		)
		return nil
	}
	if err != nil {
		return err
	}

	logger.Info("payment reconciled",
		zap.Int64("payment_id", updated.ID),
		zap.String("from", string(from)),
		zap.String("to", string(updated.Status)),
		zap.Bool("changed", changed),
	)

	s.audit.Record(ctx, domain.AuditEntry{
		Action:   domain.AuditPaymentTransition,
		Resource: paymentResource(updated.ID),
		Success:  true,
		Details: map[string]any{
			"event_id": event.ID,
			"from":     string(from),
			"to":       string(updated.Status),
			"changed":  changed,
			"source":   "webhook",
		},
	})

	if changed {
		s.notifications.NotifyStatusChange(ctx, updated)
	}

	return nil
}

func (s *WebhookService) updateFromEvent(ctx context.Context, event *domain.ProcessorEvent, logger *zap.Logger) domain.PaymentUpdate {
	switch event.Kind {
	case domain.EventIntentSucceeded:
		paidAt := event.Created.UTC()
		if event.Created.IsZero() || event.Created.Unix() <= 0 {
			paidAt = s.now().UTC()
		}
		update := domain.PaymentUpdate{
			Status:        domain.PaymentStatusCompleted,
			PaidDate:      &paidAt,
			ReceiptURL:    event.ReceiptURL,
			ProcessingFee: event.ProcessingFee,
		}
		// Event payloads carry the charge unexpanded.
		if update.ReceiptURL == "" && s.processor != nil && !domain.IsMockIntentID(event.IntentID) {
			intent, err := s.processor.GetIntent(ctx, event.IntentID)
			if err != nil {
				logger.Warn("receipt lookup failed", zap.Error(err))
			} else {
				update.ReceiptURL = intent.ReceiptURL
				if update.ProcessingFee == nil {
					update.ProcessingFee = intent.ProcessingFee
				}
			}
		}
		return update

	case domain.EventIntentFailed:
		return domain.PaymentUpdate{
			Status:        domain.PaymentStatusFailed,
			FailureReason: event.FailureReason(),
		}

	case domain.EventIntentCanceled:
		return domain.PaymentUpdate{Status: domain.PaymentStatusCancelled}

	default:
		return domain.PaymentUpdate{Status: domain.PaymentStatusProcessing}
	}
}

func (s *WebhookService) auditEvent(ctx context.Context, action string, event *domain.ProcessorEvent) {
	details := map[string]any{
		"event_id":   event.ID,
		"event_type": event.Type,
		"object_id":  event.ObjectID,
	}
	if event.IntentID != "" {
		details["intent_id"] = event.IntentID
	}
	if event.Email != "" {
		details["email"] = event.Email
	}
	if event.Amount != nil {
		details["amount"] = event.Amount.StringFixed(2)
	}
	if event.Reason != "" {
		details["reason"] = event.Reason
	}

	s.audit.Record(ctx, domain.AuditEntry{
		Action:   action,
		Resource: "webhook",
		Success:  true,
		Details:  details,
	})
}
