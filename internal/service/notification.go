package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"gympay/internal/domain"
)

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationPaymentCompleted NotificationType = "PAYMENT_COMPLETED"
	NotificationPaymentFailed    NotificationType = "PAYMENT_FAILED"
	NotificationPaymentCancelled NotificationType = "PAYMENT_CANCELLED"
	NotificationPaymentRefunded  NotificationType = "PAYMENT_REFUNDED"
)

// Notification represents a message to a parent.
type Notification struct {
	Type      NotificationType
	Recipient string
	Title     string
	Message   string
	Data      map[string]interface{}
	CreatedAt time.Time
}

// NotificationService tells parents about payment outcomes.
// Delivery is a structured log line; the mail relay consumes it.
type NotificationService struct {
	logger *zap.Logger
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(logger *zap.Logger) *NotificationService {
	return &NotificationService{logger: logger}
}

// NotifyStatusChange sends the notification matching the payment's new status.
func (s *NotificationService) NotifyStatusChange(ctx context.Context, payment *domain.Payment) {
	if s == nil || payment == nil || payment.ParentEmail == "" {
		return
	}

	switch payment.Status {
	case domain.PaymentStatusCompleted:
		s.NotifyPaymentCompleted(ctx, payment)
	case domain.PaymentStatusFailed:
		s.NotifyPaymentFailed(ctx, payment)
	case domain.PaymentStatusCancelled:
		s.NotifyPaymentCancelled(ctx, payment)
	case domain.PaymentStatusRefunded:
		s.NotifyPaymentRefunded(ctx, payment)
	}
}

// NotifyPaymentCompleted notifies the parent of a successful payment.
func (s *NotificationService) NotifyPaymentCompleted(ctx context.Context, payment *domain.Payment) {
	s.send(ctx, Notification{
		Type:      NotificationPaymentCompleted,
		Recipient: payment.ParentEmail,
		Title:     "Payment received",
		Message:   fmt.Sprintf("We received your %s payment of $%s. Thank you!", payment.PaymentType.Label(), payment.Amount.StringFixed(2)),
		Data: map[string]interface{}{
			"payment_id":  payment.ID,
			"receipt_url": payment.ReceiptURL,
		},
		CreatedAt: time.Now(),
	})
}

// NotifyPaymentFailed notifies the parent of a failed payment.
func (s *NotificationService) NotifyPaymentFailed(ctx context.Context, payment *domain.Payment) {
	s.send(ctx, Notification{
		Type:      NotificationPaymentFailed,
		Recipient: payment.ParentEmail,
		Title:     "Payment failed",
		Message:   fmt.Sprintf("Your %s payment of $%s could not be processed. Please try again.", payment.PaymentType.Label(), payment.Amount.StringFixed(2)),
		Data: map[string]interface{}{
			"payment_id": payment.ID,
			"reason":     payment.FailureReason,
		},
		CreatedAt: time.Now(),
	})
}

// NotifyPaymentCancelled notifies the parent that a payment was cancelled.
func (s *NotificationService) NotifyPaymentCancelled(ctx context.Context, payment *domain.Payment) {
	s.send(ctx, Notification{
		Type:      NotificationPaymentCancelled,
		Recipient: payment.ParentEmail,
		Title:     "Payment cancelled",
		Message:   fmt.Sprintf("Your %s payment of $%s was cancelled.", payment.PaymentType.Label(), payment.Amount.StringFixed(2)),
		Data: map[string]interface{}{
			"payment_id": payment.ID,
		},
		CreatedAt: time.Now(),
	})
}

// NotifyPaymentRefunded notifies the parent of a refund.
func (s *NotificationService) NotifyPaymentRefunded(ctx context.Context, payment *domain.Payment) {
	refund := payment.Amount
	if payment.RefundAmount != nil {
		refund = *payment.RefundAmount
	}
	s.send(ctx, Notification{
		Type:      NotificationPaymentRefunded,
		Recipient: payment.ParentEmail,
		Title:     "Payment refunded",
		Message:   fmt.Sprintf("$%s of your %s payment has been refunded.", refund.StringFixed(2), payment.PaymentType.Label()),
		Data: map[string]interface{}{
			"payment_id":    payment.ID,
			"refund_amount": refund.StringFixed(2),
		},
		CreatedAt: time.Now(),
	})
}

func (s *NotificationService) send(_ context.Context, n Notification) {
	s.logger.Info("notification",
		zap.String("type", string(n.Type)),
		zap.String("recipient", n.Recipient),
		zap.String("title", n.Title),
		zap.String("message", n.Message),
		zap.Any("data", n.Data),
	)
}
