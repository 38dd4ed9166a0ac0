package processor

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/webhook"

	"gympay/internal/domain"
)

// Stripe event types the reconciler acts on.
const (
	EventPaymentIntentSucceeded  = "payment_intent.succeeded"
	EventPaymentIntentFailed     = "payment_intent.payment_failed"
	EventPaymentIntentCanceled   = "payment_intent.canceled"
	EventPaymentIntentProcessing = "payment_intent.processing"
	EventChargeDisputeCreated    = "charge.dispute.created"
	EventCustomerCreated         = "customer.created"
	EventInvoicePaymentSucceeded = "invoice.payment_succeeded"
	EventInvoicePaymentFailed    = "invoice.payment_failed"
)

var eventKinds = map[string]domain.EventKind{
	EventPaymentIntentSucceeded:  domain.EventIntentSucceeded,
	EventPaymentIntentFailed:     domain.EventIntentFailed,
	EventPaymentIntentCanceled:   domain.EventIntentCanceled,
	EventPaymentIntentProcessing: domain.EventIntentProcessing,
	EventChargeDisputeCreated:    domain.EventDisputeCreated,
	EventCustomerCreated:         domain.EventCustomerCreated,
	EventInvoicePaymentSucceeded: domain.EventInvoiceSucceeded,
	EventInvoicePaymentFailed:    domain.EventInvoiceFailed,
}

// KindOf maps a Stripe event type to its EventKind.
func KindOf(eventType string) domain.EventKind {
	if kind, ok := eventKinds[eventType]; ok {
		return kind
	}
	return domain.EventUnknown
}

// WebhookVerifier authenticates Stripe webhook deliveries.
type WebhookVerifier struct {
	secret    string
	tolerance time.Duration
}

// NewWebhookVerifier creates a verifier for the endpoint signing secret.
func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{secret: secret, tolerance: webhook.DefaultTolerance}
}

// Verify checks the Stripe-Signature header and decodes the event.
// Any authentication failure is reported as domain.ErrInvalidSignature.
func (v *WebhookVerifier) Verify(payload []byte, header string) (*domain.ProcessorEvent, error) {
	if v.secret == "" || header == "" {
		return nil, domain.ErrInvalidSignature
	}

	event, err := webhook.ConstructEventWithOptions(payload, header, v.secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
	}

	return DecodeEvent(event)
}

// DecodeEvent normalizes an authenticated Stripe event.
func DecodeEvent(event stripe.Event) (*domain.ProcessorEvent, error) {
	out := &domain.ProcessorEvent{
		ID:      event.ID,
		Type:    string(event.Type),
		Kind:    KindOf(string(event.Type)),
		Created: time.Unix(event.Created, 0),
	}
	if event.Data == nil {
		return out, nil
	}
	raw := event.Data.Raw

	switch out.Kind {
	case domain.EventIntentSucceeded, domain.EventIntentFailed,
		domain.EventIntentCanceled, domain.EventIntentProcessing:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(raw, &pi); err != nil {
			return nil, fmt.Errorf("decode payment intent: %w", err)
		}
		intent := toIntent(&pi)
		out.IntentID = intent.ID
		out.ObjectID = intent.ID
		out.ReceiptURL = intent.ReceiptURL
		out.ProcessingFee = intent.ProcessingFee
		out.ErrorType = intent.ErrorType
		out.ErrorMessage = intent.ErrorMessage
		out.Amount = minorToDecimal(pi.Amount)

	case domain.EventDisputeCreated:
		var dispute stripe.Dispute
		if err := json.Unmarshal(raw, &dispute); err != nil {
			return nil, fmt.Errorf("decode dispute: %w", err)
		}
		out.ObjectID = dispute.ID
		out.Reason = string(dispute.Reason)
		out.Amount = minorToDecimal(dispute.Amount)
		if dispute.PaymentIntent != nil {
			out.IntentID = dispute.PaymentIntent.ID
		}

	case domain.EventCustomerCreated:
		var customer stripe.Customer
		if err := json.Unmarshal(raw, &customer); err != nil {
			return nil, fmt.Errorf("decode customer: %w", err)
		}
		out.ObjectID = customer.ID
		out.Email = customer.Email

	case domain.EventInvoiceSucceeded, domain.EventInvoiceFailed:
		var invoice stripe.Invoice
		if err := json.Unmarshal(raw, &invoice); err != nil {
			return nil, fmt.Errorf("decode invoice: %w", err)
		}
		out.ObjectID = invoice.ID
		out.Email = invoice.CustomerEmail
		if out.Kind == domain.EventInvoiceSucceeded {
			out.Amount = minorToDecimal(invoice.AmountPaid)
		} else {
			out.Amount = minorToDecimal(invoice.AmountDue)
		}
		if invoice.PaymentIntent != nil {
			out.IntentID = invoice.PaymentIntent.ID
		}
	}

	return out, nil
}
