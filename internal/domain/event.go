package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// EventKind is the closed set of processor events the reconciler understands.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventIntentSucceeded
	EventIntentFailed
	EventIntentCanceled
	EventIntentProcessing
	EventDisputeCreated
	EventCustomerCreated
	EventInvoiceSucceeded
	EventInvoiceFailed
)

func (k EventKind) String() string {
	switch k {
	case EventIntentSucceeded:
		return "intent_succeeded"
	case EventIntentFailed:
		return "intent_failed"
	case EventIntentCanceled:
		return "intent_canceled"
	case EventIntentProcessing:
		return "intent_processing"
	case EventDisputeCreated:
		return "dispute_created"
	case EventCustomerCreated:
		return "customer_created"
	case EventInvoiceSucceeded:
		return "invoice_succeeded"
	case EventInvoiceFailed:
		return "invoice_failed"
	default:
		return "unknown"
	}
}

// ProcessorEvent is an authenticated webhook event, normalized away from
// the processor's wire format.
type ProcessorEvent struct {
	ID       string
	Type     string
	Kind     EventKind
	Created  time.Time
	IntentID string

	ReceiptURL    string
	ProcessingFee *decimal.Decimal
	ErrorType     string
	ErrorMessage  string

	// Audit-only payload details (disputes, customers, invoices).
	ObjectID string
	Email    string
	Amount   *decimal.Decimal
	Reason   string
}

// FailureReason composes the stored reason for a failed intent.
func (e *ProcessorEvent) FailureReason() string {
	switch {
	case e.ErrorType != "" && e.ErrorMessage != "":
		return e.ErrorType + ": " + e.ErrorMessage
	case e.ErrorMessage != "":
		return e.ErrorMessage
	case e.ErrorType != "":
		return e.ErrorType
	default:
		return "payment failed"
	}
}

// Intent is the processor-side view of a payment intent.
type Intent struct {
	ID            string
	ClientSecret  string
	Status        string
	ReceiptURL    string
	ProcessingFee *decimal.Decimal
	ErrorType     string
	ErrorMessage  string
}

// Processor intent statuses the service reasons about.
const (
	IntentStatusSucceeded             = "succeeded"
	IntentStatusProcessing            = "processing"
	IntentStatusCanceled              = "canceled"
	IntentStatusRequiresPaymentMethod = "requires_payment_method"
	IntentStatusRequiresAction        = "requires_action"
	IntentStatusRequiresConfirmation  = "requires_confirmation"
	IntentStatusRequiresCapture       = "requires_capture"
)

// Failed reports whether the last payment attempt on the intent was declined.
// An intent waiting for customer action or capture is still open.
func (i *Intent) Failed() bool {
	return i.Status == IntentStatusRequiresPaymentMethod && (i.ErrorType != "" || i.ErrorMessage != "")
}

// ErrInvalidSignature is returned when a webhook payload cannot be authenticated.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// IntentRequest describes a payment intent to create at the processor.
type IntentRequest struct {
	AmountMinor    int64
	Currency       string
	CustomerID     string
	Description    string
	ReceiptEmail   string
	Metadata       map[string]string
	IdempotencyKey string
}
