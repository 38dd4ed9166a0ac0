package domain

import "time"

// AuditEntry is one security/audit log record.
type AuditEntry struct {
	ID        string
	Action    string
	Resource  string
	ActorID   string
	Details   map[string]any
	Success   bool
	CreatedAt time.Time
}

// Audit actions.
const (
	AuditPaymentInitiate       = "payment.initiate"
	AuditPaymentConfirm        = "payment.confirm"
	AuditPaymentTransition     = "payment.transition"
	AuditPaymentOverride       = "payment.override"
	AuditPaymentCreate         = "payment.create"
	AuditPaymentDelete         = "payment.delete"
	AuditWebhookSignature      = "webhook.signature_invalid"
	AuditWebhookDispute        = "webhook.dispute_created"
	AuditWebhookCustomer       = "webhook.customer_created"
	AuditWebhookInvoicePaid    = "webhook.invoice_succeeded"
	AuditWebhookInvoiceFailure = "webhook.invoice_failed"
)
