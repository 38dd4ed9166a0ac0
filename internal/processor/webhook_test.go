package processor

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"gympay/internal/domain"
)

const testSecret = "whsec_test"

func sign(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.", ts.Unix())))
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func eventPayload(id, eventType, object string) []byte {
	return []byte(fmt.Sprintf(`{"id":%q,"object":"event","type":%q,"created":1700000000,"api_version":"2022-11-15","data":{"object":%s}}`,
		id, eventType, object))
}

func TestWebhookVerifier_PaymentIntentSucceeded(t *testing.T) {
	payload := eventPayload("evt_1", EventPaymentIntentSucceeded,
		`{"id":"pi_123","object":"payment_intent","amount":9500,"status":"succeeded"}`)

	v := NewWebhookVerifier(testSecret)
	event, err := v.Verify(payload, sign(payload, testSecret, time.Now()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if event.ID != "evt_1" || event.Kind != domain.EventIntentSucceeded {
		t.Errorf("unexpected event: %+v", event)
	}
	if event.IntentID != "pi_123" {
		t.Errorf("expected intent pi_123, got %q", event.IntentID)
	}
	if event.Amount == nil || event.Amount.String() != "95" {
		t.Errorf("expected amount 95, got %v", event.Amount)
	}
}

func TestWebhookVerifier_PaymentFailedReason(t *testing.T) {
	payload := eventPayload("evt_2", EventPaymentIntentFailed,
		`{"id":"pi_456","object":"payment_intent","amount":100,"status":"requires_payment_method",
		  "last_payment_error":{"type":"card_error","message":"Your card was declined."}}`)

	event, err := NewWebhookVerifier(testSecret).Verify(payload, sign(payload, testSecret, time.Now()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := event.FailureReason(); got != "card_error: Your card was declined." {
		t.Errorf("unexpected failure reason %q", got)
	}
}

func TestWebhookVerifier_AuditOnlyEvents(t *testing.T) {
	tests := []struct {
		eventType string
		object    string
		kind      domain.EventKind
		objectID  string
	}{
		{EventChargeDisputeCreated, `{"id":"dp_1","object":"dispute","amount":500,"reason":"fraudulent","payment_intent":"pi_9"}`, domain.EventDisputeCreated, "dp_1"},
		{EventCustomerCreated, `{"id":"cus_1","object":"customer","email":"parent@example.com"}`, domain.EventCustomerCreated, "cus_1"},
		{EventInvoicePaymentSucceeded, `{"id":"in_1","object":"invoice","amount_paid":2000,"customer_email":"parent@example.com"}`, domain.EventInvoiceSucceeded, "in_1"},
		{EventInvoicePaymentFailed, `{"id":"in_2","object":"invoice","amount_due":2000}`, domain.EventInvoiceFailed, "in_2"},
		{"charge.refunded", `{"id":"ch_1","object":"charge"}`, domain.EventUnknown, ""},
	}

	v := NewWebhookVerifier(testSecret)
	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			payload := eventPayload("evt_"+tt.eventType, tt.eventType, tt.object)
			event, err := v.Verify(payload, sign(payload, testSecret, time.Now()))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if event.Kind != tt.kind {
				t.Errorf("expected kind %s, got %s", tt.kind, event.Kind)
			}
			if event.ObjectID != tt.objectID {
				t.Errorf("expected object %q, got %q", tt.objectID, event.ObjectID)
			}
		})
	}
}

func TestWebhookVerifier_RejectsBadSignatures(t *testing.T) {
	payload := eventPayload("evt_3", EventPaymentIntentSucceeded, `{"id":"pi_1","object":"payment_intent"}`)
	tampered := eventPayload("evt_3", EventPaymentIntentSucceeded, `{"id":"pi_2","object":"payment_intent"}`)

	tests := []struct {
		name    string
		payload []byte
		header  string
	}{
		{"missing header", payload, ""},
		{"wrong secret", payload, sign(payload, "whsec_other", time.Now())},
		{"tampered payload", tampered, sign(payload, testSecret, time.Now())},
		{"stale timestamp", payload, sign(payload, testSecret, time.Now().Add(-time.Hour))},
		{"malformed header", payload, "v1=deadbeef"},
	}

	v := NewWebhookVerifier(testSecret)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.payload, tt.header)
			if !errors.Is(err, domain.ErrInvalidSignature) {
				t.Errorf("expected ErrInvalidSignature, got %v", err)
			}
		})
	}
}

func TestWebhookVerifier_NoSecretConfigured(t *testing.T) {
	payload := eventPayload("evt_4", EventPaymentIntentSucceeded, `{"id":"pi_1","object":"payment_intent"}`)

	_, err := NewWebhookVerifier("").Verify(payload, sign(payload, "", time.Now()))
	if !errors.Is(err, domain.ErrInvalidSignature) {
		t.Errorf("expected ErrInvalidSignature, got %v", err)
	}
}
